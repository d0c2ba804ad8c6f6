package version

import (
	"fmt"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInfo(t *testing.T) {
	v, c, d := Version, Commit, Date
	t.Cleanup(func() { Version, Commit, Date = v, c, d })

	assert.Equal(t, fmt.Sprintf("consultant dev (commit: unknown, built: unknown, %s/%s)", runtime.GOOS, runtime.GOARCH), Info())

	Version, Commit, Date = "0.4.0", "9f2c1e7d55", "2026-10-01"
	assert.Equal(t, fmt.Sprintf("consultant 0.4.0 (commit: 9f2c1e7, built: 2026-10-01, %s/%s)", runtime.GOOS, runtime.GOARCH), Info())
}

func TestShort(t *testing.T) {
	for in, want := range map[string]string{
		"":         "",
		"abc":      "abc",
		"1234567":  "1234567",
		"12345678": "1234567",
	} {
		assert.Equal(t, want, short(in), in)
	}
}
