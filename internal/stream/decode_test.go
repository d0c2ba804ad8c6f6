package stream

import (
	"testing"

	"github.com/soyeahso/consultant/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestLineDecoder_HoldsPartialLine(t *testing.T) {
	var d lineDecoder
	assert.Empty(t, d.feed([]byte("data: ab")))
	assert.Equal(t, []string{"data: abcd", "next"}, d.feed([]byte("cd\nnext\n")))
	assert.Equal(t, "", d.remainder())
}

func TestLineDecoder_CarriesIncompleteRune(t *testing.T) {
	naira := []byte("₦") // three bytes
	var d lineDecoder

	assert.Empty(t, d.feed(append([]byte("x"), naira[0])))
	assert.Equal(t, "x", d.partial)
	assert.Len(t, d.carry, 1)

	assert.Empty(t, d.feed(naira[1:2]))
	assert.Len(t, d.carry, 2)

	assert.Equal(t, []string{"x₦y"}, d.feed(append(naira[2:], []byte("y\n")...)))
	assert.Empty(t, d.carry)
}

func TestLineDecoder_EveryByteBoundary(t *testing.T) {
	input := []byte("héllo ₦ 🙂\nsecond line\n")
	for i := 0; i <= len(input); i++ {
		var d lineDecoder
		var lines []string
		lines = append(lines, d.feed(input[:i])...)
		lines = append(lines, d.feed(input[i:])...)
		assert.Equal(t, []string{"héllo ₦ 🙂", "second line"}, lines, "split at %d", i)
	}
}

func TestLineDecoder_RemainderIncludesCarry(t *testing.T) {
	var d lineDecoder
	d.feed([]byte{'a', 0xE2})
	assert.Equal(t, "a\xe2", d.remainder())
}

func TestCompletePrefix(t *testing.T) {
	emoji := []byte("🙂")
	assert.Equal(t, 0, completePrefix(nil))
	assert.Equal(t, 3, completePrefix([]byte("abc")))
	assert.Equal(t, 1, completePrefix(append([]byte("a"), emoji[:3]...)))
	assert.Equal(t, 5, completePrefix(append([]byte("a"), emoji...)))
	// Invalid continuation bytes with no start byte pass through.
	assert.Equal(t, 2, completePrefix([]byte{0x80, 0x80}))
}

func TestTurnsFrom(t *testing.T) {
	turns := TurnsFrom([]domain.Message{
		{Role: domain.RoleUser, Content: "hi", ImageRef: "img/1.png"},
		{Role: domain.RoleAssistant, Content: ""},
		{Role: domain.RoleAssistant, Content: "hello"},
	})
	assert.Equal(t, []Turn{
		{Role: domain.RoleUser, Content: "hi", ImageRef: "img/1.png"},
		{Role: domain.RoleAssistant, Content: "hello"},
	}, turns)
}
