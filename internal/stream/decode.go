package stream

import (
	"strings"
	"unicode/utf8"
)

// lineDecoder turns arbitrary byte chunks into complete text lines. Bytes of
// a character split across chunks are held back until the rest arrives, and
// text after the last newline is kept until its terminator shows up.
type lineDecoder struct {
	carry   []byte
	partial string
}

// feed appends chunk and returns the lines it completed, without their
// line terminators.
func (d *lineDecoder) feed(chunk []byte) []string {
	data := append(d.carry, chunk...)
	cut := completePrefix(data)

	text := d.partial + string(data[:cut])
	d.carry = append([]byte(nil), data[cut:]...)

	parts := strings.Split(text, "\n")
	d.partial = parts[len(parts)-1]

	lines := parts[:len(parts)-1]
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}

// remainder returns whatever never saw a terminating newline.
func (d *lineDecoder) remainder() string {
	return d.partial + string(d.carry)
}

// completePrefix returns the length of the longest prefix of b that does not
// end inside an incomplete multi-byte character.
func completePrefix(b []byte) int {
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax; i-- {
		if !utf8.RuneStart(b[i]) {
			continue
		}
		if utf8.FullRune(b[i:]) {
			return len(b)
		}
		return i
	}
	return len(b)
}
