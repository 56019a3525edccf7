// Package box implements the ISO-BMFF box tree: header framing, a
// context-sensitive type registry, an arena-backed tree, and a save path
// that reconciles edited sizes against the underlying file.
package box

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

// Type is a four-character box type code.
type Type [4]byte

// Root is the parent type reported for top-level boxes.
var Root Type

// TypeUUID is the type code of extended-type boxes.
var TypeUUID = Type{'u', 'u', 'i', 'd'}

// TypeOf converts a four-character code. A "©" is accepted for the 0xA9
// byte used by QuickTime metadata atoms. It panics if the code is not
// exactly four Latin-1 characters, so it is meant for constants.
func TypeOf(s string) Type {
	t, ok := ParseType(s)
	if !ok {
		panic("box: invalid type code " + strconv.Quote(s))
	}
	return t
}

// String renders the code, showing 0xA9 as "©" and other non-printable
// bytes as escapes.
func (t Type) String() string {
	var sb strings.Builder
	for _, c := range t {
		switch {
		case c == 0xA9:
			sb.WriteRune('©')
		case c >= 0x20 && c < 0x7F:
			sb.WriteByte(c)
		default:
			sb.WriteString(`\x`)
			sb.WriteByte("0123456789abcdef"[c>>4])
			sb.WriteByte("0123456789abcdef"[c&0x0F])
		}
	}
	return sb.String()
}

// ParseType is the non-panicking form of TypeOf, for user input.
func ParseType(s string) (Type, bool) {
	if !utf8.ValidString(s) {
		return Type{}, false
	}
	var t Type
	n := 0
	for _, r := range s {
		if n == len(t) || r > 0xFF {
			return Type{}, false
		}
		t[n] = byte(r)
		n++
	}
	return t, n == len(t)
}
