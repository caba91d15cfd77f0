package store

import (
	"fmt"
	"strings"
)

// Key is a composite key: an ordered tuple of string segments encoded
// with '/' separators. Lexicographic order of the encoding is the store
// order, so numeric segments must be zero-padded by the caller (see
// PadInt).
type Key []string

// K builds a Key from segments.
func K(segments ...string) Key { return Key(segments) }

// Encode returns the raw byte form of the key.
func (k Key) Encode() []byte { return []byte(strings.Join(k, "/")) }

func (k Key) String() string { return strings.Join(k, "/") }

// PadInt formats n as a fixed-width decimal so lexicographic key order
// matches numeric order.
func PadInt(n int64) string { return fmt.Sprintf("%020d", n) }

func decodeKey(raw []byte) Key {
	return Key(strings.Split(string(raw), "/"))
}

// prefixBytes returns the encoded prefix with a trailing separator, so
// scanning K("users") covers users/* but not users_by_username/*.
func prefixBytes(prefix Key) []byte {
	return append(prefix.Encode(), '/')
}

// prefixUpperBound returns the smallest key greater than every key with
// the given prefix, or nil when the prefix is all 0xff.
func prefixUpperBound(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}
