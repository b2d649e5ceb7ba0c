// Package bstr implements the bounded byte-string: a length-prefixed
// ASCII string, at most 255 bytes, stored in a 4-byte aligned field. It
// uses the same closure-over-a-moving-base idiom the row cursor and
// filter engine use elsewhere in this module, since ordinary Go strings
// can't express an in-place, re-resolved byte layout.
package bstr

import (
	"github.com/logv/kruda/internal/errs"
	"github.com/logv/kruda/internal/klog"
)

// MaxLen is the largest byte-string length the format supports.
const MaxLen = 255

// String is a bounded byte-string field. Both physical forms it can
// take are represented the same way: a resolver that returns the
// field's current storage bytes (length byte included). A
// buffer-backed String's resolver always returns the same slice; a
// pointer-backed one re-resolves against a moving row base on every
// call, so it always reflects the table's current bytes even if the
// cursor has since moved past this row and back.
type String struct {
	resolve func() []byte
	maxSize int
}

// StorageSize returns the total byte footprint — including the length
// byte and any padding — that FromString reserves for a string field
// capable of holding up to maxLen bytes.
func StorageSize(maxLen int) int {
	if maxLen > MaxLen {
		maxLen = MaxLen
	}
	return (maxLen + 4) &^ 3
}

// Wrap builds a buffer-backed String over an existing, already-laid-out
// field: view must be exactly maxSize bytes, with view[0] the stored
// length and view[1:1+length] the ASCII payload.
func Wrap(view []byte, maxSize int) String {
	return String{resolve: func() []byte { return view }, maxSize: maxSize}
}

// WrapPointerBacked builds a pointer-backed String whose storage moves
// with the row cursor: resolve is called fresh on every access and must
// return the field's current maxSize-byte storage.
func WrapPointerBacked(resolve func() []byte, maxSize int) String {
	return String{resolve: resolve, maxSize: maxSize}
}

// FromString allocates a fresh, 4-byte-aligned buffer sized for s
// (truncated to 255 bytes if longer) and returns a buffer-backed String
// over it.
func FromString(s string) String {
	if len(s) > MaxLen {
		s = s[:MaxLen]
	}
	buf := make([]byte, StorageSize(len(s)))
	buf[0] = byte(len(s))
	copy(buf[1:], s)
	return String{resolve: func() []byte { return buf }, maxSize: len(buf)}
}

func (s String) view() []byte {
	return s.resolve()
}

// Length returns the stored byte length, clamped to the field's storage
// capacity so a corrupt length byte can never drive a read out of
// bounds.
func (s String) Length() int {
	v := s.view()
	l := int(v[0])
	if l > s.maxSize-1 {
		l = s.maxSize - 1
	}
	return l
}

// CharAt returns the byte at position i, or an error if i is outside
// [0, Length()).
func (s String) CharAt(i int) (byte, error) {
	l := s.Length()
	if i < 0 || i >= l {
		return 0, errs.OutOfBounds("char_at(%d) outside bounded string of length %d", i, l)
	}
	return s.view()[1+i], nil
}

// ToUTF8String materializes the stored bytes as a Go string. ASCII is a
// strict subset of UTF-8, so this is a plain copy.
func (s String) ToUTF8String() string {
	l := s.Length()
	return string(s.view()[1 : 1+l])
}

func (s String) String() string { return s.ToUTF8String() }

// Equals is a byte-exact comparison; strings of different length are
// unequal without reading a single character.
func (s String) Equals(other String) bool {
	la, lb := s.Length(), other.Length()
	if la != lb {
		return false
	}
	av, bv := s.view(), other.view()
	for i := 0; i < la; i++ {
		if av[1+i] != bv[1+i] {
			return false
		}
	}
	return true
}

func foldASCII(b byte) byte {
	if b >= 'a' && b <= 'z' {
		return b - 32
	}
	return b
}

// EqualsCaseInsensitive compares after folding only A-Z/a-z; strings of
// different length are unequal without reading any character.
func (s String) EqualsCaseInsensitive(other String) bool {
	la, lb := s.Length(), other.Length()
	if la != lb {
		return false
	}
	av, bv := s.view(), other.view()
	for i := 0; i < la; i++ {
		if foldASCII(av[1+i]) != foldASCII(bv[1+i]) {
			return false
		}
	}
	return true
}

// Contains does a naive O(n·m) substring scan, acceptable since both
// operands are at most 255 bytes.
func (s String) Contains(needle String) bool {
	return indexOf(s.view(), s.Length(), needle.view(), needle.Length(), false) >= 0
}

// ContainsCaseInsensitive is Contains with A-Z/a-z folding.
func (s String) ContainsCaseInsensitive(needle String) bool {
	return indexOf(s.view(), s.Length(), needle.view(), needle.Length(), true) >= 0
}

// StartsWith reports whether s begins with prefix, case-sensitively.
func (s String) StartsWith(prefix String) bool {
	lp := prefix.Length()
	if lp > s.Length() {
		return false
	}
	sv, pv := s.view(), prefix.view()
	for i := 0; i < lp; i++ {
		if sv[1+i] != pv[1+i] {
			return false
		}
	}
	return true
}

// EndsWith reports whether s ends with suffix, case-sensitively.
func (s String) EndsWith(suffix String) bool {
	ls, lf := s.Length(), suffix.Length()
	if lf > ls {
		return false
	}
	sv, fv := s.view(), suffix.view()
	base := ls - lf
	for i := 0; i < lf; i++ {
		if sv[1+base+i] != fv[1+i] {
			return false
		}
	}
	return true
}

func indexOf(hay []byte, hayLen int, needle []byte, needleLen int, fold bool) int {
	if needleLen == 0 {
		return 0
	}
	if needleLen > hayLen {
		return -1
	}
	for start := 0; start+needleLen <= hayLen; start++ {
		matched := true
		for j := 0; j < needleLen; j++ {
			a, b := hay[1+start+j], needle[1+j]
			if fold {
				a, b = foldASCII(a), foldASCII(b)
			}
			if a != b {
				matched = false
				break
			}
		}
		if matched {
			return start
		}
	}
	return -1
}

// WriteInto writes s (ASCII-truncated to fieldSize-1 bytes) into view,
// which must be exactly fieldSize bytes of field storage. It reports
// truncated=true if s did not fit. In debug builds (klog.Enabled) a
// truncation is a hard error; in release it is silently applied.
func WriteInto(view []byte, fieldSize int, s string) (truncated bool, err error) {
	max := fieldSize - 1
	if max < 0 {
		max = 0
	}
	if len(s) > max {
		truncated = true
		original := len(s)
		s = s[:max]
		if klog.Enabled {
			return true, errs.OutOfBounds("bstr value of %d bytes exceeds field capacity %d", original, max)
		}
	}
	view[0] = byte(len(s))
	copy(view[1:], s)
	for i := 1 + len(s); i < fieldSize; i++ {
		view[i] = 0
	}
	return truncated, nil
}
