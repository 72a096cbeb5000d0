// Package sigscan matches masked byte signatures and family rulesets against
// raw binary content.
package sigscan

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

var ErrBadPattern = errors.New("sigscan: invalid pattern")

// Pattern is a byte signature where some positions match any byte.
type Pattern struct {
	bytes []byte
	fixed []bool
	// anchor is the index of the first fixed byte, or -1 if none.
	anchor int
	src    string
}

// ParseHex parses a space separated hex signature such as "7E ?? ?? ?? 04".
// "??" (or "?") marks a wildcard byte.
func ParseHex(s string) (Pattern, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return Pattern{}, fmt.Errorf("%w: empty", ErrBadPattern)
	}
	p := Pattern{anchor: -1, src: s}
	for i, f := range fields {
		if f == "??" || f == "?" {
			p.bytes = append(p.bytes, 0)
			p.fixed = append(p.fixed, false)
			continue
		}
		b, err := hex.DecodeString(f)
		if err != nil || len(b) != 1 {
			return Pattern{}, fmt.Errorf("%w: token %d %q", ErrBadPattern, i, f)
		}
		if p.anchor < 0 {
			p.anchor = len(p.bytes)
		}
		p.bytes = append(p.bytes, b[0])
		p.fixed = append(p.fixed, true)
	}
	return p, nil
}

// MustParseHex is like ParseHex but panics on error.
func MustParseHex(s string) Pattern {
	p, err := ParseHex(s)
	if err != nil {
		panic(err)
	}
	return p
}

// Literal builds a pattern with every byte fixed.
func Literal(b []byte) Pattern {
	p := Pattern{bytes: append([]byte(nil), b...), fixed: make([]bool, len(b)), anchor: -1}
	for i := range p.fixed {
		p.fixed[i] = true
	}
	if len(b) > 0 {
		p.anchor = 0
	}
	p.src = hex.EncodeToString(b)
	return p
}

// Len returns the signature length in bytes.
func (p Pattern) Len() int { return len(p.bytes) }

func (p Pattern) String() string { return p.src }

// matchAt reports whether the pattern matches data at position i.
func (p Pattern) matchAt(data []byte, i int) bool {
	if i < 0 || i+len(p.bytes) > len(data) {
		return false
	}
	for j, b := range p.bytes {
		if p.fixed[j] && data[i+j] != b {
			return false
		}
	}
	return true
}

// IndexFrom returns the first match at or after start, or -1.
func (p Pattern) IndexFrom(data []byte, start int) int {
	n := len(p.bytes)
	if n == 0 || start < 0 {
		return -1
	}
	if p.anchor < 0 {
		if start+n <= len(data) {
			return start
		}
		return -1
	}
	ab := p.bytes[p.anchor]
	for pos := start + p.anchor; pos < len(data); {
		k := bytes.IndexByte(data[pos:], ab)
		if k < 0 {
			return -1
		}
		cand := pos + k - p.anchor
		if cand+n > len(data) {
			return -1
		}
		if p.matchAt(data, cand) {
			return cand
		}
		pos += k + 1
	}
	return -1
}

// Index returns the first match in data, or -1.
func (p Pattern) Index(data []byte) int { return p.IndexFrom(data, 0) }

// FindAll returns the start offsets of all non-overlapping matches.
func (p Pattern) FindAll(data []byte) []int {
	var out []int
	for pos := 0; ; {
		i := p.IndexFrom(data, pos)
		if i < 0 {
			return out
		}
		out = append(out, i)
		pos = i + len(p.bytes)
	}
}

// Captures returns the wildcard bytes of the match at i, in order.
func (p Pattern) Captures(data []byte, i int) []byte {
	if !p.matchAt(data, i) {
		return nil
	}
	var out []byte
	for j := range p.bytes {
		if !p.fixed[j] {
			out = append(out, data[i+j])
		}
	}
	return out
}
