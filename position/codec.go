// Package position implements a portable reading-position locator, a
// lightweight analog of the EPUB Canonical Fragment Identifier. A position
// always carries the spine index; the element idref, DOM child path and
// character offset are optional and independently omittable. The same string
// format serves long-term persistence and same-session restore after
// re-pagination.
package position

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// ErrMalformed is returned by Parse for strings Generate could not have
// produced. Callers fall back to start of book or chapter, never crash.
var ErrMalformed = errors.New("malformed position string")

// Position locates a point inside a book.
type Position struct {
	SpineIndex int
	IDRef      string // identifier of the containing block element, "" if unknown
	DOMPath    []int  // child indexes from the section root, empty if unknown
	CharOffset int    // rune offset relative to the identified element start
	HasOffset  bool   // distinguishes explicit offset 0 from no offset at all
}

// String implements Stringer for logging; it is the same encoding Generate
// produces.
func (p Position) String() string {
	return Generate(p)
}

// Generate encodes a position to its portable string form:
//
//	pos(/<spine>[@<idref>][/<n>/<n>...][:<offset>])
//
// The idref is query-escaped so it can never contain the '/', ':' and ')'
// delimiters. Encoding is deterministic: equal positions produce equal
// strings.
func Generate(p Position) string {
	var b strings.Builder
	b.WriteString("pos(/")
	b.WriteString(strconv.Itoa(p.SpineIndex))
	if p.IDRef != "" {
		b.WriteByte('@')
		b.WriteString(url.QueryEscape(p.IDRef))
	}
	for _, step := range p.DOMPath {
		b.WriteByte('/')
		b.WriteString(strconv.Itoa(step))
	}
	if p.HasOffset {
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(p.CharOffset))
	}
	b.WriteByte(')')
	return b.String()
}

// Parse decodes a position string produced by Generate. It returns nil and
// ErrMalformed for anything else.
func Parse(s string) (*Position, error) {
	body, ok := strings.CutPrefix(s, "pos(/")
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrMalformed, s)
	}
	body, ok = strings.CutSuffix(body, ")")
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrMalformed, s)
	}

	var p Position

	// Optional character offset comes last.
	if body, rest, found := cutLast(body, ':'); found {
		off, err := strconv.Atoi(rest)
		if err != nil || off < 0 {
			return nil, fmt.Errorf("%w: bad offset in %q", ErrMalformed, s)
		}
		p.CharOffset, p.HasOffset = off, true
		return parseSpinePath(body, &p, s)
	}
	return parseSpinePath(body, &p, s)
}

func parseSpinePath(body string, p *Position, orig string) (*Position, error) {
	head := body
	var tail string
	if i := strings.IndexByte(body, '/'); i >= 0 {
		head, tail = body[:i], body[i+1:]
	}

	// Spine index with optional @idref.
	if head, ref, found := strings.Cut(head, "@"); found {
		unescaped, err := url.QueryUnescape(ref)
		if err != nil || unescaped == "" {
			return nil, fmt.Errorf("%w: bad idref in %q", ErrMalformed, orig)
		}
		p.IDRef = unescaped
		body = head
	} else {
		body = head
	}

	spine, err := strconv.Atoi(body)
	if err != nil || spine < 0 {
		return nil, fmt.Errorf("%w: bad spine index in %q", ErrMalformed, orig)
	}
	p.SpineIndex = spine

	if tail != "" {
		for _, part := range strings.Split(tail, "/") {
			step, err := strconv.Atoi(part)
			if err != nil || step < 0 {
				return nil, fmt.Errorf("%w: bad path step in %q", ErrMalformed, orig)
			}
			p.DOMPath = append(p.DOMPath, step)
		}
	}
	return p, nil
}

// cutLast splits s around the last occurrence of sep.
func cutLast(s string, sep byte) (before, after string, found bool) {
	if i := strings.LastIndexByte(s, sep); i >= 0 {
		return s[:i], s[i+1:], true
	}
	return s, "", false
}
