// Copyright 2024 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package element

import (
	"encoding/xml"
	"errors"
	"fmt"

	"github.com/witnet/xmpp-rs-sub000/internal/ns"
)

// Errors returned while resolving names.
var (
	ErrUnexpectedEnd = errors.New("element: unexpected end element")
)

type frame struct {
	name xml.Name
	ns   map[string]string
}

// Scope tracks the namespace declarations of a stack of open elements.
// It is meant to be fed the raw (unresolved) tokens returned by
// xml.Decoder.RawToken, where Name.Space holds the prefix.
//
// The zero value is an empty scope ready for use.
type Scope struct {
	frames []frame
}

// Depth returns the number of open elements.
func (s *Scope) Depth() int {
	return len(s.frames)
}

// Reset discards all open elements.
func (s *Scope) Reset() {
	s.frames = s.frames[:0]
}

// Lookup resolves a prefix by walking the open elements from the innermost
// outward.
// The empty prefix is the default namespace and always resolves (to the empty
// string if nothing declared it); the "xml" prefix is predeclared.
func (s *Scope) Lookup(prefix string) (string, bool) {
	if prefix == "xml" {
		return ns.XML, true
	}
	for i := len(s.frames) - 1; i >= 0; i-- {
		if v, ok := s.frames[i].ns[prefix]; ok {
			return v, true
		}
	}
	return "", prefix == ""
}

// Push opens a new element from a raw start token.
// Namespace declarations are consumed into the new frame and are not copied
// onto the returned element; all other attributes are kept, prefixed ones
// under their qualified "prefix:local" name.
func (s *Scope) Push(start xml.StartElement) (*Element, error) {
	var decls map[string]string
	for _, a := range start.Attr {
		switch {
		case a.Name.Space == "" && a.Name.Local == "xmlns":
			if decls == nil {
				decls = make(map[string]string)
			}
			decls[""] = a.Value
		case a.Name.Space == "xmlns":
			if decls == nil {
				decls = make(map[string]string)
			}
			decls[a.Name.Local] = a.Value
		}
	}
	s.frames = append(s.frames, frame{name: start.Name, ns: decls})

	space, ok := s.Lookup(start.Name.Space)
	if !ok {
		s.frames = s.frames[:len(s.frames)-1]
		return nil, fmt.Errorf("element: unbound namespace prefix %q on <%s:%s>", start.Name.Space, start.Name.Space, start.Name.Local)
	}

	e := &Element{
		name:      start.Name.Local,
		namespace: space,
	}
	for _, a := range start.Attr {
		if isDecl(a.Name) {
			continue
		}
		e.attrs = append(e.attrs, Attr{Name: QualifiedName(a.Name), Value: a.Value})
	}
	return e, nil
}

// Pop closes the innermost element.
// The raw end name must match the name it was opened with.
func (s *Scope) Pop(end xml.Name) error {
	if len(s.frames) == 0 {
		return ErrUnexpectedEnd
	}
	top := s.frames[len(s.frames)-1]
	if top.name != end {
		return fmt.Errorf("element: element <%s> closed by </%s>", QualifiedName(top.name), QualifiedName(end))
	}
	s.frames = s.frames[:len(s.frames)-1]
	return nil
}

// QualifiedName joins a raw name back into its "prefix:local" form.
func QualifiedName(n xml.Name) string {
	if n.Space == "" {
		return n.Local
	}
	return n.Space + ":" + n.Local
}

func isDecl(n xml.Name) bool {
	return n.Space == "xmlns" || (n.Space == "" && n.Local == "xmlns")
}
