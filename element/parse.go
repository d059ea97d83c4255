// Copyright 2024 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package element

import (
	"encoding/xml"
	"errors"
	"io"
	"strings"

	"github.com/witnet/xmpp-rs-sub000/internal/ns"
	"mellium.im/xmlstream"
)

// Errors returned by Parse.
var (
	ErrNoRoot        = errors.New("element: no root element")
	ErrMultipleRoots = errors.New("element: more than one root element")
	ErrUnclosed      = errors.New("element: unexpected EOF inside element")
)

// Parse parses a single XML document into an element tree.
// Text outside of the root element, comments, processing instructions, and
// directives are discarded.
func Parse(s string) (*Element, error) {
	d := xml.NewDecoder(strings.NewReader(s))
	var (
		scope Scope
		stack []*Element
		root  *Element
	)
	for {
		tok, err := d.RawToken()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if root != nil && len(stack) == 0 {
				return nil, ErrMultipleRoots
			}
			el, err := scope.Push(t)
			if err != nil {
				return nil, err
			}
			if len(stack) == 0 {
				root = el
			} else {
				stack[len(stack)-1].AppendChild(el)
			}
			stack = append(stack, el)
		case xml.EndElement:
			if err := scope.Pop(t.Name); err != nil {
				return nil, err
			}
			stack = stack[:len(stack)-1]
		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].AppendText(string(t))
			}
		}
	}
	switch {
	case root == nil:
		return nil, ErrNoRoot
	case len(stack) > 0:
		return nil, ErrUnclosed
	}
	return root, nil
}

// MustParse is like Parse but panics if s cannot be parsed.
// It is intended for tests and static templates.
func MustParse(s string) *Element {
	e, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return e
}

// FromTokenReader builds an element from the first element in r.
// Tokens before the first start element are skipped and nothing after its
// matching end element is read.
// The tokens must carry resolved namespaces, as returned by xml.Decoder.Token
// or TokenReader.
func FromTokenReader(r xml.TokenReader) (*Element, error) {
	for {
		tok, err := r.Token()
		if start, ok := tok.(xml.StartElement); ok {
			return build(start, xmlstream.ReaderFunc(func() (xml.Token, error) {
				if err != nil {
					return nil, ErrUnclosed
				}
				var t xml.Token
				t, err = r.Token()
				switch {
				case err == io.EOF && t != nil:
					return t, nil
				case err == io.EOF:
					return nil, ErrUnclosed
				}
				return t, err
			}))
		}
		switch {
		case err == io.EOF:
			return nil, ErrNoRoot
		case err != nil:
			return nil, err
		}
	}
}

func build(start xml.StartElement, r xml.TokenReader) (*Element, error) {
	el := New(start.Name.Local, start.Name.Space)
	for _, a := range start.Attr {
		switch {
		case a.Name.Space == "" && a.Name.Local == "xmlns", a.Name.Space == "xmlns":
		case a.Name.Space == ns.XML:
			el.SetAttr("xml:"+a.Name.Local, a.Value)
		case a.Name.Space == "" || strings.ContainsAny(a.Name.Space, ":/"):
			el.SetAttr(a.Name.Local, a.Value)
		default:
			el.SetAttr(a.Name.Space+":"+a.Name.Local, a.Value)
		}
	}
	inner := xmlstream.Inner(r)
	for {
		tok, err := inner.Token()
		switch {
		case err == io.EOF:
			return el, nil
		case err != nil:
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			child, err := build(t.Copy(), inner)
			if err != nil {
				return nil, err
			}
			el.AppendChild(child)
		case xml.CharData:
			el.AppendText(string(t))
		}
	}
}

// TokenReader returns a stream of tokens that encode the element.
// Names in the returned tokens carry the resolved namespace so they can be
// passed to an xml.Encoder or any other xmlstream.TokenWriter.
func (e *Element) TokenReader() xml.TokenReader {
	inner := make([]xml.TokenReader, 0, len(e.children))
	for _, n := range e.children {
		switch n := n.(type) {
		case *Element:
			inner = append(inner, n.TokenReader())
		case Text:
			inner = append(inner, xmlstream.Token(xml.CharData(n)))
		}
	}
	start := xml.StartElement{
		Name: xml.Name{Space: e.namespace, Local: e.name},
	}
	for _, a := range e.attrs {
		start.Attr = append(start.Attr, xml.Attr{Name: attrName(a.Name), Value: a.Value})
	}
	return xmlstream.Wrap(xmlstream.MultiReader(inner...), start)
}

// WriteXML satisfies the xmlstream.WriterTo interface.
// It is like MarshalXML except it writes tokens to w.
func (e *Element) WriteXML(w xmlstream.TokenWriter) (int, error) {
	return xmlstream.Copy(w, e.TokenReader())
}

func attrName(qualified string) xml.Name {
	prefix, local, ok := strings.Cut(qualified, ":")
	switch {
	case !ok:
		return xml.Name{Local: qualified}
	case prefix == "xml":
		return xml.Name{Space: ns.XML, Local: local}
	}
	return xml.Name{Space: prefix, Local: local}
}
