// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package xmpp

import (
	"strings"

	"github.com/witnet/xmpp-rs-sub000/element"
	"github.com/witnet/xmpp-rs-sub000/internal/ns"
)

// Features is the <stream:features/> element received after a stream header.
// It is queried on demand and becomes stale once the stream is restarted.
type Features struct {
	el *element.Element
}

// Element returns the features element, or nil if no features were received.
func (f Features) Element() *element.Element {
	return f.el
}

func (f Features) child(name, namespace string) *element.Element {
	if f.el == nil {
		return nil
	}
	return f.el.Child(name, namespace)
}

// CanStartTLS reports whether the server offered STARTTLS.
func (f Features) CanStartTLS() bool {
	return f.child("starttls", ns.StartTLS) != nil
}

// TLSRequired reports whether the server marked STARTTLS as required.
func (f Features) TLSRequired() bool {
	st := f.child("starttls", ns.StartTLS)
	return st != nil && st.Child("required", ns.StartTLS) != nil
}

// SASLMechanisms returns the SASL mechanisms offered by the server in the order
// the server listed them.
// Duplicates are kept.
func (f Features) SASLMechanisms() []string {
	mechs := f.child("mechanisms", ns.SASL)
	if mechs == nil {
		return nil
	}
	var names []string
	for _, m := range mechs.Children() {
		if m.Is("mechanism", ns.SASL) {
			names = append(names, strings.TrimSpace(m.Text()))
		}
	}
	return names
}

// CanBind reports whether the server offered resource binding.
func (f Features) CanBind() bool {
	return f.child("bind", ns.Bind) != nil
}
