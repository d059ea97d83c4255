// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package saslerr provides error conditions for the XMPP profile of SASL as
// defined by RFC 6120 §6.5.
package saslerr

import (
	"golang.org/x/text/language"

	"github.com/witnet/xmpp-rs-sub000/element"
	"github.com/witnet/xmpp-rs-sub000/internal/ns"
)

// Condition represents a SASL error condition that can be encapsulated by a
// <failure/> element.
type Condition string

// Standard SASL error conditions.
const (
	Aborted              Condition = "aborted"
	AccountDisabled      Condition = "account-disabled"
	CredentialsExpired   Condition = "credentials-expired"
	EncryptionRequired   Condition = "encryption-required"
	IncorrectEncoding    Condition = "incorrect-encoding"
	InvalidAuthzID       Condition = "invalid-authzid"
	InvalidMechanism     Condition = "invalid-mechanism"
	MalformedRequest     Condition = "malformed-request"
	MechanismTooWeak     Condition = "mechanism-too-weak"
	NotAuthorized        Condition = "not-authorized"
	TemporaryAuthFailure Condition = "temporary-auth-failure"
)

// Failure represents a <failure/> element sent by the server.
type Failure struct {
	Condition Condition
	Lang      language.Tag
	Text      string
}

// Error satisfies the error interface for a Failure. It returns the text string
// if set, or the condition otherwise.
func (f Failure) Error() string {
	if f.Text != "" {
		return f.Text
	}
	return string(f.Condition)
}

// FromElement decodes a <failure/> element.
// The condition is the first child in the SASL namespace other than <text/>.
// Unknown conditions are kept as is.
//
// If multiple text elements are present the one whose xml:lang most closely
// matches pref is selected. Text elements without a parsable language are
// treated as "und".
func FromElement(el *element.Element, pref language.Tag) Failure {
	var f Failure
	var tags []language.Tag
	data := make(map[language.Tag]string)
	for _, c := range el.Children() {
		if c.Namespace() != ns.SASL {
			continue
		}
		if c.Name() != "text" {
			if f.Condition == "" {
				f.Condition = Condition(c.Name())
			}
			continue
		}
		tag, err := language.Parse(c.Attr("xml:lang"))
		if err != nil {
			tag = language.Und
		}
		if _, ok := data[tag]; !ok {
			tags = append(tags, tag)
		}
		data[tag] = c.Text()
	}
	if len(tags) > 0 {
		_, idx, _ := language.NewMatcher(tags).Match(pref)
		f.Lang = tags[idx]
		f.Text = data[f.Lang]
	}
	return f
}

// Element returns the failure as a <failure/> element.
func (f Failure) Element() *element.Element {
	el := element.New("failure", ns.SASL)
	el.AppendChild(element.New(string(f.Condition), ns.SASL))
	if f.Text != "" {
		t := element.New("text", ns.SASL)
		if f.Lang != language.Und {
			t.SetAttr("xml:lang", f.Lang.String())
		}
		t.AppendText(f.Text)
		el.AppendChild(t)
	}
	return el
}
