// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package xmpp

import (
	"errors"
	"strconv"

	"github.com/witnet/xmpp-rs-sub000/codec"
)

// Protocol errors.
// They end the current connection attempt and are never retried locally.
var (
	ErrNoTLS               = errors.New("xmpp: server does not support STARTTLS")
	ErrInvalidBindResponse = errors.New("xmpp: invalid resource bind response")
	ErrNoStreamNamespace   = errors.New("xmpp: stream header has no or a wrong default namespace")
	ErrNoStreamID          = errors.New("xmpp: stream header has no id")
	ErrInvalidToken        = errors.New("xmpp: unexpected element during negotiation")
	ErrInvalidStreamStart  = errors.New("xmpp: unexpected stream header")
	ErrNoStreamFeatures    = errors.New("xmpp: stream ended before features were received")
)

var (
	// ErrDisconnected is returned when the peer closes the stream while an
	// operation still expects data.
	ErrDisconnected = errors.New("xmpp: disconnected")

	// ErrInvalidState is returned when an operation is not allowed in the
	// current state, for example sending while not connected.
	ErrInvalidState = errors.New("xmpp: invalid state")
)

// ParserError is returned when the byte stream is not well formed XML.
type ParserError = codec.ParserError

// IoError wraps an error returned by the underlying transport.
type IoError struct {
	Err error
}

func (e *IoError) Error() string {
	return "xmpp: transport error: " + e.Err.Error()
}

func (e *IoError) Unwrap() error {
	return e.Err
}

// ConnectionError is returned when a connection to the server could not be
// established, for example because of a DNS or dial failure.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string {
	return "xmpp: connection failed: " + e.Err.Error()
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// AuthErrorKind is the category of an AuthError.
type AuthErrorKind uint8

// Kinds of authentication error.
const (
	// NoMechanism means that none of the server's SASL mechanisms are
	// supported.
	NoMechanism AuthErrorKind = iota

	// Sasl means that the local SASL state machine failed, for example because
	// the server signature did not verify.
	Sasl

	// Fail means that the server answered with a <failure/> element.
	Fail

	// ComponentFail means that the server rejected a component handshake.
	ComponentFail
)

func (k AuthErrorKind) String() string {
	switch k {
	case NoMechanism:
		return "no mechanism"
	case Sasl:
		return "sasl"
	case Fail:
		return "failure"
	case ComponentFail:
		return "component handshake failure"
	}
	return "AuthErrorKind(" + strconv.Itoa(int(k)) + ")"
}

// AuthError is returned when authentication fails.
type AuthError struct {
	Kind AuthErrorKind

	// Condition and Text are set for Fail errors, for example
	// "not-authorized".
	Condition string
	Text      string

	// Err is the underlying error of Sasl and ComponentFail errors.
	Err error
}

func (e *AuthError) Error() string {
	s := "xmpp: authentication error: " + e.Kind.String()
	if e.Condition != "" {
		s += ": " + e.Condition
	}
	if e.Text != "" {
		s += ": " + e.Text
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// Is matches an *AuthError target of the same kind.
// If the target has a condition, it must match too.
func (e *AuthError) Is(target error) bool {
	t, ok := target.(*AuthError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Condition == "" || t.Condition == e.Condition)
}
