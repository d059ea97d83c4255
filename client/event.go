// Copyright 2024 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package client

import (
	"github.com/witnet/xmpp-rs-sub000/element"
	"github.com/witnet/xmpp-rs-sub000/jid"
)

// Event is returned by Next.
// It is one of Online, Disconnected, or StanzaEvent.
type Event interface {
	event()
}

// Online is returned once the connection pipeline has completed.
type Online struct {
	// JID is the full JID bound by the server.
	JID jid.JID

	// Resumed is true if a previous session was resumed.
	// Session resumption is not supported so it is always false.
	Resumed bool
}

// Disconnected is returned when a connection attempt fails or an established
// connection ends.
// Err is nil after an orderly close started by SendEnd.
type Disconnected struct {
	Err error
}

// StanzaEvent carries a top level element received from the server.
type StanzaEvent struct {
	*element.Element
}

func (Online) event()       {}
func (Disconnected) event() {}
func (StanzaEvent) event()  {}
