// Copyright 2014 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package xmpp negotiates client XMPP streams as defined by RFC 6120.
//
// A stream is opened with NewStream and then moved through the negotiation
// steps, each of which returns the stream that replaces the one it was given:
//
//	s, err := xmpp.NewStream(ctx, conn, "example.net", "jabber:client")
//	…
//	s, err = xmpp.StartTLS(ctx, s, nil)
//	…
//	s, err = xmpp.Authenticate(ctx, s, xmpp.Credentials{Username: "juliet", Password: "…"})
//	…
//	j, err := xmpp.BindResource(ctx, s, "balcony")
//
// NegotiateClient and DialClient run the whole pipeline.
// Once negotiated, a Stream exchanges codec Packets with Send and Next.
// The client package builds a reconnecting state machine on top of this
// package.
//
// Be advised: This API is still unstable and is subject to change.
package xmpp
