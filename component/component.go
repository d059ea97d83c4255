// Copyright 2017 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package component is used to establish XEP-0114: Jabber Component Protocol
// connections.
package component // import "github.com/witnet/xmpp-rs-sub000/component"

import (
	"context"
	/* #nosec */
	"crypto/sha1"
	"encoding/hex"
	"io"
	"net"

	"github.com/pkg/errors"

	"github.com/witnet/xmpp-rs-sub000"
	"github.com/witnet/xmpp-rs-sub000/codec"
	"github.com/witnet/xmpp-rs-sub000/element"
	"github.com/witnet/xmpp-rs-sub000/internal/ns"
	"github.com/witnet/xmpp-rs-sub000/jid"
	"github.com/witnet/xmpp-rs-sub000/stream"
)

// A list of namespaces used by this package, provided as a convenience.
const (
	NSAccept = ns.Component
)

// Handshake returns the handshake digest for a stream ID and shared secret:
// the lower case hex encoded SHA-1 of the ID followed by the secret.
func Handshake(id string, secret []byte) string {
	/* #nosec */
	h := sha1.New()

	// hash.Write never returns an error per the documentation.
	_, _ = h.Write([]byte(id))
	_, _ = h.Write(secret)
	return hex.EncodeToString(h.Sum(nil))
}

// Connect opens a component stream for the domain of addr on conn and
// authenticates with the shared secret.
//
// If the server rejects the handshake with a stream error, an *xmpp.AuthError
// of kind xmpp.ComponentFail wrapping the stream.Error is returned.
func Connect(ctx context.Context, conn net.Conn, addr jid.JID, secret []byte, opts ...xmpp.StreamOption) (*xmpp.Stream, error) {
	s, err := xmpp.NewStream(ctx, conn, addr.Domainpart(), NSAccept, opts...)
	if err != nil {
		return nil, err
	}

	hs := element.New("handshake", NSAccept)
	hs.AppendText(Handshake(s.ID(), secret))
	if err = s.SendElement(ctx, hs); err != nil {
		return nil, err
	}

	for {
		p, err := s.Next(ctx)
		switch {
		case err == io.EOF:
			return nil, xmpp.ErrDisconnected
		case err != nil:
			return nil, err
		}
		switch p := p.(type) {
		case codec.Text:
		case codec.StreamEnd:
			return nil, xmpp.ErrDisconnected
		case codec.StreamStart:
			return nil, xmpp.ErrInvalidStreamStart
		case codec.Stanza:
			switch {
			case p.Is("handshake", NSAccept):
				return s, nil
			case p.Is("error", stream.NS):
				return nil, &xmpp.AuthError{Kind: xmpp.ComponentFail, Err: stream.FromElement(p.Element)}
			}
			return nil, errors.WithMessagef(xmpp.ErrInvalidToken, "got <%s/> instead of <handshake/>", p.Name())
		}
	}
}
