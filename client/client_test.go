// Copyright 2024 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package client_test

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/witnet/xmpp-rs-sub000"
	"github.com/witnet/xmpp-rs-sub000/client"
	"github.com/witnet/xmpp-rs-sub000/codec"
	"github.com/witnet/xmpp-rs-sub000/element"
	"github.com/witnet/xmpp-rs-sub000/internal/xmpptest"
	"github.com/witnet/xmpp-rs-sub000/jid"
)

var juliet = jid.MustParse("juliet@example.net/balcony")

// dialer returns a dial option that hands out conns in order.
func dialer(conns ...net.Conn) client.Option {
	return client.Dial(func(context.Context, jid.JID) (net.Conn, error) {
		if len(conns) == 0 {
			return nil, errors.New("no more connections")
		}
		conn := conns[0]
		conns = conns[1:]
		return conn, nil
	})
}

func newClient(t *testing.T, opts ...client.Option) *client.Client {
	t.Helper()
	opts = append([]client.Option{client.TLS(xmpptest.ClientTLS())}, opts...)
	c := client.New(juliet, "secret", opts...)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestSendWhileDisconnected(t *testing.T) {
	c := newClient(t)
	ctx := context.Background()
	assert.Equal(t, client.StateDisconnected, c.State())
	assert.ErrorIs(t, c.SendStanza(ctx, element.New("presence", "jabber:client")), xmpp.ErrInvalidState)
	assert.ErrorIs(t, c.SendEnd(ctx), xmpp.ErrInvalidState)
	assert.True(t, c.BoundJID().IsZero())
}

func TestSendWhileConnecting(t *testing.T) {
	release := make(chan struct{})
	c := newClient(t, client.Dial(func(ctx context.Context, _ jid.JID) (net.Conn, error) {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil, errors.New("unreachable")
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, client.StateConnecting, c.State())
	assert.ErrorIs(t, c.SendStanza(context.Background(), element.New("presence", "jabber:client")), xmpp.ErrInvalidState)

	close(release)
	ev, err := c.Next(context.Background())
	require.NoError(t, err)
	var connErr *xmpp.ConnectionError
	assert.ErrorAs(t, ev.(client.Disconnected).Err, &connErr)

	_, err = c.Next(context.Background())
	assert.Equal(t, io.EOF, err)
}

func TestSession(t *testing.T) {
	conn := xmpptest.Serve(t, func(s *xmpptest.Server) error {
		if err := s.ClientLogin("juliet", "secret"); err != nil {
			return err
		}
		if err := s.Send(` <message from='romeo@example.net' type='chat'><body>Art thou not Romeo?</body></message>`); err != nil {
			return err
		}
		msg, err := s.Expect("message", "jabber:client")
		if err != nil {
			return err
		}
		if msg.Attr("to") != "romeo@example.net" {
			return errors.New("wrong recipient " + msg.Attr("to"))
		}
		if err := s.Send(`</stream:stream>`); err != nil {
			return err
		}
		return s.ExpectEnd()
	})
	c := newClient(t, dialer(conn))
	ctx := context.Background()

	ev, err := c.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, client.Online{JID: juliet}, ev)
	assert.Equal(t, client.StateConnected, c.State())
	assert.Equal(t, juliet, c.BoundJID())

	ev, err = c.Next(ctx)
	require.NoError(t, err)
	stanza, ok := ev.(client.StanzaEvent)
	require.True(t, ok, "expected stanza, got %#v", ev)
	assert.Equal(t, "message", stanza.Name())
	assert.Equal(t, "Art thou not Romeo?", stanza.Child("body", "jabber:client").Text())

	// A second stream header is never written mid-stream.
	restart := codec.StreamStart{Attrs: []element.Attr{{Name: "to", Value: "example.net"}}}
	assert.ErrorIs(t, c.Send(ctx, restart), xmpp.ErrInvalidState)
	assert.Equal(t, client.StateConnected, c.State())

	reply := element.New("message", "jabber:client", element.Attr{Name: "to", Value: "romeo@example.net"})
	reply.AppendChild(element.New("body", "jabber:client")).AppendText("Neither, fair saint")
	require.NoError(t, c.SendStanza(ctx, reply))

	ev, err = c.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, client.Disconnected{Err: xmpp.ErrDisconnected}, ev)
	assert.Equal(t, client.StateDisconnected, c.State())
	assert.True(t, c.BoundJID().IsZero())

	_, err = c.Next(ctx)
	assert.Equal(t, io.EOF, err)
}

func TestOrderlyClose(t *testing.T) {
	conn := xmpptest.Serve(t, func(s *xmpptest.Server) error {
		if err := s.ClientLogin("juliet", "secret"); err != nil {
			return err
		}
		if err := s.ExpectEnd(); err != nil {
			return err
		}
		return s.Send(`<message from='romeo@example.net'><body>Wait</body></message></stream:stream>`)
	})
	c := newClient(t, dialer(conn))
	ctx := context.Background()

	ev, err := c.Next(ctx)
	require.NoError(t, err)
	require.IsType(t, client.Online{}, ev)

	require.NoError(t, c.SendEnd(ctx))
	assert.ErrorIs(t, c.SendStanza(ctx, element.New("presence", "jabber:client")), xmpp.ErrInvalidState)

	ev, err = c.Next(ctx)
	require.NoError(t, err)
	assert.IsType(t, client.StanzaEvent{}, ev)

	ev, err = c.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, client.Disconnected{}, ev)
}

func TestAuthFailure(t *testing.T) {
	conn := xmpptest.Serve(t, func(s *xmpptest.Server) error {
		if err := s.Accept("tls", xmpptest.StartTLSFeature); err != nil {
			return err
		}
		if err := s.StartTLS(); err != nil {
			return err
		}
		if err := s.Accept("auth", xmpptest.Mechanisms("PLAIN")); err != nil {
			return err
		}
		if _, err := s.Expect("auth", "urn:ietf:params:xml:ns:xmpp-sasl"); err != nil {
			return err
		}
		return s.Send(`<failure xmlns='urn:ietf:params:xml:ns:xmpp-sasl'><not-authorized/></failure>`)
	})
	c := newClient(t, dialer(conn))

	ev, err := c.Next(context.Background())
	require.NoError(t, err)
	d, ok := ev.(client.Disconnected)
	require.True(t, ok, "expected disconnect, got %#v", ev)
	assert.ErrorIs(t, d.Err, &xmpp.AuthError{Kind: xmpp.Fail, Condition: "not-authorized"})
}

func TestReconnect(t *testing.T) {
	first := xmpptest.Serve(t, func(s *xmpptest.Server) error {
		if err := s.ClientLogin("juliet", "secret"); err != nil {
			return err
		}
		// Drop the connection without closing the stream.
		return s.Conn().Close()
	})
	second := xmpptest.Serve(t, func(s *xmpptest.Server) error {
		return s.ClientLogin("juliet", "secret")
	})
	c := newClient(t, dialer(first, second), client.Reconnect)
	ctx := context.Background()

	ev, err := c.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, client.Online{JID: juliet}, ev)

	ev, err = c.Next(ctx)
	require.NoError(t, err)
	require.IsType(t, client.Disconnected{}, ev)
	assert.Error(t, ev.(client.Disconnected).Err)

	ev, err = c.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, client.Online{JID: juliet}, ev)

	c.SetReconnect(false)
	require.NoError(t, c.Close())
	_, err = c.Next(ctx)
	assert.Equal(t, io.EOF, err)
}
