// Copyright 2024 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package xmpp_test

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"mellium.im/xmlstream"

	"github.com/witnet/xmpp-rs-sub000"
	"github.com/witnet/xmpp-rs-sub000/codec"
	"github.com/witnet/xmpp-rs-sub000/element"
	"github.com/witnet/xmpp-rs-sub000/internal/xmpptest"
	"github.com/witnet/xmpp-rs-sub000/stream"
)

const header = `<?xml version='1.0'?><stream:stream xmlns:stream='http://etherx.jabber.org/streams' `

func TestNewStreamErrors(t *testing.T) {
	for i, tc := range [...]struct {
		reply string
		err   error
	}{
		0:  {header + `xmlns='jabber:client' version='1.0'><stream:features/>`, xmpp.ErrNoStreamID},
		1:  {header + `id='1' version='1.0'><stream:features/>`, xmpp.ErrNoStreamNamespace},
		2:  {header + `xmlns='jabber:server' id='1' version='1.0'><stream:features/>`, xmpp.ErrNoStreamNamespace},
		3:  {header + `xmlns='jabber:client' id='1' version='1.0'></stream:stream>`, xmpp.ErrNoStreamFeatures},
		4:  {header + `xmlns='jabber:client' id='1' version='1.0'>`, xmpp.ErrNoStreamFeatures},
		5:  {header + `xmlns='jabber:client' id='1' version='1.0'><message/>`, xmpp.ErrInvalidToken},
		6:  {header + `xmlns='jabber:client' id='1' version='1.0'><stream:error><host-unknown xmlns='urn:ietf:params:xml:ns:xmpp-streams'/></stream:error>`, stream.HostUnknown},
		7:  {`<?xml version='1.0'?>`, xmpp.ErrDisconnected},
		8:  {``, xmpp.ErrDisconnected},
		9:  {header + `xmlns='jabber:client' id='1' version='1'>`, xmpp.ErrInvalidStreamStart},
		10: {header + `xmlns='jabber:client' id='1' version='1.0'><stream:features><</stream:features>`, &xmpp.ParserError{Kind: codec.Parse}},
	} {
		t.Run(fmt.Sprintf("%d", i), func(t *testing.T) {
			conn := xmpptest.Serve(t, func(s *xmpptest.Server) error {
				if _, err := s.ReadHeader(); err != nil {
					return err
				}
				if err := s.Send(tc.reply); err != nil {
					return err
				}
				return s.Conn().Close()
			})
			_, err := xmpp.NewStream(context.Background(), conn, xmpptest.Domain, "jabber:client")
			assert.ErrorIs(t, err, tc.err)
		})
	}
}

func TestNewStreamHeader(t *testing.T) {
	started := make(chan codec.StreamStart, 1)
	conn := xmpptest.Serve(t, func(s *xmpptest.Server) error {
		start, err := s.ReadHeader()
		if err != nil {
			return err
		}
		started <- start
		return s.OpenStream("abc", xmpptest.BindFeature)
	})
	s, err := xmpp.NewStream(context.Background(), conn, xmpptest.Domain, "jabber:client", xmpp.Lang("en"))
	require.NoError(t, err)
	assert.Equal(t, "abc", s.ID())
	assert.Equal(t, "jabber:client", s.Namespace())
	assert.True(t, s.Features().CanBind())
	assert.Equal(t, xmpptest.Domain, s.Info().From.String())

	start := <-started
	assert.Equal(t, xmpptest.Domain, start.Attr("to"))
	assert.Equal(t, "1.0", start.Attr("version"))
	assert.Equal(t, "jabber:client", start.Attr("xmlns"))
	assert.Equal(t, stream.NS, start.Attr("xmlns:stream"))
	assert.Equal(t, "en", start.Attr("xml:lang"))
}

func TestStreamExchange(t *testing.T) {
	conn := xmpptest.Serve(t, func(s *xmpptest.Server) error {
		if err := s.Accept("x"); err != nil {
			return err
		}
		if _, err := s.Expect("presence", "jabber:client"); err != nil {
			return err
		}
		// The message is split in the middle of a multi-byte codepoint.
		if err := s.Send(" <message xmlns='jabber:client'><body>h\xc3"); err != nil {
			return err
		}
		if err := s.Send("\xa9</body></message>"); err != nil {
			return err
		}
		if err := s.ExpectEnd(); err != nil {
			return err
		}
		return s.Send(`</stream:stream>`)
	})
	ctx := context.Background()
	s, err := xmpp.NewStream(ctx, conn, xmpptest.Domain, "jabber:client")
	require.NoError(t, err)

	require.NoError(t, s.SendElement(ctx, element.New("presence", "jabber:client")))
	var got *element.Element
	for got == nil {
		p, err := s.Next(ctx)
		require.NoError(t, err)
		if st, ok := p.(codec.Stanza); ok {
			got = st.Element
		}
	}
	assert.Equal(t, "message", got.Name())
	assert.Equal(t, "hé", got.Child("body", "jabber:client").Text())

	assert.NoError(t, s.End(ctx))
}

func TestSendToken(t *testing.T) {
	conn := xmpptest.Serve(t, func(s *xmpptest.Server) error {
		if err := s.Accept("x"); err != nil {
			return err
		}
		msg, err := s.Expect("message", "jabber:client")
		if err != nil {
			return err
		}
		if to, body := msg.Attr("to"), msg.Child("body", "jabber:client").Text(); to != "romeo@example.net" || body != "hi" {
			return fmt.Errorf("unexpected message %s", msg)
		}
		if err := s.ExpectEnd(); err != nil {
			return err
		}
		return s.Send(`</stream:stream>`)
	})
	ctx := context.Background()
	s, err := xmpp.NewStream(ctx, conn, xmpptest.Domain, "jabber:client")
	require.NoError(t, err)

	msg := func() xml.TokenReader {
		return xmlstream.Wrap(
			xmlstream.Wrap(xmlstream.Token(xml.CharData("hi")), xml.StartElement{Name: xml.Name{Space: "jabber:client", Local: "body"}}),
			xml.StartElement{
				Name: xml.Name{Space: "jabber:client", Local: "message"},
				Attr: []xml.Attr{{Name: xml.Name{Local: "to"}, Value: "romeo@example.net"}},
			},
		)
	}
	// An incomplete element is not written.
	assert.ErrorIs(t, s.SendToken(ctx, xmlstream.LimitReader(msg(), 2)), element.ErrUnclosed)
	require.NoError(t, s.SendToken(ctx, msg()))
	assert.NoError(t, s.End(ctx))
}

func TestStreamEOF(t *testing.T) {
	conn := xmpptest.Serve(t, func(s *xmpptest.Server) error {
		if err := s.Accept("x"); err != nil {
			return err
		}
		return s.Conn().Close()
	})
	ctx := context.Background()
	s, err := xmpp.NewStream(ctx, conn, xmpptest.Domain, "jabber:client")
	require.NoError(t, err)

	p, err := s.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, codec.StreamEnd{}, p)
	_, err = s.Next(ctx)
	assert.ErrorIs(t, err, io.EOF)
}

func TestStreamNextCanceled(t *testing.T) {
	release := make(chan struct{})
	conn := xmpptest.Serve(t, func(s *xmpptest.Server) error {
		if err := s.Accept("x"); err != nil {
			return err
		}
		<-release
		return s.Send(`<message xmlns='jabber:client'/>`)
	})
	s, err := xmpp.NewStream(context.Background(), conn, xmpptest.Domain, "jabber:client")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = s.Next(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "unexpected error %v", err)

	close(release)
	p, err := s.Next(context.Background())
	require.NoError(t, err)
	st, ok := p.(codec.Stanza)
	require.True(t, ok, "expected a stanza, got %#v", p)
	assert.Equal(t, "message", st.Name())
}
