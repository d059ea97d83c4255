// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package xmpp

import (
	"context"
	"crypto/tls"
	"encoding/xml"
	"io"
	"net"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/witnet/xmpp-rs-sub000/codec"
	"github.com/witnet/xmpp-rs-sub000/element"
	"github.com/witnet/xmpp-rs-sub000/internal/decl"
	"github.com/witnet/xmpp-rs-sub000/internal/ns"
	"github.com/witnet/xmpp-rs-sub000/internal/xlog"
	"github.com/witnet/xmpp-rs-sub000/jid"
	"github.com/witnet/xmpp-rs-sub000/stream"
)

const readBufSize = 4096

// aLongTimeAgo is a non-zero time used to unblock reads and writes when a
// context is canceled.
var aLongTimeAgo = time.Unix(1, 0)

// A StreamOption configures a Stream.
// Options are kept across stream restarts.
type StreamOption func(*streamConfig)

type streamConfig struct {
	logger logrus.FieldLogger
	lang   string
	from   jid.JID
}

// Logger sets the logger used for stream traffic (at debug level) and
// negotiation steps.
func Logger(l logrus.FieldLogger) StreamOption {
	return func(c *streamConfig) {
		c.logger = l
	}
}

// Lang sets the xml:lang attribute of the stream header.
func Lang(lang string) StreamOption {
	return func(c *streamConfig) {
		c.lang = lang
	}
}

// From sets the from attribute of the stream header.
// RFC 6120 recommends it once the stream is secured.
func From(j jid.JID) StreamOption {
	return func(c *streamConfig) {
		c.from = j
	}
}

// A Stream is a negotiated XML stream over a transport.
// It owns the transport and the codec.
// One goroutine may read with Next while another writes with Send, but
// neither direction may be used from more than one goroutine at a time.
type Stream struct {
	conn      net.Conn
	codec     *codec.Codec
	domain    jid.JID
	namespace string
	opts      []StreamOption
	cfg       streamConfig
	logger    logrus.FieldLogger

	info     stream.Info
	features Features
	jid      jid.JID

	rbuf []byte
	wbuf []byte
	in   []codec.Packet
	rerr error
}

// NewStream opens a stream to domain over conn with the given default content
// namespace and waits for the server's stream header and, for XMPP 1.0
// client streams, its stream features.
//
// If negotiation fails the connection is left open; closing it is up to the
// caller.
func NewStream(ctx context.Context, conn net.Conn, domain, namespace string, opts ...StreamOption) (*Stream, error) {
	to, err := jid.Parse(domain)
	if err != nil {
		return nil, errors.Wrap(err, "xmpp: invalid stream domain")
	}
	s := &Stream{
		conn:      conn,
		codec:     codec.New(),
		domain:    to.Domain(),
		namespace: namespace,
		opts:      opts,
		rbuf:      make([]byte, readBufSize),
	}
	for _, o := range opts {
		o(&s.cfg)
	}
	s.logger = xlog.OrDiscard(s.cfg.logger).WithField("domain", s.domain.String())
	if err := s.negotiate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// restart opens a new stream over conn with the same domain, namespace and
// options as s.
func (s *Stream) restart(ctx context.Context, conn net.Conn) (*Stream, error) {
	return NewStream(ctx, conn, s.domain.String(), s.namespace, s.opts...)
}

func (s *Stream) negotiate(ctx context.Context) error {
	out := stream.Info{
		XMLNS: s.namespace,
		To:    s.domain,
		From:  s.cfg.from,
		Lang:  s.cfg.lang,
	}
	if err := s.write(ctx, append([]byte(decl.XMLHeader), s.encode(out.StreamStart())...)); err != nil {
		return err
	}

	if err := s.readHeader(ctx); err != nil {
		return err
	}
	switch {
	case s.info.XMLNS == "" || s.info.XMLNS != s.namespace:
		return errors.WithMessagef(ErrNoStreamNamespace, "got %q", s.info.XMLNS)
	case s.info.ID == "":
		return ErrNoStreamID
	}
	s.logger = s.logger.WithField("stream", s.info.ID)
	s.logger.Debug("stream opened")

	// Pre-1.0 servers and component streams do not send features.
	if s.info.Version == (stream.Version{}) || s.namespace != ns.Client {
		return nil
	}
	return s.readFeatures(ctx)
}

func (s *Stream) readHeader(ctx context.Context) error {
	for {
		p, err := s.Next(ctx)
		switch {
		case err == io.EOF:
			return ErrDisconnected
		case err != nil:
			return err
		}
		switch p := p.(type) {
		case codec.StreamEnd:
			return ErrDisconnected
		case codec.Stanza:
			return errors.WithMessagef(ErrInvalidToken, "got <%s/> before the stream header", p.Name())
		case codec.StreamStart:
			if err := s.info.FromStreamStart(p); err != nil {
				return errors.WithMessage(ErrInvalidStreamStart, err.Error())
			}
			return nil
		}
	}
}

func (s *Stream) readFeatures(ctx context.Context) error {
	for {
		p, err := s.Next(ctx)
		switch {
		case err == io.EOF:
			return ErrNoStreamFeatures
		case err != nil:
			return err
		}
		switch p := p.(type) {
		case codec.Text:
		case codec.StreamEnd:
			return ErrNoStreamFeatures
		case codec.StreamStart:
			return ErrInvalidStreamStart
		case codec.Stanza:
			switch {
			case p.Is("features", stream.NS):
				s.features = Features{el: p.Element}
				return nil
			case p.Is("error", stream.NS):
				return stream.FromElement(p.Element)
			}
			return errors.WithMessagef(ErrInvalidToken, "got <%s/> instead of stream features", p.Name())
		}
	}
}

// ID returns the stream ID sent by the server.
func (s *Stream) ID() string {
	return s.info.ID
}

// Info returns the server's stream header.
func (s *Stream) Info() stream.Info {
	return s.info
}

// Namespace returns the default content namespace of the stream.
func (s *Stream) Namespace() string {
	return s.namespace
}

// Domain returns the domain the stream was opened to.
func (s *Stream) Domain() jid.JID {
	return s.domain
}

// Features returns the stream features the server sent after its stream
// header.
func (s *Stream) Features() Features {
	return s.features
}

// JID returns the authenticated address.
// It is empty before authentication, the bare JID after SASL and the full JID
// after resource binding.
func (s *Stream) JID() jid.JID {
	return s.jid
}

// Conn returns the underlying transport.
func (s *Stream) Conn() net.Conn {
	return s.conn
}

// ConnectionState returns the TLS state of the transport and whether the
// transport uses TLS.
func (s *Stream) ConnectionState() (tls.ConnectionState, bool) {
	if c, ok := s.conn.(*tls.Conn); ok {
		return c.ConnectionState(), true
	}
	return tls.ConnectionState{}, false
}

// Send encodes p and writes it to the transport.
func (s *Stream) Send(ctx context.Context, p codec.Packet) error {
	var err error
	s.wbuf, err = s.codec.Encode(s.wbuf[:0], p)
	if err != nil {
		return err
	}
	return s.write(ctx, s.wbuf)
}

// SendElement writes a top-level element to the stream.
func (s *Stream) SendElement(ctx context.Context, el *element.Element) error {
	return s.Send(ctx, codec.Stanza{Element: el})
}

// SendToken reads a single top-level element from r and writes it to the
// stream.
// Nothing is written if r does not hold a complete element.
func (s *Stream) SendToken(ctx context.Context, r xml.TokenReader) error {
	el, err := element.FromTokenReader(r)
	if err != nil {
		return err
	}
	return s.SendElement(ctx, el)
}

func (s *Stream) encode(p codec.Packet) []byte {
	b, err := codec.Append(nil, p)
	if err != nil {
		// Only unknown packet types fail to encode.
		panic(err)
	}
	return b
}

func (s *Stream) write(ctx context.Context, b []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.logger.Debugf(">> %s", b)
	fired := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		_ = s.conn.SetWriteDeadline(aLongTimeAgo)
		close(fired)
	})
	_, err := s.conn.Write(b)
	if !stop() {
		<-fired
		_ = s.conn.SetWriteDeadline(time.Time{})
		// The write may have finished before the deadline was set.
		if err != nil {
			return ctx.Err()
		}
	}
	if err != nil {
		return &IoError{Err: err}
	}
	return nil
}

// Next returns the next packet from the stream.
// Once the transport reaches EOF a final StreamEnd is returned, and every call
// after that returns io.EOF.
// Packets decoded before a parse or transport error are returned before the
// error.
func (s *Stream) Next(ctx context.Context) (codec.Packet, error) {
	for len(s.in) == 0 {
		if s.rerr != nil {
			return nil, s.rerr
		}
		if err := s.fill(ctx); err != nil {
			return nil, err
		}
	}
	p := s.in[0]
	s.in[0] = nil
	s.in = s.in[1:]
	return p, nil
}

// fill reads from the transport once and decodes what was read.
// Errors from the transport and the codec are stored and reported once the
// decoded packets have been consumed. A canceled context is returned
// directly and leaves the stream usable.
func (s *Stream) fill(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fired := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		_ = s.conn.SetReadDeadline(aLongTimeAgo)
		close(fired)
	})
	n, err := s.conn.Read(s.rbuf)
	canceled := !stop()
	if canceled {
		<-fired
		_ = s.conn.SetReadDeadline(time.Time{})
	}
	if n > 0 {
		s.logger.Debugf("<< %s", s.rbuf[:n])
		pkts, perr := s.codec.Decode(s.rbuf[:n])
		s.in = append(s.in, pkts...)
		if perr != nil {
			s.rerr = perr
			return nil
		}
	}
	switch {
	case canceled:
		if len(s.in) > 0 {
			return nil
		}
		return ctx.Err()
	case err == io.EOF:
		pkts, perr := s.codec.DecodeEOF()
		s.in = append(s.in, pkts...)
		s.rerr = io.EOF
		if perr != nil {
			s.rerr = perr
		}
	case err != nil:
		s.rerr = &IoError{Err: err}
	}
	return nil
}

// End closes the stream in an orderly way: it sends the closing stream tag,
// waits for the peer's closing tag (discarding anything received in between)
// and closes the transport.
func (s *Stream) End(ctx context.Context) error {
	defer s.conn.Close()
	if err := s.Send(ctx, codec.StreamEnd{}); err != nil {
		return err
	}
	for {
		p, err := s.Next(ctx)
		switch {
		case err == io.EOF:
			return nil
		case err != nil:
			return err
		}
		if _, ok := p.(codec.StreamEnd); ok {
			return nil
		}
	}
}

// Close closes the transport without ending the stream.
func (s *Stream) Close() error {
	return s.conn.Close()
}
