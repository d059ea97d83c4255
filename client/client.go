// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package client

import (
	"context"
	"io"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/witnet/xmpp-rs-sub000"
	"github.com/witnet/xmpp-rs-sub000/codec"
	"github.com/witnet/xmpp-rs-sub000/element"
	"github.com/witnet/xmpp-rs-sub000/jid"
)

// State is the connection state of a Client.
type State uint8

// Connection states.
const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	}
	return "State(" + strconv.Itoa(int(s)) + ")"
}

type result struct {
	stream *xmpp.Stream
	err    error
}

type incoming struct {
	p   codec.Packet
	err error
}

// A Client represents an XMPP client capable of making a client-to-server (C2S)
// connection on behalf of the configured JID.
// The connection is only started by the first call to Next.
type Client struct {
	options
	addr     jid.JID
	password string
	logger   logrus.FieldLogger
	metrics  *metrics

	state   State
	started bool
	closed  bool

	// Connecting.
	pending chan result
	cancel  context.CancelFunc

	// Connected.
	stream *xmpp.Stream
	in     chan incoming
	outbox []codec.Packet
	ending bool
	jid    jid.JID
}

// New creates a new XMPP client for addr with the given options.
// If addr has a resourcepart it is requested when binding, otherwise the server
// picks a resource.
func New(addr jid.JID, password string, opts ...Option) *Client {
	o := getOpts(opts...)
	return &Client{
		options:  o,
		addr:     addr,
		password: password,
		logger:   o.log.WithField("jid", addr.String()),
		metrics:  newMetrics(o.registry),
	}
}

// State returns the current connection state.
func (c *Client) State() State {
	return c.state
}

// BoundJID returns the full JID bound by the server, or the zero JID if the
// client is not connected.
func (c *Client) BoundJID() jid.JID {
	return c.jid
}

// SetReconnect sets whether polling a disconnected client starts a new
// connection.
func (c *Client) SetReconnect(reconnect bool) {
	c.reconnect = reconnect
}

// Next drives the client and returns the next event.
//
// If the client is disconnected and has never been started or reconnecting is
// enabled, a new connection pipeline is started.
// Once the client is disconnected and will not reconnect, io.EOF is returned.
// If ctx is canceled, Next returns ctx.Err() and the client state is
// unchanged.
func (c *Client) Next(ctx context.Context) (Event, error) {
	for {
		switch c.state {
		case StateDisconnected:
			if c.closed || (c.started && !c.reconnect) {
				return nil, io.EOF
			}
			c.connect()
		case StateConnecting:
			select {
			case r := <-c.pending:
				c.pending = nil
				c.cancel = nil
				if r.err != nil {
					c.metrics.connectFailures.Inc()
					c.state = StateDisconnected
					c.logger.WithError(r.err).Warn("connection failed")
					return Disconnected{Err: r.err}, nil
				}
				return c.online(r.stream), nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		case StateConnected:
			if err := c.flush(ctx); err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				return c.disconnect(err), nil
			}
			select {
			case in := <-c.in:
				if ev := c.handle(ctx, in); ev != nil {
					return ev, nil
				}
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
}

// connect starts the connection pipeline in the background.
func (c *Client) connect() {
	c.started = true
	c.state = StateConnecting
	c.metrics.connectAttempts.Inc()
	c.logger.Info("connecting")

	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan result, 1)
	c.pending = ch
	c.cancel = cancel
	cfg := &xmpp.ClientConfig{
		TLSConfig:      c.tlsConfig,
		ChannelBinding: c.channelBinding,
		StreamOptions:  []xmpp.StreamOption{xmpp.Logger(c.log)},
		Nonce:          c.nonce,
	}
	dial := c.dial
	addr, password := c.addr, c.password
	go func() {
		conn, err := dial(ctx, addr)
		if err != nil {
			ch <- result{err: &xmpp.ConnectionError{Err: err}}
			return
		}
		s, err := xmpp.NegotiateClient(ctx, conn, addr, password, cfg)
		if err != nil {
			conn.Close()
		}
		ch <- result{stream: s, err: err}
	}()
}

func (c *Client) online(s *xmpp.Stream) Event {
	ctx, cancel := context.WithCancel(context.Background())
	in := make(chan incoming)
	c.state = StateConnected
	c.stream = s
	c.cancel = cancel
	c.in = in
	c.jid = s.JID()
	c.metrics.connected.Set(1)
	c.logger.WithField("bound", c.jid.String()).Info("online")

	go func() {
		for {
			p, err := s.Next(ctx)
			select {
			case in <- incoming{p: p, err: err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
			if _, ok := p.(codec.StreamEnd); ok {
				return
			}
		}
	}()
	return Online{JID: c.jid}
}

// handle maps an incoming packet to an event.
// A nil event means the packet is not surfaced.
func (c *Client) handle(ctx context.Context, in incoming) Event {
	if in.err != nil {
		err := in.err
		if err == io.EOF {
			err = xmpp.ErrDisconnected
		}
		return c.disconnect(err)
	}
	switch p := in.p.(type) {
	case codec.Stanza:
		c.metrics.stanzasIn.Inc()
		return StanzaEvent{Element: p.Element}
	case codec.StreamStart:
		return c.disconnect(xmpp.ErrInvalidStreamStart)
	case codec.StreamEnd:
		if c.ending {
			return c.disconnect(nil)
		}
		// Answer the server's close before dropping the connection.
		if err := c.stream.Send(ctx, codec.StreamEnd{}); err != nil {
			c.logger.WithError(err).Debug("error closing stream")
		}
		return c.disconnect(xmpp.ErrDisconnected)
	}
	return nil
}

// disconnect tears down the connected stream.
func (c *Client) disconnect(err error) Event {
	if c.cancel != nil {
		c.cancel()
	}
	if c.stream != nil {
		c.stream.Close()
	}
	c.state = StateDisconnected
	c.stream = nil
	c.cancel = nil
	c.in = nil
	c.outbox = nil
	c.ending = false
	c.jid = jid.JID{}
	c.metrics.connected.Set(0)
	if err != nil {
		c.logger.WithError(err).Warn("disconnected")
	} else {
		c.logger.Info("disconnected")
	}
	return Disconnected{Err: err}
}

// Send queues p and writes all queued packets to the server.
// It returns ErrInvalidState without writing anything if the client is not
// connected, the stream is being closed, or p is a StreamStart.
//
// If writing fails the packets stay queued and the next call to Next reports
// the connection as disconnected.
func (c *Client) Send(ctx context.Context, p codec.Packet) error {
	if c.state != StateConnected || c.ending {
		return xmpp.ErrInvalidState
	}
	if _, ok := p.(codec.StreamStart); ok {
		return xmpp.ErrInvalidState
	}
	c.outbox = append(c.outbox, p)
	if _, ok := p.(codec.StreamEnd); ok {
		c.ending = true
	}
	return c.flush(ctx)
}

// SendStanza is a convenience wrapper around Send for a single element.
func (c *Client) SendStanza(ctx context.Context, el *element.Element) error {
	return c.Send(ctx, codec.Stanza{Element: el})
}

// SendEnd starts an orderly close by sending the closing stream tag.
// Next keeps returning stanzas until the server closes its side, which is
// reported as Disconnected with a nil error.
func (c *Client) SendEnd(ctx context.Context) error {
	return c.Send(ctx, codec.StreamEnd{})
}

// flush writes queued packets in the order they were sent.
func (c *Client) flush(ctx context.Context) error {
	for len(c.outbox) > 0 {
		p := c.outbox[0]
		if err := c.stream.Send(ctx, p); err != nil {
			return err
		}
		c.outbox = c.outbox[1:]
		if _, ok := p.(codec.Stanza); ok {
			c.metrics.stanzasOut.Inc()
		}
	}
	return nil
}

// Close drops the connection without closing the stream and stops the client
// from reconnecting.
// Subsequent calls to Next return io.EOF.
func (c *Client) Close() error {
	c.closed = true
	switch c.state {
	case StateConnecting:
		c.cancel()
		pending := c.pending
		go func() {
			if r := <-pending; r.stream != nil {
				r.stream.Close()
			}
		}()
		c.pending = nil
		c.cancel = nil
		c.state = StateDisconnected
	case StateConnected:
		c.cancel()
		err := c.stream.Close()
		c.stream = nil
		c.cancel = nil
		c.in = nil
		c.outbox = nil
		c.jid = jid.JID{}
		c.metrics.connected.Set(0)
		c.state = StateDisconnected
		return err
	}
	return nil
}
