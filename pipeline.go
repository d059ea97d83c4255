// Copyright 2024 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package xmpp

import (
	"context"
	"crypto/tls"
	"net"

	"github.com/witnet/xmpp-rs-sub000/dial"
	"github.com/witnet/xmpp-rs-sub000/internal/ns"
	"github.com/witnet/xmpp-rs-sub000/jid"
)

// ClientConfig configures the client connection pipeline.
// The zero value dials the domain of the address after an SRV lookup, verifies
// the server certificate against the domain and asks the server to pick a
// resource.
type ClientConfig struct {
	// Dialer is used to connect to the server.
	Dialer dial.Dialer

	// TLSConfig is used for STARTTLS.
	TLSConfig *tls.Config

	// ChannelBinding enables the SCRAM -PLUS mechanisms with binding data from
	// the TLS session.
	ChannelBinding bool

	// StreamOptions are applied to every stream of the pipeline.
	StreamOptions []StreamOption

	// Nonce fixes the SCRAM client nonce.
	Nonce []byte
}

// DialClient connects to the server of addr and runs NegotiateClient on the
// connection.
// Dial failures are returned as *ConnectionError.
func DialClient(ctx context.Context, addr jid.JID, password string, cfg *ClientConfig) (*Stream, error) {
	if cfg == nil {
		cfg = &ClientConfig{}
	}
	conn, err := cfg.Dialer.Dial(ctx, "tcp", addr)
	if err != nil {
		return nil, &ConnectionError{Err: err}
	}
	s, err := NegotiateClient(ctx, conn, addr, password, cfg)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

// NegotiateClient runs the client pipeline over conn: it opens a stream,
// upgrades it with STARTTLS, authenticates as the localpart of addr and binds
// the resourcepart of addr (or a server assigned resource if it has none).
// The returned stream is ready to exchange stanzas.
//
// If conn is already a TLS connection STARTTLS is skipped. Otherwise a server
// that does not offer STARTTLS is rejected with ErrNoTLS before any
// credentials are sent.
func NegotiateClient(ctx context.Context, conn net.Conn, addr jid.JID, password string, cfg *ClientConfig) (*Stream, error) {
	if cfg == nil {
		cfg = &ClientConfig{}
	}
	s, err := NewStream(ctx, conn, addr.Domainpart(), ns.Client, cfg.StreamOptions...)
	if err != nil {
		return nil, err
	}

	if _, isTLS := conn.(*tls.Conn); !isTLS {
		if s, err = StartTLS(ctx, s, cfg.TLSConfig); err != nil {
			return nil, err
		}
	}

	creds := Credentials{
		Username: addr.Localpart(),
		Password: password,
		Nonce:    cfg.Nonce,
	}
	if cfg.ChannelBinding {
		if cs, ok := s.ConnectionState(); ok {
			cb, err := ChannelBindingFromTLS(cs)
			if err != nil {
				s.logger.WithError(err).Warn("channel binding unavailable")
			} else {
				creds.ChannelBinding = cb
			}
		}
	}
	if s, err = Authenticate(ctx, s, creds); err != nil {
		return nil, err
	}

	if !s.Features().CanBind() {
		return s, nil
	}
	if _, err = BindResource(ctx, s, addr.Resourcepart()); err != nil {
		return nil, err
	}
	return s, nil
}
