// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package xmpp

import (
	"context"
	"crypto/tls"
	"io"

	"github.com/pkg/errors"

	"github.com/witnet/xmpp-rs-sub000/codec"
	"github.com/witnet/xmpp-rs-sub000/element"
	"github.com/witnet/xmpp-rs-sub000/internal/ns"
	"github.com/witnet/xmpp-rs-sub000/stream"
)

// StartTLS upgrades the stream to TLS and returns the stream that was opened
// over the encrypted connection.
//
// If the server did not offer STARTTLS or answered with <failure/>, ErrNoTLS is
// returned; there is no fallback to an unencrypted stream.
// If cfg is nil or has no ServerName, the stream domain is used as the server
// name.
func StartTLS(ctx context.Context, s *Stream, cfg *tls.Config) (*Stream, error) {
	if !s.Features().CanStartTLS() {
		return nil, ErrNoTLS
	}
	if cfg == nil {
		cfg = &tls.Config{}
	}
	if cfg.ServerName == "" {
		host, err := s.domain.ASCIIDomain()
		if err != nil {
			return nil, err
		}
		cfg = cfg.Clone()
		cfg.ServerName = host
	}

	if err := s.SendElement(ctx, element.New("starttls", ns.StartTLS)); err != nil {
		return nil, err
	}
	if err := awaitProceed(ctx, s); err != nil {
		return nil, err
	}

	conn := tls.Client(s.conn, cfg)
	if err := conn.HandshakeContext(ctx); err != nil {
		return nil, &IoError{Err: errors.Wrap(err, "TLS handshake")}
	}
	s.logger.WithField("version", tls.VersionName(conn.ConnectionState().Version)).Info("TLS established")
	return s.restart(ctx, conn)
}

func awaitProceed(ctx context.Context, s *Stream) error {
	for {
		p, err := s.Next(ctx)
		switch {
		case err == io.EOF:
			return ErrDisconnected
		case err != nil:
			return err
		}
		switch p := p.(type) {
		case codec.Text:
		case codec.StreamEnd:
			return ErrDisconnected
		case codec.StreamStart:
			return ErrInvalidStreamStart
		case codec.Stanza:
			switch {
			case p.Is("proceed", ns.StartTLS):
				return nil
			case p.Is("failure", ns.StartTLS):
				return errors.WithMessage(ErrNoTLS, "server sent <failure/>")
			case p.Is("error", stream.NS):
				return stream.FromElement(p.Element)
			}
			return errors.WithMessagef(ErrInvalidToken, "got <%s/> instead of <proceed/>", p.Name())
		}
	}
}
