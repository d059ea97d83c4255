// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package xmpp

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"io"
	"slices"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/text/language"
	"mellium.im/sasl"

	"github.com/witnet/xmpp-rs-sub000/codec"
	"github.com/witnet/xmpp-rs-sub000/element"
	"github.com/witnet/xmpp-rs-sub000/internal/ns"
	"github.com/witnet/xmpp-rs-sub000/internal/saslerr"
	"github.com/witnet/xmpp-rs-sub000/internal/scram"
	"github.com/witnet/xmpp-rs-sub000/jid"
	"github.com/witnet/xmpp-rs-sub000/stream"
)

// Mechanisms in order of preference.
var mechanismPreference = [...]string{
	"SCRAM-SHA-256-PLUS",
	"SCRAM-SHA-1-PLUS",
	"SCRAM-SHA-256",
	"SCRAM-SHA-1",
	"PLAIN",
}

// Credentials are used to authenticate a stream.
// They are consumed by Authenticate and not retained.
type Credentials struct {
	Username string
	Password string

	// Identity is the optional authorization identity.
	Identity string

	// ChannelBinding enables the SCRAM -PLUS mechanisms.
	ChannelBinding *ChannelBinding

	// Nonce is the SCRAM client nonce. If it is empty a random one is used.
	Nonce []byte
}

// ChannelBinding is channel binding data extracted from a TLS connection.
type ChannelBinding struct {
	// Type is the channel binding type, for example "tls-exporter".
	Type string
	Data []byte
}

// ChannelBindingFromTLS returns channel binding data for a TLS connection:
// tls-exporter (RFC 9266) for TLS 1.3 and tls-unique (RFC 5929) for earlier
// versions.
func ChannelBindingFromTLS(cs tls.ConnectionState) (*ChannelBinding, error) {
	if cs.Version >= tls.VersionTLS13 {
		data, err := cs.ExportKeyingMaterial("EXPORTER-Channel-Binding", nil, 32)
		if err != nil {
			return nil, err
		}
		return &ChannelBinding{Type: scram.TLSExporter, Data: data}, nil
	}
	//lint:ignore SA1019 tls-unique is the binding defined for TLS 1.2
	if len(cs.TLSUnique) == 0 {
		return nil, errors.New("xmpp: no tls-unique data available")
	}
	//lint:ignore SA1019 tls-unique is the binding defined for TLS 1.2
	return &ChannelBinding{Type: scram.TLSUnique, Data: cs.TLSUnique}, nil
}

// SelectMechanism picks the most preferred mechanism that the server offers.
// The -PLUS mechanisms are only considered when channel binding data is
// available.
func SelectMechanism(remote []string, cb *ChannelBinding) (string, bool) {
	for _, name := range mechanismPreference {
		if strings.HasSuffix(name, "-PLUS") && (cb == nil || len(cb.Data) == 0) {
			continue
		}
		if slices.Contains(remote, name) {
			return name, true
		}
	}
	return "", false
}

// Authenticate performs SASL authentication and returns the stream that was
// opened after the server reported success.
//
// A <failure/> from the server results in an *AuthError of kind Fail with the
// condition sent by the server.
func Authenticate(ctx context.Context, s *Stream, creds Credentials) (*Stream, error) {
	remote := s.Features().SASLMechanisms()
	name, ok := SelectMechanism(remote, creds.ChannelBinding)
	if !ok {
		return nil, &AuthError{Kind: NoMechanism}
	}
	s.logger.WithField("mechanism", name).Debug("authenticating")

	mech := sasl.Plain
	if fn := scram.Hash(name); fn != nil {
		cfg := scram.Config{Nonce: creds.Nonce}
		if cb := creds.ChannelBinding; cb != nil && len(cb.Data) > 0 {
			cfg.Binding = cb.Data
			cfg.BindingType = cb.Type
		}
		mech = scram.Mechanism(name, fn, cfg)
	}
	client := sasl.NewClient(mech,
		sasl.RemoteMechanisms(remote...),
		sasl.Credentials(func() (username, password, identity []byte) {
			return []byte(creds.Username), []byte(creds.Password), []byte(creds.Identity)
		}),
	)

	more, resp, err := client.Step(nil)
	if err != nil {
		return nil, &AuthError{Kind: Sasl, Err: err}
	}
	auth := element.New("auth", ns.SASL, element.Attr{Name: "mechanism", Value: name})
	// RFC 6120 §6.4.2: an empty initial response is sent as "=".
	if len(resp) == 0 {
		auth.AppendText("=")
	} else {
		auth.AppendText(base64.StdEncoding.EncodeToString(resp))
	}
	if err := s.SendElement(ctx, auth); err != nil {
		return nil, err
	}

	for {
		p, err := s.Next(ctx)
		switch {
		case err == io.EOF:
			return nil, ErrDisconnected
		case err != nil:
			return nil, err
		}
		var el *element.Element
		switch p := p.(type) {
		case codec.Text:
			continue
		case codec.StreamEnd:
			return nil, ErrDisconnected
		case codec.StreamStart:
			return nil, ErrInvalidStreamStart
		case codec.Stanza:
			el = p.Element
		}

		switch {
		case el.Is("challenge", ns.SASL):
			data, err := decodePayload(el.Text())
			if err != nil {
				return nil, &AuthError{Kind: Sasl, Err: err}
			}
			more, resp, err = client.Step(data)
			if err != nil {
				return nil, &AuthError{Kind: Sasl, Err: err}
			}
			r := element.New("response", ns.SASL)
			if len(resp) > 0 {
				r.AppendText(base64.StdEncoding.EncodeToString(resp))
			}
			if err := s.SendElement(ctx, r); err != nil {
				return nil, err
			}
		case el.Is("success", ns.SASL):
			if more {
				data, err := decodePayload(el.Text())
				if err != nil {
					return nil, &AuthError{Kind: Sasl, Err: err}
				}
				if len(data) == 0 {
					return nil, &AuthError{Kind: Sasl, Err: sasl.ErrInvalidChallenge}
				}
				if more, _, err = client.Step(data); err != nil {
					return nil, &AuthError{Kind: Sasl, Err: err}
				}
				if more {
					return nil, &AuthError{Kind: Sasl, Err: sasl.ErrInvalidState}
				}
			}
			return authenticated(ctx, s, creds.Username)
		case el.Is("failure", ns.SASL):
			f := saslerr.FromElement(el, language.Und)
			return nil, &AuthError{Kind: Fail, Condition: string(f.Condition), Text: f.Text}
		case el.Is("error", stream.NS):
			return nil, stream.FromElement(el)
		default:
			return nil, errors.WithMessagef(ErrInvalidToken, "got <%s/> during SASL", el.Name())
		}
	}
}

func authenticated(ctx context.Context, s *Stream, username string) (*Stream, error) {
	bare, err := jid.New(username, s.domain.Domainpart(), "")
	if err != nil {
		bare = s.domain
	}
	s.logger.WithField("jid", bare.String()).Info("authenticated")
	next, err := s.restart(ctx, s.conn)
	if err != nil {
		return nil, err
	}
	next.jid = bare
	return next, nil
}

func decodePayload(text string) ([]byte, error) {
	text = strings.TrimSpace(text)
	if text == "" || text == "=" {
		return nil, nil
	}
	return base64.StdEncoding.DecodeString(text)
}
