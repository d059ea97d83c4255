// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package xmpp

import (
	"context"
	"io"
	"strings"

	"github.com/pkg/errors"

	"github.com/witnet/xmpp-rs-sub000/codec"
	"github.com/witnet/xmpp-rs-sub000/element"
	"github.com/witnet/xmpp-rs-sub000/internal/ns"
	"github.com/witnet/xmpp-rs-sub000/jid"
	"github.com/witnet/xmpp-rs-sub000/stream"
)

// BindID is the id of the resource binding IQ.
const BindID = "resource-bind"

// BindResource asks the server to bind a resource to the stream and returns the
// full JID assigned by the server.
// If resource is empty the server picks one.
//
// Stanzas that arrive before the bind response are discarded.
func BindResource(ctx context.Context, s *Stream, resource string) (jid.JID, error) {
	iq := element.New("iq", s.namespace,
		element.Attr{Name: "type", Value: "set"},
		element.Attr{Name: "id", Value: BindID},
	)
	bind := iq.AppendChild(element.New("bind", ns.Bind))
	if resource != "" {
		bind.AppendChild(element.New("resource", ns.Bind)).AppendText(resource)
	}
	if err := s.SendElement(ctx, iq); err != nil {
		return jid.JID{}, err
	}

	for {
		p, err := s.Next(ctx)
		switch {
		case err == io.EOF:
			return jid.JID{}, ErrDisconnected
		case err != nil:
			return jid.JID{}, err
		}
		var el *element.Element
		switch p := p.(type) {
		case codec.Text:
			continue
		case codec.StreamEnd:
			return jid.JID{}, ErrDisconnected
		case codec.StreamStart:
			return jid.JID{}, ErrInvalidStreamStart
		case codec.Stanza:
			el = p.Element
		}
		if el.Is("error", stream.NS) {
			return jid.JID{}, stream.FromElement(el)
		}
		if !el.Is("iq", s.namespace) || el.Attr("id") != BindID {
			s.logger.WithField("name", el.Name()).Debug("discarding element while binding")
			continue
		}
		j, err := bindResult(el)
		if err != nil {
			return jid.JID{}, err
		}
		s.jid = j
		s.logger.WithField("jid", j.String()).Info("resource bound")
		return j, nil
	}
}

func bindResult(iq *element.Element) (jid.JID, error) {
	if typ := iq.Attr("type"); typ != "result" {
		if e := iq.Child("error", iq.Namespace()); e != nil && len(e.Children()) > 0 {
			return jid.JID{}, errors.WithMessagef(ErrInvalidBindResponse, "%s: %s", typ, e.Children()[0].Name())
		}
		return jid.JID{}, errors.WithMessagef(ErrInvalidBindResponse, "type %q", typ)
	}
	bind := iq.Child("bind", ns.Bind)
	if bind == nil {
		return jid.JID{}, ErrInvalidBindResponse
	}
	jidEl := bind.Child("jid", ns.Bind)
	if jidEl == nil {
		return jid.JID{}, ErrInvalidBindResponse
	}
	j, err := jid.Parse(strings.TrimSpace(jidEl.Text()))
	if err != nil {
		return jid.JID{}, errors.WithMessage(ErrInvalidBindResponse, err.Error())
	}
	return j, nil
}
