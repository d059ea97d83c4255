// Copyright 2017 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package xmpptest provides a scripted fake XMPP server for tests.
package xmpptest

import (
	"crypto/tls"
	"encoding/base64"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"
	"testing"

	"github.com/witnet/xmpp-rs-sub000/codec"
	"github.com/witnet/xmpp-rs-sub000/element"
	"github.com/witnet/xmpp-rs-sub000/internal/ns"
	"github.com/witnet/xmpp-rs-sub000/stream"
)

// Stream features offered by scripted servers.
const (
	StartTLSFeature = `<starttls xmlns='urn:ietf:params:xml:ns:xmpp-tls'><required/></starttls>`
	BindFeature     = `<bind xmlns='urn:ietf:params:xml:ns:xmpp-bind'/>`
)

// Mechanisms returns a SASL mechanisms feature listing names.
func Mechanisms(names ...string) string {
	var b strings.Builder
	b.WriteString(`<mechanisms xmlns='urn:ietf:params:xml:ns:xmpp-sasl'>`)
	for _, n := range names {
		b.WriteString(`<mechanism>` + n + `</mechanism>`)
	}
	b.WriteString(`</mechanisms>`)
	return b.String()
}

// Server is the server end of a connection used by a test script.
type Server struct {
	raw   net.Conn
	conn  net.Conn
	codec *codec.Codec
	in    []codec.Packet
	buf   []byte
}

// Serve runs script against the server end of a loopback TCP connection and
// returns the client end.
// When the test finishes both ends are closed and any error returned by the
// script, other than the connection being closed, fails the test.
func Serve(t testing.TB, script func(*Server) error) net.Conn {
	t.Helper()
	client, server := loopback(t)
	s := &Server{conn: server, raw: server, codec: codec.New(), buf: make([]byte, 4096)}
	done := make(chan error, 1)
	go func() {
		done <- script(s)
	}()
	t.Cleanup(func() {
		client.Close()
		s.raw.Close()
		if err := <-done; err != nil && !closedErr(err) {
			t.Errorf("fake server: %v", err)
		}
	})
	return client
}

func loopback(t testing.TB) (client, server net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("error listening for TCP connections: %v", err)
	}
	defer ln.Close()
	client, err = net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("error dialing loopback listener: %v", err)
	}
	server, err = ln.Accept()
	if err != nil {
		client.Close()
		t.Fatalf("error accepting loopback connection: %v", err)
	}
	return client, server
}

func closedErr(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE)
}

// Conn returns the current server side connection.
func (s *Server) Conn() net.Conn {
	return s.conn
}

// Send writes raw XML to the client.
func (s *Server) Send(raw string) error {
	_, err := io.WriteString(s.conn, raw)
	return err
}

// SendError writes a stream error to the client.
// The stream is not closed.
func (s *Server) SendError(e stream.Error) error {
	enc := xml.NewEncoder(s.conn)
	if _, err := e.WriteXML(enc); err != nil {
		return err
	}
	return enc.Flush()
}

// Next returns the next packet sent by the client, skipping whitespace.
func (s *Server) Next() (codec.Packet, error) {
	for {
		for len(s.in) > 0 {
			p := s.in[0]
			s.in = s.in[1:]
			if _, ok := p.(codec.Text); !ok {
				return p, nil
			}
		}
		n, err := s.conn.Read(s.buf)
		if n > 0 {
			pkts, perr := s.codec.Decode(s.buf[:n])
			s.in = append(s.in, pkts...)
			if perr != nil {
				return nil, perr
			}
		}
		if err != nil && len(s.in) == 0 {
			return nil, err
		}
	}
}

// Expect reads the next packet and fails unless it is the named element.
func (s *Server) Expect(name, namespace string) (*element.Element, error) {
	p, err := s.Next()
	if err != nil {
		return nil, err
	}
	st, ok := p.(codec.Stanza)
	if !ok || !st.Is(name, namespace) {
		return nil, fmt.Errorf("expected <%s xmlns=%q/>, got %#v", name, namespace, p)
	}
	return st.Element, nil
}

// ExpectEnd reads the next packet and fails unless it is the end of the
// stream.
func (s *Server) ExpectEnd() error {
	p, err := s.Next()
	if err != nil {
		return err
	}
	if _, ok := p.(codec.StreamEnd); !ok {
		return fmt.Errorf("expected stream end, got %#v", p)
	}
	return nil
}

// ReadHeader discards the current stream state and reads a new stream header.
func (s *Server) ReadHeader() (codec.StreamStart, error) {
	s.codec = codec.New()
	s.in = nil
	p, err := s.Next()
	if err != nil {
		return codec.StreamStart{}, err
	}
	start, ok := p.(codec.StreamStart)
	if !ok {
		return codec.StreamStart{}, fmt.Errorf("expected stream header, got %#v", p)
	}
	return start, nil
}

// OpenStream sends a stream header with the given id, followed by a features
// element with the given children.
func (s *Server) OpenStream(id string, features ...string) error {
	return s.Send(`<?xml version='1.0'?><stream:stream xmlns='` + ns.Client +
		`' xmlns:stream='http://etherx.jabber.org/streams' id='` + id +
		`' from='` + Domain + `' version='1.0'><stream:features>` +
		strings.Join(features, "") + `</stream:features>`)
}

// Accept reads the client's stream header and answers with OpenStream.
func (s *Server) Accept(id string, features ...string) error {
	if _, err := s.ReadHeader(); err != nil {
		return err
	}
	return s.OpenStream(id, features...)
}

// UpgradeTLS performs the server side of a TLS handshake on the connection.
func (s *Server) UpgradeTLS() error {
	conn := tls.Server(s.conn, ServerTLS())
	if err := conn.Handshake(); err != nil {
		return err
	}
	s.conn = conn
	return nil
}

// StartTLS expects a <starttls/> request, proceeds and upgrades the
// connection.
func (s *Server) StartTLS() error {
	if _, err := s.Expect("starttls", ns.StartTLS); err != nil {
		return err
	}
	if err := s.Send(`<proceed xmlns='urn:ietf:params:xml:ns:xmpp-tls'/>`); err != nil {
		return err
	}
	return s.UpgradeTLS()
}

// AuthPlain expects PLAIN authentication with the given credentials and
// reports success.
func (s *Server) AuthPlain(username, password string) error {
	auth, err := s.Expect("auth", ns.SASL)
	if err != nil {
		return err
	}
	if m := auth.Attr("mechanism"); m != "PLAIN" {
		return fmt.Errorf("expected PLAIN, got %q", m)
	}
	payload, err := base64.StdEncoding.DecodeString(auth.Text())
	if err != nil {
		return err
	}
	if want := "\x00" + username + "\x00" + password; string(payload) != want {
		return fmt.Errorf("wrong PLAIN payload %q", payload)
	}
	return s.Send(`<success xmlns='urn:ietf:params:xml:ns:xmpp-sasl'/>`)
}

// Bind expects a resource binding request and binds full.
// If full has no resource, the requested resource is appended.
func (s *Server) Bind(full string) error {
	iq, err := s.Expect("iq", ns.Client)
	if err != nil {
		return err
	}
	if !strings.Contains(full, "/") {
		res := "generated"
		if bind := iq.Child("bind", ns.Bind); bind != nil {
			if r := bind.Child("resource", ns.Bind); r != nil {
				res = r.Text()
			}
		}
		full += "/" + res
	}
	return s.Send(`<iq type='result' id='` + iq.Attr("id") + `'><bind xmlns='urn:ietf:params:xml:ns:xmpp-bind'><jid>` +
		full + `</jid></bind></iq>`)
}

// ClientLogin runs a complete client login: STARTTLS, PLAIN authentication and
// resource binding of username@Domain.
func (s *Server) ClientLogin(username, password string) error {
	if err := s.Accept("tls", StartTLSFeature); err != nil {
		return err
	}
	if err := s.StartTLS(); err != nil {
		return err
	}
	if err := s.Accept("auth", Mechanisms("PLAIN")); err != nil {
		return err
	}
	if err := s.AuthPlain(username, password); err != nil {
		return err
	}
	if err := s.Accept("bound", BindFeature); err != nil {
		return err
	}
	return s.Bind(username + "@" + Domain)
}
