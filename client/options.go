// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package client

import (
	"context"
	"crypto/tls"
	"net"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/witnet/xmpp-rs-sub000/dial"
	"github.com/witnet/xmpp-rs-sub000/internal/xlog"
	"github.com/witnet/xmpp-rs-sub000/jid"
)

// Option's can be used to configure the client.
type Option func(*options)
type options struct {
	log            logrus.FieldLogger
	tlsConfig      *tls.Config
	dialer         dial.Dialer
	dial           func(context.Context, jid.JID) (net.Conn, error)
	reconnect      bool
	channelBinding bool
	registry       prometheus.Registerer
	nonce          []byte
}

func getOpts(o ...Option) (res options) {
	for _, f := range o {
		f(&res)
	}

	res.log = xlog.OrDiscard(res.log)
	if res.dialer.Logger == nil {
		res.dialer.Logger = res.log
	}
	if res.dial == nil {
		d := res.dialer
		res.dial = func(ctx context.Context, addr jid.JID) (net.Conn, error) {
			return d.Dial(ctx, "tcp", addr)
		}
	}
	return
}

// The Logger option can be provided to have Client log debug messages and other
// helpful info.
func Logger(logger logrus.FieldLogger) Option {
	return func(o *options) {
		o.log = logger
	}
}

// The TLS option fully configures the clients TLS connection options including
// the certificate chains used, cipher suites, etc.
func TLS(config *tls.Config) Option {
	return func(o *options) {
		o.tlsConfig = config
	}
}

// ConnTimeout sets a timeout on connection attempts to the server (not
// including SRV lookup time, for which the timeout is set by the system). Some
// systems may override long timeouts and break the connection earlier.
func ConnTimeout(timeout time.Duration) Option {
	return func(o *options) {
		o.dialer.Timeout = timeout
	}
}

// Host connects to host and port instead of looking up the server of the
// domain. A zero port means the default XMPP client port.
func Host(host string, port uint16) Option {
	return func(o *options) {
		o.dialer.Host = host
		o.dialer.Port = port
	}
}

// LocalAddr is the local address to use when connecting to the server. The
// address must be of a compatible type for a TCP connection. If nil (the
// default), a local address is automatically chosen.
func LocalAddr(addr net.Addr) Option {
	return func(o *options) {
		o.dialer.LocalAddr = addr
	}
}

// Dial replaces the function used to open the transport connection.
// The pipeline negotiates STARTTLS on the returned connection unless it is
// already a *tls.Conn.
func Dial(f func(ctx context.Context, addr jid.JID) (net.Conn, error)) Option {
	return func(o *options) {
		o.dial = f
	}
}

// Metrics registers the client's collectors with reg.
func Metrics(reg prometheus.Registerer) Option {
	return func(o *options) {
		o.registry = reg
	}
}

// Nonce fixes the SCRAM client nonce. It is only useful for tests.
func Nonce(nonce []byte) Option {
	return func(o *options) {
		o.nonce = nonce
	}
}

var (
	// NoLookup connects to the domain on the default port without looking up
	// SRV records.
	NoLookup Option = nolookup

	// Reconnect makes the client start a new connection when it is polled after
	// a disconnect. It may be changed later with SetReconnect.
	Reconnect Option = reconnect

	// ChannelBinding enables the SCRAM -PLUS mechanisms using channel binding
	// data from the TLS session.
	ChannelBinding Option = channelBinding
)

var nolookup = func(o *options) {
	o.dialer.NoLookup = true
}

var reconnect = func(o *options) {
	o.reconnect = true
}

var channelBinding = func(o *options) {
	o.channelBinding = true
}
