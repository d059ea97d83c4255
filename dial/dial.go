// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package dial contains methods and types for dialing XMPP connections.
package dial

import (
	"context"
	"net"
	"strconv"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/witnet/xmpp-rs-sub000/internal/discover"
	"github.com/witnet/xmpp-rs-sub000/internal/xlog"
	"github.com/witnet/xmpp-rs-sub000/jid"
)

// DefaultPort is the port used when no SRV records exist or when a host is set
// without a port.
const DefaultPort = 5222

// ErrNoService is returned when the domain explicitly has no XMPP client
// service.
var ErrNoService = errors.New("dial: no xmpp-client service at domain")

// Client discovers and connects to the address on the named network with a
// client-to-server (c2s) connection.
//
// For more information see the Dialer type.
func Client(ctx context.Context, network string, addr jid.JID) (net.Conn, error) {
	var d Dialer
	return d.Dial(ctx, network, addr)
}

// A Dialer contains options for connecting to an XMPP address.
// After a connection is established the Dial method does not attempt to create
// an XMPP stream on the connection, the negotiation functions in the root
// package should be passed the resulting connection.
//
// The zero value for each field is equivalent to dialing without that option.
type Dialer struct {
	net.Dialer

	// Host and Port, if Host is set, are dialed directly instead of looking up
	// the domain.
	// A zero Port means DefaultPort.
	Host string
	Port uint16

	// NoLookup stops the dialer from looking up SRV records for the given domain.
	// Instead, it will try to connect to the domain on DefaultPort.
	NoLookup bool

	// Resolver is used for SRV lookups. If nil, net.DefaultResolver is used.
	Resolver discover.Resolver

	// Logger receives a debug entry for every connection attempt.
	Logger logrus.FieldLogger
}

// Dial discovers and connects to the address on the named network.
// The domainpart is converted to its ASCII form before any lookup.
// If the context expires before the connection is complete, an error is
// returned. Once successfully connected, any expiration of the context will not
// affect the connection.
//
// Network may be any of the network types supported by net.Dial, but you most
// likely want to use one of the tcp connection types ("tcp", "tcp4", or
// "tcp6").
func (d *Dialer) Dial(ctx context.Context, network string, addr jid.JID) (net.Conn, error) {
	logger := xlog.OrDiscard(d.Logger)
	if d.Host != "" {
		port := d.Port
		if port == 0 {
			port = DefaultPort
		}
		return d.dialOne(ctx, logger, network, d.Host, port)
	}

	domain, err := addr.ASCIIDomain()
	if err != nil {
		return nil, errors.Wrapf(err, "dial: invalid domain %q", addr.Domainpart())
	}
	if d.NoLookup {
		return d.dialOne(ctx, logger, network, domain, DefaultPort)
	}

	addrs, err := discover.LookupServiceByDomain(ctx, d.Resolver, discover.ClientService, domain)
	if err != nil {
		return nil, errors.Wrapf(err, "dial: SRV lookup for %s", domain)
	}
	if len(addrs) == 0 {
		return nil, ErrNoService
	}

	// Try dialing all of the SRV records we know about, breaking as soon as the
	// connection is established.
	for _, srv := range addrs {
		var conn net.Conn
		conn, err = d.dialOne(ctx, logger, network, srv.Target, srv.Port)
		if err == nil {
			return conn, nil
		}
		if ctx.Err() != nil {
			break
		}
	}
	return nil, err
}

func (d *Dialer) dialOne(ctx context.Context, logger logrus.FieldLogger, network, host string, port uint16) (net.Conn, error) {
	hostport := net.JoinHostPort(host, strconv.FormatUint(uint64(port), 10))
	logger.WithField("addr", hostport).Debug("dialing")
	conn, err := d.Dialer.DialContext(ctx, network, hostport)
	if err != nil {
		return nil, errors.Wrapf(err, "dial: %s", hostport)
	}
	return conn, nil
}
