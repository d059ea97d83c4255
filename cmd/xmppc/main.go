// Copyright 2024 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// The xmppc command logs in to an XMPP server and prints the stanzas it
// receives or sends a single message.
package main

import (
	"context"
	"encoding/xml"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"
	"mellium.im/xmlstream"

	"github.com/witnet/xmpp-rs-sub000"
	"github.com/witnet/xmpp-rs-sub000/client"
	"github.com/witnet/xmpp-rs-sub000/element"
	"github.com/witnet/xmpp-rs-sub000/internal/ns"
	"github.com/witnet/xmpp-rs-sub000/jid"
)

const (
	configFlag         = "config"
	jidFlag            = "jid"
	passwordFlag       = "password"
	hostFlag           = "host"
	portFlag           = "port"
	resourceFlag       = "resource"
	insecureFlag       = "insecure"
	reconnectFlag      = "reconnect"
	channelBindingFlag = "channel-binding"
	verboseFlag        = "verbose"
	metricsFlag        = "metrics"
	toFlag             = "to"
)

// closeTimeout bounds the orderly close when the command is interrupted.
const closeTimeout = 5 * time.Second

func main() {
	cmd := &cli.Command{
		Name:  "xmppc",
		Usage: "minimal XMPP client",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    configFlag,
				Aliases: []string{"c"},
				Usage:   "HCL configuration file",
				Sources: cli.EnvVars("XMPPC_CONFIG"),
			},
			&cli.StringFlag{
				Name:    jidFlag,
				Aliases: []string{"j"},
				Usage:   "JID to log in as",
				Sources: cli.EnvVars("XMPPC_JID"),
			},
			&cli.StringFlag{
				Name:    passwordFlag,
				Usage:   "password",
				Sources: cli.EnvVars("XMPPC_PASSWORD"),
			},
			&cli.StringFlag{
				Name:  hostFlag,
				Usage: "connect to this host instead of looking up the domain",
			},
			&cli.Uint16Flag{
				Name:  portFlag,
				Usage: "port used with --host",
			},
			&cli.StringFlag{
				Name:  resourceFlag,
				Usage: "resource to request",
			},
			&cli.BoolFlag{
				Name:  insecureFlag,
				Usage: "do not verify the server certificate",
			},
			&cli.BoolFlag{
				Name:  channelBindingFlag,
				Usage: "use the SCRAM -PLUS mechanisms",
			},
			&cli.BoolFlag{
				Name:    verboseFlag,
				Aliases: []string{"v"},
				Usage:   "log the XML traffic",
			},
		},
		Commands: []*cli.Command{
			listenCommand(),
			sendCommand(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		errorMsg(os.Stderr, "%s", err)
		os.Exit(1)
	}
}

func newLogger(cfg Config) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(logrus.WarnLevel)
	if cfg.Verbose {
		logger.SetLevel(logrus.DebugLevel)
	}
	return logger
}

func listenCommand() *cli.Command {
	return &cli.Command{
		Name:  "listen",
		Usage: "stay online and print received stanzas",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  reconnectFlag,
				Usage: "reconnect after the connection is lost",
			},
			&cli.StringFlag{
				Name:  metricsFlag,
				Usage: "serve Prometheus metrics on this address",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			addr, err := cfg.Addr()
			if err != nil {
				return err
			}
			logger := newLogger(cfg)

			opts := []client.Option{
				client.Logger(logger),
				client.TLS(cfg.TLS()),
			}
			if cfg.Host != "" {
				opts = append(opts, client.Host(cfg.Host, uint16(cfg.Port)))
			}
			if cfg.Reconnect {
				opts = append(opts, client.Reconnect)
			}
			if cfg.ChannelBinding {
				opts = append(opts, client.ChannelBinding)
			}
			if metricsAddr := cmd.String(metricsFlag); metricsAddr != "" {
				reg := prometheus.NewRegistry()
				opts = append(opts, client.Metrics(reg))
				if err := serveMetrics(ctx, logger, metricsAddr, reg); err != nil {
					return err
				}
			}

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
			defer stop()
			return listen(ctx, client.New(addr, cfg.Password, opts...))
		},
	}
}

func serveMetrics(ctx context.Context, logger logrus.FieldLogger, addr string, reg *prometheus.Registry) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("metrics server stopped")
		}
	}()
	context.AfterFunc(ctx, func() {
		srv.Close()
	})
	return nil
}

func listen(ctx context.Context, c *client.Client) error {
	defer c.Close()
	for {
		ev, err := c.Next(ctx)
		switch {
		case err == io.EOF:
			return nil
		case ctx.Err() != nil:
			return shutdown(c)
		case err != nil:
			return err
		}

		switch ev := ev.(type) {
		case client.Online:
			infoMsg(os.Stderr, "online as %s", ev.JID)
			presence := element.New("presence", ns.Client, element.Attr{Name: "id", Value: uuid.NewString()})
			if err := c.SendStanza(ctx, presence); err != nil {
				errorMsg(os.Stderr, "sending presence: %s", err)
			}
		case client.StanzaEvent:
			stanzaMsg(os.Stdout, "%s", ev.Element)
		case client.Disconnected:
			if ev.Err != nil {
				errorMsg(os.Stderr, "disconnected: %s", ev.Err)
			} else {
				infoMsg(os.Stderr, "disconnected")
			}
		}
	}
}

// shutdown closes the stream and waits for the server to close its side.
func shutdown(c *client.Client) error {
	if c.State() != client.StateConnected {
		return nil
	}
	c.SetReconnect(false)
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	if err := c.SendEnd(ctx); err != nil {
		return err
	}
	for {
		ev, err := c.Next(ctx)
		if err != nil {
			return err
		}
		if _, ok := ev.(client.Disconnected); ok {
			return nil
		}
	}
}

func sendCommand() *cli.Command {
	return &cli.Command{
		Name:      "send",
		Usage:     "send a chat message and disconnect",
		ArgsUsage: "<message>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     toFlag,
				Aliases:  []string{"t"},
				Usage:    "recipient JID",
				Required: true,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			addr, err := cfg.Addr()
			if err != nil {
				return err
			}
			to, err := jid.Parse(cmd.String(toFlag))
			if err != nil {
				return err
			}
			logger := newLogger(cfg)

			s, err := xmpp.DialClient(ctx, addr, cfg.Password, &xmpp.ClientConfig{
				Dialer:         cfg.Dialer(),
				TLSConfig:      cfg.TLS(),
				ChannelBinding: cfg.ChannelBinding,
				StreamOptions:  []xmpp.StreamOption{xmpp.Logger(logger)},
			})
			if err != nil {
				return err
			}
			infoMsg(os.Stderr, "online as %s", s.JID())

			if err := s.SendToken(ctx, chatMessage(to, cmd.Args().First())); err != nil {
				s.Close()
				return err
			}
			return s.End(ctx)
		},
	}
}

func chatMessage(to jid.JID, body string) xml.TokenReader {
	return xmlstream.Wrap(
		xmlstream.Wrap(
			xmlstream.Token(xml.CharData(body)),
			xml.StartElement{Name: xml.Name{Space: ns.Client, Local: "body"}},
		),
		xml.StartElement{
			Name: xml.Name{Space: ns.Client, Local: "message"},
			Attr: []xml.Attr{
				{Name: xml.Name{Local: "to"}, Value: to.String()},
				{Name: xml.Name{Local: "type"}, Value: "chat"},
				{Name: xml.Name{Local: "id"}, Value: uuid.NewString()},
			},
		},
	)
}
