// Copyright 2024 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package main

import (
	"crypto/tls"
	"os"

	"github.com/hashicorp/hcl"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v3"

	"github.com/witnet/xmpp-rs-sub000/dial"
	"github.com/witnet/xmpp-rs-sub000/jid"
)

// Config is the connection configuration.
// It is read from an optional HCL file and overridden by flags.
type Config struct {
	JID                string `hcl:"jid"`
	Password           string `hcl:"password"`
	Host               string `hcl:"host"`
	Port               int    `hcl:"port"`
	Resource           string `hcl:"resource"`
	InsecureSkipVerify bool   `hcl:"insecure_skip_verify"`
	Reconnect          bool   `hcl:"reconnect"`
	ChannelBinding     bool   `hcl:"channel_binding"`
	Verbose            bool   `hcl:"verbose"`
}

func parseConfig(b []byte) (Config, error) {
	var cfg Config
	if err := hcl.Unmarshal(b, &cfg); err != nil {
		return cfg, errors.Wrap(err, "config")
	}
	return cfg, nil
}

func readConfig(path string) (Config, error) {
	if path == "" {
		return Config{}, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "config source=%s", path)
	}
	return parseConfig(b)
}

// loadConfig reads the file named by the config flag and applies the flags
// that were set on the command line or in the environment.
func loadConfig(cmd *cli.Command) (Config, error) {
	cfg, err := readConfig(cmd.String(configFlag))
	if err != nil {
		return cfg, err
	}
	for name, dst := range map[string]*string{
		jidFlag:      &cfg.JID,
		passwordFlag: &cfg.Password,
		hostFlag:     &cfg.Host,
		resourceFlag: &cfg.Resource,
	} {
		if cmd.IsSet(name) {
			*dst = cmd.String(name)
		}
	}
	for name, dst := range map[string]*bool{
		insecureFlag:       &cfg.InsecureSkipVerify,
		reconnectFlag:      &cfg.Reconnect,
		channelBindingFlag: &cfg.ChannelBinding,
		verboseFlag:        &cfg.Verbose,
	} {
		if cmd.IsSet(name) {
			*dst = cmd.Bool(name)
		}
	}
	if cmd.IsSet(portFlag) {
		cfg.Port = int(cmd.Uint16(portFlag))
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	switch {
	case c.JID == "":
		return errors.New("no JID configured")
	case c.Password == "":
		return errors.New("no password configured")
	case c.Port < 0 || c.Port > 65535:
		return errors.Errorf("invalid port %d", c.Port)
	}
	return nil
}

// Addr returns the JID to log in as, with the configured resource.
func (c Config) Addr() (jid.JID, error) {
	j, err := jid.Parse(c.JID)
	if err != nil {
		return j, errors.Wrapf(err, "invalid JID %q", c.JID)
	}
	if c.Resource != "" {
		return j.WithResource(c.Resource)
	}
	return j, nil
}

// Dialer returns the dialer for the configured host.
func (c Config) Dialer() dial.Dialer {
	return dial.Dialer{
		Host: c.Host,
		Port: uint16(c.Port),
	}
}

// TLS returns the TLS configuration.
// The server name is filled in from the JID during STARTTLS.
func (c Config) TLS() *tls.Config {
	return &tls.Config{
		MinVersion: tls.VersionTLS12,
		/* #nosec */
		InsecureSkipVerify: c.InsecureSkipVerify,
	}
}
