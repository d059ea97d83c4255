// Copyright 2024 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package xmpptest

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"sync"
	"time"
)

// Domain is the domain served by the fake server and named in its
// certificate.
const Domain = "example.net"

var (
	certOnce sync.Once
	cert     tls.Certificate
	roots    *x509.CertPool
	certErr  error
)

func loadCert() {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		certErr = err
		return
	}
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: Domain},
		DNSNames:              []string{Domain},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		certErr = err
		return
	}
	leaf, err := x509.ParseCertificate(der)
	if err != nil {
		certErr = err
		return
	}
	cert = tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key, Leaf: leaf}
	roots = x509.NewCertPool()
	roots.AddCert(leaf)
}

// ServerTLS returns a TLS configuration with a self-signed certificate for
// Domain.
// It panics if the certificate cannot be generated.
func ServerTLS() *tls.Config {
	certOnce.Do(loadCert)
	if certErr != nil {
		panic(certErr)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}
}

// ClientTLS returns a TLS configuration that trusts the certificate returned by
// ServerTLS.
func ClientTLS() *tls.Config {
	certOnce.Do(loadCert)
	if certErr != nil {
		panic(certErr)
	}
	return &tls.Config{
		RootCAs:    roots,
		ServerName: Domain,
		MinVersion: tls.VersionTLS12,
	}
}
