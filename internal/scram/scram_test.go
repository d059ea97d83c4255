// Copyright 2024 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package scram_test

import (
	"crypto/sha1" // #nosec G505
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"hash"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"mellium.im/sasl"

	"github.com/witnet/xmpp-rs-sub000/internal/scram"
)

func newClient(name string, fn func() hash.Hash, user string, cfg scram.Config) *sasl.Negotiator {
	return sasl.NewClient(
		scram.Mechanism(name, fn, cfg),
		sasl.Credentials(func() ([]byte, []byte, []byte) {
			return []byte(user), []byte("pencil"), nil
		}),
	)
}

var vectors = [...]struct {
	name        string
	fn          func() hash.Hash
	nonce       string
	serverFirst string
	clientFinal string
	serverFinal string
}{
	0: {
		name:        "SCRAM-SHA-1",
		fn:          sha1.New,
		nonce:       "fyko+d2lbbFgONRv9qkxdawL",
		serverFirst: "r=fyko+d2lbbFgONRv9qkxdawL3rfcNHYJY1ZVvWVs7j,s=QSXCR+Q6sek8bf92,i=4096",
		clientFinal: "c=biws,r=fyko+d2lbbFgONRv9qkxdawL3rfcNHYJY1ZVvWVs7j,p=v0X8v3Bz2T0CJGbJQyF0X+HI4Ts=",
		serverFinal: "v=rmF9pqV8S7suAoZWja4dJRkFsKQ=",
	},
	1: {
		name:        "SCRAM-SHA-256",
		fn:          sha256.New,
		nonce:       "rOprNGfwEbeRWgbNEkqO",
		serverFirst: "r=rOprNGfwEbeRWgbNEkqO%hvYDpWUa2RaTCAfuxFIlj)hNlF$k0,s=W22ZaJ0SNY7soEsUEjb6gQ==,i=4096",
		clientFinal: "c=biws,r=rOprNGfwEbeRWgbNEkqO%hvYDpWUa2RaTCAfuxFIlj)hNlF$k0,p=dHzbZapWIk4jUhN+Ute9ytag9zjfMHgsqmmiz7AndVQ=",
		serverFinal: "v=6rriTRBi23WpRR/wtup+mMhUZUn/dB5nLTJRsjl95G4=",
	},
}

func TestVectors(t *testing.T) {
	for i, tc := range vectors {
		t.Run(fmt.Sprintf("%d", i), func(t *testing.T) {
			c := newClient(tc.name, tc.fn, "user", scram.Config{Nonce: []byte(tc.nonce)})

			more, resp, err := c.Step(nil)
			require.NoError(t, err)
			assert.True(t, more)
			assert.Equal(t, "n,,n=user,r="+tc.nonce, string(resp))

			more, resp, err = c.Step([]byte(tc.serverFirst))
			require.NoError(t, err)
			assert.True(t, more)
			assert.Equal(t, tc.clientFinal, string(resp))

			more, resp, err = c.Step([]byte(tc.serverFinal))
			require.NoError(t, err)
			assert.False(t, more)
			assert.Empty(t, resp)
		})
	}
}

func TestDeterministic(t *testing.T) {
	tc := vectors[0]
	var out [2]string
	for i := range out {
		c := newClient(tc.name, tc.fn, "user", scram.Config{Nonce: []byte(tc.nonce)})
		_, _, err := c.Step(nil)
		require.NoError(t, err)
		_, resp, err := c.Step([]byte(tc.serverFirst))
		require.NoError(t, err)
		out[i] = string(resp)
	}
	assert.Equal(t, out[0], out[1])
}

func TestServerFinal(t *testing.T) {
	for i, tc := range [...]struct {
		serverFinal string
		err         error
	}{
		0: {"v=AAAAv3Bz2T0CJGbJQyF0X+HI4Ts=", scram.ErrSignature},
		1: {"e=invalid-proof", scram.ServerError("invalid-proof")},
		2: {"x=unknown", sasl.ErrInvalidChallenge},
		3: {"", sasl.ErrInvalidChallenge},
	} {
		t.Run(fmt.Sprintf("%d", i), func(t *testing.T) {
			v := vectors[0]
			c := newClient(v.name, v.fn, "user", scram.Config{Nonce: []byte(v.nonce)})
			_, _, err := c.Step(nil)
			require.NoError(t, err)
			_, _, err = c.Step([]byte(v.serverFirst))
			require.NoError(t, err)
			_, _, err = c.Step([]byte(tc.serverFinal))
			assert.ErrorIs(t, err, tc.err)
		})
	}
}

func TestServerFirst(t *testing.T) {
	for i, tc := range [...]struct {
		serverFirst string
		err         error
	}{
		0: {"r=somethingelse,s=QSXCR+Q6sek8bf92,i=4096", scram.ErrNonceMismatch},
		1: {"r=fyko+d2lbbFgONRv9qkxdawL,s=QSXCR+Q6sek8bf92,i=4096", scram.ErrNonceMismatch},
		2: {"r=fyko+d2lbbFgONRv9qkxdawLabc,i=4096", scram.ErrNoSalt},
		3: {"r=fyko+d2lbbFgONRv9qkxdawLabc,s=QSXCR+Q6sek8bf92", scram.ErrIterations},
		4: {"m=ext,r=fyko+d2lbbFgONRv9qkxdawLabc,s=QSXCR+Q6sek8bf92,i=4096", scram.ErrReservedAttr},
	} {
		t.Run(fmt.Sprintf("%d", i), func(t *testing.T) {
			v := vectors[0]
			c := newClient(v.name, v.fn, "user", scram.Config{Nonce: []byte(v.nonce)})
			_, _, err := c.Step(nil)
			require.NoError(t, err)
			_, _, err = c.Step([]byte(tc.serverFirst))
			assert.ErrorIs(t, err, tc.err)
		})
	}
}

func TestChannelBinding(t *testing.T) {
	binding := []byte{1, 2, 3, 4}
	nonce := "fyko+d2lbbFgONRv9qkxdawL"
	serverFirst := "r=" + nonce + "srv,s=QSXCR+Q6sek8bf92,i=4096"

	c := newClient("SCRAM-SHA-256-PLUS", sha256.New, "user", scram.Config{
		Binding:     binding,
		BindingType: scram.TLSExporter,
		Nonce:       []byte(nonce),
	})
	_, resp, err := c.Step(nil)
	require.NoError(t, err)
	assert.Equal(t, "p=tls-exporter,,n=user,r="+nonce, string(resp))

	_, resp, err = c.Step([]byte(serverFirst))
	require.NoError(t, err)
	cbind := base64.StdEncoding.EncodeToString(append([]byte("p=tls-exporter,,"), binding...))
	assert.Contains(t, string(resp), "c="+cbind+",r="+nonce+"srv,p=")
}

func TestChannelBindingNotUsed(t *testing.T) {
	c := newClient("SCRAM-SHA-1", sha1.New, "user", scram.Config{
		Binding:     []byte{1},
		BindingType: scram.TLSUnique,
		Nonce:       []byte("abc"),
	})
	_, resp, err := c.Step(nil)
	require.NoError(t, err)
	assert.Equal(t, "y,,n=user,r=abc", string(resp))
}

func TestPlusRequiresBinding(t *testing.T) {
	c := newClient("SCRAM-SHA-1-PLUS", sha1.New, "user", scram.Config{})
	_, _, err := c.Step(nil)
	assert.ErrorIs(t, err, scram.ErrNoBinding)
}

func TestEscapeUsername(t *testing.T) {
	c := newClient("SCRAM-SHA-1", sha1.New, "us=er,x", scram.Config{Nonce: []byte("abc")})
	_, resp, err := c.Step(nil)
	require.NoError(t, err)
	assert.Equal(t, "n,,n=us=3Der=2Cx,r=abc", string(resp))
}

func TestRandomNonce(t *testing.T) {
	c := newClient("SCRAM-SHA-1", sha1.New, "user", scram.Config{})
	_, resp, err := c.Step(nil)
	require.NoError(t, err)
	assert.Regexp(t, `^n,,n=user,r=[A-Za-z0-9+/]{24}$`, string(resp))
}

func TestHash(t *testing.T) {
	assert.NotNil(t, scram.Hash("SCRAM-SHA-256-PLUS"))
	assert.NotNil(t, scram.Hash("SCRAM-SHA-1"))
	assert.Nil(t, scram.Hash("PLAIN"))
}
