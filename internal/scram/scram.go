// Copyright 2024 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package scram implements the client side of the SCRAM family of SASL
// mechanisms (RFC 5802, RFC 7677) as mellium.im/sasl mechanisms.
//
// Unlike the mechanisms shipped with the sasl package, the client nonce and
// the channel binding data are supplied by the caller so that every message
// is a pure function of its inputs.
package scram

import (
	"bytes"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1" // #nosec G505
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"hash"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/text/secure/precis"
	"mellium.im/sasl"
)

// Channel binding types.
const (
	TLSExporter = "tls-exporter"
	TLSUnique   = "tls-unique"
)

// Errors returned while stepping the mechanism.
var (
	ErrReservedAttr  = errors.New("scram: server sent reserved attribute m")
	ErrNonceMismatch = errors.New("scram: server nonce does not start with the client nonce")
	ErrNoSalt        = errors.New("scram: server sent empty salt")
	ErrIterations    = errors.New("scram: iteration count is invalid")
	ErrNoBinding     = errors.New("scram: -PLUS mechanism requires channel binding data")
	ErrSignature     = errors.New("scram: server signature mismatch")
)

// ServerError is the e= attribute of a server-final-message.
type ServerError string

func (e ServerError) Error() string {
	return "scram: server error: " + string(e)
}

// Config holds the inputs of a SCRAM exchange that do not come from the
// credentials.
type Config struct {
	// Binding is the channel binding data. If it is nil no channel binding is
	// used.
	Binding []byte

	// BindingType is the channel binding type sent in the GS2 header, for
	// example TLSExporter.
	BindingType string

	// Nonce is the client nonce. If it is empty a random nonce is generated.
	// It must not contain a comma.
	Nonce []byte
}

// Hash returns the hash function of a SCRAM mechanism name, or nil if name is
// not a supported SCRAM mechanism.
func Hash(name string) func() hash.Hash {
	switch strings.TrimSuffix(name, "-PLUS") {
	case "SCRAM-SHA-256":
		return sha256.New
	case "SCRAM-SHA-1":
		return sha1.New
	}
	return nil
}

// Mechanism returns a SCRAM mechanism called name using the hash function fn.
// Names ending in -PLUS require channel binding data in cfg.
func Mechanism(name string, fn func() hash.Hash, cfg Config) sasl.Mechanism {
	return sasl.Mechanism{
		Name: name,
		Start: func(n *sasl.Negotiator) (bool, []byte, interface{}, error) {
			return start(name, cfg, n)
		},
		Next: func(n *sasl.Negotiator, challenge []byte, data interface{}) (bool, []byte, interface{}, error) {
			if len(challenge) == 0 {
				return false, nil, nil, sasl.ErrInvalidChallenge
			}
			st, ok := data.(*exchange)
			if !ok {
				return false, nil, nil, sasl.ErrInvalidState
			}
			switch n.State() & sasl.StepMask {
			case sasl.AuthTextSent:
				return st.clientFinal(n, fn, challenge)
			case sasl.ResponseSent:
				return false, nil, nil, st.verify(challenge)
			}
			return false, nil, nil, sasl.ErrTooManySteps
		},
	}
}

// exchange is the state carried between steps.
type exchange struct {
	gs2             []byte
	clientFirstBare []byte
	nonce           []byte
	binding         []byte
	serverSignature []byte
}

func start(name string, cfg Config, n *sasl.Negotiator) (bool, []byte, interface{}, error) {
	user, _, identity := n.Credentials()

	st := &exchange{nonce: cfg.Nonce}
	if len(st.nonce) == 0 {
		st.nonce = newNonce()
	}

	switch {
	case strings.HasSuffix(name, "-PLUS"):
		if cfg.Binding == nil || cfg.BindingType == "" {
			return false, nil, nil, ErrNoBinding
		}
		st.gs2 = append(st.gs2, "p="+cfg.BindingType+","...)
		st.binding = cfg.Binding
	case cfg.Binding != nil:
		st.gs2 = append(st.gs2, "y,"...)
	default:
		st.gs2 = append(st.gs2, "n,"...)
	}
	if len(identity) > 0 {
		st.gs2 = append(st.gs2, "a="...)
		st.gs2 = appendEscaped(st.gs2, identity)
	}
	st.gs2 = append(st.gs2, ',')

	st.clientFirstBare = append(st.clientFirstBare, "n="...)
	st.clientFirstBare = appendEscaped(st.clientFirstBare, user)
	st.clientFirstBare = append(st.clientFirstBare, ",r="...)
	st.clientFirstBare = append(st.clientFirstBare, st.nonce...)

	resp := make([]byte, 0, len(st.gs2)+len(st.clientFirstBare))
	resp = append(resp, st.gs2...)
	resp = append(resp, st.clientFirstBare...)
	return true, resp, st, nil
}

func (st *exchange) clientFinal(n *sasl.Negotiator, fn func() hash.Hash, serverFirst []byte) (bool, []byte, interface{}, error) {
	iter := -1
	var salt, nonce []byte
	for _, field := range bytes.Split(serverFirst, []byte{','}) {
		if len(field) < 2 || field[1] != '=' {
			continue
		}
		val := field[2:]
		var err error
		switch field[0] {
		case 'm':
			return false, nil, nil, ErrReservedAttr
		case 'r':
			nonce = val
		case 's':
			salt, err = base64.StdEncoding.DecodeString(string(val))
		case 'i':
			iter, err = strconv.Atoi(string(val))
		}
		if err != nil {
			return false, nil, nil, err
		}
	}
	switch {
	case iter <= 0:
		return false, nil, nil, ErrIterations
	case len(nonce) <= len(st.nonce) || !bytes.HasPrefix(nonce, st.nonce):
		return false, nil, nil, ErrNonceMismatch
	case len(salt) == 0:
		return false, nil, nil, ErrNoSalt
	}

	_, password, _ := n.Credentials()
	password, err := precis.OpaqueString.Bytes(password)
	if err != nil {
		return false, nil, nil, err
	}

	cbind := make([]byte, 0, len(st.gs2)+len(st.binding))
	cbind = append(cbind, st.gs2...)
	cbind = append(cbind, st.binding...)

	final := make([]byte, 0, 128)
	final = append(final, "c="...)
	final = append(final, base64.StdEncoding.EncodeToString(cbind)...)
	final = append(final, ",r="...)
	final = append(final, nonce...)

	authMessage := make([]byte, 0, len(st.clientFirstBare)+len(serverFirst)+len(final)+2)
	authMessage = append(authMessage, st.clientFirstBare...)
	authMessage = append(authMessage, ',')
	authMessage = append(authMessage, serverFirst...)
	authMessage = append(authMessage, ',')
	authMessage = append(authMessage, final...)

	salted := pbkdf2.Key(password, salt, iter, fn().Size(), fn)
	clientKey := mac(fn, salted, []byte("Client Key"))
	serverKey := mac(fn, salted, []byte("Server Key"))
	h := fn()
	h.Write(clientKey)
	storedKey := h.Sum(nil)
	clientSignature := mac(fn, storedKey, authMessage)
	st.serverSignature = mac(fn, serverKey, authMessage)

	proof := make([]byte, len(clientKey))
	for i := range clientKey {
		proof[i] = clientKey[i] ^ clientSignature[i]
	}
	final = append(final, ",p="...)
	final = append(final, base64.StdEncoding.EncodeToString(proof)...)
	return true, final, st, nil
}

func (st *exchange) verify(serverFinal []byte) error {
	for _, field := range bytes.Split(serverFinal, []byte{','}) {
		switch {
		case bytes.HasPrefix(field, []byte("e=")):
			return ServerError(field[2:])
		case bytes.HasPrefix(field, []byte("v=")):
			sig, err := base64.StdEncoding.DecodeString(string(field[2:]))
			if err != nil {
				return err
			}
			if !hmac.Equal(sig, st.serverSignature) {
				return ErrSignature
			}
			return nil
		}
	}
	return sasl.ErrInvalidChallenge
}

func mac(fn func() hash.Hash, key, msg []byte) []byte {
	h := hmac.New(fn, key)
	h.Write(msg)
	return h.Sum(nil)
}

// appendEscaped escapes "=" and "," in a saslname.
func appendEscaped(dst, name []byte) []byte {
	for _, b := range name {
		switch b {
		case '=':
			dst = append(dst, "=3D"...)
		case ',':
			dst = append(dst, "=2C"...)
		default:
			dst = append(dst, b)
		}
	}
	return dst
}

func newNonce() []byte {
	b := make([]byte, 18)
	if _, err := rand.Read(b); err != nil {
		panic("scram: cannot read random nonce: " + err.Error())
	}
	out := make([]byte, base64.RawStdEncoding.EncodedLen(len(b)))
	base64.RawStdEncoding.Encode(out, b)
	return out
}
