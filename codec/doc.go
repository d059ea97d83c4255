// Copyright 2017 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package codec turns the raw bytes of an XMPP stream into discrete packets
// and back.
//
// A stream is one long XML document whose root element is never closed until
// the session ends, so it cannot be handed to a regular XML parser in one go.
// Instead the Codec is fed chunks of bytes as they arrive from the network and
// emits a Packet for the opening of the root element, for every complete
// top-level child (a stanza or nonza), for character data between top-level
// children, and for the closing of the root.
//
// Chunks may be cut anywhere, including in the middle of a tag or of a
// multi-byte UTF-8 sequence: the incomplete tail is kept and retried when the
// next chunk arrives, so splitting the input never changes the resulting
// packets.
package codec // import "github.com/witnet/xmpp-rs-sub000/codec"
