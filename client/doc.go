// Copyright 2014 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package client provides a long lived XMPP client connection that can be
// polled for events and reconnects on demand.
//
// A Client moves between three states.
// While disconnected, polling it starts the complete connection pipeline
// (dial, STARTTLS, SASL and resource binding) in the background and the client
// becomes connecting.
// The pipeline resolves to an Online event and the connected state, or to a
// Disconnected event.
// While connected, polling first writes any queued packets and then returns the
// next stanza received from the server.
//
// A Client is owned by a single goroutine and must not be used concurrently.
// To close the connection in an orderly way call SendEnd and keep calling Next
// until a Disconnected event is returned.
package client // import "github.com/witnet/xmpp-rs-sub000/client"
