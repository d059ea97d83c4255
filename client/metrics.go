// Copyright 2024 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package client

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "xmpp_client"

type metrics struct {
	connectAttempts prometheus.Counter
	connectFailures prometheus.Counter
	stanzasIn       prometheus.Counter
	stanzasOut      prometheus.Counter
	connected       prometheus.Gauge
}

// newMetrics creates the client collectors.
// With a nil registry the collectors still count but are not exported.
func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)

	return &metrics{
		connectAttempts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "connect_attempts_total",
			Help:      "Total number of connection pipelines started",
		}),
		connectFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "connect_failures_total",
			Help:      "Total number of connection pipelines that failed",
		}),
		stanzasIn: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "stanzas_received_total",
			Help:      "Total number of stanzas received from the server",
		}),
		stanzasOut: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "stanzas_sent_total",
			Help:      "Total number of stanzas written to the server",
		}),
		connected: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "connected",
			Help:      "1 while the client has a negotiated stream, 0 otherwise",
		}),
	}
}
