// DEADEND - No-response TCP server
//
// Copyright (c) 2024 PaperCut Software http://www.papercut.com/
// Use of this source code is governed by an MIT or GPL Version 2 license.
// See the project's LICENSE file for more information.
//

// Package telemetry exports connection counts as Prometheus metrics so an
// exhaustion run can be graphed alongside the proxy under test.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "deadend"

// Metrics implements tarpit.Observer.
type Metrics struct {
	registry *prometheus.Registry
	held     *prometheus.GaugeVec
	accepted *prometheus.CounterVec
	released *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		held: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "held_connections",
			Help:      "Connections currently held open without a response.",
		}, []string{"listener"}),
		accepted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "accepted_connections_total",
			Help:      "Connections accepted since start.",
		}, []string{"listener"}),
		released: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "released_connections_total",
			Help:      "Held connections closed, by reason.",
		}, []string{"listener", "reason"}),
	}
	m.registry.MustRegister(m.held, m.accepted, m.released)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Accepted(listener string) {
	m.accepted.WithLabelValues(listener).Inc()
	m.held.WithLabelValues(listener).Inc()
}

func (m *Metrics) Released(listener string, reason string) {
	m.released.WithLabelValues(listener, reason).Inc()
	m.held.WithLabelValues(listener).Dec()
}
