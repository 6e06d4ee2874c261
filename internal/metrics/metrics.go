// Package metrics holds the Prometheus collectors shared by the WebSocket
// surfaces. A nil *Metrics is valid and records nothing.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Surface labels.
const (
	SurfaceMessaging = "messaging"
	SurfaceRoom      = "room"
)

// Metrics groups the collectors.
type Metrics struct {
	connections       *prometheus.GaugeVec
	handshakeRejected *prometheus.CounterVec
	directMessages    *prometheus.CounterVec
	roomBroadcasts    *prometheus.CounterVec
	rateLimited       *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		connections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "wanderchat",
			Name:      "open_connections",
			Help:      "Currently open WebSocket connections.",
		}, []string{"surface"}),
		handshakeRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wanderchat",
			Name:      "handshake_rejected_total",
			Help:      "WebSocket upgrades rejected before the handshake, by HTTP status.",
		}, []string{"status"}),
		directMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wanderchat",
			Name:      "direct_messages_total",
			Help:      "Direct messages routed, by outcome.",
		}, []string{"outcome"}),
		roomBroadcasts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wanderchat",
			Name:      "room_broadcasts_total",
			Help:      "Frames broadcast to the public room, by frame type.",
		}, []string{"type"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wanderchat",
			Name:      "rate_limited_frames_total",
			Help:      "Inbound frames discarded by the per-connection rate limiter.",
		}, []string{"surface"}),
	}
	if reg != nil {
		reg.MustRegister(m.connections, m.handshakeRejected, m.directMessages, m.roomBroadcasts, m.rateLimited)
	}
	return m
}

// ConnectionOpened increments the open connection gauge for surface.
func (m *Metrics) ConnectionOpened(surface string) {
	if m == nil {
		return
	}
	m.connections.WithLabelValues(surface).Inc()
}

// ConnectionClosed decrements the open connection gauge for surface.
func (m *Metrics) ConnectionClosed(surface string) {
	if m == nil {
		return
	}
	m.connections.WithLabelValues(surface).Dec()
}

// HandshakeRejected counts a rejected upgrade.
func (m *Metrics) HandshakeRejected(status int) {
	if m == nil {
		return
	}
	m.handshakeRejected.WithLabelValues(strconv.Itoa(status)).Inc()
}

// DirectMessage counts a routed direct message; outcome is "delivered" or "dropped".
func (m *Metrics) DirectMessage(outcome string) {
	if m == nil {
		return
	}
	m.directMessages.WithLabelValues(outcome).Inc()
}

// RoomBroadcast counts a room broadcast of frameType.
func (m *Metrics) RoomBroadcast(frameType string) {
	if m == nil {
		return
	}
	m.roomBroadcasts.WithLabelValues(frameType).Inc()
}

// RateLimited counts a discarded inbound frame.
func (m *Metrics) RateLimited(surface string) {
	if m == nil {
		return
	}
	m.rateLimited.WithLabelValues(surface).Inc()
}
