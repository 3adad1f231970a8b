package socket

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"
)

type Metrics struct {
	ConnectedClients atomic.Int64

	TotalConnections    atomic.Uint64
	TotalDisconnects    atomic.Uint64
	RejectedConnections atomic.Uint64
	MessagesIn          atomic.Uint64
	MessagesOut         atomic.Uint64
	Broadcasts          atomic.Uint64
	SendFailures        atomic.Uint64

	DecodeErrors       atomic.Uint64
	MalformedEnvelopes atomic.Uint64
	UnknownEvents      atomic.Uint64
	UnknownIdentities  atomic.Uint64

	StartTime time.Time
}

func NewMetrics() *Metrics {
	return &Metrics{StartTime: time.Now()}
}

type metricsSnapshot struct {
	UptimeSeconds float64 `json:"uptimeSeconds"`

	ConnectedClients int64 `json:"connectedClients"`

	TotalConnections    uint64 `json:"totalConnections"`
	TotalDisconnects    uint64 `json:"totalDisconnects"`
	RejectedConnections uint64 `json:"rejectedConnections"`

	MessagesIn   uint64 `json:"messagesIn"`
	MessagesOut  uint64 `json:"messagesOut"`
	Broadcasts   uint64 `json:"broadcasts"`
	SendFailures uint64 `json:"sendFailures"`

	DecodeErrors       uint64 `json:"decodeErrors"`
	MalformedEnvelopes uint64 `json:"malformedEnvelopes"`
	UnknownEvents      uint64 `json:"unknownEvents"`
	UnknownIdentities  uint64 `json:"unknownIdentities"`
}

func (m *Metrics) Snapshot() metricsSnapshot {
	return metricsSnapshot{
		UptimeSeconds: time.Since(m.StartTime).Seconds(),

		ConnectedClients: m.ConnectedClients.Load(),

		TotalConnections:    m.TotalConnections.Load(),
		TotalDisconnects:    m.TotalDisconnects.Load(),
		RejectedConnections: m.RejectedConnections.Load(),

		MessagesIn:   m.MessagesIn.Load(),
		MessagesOut:  m.MessagesOut.Load(),
		Broadcasts:   m.Broadcasts.Load(),
		SendFailures: m.SendFailures.Load(),

		DecodeErrors:       m.DecodeErrors.Load(),
		MalformedEnvelopes: m.MalformedEnvelopes.Load(),
		UnknownEvents:      m.UnknownEvents.Load(),
		UnknownIdentities:  m.UnknownIdentities.Load(),
	}
}

func MetricsHandler(m *Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := m.Snapshot()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(snap)
	}
}
