package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the service's prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	TokensIssued *prometheus.CounterVec
	Scans        *prometheus.CounterVec
	ScanDuration prometheus.Histogram
	Records      *prometheus.CounterVec
}

// New registers collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TokensIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "qrattend",
			Name:      "tokens_issued_total",
			Help:      "Attendance tokens minted, by result.",
		}, []string{"result"}),
		Scans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "qrattend",
			Name:      "scans_total",
			Help:      "Scan verifications, by outcome.",
		}, []string{"outcome"}),
		ScanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "qrattend",
			Name:      "scan_duration_seconds",
			Help:      "Time spent verifying and recording a scan.",
			Buckets:   prometheus.DefBuckets,
		}),
		Records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "qrattend",
			Name:      "records_total",
			Help:      "Attendance records written, by status.",
		}, []string{"status"}),
	}
	reg.MustRegister(m.TokensIssued, m.Scans, m.ScanDuration, m.Records)
	return m
}

// TokenIssued counts an issuance attempt.
func (m *Metrics) TokenIssued(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.TokensIssued.WithLabelValues(result).Inc()
}

// ScanFinished counts a scan and observes its latency.
func (m *Metrics) ScanFinished(outcome string, started time.Time) {
	if m == nil {
		return
	}
	m.Scans.WithLabelValues(outcome).Inc()
	m.ScanDuration.Observe(time.Since(started).Seconds())
}

// RecordWritten counts a new attendance record.
func (m *Metrics) RecordWritten(status string) {
	if m == nil {
		return
	}
	m.Records.WithLabelValues(status).Inc()
}
