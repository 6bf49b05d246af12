package upload

import "github.com/prometheus/client_golang/prometheus"

// Outcome labels for apphub_uploads_total.
const (
	OutcomeStored             = "stored"
	OutcomeRejected           = "rejected"
	OutcomeTooLarge           = "too_large"
	OutcomeInfected           = "infected"
	OutcomeScannerUnavailable = "scanner_unavailable"
	OutcomeError              = "error"
)

// Metrics counts ingestion outcomes. A nil *Metrics records nothing.
type Metrics struct {
	uploads *prometheus.CounterVec
	bytes   *prometheus.CounterVec
}

// NewMetrics registers the ingestion collectors on reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		uploads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "apphub_uploads_total",
				Help: "Uploads processed by the ingestion pipeline, by class and outcome.",
			},
			[]string{"class", "outcome"},
		),
		bytes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "apphub_upload_bytes_total",
				Help: "Bytes of trusted artifacts stored, by class.",
			},
			[]string{"class"},
		),
	}
	for _, c := range []prometheus.Collector{m.uploads, m.bytes} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) observe(class Class, outcome string, size int64) {
	if m == nil {
		return
	}
	m.uploads.WithLabelValues(string(class), outcome).Inc()
	if outcome == OutcomeStored {
		m.bytes.WithLabelValues(string(class)).Add(float64(size))
	}
}
