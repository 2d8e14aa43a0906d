package internal

import "time"

// Exchange is one recorded round trip with the Loquax service.
type Exchange struct {
	ID           string    `json:"id"`
	Text         string    `json:"text"`
	WithScansion bool      `json:"with_scansion"`
	WithIPA      bool      `json:"with_ipa"`
	Translation  string    `json:"translation"`
	ErrorClass   string    `json:"error_class,omitempty"`
	Error        string    `json:"error,omitempty"`
	Cached       bool      `json:"cached"`
	LatencyMs    int64     `json:"latency_ms"`
	Timestamp    time.Time `json:"timestamp"`
}
