package models

import "time"

type HealthState string

const (
	SourceHealthy  HealthState = "healthy"
	SourceDegraded HealthState = "degraded"
)

type SystemMode string

const (
	ModeHealthy  SystemMode = "healthy"
	ModeDegraded SystemMode = "degraded"
	ModeOffline  SystemMode = "offline"
)

type SourceHealth struct {
	Name                string        `json:"name"`
	State               HealthState   `json:"state"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	Successes           int64         `json:"successes"`
	Failures            int64         `json:"failures"`
	SuccessRate         float64       `json:"success_rate"`
	RateLimited         bool          `json:"rate_limited"`
	NextDelay           time.Duration `json:"next_delay"`
	LastSuccess         time.Time     `json:"last_success,omitempty"`
	LastError           string        `json:"last_error,omitempty"`
}

// SystemStatus is the payload of the system_status event.
type SystemStatus struct {
	Mode                 SystemMode     `json:"mode"`
	OfflineMode          bool           `json:"offline_mode"`
	Sources              []SourceHealth `json:"sources"`
	OfflineInstruments   []string       `json:"offline_instruments"`
	AnalyzingInstruments []string       `json:"analyzing_instruments"`
	Timestamp            time.Time      `json:"timestamp"`
}
