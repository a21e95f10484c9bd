package engine

import "time"

const (
	DefaultIdleBackoffMin = 100 * time.Microsecond
	DefaultIdleBackoffMax = 10 * time.Millisecond
)

// Settings tunes the scheduling loops. The zero value is valid once
// ApplyDefaults has run.
type Settings struct {
	// IdleBackoffMin is the first wait after a pass that produced nothing.
	IdleBackoffMin time.Duration `yaml:"idle_backoff_min" mapstructure:"idle_backoff_min" validate:"gte=0"`
	// IdleBackoffMax caps the idle wait, and with it the latency between an
	// upstream filter completing and its consumer noticing.
	IdleBackoffMax time.Duration `yaml:"idle_backoff_max" mapstructure:"idle_backoff_max" validate:"gte=0"`
}

// DefaultSettings returns Settings with every default applied.
func DefaultSettings() Settings {
	var s Settings
	s.ApplyDefaults()
	return s
}

// ApplyDefaults fills unset durations and keeps Max >= Min.
func (s *Settings) ApplyDefaults() {
	if s.IdleBackoffMin <= 0 {
		s.IdleBackoffMin = DefaultIdleBackoffMin
	}
	if s.IdleBackoffMax <= 0 {
		s.IdleBackoffMax = DefaultIdleBackoffMax
	}
	if s.IdleBackoffMax < s.IdleBackoffMin {
		s.IdleBackoffMax = s.IdleBackoffMin
	}
}
