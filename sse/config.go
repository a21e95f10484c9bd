package sse

import "time"

// Config controls the event stream endpoint.
type Config struct {
	Enabled   bool          `yaml:"enabled" mapstructure:"enabled"`
	Path      string        `yaml:"path" mapstructure:"path"`
	KeepAlive time.Duration `yaml:"keep_alive" mapstructure:"keep_alive" validate:"gte=0"`
}

func (c *Config) ApplyDefaults() {
	if c.Path == "" {
		c.Path = "/events"
	}
	if c.KeepAlive == 0 {
		c.KeepAlive = 30 * time.Second
	}
}
