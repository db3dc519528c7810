// internal/workers/radar/expire-subscriptions/config.go
package expiresubscriptions

import "time"

type Config struct {
	Timeout time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Timeout: 30 * time.Second,
	}
}
