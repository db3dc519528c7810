// internal/workers/radar/create-subscription/config.go
package createsubscription

import "time"

type Config struct {
	// TTLDays is the subscription lifetime applied at creation.
	TTLDays int
	Timeout time.Duration
}

func LoadConfig() *Config {
	return &Config{
		TTLDays: 60,
		Timeout: 10 * time.Second,
	}
}
