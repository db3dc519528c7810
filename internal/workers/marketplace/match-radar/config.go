// internal/workers/marketplace/match-radar/config.go
package matchradar

import "time"

type Config struct {
	// FanOut bounds the number of subscriptions evaluated concurrently.
	FanOut  int
	Timeout time.Duration
}

func LoadConfig() *Config {
	return &Config{
		FanOut:  8,
		Timeout: 30 * time.Second,
	}
}
