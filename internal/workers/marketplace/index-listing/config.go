// internal/workers/marketplace/index-listing/config.go
package indexlisting

import "time"

type Config struct {
	// Index is the Elasticsearch index holding visible listings.
	Index   string
	Timeout time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Index:   "marketplace-listings",
		Timeout: 15 * time.Second,
	}
}
