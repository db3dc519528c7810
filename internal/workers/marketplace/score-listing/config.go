// internal/workers/marketplace/score-listing/config.go
package scorelisting

import "time"

// Config carries the scoring constants. The weight proportions are the
// contract: product and seller must each contribute at least 25% of the
// composite; ranking orders results and never gates visibility.
type Config struct {
	AdWeight      float64
	ProductWeight float64
	SellerWeight  float64

	FeatureThreshold  int
	MinDescriptionLen int
	Timeout           time.Duration
}

func LoadConfig() *Config {
	return &Config{
		AdWeight:          0.35,
		ProductWeight:     0.35,
		SellerWeight:      0.30,
		FeatureThreshold:  70,
		MinDescriptionLen: 20,
		Timeout:           10 * time.Second,
	}
}
