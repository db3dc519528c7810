// internal/workers/radar/expire-subscriptions/models.go
package expiresubscriptions

import "time"

type Input struct {
	// DryRun counts expired subscriptions without deactivating them.
	DryRun bool `json:"dryRun,omitempty"`
}

type Output struct {
	ExpiredCount int       `json:"expiredCount"`
	DryRun       bool      `json:"dryRun"`
	SweptAt      time.Time `json:"sweptAt"`
}
