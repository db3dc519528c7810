// internal/workers/radar/create-subscription/models.go
package createsubscription

import (
	"time"

	"marketplace-workers/internal/models"
)

type Input struct {
	Subscription models.RadarSubscription `json:"subscription"`
}

type Output struct {
	SubscriptionID string    `json:"subscriptionId"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"createdAt"`
	ExpiresAt      time.Time `json:"expiresAt"`
}
