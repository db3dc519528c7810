// internal/models/radar.go
package models

import "time"

// RadarTTLDays is the subscription lifetime. Past ExpiresAt a radar never
// matches, whether or not the deactivation sweep has run.
const RadarTTLDays = 60

// RadarPriceCap bounds the optional price range filters.
const RadarPriceCap = 9_999_999.99

// RadarSubscription is a saved search that triggers a notification when a
// matching listing is published. NotifiedItemIDs is the authoritative
// de-duplication ledger: a listing id present there is never re-notified.
type RadarSubscription struct {
	ID                    string    `json:"id"`
	SubscriberID          string    `json:"subscriberId"`
	SubscriberType        string    `json:"subscriberType"`
	SubscriberName        string    `json:"subscriberName"`
	World                 string    `json:"world"`
	Category              string    `json:"category,omitempty"`
	Subcategory           string    `json:"subcategory,omitempty"`
	Keywords              []string  `json:"keywords,omitempty"`
	Brand                 string    `json:"brand,omitempty"`
	PriceMin              *float64  `json:"priceMin,omitempty"`
	PriceMax              *float64  `json:"priceMax,omitempty"`
	PreferredState        string    `json:"preferredState,omitempty"`
	PreferredCity         string    `json:"preferredCity,omitempty"`
	Conditions            []string  `json:"conditions,omitempty"` // empty = any
	Phone                 string    `json:"phone"`
	NotifyViaWhatsApp     bool      `json:"notifyViaWhatsapp"`
	Active                bool      `json:"active"`
	NotificationsReceived int       `json:"notificationsReceived"`
	NotifiedItemIDs       []string  `json:"notifiedItemIds"`
	CreatedAt             time.Time `json:"createdAt"`
	ExpiresAt             time.Time `json:"expiresAt"`
}

// Expired reports whether the subscription is past its lifetime at the given
// instant.
func (r *RadarSubscription) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// HasMatchBasis reports whether the radar carries at least one matching
// criterion. A radar with neither category nor keywords can never match and
// is rejected at creation.
func (r *RadarSubscription) HasMatchBasis() bool {
	return r.Category != "" || len(r.Keywords) > 0
}
