// internal/workers/marketplace/match-radar/models.go
package matchradar

import "marketplace-workers/internal/models"

type Input struct {
	Listing models.MarketplaceListing `json:"listing"`
}

type Output struct {
	ListingID  string `json:"listingId"`
	Candidates int    `json:"candidates"`
	Matches    int    `json:"matches"`
	// Notifications feeds the BPMN multi-instance send-notification task.
	Notifications []models.NotificationPayload `json:"notifications"`
}
