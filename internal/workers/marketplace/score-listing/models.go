// internal/workers/marketplace/score-listing/models.go
package scorelisting

import "marketplace-workers/internal/models"

type Input struct {
	Listing     models.MarketplaceListing `json:"listing"`
	SellerTrust *models.SellerTrust       `json:"sellerTrust,omitempty"`
	// Persist controls whether the computed scores and forced status are
	// written back to the entity store. Dry scoring (previews) leaves it off.
	Persist bool `json:"persist"`
}

type Output struct {
	ListingID     string `json:"listingId"`
	AdScore       int    `json:"adScore"`
	ProductScore  int    `json:"productScore"`
	SellerScore   int    `json:"sellerScore"`
	RankingScore  int    `json:"rankingScore"`
	CanFeature    bool   `json:"canFeature"`
	AutoBlocked   bool   `json:"autoBlocked"`
	BlockedReason string `json:"blockedReason,omitempty"`
	Status        string `json:"status"`
	// Visible routes the BPMN gateway: only visible listings reach the
	// radar matcher and the search index.
	Visible bool `json:"visible"`
}
