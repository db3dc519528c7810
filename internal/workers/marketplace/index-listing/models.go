// internal/workers/marketplace/index-listing/models.go
package indexlisting

import "marketplace-workers/internal/models"

type Input struct {
	Listing models.MarketplaceListing `json:"listing"`
}

type Output struct {
	ListingID string `json:"listingId"`
	// Action is "indexed" when the listing was written to the search index
	// or "removed" when it was deleted from it.
	Action string `json:"action"`
}

// listingDocument is the search-index projection of a listing. Only fields
// the storefront queries or ranks on are indexed.
type listingDocument struct {
	ID           string   `json:"id"`
	World        string   `json:"world"`
	Category     string   `json:"category"`
	Subcategory  string   `json:"subcategory"`
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	Brand        string   `json:"brand"`
	Condition    string   `json:"condition"`
	Price        float64  `json:"price"`
	Location     string   `json:"location"`
	RankingScore int      `json:"rankingScore"`
	CanFeature   bool     `json:"canFeature"`
	CreatedAt    string   `json:"createdAt,omitempty"`
	Specs        []string `json:"specs,omitempty"`
}
