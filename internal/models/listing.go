// internal/models/listing.go
package models

import "time"

// World identifies the marketplace area a listing or radar belongs to.
const (
	WorldOdontologia = "ODONTOLOGIA"
	WorldMedicina    = "MEDICINA"
	WorldAmbos       = "AMBOS"
)

// Listing conditions.
const (
	ConditionNovo     = "NOVO"
	ConditionSeminovo = "SEMINOVO"
	ConditionUsado    = "USADO"
)

// Listing statuses.
const (
	ListingStatusActive    = "ACTIVE"
	ListingStatusPaused    = "PAUSED"
	ListingStatusSold      = "SOLD"
	ListingStatusClosed    = "CLOSED"
	ListingStatusSuspended = "SUSPENDED"
)

// MarketplaceListing is an equipment/product advertisement published by a
// clinic or professional. Score fields are derived by the score-listing
// worker and stored alongside the row.
type MarketplaceListing struct {
	ID              string            `json:"id"`
	World           string            `json:"world"`
	Category        string            `json:"category"`
	Subcategory     string            `json:"subcategory,omitempty"`
	Title           string            `json:"title"`
	Description     string            `json:"description"`
	Brand           string            `json:"brand,omitempty"`
	Condition       string            `json:"condition"`
	Price           float64           `json:"price"`
	Location        string            `json:"location"` // "city - state"
	AdvertiserID    string            `json:"advertiserId"`
	AdvertiserType  string            `json:"advertiserType"` // "clinic" or "professional"
	PhotoFront      string            `json:"photoFront,omitempty"`
	PhotoSide       string            `json:"photoSide,omitempty"`
	PhotoSerial     string            `json:"photoSerial,omitempty"`
	TechnicalSpecs  map[string]string `json:"technicalSpecs,omitempty"`
	ManufacturerURL string            `json:"manufacturerUrl,omitempty"`
	Status          string            `json:"status"`
	AdScore         int               `json:"adScore"`
	ProductScore    int               `json:"productScore"`
	SellerScore     int               `json:"sellerScore"`
	RankingScore    int               `json:"rankingScore"`
	CanFeature      bool              `json:"canFeature"`
	AutoBlocked     bool              `json:"autoBlocked"`
	BlockedReason   string            `json:"blockedReason,omitempty"`
	CreatedAt       time.Time         `json:"createdAt"`
}

// Visible reports whether the listing participates in radar matching and
// search indexing.
func (l *MarketplaceListing) Visible() bool {
	return l.Status == ListingStatusActive && !l.AutoBlocked
}

// SellerTrust carries the seller-side reputation inputs for scoring. A
// missing profile scores at the baseline, never at zero.
type SellerTrust struct {
	IdentityVerified bool    `json:"identityVerified"`
	AverageRating    float64 `json:"averageRating"`
	RatingCount      int     `json:"ratingCount"`
	FastResponder    bool    `json:"fastResponder"`
	TotalSales       int     `json:"totalSales"`
	AccountAgeDays   int     `json:"accountAgeDays"`
}
