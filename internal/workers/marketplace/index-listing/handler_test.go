package indexlisting

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketplace-workers/internal/common/logger"
	"marketplace-workers/internal/models"
)

// ==========================
// Test Helper Functions
// ==========================

type fakeStore struct {
	indexed map[string][]byte
	deleted []string
	failErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{indexed: map[string][]byte{}}
}

func (s *fakeStore) Index(ctx context.Context, index, id string, body []byte) error {
	if s.failErr != nil {
		return s.failErr
	}
	s.indexed[id] = body
	return nil
}

func (s *fakeStore) Delete(ctx context.Context, index, id string) error {
	if s.failErr != nil {
		return s.failErr
	}
	s.deleted = append(s.deleted, id)
	return nil
}

func createTestConfig() *Config {
	return &Config{
		Index:   "marketplace-listings",
		Timeout: 5 * time.Second,
	}
}

func createTestLogger(t *testing.T) logger.Logger {
	return logger.NewTestLogger(t)
}

func createVisibleListing() models.MarketplaceListing {
	return models.MarketplaceListing{
		ID:           "listing-1",
		World:        models.WorldOdontologia,
		Category:     "equipamentos",
		Title:        "Autoclave Cristofoli Vitale 21L",
		Description:  "Autoclave revisada com garantia.",
		Brand:        "Cristofoli",
		Condition:    models.ConditionSeminovo,
		Price:        8900,
		Location:     "Sao Paulo - SP",
		Status:       models.ListingStatusActive,
		RankingScore: 82,
		CanFeature:   true,
		TechnicalSpecs: map[string]string{
			"voltagem":   "220V",
			"capacidade": "21L",
		},
		CreatedAt: time.Date(2025, 8, 10, 9, 0, 0, 0, time.UTC),
	}
}

// ==========================
// Indexing Tests
// ==========================

func TestHandler_Execute_IndexVisibleListing(t *testing.T) {
	store := newFakeStore()
	handler := NewHandler(createTestConfig(), store, createTestLogger(t))

	output, err := handler.execute(context.Background(), &Input{Listing: createVisibleListing()})

	require.NoError(t, err)
	assert.Equal(t, ActionIndexed, output.Action)
	assert.Equal(t, "listing-1", output.ListingID)

	body, ok := store.indexed["listing-1"]
	require.True(t, ok)

	var doc listingDocument
	require.NoError(t, json.Unmarshal(body, &doc))
	assert.Equal(t, "Autoclave Cristofoli Vitale 21L", doc.Title)
	assert.Equal(t, 82, doc.RankingScore)
	assert.True(t, doc.CanFeature)
	assert.Equal(t, "2025-08-10T09:00:00Z", doc.CreatedAt)
	// specs are flattened deterministically
	assert.Equal(t, []string{"capacidade: 21L", "voltagem: 220V"}, doc.Specs)
}

func TestHandler_Execute_RemoveInvisibleListing(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(l *models.MarketplaceListing)
	}{
		{
			name:   "paused",
			mutate: func(l *models.MarketplaceListing) { l.Status = models.ListingStatusPaused },
		},
		{
			name:   "sold",
			mutate: func(l *models.MarketplaceListing) { l.Status = models.ListingStatusSold },
		},
		{
			name:   "suspended",
			mutate: func(l *models.MarketplaceListing) { l.Status = models.ListingStatusSuspended },
		},
		{
			name:   "auto-blocked while still active",
			mutate: func(l *models.MarketplaceListing) { l.AutoBlocked = true },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			handler := NewHandler(createTestConfig(), store, createTestLogger(t))

			listing := createVisibleListing()
			tt.mutate(&listing)

			output, err := handler.execute(context.Background(), &Input{Listing: listing})

			require.NoError(t, err)
			assert.Equal(t, ActionRemoved, output.Action)
			assert.Equal(t, []string{"listing-1"}, store.deleted)
			assert.Empty(t, store.indexed)
		})
	}
}

func TestHandler_Execute_MissingID(t *testing.T) {
	handler := NewHandler(createTestConfig(), newFakeStore(), createTestLogger(t))

	output, err := handler.execute(context.Background(), &Input{})

	assert.Error(t, err)
	assert.Nil(t, output)
}

func TestHandler_Execute_StoreFailure(t *testing.T) {
	store := newFakeStore()
	store.failErr = errors.New("cluster unavailable")
	handler := NewHandler(createTestConfig(), store, createTestLogger(t))

	output, err := handler.execute(context.Background(), &Input{Listing: createVisibleListing()})

	assert.Error(t, err)
	assert.Nil(t, output)
}
