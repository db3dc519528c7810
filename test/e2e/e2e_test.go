// test/e2e/e2e_test.go
//
// End-to-end flows against a real PostgreSQL instance. Gated behind RUN_E2E
// so the unit suite stays self-contained:
//
//	RUN_E2E=1 E2E_POSTGRES_HOST=localhost go test ./test/e2e/...
package e2e

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketplace-workers/internal/common/config"
	"marketplace-workers/internal/common/database"
	"marketplace-workers/internal/common/logger"
	"marketplace-workers/internal/models"

	matchradar "marketplace-workers/internal/workers/marketplace/match-radar"
	scorelisting "marketplace-workers/internal/workers/marketplace/score-listing"
	createsubscription "marketplace-workers/internal/workers/radar/create-subscription"
	expiresubscriptions "marketplace-workers/internal/workers/radar/expire-subscriptions"
)

var pg *database.PostgresClient

func TestMain(m *testing.M) {
	if os.Getenv("RUN_E2E") == "" {
		// Individual tests skip themselves; nothing to set up.
		os.Exit(m.Run())
	}

	var err error
	pg, err = database.NewPostgres(postgresConfig())
	if err != nil {
		panic(fmt.Sprintf("postgres connection failed: %v", err))
	}

	if err := createSchema(); err != nil {
		panic(fmt.Sprintf("schema setup failed: %v", err))
	}

	code := m.Run()
	pg.Close()
	os.Exit(code)
}

func postgresConfig() config.PostgresConfig {
	return config.PostgresConfig{
		Host:     envOr("E2E_POSTGRES_HOST", "localhost"),
		Port:     5432,
		Database: envOr("E2E_POSTGRES_DB", "marketplace_test"),
		User:     envOr("E2E_POSTGRES_USER", "marketplace"),
		Password: envOr("E2E_POSTGRES_PASSWORD", "marketplace"),
		SSLMode:  "disable",
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func skipUnlessE2E(t *testing.T) {
	t.Helper()
	if os.Getenv("RUN_E2E") == "" {
		t.Skip("set RUN_E2E=1 to run end-to-end tests")
	}
}

func createSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sellers (
			id text PRIMARY KEY,
			identity_verified boolean NOT NULL DEFAULT false,
			average_rating numeric NOT NULL DEFAULT 0,
			rating_count int NOT NULL DEFAULT 0,
			fast_responder boolean NOT NULL DEFAULT false,
			total_sales int NOT NULL DEFAULT 0,
			created_at timestamptz NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS marketplace_listings (
			id text PRIMARY KEY,
			ad_score int NOT NULL DEFAULT 0,
			product_score int NOT NULL DEFAULT 0,
			seller_score int NOT NULL DEFAULT 0,
			ranking_score int NOT NULL DEFAULT 0,
			can_feature boolean NOT NULL DEFAULT false,
			auto_blocked boolean NOT NULL DEFAULT false,
			blocked_reason text NOT NULL DEFAULT '',
			status text NOT NULL DEFAULT 'ACTIVE'
		)`,
		`CREATE TABLE IF NOT EXISTS radar_subscriptions (
			id text PRIMARY KEY,
			subscriber_id text NOT NULL,
			subscriber_type text NOT NULL,
			subscriber_name text NOT NULL DEFAULT '',
			world text NOT NULL,
			category text NOT NULL DEFAULT '',
			subcategory text NOT NULL DEFAULT '',
			keywords text[] NOT NULL DEFAULT '{}',
			brand text NOT NULL DEFAULT '',
			price_min numeric,
			price_max numeric,
			preferred_state text NOT NULL DEFAULT '',
			preferred_city text NOT NULL DEFAULT '',
			conditions text[] NOT NULL DEFAULT '{}',
			phone text NOT NULL,
			notify_via_whatsapp boolean NOT NULL DEFAULT false,
			active boolean NOT NULL DEFAULT true,
			notifications_received int NOT NULL DEFAULT 0,
			notified_item_ids text[] NOT NULL DEFAULT '{}',
			created_at timestamptz NOT NULL,
			expires_at timestamptz NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := pg.DB.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func testListing(id string) models.MarketplaceListing {
	return models.MarketplaceListing{
		ID:           id,
		World:        models.WorldOdontologia,
		Category:     "Equipamentos",
		Subcategory:  "Esterilizacao",
		Title:        "Autoclave Cristofoli Vitale 21L",
		Description:  "Autoclave seminova com manutencao em dia, pronta para uso em consultorio odontologico. Acompanha nota fiscal e manual.",
		Brand:        "Cristofoli",
		Condition:    models.ConditionSeminovo,
		Price:        8500,
		Location:     "Sao Paulo - SP",
		AdvertiserID: "seller-e2e-1",
		PhotoFront:   "https://cdn.example.com/front.jpg",
		PhotoSide:    "https://cdn.example.com/side.jpg",
		Status:       models.ListingStatusActive,
		CreatedAt:    time.Now().UTC(),
	}
}

func TestScoreListingPersistsToStore(t *testing.T) {
	skipUnlessE2E(t)
	ctx := context.Background()

	listingID := "listing-e2e-" + uuid.New().String()
	_, err := pg.DB.ExecContext(ctx,
		`INSERT INTO sellers (id, identity_verified, average_rating, rating_count, fast_responder, total_sales, created_at)
		 VALUES ($1, true, 4.5, 12, true, 8, now() - interval '120 days')
		 ON CONFLICT (id) DO NOTHING`, "seller-e2e-1")
	require.NoError(t, err)
	_, err = pg.DB.ExecContext(ctx, `INSERT INTO marketplace_listings (id) VALUES ($1)`, listingID)
	require.NoError(t, err)

	handler := scorelisting.NewHandler(scorelisting.LoadConfig(), pg.DB, nil, logger.NewTestLogger(t))

	output, err := handler.Execute(ctx, &scorelisting.Input{
		Listing: testListing(listingID),
		Persist: true,
	})
	require.NoError(t, err)
	assert.False(t, output.AutoBlocked)
	assert.True(t, output.Visible)
	assert.Greater(t, output.RankingScore, 0)

	var persisted int
	err = pg.DB.QueryRowContext(ctx,
		`SELECT ranking_score FROM marketplace_listings WHERE id = $1`, listingID).Scan(&persisted)
	require.NoError(t, err)
	assert.Equal(t, output.RankingScore, persisted)
}

func TestRadarRoundTrip(t *testing.T) {
	skipUnlessE2E(t)
	ctx := context.Background()
	log := logger.NewTestLogger(t)

	// Create a subscription through the worker, not raw SQL.
	create := createsubscription.NewHandler(createsubscription.LoadConfig(), pg.DB, log)
	created, err := create.Execute(ctx, &createsubscription.Input{
		Subscription: models.RadarSubscription{
			SubscriberID:      "clinic-e2e-1",
			SubscriberType:    "clinic",
			World:             models.WorldOdontologia,
			Keywords:          []string{"autoclave"},
			Phone:             "+5511999990000",
			NotifyViaWhatsApp: true,
		},
	})
	require.NoError(t, err)
	require.True(t, created.Active)

	match := matchradar.NewHandler(matchradar.LoadConfig(), pg.DB, log)
	listing := testListing("listing-e2e-" + uuid.New().String())

	first, err := match.Execute(ctx, &matchradar.Input{Listing: listing})
	require.NoError(t, err)
	require.GreaterOrEqual(t, first.Matches, 1)

	var notified bool
	for _, n := range first.Notifications {
		if n.RecipientID == "clinic-e2e-1" {
			notified = true
		}
	}
	assert.True(t, notified, "subscriber should receive the first publish")

	// Republishing the same listing must be absorbed by the ledger.
	second, err := match.Execute(ctx, &matchradar.Input{Listing: listing})
	require.NoError(t, err)
	for _, n := range second.Notifications {
		assert.NotEqual(t, "clinic-e2e-1", n.RecipientID, "ledger must suppress the second publish")
	}

	// Force the subscription past its lifetime and sweep.
	_, err = pg.DB.ExecContext(ctx,
		`UPDATE radar_subscriptions SET expires_at = now() - interval '1 day' WHERE id = $1`,
		created.SubscriptionID)
	require.NoError(t, err)

	expire := expiresubscriptions.NewHandler(expiresubscriptions.LoadConfig(), pg.DB, log)
	swept, err := expire.Execute(ctx, &expiresubscriptions.Input{})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, swept.ExpiredCount, 1)

	var active bool
	err = pg.DB.QueryRowContext(ctx,
		`SELECT active FROM radar_subscriptions WHERE id = $1`, created.SubscriptionID).Scan(&active)
	require.NoError(t, err)
	assert.False(t, active)
}
