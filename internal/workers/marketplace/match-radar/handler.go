// internal/workers/marketplace/match-radar/handler.go
package matchradar

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"marketplace-workers/internal/common/logger"
	"marketplace-workers/internal/common/metrics"
	"marketplace-workers/internal/models"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/lib/pq"
)

const (
	TaskType = "match-radar"
)

var (
	ErrRadarQueryFailed  = errors.New("RADAR_QUERY_FAILED")
	ErrRadarUpdateFailed = errors.New("RADAR_UPDATE_FAILED")
)

type Handler struct {
	config *Config
	db     *sql.DB
	logger logger.Logger
}

func NewHandler(config *Config, db *sql.DB, log logger.Logger) *Handler {
	return &Handler{
		config: config,
		db:     db,
		logger: log.WithFields(map[string]interface{}{"taskType": TaskType}),
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		h.failJob(client, job, "PARSE_ERROR", fmt.Sprintf("parse input: %v", err), 0)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	output, err := h.execute(ctx, &input)
	if err != nil {
		h.failJob(client, job, "RADAR_QUERY_FAILED", err.Error(), 3)
		return
	}

	h.completeJob(client, job, output)
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	listing := &input.Listing

	output := &Output{
		ListingID:     listing.ID,
		Notifications: []models.NotificationPayload{},
	}

	// Only listings entering a visible state trigger radar fan-out.
	if !listing.Visible() {
		h.logger.Info("listing not visible, skipping radar sweep", map[string]interface{}{
			"listingId": listing.ID,
			"status":    listing.Status,
		})
		return output, nil
	}

	subs, err := h.loadSubscriptions(ctx, listing.World)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRadarQueryFailed, err)
	}
	output.Candidates = len(subs)

	// Every candidate is evaluated independently: a listing can satisfy many
	// radars, so there is no short-circuit across subscriptions. Updates to
	// different subscriptions run concurrently; the conditional UPDATE keyed
	// by subscription id serializes writers on the same row.
	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		subCh   = make(chan *models.RadarSubscription)
		workers = h.config.FanOut
	)
	if workers <= 0 {
		workers = 1
	}

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for sub := range subCh {
				if ctx.Err() != nil {
					return
				}
				if !Matches(sub, listing) {
					continue
				}

				claimed, err := h.claimNotification(ctx, sub.ID, listing.ID)
				if err != nil {
					h.logger.Warn("radar ledger update failed", map[string]interface{}{
						"subscriptionId": sub.ID,
						"listingId":      listing.ID,
						"error":          err,
					})
					continue
				}
				if !claimed {
					// Another publish event got here first; the ledger is
					// authoritative, never notify twice.
					continue
				}

				payload := buildPayload(sub, listing)
				mu.Lock()
				output.Notifications = append(output.Notifications, payload)
				output.Matches++
				mu.Unlock()

				metrics.RadarMatches.WithLabelValues(listing.World).Inc()
			}
		}()
	}

	for i := range subs {
		select {
		case subCh <- &subs[i]:
		case <-ctx.Done():
			// Completed per-subscription updates stand; the sweep just stops
			// feeding new candidates.
			close(subCh)
			wg.Wait()
			return output, nil
		}
	}
	close(subCh)
	wg.Wait()

	h.logger.Info("radar sweep finished", map[string]interface{}{
		"listingId":  listing.ID,
		"candidates": output.Candidates,
		"matches":    output.Matches,
	})

	return output, nil
}

// loadSubscriptions returns the active, unexpired subscriptions in the
// listing's area. The expires_at filter here is the authority; the periodic
// deactivation sweep is advisory only.
func (h *Handler) loadSubscriptions(ctx context.Context, world string) ([]models.RadarSubscription, error) {
	rows, err := h.db.QueryContext(ctx, `
		SELECT id, subscriber_id, subscriber_type, subscriber_name, world,
		       category, subcategory, keywords, brand, price_min, price_max,
		       preferred_state, preferred_city, conditions, phone, notify_via_whatsapp,
		       notified_item_ids
		FROM radar_subscriptions
		WHERE active = true
		  AND expires_at > now()
		  AND (world = $1 OR world = 'AMBOS' OR $1 = 'AMBOS')`, world)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []models.RadarSubscription
	for rows.Next() {
		var (
			sub                models.RadarSubscription
			priceMin, priceMax sql.NullFloat64
		)
		err := rows.Scan(&sub.ID, &sub.SubscriberID, &sub.SubscriberType,
			&sub.SubscriberName, &sub.World, &sub.Category, &sub.Subcategory,
			pq.Array(&sub.Keywords), &sub.Brand, &priceMin, &priceMax,
			&sub.PreferredState, &sub.PreferredCity, pq.Array(&sub.Conditions),
			&sub.Phone, &sub.NotifyViaWhatsApp, pq.Array(&sub.NotifiedItemIDs))
		if err != nil {
			return nil, err
		}
		if priceMin.Valid {
			sub.PriceMin = &priceMin.Float64
		}
		if priceMax.Valid {
			sub.PriceMax = &priceMax.Float64
		}
		sub.Active = true
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// Matches evaluates the radar predicate chain for one subscription. The
// notified ledger is checked first to short-circuit cheaply; the database
// claim re-checks it under concurrency.
func Matches(sub *models.RadarSubscription, listing *models.MarketplaceListing) bool {
	for _, id := range sub.NotifiedItemIDs {
		if id == listing.ID {
			return false
		}
	}

	// A radar with neither category nor keywords can never match. Creation
	// rejects these; an existing row is treated as a no-op, not an error.
	if !sub.HasMatchBasis() {
		return false
	}

	if sub.Category != "" {
		if !strings.EqualFold(sub.Category, listing.Category) {
			return false
		}
		if sub.Subcategory != "" && listing.Subcategory != "" &&
			!strings.EqualFold(sub.Subcategory, listing.Subcategory) {
			return false
		}
	}

	if len(sub.Keywords) > 0 && !anyKeywordIn(sub.Keywords, listing.Title, listing.Description) {
		return false
	}

	if sub.Brand != "" && !strings.EqualFold(sub.Brand, listing.Brand) {
		return false
	}

	if sub.PriceMin != nil && listing.Price < *sub.PriceMin {
		return false
	}
	if sub.PriceMax != nil && listing.Price > *sub.PriceMax {
		return false
	}

	if sub.PreferredCity != "" || sub.PreferredState != "" {
		location := strings.ToLower(listing.Location)
		cityOK := sub.PreferredCity != "" && strings.Contains(location, strings.ToLower(sub.PreferredCity))
		stateOK := sub.PreferredState != "" && strings.Contains(location, strings.ToLower(sub.PreferredState))
		if !cityOK && !stateOK {
			return false
		}
	}

	if len(sub.Conditions) > 0 {
		found := false
		for _, c := range sub.Conditions {
			if strings.EqualFold(c, listing.Condition) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	return true
}

func anyKeywordIn(keywords []string, title, description string) bool {
	haystack := strings.ToLower(title + " " + description)
	for _, kw := range keywords {
		kw = strings.TrimSpace(strings.ToLower(kw))
		if kw != "" && strings.Contains(haystack, kw) {
			return true
		}
	}
	return false
}

// claimNotification appends the listing to the subscription's ledger and
// bumps its counter in one conditional statement. Zero affected rows means
// another writer already claimed this (subscription, listing) pair. The
// append is never rolled back on dispatch failure: at-most-once delivery is
// preferred over retry-induced duplicates.
func (h *Handler) claimNotification(ctx context.Context, subscriptionID, listingID string) (bool, error) {
	res, err := h.db.ExecContext(ctx, `
		UPDATE radar_subscriptions
		SET notified_item_ids = array_append(notified_item_ids, $2),
		    notifications_received = notifications_received + 1
		WHERE id = $1
		  AND active = true
		  AND expires_at > now()
		  AND NOT (notified_item_ids @> ARRAY[$2]::text[])`,
		subscriptionID, listingID)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRadarUpdateFailed, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func buildPayload(sub *models.RadarSubscription, listing *models.MarketplaceListing) models.NotificationPayload {
	channel := models.ChannelPush
	if sub.NotifyViaWhatsApp {
		channel = models.ChannelWhatsApp
	}

	return models.NotificationPayload{
		RecipientID:    sub.SubscriberID,
		RecipientType:  sub.SubscriberType,
		RecipientName:  sub.SubscriberName,
		Phone:          sub.Phone,
		Channel:        channel,
		SubscriptionID: sub.ID,
		ListingID:      listing.ID,
		ListingTitle:   listing.Title,
		ListingPrice:   listing.Price,
		Location:       listing.Location,
	}
}

func (h *Handler) completeJob(client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"error": err,
		})
		return
	}
	_, err = cmd.Send(context.Background())
	if err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"error": err,
		})
	}
}

// failJob routes transient failures (retries > 0) back to the engine with a
// decremented retry budget, and raises a BPMN error for permanent ones.
func (h *Handler) failJob(client worker.JobClient, job entities.Job, errorCode, errorMessage string, retries int32) {
	h.logger.Error("job failed", map[string]interface{}{
		"jobKey":       job.Key,
		"errorCode":    errorCode,
		"errorMessage": errorMessage,
		"retries":      retries,
	})

	if retries > 0 {
		_, err := client.NewFailJobCommand().
			JobKey(job.Key).
			Retries(retryBudget(retries, job.Retries)).
			ErrorMessage(errorMessage).
			Send(context.Background())
		if err != nil {
			h.logger.Error("failed to fail job", map[string]interface{}{
				"error": err,
			})
		}
		return
	}

	_, err := client.NewThrowErrorCommand().
		JobKey(job.Key).
		ErrorCode(errorCode).
		ErrorMessage(errorMessage).
		Send(context.Background())
	if err != nil {
		h.logger.Error("failed to throw error", map[string]interface{}{
			"error": err,
		})
	}
}

// retryBudget decrements the job's remaining retries and caps the result at
// the per-code policy, so a misconfigured process model cannot retry forever.
func retryBudget(policy, remaining int32) int32 {
	budget := remaining - 1
	if budget < 0 {
		budget = 0
	}
	if budget > policy {
		budget = policy
	}
	return budget
}

// Execute exposes the sweep for direct invocation in tests.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
