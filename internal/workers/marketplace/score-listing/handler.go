// internal/workers/marketplace/score-listing/handler.go
package scorelisting

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"marketplace-workers/internal/common/logger"
	"marketplace-workers/internal/models"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "score-listing"

	// ListingVisibleMessage is published once a scored listing is persisted
	// visible, correlating on the listing id to wake waiting radar processes.
	ListingVisibleMessage = "listing-visible"
)

var (
	ErrScorePersistFailed = errors.New("SCORE_PERSIST_FAILED")
)

// Blocking reasons. A listing can accumulate several; they are joined with
// "; " into the stored reason string.
const (
	ReasonMissingPhotos    = "fotos frontal e lateral ausentes"
	ReasonMissingPrice     = "preco ausente ou zero"
	ReasonShortDescription = "descricao abaixo do minimo"
)

// EventPublisher publishes a correlated message to the workflow engine.
// *camunda.Client satisfies it; tests substitute a recording fake.
type EventPublisher interface {
	PublishListingEvent(ctx context.Context, messageName, listingID string, variables map[string]interface{}) error
}

type Handler struct {
	config *Config
	db     *sql.DB
	events EventPublisher
	logger logger.Logger
}

func NewHandler(config *Config, db *sql.DB, events EventPublisher, log logger.Logger) *Handler {
	return &Handler{
		config: config,
		db:     db,
		events: events,
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
		retries := int32(0)
		if errors.Is(err, ErrScorePersistFailed) {
			retries = 3
		}
		h.failJob(client, job, "SCORE_PERSIST_FAILED", err.Error(), retries)
		return
	}

	h.completeJob(client, job, output)
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	listing := &input.Listing

	trust := input.SellerTrust
	if trust == nil && listing.AdvertiserID != "" {
		var err error
		trust, err = h.getSellerTrust(ctx, listing.AdvertiserID)
		if err != nil {
			h.logger.Warn("failed to fetch seller trust, scoring at baseline", map[string]interface{}{
				"advertiserId": listing.AdvertiserID,
				"error":        err,
			})
		}
	}

	adScore := h.calculateAdScore(listing)
	productScore := h.calculateProductScore(listing)
	sellerScore := h.calculateSellerScore(trust)
	rankingScore := h.calculateRankingScore(adScore, productScore, sellerScore)

	blocked, reason := h.checkContentRules(listing)

	status := listing.Status
	if status == "" {
		status = models.ListingStatusActive
	}
	if blocked {
		status = models.ListingStatusSuspended
	}

	canFeature := !blocked && rankingScore >= h.config.FeatureThreshold

	output := &Output{
		ListingID:     listing.ID,
		AdScore:       adScore,
		ProductScore:  productScore,
		SellerScore:   sellerScore,
		RankingScore:  rankingScore,
		CanFeature:    canFeature,
		AutoBlocked:   blocked,
		BlockedReason: reason,
		Status:        status,
		Visible:       status == models.ListingStatusActive && !blocked,
	}

	if input.Persist && listing.ID != "" {
		if err := h.persistScores(ctx, output); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrScorePersistFailed, err)
		}

		if output.Visible && h.events != nil {
			err := h.events.PublishListingEvent(ctx, ListingVisibleMessage, output.ListingID, map[string]interface{}{
				"rankingScore": output.RankingScore,
				"canFeature":   output.CanFeature,
			})
			if err != nil {
				h.logger.Warn("failed to publish listing visible event", map[string]interface{}{
					"listingId": output.ListingID,
					"error":     err,
				})
			}
		}
	}

	h.logger.Info("listing scored", map[string]interface{}{
		"listingId":    listing.ID,
		"adScore":      adScore,
		"productScore": productScore,
		"sellerScore":  sellerScore,
		"rankingScore": rankingScore,
		"autoBlocked":  blocked,
		"canFeature":   canFeature,
	})

	return output, nil
}

// calculateAdScore rewards completeness of the advertisement itself. Each
// factor is independent and additive; the sum is capped at 100.
func (h *Handler) calculateAdScore(l *models.MarketplaceListing) int {
	score := 0

	descLen := len(strings.TrimSpace(l.Description))
	switch {
	case descLen >= 200:
		score += 30
	case descLen >= 80:
		score += 20
	case descLen >= 30:
		score += 10
	}

	if l.PhotoFront != "" {
		score += 10
	}
	if l.PhotoSide != "" {
		score += 10
	}
	if l.PhotoSerial != "" {
		score += 10
	}

	if l.Brand != "" {
		score += 15
	}
	if l.Condition != "" {
		score += 10
	}
	if l.Price > 0 {
		score += 15
	}

	return clampScore(score)
}

// calculateProductScore rewards the product's condition and the completeness
// of its category-specific technical fields.
func (h *Handler) calculateProductScore(l *models.MarketplaceListing) int {
	score := 0

	switch l.Condition {
	case models.ConditionNovo:
		score += 40
	case models.ConditionSeminovo:
		score += 28
	case models.ConditionUsado:
		score += 16
	}

	// Up to eight filled technical fields count, 5 points each.
	specs := len(l.TechnicalSpecs)
	if specs > 8 {
		specs = 8
	}
	score += specs * 5

	if l.ManufacturerURL != "" {
		score += 20
	}

	return clampScore(score)
}

// calculateSellerScore rewards seller reputation. New or unverified sellers
// keep a low baseline, never zero, so they are not excluded outright.
func (h *Handler) calculateSellerScore(t *models.SellerTrust) int {
	score := 10

	if t == nil {
		return score
	}

	if t.IdentityVerified {
		score += 25
	}
	if t.RatingCount > 0 {
		score += int(math.Round(t.AverageRating / 5.0 * 25.0))
	}
	if t.FastResponder {
		score += 10
	}

	sales := t.TotalSales * 2
	if sales > 20 {
		sales = 20
	}
	score += sales

	tenure := t.AccountAgeDays / 30
	if tenure > 10 {
		tenure = 10
	}
	score += tenure

	return clampScore(score)
}

func (h *Handler) calculateRankingScore(ad, product, seller int) int {
	composite := float64(ad)*h.config.AdWeight +
		float64(product)*h.config.ProductWeight +
		float64(seller)*h.config.SellerWeight
	return clampScore(int(math.Round(composite)))
}

// checkContentRules applies the hard blocking rules. Blocking is independent
// of the numeric scores: a low-scoring but rule-compliant listing stays
// visible. Reasons accumulate.
func (h *Handler) checkContentRules(l *models.MarketplaceListing) (bool, string) {
	var reasons []string

	if l.PhotoFront == "" && l.PhotoSide == "" {
		reasons = append(reasons, ReasonMissingPhotos)
	}
	if l.Price <= 0 {
		reasons = append(reasons, ReasonMissingPrice)
	}
	if len(strings.TrimSpace(l.Description)) < h.config.MinDescriptionLen {
		reasons = append(reasons, ReasonShortDescription)
	}

	if len(reasons) == 0 {
		return false, ""
	}
	return true, strings.Join(reasons, "; ")
}

func (h *Handler) getSellerTrust(ctx context.Context, advertiserID string) (*models.SellerTrust, error) {
	row := h.db.QueryRowContext(ctx, `
		SELECT identity_verified, average_rating, rating_count, fast_responder, total_sales,
		       GREATEST(0, EXTRACT(DAY FROM now() - created_at))::int
		FROM sellers WHERE id = $1`, advertiserID)

	var trust models.SellerTrust
	err := row.Scan(&trust.IdentityVerified, &trust.AverageRating, &trust.RatingCount,
		&trust.FastResponder, &trust.TotalSales, &trust.AccountAgeDays)
	if err != nil {
		return nil, err
	}
	return &trust, nil
}

func (h *Handler) persistScores(ctx context.Context, out *Output) error {
	_, err := h.db.ExecContext(ctx, `
		UPDATE marketplace_listings
		SET ad_score = $2, product_score = $3, seller_score = $4, ranking_score = $5,
		    can_feature = $6, auto_blocked = $7, blocked_reason = $8, status = $9
		WHERE id = $1`,
		out.ListingID, out.AdScore, out.ProductScore, out.SellerScore, out.RankingScore,
		out.CanFeature, out.AutoBlocked, out.BlockedReason, out.Status)
	return err
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

func clampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
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

// Execute exposes the scoring pipeline for direct invocation in tests.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
