// internal/workers/radar/create-subscription/handler.go
package createsubscription

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"marketplace-workers/internal/common/logger"
	"marketplace-workers/internal/models"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

const (
	TaskType = "create-radar-subscription"
)

var (
	ErrRadarInvalid = errors.New("RADAR_INVALID")
	ErrInsertFailed = errors.New("RADAR_UPDATE_FAILED")
)

type Handler struct {
	config *Config
	db     *sql.DB
	logger logger.Logger
	now    func() time.Time
}

func NewHandler(config *Config, db *sql.DB, log logger.Logger) *Handler {
	return &Handler{
		config: config,
		db:     db,
		logger: log.WithFields(map[string]interface{}{"taskType": TaskType}),
		now:    time.Now,
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
		code := "RADAR_UPDATE_FAILED"
		retries := int32(3)
		if errors.Is(err, ErrRadarInvalid) {
			code = "RADAR_INVALID"
			retries = 0
		}
		h.failJob(client, job, code, err.Error(), retries)
		return
	}

	h.completeJob(client, job, output)
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	sub := input.Subscription

	if err := h.validate(&sub); err != nil {
		return nil, err
	}

	if sub.World == "" {
		sub.World = models.WorldAmbos
	}

	sub.ID = uuid.New().String()
	sub.Active = true
	sub.NotificationsReceived = 0
	sub.NotifiedItemIDs = []string{}
	sub.CreatedAt = h.now().UTC()
	sub.ExpiresAt = sub.CreatedAt.AddDate(0, 0, h.config.TTLDays)

	if err := h.insert(ctx, &sub); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInsertFailed, err)
	}

	h.logger.Info("radar subscription created", map[string]interface{}{
		"subscriptionId": sub.ID,
		"subscriberId":   sub.SubscriberID,
		"world":          sub.World,
		"expiresAt":      sub.ExpiresAt,
	})

	return &Output{
		SubscriptionID: sub.ID,
		Active:         sub.Active,
		CreatedAt:      sub.CreatedAt,
		ExpiresAt:      sub.ExpiresAt,
	}, nil
}

// validate enforces the creation rules. A radar without a category or at
// least one keyword can never match anything; a radar without a phone can
// never be notified. Both are rejected outright rather than stored inert.
func (h *Handler) validate(sub *models.RadarSubscription) error {
	if !sub.HasMatchBasis() {
		return fmt.Errorf("%w: category or keywords required", ErrRadarInvalid)
	}
	if sub.Phone == "" {
		return fmt.Errorf("%w: phone required", ErrRadarInvalid)
	}
	if sub.SubscriberID == "" {
		return fmt.Errorf("%w: subscriberId required", ErrRadarInvalid)
	}

	switch sub.World {
	case "", models.WorldOdontologia, models.WorldMedicina, models.WorldAmbos:
	default:
		return fmt.Errorf("%w: unknown world %q", ErrRadarInvalid, sub.World)
	}

	for _, c := range sub.Conditions {
		switch c {
		case models.ConditionNovo, models.ConditionSeminovo, models.ConditionUsado:
		default:
			return fmt.Errorf("%w: unknown condition %q", ErrRadarInvalid, c)
		}
	}

	if sub.PriceMin != nil && (*sub.PriceMin < 0 || *sub.PriceMin > models.RadarPriceCap) {
		return fmt.Errorf("%w: priceMin out of range", ErrRadarInvalid)
	}
	if sub.PriceMax != nil && (*sub.PriceMax <= 0 || *sub.PriceMax > models.RadarPriceCap) {
		return fmt.Errorf("%w: priceMax out of range", ErrRadarInvalid)
	}
	if sub.PriceMin != nil && sub.PriceMax != nil && *sub.PriceMin > *sub.PriceMax {
		return fmt.Errorf("%w: priceMin above priceMax", ErrRadarInvalid)
	}

	return nil
}

func (h *Handler) insert(ctx context.Context, sub *models.RadarSubscription) error {
	_, err := h.db.ExecContext(ctx, `
		INSERT INTO radar_subscriptions (
			id, subscriber_id, subscriber_type, subscriber_name, world,
			category, subcategory, keywords, brand, price_min, price_max,
			preferred_state, preferred_city, conditions, phone, notify_via_whatsapp,
			active, notifications_received, notified_item_ids, created_at, expires_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`,
		sub.ID, sub.SubscriberID, sub.SubscriberType, sub.SubscriberName, sub.World,
		sub.Category, sub.Subcategory, pq.Array(sub.Keywords), sub.Brand, sub.PriceMin, sub.PriceMax,
		sub.PreferredState, sub.PreferredCity, pq.Array(sub.Conditions), sub.Phone, sub.NotifyViaWhatsApp,
		sub.Active, sub.NotificationsReceived, pq.Array(sub.NotifiedItemIDs), sub.CreatedAt, sub.ExpiresAt)
	return err
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

// Execute exposes the creation pipeline for direct invocation in tests.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
