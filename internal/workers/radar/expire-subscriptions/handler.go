// internal/workers/radar/expire-subscriptions/handler.go
package expiresubscriptions

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"marketplace-workers/internal/common/logger"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "expire-radar-subscriptions"
)

// The sweep is advisory. Matching already checks expires_at on every read, so
// a subscription missed by the sweep still stops matching on time; the flag
// only keeps the active set small for queries and dashboards.
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
		h.failJob(client, job, "PARSE_ERROR", fmt.Sprintf("parse input: %v", err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	output, err := h.execute(ctx, &input)
	if err != nil {
		h.failJob(client, job, "RADAR_UPDATE_FAILED", err.Error())
		return
	}

	h.completeJob(client, job, output)
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	sweptAt := h.now().UTC()

	if input.DryRun {
		var count int
		err := h.db.QueryRowContext(ctx, `
			SELECT count(*) FROM radar_subscriptions
			WHERE active AND expires_at <= now()`).Scan(&count)
		if err != nil {
			return nil, fmt.Errorf("count expired subscriptions: %w", err)
		}
		return &Output{ExpiredCount: count, DryRun: true, SweptAt: sweptAt}, nil
	}

	res, err := h.db.ExecContext(ctx, `
		UPDATE radar_subscriptions SET active = false
		WHERE active AND expires_at <= now()`)
	if err != nil {
		return nil, fmt.Errorf("deactivate expired subscriptions: %w", err)
	}

	expired, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("read sweep result: %w", err)
	}

	h.logger.Info("radar expiry sweep complete", map[string]interface{}{
		"expiredCount": expired,
	})

	return &Output{ExpiredCount: int(expired), SweptAt: sweptAt}, nil
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

func (h *Handler) failJob(client worker.JobClient, job entities.Job, errorCode, errorMessage string) {
	h.logger.Error("job failed", map[string]interface{}{
		"jobKey":       job.Key,
		"errorCode":    errorCode,
		"errorMessage": errorMessage,
	})

	_, err := client.NewFailJobCommand().
		JobKey(job.Key).
		Retries(job.Retries - 1).
		ErrorMessage(errorMessage).
		Send(context.Background())
	if err != nil {
		h.logger.Error("failed to fail job", map[string]interface{}{
			"error": err,
		})
	}
}

// Execute exposes the sweep for direct invocation in tests.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
