// internal/workers/notification/send-notification/handler.go
package sendnotification

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"marketplace-workers/internal/common/logger"
	"marketplace-workers/internal/common/metrics"
	"marketplace-workers/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	sestypes "github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/google/uuid"
)

const (
	TaskType = "send-notification"
)

// SNSService and SESService are the AWS surfaces the dispatcher touches,
// kept narrow so tests can fake them.
type SNSService interface {
	Publish(ctx context.Context, input *sns.PublishInput) (*sns.PublishOutput, error)
}

type SESService interface {
	SendEmail(ctx context.Context, input *ses.SendEmailInput) (*ses.SendEmailOutput, error)
}

// DedupStore claims a key once; a second claim within the TTL reports false.
type DedupStore interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error)
}

type Handler struct {
	config *Config
	db     *sql.DB
	sns    SNSService
	ses    SESService
	dedup  DedupStore
	logger logger.Logger
	now    func() time.Time
}

func NewHandler(config *Config, db *sql.DB, snsSvc SNSService, sesSvc SESService, dedup DedupStore, log logger.Logger) *Handler {
	return &Handler{
		config: config,
		db:     db,
		sns:    snsSvc,
		ses:    sesSvc,
		dedup:  dedup,
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
		h.failJob(client, job, fmt.Sprintf("parse input: %v", err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	output, err := h.execute(ctx, &input)
	if err != nil {
		h.failJob(client, job, err.Error())
		return
	}

	h.completeJob(client, job, output)
}

// execute dispatches one payload. Delivery is best effort: a provider error
// is recorded as a failed notification and the job still completes, so a
// broken channel never replays the whole matching flow. Only a persistence
// error fails the job.
func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	payload := &input.Payload

	if payload.DedupKey != "" && h.dedup != nil {
		claimed, err := h.dedup.SetNX(ctx, payload.DedupKey, "1", h.config.DedupTTL)
		if err != nil {
			h.logger.Warn("dedup claim unavailable, sending anyway", map[string]interface{}{
				"dedupKey": payload.DedupKey,
				"error":    err,
			})
		} else if !claimed {
			h.logger.Info("duplicate payload suppressed", map[string]interface{}{
				"dedupKey":    payload.DedupKey,
				"recipientId": payload.RecipientID,
			})
			return &Output{Channel: payload.Channel, Status: models.NotificationSkipped, Reason: "duplicate"}, nil
		}
	}

	title, body := h.composeMessage(payload)

	status := models.NotificationSent
	reason := ""
	if err := h.dispatch(ctx, payload, title, body); err != nil {
		if skip, why := isSkip(err); skip {
			status = models.NotificationSkipped
			reason = why
		} else {
			status = models.NotificationFailed
			reason = err.Error()
			h.logger.Error("notification dispatch failed", map[string]interface{}{
				"channel":     payload.Channel,
				"recipientId": payload.RecipientID,
				"error":       err,
			})
		}
	}

	record := &models.Notification{
		ID:             uuid.New().String(),
		RecipientID:    payload.RecipientID,
		RecipientType:  payload.RecipientType,
		SubscriptionID: payload.SubscriptionID,
		ListingID:      payload.ListingID,
		JobID:          payload.JobID,
		Channel:        payload.Channel,
		Status:         status,
		Title:          title,
		Body:           body,
		CreatedAt:      h.now().UTC().Format(time.RFC3339),
	}
	if status == models.NotificationSent {
		record.SentAt = record.CreatedAt
	}

	if err := h.persist(ctx, record); err != nil {
		return nil, fmt.Errorf("persist notification: %w", err)
	}

	if status == models.NotificationSent {
		metrics.NotificationsSent.WithLabelValues(record.Channel).Inc()
	}

	h.logger.Info("notification recorded", map[string]interface{}{
		"notificationId": record.ID,
		"channel":        record.Channel,
		"status":         record.Status,
	})

	return &Output{
		NotificationID: record.ID,
		Channel:        record.Channel,
		Status:         status,
		Reason:         reason,
	}, nil
}

type skipError struct{ reason string }

func (e *skipError) Error() string { return e.reason }

func isSkip(err error) (bool, string) {
	if s, ok := err.(*skipError); ok {
		return true, s.reason
	}
	return false, ""
}

func (h *Handler) dispatch(ctx context.Context, p *models.NotificationPayload, title, body string) error {
	switch p.Channel {
	case models.ChannelWhatsApp:
		if !h.config.SMSEnabled {
			return &skipError{reason: "sms channel disabled"}
		}
		if p.Phone == "" {
			return &skipError{reason: "no phone on payload"}
		}
		_, err := h.sns.Publish(ctx, &sns.PublishInput{
			PhoneNumber: aws.String(p.Phone),
			Message:     aws.String(body),
			MessageAttributes: map[string]snstypes.MessageAttributeValue{
				"AWS.SNS.SMS.SMSType": {
					DataType:    aws.String("String"),
					StringValue: aws.String("Transactional"),
				},
			},
		})
		return err

	case models.ChannelPush:
		if h.config.PushTopicARN == "" {
			return &skipError{reason: "push topic not configured"}
		}
		_, err := h.sns.Publish(ctx, &sns.PublishInput{
			TopicArn: aws.String(h.config.PushTopicARN),
			Subject:  aws.String(title),
			Message:  aws.String(body),
			MessageAttributes: map[string]snstypes.MessageAttributeValue{
				"recipientId": {
					DataType:    aws.String("String"),
					StringValue: aws.String(p.RecipientID),
				},
			},
		})
		return err

	case models.ChannelEmail:
		if !h.config.EmailEnabled {
			return &skipError{reason: "email channel disabled"}
		}
		if p.Email == "" {
			return &skipError{reason: "no email on payload"}
		}
		_, err := h.ses.SendEmail(ctx, &ses.SendEmailInput{
			Source: aws.String(h.config.EmailFrom),
			Destination: &sestypes.Destination{
				ToAddresses: []string{p.Email},
			},
			Message: &sestypes.Message{
				Subject: &sestypes.Content{Data: aws.String(title)},
				Body: &sestypes.Body{
					Text: &sestypes.Content{Data: aws.String(body)},
				},
			},
		})
		return err

	default:
		return &skipError{reason: fmt.Sprintf("unknown channel %q", p.Channel)}
	}
}

// composeMessage renders the user-facing text. Radar payloads carry listing
// details, matching payloads carry job details.
func (h *Handler) composeMessage(p *models.NotificationPayload) (title, body string) {
	switch {
	case p.ListingID != "":
		title = "Novo anuncio no seu radar"
		body = fmt.Sprintf("%s por R$ %.2f", p.ListingTitle, p.ListingPrice)
		if p.Location != "" {
			body += " em " + p.Location
		}
	case p.JobID != "":
		title = "Vaga compativel com seu perfil"
		body = p.JobTitle
		if p.Location != "" {
			body += " em " + p.Location
		}
	default:
		title = "Voce tem uma nova notificacao"
		body = title
	}
	return title, body
}

func (h *Handler) persist(ctx context.Context, n *models.Notification) error {
	_, err := h.db.ExecContext(ctx, `
		INSERT INTO notifications (
			id, recipient_id, recipient_type, subscription_id, listing_id, job_id,
			channel, status, title, body, sent_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NULLIF($11, ''), $12)`,
		n.ID, n.RecipientID, n.RecipientType, nullable(n.SubscriptionID), nullable(n.ListingID), nullable(n.JobID),
		n.Channel, n.Status, n.Title, n.Body, n.SentAt, n.CreatedAt)
	return err
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
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

func (h *Handler) failJob(client worker.JobClient, job entities.Job, errorMessage string) {
	h.logger.Error("job failed", map[string]interface{}{
		"jobKey":       job.Key,
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

// Execute exposes the dispatch pipeline for direct invocation in tests.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
