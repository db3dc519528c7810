package sendnotification

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/prometheus/client_golang/prometheus/testutil"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketplace-workers/internal/common/database"
	"marketplace-workers/internal/common/logger"
	"marketplace-workers/internal/common/metrics"
	"marketplace-workers/internal/models"
)

// ==========================
// Test Helper Functions
// ==========================

type fakeSNS struct {
	inputs []*sns.PublishInput
	err    error
}

func (f *fakeSNS) Publish(ctx context.Context, input *sns.PublishInput) (*sns.PublishOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.inputs = append(f.inputs, input)
	return &sns.PublishOutput{MessageId: awssdk.String("msg-1")}, nil
}

type fakeSES struct {
	inputs []*ses.SendEmailInput
	err    error
}

func (f *fakeSES) SendEmail(ctx context.Context, input *ses.SendEmailInput) (*ses.SendEmailOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.inputs = append(f.inputs, input)
	return &ses.SendEmailOutput{MessageId: awssdk.String("msg-1")}, nil
}

func createTestConfig() *Config {
	return &Config{
		EmailFrom:    "radar@example.com",
		PushTopicARN: "arn:aws:sns:us-east-1:000000000000:radar-push",
		SMSEnabled:   true,
		EmailEnabled: true,
		DedupTTL:     time.Hour,
		Timeout:      5 * time.Second,
	}
}

func createTestLogger(t *testing.T) logger.Logger {
	return logger.NewTestLogger(t)
}

func createDedupStore(t *testing.T) *database.RedisClient {
	mr := miniredis.RunT(t)
	return &database.RedisClient{Client: goredis.NewClient(&goredis.Options{Addr: mr.Addr()})}
}

func createRadarPayload(channel string) models.NotificationPayload {
	return models.NotificationPayload{
		RecipientID:    "clinic-42",
		RecipientType:  "clinic",
		RecipientName:  "Clinica Sorriso",
		Phone:          "+5511999990000",
		Email:          "contato@sorriso.com",
		Channel:        channel,
		SubscriptionID: "radar-1",
		ListingID:      "listing-900",
		ListingTitle:   "Autoclave Cristofoli Vitale 21L",
		ListingPrice:   8900,
		Location:       "Sao Paulo - SP",
	}
}

func expectInsert(mock sqlmock.Sqlmock) {
	mock.ExpectExec(`INSERT INTO notifications`).
		WillReturnResult(sqlmock.NewResult(1, 1))
}

// ==========================
// Dispatch Tests
// ==========================

func TestHandler_Execute_WhatsApp(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	expectInsert(mock)

	snsSvc := &fakeSNS{}
	handler := NewHandler(createTestConfig(), db, snsSvc, &fakeSES{}, createDedupStore(t), createTestLogger(t))

	output, err := handler.execute(context.Background(), &Input{Payload: createRadarPayload(models.ChannelWhatsApp)})

	require.NoError(t, err)
	assert.Equal(t, models.NotificationSent, output.Status)
	assert.NotEmpty(t, output.NotificationID)

	require.Len(t, snsSvc.inputs, 1)
	assert.Equal(t, "+5511999990000", awssdk.ToString(snsSvc.inputs[0].PhoneNumber))
	assert.Contains(t, awssdk.ToString(snsSvc.inputs[0].Message), "Autoclave Cristofoli Vitale 21L")
	assert.Contains(t, awssdk.ToString(snsSvc.inputs[0].Message), "Sao Paulo - SP")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandler_Execute_Push(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	expectInsert(mock)

	snsSvc := &fakeSNS{}
	handler := NewHandler(createTestConfig(), db, snsSvc, &fakeSES{}, createDedupStore(t), createTestLogger(t))

	output, err := handler.execute(context.Background(), &Input{Payload: createRadarPayload(models.ChannelPush)})

	require.NoError(t, err)
	assert.Equal(t, models.NotificationSent, output.Status)

	require.Len(t, snsSvc.inputs, 1)
	assert.Equal(t, "arn:aws:sns:us-east-1:000000000000:radar-push", awssdk.ToString(snsSvc.inputs[0].TopicArn))
	attr, ok := snsSvc.inputs[0].MessageAttributes["recipientId"]
	require.True(t, ok)
	assert.Equal(t, "clinic-42", awssdk.ToString(attr.StringValue))
}

func TestHandler_Execute_Email(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	expectInsert(mock)

	sesSvc := &fakeSES{}
	handler := NewHandler(createTestConfig(), db, &fakeSNS{}, sesSvc, createDedupStore(t), createTestLogger(t))

	output, err := handler.execute(context.Background(), &Input{Payload: createRadarPayload(models.ChannelEmail)})

	require.NoError(t, err)
	assert.Equal(t, models.NotificationSent, output.Status)

	require.Len(t, sesSvc.inputs, 1)
	assert.Equal(t, "radar@example.com", awssdk.ToString(sesSvc.inputs[0].Source))
	assert.Equal(t, []string{"contato@sorriso.com"}, sesSvc.inputs[0].Destination.ToAddresses)
}

func TestHandler_Execute_DedupSuppressesSecondSend(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	// Only the first dispatch writes a record.
	expectInsert(mock)

	snsSvc := &fakeSNS{}
	handler := NewHandler(createTestConfig(), db, snsSvc, &fakeSES{}, createDedupStore(t), createTestLogger(t))

	payload := createRadarPayload(models.ChannelPush)
	payload.DedupKey = "match:perfect:job-1:prof-1"

	first, err := handler.execute(context.Background(), &Input{Payload: payload})
	require.NoError(t, err)
	assert.Equal(t, models.NotificationSent, first.Status)

	second, err := handler.execute(context.Background(), &Input{Payload: payload})
	require.NoError(t, err)
	assert.Equal(t, models.NotificationSkipped, second.Status)
	assert.Equal(t, "duplicate", second.Reason)
	assert.Empty(t, second.NotificationID)

	assert.Len(t, snsSvc.inputs, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandler_Execute_DispatchFailureIsRecordedNotRetried(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	expectInsert(mock)

	snsSvc := &fakeSNS{err: errors.New("throttled")}
	handler := NewHandler(createTestConfig(), db, snsSvc, &fakeSES{}, createDedupStore(t), createTestLogger(t))

	output, err := handler.execute(context.Background(), &Input{Payload: createRadarPayload(models.ChannelWhatsApp)})

	// The job completes; the failure lives in the notification record.
	require.NoError(t, err)
	assert.Equal(t, models.NotificationFailed, output.Status)
	assert.Contains(t, output.Reason, "throttled")
	assert.NotEmpty(t, output.NotificationID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandler_Execute_SkippedChannels(t *testing.T) {
	tests := []struct {
		name    string
		payload func() models.NotificationPayload
		config  func(c *Config)
		reason  string
	}{
		{
			name: "whatsapp without a phone",
			payload: func() models.NotificationPayload {
				p := createRadarPayload(models.ChannelWhatsApp)
				p.Phone = ""
				return p
			},
			config: func(c *Config) {},
			reason: "no phone on payload",
		},
		{
			name: "email without an address",
			payload: func() models.NotificationPayload {
				p := createRadarPayload(models.ChannelEmail)
				p.Email = ""
				return p
			},
			config: func(c *Config) {},
			reason: "no email on payload",
		},
		{
			name:    "sms channel disabled",
			payload: func() models.NotificationPayload { return createRadarPayload(models.ChannelWhatsApp) },
			config:  func(c *Config) { c.SMSEnabled = false },
			reason:  "sms channel disabled",
		},
		{
			name:    "unknown channel",
			payload: func() models.NotificationPayload { return createRadarPayload("pigeon") },
			config:  func(c *Config) {},
			reason:  `unknown channel "pigeon"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()
			expectInsert(mock)

			cfg := createTestConfig()
			tt.config(cfg)

			snsSvc := &fakeSNS{}
			handler := NewHandler(cfg, db, snsSvc, &fakeSES{}, createDedupStore(t), createTestLogger(t))

			output, err := handler.execute(context.Background(), &Input{Payload: tt.payload()})

			require.NoError(t, err)
			assert.Equal(t, models.NotificationSkipped, output.Status)
			assert.Equal(t, tt.reason, output.Reason)
			assert.Empty(t, snsSvc.inputs)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestHandler_Execute_JobMatchMessage(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	expectInsert(mock)

	snsSvc := &fakeSNS{}
	handler := NewHandler(createTestConfig(), db, snsSvc, &fakeSES{}, createDedupStore(t), createTestLogger(t))

	payload := models.NotificationPayload{
		RecipientID:   "prof-1",
		RecipientType: "professional",
		Channel:       models.ChannelPush,
		JobID:         "job-1",
		JobTitle:      "Ortodontista para clinica na zona sul",
		Location:      "Sao Paulo - SP",
		DedupKey:      "match:perfect:job-1:prof-1",
	}

	output, err := handler.execute(context.Background(), &Input{Payload: payload})

	require.NoError(t, err)
	assert.Equal(t, models.NotificationSent, output.Status)
	require.Len(t, snsSvc.inputs, 1)
	assert.Equal(t, "Vaga compativel com seu perfil", awssdk.ToString(snsSvc.inputs[0].Subject))
	assert.Contains(t, awssdk.ToString(snsSvc.inputs[0].Message), "Ortodontista")
}

func TestHandler_Execute_CountsSentByChannel(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	expectInsert(mock)

	counter := metrics.NotificationsSent.WithLabelValues(models.ChannelEmail)
	before := testutil.ToFloat64(counter)

	handler := NewHandler(createTestConfig(), db, &fakeSNS{}, &fakeSES{}, createDedupStore(t), createTestLogger(t))

	output, err := handler.execute(context.Background(), &Input{Payload: createRadarPayload(models.ChannelEmail)})

	require.NoError(t, err)
	assert.Equal(t, models.NotificationSent, output.Status)
	assert.Equal(t, before+1, testutil.ToFloat64(counter))
}

func TestHandler_Execute_SkipDoesNotCount(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	expectInsert(mock)

	counter := metrics.NotificationsSent.WithLabelValues(models.ChannelWhatsApp)
	before := testutil.ToFloat64(counter)

	cfg := createTestConfig()
	cfg.SMSEnabled = false
	handler := NewHandler(cfg, db, &fakeSNS{}, &fakeSES{}, createDedupStore(t), createTestLogger(t))

	output, err := handler.execute(context.Background(), &Input{Payload: createRadarPayload(models.ChannelWhatsApp)})

	require.NoError(t, err)
	assert.Equal(t, models.NotificationSkipped, output.Status)
	assert.Equal(t, before, testutil.ToFloat64(counter))
}

func TestHandler_Execute_PersistFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO notifications`).
		WillReturnError(errors.New("connection refused"))

	handler := NewHandler(createTestConfig(), db, &fakeSNS{}, &fakeSES{}, createDedupStore(t), createTestLogger(t))

	output, err := handler.execute(context.Background(), &Input{Payload: createRadarPayload(models.ChannelPush)})

	assert.Error(t, err)
	assert.Nil(t, output)
}
