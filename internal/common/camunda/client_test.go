package camunda

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketplace-workers/internal/common/errors"
)

func newTestClient() *Client {
	return &Client{
		config: &ClientConfig{
			RetryConfig: &RetryConfig{
				MaxRetries: 3,
				BaseDelay:  time.Millisecond,
				MaxDelay:   5 * time.Millisecond,
			},
		},
	}
}

func TestExecuteWithRetry_TransientErrorRecovers(t *testing.T) {
	client := newTestClient()

	attempts := 0
	result, err := client.ExecuteWithRetry(context.Background(), func(ctx context.Context) (interface{}, error) {
		attempts++
		if attempts < 3 {
			return nil, stderrors.New("connection refused")
		}
		return "ok", nil
	}, "publish-listing-event")

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 3, attempts)
}

func TestExecuteWithRetry_PermanentErrorFailsFast(t *testing.T) {
	client := newTestClient()

	attempts := 0
	_, err := client.ExecuteWithRetry(context.Background(), func(ctx context.Context) (interface{}, error) {
		attempts++
		return nil, stderrors.New("NOT_FOUND: no subscription with message name")
	}, "publish-listing-event")

	require.Error(t, err)
	assert.Equal(t, 1, attempts, "non-transient errors must not be retried")

	var stdErr *errors.StandardError
	require.True(t, stderrors.As(err, &stdErr))
	assert.False(t, stdErr.Retryable)
}

func TestExecuteWithRetry_ExhaustedBudget(t *testing.T) {
	client := newTestClient()

	attempts := 0
	_, err := client.ExecuteWithRetry(context.Background(), func(ctx context.Context) (interface{}, error) {
		attempts++
		return nil, stderrors.New("deadline exceeded")
	}, "topology")

	require.Error(t, err)
	assert.Equal(t, 4, attempts, "initial attempt plus MaxRetries")

	var stdErr *errors.StandardError
	require.True(t, stderrors.As(err, &stdErr))
	assert.Equal(t, errors.ErrCodeQueryTimeout, stdErr.Code)
}

func TestExecuteWithRetry_ContextCancelled(t *testing.T) {
	client := newTestClient()
	client.config.RetryConfig.BaseDelay = time.Second

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.ExecuteWithRetry(ctx, func(ctx context.Context) (interface{}, error) {
		return nil, stderrors.New("unavailable")
	}, "topology")

	require.Error(t, err)
	assert.True(t, stderrors.Is(err, context.Canceled))
}

func TestIsRetryableZeebeError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"connection refused", stderrors.New("dial tcp: connection refused"), true},
		{"grpc unavailable", stderrors.New("rpc error: code = Unavailable desc = transport closing"), true},
		{"deadline exceeded", stderrors.New("context deadline exceeded"), true},
		{"broken pipe", stderrors.New("write: broken pipe"), true},
		{"invalid argument", stderrors.New("INVALID_ARGUMENT: correlationKey is empty"), false},
		{"not found", stderrors.New("NOT_FOUND: process not deployed"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isRetryableZeebeError(tt.err))
		})
	}
}

func TestMapZeebeError(t *testing.T) {
	err := mapZeebeError(stderrors.New("context deadline exceeded"), "publish-listing-event", 2)

	var stdErr *errors.StandardError
	require.True(t, stderrors.As(err, &stdErr))
	assert.Equal(t, errors.ErrCodeQueryTimeout, stdErr.Code)
	assert.True(t, stdErr.Retryable)
	assert.Contains(t, stdErr.Message, "publish-listing-event")
	assert.Contains(t, stdErr.Message, "after 2 attempts")
}
