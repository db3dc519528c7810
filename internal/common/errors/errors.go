// Package errors provides standardized error handling for BPMN workflow integration.
package errors

import (
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	// Marketplace / listing errors
	ErrCodeListingNotFound     ErrorCode = "LISTING_NOT_FOUND"
	ErrCodeListingBlocked      ErrorCode = "LISTING_BLOCKED"
	ErrCodeScorePersistFailed  ErrorCode = "SCORE_PERSIST_FAILED"
	ErrCodeIndexWriteFailed    ErrorCode = "INDEX_WRITE_FAILED"

	// Radar subscription errors
	ErrCodeRadarInvalid      ErrorCode = "RADAR_INVALID"
	ErrCodeRadarExpired      ErrorCode = "RADAR_EXPIRED"
	ErrCodeRadarQueryFailed  ErrorCode = "RADAR_QUERY_FAILED"
	ErrCodeRadarUpdateFailed ErrorCode = "RADAR_UPDATE_FAILED"

	// Matching errors
	ErrCodeMatchFailed      ErrorCode = "MATCH_FAILED"
	ErrCodeJobNotFound      ErrorCode = "JOB_NOT_FOUND"
	ErrCodeCandidatesFailed ErrorCode = "CANDIDATE_QUERY_FAILED"

	// Infrastructure errors
	ErrCodeDatabaseConnectionFailed ErrorCode = "DATABASE_CONNECTION_FAILED"
	ErrCodeQueryExecutionFailed     ErrorCode = "QUERY_EXECUTION_FAILED"
	ErrCodeQueryTimeout             ErrorCode = "QUERY_TIMEOUT"

	// Notification errors
	ErrCodeNotificationSendFailed ErrorCode = "NOTIFICATION_SEND_FAILED"
	ErrCodeNotificationSkipped    ErrorCode = "NOTIFICATION_SKIPPED"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// ==========================
// 2. BPMN Error Integration
// ==========================

// BPMNError represents an error that can be thrown to the workflow engine.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

// ToErrorVariables returns a map suitable for setting job fail variables.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}

	if e.ErrorVariables != nil {
		for k, v := range e.ErrorVariables {
			vars[k] = v
		}
	}

	return vars
}

// ConvertToBPMNError maps a StandardError onto the BPMN error contract.
func ConvertToBPMNError(err *StandardError) *BPMNError {
	return &BPMNError{
		Code:      string(err.Code),
		Message:   err.Message,
		Details:   err.Details,
		Retryable: err.Retryable,
		Retries:   GetRetryCount(err.Code),
	}
}

// ==========================
// 3. Error Constructors
// ==========================

// NewRadarInvalidError creates a non-retryable validation error for a radar
// subscription that cannot be persisted (no match basis or no contact).
func NewRadarInvalidError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeRadarInvalid,
		Message:   "Radar subscription failed validation",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewRadarExpiredError marks a subscription past its 60-day lifetime.
func NewRadarExpiredError(subscriptionID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeRadarExpired,
		Message:   "Radar subscription expired",
		Details:   subscriptionID,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewQueryFailedError wraps an entity-store read failure; callers may retry.
func NewQueryFailedError(op string, cause error) *StandardError {
	return &StandardError{
		Code:      ErrCodeQueryExecutionFailed,
		Message:   fmt.Sprintf("Query failed: %s", op),
		Details:   cause.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewNotificationSendError wraps a dispatch failure. It is reported, never
// replayed by the core: the de-duplication ledger stands.
func NewNotificationSendError(channel string, cause error) *StandardError {
	return &StandardError{
		Code:      ErrCodeNotificationSendFailed,
		Message:   fmt.Sprintf("Notification send failed on channel %s", channel),
		Details:   cause.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewMatchFailedError wraps a scoring/matching sweep failure.
func NewMatchFailedError(details string, cause error) *StandardError {
	std := &StandardError{
		Code:      ErrCodeMatchFailed,
		Message:   "Match computation failed",
		Details:   details,
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
	if cause != nil {
		std.Details = fmt.Sprintf("%s: %v", details, cause)
	}
	return std
}

// ==========================
// 4. Retry / Category Policy
// ==========================

var retryCounts = map[ErrorCode]int{
	ErrCodeDatabaseConnectionFailed: 5,
	ErrCodeQueryExecutionFailed:     3,
	ErrCodeQueryTimeout:             3,
	ErrCodeRadarQueryFailed:         3,
	ErrCodeRadarUpdateFailed:        3,
	ErrCodeCandidatesFailed:         3,
	ErrCodeScorePersistFailed:       3,
	ErrCodeIndexWriteFailed:         3,
	ErrCodeMatchFailed:              2,
}

// GetRetryCount returns how many engine-side retries a code is worth.
// Validation and dispatch errors return 0 and are thrown as BPMN errors.
func GetRetryCount(code ErrorCode) int {
	return retryCounts[code]
}

// GetErrorCategory groups codes for logging and metrics labels.
func GetErrorCategory(code ErrorCode) string {
	s := string(code)
	switch {
	case strings.HasPrefix(s, "RADAR_"):
		return "radar"
	case strings.HasPrefix(s, "LISTING_") || strings.HasPrefix(s, "SCORE_") || strings.HasPrefix(s, "INDEX_"):
		return "marketplace"
	case strings.HasPrefix(s, "MATCH_") || strings.HasPrefix(s, "JOB_") || strings.HasPrefix(s, "CANDIDATE_"):
		return "matching"
	case strings.HasPrefix(s, "NOTIFICATION_"):
		return "notification"
	default:
		return "infrastructure"
	}
}
