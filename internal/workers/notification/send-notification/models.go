// internal/workers/notification/send-notification/models.go
package sendnotification

import "marketplace-workers/internal/models"

type Input struct {
	Payload models.NotificationPayload `json:"payload"`
}

type Output struct {
	NotificationID string `json:"notificationId,omitempty"`
	Channel        string `json:"channel"`
	Status         string `json:"status"`
	Reason         string `json:"reason,omitempty"`
}
