// internal/models/notification.go
package models

// Notification channels.
const (
	ChannelWhatsApp = "whatsapp"
	ChannelPush     = "push"
	ChannelEmail    = "email"
)

// Notification statuses.
const (
	NotificationSent    = "sent"
	NotificationFailed  = "failed"
	NotificationSkipped = "skipped"
)

// Notification is the persisted record of one dispatched (or attempted)
// payload, shown on the subscriber's history screen.
type Notification struct {
	ID             string `json:"id"`
	RecipientID    string `json:"recipientId"`
	RecipientType  string `json:"recipientType"` // "clinic" or "professional"
	SubscriptionID string `json:"subscriptionId,omitempty"`
	ListingID      string `json:"listingId,omitempty"`
	JobID          string `json:"jobId,omitempty"`
	Channel        string `json:"channel"`
	Status         string `json:"status"`
	Title          string `json:"title"`
	Body           string `json:"body"`
	SentAt         string `json:"sentAt"`
	CreatedAt      string `json:"createdAt"`
}

// NotificationPayload is the contract handed from the matching workers to
// the send-notification worker. The emitters guarantee completeness (listing
// title, price, location, subscription id); delivery is not guaranteed.
type NotificationPayload struct {
	RecipientID    string  `json:"recipientId"`
	RecipientType  string  `json:"recipientType"`
	RecipientName  string  `json:"recipientName,omitempty"`
	Phone          string  `json:"phone,omitempty"`
	Email          string  `json:"email,omitempty"`
	Channel        string  `json:"channel"`
	SubscriptionID string  `json:"subscriptionId,omitempty"`
	ListingID      string  `json:"listingId,omitempty"`
	ListingTitle   string  `json:"listingTitle,omitempty"`
	ListingPrice   float64 `json:"listingPrice,omitempty"`
	Location       string  `json:"location,omitempty"`
	JobID          string  `json:"jobId,omitempty"`
	JobTitle       string  `json:"jobTitle,omitempty"`
	// DedupKey, when set, is claimed by the dispatcher before sending so a
	// payload that is emitted again (page reload, re-scored job) goes out at
	// most once.
	DedupKey string `json:"dedupKey,omitempty"`
}
