// internal/workers/notification/send-notification/config.go
package sendnotification

import "time"

type Config struct {
	// EmailFrom is the verified SES sender address.
	EmailFrom string
	// PushTopicARN is the SNS topic push subscribers are fanned out from.
	PushTopicARN string
	SMSEnabled   bool
	EmailEnabled bool
	// DedupTTL bounds how long a claimed dedup key blocks re-sends.
	DedupTTL time.Duration
	Timeout  time.Duration
}

func LoadConfig() *Config {
	return &Config{
		SMSEnabled:   true,
		EmailEnabled: true,
		DedupTTL:     7 * 24 * time.Hour,
		Timeout:      15 * time.Second,
	}
}
