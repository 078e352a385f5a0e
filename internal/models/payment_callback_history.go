package models

import (
	"time"

	"gorm.io/datatypes"
)

// WebhookOutcome is what the handler did with an inbound delivery
type WebhookOutcome string

const (
	WebhookOutcomeCompleted        WebhookOutcome = "completed"
	WebhookOutcomeAlreadyProcessed WebhookOutcome = "already_processed"
	WebhookOutcomeIgnored          WebhookOutcome = "ignored"
	WebhookOutcomeRejected         WebhookOutcome = "rejected"
	WebhookOutcomeFailed           WebhookOutcome = "failed"
)

// WebhookEvent keeps the raw payload of every Whop webhook delivery
type WebhookEvent struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	CreatedAt      time.Time      `json:"created_at"`
	Action         string         `gorm:"type:varchar(100);index" json:"action"`
	OrderRef       string         `gorm:"type:varchar(50);index" json:"order_ref"`
	Outcome        WebhookOutcome `gorm:"type:varchar(30)" json:"outcome"`
	SignatureValid bool           `json:"signature_valid"`
	Payload        datatypes.JSON `json:"payload"`
}
