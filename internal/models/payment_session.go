package models

import (
	"time"

	"gorm.io/datatypes"
)

// SessionStatus is the lifecycle state of a Whop payment session.
// A missing row means no session has been created yet.
type SessionStatus string

const (
	SessionStatusPending   SessionStatus = "pending"
	SessionStatusCompleted SessionStatus = "completed"
)

// PaymentSession is the Whop plan + checkout created for one order.
// PlanID, CheckoutID and PaymentURL are written in the same insert and never change afterwards.
type PaymentSession struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	OrderID          uint           `gorm:"not null;uniqueIndex" json:"order_id"`
	PlanID           string         `gorm:"type:varchar(100)" json:"plan_id"`
	CheckoutID       string         `gorm:"type:varchar(100)" json:"checkout_id"`
	PaymentURL       string         `gorm:"type:text" json:"payment_url"`
	Status           SessionStatus  `gorm:"type:varchar(20);not null;index" json:"status"`
	PaymentDate      *time.Time     `json:"payment_date"`
	EmailSent        bool           `gorm:"not null;default:false" json:"email_sent"`
	RequestMetadata  datatypes.JSON `json:"request_metadata"`
	ResponseMetadata datatypes.JSON `json:"response_metadata"`
}

// IsCompleted reports whether the webhook has already finalized the session
func (s PaymentSession) IsCompleted() bool {
	return s.Status == SessionStatusCompleted
}
