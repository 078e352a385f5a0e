package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PaymentMethodWhop is the payment method id orders carry when paid through Whop
const PaymentMethodWhop = "whop_payment"

// OrderStatus mirrors the store's order states
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusOnHold     OrderStatus = "on-hold"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusCancelled  OrderStatus = "cancelled"
	OrderStatusFailed     OrderStatus = "failed"
)

// Order is the shop order a payment session is attached to
type Order struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	OrderKey      string          `gorm:"type:varchar(64);uniqueIndex" json:"order_key"`
	Status        OrderStatus     `gorm:"type:varchar(20);default:'pending'" json:"status"`
	Total         decimal.Decimal `gorm:"type:decimal(15,2)" json:"total"`
	Currency      string          `gorm:"type:varchar(3)" json:"currency"`
	BillingEmail  string          `gorm:"type:varchar(255)" json:"billing_email"`
	BillingName   string          `gorm:"type:varchar(255)" json:"billing_name"`
	PaymentMethod string          `gorm:"type:varchar(50)" json:"payment_method"`
	PaidAt        *time.Time      `json:"paid_at"`

	Notes []OrderNote `gorm:"foreignKey:OrderID" json:"notes,omitempty"`
}

// IsPaid is true once the order has left the awaiting-payment states
func (o Order) IsPaid() bool {
	if o.PaidAt != nil {
		return true
	}
	return o.Status == OrderStatusProcessing || o.Status == OrderStatusCompleted
}

// FormattedTotal renders the total with its currency symbol, e.g. "$49.99"
func (o Order) FormattedTotal() string {
	return FormatMoney(o.Total, o.Currency)
}

// OrderNote is an operator-visible audit line on an order
type OrderNote struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	OrderID   uint      `gorm:"index" json:"order_id"`
	Content   string    `gorm:"type:text" json:"content"`
}

var currencySymbols = map[string]string{
	"USD": "$",
	"CAD": "CA$",
	"AUD": "A$",
	"EUR": "€",
	"GBP": "£",
	"JPY": "¥",
	"INR": "₹",
	"IDR": "Rp",
}

var zeroDecimalCurrencies = map[string]bool{
	"JPY": true,
	"KRW": true,
}

// FormatMoney formats an amount for notes, emails and pages
func FormatMoney(amount decimal.Decimal, currency string) string {
	code := strings.ToUpper(currency)
	places := int32(2)
	if zeroDecimalCurrencies[code] {
		places = 0
	}
	value := amount.StringFixed(places)

	if symbol, ok := currencySymbols[code]; ok {
		return symbol + value
	}
	if code == "" {
		return value
	}
	return fmt.Sprintf("%s %s", value, code)
}
