package pages

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaymentBox(t *testing.T) {
	html, err := RenderToString(context.Background(), PaymentBox(PaymentBoxProps{
		OrderID:        42,
		FormattedTotal: "$49.99",
		PaymentURL:     "https://whop.com/checkout/ch_1",
		Email:          "jane@example.com",
	}))
	require.NoError(t, err)

	assert.Contains(t, html, "Finish paying $49.99 to confirm order #42.")
	assert.Contains(t, html, `href="https://whop.com/checkout/ch_1"`)
	assert.Contains(t, html, "Pay now - $49.99")
	assert.Contains(t, html, "We also emailed the link to jane@example.com.")
}

func TestPaymentBox_NoLink(t *testing.T) {
	html, err := RenderToString(context.Background(), PaymentBox(PaymentBoxProps{OrderID: 42}))
	require.NoError(t, err)
	assert.Empty(t, html)
}

func TestReceiptPage_PaidHidesBox(t *testing.T) {
	html, err := RenderToString(context.Background(), ReceiptPage(ReceiptPageProps{
		OrderID:        42,
		FormattedTotal: "$49.99",
		Paid:           true,
		Box:            PaymentBoxProps{OrderID: 42, PaymentURL: "https://whop.com/checkout/ch_1"},
	}))
	require.NoError(t, err)
	assert.Contains(t, html, "Your payment has been received.")
	assert.NotContains(t, html, "whop-payment-box")
}

func TestPaymentEmail(t *testing.T) {
	html, err := RenderToString(context.Background(), PaymentEmail(PaymentEmailProps{
		OrderID:        42,
		CustomerName:   "Jane <script>",
		FormattedTotal: "$49.99",
		PaymentURL:     "https://whop.com/checkout/ch_1",
	}))
	require.NoError(t, err)
	assert.Contains(t, html, "Complete Your Payment")
	assert.Contains(t, html, "Pay Now - $49.99")
	assert.Contains(t, html, "Order #42")
	assert.NotContains(t, html, "<script>")
}

func TestAdminPaymentPanel(t *testing.T) {
	paidAt := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	html, err := RenderToString(context.Background(), AdminPaymentPanel(AdminPaymentPanelProps{
		OrderID:     42,
		HasSession:  true,
		Status:      "completed",
		PlanID:      "plan_1",
		PaymentURL:  "https://whop.com/checkout/ch_1",
		PaymentDate: &paidAt,
	}))
	require.NoError(t, err)
	assert.Contains(t, html, "plan_1")
	assert.Contains(t, html, "2026-03-01 10:00:00")
	assert.Contains(t, html, "View Payment Link")

	empty, err := RenderToString(context.Background(), AdminPaymentPanel(AdminPaymentPanelProps{OrderID: 7}))
	require.NoError(t, err)
	assert.Contains(t, empty, "No payment link generated yet")
}
