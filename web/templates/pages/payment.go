package pages

import (
	"bytes"
	"context"
	"html/template"
	"io"
	"strconv"
	"time"

	"github.com/a-h/templ"
)

// PaymentBoxProps feeds the "finish paying" box on the receipt page
type PaymentBoxProps struct {
	OrderID        uint
	FormattedTotal string
	PaymentURL     string
	Email          string
}

var paymentBoxTmpl = template.Must(template.New("payment_box").Parse(`<section class="card whop-payment-box">
<h2>Complete your payment</h2>
<p>Finish paying {{.FormattedTotal}} to confirm order #{{.OrderID}}.</p>
<p><a class="button" href="{{.PaymentURL}}" target="_blank" rel="noopener">Pay now - {{.FormattedTotal}}</a></p>
{{if .Email}}<p class="muted">We also emailed the link to {{.Email}}.</p>{{end}}
</section>`))

// PaymentBox renders nothing when there is no link to pay
func PaymentBox(props PaymentBoxProps) templ.Component {
	if props.PaymentURL == "" {
		return templ.NopComponent
	}
	return templ.FromGoHTML(paymentBoxTmpl, props)
}

// ReceiptPageProps feeds the order-received page
type ReceiptPageProps struct {
	OrderID        uint
	FormattedTotal string
	Paid           bool
	Box            PaymentBoxProps
	Notice         string
}

var receiptTmpl = template.Must(template.New("receipt").Parse(`<div class="card">
<h1>Thank you. Your order #{{.OrderID}} has been received.</h1>
<p>Total: <strong>{{.FormattedTotal}}</strong></p>
{{if .Paid}}<p>Your payment has been received. We are preparing your order.</p>{{end}}
{{if .Notice}}<p class="muted">{{.Notice}}</p>{{end}}
</div>`))

func ReceiptPage(props ReceiptPageProps) templ.Component {
	body := templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if err := receiptTmpl.Execute(w, props); err != nil {
			return err
		}
		if props.Paid {
			return nil
		}
		return PaymentBox(props.Box).Render(ctx, w)
	})
	return Layout("Order received", body)
}

// PaymentEmailProps feeds the block inserted into the customer email
type PaymentEmailProps struct {
	OrderID        uint
	CustomerName   string
	FormattedTotal string
	PaymentURL     string
}

var paymentEmailTmpl = template.Must(template.New("payment_email").Parse(`<div style="font-family:Arial,sans-serif;max-width:600px;margin:0 auto">
{{if .CustomerName}}<p>Hi {{.CustomerName}},</p>{{end}}
<div style="background:#f8f9fa;border:1px solid #dee2e6;border-radius:8px;padding:24px;margin:20px 0;text-align:center">
<h2 style="margin:0 0 12px">Complete Your Payment</h2>
<p style="margin:0 0 20px">Your order is reserved. Use the secure link below to pay.</p>
<a href="{{.PaymentURL}}" style="display:inline-block;background:#ff6243;color:#ffffff;padding:14px 28px;border-radius:6px;text-decoration:none;font-weight:bold">Pay Now - {{.FormattedTotal}}</a>
<p style="margin:16px 0 0;color:#6c757d;font-size:13px">Order #{{.OrderID}}</p>
</div>
</div>`))

func PaymentEmail(props PaymentEmailProps) templ.Component {
	if props.PaymentURL == "" {
		return templ.NopComponent
	}
	return templ.FromGoHTML(paymentEmailTmpl, props)
}

// RenderToString renders a component into an HTML string, for email bodies
func RenderToString(ctx context.Context, c templ.Component) (string, error) {
	var buf bytes.Buffer
	if err := c.Render(ctx, &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// AdminPaymentPanelProps feeds the admin order panel
type AdminPaymentPanelProps struct {
	OrderID     uint
	HasSession  bool
	Status      string
	PlanID      string
	PaymentURL  string
	PaymentDate *time.Time
	EmailSent   bool
}

var adminPanelTmpl = template.Must(template.New("admin_panel").Parse(`<div class="card whop-admin-panel">
<h2>Whop Payment</h2>
{{if .HasSession}}
<p><strong>Status:</strong> <span class="badge badge-{{.Status}}">{{.Status}}</span></p>
{{if .PlanID}}<p><strong>Plan ID:</strong> <code>{{.PlanID}}</code></p>{{end}}
{{if .PaymentDate}}<p><strong>Payment Date:</strong> {{.PaymentDate.Format "2006-01-02 15:04:05"}}</p>{{end}}
<p><strong>Email sent:</strong> {{if .EmailSent}}yes{{else}}no{{end}}</p>
{{if .PaymentURL}}<p><a href="{{.PaymentURL}}" target="_blank" rel="noopener">View Payment Link</a></p>{{end}}
{{else}}
<p class="muted">No payment link generated yet</p>
{{end}}
</div>`))

func AdminPaymentPanel(props AdminPaymentPanelProps) templ.Component {
	if props.Status == "" {
		props.Status = "pending"
	}
	return Layout("Order #"+strconv.FormatUint(uint64(props.OrderID), 10)+" payment", templ.FromGoHTML(adminPanelTmpl, props))
}
