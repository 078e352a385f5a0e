package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"whop_checkout_echo/internal/logging"
	"whop_checkout_echo/internal/models"
	"whop_checkout_echo/internal/services"
	"whop_checkout_echo/web/templates/pages"
)

// SendPaymentLinkTaskDef emails the customer their Whop payment link
type SendPaymentLinkTaskDef struct {
	orders     services.OrderStore
	reconciler *services.Reconciler
	mailer     services.Mailer
}

func NewSendPaymentLinkTask(orders services.OrderStore, reconciler *services.Reconciler, mailer services.Mailer) *SendPaymentLinkTaskDef {
	return &SendPaymentLinkTaskDef{orders: orders, reconciler: reconciler, mailer: mailer}
}

func (t *SendPaymentLinkTaskDef) TaskID() string {
	return services.TaskSendPaymentLink
}

// CreateTask builds a one-time task delivering the link for an order
func (t *SendPaymentLinkTaskDef) CreateTask(args services.SendPaymentLinkArgs) (*models.ScheduledTask, error) {
	return BuildScheduledTask(t.TaskID(), args, time.Now(), nil, models.ScheduledTaskTypeOneTime, 3)
}

func (t *SendPaymentLinkTaskDef) HandleExecution(ctx context.Context, task models.ScheduledTask) (map[string]interface{}, error) {
	var args services.SendPaymentLinkArgs
	if err := decodeArgs(task.Arguments, &args); err != nil {
		return nil, err
	}
	if args.OrderID == 0 {
		return nil, fmt.Errorf("order_id not provided")
	}
	log := logging.Component(nil, "task").WithFields(logrus.Fields{
		"task":     t.TaskID(),
		"order_id": args.OrderID,
	})

	order, err := t.orders.GetOrder(ctx, args.OrderID)
	if err != nil {
		return nil, fmt.Errorf("load order: %w", err)
	}
	if order.IsPaid() {
		log.Info("Order already paid, payment email skipped")
		return map[string]interface{}{"status": "skipped", "reason": "order already paid"}, nil
	}

	// the session exists by the time this task is queued; no note or email from here
	view, err := t.reconciler.EnsureSession(ctx, order.ID, services.SessionOptions{})
	if err != nil {
		return nil, fmt.Errorf("load payment session: %w", err)
	}
	if !view.Payable() {
		return map[string]interface{}{"status": "skipped", "reason": "no payable session"}, nil
	}

	recipient := args.Recipient
	if recipient == "" {
		recipient = order.BillingEmail
	}

	body, err := pages.RenderToString(ctx, pages.PaymentEmail(pages.PaymentEmailProps{
		OrderID:        order.ID,
		CustomerName:   order.BillingName,
		FormattedTotal: order.FormattedTotal(),
		PaymentURL:     view.URL,
	}))
	if err != nil {
		return nil, fmt.Errorf("render payment email: %w", err)
	}

	subject := fmt.Sprintf("Complete your payment for order #%d", order.ID)
	if err := t.mailer.SendEmail([]string{recipient}, subject, body); err != nil {
		return nil, err
	}

	log.WithField("recipient", recipient).Info("Payment email sent")
	return map[string]interface{}{
		"status":    "sent",
		"recipient": recipient,
	}, nil
}
