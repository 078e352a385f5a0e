package services

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"whop_checkout_echo/internal/logging"
	"whop_checkout_echo/internal/models"
)

// TaskSendPaymentLink is the worker task that emails the payment link
const TaskSendPaymentLink = "send_payment_link"

// SendPaymentLinkArgs are the arguments stored on a send_payment_link task
type SendPaymentLinkArgs struct {
	OrderID   uint   `json:"order_id"`
	Recipient string `json:"recipient"`
}

// Notifier delivers the "awaiting payment" message for an order
type Notifier interface {
	NotifyAwaitingPayment(ctx context.Context, order *models.Order, view *SessionView) error
}

// CustomerNotifier claims the email_sent flag and hands delivery to the worker
type CustomerNotifier struct {
	sessions SessionStore
	orders   OrderStore
	tasks    TaskScheduler
	log      *logrus.Entry
}

func NewCustomerNotifier(sessions SessionStore, orders OrderStore, tasks TaskScheduler) *CustomerNotifier {
	return &CustomerNotifier{
		sessions: sessions,
		orders:   orders,
		tasks:    tasks,
		log:      logging.Component(nil, "notifier"),
	}
}

func (n *CustomerNotifier) NotifyAwaitingPayment(ctx context.Context, order *models.Order, view *SessionView) error {
	if order.BillingEmail == "" || view == nil || view.URL == "" || view.Status == models.SessionStatusCompleted {
		return nil
	}

	log := n.log.WithField("order_id", order.ID)

	claimed, err := n.sessions.MarkEmailSent(ctx, order.ID)
	if err != nil {
		return fmt.Errorf("claim email flag: %w", err)
	}
	if !claimed {
		log.Debug("Payment email already sent, skipping")
		return nil
	}

	task := &models.ScheduledTask{
		TaskName: TaskSendPaymentLink,
		Arguments: map[string]interface{}{
			"order_id":  order.ID,
			"recipient": order.BillingEmail,
		},
		Due:        time.Now(),
		Status:     models.ScheduledTaskStatusActive,
		TaskType:   models.ScheduledTaskTypeOneTime,
		MaxAttempt: 3,
	}
	if err := n.tasks.Schedule(ctx, task); err != nil {
		log.WithError(err).Error("Failed to queue payment email")
		if noteErr := n.orders.AddNote(ctx, order.ID, fmt.Sprintf("Whop payment email could not be queued: %v", err)); noteErr != nil {
			log.WithError(noteErr).Error("Failed to add order note")
		}
		return fmt.Errorf("queue payment email: %w", err)
	}

	log.WithField("task_id", task.ID).Info("Payment email queued")
	return nil
}
