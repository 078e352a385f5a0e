package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"whop_checkout_echo/internal/logging"
	"whop_checkout_echo/internal/models"
)

const sessionLockTTL = 30 * time.Second

// SessionOptions controls the side effects of EnsureSession
type SessionOptions struct {
	SendEmail bool
	AddNote   bool
}

// DefaultSessionOptions is what checkout completion uses
func DefaultSessionOptions() SessionOptions {
	return SessionOptions{SendEmail: true, AddNote: true}
}

// SessionView is the read model handed to pages, emails and the admin API
type SessionView struct {
	URL         string               `json:"url"`
	PlanID      string               `json:"plan_id"`
	CheckoutID  string               `json:"checkout_id"`
	Status      models.SessionStatus `json:"status"`
	PaymentDate *time.Time           `json:"payment_date,omitempty"`
	EmailSent   bool                 `json:"email_sent"`
}

// Payable is true when there is a link the customer can still follow
func (v *SessionView) Payable() bool {
	return v != nil && v.URL != "" && v.Status != models.SessionStatusCompleted
}

func newSessionView(s *models.PaymentSession) *SessionView {
	return &SessionView{
		URL:         s.PaymentURL,
		PlanID:      s.PlanID,
		CheckoutID:  s.CheckoutID,
		Status:      s.Status,
		PaymentDate: s.PaymentDate,
		EmailSent:   s.EmailSent,
	}
}

// Outcome is the result of applying a completion event
type Outcome string

const (
	OutcomeCompleted        Outcome = "completed"
	OutcomeAlreadyProcessed Outcome = "already_processed"
)

// Reconciler owns the NoSession -> Pending -> Completed lifecycle of an order's payment session
type Reconciler struct {
	orders   OrderStore
	sessions SessionStore
	plans    *PlanFactory
	api      WhopAPI
	notifier Notifier
	locker   Locker
	appURL   string
	now      func() time.Time
	log      *logrus.Entry
}

type ReconcilerOption func(*Reconciler)

func WithNotifier(n Notifier) ReconcilerOption {
	return func(r *Reconciler) { r.notifier = n }
}

func WithLocker(l Locker) ReconcilerOption {
	return func(r *Reconciler) {
		if l != nil {
			r.locker = l
		}
	}
}

func WithClock(now func() time.Time) ReconcilerOption {
	return func(r *Reconciler) { r.now = now }
}

func NewReconciler(orders OrderStore, sessions SessionStore, api WhopAPI, productID, appURL string, opts ...ReconcilerOption) *Reconciler {
	r := &Reconciler{
		orders:   orders,
		sessions: sessions,
		plans:    NewPlanFactory(api, productID),
		api:      api,
		locker:   NopLocker{},
		appURL:   strings.TrimRight(appURL, "/"),
		now:      time.Now,
		log:      logging.Component(nil, "reconciler"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// EnsureSession returns the order's payment session, creating the Whop plan and
// checkout on first use. Repeated calls reuse the stored session.
func (r *Reconciler) EnsureSession(ctx context.Context, orderID uint, opts SessionOptions) (*SessionView, error) {
	order, err := r.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	log := r.log.WithField("order_id", order.ID)

	if order.PaymentMethod != models.PaymentMethodWhop {
		return nil, ErrInvalidMethod
	}

	existing, err := r.sessions.FindSession(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("load payment session: %w", err)
	}
	if existing != nil {
		return r.reuse(ctx, order, existing, opts), nil
	}

	if strings.TrimSpace(order.BillingEmail) == "" {
		r.note(ctx, order.ID, "Whop payment error: Missing customer email.")
		return nil, ErrMissingContact
	}

	release, locked, err := r.locker.Acquire(ctx, sessionLockKey(order.ID), sessionLockTTL)
	if err != nil {
		log.WithError(err).Warn("Session lock unavailable, continuing without it")
		locked = true
	}
	defer release()

	// whoever held the lock may have finished by now
	existing, err = r.sessions.FindSession(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("load payment session: %w", err)
	}
	if existing != nil {
		return r.reuse(ctx, order, existing, opts), nil
	}
	if !locked {
		return nil, ErrSessionInProgress
	}

	planID, err := r.plans.CreatePlan(ctx, order.ID, order.Total, order.Currency)
	if err != nil {
		log.WithError(err).Error("Failed to create Whop plan")
		r.note(ctx, order.ID, fmt.Sprintf("Whop payment error: Failed to create plan for %s.", order.FormattedTotal()))
		return nil, fmt.Errorf("create whop plan: %w", err)
	}
	log = log.WithField("plan_id", planID)

	req := CheckoutSessionRequest{
		PlanID:      planID,
		RedirectURL: r.ReceiptURL(order),
		Metadata: map[string]string{
			"woo_order_id":   strconv.FormatUint(uint64(order.ID), 10),
			"order_key":      order.OrderKey,
			"order_total":    order.Total.StringFixed(2),
			"order_currency": strings.ToUpper(order.Currency),
		},
	}
	checkout, err := r.api.CreateCheckoutSession(ctx, req)
	if err != nil {
		log.WithError(err).Warn("Checkout session failed, Whop plan left orphaned")
		r.note(ctx, order.ID, "Whop payment error: "+apiMessage(err))
		return nil, fmt.Errorf("create whop checkout session: %w", err)
	}

	paymentURL := checkout.PaymentURL()
	if paymentURL == "" {
		log.WithField("checkout_id", checkout.ID).Warn("Checkout session has no payment URL, Whop plan left orphaned")
		r.note(ctx, order.ID, "Whop payment error: No checkout URL received from API.")
		return nil, ErrMissingPaymentURL
	}

	reqJSON, _ := json.Marshal(req)
	respJSON, _ := json.Marshal(checkout)

	stored, created, err := r.sessions.CreateSession(ctx, &models.PaymentSession{
		OrderID:          order.ID,
		PlanID:           planID,
		CheckoutID:       checkout.ID,
		PaymentURL:       paymentURL,
		Status:           models.SessionStatusPending,
		RequestMetadata:  reqJSON,
		ResponseMetadata: respJSON,
	})
	if err != nil {
		log.WithError(err).Error("Failed to save payment session, Whop plan left orphaned")
		return nil, fmt.Errorf("save payment session: %w", err)
	}
	if !created {
		log.Warn("Another request stored a session first, Whop plan left orphaned")
		return newSessionView(stored), nil
	}

	log.WithField("checkout_id", stored.CheckoutID).Info("Whop payment session created")

	if opts.AddNote {
		r.note(ctx, order.ID, fmt.Sprintf("Whop payment link created (Plan: %s, Amount: %s).", planID, order.FormattedTotal()))
	}

	view := newSessionView(stored)
	if opts.SendEmail {
		r.notify(ctx, order, view)
	}
	return view, nil
}

func (r *Reconciler) reuse(ctx context.Context, order *models.Order, session *models.PaymentSession, opts SessionOptions) *SessionView {
	view := newSessionView(session)
	if session.IsCompleted() {
		return view
	}
	if opts.SendEmail {
		r.notify(ctx, order, view)
	}
	return view
}

// Complete applies a payment-completed event. Duplicates return OutcomeAlreadyProcessed.
func (r *Reconciler) Complete(ctx context.Context, orderRef string) (Outcome, error) {
	orderID, err := ParseOrderRef(orderRef)
	if err != nil {
		return "", err
	}

	order, err := r.orders.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return "", ErrOrderNotFound
		}
		return "", err
	}
	log := r.log.WithField("order_id", order.ID)

	now := r.now()
	claimed, err := r.sessions.CompleteSession(ctx, order.ID, now)
	if err != nil {
		return "", fmt.Errorf("complete payment session: %w", err)
	}

	if !claimed {
		if !order.IsPaid() {
			log.Warn("Session completed but order not paid, re-applying")
			if err := r.orders.MarkPaid(ctx, order.ID, now); err != nil {
				return "", fmt.Errorf("mark order paid: %w", err)
			}
		}
		log.Info("Duplicate completion ignored")
		return OutcomeAlreadyProcessed, nil
	}

	if err := r.orders.MarkPaid(ctx, order.ID, now); err != nil {
		return "", fmt.Errorf("mark order paid: %w", err)
	}
	r.note(ctx, order.ID, "Payment completed via Whop webhook")

	log.Info("Whop payment completed")
	return OutcomeCompleted, nil
}

// View returns the stored session for an order, or nil when none exists yet
func (r *Reconciler) View(ctx context.Context, orderID uint) (*SessionView, error) {
	session, err := r.sessions.FindSession(ctx, orderID)
	if err != nil || session == nil {
		return nil, err
	}
	return newSessionView(session), nil
}

// ReceiptURL is where Whop sends the customer after paying
func (r *Reconciler) ReceiptURL(order *models.Order) string {
	q := url.Values{}
	q.Set("order_id", strconv.FormatUint(uint64(order.ID), 10))
	q.Set("key", order.OrderKey)
	return fmt.Sprintf("%s/checkout/order-received/%d?%s", r.appURL, order.ID, q.Encode())
}

// ParseOrderRef reads a positive decimal order id
func ParseOrderRef(ref string) (uint, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return 0, ErrNoOrderID
	}
	id, err := strconv.ParseUint(ref, 10, 64)
	if err != nil || id == 0 {
		return 0, ErrNoOrderID
	}
	return uint(id), nil
}

func (r *Reconciler) note(ctx context.Context, orderID uint, note string) {
	if err := r.orders.AddNote(ctx, orderID, note); err != nil {
		r.log.WithError(err).WithField("order_id", orderID).Error("Failed to add order note")
	}
}

func (r *Reconciler) notify(ctx context.Context, order *models.Order, view *SessionView) {
	if r.notifier == nil {
		return
	}
	if err := r.notifier.NotifyAwaitingPayment(ctx, order, view); err != nil {
		r.log.WithError(err).WithField("order_id", order.ID).Error("Failed to notify customer")
		return
	}
	if order.BillingEmail != "" {
		view.EmailSent = true
	}
}

func apiMessage(err error) string {
	if apiErr, ok := AsAPIError(err); ok && apiErr.Message != "" {
		return apiErr.Message
	}
	return err.Error()
}

func sessionLockKey(orderID uint) string {
	return fmt.Sprintf("whop:session-lock:%d", orderID)
}
