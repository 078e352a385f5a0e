package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"whop_checkout_echo/internal/config"
	"whop_checkout_echo/internal/logging"
	"whop_checkout_echo/internal/models"
)

// PaymentResult tells the checkout page where to send the customer
type PaymentResult struct {
	Redirect string       `json:"redirect"`
	Session  *SessionView `json:"session,omitempty"`
}

// Gateway is the order-placed entry point of the Whop payment method
type Gateway struct {
	cfg        config.WhopConfig
	orders     OrderStore
	reconciler *Reconciler
	log        *logrus.Entry
}

func NewGateway(cfg config.WhopConfig, orders OrderStore, reconciler *Reconciler) *Gateway {
	return &Gateway{
		cfg:        cfg,
		orders:     orders,
		reconciler: reconciler,
		log:        logging.Component(nil, "gateway"),
	}
}

// ProcessPayment puts the order on hold, makes sure it has a payment link and
// picks the redirect according to the checkout mode.
func (g *Gateway) ProcessPayment(ctx context.Context, orderID uint) (*PaymentResult, error) {
	order, err := g.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	log := g.log.WithFields(logrus.Fields{"order_id": order.ID, "mode": g.cfg.CheckoutMode})

	if order.PaymentMethod != models.PaymentMethodWhop {
		return nil, ErrInvalidMethod
	}

	if err := g.cfg.Validate(); err != nil {
		log.WithError(err).Error("Whop API not configured")
		g.note(ctx, order.ID, "Payment failed: Whop API not configured")
		return nil, err
	}

	if !order.IsPaid() {
		if err := g.orders.MarkOnHold(ctx, order.ID, "Awaiting Whop payment confirmation"); err != nil {
			return nil, fmt.Errorf("mark order on-hold: %w", err)
		}
		g.note(ctx, order.ID, "Customer initiated Whop payment. Awaiting payment link generation.")
	}

	view, err := g.reconciler.EnsureSession(ctx, order.ID, DefaultSessionOptions())

	if g.cfg.CheckoutMode == config.CheckoutModeRedirect {
		if err == nil && !view.Payable() {
			err = errors.New("unable to start Whop checkout session")
		}
		if err != nil {
			log.WithError(err).Error("Whop checkout redirect failed")
			g.note(ctx, order.ID, "Whop checkout redirect failed: "+apiMessage(err))
			return nil, err
		}
		return &PaymentResult{Redirect: view.URL, Session: view}, nil
	}

	if err != nil {
		log.WithError(err).Warn("Payment link not generated during checkout")
	}
	return &PaymentResult{Redirect: g.reconciler.ReceiptURL(order), Session: view}, nil
}

func (g *Gateway) note(ctx context.Context, orderID uint, note string) {
	if err := g.orders.AddNote(ctx, orderID, note); err != nil {
		g.log.WithError(err).WithField("order_id", orderID).Error("Failed to add order note")
	}
}

// ConnectionTester checks the configured credentials against GET /products/{id}
type ConnectionTester struct {
	cfg   config.WhopConfig
	api   WhopAPI
	cache *RedisCache
}

func NewConnectionTester(cfg config.WhopConfig, api WhopAPI, cache *RedisCache) *ConnectionTester {
	return &ConnectionTester{cfg: cfg, api: api, cache: cache}
}

// Test returns the operator-facing message and whether the check passed
func (t *ConnectionTester) Test(ctx context.Context) (string, bool) {
	if t.cfg.APIKey == "" || t.cfg.ProductID == "" {
		return "API Key and Product ID are required.", false
	}

	key := "whop:product:" + t.cfg.ProductID
	product, err := GetOrSet(t.cache, ctx, key, 5*time.Minute, func() (*Product, error) {
		return t.api.GetProduct(ctx, t.cfg.ProductID)
	})
	if err != nil {
		apiErr, ok := AsAPIError(err)
		if !ok {
			return "Connection failed: " + err.Error(), false
		}
		switch {
		case apiErr.Kind == APIErrorTransport:
			return "Connection failed: " + apiErr.Message, false
		case apiErr.StatusCode == http.StatusUnauthorized:
			return "Invalid API Key", false
		case apiErr.StatusCode == http.StatusNotFound:
			return "Product ID not found", false
		}
		msg := apiErr.Message
		if msg == "" || msg == "API request failed" {
			msg = "Unknown error"
		}
		return "API Error: " + msg, false
	}

	name := product.Name
	if name == "" {
		name = "Unknown"
	}
	return "Connection successful! Product found: " + name, true
}
