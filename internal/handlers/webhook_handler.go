package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"

	"whop_checkout_echo/internal/logging"
	"whop_checkout_echo/internal/models"
	"whop_checkout_echo/internal/services"
)

// Actions that mean the customer has paid
const (
	ActionPaymentSucceeded = "payment.succeeded"
	ActionCheckoutPaid     = "checkout.paid"
)

type metadataBlock struct {
	Metadata map[string]json.RawMessage `json:"metadata"`
}

// webhookPayload is the subset of a Whop webhook the handler reads
type webhookPayload struct {
	Action   string                     `json:"action"`
	Data     *metadataBlock             `json:"data"`
	Metadata map[string]json.RawMessage `json:"metadata"`
}

// OrderRef returns woo_order_id from data.metadata, falling back to the
// top-level metadata. Numbers and strings are both accepted.
func (p webhookPayload) OrderRef() string {
	if p.Data != nil {
		if ref := rawRef(p.Data.Metadata["woo_order_id"]); ref != "" {
			return ref
		}
	}
	return rawRef(p.Metadata["woo_order_id"])
}

func rawRef(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return ""
	}
	return n.String()
}

// WebhookHandler receives Whop payment notifications
type WebhookHandler struct {
	reconciler *services.Reconciler
	events     services.WebhookLog
	secret     string
	log        *logrus.Entry
}

func NewWebhookHandler(reconciler *services.Reconciler, events services.WebhookLog, secret string) *WebhookHandler {
	return &WebhookHandler{
		reconciler: reconciler,
		events:     events,
		secret:     secret,
		log:        logging.Component(nil, "webhook"),
	}
}

// Handle processes POST /webhook
func (h *WebhookHandler) Handle(c echo.Context) error {
	ctx := c.Request().Context()

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return he
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return echo.ErrStatusRequestEntityTooLarge
		}
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Could not read request body"})
	}

	event := &models.WebhookEvent{}
	if json.Valid(body) {
		event.Payload = datatypes.JSON(body)
	}

	if h.secret != "" {
		event.SignatureValid = services.VerifyWebhookSignature(h.secret, body, c.Request().Header.Get(services.SignatureHeader))
		if !event.SignatureValid {
			h.record(c, event, models.WebhookOutcomeRejected)
			h.log.WithField("remote_ip", c.RealIP()).Warn("Webhook signature mismatch")
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Invalid signature"})
		}
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		h.record(c, event, models.WebhookOutcomeRejected)
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid JSON payload"})
	}
	event.Action = payload.Action
	event.OrderRef = payload.OrderRef()

	if payload.Action == "" {
		h.record(c, event, models.WebhookOutcomeRejected)
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid webhook - no action"})
	}

	log := h.log.WithFields(logrus.Fields{"action": event.Action, "order_ref": event.OrderRef})

	switch payload.Action {
	case ActionPaymentSucceeded, ActionCheckoutPaid:
	default:
		log.Debug("Webhook action ignored")
		h.record(c, event, models.WebhookOutcomeIgnored)
		return c.JSON(http.StatusOK, map[string]string{"status": "ok", "message": "Webhook received"})
	}

	outcome, err := h.reconciler.Complete(ctx, event.OrderRef)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrNoOrderID):
			h.record(c, event, models.WebhookOutcomeRejected)
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "No order ID"})
		case errors.Is(err, services.ErrOrderNotFound):
			h.record(c, event, models.WebhookOutcomeRejected)
			return c.JSON(http.StatusNotFound, map[string]string{"error": "Order not found"})
		}
		log.WithError(err).Error("Failed to apply payment completion")
		h.record(c, event, models.WebhookOutcomeFailed)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to process webhook"})
	}

	if outcome == services.OutcomeAlreadyProcessed {
		h.record(c, event, models.WebhookOutcomeAlreadyProcessed)
		return c.JSON(http.StatusOK, map[string]string{"status": "already_processed"})
	}

	h.record(c, event, models.WebhookOutcomeCompleted)
	return c.JSON(http.StatusOK, map[string]string{"status": "success"})
}

func (h *WebhookHandler) record(c echo.Context, event *models.WebhookEvent, outcome models.WebhookOutcome) {
	if h.events == nil {
		return
	}
	event.Outcome = outcome
	if err := h.events.RecordWebhook(c.Request().Context(), event); err != nil {
		h.log.WithError(err).Warn("Failed to record webhook event")
	}
}
