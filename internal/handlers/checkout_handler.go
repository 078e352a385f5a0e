package handlers

import (
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"whop_checkout_echo/internal/logging"
	"whop_checkout_echo/internal/models"
	"whop_checkout_echo/internal/services"
	"whop_checkout_echo/web/templates/pages"
)

// CheckoutHandler serves the customer-facing payment routes
type CheckoutHandler struct {
	enabled    bool
	orders     services.OrderStore
	gateway    *services.Gateway
	reconciler *services.Reconciler
	log        *logrus.Entry
}

func NewCheckoutHandler(enabled bool, orders services.OrderStore, gateway *services.Gateway, reconciler *services.Reconciler) *CheckoutHandler {
	return &CheckoutHandler{
		enabled:    enabled,
		orders:     orders,
		gateway:    gateway,
		reconciler: reconciler,
		log:        logging.Component(nil, "checkout"),
	}
}

type paymentResponse struct {
	Result   string `json:"result"`
	Redirect string `json:"redirect,omitempty"`
	Message  string `json:"message,omitempty"`
}

// ProcessPayment handles POST /checkout/orders/:id/pay
func (h *CheckoutHandler) ProcessPayment(c echo.Context) error {
	orderID, err := orderIDParam(c)
	if err != nil {
		return err
	}

	if !h.enabled {
		return c.JSON(http.StatusUnprocessableEntity, paymentResponse{
			Result:  "failure",
			Message: "Whop payments are not enabled.",
		})
	}

	result, err := h.gateway.ProcessPayment(c.Request().Context(), orderID)
	if err != nil {
		h.log.WithError(err).WithField("order_id", orderID).Warn("Checkout payment failed")
		return c.JSON(statusFor(err), paymentResponse{Result: "failure", Message: customerMessage(err)})
	}

	return c.JSON(http.StatusOK, paymentResponse{Result: "success", Redirect: result.Redirect})
}

func customerMessage(err error) string {
	switch {
	case errors.Is(err, services.ErrOrderNotFound):
		return "Order not found."
	case errors.Is(err, services.ErrMissingContact):
		return "A billing email address is required to pay with Whop."
	case errors.Is(err, services.ErrValidation):
		return "This order cannot be paid with Whop."
	case errors.Is(err, services.ErrConfig):
		return "Payment error: Whop API not configured. Please contact the site administrator."
	case errors.Is(err, services.ErrSessionInProgress):
		return "Your payment link is being prepared. Please try again in a moment."
	}
	return "Unable to start Whop payment. Please try again or contact support."
}

// ReceiptPage handles GET /checkout/order-received/:id?key=
func (h *CheckoutHandler) ReceiptPage(c echo.Context) error {
	orderID, err := orderIDParam(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()

	order, err := h.orders.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, services.ErrOrderNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "We could not find that order.")
		}
		return err
	}
	if subtle.ConstantTimeCompare([]byte(c.QueryParam("key")), []byte(order.OrderKey)) != 1 {
		return echo.NewHTTPError(http.StatusNotFound, "We could not find that order.")
	}

	props := pages.ReceiptPageProps{
		OrderID:        order.ID,
		FormattedTotal: order.FormattedTotal(),
		Paid:           order.IsPaid(),
	}

	if order.PaymentMethod == models.PaymentMethodWhop && !props.Paid {
		view, err := h.reconciler.EnsureSession(ctx, order.ID, services.SessionOptions{SendEmail: false, AddNote: true})
		switch {
		case err != nil:
			h.log.WithError(err).WithField("order_id", order.ID).Warn("Payment link unavailable on receipt page")
			props.Notice = "We could not generate your payment link yet. Please check your email or contact support."
		case view.Status == models.SessionStatusCompleted:
			props.Paid = true
		case view.Payable():
			props.Box = pages.PaymentBoxProps{
				OrderID:        order.ID,
				FormattedTotal: props.FormattedTotal,
				PaymentURL:     view.URL,
				Email:          order.BillingEmail,
			}
		}
	}

	return render(c, http.StatusOK, pages.ReceiptPage(props))
}
