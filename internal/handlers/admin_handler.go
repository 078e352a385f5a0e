package handlers

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"whop_checkout_echo/internal/config"
	"whop_checkout_echo/internal/logging"
	"whop_checkout_echo/internal/services"
	"whop_checkout_echo/web/templates/pages"
)

// AdminHandler serves the Firebase-protected operator routes
type AdminHandler struct {
	cfg        *config.Config
	orders     services.OrderStore
	reconciler *services.Reconciler
	tester     *services.ConnectionTester
	log        *logrus.Entry
}

func NewAdminHandler(cfg *config.Config, orders services.OrderStore, reconciler *services.Reconciler, tester *services.ConnectionTester) *AdminHandler {
	return &AdminHandler{
		cfg:        cfg,
		orders:     orders,
		reconciler: reconciler,
		tester:     tester,
		log:        logging.Component(nil, "admin"),
	}
}

// PaymentPanel renders the order's Whop payment box
func (h *AdminHandler) PaymentPanel(c echo.Context) error {
	orderID, err := orderIDParam(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()

	if _, err := h.orders.GetOrder(ctx, orderID); err != nil {
		return echo.NewHTTPError(statusFor(err), err.Error())
	}
	view, err := h.reconciler.View(ctx, orderID)
	if err != nil {
		return err
	}

	props := pages.AdminPaymentPanelProps{OrderID: orderID}
	if view != nil {
		props.HasSession = true
		props.Status = string(view.Status)
		props.PlanID = view.PlanID
		props.PaymentURL = view.URL
		props.PaymentDate = view.PaymentDate
		props.EmailSent = view.EmailSent
	}
	return render(c, http.StatusOK, pages.AdminPaymentPanel(props))
}

// PaymentJSON returns the stored session, or null when none exists
func (h *AdminHandler) PaymentJSON(c echo.Context) error {
	orderID, err := orderIDParam(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()

	if _, err := h.orders.GetOrder(ctx, orderID); err != nil {
		return c.JSON(statusFor(err), map[string]string{"error": err.Error()})
	}
	view, err := h.reconciler.View(ctx, orderID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"order_id": orderID,
		"session":  view,
	})
}

// EnsurePayment creates or reuses the order's payment link on demand
func (h *AdminHandler) EnsurePayment(c echo.Context) error {
	orderID, err := orderIDParam(c)
	if err != nil {
		return err
	}

	sendEmail, _ := strconv.ParseBool(c.FormValue("send_email"))
	view, err := h.reconciler.EnsureSession(c.Request().Context(), orderID, services.SessionOptions{
		SendEmail: sendEmail,
		AddNote:   true,
	})
	if err != nil {
		h.log.WithError(err).WithField("order_id", orderID).Warn("Admin reconciliation failed")
		return c.JSON(statusFor(err), map[string]string{"error": err.Error()})
	}

	h.log.WithFields(logrus.Fields{
		"order_id": orderID,
		"admin":    c.Get("userEmail"),
	}).Info("Payment session ensured by admin")
	return c.JSON(http.StatusOK, view)
}

// Settings shows what the operator has to paste into the Whop dashboard
func (h *AdminHandler) Settings(c echo.Context) error {
	whop := h.cfg.Whop
	return c.JSON(http.StatusOK, map[string]interface{}{
		"webhook_url":     h.cfg.Server.WebhookURL(),
		"checkout_mode":   whop.CheckoutMode,
		"configured":      whop.Configured(),
		"enabled":         whop.Enabled,
		"test_mode":       whop.TestMode,
		"signature_check": whop.WebhookSecret != "",
		"plugin_version":  config.PluginVersion,
	})
}

// TestConnection calls the product endpoint with the configured credentials
func (h *AdminHandler) TestConnection(c echo.Context) error {
	message, ok := h.tester.Test(c.Request().Context())
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": ok,
		"message": message,
	})
}
