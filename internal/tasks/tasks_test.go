package tasks

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whop_checkout_echo/internal/models"
	"whop_checkout_echo/internal/services"
)

type stubWhop struct{}

func (stubWhop) CreatePlan(ctx context.Context, req services.PlanRequest) (*services.Plan, error) {
	return &services.Plan{ID: "plan_1"}, nil
}

func (stubWhop) CreateCheckoutSession(ctx context.Context, req services.CheckoutSessionRequest) (*services.CheckoutSession, error) {
	return &services.CheckoutSession{ID: "ch_1", PurchaseURL: "https://whop.com/checkout/ch_1"}, nil
}

func (stubWhop) GetProduct(ctx context.Context, productID string) (*services.Product, error) {
	return &services.Product{ID: productID}, nil
}

type sentEmail struct {
	to      []string
	subject string
	body    string
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []sentEmail
	err  error
}

func (m *recordingMailer) SendEmail(to []string, subject, htmlBody string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentEmail{to: to, subject: subject, body: htmlBody})
	return nil
}

func setupPaymentTask(t *testing.T, mailer *recordingMailer) (*services.MemoryStore, *services.Reconciler, *Runner) {
	t.Helper()
	store := services.NewMemoryStore()
	store.PutOrder(models.Order{
		ID:            42,
		OrderKey:      "wc_order_abc",
		Status:        models.OrderStatusPending,
		Total:         decimal.RequireFromString("49.99"),
		Currency:      "USD",
		BillingEmail:  "jane@example.com",
		BillingName:   "Jane",
		PaymentMethod: models.PaymentMethodWhop,
	})
	reconciler := services.NewReconciler(store, store, stubWhop{}, "prod_test", "https://shop.example.com",
		services.WithNotifier(services.NewCustomerNotifier(store, store, store)))

	reg := NewRegistry()
	DefineTasks(reg, Dependencies{Orders: store, Sessions: store, Reconciler: reconciler, Mailer: mailer})

	runner := NewRunner(store, reg)
	runner.now = func() time.Time { return time.Now().Add(time.Minute) }
	return store, reconciler, runner
}

func TestSendPaymentLink_DeliversOnce(t *testing.T) {
	mailer := &recordingMailer{}
	store, reconciler, runner := setupPaymentTask(t, mailer)

	for i := 0; i < 3; i++ {
		_, err := reconciler.EnsureSession(context.Background(), 42, services.DefaultSessionOptions())
		require.NoError(t, err)
	}
	require.Len(t, store.Tasks(), 1)

	ran, err := runner.ProcessDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, ran)

	require.Len(t, mailer.sent, 1)
	email := mailer.sent[0]
	assert.Equal(t, []string{"jane@example.com"}, email.to)
	assert.Equal(t, "Complete your payment for order #42", email.subject)
	assert.Contains(t, email.body, "Pay Now - $49.99")
	assert.Contains(t, email.body, "https://whop.com/checkout/ch_1")
	assert.Equal(t, models.ScheduledTaskStatusDone, store.Tasks()[0].Status)

	ran, err = runner.ProcessDue(context.Background())
	require.NoError(t, err)
	assert.Zero(t, ran)
	assert.Len(t, mailer.sent, 1)
}

func TestSendPaymentLink_SkipsPaidOrder(t *testing.T) {
	mailer := &recordingMailer{}
	store, reconciler, runner := setupPaymentTask(t, mailer)

	_, err := reconciler.EnsureSession(context.Background(), 42, services.DefaultSessionOptions())
	require.NoError(t, err)
	_, err = reconciler.Complete(context.Background(), "42")
	require.NoError(t, err)

	_, err = runner.ProcessDue(context.Background())
	require.NoError(t, err)
	assert.Empty(t, mailer.sent)
	assert.Equal(t, "skipped", store.TaskHistory()[0].Result["status"])
}

func TestSendPaymentLink_MailerFailureRetries(t *testing.T) {
	mailer := &recordingMailer{err: errors.New("SMTP credentials not fully configured")}
	store, reconciler, runner := setupPaymentTask(t, mailer)

	_, err := reconciler.EnsureSession(context.Background(), 42, services.DefaultSessionOptions())
	require.NoError(t, err)

	_, err = runner.ProcessDue(context.Background())
	require.NoError(t, err)

	task := store.Tasks()[0]
	assert.Equal(t, models.ScheduledTaskStatusActive, task.Status)
	assert.Equal(t, 1, task.Attempts)
	assert.Equal(t, "failure", store.TaskHistory()[0].Status)
}

func TestStaleSessionReport(t *testing.T) {
	store := services.NewMemoryStore()
	_, _, err := store.CreateSession(context.Background(), &models.PaymentSession{
		OrderID: 7, PlanID: "plan_7", PaymentURL: "https://whop.com/checkout/ch_7", Status: models.SessionStatusPending,
	})
	require.NoError(t, err)

	task := NewStaleSessionReportTask(store)

	result, err := task.HandleExecution(context.Background(), models.ScheduledTask{})
	require.NoError(t, err)
	assert.Equal(t, 0, result["count"])

	task.now = func() time.Time { return time.Now().Add(48 * time.Hour) }
	result, err = task.HandleExecution(context.Background(), models.ScheduledTask{
		Arguments: map[string]interface{}{"older_than_hours": 24},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result["count"])
	assert.Equal(t, []uint{7}, result["order_ids"])
}

func TestStaleSessionReport_CreateTask(t *testing.T) {
	start := time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)
	task, err := NewStaleSessionReportTask(services.NewMemoryStore()).CreateTask(StaleSessionReportArgs{OlderThanHours: 12}, start, "FREQ=DAILY")
	require.NoError(t, err)

	assert.Equal(t, "stale_session_report", task.TaskName)
	assert.Equal(t, models.ScheduledTaskTypeRecurring, task.TaskType)
	assert.Equal(t, float64(12), task.Arguments["older_than_hours"])
	assert.Equal(t, time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC), task.NextDue(start))
}
