package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"whop_checkout_echo/internal/models"
)

type mockWhopAPI struct {
	mock.Mock
}

func (m *mockWhopAPI) CreatePlan(ctx context.Context, req PlanRequest) (*Plan, error) {
	args := m.Called(ctx, req)
	plan, _ := args.Get(0).(*Plan)
	return plan, args.Error(1)
}

func (m *mockWhopAPI) CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (*CheckoutSession, error) {
	args := m.Called(ctx, req)
	session, _ := args.Get(0).(*CheckoutSession)
	return session, args.Error(1)
}

func (m *mockWhopAPI) GetProduct(ctx context.Context, productID string) (*Product, error) {
	args := m.Called(ctx, productID)
	product, _ := args.Get(0).(*Product)
	return product, args.Error(1)
}

type busyLocker struct{}

func (busyLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	return func() {}, false, nil
}

var fixedNow = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func testOrder() models.Order {
	return models.Order{
		ID:            42,
		OrderKey:      "wc_order_abc",
		Status:        models.OrderStatusPending,
		Total:         decimal.RequireFromString("49.99"),
		Currency:      "USD",
		BillingEmail:  "jane@example.com",
		BillingName:   "Jane",
		PaymentMethod: models.PaymentMethodWhop,
	}
}

func newTestReconciler(t *testing.T, opts ...ReconcilerOption) (*Reconciler, *MemoryStore, *mockWhopAPI) {
	t.Helper()
	store := NewMemoryStore()
	api := &mockWhopAPI{}
	opts = append([]ReconcilerOption{
		WithClock(func() time.Time { return fixedNow }),
		WithNotifier(NewCustomerNotifier(store, store, store)),
	}, opts...)
	r := NewReconciler(store, store, api, "prod_test", "https://shop.example.com", opts...)
	return r, store, api
}

func expectHappyPath(api *mockWhopAPI, checkout *CheckoutSession) {
	api.On("CreatePlan", mock.Anything, mock.Anything).Return(&Plan{ID: "plan_1"}, nil)
	api.On("CreateCheckoutSession", mock.Anything, mock.Anything).Return(checkout, nil)
}

func TestEnsureSession_CreatesOnceAndReuses(t *testing.T) {
	r, store, api := newTestReconciler(t)
	store.PutOrder(testOrder())
	expectHappyPath(api, &CheckoutSession{ID: "ch_1", PurchaseURL: "https://whop.com/pay/ch_1"})

	first, err := r.EnsureSession(context.Background(), 42, SessionOptions{AddNote: true})
	require.NoError(t, err)
	second, err := r.EnsureSession(context.Background(), 42, SessionOptions{AddNote: true})
	require.NoError(t, err)

	assert.Equal(t, "https://whop.com/pay/ch_1", first.URL)
	assert.Equal(t, "plan_1", first.PlanID)
	assert.Equal(t, "ch_1", first.CheckoutID)
	assert.Equal(t, models.SessionStatusPending, first.Status)
	assert.Equal(t, first.URL, second.URL)
	assert.Equal(t, first.PlanID, second.PlanID)

	api.AssertNumberOfCalls(t, "CreatePlan", 1)
	api.AssertNumberOfCalls(t, "CreateCheckoutSession", 1)
	assert.Equal(t, []string{"Whop payment link created (Plan: plan_1, Amount: $49.99)."}, store.Notes(42))
}

func TestEnsureSession_PlanAndCheckoutRequests(t *testing.T) {
	r, store, api := newTestReconciler(t)
	store.PutOrder(testOrder())

	api.On("CreatePlan", mock.Anything, mock.MatchedBy(func(req PlanRequest) bool {
		return req.ProductID == "prod_test" &&
			req.PlanType == "one_time" &&
			req.Stock == 1 &&
			req.InitialPrice == 49.99 &&
			req.Currency == "usd" &&
			req.Metadata["woo_order_id"] == "42"
	})).Return(&Plan{ID: "plan_1"}, nil)
	api.On("CreateCheckoutSession", mock.Anything, mock.MatchedBy(func(req CheckoutSessionRequest) bool {
		return req.PlanID == "plan_1" &&
			req.RedirectURL == "https://shop.example.com/checkout/order-received/42?key=wc_order_abc&order_id=42" &&
			req.Metadata["order_key"] == "wc_order_abc" &&
			req.Metadata["order_total"] == "49.99" &&
			req.Metadata["order_currency"] == "USD"
	})).Return(&CheckoutSession{ID: "ch_1", URL: "https://whop.com/checkout/ch_1"}, nil)

	view, err := r.EnsureSession(context.Background(), 42, SessionOptions{})
	require.NoError(t, err)
	assert.Equal(t, "https://whop.com/checkout/ch_1", view.URL)
	api.AssertExpectations(t)
}

func TestEnsureSession_InvalidMethod(t *testing.T) {
	r, store, api := newTestReconciler(t)
	order := testOrder()
	order.PaymentMethod = "cod"
	store.PutOrder(order)

	_, err := r.EnsureSession(context.Background(), 42, DefaultSessionOptions())
	assert.ErrorIs(t, err, ErrInvalidMethod)
	assert.ErrorIs(t, err, ErrValidation)
	api.AssertNotCalled(t, "CreatePlan", mock.Anything, mock.Anything)
}

func TestEnsureSession_MissingContact(t *testing.T) {
	r, store, api := newTestReconciler(t)
	order := testOrder()
	order.BillingEmail = ""
	store.PutOrder(order)

	_, err := r.EnsureSession(context.Background(), 42, DefaultSessionOptions())
	assert.ErrorIs(t, err, ErrMissingContact)
	api.AssertNotCalled(t, "CreatePlan", mock.Anything, mock.Anything)
	assert.Equal(t, []string{"Whop payment error: Missing customer email."}, store.Notes(42))

	session, _ := store.FindSession(context.Background(), 42)
	assert.Nil(t, session)
}

func TestEnsureSession_OrderNotFound(t *testing.T) {
	r, _, _ := newTestReconciler(t)

	_, err := r.EnsureSession(context.Background(), 7, DefaultSessionOptions())
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestEnsureSession_PlanFailure(t *testing.T) {
	r, store, api := newTestReconciler(t)
	store.PutOrder(testOrder())
	apiErr := &APIError{Kind: APIErrorHTTP, StatusCode: 500, Message: "API request failed"}
	api.On("CreatePlan", mock.Anything, mock.Anything).Return(nil, apiErr)

	_, err := r.EnsureSession(context.Background(), 42, DefaultSessionOptions())
	require.Error(t, err)

	got, ok := AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, 500, got.StatusCode)
	api.AssertNotCalled(t, "CreateCheckoutSession", mock.Anything, mock.Anything)
	assert.Equal(t, []string{"Whop payment error: Failed to create plan for $49.99."}, store.Notes(42))

	session, _ := store.FindSession(context.Background(), 42)
	assert.Nil(t, session)
}

func TestEnsureSession_MissingProductID(t *testing.T) {
	store := NewMemoryStore()
	api := &mockWhopAPI{}
	r := NewReconciler(store, store, api, "", "https://shop.example.com")
	store.PutOrder(testOrder())

	_, err := r.EnsureSession(context.Background(), 42, DefaultSessionOptions())
	assert.ErrorIs(t, err, ErrConfig)
	api.AssertNotCalled(t, "CreatePlan", mock.Anything, mock.Anything)
}

func TestEnsureSession_CheckoutFailure(t *testing.T) {
	r, store, api := newTestReconciler(t)
	store.PutOrder(testOrder())
	api.On("CreatePlan", mock.Anything, mock.Anything).Return(&Plan{ID: "plan_1"}, nil)
	api.On("CreateCheckoutSession", mock.Anything, mock.Anything).
		Return(nil, &APIError{Kind: APIErrorHTTP, StatusCode: 400, Message: "plan is not purchasable"})

	_, err := r.EnsureSession(context.Background(), 42, DefaultSessionOptions())
	require.Error(t, err)
	assert.Equal(t, []string{"Whop payment error: plan is not purchasable"}, store.Notes(42))

	session, _ := store.FindSession(context.Background(), 42)
	assert.Nil(t, session)
}

func TestEnsureSession_MissingPaymentURL(t *testing.T) {
	r, store, api := newTestReconciler(t)
	store.PutOrder(testOrder())
	expectHappyPath(api, &CheckoutSession{ID: "ch_1"})

	_, err := r.EnsureSession(context.Background(), 42, DefaultSessionOptions())
	assert.ErrorIs(t, err, ErrMissingPaymentURL)
	assert.Equal(t, []string{"Whop payment error: No checkout URL received from API."}, store.Notes(42))

	session, _ := store.FindSession(context.Background(), 42)
	assert.Nil(t, session)
}

func TestEnsureSession_EmailSentOnce(t *testing.T) {
	r, store, api := newTestReconciler(t)
	store.PutOrder(testOrder())
	expectHappyPath(api, &CheckoutSession{ID: "ch_1", URL: "https://whop.com/checkout/ch_1"})

	opts := SessionOptions{SendEmail: true}
	for i := 0; i < 3; i++ {
		view, err := r.EnsureSession(context.Background(), 42, opts)
		require.NoError(t, err)
		assert.True(t, view.EmailSent)
	}

	tasks := store.Tasks()
	require.Len(t, tasks, 1)
	assert.Equal(t, TaskSendPaymentLink, tasks[0].TaskName)
	assert.Equal(t, "jane@example.com", tasks[0].Arguments["recipient"])

	session, _ := store.FindSession(context.Background(), 42)
	assert.True(t, session.EmailSent)
}

func TestEnsureSession_CompletedSessionIsNotRecreated(t *testing.T) {
	r, store, api := newTestReconciler(t)
	store.PutOrder(testOrder())
	_, err := store.CompleteSession(context.Background(), 42, fixedNow)
	require.NoError(t, err)

	view, err := r.EnsureSession(context.Background(), 42, DefaultSessionOptions())
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusCompleted, view.Status)
	assert.False(t, view.Payable())
	api.AssertNotCalled(t, "CreatePlan", mock.Anything, mock.Anything)
	assert.Empty(t, store.Tasks())
}

func TestEnsureSession_LockHeldElsewhere(t *testing.T) {
	r, store, api := newTestReconciler(t, WithLocker(busyLocker{}))
	store.PutOrder(testOrder())

	_, err := r.EnsureSession(context.Background(), 42, DefaultSessionOptions())
	assert.ErrorIs(t, err, ErrSessionInProgress)
	api.AssertNotCalled(t, "CreatePlan", mock.Anything, mock.Anything)
}

func TestEnsureSession_LostInsertRaceAdoptsWinner(t *testing.T) {
	r, store, api := newTestReconciler(t)
	store.PutOrder(testOrder())

	api.On("CreatePlan", mock.Anything, mock.Anything).Return(&Plan{ID: "plan_late"}, nil)
	api.On("CreateCheckoutSession", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			// a concurrent request stores its session while we talk to Whop
			_, _, _ = store.CreateSession(context.Background(), &models.PaymentSession{
				OrderID:    42,
				PlanID:     "plan_first",
				CheckoutID: "ch_first",
				PaymentURL: "https://whop.com/pay/ch_first",
				Status:     models.SessionStatusPending,
			})
		}).
		Return(&CheckoutSession{ID: "ch_late", URL: "https://whop.com/pay/ch_late"}, nil)

	view, err := r.EnsureSession(context.Background(), 42, DefaultSessionOptions())
	require.NoError(t, err)
	assert.Equal(t, "plan_first", view.PlanID)
	assert.Equal(t, "https://whop.com/pay/ch_first", view.URL)
	assert.Empty(t, store.Notes(42))
	assert.Empty(t, store.Tasks())
}

func TestEnsureSession_ConcurrentCallersShareOneSession(t *testing.T) {
	r, store, api := newTestReconciler(t)
	store.PutOrder(testOrder())
	expectHappyPath(api, &CheckoutSession{ID: "ch_1", URL: "https://whop.com/checkout/ch_1"})

	var wg sync.WaitGroup
	urls := make([]string, 5)
	for i := range urls {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			view, err := r.EnsureSession(context.Background(), 42, SessionOptions{})
			if err == nil {
				urls[i] = view.URL
			}
		}(i)
	}
	wg.Wait()

	for _, u := range urls {
		if u != "" {
			assert.Equal(t, "https://whop.com/checkout/ch_1", u)
		}
	}
	session, _ := store.FindSession(context.Background(), 42)
	require.NotNil(t, session)
	assert.Equal(t, "plan_1", session.PlanID)
}

func TestComplete_Scenario(t *testing.T) {
	r, store, api := newTestReconciler(t)
	store.PutOrder(testOrder())
	expectHappyPath(api, &CheckoutSession{ID: "ch_1", URL: "https://whop.com/checkout/ch_1"})

	view, err := r.EnsureSession(context.Background(), 42, SessionOptions{})
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusPending, view.Status)

	outcome, err := r.Complete(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, outcome)

	session, _ := store.FindSession(context.Background(), 42)
	assert.Equal(t, models.SessionStatusCompleted, session.Status)
	require.NotNil(t, session.PaymentDate)
	assert.Equal(t, fixedNow, *session.PaymentDate)
	assert.Equal(t, "plan_1", session.PlanID)

	order, _ := store.GetOrder(context.Background(), 42)
	assert.True(t, order.IsPaid())
	assert.Equal(t, models.OrderStatusProcessing, order.Status)
	assert.Contains(t, store.Notes(42), "Payment completed via Whop webhook")
}

func TestComplete_DuplicateIsAbsorbed(t *testing.T) {
	r, store, _ := newTestReconciler(t)
	store.PutOrder(testOrder())

	outcome, err := r.Complete(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, outcome)

	later := fixedNow.Add(time.Hour)
	r.now = func() time.Time { return later }

	outcome, err = r.Complete(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyProcessed, outcome)

	session, _ := store.FindSession(context.Background(), 42)
	assert.Equal(t, fixedNow, *session.PaymentDate)

	completionNotes := 0
	for _, n := range store.Notes(42) {
		if n == "Payment completed via Whop webhook" {
			completionNotes++
		}
	}
	assert.Equal(t, 1, completionNotes)
}

func TestComplete_RepairsUnpaidOrder(t *testing.T) {
	r, store, _ := newTestReconciler(t)
	store.PutOrder(testOrder())
	_, err := store.CompleteSession(context.Background(), 42, fixedNow)
	require.NoError(t, err)

	outcome, err := r.Complete(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyProcessed, outcome)

	order, _ := store.GetOrder(context.Background(), 42)
	assert.True(t, order.IsPaid())
}

func TestComplete_Errors(t *testing.T) {
	r, _, _ := newTestReconciler(t)

	for _, ref := range []string{"", "  ", "abc", "0", "-3"} {
		_, err := r.Complete(context.Background(), ref)
		assert.ErrorIs(t, err, ErrNoOrderID, "ref %q", ref)
		assert.ErrorIs(t, err, ErrWebhook)
	}

	_, err := r.Complete(context.Background(), "999")
	assert.True(t, errors.Is(err, ErrOrderNotFound))
}

func TestView(t *testing.T) {
	r, store, api := newTestReconciler(t)
	store.PutOrder(testOrder())

	view, err := r.View(context.Background(), 42)
	require.NoError(t, err)
	assert.Nil(t, view)

	expectHappyPath(api, &CheckoutSession{ID: "ch_1", URL: "https://whop.com/checkout/ch_1"})
	_, err = r.EnsureSession(context.Background(), 42, SessionOptions{})
	require.NoError(t, err)

	view, err = r.View(context.Background(), 42)
	require.NoError(t, err)
	assert.True(t, view.Payable())
}
