package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"whop_checkout_echo/internal/config"
	"whop_checkout_echo/internal/logging"
)

const maxResponseBody = 1 << 20

// PlanRequest is the body of POST /plans
type PlanRequest struct {
	ProductID              string            `json:"product_id"`
	PlanType               string            `json:"plan_type"`
	BillingPeriod          int               `json:"billing_period"`
	InternalNotes          string            `json:"internal_notes"`
	ReleaseMethod          string            `json:"release_method"`
	Visibility             string            `json:"visibility"`
	DirectLinkOnly         bool              `json:"direct_link_only"`
	Stock                  int               `json:"stock"`
	InitialPrice           float64           `json:"initial_price"`
	Currency               string            `json:"currency"`
	AcceptedPaymentMethods []string          `json:"accepted_payment_methods"`
	Metadata               map[string]string `json:"metadata"`
}

// Plan is the subset of the Whop plan object we read
type Plan struct {
	ID string `json:"id"`
}

// CheckoutSessionRequest is the body of POST /checkout_sessions
type CheckoutSessionRequest struct {
	PlanID      string            `json:"plan_id"`
	RedirectURL string            `json:"redirect_url"`
	Metadata    map[string]string `json:"metadata"`
}

// CheckoutSession is the subset of the Whop checkout session object we read
type CheckoutSession struct {
	ID          string `json:"id"`
	PurchaseURL string `json:"purchase_url"`
	URL         string `json:"url"`
}

// PaymentURL prefers purchase_url and falls back to url
func (s CheckoutSession) PaymentURL() string {
	if s.PurchaseURL != "" {
		return s.PurchaseURL
	}
	return s.URL
}

// Product is the subset of the Whop product object we read
type Product struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// WhopAPI is what the reconciler and connection test need from Whop
type WhopAPI interface {
	CreatePlan(ctx context.Context, req PlanRequest) (*Plan, error)
	CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (*CheckoutSession, error)
	GetProduct(ctx context.Context, productID string) (*Product, error)
}

// WhopClient talks JSON to the Whop REST API
type WhopClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	log     *logrus.Entry
}

func NewWhopClient(cfg config.WhopConfig) *WhopClient {
	return NewWhopClientWithTimeout(cfg, cfg.Timeout)
}

// NewWhopClientWithTimeout builds a client with a specific per-request timeout,
// used by the connection test which runs on a shorter budget.
func NewWhopClientWithTimeout(cfg config.WhopConfig, timeout time.Duration) *WhopClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = config.DefaultWhopBaseURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &WhopClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: timeout},
		log:     logging.Component(nil, "whop_client"),
	}
}

// Request performs one API call and returns the raw JSON body of a 2xx response
func (c *WhopClient) Request(ctx context.Context, method, endpoint string, payload interface{}) (json.RawMessage, error) {
	if c.apiKey == "" {
		return nil, &ConfigError{Field: "api_key", Rule: "required"}
	}

	var bodyReader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal payload: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		c.log.WithError(err).WithFields(logrus.Fields{"method": method, "endpoint": endpoint}).Error("Whop request failed")
		return nil, &APIError{Kind: APIErrorTransport, Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, &APIError{Kind: APIErrorTransport, StatusCode: resp.StatusCode, Message: err.Error(), Err: err}
	}

	entry := c.log.WithFields(logrus.Fields{
		"method":   method,
		"endpoint": endpoint,
		"status":   resp.StatusCode,
		"elapsed":  time.Since(start).String(),
	})

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		entry.WithField("body", string(body)).Warn("Whop API returned an error")
		return nil, &APIError{
			Kind:       APIErrorHTTP,
			StatusCode: resp.StatusCode,
			Message:    errorMessage(body),
			RawBody:    body,
		}
	}
	entry.Debug("Whop request completed")

	if len(bytes.TrimSpace(body)) == 0 {
		return json.RawMessage("{}"), nil
	}
	if !json.Valid(body) {
		return nil, &APIError{Kind: APIErrorDecode, StatusCode: resp.StatusCode, Message: "response is not valid JSON", RawBody: body}
	}
	return json.RawMessage(body), nil
}

func errorMessage(body []byte) string {
	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		return envelope.Error.Message
	}
	return "API request failed"
}

func (c *WhopClient) do(ctx context.Context, method, endpoint string, payload, out interface{}) error {
	raw, err := c.Request(ctx, method, endpoint, payload)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &APIError{Kind: APIErrorDecode, StatusCode: http.StatusOK, Message: err.Error(), RawBody: raw, Err: err}
	}
	return nil
}

// CreatePlan calls POST /plans
func (c *WhopClient) CreatePlan(ctx context.Context, req PlanRequest) (*Plan, error) {
	var plan Plan
	if err := c.do(ctx, http.MethodPost, "/plans", req, &plan); err != nil {
		return nil, err
	}
	return &plan, nil
}

// CreateCheckoutSession calls POST /checkout_sessions
func (c *WhopClient) CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (*CheckoutSession, error) {
	var session CheckoutSession
	if err := c.do(ctx, http.MethodPost, "/checkout_sessions", req, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// GetProduct calls GET /products/{id}
func (c *WhopClient) GetProduct(ctx context.Context, productID string) (*Product, error) {
	var product Product
	if err := c.do(ctx, http.MethodGet, "/products/"+url.PathEscape(productID), nil, &product); err != nil {
		return nil, err
	}
	return &product, nil
}
