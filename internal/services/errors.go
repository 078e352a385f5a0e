package services

import (
	"errors"
	"fmt"

	"whop_checkout_echo/internal/config"
)

// ConfigError names a provider setting that is missing or malformed
type ConfigError = config.FieldError

var (
	ErrConfig = config.ErrNotConfigured

	ErrValidation     = errors.New("validation failed")
	ErrInvalidMethod  = &validationError{msg: "order is not using the Whop payment method"}
	ErrMissingContact = &validationError{msg: "customer email address is required to create a Whop checkout"}

	ErrMissingPaymentURL = errors.New("no payment URL was returned by Whop")
	ErrSessionInProgress = errors.New("a payment session is already being created for this order")

	ErrWebhook       = errors.New("webhook rejected")
	ErrNoOrderID     = &webhookError{msg: "no order ID"}
	ErrOrderNotFound = &webhookError{msg: "order not found"}
)

type validationError struct{ msg string }

func (e *validationError) Error() string        { return e.msg }
func (e *validationError) Is(target error) bool { return target == ErrValidation }

type webhookError struct{ msg string }

func (e *webhookError) Error() string        { return e.msg }
func (e *webhookError) Is(target error) bool { return target == ErrWebhook }

// APIErrorKind separates remote rejections from connectivity problems
type APIErrorKind string

const (
	APIErrorHTTP      APIErrorKind = "http"
	APIErrorTransport APIErrorKind = "transport"
	APIErrorDecode    APIErrorKind = "decode"
)

// APIError is returned for every failed call to the Whop API
type APIError struct {
	Kind       APIErrorKind
	StatusCode int
	Message    string
	RawBody    []byte
	Err        error
}

func (e *APIError) Error() string {
	switch e.Kind {
	case APIErrorTransport:
		return fmt.Sprintf("whop request failed: %s", e.Message)
	case APIErrorDecode:
		return fmt.Sprintf("whop response could not be decoded: %s", e.Message)
	}
	return fmt.Sprintf("whop API error %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// AsAPIError extracts an *APIError from err's chain
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
