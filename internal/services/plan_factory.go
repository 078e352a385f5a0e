package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"whop_checkout_echo/internal/config"
)

var acceptedPaymentMethods = []string{"card", "paypal", "apple_pay", "google_pay"}

// PlanFactory turns an order amount into a single-use Whop plan
type PlanFactory struct {
	api       WhopAPI
	productID string
}

func NewPlanFactory(api WhopAPI, productID string) *PlanFactory {
	return &PlanFactory{api: api, productID: productID}
}

// BuildPlanRequest is exported so the request body can be inspected without a network call
func (f *PlanFactory) BuildPlanRequest(orderID uint, amount decimal.Decimal, currency string) PlanRequest {
	currency = strings.ToLower(strings.TrimSpace(currency))
	if currency == "" {
		currency = "usd"
	}
	return PlanRequest{
		ProductID:              f.productID,
		PlanType:               "one_time",
		BillingPeriod:          0,
		InternalNotes:          fmt.Sprintf("WooCommerce Order #%d", orderID),
		ReleaseMethod:          "buy_now",
		Visibility:             "visible",
		DirectLinkOnly:         false,
		Stock:                  1,
		InitialPrice:           amount.Round(2).InexactFloat64(),
		Currency:               currency,
		AcceptedPaymentMethods: acceptedPaymentMethods,
		Metadata: map[string]string{
			"woo_order_id":   fmt.Sprintf("%d", orderID),
			"created_by":     "woocommerce_plugin",
			"plugin_version": config.PluginVersion,
		},
	}
}

// CreatePlan creates one plan per call; it is not idempotent
func (f *PlanFactory) CreatePlan(ctx context.Context, orderID uint, amount decimal.Decimal, currency string) (string, error) {
	if f.productID == "" {
		return "", &ConfigError{Field: "product_id", Rule: "required"}
	}

	plan, err := f.api.CreatePlan(ctx, f.BuildPlanRequest(orderID, amount, currency))
	if err != nil {
		return "", err
	}
	if plan.ID == "" {
		return "", &APIError{Kind: APIErrorDecode, StatusCode: 200, Message: "plan response has no id"}
	}
	return plan.ID, nil
}
