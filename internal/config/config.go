package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// CheckoutMode decides where the customer lands after placing an order
type CheckoutMode string

const (
	// CheckoutModeLink keeps the customer on the receipt page and shows the payment link there
	CheckoutModeLink CheckoutMode = "link"
	// CheckoutModeRedirect sends the customer straight to the Whop checkout
	CheckoutModeRedirect CheckoutMode = "redirect"
)

const (
	DefaultWhopBaseURL = "https://api.whop.com/api/v2"
	PluginVersion      = "1.0.0"
)

// Config holds all runtime settings for the server, worker and CLI
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Whop     WhopConfig
	SMTP     SMTPConfig
	Firebase FirebaseConfig
	Worker   WorkerConfig
}

type ServerConfig struct {
	Port   string
	Env    string
	AppURL string
}

type DatabaseConfig struct {
	URL string
}

type RedisConfig struct {
	URL string
}

// WhopConfig replaces the plugin settings bag with named fields
type WhopConfig struct {
	APIKey        string        `validate:"required"`
	ProductID     string        `validate:"required"`
	BaseURL       string        `validate:"required,url"`
	WebhookSecret string
	CheckoutMode  CheckoutMode  `validate:"oneof=link redirect"`
	Enabled       bool
	TestMode      bool
	Timeout       time.Duration `validate:"gt=0"`
	TestTimeout   time.Duration `validate:"gt=0"`
}

type SMTPConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	From     string
}

type FirebaseConfig struct {
	CredentialsPath string
	APIKey          string
	AuthDomain      string
	ProjectID       string
}

type WorkerConfig struct {
	Interval time.Duration
}

// ErrNotConfigured is matched by every *FieldError returned from Validate
var ErrNotConfigured = errors.New("whop integration not configured")

// FieldError names the first setting that failed validation
type FieldError struct {
	Field string
	Rule  string
}

func (e *FieldError) Error() string {
	if e.Rule == "required" {
		return fmt.Sprintf("whop %s is not configured", e.Field)
	}
	return fmt.Sprintf("whop %s is invalid (%s)", e.Field, e.Rule)
}

func (e *FieldError) Is(target error) bool {
	return target == ErrNotConfigured
}

var validate = validator.New()

var fieldNames = map[string]string{
	"APIKey":       "api_key",
	"ProductID":    "product_id",
	"BaseURL":      "base_url",
	"CheckoutMode": "checkout_mode",
	"Timeout":      "timeout",
	"TestTimeout":  "test_timeout",
}

// Validate reports the first missing or malformed provider setting
func (c WhopConfig) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		name, ok := fieldNames[verrs[0].StructField()]
		if !ok {
			name = strings.ToLower(verrs[0].StructField())
		}
		return &FieldError{Field: name, Rule: verrs[0].Tag()}
	}
	return err
}

// Configured is true when both credentials are present
func (c WhopConfig) Configured() bool {
	return c.APIKey != "" && c.ProductID != ""
}

// Load reads .env (if present) and the process environment.
// Missing provider credentials are not an error here; operations that need
// them call WhopConfig.Validate.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logrus.Debug("No .env file found, using system environment")
	}

	timeout, err := getDuration("WHOP_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}
	testTimeout, err := getDuration("WHOP_TEST_TIMEOUT", 15*time.Second)
	if err != nil {
		return nil, err
	}
	interval, err := getDuration("WORKER_INTERVAL", 5*time.Minute)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:   getEnv("PORT", "8080"),
			Env:    getEnv("ENV", "development"),
			AppURL: strings.TrimRight(getEnv("APP_URL", "http://localhost:8080"), "/"),
		},
		Database: DatabaseConfig{URL: os.Getenv("DATABASE_URL")},
		Redis:    RedisConfig{URL: os.Getenv("REDIS_URL")},
		Whop: WhopConfig{
			APIKey:        os.Getenv("WHOP_API_KEY"),
			ProductID:     os.Getenv("WHOP_PRODUCT_ID"),
			BaseURL:       strings.TrimRight(getEnv("WHOP_API_URL", DefaultWhopBaseURL), "/"),
			WebhookSecret: os.Getenv("WHOP_WEBHOOK_SECRET"),
			CheckoutMode:  ParseCheckoutMode(os.Getenv("WHOP_CHECKOUT_MODE")),
			Enabled:       getBool("WHOP_ENABLED", false),
			TestMode:      getBool("WHOP_TEST_MODE", true),
			Timeout:       timeout,
			TestTimeout:   testTimeout,
		},
		SMTP: SMTPConfig{
			Host:     os.Getenv("SMTP_HOST"),
			Port:     os.Getenv("SMTP_PORT"),
			User:     os.Getenv("SMTP_USER"),
			Password: os.Getenv("SMTP_PASS"),
			From:     os.Getenv("EMAIL_FROM"),
		},
		Firebase: FirebaseConfig{
			CredentialsPath: getEnv("FIREBASE_CREDENTIALS_PATH", "./firebase-service-account.json"),
			APIKey:          os.Getenv("FIREBASE_API_KEY"),
			AuthDomain:      os.Getenv("FIREBASE_AUTH_DOMAIN"),
			ProjectID:       os.Getenv("FIREBASE_PROJECT_ID"),
		},
		Worker: WorkerConfig{Interval: interval},
	}

	return cfg, nil
}

// ParseCheckoutMode falls back to link for anything it does not recognise
func ParseCheckoutMode(v string) CheckoutMode {
	if CheckoutMode(strings.ToLower(strings.TrimSpace(v))) == CheckoutModeRedirect {
		return CheckoutModeRedirect
	}
	return CheckoutModeLink
}

// IsProduction reports whether cookies should be marked secure, logs emitted as JSON, etc.
func (c ServerConfig) IsProduction() bool {
	return c.Env == "production"
}

// WebhookURL is the address to paste into the Whop dashboard
func (c ServerConfig) WebhookURL() string {
	return c.AppURL + "/whop/v1/webhook"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch v {
	case "":
		return fallback
	case "yes", "y", "on":
		return true
	case "no", "n", "off":
		return false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
