package config

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

const (
	defaultEnvFile         = ".env"
	defaultPort            = "8080"
	defaultReadTimeout     = 15 * time.Second
	defaultWriteTimeout    = 30 * time.Second
	defaultIdleTimeout     = 120 * time.Second
	defaultAPITimeout      = 10 * time.Second
	defaultBreakerFailures = 5
	defaultBreakerCooldown = 30 * time.Second
	defaultCurrency        = "INR"
	defaultDeliveryFee     = "39"
	defaultLocalStoreDSN   = "file:storefront.db"
	defaultCartCacheTTL    = 7 * 24 * time.Hour
	defaultSessionIdle     = 30 * time.Minute
	defaultPaymentProvider = PaymentProviderAPI
	defaultPaymentTimeout  = 15 * time.Minute
	defaultEnvironment     = "local"
	defaultLogLevel        = "info"
)

// Payment provider identifiers accepted by STOREFRONT_PAYMENT_PROVIDER.
const (
	PaymentProviderAPI    = "api"
	PaymentProviderStripe = "stripe"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Environment string
	LogLevel    string
	Server      ServerConfig
	API         APIConfig
	Shop        ShopConfig
	Pricing     PricingConfig
	Storage     StorageConfig
	Session     SessionConfig
	Payment     PaymentConfig
	Secrets     SecretsConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// APIConfig points at the external storefront REST API.
type APIConfig struct {
	BaseURL         string
	Timeout         time.Duration
	BreakerFailures int
	BreakerCooldown time.Duration
}

// ShopConfig identifies the restaurant recorded on orders.
type ShopConfig struct {
	ID                string
	RestaurantName    string
	RestaurantPhone   string
	RestaurantAddress string
}

// PricingConfig holds the fixed fees applied at checkout.
type PricingConfig struct {
	Currency    string
	DeliveryFee decimal.Decimal
	PlatformFee decimal.Decimal
	TaxRate     decimal.Decimal
}

// StorageConfig selects device-local cart persistence.
type StorageConfig struct {
	LocalStoreDSN      string
	CartCacheRedisAddr string
	CartCacheTTL       time.Duration
}

// SessionConfig controls the browser session cookie.
type SessionConfig struct {
	HashKey     string
	BlockKey    string
	Secure      bool
	IdleTimeout time.Duration
}

// PaymentConfig selects the payment processor.
type PaymentConfig struct {
	Provider     string
	StripeAPIKey string
	Timeout      time.Duration
}

// SecretsConfig configures Secret Manager lookups.
type SecretsConfig struct {
	ProjectID string
}

// SecretResolver resolves references to external secrets (e.g. Secret Manager URIs).
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts ordinary functions to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret resolves the secret using the wrapped function.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// SecretError describes failures while resolving a secret reference.
type SecretError struct {
	Ref string
	Err error
}

// Error implements the error interface.
func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

// Unwrap exposes the underlying error.
func (e *SecretError) Unwrap() error { return e.Err }

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
	secret       SecretResolver
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map. Values in the map take precedence over system environment variables.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from the process environment.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// WithSecretResolver sets the resolver used for secret:// and sm:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) {
		o.secret = resolver
	}
}

// Lookup returns a single raw value using the same precedence as Load.
// The composition root uses it to read the secrets project before the resolver exists.
func Lookup(key string, opts ...Option) (string, error) {
	options := newLoaderOptions(opts)
	lookup, err := options.lookup()
	if err != nil {
		return "", err
	}
	value, _ := lookup(key)
	return strings.TrimSpace(value), nil
}

// Load assembles the application configuration by combining defaults, .env overrides,
// environment variables, and optional secret manager lookups.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := newLoaderOptions(opts)
	lookup, err := options.lookup()
	if err != nil {
		return Config{}, err
	}

	var invalid []string
	decimalField := func(key, fallback, name string) decimal.Decimal {
		raw := stringWithDefault(lookup, key, fallback)
		value, err := decimal.NewFromString(strings.TrimSpace(raw))
		if err != nil || value.IsNegative() {
			invalid = append(invalid, name)
			return decimal.Zero
		}
		return value
	}

	cfg := Config{
		Environment: strings.ToLower(stringWithDefault(lookup, "STOREFRONT_ENVIRONMENT", defaultEnvironment)),
		LogLevel:    stringWithDefault(lookup, "LOG_LEVEL", defaultLogLevel),
		Server: ServerConfig{
			Port:         stringWithDefault(lookup, "STOREFRONT_SERVER_PORT", defaultPort),
			ReadTimeout:  durationWithDefault(lookup, "STOREFRONT_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: durationWithDefault(lookup, "STOREFRONT_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  durationWithDefault(lookup, "STOREFRONT_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		API: APIConfig{
			BaseURL:         strings.TrimRight(stringWithDefault(lookup, "STOREFRONT_API_BASE_URL", ""), "/"),
			Timeout:         durationWithDefault(lookup, "STOREFRONT_API_TIMEOUT", defaultAPITimeout),
			BreakerFailures: intWithDefault(lookup, "STOREFRONT_API_BREAKER_FAILURES", defaultBreakerFailures),
			BreakerCooldown: durationWithDefault(lookup, "STOREFRONT_API_BREAKER_COOLDOWN", defaultBreakerCooldown),
		},
		Shop: ShopConfig{
			ID:                stringWithDefault(lookup, "STOREFRONT_SHOP_ID", ""),
			RestaurantName:    stringWithDefault(lookup, "STOREFRONT_RESTAURANT_NAME", ""),
			RestaurantPhone:   stringWithDefault(lookup, "STOREFRONT_RESTAURANT_PHONE", ""),
			RestaurantAddress: stringWithDefault(lookup, "STOREFRONT_RESTAURANT_ADDRESS", ""),
		},
		Pricing: PricingConfig{
			Currency:    strings.ToUpper(strings.TrimSpace(stringWithDefault(lookup, "STOREFRONT_CURRENCY", defaultCurrency))),
			DeliveryFee: decimalField("STOREFRONT_DELIVERY_FEE", defaultDeliveryFee, "Pricing.DeliveryFee"),
			PlatformFee: decimalField("STOREFRONT_PLATFORM_FEE", "0", "Pricing.PlatformFee"),
			TaxRate:     decimalField("STOREFRONT_TAX_RATE", "0", "Pricing.TaxRate"),
		},
		Storage: StorageConfig{
			LocalStoreDSN:      stringWithDefault(lookup, "STOREFRONT_LOCAL_STORE_DSN", defaultLocalStoreDSN),
			CartCacheRedisAddr: stringWithDefault(lookup, "STOREFRONT_CART_CACHE_REDIS_ADDR", ""),
			CartCacheTTL:       durationWithDefault(lookup, "STOREFRONT_CART_CACHE_TTL", defaultCartCacheTTL),
		},
		Session: SessionConfig{
			HashKey:     stringWithDefault(lookup, "STOREFRONT_SESSION_HASH_KEY", ""),
			BlockKey:    stringWithDefault(lookup, "STOREFRONT_SESSION_BLOCK_KEY", ""),
			Secure:      boolWithDefault(lookup, "STOREFRONT_SESSION_SECURE", false),
			IdleTimeout: durationWithDefault(lookup, "STOREFRONT_SESSION_IDLE_TIMEOUT", defaultSessionIdle),
		},
		Payment: PaymentConfig{
			Provider:     strings.ToLower(stringWithDefault(lookup, "STOREFRONT_PAYMENT_PROVIDER", defaultPaymentProvider)),
			StripeAPIKey: stringWithDefault(lookup, "STOREFRONT_STRIPE_API_KEY", ""),
			Timeout:      durationWithDefault(lookup, "STOREFRONT_PAYMENT_TIMEOUT", defaultPaymentTimeout),
		},
		Secrets: SecretsConfig{
			ProjectID: stringWithDefault(lookup, "STOREFRONT_SECRETS_PROJECT_ID", ""),
		},
	}

	// Resolve secrets when values reference Secret Manager.
	secretFields := []*string{
		&cfg.Session.HashKey,
		&cfg.Session.BlockKey,
		&cfg.Payment.StripeAPIKey,
	}
	for _, field := range secretFields {
		resolved, err := resolveSecret(ctx, *field, options.secret)
		if err != nil {
			return Config{}, err
		}
		*field = resolved
	}

	if err := validateConfig(cfg, invalid); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func newLoaderOptions(opts []Option) loaderOptions {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
		secret: SecretResolverFunc(func(ctx context.Context, ref string) (string, error) {
			return "", errSecretResolverNotConfigured
		}),
	}
	for _, opt := range opts {
		opt(&options)
	}
	return options
}

func (o loaderOptions) lookup() (func(string) (string, bool), error) {
	dotEnvValues, err := loadDotEnv(o.envFile)
	if err != nil {
		return nil, err
	}
	return func(key string) (string, bool) {
		if o.envMap != nil {
			if value, ok := o.envMap[key]; ok {
				return value, true
			}
		}
		if o.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		if dotEnvValues != nil {
			if value, ok := dotEnvValues[key]; ok {
				return value, true
			}
		}
		return "", false
	}, nil
}

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	if value == "" || !isSecretReference(value) {
		return value, nil
	}
	normalized := normalizeSecretReference(value)
	if resolver == nil {
		return "", &SecretError{Ref: normalized, Err: errSecretResolverNotConfigured}
	}
	secret, err := resolver.ResolveSecret(ctx, normalized)
	if err != nil {
		return "", &SecretError{Ref: normalized, Err: err}
	}
	return strings.TrimSpace(secret), nil
}

func validateConfig(cfg Config, invalid []string) error {
	missing := append([]string(nil), invalid...)

	if cfg.Server.Port == "" {
		missing = append(missing, "Server.Port")
	}
	if cfg.API.BaseURL == "" {
		missing = append(missing, "API.BaseURL")
	}
	if cfg.API.Timeout <= 0 {
		missing = append(missing, "API.Timeout")
	}
	if cfg.API.BreakerFailures <= 0 {
		missing = append(missing, "API.BreakerFailures")
	}
	if _, err := currency.ParseISO(cfg.Pricing.Currency); err != nil {
		missing = append(missing, "Pricing.Currency")
	}
	if cfg.Storage.CartCacheTTL <= 0 {
		missing = append(missing, "Storage.CartCacheTTL")
	}
	if len(cfg.Session.HashKey) < 32 {
		missing = append(missing, "Session.HashKey")
	}
	if n := len(cfg.Session.BlockKey); n != 0 && n != 16 && n != 24 && n != 32 {
		missing = append(missing, "Session.BlockKey")
	}
	switch cfg.Payment.Provider {
	case PaymentProviderAPI:
	case PaymentProviderStripe:
		if cfg.Payment.StripeAPIKey == "" {
			missing = append(missing, "Payment.StripeAPIKey")
		}
	default:
		missing = append(missing, "Payment.Provider")
	}
	if cfg.Payment.Timeout <= 0 {
		missing = append(missing, "Payment.Timeout")
	}

	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

func isSecretReference(value string) bool {
	trimmed := strings.TrimSpace(value)
	return strings.HasPrefix(trimmed, "secret://") || strings.HasPrefix(trimmed, "sm://")
}

func normalizeSecretReference(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "sm://") {
		return "secret://" + strings.TrimPrefix(trimmed, "sm://")
	}
	return trimmed
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	file, err := os.Open(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	values := make(map[string]string)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		values[key] = strings.Trim(strings.TrimSpace(value), "\"'")
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: failed parsing %s: %w", absPath, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(value)); err == nil {
			return d
		}
	}
	return fallback
}

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) int {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return fallback
}

func boolWithDefault(lookup func(string) (string, bool), key string, fallback bool) bool {
	if value, ok := lookup(key); ok && value != "" {
		switch strings.ToLower(strings.TrimSpace(value)) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
	}
	return fallback
}
