package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/avstrong/staybook/internal/booking"
	"github.com/avstrong/staybook/internal/payment"
	"github.com/avstrong/staybook/internal/pricing"
	"github.com/avstrong/staybook/internal/storage/postgres"
)

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

var ErrMalformedRates = errors.New("food plan rates must look like Plan=rate,Plan=rate")

type HTTP struct {
	Host              string        `validate:"required"`
	Port              string        `validate:"required,numeric"`
	ReadHeaderTimeout time.Duration `validate:"gt=0"`
	LivenessEndpoint  string        `validate:"required,startswith=/"`
}

type Config struct {
	HTTP          HTTP
	LogLevel      string `validate:"oneof=trace debug info warn warning error fatal panic"`
	Pricing       pricing.Config
	HoldDuration  time.Duration `validate:"gt=0"`
	Payment       payment.Config
	Gateway       payment.HostedConfig
	Breaker       payment.BreakerConfig
	StorageDriver string `validate:"oneof=memory postgres"`
	DB            postgres.Config
	RedisAddr     string
	DedupTTL      time.Duration `validate:"gt=0"`
	SweepInterval time.Duration `validate:"gt=0"`
}

// Load reads the environment, after merging ENV_FILE (".env" by default) when it exists.
// Variables already set win over the file. Unset variables fall back to defaults,
// malformed ones are errors.
//
//nolint:funlen // it's a flat list of variables
func Load() (*Config, error) {
	envFile := getEnvOrDefault("ENV_FILE", ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load %v: %w", envFile, err)
	}

	var errs []error

	str := func(key, def string) string {
		return getEnvOrDefault(key, def)
	}

	num := func(key string, def float64) float64 {
		v, err := getEnvAsFloatOrDefault(key, def)
		errs = append(errs, err)

		return v
	}

	integer := func(key string, def int) int {
		v, err := getEnvAsIntOrDefault(key, def)
		errs = append(errs, err)

		return v
	}

	flag := func(key string, def bool) bool {
		v, err := getEnvAsBoolOrDefault(key, def)
		errs = append(errs, err)

		return v
	}

	duration := func(key string, def time.Duration) time.Duration {
		v, err := getEnvAsDurationOrDefault(key, def)
		errs = append(errs, err)

		return v
	}

	rates, err := parseRates(str("FOOD_PLAN_RATES", ""))
	errs = append(errs, err)

	pricingConf := pricing.DefaultConfig()
	pricingConf.TaxRate = num("TAX_RATE", pricingConf.TaxRate)
	pricingConf.ServiceChargeRate = num("SERVICE_CHARGE_RATE", pricingConf.ServiceChargeRate)

	for plan, rate := range rates {
		pricingConf.FoodPlanRates[plan] = rate
	}

	breakerConf := payment.DefaultBreakerConfig()
	breakerConf.Failures = uint32(integer("GATEWAY_BREAKER_FAILURES", int(breakerConf.Failures))) //nolint:gosec
	breakerConf.OpenTimeout = duration("GATEWAY_BREAKER_OPEN_TIMEOUT", breakerConf.OpenTimeout)

	paymentConf := payment.DefaultConfig()
	paymentConf.Currency = str("CURRENCY", paymentConf.Currency)
	paymentConf.RequireApproval[booking.PaymentMethodCash] = flag("REQUIRE_APPROVAL_CASH", paymentConf.RequireApproval[booking.PaymentMethodCash])
	paymentConf.RequireApproval[booking.PaymentMethodBank] = flag("REQUIRE_APPROVAL_BANK", paymentConf.RequireApproval[booking.PaymentMethodBank])
	paymentConf.RequireApproval[booking.PaymentMethodCard] = flag("REQUIRE_APPROVAL_CARD", paymentConf.RequireApproval[booking.PaymentMethodCard])

	conf := &Config{
		HTTP: HTTP{
			Host:              str("HTTP_HOST", "localhost"),
			Port:              str("HTTP_PORT", "8092"),
			ReadHeaderTimeout: duration("HTTP_READ_HEADER_TIMEOUT", 20*time.Second), //nolint:gomnd
			LivenessEndpoint:  str("LIVENESS_ENDPOINT", "/liveness"),
		},
		LogLevel:     strings.ToLower(str("LOG_LEVEL", "info")),
		Pricing:      pricingConf,
		HoldDuration: time.Duration(integer("HOLD_DURATION_MINUTES", 30)) * time.Minute, //nolint:gomnd
		Payment:      paymentConf,
		Gateway: payment.HostedConfig{
			ActionURL:  str("GATEWAY_ACTION_URL", ""),
			MerchantID: str("GATEWAY_MERCHANT_ID", ""),
			Secret:     str("GATEWAY_SECRET", ""),
			ReturnURL:  str("GATEWAY_RETURN_URL", ""),
			CancelURL:  str("GATEWAY_CANCEL_URL", ""),
			NotifyURL:  str("GATEWAY_NOTIFY_URL", ""),
		},
		Breaker:       breakerConf,
		StorageDriver: strings.ToLower(str("STORAGE_DRIVER", StorageMemory)),
		DB: postgres.Config{
			Host:     str("DB_HOST", "localhost"),
			Port:     integer("DB_PORT", 5432), //nolint:gomnd
			UserName: str("DB_USERNAME", "postgres"),
			Password: str("DB_PASSWORD", "postgres"),
			DBName:   str("DB_NAME", "staybook"),
			SSLMode:  str("DB_SSL_MODE", "disable"),
		},
		RedisAddr:     str("REDIS_ADDR", ""),
		DedupTTL:      duration("CALLBACK_DEDUP_TTL", 24*time.Hour), //nolint:gomnd
		SweepInterval: duration("SWEEP_INTERVAL", time.Minute),
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	if err := validator.New().Struct(conf); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return conf, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}

	return defaultValue
}

func getEnvAsIntOrDefault(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}

	intValue, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}

	return intValue, nil
}

func getEnvAsFloatOrDefault(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}

	floatValue, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}

	return floatValue, nil
}

func getEnvAsBoolOrDefault(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}

	boolValue, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("parse %s: %w", key, err)
	}

	return boolValue, nil
}

func getEnvAsDurationOrDefault(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}

	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}

	return d, nil
}

// parseRates reads "Breakfast=1500,HalfBoard=3500".
func parseRates(raw string) (map[booking.FoodPlan]float64, error) {
	rates := make(map[booking.FoodPlan]float64)

	if strings.TrimSpace(raw) == "" {
		return rates, nil
	}

	for _, pair := range strings.Split(raw, ",") {
		plan, rate, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || plan == "" {
			return nil, fmt.Errorf("%q: %w", pair, ErrMalformedRates)
		}

		value, err := strconv.ParseFloat(strings.TrimSpace(rate), 64)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", pair, ErrMalformedRates)
		}

		rates[booking.FoodPlan(strings.TrimSpace(plan))] = value
	}

	return rates, nil
}
