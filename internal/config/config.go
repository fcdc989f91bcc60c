package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration (env + Viper).
type Config struct {
	Env                 string
	Port                string
	DatabaseURL         string // postgres DSN, or sqlite:<path> for local runs
	AutoMigrate         bool
	RedisURL            string
	AdminKeyHash        string // bcrypt hash of the X-Admin-Key value
	WebhookSecret       string // HMAC key shared with the payment indexer
	FrontendURLEndsWith string
	LogLevel            string
	SweepEnabled        bool
	SweepSchedule       string // robfig/cron spec, e.g. "@every 5m"
	SweepLockTTL        time.Duration
	Pricing             Pricing
}

// Pricing is the raw rate table configuration. The pricing package validates it.
type Pricing struct {
	Composition        string // compound | additive
	ProjectDiscount    string
	FeaturedMultiplier string
	DurationDiscounts  string // "1:0,2:0.05,3:0.10,6:0.15,12:0.20"
	Fees               map[string]string
}

// Listing kinds and currencies with a configurable base fee.
var (
	feeKinds      = []string{"project", "job", "funding"}
	feeCurrencies = []string{"BONE", "ADA"}
)

var defaultFees = map[string]string{
	"project_BONE": "500.00",
	"job_BONE":     "250.00",
	"funding_BONE": "500.00",
	"project_ADA":  "50.00",
	"job_ADA":      "25.00",
	"funding_ADA":  "50.00",
}

// FeeKey is the key of a base fee in Pricing.Fees.
func FeeKey(kind, currency string) string {
	return kind + "_" + currency
}

// Load loads config from env and optional .env file.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	_ = v.ReadInConfig()

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("PORT", "8080")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DB_AUTO_MIGRATE", false)
	v.SetDefault("SWEEP_ENABLED", true)
	v.SetDefault("SWEEP_SCHEDULE", "@every 5m")
	v.SetDefault("SWEEP_LOCK_TTL", "2m")
	v.SetDefault("PRICING_COMPOSITION", "compound")
	v.SetDefault("PRICING_PROJECT_DISCOUNT", "0.20")
	v.SetDefault("PRICING_FEATURED_MULTIPLIER", "1.5")
	v.SetDefault("PRICING_DURATION_DISCOUNTS", "1:0,2:0.05,3:0.10,6:0.15,12:0.20")

	fees := make(map[string]string, len(feeKinds)*len(feeCurrencies))
	for _, kind := range feeKinds {
		for _, cur := range feeCurrencies {
			key := FeeKey(kind, cur)
			envKey := "PRICING_FEE_" + strings.ToUpper(kind) + "_" + cur
			v.SetDefault(envKey, defaultFees[key])
			fees[key] = strings.TrimSpace(v.GetString(envKey))
		}
	}

	return &Config{
		Env:                 v.GetString("APP_ENV"),
		Port:                v.GetString("PORT"),
		DatabaseURL:         v.GetString("DATABASE_URL"),
		AutoMigrate:         v.GetBool("DB_AUTO_MIGRATE"),
		RedisURL:            v.GetString("REDIS_URL"),
		AdminKeyHash:        v.GetString("ADMIN_KEY_HASH"),
		WebhookSecret:       v.GetString("PAYMENT_WEBHOOK_SECRET"),
		FrontendURLEndsWith: v.GetString("FRONTEND_URL_ENDS_WITH"),
		LogLevel:            v.GetString("LOG_LEVEL"),
		SweepEnabled:        v.GetBool("SWEEP_ENABLED"),
		SweepSchedule:       v.GetString("SWEEP_SCHEDULE"),
		SweepLockTTL:        v.GetDuration("SWEEP_LOCK_TTL"),
		Pricing: Pricing{
			Composition:        strings.ToLower(strings.TrimSpace(v.GetString("PRICING_COMPOSITION"))),
			ProjectDiscount:    v.GetString("PRICING_PROJECT_DISCOUNT"),
			FeaturedMultiplier: v.GetString("PRICING_FEATURED_MULTIPLIER"),
			DurationDiscounts:  v.GetString("PRICING_DURATION_DISCOUNTS"),
			Fees:               fees,
		},
	}, nil
}

// IsProduction reports whether APP_ENV is "production".
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// DefaultPricing returns the platform's standard rate configuration.
func DefaultPricing() Pricing {
	fees := make(map[string]string, len(defaultFees))
	for k, v := range defaultFees {
		fees[k] = v
	}
	return Pricing{
		Composition:        "compound",
		ProjectDiscount:    "0.20",
		FeaturedMultiplier: "1.5",
		DurationDiscounts:  "1:0,2:0.05,3:0.10,6:0.15,12:0.20",
		Fees:               fees,
	}
}
