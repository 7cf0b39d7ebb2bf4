// Package runner holds process configuration and bootstrap shared by the
// service entrypoint.
package runner

import (
	"context"
	"errors"
	"flag"
	"os"
	"sync"

	"github.com/openfeedback/review-sync/tlmt"
	"github.com/openfeedback/review-sync/tlmt/gonoop"
	"github.com/openfeedback/review-sync/tlmt/goposthog"
)

var ErrMissingVaultKey = errors.New("a vault passphrase is required")

type Runner interface {
	Run(context.Context) error
	Close(context.Context) error
}

type Config struct {
	Addr         string
	DatabasePath string

	// VaultPassphrase derives the AES key protecting stored tokens.
	VaultPassphrase string

	GoogleClientID     string
	GoogleClientSecret string
	PlacesAPIKey       string

	MetaAppID     string
	MetaAppSecret string

	SerpAPIKey  string
	SerpBaseURL string

	RedisAddr string

	Debug            bool
	DevMode          bool
	DisableTelemetry bool
}

func ParseConfig() (*Config, error) {
	cfg := Config{}

	flag.StringVar(&cfg.Addr, "addr", ":8080", "address to listen on")
	flag.StringVar(&cfg.DatabasePath, "db", "", "path to the sqlite database [default: in-memory stores]")
	flag.StringVar(&cfg.VaultPassphrase, "vault-passphrase", "", "passphrase for the credential vault [env: VAULT_PASSPHRASE]")
	flag.StringVar(&cfg.GoogleClientID, "google-client-id", "", "Google OAuth client id [env: GOOGLE_CLIENT_ID]")
	flag.StringVar(&cfg.GoogleClientSecret, "google-client-secret", "", "Google OAuth client secret [env: GOOGLE_CLIENT_SECRET]")
	flag.StringVar(&cfg.PlacesAPIKey, "places-api-key", "", "Google Places API key [env: PLACES_API_KEY]")
	flag.StringVar(&cfg.MetaAppID, "meta-app-id", "", "Meta app id [env: META_APP_ID]")
	flag.StringVar(&cfg.MetaAppSecret, "meta-app-secret", "", "Meta app secret [env: META_APP_SECRET]")
	flag.StringVar(&cfg.SerpAPIKey, "serp-api-key", "", "search proxy API key, enables the public-review fallback [env: SERP_API_KEY]")
	flag.StringVar(&cfg.SerpBaseURL, "serp-base-url", "", "search proxy base URL [env: SERP_BASE_URL]")
	flag.StringVar(&cfg.RedisAddr, "redis-addr", "", "redis address for the place id cache [default: in-process cache]")
	flag.BoolVar(&cfg.Debug, "debug", false, "enable debug logging")
	flag.BoolVar(&cfg.DevMode, "dev", false, "dev mode: skip the entitlement gate")

	flag.Parse()

	fromEnv(&cfg.VaultPassphrase, "VAULT_PASSPHRASE")
	fromEnv(&cfg.GoogleClientID, "GOOGLE_CLIENT_ID")
	fromEnv(&cfg.GoogleClientSecret, "GOOGLE_CLIENT_SECRET")
	fromEnv(&cfg.PlacesAPIKey, "PLACES_API_KEY")
	fromEnv(&cfg.MetaAppID, "META_APP_ID")
	fromEnv(&cfg.MetaAppSecret, "META_APP_SECRET")
	fromEnv(&cfg.SerpAPIKey, "SERP_API_KEY")
	fromEnv(&cfg.SerpBaseURL, "SERP_BASE_URL")
	fromEnv(&cfg.RedisAddr, "REDIS_ADDR")

	cfg.DisableTelemetry = os.Getenv("DISABLE_TELEMETRY") == "1"

	if cfg.VaultPassphrase == "" {
		return nil, ErrMissingVaultKey
	}

	return &cfg, nil
}

func fromEnv(dst *string, key string) {
	if *dst == "" {
		*dst = os.Getenv(key)
	}
}

var (
	telemetryOnce sync.Once
	telemetry     tlmt.Telemetry
)

// Telemetry returns the process-wide telemetry client, falling back to a
// noop client when disabled or unreachable.
func Telemetry() tlmt.Telemetry {
	telemetryOnce.Do(func() {
		if os.Getenv("DISABLE_TELEMETRY") == "1" {
			telemetry = gonoop.New()

			return
		}

		apiKey := os.Getenv("POSTHOG_API_KEY")
		endpoint := os.Getenv("POSTHOG_ENDPOINT")

		if apiKey == "" {
			telemetry = gonoop.New()

			return
		}

		if endpoint == "" {
			endpoint = "https://eu.i.posthog.com"
		}

		val, err := goposthog.New(apiKey, endpoint)
		if err != nil || val == nil {
			telemetry = gonoop.New()

			return
		}

		telemetry = val
	})

	return telemetry
}
