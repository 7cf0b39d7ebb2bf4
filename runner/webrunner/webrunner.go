// Package webrunner wires the full service: credential vault, stores,
// token lifecycle managers, provider adapters, the sync engine and the
// HTTP API, then runs the server until the context is canceled.
package webrunner

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/openfeedback/review-sync/memory"
	"github.com/openfeedback/review-sync/models"
	"github.com/openfeedback/review-sync/pkg/encryption"
	"github.com/openfeedback/review-sync/placecache"
	"github.com/openfeedback/review-sync/providers"
	"github.com/openfeedback/review-sync/runner"
	"github.com/openfeedback/review-sync/sqlite"
	"github.com/openfeedback/review-sync/subscription"
	"github.com/openfeedback/review-sync/syncer"
	"github.com/openfeedback/review-sync/tokens"
	"github.com/openfeedback/review-sync/web"
)

const shutdownTimeout = 10 * time.Second

type webrunner struct {
	cfg    *runner.Config
	logger *zap.Logger
	srv    *http.Server
	db     *sql.DB
}

func New(cfg *runner.Config) (runner.Runner, error) {
	logger, err := newLogger(cfg.Debug)
	if err != nil {
		return nil, err
	}

	vault, err := encryption.NewFromPassphrase(cfg.VaultPassphrase)
	if err != nil {
		return nil, err
	}

	var (
		integrations models.IntegrationRepository
		reviews      models.ReviewRepository
		plans        models.PlanRepository
		db           *sql.DB
	)

	if cfg.DatabasePath != "" {
		db, err = sqlite.Open(cfg.DatabasePath)
		if err != nil {
			return nil, err
		}

		integrations = sqlite.NewIntegrationRepo(db)
		reviews = sqlite.NewReviewRepo(db)
		plans = sqlite.NewPlanRepo(db)
	} else {
		logger.Warn("no database path configured, using in-memory stores")

		integrations = memory.NewIntegrationRepo()
		reviews = memory.NewReviewRepo()
		plans = memory.NewPlanRepo()
	}

	var gate subscription.Gate = subscription.NewService(plans, logger)
	if cfg.DevMode {
		logger.Warn("dev mode: entitlement gate disabled")

		gate = subscription.AllowAll{}
	}

	telemetry := runner.Telemetry()

	googleTokens := tokens.NewDeduped(tokens.NewGoogle(integrations, vault, tokens.GoogleConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
	}, logger, telemetry), models.PlatformGoogle)

	metaTokens := tokens.NewDeduped(tokens.NewMeta(integrations, vault, tokens.MetaConfig{
		AppID:     cfg.MetaAppID,
		AppSecret: cfg.MetaAppSecret,
	}, logger, telemetry), models.PlatformMeta)

	placeCache := placecache.NewMemory()
	if cfg.RedisAddr != "" {
		placeCache = placecache.NewRedis(redis.NewClient(&redis.Options{Addr: cfg.RedisAddr}))
	}

	engineCfg := syncer.Config{
		Gate:           gate,
		Integrations:   integrations,
		Reviews:        reviews,
		GoogleTokens:   googleTokens,
		MetaTokens:     metaTokens,
		GoogleBusiness: providers.NewGoogleBusiness("", logger),
		Places:         providers.NewPlaces(cfg.PlacesAPIKey, "", placeCache, logger),
		Meta:           providers.NewMeta("", logger),
		Logger:         logger,
		Telemetry:      telemetry,
	}

	if cfg.SerpAPIKey != "" {
		engineCfg.Serp = providers.NewSerpProxy(cfg.SerpAPIKey, cfg.SerpBaseURL, logger, telemetry)
	}

	engine := syncer.New(engineCfg)
	handler := web.New(engine, integrations, reviews, logger)

	return &webrunner{
		cfg:    cfg,
		logger: logger,
		db:     db,
		srv: &http.Server{
			Addr:              cfg.Addr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}, nil
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}

	return zap.NewProduction()
}

func (w *webrunner) Run(ctx context.Context) error {
	errc := make(chan error, 1)

	go func() {
		w.logger.Info("listening", zap.String("addr", w.cfg.Addr))
		errc <- w.srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}

		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		return w.srv.Shutdown(shutdownCtx)
	}
}

func (w *webrunner) Close(context.Context) error {
	_ = w.logger.Sync()

	if w.db != nil {
		return w.db.Close()
	}

	return nil
}
