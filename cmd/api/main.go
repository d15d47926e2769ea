package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chauffeur/internal/api"
	"chauffeur/internal/autocomplete"
	"chauffeur/internal/bot"
	"chauffeur/internal/caching"
	"chauffeur/internal/config"
	"chauffeur/internal/domain"
	"chauffeur/internal/events"
	"chauffeur/internal/geocoding"
	"chauffeur/internal/google"
	"chauffeur/internal/logging"
	"chauffeur/internal/metrics"
	"chauffeur/internal/pricing"
	"chauffeur/internal/repository"
	"chauffeur/internal/service"
	"chauffeur/internal/wizard"
	"chauffeur/internal/worker"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fleet := loadFleet(cfg, &logger)

	redisClient := initRedis(ctx, cfg, &logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	geocoder, geoCache := initGeocoder(cfg, redisClient, &logger)
	go runSweeper(ctx, cfg.Autocomplete.SweepInterval, "geocoding cache", geoCache.Sweep, &logger)
	calculator := pricing.NewCalculator(fleet, initDistance(cfg, geocoder, &logger))

	tgBot := initTelegram(cfg, &logger)

	dispatcher := worker.NewDispatchWorker(
		initSinks(ctx, cfg, tgBot, &logger),
		redisClient,
		worker.RetryPolicy{
			MaxRetries:    cfg.Dispatch.MaxRetries,
			InitialDelay:  cfg.Dispatch.BaseDelay,
			MaxDelay:      cfg.Dispatch.MaxDelay,
			BackoffFactor: 2,
		},
		cfg.Dispatch.QueueSize,
		logging.Component(&logger, "dispatch"),
	)
	go dispatcher.Start(ctx)

	if tgBot != nil && cfg.Telegram.Commands {
		botLogger := logging.Component(&logger, "bot")
		officeBot := bot.NewBot(
			bot.NewBotWrapper(tgBot),
			cfg.Telegram.ChatIDs,
			calculator,
			fleet,
			dispatcher,
			&botLogger,
		)
		go officeBot.Start(ctx)
	}

	eventBus := events.NewEventBus(&logger)
	eventBus.Subscribe(events.AnyEvent, func(e *events.Event) error {
		logger.Debug().Str("event", e.Type).Int64("event_id", e.ID).Msg("event published")
		return nil
	})

	memoryStates := repository.NewMemoryStateRepository(cfg.Forms.StateTTL)
	go runSweeper(ctx, cfg.Forms.SweepInterval, "form states", memoryStates.Sweep, &logger)

	forms := wizard.Registry(fleet.IDs())
	formService := service.NewFormService(
		forms,
		service.NewStateService(initStateRepository(redisClient, memoryStates, cfg.Forms.StateTTL, &logger), &logger),
		calculator,
		eventBus,
		dispatcher,
		service.FormServiceOptions{
			SubmitDelay: cfg.Forms.SubmitDelay,
			RateLimit:   cfg.Forms.SubmitRateLimit,
			RateWindow:  cfg.Forms.SubmitRateWindow,
		},
		&logger,
	)

	hub := autocomplete.NewHub(geocoder, autocomplete.Options{
		MinLength: cfg.Autocomplete.MinLength,
		Debounce:  cfg.Autocomplete.Debounce,
	}, cfg.Autocomplete.IdleTTL, logging.Component(&logger, "autocomplete"))
	go hub.Run(ctx, cfg.Autocomplete.SweepInterval)

	formNames := make([]string, 0, len(forms))
	for name := range forms {
		formNames = append(formNames, name)
	}

	apiLogger := logging.Component(&logger, "api")
	httpServer := api.NewServer(cfg, api.Dependencies{
		Forms:     formService,
		Estimator: calculator,
		Fleet:     fleet,
		Addresses: hub,
		Ready: func(ctx context.Context) error {
			if redisClient == nil {
				return nil
			}
			return repository.Ping(ctx, redisClient)
		},
	}, formNames, &apiLogger)
	go httpServer.RunLimiterCleanup(ctx, 10*time.Minute)

	startMetrics(ctx, cfg, &logger)

	return serve(ctx, httpServer, cfg, &logger)
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With().Str("component", "api-main").Logger()

	return cfg, logger, closer, nil
}

// loadFleet falls back to the built-in tariff when no catalog file is readable.
func loadFleet(cfg *config.Config, logger *zerolog.Logger) *pricing.Fleet {
	fleetPath := os.Getenv("FLEET_PATH")
	if fleetPath == "" {
		fleetPath = cfg.Pricing.FleetPath
	}
	if fleetPath == "" {
		fleetPath = "configs/fleet.yaml"
	}

	fleet, err := pricing.LoadFleet(fleetPath)
	if err != nil {
		logger.Warn().Err(err).Str("fleet_path", fleetPath).Msg("fleet catalog not loaded, using built-in tariff")
		return pricing.DefaultFleet()
	}

	logger.Info().Str("fleet_path", fleetPath).Strs("classes", fleet.IDs()).Msg("fleet loaded")
	return fleet
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if !cfg.Redis.Enabled() {
		return nil
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if err := repository.Ping(pingCtx, redisClient); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		_ = redisClient.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return redisClient
}

func initStateRepository(
	redisClient *redis.Client,
	memory *repository.MemoryStateRepository,
	ttl time.Duration,
	logger *zerolog.Logger,
) domain.StateRepository {
	if redisClient == nil {
		return memory
	}
	return repository.NewFailoverStateRepository(
		repository.NewRedisStateRepository(redisClient, ttl),
		memory,
		logger,
	)
}

func initGeocoder(cfg *config.Config, redisClient *redis.Client, logger *zerolog.Logger) (*geocoding.Client, *caching.Cacher) {
	cache := caching.NewMemoryCache("geocoding")
	if redisClient != nil {
		cache = caching.NewRedisCache(redisClient, "geocoding")
	}

	geoLogger := logging.Component(logger, "geocoding")
	return geocoding.NewClient(
		geocoding.WithBaseURL(cfg.Geocoding.BaseURL),
		geocoding.WithTimeout(cfg.Geocoding.Timeout),
		geocoding.WithLimit(cfg.Geocoding.Limit),
		geocoding.WithType(cfg.Geocoding.Type),
		geocoding.WithCache(cache, cfg.Geocoding.CacheTTL),
		geocoding.WithLogger(&geoLogger),
	), cache
}

// runSweeper evicts expired in-memory entries until ctx is done.
func runSweeper(ctx context.Context, interval time.Duration, name string, sweep func() int, logger *zerolog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := sweep(); n > 0 {
				logger.Debug().Str("store", name).Int("removed", n).Msg("expired entries swept")
			}
		}
	}
}

func initDistance(cfg *config.Config, geocoder *geocoding.Client, logger *zerolog.Logger) pricing.DistanceEstimator {
	if cfg.Pricing.Distance != config.DistanceGeocoded {
		return pricing.SyntheticDistance{}
	}
	logger.Info().Float64("road_factor", cfg.Pricing.RoadFactor).Msg("geocoded distance enabled")
	return pricing.NewGeocodedDistance(geocoder, cfg.Pricing.RoadFactor, logger)
}

func initTelegram(cfg *config.Config, logger *zerolog.Logger) *tgbotapi.BotAPI {
	if !cfg.Telegram.Enabled() {
		return nil
	}

	tgBot, err := service.NewTelegramBot(cfg.Telegram.BotToken, cfg.Telegram.Debug)
	if err != nil {
		logger.Warn().Err(err).Msg("telegram init failed, continuing without telegram")
		return nil
	}
	logger.Info().Str("bot", tgBot.Self.UserName).Int("chats", len(cfg.Telegram.ChatIDs)).Msg("telegram connected")
	return tgBot
}

func initSinks(ctx context.Context, cfg *config.Config, tgBot *tgbotapi.BotAPI, logger *zerolog.Logger) []worker.Sink {
	sinks := []worker.Sink{worker.NewLogSink(logging.Component(logger, "submissions"))}

	if tgBot != nil {
		sinks = append(sinks, service.NewTelegramService(tgBot, cfg.Telegram.ChatIDs))
	}

	if cfg.Google.Enabled() {
		sheetsService, err := google.NewSheetsService(ctx,
			cfg.Google.CredentialsFile,
			cfg.Google.RequestsSpreadsheetID,
			cfg.Google.RequestsSheet,
		)
		if err != nil {
			logger.Warn().Err(err).Msg("google sheets init failed, continuing without sheets")
		} else {
			logger.Info().Msg("google sheets connected")
			sinks = append(sinks, sheetsService)
		}
	}

	return sinks
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, logger)
}

func serve(ctx context.Context, httpServer *api.Server, cfg *config.Config, logger *zerolog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Start()
	}()

	logger.Info().Str("addr", httpServer.Addr()).Str("env", cfg.App.Environment).Msg("API server started")

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("http shutdown")
	}

	logger.Info().Msg("API server stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
