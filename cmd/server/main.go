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

	"salonbook/internal/api"
	"salonbook/internal/bot"
	"salonbook/internal/catalog"
	"salonbook/internal/config"
	"salonbook/internal/database"
	"salonbook/internal/domain"
	"salonbook/internal/events"
	"salonbook/internal/google"
	"salonbook/internal/logging"
	"salonbook/internal/metrics"
	"salonbook/internal/models"
	"salonbook/internal/notify"
	"salonbook/internal/repository"
	"salonbook/internal/service"
	"salonbook/internal/worker"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"google.golang.org/api/sheets/v4"
)

const healthInterval = 30 * time.Second

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
	for _, warning := range cfg.Warnings() {
		logger.Warn().Msg(warning)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	healthChecks := make(map[string]api.HealthCheck)

	redisClient := initRedis(ctx, cfg, logger)
	if redisClient != nil {
		defer (func() { _ = repository.Close(redisClient) })()
		healthChecks["redis"] = func(ctx context.Context) error { return repository.Ping(ctx, redisClient) }
	}
	locker, limiter := initCoordination(redisClient, logger)

	botAPI, err := notify.NewBotAPI(cfg.Telegram)
	if err != nil {
		return fmt.Errorf("init telegram bot: %w", err)
	}
	logger.Info().Str("bot", botAPI.Self.UserName).Msg("telegram bot authorized")

	var sheetsAPI *sheets.Service
	if cfg.Google.Configured() {
		sheetsAPI, err = google.NewSheetsAPI(ctx, cfg.Google)
		if err != nil {
			return fmt.Errorf("init google sheets: %w", err)
		}
	}

	catalogService, err := initCatalog(cfg, sheetsAPI, logger)
	if err != nil {
		return err
	}

	var (
		db     *database.DB
		ledger domain.Ledger
	)
	scope := models.SlotScope(cfg.Booking.SlotScope)
	switch cfg.Database.Driver {
	case config.DriverSheets:
		bookingSheet := google.NewSheetsService(sheetsAPI, cfg.Google.SpreadsheetID, cfg.Google.BookingSheet)
		if err := bookingSheet.TestConnection(ctx); err != nil {
			return fmt.Errorf("booking sheet: %w", err)
		}
		ledger = google.NewSheetsLedger(bookingSheet, locker, scope)
		healthChecks["ledger"] = bookingSheet.TestConnection
	default:
		db, err = database.NewDB(cfg.Database.Path, logger)
		if err != nil {
			logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
			return err
		}
		defer db.Close()
		ledger = database.NewLedger(db)
		healthChecks["ledger"] = db.PingContext
	}

	eventBus := events.NewEventBus()
	bookingService := service.NewBookingService(
		ledger,
		catalogService,
		notify.NewTelegramNotifier(botAPI, logger),
		eventBus,
		scope,
		time.Duration(cfg.Booking.LedgerTimeout)*time.Second,
		time.Duration(cfg.Booking.NotifyTimeout)*time.Second,
		logger,
	)

	if db != nil {
		go database.NewBackupService(db, cfg.Backup, logger).Start(ctx)

		if cfg.Google.MirrorBookings {
			mirror, err := startMirror(ctx, cfg, sheetsAPI, db, redisClient, logger)
			if err != nil {
				return err
			}
			subscribeBookingEvents(ctx, eventBus, database.NewLedger(db), mirror)
		}
	}

	webhook := bot.NewWebhookHandler(
		botAPI,
		bookingService,
		catalogService,
		limiter,
		bot.WebhookOptions{
			Secret:            cfg.Telegram.WebhookSecret,
			RateLimitMessages: cfg.Booking.RateLimitMessages,
			RateLimitWindow:   time.Duration(cfg.Booking.RateLimitWindow) * time.Second,
		},
		bot.NewMetrics(prometheus.DefaultRegisterer),
		logger,
	)

	httpServer := api.NewHTTPServer(cfg.API, api.Deps{
		Bookings:     bookingService,
		Catalog:      catalogService,
		Webhook:      webhook,
		HealthChecks: healthChecks,
	}, logger)

	var grpcServer *api.GRPCServer
	if cfg.API.GRPC.Enabled {
		grpcServer, err = api.NewGRPCServer(cfg.API, healthChecks, logger)
		if err != nil {
			logger.Error().Err(err).Msg("create grpc server")
			return err
		}
		go grpcServer.WatchHealth(ctx, healthInterval)
	}

	startMetrics(ctx, cfg, logger)

	return startServers(ctx, grpcServer, httpServer, cfg, logger)
}

func loadConfigAndLogger() (*config.Config, *zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, logging.Component(baseLogger, "server-main"), closer, nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	client := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, client); err != nil {
		// the failover wrappers keep probing, so a late redis still gets used
		logger.Warn().Err(err).Msg("redis connection failed, starting on in-process locks")
	} else {
		logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	}
	return client
}

func initCoordination(client *redis.Client, logger *zerolog.Logger) (domain.SlotLocker, domain.RateLimiter) {
	if client == nil {
		return repository.NewMemorySlotLocker(), repository.NewMemoryRateLimiter()
	}
	locker := repository.NewFailoverSlotLocker(
		repository.NewRedisSlotLocker(client, models.SlotLockTTL*time.Second),
		repository.NewMemorySlotLocker(),
		logger,
	)
	limiter := repository.NewFailoverRateLimiter(
		repository.NewRedisRateLimiter(client),
		repository.NewMemoryRateLimiter(),
		logger,
	)
	return locker, limiter
}

func initCatalog(cfg *config.Config, sheetsAPI *sheets.Service, logger *zerolog.Logger) (*service.CatalogService, error) {
	var source domain.CatalogSource
	switch cfg.Catalog.Source {
	case config.CatalogSourceSheets:
		source = google.NewSheetsCatalog(sheetsAPI, cfg.Google.SpreadsheetID, cfg.Google.TechnicianSheet, cfg.Google.ServiceSheet)
	default:
		static, err := catalog.LoadFile(cfg.Catalog.FilePath)
		if err != nil {
			logger.Error().Err(err).Str("catalog_path", cfg.Catalog.FilePath).Msg("load catalog")
			return nil, err
		}
		source = static
	}
	return service.NewCatalogService(source, time.Duration(cfg.Catalog.CacheTTL)*time.Second, logger), nil
}

func startMirror(
	ctx context.Context,
	cfg *config.Config,
	sheetsAPI *sheets.Service,
	db *database.DB,
	redisClient *redis.Client,
	logger *zerolog.Logger,
) (*worker.SheetsWorker, error) {
	if sheetsAPI == nil {
		return nil, errors.New("booking mirror needs google sheets")
	}
	mirrorSheet := google.NewSheetsService(sheetsAPI, cfg.Google.SpreadsheetID, cfg.Google.BookingSheet)
	if err := mirrorSheet.TestConnection(ctx); err != nil {
		logger.Warn().Err(err).Msg("booking sheet unreachable, mirror tasks will retry")
	}

	sheetsWorker := worker.NewSheetsWorker(db, mirrorSheet, database.NewLedger(db), redisClient, worker.DefaultRetryPolicy(), logging.Component(logger, "sheets-worker"))
	go sheetsWorker.Start(ctx)
	return sheetsWorker, nil
}

// subscribeBookingEvents mirrors every accepted booking into the sheet.
// The event carries only a summary, so the full record is read back from the ledger.
func subscribeBookingEvents(ctx context.Context, bus *events.EventBus, ledger *database.Ledger, mirror domain.SyncWorker) {
	bus.Subscribe(events.EventBookingCreated, func(ev *events.Event) error {
		payload, err := events.DecodeBookingPayload(ev)
		if err != nil {
			return err
		}

		record, err := ledger.GetByID(ctx, payload.BookingID)
		if err != nil {
			return fmt.Errorf("load booking %s for mirror: %w", payload.BookingID, err)
		}

		if err := mirror.EnqueueTask(ctx, worker.TaskUpsert, record); err != nil {
			return fmt.Errorf("enqueue sheet sync for %s: %w", record.ID, err)
		}
		return nil
	})
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	port := cfg.Monitoring.PrometheusPort
	if port == 0 {
		port = 9090
	}
	go startMetricsServer(ctx, port, logger)
}

func startServers(
	ctx context.Context,
	grpcServer *api.GRPCServer,
	httpServer *api.HTTPServer,
	cfg *config.Config,
	logger *zerolog.Logger,
) error {
	errCh := make(chan error, 2)

	if grpcServer != nil {
		go func() {
			if err := grpcServer.Serve(); err != nil {
				errCh <- fmt.Errorf("grpc server: %w", err)
			}
		}()
	}

	go func() {
		if err := httpServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	event := logger.Info().Int("http_port", cfg.API.HTTP.Port)
	if grpcServer != nil {
		event = event.Str("grpc_addr", grpcServer.Addr())
	}
	event.Msg("salon booking server started")

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case runErr = <-errCh:
		logger.Error().Err(runErr).Msg("server stopped unexpectedly")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if grpcServer != nil {
		grpcServer.Shutdown(shutdownCtx)
	}
	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("salon booking server stopped")
	return runErr
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
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
