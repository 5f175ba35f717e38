package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/example/appointment-desk/internal/application"
	"github.com/example/appointment-desk/internal/assets"
	"github.com/example/appointment-desk/internal/config"
	"github.com/example/appointment-desk/internal/export"
	httptransport "github.com/example/appointment-desk/internal/http"
	"github.com/example/appointment-desk/internal/locking"
	"github.com/example/appointment-desk/internal/logging"
	"github.com/example/appointment-desk/internal/notify"
	"github.com/example/appointment-desk/internal/persistence"
	"github.com/example/appointment-desk/internal/persistence/memory"
	"github.com/example/appointment-desk/internal/persistence/sqlite"
	"github.com/example/appointment-desk/internal/scheduler"
)

func main() {
	cfg, err := config.Load(os.Getenv("APPOINTMENTS_CONFIG_FILE"))
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger, err := logging.New(os.Stdout, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		slog.Error("failed to build logger", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := newApp(ctx, cfg, logger, time.Now)
	if err != nil {
		logger.Error("failed to initialise application", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           app.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to shutdown server", "error", err)
		}
	}()

	logger.Info("appointment API listening", "addr", server.Addr, "storage", cfg.Storage.Driver, "assets", cfg.Assets.Driver)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server encountered error", "error", err)
		stop()
		app.Close()
		os.Exit(1)
	}
}

type app struct {
	handler http.Handler
	closers []func() error
	logger  *slog.Logger
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Error("failed to release resource", "error", err)
		}
	}
	a.closers = nil
}

type recordStore interface {
	persistence.AppointmentRepository
	persistence.AvailabilityRuleRepository
	Close() error
}

func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger, now func() time.Time) (a *app, err error) {
	a = &app{logger: logger}
	defer func() {
		if err != nil {
			a.Close()
			a = nil
		}
	}()

	store, err := openStore(ctx, cfg.Storage, logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, store.Close)

	images, uploads, err := openAssets(cfg.Assets)
	if err != nil {
		return nil, err
	}

	var locker application.DateLocker = locking.NewLocalLocker()
	if cfg.Redis.Addr != "" {
		client, err := locking.Dial(ctx, locking.RedisOptions{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, client.Close)
		locker = locking.NewRedisLocker(client, cfg.Redis.LockTTL, logger)
		logger.Info("approval locks shared through redis", "addr", cfg.Redis.Addr)
	}

	var notifier application.Notifier = notify.Nop{}
	if cfg.SMTP.Host != "" {
		smtp, err := notify.NewSMTPNotifier(notify.SMTPOptions{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		}, logger)
		if err != nil {
			return nil, err
		}
		notifier = smtp
	}

	location, err := cfg.Calendar.Location()
	if err != nil {
		return nil, err
	}

	policy := application.Policy{
		MaxActiveRequests: cfg.Policy.MaxActiveRequests,
		SlotGrid: scheduler.SlotGrid{
			Interval: cfg.Policy.SlotInterval,
			Open:     cfg.Policy.SlotOpen,
			Close:    cfg.Policy.SlotClose,
		},
	}

	availability := application.NewAvailabilityServiceWithLogger(newRuleRepositoryAdapter(store), uuid.NewString, now, cfg.Policy.RuleCacheTTL, logger)
	appointments := application.NewAppointmentService(newAppointmentRepositoryAdapter(store), availability, uuid.NewString, now,
		application.WithImageStore(newImageStoreAdapter(images)),
		application.WithDateLocker(locker),
		application.WithNotifier(notifier),
		application.WithPolicy(policy),
		application.WithLogger(logger),
	)

	a.handler = httptransport.NewRouter(httptransport.RouterConfig{
		Appointments: httptransport.NewAppointmentHandler(appointments, logger),
		Rules:        httptransport.NewRuleHandler(availability, logger),
		Schedule:     httptransport.NewScheduleHandler(appointments, logger),
		Exports: httptransport.NewExportHandler(appointments, export.CalendarOptions{
			Name:     cfg.Calendar.Name,
			Location: location,
		}, now, logger),
		Uploads:        uploads,
		Authenticate:   httptransport.RequireToken(httptransport.NewJWTVerifier(cfg.Auth.JWTSecret, cfg.Auth.AdminUserIDs, now), logger),
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		Middleware:     []func(http.Handler) http.Handler{httptransport.RequestLogger(logger)},
		Logger:         logger,
	})
	return a, nil
}

func openStore(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (recordStore, error) {
	if cfg.Driver == "memory" {
		logger.Warn("using in-memory storage; records are lost on restart")
		return memory.New(), nil
	}

	storage, err := sqlite.Open(cfg.SQLiteDSN)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	version, err := storage.Migrate(ctx)
	if err != nil {
		_ = storage.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}
	logger.Info("database migrations applied", "version", version)
	return storage, nil
}

// openAssets returns the image store and, for the local driver, the handler serving
// its files.
func openAssets(cfg config.AssetsConfig) (assets.Store, http.Handler, error) {
	if cfg.Driver == "s3" {
		store, err := assets.NewS3Store(assets.S3Options{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			UsePathStyle:    cfg.S3.UsePathStyle,
			PublicBaseURL:   cfg.PublicBaseURL,
			MaxBytes:        cfg.MaxImageBytes,
		})
		if err != nil {
			return nil, nil, err
		}
		return store, nil, nil
	}

	store, err := assets.NewLocalStore(cfg.LocalDir, cfg.PublicBaseURL, cfg.MaxImageBytes)
	if err != nil {
		return nil, nil, err
	}
	return store, http.FileServer(http.Dir(store.Dir())), nil
}
