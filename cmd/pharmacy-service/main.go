package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"
	"github.com/saludmunicipal/farmacia-backend/internal/pharmacy/events"
	"github.com/saludmunicipal/farmacia-backend/internal/pharmacy/handler"
	"github.com/saludmunicipal/farmacia-backend/internal/pharmacy/migrations"
	"github.com/saludmunicipal/farmacia-backend/internal/pharmacy/report"
	"github.com/saludmunicipal/farmacia-backend/internal/pharmacy/repository"
	"github.com/saludmunicipal/farmacia-backend/internal/pharmacy/service"
	"github.com/saludmunicipal/farmacia-backend/pkg/config"
	"github.com/saludmunicipal/farmacia-backend/pkg/database"
	"github.com/saludmunicipal/farmacia-backend/pkg/httputil"
	"github.com/saludmunicipal/farmacia-backend/pkg/i18n"
	"github.com/saludmunicipal/farmacia-backend/pkg/logger"
	"github.com/saludmunicipal/farmacia-backend/pkg/messaging"
)

const serviceName = "pharmacy-service"

func main() {
	// Fails fast in production if required config is missing
	cfg, err := config.LoadWithValidation(serviceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(serviceName, cfg.Server.Environment)
	log.Info().Msg("starting Pharmacy Service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.New(&cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := db.Migrate(ctx, migrations.FS); err != nil {
			log.Fatal().Err(err).Msg("failed to apply migrations")
		}
	}

	// RabbitMQ is optional; without it ledger events are dropped
	var (
		rmq       *messaging.RabbitMQ
		publisher *events.PharmacyEventPublisher
	)
	if cfg.RabbitMQ.Enabled() {
		rmq, err = messaging.New(&cfg.RabbitMQ, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
		}
		defer rmq.Close()

		publisher, err = events.NewPharmacyEventPublisher(rmq, cfg.RabbitMQ.Exchange, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create event publisher")
		}
	} else {
		log.Warn().Msg("RabbitMQ not configured, events disabled")
	}

	// Redis serialises bulk imports across instances
	var (
		rdb    *redis.Client
		locker service.Locker = service.NoopLocker{}
	)
	if cfg.Redis.Enabled() {
		redisOpts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			log.Fatal().Err(err).Msg("invalid redis url")
		}
		rdb = redis.NewClient(redisOpts)
		defer rdb.Close()

		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatal().Err(err).Msg("failed to connect to Redis")
		}
		locker = service.NewRedisLocker(rdb, cfg.Redis.KeyPrefix, log)
	}

	opts, err := service.OptionsFromConfig(&cfg.Pharmacy)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid pharmacy configuration")
	}

	// Repositories
	lotRepo := repository.NewLotRepository(db)
	medRepo := repository.NewMedicationRepository(db)
	dispenseRepo := repository.NewDispenseRepository(db)
	receiptRepo := repository.NewReceiptRepository(db)

	// Services
	dispenseService := service.NewDispenseService(db, dispenseRepo, lotRepo, medRepo, publisher, opts, log)
	receiptService := service.NewReceiptService(db, receiptRepo, lotRepo, medRepo, publisher, opts, log)
	importService := service.NewImportService(db, lotRepo, medRepo, locker, publisher, opts, log)
	lotService := service.NewLotService(db, lotRepo, medRepo, publisher, opts, log)
	medicationService := service.NewMedicationService(medRepo, lotRepo)

	sweeper := service.NewExpirySweeper(db, lotRepo, medRepo, publisher, cfg.Pharmacy.ExpirySweepInterval, opts, log)
	if cfg.Pharmacy.ExpirySweepInterval > 0 {
		sweeper.Start(ctx)
	}

	handlers := &handler.Handlers{
		Dispense:   handler.NewDispenseHandler(dispenseService, report.NewVoucher(cfg.Pharmacy.VoucherTitle, opts.Location), log),
		Receipt:    handler.NewReceiptHandler(receiptService),
		Inventory:  handler.NewInventoryHandler(importService, cfg.Pharmacy.ImportMaxBytes, log),
		Medication: handler.NewMedicationHandler(medicationService),
		Lot:        handler.NewLotHandler(lotService),
	}

	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(httputil.RequestID)
	r.Use(httputil.Logger(log))
	r.Use(httputil.Recoverer(log))
	r.Use(i18n.Middleware)
	r.Use(httputil.Actor)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Accept-Language", "Content-Type", "X-Request-ID", "X-User-ID", "X-User-Name", "X-User-Email"},
		ExposedHeaders:   []string{"X-Request-ID", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		status := map[string]interface{}{
			"status":   "healthy",
			"service":  serviceName,
			"database": db.Health(r.Context()),
		}
		if rmq != nil {
			status["rabbitmq"] = rmq.Health()
		}
		if rdb != nil {
			redisStatus := map[string]string{"status": "up"}
			if err := rdb.Ping(r.Context()).Err(); err != nil {
				redisStatus = map[string]string{"status": "down", "error": err.Error()}
			}
			status["redis"] = redisStatus
		}
		httputil.JSON(w, http.StatusOK, status)
	})

	handlers.Mount(r)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	sweeper.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
