package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/synaptica-ai/triage/pkg/catalog"
	"github.com/synaptica-ai/triage/pkg/common/config"
	"github.com/synaptica-ai/triage/pkg/common/database"
	"github.com/synaptica-ai/triage/pkg/common/kafka"
	"github.com/synaptica-ai/triage/pkg/common/logger"
	"github.com/synaptica-ai/triage/pkg/common/middleware"
	"github.com/synaptica-ai/triage/pkg/diagnosis"
	"github.com/synaptica-ai/triage/pkg/engine"
	"github.com/synaptica-ai/triage/pkg/observability/metrics"
	"github.com/synaptica-ai/triage/pkg/scoring"
)

func main() {
	logger.Init()
	cfg := config.Load()

	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to load catalog")
	}
	logger.Log.WithFields(map[string]interface{}{
		"version":     cat.Version(),
		"fingerprint": cat.Fingerprint(),
		"symptoms":    len(cat.Symptoms()),
		"conditions":  len(cat.Conditions()),
	}).Info("Catalog loaded")

	eng := engine.New(cat, engine.Options{
		QuestionBudget: cfg.QuestionBudget,
		StopMargin:     cfg.StopMargin,
		TopK:           cfg.TopK,
		Logger:         logger.WithField("component", "engine"),
	})

	var primary scoring.Scorer
	if cfg.ExternalScorerURL != "" {
		primary = scoring.NewExternal(scoring.ExternalConfig{
			BaseURL:      cfg.ExternalScorerURL,
			ClientID:     cfg.ExternalScorerClientID,
			ClientSecret: cfg.ExternalScorerClientSecret,
			TokenURL:     cfg.ExternalScorerTokenURL,
			Timeout:      cfg.ExternalScorerTimeout,
			Retries:      cfg.ExternalScorerRetries,
			ProbeTTL:     cfg.ExternalScorerProbeTTL,
			Catalog:      cat,
		})
	}
	scorers := scoring.NewSelector(primary, scoring.NewLocal(eng), logger.WithField("component", "scoring"))

	var cache diagnosis.ResultCache
	if cfg.ResultCacheTTL > 0 {
		cache = diagnosis.NewRedisCache(database.GetRedis(cfg))
		defer database.CloseRedis()
	}

	var sessions diagnosis.SessionStore
	var repo *diagnosis.Repository
	if cfg.SessionAuditEnabled {
		db, err := database.GetPostgres(cfg)
		if err != nil {
			logger.Log.WithError(err).Fatal("failed to connect to postgres")
		}
		defer database.ClosePostgres()

		repo = diagnosis.NewRepository(db)
		if err := repo.AutoMigrate(); err != nil {
			logger.Log.WithError(err).Fatal("failed to migrate session tables")
		}
		sessions = repo
	}

	var events diagnosis.Publisher
	if cfg.EventsEnabled {
		producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.TriageEventsTopic)
		defer producer.Close()
		events = producer
	}

	svc := diagnosis.NewService(eng, scorers, cache, cfg.ResultCacheTTL, sessions, events)
	handler := diagnosis.NewHTTPHandler(svc, cfg.MaxRequestBody)

	router := mux.NewRouter()
	router.Use(middleware.Recovery, middleware.Logging, middleware.CORS)

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	}).Methods(http.MethodGet)

	router.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status":"ready","catalog_version":%q}`, cat.Version())
	}).Methods(http.MethodGet)

	router.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		metrics.WritePrometheus(w)
	}).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(middleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst), middleware.BodyLimit(cfg.MaxRequestBody))
	handler.Register(api)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		logger.Log.WithFields(map[string]interface{}{
			"host":            cfg.ServerHost,
			"port":            cfg.ServerPort,
			"external_scorer": cfg.ExternalScorerURL != "",
		}).Info("Triage Service started")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("failed to start server")
		}
	}()

	if repo != nil {
		go func() {
			ticker := time.NewTicker(12 * time.Hour)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					if err := repo.CleanupExpired(ctx, cfg.SessionRetention); err != nil {
						logger.Log.WithError(err).Warn("session cleanup failed")
					}
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down Triage Service...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Log.WithError(err).Error("server forced to shutdown")
	}

	logger.Log.Info("Triage Service stopped")
}
