package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/synaptica-ai/triage/pkg/alerts"
	"github.com/synaptica-ai/triage/pkg/common/auth"
	"github.com/synaptica-ai/triage/pkg/common/config"
	"github.com/synaptica-ai/triage/pkg/common/database"
	"github.com/synaptica-ai/triage/pkg/common/kafka"
	"github.com/synaptica-ai/triage/pkg/common/logger"
	"github.com/synaptica-ai/triage/pkg/common/middleware"
	"github.com/synaptica-ai/triage/pkg/observability/metrics"
)

func main() {
	issueFor := flag.String("issue-token", "", "print a staff token for this subject and exit")
	role := flag.String("role", auth.RoleClinician, "role carried by -issue-token")
	email := flag.String("email", "", "email carried by -issue-token")
	flag.Parse()

	logger.Init()
	cfg := config.Load()

	var jwt *auth.JWTManager
	if cfg.AlertsJWTSecret != "" {
		var err error
		jwt, err = auth.NewJWTManager(cfg.AlertsJWTSecret, cfg.JWTIssuer, cfg.JWTAudience, time.Hour)
		if err != nil {
			logger.Log.WithError(err).Fatal("invalid alerts jwt configuration")
		}
	}

	if *issueFor != "" {
		if jwt == nil {
			logger.Log.Fatal("ALERTS_JWT_SECRET is required to issue tokens")
		}
		token, err := jwt.IssueToken(*issueFor, *role, *email)
		if err != nil {
			logger.Log.WithError(err).Fatal("failed to issue token")
		}
		fmt.Println(token)
		return
	}

	db, err := database.GetPostgres(cfg)
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to connect to postgres")
	}
	defer database.ClosePostgres()

	repo := alerts.NewRepository(db)
	if err := repo.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("failed to migrate alert tables")
	}

	consumer := kafka.NewConsumer(cfg.KafkaBrokers, cfg.TriageEventsTopic, cfg.KafkaGroupID)
	defer consumer.Close()

	handler := alerts.NewHandler(repo)

	router := mux.NewRouter()
	router.Use(middleware.Recovery, middleware.Logging)

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	}).Methods(http.MethodGet)

	router.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready"}`))
	}).Methods(http.MethodGet)

	router.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		metrics.WritePrometheus(w)
	}).Methods(http.MethodGet)

	var validator middleware.TokenValidator
	if jwt != nil {
		validator = jwt
	}
	api := router.PathPrefix("/api/v1").Subrouter()
	if !alerts.NewHTTPHandler(repo).RegisterSecured(api, validator) {
		logger.Log.Warn("ALERTS_JWT_SECRET not set, alert API disabled; consuming events only")
	}

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.AlertsPort),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		logger.Log.WithFields(map[string]interface{}{
			"topic": cfg.TriageEventsTopic,
			"group": cfg.KafkaGroupID,
		}).Info("Consuming triage events")

		if err := consumer.Consume(ctx, handler.Handle); err != nil && !errors.Is(err, context.Canceled) {
			logger.Log.WithError(err).Error("consumer stopped")
		}
	}()

	go func() {
		logger.Log.WithFields(map[string]interface{}{
			"host": cfg.ServerHost,
			"port": cfg.AlertsPort,
		}).Info("Triage Alerts Service started")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down Triage Alerts Service...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Log.WithError(err).Error("server forced to shutdown")
	}

	logger.Log.Info("Triage Alerts Service stopped")
}
