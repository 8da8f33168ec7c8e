// Command reminder publishes "starting soon" intents on a cron schedule.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"rallysphere/internal/config"
	"rallysphere/internal/database"
	event_db "rallysphere/internal/events/db"
	"rallysphere/internal/kafka"
	"rallysphere/internal/logger"
	"rallysphere/internal/metrics"
	"rallysphere/internal/reminders"
)

func main() {
	logger := logger.NewLogger("reminder")
	defer logger.Close()

	if err := godotenv.Load(); err != nil {
		logger.Warn("CONFIG", ".env file not found, using environment variables")
	}
	cfg := config.Load()
	if !cfg.Kafka.Enabled {
		logger.Fatal("CONFIG", "KAFKA_ENABLED is false, reminders have nowhere to go")
	}
	ctx := context.Background()

	bunDB, err := database.OpenPostgres(ctx, cfg.Database, logger)
	if err != nil {
		logger.Fatal("DATABASE", err.Error())
	}
	defer bunDB.Close()

	redisClient, err := database.OpenRedis(ctx, cfg.Redis, logger)
	if err != nil {
		logger.Fatal("DATABASE", err.Error())
	}
	defer redisClient.Close()

	if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, []string{cfg.Kafka.Topics.Reminder}); err != nil {
		logger.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
	}
	producer := kafka.NewProducer(cfg.Kafka.Brokers)
	defer producer.Close()

	m := metrics.New()
	sweeper := &reminders.Sweeper{
		Events:  &event_db.DB{Bun: bunDB},
		Redis:   redisClient,
		Kafka:   producer,
		Metrics: m,
		Topic:   cfg.Kafka.Topics.Reminder,
		Lead:    cfg.Reminders.Lead,
		Logger:  logger,
		Now:     time.Now,
	}

	c := cron.New()
	if _, err := sweeper.Schedule(c, cfg.Reminders.Schedule, time.Minute); err != nil {
		logger.Fatal("CONFIG", fmt.Sprintf("Invalid REMINDER_CRON %q: %v", cfg.Reminders.Schedule, err))
	}
	c.Start()
	logger.Info("REMINDER", fmt.Sprintf("Sweeping on %q with %s lead", cfg.Reminders.Schedule, cfg.Reminders.Lead))

	r := chi.NewRouter()
	r.Method(http.MethodGet, "/metrics", m.Handler())
	server := &http.Server{Addr: cfg.Server.Port, Handler: r}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP", fmt.Sprintf("Metrics server error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("APP", "Shutdown signal received, waiting for running sweep")
	<-c.Stop().Done()

	ctxShutdown, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_ = server.Shutdown(ctxShutdown)
	logger.Info("APP", "✅ Reminder shutdown complete")
}
