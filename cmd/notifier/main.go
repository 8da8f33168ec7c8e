// Command notifier consumes notification intents from Kafka and renders them
// for delivery.
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

	"rallysphere/internal/config"
	"rallysphere/internal/i18n"
	"rallysphere/internal/kafka"
	"rallysphere/internal/logger"
	"rallysphere/internal/metrics"
	"rallysphere/internal/notify"
)

func main() {
	logger := logger.NewLogger("notifier")
	defer logger.Close()

	if err := godotenv.Load(); err != nil {
		logger.Warn("CONFIG", ".env file not found, using environment variables")
	}
	cfg := config.Load()
	if !cfg.Kafka.Enabled {
		logger.Fatal("CONFIG", "KAFKA_ENABLED is false, nothing to consume")
	}

	translator, err := i18n.NewTranslator(cfg.Locale)
	if err != nil {
		logger.Fatal("I18N", fmt.Sprintf("Failed to load translations: %v", err))
	}
	m := metrics.New()

	topics := []string{
		cfg.Kafka.Topics.Membership,
		cfg.Kafka.Topics.Promoted,
		cfg.Kafka.Topics.Reminder,
		cfg.Kafka.Topics.OrderStatus,
	}
	if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, topics); err != nil {
		logger.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
	}

	dispatcher := &notify.Dispatcher{
		Topics:     cfg.Kafka.Topics,
		Translator: translator,
		Sink:       notify.LogSink{Logger: logger},
		Metrics:    m,
		Locale:     cfg.Locale,
		Logger:     logger,
	}
	consumer := kafka.NewConsumer(cfg.Kafka.Brokers, topics, cfg.Kafka.GroupID)
	defer consumer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		logger.Info("KAFKA", fmt.Sprintf("Consuming %v as group %s", topics, cfg.Kafka.GroupID))
		err := consumer.Start(ctx, dispatcher.Handle, func(err error) {
			logger.Error("KAFKA", fmt.Sprintf("Consumer error: %v", err))
		})
		if err != nil {
			logger.Error("KAFKA", fmt.Sprintf("Consumer stopped: %v", err))
		}
	}()

	r := chi.NewRouter()
	r.Method(http.MethodGet, "/metrics", m.Handler())
	server := &http.Server{Addr: cfg.Server.Port, Handler: r}
	go func() {
		logger.Info("HTTP", fmt.Sprintf("Notifier metrics on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP", fmt.Sprintf("Metrics server error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("APP", "Shutdown signal received, stopping consumer")
	cancel()
	<-done

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	_ = server.Shutdown(ctxShutdown)
	logger.Info("APP", "✅ Notifier shutdown complete")
}
