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

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/uptrace/bun"

	"rallysphere/internal/assets"
	"rallysphere/internal/assets/asset_api"
	asset_db "rallysphere/internal/assets/db"
	"rallysphere/internal/auth"
	"rallysphere/internal/clubs"
	"rallysphere/internal/clubs/club_api"
	club_db "rallysphere/internal/clubs/db"
	"rallysphere/internal/config"
	"rallysphere/internal/database"
	"rallysphere/internal/events"
	event_db "rallysphere/internal/events/db"
	"rallysphere/internal/events/event_api"
	rediswrap "rallysphere/internal/events/redis"
	"rallysphere/internal/i18n"
	"rallysphere/internal/kafka"
	"rallysphere/internal/logger"
	"rallysphere/internal/metrics"
	"rallysphere/internal/middleware"
	"rallysphere/internal/models"
	"rallysphere/internal/passes"
	"rallysphere/internal/payment"
	"rallysphere/internal/payment/payment_api"
	"rallysphere/internal/sse"
	"rallysphere/internal/store"
	"rallysphere/internal/store/store_api"
	store_db "rallysphere/internal/store/db"
	"rallysphere/internal/utils"
)

type publisher interface {
	PublishJSON(ctx context.Context, topic, key string, payload any) error
}

func connectKafka(cfg config.KafkaConfig, logger *logger.Logger) (publisher, func()) {
	if !cfg.Enabled {
		logger.Warn("KAFKA", "Kafka disabled, membership and order messages will not be published")
		return kafka.NoopProducer{}, func() {}
	}

	logger.Info("KAFKA", fmt.Sprintf("Using Kafka brokers: %v", cfg.Brokers))
	producer := kafka.NewProducer(cfg.Brokers)

	requiredTopics := []string{
		cfg.Topics.Membership,
		cfg.Topics.Promoted,
		cfg.Topics.Reminder,
		cfg.Topics.OrderStatus,
	}
	if err := kafka.EnsureTopicsExist(cfg.Brokers, requiredTopics); err != nil {
		logger.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
	} else {
		logger.Info("KAFKA", "Required topics ensured successfully")
	}

	return producer, func() {
		if err := producer.Close(); err != nil {
			logger.Error("KAFKA", fmt.Sprintf("Failed to close producer: %v", err))
		}
	}
}

func newVerifier(ctx context.Context, cfg config.AuthConfig, logger *logger.Logger) auth.Verifier {
	if cfg.OIDCIssuer != "" {
		v, err := auth.NewOIDCVerifier(ctx, cfg.OIDCIssuer)
		if err != nil {
			logger.Fatal("AUTH", fmt.Sprintf("OIDC discovery failed for %s: %v", cfg.OIDCIssuer, err))
		}
		logger.Info("AUTH", fmt.Sprintf("Verifying tokens issued by %s", cfg.OIDCIssuer))
		return v
	}
	if cfg.JWTSecret == "" {
		logger.Fatal("CONFIG", "Either OIDC_ISSUER or JWT_SECRET must be set")
	}
	logger.Warn("AUTH", "OIDC_ISSUER not set, verifying HS256 tokens with JWT_SECRET")
	return auth.NewHMACVerifier(cfg.JWTSecret)
}

func healthHandler(bunDB *bun.DB, redisClient *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := map[string]string{"database": "ok", "redis": "ok"}
		code := http.StatusOK
		if err := bunDB.PingContext(ctx); err != nil {
			status["database"] = err.Error()
			code = http.StatusServiceUnavailable
		}
		if err := redisClient.Ping(ctx).Err(); err != nil {
			status["redis"] = err.Error()
			code = http.StatusServiceUnavailable
		}
		_ = utils.WriteJSON(w, code, status)
	}
}

func main() {
	migrateCmd := flag.String("migrate", "", `run a migration command ("up", "down", "reset" or a version) and exit`)
	seed := flag.Bool("seed", false, "insert demo data and exit")
	flag.Parse()

	logger := logger.NewLogger("api")
	defer logger.Close()

	logger.Info("APP", "Starting RallySphere API initialization")

	if err := godotenv.Load(); err != nil {
		logger.Warn("CONFIG", ".env file not found, using environment variables")
	} else {
		logger.Info("CONFIG", "Loaded environment variables from .env file")
	}
	cfg := config.Load()
	ctx := context.Background()

	logger.Info("APP", "Verifying database connections")
	bunDB, err := database.OpenPostgres(ctx, cfg.Database, logger)
	if err != nil {
		logger.Fatal("DATABASE", err.Error())
	}
	defer bunDB.Close()

	if *migrateCmd != "" || *seed {
		if *migrateCmd != "" {
			if err := runMigrations(bunDB, *migrateCmd, logger); err != nil {
				logger.Fatal("MIGRATE", err.Error())
			}
		}
		if *seed {
			if err := seedDemoData(ctx, bunDB, logger); err != nil {
				logger.Fatal("SEED", err.Error())
			}
		}
		return
	}
	if cfg.Database.AutoMigrate {
		if err := runMigrations(bunDB, "up", logger); err != nil {
			logger.Fatal("MIGRATE", err.Error())
		}
	}

	redisClient, err := database.OpenRedis(ctx, cfg.Redis, logger)
	if err != nil {
		logger.Fatal("DATABASE", err.Error())
	}
	defer redisClient.Close()

	producer, closeProducer := connectKafka(cfg.Kafka, logger)
	defer closeProducer()

	m := metrics.New()
	translator, err := i18n.NewTranslator(cfg.Locale)
	if err != nil {
		logger.Fatal("I18N", fmt.Sprintf("Failed to load translations: %v", err))
	}
	qr, err := passes.NewQRGenerator(cfg.QRSecret)
	if err != nil {
		logger.Fatal("CONFIG", fmt.Sprintf("Invalid QR secret: %v", err))
	}
	verifier := newVerifier(ctx, cfg.Auth, logger)

	var gateway store.PaymentGateway
	stripeGateway, err := payment.NewStripeGateway(cfg.Stripe, logger)
	if err != nil {
		logger.Warn("STRIPE", "Paid events and store checkout are disabled")
		gateway = payment.Disabled{}
	} else {
		gateway = stripeGateway
	}

	clubDB := &club_db.DB{Bun: bunDB}
	eventDB := &event_db.DB{Bun: bunDB}
	storeDB := &store_db.DB{Bun: bunDB}
	feed := sse.NewEventFeed()
	assetService := assets.NewService(&asset_db.DB{Bun: bunDB}, cfg.Assets.MaxBytes, cfg.Assets.PublicBaseURL, m, logger)

	eventService := &events.Service{
		DB:       eventDB,
		Clubs:    clubDB,
		Lock:     rediswrap.NewAdmissionLock(redisClient, cfg.Admission),
		Kafka:    producer,
		Feed:     feed,
		Payments: gateway,
		Assets:   assetService,
		Passes:   qr,
		Metrics:  m,
		Topics:   cfg.Kafka.Topics,
		Currency: cfg.Stripe.Currency,
		Logger:   logger,
		Now:      time.Now,
	}
	clubService := &clubs.Service{
		DB:       clubDB,
		Events:   eventDB,
		Orders:   storeDB,
		EventURL: cfg.EventURL,
		Currency: cfg.Stripe.Currency,
		Logger:   logger,
		Now:      time.Now,
	}
	storeService := &store.Service{
		DB:       storeDB,
		Clubs:    clubDB,
		Payments: gateway,
		Kafka:    producer,
		Metrics:  m,
		Topics:   cfg.Kafka.Topics,
		Currency: cfg.Stripe.Currency,
		Logger:   logger,
		Now:      time.Now,
	}

	webhooks := payment.NewWebhooks(cfg.Stripe.WebhookSecret, m, logger)
	webhooks.Register(models.PurposeEventTicket, eventService)
	webhooks.Register(models.PurposeStoreOrder, storeService)

	eventHandler := &event_api.Handler{EventService: eventService, Translator: translator, Logger: logger}
	streamHandler := &event_api.SSEHandler{Feed: feed, Access: eventService, Logger: logger}
	clubHandler := &club_api.Handler{ClubService: clubService, Translator: translator, Logger: logger}
	storeHandler := &store_api.Handler{StoreService: storeService, Translator: translator, Logger: logger}
	assetHandler := &asset_api.Handler{AssetService: assetService, Translator: translator, Logger: logger}
	paymentHandler := &payment_api.Handler{Webhooks: webhooks, Logger: logger}

	limiter := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, translator, logger)
	stopCleanup := make(chan struct{})
	defer close(stopCleanup)
	limiter.StartCleanup(time.Minute, stopCleanup)

	logger.Info("HTTP", "Setting up router and middleware")
	r := chi.NewRouter()
	r.Use(middleware.Instrument(m, logger))

	// --- Public Routes ---
	r.Get("/healthz", healthHandler(bunDB, redisClient))
	r.Method(http.MethodGet, "/metrics", m.Handler())
	r.Get("/assets/*", assetHandler.Serve)
	r.Post("/api/payments/webhook", paymentHandler.StripeWebhook)
	logger.Info("ROUTER", "Public routes registered: /healthz, /metrics, /assets, /api/payments/webhook")

	// --- Protected Routes ---
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(verifier, translator, logger))
		r.Use(limiter.Handler)
		logger.Info("AUTH", "JWT middleware applied to protected API routes")

		r.Route("/api", func(r chi.Router) {
			r.Route("/events", func(r chi.Router) {
				r.Get("/", eventHandler.ListEvents)
				r.Post("/", eventHandler.CreateEvent)
				r.Get("/stream", streamHandler.Stream)
				r.Get("/{eventId}", eventHandler.GetEvent)
				r.Put("/{eventId}", eventHandler.UpdateEvent)
				r.Post("/{eventId}/join", eventHandler.JoinEvent)
				r.Post("/{eventId}/leave", eventHandler.LeaveEvent)
				r.Post("/{eventId}/checkout", eventHandler.Checkout)
				r.Get("/{eventId}/pass", eventHandler.Pass)
				r.Post("/{eventId}/pass/verify", eventHandler.VerifyPass)
			})
			logger.Info("ROUTER", "Event routes registered under /api/events")

			r.Route("/clubs", func(r chi.Router) {
				r.Get("/", clubHandler.ListClubs)
				r.Post("/", clubHandler.CreateClub)
				r.Get("/{clubId}", clubHandler.GetClub)
				r.Post("/{clubId}/join", clubHandler.JoinClub)
				r.Post("/{clubId}/leave", clubHandler.LeaveClub)
				r.Post("/{clubId}/admins", clubHandler.AddAdmin)
				r.Get("/{clubId}/stats", clubHandler.Stats)
				r.Get("/{clubId}/calendar.ics", clubHandler.Calendar)
				r.Get("/{clubId}/items", storeHandler.ListItems)
				r.Post("/{clubId}/items", storeHandler.CreateItem)
				r.Get("/{clubId}/orders", storeHandler.ListClubOrders)
			})
			logger.Info("ROUTER", "Club and store routes registered under /api/clubs")

			r.Route("/orders", func(r chi.Router) {
				r.Post("/", storeHandler.PlaceOrder)
				r.Get("/mine", storeHandler.ListMyOrders)
				r.Put("/{orderId}/status", storeHandler.UpdateStatus)
			})
			logger.Info("ROUTER", "Order routes registered under /api/orders")

			r.Post("/assets", assetHandler.Upload)
		})
	})

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("HTTP", fmt.Sprintf("🚀 RallySphere API running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	logger.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-stop

	logger.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	ctxShutdown, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctxShutdown); err != nil {
		logger.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
	} else {
		logger.Info("HTTP", "✅ RallySphere API shutdown complete")
	}
}
