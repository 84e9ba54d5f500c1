/**
 * @description
 * This is the main entry point for the agent portal service. It loads configuration,
 * connects the flow state backend, the rate limiter and the event producer, starts the
 * housekeeping scheduler, and serves the HTTP API until it receives a shutdown signal.
 *
 * @dependencies
 * - github.com/joho/godotenv: Loads a local .env file for development.
 * - github.com/jackc/pgx/v5: PostgreSQL driver for the postgres flow state backend.
 * - github.com/redis/go-redis/v9: Flow state and shared rate limiting.
 * - internal/api, internal/app, internal/config, internal/store: Internal packages for the service.
 * - pkg/ipapclient: Client for the IPAP backend.
 * - pkg/rabbitmq: Event producer.
 */

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/resolutinsurance/ipap-insurance-agent-sub001/internal/api"
	"github.com/resolutinsurance/ipap-insurance-agent-sub001/internal/app"
	"github.com/resolutinsurance/ipap-insurance-agent-sub001/internal/config"
	"github.com/resolutinsurance/ipap-insurance-agent-sub001/internal/store"
	"github.com/resolutinsurance/ipap-insurance-agent-sub001/pkg/ipapclient"
	"github.com/resolutinsurance/ipap-insurance-agent-sub001/pkg/rabbitmq"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("level=warn component=bootstrap msg=\".env load failed\" err=%v", err)
	}

	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"invalid configuration\" err=%v", err)
	}
	log.Printf("level=info component=bootstrap msg=\"starting agent portal\" port=%s flow_state_backend=%s", cfg.ServerPort, cfg.FlowStateBackend)

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	ctx := context.Background()

	upstream := ipapclient.NewClient(cfg.IPAPAPIBaseURL, cfg.IPAPAPIKey, cfg.IPAPAPITimeout())
	upstream.PDFRendererURL = strings.TrimSpace(cfg.PDFRendererURL)
	if upstream.PDFRendererURL == "" {
		log.Println("level=warn component=bootstrap msg=\"pdf renderer not configured; schedule pdf export disabled\" env=PDF_RENDERER_URL")
	}

	redisClient := connectRedis(ctx, cfg.RedisURL)
	if redisClient != nil {
		defer redisClient.Close()
	}

	var states store.StateStore
	switch cfg.FlowStateBackend {
	case config.BackendPostgres:
		dbpool := connectPostgres(ctx, cfg.DatabaseURL)
		defer dbpool.Close()
		pgStore := store.NewPostgresStore(dbpool, cfg.FlowStateTTL())
		if err := pgStore.EnsureSchema(ctx); err != nil {
			log.Fatalf("level=fatal component=bootstrap msg=\"flow state schema setup failed\" err=%v", err)
		}
		states = pgStore
	case config.BackendRedis:
		if redisClient != nil {
			states = store.NewRedisStore(redisClient, cfg.RedisKeyPrefix, cfg.FlowStateTTL())
		}
	}
	if states == nil {
		log.Println("level=warn component=bootstrap msg=\"using in-memory flow state; flows are lost on restart\"")
		states = store.NewMemoryStore(cfg.FlowStateTTL())
	}

	var limiter app.RateLimiter
	if redisClient != nil {
		limiter = app.NewRedisRateLimiter(redisClient, cfg.RedisKeyPrefix)
	} else {
		log.Println("level=warn component=bootstrap msg=\"redis unavailable; rate limits are per instance\"")
		limiter = app.NewLocalRateLimiter()
	}

	var publisher rabbitmq.Publisher = &rabbitmq.EventProducerFallback{}
	if strings.TrimSpace(cfg.RabbitMQURL) == "" {
		log.Println("level=warn component=bootstrap msg=\"rabbitmq url missing; events disabled\" env=RABBITMQ_URL")
	} else if producer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL); err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; using fallback\" err=%v", err)
	} else {
		defer producer.Close()
		publisher = producer
		log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
	}

	service := app.NewService(upstream, states, publisher, limiter, app.Options{
		PortalBaseURL:      cfg.PortalBaseURL,
		EventsExchange:     cfg.EventsExchange,
		OTPLength:          cfg.OTPLength,
		OTPCooldownSeconds: cfg.OTPResendCooldownSeconds,
		VerifyRateLimit:    cfg.VerifyRateLimitPerMinute,
		OTPRateLimit:       cfg.OTPRateLimitPerMinute,
	})

	jobs := app.NewJobs(service, logger, cfg)
	scheduler := app.NewScheduler(jobs, logger, cfg)
	scheduler.Start()

	sessions := api.NewSessionManager(cfg.SessionSecret, cfg.SessionTTL(), cfg.SessionCookieName, strings.HasPrefix(cfg.PortalBaseURL, "https://"))
	handler := api.NewHandler(service, sessions)
	router := api.NewRouter(handler, sessions, cfg.AllowedOriginList())

	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	server := &http.Server{
		Addr:              serverAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("level=info component=http msg=\"server listening\" addr=%s", serverAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("level=fatal component=http msg=\"server failed\" err=%v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("level=info component=bootstrap msg=\"shutdown signal received\"")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("level=warn component=http msg=\"server shutdown failed\" err=%v", err)
	}
	stopCtx := scheduler.Stop()
	<-stopCtx.Done()
	log.Println("level=info component=bootstrap msg=\"agent portal stopped\"")
}

func connectRedis(ctx context.Context, redisURL string) *redis.Client {
	if redisURL == "" {
		log.Println("level=warn component=bootstrap msg=\"redis url missing\" env=REDIS_URL")
		return nil
	}
	options, err := redis.ParseURL(redisURL)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"redis url parse failed\" err=%v", err)
		return nil
	}
	client := redis.NewClient(options)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Printf("level=warn component=bootstrap msg=\"redis ping failed\" err=%v", err)
		client.Close()
		return nil
	}
	log.Println("level=info component=bootstrap msg=\"redis connected\"")
	return client
}

func connectPostgres(ctx context.Context, databaseURL string) *pgxpool.Pool {
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database url parse failed\" err=%v", err)
	}
	poolConfig.MaxConns = 20
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	// Disable prepared statement caching to prevent conflicts
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database connection failed\" err=%v", err)
	}
	log.Println("level=info component=bootstrap msg=\"database connected\"")
	return dbpool
}
