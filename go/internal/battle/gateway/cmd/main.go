package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mcdev12/dsarena/go/clients/openrouter_client"
	"github.com/mcdev12/dsarena/go/internal/battle/gateway"
	"github.com/mcdev12/dsarena/go/internal/battle/judge"
	_ "github.com/mcdev12/dsarena/go/internal/battle/judge/javascript"
	_ "github.com/mcdev12/dsarena/go/internal/battle/judge/python"
	"github.com/mcdev12/dsarena/go/internal/battle/orchestrator"
	"github.com/mcdev12/dsarena/go/internal/battle/outbox"
	"github.com/mcdev12/dsarena/go/internal/battle/problem"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	level, err := zerolog.ParseLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	config := defaultConfig()
	configPath := getEnv("BATTLE_CONFIG", "config/battle.yaml")
	if loaded, err := loadConfig(configPath); err != nil {
		log.Warn().Err(err).Str("path", configPath).Msg("using default language config")
	} else {
		config = loaded
	}
	languages, err := setupLanguages(config)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up language plugins")
	}

	orchCfg := orchestrator.Config{
		DurationTicks:  getEnvAsInt("BATTLE_DURATION_SEC", 1200),
		TickInterval:   getEnvAsDuration("BATTLE_TICK_INTERVAL", time.Second),
		Workers:        getEnvAsInt("JUDGE_WORKERS", 4),
		ProblemTimeout: getEnvAsDuration("PROBLEM_TIMEOUT", 20*time.Second),
		PublishTimeout: 2 * time.Second,
		MaxCodeBytes:   64 << 10,
	}

	executor := judge.NewExecutor(judge.NewProcessSandbox(), getEnvAsDuration("JUDGE_TIMEOUT", judge.DefaultTimeout))
	generator, closeRedis := setupGenerator(ctx)
	defer closeRedis()

	publisher, closePublisher := setupPublisher(ctx)
	defer closePublisher()

	gatewayService := gateway.NewService(gateway.DefaultConfig())
	orch := orchestrator.NewOrchestrator(orchCfg, generator, executor, gatewayService,
		orchestrator.WithPublisher(publisher),
		orchestrator.WithLanguages(languages...),
	)
	gatewayService.Attach(orch)

	mux := http.NewServeMux()
	gatewayService.RegisterRoutes(mux)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			log.Error().Err(err).Msg("failed to write health check response")
		}
	})

	c := cors.New(cors.Options{
		AllowedMethods: []string{http.MethodHead, http.MethodGet},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})
	server := &http.Server{
		Addr:              ":" + getEnv("PORT", "8080"),
		Handler:           h2c.NewHandler(c.Handler(mux), &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	orchDone := make(chan struct{})
	go func() {
		defer close(orchDone)
		if err := orch.Run(ctx); err != nil {
			log.Error().Err(err).Msg("orchestrator failed")
		}
	}()
	go func() {
		if err := gatewayService.Start(ctx); err != nil {
			log.Error().Err(err).Msg("gateway service failed")
		}
	}()
	go func() {
		log.Info().
			Str("addr", server.Addr).
			Strs("languages", languages).
			Int("duration_ticks", orchCfg.DurationTicks).
			Msg("battle server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	cancel()
	select {
	case <-orchDone:
	case <-shutdownCtx.Done():
		log.Warn().Msg("orchestrator did not stop in time")
	}
	log.Info().Msg("battle server shutdown complete")
}

// setupGenerator builds fallback(cache(ai)). Without an API key battles use the
// fallback problem; without Redis there is no last-good cache.
func setupGenerator(ctx context.Context) (problem.Generator, func()) {
	apiKey := getEnv("OPENROUTER_API_KEY", "")
	if apiKey == "" {
		log.Warn().Msg("OPENROUTER_API_KEY not set, every battle uses the fallback problem")
		return problem.NewFallbackGenerator(nil), func() {}
	}

	client := openrouter_client.NewOpenRouterClient(apiKey, getEnv("OPENROUTER_MODEL", openrouter_client.DefaultModel))
	var gen problem.Generator = problem.NewAIGenerator(client)

	redisCfg := redisConfigFromEnv()
	if redisCfg.Addr == "" {
		return problem.NewFallbackGenerator(gen), func() {}
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     redisCfg.Addr,
		Password: redisCfg.Password,
		DB:       redisCfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		log.Warn().Err(err).Str("addr", redisCfg.Addr).Msg("redis unreachable, problem cache will retry per request")
	}

	gen = problem.NewCachingGenerator(gen, problem.NewRedisCache(rdb, problem.DefaultCacheTTL))
	return problem.NewFallbackGenerator(gen), func() {
		if err := rdb.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close redis client")
		}
	}
}

func setupPublisher(ctx context.Context) (outbox.EventPublisher, func()) {
	natsURL := getEnv("NATS_URL", "")
	if natsURL == "" {
		return outbox.LogPublisher{}, func() {}
	}

	cfg := outbox.DefaultJetStreamConfig()
	cfg.URL = natsURL
	pub, err := outbox.NewJetStreamPublisher(ctx, cfg)
	if err != nil {
		log.Error().Err(err).Str("nats_url", natsURL).Msg("JetStream unavailable, logging battle events instead")
		return outbox.LogPublisher{}, func() {}
	}
	log.Info().Str("nats_url", natsURL).Str("stream", cfg.StreamName).Msg("publishing battle events to JetStream")
	return pub, func() {
		if err := pub.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close JetStream publisher")
		}
	}
}
