package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/fake"
	"github.com/tmc/langchaingo/llms/openai"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/openquill-team/riskgate/internal/api"
	"github.com/openquill-team/riskgate/internal/config"
	"github.com/openquill-team/riskgate/internal/db"
	"github.com/openquill-team/riskgate/internal/events"
	"github.com/openquill-team/riskgate/internal/gate"
	"github.com/openquill-team/riskgate/internal/generator"
	"github.com/openquill-team/riskgate/internal/ledger"
	"github.com/openquill-team/riskgate/internal/risk"
	"github.com/openquill-team/riskgate/internal/signals"
	"github.com/openquill-team/riskgate/internal/telemetry"
	"github.com/openquill-team/riskgate/internal/verify"
)

func main() {
	// Register Prometheus metrics
	telemetry.RegisterMetrics()

	ctx := context.Background()

	shutdownTracing, err := telemetry.InitTracing(ctx)
	if err != nil {
		log.Fatalf("Failed to initialize tracing: %v", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Printf("Failed to shut down tracing: %v", err)
		}
	}()

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Wire the abuse ledger and account store. Without database credentials
	// the service falls back to in-memory stores, which is enough for local
	// development but loses everything on restart.
	var (
		store       ledger.Store
		accounts    ledger.AccountStore
		dbChecker   api.DBChecker
		decisionLog api.DecisionLoggerInterface
	)

	if os.Getenv("DATABASE_PASSWORD") != "" {
		dbConfig, err := db.ConfigFromEnv()
		if err != nil {
			log.Fatalf("Failed to load database config: %v", err)
		}

		conn, err := db.Connect(ctx, dbConfig)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close(conn)

		log.Println("Connected to database successfully")

		queries := db.NewQueries(conn)
		store = queries
		accounts = queries
		decisionLog = queries
		dbChecker = conn
	} else {
		log.Println("WARNING: DATABASE_PASSWORD not set, using in-memory stores")
		mem := ledger.NewMemoryStore()
		store = mem
		accounts = mem
	}

	// Risk scoring stack
	matcher := signals.NewProviderMatcherWith(
		nil,
		cfg.Risk.ProviderRules,
		time.Duration(cfg.Risk.LookupTimeoutSeconds)*time.Second,
	)
	detector := signals.NewDetectorWith(matcher, cfg.Risk.VPNRanges)
	scorer := risk.NewScorerWith(store, detector, cfg.Risk.Thresholds)

	// LLM client: real OpenAI when credentials are present, canned
	// responses otherwise so the gating flow can be exercised locally.
	var llm llms.Model
	if os.Getenv("OPENAI_API_KEY") != "" {
		llm, err = openai.New(openai.WithModel(cfg.Generator.Model))
		if err != nil {
			log.Fatalf("Failed to create OpenAI client: %v", err)
		}
	} else {
		log.Println("WARNING: OPENAI_API_KEY not set, using fake LLM responses")
		llm = fake.NewFakeLLM([]string{
			"This is a locally generated placeholder article. Set OPENAI_API_KEY to enable real generation.",
		})
	}

	gen := generator.New(llm, cfg.Generator.Model)
	gen.SetDailyBudget(cfg.Generator.DailyBudgetUSD)

	handlers := api.NewHandlers(scorer, gate.NewWith(cfg.Pricing), gen, store, accounts)

	if cfg.Verify.Secret != "" {
		issuer, err := verify.NewIssuer(cfg.Verify.Secret)
		if err != nil {
			log.Fatalf("Failed to create verification issuer: %v", err)
		}
		handlers.SetVerifier(issuer)
	} else {
		log.Println("WARNING: verify secret not set, verification challenges disabled")
	}

	handlers.SetEventHub(events.NewHub())
	if decisionLog != nil {
		handlers.SetDecisionLogger(decisionLog)
	}

	// Create Echo instance
	e := echo.New()

	// Basic middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(otelecho.Middleware("riskgate-api"))

	// Setup routes (includes metrics and request ID middleware)
	api.SetupRoutes(
		e,
		handlers,
		api.NewHealthHandlers(dbChecker),
		api.NewRateLimiterConfig(cfg.RateLimit.RequestsPerMinute),
		cfg.Admin.Key,
	)

	// Start server with graceful shutdown
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		log.Printf("Starting server on %s", addr)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			e.Logger.Fatal("shutting down the server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		e.Logger.Fatal(err)
	}

	log.Println("Server shutdown complete")
}
