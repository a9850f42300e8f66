package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"facturio/internal/classify"
	"facturio/internal/config"
	"facturio/internal/events"
	"facturio/internal/handler"
	"facturio/internal/metrics"
	"facturio/internal/pattern"
	"facturio/internal/port"
	"facturio/internal/prompt"
	"facturio/internal/provider"
	"facturio/internal/provider/anthropic"
	"facturio/internal/provider/gemini"
	"facturio/internal/provider/openai"
	"facturio/internal/repository/postgres"
	"facturio/internal/router"
	"facturio/internal/rules"
	"facturio/internal/service"
	"facturio/internal/suggest"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	db, err := postgres.NewDB(&cfg.DB)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	// Repositories
	docRepo := postgres.NewDocumentRepo(db)
	patternRepo := postgres.NewPatternRepo(db)
	suggestionRepo := postgres.NewSuggestionRepo(db)

	// Providers
	provider.Register("anthropic", func(c *config.ProviderBackendConfig) (port.Provider, error) {
		return anthropic.NewClient(c), nil
	})
	provider.Register("gemini", func(c *config.ProviderBackendConfig) (port.Provider, error) {
		return gemini.NewClient(c), nil
	})
	provider.Register("openai", func(c *config.ProviderBackendConfig) (port.Provider, error) {
		return openai.NewClient(c), nil
	})

	backendCfgs := cfg.Provider.Backends()
	providers := make(map[string]port.Provider, len(backendCfgs))
	for id := range backendCfgs {
		backendCfg := backendCfgs[id]
		p, err := provider.New(&backendCfg)
		if err != nil {
			return fmt.Errorf("failed to build provider %s: %w", id, err)
		}
		providers[id] = p
	}

	m := metrics.New()
	gateway := provider.NewGateway(providers, backendCfgs, m)

	// Events
	var emitter port.EventEmitter = events.NoopEmitter{}
	if cfg.Events.Provider == "nats" {
		natsEmitter, err := events.NewNATSEmitter(cfg.Events)
		if err != nil {
			return fmt.Errorf("failed to connect to nats: %w", err)
		}
		emitter = natsEmitter
	}
	defer emitter.Close()

	// Pipeline components
	catalog := prompt.NewCatalog()
	classifier := classify.NewClassifier(gateway, cfg.Provider.Classifier)
	cache := pattern.NewCache(patternRepo, m, cfg.Cache)
	engine := rules.NewEngine(cfg.Rules)
	gate := suggest.NewGate(suggestionRepo, docRepo, cache, m, cfg.Suggest)
	pipeline := service.NewPipeline(docRepo, cache, classifier, gateway, catalog, engine, gate, emitter, m, cfg.Pipeline, cfg.Provider.Extractor)
	statsSvc := service.NewStatsService(docRepo, patternRepo, cfg.Stats, cfg.Cache.TopPatternsDefault)

	// Handlers
	documentH := handler.NewDocumentHandler(pipeline)
	suggestionH := handler.NewSuggestionHandler(gate)
	statsH := handler.NewStatsHandler(statsSvc)
	promptH := handler.NewPromptHandler(catalog)
	healthH := handler.NewHealthHandler(db)

	r := router.Setup(cfg, documentH, suggestionH, statsH, promptH, healthH, m.Handler())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Background worker
	worker := service.NewWorker(docRepo, pipeline, cfg.Worker)
	workerDone := make(chan struct{})
	go func() {
		worker.Start(ctx)
		close(workerDone)
	}()

	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Server starting on %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	log.Printf("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown: %v", err)
	}
	<-workerDone
	log.Printf("Shutdown complete")
	return nil
}
