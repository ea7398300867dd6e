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

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/dkeye/Parley/internal/adapters/http"
	"github.com/dkeye/Parley/internal/adapters/textsvc"
	"github.com/dkeye/Parley/internal/app"
	"github.com/dkeye/Parley/internal/app/enrich"
	"github.com/dkeye/Parley/internal/app/orch"
	"github.com/dkeye/Parley/internal/config"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	flags := config.Flags()
	if err := flags.Parse(os.Args[1:]); err != nil {
		log.Fatal().Err(err).Msg("bad flags")
	}
	cfg, err := config.Load(flags)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if level, err := zerolog.ParseLevel(cfg.Log.Level); err == nil {
		zerolog.SetGlobalLevel(level)
	} else {
		log.Warn().Str("level", cfg.Log.Level).Msg("unknown log level, keeping info")
	}

	vendorClient := &http.Client{Timeout: cfg.Enrichment.Timeout}
	translator := textsvc.NewTranslator(textsvc.TranslatorConfig{
		Endpoint: cfg.Translator.Endpoint,
		Key:      cfg.Translator.Key,
		Region:   cfg.Translator.Region,
	}, vendorClient)
	analyzer, err := textsvc.NewAnalyzer(textsvc.SentimentConfig{
		Endpoint: cfg.Sentiment.Endpoint,
		Key:      cfg.Sentiment.Key,
	}, vendorClient)
	if err != nil {
		log.Fatal().Err(err).Msg("sentiment analyzer")
	}

	pipeline := enrich.NewPipeline(translator, analyzer, enrich.Config{
		Timeout:         cfg.Enrichment.Timeout,
		CacheByLanguage: cfg.Enrichment.CacheByLanguage,
	})

	var policy app.Policy = app.DropPolicy{}
	if cfg.Fanout.KickSlow {
		policy = app.KickPolicy{}
	}

	reg := app.NewRegistry(cfg.DefaultLanguage)
	o := &orch.Orchestrator{
		Registry: reg,
		Router: app.NewRouter(reg, pipeline, policy, app.RouterConfig{
			Parallel:   cfg.Fanout.Parallel,
			MaxWorkers: cfg.Fanout.MaxWorkers,
		}),
		OutboxSize: cfg.Fanout.OutboxSize,
	}

	r := router.SetupRouter(ctx, cfg, o)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Parley server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server error")
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	o.Drain()
	// hijacked sockets are not covered by Shutdown
	reg.Close()
	log.Info().Msg("Server exited gracefully")
}
