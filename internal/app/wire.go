package app

import (
	"context"
	"errors"
	"fmt"
	"log"

	"nutrition-resolver/internal/config"
	"nutrition-resolver/internal/database"
	"nutrition-resolver/internal/estimator"
	"nutrition-resolver/internal/fdc"
	"nutrition-resolver/internal/foodparser"
	"nutrition-resolver/internal/llm"
	"nutrition-resolver/internal/metrics"
	"nutrition-resolver/internal/nutrition"
)

// Services are the long-lived components built from configuration and
// shared by the API, the bot and the CLI.
type Services struct {
	App     *App
	DB      *database.DB
	Metrics *metrics.Store
	// Cache is nil when the canonical database is disabled.
	Cache *fdc.CachedClient

	closers []func() error
}

// Build opens the database and wires parser, resolver and estimator.
// Gemini serves parsing and best-estimate lookups when GEMINI_API_KEY is
// set; Groq is used otherwise. Web-search estimates always go to Groq's
// compound model.
func Build(ctx context.Context, cfg *config.Config) (*Services, error) {
	db, err := database.NewDB(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	s := &Services{
		DB:      db,
		Metrics: metrics.NewStore(db.SQL),
	}
	s.closers = append(s.closers, db.Close)

	parserGen := llm.NewGroqClient(cfg, llm.ModelParser, 0.1)
	bestEstimateGen := llm.NewGroqClient(cfg, llm.ModelEstimator, 0.2)
	if cfg.GeminiAPIKey != "" {
		gemini, err := llm.NewGeminiClient(ctx, cfg, llm.ModelGeminiDefault, 0.2)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.closers = append(s.closers, gemini.Close)
		parserGen = gemini
		bestEstimateGen = gemini
	}
	webSearchGen := llm.NewGroqClient(cfg, llm.ModelWebSearch, 0.2, llm.WithFreeformOutput())

	est := estimator.New(webSearchGen, bestEstimateGen, estimator.WithMetaHook(MetaRecorder(s.Metrics)))

	var resolver *nutrition.DatabaseResolver
	if cfg.DatabaseEnabled() {
		s.Cache = fdc.NewCachedClient(fdc.NewClient(cfg), fdc.NewCacheRepository(db.SQL), cfg.LookupCacheTTL)
		resolver = nutrition.NewDatabaseResolver(s.Cache, nil)
	} else {
		log.Println("USDA_API_KEY not set; all items will be estimated")
	}

	orchestrator := nutrition.NewOrchestrator(resolver, est,
		nutrition.WithItemTimeout(cfg.ItemTimeout),
		nutrition.WithObserver(ResolutionObserver(s.Metrics)),
	)

	s.App = NewApp(foodparser.NewParser(parserGen), orchestrator, s.Metrics)
	return s, nil
}

// Close releases everything Build opened, newest first.
func (s *Services) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
