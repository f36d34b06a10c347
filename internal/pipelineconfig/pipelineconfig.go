// Package pipelineconfig assembles the scrape pipeline from its parts: it
// reads every component's env config, wires the coordinator, scorer,
// refiner, identifier, and storage into the orchestrator, and hands the
// worker its background tasks.
package pipelineconfig

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/shelfshot/shelfshot/pkg/browser"
	"github.com/shelfshot/shelfshot/pkg/catalog"
	"github.com/shelfshot/shelfshot/pkg/identify"
	"github.com/shelfshot/shelfshot/pkg/jobs"
	"github.com/shelfshot/shelfshot/pkg/llm"
	"github.com/shelfshot/shelfshot/pkg/orders"
	"github.com/shelfshot/shelfshot/pkg/proxy"
	"github.com/shelfshot/shelfshot/pkg/refine"
	"github.com/shelfshot/shelfshot/pkg/scoring"
	"github.com/shelfshot/shelfshot/pkg/scraper"
	"github.com/shelfshot/shelfshot/pkg/storage"
)

// PipelineConfig carries the externally constructed dependencies.
type PipelineConfig struct {
	DB      *gorm.DB
	LLM     llm.LLM
	Proxies *proxy.Pool
	Logger  *logrus.Logger
}

// Components is the assembled pipeline.
type Components struct {
	Store        *orders.Store
	Orchestrator *jobs.Orchestrator
	Poller       *jobs.Poller
	Sweeper      *jobs.Sweeper
}

// ConfigurePipeline builds every pipeline component from the environment and
// wires them together.
func ConfigurePipeline(config PipelineConfig) (*Components, error) {
	log := config.Logger

	price, _ := strconv.ParseFloat(getEnvOrDefault("PRICE_PER_IDENTIFIER", "1.0"), 64)
	store, err := orders.NewStore(&orders.Config{
		PricePerIdentifier: price,
		Logger:             log,
	}, config.DB)
	if err != nil {
		return nil, fmt.Errorf("failed to create order store: %w", err)
	}

	scraperConfig, err := scraper.NewConfig(log)
	if err != nil {
		return nil, fmt.Errorf("failed to create scraper config: %w", err)
	}
	siteScraper, err := scraper.NewSiteScraper(scraperConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create site scraper: %w", err)
	}
	coordinator, err := scraper.NewCoordinator(scraperConfig, catalog.DefaultCatalog(), siteScraper)
	if err != nil {
		return nil, fmt.Errorf("failed to create coordinator: %w", err)
	}

	scorer, err := scoring.NewScorer(&scoring.Config{
		PixelAnalysis: os.Getenv("PIXEL_ANALYSIS_DISABLED") == "",
		Logger:        log,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create scorer: %w", err)
	}

	refineConfig, err := refine.NewConfig(log)
	if err != nil {
		return nil, fmt.Errorf("failed to create refine config: %w", err)
	}
	var upscaler *refine.UpscaleClient
	if refineConfig.InferenceAPIKey != "" {
		upscaler, err = refine.NewUpscaleClient(refineConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create upscale client: %w", err)
		}
	} else {
		log.Warn("UPSCALE_API_KEY not set, refinement will composite without upscaling")
	}
	refiner, err := refine.NewRefiner(refineConfig, upscaler)
	if err != nil {
		return nil, fmt.Errorf("failed to create refiner: %w", err)
	}

	// A nil identifier model degrades lookups to nil hints, never errors.
	identifier := identify.NewIdentifier(config.LLM, log)

	storageDir := getEnvOrDefault("STORAGE_DIR", "data/images")
	storageBaseURL := getEnvOrDefault("STORAGE_BASE_URL", "http://localhost:8080/images")
	objects, err := storage.NewLocalStorage(storageDir, storageBaseURL, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create object storage: %w", err)
	}

	orchestratorConfig, err := jobs.NewConfig(log)
	if err != nil {
		return nil, fmt.Errorf("failed to create orchestrator config: %w", err)
	}
	orchestrator, err := jobs.NewOrchestrator(
		orchestratorConfig,
		store,
		&browserFactory{proxies: config.Proxies, logger: log},
		coordinator,
		scorer,
		refiner,
		identifier,
		objects,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create orchestrator: %w", err)
	}

	pollerConfig, err := jobs.NewPollerConfig(log)
	if err != nil {
		return nil, fmt.Errorf("failed to create poller config: %w", err)
	}
	poller, err := jobs.NewPoller(pollerConfig, store, orchestrator)
	if err != nil {
		return nil, fmt.Errorf("failed to create poller: %w", err)
	}

	sweeperConfig, err := jobs.NewSweeperConfig(log)
	if err != nil {
		return nil, fmt.Errorf("failed to create sweeper config: %w", err)
	}
	sweeper, err := jobs.NewSweeper(sweeperConfig, store)
	if err != nil {
		return nil, fmt.Errorf("failed to create sweeper: %w", err)
	}

	return &Components{
		Store:        store,
		Orchestrator: orchestrator,
		Poller:       poller,
		Sweeper:      sweeper,
	}, nil
}

// browserFactory launches one Chrome session per job, routed through the
// next proxy in the pool when one is available.
type browserFactory struct {
	proxies *proxy.Pool
	logger  *logrus.Logger
}

func (f *browserFactory) NewSession(ctx context.Context) (*browser.Session, error) {
	cfg := browser.NewConfig(f.logger)
	if f.proxies != nil {
		if endpoint, ok := f.proxies.Next(true); ok {
			cfg.ProxyURL = endpoint.URL()
		}
	}
	return browser.NewSession(ctx, cfg)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
