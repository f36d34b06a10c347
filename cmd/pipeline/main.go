package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/shelfshot/shelfshot/internal/pipelineconfig"
	"github.com/shelfshot/shelfshot/pkg/db"
	"github.com/shelfshot/shelfshot/pkg/jobs"
	"github.com/shelfshot/shelfshot/pkg/llm"
	"github.com/shelfshot/shelfshot/pkg/llm/openai"
	"github.com/shelfshot/shelfshot/pkg/logging"
	"github.com/shelfshot/shelfshot/pkg/proxy"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		// Only log warning since .env is optional
		logrus.WithError(err).Warn("Error loading .env file")
	}

	// Initialize logger
	log := logrus.New()
	log.SetFormatter(logging.NewColoredJSONFormatter())

	// Get log level from environment
	logLevel := os.Getenv("LOG_LEVEL")
	if level, err := logrus.ParseLevel(logLevel); err == nil {
		log.SetLevel(level)
	} else {
		log.SetLevel(logrus.InfoLevel)
		log.WithFields(logrus.Fields{
			"attempted_level": logLevel,
			"default_level":   "INFO",
		}).Warn("Invalid log level specified, defaulting to INFO")
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database
	database, err := db.SetupDatabase(log)
	if err != nil {
		log.WithError(err).Fatal("Failed to set up database")
	}

	// Product identification is optional; without a key the pipeline runs
	// on bare identifier searches.
	var model llm.LLM
	if os.Getenv("OPENAI_API_KEY") != "" {
		openaiConfig, err := openai.NewOpenAIConfig()
		if err != nil {
			log.WithError(err).Fatal("Failed to create OpenAI config")
		}
		llmClient, err := openai.NewOpenAIClient(openaiConfig)
		if err != nil {
			log.WithError(err).Fatal("Failed to create OpenAI client")
		}
		model = llmClient
	} else {
		log.Warn("OPENAI_API_KEY not set, product identification disabled")
	}

	// Proxy pool is optional; without a key scraping goes direct.
	var pool *proxy.Pool
	if os.Getenv("PROXY_API_KEY") != "" {
		proxyConfig, err := proxy.NewConfig(log)
		if err != nil {
			log.WithError(err).Fatal("Failed to create proxy config")
		}
		proxyClient, err := proxy.NewClient(proxyConfig)
		if err != nil {
			log.WithError(err).Fatal("Failed to create proxy client")
		}
		pool = proxy.NewPool(proxyClient)
		if err := pool.Refresh(ctx); err != nil {
			log.WithError(err).Warn("Initial proxy refresh failed, starting with empty pool")
		}
	} else {
		log.Warn("PROXY_API_KEY not set, scraping without proxies")
	}

	components, err := pipelineconfig.ConfigurePipeline(pipelineconfig.PipelineConfig{
		DB:      database,
		LLM:     model,
		Proxies: pool,
		Logger:  log,
	})
	if err != nil {
		log.WithError(err).Fatal("Failed to configure pipeline")
	}

	runner := jobs.NewRunner(log)
	if err := runner.AddTask("order-poller", components.Poller); err != nil {
		log.WithError(err).Fatal("Failed to register poller")
	}
	if err := runner.AddTask("stuck-sweeper", components.Sweeper); err != nil {
		log.WithError(err).Fatal("Failed to register sweeper")
	}
	if pool != nil {
		refresher := jobs.TaskFunc(func(ctx context.Context) error {
			pool.Run(ctx)
			return ctx.Err()
		})
		if err := runner.AddTask("proxy-refresher", refresher); err != nil {
			log.WithError(err).Fatal("Failed to register proxy refresher")
		}
	}

	// Handle graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		log.Info("Received shutdown signal")
		cancel()
	}()

	log.Info("Starting scrape pipeline worker")

	if err := runner.Run(ctx); err != nil && err != context.Canceled {
		log.WithError(err).Fatal("Worker stopped with error")
	}

	log.Info("Worker shutdown complete")
}
