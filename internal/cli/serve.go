package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/shreyanshjain05/sparkthon/internal/config"
	"github.com/shreyanshjain05/sparkthon/internal/logger"
	"github.com/shreyanshjain05/sparkthon/pkg/agent"
	"github.com/shreyanshjain05/sparkthon/pkg/conversation"
	"github.com/shreyanshjain05/sparkthon/pkg/gateway"
	"github.com/shreyanshjain05/sparkthon/pkg/laneq"
	"github.com/shreyanshjain05/sparkthon/pkg/shoptools"
	"github.com/shreyanshjain05/sparkthon/pkg/store"
	"github.com/shreyanshjain05/sparkthon/pkg/sweeper"
	"github.com/shreyanshjain05/sparkthon/pkg/toolexec"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the shopping assistant server",
	Long: `Start the gateway server: websocket chat on /ws, HTTP chat on /api/chat,
product search on /api/search, plus /healthz and /metrics. Runs until
interrupted.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	loader := config.NewLoader(cfgFile)
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := logger.New(logger.Config{
		Level:   cfg.Logging.Level,
		File:    cfg.Logging.File,
		Console: true,
		Pretty:  cfg.Logging.Pretty,
	})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer appLogger.Close()
	log := appLogger.GetZerolog()

	log.Info().Str("version", version).Msg("Starting cartbot")

	// Storage
	db, err := store.New(store.Config{
		Path:   cfg.Database.Path,
		Logger: log,
	})
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer db.Close()

	seeded, err := db.Seed(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to seed catalogue: %w", err)
	}
	if seeded > 0 {
		log.Info().Int("products", seeded).Msg("Catalogue seeded")
	}

	// Inference
	provider, err := agent.NewProvider(cfg.AI.Provider, cfg.AI.APIKey)
	if err != nil {
		return fmt.Errorf("failed to create provider: %w", err)
	}

	extractionModel := cfg.AI.ExtractionModel
	if extractionModel == "" {
		extractionModel = cfg.AI.Model
	}
	extractor := agent.NewExtractor(provider, extractionModel, log)

	// Tools
	registry := toolexec.New(30 * time.Second)
	catalogue, err := shoptools.New(shoptools.Config{
		Store:      db,
		Extractor:  extractor,
		SessionTTL: cfg.Session.TTL(),
		Logger:     log,
	})
	if err != nil {
		return fmt.Errorf("failed to create tool catalogue: %w", err)
	}
	if err := catalogue.Register(registry); err != nil {
		return fmt.Errorf("failed to register tools: %w", err)
	}

	// Turn controller
	queue := laneq.New()
	runner, err := agent.NewRunner(agent.Config{
		Registry:         registry,
		Queue:            queue,
		Provider:         provider,
		Logger:           log,
		Model:            cfg.AI.Model,
		Temperature:      cfg.AI.Temperature,
		MaxTokens:        cfg.AI.MaxTokens,
		MaxRounds:        cfg.Agent.MaxRounds,
		MaxRetries:       cfg.Agent.MaxRetries,
		InferenceTimeout: cfg.Agent.InferenceTimeout(),
		SystemPrompt:     cfg.Agent.SystemPrompt,
	})
	if err != nil {
		return fmt.Errorf("failed to create runner: %w", err)
	}

	conversations := conversation.NewStore(log)

	// Sweeper covers both expired cart sessions and idle HTTP conversations.
	sessionSweeper, err := sweeper.New(sweeper.Config{
		Store:           db,
		Conversations:   conversations,
		ConversationTTL: cfg.Session.TTL(),
		Schedule:        cfg.Session.SweepSchedule,
		Logger:          log,
	})
	if err != nil {
		return fmt.Errorf("failed to create sweeper: %w", err)
	}
	if err := sessionSweeper.Start(); err != nil {
		return fmt.Errorf("failed to start sweeper: %w", err)
	}

	// Gateway
	server, err := gateway.NewServer(gateway.Config{
		Host:          cfg.Server.Host,
		Port:          cfg.Server.Port,
		DefaultUserID: cfg.Agent.DefaultUserID,
		Runner:        runner,
		Conversations: conversations,
		Queue:         queue,
		Store:         db,
		Logger:        log,
	})
	if err != nil {
		return fmt.Errorf("failed to create gateway: %w", err)
	}
	if err := server.Start(); err != nil {
		return fmt.Errorf("failed to start gateway: %w", err)
	}

	// Config hot reload is limited to logging level; everything else needs
	// a restart.
	watcher, err := config.NewWatcher(loader, log, func(updated *config.Config) {
		if updated.Logging.Level != cfg.Logging.Level {
			log.Info().Str("level", updated.Logging.Level).Msg("Log level change requires restart to apply fully")
		}
	})
	if err != nil {
		log.Warn().Err(err).Msg("Config watcher unavailable")
	} else {
		defer watcher.Stop()
	}

	log.Info().Msg("Cartbot is ready")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("Shutdown signal received")

	if err := server.Stop(); err != nil {
		log.Error().Err(err).Msg("Gateway shutdown error")
	}
	sessionSweeper.Stop()
	queue.Close()

	log.Info().Msg("Cartbot stopped")
	return nil
}
