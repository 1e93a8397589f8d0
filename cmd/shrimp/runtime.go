package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/shrimp/shrimp/internal/agent"
	"github.com/shrimp/shrimp/internal/agent/providers"
	"github.com/shrimp/shrimp/internal/channels"
	"github.com/shrimp/shrimp/internal/channels/telegram"
	"github.com/shrimp/shrimp/internal/channels/whatsapp"
	"github.com/shrimp/shrimp/internal/config"
	"github.com/shrimp/shrimp/internal/metrics"
	"github.com/shrimp/shrimp/internal/shell"
	"github.com/shrimp/shrimp/internal/storage"
	"github.com/shrimp/shrimp/internal/tools"
)

// runtime bundles every long-lived component built from a loaded Config,
// shared by the serve and trigger commands.
type runtime struct {
	cfg          *config.Config
	logger       *slog.Logger
	store        storage.Store
	shellManager *shell.Manager
	orchestrator *agent.Orchestrator
	metrics      *metrics.Metrics
	channels     map[string]channels.Adapter
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".shrimp"
	}
	return filepath.Join(home, ".shrimp")
}

// buildRuntime loads configuration and wires every component the serve and
// trigger commands share: persistence, the shell pool, the tool registry,
// the LLM provider, the turn orchestrator, metrics, and channel adapters.
func buildRuntime(configPath string) (*runtime, error) {
	logger := slog.Default()
	dataDir := defaultDataDir()

	cfg, err := config.Load(configPath, dataDir)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	store, err := storage.OpenSQLite(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	shellManager := shell.NewManager(cfg.Shell.MaxSessions, 0, cfg.CommandTimeout(), cfg.Shell.MaxOutputChars)
	shellManager.StartSweeper()

	if err := os.MkdirAll(filepath.Dir(cfg.Memory.Path), 0o755); err != nil {
		return nil, fmt.Errorf("create memory directory: %w", err)
	}
	memoryStore := tools.NewMemoryStore(cfg.Memory.Path)

	registry := tools.NewRegistry(
		&tools.RunCommandTool{Shell: shellManager},
		&tools.CreateShellSessionTool{Shell: shellManager},
		&tools.CloseShellSessionTool{Shell: shellManager},
		&tools.WriteStdinTool{Shell: shellManager},
		&tools.ReadFileTool{},
		&tools.WriteFileTool{},
		&tools.EditFileTool{},
		&tools.ListFilesTool{},
		&tools.UpdateSystemPromptMemoryTool{Memory: memoryStore},
		&tools.ListSystemPromptMemoryTool{Memory: memoryStore},
		&tools.ClearSystemPromptMemoryTool{Memory: memoryStore},
	)

	provider := providers.NewOpenAIProvider(cfg.LLM.APIKey, cfg.LLM.BaseURL)

	m := metrics.New()

	orchestrator := &agent.Orchestrator{
		Store:         store,
		Tools:         registry,
		Provider:      provider,
		Memory:        memoryStore,
		DefaultModel:  cfg.LLM.DefaultModel,
		AllowedModels: cfg.AllowedModelSet(),
		Metrics:       m,
	}

	adapters := map[string]channels.Adapter{}
	if cfg.Telegram.Enabled {
		adapters["telegram"] = telegram.New(telegram.Config{Token: cfg.Telegram.Token, Model: cfg.Telegram.Model}, orchestrator, logger)
	}
	if cfg.WhatsApp.Enabled {
		adapters["whatsapp"] = whatsapp.New(whatsapp.Config{SessionPath: cfg.WhatsApp.SessionPath, Model: cfg.WhatsApp.Model}, orchestrator, logger)
	}

	return &runtime{
		cfg:          cfg,
		logger:       logger,
		store:        store,
		shellManager: shellManager,
		orchestrator: orchestrator,
		metrics:      m,
		channels:     adapters,
	}, nil
}

func (rt *runtime) close() {
	rt.shellManager.StopSweeper()
	if err := rt.store.Close(); err != nil {
		rt.logger.Error("close store", "error", err)
	}
}
