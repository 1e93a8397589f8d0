// Package config loads Shrimp's configuration from an optional YAML/JSON
// file (with $include support and ${VAR} environment expansion, resolved by
// loader.go) layered under environment-variable overrides, which always win.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/shrimp/shrimp/internal/shell"
)

// Config is Shrimp's full runtime configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	LLM      LLMConfig      `yaml:"llm"`
	Shell    ShellConfig    `yaml:"shell"`
	Memory   MemoryConfig   `yaml:"memory"`
	Telegram TelegramConfig `yaml:"telegram"`
	WhatsApp WhatsAppConfig `yaml:"whatsapp"`
}

// ShellConfig configures the shell session pool (internal/shell.Manager).
type ShellConfig struct {
	// MaxSessions is the shell pool capacity. SHRIMP_MAX_SESSIONS.
	MaxSessions int `yaml:"max_sessions"`
	// CommandTimeoutMs is the default non-interactive/interactive command
	// timeout. SHRIMP_COMMAND_TIMEOUT_MS.
	CommandTimeoutMs int `yaml:"command_timeout_ms"`
	// MaxOutputChars caps stdout/stderr retained per stream.
	// SHRIMP_MAX_OUTPUT_CHARS.
	MaxOutputChars int `yaml:"max_output_chars"`
}

// ServerConfig configures the HTTP/SSE listener.
type ServerConfig struct {
	// ListenAddr is the address the HTTP server binds to, e.g. ":8080".
	ListenAddr string `yaml:"listen_addr"`
}

// DatabaseConfig configures the embedded relational store.
type DatabaseConfig struct {
	// Path is the SQLite database file.
	Path string `yaml:"path"`
}

// LLMConfig configures the OpenAI-compatible completion provider.
type LLMConfig struct {
	// APIKey authenticates against the provider. Typically supplied via
	// OPENAI_API_KEY rather than committed to a config file.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default endpoint, for OpenAI-compatible
	// gateways (local models, proxies).
	BaseURL string `yaml:"base_url"`

	// DefaultModel is used when a turn doesn't specify one.
	DefaultModel string `yaml:"default_model"`

	// AllowedModels restricts which model names a caller may request.
	// Empty means unrestricted.
	AllowedModels []string `yaml:"allowed_models"`
}

// MemoryConfig configures the persistent system-prompt memory file.
type MemoryConfig struct {
	// Path is the JSON file backing persistent memory items.
	Path string `yaml:"path"`
}

// TelegramConfig configures the Telegram front channel.
type TelegramConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
	Model   string `yaml:"model"`
}

// WhatsAppConfig configures the WhatsApp front channel.
type WhatsAppConfig struct {
	Enabled     bool   `yaml:"enabled"`
	SessionPath string `yaml:"session_path"`
	Model       string `yaml:"model"`
}

// Default returns a Config with Shrimp's baseline defaults, rooted under
// dataDir (typically ~/.shrimp).
func Default(dataDir string) *Config {
	return &Config{
		Server:   ServerConfig{ListenAddr: ":8080"},
		Database: DatabaseConfig{Path: filepath.Join(dataDir, "shrimp.db")},
		LLM:      LLMConfig{DefaultModel: "gpt-4.1-mini"},
		Shell: ShellConfig{
			MaxSessions:      shell.DefaultMaxSessions,
			CommandTimeoutMs: int(shell.DefaultCommandTimeout / time.Millisecond),
			MaxOutputChars:   shell.DefaultMaxOutputChars,
		},
		Memory:   MemoryConfig{Path: filepath.Join(dataDir, "data", "system-prompt-memory.json")},
		Telegram: TelegramConfig{},
		WhatsApp: WhatsAppConfig{SessionPath: filepath.Join(dataDir, "whatsapp", "session.db")},
	}
}

// Load builds a Config from the file at path (if non-empty, resolving
// $include directives and expanding ${VAR} references), then applies
// environment variable overrides (OPENAI_*, SHRIMP_*, TELEGRAM_BOT_TOKEN) on
// top.
func Load(path, dataDir string) (*Config, error) {
	cfg := Default(dataDir)

	if strings.TrimSpace(path) != "" {
		raw, err := LoadRaw(path)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		fileCfg, err := decodeRawConfig(raw)
		if err != nil {
			return nil, err
		}
		cfg = mergeConfig(cfg, fileCfg)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// mergeConfig overlays non-zero fields of override onto base, returning base.
func mergeConfig(base, override *Config) *Config {
	if override.Server.ListenAddr != "" {
		base.Server.ListenAddr = override.Server.ListenAddr
	}
	if override.Database.Path != "" {
		base.Database.Path = override.Database.Path
	}
	if override.LLM.APIKey != "" {
		base.LLM.APIKey = override.LLM.APIKey
	}
	if override.LLM.BaseURL != "" {
		base.LLM.BaseURL = override.LLM.BaseURL
	}
	if override.LLM.DefaultModel != "" {
		base.LLM.DefaultModel = override.LLM.DefaultModel
	}
	if len(override.LLM.AllowedModels) > 0 {
		base.LLM.AllowedModels = override.LLM.AllowedModels
	}
	if override.Shell.MaxSessions > 0 {
		base.Shell.MaxSessions = override.Shell.MaxSessions
	}
	if override.Shell.CommandTimeoutMs > 0 {
		base.Shell.CommandTimeoutMs = override.Shell.CommandTimeoutMs
	}
	if override.Shell.MaxOutputChars > 0 {
		base.Shell.MaxOutputChars = override.Shell.MaxOutputChars
	}
	if override.Memory.Path != "" {
		base.Memory.Path = override.Memory.Path
	}
	if override.Telegram.Token != "" {
		base.Telegram.Token = override.Telegram.Token
	}
	base.Telegram.Enabled = base.Telegram.Enabled || override.Telegram.Enabled
	if override.Telegram.Model != "" {
		base.Telegram.Model = override.Telegram.Model
	}
	if override.WhatsApp.SessionPath != "" {
		base.WhatsApp.SessionPath = override.WhatsApp.SessionPath
	}
	base.WhatsApp.Enabled = base.WhatsApp.Enabled || override.WhatsApp.Enabled
	if override.WhatsApp.Model != "" {
		base.WhatsApp.Model = override.WhatsApp.Model
	}
	return base
}

// applyEnvOverrides layers the recognized environment variables (OPENAI_*,
// SHRIMP_*, TELEGRAM_BOT_TOKEN) over cfg; these always take precedence over
// the config file, matching the secrets-out-of-files convention (API keys
// and bot tokens belong in the environment, not a committed YAML file).
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SHRIMP_LISTEN_ADDR"); v != "" {
		cfg.Server.ListenAddr = v
	}
	if v := os.Getenv("SHRIMP_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("OPENAI_MODEL"); v != "" {
		cfg.LLM.DefaultModel = v
	}
	if v := os.Getenv("OPENAI_ALLOWED_MODELS"); v != "" {
		models := strings.Split(v, ",")
		for i := range models {
			models[i] = strings.TrimSpace(models[i])
		}
		cfg.LLM.AllowedModels = models
	}
	if v := os.Getenv("SHRIMP_MEMORY_PATH"); v != "" {
		cfg.Memory.Path = v
	}
	if v := os.Getenv("SHRIMP_MAX_SESSIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Shell.MaxSessions = n
		}
	}
	if v := os.Getenv("SHRIMP_COMMAND_TIMEOUT_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Shell.CommandTimeoutMs = n
		}
	}
	if v := os.Getenv("SHRIMP_MAX_OUTPUT_CHARS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Shell.MaxOutputChars = n
		}
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.Token = v
		cfg.Telegram.Enabled = true
	}
	if v := os.Getenv("SHRIMP_TELEGRAM_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.Telegram.Enabled = enabled
		}
	}
	if v := os.Getenv("SHRIMP_WHATSAPP_SESSION_PATH"); v != "" {
		cfg.WhatsApp.SessionPath = v
	}
	if v := os.Getenv("SHRIMP_WHATSAPP_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.WhatsApp.Enabled = enabled
		}
	}
}

// Validate checks cross-field invariants not expressible as defaults.
func (c *Config) Validate() error {
	if c.Server.ListenAddr == "" {
		return fmt.Errorf("config: server.listen_addr is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("config: database.path is required")
	}
	if c.Telegram.Enabled && c.Telegram.Token == "" {
		return fmt.Errorf("config: telegram.token is required when telegram is enabled")
	}
	return nil
}

// CommandTimeout returns the default command timeout as a time.Duration.
func (c *Config) CommandTimeout() time.Duration {
	return time.Duration(c.Shell.CommandTimeoutMs) * time.Millisecond
}

// AllowedModelSet converts LLM.AllowedModels into the lookup shape the turn
// orchestrator expects; an empty slice means unrestricted (nil map).
func (c *Config) AllowedModelSet() map[string]bool {
	if len(c.LLM.AllowedModels) == 0 {
		return nil
	}
	set := make(map[string]bool, len(c.LLM.AllowedModels))
	for _, m := range c.LLM.AllowedModels {
		set[m] = true
	}
	return set
}
