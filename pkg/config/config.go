// Package config loads service configuration from the environment, with an
// optional hive.toml file supplying defaults and a .env file loaded first.
// Precedence: environment > hive.toml > built-in defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// Defaults for the numeric knobs.
const (
	DefaultGatewayPort      = 3001
	DefaultTaskTimeout      = 30 * time.Minute
	DefaultToolTimeout      = 5 * time.Minute
	DefaultHistoryCap       = 50
	DefaultConversationIdle = time.Hour
	DefaultCommandFile      = ".claude-command.md"
	DefaultToolPath         = "claude"
	DefaultModel            = "claude-sonnet-4-5-20250929"
	DefaultStorePath        = "hive.db"
	DefaultBusURL           = "localhost:6379"
)

// DefaultForwardChannels are the bus channels the gateway mirrors to
// connected browser clients.
var DefaultForwardChannels = []string{"chatter-output", "system"}

// Config holds every recognised option. Services validate only the fields
// they require.
type Config struct {
	BusURL      string `toml:"bus_url"`
	BusPassword string `toml:"bus_password"`

	StorePath string `toml:"store_path"`

	AnthropicAPIKey string `toml:"anthropic_api_key"`
	Model           string `toml:"model"`

	GatewayPort     int      `toml:"gateway_port"`
	CORSOrigins     []string `toml:"cors_origins"`
	ForwardChannels []string `toml:"forward_channels"`

	AgentName   string `toml:"agent_name"`
	RepoPath    string `toml:"repo_path"`
	CommandFile string `toml:"command_file"`
	ToolPath    string `toml:"tool_path"`

	TaskTimeout      time.Duration `toml:"task_timeout"`
	ToolTimeout      time.Duration `toml:"tool_timeout"`
	HistoryCap       int           `toml:"history_cap"`
	ConversationIdle time.Duration `toml:"conversation_idle"`

	AgentsFile string `toml:"agents_file"`
}

// Load reads .env (best-effort), the TOML file at tomlPath (skipped when
// empty or missing), then the environment, and fills in defaults.
func Load(tomlPath string) (*Config, error) {
	// .env is a developer convenience; absence is not an error.
	_ = godotenv.Load()

	cfg := &Config{
		BusURL:           DefaultBusURL,
		StorePath:        DefaultStorePath,
		Model:            DefaultModel,
		GatewayPort:      DefaultGatewayPort,
		CommandFile:      DefaultCommandFile,
		ToolPath:         DefaultToolPath,
		TaskTimeout:      DefaultTaskTimeout,
		ToolTimeout:      DefaultToolTimeout,
		HistoryCap:       DefaultHistoryCap,
		ConversationIdle: DefaultConversationIdle,
	}

	if tomlPath != "" {
		data, err := os.ReadFile(tomlPath)
		switch {
		case err == nil:
			if err := toml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", tomlPath, err)
			}
		case os.IsNotExist(err):
			// Optional file.
		default:
			return nil, fmt.Errorf("read %s: %w", tomlPath, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if len(cfg.ForwardChannels) == 0 {
		cfg.ForwardChannels = append([]string(nil), DefaultForwardChannels...)
	}
	return cfg, nil
}

// applyEnv overlays environment variables onto cfg.
func (c *Config) applyEnv() error {
	setString(&c.BusURL, "BUS_URL")
	setString(&c.BusPassword, "BUS_PASSWORD")
	setString(&c.StorePath, "STORE_PATH")
	setString(&c.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	setString(&c.Model, "ANTHROPIC_MODEL")
	setString(&c.AgentName, "AGENT_NAME")
	setString(&c.RepoPath, "REPO_PATH")
	setString(&c.CommandFile, "COMMAND_FILE")
	setString(&c.ToolPath, "CLAUDE_PATH")
	setString(&c.AgentsFile, "AGENTS_FILE")

	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		c.CORSOrigins = splitList(v)
	}
	if v := os.Getenv("FORWARD_CHANNELS"); v != "" {
		c.ForwardChannels = splitList(v)
	}

	if err := setInt(&c.GatewayPort, "GATEWAY_PORT"); err != nil {
		return err
	}
	if err := setInt(&c.HistoryCap, "HISTORY_CAP"); err != nil {
		return err
	}
	if err := setDuration(&c.TaskTimeout, "TASK_TIMEOUT"); err != nil {
		return err
	}
	if err := setDuration(&c.ToolTimeout, "TOOL_TIMEOUT"); err != nil {
		return err
	}
	if err := setDuration(&c.ConversationIdle, "CONVERSATION_IDLE"); err != nil {
		return err
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %q is not an integer: %w", key, v, err)
	}
	*dst = n
	return nil
}

func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %q is not a duration (use forms like 30m, 5s): %w", key, v, err)
	}
	*dst = d
	return nil
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Require checks that the named options are non-empty and returns a single
// error listing every missing one, so an operator fixes them in one pass.
func (c *Config) Require(names ...string) error {
	var missing []string
	for _, name := range names {
		if c.lookup(name) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

func (c *Config) lookup(name string) string {
	switch name {
	case "BUS_URL":
		return c.BusURL
	case "ANTHROPIC_API_KEY":
		return c.AnthropicAPIKey
	case "AGENT_NAME":
		return c.AgentName
	case "REPO_PATH":
		return c.RepoPath
	case "STORE_PATH":
		return c.StorePath
	default:
		return ""
	}
}

// ValidateRepoPath verifies the configured repository directory exists.
func (c *Config) ValidateRepoPath() error {
	info, err := os.Stat(c.RepoPath)
	if err != nil {
		return fmt.Errorf("repository path %q: %w", c.RepoPath, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("repository path %q is not a directory", c.RepoPath)
	}
	return nil
}
