package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the stockmind service.
type Config struct {
	Storage      Storage      `yaml:"storage"`
	Server       Server       `yaml:"server"`
	Alpaca       Alpaca       `yaml:"alpaca"`
	AlphaVantage AlphaVantage `yaml:"alpha_vantage"`
	Logging      Logging      `yaml:"logging"`
	Agents       Agents       `yaml:"agents"`
	Workflows    Workflows    `yaml:"workflows"`
	N8n          N8n          `yaml:"n8n"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir      string `yaml:"data_dir"`
	SQLitePath   string `yaml:"sqlite_path"`
	SettingsPath string `yaml:"settings_path"`
}

// Server holds network listener configuration.
type Server struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	GRPCPort int    `yaml:"grpc_port"`
}

// Alpaca holds credentials and endpoints for the Alpaca market data API.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	BaseURL   string `yaml:"base_url"`
	DataURL   string `yaml:"data_url"`
}

// AlphaVantage configures the Alpha Vantage quote provider. The API key is
// only a fallback; the stockApiKey setting takes precedence at request time.
type AlphaVantage struct {
	APIKey          string `yaml:"api_key"`
	BaseURL         string `yaml:"base_url"`
	RateLimitPerMin int    `yaml:"rate_limit_per_min"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Agents controls the agent activation sequence.
type Agents struct {
	Stagger      time.Duration `yaml:"stagger"`
	TickInterval time.Duration `yaml:"tick_interval"`
	Step         int           `yaml:"step"`
	Cutoff       time.Duration `yaml:"cutoff"`
}

// Workflows controls workflow run timing.
type Workflows struct {
	TickInterval   time.Duration `yaml:"tick_interval"`
	Step           int           `yaml:"step"`
	Ceiling        int           `yaml:"ceiling"`
	CompletedReset time.Duration `yaml:"completed_reset"`
	ErrorReset     time.Duration `yaml:"error_reset"`
	CallTimeout    time.Duration `yaml:"call_timeout"` // 0 = no timeout
}

// N8n points at an n8n instance used to build webhook URLs and read
// executions.
type N8n struct {
	BaseURL string `yaml:"base_url"`
}

// ---------------------------------------------------------------------------
// Defaults and validation
// ---------------------------------------------------------------------------

// Defaults returns a Config populated with the stock values. Load starts from
// these, so a config file only needs the fields it changes.
func Defaults() *Config {
	return &Config{
		Storage: Storage{
			DataDir:      "data",
			SQLitePath:   "data/stockmind.db",
			SettingsPath: "data/settings.json",
		},
		Server: Server{
			Host:     "0.0.0.0",
			Port:     8080,
			GRPCPort: 9090,
		},
		Alpaca: Alpaca{
			BaseURL: "https://paper-api.alpaca.markets",
			DataURL: "https://data.alpaca.markets",
		},
		AlphaVantage: AlphaVantage{
			BaseURL:         "https://www.alphavantage.co",
			RateLimitPerMin: 5,
		},
		Logging: Logging{
			Level:  "info",
			Format: "json",
		},
		Agents: Agents{
			Stagger:      500 * time.Millisecond,
			TickInterval: 200 * time.Millisecond,
			Step:         10,
			Cutoff:       2 * time.Second,
		},
		Workflows: Workflows{
			TickInterval:   500 * time.Millisecond,
			Step:           10,
			Ceiling:        90,
			CompletedReset: 5 * time.Second,
			ErrorReset:     3 * time.Second,
		},
	}
}

// Validate reports every field that would make the engines misbehave.
func (c *Config) Validate() error {
	var errs []error
	positive := func(name string, d time.Duration) {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, d))
		}
	}

	if c.Agents.Stagger < 0 {
		errs = append(errs, fmt.Errorf("agents.stagger must not be negative, got %s", c.Agents.Stagger))
	}
	positive("agents.tick_interval", c.Agents.TickInterval)
	positive("agents.cutoff", c.Agents.Cutoff)
	if c.Agents.Step <= 0 {
		errs = append(errs, fmt.Errorf("agents.step must be positive, got %d", c.Agents.Step))
	}

	positive("workflows.tick_interval", c.Workflows.TickInterval)
	positive("workflows.completed_reset", c.Workflows.CompletedReset)
	positive("workflows.error_reset", c.Workflows.ErrorReset)
	if c.Workflows.Step <= 0 {
		errs = append(errs, fmt.Errorf("workflows.step must be positive, got %d", c.Workflows.Step))
	}
	if c.Workflows.Ceiling <= 0 || c.Workflows.Ceiling >= 100 {
		errs = append(errs, fmt.Errorf("workflows.ceiling must be in (0, 100), got %d", c.Workflows.Ceiling))
	}
	if c.Workflows.CallTimeout < 0 {
		errs = append(errs, fmt.Errorf("workflows.call_timeout must not be negative, got %s", c.Workflows.CallTimeout))
	}

	if c.Server.Port <= 0 {
		errs = append(errs, fmt.Errorf("server.port must be positive, got %d", c.Server.Port))
	}
	return errors.Join(errs...)
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path over Defaults,
// applies environment variable overrides, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadOrDefault behaves like Load but falls back to Defaults (with
// environment overrides) when the file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		cfg = Defaults()
		applyEnvOverrides(cfg)
		return cfg, nil
	}
	return cfg, err
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("SETTINGS_PATH"); v != "" {
		cfg.Storage.SettingsPath = v
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}
	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Alpaca.DataURL = v
	}

	if v := os.Getenv("ALPHAVANTAGE_API_KEY"); v != "" {
		cfg.AlphaVantage.APIKey = v
	}
	if v := os.Getenv("N8N_BASE_URL"); v != "" {
		cfg.N8n.BaseURL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// Standard Alpaca env vars win, they are the names the SDK reads.
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}
