package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

const (
	StrategySelector    = "selector"
	StrategyReadability = "readability"
)

type Config struct {
	RSSHub     RSSHub     `yaml:"rsshub"`
	Scheduler  Scheduler  `yaml:"scheduler"`
	Fetch      Fetch      `yaml:"fetch"`
	Extraction Extraction `yaml:"extraction"`
	Output     Output     `yaml:"output"`
	Server     Server     `yaml:"server"`
	Logging    Logging    `yaml:"logging"`
	Lock       Lock       `yaml:"lock"`
}

type RSSHub struct {
	BaseURL string `yaml:"base_url" env:"RSSHUB_BASE_URL"`
}

type Scheduler struct {
	// CheckInterval is in minutes.
	CheckInterval int `yaml:"check_interval" env:"CHECK_INTERVAL"`
}

type Fetch struct {
	Timeout     time.Duration `yaml:"timeout"`
	Retries     int           `yaml:"retries"`
	RetryDelay  time.Duration `yaml:"retry_delay"`
	UserAgent   string        `yaml:"user_agent"`
	MaxArticles int           `yaml:"max_articles"`
	Workers     int           `yaml:"workers"`
}

type Extraction struct {
	Strategy string `yaml:"strategy"`
}

type Output struct {
	DataDir string `yaml:"data_dir" env:"FEEDWATCH_DATA_DIR"`
}

type Server struct {
	Port int `yaml:"port" env:"FEEDWATCH_PORT"`
}

type Logging struct {
	Level string `yaml:"level" env:"LOG_LEVEL"`
}

type Lock struct {
	RedisAddr string `yaml:"redis_addr" env:"FEEDWATCH_REDIS_ADDR"`
}

// ConfigDir returns the XDG config directory for feedwatch.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "feedwatch")
}

// DataDir returns the XDG data directory for feedwatch.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "feedwatch")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/feedwatch/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'feedwatch init' to create a default config",
		xdgConfig,
	)
}

// Load reads and parses a config YAML file, then applies environment overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg, err := parse(data)
	if err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the built-in configuration with environment overrides,
// for running without a config file.
func Default() (*Config, error) {
	cfg, err := parse(DefaultConfigYAML)
	if err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Scheduler: Scheduler{CheckInterval: 30},
		Fetch: Fetch{
			Timeout:     30 * time.Second,
			Retries:     2,
			RetryDelay:  time.Second,
			MaxArticles: 10,
			Workers:     4,
		},
		Extraction: Extraction{Strategy: StrategySelector},
		Server:     Server{Port: 8000},
		Logging:    Logging{Level: "info"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	// UpdateEnv would only touch env-upd fields; unset variables keep the
	// file values because no field has an env-default.
	if err := cleanenv.ReadEnv(c); err != nil {
		return fmt.Errorf("reading environment: %w", err)
	}
	return c.validate()
}

func (c *Config) validate() error {
	c.Extraction.Strategy = strings.ToLower(strings.TrimSpace(c.Extraction.Strategy))
	switch c.Extraction.Strategy {
	case "":
		c.Extraction.Strategy = StrategySelector
	case StrategySelector, StrategyReadability:
	default:
		return fmt.Errorf("unknown extraction strategy %q", c.Extraction.Strategy)
	}
	if c.Scheduler.CheckInterval < 1 {
		return fmt.Errorf("scheduler.check_interval must be at least 1 minute, got %d", c.Scheduler.CheckInterval)
	}
	if c.Fetch.Retries < 0 {
		return fmt.Errorf("fetch.retries must not be negative, got %d", c.Fetch.Retries)
	}
	return nil
}

// CheckInterval returns the scheduler interval as a duration.
func (c *Config) CheckInterval() time.Duration {
	return time.Duration(c.Scheduler.CheckInterval) * time.Minute
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

// DBPath returns the SQLite database location inside the data directory.
func (c *Config) DBPath() string {
	return filepath.Join(c.GetDataDir(), "feedwatch.db")
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
