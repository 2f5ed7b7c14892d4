package shared

import (
	_ "embed"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Monitor strategies accepted in [MonitorConfig.Strategy].
const (
	StrategyStream = "stream"
	StrategyPoll   = "poll"
)

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Client   ClientConfig   `toml:"client"`
	Monitor  MonitorConfig  `toml:"monitor"`
	Database DatabaseConfig `toml:"database"`
	Log      LogConfig      `toml:"log"`
}

// ServerConfig locates the course library server and carries its credentials.
type ServerConfig struct {
	BaseURL       string `toml:"base_url"`
	SessionCookie string `toml:"session_cookie"`
	Token         string `toml:"token"`
}

// ClientConfig contains HTTP client settings.
type ClientConfig struct {
	TimeoutSeconds    int     `toml:"timeout_seconds"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// MonitorConfig selects and tunes the scan monitor update mechanism.
type MonitorConfig struct {
	Strategy         string `toml:"strategy"`
	PollIntervalMS   int    `toml:"poll_interval_ms"`
	ReconnectDelayMS int    `toml:"reconnect_delay_ms"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// LogConfig contains logger settings.
type LogConfig struct {
	Level string `toml:"level"`
	File  string `toml:"file"`
}

// Timeout returns the client timeout as a [time.Duration].
func (c ClientConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// PollInterval returns the delay between poll ticks.
func (m MonitorConfig) PollInterval() time.Duration {
	return time.Duration(m.PollIntervalMS) * time.Millisecond
}

// ReconnectDelay returns the delay before reopening a closed push channel.
func (m MonitorConfig) ReconnectDelay() time.Duration {
	return time.Duration(m.ReconnectDelayMS) * time.Millisecond
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Values missing from the file keep the defaults of the embedded example config.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks the settings that cannot fall back to a default.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Server.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: server.base_url %q is not an absolute URL", ErrInvalidConfig, c.Server.BaseURL)
	}

	switch strings.ToLower(c.Monitor.Strategy) {
	case StrategyStream, StrategyPoll:
	default:
		return fmt.Errorf("%w: monitor.strategy must be %q or %q, got %q", ErrInvalidConfig, StrategyStream, StrategyPoll, c.Monitor.Strategy)
	}

	if c.Monitor.PollIntervalMS <= 0 || c.Monitor.ReconnectDelayMS <= 0 {
		return fmt.Errorf("%w: monitor delays must be positive", ErrInvalidConfig)
	}
	if c.Client.RequestsPerSecond < 0 {
		return fmt.Errorf("%w: client.requests_per_second must not be negative", ErrInvalidConfig)
	}
	return nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
