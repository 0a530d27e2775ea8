package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from yaml strings like
// "30s" or "1h30m"; yaml.v3 has no native duration support.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

type Config struct {
	Server Server `yaml:"server"`
	Client Client `yaml:"client"`
	Notify Notify `yaml:"notify"`
	Redis  Redis  `yaml:"redis"`
	Log    Log    `yaml:"log"`
}

type Server struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	SessionTTL     Duration `yaml:"session_ttl"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type Client struct {
	BaseURL        string   `yaml:"base_url"`
	RequestTimeout Duration `yaml:"request_timeout"`
	EntryPath      string   `yaml:"entry_path"`
}

type Notify struct {
	Topic        string   `yaml:"topic"`
	InitialDelay Duration `yaml:"reconnect_initial_delay"`
	MaxDelay     Duration `yaml:"reconnect_max_delay"`
	MaxAttempts  int      `yaml:"reconnect_max_attempts"`
	AlertTTL     Duration `yaml:"alert_ttl"`
}

// Redis configures the optional pub/sub bus between the notification store
// and the push hub. An empty Addr keeps publishing in-process.
type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Channel  string `yaml:"channel"`
}

type Log struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

func defaultConfig() *Config {
	return &Config{
		Server: Server{
			Host:       "0.0.0.0",
			Port:       8080,
			SessionTTL: Duration(24 * time.Hour),
		},
		Client: Client{
			BaseURL:        "http://127.0.0.1:8080",
			RequestTimeout: Duration(10 * time.Second),
			EntryPath:      "/auth",
		},
		Notify: Notify{
			Topic:        "notifications",
			InitialDelay: Duration(time.Second),
			MaxDelay:     Duration(30 * time.Second),
			MaxAttempts:  0,
			AlertTTL:     Duration(3 * time.Second),
		},
		Redis: Redis{
			Channel: "notifications",
		},
		Log: Log{
			Level: "info",
		},
	}
}

// Load reads the yaml file at path over the built-in defaults. A missing
// file is not an error: callers get the defaults.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Notify.Topic == "" {
		return fmt.Errorf("notify.topic must not be empty")
	}
	if c.Notify.InitialDelay <= 0 {
		return fmt.Errorf("notify.reconnect_initial_delay must be positive")
	}
	if c.Notify.MaxDelay < c.Notify.InitialDelay {
		return fmt.Errorf("notify.reconnect_max_delay below initial delay")
	}
	if c.Notify.MaxAttempts < 0 {
		return fmt.Errorf("notify.reconnect_max_attempts must not be negative")
	}
	return nil
}
