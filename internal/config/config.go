package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Duration accepts Go duration strings ("5s", "250ms") in both yaml and toml files.
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", string(text), err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	WebSocket WebSocketConfig `yaml:"websocket" toml:"websocket"`
	Delivery  DeliveryConfig  `yaml:"delivery" toml:"delivery"`
	Database  DatabaseConfig  `yaml:"database" toml:"database"`
	Offline   OfflineConfig   `yaml:"offline" toml:"offline"`
	RateLimit RateLimitConfig `yaml:"ratelimit" toml:"ratelimit"`
	Media     MediaConfig     `yaml:"media" toml:"media"`
	Log       LogConfig       `yaml:"log" toml:"log"`
}

type ServerConfig struct {
	Addr      string `yaml:"addr" toml:"addr"`
	StaticDir string `yaml:"static_dir" toml:"static_dir"`
}

type WebSocketConfig struct {
	// Timeout closes a connection that sent nothing (not even a ping) for this long.
	Timeout      Duration `yaml:"timeout" toml:"timeout"`
	WriteTimeout Duration `yaml:"write_timeout" toml:"write_timeout"`
}

type DeliveryConfig struct {
	Retries       int      `yaml:"retries" toml:"retries"`
	Interval      Duration `yaml:"interval" toml:"interval"`
	BackoffFactor float64  `yaml:"backoff_factor" toml:"backoff_factor"`
	MaxInterval   Duration `yaml:"max_interval" toml:"max_interval"`
	AckKinds      []string `yaml:"ack_kinds" toml:"ack_kinds"`
}

type DatabaseConfig struct {
	Driver  string `yaml:"driver" toml:"driver"` // postgres | memory
	DSN     string `yaml:"dsn" toml:"dsn"`
	Migrate bool   `yaml:"migrate" toml:"migrate"`
}

type OfflineConfig struct {
	Driver        string `yaml:"driver" toml:"driver"` // redis | postgres | memory
	RedisAddr     string `yaml:"redis_addr" toml:"redis_addr"`
	RedisPassword string `yaml:"redis_password" toml:"redis_password"`
	RedisDB       int    `yaml:"redis_db" toml:"redis_db"`
	KeyPrefix     string `yaml:"key_prefix" toml:"key_prefix"`
}

type RateLimitConfig struct {
	RPS   float64 `yaml:"rps" toml:"rps"`
	Burst int     `yaml:"burst" toml:"burst"`
}

type MediaConfig struct {
	MaxBytes int64 `yaml:"max_bytes" toml:"max_bytes"`
}

type LogConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"` // json | text
}

func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:      "127.0.0.1:3000",
			StaticDir: "./static",
		},
		WebSocket: WebSocketConfig{
			Timeout:      Duration(60 * time.Second),
			WriteTimeout: Duration(10 * time.Second),
		},
		Delivery: DeliveryConfig{
			Retries:       3,
			Interval:      Duration(2 * time.Second),
			BackoffFactor: 1,
			MaxInterval:   Duration(30 * time.Second),
			AckKinds:      []string{"chat", "msgupdate", "typing", "blur", "status"},
		},
		Database: DatabaseConfig{
			Driver:  "memory",
			Migrate: true,
		},
		Offline: OfflineConfig{
			Driver:    "memory",
			RedisAddr: "127.0.0.1:6379",
			KeyPrefix: "offline",
		},
		RateLimit: RateLimitConfig{
			RPS:   20,
			Burst: 40,
		},
		Media: MediaConfig{
			MaxBytes: 5 * 1024 * 1024,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads path over the defaults (yaml or toml by extension), then applies RELAY_* env overrides.
// An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path = strings.TrimSpace(path); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := decode(path, data, &cfg); err != nil {
			return Config{}, err
		}
	}
	ApplyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		if err := toml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parse toml config: %w", err)
		}
	case ".yaml", ".yml", "":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parse yaml config: %w", err)
		}
	default:
		return fmt.Errorf("unsupported config extension %q", ext)
	}
	return nil
}

var knownKinds = map[string]bool{
	"chat": true, "msgupdate": true, "typing": true, "blur": true, "status": true,
}

func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Server.Addr) == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if c.WebSocket.Timeout <= 0 {
		errs = append(errs, errors.New("websocket.timeout must be positive"))
	}
	if c.Delivery.Retries < 1 {
		errs = append(errs, errors.New("delivery.retries must be at least 1"))
	}
	if c.Delivery.Interval <= 0 {
		errs = append(errs, errors.New("delivery.interval must be positive"))
	}
	if c.Delivery.BackoffFactor < 1 {
		errs = append(errs, errors.New("delivery.backoff_factor must be >= 1"))
	}
	for _, kind := range c.Delivery.AckKinds {
		if !knownKinds[kind] {
			errs = append(errs, fmt.Errorf("delivery.ack_kinds: unknown kind %q", kind))
		}
	}
	switch c.Database.Driver {
	case "memory":
	case "postgres":
		if strings.TrimSpace(c.Database.DSN) == "" {
			errs = append(errs, errors.New("database.dsn is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("database.driver: unknown driver %q", c.Database.Driver))
	}
	switch c.Offline.Driver {
	case "memory":
	case "redis":
		if strings.TrimSpace(c.Offline.RedisAddr) == "" {
			errs = append(errs, errors.New("offline.redis_addr is required for the redis driver"))
		}
	case "postgres":
		if c.Database.Driver != "postgres" {
			errs = append(errs, errors.New("offline.driver postgres needs database.driver postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("offline.driver: unknown driver %q", c.Offline.Driver))
	}
	if c.Media.MaxBytes <= 0 {
		errs = append(errs, errors.New("media.max_bytes must be positive"))
	}
	return errors.Join(errs...)
}
