// Package config loads the server configuration: built-in defaults, then an
// optional yaml file, then environment variables.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mcdev12/metronome/go/internal/dbconfig"
)

const DefaultPath = "config/metronome.yaml"

// Store, fan-out and mail backends
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendNATS     = "nats"
	BackendLog      = "log"
	BackendSMTP     = "smtp"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Store     StoreConfig     `yaml:"store"`
	Redis     RedisConfig     `yaml:"redis"`
	Database  dbconfig.Config `yaml:"database"`
	Fanout    FanoutConfig    `yaml:"fanout"`
	NATS      NATSConfig      `yaml:"nats"`
	Mail      MailConfig      `yaml:"mail"`
	Log       LogConfig       `yaml:"log"`
}

type ServerConfig struct {
	Port           string        `yaml:"port"`
	BaseURL        string        `yaml:"base_url"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	CookiePrefix   string        `yaml:"cookie_prefix"`
	SecureCookies  bool          `yaml:"secure_cookies"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	IdleTimeout    time.Duration `yaml:"idle_timeout"`
	ShutdownGrace  time.Duration `yaml:"shutdown_grace"`
}

type WebSocketConfig struct {
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	PingInterval   time.Duration `yaml:"ping_interval"`
	MaxMessageSize int64         `yaml:"max_message_size"`
	SendBuffer     int           `yaml:"send_buffer"`
}

type StoreConfig struct {
	Backend   string `yaml:"backend"`
	KeyPrefix string `yaml:"key_prefix"`
}

type RedisConfig struct {
	URL string `yaml:"url"`
}

type FanoutConfig struct {
	Backend string `yaml:"backend"`
	Channel string `yaml:"channel"`
}

type NATSConfig struct {
	URL           string        `yaml:"url"`
	MaxReconnects int           `yaml:"max_reconnects"`
	ReconnectWait time.Duration `yaml:"reconnect_wait"`
}

type MailConfig struct {
	Backend  string `yaml:"backend"`
	From     string `yaml:"from"`
	SMTPHost string `yaml:"smtp_host"`
	SMTPPort int    `yaml:"smtp_port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Default returns a configuration that runs a single instance with no
// external services.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           "8080",
			BaseURL:        "http://localhost:8080",
			AllowedOrigins: []string{"*"},
			CookiePrefix:   "metronome-",
			ReadTimeout:    10 * time.Second,
			IdleTimeout:    120 * time.Second,
			ShutdownGrace:  10 * time.Second,
		},
		WebSocket: WebSocketConfig{
			WriteTimeout:   10 * time.Second,
			ReadTimeout:    60 * time.Second,
			PingInterval:   15 * time.Second,
			MaxMessageSize: 64 * 1024,
			SendBuffer:     64,
		},
		Store: StoreConfig{
			Backend:   BackendMemory,
			KeyPrefix: "metronome:room:",
		},
		Redis: RedisConfig{
			URL: "redis://localhost:6379/0",
		},
		Database: dbconfig.Defaults(),
		Fanout: FanoutConfig{
			Backend: BackendMemory,
			Channel: "metronome-updates",
		},
		NATS: NATSConfig{
			URL:           "nats://localhost:4222",
			MaxReconnects: -1,
			ReconnectWait: 2 * time.Second,
		},
		Mail: MailConfig{
			Backend:  BackendLog,
			From:     "metronome@localhost",
			SMTPPort: 587,
		},
		Log: LogConfig{
			Level:  "info",
			Pretty: true,
		},
	}
}

// Load reads path over the defaults and applies environment overrides.
// A missing file is not an error when path is the default location.
func Load(path string) (*Config, error) {
	config := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist) && path == DefaultPath:
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config.applyEnv()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// FetchPath returns the config path from the -config flag, CONFIG_PATH or
// the default location. It parses the command line flags.
func FetchPath() string {
	var path string
	if flag.Lookup("config") == nil {
		flag.StringVar(&path, "config", "", "path to config file")
	}
	flag.Parse()

	if f := flag.Lookup("config"); f != nil && f.Value.String() != "" {
		return f.Value.String()
	}
	return getEnv("CONFIG_PATH", DefaultPath)
}

func (c *Config) applyEnv() {
	c.Server.Port = getEnv("PORT", c.Server.Port)
	c.Server.BaseURL = getEnv("BASE_URL", c.Server.BaseURL)
	if origins := getEnv("ALLOWED_ORIGINS", ""); origins != "" {
		c.Server.AllowedOrigins = strings.Split(origins, ",")
	}
	c.Server.SecureCookies = getEnvAsBool("SECURE_COOKIES", c.Server.SecureCookies)

	c.Store.Backend = getEnv("STORE_BACKEND", c.Store.Backend)
	c.Redis.URL = getEnv("REDIS_URL", c.Redis.URL)
	c.Database = c.Database.WithEnv()

	c.Fanout.Backend = getEnv("FANOUT_BACKEND", c.Fanout.Backend)
	c.Fanout.Channel = getEnv("FANOUT_CHANNEL", c.Fanout.Channel)
	c.NATS.URL = getEnv("NATS_URL", c.NATS.URL)
	c.NATS.MaxReconnects = getEnvAsInt("NATS_MAX_RECONNECTS", c.NATS.MaxReconnects)

	c.Mail.Backend = getEnv("MAIL_BACKEND", c.Mail.Backend)
	c.Mail.From = getEnv("MAIL_FROM", c.Mail.From)
	c.Mail.SMTPHost = getEnv("SMTP_HOST", c.Mail.SMTPHost)
	c.Mail.SMTPPort = getEnvAsInt("SMTP_PORT", c.Mail.SMTPPort)
	c.Mail.Username = getEnv("SMTP_USERNAME", c.Mail.Username)
	c.Mail.Password = getEnv("SMTP_PASSWORD", c.Mail.Password)

	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Pretty = getEnvAsBool("LOG_PRETTY", c.Log.Pretty)
}

// Validate checks backend names and the settings they need.
func (c *Config) Validate() error {
	var errs []error

	switch c.Store.Backend {
	case BackendMemory, BackendRedis, BackendPostgres:
	default:
		errs = append(errs, fmt.Errorf("unknown store backend %q", c.Store.Backend))
	}
	switch c.Fanout.Backend {
	case BackendMemory, BackendRedis, BackendNATS:
	default:
		errs = append(errs, fmt.Errorf("unknown fanout backend %q", c.Fanout.Backend))
	}
	switch c.Mail.Backend {
	case BackendLog:
	case BackendSMTP:
		if c.Mail.SMTPHost == "" {
			errs = append(errs, errors.New("smtp mail backend needs smtp_host"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown mail backend %q", c.Mail.Backend))
	}

	// a memory store is private to one process, so its updates cannot reach other instances
	if c.Store.Backend == BackendMemory && c.Fanout.Backend != BackendMemory {
		errs = append(errs, fmt.Errorf("memory store cannot be shared over %s fanout", c.Fanout.Backend))
	}
	if c.Server.Port == "" {
		errs = append(errs, errors.New("server port is required"))
	}
	if c.WebSocket.PingInterval <= 0 || c.WebSocket.PingInterval >= c.WebSocket.ReadTimeout {
		errs = append(errs, errors.New("websocket ping_interval must be positive and shorter than read_timeout"))
	}
	if c.Fanout.Channel == "" {
		errs = append(errs, errors.New("fanout channel is required"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
