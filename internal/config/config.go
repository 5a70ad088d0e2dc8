package config

import (
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const DefaultModel = "qwen2.5:32b"

type Config struct {
	// Server
	Addr            string
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	// Logging
	LogLevel string
	LogJSON  bool

	// Ollama
	OllamaURL    string
	DefaultModel string
	ChatTimeout  time.Duration

	// Startup wait for the backend
	WaitEnabled  bool
	WaitTimeout  time.Duration
	WaitInterval time.Duration
	WaitModels   []string

	// Usage accounting; empty keeps totals in memory
	RedisURL string

	CORS CORS
}

type CORS struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	AllowCredentials bool
}

// Load reads an optional .env file, then environment variables, then the
// given command-line args. Flags win over the environment.
func Load(args []string) (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	var errs []error
	dur := func(key, def string) time.Duration {
		d, err := getEnvAsDurationOrDefault(key, def)
		if err != nil {
			errs = append(errs, err)
		}
		return d
	}

	cfg := &Config{}
	fs := flag.NewFlagSet("chat-relay", flag.ContinueOnError)
	fs.StringVar(&cfg.Addr, "addr", getEnvOrDefault("ADDR", "8000"), "HTTP listen port or host:port")
	fs.StringVar(&cfg.LogLevel, "log-level", getEnvOrDefault("LOG_LEVEL", "info"), "log level: debug|info|warn|error")
	fs.BoolVar(&cfg.LogJSON, "log-json", getEnvAsBoolOrDefault("LOG_JSON", false), "log as JSON")
	fs.StringVar(&cfg.OllamaURL, "ollama", getEnvOrDefault("OLLAMA_BASE_URL", "http://localhost:11434"), "Ollama base URL")
	fs.StringVar(&cfg.DefaultModel, "model", getEnvOrDefault("DEFAULT_MODEL", DefaultModel), "model used when a request names none")
	fs.DurationVar(&cfg.ChatTimeout, "chat-timeout", dur("CHAT_TIMEOUT", "5m"), "per-request backend timeout (0 disables)")
	fs.DurationVar(&cfg.WriteTimeout, "write-timeout", dur("WRITE_TIMEOUT", "0"), "HTTP server write timeout (0 disables)")
	fs.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", dur("SHUTDOWN_TIMEOUT", "10s"), "graceful shutdown timeout")
	fs.StringVar(&cfg.RedisURL, "redis", getEnvOrDefault("REDIS_URL", ""), "Redis URL for usage totals")

	cfg.WaitEnabled = getEnvAsBoolOrDefault("OLLAMA_WAIT", false)
	cfg.WaitTimeout = dur("OLLAMA_WAIT_TIMEOUT", "180s")
	cfg.WaitInterval = dur("OLLAMA_WAIT_INTERVAL", "2s")
	cfg.WaitModels = strings.Fields(getEnvOrDefault("OLLAMA_WAIT_MODELS", ""))

	cfg.CORS = CORS{
		AllowedOrigins:   getEnvAsListOrDefault("CORS_ALLOWED_ORIGINS", []string{"*"}),
		AllowedMethods:   getEnvAsListOrDefault("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS", "HEAD"}),
		AllowedHeaders:   getEnvAsListOrDefault("CORS_ALLOWED_HEADERS", []string{"*"}),
		AllowCredentials: getEnvAsBoolOrDefault("CORS_ALLOW_CREDENTIALS", true),
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ListenAddr accepts either a bare port ("8000") or host:port.
func (c *Config) ListenAddr() string {
	if strings.Contains(c.Addr, ":") {
		return c.Addr
	}
	return ":" + c.Addr
}

func (c *Config) validate() error {
	u, err := url.Parse(c.OllamaURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid ollama base url %q", c.OllamaURL)
	}
	c.OllamaURL = strings.TrimRight(c.OllamaURL, "/")
	if strings.TrimSpace(c.DefaultModel) == "" {
		return errors.New("default model must not be empty")
	}
	if c.ChatTimeout < 0 {
		return errors.New("chat timeout must not be negative")
	}
	if c.WaitEnabled && c.WaitInterval <= 0 {
		return errors.New("ollama wait interval must be positive")
	}
	return nil
}

func getEnvOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvAsBoolOrDefault(key string, defaultVal bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(strings.ToLower(val))
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvAsDurationOrDefault(key, defaultVal string) (time.Duration, error) {
	val := getEnvOrDefault(key, defaultVal)
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

// getEnvAsListOrDefault splits on commas and whitespace.
func getEnvAsListOrDefault(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	parts := strings.FieldsFunc(val, func(r rune) bool { return r == ',' || r == ' ' || r == '\t' })
	if len(parts) == 0 {
		return defaultVal
	}
	return parts
}
