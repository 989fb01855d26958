package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for ticktick-mcp. Values come from, in
// ascending precedence: the optional config.yaml overlay, a .env file,
// and real environment variables.
type Config struct {
	// OAuth client credentials issued by the TickTick developer console.
	ClientID     string `env:"TICKTICK_CLIENT_ID" yaml:"client_id"`
	ClientSecret string `env:"TICKTICK_CLIENT_SECRET" yaml:"client_secret"`

	// Region selects the provider deployment: "ticktick" (international)
	// or "dida365" (China). Tokens are bound to the region they were
	// minted under.
	Region string `env:"TICKTICK_REGION" envDefault:"ticktick" yaml:"region"`

	// Scope requested during authorization.
	Scope string `env:"TICKTICK_SCOPE" envDefault:"tasks:read tasks:write" yaml:"scope"`

	// CallbackPort is the fixed local port the OAuth redirect lands on.
	// The redirect URI registered with the provider must be
	// http://localhost:<port>/callback.
	CallbackPort int `env:"TICKTICK_CALLBACK_PORT" envDefault:"8000" yaml:"callback_port"`

	// TokenPath overrides the token file location. Defaults to
	// ~/.ticktick-mcp/token.json.
	TokenPath string `env:"TICKTICK_TOKEN_PATH" yaml:"token_path"`

	// Environment controls log format
	Environment string `env:"ENVIRONMENT" envDefault:"development" yaml:"environment"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `env:"LOG_LEVEL" envDefault:"info" yaml:"log_level"`
}

// warnInsecureEnvFile checks whether the .env file (if present) has
// overly permissive permissions. On Unix systems, group or world
// readable files risk exposing credentials to other users.
func warnInsecureEnvFile() {
	if runtime.GOOS == "windows" {
		return
	}

	info, err := os.Stat(".env")
	if err != nil {
		return // file does not exist, nothing to check
	}

	mode := info.Mode().Perm()
	if mode&0o077 != 0 {
		log.Printf("WARNING: .env file has insecure permissions %04o; recommended 0600", mode)
	}
}

// Load reads configuration from environment variables, layered over the
// optional YAML overlay at ~/.ticktick-mcp/config.yaml. A .env file is
// loaded first if present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	warnInsecureEnvFile()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if path, err := defaultConfigFile(); err == nil {
		if err := cfg.applyOverlay(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.finalize(); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// finalize fills the token path default and resolves it to an absolute
// path so the store's directory handling does not depend on the process
// working directory.
func (c *Config) finalize() error {
	if c.TokenPath == "" {
		path, err := DefaultTokenPath()
		if err != nil {
			return err
		}

		c.TokenPath = path
	}

	absPath, err := filepath.Abs(c.TokenPath)
	if err != nil {
		return fmt.Errorf("resolving token path: %w", err)
	}

	c.TokenPath = absPath

	return nil
}

// applyOverlay fills fields from the YAML file at path, but only where
// the corresponding environment variable was not explicitly set. Env
// always wins over the file; the file wins over built-in defaults.
func (c *Config) applyOverlay(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}

		return fmt.Errorf("reading config file: %w", err)
	}

	overlay := Config{}
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	envSet := func(key string) bool {
		_, ok := os.LookupEnv(key)
		return ok
	}

	if overlay.ClientID != "" && !envSet("TICKTICK_CLIENT_ID") {
		c.ClientID = overlay.ClientID
	}

	if overlay.ClientSecret != "" && !envSet("TICKTICK_CLIENT_SECRET") {
		c.ClientSecret = overlay.ClientSecret
	}

	if overlay.Region != "" && !envSet("TICKTICK_REGION") {
		c.Region = overlay.Region
	}

	if overlay.Scope != "" && !envSet("TICKTICK_SCOPE") {
		c.Scope = overlay.Scope
	}

	if overlay.CallbackPort != 0 && !envSet("TICKTICK_CALLBACK_PORT") {
		c.CallbackPort = overlay.CallbackPort
	}

	if overlay.TokenPath != "" && !envSet("TICKTICK_TOKEN_PATH") {
		c.TokenPath = overlay.TokenPath
	}

	if overlay.Environment != "" && !envSet("ENVIRONMENT") {
		c.Environment = overlay.Environment
	}

	if overlay.LogLevel != "" && !envSet("LOG_LEVEL") {
		c.LogLevel = overlay.LogLevel
	}

	return nil
}

func (c *Config) validate() error {
	if c.ClientID == "" {
		return fmt.Errorf("TICKTICK_CLIENT_ID is required")
	}

	if c.ClientSecret == "" {
		return fmt.Errorf("TICKTICK_CLIENT_SECRET is required")
	}

	if c.Region != "ticktick" && c.Region != "dida365" {
		return fmt.Errorf("TICKTICK_REGION must be %q or %q, got %q", "ticktick", "dida365", c.Region)
	}

	if c.CallbackPort < 1 || c.CallbackPort > 65535 {
		return fmt.Errorf("TICKTICK_CALLBACK_PORT out of range: %d", c.CallbackPort)
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error; got %q", c.LogLevel)
	}

	return nil
}

// DefaultTokenPath returns the default token file location:
// ~/.ticktick-mcp/token.json
func DefaultTokenPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("determining home directory: %w", err)
	}

	return filepath.Join(home, ".ticktick-mcp", "token.json"), nil
}

// defaultConfigFile returns the YAML overlay location:
// ~/.ticktick-mcp/config.yaml
func defaultConfigFile() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("determining home directory: %w", err)
	}

	return filepath.Join(home, ".ticktick-mcp", "config.yaml"), nil
}

// IsProduction returns true when the environment is set to production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
