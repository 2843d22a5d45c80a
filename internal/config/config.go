package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/hession/haxu-mcp/internal/logger"
)

var (
	// configDir is the configuration directory path
	// Can be set via SetConfigDir before loading config
	configDir     string
	configDirInit bool
)

// SetConfigDir sets a custom configuration directory
// Must be called before any config loading functions
func SetConfigDir(dir string) {
	configDir = dir
	configDirInit = true
}

// GetConfigDir returns the configuration directory
// Priority: 1. Manually set via SetConfigDir, 2. ./config in current directory
func GetConfigDir() string {
	if !configDirInit {
		// Default to ./config in current working directory
		cwd, err := os.Getwd()
		if err == nil {
			configDir = filepath.Join(cwd, "config")
		}
		configDirInit = true
	}
	return configDir
}

// Config application configuration structure
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Function  FunctionConfig  `yaml:"function" toml:"function"`
	Log       LogConfig       `yaml:"log" toml:"log"`
	HTTP      HTTPConfig      `yaml:"http" toml:"http"`
	Weather   WeatherConfig   `yaml:"weather" toml:"weather"`
	Pricing   PricingConfig   `yaml:"pricing" toml:"pricing"`
	CharCount CharCountConfig `yaml:"charcount" toml:"charcount"`
	Legal     LegalConfig     `yaml:"legal" toml:"legal"`
	Semantic  SemanticConfig  `yaml:"semantic" toml:"semantic"`
}

// ServerConfig tool server configuration
type ServerConfig struct {
	Name       string   `yaml:"name" toml:"name"`
	Addr       string   `yaml:"addr" toml:"addr"`
	Modules    []string `yaml:"modules" toml:"modules"`       // tool modules to register, in order
	Transports []string `yaml:"transports" toml:"transports"` // sse and/or ws

	// OriginPatterns lists extra browser origins allowed on the ws transport
	OriginPatterns []string `yaml:"origin_patterns,omitempty" toml:"origin_patterns"`
}

// FunctionConfig character counting function configuration
type FunctionConfig struct {
	Addr string `yaml:"addr" toml:"addr"`
}

// LogConfig logging configuration
type LogConfig struct {
	Level   string `yaml:"level" toml:"level"`
	Console bool   `yaml:"console" toml:"console"`
	MaxDays int    `yaml:"max_days" toml:"max_days"`
}

// HTTPConfig shared outbound HTTP client configuration
type HTTPConfig struct {
	UserAgent      string `yaml:"user_agent" toml:"user_agent"`
	TimeoutSeconds int    `yaml:"timeout_seconds" toml:"timeout_seconds"`
}

// WeatherConfig National Weather Service configuration
type WeatherConfig struct {
	BaseURL        string `yaml:"base_url" toml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds" toml:"timeout_seconds"`
}

// PricingConfig Azure retail prices configuration
type PricingConfig struct {
	BaseURL        string `yaml:"base_url" toml:"base_url"`
	APIVersion     string `yaml:"api_version" toml:"api_version"`
	MaxPages       int    `yaml:"max_pages" toml:"max_pages"`
	TimeoutSeconds int    `yaml:"timeout_seconds" toml:"timeout_seconds"`
}

// CharCountConfig character counting client configuration
type CharCountConfig struct {
	Endpoint       string `yaml:"endpoint" toml:"endpoint"`
	TimeoutSeconds int    `yaml:"timeout_seconds" toml:"timeout_seconds"`
}

// LegalConfig law database configuration
type LegalConfig struct {
	DBPath     string `yaml:"db_path" toml:"db_path"`
	CorpusPath string `yaml:"corpus_path" toml:"corpus_path"` // imported on start when the database is empty
}

// SemanticConfig vector search configuration
type SemanticConfig struct {
	Backend     string  `yaml:"backend" toml:"backend"` // supabase or sqlite
	DBPath      string  `yaml:"db_path" toml:"db_path"`
	Threshold   float64 `yaml:"threshold" toml:"threshold"`
	Count       int     `yaml:"count" toml:"count"`
	SupabaseURL string  `yaml:"supabase_url" toml:"supabase_url"`
	SupabaseKey string  `yaml:"supabase_key" toml:"supabase_key"`

	AzureEndpoint   string `yaml:"azure_endpoint" toml:"azure_endpoint"`
	AzureAPIKey     string `yaml:"azure_api_key" toml:"azure_api_key"`
	AzureAPIVersion string `yaml:"azure_api_version" toml:"azure_api_version"`
	Deployment      string `yaml:"deployment" toml:"deployment"`
	MaxRetries      int    `yaml:"max_retries" toml:"max_retries"`
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".haxu-mcp")
	return &Config{
		Server: ServerConfig{
			Name:       "haxu-mcp",
			Addr:       ":8000",
			Modules:    []string{"legal", "weather", "pricing", "charcount"},
			Transports: []string{"sse", "ws"},
		},
		Function: FunctionConfig{
			Addr: ":7071",
		},
		Log: LogConfig{
			Level:   "info",
			Console: false,
			MaxDays: 7,
		},
		HTTP: HTTPConfig{
			UserAgent:      "weather-app/1.0",
			TimeoutSeconds: 30,
		},
		Weather: WeatherConfig{
			BaseURL:        "https://api.weather.gov",
			TimeoutSeconds: 30,
		},
		Pricing: PricingConfig{
			BaseURL:        "https://prices.azure.com/api/retail/prices",
			APIVersion:     "2023-01-01-preview",
			MaxPages:       3,
			TimeoutSeconds: 10,
		},
		CharCount: CharCountConfig{
			Endpoint:       "https://haxufunctions.azurewebsites.net/api/http_trigger",
			TimeoutSeconds: 10,
		},
		Legal: LegalConfig{
			DBPath: filepath.Join(dataDir, "laws.db"),
		},
		Semantic: SemanticConfig{
			Backend:    "supabase",
			DBPath:     filepath.Join(dataDir, "vectors.db"),
			Threshold:  0.5,
			Count:      3,
			Deployment: "text-embedding-ada-002",
			MaxRetries: 3,
		},
	}
}

// ConfigDir returns the configuration directory path
func ConfigDir() (string, error) {
	dir := GetConfigDir()
	if dir == "" {
		return "", fmt.Errorf("failed to determine config directory")
	}
	return dir, nil
}

// LogDir returns the log directory path
func LogDir() string {
	dir := GetConfigDir()
	if dir == "" {
		return "logs"
	}
	return filepath.Join(dir, "logs")
}

// ConfigPath returns the YAML configuration file path
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// TOMLConfigPath returns the TOML configuration file path
func TOMLConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// Load loads configuration from config.yaml, or config.toml when no YAML
// file exists, and merges secrets. With neither file present a default
// config.yaml is written.
func Load() (*Config, error) {
	yamlPath, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	tomlPath, err := TOMLConfigPath()
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig() // Use default values as base
	switch {
	case fileExists(yamlPath):
		data, err := os.ReadFile(yamlPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}

	case fileExists(tomlPath):
		if _, err := toml.DecodeFile(tomlPath, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}

	default:
		applySecrets(cfg)
		if err := Save(cfg); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		return cfg, nil
	}

	applySecrets(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applySecrets fills credentials that the config file leaves empty
func applySecrets(cfg *Config) {
	secrets, err := LoadSecrets()
	if err != nil {
		logger.Warn("Failed to read secrets file: %v", err)
	}

	if cfg.Semantic.SupabaseURL == "" {
		cfg.Semantic.SupabaseURL = secrets.Lookup(SupabaseURLKey)
	}
	if cfg.Semantic.SupabaseKey == "" {
		cfg.Semantic.SupabaseKey = secrets.Lookup(SupabaseKeyKey)
	}
	if cfg.Semantic.AzureEndpoint == "" {
		cfg.Semantic.AzureEndpoint = secrets.Lookup(AzureEndpointKey)
	}
	if cfg.Semantic.AzureAPIKey == "" {
		cfg.Semantic.AzureAPIKey = secrets.Lookup(AzureAPIKeyKey)
	}
	if cfg.Semantic.AzureAPIVersion == "" {
		cfg.Semantic.AzureAPIVersion = secrets.Lookup(AzureAPIVersionKey)
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Save saves configuration to the YAML file. Credentials are not written.
func Save(cfg *Config) error {
	configPath, err := ConfigPath()
	if err != nil {
		return err
	}

	// Ensure config directory exists
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	stripped := *cfg
	stripped.Semantic.SupabaseKey = ""
	stripped.Semantic.AzureAPIKey = ""

	// Serialize config
	data, err := yaml.Marshal(&stripped)
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}

	// Add header comment
	content := "# haxu-mcp Configuration File\n# Credentials belong in config/.secrets or the environment\n\n" + string(data)

	// Write file
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

var validTransports = map[string]bool{"sse": true, "ws": true}

// Validate validates the configuration
func (c *Config) Validate() error {
	// Validate server config
	if strings.TrimSpace(c.Server.Addr) == "" {
		return fmt.Errorf("config error: server.addr cannot be empty")
	}
	if len(c.Server.Modules) == 0 {
		return fmt.Errorf("config error: server.modules cannot be empty")
	}
	if len(c.Server.Transports) == 0 {
		return fmt.Errorf("config error: server.transports cannot be empty")
	}
	for _, t := range c.Server.Transports {
		if !validTransports[t] {
			return fmt.Errorf("config error: unknown transport %q", t)
		}
	}
	if strings.TrimSpace(c.Function.Addr) == "" {
		return fmt.Errorf("config error: function.addr cannot be empty")
	}

	// Validate log config
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("config error: log.level: %w", err)
	}

	// Validate timeouts
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("config error: http.timeout_seconds must be greater than 0")
	}
	if c.Weather.TimeoutSeconds <= 0 || c.Pricing.TimeoutSeconds <= 0 || c.CharCount.TimeoutSeconds <= 0 {
		return fmt.Errorf("config error: tool timeout_seconds must be greater than 0")
	}
	if c.Pricing.MaxPages <= 0 {
		return fmt.Errorf("config error: pricing.max_pages must be greater than 0")
	}

	// Validate storage config
	if c.Legal.DBPath == "" {
		return fmt.Errorf("config error: legal.db_path cannot be empty")
	}

	// Validate semantic config
	switch c.Semantic.Backend {
	case "supabase":
	case "sqlite":
		if c.Semantic.DBPath == "" {
			return fmt.Errorf("config error: semantic.db_path cannot be empty for sqlite backend")
		}
	default:
		return fmt.Errorf("config error: semantic.backend must be supabase or sqlite")
	}
	if c.Semantic.Threshold < 0 || c.Semantic.Threshold > 1 {
		return fmt.Errorf("config error: semantic.threshold must be between 0 and 1")
	}
	if c.Semantic.Count <= 0 {
		return fmt.Errorf("config error: semantic.count must be greater than 0")
	}

	return nil
}

// HasModule reports whether a tool module is enabled
func (c *Config) HasModule(name string) bool {
	for _, m := range c.Server.Modules {
		if m == name {
			return true
		}
	}
	return false
}

// String returns string representation of config (hides sensitive info)
func (c *Config) String() string {
	return fmt.Sprintf(`haxu-mcp Configuration:
  Server:
    Name: %s
    Addr: %s
    Modules: %s
    Transports: %s
  Function:
    Addr: %s
  Log:
    Level: %s
    Console: %v
    Max Days: %d
  HTTP:
    User Agent: %s
    Timeout Seconds: %d
  Weather:
    Base URL: %s
    Timeout Seconds: %d
  Pricing:
    Base URL: %s
    API Version: %s
    Max Pages: %d
    Timeout Seconds: %d
  CharCount:
    Endpoint: %s
    Timeout Seconds: %d
  Legal:
    DB Path: %s
  Semantic:
    Backend: %s
    DB Path: %s
    Threshold: %.2f
    Count: %d
    Supabase URL: %s
    Supabase Key: %s
    Azure Endpoint: %s
    Azure API Key: %s
    Azure API Version: %s
    Deployment: %s`,
		c.Server.Name,
		c.Server.Addr,
		strings.Join(c.Server.Modules, ", "),
		strings.Join(c.Server.Transports, ", "),
		c.Function.Addr,
		c.Log.Level,
		c.Log.Console,
		c.Log.MaxDays,
		c.HTTP.UserAgent,
		c.HTTP.TimeoutSeconds,
		c.Weather.BaseURL,
		c.Weather.TimeoutSeconds,
		c.Pricing.BaseURL,
		c.Pricing.APIVersion,
		c.Pricing.MaxPages,
		c.Pricing.TimeoutSeconds,
		c.CharCount.Endpoint,
		c.CharCount.TimeoutSeconds,
		c.Legal.DBPath,
		c.Semantic.Backend,
		c.Semantic.DBPath,
		c.Semantic.Threshold,
		c.Semantic.Count,
		orNotConfigured(c.Semantic.SupabaseURL),
		redactAPIKey(c.Semantic.SupabaseKey),
		orNotConfigured(c.Semantic.AzureEndpoint),
		redactAPIKey(c.Semantic.AzureAPIKey),
		orNotConfigured(c.Semantic.AzureAPIVersion),
		c.Semantic.Deployment,
	)
}

func orNotConfigured(value string) string {
	if value == "" {
		return "(not configured)"
	}
	return value
}

func redactAPIKey(value string) string {
	if value == "" {
		return "(not configured)"
	}
	if len(value) > 8 {
		return value[:8] + "..."
	}
	return "***"
}
