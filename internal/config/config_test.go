package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func clearSecretEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{SupabaseURLKey, SupabaseKeyKey, AzureEndpointKey, AzureAPIKeyKey, AzureAPIVersionKey} {
		t.Setenv(key, "")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.Addr != ":8000" {
		t.Errorf("Expected server addr :8000, got %s", cfg.Server.Addr)
	}

	if cfg.HTTP.UserAgent != "weather-app/1.0" {
		t.Errorf("Expected user agent weather-app/1.0, got %s", cfg.HTTP.UserAgent)
	}

	if cfg.Pricing.MaxPages != 3 || cfg.Pricing.APIVersion != "2023-01-01-preview" {
		t.Errorf("Unexpected pricing defaults: %+v", cfg.Pricing)
	}

	if cfg.Semantic.Threshold != 0.5 || cfg.Semantic.Count != 3 {
		t.Errorf("Unexpected semantic defaults: %+v", cfg.Semantic)
	}

	if cfg.HasModule("semantic") {
		t.Error("Semantic module should be disabled by default")
	}
	if !cfg.HasModule("legal") {
		t.Error("Legal module should be enabled by default")
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config should be valid: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(cfg *Config)
		wantErr bool
	}{
		{
			name:    "valid config",
			modify:  func(cfg *Config) {},
			wantErr: false,
		},
		{
			name:    "empty addr",
			modify:  func(cfg *Config) { cfg.Server.Addr = "" },
			wantErr: true,
		},
		{
			name:    "no modules",
			modify:  func(cfg *Config) { cfg.Server.Modules = nil },
			wantErr: true,
		},
		{
			name:    "unknown transport",
			modify:  func(cfg *Config) { cfg.Server.Transports = []string{"stdio"} },
			wantErr: true,
		},
		{
			name:    "bad log level",
			modify:  func(cfg *Config) { cfg.Log.Level = "loud" },
			wantErr: true,
		},
		{
			name:    "zero timeout",
			modify:  func(cfg *Config) { cfg.Pricing.TimeoutSeconds = 0 },
			wantErr: true,
		},
		{
			name:    "unknown semantic backend",
			modify:  func(cfg *Config) { cfg.Semantic.Backend = "pinecone" },
			wantErr: true,
		},
		{
			name:    "threshold out of range",
			modify:  func(cfg *Config) { cfg.Semantic.Threshold = 1.5 },
			wantErr: true,
		},
		{
			name: "sqlite backend",
			modify: func(cfg *Config) {
				cfg.Semantic.Backend = "sqlite"
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSaveAndLoad(t *testing.T) {
	clearSecretEnv(t)
	configTestDir := filepath.Join(t.TempDir(), "config")
	SetConfigDir(configTestDir)

	// First load writes the default file
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Failed to load default config: %v", err)
	}
	configPath := filepath.Join(configTestDir, "config.yaml")
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		t.Fatal("Config file not created")
	}

	cfg.Server.Modules = []string{"weather"}
	cfg.Semantic.SupabaseKey = "should-not-be-written"
	if err := Save(cfg); err != nil {
		t.Fatalf("Failed to save config: %v", err)
	}

	data, _ := os.ReadFile(configPath)
	if strings.Contains(string(data), "should-not-be-written") {
		t.Error("Credentials should not be written to the config file")
	}

	loadedCfg, err := Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if len(loadedCfg.Server.Modules) != 1 || loadedCfg.Server.Modules[0] != "weather" {
		t.Errorf("Modules mismatch: %v", loadedCfg.Server.Modules)
	}
}

func TestLoadTOML(t *testing.T) {
	clearSecretEnv(t)
	configTestDir := filepath.Join(t.TempDir(), "config")
	SetConfigDir(configTestDir)
	os.MkdirAll(configTestDir, 0755)

	content := `
[server]
addr = ":9000"
modules = ["legal", "charcount"]

[log]
level = "debug"

[semantic]
backend = "sqlite"
count = 5
`
	if err := os.WriteFile(filepath.Join(configTestDir, "config.toml"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Failed to load TOML config: %v", err)
	}
	if cfg.Server.Addr != ":9000" || len(cfg.Server.Modules) != 2 {
		t.Errorf("Unexpected server config: %+v", cfg.Server)
	}
	if cfg.Log.Level != "debug" || cfg.Semantic.Backend != "sqlite" || cfg.Semantic.Count != 5 {
		t.Errorf("TOML values not applied: %+v %+v", cfg.Log, cfg.Semantic)
	}
	// untouched sections keep their defaults
	if cfg.Pricing.MaxPages != 3 {
		t.Errorf("Expected default max pages, got %d", cfg.Pricing.MaxPages)
	}
	if _, err := os.Stat(filepath.Join(configTestDir, "config.yaml")); !os.IsNotExist(err) {
		t.Error("Loading TOML should not write a YAML file")
	}
}

func TestLoadSecrets(t *testing.T) {
	clearSecretEnv(t)
	configTestDir := filepath.Join(t.TempDir(), "config")
	SetConfigDir(configTestDir)
	os.MkdirAll(configTestDir, 0755)

	secretsContent := `# credentials
SUPABASE_URL = https://project.supabase.co
SUPABASE_KEY=service-role-key
`
	os.WriteFile(filepath.Join(configTestDir, ".secrets"), []byte(secretsContent), 0600)
	t.Setenv(AzureAPIKeyKey, "env-azure-key")

	secrets, err := LoadSecrets()
	if err != nil {
		t.Fatalf("LoadSecrets failed: %v", err)
	}
	if secrets.Get(SupabaseURLKey) != "https://project.supabase.co" {
		t.Errorf("Unexpected supabase url: %q", secrets.Get(SupabaseURLKey))
	}
	if !secrets.Has(SupabaseKeyKey) || secrets.Has(AzureAPIKeyKey) {
		t.Error("Has should reflect the secrets file only")
	}
	if secrets.Lookup(AzureAPIKeyKey) != "env-azure-key" {
		t.Error("Lookup should fall back to the environment")
	}
	if secrets.GetOrDefault("MISSING", "fallback") != "fallback" {
		t.Error("GetOrDefault should return the default")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Semantic.SupabaseKey != "service-role-key" || cfg.Semantic.AzureAPIKey != "env-azure-key" {
		t.Errorf("Secrets not merged: %+v", cfg.Semantic)
	}
	if strings.Contains(cfg.String(), "service-role-key") {
		t.Error("String should redact credentials")
	}
}
