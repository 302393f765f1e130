package config

import (
	"log/slog"
	"os"
	"testing"
	"time"
)

var configEnvVars = []string{
	"COMMS_URL", "SERVICE_NAME",
	"CONSOLE_SUBJECT", "CONSOLE_CHANGE_EVENT_SUBJECT",
	"CONSOLE_REQUEST_TIMEOUT", "CONSOLE_SEED_FILE",
	"DATABASE_URL", "RUN_MIGRATIONS", "MIGRATION_PATH",
	"HTTP_PORT", "HEALTH_CHECK_TIMEOUT", "SETTINGS_BUCKET", "LOG_LEVEL",
}

// clearEnv unsets every config variable for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, env := range configEnvVars {
		t.Setenv(env, "")
		os.Unsetenv(env)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("config:config_test - unexpected error: %v", err)
	}

	if cfg.COMMSURL != "nats://127.0.0.1:4222" {
		t.Errorf("config:config_test - COMMSURL = %q, want %q", cfg.COMMSURL, "nats://127.0.0.1:4222")
	}
	if cfg.COMMSName != "standards-console" {
		t.Errorf("config:config_test - COMMSName = %q, want %q", cfg.COMMSName, "standards-console")
	}
	if cfg.ConsoleSubject != "" || cfg.ChangeEventSubject != "" {
		t.Errorf("config:config_test - subjects = %q/%q, want empty", cfg.ConsoleSubject, cfg.ChangeEventSubject)
	}
	if cfg.RequestTimeout != 25*time.Second {
		t.Errorf("config:config_test - RequestTimeout = %v, want 25s", cfg.RequestTimeout)
	}
	if cfg.SeedFile != "" {
		t.Errorf("config:config_test - SeedFile = %q, want empty", cfg.SeedFile)
	}
	if cfg.RunMigrations {
		t.Error("config:config_test - expected RunMigrations=false by default")
	}
	if cfg.MigrationPath != "migrations" {
		t.Errorf("config:config_test - MigrationPath = %q, want %q", cfg.MigrationPath, "migrations")
	}
	if cfg.HTTPPort != 8080 {
		t.Errorf("config:config_test - HTTPPort = %d, want 8080", cfg.HTTPPort)
	}
	if cfg.HealthCheckTimeout != 5*time.Second {
		t.Errorf("config:config_test - HealthCheckTimeout = %v, want 5s", cfg.HealthCheckTimeout)
	}
	if cfg.SettingsBucket != "console_settings" || !cfg.SettingsEnabled() {
		t.Errorf("config:config_test - SettingsBucket = %q, want console_settings enabled", cfg.SettingsBucket)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("config:config_test - LogLevel = %q, want %q", cfg.LogLevel, "info")
	}
	if err := cfg.ValidateForServe(); err != nil {
		t.Errorf("config:config_test - defaults should validate: %v", err)
	}
}

func TestLoadConfig_EnvironmentOverrides(t *testing.T) {
	clearEnv(t)
	overrides := map[string]string{
		"COMMS_URL":                    "nats://custom:4222",
		"SERVICE_NAME":                 "test-console",
		"CONSOLE_SUBJECT":              "custom.console",
		"CONSOLE_CHANGE_EVENT_SUBJECT": "custom.changed",
		"CONSOLE_REQUEST_TIMEOUT":      "10s",
		"CONSOLE_SEED_FILE":            "/tmp/standards.yaml",
		"DATABASE_URL":                 "postgres://test@localhost/test",
		"RUN_MIGRATIONS":               "true",
		"MIGRATION_PATH":               "/tmp/migrations",
		"HTTP_PORT":                    "9090",
		"HEALTH_CHECK_TIMEOUT":         "10s",
		"SETTINGS_BUCKET":              "-",
		"LOG_LEVEL":                    "debug",
	}
	for key, val := range overrides {
		t.Setenv(key, val)
	}

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("config:config_test - unexpected error: %v", err)
	}

	if cfg.COMMSURL != "nats://custom:4222" || cfg.COMMSName != "test-console" {
		t.Errorf("config:config_test - COMMS = %q/%q", cfg.COMMSURL, cfg.COMMSName)
	}
	if cfg.ConsoleSubject != "custom.console" || cfg.ChangeEventSubject != "custom.changed" {
		t.Errorf("config:config_test - subjects = %q/%q", cfg.ConsoleSubject, cfg.ChangeEventSubject)
	}
	if cfg.RequestTimeout != 10*time.Second {
		t.Errorf("config:config_test - RequestTimeout = %v, want 10s", cfg.RequestTimeout)
	}
	if cfg.SeedFile != "/tmp/standards.yaml" {
		t.Errorf("config:config_test - SeedFile = %q", cfg.SeedFile)
	}
	if cfg.DatabaseURL != "postgres://test@localhost/test" || !cfg.RunMigrations || cfg.MigrationPath != "/tmp/migrations" {
		t.Errorf("config:config_test - database = %q/%v/%q", cfg.DatabaseURL, cfg.RunMigrations, cfg.MigrationPath)
	}
	if cfg.HTTPPort != 9090 || cfg.HealthCheckTimeout != 10*time.Second {
		t.Errorf("config:config_test - http = %d/%v", cfg.HTTPPort, cfg.HealthCheckTimeout)
	}
	if cfg.SettingsEnabled() {
		t.Error("config:config_test - SETTINGS_BUCKET=- should disable settings")
	}
	if cfg.SlogLevel() != slog.LevelDebug {
		t.Errorf("config:config_test - SlogLevel = %v, want debug", cfg.SlogLevel())
	}
}

func TestLoadConfig_InvalidDuration(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONSOLE_REQUEST_TIMEOUT", "soon")
	if _, err := LoadConfig(); err == nil {
		t.Error("config:config_test - expected error for invalid duration")
	}
}

func TestSlogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"verbose": slog.LevelInfo,
	}
	for level, want := range tests {
		cfg := &Config{LogLevel: level}
		if got := cfg.SlogLevel(); got != want {
			t.Errorf("config:config_test - SlogLevel(%q) = %v, want %v", level, got, want)
		}
	}
}

func TestValidate(t *testing.T) {
	valid := Config{DatabaseURL: "postgres://x", RequestTimeout: time.Second, HealthCheckTimeout: time.Second, HTTPPort: 8080}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"missing database", func(c *Config) { c.DatabaseURL = "" }, true},
		{"zero request timeout", func(c *Config) { c.RequestTimeout = 0 }, true},
		{"zero health timeout", func(c *Config) { c.HealthCheckTimeout = 0 }, true},
		{"port out of range", func(c *Config) { c.HTTPPort = 70000 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			if err := cfg.ValidateForServe(); (err != nil) != tt.wantErr {
				t.Errorf("config:config_test - ValidateForServe() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	if err := (&Config{}).ValidateForDB(); err == nil {
		t.Error("config:config_test - ValidateForDB should require DATABASE_URL")
	}
}
