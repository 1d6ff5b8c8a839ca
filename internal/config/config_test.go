package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func validConfig() *Config {
	cfg := &Config{
		Environment: EnvironmentConfig{Mode: "paper", LogLevel: "info"},
		Broker:      BrokerConfig{Provider: "tinkoff", APIKey: "k", AccountID: "a"},
		Storage:     StorageConfig{Path: "data/state.json"},
		Schedule: ScheduleConfig{
			Timezone:     "Europe/Moscow",
			TradingStart: "10:05",
			TradingEnd:   "18:40",
		},
	}
	cfg.Normalize()
	return cfg
}

func TestLoad(t *testing.T) {
	configPath := filepath.Join("..", "..", "config.yaml.example")
	if _, err := Load(configPath); err != nil {
		t.Errorf("expected config to load successfully from example file, got error: %v", err)
	}
}

func TestLoad_InvalidPath(t *testing.T) {
	if _, err := Load("nonexistent.yaml"); err == nil {
		t.Error("expected error when loading nonexistent config file, got nil")
	}
}

func TestLoad_UnknownFields(t *testing.T) {
	const badYAML = `
environment: { mode: "paper", log_level: "info" }
broker: { provider: "tinkoff", api_key: "k", account_id: "a" }
storage: { path: "state.json" }
extra_unknown_key: true
`
	tmp := t.TempDir()
	path := filepath.Join(tmp, "cfg.yaml")
	if err := os.WriteFile(path, []byte(badYAML), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestValidate_HappyPath(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Errorf("expected valid config, got error: %v", err)
	}
}

func TestValidate_LiveModeRequiresAPIKey(t *testing.T) {
	cfg := validConfig()
	cfg.Environment.Mode = "live"
	cfg.Safety.DryRun = false
	cfg.Broker.APIKey = ""
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for missing broker.api_key in live mode")
	}
}

func TestValidate_LiveModeDryRunSkipsCredentialCheck(t *testing.T) {
	cfg := validConfig()
	cfg.Environment.Mode = "live"
	cfg.Safety.DryRun = true
	cfg.Broker.APIKey = ""
	cfg.Broker.AccountID = ""
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected dry-run live mode to skip credential validation, got: %v", err)
	}
}

func TestValidate_RejectsBadTradingWindow(t *testing.T) {
	cfg := validConfig()
	cfg.Schedule.TradingStart = "18:40"
	cfg.Schedule.TradingEnd = "10:05"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for trading_start after trading_end")
	}
}

func TestValidate_RejectsMissingStoragePath(t *testing.T) {
	cfg := validConfig()
	cfg.Storage.Path = "   "
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for whitespace-only storage path")
	}
}

func TestValidate_RejectsBadDashboardPort(t *testing.T) {
	cfg := validConfig()
	cfg.Dashboard.Enabled = true
	cfg.Dashboard.Port = 99999
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for out-of-range dashboard port")
	}
}

func TestNormalize_FillsFreeTradingDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.Normalize()
	if cfg.FreeTrading.MaxConcurrentPositions != 3 {
		t.Errorf("expected default max_concurrent_positions 3, got %d", cfg.FreeTrading.MaxConcurrentPositions)
	}
	if cfg.FreeTrading.PriceTick != 0.01 {
		t.Errorf("expected default price_tick 0.01, got %v", cfg.FreeTrading.PriceTick)
	}
	if cfg.Schedule.TradingStart != "10:05" || cfg.Schedule.TradingEnd != "18:40" {
		t.Errorf("expected MSK default trading window, got %s-%s", cfg.Schedule.TradingStart, cfg.Schedule.TradingEnd)
	}
}

func TestConfig_IsWithinTradingHours(t *testing.T) {
	cfg := &Config{Schedule: ScheduleConfig{
		Timezone:     "Europe/Moscow",
		TradingStart: "10:05",
		TradingEnd:   "18:40",
	}}

	tests := []struct {
		name     string
		timeStr  string
		expected bool
	}{
		{"during trading hours", "2026-07-31T12:00:00+03:00", true},
		{"before trading hours", "2026-07-31T09:00:00+03:00", false},
		{"after trading hours", "2026-07-31T19:00:00+03:00", false},
		{"weekend", "2026-08-01T12:00:00+03:00", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			testTime, err := time.Parse(time.RFC3339, tt.timeStr)
			if err != nil {
				t.Fatalf("failed to parse test time: %v", err)
			}
			result, err := cfg.IsWithinTradingHours(testTime)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result != tt.expected {
				t.Errorf("IsWithinTradingHours() = %v, expected %v", result, tt.expected)
			}
		})
	}
}

func TestDuration_FallsBackOnInvalidInput(t *testing.T) {
	if d := Duration("not-a-duration", 5*time.Second); d != 5*time.Second {
		t.Errorf("expected fallback duration, got %v", d)
	}
	if d := Duration("10s", 5*time.Second); d != 10*time.Second {
		t.Errorf("expected parsed duration, got %v", d)
	}
}
