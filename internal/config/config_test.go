package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfig(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("ANALYTICS_TICK_INTERVAL", "30s")
	t.Setenv("REDIS_ENABLED", "false")
	t.Setenv("SIGNAL_STRATEGY", "weighted")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("Server.Port = %v, want %v", cfg.Server.Port, "9090")
	}
	if cfg.Analytics.TickInterval != 30*time.Second {
		t.Errorf("Analytics.TickInterval = %v, want %v", cfg.Analytics.TickInterval, 30*time.Second)
	}
	if cfg.Database.Redis.Enabled {
		t.Error("Database.Redis.Enabled = true, want false")
	}
	if cfg.Analytics.Strategy != "weighted" {
		t.Errorf("Analytics.Strategy = %v, want weighted", cfg.Analytics.Strategy)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	checks := []struct {
		name string
		got  time.Duration
		want time.Duration
	}{
		{"tokens ttl", cfg.Analytics.TokensTTL, 300 * time.Second},
		{"trades ttl", cfg.Analytics.TradesTTL, 60 * time.Second},
		{"holders ttl", cfg.Analytics.HoldersTTL, 300 * time.Second},
		{"history ttl", cfg.Analytics.HistoryTTL, time.Hour},
		{"ai signal ttl", cfg.Analytics.AISignalTTL, 2 * time.Hour},
		{"broadcast interval", cfg.Analytics.BroadcastInterval, 10 * time.Second},
		{"request timeout", cfg.Chain.RequestTimeout, 5 * time.Second},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}

	if len(cfg.Tokens) != 3 {
		t.Errorf("len(Tokens) = %d, want 3 default tokens", len(cfg.Tokens))
	}
}

func TestLoadTokens(t *testing.T) {
	dir := t.TempDir()

	valid := filepath.Join(dir, "tokens.yaml")
	content := `tokens:
  - address: "0x1111111111111111111111111111111111111111"
    symbol: AAA
    name: Token A
    active: true
  - address: "0x2222222222222222222222222222222222222222"
    symbol: BBB
    decimals: 6
    active: false
`
	if err := os.WriteFile(valid, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write tokens file: %v", err)
	}

	missingAddress := filepath.Join(dir, "broken.yaml")
	if err := os.WriteFile(missingAddress, []byte("tokens:\n  - symbol: XXX\n"), 0o600); err != nil {
		t.Fatalf("failed to write tokens file: %v", err)
	}

	t.Run("empty path returns defaults", func(t *testing.T) {
		tokens, err := LoadTokens("")
		if err != nil {
			t.Fatalf("LoadTokens() error = %v", err)
		}
		if len(tokens) != 3 || tokens[0].Symbol != "PEPE" {
			t.Errorf("LoadTokens(\"\") = %+v, want defaults", tokens)
		}
	})

	t.Run("parses yaml file", func(t *testing.T) {
		tokens, err := LoadTokens(valid)
		if err != nil {
			t.Fatalf("LoadTokens() error = %v", err)
		}
		if len(tokens) != 2 {
			t.Fatalf("len(tokens) = %d, want 2", len(tokens))
		}
		if tokens[0].Decimals != 18 {
			t.Errorf("tokens[0].Decimals = %d, want default 18", tokens[0].Decimals)
		}
		if tokens[1].Decimals != 6 || tokens[1].IsActive {
			t.Errorf("tokens[1] = %+v, want decimals 6 and inactive", tokens[1])
		}
	})

	t.Run("rejects entry without address", func(t *testing.T) {
		if _, err := LoadTokens(missingAddress); err == nil {
			t.Error("LoadTokens() error = nil, want error")
		}
	})

	t.Run("missing file", func(t *testing.T) {
		if _, err := LoadTokens(filepath.Join(dir, "nope.yaml")); err == nil {
			t.Error("LoadTokens() error = nil, want error")
		}
	})
}

func TestGetEnvAsBool(t *testing.T) {
	tests := []struct {
		name         string
		envValue     string
		defaultValue bool
		want         bool
	}{
		{name: "true value", envValue: "true", defaultValue: false, want: true},
		{name: "numeric false", envValue: "0", defaultValue: true, want: false},
		{name: "invalid falls back", envValue: "maybe", defaultValue: true, want: true},
		{name: "unset falls back", envValue: "", defaultValue: false, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_BOOL", tt.envValue)
			if got := getEnvAsBool("TEST_BOOL", tt.defaultValue); got != tt.want {
				t.Errorf("getEnvAsBool() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetEnvAsFloat(t *testing.T) {
	tests := []struct {
		name         string
		envValue     string
		defaultValue float64
		want         float64
	}{
		{name: "valid float", envValue: "2.5", defaultValue: 1, want: 2.5},
		{name: "invalid falls back", envValue: "abc", defaultValue: 1, want: 1},
		{name: "unset falls back", envValue: "", defaultValue: 7, want: 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_FLOAT", tt.envValue)
			if got := getEnvAsFloat("TEST_FLOAT", tt.defaultValue); got != tt.want {
				t.Errorf("getEnvAsFloat() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetEnvAsDuration(t *testing.T) {
	tests := []struct {
		name         string
		envValue     string
		defaultValue time.Duration
		want         time.Duration
	}{
		{name: "returns duration when valid", envValue: "30s", defaultValue: 10 * time.Second, want: 30 * time.Second},
		{name: "returns default when invalid", envValue: "invalid", defaultValue: 10 * time.Second, want: 10 * time.Second},
		{name: "returns default when not set", envValue: "", defaultValue: 10 * time.Second, want: 10 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_DURATION", tt.envValue)
			if got := getEnvAsDuration("TEST_DURATION", tt.defaultValue); got != tt.want {
				t.Errorf("getEnvAsDuration() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPostgresURL(t *testing.T) {
	cfg := PostgresConfig{Host: "db", Port: "5432", Database: "token_analytics", User: "analytics", Password: "p@ss/word"}
	want := "postgres://analytics:p%40ss%2Fword@db:5432/token_analytics?sslmode=disable"
	if got := cfg.URL(); got != want {
		t.Errorf("URL() = %q, want %q", got, want)
	}
}
