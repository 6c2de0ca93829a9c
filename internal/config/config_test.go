package config

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseDefaultConfig(t *testing.T) {
	cfg, err := parse(DefaultConfigYAML)
	if err != nil {
		t.Fatalf("failed to parse default config: %v", err)
	}

	if len(cfg.Sources.Feeds) == 0 {
		t.Error("expected feeds to be populated")
	}
	if cfg.Analysis.Threshold != 0.5 {
		t.Errorf("expected threshold 0.5, got %v", cfg.Analysis.Threshold)
	}
	if cfg.Scorer.Strategy != StrategyHeuristic {
		t.Errorf("expected strategy %q, got %q", StrategyHeuristic, cfg.Scorer.Strategy)
	}
	if cfg.Scorer.Timeout != 20*time.Second {
		t.Errorf("expected scorer timeout 20s, got %v", cfg.Scorer.Timeout)
	}
	if cfg.LLM.Model != "qwen2.5:7b" {
		t.Errorf("expected model 'qwen2.5:7b', got %q", cfg.LLM.Model)
	}
	if cfg.Server.Port != 8000 {
		t.Errorf("expected port 8000, got %d", cfg.Server.Port)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestParseMinimalConfig(t *testing.T) {
	data := []byte(`
analysis:
  threshold: 0.7
llm:
  provider: openai
server:
  port: 9000
`)
	cfg, err := parse(data)
	if err != nil {
		t.Fatalf("failed to parse minimal config: %v", err)
	}

	if cfg.Analysis.Threshold != 0.7 {
		t.Errorf("expected threshold 0.7, got %v", cfg.Analysis.Threshold)
	}
	if cfg.LLM.Provider != "openai" {
		t.Errorf("expected provider 'openai', got %q", cfg.LLM.Provider)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("expected port 9000, got %d", cfg.Server.Port)
	}
	// Unspecified fields keep their defaults.
	if cfg.LLM.OllamaURL != "http://localhost:11434" {
		t.Errorf("expected default ollama_url, got %q", cfg.LLM.OllamaURL)
	}
	if cfg.Analysis.Calibration != CalibrationIdentity {
		t.Errorf("expected default calibration, got %q", cfg.Analysis.Calibration)
	}
}

func TestParseWatchlistAddsToDefaults(t *testing.T) {
	cfg, err := parse([]byte("sources:\n  watchlist:\n    tabloid.example: Sensationalist\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Sources.Watchlist["tabloid.example"] != "Sensationalist" {
		t.Errorf("expected configured watchlist entry, got %v", cfg.Sources.Watchlist)
	}
	if _, ok := cfg.Sources.Watchlist["breitbart.com"]; !ok {
		t.Error("expected built-in watchlist entries to be kept")
	}
}

func TestParseInvalidYAML(t *testing.T) {
	if _, err := parse([]byte("analysis: [")); err == nil {
		t.Error("expected an error for malformed YAML")
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, DefaultConfigYAML, 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if len(cfg.Sources.Feeds) == 0 {
		t.Error("expected feeds to be populated from file")
	}
}

func TestLoadEmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Analysis.Threshold != 0.5 {
		t.Errorf("expected default threshold, got %v", cfg.Analysis.Threshold)
	}
}

func TestResolveConfigPathExplicitMissing(t *testing.T) {
	if _, err := ResolveConfigPath(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected an error for a missing explicit path")
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("MILCHECK_THRESHOLD", "0.65")
	t.Setenv("MILCHECK_SCORER", "ensemble")
	t.Setenv("LLM_PROVIDER", "gemini")
	t.Setenv("LLM_MODEL", "gemini-2.0-flash")
	t.Setenv("PORT", "9123")

	cfg := Default()
	if err := cfg.ApplyEnv(); err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	if cfg.Analysis.Threshold != 0.65 {
		t.Errorf("expected threshold 0.65, got %v", cfg.Analysis.Threshold)
	}
	if cfg.Scorer.Strategy != StrategyEnsemble {
		t.Errorf("expected ensemble, got %q", cfg.Scorer.Strategy)
	}
	if cfg.LLM.Provider != "gemini" || cfg.LLM.Model != "gemini-2.0-flash" {
		t.Errorf("unexpected llm settings: %+v", cfg.LLM)
	}
	if cfg.ListenAddr() != "127.0.0.1:9123" {
		t.Errorf("unexpected listen addr %q", cfg.ListenAddr())
	}
}

func TestApplyEnvRejectsBadThreshold(t *testing.T) {
	t.Setenv("MILCHECK_THRESHOLD", "high")
	if err := Default().ApplyEnv(); err == nil {
		t.Error("expected an error for a non-numeric threshold")
	}
}

func TestApplyEnvNaNThresholdFailsValidation(t *testing.T) {
	t.Setenv("MILCHECK_THRESHOLD", "NaN")
	cfg := Default()
	if err := cfg.ApplyEnv(); err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "analysis.threshold") {
		t.Errorf("expected an analysis.threshold error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"threshold zero", func(c *Config) { c.Analysis.Threshold = 0 }, "analysis.threshold"},
		{"threshold one", func(c *Config) { c.Analysis.Threshold = 1 }, "analysis.threshold"},
		{"threshold NaN", func(c *Config) { c.Analysis.Threshold = math.NaN() }, "analysis.threshold"},
		{"calibration", func(c *Config) { c.Analysis.Calibration = "isotonic" }, "analysis.calibration"},
		{"steepness", func(c *Config) {
			c.Analysis.Calibration = CalibrationLogistic
			c.Analysis.Steepness = 0
		}, "analysis.steepness"},
		{"strategy", func(c *Config) { c.Scorer.Strategy = "oracle" }, "scorer.strategy"},
		{"timeout", func(c *Config) { c.Scorer.Timeout = 0 }, "scorer.timeout"},
		{"model weight", func(c *Config) {
			c.Scorer.Strategy = StrategyEnsemble
			c.Scorer.ModelWeight = 1
		}, "scorer.model_weight"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected a validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}
