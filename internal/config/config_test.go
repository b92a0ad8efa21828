package config

import (
	"os"
	"strings"
	"testing"
)

func TestApplyDefaults(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()

	if cfg.HTTP.Port != 8080 {
		t.Errorf("HTTP.Port = %d, want 8080", cfg.HTTP.Port)
	}
	if cfg.Search.SemanticWeight != 0.7 || cfg.Search.KeywordWeight != 0.3 {
		t.Errorf("weights = %f/%f, want 0.7/0.3",
			cfg.Search.SemanticWeight, cfg.Search.KeywordWeight)
	}
	if cfg.Search.RelevanceThreshold != 0.6 {
		t.Errorf("RelevanceThreshold = %f, want 0.6", cfg.Search.RelevanceThreshold)
	}
	if cfg.Embedding.ChunkOverlap != cfg.Embedding.ChunkSize/10 {
		t.Errorf("ChunkOverlap = %d, want %d", cfg.Embedding.ChunkOverlap, cfg.Embedding.ChunkSize/10)
	}
	if cfg.Storage.KeyPrefix != "foliorag:" {
		t.Errorf("KeyPrefix = %q", cfg.Storage.KeyPrefix)
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		var cfg Config
		cfg.ApplyDefaults()
		cfg.Embedding.APIKey = "test-key"
		return cfg
	}

	t.Run("valid config passes", func(t *testing.T) {
		cfg := valid()
		if err := cfg.Validate(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("missing api key", func(t *testing.T) {
		cfg := valid()
		cfg.Embedding.APIKey = ""
		if err := cfg.Validate(); err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("overlap exceeds chunk size", func(t *testing.T) {
		cfg := valid()
		cfg.Embedding.ChunkOverlap = cfg.Embedding.ChunkSize
		if err := cfg.Validate(); err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("threshold out of range", func(t *testing.T) {
		cfg := valid()
		cfg.Search.RelevanceThreshold = 1.5
		if err := cfg.Validate(); err == nil {
			t.Fatal("expected error")
		}
	})
}

func TestExpandEnvVars(t *testing.T) {
	os.Setenv("FOLIORAG_TEST_KEY", "secret")
	defer os.Unsetenv("FOLIORAG_TEST_KEY")

	in := []byte("api_key: ${FOLIORAG_TEST_KEY}\nmodel: ${FOLIORAG_TEST_MISSING:-fallback-model}\n")
	out := string(expandEnvVars(in))

	if !strings.Contains(out, "api_key: secret") {
		t.Errorf("env var not expanded: %q", out)
	}
	if !strings.Contains(out, "model: fallback-model") {
		t.Errorf("default not applied: %q", out)
	}
}
