package config

import (
	"os"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	os.Unsetenv("FHIRPATH_STRICT_TYPES")
	os.Unsetenv("FHIRPATH_PLAN_CACHE_SIZE")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.LogLevel != "info" {
		t.Errorf("expected default log level info, got %s", cfg.LogLevel)
	}
	if cfg.PlanCacheSize != 256 {
		t.Errorf("expected default plan cache size 256, got %d", cfg.PlanCacheSize)
	}
	if cfg.StrictTypes {
		t.Error("expected strict types to default to false")
	}
}

func TestLoad_FromEnvironment(t *testing.T) {
	os.Setenv("FHIRPATH_STRICT_TYPES", "true")
	os.Setenv("FHIRPATH_PLAN_CACHE_SIZE", "16")
	defer os.Unsetenv("FHIRPATH_STRICT_TYPES")
	defer os.Unsetenv("FHIRPATH_PLAN_CACHE_SIZE")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !cfg.StrictTypes {
		t.Error("expected STRICT_TYPES to be picked up from the environment")
	}
	if cfg.PlanCacheSize != 16 {
		t.Errorf("expected plan cache size 16, got %d", cfg.PlanCacheSize)
	}
}

func TestConfig_IsDev(t *testing.T) {
	c := &Config{Env: "development"}
	if !c.IsDev() {
		t.Error("expected IsDev() to return true for development")
	}

	c.Env = "production"
	if c.IsDev() {
		t.Error("expected IsDev() to return false for production")
	}
}

func TestConfig_Validate(t *testing.T) {
	c := &Config{LogLevel: "debug", PlanCacheSize: 8}
	if err := c.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	c.LogLevel = "verbose"
	if err := c.Validate(); err == nil {
		t.Error("expected error for unknown log level")
	}

	c.LogLevel = "info"
	c.PlanCacheSize = -1
	if err := c.Validate(); err == nil {
		t.Error("expected error for negative cache size")
	}
}
