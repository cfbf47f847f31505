package config

import (
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load(filepath.Join(t.TempDir(), "missing.env"))

	if cfg.FadeIn != 300*time.Millisecond || cfg.FadeOut != 200*time.Millisecond {
		t.Errorf("fade durations = %v/%v, want 300ms/200ms", cfg.FadeIn, cfg.FadeOut)
	}
	if cfg.VolumeRamp != 50*time.Millisecond {
		t.Errorf("VolumeRamp = %v, want 50ms", cfg.VolumeRamp)
	}
	if cfg.DefaultVolume != 50 {
		t.Errorf("DefaultVolume = %d, want 50", cfg.DefaultVolume)
	}
	if cfg.CacheRequiredReady != 2 || cfg.CacheMaxRetries != 3 || cfg.CacheRetryDelay != time.Second {
		t.Errorf("cache config = %d/%d/%v", cfg.CacheRequiredReady, cfg.CacheMaxRetries, cfg.CacheRetryDelay)
	}
	if !slices.Equal(cfg.CatalogCategories, DefaultCategories) {
		t.Errorf("categories = %v", cfg.CatalogCategories)
	}
	if cfg.CatalogPollInterval != 30*time.Second {
		t.Errorf("CatalogPollInterval = %v, want 30s", cfg.CatalogPollInterval)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("FADE_IN_MS", "450")
	t.Setenv("FADE_OUT_MS", "1s")
	t.Setenv("MINIO_USE_SSL", "true")
	t.Setenv("CATALOG_CATEGORIES", " Rain , ,Forest")
	t.Setenv("CATALOG_CACHE_TTL", "0")
	t.Setenv("DEFAULT_VOLUME", "not-a-number")

	cfg := Load(filepath.Join(t.TempDir(), "missing.env"))

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"FadeIn", cfg.FadeIn, 450 * time.Millisecond},
		{"FadeOut", cfg.FadeOut, time.Second},
		{"MinioUseSSL", cfg.MinioUseSSL, true},
		{"CatalogCacheTTL", cfg.CatalogCacheTTL, time.Duration(0)},
		{"DefaultVolume", cfg.DefaultVolume, 50},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
	if !slices.Equal(cfg.CatalogCategories, []string{"Rain", "Forest"}) {
		t.Errorf("categories = %v", cfg.CatalogCategories)
	}
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(path, []byte("HTTP_ADDR=:9999\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	// godotenv 不会覆盖已有变量，先清掉
	t.Setenv("HTTP_ADDR", "")
	os.Unsetenv("HTTP_ADDR")

	cfg := Load(path)
	if cfg.HTTPAddr != ":9999" {
		t.Errorf("HTTPAddr = %q, want :9999", cfg.HTTPAddr)
	}
	os.Unsetenv("HTTP_ADDR")
}
