package db

import (
	"strings"
	"testing"

	"AmbientFM/config"
)

func TestDSN(t *testing.T) {
	cfg := &config.Config{
		DBUser:     "ambient",
		DBPassword: "p@ss",
		DBHost:     "db.local",
		DBPort:     "3307",
		DBName:     "ambientfm",
	}
	dsn := DSN(cfg)
	if !strings.HasPrefix(dsn, "ambient:p@ss@tcp(db.local:3307)/ambientfm?") {
		t.Errorf("DSN = %q", dsn)
	}
	for _, want := range []string{"parseTime=true", "charset=utf8mb4"} {
		if !strings.Contains(dsn, want) {
			t.Errorf("DSN %q missing %s", dsn, want)
		}
	}
}

func TestAutoMigrateWithoutConnection(t *testing.T) {
	GormDB = nil
	if err := AutoMigrateModels(); err == nil {
		t.Error("AutoMigrateModels without a connection returned nil")
	}
}
