package cmd

import (
	"context"
	"testing"

	"AmbientFM/config"
	"AmbientFM/core/audio"
	"AmbientFM/core/catalog"
)

func TestNewDevice(t *testing.T) {
	tests := []struct {
		output string
		null   bool
	}{
		{"null", true},
		{"speaker", false},
		{"", false},
	}
	for _, tt := range tests {
		dev := newDevice(&config.Config{AudioOutput: tt.output, AudioBufferMS: 50})()
		_, isNull := dev.(*audio.NullDevice)
		if isNull != tt.null {
			t.Errorf("output %q: got %T", tt.output, dev)
		}
	}
}

func TestNewSupplier(t *testing.T) {
	ctx := context.Background()

	a := &app{cfg: &config.Config{CatalogSource: "local", CatalogDir: t.TempDir(), CatalogCacheTTL: 0}}
	s, err := a.newSupplier(ctx, nil)
	if err != nil {
		t.Fatalf("local: %v", err)
	}
	if _, ok := s.(*catalog.LocalSupplier); !ok || a.local == nil {
		t.Errorf("local source = %T", s)
	}

	for _, source := range []string{"minio", "ftp"} {
		a := &app{cfg: &config.Config{CatalogSource: source}}
		if _, err := a.newSupplier(ctx, nil); err == nil {
			t.Errorf("source %q: expected error", source)
		}
	}
}

func TestAppCloseWithoutComponents(t *testing.T) {
	closed := 0
	a := &app{closers: []func(){func() { closed++ }, func() { closed++ }}}
	a.close()
	if closed != 2 {
		t.Errorf("closers run = %d", closed)
	}
}
