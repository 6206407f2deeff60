package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadConfigurationDefaults(t *testing.T) {
	cfg, err := LoadConfiguration("")
	if err != nil {
		t.Fatalf("LoadConfiguration with no file: %v", err)
	}
	if cfg.Version != 1 {
		t.Errorf("expected version 1, got %d", cfg.Version)
	}
	if cfg.Pagination.FontScale != 1.0 {
		t.Errorf("expected default font scale 1.0, got %v", cfg.Pagination.FontScale)
	}
	if cfg.Pagination.Viewport.Width <= 0 || cfg.Pagination.Viewport.Height <= 0 {
		t.Errorf("expected positive default viewport, got %+v", cfg.Pagination.Viewport)
	}
	if cfg.Gestures.VelocityThreshold != 0.5 {
		t.Errorf("expected default velocity threshold 0.5, got %v", cfg.Gestures.VelocityThreshold)
	}
	if cfg.Logging.ConsoleLogger.Level != "normal" {
		t.Errorf("expected default console logging level 'normal', got %q", cfg.Logging.ConsoleLogger.Level)
	}
}

func TestLoadConfigurationOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	overlay := `
pagination:
  font_scale: 1.5
  margin_size: 32
cache:
  directory: ` + dir + `
`
	if err := os.WriteFile(path, []byte(overlay), 0644); err != nil {
		t.Fatalf("unable to write overlay: %v", err)
	}

	cfg, err := LoadConfiguration(path)
	if err != nil {
		t.Fatalf("LoadConfiguration with overlay: %v", err)
	}
	if cfg.Pagination.FontScale != 1.5 {
		t.Errorf("overlay font scale not applied, got %v", cfg.Pagination.FontScale)
	}
	if cfg.Pagination.MarginSize != 32 {
		t.Errorf("overlay margin size not applied, got %d", cfg.Pagination.MarginSize)
	}
	// Untouched values keep template defaults.
	if cfg.Rendering.ColumnGap != 20 {
		t.Errorf("expected default column gap 20, got %d", cfg.Rendering.ColumnGap)
	}
}

func TestLoadConfigurationUnknownField(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	if err := os.WriteFile(path, []byte("no_such_section:\n  value: 1\n"), 0644); err != nil {
		t.Fatalf("unable to write overlay: %v", err)
	}
	if _, err := LoadConfiguration(path); err == nil {
		t.Error("expected unknown configuration field to fail decoding")
	}
}

func TestDumpRoundTrip(t *testing.T) {
	cfg, err := LoadConfiguration("")
	if err != nil {
		t.Fatalf("LoadConfiguration: %v", err)
	}
	data, err := Dump(cfg)
	if err != nil {
		t.Fatalf("Dump: %v", err)
	}
	if !strings.Contains(string(data), "font_scale") {
		t.Error("dumped configuration is missing pagination fields")
	}
}
