package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":8080" {
		t.Errorf("ListenAddr = %q", cfg.ListenAddr)
	}
	if cfg.SQLitePath != "platescan.db" {
		t.Errorf("SQLitePath = %q", cfg.SQLitePath)
	}
	if cfg.MaxUploadBytes != 10<<20 {
		t.Errorf("MaxUploadBytes = %d", cfg.MaxUploadBytes)
	}
	if cfg.Workers != 2 {
		t.Errorf("Workers = %d", cfg.Workers)
	}
	if cfg.VisibilityTimeout != 2*time.Minute {
		t.Errorf("VisibilityTimeout = %s", cfg.VisibilityTimeout)
	}
	if cfg.Engine != "tesseract" {
		t.Errorf("Engine = %q", cfg.Engine)
	}
	if len(cfg.AllowedTypes) != 3 {
		t.Errorf("AllowedTypes = %v", cfg.AllowedTypes)
	}
	if cfg.MaxPageSize != 100 {
		t.Errorf("MaxPageSize = %d", cfg.MaxPageSize)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("LISTEN_ADDR", ":9090")
	t.Setenv("RECOGNITION_WORKERS", "8")
	t.Setenv("QUEUE_VISIBILITY_TIMEOUT", "30s")
	t.Setenv("ALLOWED_CONTENT_TYPES", "image/png, image/jpeg")
	t.Setenv("RECOGNITION_ENGINE", "stub")
	t.Setenv("PLATE_PATTERNS", "BR_MERCOSUL")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":9090" {
		t.Errorf("ListenAddr = %q", cfg.ListenAddr)
	}
	if cfg.Workers != 8 {
		t.Errorf("Workers = %d", cfg.Workers)
	}
	if cfg.VisibilityTimeout != 30*time.Second {
		t.Errorf("VisibilityTimeout = %s", cfg.VisibilityTimeout)
	}
	if len(cfg.AllowedTypes) != 2 || cfg.AllowedTypes[1] != "image/jpeg" {
		t.Errorf("AllowedTypes = %v", cfg.AllowedTypes)
	}
	if cfg.Engine != "stub" {
		t.Errorf("Engine = %q", cfg.Engine)
	}
	if len(cfg.PlatePatterns) != 1 || cfg.PlatePatterns[0] != "BR_MERCOSUL" {
		t.Errorf("PlatePatterns = %v", cfg.PlatePatterns)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("RECOGNITION_ENGINE", "gpt")
	if _, err := Load(); err == nil {
		t.Fatal("unknown engine should be rejected")
	}
	t.Setenv("RECOGNITION_ENGINE", "stub")
	t.Setenv("MAX_UPLOAD_BYTES", "-1")
	if _, err := Load(); err == nil {
		t.Fatal("negative MAX_UPLOAD_BYTES should be rejected")
	}
}

func TestMalformedNumbersFallBackToDefaults(t *testing.T) {
	t.Setenv("RECOGNITION_WORKERS", "many")
	t.Setenv("QUEUE_POLL_INTERVAL", "soon")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Workers != 2 {
		t.Errorf("Workers = %d, want default 2", cfg.Workers)
	}
	if cfg.PollInterval != 500*time.Millisecond {
		t.Errorf("PollInterval = %s, want default 500ms", cfg.PollInterval)
	}
}
