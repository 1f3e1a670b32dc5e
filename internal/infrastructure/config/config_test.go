package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	content := `
site:
  id: "test-site"
database:
  path: "/tmp/test.db"
  wal_mode: true
  busy_timeout: 5
api:
  host: "0.0.0.0"
  port: 8080
vision:
  url: "http://vision.local/classify"
  timeout: 10
  min_confidence: 0.3
session:
  ttl: 10
security:
  jwt:
    secret: "test-secret-key-at-least-32-chars!"
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Site.ID != "test-site" {
		t.Errorf("Site.ID = %q, want %q", cfg.Site.ID, "test-site")
	}

	if cfg.Vision.URL != "http://vision.local/classify" {
		t.Errorf("Vision.URL = %q, want %q", cfg.Vision.URL, "http://vision.local/classify")
	}

	if got := cfg.GetVisionTimeout(); got != 10*time.Second {
		t.Errorf("GetVisionTimeout() = %v, want 10s", got)
	}

	if got := cfg.GetSessionTTL(); got != 10*time.Minute {
		t.Errorf("GetSessionTTL() = %v, want 10m", got)
	}
}

func TestLoad_Defaults(t *testing.T) {
	content := `
security:
  jwt:
    secret: "test-secret-key-at-least-32-chars!"
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Vision.MinConfidence != 0.3 {
		t.Errorf("Vision.MinConfidence = %v, want 0.3", cfg.Vision.MinConfidence)
	}
	if cfg.Session.TTL != 10 {
		t.Errorf("Session.TTL = %d, want 10", cfg.Session.TTL)
	}
	if cfg.Session.SingleUse {
		t.Error("Session.SingleUse should default to false")
	}
	if cfg.Kiosk.Sensor.RequiredConsecutive != 3 {
		t.Errorf("Sensor.RequiredConsecutive = %d, want 3", cfg.Kiosk.Sensor.RequiredConsecutive)
	}
	if got := cfg.Kiosk.Sensor.GetDebounceWindow(); got != 5*time.Second {
		t.Errorf("GetDebounceWindow() = %v, want 5s", got)
	}
	if got := cfg.Kiosk.Actuator.GetHold(); got != 2*time.Second {
		t.Errorf("GetHold() = %v, want 2s", got)
	}
	if got := cfg.Kiosk.GetClassificationTimeout(); got != 30*time.Second {
		t.Errorf("GetClassificationTimeout() = %v, want 30s", got)
	}
	if cfg.Kiosk.Notify.MaxAttempts != 5 {
		t.Errorf("Notify.MaxAttempts = %d, want 5", cfg.Kiosk.Notify.MaxAttempts)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "invalid: [yaml: content"))
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_MissingJWTSecret(t *testing.T) {
	content := `
database:
  path: "/tmp/test.db"
`
	_, err := Load(writeConfig(t, content))
	if err == nil {
		t.Fatal("Load() expected error for missing JWT secret, got nil")
	}
	if !strings.Contains(err.Error(), "jwt.secret") {
		t.Errorf("error = %v, want mention of jwt.secret", err)
	}
}

func TestLoad_InvalidSensorBand(t *testing.T) {
	content := `
security:
  jwt:
    secret: "test-secret-key-at-least-32-chars!"
kiosk:
  sensor:
    min_distance_cm: 60
    range_limit_cm: 50
`
	_, err := Load(writeConfig(t, content))
	if err == nil {
		t.Error("Load() expected error for inverted sensor band, got nil")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	content := `
database:
  path: "/tmp/test.db"
security:
  jwt:
    secret: "test-secret-key-at-least-32-chars!"
`
	t.Setenv("REVEND_DATABASE_PATH", "/tmp/override.db")
	t.Setenv("REVEND_VISION_URL", "http://override.local/classify")

	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.Path != "/tmp/override.db" {
		t.Errorf("Database.Path = %q, want env override", cfg.Database.Path)
	}
	if cfg.Vision.URL != "http://override.local/classify" {
		t.Errorf("Vision.URL = %q, want env override", cfg.Vision.URL)
	}
}

func TestValidate_InvalidTransport(t *testing.T) {
	cfg := defaultConfig()
	cfg.Security.JWT.Secret = "test-secret-key-at-least-32-chars!"
	cfg.Kiosk.Transport.Type = "carrier-pigeon"

	if err := cfg.Validate(); err == nil {
		t.Error("Validate() expected error for unknown transport type, got nil")
	}
}
