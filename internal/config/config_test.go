package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg == nil {
		t.Fatal("DefaultConfig returned nil")
	}
	if cfg.Patient.Language != DefaultLanguage {
		t.Errorf("language = %q, want %q", cfg.Patient.Language, DefaultLanguage)
	}
	if cfg.Alarm.RepeatSeconds != DefaultRepeatSeconds {
		t.Errorf("repeatSeconds = %d, want %d", cfg.Alarm.RepeatSeconds, DefaultRepeatSeconds)
	}
	if cfg.Alarm.SnoozeMinutes != DefaultSnoozeMinutes {
		t.Errorf("snoozeMinutes = %d, want %d", cfg.Alarm.SnoozeMinutes, DefaultSnoozeMinutes)
	}
	if cfg.Gateway.Host != DefaultHost {
		t.Errorf("host = %q, want %q", cfg.Gateway.Host, DefaultHost)
	}
	if cfg.Gateway.Port != DefaultPort {
		t.Errorf("port = %d, want %d", cfg.Gateway.Port, DefaultPort)
	}
	if !cfg.Channels.WebUI.Enabled {
		t.Error("webui should be enabled by default")
	}
	if cfg.Channels.Telegram.Enabled {
		t.Error("telegram should be disabled by default")
	}
}

func TestLoadConfig_NoFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.Patient.Language != DefaultLanguage {
		t.Errorf("expected default language %q, got %q", DefaultLanguage, cfg.Patient.Language)
	}
}

func TestLoadConfig_FromFile(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	cfgDir := filepath.Join(tmpDir, ".meditime")
	if err := os.MkdirAll(cfgDir, 0755); err != nil {
		t.Fatal(err)
	}

	fileCfg := map[string]any{
		"patient": map[string]any{"name": "Maria", "language": "es"},
		"channels": map[string]any{
			"telegram": map[string]any{"enabled": true, "token": "tok123"},
		},
	}
	data, _ := json.Marshal(fileCfg)
	if err := os.WriteFile(filepath.Join(cfgDir, "config.json"), data, 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.Patient.Name != "Maria" {
		t.Errorf("name = %q, want Maria", cfg.Patient.Name)
	}
	if cfg.Patient.Language != "es" {
		t.Errorf("language = %q, want es", cfg.Patient.Language)
	}
	if !cfg.Channels.Telegram.Enabled || cfg.Channels.Telegram.Token != "tok123" {
		t.Errorf("telegram config not loaded: %+v", cfg.Channels.Telegram)
	}
	// Unset fields keep defaults.
	if cfg.Alarm.RepeatSeconds != DefaultRepeatSeconds {
		t.Errorf("repeatSeconds = %d, want default", cfg.Alarm.RepeatSeconds)
	}
}

func TestLoadConfig_BadJSON(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	cfgDir := filepath.Join(tmpDir, ".meditime")
	os.MkdirAll(cfgDir, 0755)
	os.WriteFile(filepath.Join(cfgDir, "config.json"), []byte("{invalid"), 0644)

	if _, err := LoadConfig(); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("MEDITIME_PATIENT_NAME", "Luc")
	t.Setenv("MEDITIME_LANGUAGE", "fr")
	t.Setenv("MEDITIME_TELEGRAM_TOKEN", "env-token")
	t.Setenv("MEDITIME_PORT", "9999")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.Patient.Name != "Luc" {
		t.Errorf("name = %q, want Luc", cfg.Patient.Name)
	}
	if cfg.Patient.Language != "fr" {
		t.Errorf("language = %q, want fr", cfg.Patient.Language)
	}
	if cfg.Channels.Telegram.Token != "env-token" {
		t.Errorf("token = %q, want env-token", cfg.Channels.Telegram.Token)
	}
	if cfg.Gateway.Port != 9999 {
		t.Errorf("port = %d, want 9999", cfg.Gateway.Port)
	}
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg := DefaultConfig()
	cfg.Patient.Name = "Sam"
	cfg.Channels.WhatsApp.Enabled = true
	cfg.Channels.WhatsApp.JID = "123456789"

	if err := SaveConfig(cfg); err != nil {
		t.Fatalf("SaveConfig error: %v", err)
	}

	loaded, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if loaded.Patient.Name != "Sam" {
		t.Errorf("name = %q, want Sam", loaded.Patient.Name)
	}
	if !loaded.Channels.WhatsApp.Enabled || loaded.Channels.WhatsApp.JID != "123456789" {
		t.Errorf("whatsapp config not round-tripped: %+v", loaded.Channels.WhatsApp)
	}
}

func TestConfigPaths(t *testing.T) {
	t.Setenv("HOME", "/tmp/home")
	if got := ConfigDir(); got != "/tmp/home/.meditime" {
		t.Errorf("ConfigDir = %q", got)
	}
	if got := ConfigPath(); got != filepath.Join("/tmp/home/.meditime", "config.json") {
		t.Errorf("ConfigPath = %q", got)
	}
	if got := DataDir(); got != filepath.Join("/tmp/home/.meditime", "data") {
		t.Errorf("DataDir = %q", got)
	}
}
