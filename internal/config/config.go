package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

const (
	DefaultHost          = "0.0.0.0"
	DefaultPort          = 18791
	DefaultBufSize       = 100
	DefaultLanguage      = "en"
	DefaultDose          = "20 mg"
	DefaultRepeatSeconds = 30
	DefaultSnoozeMinutes = 5
)

// Doses are the doses offered by clients; free text is accepted too.
var Doses = []string{"10 mg", "20 mg", "50 mg", "100 mg"}

type Config struct {
	Patient  PatientConfig  `json:"patient"`
	Alarm    AlarmConfig    `json:"alarm"`
	Channels ChannelsConfig `json:"channels"`
	Gateway  GatewayConfig  `json:"gateway"`
	History  HistoryConfig  `json:"history"`
}

type PatientConfig struct {
	Name     string `json:"name"`
	Language string `json:"language"` // BCP 47 tag for announcements
}

type AlarmConfig struct {
	RepeatSeconds int    `json:"repeatSeconds"` // announcement repeat while ringing
	SnoozeMinutes int    `json:"snoozeMinutes"`
	Voice         string `json:"voice,omitempty"` // preferred voice ID, overrides selection
}

type ChannelsConfig struct {
	Telegram TelegramConfig `json:"telegram"`
	WhatsApp WhatsAppConfig `json:"whatsapp"`
	WebUI    WebUIConfig    `json:"webui"`
}

type TelegramConfig struct {
	Enabled   bool     `json:"enabled"`
	Token     string   `json:"token"`
	ChatID    string   `json:"chatId,omitempty"` // default delivery target for rings
	AllowFrom []string `json:"allowFrom"`
	Proxy     string   `json:"proxy,omitempty"`
}

type WhatsAppConfig struct {
	Enabled   bool     `json:"enabled"`
	JID       string   `json:"jid,omitempty"` // default delivery target for rings
	StorePath string   `json:"storePath,omitempty"`
	AllowFrom []string `json:"allowFrom"`
}

type WebUIConfig struct {
	Enabled   bool     `json:"enabled"`
	AllowFrom []string `json:"allowFrom"`
}

type GatewayConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

type HistoryConfig struct {
	DBPath string `json:"dbPath,omitempty"`
}

func DefaultConfig() *Config {
	return &Config{
		Patient: PatientConfig{
			Language: DefaultLanguage,
		},
		Alarm: AlarmConfig{
			RepeatSeconds: DefaultRepeatSeconds,
			SnoozeMinutes: DefaultSnoozeMinutes,
		},
		Channels: ChannelsConfig{
			WebUI: WebUIConfig{Enabled: true},
		},
		Gateway: GatewayConfig{
			Host: DefaultHost,
			Port: DefaultPort,
		},
	}
}

func ConfigDir() string {
	home := os.Getenv("HOME")
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	return filepath.Join(home, ".meditime")
}

func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.json")
}

// DataDir holds the reminder store and history database.
func DataDir() string {
	return filepath.Join(ConfigDir(), "data")
}

func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(ConfigPath())
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if name := os.Getenv("MEDITIME_PATIENT_NAME"); name != "" {
		cfg.Patient.Name = name
	}
	if lang := os.Getenv("MEDITIME_LANGUAGE"); lang != "" {
		cfg.Patient.Language = lang
	}
	if token := os.Getenv("MEDITIME_TELEGRAM_TOKEN"); token != "" {
		cfg.Channels.Telegram.Token = token
	}
	if chatID := os.Getenv("MEDITIME_TELEGRAM_CHAT_ID"); chatID != "" {
		cfg.Channels.Telegram.ChatID = chatID
	}
	if jid := os.Getenv("MEDITIME_WHATSAPP_JID"); jid != "" {
		cfg.Channels.WhatsApp.JID = jid
	}
	if dbPath := os.Getenv("MEDITIME_HISTORY_DB"); dbPath != "" {
		cfg.History.DBPath = dbPath
	}
	if port := os.Getenv("MEDITIME_PORT"); port != "" {
		if parsed, err := strconv.Atoi(port); err == nil {
			cfg.Gateway.Port = parsed
		}
	}

	if cfg.Patient.Language == "" {
		cfg.Patient.Language = DefaultLanguage
	}
	if cfg.Alarm.RepeatSeconds <= 0 {
		cfg.Alarm.RepeatSeconds = DefaultRepeatSeconds
	}
	if cfg.Alarm.SnoozeMinutes <= 0 {
		cfg.Alarm.SnoozeMinutes = DefaultSnoozeMinutes
	}
	if cfg.Gateway.Port == 0 {
		cfg.Gateway.Port = DefaultPort
	}

	return cfg, nil
}

func SaveConfig(cfg *Config) error {
	dir := ConfigDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(ConfigPath(), data, 0644)
}
