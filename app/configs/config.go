package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

type Config struct {
	Assistant AssistantConfig `json:"assistant"`
	Model     ModelConfig     `json:"model"`
	Sweep     SweepConfig     `json:"sweep"`
}

type AssistantConfig struct {
	Name           string `json:"name"`
	UserName       string `json:"user_name"`
	HistoryLimit   int    `json:"history_limit"`
	BirthdayWindow int    `json:"birthday_window_days"`
}

type ModelConfig struct {
	BaseURL          string  `json:"base_url"`
	Name             string  `json:"name"`
	MaxTokens        int     `json:"max_tokens"`
	Temperature      float64 `json:"temperature"`
	TopP             float64 `json:"top_p"`
	CompleteTimeout  int     `json:"complete_timeout_sec"`
	WarmupTimeoutSec int     `json:"warmup_timeout_sec"`
}

type SweepConfig struct {
	IntervalSec  int `json:"interval_sec"`
	DispatchSec  int `json:"dispatch_sec"`
	RunTimeout   int `json:"run_timeout_sec"`
	DeliverLimit int `json:"deliver_limit"`
}

type Manager struct {
	path string
	mu   sync.RWMutex
	cfg  Config
}

func DefaultPath() string {
	return filepath.Join("config", "config.json")
}

func NewManager(path string) (*Manager, error) {
	cfg := defaultConfig()
	mgr := &Manager{
		path: path,
		cfg:  cfg,
	}
	if err := mgr.load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	}
	if err := mgr.save(); err != nil {
		return nil, err
	}
	return mgr, nil
}

func (m *Manager) Get() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

func (m *Manager) Update(apply func(*Config)) (Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	apply(&m.cfg)
	applyDefaults(&m.cfg)
	if err := m.saveLocked(); err != nil {
		return Config{}, err
	}
	return m.cfg, nil
}

func (m *Manager) load() error {
	data, err := os.ReadFile(m.path)
	if err != nil {
		return err
	}
	var fileCfg Config
	if err := json.Unmarshal(data, &fileCfg); err != nil {
		return err
	}
	m.cfg = fileCfg
	applyDefaults(&m.cfg)
	return nil
}

func (m *Manager) save() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveLocked()
}

func (m *Manager) saveLocked() error {
	if err := os.MkdirAll(filepath.Dir(m.path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(m.cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(m.path, data, 0644)
}

func defaultConfig() Config {
	return Config{
		Assistant: AssistantConfig{
			Name:           "Buddy",
			UserName:       "User",
			HistoryLimit:   10,
			BirthdayWindow: 14,
		},
		Model: ModelConfig{
			BaseURL:          "http://127.0.0.1:8081/v1",
			Name:             "llama-3.2-3b-instruct",
			MaxTokens:        512,
			Temperature:      0.7,
			TopP:             0.9,
			CompleteTimeout:  120,
			WarmupTimeoutSec: 30,
		},
		Sweep: SweepConfig{
			IntervalSec:  900,
			DispatchSec:  60,
			RunTimeout:   120,
			DeliverLimit: 20,
		},
	}
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Assistant.Name) == "" {
		cfg.Assistant.Name = "Buddy"
	}
	if strings.TrimSpace(cfg.Assistant.UserName) == "" {
		cfg.Assistant.UserName = "User"
	}
	if cfg.Assistant.HistoryLimit <= 0 {
		cfg.Assistant.HistoryLimit = 10
	}
	if cfg.Assistant.BirthdayWindow <= 0 {
		cfg.Assistant.BirthdayWindow = 14
	}
	if strings.TrimSpace(cfg.Model.BaseURL) == "" {
		cfg.Model.BaseURL = "http://127.0.0.1:8081/v1"
	}
	if strings.TrimSpace(cfg.Model.Name) == "" {
		cfg.Model.Name = "llama-3.2-3b-instruct"
	}
	if cfg.Model.MaxTokens <= 0 {
		cfg.Model.MaxTokens = 512
	}
	if cfg.Model.Temperature <= 0 || cfg.Model.Temperature > 2 {
		cfg.Model.Temperature = 0.7
	}
	if cfg.Model.TopP <= 0 || cfg.Model.TopP > 1 {
		cfg.Model.TopP = 0.9
	}
	if cfg.Model.CompleteTimeout <= 0 {
		cfg.Model.CompleteTimeout = 120
	}
	if cfg.Model.WarmupTimeoutSec <= 0 {
		cfg.Model.WarmupTimeoutSec = 30
	}
	if cfg.Sweep.IntervalSec <= 0 {
		cfg.Sweep.IntervalSec = 900
	}
	if cfg.Sweep.DispatchSec <= 0 {
		cfg.Sweep.DispatchSec = 60
	}
	if cfg.Sweep.RunTimeout <= 0 {
		cfg.Sweep.RunTimeout = 120
	}
	if cfg.Sweep.DeliverLimit <= 0 {
		cfg.Sweep.DeliverLimit = 20
	}
}
