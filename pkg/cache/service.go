package cache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
)

// Settings represents persistent device settings
type Settings struct {
	LastActive   map[string]int64  `json:"lastActive"`
	LastRun      map[string]string `json:"lastRun"`
	PinnedSerial string            `json:"pinnedSerial"`
}

// Service keeps the device selection between invocations
type Service struct {
	// Paths
	configDir    string
	settingsPath string

	mu           sync.RWMutex
	lastActive   map[string]int64
	lastRun      map[string]string
	pinnedSerial string

	// Logger function (optional)
	logFunc func(format string, args ...interface{})
}

// Config for creating a new Service
type Config struct {
	ConfigDir string
	LogFunc   func(format string, args ...interface{})
}

// New creates a new Service and loads the persisted settings
func New(cfg Config) (*Service, error) {
	configDir := cfg.ConfigDir
	if configDir == "" {
		var err error
		configDir, err = os.UserConfigDir()
		if err != nil {
			configDir = os.TempDir()
		}
		configDir = filepath.Join(configDir, "Fleetbench")
	}

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return nil, err
	}

	s := &Service{
		configDir:    configDir,
		settingsPath: filepath.Join(configDir, "settings.json"),
		lastActive:   make(map[string]int64),
		lastRun:      make(map[string]string),
		logFunc:      cfg.LogFunc,
	}
	s.loadSettings()

	return s, nil
}

func (s *Service) log(format string, args ...interface{}) {
	if s.logFunc != nil {
		s.logFunc(format, args...)
	}
}

// ========================================
// Settings Methods
// ========================================

// GetLastActive returns the last active timestamp for a device
func (s *Service) GetLastActive(deviceID string) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActive[deviceID]
}

// SetLastActive updates the last active timestamp for a device
func (s *Service) SetLastActive(deviceID string, timestamp int64) {
	s.mu.Lock()
	s.lastActive[deviceID] = timestamp
	s.mu.Unlock()
}

// GetAllLastActive returns a copy of all last active timestamps
func (s *Service) GetAllLastActive() map[string]int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make(map[string]int64, len(s.lastActive))
	for k, v := range s.lastActive {
		result[k] = v
	}
	return result
}

// GetLastRun returns the id of the last experiment run on a device
func (s *Service) GetLastRun(deviceID string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastRun[deviceID]
}

// SetLastRun remembers the latest run of a device
func (s *Service) SetLastRun(deviceID, runID string) {
	s.mu.Lock()
	s.lastRun[deviceID] = runID
	s.mu.Unlock()
}

// GetPinnedSerial returns the pinned device serial
func (s *Service) GetPinnedSerial() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pinnedSerial
}

// SetPinnedSerial sets the pinned device serial
func (s *Service) SetPinnedSerial(serial string) {
	s.mu.Lock()
	s.pinnedSerial = serial
	s.mu.Unlock()
}

// SaveSettings persists settings to disk
func (s *Service) SaveSettings() error {
	s.mu.RLock()
	settings := Settings{
		LastActive:   make(map[string]int64, len(s.lastActive)),
		LastRun:      make(map[string]string, len(s.lastRun)),
		PinnedSerial: s.pinnedSerial,
	}
	for k, v := range s.lastActive {
		settings.LastActive[k] = v
	}
	for k, v := range s.lastRun {
		settings.LastRun[k] = v
	}
	s.mu.RUnlock()

	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.settingsPath, data, 0644)
}

func (s *Service) loadSettings() {
	data, err := os.ReadFile(s.settingsPath)
	if err != nil {
		return
	}
	var settings Settings
	if err := json.Unmarshal(data, &settings); err != nil {
		s.log("Ignoring unreadable settings %s: %v", s.settingsPath, err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if settings.LastActive != nil {
		s.lastActive = settings.LastActive
	}
	if settings.LastRun != nil {
		s.lastRun = settings.LastRun
	}
	s.pinnedSerial = settings.PinnedSerial
}

// ConfigDir returns the configuration directory path
func (s *Service) ConfigDir() string {
	return s.configDir
}

// SettingsPath returns the settings file path
func (s *Service) SettingsPath() string {
	return s.settingsPath
}

// Close saves settings before shutdown
func (s *Service) Close() error {
	if err := s.SaveSettings(); err != nil {
		s.log("Error saving settings on close: %v", err)
		return err
	}
	return nil
}
