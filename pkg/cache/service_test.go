package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

func TestSettingsPersist(t *testing.T) {
	dir := t.TempDir()

	s, err := New(Config{ConfigDir: dir})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	s.SetPinnedSerial("0A211FDD4000GQ")
	s.SetLastActive("0A211FDD4000GQ", 1709287200)
	s.SetLastRun("0A211FDD4000GQ", "6f1c2d9e-8f0b-4b7a-9d1e-3c2a1b0f9e8d")
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	reopened, err := New(Config{ConfigDir: dir})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if got := reopened.GetPinnedSerial(); got != "0A211FDD4000GQ" {
		t.Errorf("pinned serial = %q", got)
	}
	if got := reopened.GetLastActive("0A211FDD4000GQ"); got != 1709287200 {
		t.Errorf("last active = %d", got)
	}
	if got := reopened.GetLastRun("0A211FDD4000GQ"); got != "6f1c2d9e-8f0b-4b7a-9d1e-3c2a1b0f9e8d" {
		t.Errorf("last run = %q", got)
	}
	if all := reopened.GetAllLastActive(); len(all) != 1 {
		t.Errorf("all last active = %v", all)
	}
}

func TestCorruptSettingsIgnored(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "settings.json"), []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	var logged []string
	s, err := New(Config{ConfigDir: dir, LogFunc: func(format string, args ...interface{}) {
		logged = append(logged, fmt.Sprintf(format, args...))
	}})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if s.GetPinnedSerial() != "" {
		t.Error("corrupt settings should leave defaults")
	}
	if len(logged) != 1 {
		t.Errorf("expected one log line, got %v", logged)
	}
	if s.SettingsPath() != filepath.Join(dir, "settings.json") || s.ConfigDir() != dir {
		t.Errorf("paths = %s, %s", s.ConfigDir(), s.SettingsPath())
	}
}
