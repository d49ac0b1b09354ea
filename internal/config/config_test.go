package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewDefaults(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory in this environment")
	}

	os.Unsetenv("DTM_DATA_DIR")
	os.Unsetenv("DTM_LOG_FILE")

	cfg, err := New()
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	if cfg.DataDir != filepath.Join(home, ".dtm") {
		t.Errorf("DataDir = %q, want %q", cfg.DataDir, filepath.Join(home, ".dtm"))
	}
	if cfg.DBPath != filepath.Join(cfg.DataDir, "dtm.db") {
		t.Errorf("DBPath = %q, want it under DataDir", cfg.DBPath)
	}
	if cfg.LogFile != "dtm_log.txt" {
		t.Errorf("LogFile = %q, want dtm_log.txt", cfg.LogFile)
	}
}

func TestNewEnvOverrides(t *testing.T) {
	dataDir := t.TempDir()
	t.Setenv("DTM_DATA_DIR", dataDir)
	t.Setenv("DTM_LOG_FILE", "custom.log")

	cfg, err := New()
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	if cfg.DataDir != dataDir {
		t.Errorf("DataDir = %q, want %q", cfg.DataDir, dataDir)
	}
	if cfg.LogFile != "custom.log" {
		t.Errorf("LogFile = %q, want custom.log", cfg.LogFile)
	}
}

func TestEnsureDataDir(t *testing.T) {
	dataDir := filepath.Join(t.TempDir(), "nested", ".dtm")
	t.Setenv("DTM_DATA_DIR", dataDir)

	cfg, err := New()
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if err := cfg.EnsureDataDir(); err != nil {
		t.Fatalf("EnsureDataDir returned error: %v", err)
	}

	info, err := os.Stat(dataDir)
	if err != nil || !info.IsDir() {
		t.Errorf("Data directory was not created: %v", err)
	}
}
