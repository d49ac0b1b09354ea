package config

import (
	"os"
	"path/filepath"
)

type Config struct {
	DataDir string
	DBPath  string

	// LogFile is the rolling debug log written in the invocation directory,
	// independent of console verbosity.
	LogFile string
}

func New() (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	dataDir := getEnv("DTM_DATA_DIR", filepath.Join(homeDir, ".dtm"))

	c := &Config{
		DataDir: dataDir,
		DBPath:  filepath.Join(dataDir, "dtm.db"),
		LogFile: getEnv("DTM_LOG_FILE", "dtm_log.txt"),
	}

	return c, nil
}

func (c *Config) EnsureDataDir() error {
	return os.MkdirAll(c.DataDir, 0755)
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
