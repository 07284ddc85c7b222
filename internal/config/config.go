package config

import (
	"os"
	"path/filepath"
)

type Config struct {
	Server  ServerConfig
	Storage StorageConfig
	Sync    SyncConfig
	Log     LogConfig
}

type ServerConfig struct {
	Port int
}

type StorageConfig struct {
	DataDir string
}

// SyncConfig controls the two sync channels. StorageLocation is the
// peer-facing preference ("sync" or "local"); stylist passes it through
// the sync payload without interpreting it.
type SyncConfig struct {
	File            string
	FileEnabled     bool
	PushEnabled     bool
	StorageLocation string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	dataDir := defaultDataDir()
	return Config{
		Server: ServerConfig{
			Port: 8765,
		},
		Storage: StorageConfig{
			DataDir: dataDir,
		},
		Sync: SyncConfig{
			File:            filepath.Join(dataDir, "profiles-sync.json"),
			FileEnabled:     true,
			PushEnabled:     true,
			StorageLocation: "sync",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			return "stylist-data"
		}
	}
	return filepath.Join(dir, "stylist")
}

// Load reads configuration from the JSON config file at
// $XDG_CONFIG_HOME/stylist/config.json, then applies STYLIST_* environment
// overrides.
func Load() (Config, error) {
	return loadWith(newFileBackend())
}

func loadWith(b Backend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	return cfg, nil
}
