package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config is the daemon configuration loaded from TOML.
type Config struct {
	// ListenAddress serves the operational HTTP surface (health, metrics).
	ListenAddress string `toml:"ListenAddress"`
	// DataDir holds the LevelDB state database.
	DataDir string `toml:"DataDir"`
	// AuthorityAddress is the hex address of the reward-claim signing
	// authority. Claims are rejected until one is configured.
	AuthorityAddress string `toml:"AuthorityAddress"`
	// MaxBatchSize caps entries per settlement batch. Zero selects the
	// engine default.
	MaxBatchSize int `toml:"MaxBatchSize"`
	// PausedModules lists module names halted at startup.
	PausedModules []string `toml:"PausedModules"`
	// AccrualIntervalSecs is the period of the background accrual sweep.
	AccrualIntervalSecs int `toml:"AccrualIntervalSecs"`
}

// Load loads the configuration from the given path, creating a default file
// when none exists.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}

	if strings.TrimSpace(cfg.ListenAddress) == "" {
		cfg.ListenAddress = ":8080"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./vault-data"
	}
	if cfg.PausedModules == nil {
		cfg.PausedModules = []string{}
	}
	if cfg.AccrualIntervalSecs == 0 {
		cfg.AccrualIntervalSecs = 60
	}

	return cfg, nil
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{
		ListenAddress:       ":8080",
		DataDir:             "./vault-data",
		PausedModules:       []string{},
		AccrualIntervalSecs: 60,
	}
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
