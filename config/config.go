package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

const (
	DefaultNetwork        = "MAIN_NET"
	DefaultMetricsAddress = ":9464"
	DefaultAPIAddress     = "127.0.0.1:8780"
)

type Config struct {
	DataDir          string `toml:"DataDir"`
	Network          string `toml:"Network"`
	Environment      string `toml:"Environment"`
	LogFile          string `toml:"LogFile"`
	MetricsAddress   string `toml:"MetricsAddress"`
	ParamsFile       string `toml:"ParamsFile"`
	PersistClosedCDP bool   `toml:"PersistClosedCDP"`
	// GenesisAccountsFile seeds the accounts of a fresh chain.
	GenesisAccountsFile string `toml:"GenesisAccountsFile"`
	// IndexerDSN enables the SQL event index. Postgres URLs use postgres,
	// anything else sqlite.
	IndexerDSN string    `toml:"IndexerDSN"`
	API        API       `toml:"API"`
	Telemetry  Telemetry `toml:"Telemetry"`
	Pauses     Pauses    `toml:"Pauses"`
}

// Load loads the configuration from the given path. A default file is
// written when none exists.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Network) == "" {
		cfg.Network = DefaultNetwork
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./cdpledger-data"
	}
	if strings.TrimSpace(cfg.MetricsAddress) == "" {
		cfg.MetricsAddress = DefaultMetricsAddress
	}
	if strings.TrimSpace(cfg.API.Address) == "" {
		cfg.API.Address = DefaultAPIAddress
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{Environment: "local"}
	applyDefaults(cfg)
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
