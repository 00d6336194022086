// Package config loads the daemon configuration from a TOML file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"

	"bountyledger/core/types"
)

type Config struct {
	ListenAddress      string `toml:"ListenAddress"`
	DataDir            string `toml:"DataDir"`
	Env                string `toml:"Env"`
	BootstrapAuthority string `toml:"BootstrapAuthority"`
	TrustedAuthority   string `toml:"TrustedAuthority"`
	MetricsEnabled     bool   `toml:"MetricsEnabled"`
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
		cfg.ListenAddress = "127.0.0.1:8683"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./bountyledger-data"
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *Config) validate() error {
	if _, err := cfg.ParseBootstrapAuthority(); err != nil {
		return err
	}
	if _, err := cfg.ParseTrustedAuthority(); err != nil {
		return err
	}
	return nil
}

// ParseBootstrapAuthority decodes the configured bootstrap authority address.
func (cfg *Config) ParseBootstrapAuthority() (types.Address, error) {
	return parseAddress("BootstrapAuthority", cfg.BootstrapAuthority)
}

// ParseTrustedAuthority decodes the configured trusted awarding authority.
func (cfg *Config) ParseTrustedAuthority() (types.Address, error) {
	return parseAddress("TrustedAuthority", cfg.TrustedAuthority)
}

func parseAddress(field, value string) (types.Address, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return types.Address{}, fmt.Errorf("config: %s must be set", field)
	}
	if !common.IsHexAddress(value) {
		return types.Address{}, fmt.Errorf("config: %s is not a valid hex address: %q", field, value)
	}
	return common.HexToAddress(value), nil
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{
		ListenAddress:  "127.0.0.1:8683",
		DataDir:        "./bountyledger-data",
		MetricsEnabled: true,
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("config: create directory for %s: %w", path, err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("config: create default %s: %w", path, err)
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return nil, fmt.Errorf("config: write default %s: %w", path, err)
	}
	// The default file deliberately leaves the authority fields empty; the
	// operator has to fill them in before the daemon will start.
	return cfg, nil
}
