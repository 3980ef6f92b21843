package cli

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultServer is the admin API address used when nothing is configured.
const DefaultServer = "http://localhost:8090"

// Config is the cepctl config file.
type Config struct {
	Server  string `yaml:"server"`
	NATSURL string `yaml:"nats_url"`
	Subject string `yaml:"subject"`
}

func DefaultConfig() *Config {
	return &Config{Server: DefaultServer}
}

// LoadConfig reads cfgFile, or $HOME/.cepctl/config.yaml when empty.
// A missing file yields the defaults.
func LoadConfig(cfgFile string) (*Config, error) {
	if cfgFile == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		cfgFile = filepath.Join(home, ".cepctl", "config.yaml")
	}

	cfg := DefaultConfig()

	data, err := os.ReadFile(cfgFile)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
