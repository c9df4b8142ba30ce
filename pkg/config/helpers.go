package config

import (
	"os"
	"path/filepath"

	"github.com/glorpus-work/cdse/pkg/errors"
)

// GetDefaultConfigPath returns the default path of the config file.
func GetDefaultConfigPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", errors.Wrap(err, "failed to determine user config directory")
	}
	return filepath.Join(configDir, "cdse", "config.yaml"), nil
}
