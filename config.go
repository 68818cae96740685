package waycache

import (
	"os"

	"gopkg.in/yaml.v3"
)

// FileConfig is the YAML configuration for the proxy binary.
type FileConfig struct {
	Port            int    `yaml:"port"`
	CacheDir        string `yaml:"cacheDir"`
	IndexFile       string `yaml:"indexFile"`
	BaseDate        int    `yaml:"baseDate"`
	DaySync         bool   `yaml:"daySync"`
	CacheWindowDays int    `yaml:"cacheWindowDays"`
	RequestDelayMs  int    `yaml:"requestDelayMs"`
	MaxRetries      int    `yaml:"maxRetries"`
	ArchiveURL      string `yaml:"archiveURL"`
	UserAgent       string `yaml:"userAgent"`
	ErrorListFile   string `yaml:"errorListFile"`
	AdListFile      string `yaml:"adListFile"`
	AllowTimeChange bool   `yaml:"allowTimeChange"`
}

// DefaultFileConfig returns the configuration used when no config file
// is given. The base date is read from flags or the config file; there
// is no sensible default era, so it stays at the historical default.
func DefaultFileConfig() FileConfig {
	return FileConfig{
		Port:            8002,
		CacheDir:        "./cache",
		IndexFile:       "cache-index.db",
		BaseDate:        20141010,
		CacheWindowDays: 30,
		RequestDelayMs:  1000,
		ErrorListFile:   "error_list",
		AdListFile:      "ad_list",
	}
}

// LoadConfig reads the YAML config file, applying defaults for
// anything the file leaves out.
func LoadConfig(filename string) (FileConfig, error) {
	config := DefaultFileConfig()
	configBytes, err := os.ReadFile(filename)
	if err != nil {
		return config, err
	}
	err = yaml.Unmarshal(configBytes, &config)
	return config, err
}
