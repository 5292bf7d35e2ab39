package config

import (
	"flag"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	StorageModeInMemory = "in-memory"
	StorageModeDisk     = "disk"
	StorageModeExternal = "external"

	// DefaultDataPath is the sqlite file used when --storage=disk is set
	// without an explicit --data-path.
	DefaultDataPath = "/data/tokenpool.db"
)

// Config holds application configuration.
type Config struct {
	// Server configuration
	Port      string `yaml:"port"`
	DebugMode bool   `yaml:"debugMode"`

	// Storage configuration
	StorageMode     string `yaml:"storageMode"`
	DataPath        string `yaml:"dataPath"`
	DBConnectionURL string `yaml:"dbConnectionUrl"`

	// AdminAPIKey protects the administrative endpoints when set.
	AdminAPIKey string `yaml:"adminApiKey"`

	// ConfigFile is an optional YAML file overriding the values above.
	ConfigFile string `yaml:"-"`
}

// Load loads configuration from environment variables and command-line
// flags. Values from an optional YAML config file are merged afterwards
// via ApplyFile.
func Load() *Config {
	c := &Config{
		Port:            getEnvOrDefault("PORT", "8080"),
		DebugMode:       os.Getenv("DEBUG_MODE") == "true" || os.Getenv("DEBUG_MODE") == "1",
		StorageMode:     getEnvOrDefault("STORAGE_MODE", StorageModeInMemory),
		DataPath:        getEnvOrDefault("DATA_PATH", ""),
		DBConnectionURL: getEnvOrDefault("DB_CONNECTION_URL", ""),
		AdminAPIKey:     getEnvOrDefault("ADMIN_API_KEY", ""),
		ConfigFile:      getEnvOrDefault("CONFIG_FILE", ""),
	}

	c.bindFlags(flag.CommandLine)

	return c
}

// ApplyFile merges values from the YAML config file, if one was given.
// File values override environment and flag values where set.
func (c *Config) ApplyFile() error {
	if c.ConfigFile == "" {
		return nil
	}

	data, err := os.ReadFile(c.ConfigFile)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", c.ConfigFile, err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", c.ConfigFile, err)
	}

	return nil
}

// bindFlags will parse the given flagset and bind values to selected config options.
func (c *Config) bindFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.Port, "port", c.Port, "Port to listen on")
	fs.BoolVar(&c.DebugMode, "debug", c.DebugMode, "Enable debug logging and CORS")
	fs.StringVar(&c.StorageMode, "storage", c.StorageMode, "Storage mode: in-memory, disk or external")
	fs.StringVar(&c.DataPath, "data-path", c.DataPath, "SQLite database path for --storage=disk")
	fs.StringVar(&c.DBConnectionURL, "db-connection-url", c.DBConnectionURL, "PostgreSQL URL for --storage=external")
	fs.StringVar(&c.ConfigFile, "config", c.ConfigFile, "Optional YAML configuration file")
}

// getEnvOrDefault gets environment variable or returns default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
