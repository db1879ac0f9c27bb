package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"
)

const appName = "barnacle"

// Mount backends understood by the overlay package.
const (
	BackendFuse   = "fuse"
	BackendKernel = "kernel"
)

// Config holds all configuration for the application.
// Values are loaded by Viper from a config file and/or environment variables.
type Config struct {
	LibraryDir    string `mapstructure:"BARNACLE_LIBRARY_DIR"`
	LogFile       string `mapstructure:"BARNACLE_LOG_FILE"`
	LogLevel      string `mapstructure:"BARNACLE_LOG_LEVEL"`
	MountBackend  string `mapstructure:"BARNACLE_MOUNT_BACKEND"`
	FuseOverlayFS string `mapstructure:"BARNACLE_FUSE_OVERLAYFS"`  // fuse-overlayfs binary
	Fusermount    string `mapstructure:"BARNACLE_FUSERMOUNT"`      // binary used to unmount FUSE mounts
	PostMountHook string `mapstructure:"BARNACLE_POST_MOUNT_HOOK"` // optional command run after every mount
	DatabasePath  string `mapstructure:"-"`                        // Not from env, derived
}

var envKeys = []string{
	"BARNACLE_LIBRARY_DIR",
	"BARNACLE_LOG_FILE",
	"BARNACLE_LOG_LEVEL",
	"BARNACLE_MOUNT_BACKEND",
	"BARNACLE_FUSE_OVERLAYFS",
	"BARNACLE_FUSERMOUNT",
	"BARNACLE_POST_MOUNT_HOOK",
}

// LoadConfig reads configuration from the .env file in path (optional) and
// environment variables, fills defaults and makes sure the library exists.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.AddConfigPath(filepath.Join(xdg.ConfigHome, appName))
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	vipErr := viper.ReadInConfig()
	if _, ok := vipErr.(viper.ConfigFileNotFoundError); ok {
		slog.Debug("Config file (.env) not found, relying on environment variables.")
	} else if vipErr != nil {
		return Config{}, fmt.Errorf("fatal error config file: %w", vipErr)
	}

	viper.AutomaticEnv()
	for _, key := range envKeys {
		if err := viper.BindEnv(key); err != nil {
			slog.Warn("Unable to bind env var", "key", key, "error", err)
		}
	}

	if err := viper.Unmarshal(&config); err != nil {
		return Config{}, fmt.Errorf("unable to decode into struct, %w", err)
	}

	processConfigDefaults(&config)
	if err := validateAndEnsureDirectories(&config); err != nil {
		return Config{}, err
	}
	return config, nil
}

// processConfigDefaults fills every unset field with its XDG-derived default.
func processConfigDefaults(config *Config) {
	if config.LibraryDir == "" {
		config.LibraryDir = filepath.Join(xdg.DataHome, appName, "library")
	}
	if config.LogFile == "" {
		config.LogFile = filepath.Join(xdg.StateHome, appName, appName+".log")
	}
	if config.LogLevel == "" {
		config.LogLevel = "info"
	}
	config.MountBackend = strings.ToLower(strings.TrimSpace(config.MountBackend))
	if config.MountBackend == "" {
		config.MountBackend = BackendFuse
	}
	if config.FuseOverlayFS == "" {
		config.FuseOverlayFS = "fuse-overlayfs"
	}
	if config.Fusermount == "" {
		config.Fusermount = "fusermount3"
	}
}

// validateAndEnsureDirectories checks the values processConfigDefaults cannot
// fix and creates the library skeleton.
func validateAndEnsureDirectories(config *Config) error {
	if config.LibraryDir == "" {
		return fmt.Errorf("BARNACLE_LIBRARY_DIR is required")
	}
	switch config.MountBackend {
	case BackendFuse, BackendKernel:
	default:
		return fmt.Errorf("unknown mount backend %q (expected %q or %q)", config.MountBackend, BackendFuse, BackendKernel)
	}

	abs, err := filepath.Abs(config.LibraryDir)
	if err != nil {
		return fmt.Errorf("resolving library directory: %w", err)
	}
	config.LibraryDir = abs

	gamesDir := filepath.Join(config.LibraryDir, "games")
	if _, err := os.Stat(gamesDir); os.IsNotExist(err) {
		slog.Info("Library directory does not exist, creating it", "path", config.LibraryDir)
		if err := os.MkdirAll(gamesDir, 0755); err != nil {
			return fmt.Errorf("creating library directory: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("checking library directory: %w", err)
	}

	config.DatabasePath = filepath.Join(config.LibraryDir, appName+".db")
	return nil
}
