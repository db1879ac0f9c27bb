package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
)

func TestProcessConfigDefaults(t *testing.T) {
	t.Run("default values", func(t *testing.T) {
		viper.Reset()
		cfg := Config{}
		processConfigDefaults(&cfg)

		if cfg.LibraryDir == "" {
			t.Error("Expected LibraryDir to have a default value")
		}
		if filepath.Base(cfg.LogFile) != "barnacle.log" {
			t.Errorf("Expected log file barnacle.log, got %s", cfg.LogFile)
		}
		if cfg.MountBackend != BackendFuse {
			t.Errorf("Expected MountBackend to be fuse, got %s", cfg.MountBackend)
		}
		if cfg.LogLevel != "info" {
			t.Errorf("Expected LogLevel to be info, got %s", cfg.LogLevel)
		}
		if cfg.FuseOverlayFS != "fuse-overlayfs" || cfg.Fusermount != "fusermount3" {
			t.Errorf("Unexpected FUSE binaries: %s, %s", cfg.FuseOverlayFS, cfg.Fusermount)
		}
	})

	t.Run("respects existing values", func(t *testing.T) {
		viper.Reset()
		cfg := Config{
			LibraryDir:   "/srv/mods",
			MountBackend: " Kernel ",
			LogLevel:     "debug",
		}
		processConfigDefaults(&cfg)

		if cfg.LibraryDir != "/srv/mods" {
			t.Errorf("Expected LibraryDir to stay /srv/mods, got %s", cfg.LibraryDir)
		}
		if cfg.MountBackend != BackendKernel {
			t.Errorf("Expected MountBackend to be normalized to kernel, got %q", cfg.MountBackend)
		}
		if cfg.LogLevel != "debug" {
			t.Errorf("Expected LogLevel to stay debug, got %s", cfg.LogLevel)
		}
	})
}

func TestValidateAndEnsureDirectories(t *testing.T) {
	tmpDir := t.TempDir()

	t.Run("missing library dir", func(t *testing.T) {
		cfg := Config{LibraryDir: "", MountBackend: BackendFuse}
		if err := validateAndEnsureDirectories(&cfg); err == nil {
			t.Error("Expected error for missing LibraryDir")
		}
	})

	t.Run("unknown backend", func(t *testing.T) {
		cfg := Config{LibraryDir: tmpDir, MountBackend: "unionfs"}
		if err := validateAndEnsureDirectories(&cfg); err == nil {
			t.Error("Expected error for unknown mount backend")
		}
	})

	t.Run("creates directories", func(t *testing.T) {
		libDir := filepath.Join(tmpDir, "library")
		cfg := Config{LibraryDir: libDir, MountBackend: BackendKernel}
		if err := validateAndEnsureDirectories(&cfg); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}

		if _, err := os.Stat(filepath.Join(libDir, "games")); os.IsNotExist(err) {
			t.Error("games directory was not created")
		}
		if cfg.DatabasePath != filepath.Join(libDir, "barnacle.db") {
			t.Errorf("Unexpected DatabasePath %s", cfg.DatabasePath)
		}
	})
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	libDir := filepath.Join(t.TempDir(), "lib")
	t.Setenv("BARNACLE_LIBRARY_DIR", libDir)
	t.Setenv("BARNACLE_MOUNT_BACKEND", "kernel")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.LibraryDir != libDir {
		t.Errorf("Expected LibraryDir %s, got %s", libDir, cfg.LibraryDir)
	}
	if cfg.MountBackend != BackendKernel {
		t.Errorf("Expected kernel backend, got %s", cfg.MountBackend)
	}
}
