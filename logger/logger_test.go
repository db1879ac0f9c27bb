package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestInitLoggerWritesToFile(t *testing.T) {
	t.Cleanup(func() {
		ZapLogger = zap.NewNop()
		Log = ZapLogger.Sugar()
	})

	logPath := filepath.Join(t.TempDir(), "state", "barnacle.log")
	if err := InitLogger(logPath, "debug"); err != nil {
		t.Fatalf("InitLogger failed: %v", err)
	}

	Log.Debugw("deploying", zap.String("profile", "Main"))
	Sync()

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	if !strings.Contains(string(content), "Logger initialized") {
		t.Errorf("expected init message in log, got %q", content)
	}
	if !strings.Contains(string(content), "deploying") {
		t.Errorf("expected debug message in log, got %q", content)
	}
}

func TestInitLoggerUnknownLevelFallsBackToInfo(t *testing.T) {
	t.Cleanup(func() {
		ZapLogger = zap.NewNop()
		Log = ZapLogger.Sugar()
	})

	logPath := filepath.Join(t.TempDir(), "barnacle.log")
	if err := InitLogger(logPath, "chatty"); err != nil {
		t.Fatalf("InitLogger failed: %v", err)
	}

	Log.Debug("hidden")
	Log.Info("visible")
	Sync()

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	if strings.Contains(string(content), "hidden") {
		t.Error("debug message should be filtered at info level")
	}
	if !strings.Contains(string(content), "visible") {
		t.Error("info message should be logged")
	}
}
