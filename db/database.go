package db

import (
	"fmt"
	"path/filepath"
	"time"

	"barnacle/logger"

	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/ncruces/go-sqlite3/gormlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Open connects to the SQLite database at dbPath and migrates the models.
func Open(dbPath string) (*gorm.DB, error) {
	newLogger := gormlogger.New(
		zap.NewStdLog(logger.ZapLogger),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			ParameterizedQueries:      true,
			Colorful:                  false,
		},
	)

	dsn := "file:" + filepath.ToSlash(dbPath) + "?_pragma=busy_timeout(10000)"
	gdb, err := gorm.Open(gormlite.Open(dsn), &gorm.Config{
		Logger:         newLogger,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database handle: %w", err)
	}
	// One connection keeps every transaction a consistent snapshot.
	sqlDB.SetMaxOpenConns(1)

	err = gdb.AutoMigrate(&Game{}, &Mod{}, &Profile{}, &ModEntry{}, &Tool{}, &Session{}, &Deployment{})
	if err != nil {
		return nil, fmt.Errorf("failed to migrate database schema: %w", err)
	}
	return gdb, nil
}
