// Package config loads storage-core configuration from the
// environment, per §6. Grounded on
// cmd/mindb-server/internal/config/config.go's LoadFromEnv/getEnv/
// getInt/getBool/getDuration helpers, adapted to the keys this core
// actually consults (buffer pool size, data directory, catalog/WAL
// mode, vacuum interval) plus the HTTP server settings that
// cmd/qindb-server reads; the teacher's auth knobs are not carried over.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Mode selects where the catalog or WAL lives, per the magic mode
// bits of §6.
type Mode string

const (
	ModeFile Mode = "file"
	ModeDB   Mode = "db"
)

// Config holds the environment-derived settings the engine reads at
// startup. Every key is optional except DataDir.
type Config struct {
	DataDir         string
	BufferPoolPages int
	CatalogMode     Mode
	WALMode         Mode
	VacuumInterval  time.Duration

	// The following are cmd/qindb-server concerns only, not consulted
	// by the engine itself, but loaded here alongside it so the server
	// binary has a single config surface to read at startup.
	HTTPAddr        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownGrace   time.Duration
	LogLevel        string
	ExecConcurrency int
}

// LoadFromEnv reads QINDB_* environment variables, applying the same
// defaulting convention as the teacher's config loader.
func LoadFromEnv() (*Config, error) {
	dataDir := os.Getenv("QINDB_DATA_DIR")
	if dataDir == "" {
		return nil, fmt.Errorf("config: QINDB_DATA_DIR is required")
	}

	catalogMode := Mode(getEnv("QINDB_CATALOG_MODE", string(ModeFile)))
	walMode := Mode(getEnv("QINDB_WAL_MODE", string(ModeFile)))
	if catalogMode != ModeFile && catalogMode != ModeDB {
		return nil, fmt.Errorf("config: invalid QINDB_CATALOG_MODE %q", catalogMode)
	}
	if walMode != ModeFile && walMode != ModeDB {
		return nil, fmt.Errorf("config: invalid QINDB_WAL_MODE %q", walMode)
	}

	return &Config{
		DataDir:         dataDir,
		BufferPoolPages: getInt("QINDB_BUFFER_POOL_PAGES", 1024),
		CatalogMode:     catalogMode,
		WALMode:         walMode,
		VacuumInterval:  getDuration("QINDB_VACUUM_INTERVAL", 60*time.Second),
		HTTPAddr:        getEnv("QINDB_HTTP_ADDR", ":8080"),
		ReadTimeout:     getDuration("QINDB_READ_TIMEOUT", 30*time.Second),
		WriteTimeout:    getDuration("QINDB_WRITE_TIMEOUT", 30*time.Second),
		IdleTimeout:     getDuration("QINDB_IDLE_TIMEOUT", 120*time.Second),
		ShutdownGrace:   getDuration("QINDB_SHUTDOWN_GRACE", 30*time.Second),
		LogLevel:        getEnv("QINDB_LOG_LEVEL", "info"),
		ExecConcurrency: getInt("QINDB_EXEC_CONCURRENCY", 32),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
