// Package store persists the job table. Two backends implement jobs.Store:
// a JSON file holding every record keyed by job ID (the default), and an
// SQLite database.
package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/reelworks/segfilter/internal/config"
	"github.com/reelworks/segfilter/internal/jobs"
	"github.com/reelworks/segfilter/internal/logger"
)

var (
	_ jobs.Store = (*JSONStore)(nil)
	_ jobs.Store = (*SQLiteStore)(nil)
)

// JSONPath returns the JSON job file path for a data directory.
func JSONPath(dataDir string) string {
	return filepath.Join(dataDir, "jobs.json")
}

// DBPath returns the SQLite database path for a data directory.
func DBPath(dataDir string) string {
	return filepath.Join(dataDir, "segfilter.db")
}

// InitStore opens the configured backend under dataDir. Selecting sqlite
// when only a JSON job file exists imports it first.
// This is the main entry point for store initialization.
func InitStore(backend, dataDir string) (jobs.Store, error) {
	switch config.ValidateStoreBackend(backend) {
	case "sqlite":
		jsonPath := JSONPath(dataDir)
		dbPath := DBPath(dataDir)

		if NeedsMigration(jsonPath, dbPath) {
			logger.Info("Migrating from JSON to SQLite", "json", jsonPath, "db", dbPath)
			result := MigrateFromJSON(jsonPath, dbPath)
			if !result.Success {
				// Migration failed, but we continue with empty DB
				logger.Warn("Migration failed, starting fresh", "error", result.ErrorMessage)
			}
		}

		s, err := openSQLite(dbPath)
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		return s, nil

	default:
		s, err := NewJSONStore(JSONPath(dataDir))
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		return s, nil
	}
}

// openSQLite opens dbPath and checks that every stored job decodes. A
// database that fails either step is renamed to .corrupt and replaced by an
// empty one, so a damaged file never prevents startup.
func openSQLite(dbPath string) (*SQLiteStore, error) {
	s, err := NewSQLiteStore(dbPath)
	if err == nil {
		if _, err = s.LoadJobs(); err == nil {
			return s, nil
		}
		s.Close()
	}

	if _, statErr := os.Stat(dbPath); statErr != nil {
		// Nothing on disk to blame; the failure is environmental.
		return nil, err
	}

	corruptPath := dbPath + ".corrupt"
	if rerr := os.Rename(dbPath, corruptPath); rerr != nil {
		logger.Error("Failed to rename corrupt database", "error", rerr)
	} else {
		logger.Warn("Renamed corrupt database, starting with no jobs", "path", corruptPath, "error", err)
	}
	CleanupDBFiles(dbPath)

	return NewSQLiteStore(dbPath)
}
