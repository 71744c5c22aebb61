package store

import (
	"fmt"
	"io"
	"os"

	"github.com/reelworks/segfilter/internal/jobs"
	"github.com/reelworks/segfilter/internal/logger"
)

// MigrationResult contains the outcome of a migration attempt.
type MigrationResult struct {
	Success      bool
	JobsImported int
	BackupPath   string
	WasEmpty     bool
	ErrorMessage string
}

// NeedsMigration checks if migration from JSON to SQLite is needed.
// Returns true if jsonPath exists and dbPath does not exist.
func NeedsMigration(jsonPath, dbPath string) bool {
	_, jsonErr := os.Stat(jsonPath)
	_, dbErr := os.Stat(dbPath)

	return jsonErr == nil && dbErr != nil
}

// MigrateFromJSON imports a JSON job file into a new SQLite database.
// On success, the JSON file is renamed to .backup.
// On failure, the JSON file is renamed to .corrupt and no database is left behind.
func MigrateFromJSON(jsonPath, dbPath string) *MigrationResult {
	result := &MigrationResult{}

	loaded, err := readJSONJobs(jsonPath)
	if err != nil {
		result.ErrorMessage = fmt.Sprintf("read JSON: %v", err)
		handleMigrationFailure(jsonPath, result)
		return result
	}

	if len(loaded) == 0 {
		result.WasEmpty = true
		result.Success = true
		renameToBackup(jsonPath, result)
		return result
	}

	// Create backup before proceeding
	backupPath := jsonPath + ".backup"
	if err := copyFile(jsonPath, backupPath); err != nil {
		result.ErrorMessage = fmt.Sprintf("create backup: %v", err)
		handleMigrationFailure(jsonPath, result)
		return result
	}
	result.BackupPath = backupPath

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		result.ErrorMessage = fmt.Sprintf("create SQLite store: %v", err)
		CleanupDBFiles(dbPath)
		handleMigrationFailure(jsonPath, result)
		return result
	}
	defer store.Close()

	jobList := make([]*jobs.Job, 0, len(loaded))
	for _, job := range loaded {
		jobList = append(jobList, job)
	}
	if err := store.SaveJobs(jobList); err != nil {
		result.ErrorMessage = fmt.Sprintf("save jobs: %v", err)
		store.Close()
		CleanupDBFiles(dbPath)
		handleMigrationFailure(jsonPath, result)
		return result
	}
	result.JobsImported = len(jobList)

	// Success - remove the original JSON (backup already exists)
	os.Remove(jsonPath)
	result.Success = true

	logger.Info("Migration complete",
		"jobs_imported", result.JobsImported,
		"backup", result.BackupPath,
	)

	return result
}

// handleMigrationFailure renames the JSON file to .corrupt and logs the error.
func handleMigrationFailure(jsonPath string, result *MigrationResult) {
	corruptPath := jsonPath + ".corrupt"

	if _, err := os.Stat(jsonPath); err == nil {
		if err := os.Rename(jsonPath, corruptPath); err != nil {
			logger.Error("Failed to rename corrupt JSON file", "error", err)
		} else {
			logger.Warn("Renamed corrupt job file", "path", corruptPath)
		}
	}

	logger.Error("Migration failed, starting with no jobs", "error", result.ErrorMessage)
}

// renameToBackup renames the JSON file to .backup.
func renameToBackup(jsonPath string, result *MigrationResult) {
	backupPath := jsonPath + ".backup"
	if err := os.Rename(jsonPath, backupPath); err != nil {
		logger.Warn("Failed to rename JSON to backup", "error", err)
	} else {
		result.BackupPath = backupPath
	}
}

// copyFile copies a file from src to dst.
func copyFile(src, dst string) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer srcFile.Close()

	dstFile, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer dstFile.Close()

	_, err = io.Copy(dstFile, srcFile)
	return err
}

// CleanupDBFiles removes SQLite database files (main, WAL, and SHM).
func CleanupDBFiles(dbPath string) {
	os.Remove(dbPath)
	os.Remove(dbPath + "-wal")
	os.Remove(dbPath + "-shm")
}
