package db

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jedp/fptv/internal/logger"
)

// isBusyErr reports whether an error is SQLITE_BUSY (database locked).
func isBusyErr(err error) bool {
	s := err.Error()
	return strings.Contains(s, "SQLITE_BUSY") || strings.Contains(s, "database is locked")
}

// withRetry runs fn with exponential backoff on SQLITE_BUSY errors.
// Backoff: 100ms, 200ms, 400ms, 800ms, 1600ms.
func withRetry(op string, fn func() error) error {
	var err error
	for attempt := 0; attempt < MaxRetries; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if !isBusyErr(err) {
			return err
		}
		if attempt < MaxRetries-1 {
			delay := RetryDelay * time.Duration(1<<attempt)
			logger.Debugf("Database busy on %s, retrying in %v (attempt %d/%d)", op, delay, attempt+1, MaxRetries)
			time.Sleep(delay)
		}
	}
	return fmt.Errorf("database busy after %d retries: %w", MaxRetries, err)
}

// ExecWithRetry executes a SQL statement with retry logic for SQLITE_BUSY errors.
// Useful when multiple goroutines may be writing to the database simultaneously.
func ExecWithRetry(db *sql.DB, query string, args ...interface{}) (sql.Result, error) {
	var result sql.Result
	err := withRetry("exec", func() error {
		var execErr error
		result, execErr = db.Exec(query, args...)
		return execErr
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// QueryWithRetry executes a query with retry logic for SQLITE_BUSY errors.
func QueryWithRetry(db *sql.DB, query string, args ...interface{}) (*sql.Rows, error) {
	var rows *sql.Rows
	err := withRetry("query", func() error {
		var queryErr error
		rows, queryErr = db.Query(query, args...)
		return queryErr
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}
