// Package testutil provides the shared in-memory database fixture used by
// package tests. Each call opens a fresh shared-cache memory database and
// applies the real schema migrations so tests exercise the same SQL
// constraints as production, including the bank transaction dedup key.
package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/montesion/reconciliation/pkg/database"
)

// OpenDB opens a migrated in-memory database torn down with the test.
func OpenDB(t *testing.T) *database.DB {
	t.Helper()

	// Unique name per test so parallel tests don't share state; shared
	// cache so every pooled connection sees the same memory database.
	path := fmt.Sprintf("recon_test_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := database.New(database.Config{
		Path:            path,
		MaxOpenConns:    4,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Minute,
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	schema, err := os.ReadFile(filepath.Join(moduleRoot(t), "migrations", "001_initial_schema.sql"))
	require.NoError(t, err)
	_, err = db.Exec(string(schema))
	require.NoError(t, err)

	return db
}

func moduleRoot(t *testing.T) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	require.True(t, ok)
	return filepath.Join(filepath.Dir(file), "..", "..")
}

// SeedEvent inserts an event and returns its id.
func SeedEvent(t *testing.T, db *database.DB, title string, start time.Time, archived bool) int64 {
	t.Helper()
	result, err := db.Exec(
		"INSERT INTO events (title, start_time, archived) VALUES (?, ?, ?)",
		title, start, archived)
	require.NoError(t, err)
	id, err := result.LastInsertId()
	require.NoError(t, err)
	return id
}

// SeedForm inserts a form and returns its id.
func SeedForm(t *testing.T, db *database.DB, eventID int64, title, financialField string) int64 {
	t.Helper()
	result, err := db.Exec(
		"INSERT INTO forms (event_id, title, financial_field) VALUES (?, ?, ?)",
		eventID, title, financialField)
	require.NoError(t, err)
	id, err := result.LastInsertId()
	require.NoError(t, err)
	return id
}

// SeedSubmission inserts a submission with raw JSON data and returns its id.
func SeedSubmission(t *testing.T, db *database.DB, formID int64, data, accessToken string) int64 {
	t.Helper()
	result, err := db.Exec(
		"INSERT INTO form_submissions (form_id, data, access_token) VALUES (?, ?, ?)",
		formID, data, accessToken)
	require.NoError(t, err)
	id, err := result.LastInsertId()
	require.NoError(t, err)
	return id
}

// SeedReport inserts a bank report and returns its id.
func SeedReport(t *testing.T, db *database.DB, filename string) int64 {
	t.Helper()
	result, err := db.Exec(
		"INSERT INTO bank_reports (filename, created_by) VALUES (?, 'test')", filename)
	require.NoError(t, err)
	id, err := result.LastInsertId()
	require.NoError(t, err)
	return id
}
