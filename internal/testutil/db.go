// Package testutil opens throwaway SQLite databases carrying the directory
// schema for package tests.
package testutil

import (
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var schema = []string{
	`CREATE TABLE listings (
		id INTEGER PRIMARY KEY,
		name TEXT,
		category TEXT,
		zone TEXT,
		specialty TEXT,
		plan TEXT NOT NULL DEFAULT 'free',
		previous_plan TEXT,
		is_active BOOLEAN NOT NULL DEFAULT 1,
		disabled_reason TEXT,
		business_status TEXT NOT NULL DEFAULT 'draft',
		application_status TEXT,
		payment_status TEXT,
		plan_expires_at DATETIME,
		owner_email TEXT,
		published_at DATETIME,
		rejected_at DATETIME,
		suspended_at DATETIME,
		extended_at DATETIME,
		downgraded_at DATETIME,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE applications (
		id INTEGER PRIMARY KEY,
		business_name TEXT,
		owner_email TEXT,
		plan TEXT NOT NULL DEFAULT 'free',
		status TEXT NOT NULL DEFAULT 'pending',
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		approved_at DATETIME,
		rejected_at DATETIME,
		info_requested_at DATETIME,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE waitlist_entries (
		id INTEGER PRIMARY KEY,
		business_id INTEGER NOT NULL,
		category TEXT NOT NULL,
		plan TEXT NOT NULL,
		zone TEXT,
		specialty TEXT,
		status TEXT NOT NULL DEFAULT 'waiting',
		position INTEGER NOT NULL DEFAULT 0,
		notified_at DATETIME,
		expires_at DATETIME,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (business_id, category, plan)
	)`,
	`CREATE TABLE notification_outbox (
		id INTEGER PRIMARY KEY,
		correlation_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		business_id INTEGER,
		channel TEXT NOT NULL,
		recipient TEXT,
		payload TEXT,
		dedupe_key TEXT UNIQUE,
		status TEXT NOT NULL DEFAULT 'pending',
		attempts INTEGER NOT NULL DEFAULT 0,
		last_error TEXT,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		sent_at DATETIME
	)`,
	`CREATE TABLE api_keys (
		id INTEGER PRIMARY KEY,
		key_id TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		role TEXT NOT NULL,
		scopes TEXT,
		key_hash TEXT NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT 1,
		expires_at DATETIME,
		last_used_at DATETIME,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
}

// NewDB opens a private in-memory database named after the test and creates
// the directory tables.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+dbName(t)+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	// A single connection keeps the shared-cache database alive and
	// serializes writers.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return db
}

func dbName(t testing.TB) string {
	return strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
}
