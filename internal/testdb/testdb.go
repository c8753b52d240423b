// Package testdb opens an in-memory SQLite database carrying the same tables
// as the Postgres migrations. Only tests import it.
package testdb

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var seq atomic.Int64

var schema = []string{
	`CREATE TABLE profiles (
		id TEXT PRIMARY KEY,
		auth_user_id TEXT UNIQUE,
		email TEXT NOT NULL UNIQUE,
		full_name TEXT,
		tier TEXT NOT NULL DEFAULT '',
		is_admin BOOLEAN NOT NULL DEFAULT 0,
		stripe_customer_id TEXT,
		membership_session_at DATETIME,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE products (
		id INTEGER PRIMARY KEY,
		slug TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		description TEXT,
		price INTEGER NOT NULL,
		currency TEXT NOT NULL,
		category TEXT NOT NULL,
		image_url TEXT,
		tier_visibility TEXT NOT NULL DEFAULT '[]',
		in_stock BOOLEAN NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE orders (
		id INTEGER PRIMARY KEY,
		user_id TEXT NOT NULL,
		email TEXT NOT NULL,
		items TEXT NOT NULL,
		subtotal INTEGER NOT NULL,
		shipping INTEGER NOT NULL,
		total INTEGER NOT NULL,
		currency TEXT NOT NULL,
		status TEXT NOT NULL,
		stripe_session_id TEXT UNIQUE,
		stripe_payment_intent_id TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE session_bookings (
		id INTEGER PRIMARY KEY,
		user_id TEXT NOT NULL,
		email TEXT NOT NULL,
		session_date DATETIME NOT NULL,
		duration_minutes INTEGER NOT NULL,
		notes TEXT,
		price INTEGER NOT NULL,
		currency TEXT NOT NULL,
		status TEXT NOT NULL,
		stripe_session_id TEXT UNIQUE,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE UNIQUE INDEX ux_session_bookings_active_slot ON session_bookings (session_date)
		WHERE status IN ('pending', 'confirmed')`,
	`CREATE TABLE events (
		id INTEGER PRIMARY KEY,
		slug TEXT NOT NULL UNIQUE,
		title TEXT NOT NULL,
		description TEXT,
		venue TEXT,
		starts_at DATETIME NOT NULL,
		required_tier TEXT NOT NULL DEFAULT '',
		capacity INTEGER NOT NULL,
		registered_count INTEGER NOT NULL DEFAULT 0,
		price INTEGER NOT NULL,
		currency TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		CHECK (registered_count <= capacity)
	)`,
	`CREATE TABLE event_registrations (
		id INTEGER PRIMARY KEY,
		event_id INTEGER NOT NULL,
		user_id TEXT NOT NULL,
		email TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		amount INTEGER NOT NULL,
		currency TEXT NOT NULL,
		status TEXT NOT NULL,
		stripe_session_id TEXT UNIQUE,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE UNIQUE INDEX ux_event_registrations_active ON event_registrations (event_id, user_id)
		WHERE status IN ('pending', 'confirmed')`,
	`CREATE TABLE content (
		id INTEGER PRIMARY KEY,
		slug TEXT NOT NULL UNIQUE,
		title TEXT NOT NULL,
		body TEXT,
		content_type TEXT NOT NULL,
		content_url TEXT,
		thumbnail_url TEXT,
		required_tier TEXT NOT NULL DEFAULT '',
		published_at DATETIME NOT NULL,
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE payment_events (
		id INTEGER PRIMARY KEY,
		provider TEXT NOT NULL,
		provider_event_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		payload TEXT NOT NULL,
		received_at DATETIME NOT NULL,
		processed_at DATETIME,
		UNIQUE (provider, provider_event_id)
	)`,
	`CREATE TABLE payment_reconciliations (
		id INTEGER PRIMARY KEY,
		session_id TEXT NOT NULL UNIQUE,
		purchase_type TEXT NOT NULL,
		source TEXT NOT NULL,
		status TEXT NOT NULL,
		result TEXT,
		received_at DATETIME NOT NULL,
		processed_at DATETIME
	)`,
	`CREATE TABLE audit_logs (
		id INTEGER PRIMARY KEY,
		actor_type TEXT NOT NULL,
		actor_id TEXT,
		action TEXT NOT NULL,
		target_type TEXT NOT NULL,
		target_id TEXT,
		metadata TEXT,
		ip_address TEXT,
		user_agent TEXT,
		created_at DATETIME NOT NULL
	)`,
}

// Open returns a fresh database per call. Shared-cache mode keeps the same
// in-memory database across pooled connections.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:frostclub_test_%d?mode=memory&cache=shared", seq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return db
}

// Count runs a COUNT query and fails the test on error.
func Count(t testing.TB, db *gorm.DB, query string, args ...any) int64 {
	t.Helper()
	var n int64
	if err := db.Raw(query, args...).Scan(&n).Error; err != nil {
		t.Fatalf("count %q: %v", query, err)
	}
	return n
}
