// Package dbtest opens throwaway sqlite databases carrying the workflow schema.
package dbtest

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketledger-backend/pkg/db"
)

// schema mirrors the goose migrations in sqlite syntax: CHECK constraints,
// foreign keys, and partial unique indexes included.
var schema = []string{
	`CREATE TABLE entries (
		id TEXT PRIMARY KEY,
		seller_id TEXT NOT NULL,
		seller_name TEXT NOT NULL DEFAULT '',
		market_id TEXT NOT NULL,
		market_name TEXT NOT NULL,
		counterparty_phone TEXT NOT NULL DEFAULT '',
		product_type TEXT NOT NULL,
		quantity TEXT NOT NULL,
		price TEXT NOT NULL,
		amount TEXT NOT NULL DEFAULT '0',
		payment_status TEXT NOT NULL DEFAULT 'unpaid' CHECK (payment_status IN ('paid', 'unpaid', 'pending')),
		record_date DATE NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE change_requests (
		id TEXT PRIMARY KEY,
		entry_id TEXT NOT NULL,
		seller_id TEXT NOT NULL,
		market_id TEXT NOT NULL,
		requested_by TEXT NOT NULL,
		origin TEXT NOT NULL,
		kind TEXT NOT NULL,
		proposed_status TEXT NULL,
		current_status TEXT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		created_at DATETIME NOT NULL,
		resolved_by TEXT NULL,
		resolved_at DATETIME NULL,
		CONSTRAINT chk_change_requests_origin CHECK (origin IN ('seller', 'market')),
		CONSTRAINT chk_change_requests_kind CHECK (kind IN ('UPDATE_STATUS', 'DELETE')),
		CONSTRAINT chk_change_requests_status CHECK (status IN ('pending', 'approved', 'rejected')),
		CONSTRAINT chk_change_requests_proposed_status CHECK (
			(kind = 'UPDATE_STATUS' AND proposed_status IN ('paid', 'unpaid'))
			OR (kind = 'DELETE' AND proposed_status IS NULL)
		),
		CONSTRAINT chk_change_requests_resolution CHECK (
			(status = 'pending' AND resolved_at IS NULL)
			OR (status <> 'pending' AND resolved_at IS NOT NULL AND resolved_by IS NOT NULL)
		)
	)`,
	`CREATE UNIQUE INDEX ux_change_requests_entry_kind_pending ON change_requests (entry_id, kind) WHERE status = 'pending'`,
	`CREATE TABLE payment_confirmations (
		id TEXT PRIMARY KEY,
		entry_id TEXT NOT NULL REFERENCES entries(id) ON DELETE CASCADE,
		seller_id TEXT NOT NULL,
		market_id TEXT NOT NULL,
		requested_by TEXT NOT NULL,
		target_role TEXT NOT NULL,
		proposed_status TEXT NOT NULL,
		current_status TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		seller_name TEXT NOT NULL DEFAULT '',
		product_type TEXT NOT NULL DEFAULT '',
		quantity TEXT NOT NULL DEFAULT '',
		price TEXT NOT NULL DEFAULT '',
		market_name TEXT NOT NULL DEFAULT '',
		reviewed_by TEXT NULL,
		reviewed_at DATETIME NULL,
		created_at DATETIME NOT NULL,
		CONSTRAINT chk_payment_confirmations_target_role CHECK (target_role IN ('seller', 'market')),
		CONSTRAINT chk_payment_confirmations_proposed_status CHECK (proposed_status IN ('paid', 'unpaid')),
		CONSTRAINT chk_payment_confirmations_status CHECK (status IN ('pending', 'approved', 'rejected'))
	)`,
	`CREATE UNIQUE INDEX ux_payment_confirmations_entry_pending ON payment_confirmations (entry_id) WHERE status = 'pending'`,
	`CREATE TABLE outbox_events (
		id TEXT PRIMARY KEY,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		published_at DATETIME NULL,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT NULL
	)`,
	`CREATE TABLE outbox_dlq (
		id TEXT PRIMARY KEY,
		event_id TEXT NOT NULL UNIQUE,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload_json TEXT NOT NULL,
		error_reason TEXT NOT NULL,
		error_message TEXT NULL,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		failed_at DATETIME NOT NULL,
		created_at DATETIME NOT NULL,
		CONSTRAINT chk_outbox_dlq_error_reason CHECK (error_reason IN ('unroutable', 'non_retryable', 'max_attempts'))
	)`,
}

// Open returns a fresh in-memory database with the schema applied.
func Open(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=1", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sqlite handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("apply schema: %v", err)
		}
	}
	return conn
}

// OpenClient wraps Open in a db.Client so services can run transactions against it.
func OpenClient(t testing.TB) (*db.Client, *gorm.DB) {
	t.Helper()
	conn := Open(t)
	return db.FromConn(conn), conn
}
