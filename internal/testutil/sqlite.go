// Package testutil provides shared sqlite fixtures for repository and service tests.
package testutil

import (
	"fmt"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/tradepost-backend/pkg/logger"
)

// Table names accepted by NewSQLite.
const (
	TableUsers          = "users"
	TableListings       = "listings"
	TableOffers         = "offers"
	TableOfferEvents    = "offer_events"
	TableTransactions   = "transactions"
	TableSellerAccounts = "seller_accounts"
	TableNotifications  = "notifications"
	TableOutboxEvents   = "outbox_events"
)

var schema = map[string][]string{
	TableUsers: {`
CREATE TABLE users (
	id TEXT PRIMARY KEY,
	email TEXT NOT NULL UNIQUE,
	display_name TEXT NOT NULL,
	role TEXT NOT NULL DEFAULT 'member',
	created_at DATETIME,
	updated_at DATETIME
)`},
	TableListings: {`
CREATE TABLE listings (
	id TEXT PRIMARY KEY,
	seller_id TEXT NOT NULL,
	title TEXT NOT NULL,
	asking_price INTEGER NOT NULL,
	currency TEXT NOT NULL DEFAULT 'usd',
	status TEXT NOT NULL DEFAULT 'ACTIVE',
	sold_price INTEGER,
	sold_at DATETIME,
	sold_transaction_id TEXT,
	created_at DATETIME,
	updated_at DATETIME
)`},
	TableOffers: {`
CREATE TABLE offers (
	id TEXT PRIMARY KEY,
	listing_id TEXT NOT NULL,
	buyer_id TEXT NOT NULL,
	seller_id TEXT NOT NULL,
	amount INTEGER NOT NULL CHECK (amount > 0),
	currency TEXT NOT NULL,
	message TEXT,
	contingency TEXT,
	transport_included BOOLEAN NOT NULL DEFAULT 0,
	inspection_included BOOLEAN NOT NULL DEFAULT 0,
	status TEXT NOT NULL DEFAULT 'pending',
	expires_at DATETIME NOT NULL,
	created_at DATETIME,
	updated_at DATETIME
)`},
	TableOfferEvents: {`
CREATE TABLE offer_events (
	id TEXT PRIMARY KEY,
	offer_id TEXT NOT NULL,
	type TEXT NOT NULL,
	actor_id TEXT,
	payload BLOB NOT NULL,
	created_at DATETIME
)`},
	TableTransactions: {`
CREATE TABLE transactions (
	id TEXT PRIMARY KEY,
	payment_intent_id TEXT NOT NULL,
	listing_id TEXT NOT NULL,
	offer_id TEXT,
	buyer_id TEXT NOT NULL,
	seller_id TEXT NOT NULL,
	final_price INTEGER NOT NULL,
	platform_fee INTEGER NOT NULL,
	seller_receives INTEGER NOT NULL,
	currency TEXT NOT NULL,
	status TEXT NOT NULL,
	escrow_release_date DATETIME NOT NULL,
	completed_at DATETIME,
	created_at DATETIME,
	updated_at DATETIME,
	CHECK (platform_fee + seller_receives = final_price)
)`,
		`CREATE UNIQUE INDEX ux_transactions_payment_intent_id ON transactions (payment_intent_id)`,
		`CREATE UNIQUE INDEX ux_transactions_listing_active ON transactions (listing_id) WHERE status NOT IN ('completed', 'refunded', 'cancelled')`,
	},
	TableSellerAccounts: {`
CREATE TABLE seller_accounts (
	user_id TEXT PRIMARY KEY,
	stripe_account_id TEXT NOT NULL UNIQUE,
	charges_enabled BOOLEAN NOT NULL DEFAULT 0,
	payouts_enabled BOOLEAN NOT NULL DEFAULT 0,
	details_submitted BOOLEAN NOT NULL DEFAULT 0,
	synced_at DATETIME,
	created_at DATETIME,
	updated_at DATETIME
)`},
	TableNotifications: {`
CREATE TABLE notifications (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	type TEXT NOT NULL,
	title TEXT NOT NULL,
	message TEXT NOT NULL,
	link TEXT,
	payload BLOB,
	read_at DATETIME,
	created_at DATETIME
)`},
	TableOutboxEvents: {`
CREATE TABLE outbox_events (
	id TEXT PRIMARY KEY,
	event_type TEXT NOT NULL,
	aggregate_type TEXT NOT NULL,
	aggregate_id TEXT NOT NULL,
	payload BLOB NOT NULL,
	created_at DATETIME,
	published_at DATETIME,
	attempt_count INTEGER NOT NULL DEFAULT 0,
	last_error TEXT
)`},
}

// NewSQLite opens an isolated in-memory database holding the requested tables.
// A single connection keeps every statement on the same memory database.
func NewSQLite(t *testing.T, tables ...string) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, table := range tables {
		stmts, ok := schema[table]
		require.Truef(t, ok, "unknown table %q", table)
		for _, stmt := range stmts {
			require.NoError(t, conn.Exec(stmt).Error)
		}
	}
	return conn
}

// Logger returns a logger that discards output.
func Logger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}
