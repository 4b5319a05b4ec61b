package database

import (
	"database/sql"
	stdlog "log"

	"github.com/username/ledgerfolio/src/logger"
	_ "modernc.org/sqlite"
)

var DB *sql.DB

// Decimal columns are stored as TEXT and summed in application code, so no
// precision is lost to floating point on the way in or out.
const schema = `
CREATE TABLE IF NOT EXISTS accounts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE,
	currency_id INTEGER NOT NULL,
	organization_id INTEGER
);

CREATE TABLE IF NOT EXISTS assets (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	symbol TEXT NOT NULL,
	name TEXT,
	type INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS quotes (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	asset_id INTEGER NOT NULL,
	currency_id INTEGER NOT NULL,
	timestamp INTEGER NOT NULL,
	quote TEXT NOT NULL,
	UNIQUE(asset_id, currency_id, timestamp)
);

CREATE TABLE IF NOT EXISTS actions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp INTEGER NOT NULL,
	account_id INTEGER NOT NULL,
	peer_id INTEGER NOT NULL,
	note TEXT
);

CREATE TABLE IF NOT EXISTS action_details (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	action_id INTEGER NOT NULL,
	category_id INTEGER NOT NULL,
	tag_id INTEGER,
	amount TEXT NOT NULL,
	note TEXT,
	FOREIGN KEY(action_id) REFERENCES actions(id)
);

CREATE TABLE IF NOT EXISTS dividends (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp INTEGER NOT NULL,
	ex_date INTEGER,
	type INTEGER NOT NULL,
	account_id INTEGER NOT NULL,
	asset_id INTEGER NOT NULL,
	amount TEXT NOT NULL,
	tax TEXT NOT NULL DEFAULT '0',
	note TEXT
);

CREATE TABLE IF NOT EXISTS trades (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp INTEGER NOT NULL,
	settlement INTEGER,
	account_id INTEGER NOT NULL,
	asset_id INTEGER NOT NULL,
	qty TEXT NOT NULL,
	price TEXT NOT NULL,
	fee TEXT NOT NULL DEFAULT '0',
	note TEXT
);

CREATE TABLE IF NOT EXISTS transfers (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	withdrawal_timestamp INTEGER NOT NULL,
	withdrawal_account INTEGER NOT NULL,
	withdrawal TEXT NOT NULL,
	deposit_timestamp INTEGER NOT NULL,
	deposit_account INTEGER NOT NULL,
	deposit TEXT NOT NULL,
	fee_account INTEGER,
	fee TEXT NOT NULL DEFAULT '0',
	asset_id INTEGER,
	note TEXT
);

CREATE TABLE IF NOT EXISTS asset_actions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp INTEGER NOT NULL,
	account_id INTEGER NOT NULL,
	type INTEGER NOT NULL,
	asset_id INTEGER NOT NULL,
	qty TEXT NOT NULL,
	note TEXT
);

CREATE TABLE IF NOT EXISTS action_results (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	action_id INTEGER NOT NULL,
	asset_id INTEGER NOT NULL,
	qty TEXT NOT NULL,
	value_share TEXT NOT NULL,
	FOREIGN KEY(action_id) REFERENCES asset_actions(id)
);

CREATE TABLE IF NOT EXISTS postings (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp INTEGER NOT NULL,
	op_type INTEGER NOT NULL,
	operation_id INTEGER NOT NULL,
	book INTEGER NOT NULL,
	account_id INTEGER NOT NULL,
	asset_id INTEGER,
	amount TEXT NOT NULL,
	value TEXT NOT NULL DEFAULT '0',
	category_id INTEGER,
	peer_id INTEGER,
	tag_id INTEGER
);
CREATE INDEX IF NOT EXISTS idx_postings_replay
	ON postings(timestamp, op_type, operation_id);
CREATE INDEX IF NOT EXISTS idx_postings_balance
	ON postings(book, account_id, asset_id);

CREATE TABLE IF NOT EXISTS open_lots (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp INTEGER NOT NULL,
	op_type INTEGER NOT NULL,
	operation_id INTEGER NOT NULL,
	account_id INTEGER NOT NULL,
	asset_id INTEGER NOT NULL,
	price TEXT NOT NULL,
	remaining_qty TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_open_lots_position
	ON open_lots(account_id, asset_id, timestamp);

CREATE TABLE IF NOT EXISTS closed_deals (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	account_id INTEGER NOT NULL,
	asset_id INTEGER NOT NULL,
	open_op_type INTEGER NOT NULL,
	open_op_id INTEGER NOT NULL,
	open_timestamp INTEGER NOT NULL,
	open_price TEXT NOT NULL,
	close_op_type INTEGER NOT NULL,
	close_op_id INTEGER NOT NULL,
	close_timestamp INTEGER NOT NULL,
	close_price TEXT NOT NULL,
	qty TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_closed_deals_close
	ON closed_deals(close_timestamp);
`

// Open opens (and if needed creates) a ledger database at databasePath.
// The modernc driver serializes access through database/sql, but an
// in-memory database only survives on a single connection.
func Open(databasePath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", databasePath)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func InitDB(databasePath string) {
	db, err := Open(databasePath)
	if err != nil {
		if logger.L != nil {
			logger.L.Error("failed to open database", "databasePath", databasePath, "error", err)
		}
		stdlog.Fatalf("failed to open database at %s: %v", databasePath, err)
	}
	DB = db
	if logger.L != nil {
		logger.L.Info("Database tables ensured/created.", "databasePath", databasePath)
	} else {
		stdlog.Println("Database tables ensured/created:", databasePath)
	}
}
