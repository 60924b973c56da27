package db

import (
	"database/sql"
	"fmt"
)

// migrations is an ordered list of SQL statements to run.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		username    TEXT    NOT NULL UNIQUE,
		name        TEXT    NOT NULL DEFAULT '(Unknown)',
		email       TEXT    NOT NULL DEFAULT '',
		is_verified INTEGER NOT NULL DEFAULT 0,
		is_active   INTEGER NOT NULL DEFAULT 1,
		is_admin    INTEGER NOT NULL DEFAULT 0,
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS zones (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		name          TEXT    NOT NULL UNIQUE,
		trustee_name  TEXT    NOT NULL DEFAULT '',
		trustee_email TEXT    NOT NULL DEFAULT '',
		polygon       TEXT,
		created_at    DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at    DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS accounts (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id     INTEGER NOT NULL UNIQUE REFERENCES users(id) ON DELETE CASCADE,
		name        TEXT    NOT NULL,
		is_public   INTEGER NOT NULL DEFAULT 0,
		is_spouse   INTEGER NOT NULL DEFAULT 0,
		street      TEXT    NOT NULL DEFAULT '',
		city        TEXT    NOT NULL DEFAULT '',
		state       TEXT    NOT NULL DEFAULT '',
		zip         TEXT    NOT NULL DEFAULT '',
		address_raw TEXT    NOT NULL DEFAULT '',
		latitude    REAL,
		longitude   REAL,
		zone_id     INTEGER REFERENCES zones(id) ON DELETE SET NULL,
		notes       TEXT    NOT NULL DEFAULT '',
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at  DATETIME DEFAULT CURRENT_TIMESTAMP,
		CHECK ((latitude IS NULL) = (longitude IS NULL))
	)`,
	`CREATE TABLE IF NOT EXISTS issues (
		id               INTEGER PRIMARY KEY AUTOINCREMENT,
		name             TEXT    NOT NULL,
		description      TEXT    NOT NULL DEFAULT '',
		recipient_name   TEXT    NOT NULL DEFAULT '',
		recipient_emails TEXT    NOT NULL DEFAULT '[]',
		date             TEXT    NOT NULL DEFAULT '',
		state            INTEGER NOT NULL DEFAULT 0 CHECK (state IN (-5, 0, 10)),
		created_at       DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at       DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS issues_single_active ON issues(state) WHERE state = 10`,
	`CREATE TABLE IF NOT EXISTS comments (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		account_id  INTEGER NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
		issue_id    INTEGER NOT NULL REFERENCES issues(id) ON DELETE CASCADE,
		kind        TEXT    NOT NULL DEFAULT 'written' CHECK (kind IN ('written', 'video', 'spoken')),
		content     TEXT    NOT NULL DEFAULT '',
		media_ref   TEXT    NOT NULL DEFAULT '',
		state       INTEGER NOT NULL DEFAULT 0 CHECK (state IN (-10, -5, 0, 10)),
		is_featured INTEGER NOT NULL DEFAULT 0,
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at  DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (account_id, issue_id)
	)`,
	`CREATE INDEX IF NOT EXISTS comments_issue_state ON comments(issue_id, state)`,
	`CREATE TABLE IF NOT EXISTS sessions (
		id         TEXT     PRIMARY KEY,
		user_id    INTEGER  NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		expires_at DATETIME NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS api_keys (
		id           INTEGER  PRIMARY KEY AUTOINCREMENT,
		name         TEXT     NOT NULL,
		key_prefix   TEXT     NOT NULL,
		key_hash     TEXT     NOT NULL UNIQUE,
		created_at   DATETIME DEFAULT CURRENT_TIMESTAMP,
		last_used_at DATETIME
	)`,
	`CREATE TABLE IF NOT EXISTS voters (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		voter_id     INTEGER NOT NULL UNIQUE,
		prefix       TEXT    NOT NULL DEFAULT '',
		last_name    TEXT    NOT NULL,
		first_name   TEXT    NOT NULL,
		middle_name  TEXT    NOT NULL DEFAULT '',
		suffix       TEXT    NOT NULL DEFAULT '',
		age          INTEGER NOT NULL,
		gender       INTEGER,
		phone        TEXT    NOT NULL DEFAULT '',
		street       TEXT    NOT NULL DEFAULT '',
		city         TEXT    NOT NULL DEFAULT '',
		st           TEXT    NOT NULL DEFAULT '',
		zipcode      TEXT    NOT NULL DEFAULT '',
		registration TEXT,
		party        INTEGER,
		precinct     INTEGER,
		zone         INTEGER,
		created_at   DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at   DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS schools (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		name       TEXT    NOT NULL UNIQUE,
		boundary   TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS students (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		account_id INTEGER NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
		school_id  INTEGER NOT NULL REFERENCES schools(id) ON DELETE CASCADE,
		name       TEXT    NOT NULL DEFAULT '',
		grade      INTEGER CHECK (grade BETWEEN -1 AND 12),
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS students_account ON students(account_id)`,
}

// migrate runs all migrations in order.
func migrate(db *sql.DB) error {
	for i, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}

	// Column additions (idempotent, checks if column exists first)
	columnMigrations := []struct {
		table, column, definition string
	}{
		{"users", "last_login_at", "DATETIME"},
	}

	for _, cm := range columnMigrations {
		if err := addColumnIfNotExists(db, cm.table, cm.column, cm.definition); err != nil {
			return fmt.Errorf("adding %s.%s: %w", cm.table, cm.column, err)
		}
	}

	return nil
}

// addColumnIfNotExists adds a column to a table if it doesn't already exist.
func addColumnIfNotExists(db *sql.DB, table, column, definition string) error {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return fmt.Errorf("checking table info: %w", err)
	}

	found := false
	for rows.Next() {
		var cid int
		var name, colType string
		var notNull, pk int
		var dfltValue interface{}
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
			_ = rows.Close()
			return fmt.Errorf("scanning column info: %w", err)
		}
		if name == column {
			found = true
		}
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return fmt.Errorf("iterating columns: %w", err)
	}
	if err := rows.Close(); err != nil {
		return fmt.Errorf("closing rows: %w", err)
	}
	if found {
		return nil
	}

	_, err = db.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, definition))
	return err
}
