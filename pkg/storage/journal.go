package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fxamacker/cbor/v2"
	_ "github.com/mattn/go-sqlite3"

	"github.com/dougsko/specand/pkg/logging"
	"github.com/dougsko/specand/pkg/session"
)

// Journal records every gateway call and saved traces in SQLite. Values
// are stored CBOR-encoded so their Go type survives the round trip.
type Journal struct {
	db         *sql.DB
	dbPath     string
	maxEntries int
	maxTraces  int
}

// NewJournal opens or creates the journal database at dbPath. Limits <= 0
// disable cleanup.
func NewJournal(dbPath string, maxEntries, maxTraces int) (*Journal, error) {
	j := &Journal{
		dbPath:     dbPath,
		maxEntries: maxEntries,
		maxTraces:  maxTraces,
	}

	if err := j.initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize journal: %w", err)
	}

	return j, nil
}

func (j *Journal) initialize() error {
	if j.dbPath == "" {
		j.dbPath = "./specand.db"
	}
	if err := os.MkdirAll(filepath.Dir(j.dbPath), 0755); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}

	connectionString := j.dbPath + "?_busy_timeout=10000&_journal_mode=WAL&_foreign_keys=on"
	db, err := sql.Open("sqlite3", connectionString)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	j.db = db

	if err := j.createTables(); err != nil {
		db.Close()
		return fmt.Errorf("failed to create tables: %w", err)
	}
	if err := j.createIndexes(); err != nil {
		db.Close()
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	logging.Infof("storage", "Journal initialized: %s (max %d calls, %d traces)", j.dbPath, j.maxEntries, j.maxTraces)
	return nil
}

func (j *Journal) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS calls (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp DATETIME NOT NULL,
		session TEXT NOT NULL,
		handle TEXT NOT NULL DEFAULT '',
		op TEXT NOT NULL,
		attribute TEXT NOT NULL DEFAULT '',
		selector TEXT NOT NULL DEFAULT '',
		command TEXT NOT NULL DEFAULT '',
		value BLOB,
		duration_us INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'Success',
		error TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS traces (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp DATETIME NOT NULL,
		session TEXT NOT NULL,
		command TEXT NOT NULL,
		label TEXT NOT NULL DEFAULT '',
		points BLOB NOT NULL,
		written INTEGER NOT NULL,
		available INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS journal_stats (
		id INTEGER PRIMARY KEY,
		total_calls INTEGER NOT NULL DEFAULT 0,
		total_errors INTEGER NOT NULL DEFAULT 0,
		total_traces INTEGER NOT NULL DEFAULT 0,
		last_cleanup DATETIME
	);

	INSERT OR IGNORE INTO journal_stats (id, total_calls, total_errors, total_traces)
	VALUES (1, 0, 0, 0);
	`

	_, err := j.db.Exec(schema)
	return err
}

func (j *Journal) createIndexes() error {
	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_calls_timestamp ON calls(timestamp DESC)",
		"CREATE INDEX IF NOT EXISTS idx_calls_session ON calls(session)",
		"CREATE INDEX IF NOT EXISTS idx_calls_attribute ON calls(attribute)",
		"CREATE INDEX IF NOT EXISTS idx_calls_status ON calls(status)",
		"CREATE INDEX IF NOT EXISTS idx_traces_session ON traces(session)",
	}

	for _, indexSQL := range indexes {
		if _, err := j.db.Exec(indexSQL); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}

// Observe journals a gateway call; it makes the journal a session.Observer
func (j *Journal) Observe(e session.Event) {
	if err := j.Record(e); err != nil {
		logging.Warnf("storage", "Failed to journal %s on %s: %v", e.Op, e.Session, err)
	}
}

// Record stores one gateway call
func (j *Journal) Record(e session.Event) error {
	var value []byte
	if e.Value != nil {
		var err error
		if value, err = cbor.Marshal(e.Value); err != nil {
			return fmt.Errorf("failed to encode value: %w", err)
		}
	}
	errText := ""
	if e.Err != nil {
		errText = e.Err.Error()
	}
	ts := e.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	tx, err := j.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO calls (
			timestamp, session, handle, op, attribute, selector,
			command, value, duration_us, status, error
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, ts.UTC(), e.Session, e.Handle, e.Op, e.Attribute, e.Selector,
		e.Command, value, e.Duration.Microseconds(), e.Status(), errText)
	if err != nil {
		return fmt.Errorf("failed to insert call: %w", err)
	}

	_, err = tx.Exec(`
		UPDATE journal_stats SET
			total_calls = total_calls + 1,
			total_errors = CASE WHEN ? THEN total_errors + 1 ELSE total_errors END
		WHERE id = 1
	`, e.Err != nil)
	if err != nil {
		return fmt.Errorf("failed to update stats: %w", err)
	}

	if err := j.cleanup(tx, "calls", j.maxEntries); err != nil {
		logging.Warnf("storage", "Failed to clean up calls: %v", err)
	}

	return tx.Commit()
}

// CleanupOldEntries trims both tables to their limits
func (j *Journal) CleanupOldEntries() error {
	tx, err := j.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := j.cleanup(tx, "calls", j.maxEntries); err != nil {
		return err
	}
	if err := j.cleanup(tx, "traces", j.maxTraces); err != nil {
		return err
	}
	return tx.Commit()
}

// cleanup deletes the oldest rows of table beyond limit. table is one of
// the two fixed table names, never caller input.
func (j *Journal) cleanup(tx *sql.Tx, table string, limit int) error {
	if limit <= 0 {
		return nil
	}

	var count int
	if err := tx.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&count); err != nil {
		return err
	}
	if count <= limit {
		return nil
	}

	_, err := tx.Exec(`DELETE FROM `+table+` WHERE id IN (
		SELECT id FROM `+table+` ORDER BY id ASC LIMIT ?
	)`, count-limit)
	if err != nil {
		return err
	}

	_, err = tx.Exec("UPDATE journal_stats SET last_cleanup = ? WHERE id = 1", time.Now().UTC())
	return err
}

// Close closes the database connection
func (j *Journal) Close() error {
	if j.db != nil {
		return j.db.Close()
	}
	return nil
}
