package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// CallQuery represents query parameters for retrieving journaled calls
type CallQuery struct {
	Limit      int
	Offset     int
	Since      *time.Time
	Until      *time.Time
	Session    string
	Op         string
	Attribute  string
	ErrorsOnly bool
}

// Call is one journaled gateway call
type Call struct {
	ID        int64         `json:"id"`
	Timestamp time.Time     `json:"timestamp"`
	Session   string        `json:"session"`
	Handle    string        `json:"handle,omitempty"`
	Op        string        `json:"op"`
	Attribute string        `json:"attribute,omitempty"`
	Selector  string        `json:"selector,omitempty"`
	Command   string        `json:"command,omitempty"`
	Value     interface{}   `json:"value,omitempty"`
	Duration  time.Duration `json:"duration"`
	Status    string        `json:"status"`
	Error     string        `json:"error,omitempty"`
}

// Trace is a saved float array read
type Trace struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Session   string    `json:"session"`
	Command   string    `json:"command"`
	Label     string    `json:"label,omitempty"`
	Points    []float64 `json:"points,omitempty"`
	Written   int       `json:"written"`
	Available int       `json:"available"`
}

// Stats represents journal statistics
type Stats struct {
	TotalCalls  int       `json:"total_calls"`
	TotalErrors int       `json:"total_errors"`
	TotalTraces int       `json:"total_traces"`
	LastCleanup time.Time `json:"last_cleanup"`
}

// GetCalls retrieves journaled calls, newest first
func (j *Journal) GetCalls(query CallQuery) ([]Call, error) {
	var args []interface{}
	sqlQuery := `
		SELECT id, timestamp, session, handle, op, attribute, selector,
			   command, value, duration_us, status, error
		FROM calls
		WHERE 1=1
	`

	if query.Since != nil {
		sqlQuery += " AND timestamp >= ?"
		args = append(args, query.Since.UTC())
	}
	if query.Until != nil {
		sqlQuery += " AND timestamp <= ?"
		args = append(args, query.Until.UTC())
	}
	if query.Session != "" {
		sqlQuery += " AND session = ?"
		args = append(args, query.Session)
	}
	if query.Op != "" {
		sqlQuery += " AND op = ?"
		args = append(args, query.Op)
	}
	if query.Attribute != "" {
		sqlQuery += " AND attribute = ?"
		args = append(args, query.Attribute)
	}
	if query.ErrorsOnly {
		sqlQuery += " AND status != 'Success'"
	}

	sqlQuery += " ORDER BY id DESC"

	if query.Limit > 0 {
		sqlQuery += " LIMIT ?"
		args = append(args, query.Limit)
		if query.Offset > 0 {
			sqlQuery += " OFFSET ?"
			args = append(args, query.Offset)
		}
	}

	rows, err := j.db.Query(sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query calls: %w", err)
	}
	defer rows.Close()

	var calls []Call
	for rows.Next() {
		var c Call
		var value []byte
		var micros int64
		err := rows.Scan(&c.ID, &c.Timestamp, &c.Session, &c.Handle, &c.Op, &c.Attribute,
			&c.Selector, &c.Command, &value, &micros, &c.Status, &c.Error)
		if err != nil {
			return nil, fmt.Errorf("failed to scan call: %w", err)
		}
		if len(value) > 0 {
			if err := cbor.Unmarshal(value, &c.Value); err != nil {
				return nil, fmt.Errorf("failed to decode value of call %d: %w", c.ID, err)
			}
		}
		c.Duration = time.Duration(micros) * time.Microsecond
		calls = append(calls, c)
	}

	return calls, rows.Err()
}

// GetRecentCalls retrieves the most recent calls
func (j *Journal) GetRecentCalls(limit int) ([]Call, error) {
	return j.GetCalls(CallQuery{Limit: limit})
}

// SaveTrace stores a float array read and returns its id
func (j *Journal) SaveTrace(t Trace) (int64, error) {
	points, err := cbor.Marshal(t.Points)
	if err != nil {
		return 0, fmt.Errorf("failed to encode points: %w", err)
	}
	if t.Timestamp.IsZero() {
		t.Timestamp = time.Now()
	}

	tx, err := j.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(`
		INSERT INTO traces (timestamp, session, command, label, points, written, available)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, t.Timestamp.UTC(), t.Session, t.Command, t.Label, points, t.Written, t.Available)
	if err != nil {
		return 0, fmt.Errorf("failed to insert trace: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get trace ID: %w", err)
	}

	if _, err := tx.Exec("UPDATE journal_stats SET total_traces = total_traces + 1 WHERE id = 1"); err != nil {
		return 0, fmt.Errorf("failed to update stats: %w", err)
	}
	if err := j.cleanup(tx, "traces", j.maxTraces); err != nil {
		return 0, fmt.Errorf("failed to clean up traces: %w", err)
	}

	return id, tx.Commit()
}

// GetTrace retrieves one saved trace with its points
func (j *Journal) GetTrace(id int64) (*Trace, error) {
	var t Trace
	var points []byte
	err := j.db.QueryRow(`
		SELECT id, timestamp, session, command, label, points, written, available
		FROM traces WHERE id = ?
	`, id).Scan(&t.ID, &t.Timestamp, &t.Session, &t.Command, &t.Label, &points, &t.Written, &t.Available)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("trace %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get trace: %w", err)
	}
	if err := cbor.Unmarshal(points, &t.Points); err != nil {
		return nil, fmt.Errorf("failed to decode trace %d: %w", id, err)
	}
	return &t, nil
}

// ListTraces lists saved traces without their points, newest first. An
// empty session lists all.
func (j *Journal) ListTraces(sessionName string, limit int) ([]Trace, error) {
	query := "SELECT id, timestamp, session, command, label, written, available FROM traces"
	var args []interface{}
	if sessionName != "" {
		query += " WHERE session = ?"
		args = append(args, sessionName)
	}
	query += " ORDER BY id DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := j.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query traces: %w", err)
	}
	defer rows.Close()

	var traces []Trace
	for rows.Next() {
		var t Trace
		if err := rows.Scan(&t.ID, &t.Timestamp, &t.Session, &t.Command, &t.Label, &t.Written, &t.Available); err != nil {
			return nil, fmt.Errorf("failed to scan trace: %w", err)
		}
		traces = append(traces, t)
	}
	return traces, rows.Err()
}

// DeleteTrace removes a saved trace
func (j *Journal) DeleteTrace(id int64) error {
	result, err := j.db.Exec("DELETE FROM traces WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete trace: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("trace %d not found", id)
	}
	return nil
}

// GetStats retrieves journal statistics
func (j *Journal) GetStats() (*Stats, error) {
	var stats Stats
	var lastCleanup sql.NullTime

	err := j.db.QueryRow(`
		SELECT total_calls, total_errors, total_traces, last_cleanup
		FROM journal_stats WHERE id = 1
	`).Scan(&stats.TotalCalls, &stats.TotalErrors, &stats.TotalTraces, &lastCleanup)
	if err != nil {
		return nil, fmt.Errorf("failed to get journal stats: %w", err)
	}
	if lastCleanup.Valid {
		stats.LastCleanup = lastCleanup.Time
	}
	return &stats, nil
}

// GetCallCount returns the number of journaled calls
func (j *Journal) GetCallCount() (int, error) {
	var count int
	err := j.db.QueryRow("SELECT COUNT(*) FROM calls").Scan(&count)
	return count, err
}
