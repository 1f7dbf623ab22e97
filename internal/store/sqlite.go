package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"spoky/internal/action"
)

// Fixed-width nanosecond layout so lexicographic ORDER BY on the text
// column matches chronological order (RFC3339Nano trims trailing zeros).
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const createActionLogsSQL = `CREATE TABLE IF NOT EXISTS user_action_logs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	record_id TEXT NOT NULL,
	session_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	seq INTEGER NOT NULL,
	timestamp TEXT NOT NULL,
	action_type TEXT NOT NULL,
	details TEXT NOT NULL,
	status TEXT NOT NULL
)`

type SQLite struct {
	db *sql.DB

	closeOnce sync.Once
	closeErr  error
}

// OpenSQLite opens (creating if missing) the action log database at path.
// ":memory:" gives an in-process database.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec(createActionLogsSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Write(ctx context.Context, rec action.Record) (int64, error) {
	details, err := json.Marshal(rec.Details)
	if err != nil {
		return 0, fmt.Errorf("encode details: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO user_action_logs
			(record_id, session_id, user_id, seq, timestamp, action_type, details, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.SessionID, rec.UserID, rec.Seq,
		rec.Timestamp.UTC().Format(sqliteTimeLayout),
		string(rec.Type), string(details), string(rec.Status))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrWriteFailure, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

func (s *SQLite) Query(ctx context.Context, f Filter, limit int) ([]action.Record, error) {
	var conds []string
	var args []any
	if f.UserID != "" {
		conds = append(conds, "user_id = ?")
		args = append(args, f.UserID)
	}
	if f.SessionID != "" {
		conds = append(conds, "session_id = ?")
		args = append(args, f.SessionID)
	}
	if f.Type != "" {
		conds = append(conds, "action_type = ?")
		args = append(args, string(f.Type))
	}
	if !f.Since.IsZero() {
		conds = append(conds, "timestamp >= ?")
		args = append(args, f.Since.UTC().Format(sqliteTimeLayout))
	}
	if !f.Until.IsZero() {
		conds = append(conds, "timestamp <= ?")
		args = append(args, f.Until.UTC().Format(sqliteTimeLayout))
	}

	// Most recent `limit` rows, then reversed so callers always see
	// ascending timestamps.
	q := `SELECT record_id, session_id, user_id, seq, timestamp, action_type, details, status
		FROM user_action_logs`
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY timestamp DESC, id DESC"
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query actions: %w", err)
	}
	defer rows.Close()

	var recs []action.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	reverse(recs)
	return recs, nil
}

// Close is idempotent.
func (s *SQLite) Close() error {
	s.closeOnce.Do(func() { s.closeErr = s.db.Close() })
	return s.closeErr
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (action.Record, error) {
	var rec action.Record
	var ts, typ, details, status string
	if err := row.Scan(&rec.ID, &rec.SessionID, &rec.UserID, &rec.Seq, &ts, &typ, &details, &status); err != nil {
		return action.Record{}, fmt.Errorf("scan record: %w", err)
	}
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return action.Record{}, fmt.Errorf("parse timestamp: %w", err)
	}
	rec.Timestamp = t
	rec.Type = action.Type(typ)
	rec.Status = action.Status(status)
	if err := json.Unmarshal([]byte(details), &rec.Details); err != nil {
		return action.Record{}, fmt.Errorf("decode details: %w", err)
	}
	return rec, nil
}

func reverse(recs []action.Record) {
	for i, j := 0, len(recs)-1; i < j; i, j = i+1, j-1 {
		recs[i], recs[j] = recs[j], recs[i]
	}
}
