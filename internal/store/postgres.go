package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq"

	"spoky/internal/action"
)

const createActionLogsPGSQL = `CREATE TABLE IF NOT EXISTS user_action_logs (
	id BIGSERIAL PRIMARY KEY,
	record_id TEXT NOT NULL,
	session_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	seq INTEGER NOT NULL,
	timestamp TIMESTAMPTZ NOT NULL,
	action_type TEXT NOT NULL,
	details JSONB NOT NULL,
	status TEXT NOT NULL
)`

type Postgres struct {
	db *sql.DB

	closeOnce sync.Once
	closeErr  error
}

func OpenPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	if _, err := db.Exec(createActionLogsPGSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Write(ctx context.Context, rec action.Record) (int64, error) {
	details, err := json.Marshal(rec.Details)
	if err != nil {
		return 0, fmt.Errorf("encode details: %w", err)
	}
	var id int64
	err = p.db.QueryRowContext(ctx,
		`INSERT INTO user_action_logs
			(record_id, session_id, user_id, seq, timestamp, action_type, details, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		rec.ID, rec.SessionID, rec.UserID, rec.Seq,
		rec.Timestamp.UTC(), string(rec.Type), string(details), string(rec.Status)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrWriteFailure, err)
	}
	return id, nil
}

func (p *Postgres) Query(ctx context.Context, f Filter, limit int) ([]action.Record, error) {
	var conds []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if f.UserID != "" {
		conds = append(conds, "user_id = "+arg(f.UserID))
	}
	if f.SessionID != "" {
		conds = append(conds, "session_id = "+arg(f.SessionID))
	}
	if f.Type != "" {
		conds = append(conds, "action_type = "+arg(string(f.Type)))
	}
	if !f.Since.IsZero() {
		conds = append(conds, "timestamp >= "+arg(f.Since.UTC()))
	}
	if !f.Until.IsZero() {
		conds = append(conds, "timestamp <= "+arg(f.Until.UTC()))
	}

	q := `SELECT record_id, session_id, user_id, seq, timestamp, action_type, details, status
		FROM user_action_logs`
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY timestamp DESC, id DESC"
	if limit > 0 {
		q += " LIMIT " + arg(limit)
	}

	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query actions: %w", err)
	}
	defer rows.Close()

	var recs []action.Record
	for rows.Next() {
		var rec action.Record
		var typ, details, status string
		var ts time.Time
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.UserID, &rec.Seq, &ts, &typ, &details, &status); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		rec.Timestamp = ts.UTC()
		rec.Type = action.Type(typ)
		rec.Status = action.Status(status)
		if err := json.Unmarshal([]byte(details), &rec.Details); err != nil {
			return nil, fmt.Errorf("decode details: %w", err)
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
func (p *Postgres) Close() error {
	p.closeOnce.Do(func() { p.closeErr = p.db.Close() })
	return p.closeErr
}
