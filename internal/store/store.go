package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"spoky/internal/action"
)

// ErrWriteFailure wraps backend I/O errors so callers can pick a retry
// policy without inspecting driver-specific errors. The gateway itself
// never retries: blind replay could reorder the append-only log.
var ErrWriteFailure = errors.New("durable write failed")

// Filter narrows a historical query. Zero-valued fields are ignored; an
// empty filter selects across all users and sessions.
type Filter struct {
	UserID    string
	SessionID string
	Type      action.Type
	Since     time.Time
	Until     time.Time
}

// Gateway owns the durable copy of the action log and answers filtered
// queries over it. Results are ordered by timestamp ascending; when limit
// trims the result it keeps the most recent records.
type Gateway interface {
	Write(ctx context.Context, rec action.Record) (int64, error)
	Query(ctx context.Context, f Filter, limit int) ([]action.Record, error)
	Close() error
}

// Open selects a backend by database type. The connection string is a
// file path for the sqlite and file backends and a DSN for postgres.
func Open(dbType, conn string) (Gateway, error) {
	switch dbType {
	case "sqlite":
		return OpenSQLite(conn)
	case "postgres":
		return OpenPostgres(conn)
	case "file", "":
		return OpenFile(conn)
	case "dynamo":
		return nil, fmt.Errorf("dynamo has no local gateway; records reach it through the cloud forwarder")
	default:
		return nil, fmt.Errorf("unsupported database type %q", dbType)
	}
}
