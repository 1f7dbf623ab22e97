package session

import (
	"errors"
	"fmt"
	log "log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"spoky/internal/action"
)

var (
	// ErrAlreadyStarted is returned by Start when a session is open.
	ErrAlreadyStarted = errors.New("session already started")
	// ErrClosed is returned by Log when no session is open.
	ErrClosed = errors.New("session closed")
)

// Sink receives every acknowledged record. Append must persist the record
// before returning; Log reports the sink's error to its caller.
type Sink interface {
	Append(rec action.Record) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(rec action.Record) error

func (f SinkFunc) Append(rec action.Record) error { return f(rec) }

// MultiSink fans an append out to several sinks, stopping at the first error.
type MultiSink []Sink

func (m MultiSink) Append(rec action.Record) error {
	for _, s := range m {
		if err := s.Append(rec); err != nil {
			return err
		}
	}
	return nil
}

// Session is the bounded window of records sharing one identifier.
type Session struct {
	ID        string
	UserID    string
	StartTime time.Time
	EndTime   time.Time // zero until ended
}

// Stats is a point-in-time view of the open (or ended) session.
type Stats struct {
	SessionID string
	UserID    string
	Total     int
	PerType   map[action.Type]int
	Duration  time.Duration
}

// Logger accumulates action records for one session at a time and appends
// them to the configured sink. All mutation goes through a single mutex so
// appends from the listener goroutine and foreground cannot interleave.
type Logger struct {
	userID string
	sink   Sink

	mu      sync.Mutex
	sess    *Session
	records []action.Record
	counts  map[action.Type]int
	seq     int
}

// NewLogger builds a logger for one user. sink may be nil; records are then
// kept only in the in-memory buffer.
func NewLogger(userID string, sink Sink) *Logger {
	return &Logger{userID: userID, sink: sink}
}

// Start opens a new session. An empty id gets a generated one. Starting
// while a session is open fails with ErrAlreadyStarted; starting after End
// opens a fresh session.
func (l *Logger) Start(id string) (Session, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.sess != nil && l.sess.EndTime.IsZero() {
		return Session{}, ErrAlreadyStarted
	}
	if id == "" {
		id = uuid.NewString()
	}

	l.sess = &Session{
		ID:        id,
		UserID:    l.userID,
		StartTime: time.Now().UTC(),
	}
	l.records = nil
	l.counts = make(map[action.Type]int)
	l.seq = 0

	// Marker records go to the sink only; they do not count toward
	// session stats. A failing sink at the boundary is logged, not fatal.
	err := l.appendSink(action.NewRecord(id, l.userID, 0, action.SessionStart, map[string]any{
		"session_start_time": l.sess.StartTime.Format(time.RFC3339Nano),
	}, action.StatusSuccess))
	if err != nil {
		log.Warn("Failed to append session marker", "type", action.SessionStart, "session", id, "err", err)
	}

	return *l.sess, nil
}

// Log appends one record. The record is durable in the sink before Log
// returns; a sink failure is surfaced and the record is not acknowledged.
func (l *Logger) Log(t action.Type, details map[string]any, status action.Status) (action.Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.sess == nil || !l.sess.EndTime.IsZero() {
		return action.Record{}, ErrClosed
	}
	if !t.Valid() {
		return action.Record{}, fmt.Errorf("%w: %q", action.ErrInvalidType, t)
	}

	rec := action.NewRecord(l.sess.ID, l.userID, l.seq+1, t, details, status)
	if err := l.appendSink(rec); err != nil {
		return action.Record{}, err
	}

	l.seq++
	l.records = append(l.records, rec)
	l.counts[t]++
	return rec, nil
}

// Stats never fails; before Start it reports zeroes.
func (l *Logger) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	st := Stats{UserID: l.userID, PerType: make(map[action.Type]int)}
	if l.sess == nil {
		return st
	}
	st.SessionID = l.sess.ID
	for t, n := range l.counts {
		st.PerType[t] = n
		st.Total += n
	}
	if l.sess.EndTime.IsZero() {
		st.Duration = time.Since(l.sess.StartTime)
	} else {
		st.Duration = l.sess.EndTime.Sub(l.sess.StartTime)
	}
	return st
}

// End seals the session. Calling End again is a no-op that returns the
// already-ended session without touching its end time.
func (l *Logger) End() (Session, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.sess == nil {
		return Session{}, ErrClosed
	}
	if !l.sess.EndTime.IsZero() {
		return *l.sess, nil
	}

	l.sess.EndTime = time.Now().UTC()
	err := l.appendSink(action.NewRecord(l.sess.ID, l.userID, l.seq+1, action.SessionEnd, map[string]any{
		"total_actions":    l.totalLocked(),
		"duration_seconds": l.sess.EndTime.Sub(l.sess.StartTime).Seconds(),
	}, action.StatusSuccess))
	if err != nil {
		log.Warn("Failed to append session marker", "type", action.SessionEnd, "session", l.sess.ID, "err", err)
	}

	return *l.sess, nil
}

// Records returns a copy of the in-memory buffer for the current session.
func (l *Logger) Records() []action.Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]action.Record(nil), l.records...)
}

func (l *Logger) totalLocked() int {
	total := 0
	for _, n := range l.counts {
		total += n
	}
	return total
}

func (l *Logger) appendSink(rec action.Record) error {
	if l.sink == nil {
		return nil
	}
	return l.sink.Append(rec)
}
