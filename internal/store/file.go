package store

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"

	"spoky/internal/action"
)

// FileGateway keeps the durable log as newline-delimited JSON in a single
// file. It satisfies the same contract as the SQL backends, for setups
// with no database at all.
type FileGateway struct {
	path string

	mu     sync.Mutex
	f      *os.File
	nextID int64
}

type fileRow struct {
	ID     int64         `json:"row_id"`
	Record action.Record `json:"record"`
}

func OpenFile(path string) (*FileGateway, error) {
	if path == "" {
		path = "spoky_actions.jsonl"
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open action log: %w", err)
	}
	g := &FileGateway{path: path, f: f, nextID: 1}

	// Resume row numbering after the existing tail.
	rows, err := g.readAll()
	if err != nil {
		f.Close()
		return nil, err
	}
	for _, r := range rows {
		if r.ID >= g.nextID {
			g.nextID = r.ID + 1
		}
	}
	return g, nil
}

func (g *FileGateway) Write(_ context.Context, rec action.Record) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.f == nil {
		return 0, fmt.Errorf("%w: gateway closed", ErrWriteFailure)
	}
	row := fileRow{ID: g.nextID, Record: rec}
	line, err := json.Marshal(row)
	if err != nil {
		return 0, fmt.Errorf("encode record: %w", err)
	}
	if _, err := g.f.Write(append(line, '\n')); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrWriteFailure, err)
	}
	g.nextID++
	return row.ID, nil
}

func (g *FileGateway) Query(_ context.Context, f Filter, limit int) ([]action.Record, error) {
	g.mu.Lock()
	rows, err := g.readAll()
	g.mu.Unlock()
	if err != nil {
		return nil, err
	}

	var recs []action.Record
	for _, r := range rows {
		if matches(r.Record, f) {
			recs = append(recs, r.Record)
		}
	}
	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].Timestamp.Before(recs[j].Timestamp)
	})
	if limit > 0 && len(recs) > limit {
		recs = recs[len(recs)-limit:]
	}
	return recs, nil
}

// Close is idempotent.
func (g *FileGateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.f == nil {
		return nil
	}
	err := g.f.Close()
	g.f = nil
	return err
}

func matches(rec action.Record, f Filter) bool {
	if f.UserID != "" && rec.UserID != f.UserID {
		return false
	}
	if f.SessionID != "" && rec.SessionID != f.SessionID {
		return false
	}
	if f.Type != "" && rec.Type != f.Type {
		return false
	}
	if !f.Since.IsZero() && rec.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && rec.Timestamp.After(f.Until) {
		return false
	}
	return true
}

func (g *FileGateway) readAll() ([]fileRow, error) {
	f, err := os.Open(g.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open action log: %w", err)
	}
	defer f.Close()

	var rows []fileRow
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var r fileRow
		if err := json.Unmarshal(line, &r); err != nil {
			return nil, fmt.Errorf("decode action log line: %w", err)
		}
		rows = append(rows, r)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read action log: %w", err)
	}
	return rows, nil
}
