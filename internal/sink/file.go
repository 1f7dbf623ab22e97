package sink

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"spoky/internal/action"
)

// File appends one JSON record per line to a dated log file, starting a
// new file when the UTC calendar date changes.
type File struct {
	dir string
	now func() time.Time

	mu  sync.Mutex
	day string
	f   *os.File
}

// NewFile creates the log directory if needed and opens today's file.
func NewFile(dir string) (*File, error) {
	return newFile(dir, func() time.Time { return time.Now().UTC() })
}

func newFile(dir string, now func() time.Time) (*File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	s := &File{dir: dir, now: now}
	if err := s.rotateLocked(); err != nil {
		return nil, err
	}
	return s, nil
}

// Append writes the record as one line. The write reaches the OS before
// Append returns.
func (s *File) Append(rec action.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.f == nil {
		return fmt.Errorf("sink closed")
	}
	if day := s.now().Format("20060102"); day != s.day {
		if err := s.rotateLocked(); err != nil {
			return err
		}
	}

	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	if _, err := s.f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append record: %w", err)
	}
	return nil
}

// Path returns the file currently being appended to.
func (s *File) Path() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return filepath.Join(s.dir, "user_actions_"+s.day+".log")
}

// Close is idempotent.
func (s *File) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}

// rotateLocked opens the new day's file before releasing the old handle,
// so a failed open leaves the sink on the previous file and the next
// append retries the rotation.
func (s *File) rotateLocked() error {
	day := s.now().Format("20060102")
	path := filepath.Join(s.dir, "user_actions_"+day+".log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	if s.f != nil {
		s.f.Close()
	}
	s.f = f
	s.day = day
	return nil
}
