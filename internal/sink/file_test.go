package sink

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"spoky/internal/action"
)

func TestAppendWritesDatedFile(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	s, err := newFile(dir, func() time.Time { return now })
	if err != nil {
		t.Fatalf("new file sink: %v", err)
	}
	defer s.Close()

	rec := action.NewRecord("s1", "u1", 1, action.MouseClick, map[string]any{"x": 1.0}, action.StatusSuccess)
	if err := s.Append(rec); err != nil {
		t.Fatalf("append: %v", err)
	}

	want := filepath.Join(dir, "user_actions_20260830.log")
	if s.Path() != want {
		t.Errorf("path = %s, want %s", s.Path(), want)
	}

	lines := readLines(t, want)
	if len(lines) != 1 {
		t.Fatalf("file has %d lines, want 1", len(lines))
	}
	var got action.Record
	if err := json.Unmarshal([]byte(lines[0]), &got); err != nil {
		t.Fatalf("decode line: %v", err)
	}
	if got.ID != rec.ID || got.Type != rec.Type || got.SessionID != rec.SessionID {
		t.Errorf("round-tripped record differs: %+v", got)
	}
}

func TestRotatesAtUTCMidnight(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 8, 30, 23, 59, 59, 0, time.UTC)
	s, err := newFile(dir, func() time.Time { return now })
	if err != nil {
		t.Fatalf("new file sink: %v", err)
	}
	defer s.Close()

	rec := action.NewRecord("s1", "u1", 1, action.Custom, nil, action.StatusSuccess)
	if err := s.Append(rec); err != nil {
		t.Fatalf("append day one: %v", err)
	}

	now = now.Add(2 * time.Second) // past midnight
	if err := s.Append(rec); err != nil {
		t.Fatalf("append day two: %v", err)
	}

	dayOne := filepath.Join(dir, "user_actions_20260830.log")
	dayTwo := filepath.Join(dir, "user_actions_20260831.log")
	if n := len(readLines(t, dayOne)); n != 1 {
		t.Errorf("day one has %d lines, want 1", n)
	}
	if n := len(readLines(t, dayTwo)); n != 1 {
		t.Errorf("day two has %d lines, want 1", n)
	}
}

func TestFailedRotationRetriesNextAppend(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 8, 30, 23, 59, 59, 0, time.UTC)
	s, err := newFile(dir, func() time.Time { return now })
	if err != nil {
		t.Fatalf("new file sink: %v", err)
	}
	defer s.Close()

	rec := action.NewRecord("s1", "u1", 1, action.Custom, nil, action.StatusSuccess)
	if err := s.Append(rec); err != nil {
		t.Fatalf("append day one: %v", err)
	}

	// Block the new day's path so the rotation open fails.
	dayTwo := filepath.Join(dir, "user_actions_20260831.log")
	if err := os.Mkdir(dayTwo, 0o755); err != nil {
		t.Fatalf("mkdir blocker: %v", err)
	}
	now = now.Add(2 * time.Second) // past midnight
	if err := s.Append(rec); err == nil {
		t.Fatal("append succeeded with rotation blocked")
	}

	// The old handle must still be live, and once the blocker is gone
	// the next append rotates and lands in the new file.
	if err := os.Remove(dayTwo); err != nil {
		t.Fatalf("remove blocker: %v", err)
	}
	if err := s.Append(rec); err != nil {
		t.Fatalf("append after blocker removed: %v", err)
	}
	if n := len(readLines(t, dayTwo)); n != 1 {
		t.Errorf("day two has %d lines, want 1", n)
	}
	dayOne := filepath.Join(dir, "user_actions_20260830.log")
	if n := len(readLines(t, dayOne)); n != 1 {
		t.Errorf("day one has %d lines, want 1", n)
	}
}

func TestCloseIdempotent(t *testing.T) {
	s, err := NewFile(t.TempDir())
	if err != nil {
		t.Fatalf("new file sink: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second close: %v", err)
	}
	rec := action.NewRecord("s1", "u1", 1, action.Custom, nil, action.StatusSuccess)
	if err := s.Append(rec); err == nil {
		t.Error("append after close succeeded")
	}
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return lines
}
