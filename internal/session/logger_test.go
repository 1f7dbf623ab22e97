package session

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"spoky/internal/action"
)

// captureSink records every append in order.
type captureSink struct {
	recs []action.Record
	err  error
}

func (s *captureSink) Append(rec action.Record) error {
	if s.err != nil {
		return s.err
	}
	s.recs = append(s.recs, rec)
	return nil
}

func startedLogger(t *testing.T, sink Sink) *Logger {
	t.Helper()
	l := NewLogger("test_user", sink)
	if _, err := l.Start("s1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	return l
}

func TestScenarioStats(t *testing.T) {
	l := startedLogger(t, nil)

	if _, err := l.LogMouseClick(100, 200, "left"); err != nil {
		t.Fatalf("log mouse: %v", err)
	}
	if _, err := l.LogVoiceCommand("open browser", "open browser", 0.95); err != nil {
		t.Fatalf("log voice: %v", err)
	}
	if _, err := l.End(); err != nil {
		t.Fatalf("end: %v", err)
	}

	st := l.Stats()
	if st.Total != 2 {
		t.Errorf("total = %d, want 2", st.Total)
	}
	if st.PerType[action.MouseClick] != 1 {
		t.Errorf("mouse_click = %d, want 1", st.PerType[action.MouseClick])
	}
	if st.PerType[action.VoiceCommand] != 1 {
		t.Errorf("voice_command = %d, want 1", st.PerType[action.VoiceCommand])
	}
	if st.Duration <= 0 {
		t.Errorf("duration = %v, want > 0", st.Duration)
	}
}

func TestLogAfterEnd(t *testing.T) {
	l := startedLogger(t, nil)
	if _, err := l.End(); err != nil {
		t.Fatalf("end: %v", err)
	}
	if _, err := l.Log(action.Custom, nil, action.StatusSuccess); !errors.Is(err, ErrClosed) {
		t.Errorf("log after end = %v, want ErrClosed", err)
	}
}

func TestEndIdempotent(t *testing.T) {
	l := startedLogger(t, nil)

	first, err := l.End()
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	second, err := l.End()
	if err != nil {
		t.Fatalf("second end: %v", err)
	}
	if !second.EndTime.Equal(first.EndTime) {
		t.Errorf("second end changed end time: %v != %v", second.EndTime, first.EndTime)
	}
}

func TestDoubleStart(t *testing.T) {
	l := startedLogger(t, nil)
	if _, err := l.Start("s2"); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("double start = %v, want ErrAlreadyStarted", err)
	}

	// A fresh session may start after End.
	if _, err := l.End(); err != nil {
		t.Fatalf("end: %v", err)
	}
	if _, err := l.Start("s2"); err != nil {
		t.Errorf("start after end: %v", err)
	}
}

func TestInvalidActionType(t *testing.T) {
	l := startedLogger(t, nil)
	if _, err := l.Log(action.Type("teleport"), nil, action.StatusSuccess); !errors.Is(err, action.ErrInvalidType) {
		t.Errorf("log bad type = %v, want ErrInvalidType", err)
	}
	if st := l.Stats(); st.Total != 0 {
		t.Errorf("rejected record counted: total = %d", st.Total)
	}
}

func TestAppendOrderMatchesCallOrder(t *testing.T) {
	cs := &captureSink{}
	l := startedLogger(t, cs)

	types := []action.Type{action.MouseClick, action.KeyboardInput, action.WindowSwitch, action.Custom}
	for _, typ := range types {
		if _, err := l.Log(typ, nil, action.StatusSuccess); err != nil {
			t.Fatalf("log %s: %v", typ, err)
		}
	}

	// First sink entry is the session_start marker.
	if len(cs.recs) != len(types)+1 {
		t.Fatalf("sink has %d records, want %d", len(cs.recs), len(types)+1)
	}
	if cs.recs[0].Type != action.SessionStart {
		t.Fatalf("first sink record is %s, want session_start", cs.recs[0].Type)
	}
	for i, typ := range types {
		got := cs.recs[i+1]
		if got.Type != typ {
			t.Errorf("sink[%d] = %s, want %s", i+1, got.Type, typ)
		}
		if got.Seq != i+1 {
			t.Errorf("sink[%d].Seq = %d, want %d", i+1, got.Seq, i+1)
		}
	}
}

func TestStatsSumToRecordCount(t *testing.T) {
	l := startedLogger(t, nil)
	l.LogMouseClick(1, 2, "left")
	l.LogMouseClick(3, 4, "right")
	l.LogKeyboardInput("hi", "editor")
	l.LogError("boom", "it broke", nil)

	st := l.Stats()
	sum := 0
	for _, n := range st.PerType {
		sum += n
	}
	if sum != st.Total {
		t.Errorf("per-type sum %d != total %d", sum, st.Total)
	}
	if st.Total != len(l.Records()) {
		t.Errorf("total %d != buffer length %d", st.Total, len(l.Records()))
	}
}

func TestSinkFailureNotAcknowledged(t *testing.T) {
	cs := &captureSink{err: errors.New("disk full")}
	l := startedLogger(t, nil)
	l.sink = cs // session_start already went to the nil sink

	if _, err := l.Log(action.Custom, nil, action.StatusSuccess); err == nil {
		t.Fatal("log succeeded despite failing sink")
	}
	if st := l.Stats(); st.Total != 0 {
		t.Errorf("unacknowledged record counted: total = %d", st.Total)
	}
}

// markerFailSink rejects only session boundary markers.
type markerFailSink struct {
	captureSink
}

func (s *markerFailSink) Append(rec action.Record) error {
	switch rec.Type {
	case action.SessionStart, action.SessionEnd:
		return errors.New("marker rejected")
	}
	return s.captureSink.Append(rec)
}

func TestMarkerSinkFailureNotFatal(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	defer slog.SetDefault(prev)

	ms := &markerFailSink{}
	l := NewLogger("test_user", ms)
	if _, err := l.Start("s1"); err != nil {
		t.Fatalf("start with failing marker sink: %v", err)
	}
	if _, err := l.Log(action.Custom, nil, action.StatusSuccess); err != nil {
		t.Fatalf("log: %v", err)
	}
	if _, err := l.End(); err != nil {
		t.Fatalf("end with failing marker sink: %v", err)
	}

	if len(ms.recs) != 1 || ms.recs[0].Type != action.Custom {
		t.Errorf("sink records = %v, want just the custom record", ms.recs)
	}
	logged := buf.String()
	if !strings.Contains(logged, "session marker") || !strings.Contains(logged, "marker rejected") {
		t.Errorf("marker failure not logged: %q", logged)
	}
}

func TestDetailsImmutable(t *testing.T) {
	l := startedLogger(t, nil)
	details := map[string]any{"x": 1}
	rec, err := l.Log(action.Custom, details, action.StatusSuccess)
	if err != nil {
		t.Fatalf("log: %v", err)
	}
	details["x"] = 99
	if rec.Details["x"] != 1 {
		t.Errorf("record details mutated through caller's map: %v", rec.Details["x"])
	}
}
