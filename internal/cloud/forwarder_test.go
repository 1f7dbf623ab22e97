package cloud

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"spoky/internal/action"
	"spoky/internal/config"
)

type captureServer struct {
	mu      sync.Mutex
	records []action.Record
}

func (c *captureServer) handler(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var batch []action.Record
	if err := json.Unmarshal(body, &batch); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	c.mu.Lock()
	c.records = append(c.records, batch...)
	c.mu.Unlock()
	w.WriteHeader(http.StatusAccepted)
}

func (c *captureServer) received() []action.Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]action.Record(nil), c.records...)
}

func newTestForwarder(t *testing.T) (*Forwarder, *captureServer) {
	t.Helper()
	capture := &captureServer{}
	srv := httptest.NewServer(http.HandlerFunc(capture.handler))
	t.Cleanup(srv.Close)

	f, err := New(config.CloudConfig{Enabled: true, Endpoint: srv.URL})
	if err != nil {
		t.Fatalf("new forwarder: %v", err)
	}
	return f, capture
}

func TestCloseFlushesQueuedRecords(t *testing.T) {
	f, capture := newTestForwarder(t)

	const n = 10
	for i := 0; i < n; i++ {
		f.Forward(action.NewRecord("sess", "alice", i+1, action.VoiceCommand,
			map[string]any{"recognized_text": "status"}, action.StatusSuccess))
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	got := capture.received()
	if len(got) != n {
		t.Fatalf("received %d records after close, want %d", len(got), n)
	}
	for i, rec := range got {
		if rec.Seq != i+1 {
			t.Errorf("record %d seq = %d, want %d", i, rec.Seq, i+1)
		}
	}
}

func TestForwardAfterCloseIsDropped(t *testing.T) {
	f, capture := newTestForwarder(t)

	if err := f.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	f.Forward(action.NewRecord("sess", "alice", 1, action.Error,
		map[string]any{"error_message": "late"}, action.StatusFailure))
	time.Sleep(50 * time.Millisecond)

	if got := capture.received(); len(got) != 0 {
		t.Errorf("received %d records forwarded after close", len(got))
	}
}

func TestCloseIdempotent(t *testing.T) {
	f, _ := newTestForwarder(t)
	if err := f.Close(); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestUnsupportedSchemeRejected(t *testing.T) {
	if _, err := New(config.CloudConfig{Endpoint: "ftp://ingest.example.com"}); err == nil {
		t.Error("ftp endpoint accepted")
	}
}
