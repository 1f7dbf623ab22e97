package cloud

import (
	"fmt"
	log "log/slog"
	"net/url"
	"sync"

	"spoky/internal/action"
	"spoky/internal/config"
)

// Forwarder ships action records to the cloud ingest endpoint in the
// background. Forwarding is best-effort: a full queue drops the record
// with a warning, but every record accepted into the queue is flushed
// before Close returns.
type Forwarder struct {
	sender sender

	mu     sync.Mutex
	closed bool
	queue  chan action.Record
	done   chan struct{}
}

type sender interface {
	send(batch []action.Record) error
	close() error
}

// New builds a forwarder for the configured endpoint. ws/wss endpoints
// stream records over a websocket; http/https endpoints receive JSON
// batches by POST.
func New(cfg config.CloudConfig) (*Forwarder, error) {
	u, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse cloud endpoint: %w", err)
	}

	var s sender
	switch u.Scheme {
	case "ws", "wss":
		s, err = newStreamSender(cfg.Endpoint)
	case "http", "https":
		s, err = newBatchSender(cfg.Endpoint, cfg.Proxy)
	default:
		return nil, fmt.Errorf("unsupported cloud endpoint scheme %q", u.Scheme)
	}
	if err != nil {
		return nil, err
	}

	f := &Forwarder{
		sender: s,
		queue:  make(chan action.Record, 256),
		done:   make(chan struct{}),
	}
	go f.run()
	return f, nil
}

// Forward enqueues a record for delivery. Never blocks the logger caller.
func (f *Forwarder) Forward(rec action.Record) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	select {
	case f.queue <- rec:
	default:
		log.Warn("Cloud queue full, dropping record", "record_id", rec.ID, "type", rec.Type)
	}
}

// Close stops intake, flushes everything already queued, and releases the
// connection. Idempotent.
func (f *Forwarder) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	close(f.queue)
	f.mu.Unlock()

	<-f.done
	return f.sender.close()
}

func (f *Forwarder) run() {
	defer close(f.done)
	for {
		rec, ok := <-f.queue
		if !ok {
			return
		}
		batch := []action.Record{rec}
		// Coalesce whatever is already waiting.
	drain:
		for len(batch) < 32 {
			select {
			case r, ok := <-f.queue:
				if !ok {
					break drain
				}
				batch = append(batch, r)
			default:
				break drain
			}
		}
		if err := f.sender.send(batch); err != nil {
			log.Warn("Cloud forward failed", "records", len(batch), "err", err)
		}
	}
}
