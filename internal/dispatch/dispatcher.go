package dispatch

import (
	"fmt"
	log "log/slog"
	"sort"
	"strings"
	"sync"
	"time"
)

// Handler runs when its trigger phrase is recognized.
type Handler func()

type binding struct {
	phrase       string
	handler      Handler
	registeredAt time.Time
}

// Dispatcher maps normalized trigger phrases to handlers. Registering a
// phrase that already exists replaces the previous handler (last write
// wins). The table is read on every transcript and written only during
// startup, so a single RWMutex covers it.
type Dispatcher struct {
	mu       sync.RWMutex
	bindings map[string]binding
	onPanic  func(trigger string, err error)
}

func New() *Dispatcher {
	return &Dispatcher{bindings: make(map[string]binding)}
}

// OnPanic installs a callback invoked when a handler panics. The panic is
// contained either way; dispatch never crashes the listening loop.
func (d *Dispatcher) OnPanic(f func(trigger string, err error)) {
	d.mu.Lock()
	d.onPanic = f
	d.mu.Unlock()
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Register binds a trigger phrase, replacing any existing binding for the
// same normalized phrase.
func (d *Dispatcher) Register(phrase string, h Handler) {
	key := normalize(phrase)
	if key == "" || h == nil {
		return
	}
	d.mu.Lock()
	if _, exists := d.bindings[key]; exists {
		log.Debug("Replacing command binding", "trigger", key)
	}
	d.bindings[key] = binding{phrase: key, handler: h, registeredAt: time.Now()}
	d.mu.Unlock()
	log.Debug("Registered command", "trigger", key)
}

// Unregister removes a binding; absent phrases are a no-op.
func (d *Dispatcher) Unregister(phrase string) {
	d.mu.Lock()
	delete(d.bindings, normalize(phrase))
	d.mu.Unlock()
}

// Triggers lists the registered phrases in sorted order.
func (d *Dispatcher) Triggers() []string {
	d.mu.RLock()
	out := make([]string, 0, len(d.bindings))
	for k := range d.bindings {
		out = append(out, k)
	}
	d.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Dispatch matches text against the binding table and runs the matched
// handler synchronously. An exact match wins; otherwise the longest
// registered phrase contained in the text wins, so "hello spoky" beats
// "hello" for "hello spoky world". Equal lengths break toward the
// lexicographically smaller phrase. Returns whether a handler fired.
func (d *Dispatcher) Dispatch(text string) bool {
	key := normalize(text)
	if key == "" {
		return false
	}

	d.mu.RLock()
	b, ok := d.bindings[key]
	if !ok {
		for _, cand := range d.bindings {
			if !strings.Contains(key, cand.phrase) {
				continue
			}
			if !ok ||
				len(cand.phrase) > len(b.phrase) ||
				(len(cand.phrase) == len(b.phrase) && cand.phrase < b.phrase) {
				b = cand
				ok = true
			}
		}
	}
	onPanic := d.onPanic
	d.mu.RUnlock()

	if !ok {
		log.Debug("No command matched", "text", key)
		return false
	}

	log.Info("Dispatching command", "trigger", b.phrase)
	d.run(b, onPanic)
	return true
}

func (d *Dispatcher) run(b binding, onPanic func(string, error)) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("handler %q panicked: %v", b.phrase, r)
			log.Error("Command handler failed", "trigger", b.phrase, "err", err)
			if onPanic != nil {
				onPanic(b.phrase, err)
			}
		}
	}()
	b.handler()
}
