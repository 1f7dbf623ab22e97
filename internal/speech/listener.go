package speech

import (
	"errors"
	"io"
	log "log/slog"
	"sync"
)

// Listener runs the background listening loop: pull a chunk from the
// source, transcribe it, and hand non-empty transcripts to the consumer
// over a channel. The consumer pulls results; a slow or failing handler
// never runs inside the loop's goroutine stack.
type Listener struct {
	rec Recognizer
	src ChunkSource
	out chan Transcript

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func NewListener(rec Recognizer, src ChunkSource) *Listener {
	return &Listener{
		rec:  rec,
		src:  src,
		out:  make(chan Transcript, 8),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// Transcripts delivers recognized utterances. The channel is closed when
// the loop exits.
func (l *Listener) Transcripts() <-chan Transcript {
	return l.out
}

// Start launches the loop. Call once.
func (l *Listener) Start() {
	go l.run()
}

// Stop asks the loop to exit at the next safe point: the chunk source
// observes the stop channel inside its wait, so a stop mid-wait takes
// effect within one capture interval. In-flight transcription completes.
// Idempotent.
func (l *Listener) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

// Done is closed once the loop has exited.
func (l *Listener) Done() <-chan struct{} {
	return l.done
}

func (l *Listener) run() {
	defer close(l.done)
	defer close(l.out)

	for {
		select {
		case <-l.stop:
			return
		default:
		}

		chunk, err := l.src.Next(l.stop)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			// Transient capture errors keep the loop alive.
			log.Warn("Audio capture failed", "err", err)
			continue
		}
		if len(chunk) == 0 {
			continue
		}

		tr, err := l.rec.Transcribe(chunk)
		if err != nil {
			if errors.Is(err, ErrAdapterClosed) {
				return
			}
			log.Warn("Transcription failed", "err", err)
			continue
		}
		if tr.Text == "" {
			continue
		}

		select {
		case l.out <- tr:
		case <-l.stop:
			return
		}
	}
}
