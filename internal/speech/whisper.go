package speech

import (
	"errors"
	"fmt"
	"io"
	"math"
	"runtime"
	"strings"
	"sync"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
)

// WhisperOptions tune a transcription pass. The zero value is usable.
type WhisperOptions struct {
	Language      string // "auto", "en", "ru"; empty means auto
	TranslateToEn bool
	Threads       int // <=0 means NumCPU
	InitialPrompt string
	BeamSize      int // >0 enables beam search
}

// Whisper adapts the whisper.cpp model to the Recognizer interface.
type Whisper struct {
	opt WhisperOptions

	mu    sync.Mutex
	model whisper.Model
}

// NewWhisper loads the ggml model at modelPath. Load failure is fatal to
// the caller; there is no degraded mode with a missing model.
func NewWhisper(modelPath string, opt WhisperOptions) (*Whisper, error) {
	if modelPath == "" {
		return nil, errors.New("empty model path")
	}
	m, err := whisper.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}
	if opt.Language == "" {
		opt.Language = "auto"
	}
	return &Whisper{model: m, opt: opt}, nil
}

// Transcribe runs one pass over the samples. Silence produces an empty
// transcript, not an error.
func (w *Whisper) Transcribe(samples []float32) (Transcript, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.model == nil {
		return Transcript{}, ErrAdapterClosed
	}
	if len(samples) == 0 {
		return Transcript{}, fmt.Errorf("%w: no samples", ErrInvalidAudioFormat)
	}
	for _, s := range samples {
		if math.IsNaN(float64(s)) || math.IsInf(float64(s), 0) {
			return Transcript{}, fmt.Errorf("%w: non-finite sample", ErrInvalidAudioFormat)
		}
	}

	wctx, err := w.model.NewContext()
	if err != nil {
		return Transcript{}, fmt.Errorf("new context: %w", err)
	}
	if err := wctx.SetLanguage(w.opt.Language); err != nil {
		return Transcript{}, fmt.Errorf("set language: %w", err)
	}
	wctx.SetTranslate(w.opt.TranslateToEn)

	threads := w.opt.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	wctx.SetThreads(uint(threads))

	if w.opt.InitialPrompt != "" {
		wctx.SetInitialPrompt(w.opt.InitialPrompt)
	}
	if w.opt.BeamSize > 0 {
		wctx.SetBeamSize(w.opt.BeamSize)
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return Transcript{}, fmt.Errorf("process: %w", err)
	}

	var parts []string
	for {
		s, err := wctx.NextSegment()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Transcript{}, fmt.Errorf("next segment: %w", err)
		}
		parts = append(parts, strings.TrimSpace(s.Text))
	}

	text := strings.TrimSpace(strings.Join(parts, " "))
	conf := 0.0
	if text != "" {
		// whisper.cpp reports no utterance confidence through these
		// bindings; recognized speech counts as certain.
		conf = 1.0
	}
	return Transcript{Text: text, Confidence: conf}, nil
}

// Close releases the model. Safe to call more than once.
func (w *Whisper) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.model == nil {
		return nil
	}
	err := w.model.Close()
	w.model = nil
	return err
}
