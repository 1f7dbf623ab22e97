package speech

import "errors"

var (
	// ErrAdapterClosed is returned when a recognizer is used after Close.
	ErrAdapterClosed = errors.New("recognizer closed")
	// ErrInvalidAudioFormat is returned for audio the engine cannot take.
	// Silence is not an error; it yields an empty transcript.
	ErrInvalidAudioFormat = errors.New("invalid audio format")
)

// Transcript is the engine's output for one utterance. Confidence is in
// [0, 1]; engines that report none use 1 for recognized speech and 0 for
// silence.
type Transcript struct {
	Text       string
	Confidence float64
}

// Recognizer turns mono 16 kHz float32 samples into text.
type Recognizer interface {
	Transcribe(samples []float32) (Transcript, error)
	Close() error
}

// ChunkSource produces utterance-sized sample chunks. Next blocks until a
// chunk is ready or stop is closed; it returns io.EOF when the source is
// exhausted or stopped.
type ChunkSource interface {
	Next(stop <-chan struct{}) ([]float32, error)
}
