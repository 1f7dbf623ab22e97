package audio

import (
	"io"
	"math"
	"time"

	"github.com/gordonklaus/portaudio"
)

const (
	frameSize        = 320 // 20ms at 16 kHz
	silenceThreshRMS = 0.015
	silenceDuration  = 600 * time.Millisecond
	maxUtteranceSecs = 10
)

// Recorder captures utterance-sized chunks from the default input device.
// The microphone stream is owned exclusively by the recorder.
type Recorder struct {
	sampleRate  int
	initialized bool
}

func NewRecorder(sampleRate int) *Recorder {
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	return &Recorder{sampleRate: sampleRate}
}

func (r *Recorder) Init() error {
	if r.initialized {
		return nil
	}
	if err := portaudio.Initialize(); err != nil {
		return err
	}
	r.initialized = true
	return nil
}

func (r *Recorder) Close() {
	if !r.initialized {
		return
	}
	portaudio.Terminate()
	r.initialized = false
}

// Next records one utterance: waits for speech, then captures until
// silenceDuration of quiet or the max utterance length. It checks stop
// every frame (20ms) and returns io.EOF when stopped, which ends the
// listening loop.
func (r *Recorder) Next(stop <-chan struct{}) ([]float32, error) {
	buf := make([]float32, frameSize)
	out := make([]float32, 0, r.sampleRate*3)

	stream, err := portaudio.OpenDefaultStream(1, 0, float64(r.sampleRate), len(buf), buf)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return nil, err
	}
	defer stream.Stop()

	var (
		speaking      bool
		silenceFrames int
	)
	frameDur := time.Duration(frameSize) * time.Second / time.Duration(r.sampleRate)
	maxFrames := maxUtteranceSecs * r.sampleRate / frameSize

	for i := 0; i < maxFrames; i++ {
		select {
		case <-stop:
			return nil, io.EOF
		default:
		}

		if err := stream.Read(); err != nil {
			return nil, err
		}

		if frameRMS(buf) > silenceThreshRMS {
			speaking = true
			silenceFrames = 0
			out = append(out, buf...)
			continue
		}
		if speaking {
			silenceFrames++
			if time.Duration(silenceFrames)*frameDur >= silenceDuration {
				break
			}
			out = append(out, buf...)
		}
	}

	return out, nil
}

func frameRMS(f []float32) float64 {
	var s float64
	for _, x := range f {
		s += float64(x * x)
	}
	return math.Sqrt(s / float64(len(f)))
}
