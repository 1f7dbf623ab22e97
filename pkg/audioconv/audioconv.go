// Package audioconv decodes common audio containers to the mono 16 kHz
// float32 PCM that the speech engine expects.
package audioconv

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
	popus "github.com/pekim/opus"
)

const targetRate = 16000

// DecodeFile decodes path by extension, falling back to sniffing the
// container magic for files with no useful extension.
func DecodeFile(path string) ([]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		return DecodeWAV(f)
	case ".mp3":
		return DecodeMP3(f)
	case ".ogg", ".oga":
		return decodeOgg(f)
	}

	br := bufio.NewReader(f)
	magic, _ := br.Peek(4)
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	switch string(magic) {
	case "RIFF":
		return DecodeWAV(f)
	case "OggS":
		return decodeOgg(f)
	}
	return nil, fmt.Errorf("unsupported audio format: %s", path)
}

// DecodeWAV handles PCM wav of any depth, channel count, and rate.
func DecodeWAV(r io.ReadSeeker) ([]float32, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, errors.New("invalid wav")
	}
	pb, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, err
	}
	if pb == nil || len(pb.Data) == 0 {
		return nil, errors.New("empty wav")
	}

	depth := int(dec.BitDepth)
	if depth == 0 {
		depth = 16
	}
	samples := intsToFloat32(pb.Data, depth)

	channels, rate := 1, 44100
	if pb.Format != nil {
		if pb.Format.NumChannels > 0 {
			channels = pb.Format.NumChannels
		}
		if pb.Format.SampleRate > 0 {
			rate = pb.Format.SampleRate
		}
	}
	return normalize(samples, channels, rate), nil
}

func DecodeMP3(r io.Reader) ([]float32, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, err
	}
	var raw bytes.Buffer
	if _, err := io.Copy(&raw, dec); err != nil {
		return nil, err
	}
	ints := make([]int16, raw.Len()/2)
	if err := binary.Read(bytes.NewReader(raw.Bytes()), binary.LittleEndian, &ints); err != nil {
		return nil, err
	}
	// go-mp3 always emits interleaved stereo.
	return normalize(int16sToFloat32(ints), 2, dec.SampleRate()), nil
}

func DecodeOggVorbis(r io.Reader) ([]float32, error) {
	pcm, format, err := oggvorbis.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if format == nil || format.Channels <= 0 || format.SampleRate <= 0 {
		return nil, errors.New("invalid ogg/vorbis stream")
	}
	return normalize(pcm, format.Channels, format.SampleRate), nil
}

func DecodeOggOpus(rs io.ReadSeeker) ([]float32, error) {
	dec, err := popus.NewDecoder(rs)
	if err != nil {
		return nil, err
	}
	defer dec.Destroy()

	channels := dec.ChannelCount()
	if channels <= 0 {
		channels = 1
	}

	var pcm []float32
	buf := make([]int16, 48000*channels/2)
	for {
		n, err := dec.Read(buf)
		if n > 0 {
			pcm = append(pcm, int16sToFloat32(buf[:n*channels])...)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
	}
	if len(pcm) == 0 {
		return nil, errors.New("empty opus stream")
	}
	// opus output is always 48 kHz
	return normalize(pcm, channels, 48000), nil
}

// Ogg carries either Vorbis or Opus; try Vorbis first.
func decodeOgg(f *os.File) ([]float32, error) {
	if samples, err := DecodeOggVorbis(f); err == nil {
		return samples, nil
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	samples, err := DecodeOggOpus(f)
	if err != nil {
		return nil, fmt.Errorf("cannot decode ogg as vorbis or opus: %w", err)
	}
	return samples, nil
}

func normalize(in []float32, channels, rate int) []float32 {
	out := downmix(in, channels)
	if rate > 0 && rate != targetRate {
		out = resample(out, rate, targetRate)
	}
	return out
}

func intsToFloat32(data []int, bitDepth int) []float32 {
	out := make([]float32, len(data))
	scale := 1.0 / float64(int64(1)<<(bitDepth-1))
	for i, v := range data {
		x := float64(v) * scale
		if x > 1 {
			x = 1
		} else if x < -1 {
			x = -1
		}
		out[i] = float32(x)
	}
	return out
}

func int16sToFloat32(data []int16) []float32 {
	out := make([]float32, len(data))
	for i, v := range data {
		out[i] = float32(v) / 32768
	}
	return out
}

func downmix(in []float32, channels int) []float32 {
	if channels <= 1 {
		return in
	}
	frames := len(in) / channels
	out := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		for c := 0; c < channels; c++ {
			sum += float64(in[i*channels+c])
		}
		out[i] = float32(sum / float64(channels))
	}
	return out
}

func resample(in []float32, inRate, outRate int) []float32 {
	if inRate == outRate || len(in) == 0 {
		return in
	}
	ratio := float64(outRate) / float64(inRate)
	n := int(math.Ceil(float64(len(in)) * ratio))
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		src := float64(i) / ratio
		i0 := int(src)
		if i0 >= len(in)-1 {
			out[i] = in[len(in)-1]
			continue
		}
		frac := float32(src - float64(i0))
		out[i] = in[i0]*(1-frac) + in[i0+1]*frac
	}
	return out
}
