package decode

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
)

// ErrUnsupportedFormat reports a source extension no decoder handles.
var ErrUnsupportedFormat = errors.New("unsupported audio format")

// decodeFile reads a WAV or MP3 file into a stereo interleaved buffer
// at the target rate.
func decodeFile(src string, targetRate int) ([]float32, error) {
	switch strings.ToLower(filepath.Ext(src)) {
	case ".wav":
		return decodeWAV(src, targetRate)
	case ".mp3":
		return decodeMP3(src, targetRate)
	default:
		return nil, fmt.Errorf("%s: %w", src, ErrUnsupportedFormat)
	}
}

func decodeWAV(src string, targetRate int) ([]float32, error) {
	f, err := os.Open(src)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	decoder := wav.NewDecoder(f)
	if !decoder.IsValidFile() {
		return nil, fmt.Errorf("%s: not a valid wav file", src)
	}
	if err := decoder.FwdToPCM(); err != nil {
		return nil, fmt.Errorf("%s: %w", src, err)
	}
	format := decoder.Format()
	bitDepth := int(decoder.SampleBitDepth())
	nsamples := int(decoder.PCMLen()) / (bitDepth / 8)
	buf := &audio.IntBuffer{
		Format:         format,
		Data:           make([]int, nsamples),
		SourceBitDepth: bitDepth,
	}
	if _, err := decoder.PCMBuffer(buf); err != nil {
		return nil, fmt.Errorf("%s: %w", src, err)
	}
	factor := float32(math.Pow(2, float64(bitDepth-1)))
	samples := make([]float32, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = float32(v) / factor
	}
	return conform(samples, format.NumChannels, format.SampleRate, targetRate), nil
}

func decodeMP3(src string, targetRate int) ([]float32, error) {
	f, err := os.Open(src)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	decoder, err := mp3.NewDecoder(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", src, err)
	}
	// go-mp3 always yields little-endian int16 stereo frames.
	nsamples := int(decoder.Length()) / 2
	samples := make([]float32, 0, nsamples)
	for {
		var sample int16
		err := binary.Read(decoder, binary.LittleEndian, &sample)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", src, err)
		}
		samples = append(samples, float32(sample)/32768)
	}
	return conform(samples, 2, decoder.SampleRate(), targetRate), nil
}

// conform maps an interleaved buffer of any channel count and rate to
// stereo at targetRate. Mono duplicates, wider layouts keep the first
// two channels.
func conform(samples []float32, channels, rate, targetRate int) []float32 {
	if channels < 1 {
		channels = 1
	}
	frames := len(samples) / channels
	left := make([]float32, frames)
	right := make([]float32, frames)
	for i := 0; i < frames; i++ {
		left[i] = samples[i*channels]
		if channels > 1 {
			right[i] = samples[i*channels+1]
		} else {
			right[i] = left[i]
		}
	}
	if rate != targetRate && rate > 0 {
		left = resampleLinear(left, rate, targetRate)
		right = resampleLinear(right, rate, targetRate)
	}
	out := make([]float32, len(left)*2)
	for i := range left {
		out[i*2] = left[i]
		out[i*2+1] = right[i]
	}
	return out
}

// resampleLinear converts one channel between rates by linear
// interpolation.
func resampleLinear(in []float32, from, to int) []float32 {
	if len(in) == 0 || from == to {
		return in
	}
	ratio := float64(from) / float64(to)
	n := int(math.Ceil(float64(len(in)) * float64(to) / float64(from)))
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		pos := float64(i) * ratio
		j := int(pos)
		if j >= len(in)-1 {
			out[i] = in[len(in)-1]
			continue
		}
		frac := float32(pos - float64(j))
		out[i] = in[j]*(1-frac) + in[j+1]*frac
	}
	return out
}
