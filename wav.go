package trackmix

import (
	"encoding/binary"
	"math"
	"math/rand"
)

// EncodeWAV16LE encodes interleaved float32 samples as a 16-bit PCM
// RIFF/WAVE file. Triangular dither (sum of two uniform randoms, one
// LSB peak) is added before quantization; the seed fixes the dither
// sequence, so identical renders encode to identical bytes.
func EncodeWAV16LE(samples []float32, sampleRate, channels int, seed int64) []byte {
	rng := rand.New(rand.NewSource(seed))
	dataSize := len(samples) * 2
	byteRate := sampleRate * channels * 2
	blockAlign := channels * 2
	chunkSize := 36 + dataSize
	out := make([]byte, 44+dataSize)
	copy(out[0:], []byte("RIFF"))
	binary.LittleEndian.PutUint32(out[4:], uint32(chunkSize))
	copy(out[8:], []byte("WAVE"))
	copy(out[12:], []byte("fmt "))
	binary.LittleEndian.PutUint32(out[16:], 16)
	binary.LittleEndian.PutUint16(out[20:], 1)
	binary.LittleEndian.PutUint16(out[22:], uint16(channels))
	binary.LittleEndian.PutUint32(out[24:], uint32(sampleRate))
	binary.LittleEndian.PutUint32(out[28:], uint32(byteRate))
	binary.LittleEndian.PutUint16(out[32:], uint16(blockAlign))
	binary.LittleEndian.PutUint16(out[34:], 16)
	copy(out[36:], []byte("data"))
	binary.LittleEndian.PutUint32(out[40:], uint32(dataSize))
	for i, s := range samples {
		dither := rng.Float64() + rng.Float64() - 1
		q := math.Round(float64(s)*32767 + dither)
		if q > 32767 {
			q = 32767
		} else if q < -32768 {
			q = -32768
		}
		binary.LittleEndian.PutUint16(out[44+i*2:], uint16(int16(q)))
	}
	return out
}
