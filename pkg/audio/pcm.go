package audio

import (
	"encoding/binary"
	"math"
	"time"
)

// BytesPerSample is the width of one int16 PCM sample.
const BytesPerSample = 2

// PCMDuration returns the playback length of n bytes of PCM at the given
// format. It returns 0 for a non-positive rate or channel count.
func PCMDuration(n, sampleRate, channels int) time.Duration {
	if sampleRate <= 0 || channels <= 0 {
		return 0
	}
	samples := n / (BytesPerSample * channels)
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}

// RMS returns the root-mean-square amplitude of pcm in raw sample units
// (0 to 32767). It returns 0 for buffers shorter than one sample.
func RMS(pcm []byte) float64 {
	n := len(pcm) / BytesPerSample
	if n == 0 {
		return 0
	}
	var sum float64
	for i := range n {
		v := float64(sampleAt(pcm, i))
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}

// EncodeWAV wraps pcm in a canonical 44-byte RIFF/WAVE header.
func EncodeWAV(pcm []byte, sampleRate, channels int) []byte {
	const bits = BytesPerSample * 8
	buf := make([]byte, 44+len(pcm))
	le := binary.LittleEndian

	copy(buf[0:], "RIFF")
	le.PutUint32(buf[4:], uint32(36+len(pcm)))
	copy(buf[8:], "WAVE")

	copy(buf[12:], "fmt ")
	le.PutUint32(buf[16:], 16)
	le.PutUint16(buf[20:], 1) // linear PCM
	le.PutUint16(buf[22:], uint16(channels))
	le.PutUint32(buf[24:], uint32(sampleRate))
	le.PutUint32(buf[28:], uint32(sampleRate*channels*BytesPerSample))
	le.PutUint16(buf[32:], uint16(channels*BytesPerSample))
	le.PutUint16(buf[34:], bits)

	copy(buf[36:], "data")
	le.PutUint32(buf[40:], uint32(len(pcm)))
	copy(buf[44:], pcm)
	return buf
}

// Float32Mono converts interleaved PCM to mono float32 samples in [-1, 1],
// averaging channels. A trailing partial frame is ignored.
func Float32Mono(pcm []byte, channels int) []float32 {
	if channels < 1 {
		channels = 1
	}
	frames := len(pcm) / (BytesPerSample * channels)
	out := make([]float32, frames)
	for i := range frames {
		var sum float32
		for ch := range channels {
			sum += float32(sampleAt(pcm, i*channels+ch)) / 32768
		}
		out[i] = sum / float32(channels)
	}
	return out
}

func sampleAt(pcm []byte, i int) int16 {
	return int16(binary.LittleEndian.Uint16(pcm[i*BytesPerSample:]))
}

func putSample(pcm []byte, i int, v int16) {
	binary.LittleEndian.PutUint16(pcm[i*BytesPerSample:], uint16(v))
}

func clamp16(v int32) int16 {
	switch {
	case v > math.MaxInt16:
		return math.MaxInt16
	case v < math.MinInt16:
		return math.MinInt16
	default:
		return int16(v)
	}
}
