package audio

import (
	"log/slog"
	"sync"
)

// Format describes the sample rate and channel count of a PCM stream.
type Format struct {
	SampleRate int
	Channels   int
}

// FormatOf returns the format of f.
func FormatOf(f Frame) Format {
	return Format{SampleRate: f.SampleRate, Channels: f.Channels}
}

// Converter rewrites frames into a fixed target format. It warns once on the
// first mismatch and once on the first misaligned frame. Use one per stream.
type Converter struct {
	Target Format

	// Logger receives the one-shot warnings. Defaults to slog.Default.
	Logger *slog.Logger

	mismatch sync.Once
	corrupt  sync.Once
}

// Convert returns f in the target format. A frame already in the target
// format is returned as is. A frame whose length is not a whole number of
// samples yields an empty frame, which callers should drop.
func (c *Converter) Convert(f Frame) Frame {
	log := c.Logger
	if log == nil {
		log = slog.Default()
	}

	if len(f.Data)%BytesPerSample != 0 {
		c.corrupt.Do(func() {
			log.Warn("audio converter: dropping misaligned frame", "bytes", len(f.Data))
		})
		return Frame{SampleRate: c.Target.SampleRate, Channels: c.Target.Channels, Timestamp: f.Timestamp}
	}
	if FormatOf(f) == c.Target {
		return f
	}
	c.mismatch.Do(func() {
		log.Warn("audio converter: converting capture format",
			"from_rate", f.SampleRate, "from_channels", f.Channels,
			"to_rate", c.Target.SampleRate, "to_channels", c.Target.Channels,
		)
	})

	pcm, ch := f.Data, f.Channels
	// Downmix before resampling so fewer samples are interpolated.
	if ch > 1 && c.Target.Channels == 1 {
		pcm, ch = Downmix(pcm, ch), 1
	}
	pcm = Resample(pcm, ch, f.SampleRate, c.Target.SampleRate)
	if ch == 1 && c.Target.Channels > 1 {
		pcm, ch = Upmix(pcm, c.Target.Channels), c.Target.Channels
	}
	return Frame{Data: pcm, SampleRate: c.Target.SampleRate, Channels: ch, Timestamp: f.Timestamp}
}

// Downmix averages each interleaved frame of channels samples into one mono
// sample. Mono input is returned unchanged.
func Downmix(pcm []byte, channels int) []byte {
	if channels <= 1 {
		return pcm
	}
	frames := len(pcm) / (BytesPerSample * channels)
	out := make([]byte, frames*BytesPerSample)
	for i := range frames {
		var sum int32
		for ch := range channels {
			sum += int32(sampleAt(pcm, i*channels+ch))
		}
		putSample(out, i, clamp16(sum/int32(channels)))
	}
	return out
}

// Upmix copies each mono sample into channels interleaved slots.
func Upmix(pcm []byte, channels int) []byte {
	if channels <= 1 {
		return pcm
	}
	n := len(pcm) / BytesPerSample
	out := make([]byte, n*channels*BytesPerSample)
	for i := range n {
		s := sampleAt(pcm, i)
		for ch := range channels {
			putSample(out, i*channels+ch, s)
		}
	}
	return out
}

// Resample converts interleaved PCM from srcRate to dstRate by linear
// interpolation per channel. Matching or invalid rates return pcm unchanged.
func Resample(pcm []byte, channels, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || channels < 1 {
		return pcm
	}
	srcFrames := len(pcm) / (BytesPerSample * channels)
	if srcFrames == 0 {
		return pcm
	}
	dstFrames := int(int64(srcFrames) * int64(dstRate) / int64(srcRate))
	if dstFrames == 0 {
		return nil
	}

	out := make([]byte, dstFrames*channels*BytesPerSample)
	step := float64(srcRate) / float64(dstRate)
	for i := range dstFrames {
		pos := float64(i) * step
		idx := int(pos)
		frac := pos - float64(idx)
		next := min(idx+1, srcFrames-1)
		for ch := range channels {
			s0 := float64(sampleAt(pcm, idx*channels+ch))
			s1 := float64(sampleAt(pcm, next*channels+ch))
			putSample(out, i*channels+ch, int16(s0+(s1-s0)*frac))
		}
	}
	return out
}
