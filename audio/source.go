package audio

import (
	"bufio"
	"encoding/binary"
	"errors"
	"io"
	"math"
)

// Source fills input buffers for the simulated server. Returning io.EOF
// ends the stream after the current buffer.
type Source interface {
	Read(buf Buffer) error
}

// Silence is a Source of zeros.
type Silence struct{}

func (Silence) Read(buf Buffer) error {
	buf.Zero()
	return nil
}

// Sine generates a continuous sine tone.
type Sine struct {
	amp   float64
	phase float64
	step  float64
}

// NewSine returns a tone of freq Hz at the given sample rate and amplitude.
func NewSine(freq float64, sampleRate int, amplitude float64) *Sine {
	return &Sine{
		amp:  amplitude,
		step: 2 * math.Pi * freq / float64(sampleRate),
	}
}

func (s *Sine) Read(buf Buffer) error {
	for i := range buf {
		buf[i] = float32(s.amp * math.Sin(s.phase))
		s.phase += s.step
		if s.phase >= 2*math.Pi {
			s.phase -= 2 * math.Pi
		}
	}
	return nil
}

// Constant is a Source that fills every sample with the same value.
type Constant float32

func (c Constant) Read(buf Buffer) error {
	for i := range buf {
		buf[i] = float32(c)
	}
	return nil
}

// RawReader decodes mono little-endian float32 samples. A short final read
// is padded with zeros and reported as io.EOF.
type RawReader struct {
	r    *bufio.Reader
	word [4]byte
}

func NewRawReader(r io.Reader) *RawReader {
	return &RawReader{r: bufio.NewReader(r)}
}

func (s *RawReader) Read(buf Buffer) error {
	for i := range buf {
		if _, err := io.ReadFull(s.r, s.word[:]); err != nil {
			clear(buf[i:])
			if errors.Is(err, io.ErrUnexpectedEOF) {
				return io.EOF
			}
			return err
		}
		buf[i] = math.Float32frombits(binary.LittleEndian.Uint32(s.word[:]))
	}
	return nil
}
