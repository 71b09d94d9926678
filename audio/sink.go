package audio

import (
	"bufio"
	"encoding/binary"
	"io"
	"math"
)

// Sink consumes output buffers from the simulated server.
type Sink interface {
	Write(buf Buffer) error
}

// Discard drops every buffer.
type Discard struct{}

func (Discard) Write(Buffer) error { return nil }

// RawWriter encodes mono little-endian float32 samples.
type RawWriter struct {
	w    *bufio.Writer
	word [4]byte
}

func NewRawWriter(w io.Writer) *RawWriter {
	return &RawWriter{w: bufio.NewWriter(w)}
}

func (s *RawWriter) Write(buf Buffer) error {
	for _, v := range buf {
		binary.LittleEndian.PutUint32(s.word[:], math.Float32bits(v))
		if _, err := s.w.Write(s.word[:]); err != nil {
			return err
		}
	}
	return nil
}

// Flush writes any buffered samples to the underlying writer.
func (s *RawWriter) Flush() error {
	return s.w.Flush()
}

// Capture records every buffer it receives. Used by tests and the check
// command.
type Capture struct {
	Buffers []Buffer
}

func (c *Capture) Write(buf Buffer) error {
	cp := make(Buffer, len(buf))
	copy(cp, buf)
	c.Buffers = append(c.Buffers, cp)
	return nil
}
