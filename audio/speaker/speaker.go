// Package speaker plays simulator output on the default audio device.
package speaker

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/caffeineduck/gorurt/audio"
	"github.com/hajimehoshi/oto/v2"
)

// Sink is an audio.Sink feeding an oto player through a ring buffer. Write
// never blocks: when the device falls behind, the oldest samples are
// dropped.
type Sink struct {
	ctx    *oto.Context
	player oto.Player
	ring   *ring
}

// New opens the default output device as a mono float32 stream. It waits up
// to timeout for the device to become ready.
func New(sampleRate, bufferSize int, timeout time.Duration) (*Sink, error) {
	ctx, ready, err := oto.NewContext(sampleRate, 1, oto.FormatFloat32LE)
	if err != nil {
		return nil, fmt.Errorf("open audio device: %w", err)
	}

	select {
	case <-ready:
	case <-time.After(timeout):
		return nil, fmt.Errorf("audio device not ready after %v", timeout)
	}

	// Eight periods of headroom.
	r := newRing(bufferSize * 8)
	player := ctx.NewPlayer(r)
	player.Play()

	return &Sink{ctx: ctx, player: player, ring: r}, nil
}

func (s *Sink) Write(buf audio.Buffer) error {
	s.ring.write(buf)
	return s.player.Err()
}

// Dropped reports how many samples were overwritten before playback.
func (s *Sink) Dropped() int64 {
	return s.ring.droppedCount()
}

func (s *Sink) Close() error {
	return s.player.Close()
}

type ring struct {
	mu      sync.Mutex
	buf     []float32
	head    int
	n       int
	dropped int64
}

func newRing(capacity int) *ring {
	return &ring{buf: make([]float32, capacity)}
}

func (r *ring) write(samples []float32) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, v := range samples {
		r.buf[r.head] = v
		r.head = (r.head + 1) % len(r.buf)
		if r.n < len(r.buf) {
			r.n++
		} else {
			r.dropped++
		}
	}
}

// Read implements io.Reader for the oto player. It emits silence rather
// than blocking when the ring is empty.
func (r *ring) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	frames := len(p) / 4
	start := (r.head - r.n + len(r.buf)) % len(r.buf)
	for i := 0; i < frames; i++ {
		var v float32
		if r.n > 0 {
			v = r.buf[start]
			start = (start + 1) % len(r.buf)
			r.n--
		}
		binary.LittleEndian.PutUint32(p[i*4:], math.Float32bits(v))
	}
	return frames * 4, nil
}

func (r *ring) droppedCount() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}
