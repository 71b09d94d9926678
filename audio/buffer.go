package audio

import "unsafe"

// Buffer is a borrowed view over caller-owned float32 samples. Its length is
// the frame count. A Buffer handed to a process callback is valid only for
// the duration of that call.
type Buffer []float32

// NewBuffer allocates a zero-filled buffer of frames samples.
func NewBuffer(frames int) Buffer {
	return make(Buffer, frames)
}

func (b Buffer) Frames() int {
	return len(b)
}

// Bytes returns the samples as native-endian bytes aliasing the same memory.
// Writes through the returned slice are visible in b and vice versa.
func (b Buffer) Bytes() []byte {
	if len(b) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&b[0])), len(b)*4)
}

// Zero clears every sample.
func (b Buffer) Zero() {
	clear(b)
}

// CopyFrames copies up to n frames from src to dst and returns the number
// copied.
func CopyFrames(dst, src Buffer, n int) int {
	n = min(n, len(dst), len(src))
	if n <= 0 {
		return 0
	}
	return copy(dst[:n], src[:n])
}
