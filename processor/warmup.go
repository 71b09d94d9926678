package processor

import (
	"context"
	"fmt"
	"time"

	"github.com/caffeineduck/gorurt/audio"
)

// DefaultWarmupIterations is the number of process calls made before live
// audio starts.
const DefaultWarmupIterations = 100

// WarmupResult reports how long warm-up calls took. First is usually the
// slowest; Last approximates steady state.
type WarmupResult struct {
	Iterations int           `json:"iterations"`
	First      time.Duration `json:"first"`
	Last       time.Duration `json:"last"`
	Max        time.Duration `json:"max"`
	Total      time.Duration `json:"total"`
}

// Warmup calls engine.Process iterations times on a private zero-filled
// buffer of frames samples. The buffer is dropped afterwards and never
// reaches an output port. The first error aborts warm-up.
func Warmup(ctx context.Context, engine Engine, frames, iterations int) (WarmupResult, error) {
	var res WarmupResult
	if iterations <= 0 {
		return res, nil
	}

	scratch := audio.NewBuffer(frames)
	for i := 0; i < iterations; i++ {
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("warm-up interrupted after %d iterations: %w", i, err)
		}

		began := time.Now()
		if _, err := engine.Process(scratch); err != nil {
			return res, fmt.Errorf("warm-up iteration %d: %w", i+1, err)
		}
		d := time.Since(began)

		if i == 0 {
			res.First = d
		}
		res.Last = d
		res.Max = max(res.Max, d)
		res.Total += d
		res.Iterations++
	}
	return res, nil
}
