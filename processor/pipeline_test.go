package processor_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/caffeineduck/gorurt/audio"
	"github.com/caffeineduck/gorurt/executor"
	"github.com/caffeineduck/gorurt/hostfunc"
	"github.com/caffeineduck/gorurt/language/javascript"
	"github.com/caffeineduck/gorurt/processor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const countingGain = `
var calls = 0;
function start(sampleRate) {}
function process(samples) {
	calls++;
	for (var i = 0; i < samples.length; i++) samples[i] *= 0.5;
}
function dummyLoad(sampleRate) { console.log("processed", calls); }
`

func newJSHost(t *testing.T, code string, frames int) (*executor.Host, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	h := executor.NewHost(javascript.New(), executor.Source{Name: "process.js", Code: []byte(code)},
		executor.WithConsole(hostfunc.NewConsole(&out)))
	require.NoError(t, h.Init(context.Background(), 48000, frames))
	t.Cleanup(func() { h.Shutdown(context.Background()) })
	return h, &out
}

func TestWarmupRunsProcessOneHundredTimes(t *testing.T) {
	h, out := newJSHost(t, countingGain, 256)

	_, err := processor.Warmup(context.Background(), h, 256, processor.DefaultWarmupIterations)
	require.NoError(t, err)
	require.NoError(t, h.DummyLoad(context.Background(), 48000))

	assert.Equal(t, "processed 100\n", out.String())
}

func TestWarmupDoesNotChangeOutput(t *testing.T) {
	stateless := `
function start() {}
function process(s) { for (var i = 0; i < s.length; i++) s[i] = s[i] * 0.5 + 0.1; }
function dummyLoad() {}
`
	run := func(warm bool) audio.Buffer {
		h, _ := newJSHost(t, stateless, 64)
		if warm {
			_, err := processor.Warmup(context.Background(), h, 64, processor.DefaultWarmupIterations)
			require.NoError(t, err)
		}
		buf := audio.NewBuffer(64)
		for i := range buf {
			buf[i] = float32(i) / 64
		}
		_, err := h.Process(buf)
		require.NoError(t, err)
		return buf
	}

	assert.Equal(t, run(false), run(true))
}

func TestPipelineThroughSimulator(t *testing.T) {
	h, _ := newJSHost(t, countingGain, 128)
	_, err := processor.Warmup(context.Background(), h, 128, processor.DefaultWarmupIterations)
	require.NoError(t, err)

	capture := &audio.Capture{}
	sim, err := audio.NewSimulator(48000, 128,
		audio.WithSource(audio.Constant(1)),
		audio.WithSink(capture),
		audio.WithFreewheel(),
		audio.WithMaxCycles(10),
	)
	require.NoError(t, err)

	in, err := sim.RegisterPort("input", audio.Input)
	require.NoError(t, err)
	out, err := sim.RegisterPort("output", audio.Output)
	require.NoError(t, err)

	suppress := &processor.Suppression{}
	cb := processor.NewCallback(h, suppress)
	require.NoError(t, sim.SetProcessCallback(cb.Bind(in, out)))
	require.NoError(t, sim.Activate(context.Background()))
	<-sim.Done()
	require.NoError(t, sim.Close())

	require.Len(t, capture.Buffers, 10)
	for _, buf := range capture.Buffers {
		for _, v := range buf {
			require.Equal(t, float32(0.5), v)
		}
	}
	assert.Equal(t, processor.CallbackStats{Processed: 10}, cb.Stats())
	assert.Equal(t, int64(110), h.Stats().ProcessCalls)
}

func TestPipelineSuppressedIsIdentity(t *testing.T) {
	h, _ := newJSHost(t, countingGain, 32)

	capture := &audio.Capture{}
	sine := audio.NewSine(440, 48000, 0.8)
	reference := audio.NewSine(440, 48000, 0.8)

	sim, err := audio.NewSimulator(48000, 32,
		audio.WithSource(sine),
		audio.WithSink(capture),
		audio.WithFreewheel(),
		audio.WithMaxCycles(5),
	)
	require.NoError(t, err)
	in, _ := sim.RegisterPort("input", audio.Input)
	out, _ := sim.RegisterPort("output", audio.Output)

	suppress := &processor.Suppression{}
	suppress.Set()
	cb := processor.NewCallback(h, suppress)
	require.NoError(t, sim.SetProcessCallback(cb.Bind(in, out)))
	require.NoError(t, sim.Activate(context.Background()))
	<-sim.Done()
	require.NoError(t, sim.Close())

	require.Len(t, capture.Buffers, 5)
	for _, got := range capture.Buffers {
		want := audio.NewBuffer(32)
		require.NoError(t, reference.Read(want))
		assert.Equal(t, want, got)
	}
	assert.Zero(t, h.Stats().ProcessCalls)
}

func TestScriptErrorForwardsOriginalInput(t *testing.T) {
	h, _ := newJSHost(t, `
function start() {}
function process(s) { s[0] = 99; s[1] = 99; throw new Error("half done"); }
function dummyLoad() {}
`, 4)
	cb := processor.NewCallback(h, nil, processor.WithFrames(4))

	in, out := audio.Buffer{1, 2, 3, 4}, audio.NewBuffer(4)
	assert.Equal(t, 0, cb.OnBuffer(in, out, 4))

	assert.Equal(t, audio.Buffer{1, 2, 3, 4}, out)
	assert.Equal(t, processor.CallbackStats{Processed: 1, Failed: 1}, cb.Stats())
}

func TestOverlappingTicksSuppressUntilLastReturns(t *testing.T) {
	h, _ := newJSHost(t, `
function start() {}
function process(s) { for (var i = 0; i < s.length; i++) s[i] *= 0.5; }
function dummyLoad() { var end = Date.now() + 300; while (Date.now() < end) {} }
`, 4)
	suppress := &processor.Suppression{}
	cb := processor.NewCallback(h, suppress, processor.WithLockPolicy(processor.LockBlocking))
	load := processor.NewLoadSimulator(h, suppress, 48000)

	done := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() { done <- load.Tick(context.Background()) }()
	}

	// The second dummyLoad only enters once the first has returned.
	require.Eventually(t, func() bool { return h.Stats().DummyLoadCalls == 2 }, 2*time.Second, time.Millisecond)
	assert.True(t, suppress.Active())

	in, out := audio.Buffer{1, 1, 1, 1}, audio.NewBuffer(4)
	cb.OnBuffer(in, out, 4)
	assert.Equal(t, audio.Buffer{1, 1, 1, 1}, out)
	assert.Equal(t, int64(1), cb.Stats().Suppressed)

	require.NoError(t, <-done)
	require.NoError(t, <-done)
	assert.False(t, suppress.Active())
}
