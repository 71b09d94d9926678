// Package executor hosts a user script that processes audio buffers.
//
// # Overview
//
// A [Host] owns exactly one script engine and one execution context for the
// life of the process. The script must define three global functions:
//
//	start(sampleRate)   called once by Init
//	process(samples)    called once per audio buffer, mutates samples in place
//	dummyLoad(rate)     called by the background load simulator
//
// # Basic Usage
//
//	host := executor.NewHost(javascript.New(), executor.Source{Name: "process.js", Code: code})
//	if err := host.Init(ctx, 48000, 256); err != nil {
//	    log.Fatal(err) // *executor.InitError
//	}
//	defer host.Shutdown(ctx)
//
//	buf := audio.NewBuffer(256)
//	host.Process(buf)
//
// # Locking
//
// Every call into the engine holds one mutex. Process and DummyLoad block
// on it; TryProcess returns immediately when the engine is busy so that
// the real-time goroutine can fall back to pass-through instead of waiting
// behind a long dummyLoad.
//
// # Language Interface
//
// To add a runtime, implement [Language] and [Script]. See
// [github.com/caffeineduck/gorurt/language/javascript] and
// [github.com/caffeineduck/gorurt/language/wasm].
package executor
