// Package gorurt runs JavaScript or WebAssembly scripts on a real-time audio
// path.
//
// # Overview
//
// A script defines three entry points. start(sampleRate) runs once before
// audio begins, process(samples) runs for every buffer and mutates the
// samples in place, and dummyLoad(sampleRate) runs from a background
// goroutine to exercise the engine while audio is live. After start the
// script is warmed up with 100 process calls on silent scratch buffers so
// the first real period does not pay for compilation.
//
// # Basic Usage
//
//	registry := hostfunc.NewRegistry()
//	hostfunc.RegisterDefaults(registry, hostfunc.NewParams(hostfunc.DefaultParamsConfig()))
//
//	host := executor.NewHost(javascript.New(), executor.Source{Name: "gain.js", Code: code},
//	    executor.WithRegistry(registry))
//	if err := host.Init(ctx, 48000, 256); err != nil {
//	    return err
//	}
//	defer host.Shutdown(ctx)
//
//	processor.Warmup(ctx, host, 256, processor.DefaultWarmupIterations)
//
//	suppress := &processor.Suppression{}
//	cb := processor.NewCallback(host, suppress)
//	server.SetProcessCallback(cb.Bind(in, out))
//
// # Background Load
//
//	load := processor.NewLoadSimulator(host, suppress, 48000)
//	go load.Run(ctx, time.Second)
//
// While dummyLoad runs the callback copies input to output unprocessed.
//
// See the [executor], [processor], [audio], [language/javascript] and
// [language/wasm] packages for detailed API documentation.
package gorurt
