package wasm

import (
	"context"
	"fmt"

	"github.com/caffeineduck/gorurt/hostfunc"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"
)

// instantiateHostModule exports console_log and the registry functions that
// have a fixed numeric signature. Registry functions without one are skipped.
//
//	console_log(ptr, len i32)
//	time_now() f64
//	param_get(ptr, len i32) f64
//	param_set(ptr, len i32, value f64)
func (s *script) instantiateHostModule(ctx context.Context, registry *hostfunc.Registry) ([]string, error) {
	b := s.runtime.NewHostModuleBuilder(HostModule)
	b.NewFunctionBuilder().WithFunc(s.consoleLog).Export(hostfunc.ConsoleLogName)
	bound := []string{hostfunc.ConsoleLogName}

	if registry != nil {
		for _, name := range registry.List() {
			fn, _ := registry.Get(name)
			switch name {
			case hostfunc.ConsoleLogName:
				continue
			case "time_now":
				b.NewFunctionBuilder().WithFunc(func(ctx context.Context) float64 {
					return callFloat(ctx, name, fn, nil)
				}).Export(name)
			case "param_get":
				b.NewFunctionBuilder().WithFunc(func(ctx context.Context, m api.Module, ptr, n uint32) float64 {
					return callFloat(ctx, name, fn, []any{readString(m, name, ptr, n)})
				}).Export(name)
			case "param_set":
				b.NewFunctionBuilder().WithFunc(func(ctx context.Context, m api.Module, ptr, n uint32, v float64) {
					callFloat(ctx, name, fn, []any{readString(m, name, ptr, n), v})
				}).Export(name)
			default:
				s.logger.Debug("host function has no wasm signature", zap.String("name", name))
				continue
			}
			bound = append(bound, name)
		}
	}

	_, err := b.Instantiate(ctx)
	return bound, err
}

func (s *script) consoleLog(ctx context.Context, m api.Module, ptr, n uint32) {
	if err := s.console.Print(readString(m, hostfunc.ConsoleLogName, ptr, n)); err != nil {
		panic(fmt.Errorf("%s: %w", hostfunc.ConsoleLogName, err))
	}
}

// readString copies n bytes at ptr out of guest memory. An out of range
// read traps the calling guest.
func readString(m api.Module, fn string, ptr, n uint32) string {
	b, ok := m.Memory().Read(ptr, n)
	if !ok {
		panic(fmt.Errorf("%s: range %#x+%d is outside guest memory", fn, ptr, n))
	}
	return string(b)
}

// callFloat runs a registry function and converts its result. Errors trap
// the calling guest; a nil result is 0.
func callFloat(ctx context.Context, name string, fn hostfunc.Func, args []any) float64 {
	out, err := fn(ctx, args)
	if err != nil {
		panic(fmt.Errorf("%s: %w", name, err))
	}
	if v, ok := out.(float64); ok {
		return v
	}
	return 0
}
