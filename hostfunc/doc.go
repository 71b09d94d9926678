// Package hostfunc provides the host functions bound into script runtimes.
//
// Host functions are Go functions callable from within a script. They are
// registered before any script source runs, so that preludes and user
// scripts can reference them by name.
//
// # Registry
//
// The [Registry] holds named [Func] values. Every registered function is
// bound as a global callable in the script namespace:
//
//	registry := hostfunc.NewRegistry()
//	registry.Register("gain_db", func(ctx context.Context, args []any) (any, error) {
//	    return 20 * math.Log10(args[0].(float64)), nil
//	})
//
// # Console
//
// [Console] is the logging bridge. A call with ("a", 1, "b") writes the line
// "a 1 b\n" and flushes it before returning:
//
//	console := hostfunc.NewConsole(os.Stdout)
//	console.Print("a", "1", "b")
//
// # Parameters
//
// [Params] is a bounded numeric store shared with the control plane.
// [RegisterDefaults] exposes it to scripts as param_get, param_set and
// param_keys, alongside time_now.
package hostfunc
