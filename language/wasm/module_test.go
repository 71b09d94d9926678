package wasm

// A minimal WebAssembly encoder for test modules, so the tests do not depend
// on a wasm toolchain or checked-in binaries.

const (
	typeF64Void    = 0 // (f64) -> ()
	typeI32I32Void = 1 // (i32, i32) -> ()
	typeI32I32     = 2 // (i32) -> (i32)
	typeI32I32F64  = 3 // (i32, i32) -> (f64)
	typeParamSet   = 4 // (i32, i32, f64) -> ()
)

const (
	i32Type = 0x7f
	f64Type = 0x7c
)

var testTypes = [][2][]byte{
	typeF64Void:    {{f64Type}, nil},
	typeI32I32Void: {{i32Type, i32Type}, nil},
	typeI32I32:     {{i32Type}, {i32Type}},
	typeI32I32F64:  {{i32Type, i32Type}, {f64Type}},
	typeParamSet:   {{i32Type, i32Type, f64Type}, nil},
}

// Guest memory layout of the data segment.
const (
	helloPtr = 16 // "hi"
	gainPtr  = 32 // "gain"
)

type testImport struct {
	name string
	typ  uint32
}

type testFunc struct {
	export string
	typ    uint32
	locals []byte
	body   []byte
}

type testModule struct {
	imports  []testImport
	funcs    []testFunc
	noMemory bool
}

func uleb(v uint32) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			out = append(out, b|0x80)
			continue
		}
		return append(out, b)
	}
}

func sleb(v int32) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			return append(out, b)
		}
		out = append(out, b|0x80)
	}
}

func vec(n int, items []byte) []byte {
	return append(uleb(uint32(n)), items...)
}

func name(s string) []byte {
	return append(uleb(uint32(len(s))), s...)
}

func section(id byte, payload []byte) []byte {
	return append(append([]byte{id}, uleb(uint32(len(payload)))...), payload...)
}

func (m testModule) encode() []byte {
	out := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

	var types []byte
	for _, t := range testTypes {
		types = append(types, 0x60)
		types = append(types, vec(len(t[0]), t[0])...)
		types = append(types, vec(len(t[1]), t[1])...)
	}
	out = append(out, section(1, vec(len(testTypes), types))...)

	if len(m.imports) > 0 {
		var imports []byte
		for _, im := range m.imports {
			imports = append(imports, name(HostModule)...)
			imports = append(imports, name(im.name)...)
			imports = append(imports, 0x00)
			imports = append(imports, uleb(im.typ)...)
		}
		out = append(out, section(2, vec(len(m.imports), imports))...)
	}

	var funcs []byte
	for _, f := range m.funcs {
		funcs = append(funcs, uleb(f.typ)...)
	}
	out = append(out, section(3, vec(len(m.funcs), funcs))...)

	out = append(out, section(5, []byte{0x01, 0x00, 0x01})...)

	var exports []byte
	count := 0
	if !m.noMemory {
		exports = append(exports, name(memoryExport)...)
		exports = append(exports, 0x02, 0x00)
		count++
	}
	for i, f := range m.funcs {
		if f.export == "" {
			continue
		}
		exports = append(exports, name(f.export)...)
		exports = append(exports, 0x00)
		exports = append(exports, uleb(uint32(len(m.imports)+i))...)
		count++
	}
	out = append(out, section(7, vec(count, exports))...)

	var code []byte
	for _, f := range m.funcs {
		locals := f.locals
		if locals == nil {
			locals = []byte{0x00}
		}
		entry := append(append([]byte{}, locals...), f.body...)
		code = append(code, uleb(uint32(len(entry)))...)
		code = append(code, entry...)
	}
	out = append(out, section(10, vec(len(m.funcs), code))...)

	data := make([]byte, gainPtr-helloPtr)
	copy(data, "hi")
	data = append(data, "gain"...)
	seg := []byte{0x00, 0x41}
	seg = append(seg, sleb(helloPtr)...)
	seg = append(seg, 0x0b)
	seg = append(seg, vec(len(data), data)...)
	out = append(out, section(11, vec(1, seg))...)

	return out
}

func emptyBody() []byte {
	return []byte{0x0b}
}

// halfGainBody multiplies frames float32 samples at ptr by 0.5 in place.
func halfGainBody() (locals, body []byte) {
	locals = []byte{0x01, 0x01, i32Type}
	addr := []byte{0x20, 0x00, 0x20, 0x02, 0x41, 0x02, 0x74, 0x6a}
	body = []byte{0x02, 0x40, 0x03, 0x40}
	body = append(body, 0x20, 0x02, 0x20, 0x01, 0x4f, 0x0d, 0x01)
	body = append(body, addr...)
	body = append(body, addr...)
	body = append(body, 0x2a, 0x02, 0x00)
	body = append(body, 0x43, 0x00, 0x00, 0x00, 0x3f)
	body = append(body, 0x94)
	body = append(body, 0x38, 0x02, 0x00)
	body = append(body, 0x20, 0x02, 0x41, 0x01, 0x6a, 0x21, 0x02)
	body = append(body, 0x0c, 0x00)
	body = append(body, 0x0b, 0x0b, 0x0b)
	return locals, body
}

func constI32Body(v int32) []byte {
	return append(append([]byte{0x41}, sleb(v)...), 0x0b)
}

func callBody(fn uint32, args ...byte) []byte {
	body := append([]byte{}, args...)
	body = append(body, 0x10)
	body = append(body, uleb(fn)...)
	return append(body, 0x0b)
}

func spinBody() []byte {
	return []byte{0x03, 0x40, 0x0c, 0x00, 0x0b, 0x0b}
}

func trapBody() []byte {
	return []byte{0x00, 0x0b}
}

// halfGainModule is the reference module: start logs "hi", process halves
// every sample, dummyLoad does nothing and alloc returns 1024.
func halfGainModule() testModule {
	locals, body := halfGainBody()
	start := append([]byte{0x41}, sleb(helloPtr)...)
	start = append(start, 0x41, 0x02)
	return testModule{
		imports: []testImport{{"console_log", typeI32I32Void}},
		funcs: []testFunc{
			{export: "start", typ: typeF64Void, body: callBody(0, start...)},
			{export: "process", typ: typeI32I32Void, locals: locals, body: body},
			{export: "dummyLoad", typ: typeF64Void, body: emptyBody()},
			{export: "alloc", typ: typeI32I32, body: constI32Body(1024)},
		},
	}
}
