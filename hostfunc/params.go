package hostfunc

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"
)

const (
	DefaultMaxParamKeySize = 256
	DefaultMaxParams       = 1024
)

var (
	ErrKeyRequired  = errors.New("key required")
	ErrValueInvalid = errors.New("value must be a finite number")
)

// ParamsConfig bounds the parameter store.
type ParamsConfig struct {
	MaxKeySize int
	MaxEntries int
}

func DefaultParamsConfig() ParamsConfig {
	return ParamsConfig{
		MaxKeySize: DefaultMaxParamKeySize,
		MaxEntries: DefaultMaxParams,
	}
}

// Params is a bounded store of named numeric parameters shared between the
// control plane and running scripts.
type Params struct {
	cfg  ParamsConfig
	data map[string]float64
	mu   sync.RWMutex
}

func NewParams(cfg ParamsConfig) *Params {
	if cfg.MaxKeySize == 0 {
		cfg.MaxKeySize = DefaultMaxParamKeySize
	}
	if cfg.MaxEntries == 0 {
		cfg.MaxEntries = DefaultMaxParams
	}
	return &Params{cfg: cfg, data: make(map[string]float64)}
}

func (p *Params) Get(key string) (float64, bool) {
	p.mu.RLock()
	v, ok := p.data[key]
	p.mu.RUnlock()
	return v, ok
}

func (p *Params) Set(key string, value float64) error {
	if key == "" {
		return ErrKeyRequired
	}
	if len(key) > p.cfg.MaxKeySize {
		return fmt.Errorf("key exceeds %d bytes", p.cfg.MaxKeySize)
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return ErrValueInvalid
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.data[key]; !exists && len(p.data) >= p.cfg.MaxEntries {
		return fmt.Errorf("parameter limit reached (%d)", p.cfg.MaxEntries)
	}
	p.data[key] = value
	return nil
}

// Delete removes key and reports whether it was present.
func (p *Params) Delete(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.data[key]
	delete(p.data, key)
	return ok
}

func (p *Params) Keys() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	keys := make([]string, 0, len(p.data))
	for k := range p.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (p *Params) Snapshot() map[string]float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]float64, len(p.data))
	for k, v := range p.data {
		out[k] = v
	}
	return out
}

// GetFunc implements param_get(name[, default]).
func (p *Params) GetFunc(ctx context.Context, args []any) (any, error) {
	key, err := stringArg(args, 0)
	if err != nil {
		return nil, err
	}
	if v, ok := p.Get(key); ok {
		return v, nil
	}
	if len(args) > 1 {
		return args[1], nil
	}
	return nil, nil
}

// SetFunc implements param_set(name, value).
func (p *Params) SetFunc(ctx context.Context, args []any) (any, error) {
	key, err := stringArg(args, 0)
	if err != nil {
		return nil, err
	}
	if len(args) < 2 {
		return nil, ErrValueInvalid
	}
	v, ok := toFloat(args[1])
	if !ok {
		return nil, ErrValueInvalid
	}
	if err := p.Set(key, v); err != nil {
		return nil, err
	}
	return v, nil
}

// KeysFunc implements param_keys().
func (p *Params) KeysFunc(ctx context.Context, args []any) (any, error) {
	keys := p.Keys()
	out := make([]any, len(keys))
	for i, k := range keys {
		out[i] = k
	}
	return out, nil
}

// TimeNow implements time_now(), returning wall-clock seconds.
func TimeNow(ctx context.Context, args []any) (any, error) {
	return float64(time.Now().UnixNano()) / 1e9, nil
}

// RegisterDefaults binds time_now and the param_* functions into r.
func RegisterDefaults(r *Registry, params *Params) {
	r.Register("time_now", TimeNow)
	if params == nil {
		return
	}
	r.Register("param_get", params.GetFunc)
	r.Register("param_set", params.SetFunc)
	r.Register("param_keys", params.KeysFunc)
}

func stringArg(args []any, i int) (string, error) {
	if len(args) <= i {
		return "", ErrKeyRequired
	}
	s, ok := args[i].(string)
	if !ok || s == "" {
		return "", ErrKeyRequired
	}
	return s, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint32:
		return float64(n), true
	}
	return 0, false
}
