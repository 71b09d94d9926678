package hostfunc

import (
	"context"
	"math"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParamsSetGet(t *testing.T) {
	p := NewParams(DefaultParamsConfig())

	require.NoError(t, p.Set("gain", 0.5))

	v, ok := p.Get("gain")
	require.True(t, ok)
	assert.Equal(t, 0.5, v)
}

func TestParamsRejectsInvalid(t *testing.T) {
	p := NewParams(DefaultParamsConfig())

	assert.ErrorIs(t, p.Set("", 1), ErrKeyRequired)
	assert.ErrorIs(t, p.Set("nan", math.NaN()), ErrValueInvalid)
	assert.ErrorIs(t, p.Set("inf", math.Inf(1)), ErrValueInvalid)
}

func TestParamsKeyTooLarge(t *testing.T) {
	p := NewParams(ParamsConfig{MaxKeySize: 4})

	err := p.Set(strings.Repeat("k", 5), 1)
	assert.Error(t, err)
}

func TestParamsTooManyEntries(t *testing.T) {
	p := NewParams(ParamsConfig{MaxEntries: 2})

	require.NoError(t, p.Set("a", 1))
	require.NoError(t, p.Set("b", 2))
	assert.Error(t, p.Set("c", 3))

	// Overwriting an existing key is still allowed at the limit.
	assert.NoError(t, p.Set("a", 10))
}

func TestParamsDeleteAndKeys(t *testing.T) {
	p := NewParams(DefaultParamsConfig())
	p.Set("b", 2)
	p.Set("a", 1)

	assert.Equal(t, []string{"a", "b"}, p.Keys())
	assert.True(t, p.Delete("a"))
	assert.False(t, p.Delete("a"))
	assert.Equal(t, map[string]float64{"b": 2}, p.Snapshot())
}

func TestParamsHostFunctions(t *testing.T) {
	p := NewParams(DefaultParamsConfig())
	ctx := context.Background()

	_, err := p.SetFunc(ctx, []any{"cutoff", int64(440)})
	require.NoError(t, err)

	v, err := p.GetFunc(ctx, []any{"cutoff"})
	require.NoError(t, err)
	assert.Equal(t, 440.0, v)

	v, err = p.GetFunc(ctx, []any{"missing", 0.25})
	require.NoError(t, err)
	assert.Equal(t, 0.25, v)

	v, err = p.GetFunc(ctx, []any{"missing"})
	require.NoError(t, err)
	assert.Nil(t, v)

	_, err = p.GetFunc(ctx, nil)
	assert.ErrorIs(t, err, ErrKeyRequired)

	_, err = p.SetFunc(ctx, []any{"cutoff", "loud"})
	assert.ErrorIs(t, err, ErrValueInvalid)

	keys, err := p.KeysFunc(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, []any{"cutoff"}, keys)
}

func TestParamsConcurrent(t *testing.T) {
	p := NewParams(DefaultParamsConfig())

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			key := string(rune('a' + (n % 26)))
			p.Set(key, float64(n))
			p.Get(key)
		}(i)
	}
	wg.Wait()

	assert.Len(t, p.Keys(), 26)
}

func TestRegisterDefaults(t *testing.T) {
	r := NewRegistry()
	RegisterDefaults(r, NewParams(DefaultParamsConfig()))

	assert.Equal(t, []string{"param_get", "param_keys", "param_set", "time_now"}, r.List())

	fn, ok := r.Get("time_now")
	require.True(t, ok)
	now, err := fn(context.Background(), nil)
	require.NoError(t, err)
	assert.Greater(t, now.(float64), 0.0)
}

func TestRegisterDefaultsWithoutParams(t *testing.T) {
	r := NewRegistry()
	RegisterDefaults(r, nil)

	assert.Equal(t, []string{"time_now"}, r.List())
}
