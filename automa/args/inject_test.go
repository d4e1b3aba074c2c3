package args

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookupFrom(m map[string]any) OutputLookup {
	return func(key string) (any, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func noSystem(workerKey string, desc *SystemDescriptor) (any, error) {
	panic("no system injection expected")
}

func TestInject_FromDescriptor(t *testing.T) {
	sig := NewSignature(
		PositionalOrKeyword("x"),
		PositionalOrKeywordDefault("total", From("adder")),
	)
	outputs := lookupFrom(map[string]any{"adder": 42})

	pos, kw, err := Inject("w", sig, []any{1}, nil, outputs, noSystem)
	require.NoError(t, err)
	assert.Equal(t, []any{1}, pos)
	assert.Equal(t, map[string]any{"total": 42}, kw)
}

func TestInject_FromDescriptorDefaultFallback(t *testing.T) {
	sig := NewSignature(PositionalOrKeywordDefault("total", FromOr("missing", -1)))

	pos, kw, err := Inject("w", sig, nil, nil, lookupFrom(nil), noSystem)
	require.NoError(t, err)
	assert.Empty(t, pos)
	assert.Equal(t, map[string]any{"total": -1}, kw)
}

func TestInject_FromDescriptorMissingOutput(t *testing.T) {
	sig := NewSignature(PositionalOrKeywordDefault("total", From("missing")))

	_, _, err := Inject("w", sig, nil, nil, lookupFrom(nil), noSystem)
	var injErr *InjectionError
	require.ErrorAs(t, err, &injErr)
	assert.Contains(t, injErr.Reason, "missing")
}

func TestInject_Precedence(t *testing.T) {
	// Caller keywords lose to From, From loses to System.
	sig := NewSignature(
		PositionalOrKeywordDefault("a", From("producer")),
		PositionalOrKeywordDefault("b", System(SystemRuntimeContext)),
		PositionalOrKeywordDefault("c", "plain"),
	)
	outputs := lookupFrom(map[string]any{"producer": "from-value"})
	resolve := func(workerKey string, desc *SystemDescriptor) (any, error) {
		return "system-value", nil
	}

	pos, kw, err := Inject("w", sig, nil, map[string]any{
		"a": "caller-a",
		"b": "caller-b",
		"c": "caller-c",
	}, outputs, resolve)
	require.NoError(t, err)
	assert.Empty(t, pos)
	assert.Equal(t, map[string]any{
		"a": "from-value",
		"b": "system-value",
		"c": "caller-c",
	}, kw)
}

func TestInject_AmbiguousPositionalBinding(t *testing.T) {
	sig := NewSignature(
		PositionalOrKeyword("x"),
		PositionalOrKeywordDefault("y", From("producer")),
	)
	outputs := lookupFrom(map[string]any{"producer": 7})

	_, _, err := Inject("w", sig, []any{1, 2}, nil, outputs, noSystem)
	var injErr *InjectionError
	require.ErrorAs(t, err, &injErr)
	assert.Contains(t, injErr.Reason, "unambiguously")
}

func TestInject_UnknownSystemKey(t *testing.T) {
	sig := NewSignature(PositionalOrKeywordDefault("ctx", System("loop")))

	_, _, err := Inject("w", sig, nil, nil, lookupFrom(nil), noSystem)
	var injErr *InjectionError
	require.ErrorAs(t, err, &injErr)
	assert.Contains(t, injErr.Reason, "loop")
}

func TestSystemDescriptor_AutomaSubKey(t *testing.T) {
	sub, ok := System("automa:billing").AutomaSubKey()
	require.True(t, ok)
	assert.Equal(t, "billing", sub)

	_, ok = System(SystemAutoma).AutomaSubKey()
	assert.False(t, ok)
}
