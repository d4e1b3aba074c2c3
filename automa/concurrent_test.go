package automa_test

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitsky-tech/bridgic/automa"
)

func TestConcurrent_CollectsResultsInAddOrder(t *testing.T) {
	c := automa.NewConcurrent("fanout")
	require.NoError(t, c.AddFunc("plus1", addN(1)))
	require.NoError(t, c.AddFunc("plus2", addN(2)))
	require.NoError(t, c.AddFunc("plus3", addN(3)))

	result, err := c.Arun(context.Background(), automa.WithArgs(100))
	require.NoError(t, err)

	got := result.([]any)
	ints := make([]int, len(got))
	for i, v := range got {
		ints[i] = asInt(v)
	}
	if diff := cmp.Diff([]int{101, 102, 103}, ints); diff != "" {
		t.Fatalf("unexpected merged results (-want +got):\n%s", diff)
	}
}

func TestConcurrent_RejectsEmptyRun(t *testing.T) {
	c := automa.NewConcurrent("empty")

	_, err := c.Arun(context.Background(), automa.WithArgs(1))
	var compErr *automa.CompilationError
	require.ErrorAs(t, err, &compErr)
	assert.Contains(t, compErr.Reason, "start worker")
}

func TestConcurrent_TopologyIsLocked(t *testing.T) {
	c := automa.NewConcurrent("locked")
	require.NoError(t, c.AddFunc("a", addN(1)))

	var declErr *automa.DeclarationError
	require.ErrorAs(t, c.AddFuncWorker("b", addN(1)), &declErr)
	require.ErrorAs(t, c.RemoveWorker("a"), &declErr)
}

func TestConcurrent_FerryIsForbidden(t *testing.T) {
	c := automa.NewConcurrent("no-ferry")
	require.NoError(t, c.AddFunc("a", func(ctx context.Context, call *automa.Call) (any, error) {
		return nil, call.Ferry("a", 1)
	}))

	_, err := c.Arun(context.Background(), automa.WithArgs(1))
	var rtErr *automa.RuntimeError
	require.ErrorAs(t, err, &rtErr)
}

func TestConcurrent_NestsInsideGraph(t *testing.T) {
	inner := automa.NewConcurrent("inner")
	require.NoError(t, inner.AddFunc("plus1", addN(1)))
	require.NoError(t, inner.AddFunc("plus2", addN(2)))

	g := automa.NewGraph("outer")
	require.NoError(t, g.AddFuncWorker("seed", constant(10), automa.AsStart()))
	require.NoError(t, g.AddWorker("inner", inner, automa.WithDependencies("seed")))
	require.NoError(t, g.SetOutputWorker("inner"))

	result, err := g.Arun(context.Background())
	require.NoError(t, err)
	got := result.([]any)
	require.Len(t, got, 2)
	assert.Equal(t, 11, asInt(got[0]))
	assert.Equal(t, 12, asInt(got[1]))
}
