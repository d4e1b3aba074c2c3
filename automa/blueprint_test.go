package automa_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitsky-tech/bridgic/automa"
)

func TestBlueprint_BuildsIndependentInstances(t *testing.T) {
	bp := automa.NewBlueprint("adder").
		FuncWorker("inc", addN(1), automa.AsStart()).
		FuncWorker("double", func(ctx context.Context, call *automa.Call) (any, error) {
			return asInt(call.Arg(0)) * 2, nil
		}, automa.WithDependencies("inc")).
		Output("double")

	first, err := bp.Build()
	require.NoError(t, err)
	second, err := bp.Build()
	require.NoError(t, err)

	r1, err := first.Arun(context.Background(), automa.WithArgs(1))
	require.NoError(t, err)
	r2, err := second.Arun(context.Background(), automa.WithArgs(10))
	require.NoError(t, err)
	assert.Equal(t, 4, asInt(r1))
	assert.Equal(t, 22, asInt(r2))
}

func TestBlueprint_BuildValidatesTopology(t *testing.T) {
	bp := automa.NewBlueprint("cyclic").
		FuncWorker("a", addN(1), automa.WithDependencies("b")).
		FuncWorker("b", addN(1), automa.WithDependencies("a"))

	_, err := bp.Build()
	var compErr *automa.CompilationError
	require.ErrorAs(t, err, &compErr)
	assert.ElementsMatch(t, []string{"a", "b"}, compErr.Cycle)
}

func TestBlueprint_ExtendLayersAndOverrides(t *testing.T) {
	base := automa.NewBlueprint("base").
		FuncWorker("seed", constant(1), automa.AsStart()).
		FuncWorker("grow", addN(1), automa.WithDependencies("seed")).
		Output("grow")

	child := automa.NewBlueprint("child").
		FuncWorker("grow", addN(100), automa.WithDependencies("seed")).
		Extend(base)

	g, err := child.Build()
	require.NoError(t, err)
	result, err := g.Arun(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 101, asInt(result))
}

func TestBlueprint_ExtendRejectsAmbiguousParents(t *testing.T) {
	left := automa.NewBlueprint("left").FuncWorker("dup", constant(1), automa.AsStart())
	right := automa.NewBlueprint("right").FuncWorker("dup", constant(2), automa.AsStart())

	_, err := automa.NewBlueprint("child").Extend(left, right).Build()
	var declErr *automa.DeclarationError
	require.ErrorAs(t, err, &declErr)
	assert.Contains(t, declErr.Reason, "dup")
}
