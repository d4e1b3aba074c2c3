package automa_test

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitsky-tech/bridgic/automa"
	"github.com/bitsky-tech/bridgic/automa/interaction"
	"github.com/bitsky-tech/bridgic/automa/serialization"
)

// buildApprovalGraph declares an add-one worker that asks for permission to
// add 200, followed by an add-two worker. counter observes how many times
// the guarded section actually runs.
func buildApprovalGraph(t *testing.T, counter *atomic.Int32) *automa.GraphAutoma {
	t.Helper()
	g := automa.NewGraph("approval")
	require.NoError(t, g.AddFuncWorker("review", func(ctx context.Context, call *automa.Call) (any, error) {
		x := asInt(call.Arg(0)) + 1
		ls := call.LocalSpace()
		if _, done := ls["counted"]; !done {
			counter.Add(1)
			ls["counted"] = true
		}
		fb, err := call.InteractWithHuman(interaction.NewEvent("approval", "add 200?"))
		if err != nil {
			return nil, err
		}
		if fb.Data == "yes" {
			x += 200
		}
		return x, nil
	}, automa.AsStart()))
	require.NoError(t, g.AddFuncWorker("finish", addN(2), automa.WithDependencies("review")))
	require.NoError(t, g.SetOutputWorker("finish"))
	return g
}

func TestInteract_SuspendAndResumeViaSnapshot(t *testing.T) {
	var counter atomic.Int32
	first := buildApprovalGraph(t, &counter)

	_, err := first.Arun(context.Background(), automa.WithArgs(100))
	var suspended *automa.SuspendedError
	require.ErrorAs(t, err, &suspended)
	require.Len(t, suspended.Interactions, 1)
	assert.Equal(t, "approval", suspended.Interactions[0].Event.Type)
	assert.Equal(t, "add 200?", suspended.Interactions[0].Event.Data)

	// Persist and reload the snapshot as a process boundary would.
	stored, err := serialization.Marshal(suspended.Snapshot)
	require.NoError(t, err)
	reloaded, err := serialization.Unmarshal(stored)
	require.NoError(t, err)

	second := buildApprovalGraph(t, &counter)
	require.NoError(t, second.RestoreSnapshot(reloaded))

	result, err := second.Arun(context.Background(), automa.WithFeedback(
		interaction.NewInteractionFeedback(suspended.Interactions[0].ID, "yes"),
	))
	require.NoError(t, err)
	assert.Equal(t, 303, asInt(result))

	// The worker replayed from its start, but the guarded section ran once.
	assert.Equal(t, int32(1), counter.Load())
}

func TestInteract_DeclinedFeedback(t *testing.T) {
	var counter atomic.Int32
	g := buildApprovalGraph(t, &counter)

	_, err := g.Arun(context.Background(), automa.WithArgs(100))
	var suspended *automa.SuspendedError
	require.ErrorAs(t, err, &suspended)

	// Resuming the same instance works without restoring the snapshot.
	result, err := g.Arun(context.Background(), automa.WithFeedback(
		interaction.NewInteractionFeedback(suspended.Interactions[0].ID, "no"),
	))
	require.NoError(t, err)
	assert.Equal(t, 103, asInt(result))
}

func TestInteract_MultipleWorkersSuspendInOnePass(t *testing.T) {
	ask := func(prompt string) automa.AsyncFunc {
		return func(ctx context.Context, call *automa.Call) (any, error) {
			fb, err := call.InteractWithHuman(interaction.NewEvent("question", prompt))
			if err != nil {
				return nil, err
			}
			return fb.Data, nil
		}
	}
	g := automa.NewGraph("panel")
	require.NoError(t, g.AddFuncWorker("q1", ask("first?"), automa.AsStart()))
	require.NoError(t, g.AddFuncWorker("q2", ask("second?"), automa.AsStart()))

	_, err := g.Arun(context.Background())
	var suspended *automa.SuspendedError
	require.ErrorAs(t, err, &suspended)
	require.Len(t, suspended.Interactions, 2)

	byPrompt := make(map[string]string)
	for _, ia := range suspended.Interactions {
		byPrompt[ia.Event.Data.(string)] = ia.ID
	}

	// Answering only one question suspends again with the other, same ID.
	_, err = g.Arun(context.Background(), automa.WithFeedback(
		interaction.NewInteractionFeedback(byPrompt["first?"], "a1"),
	))
	var stillSuspended *automa.SuspendedError
	require.ErrorAs(t, err, &stillSuspended)
	require.Len(t, stillSuspended.Interactions, 1)
	assert.Equal(t, byPrompt["second?"], stillSuspended.Interactions[0].ID)

	_, err = g.Arun(context.Background(), automa.WithFeedback(
		interaction.NewInteractionFeedback(byPrompt["second?"], "a2"),
	))
	require.NoError(t, err)

	v1, ok := g.Output("q1")
	require.True(t, ok)
	assert.Equal(t, "a1", v1)
	v2, ok := g.Output("q2")
	require.True(t, ok)
	assert.Equal(t, "a2", v2)
}

func TestInteract_RepeatedInteractionsReplayInCallOrder(t *testing.T) {
	g := automa.NewGraph("two-step")
	require.NoError(t, g.AddFuncWorker("wizard", func(ctx context.Context, call *automa.Call) (any, error) {
		first, err := call.InteractWithHuman(interaction.NewEvent("question", "step one?"))
		if err != nil {
			return nil, err
		}
		second, err := call.InteractWithHuman(interaction.NewEvent("question", "step two?"))
		if err != nil {
			return nil, err
		}
		return first.Data.(string) + "+" + second.Data.(string), nil
	}, automa.AsStart()))
	require.NoError(t, g.SetOutputWorker("wizard"))

	_, err := g.Arun(context.Background())
	var s1 *automa.SuspendedError
	require.ErrorAs(t, err, &s1)
	require.Len(t, s1.Interactions, 1)
	assert.Equal(t, "step one?", s1.Interactions[0].Event.Data)

	_, err = g.Arun(context.Background(), automa.WithFeedback(
		interaction.NewInteractionFeedback(s1.Interactions[0].ID, "one"),
	))
	var s2 *automa.SuspendedError
	require.ErrorAs(t, err, &s2)
	require.Len(t, s2.Interactions, 1)
	assert.Equal(t, "step two?", s2.Interactions[0].Event.Data)

	result, err := g.Arun(context.Background(), automa.WithFeedback(
		interaction.NewInteractionFeedback(s2.Interactions[0].ID, "two"),
	))
	require.NoError(t, err)
	assert.Equal(t, "one+two", result)
}

func TestInteract_InsideNestedAutoma(t *testing.T) {
	buildOuter := func() *automa.GraphAutoma {
		inner := automa.NewSequential("inner")
		require.NoError(t, inner.AppendFunc("confirm", func(ctx context.Context, call *automa.Call) (any, error) {
			fb, err := call.InteractWithHuman(interaction.NewEvent("confirm", "go on?"))
			if err != nil {
				return nil, err
			}
			return asInt(call.Arg(0)) + asInt(fb.Data), nil
		}))

		outer := automa.NewGraph("outer")
		require.NoError(t, outer.AddFuncWorker("seed", constant(10), automa.AsStart()))
		require.NoError(t, outer.AddWorker("inner", inner, automa.WithDependencies("seed")))
		require.NoError(t, outer.SetOutputWorker("inner"))
		return outer
	}

	first := buildOuter()
	_, err := first.Arun(context.Background())
	var suspended *automa.SuspendedError
	require.ErrorAs(t, err, &suspended)
	require.Len(t, suspended.Interactions, 1)

	second := buildOuter()
	require.NoError(t, second.RestoreSnapshot(suspended.Snapshot))

	result, err := second.Arun(context.Background(), automa.WithFeedback(
		interaction.NewInteractionFeedback(suspended.Interactions[0].ID, 5),
	))
	require.NoError(t, err)
	assert.Equal(t, 15, asInt(result))
}
