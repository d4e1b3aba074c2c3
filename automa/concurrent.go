package automa

import (
	"context"

	"github.com/bitsky-tech/bridgic/automa/args"
)

// mergerKey is the hidden worker that joins a concurrent automa's results.
const mergerKey = "__merger__"

// ConcurrentAutoma runs every added worker in parallel on the same input
// and returns their outputs as a slice ordered by declaration. A hidden
// merger worker gates on all of them and is always the output. Free-form
// topology edits and ferrying are disabled.
type ConcurrentAutoma struct {
	*GraphAutoma
}

// NewConcurrent creates an empty fan-out automa.
func NewConcurrent(name string, opts ...Option) *ConcurrentAutoma {
	g := NewGraph(name, opts...)
	// Positional only: the merged slice comes strictly from the Merge
	// rule, never from a run-level keyword named "results".
	merger := AsyncWithSignature(
		args.NewSignature(args.PositionalOnly("results")),
		func(ctx context.Context, call *Call) (any, error) {
			return call.Arg(0), nil
		},
	)
	// Cannot fail: the graph is empty and the key is vetted.
	if err := g.addWorkerNow(mergerKey, merger, []WorkerOption{
		WithMappingRule(args.RuleMerge),
	}, true); err != nil {
		panic(err)
	}
	g.outputKey = mergerKey
	g.topologyLocked = true
	g.ferryDisabled = true
	return &ConcurrentAutoma{GraphAutoma: g}
}

// Add registers w to run concurrently with the other added workers. The
// merger's result slice follows Add order.
func (c *ConcurrentAutoma) Add(key string, w any, opts ...WorkerOption) error {
	g := c.GraphAutoma
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.running {
		return &DeclarationError{Reason: "cannot add to a concurrent automa while it is running"}
	}
	opts = append(opts, AsStart())
	if err := g.addWorkerNow(key, w, opts, false); err != nil {
		return err
	}
	return g.addDependencyNow(mergerKey, key)
}

// AddFunc registers fn as an async worker running concurrently.
func (c *ConcurrentAutoma) AddFunc(key string, fn AsyncFunc, opts ...WorkerOption) error {
	return c.Add(key, Async(fn), opts...)
}
