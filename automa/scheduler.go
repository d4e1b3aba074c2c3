package automa

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/bitsky-tech/bridgic/automa/args"
	"github.com/bitsky-tech/bridgic/automa/interaction"
	"github.com/bitsky-tech/bridgic/ctxlog"
)

// RunOption configures one top-level run.
type RunOption func(*runConfig)

type runConfig struct {
	pos       []any
	kw        map[string]any
	feedbacks []*interaction.InteractionFeedback
}

// WithArgs supplies the run's positional input, delivered to every start
// worker.
func WithArgs(vals ...any) RunOption {
	return func(c *runConfig) { c.pos = vals }
}

// WithKwargs supplies the run's keyword input, propagated to every worker
// whose signature accepts the names.
func WithKwargs(kw map[string]any) RunOption {
	return func(c *runConfig) { c.kw = kw }
}

// WithFeedback supplies answers for interactions raised by a previously
// suspended run.
func WithFeedback(fbs ...*interaction.InteractionFeedback) RunOption {
	return func(c *runConfig) { c.feedbacks = append(c.feedbacks, fbs...) }
}

// Arun executes the automa until it finishes, fails, or suspends for human
// input. A suspension surfaces as *SuspendedError carrying the pending
// interactions and a snapshot; resume by restoring the snapshot and calling
// Arun again with WithFeedback.
func (g *GraphAutoma) Arun(ctx context.Context, opts ...RunOption) (any, error) {
	var cfg runConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	g.runMu.Lock()
	defer g.runMu.Unlock()

	g.mu.Lock()
	if g.pool == nil {
		g.pool = NewPool(0)
	}
	g.mu.Unlock()

	if len(cfg.feedbacks) > 0 {
		g.applyFeedbacks(cfg.feedbacks)
	}

	log := ctxlog.FromContext(ctx).With("automa", g.name)
	result, err := g.arun(ctx, cfg.pos, cfg.kw)
	if err != nil {
		var sus *suspendSignal
		if errors.As(err, &sus) {
			snap, snapErr := g.DumpSnapshot()
			if snapErr != nil {
				return nil, fmt.Errorf("capturing snapshot of suspended run: %w", snapErr)
			}
			log.Info("⏸️ Run suspended", "interactions", len(sus.interactions))
			return nil, &SuspendedError{Interactions: sus.interactions, Snapshot: snap}
		}
		return nil, err
	}
	return result, nil
}

// taskResult is the outcome of one kickoff after dispatch.
type taskResult struct {
	kick   *kickoff
	result any
	err    error
}

// arun drives the pass loop. A nested automa returns the raw suspend signal
// so the parent can merge interactions from sibling workers.
func (g *GraphAutoma) arun(ctx context.Context, pos []any, kw map[string]any) (any, error) {
	log := ctxlog.FromContext(ctx).With("automa", g.name)

	g.mu.Lock()
	if !g.running {
		if err := g.compile(); err != nil {
			g.mu.Unlock()
			return nil, err
		}
		g.running = true
		g.outputs = make(map[string]any)
		g.ongoing = make(map[string][]*ongoingInteraction)
		g.indices = make(map[string]int)
		g.spawns = make(map[string]int)
		g.input = inputBuffer{Args: pos, Kwargs: kw}
		g.kickoffs = nil
		for _, key := range g.order {
			if g.workers[key].isStart {
				g.kickoffs = append(g.kickoffs, &kickoff{WorkerKey: key, LastKickoff: kickoffByAutoma})
			}
		}
	}
	kickoffs := append([]*kickoff(nil), g.kickoffs...)
	g.mu.Unlock()

	for hasPending(kickoffs) {
		log.Debug("Starting scheduling pass", "kickoffs", len(kickoffs))
		results := g.runPass(ctx, kickoffs)

		// Pass boundary. Topology mutations land first so everything after,
		// including snapshots, sees the updated graph.
		if err := g.applyDeferredTopology(); err != nil {
			g.abortRun()
			return nil, err
		}
		if err := g.applyDeferredOutput(); err != nil {
			g.abortRun()
			return nil, err
		}

		finished, interactions, failure := g.settlePass(ctx, results)
		if failure != nil {
			g.abortRun()
			return nil, failure
		}
		if len(interactions) > 0 {
			// Ferries issued by workers that will replay on resume are
			// dropped here; the replay re-issues them.
			g.mu.Lock()
			g.deferredFerries = restorableFerries(g.deferredFerries, g.kickoffs)
			g.mu.Unlock()
			return nil, &suspendSignal{interactions: interactions}
		}

		next, err := g.nextKickoffs(finished)
		if err != nil {
			g.abortRun()
			return nil, err
		}
		g.mu.Lock()
		g.kickoffs = next
		g.mu.Unlock()
		kickoffs = next
	}

	g.mu.Lock()
	var result any
	if g.outputKey != "" {
		if v, ok := g.outputs[g.outputKey]; ok {
			result = copyValue(v)
		}
	}
	g.finishRunLocked()
	g.mu.Unlock()
	log.Debug("Run finished naturally")
	return result, nil
}

func hasPending(kickoffs []*kickoff) bool {
	for _, k := range kickoffs {
		if !k.RunFinished {
			return true
		}
	}
	return false
}

// runPass dispatches every unfinished kickoff concurrently and joins them
// all. The pass context is cancelled on the first hard failure so
// cooperative workers can bail out early, but nothing is forcibly killed.
func (g *GraphAutoma) runPass(ctx context.Context, kickoffs []*kickoff) []*taskResult {
	passCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([]*taskResult, len(kickoffs))
	var wg sync.WaitGroup
	for i, k := range kickoffs {
		if k.RunFinished {
			continue
		}
		g.mu.Lock()
		w, exists := g.workers[k.WorkerKey]
		g.mu.Unlock()
		if !exists {
			results[i] = &taskResult{kick: k, err: &RuntimeError{
				Reason: fmt.Sprintf("kickoff targets unknown worker %q", k.WorkerKey),
			}}
			continue
		}
		wg.Add(1)
		go func(i int, k *kickoff, w *graphWorker) {
			defer wg.Done()
			res, err := g.invokeWorker(passCtx, w, k)
			if err != nil {
				var sus *suspendSignal
				if !errors.As(err, &sus) {
					cancel()
				}
			}
			results[i] = &taskResult{kick: k, result: res, err: err}
		}(i, k, w)
	}
	wg.Wait()

	out := results[:0]
	for _, r := range results {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

// settlePass processes joined tasks in kickoff order: error handlers run
// and may recover, successful outputs are captured, dependency gates are
// released, and pending interactions are collected.
func (g *GraphAutoma) settlePass(ctx context.Context, results []*taskResult) (finished []string, interactions []*interaction.Interaction, failure error) {
	// Workers cancelled by a sibling's failure also report errors; the
	// sibling's own error is the one worth surfacing.
	var cancelled error
	for _, res := range results {
		key := res.kick.WorkerKey

		if res.err != nil {
			var sus *suspendSignal
			if errors.As(res.err, &sus) {
				interactions = append(interactions, sus.interactions...)
				continue
			}
			res.result, res.err = g.runErrorHandlers(ctx, res.kick, res.err)
			if res.err != nil {
				wrapped := fmt.Errorf("worker %q failed: %w", key, res.err)
				if errors.Is(res.err, context.Canceled) {
					if cancelled == nil {
						cancelled = wrapped
					}
				} else if failure == nil {
					failure = wrapped
				}
				continue
			}
		}

		g.mu.Lock()
		res.kick.RunFinished = true
		if w, exists := g.workers[key]; exists {
			g.outputs[key] = res.result
			w.resetTriggers()
			for _, succ := range g.forwards[key] {
				if sw, ok := g.workers[succ]; ok {
					delete(sw.triggers, key)
				}
			}
			finished = append(finished, key)
		}
		delete(g.ongoing, key)
		delete(g.indices, key)
		g.clearClones(key)
		g.mu.Unlock()
	}
	if failure == nil {
		failure = cancelled
	}
	return finished, interactions, failure
}

// clearClones drops interaction bookkeeping for fan-out clone keys of key.
// Callers hold g.mu.
func (g *GraphAutoma) clearClones(key string) {
	n, ok := g.spawns[key]
	if !ok {
		return
	}
	for i := 0; i < n; i++ {
		cloneKey := fmt.Sprintf("%s#%d", key, i)
		delete(g.ongoing, cloneKey)
		delete(g.indices, cloneKey)
	}
	delete(g.spawns, key)
}

// runErrorHandlers offers err to the failed worker's handlers in
// registration order. The first matcher that accepts the error decides the
// outcome.
func (g *GraphAutoma) runErrorHandlers(ctx context.Context, k *kickoff, err error) (any, error) {
	g.mu.Lock()
	w, exists := g.workers[k.WorkerKey]
	g.mu.Unlock()
	if !exists {
		return nil, err
	}
	for _, entry := range w.handlers {
		if !entry.match(err) {
			continue
		}
		ev := &CallbackEvent{
			WorkerKey: k.WorkerKey,
			Automa:    g,
			TopLevel:  g.parent == nil,
			Args:      k.Args,
			Kwargs:    k.Kwargs,
			Err:       err,
		}
		result, recovered, herr := entry.handler(ctx, ev)
		if herr != nil {
			return nil, herr
		}
		if recovered {
			return result, nil
		}
		return nil, err
	}
	return nil, err
}

// nextKickoffs builds the next pass: pending ferries first, then every
// successor whose dependency gates have all drained. Kickoffs are coalesced
// per target key so a worker is never dispatched twice in one pass, which
// would race on its local space and replay index: converging ferries
// collapse to the last one enqueued, and a ferry supersedes the dependency
// kickoff for the same key.
func (g *GraphAutoma) nextKickoffs(finished []string) ([]*kickoff, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	ferries := g.deferredFerries
	g.deferredFerries = nil
	var next []*kickoff
	ferried := make(map[string]int)
	for _, f := range ferries {
		if _, ok := g.workers[f.Target]; !ok {
			return nil, &RuntimeError{Reason: fmt.Sprintf("ferry from %q targets unknown worker %q", f.Origin, f.Target)}
		}
		k := &kickoff{
			WorkerKey:   f.Target,
			LastKickoff: f.Origin,
			FromFerry:   true,
			Args:        f.Args,
			Kwargs:      f.Kwargs,
		}
		if i, dup := ferried[f.Target]; dup {
			next[i] = k
			continue
		}
		ferried[f.Target] = len(next)
		next = append(next, k)
	}

	seen := make(map[string]struct{})
	for _, key := range finished {
		for _, succ := range g.forwards[key] {
			if _, dup := seen[succ]; dup {
				continue
			}
			if _, taken := ferried[succ]; taken {
				continue
			}
			sw, ok := g.workers[succ]
			if !ok || len(sw.triggers) != 0 {
				continue
			}
			seen[succ] = struct{}{}
			next = append(next, &kickoff{WorkerKey: succ, LastKickoff: key})
		}
	}
	return next, nil
}

// applyDeferredOutput lands a queued output switch before suspension or
// successor computation can observe the old selection.
func (g *GraphAutoma) applyDeferredOutput() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.deferredOutput == nil {
		return nil
	}
	key := *g.deferredOutput
	g.deferredOutput = nil
	if _, ok := g.workers[key]; !ok {
		return &RuntimeError{Reason: fmt.Sprintf("cannot switch output to unknown worker %q", key)}
	}
	g.outputKey = key
	return nil
}

// applyDeferredTopology lands mutations queued during the pass, in the
// order they were requested, then revalidates the graph.
func (g *GraphAutoma) applyDeferredTopology() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	tasks := g.deferredTopology
	g.deferredTopology = nil
	for _, task := range tasks {
		if err := task(); err != nil {
			return err
		}
	}
	if len(tasks) > 0 {
		return g.validateTopology()
	}
	return nil
}

// invokeWorker prepares one invocation and executes it, expanding the
// distribute rule into per-element clones.
func (g *GraphAutoma) invokeWorker(ctx context.Context, w *graphWorker, k *kickoff) (any, error) {
	if w.rule == args.RuleDistribute && !k.FromFerry && k.LastKickoff != kickoffByAutoma {
		return g.invokeDistributed(ctx, w, k)
	}
	pos, kw, err := g.buildArgs(w, k)
	if err != nil {
		return nil, err
	}
	return g.invokeOnce(ctx, w, w.key, w.local, pos, kw)
}

// buildArgs runs the argument pipeline for one invocation: mapping by rule,
// input propagation, injection, then signature reconciliation.
func (g *GraphAutoma) buildArgs(w *graphWorker, k *kickoff) ([]any, map[string]any, error) {
	g.mu.Lock()
	var pos []any
	var kw map[string]any
	var err error
	switch {
	case k.FromFerry:
		pos = append([]any(nil), k.Args...)
		kw = cloneAnyMap(k.Kwargs)
	case k.LastKickoff == kickoffByAutoma:
		pos = make([]any, len(g.input.Args))
		for i, v := range g.input.Args {
			pos[i] = copyValue(v)
		}
		kw = map[string]any{}
	default:
		outs := make([]any, 0, len(w.deps))
		for _, dep := range w.deps {
			outs = append(outs, copyValue(g.outputs[dep]))
		}
		pos, kw, err = args.MapOutputs(w.key, w.rule, outs)
	}
	g.mu.Unlock()
	if err != nil {
		return nil, nil, err
	}
	return g.finishArgs(w.key, w.sig, pos, kw)
}

// finishArgs layers propagated run input under the mapped keywords, then
// resolves injections and verifies every required parameter is bound.
func (g *GraphAutoma) finishArgs(workerKey string, sig *args.Signature, pos []any, kw map[string]any) ([]any, map[string]any, error) {
	g.mu.Lock()
	merged := cloneAnyMap(g.input.Kwargs)
	g.mu.Unlock()
	for k, v := range kw {
		merged[k] = v
	}

	lookup := func(key string) (any, bool) {
		g.mu.Lock()
		defer g.mu.Unlock()
		v, ok := g.outputs[key]
		if !ok {
			return nil, false
		}
		return copyValue(v), true
	}
	resolve := func(wk string, d *args.SystemDescriptor) (any, error) {
		return g.resolveSystem(wk, d, pos, merged)
	}

	finalPos, finalKw, err := args.Inject(workerKey, sig, pos, merged, lookup, resolve)
	if err != nil {
		return nil, nil, err
	}
	if err := checkRequired(workerKey, sig, finalPos, finalKw); err != nil {
		return nil, nil, err
	}
	return finalPos, finalKw, nil
}

// resolveSystem supplies engine-provided injection values.
func (g *GraphAutoma) resolveSystem(workerKey string, d *args.SystemDescriptor, pos []any, kw map[string]any) (any, error) {
	switch d.Key {
	case args.SystemRuntimeContext:
		return &args.RuntimeContext{WorkerKey: workerKey, Args: pos, Kwargs: kw}, nil
	case args.SystemAutoma:
		return g, nil
	}
	sub, _ := d.AutomaSubKey()
	g.mu.Lock()
	w, ok := g.workers[sub]
	g.mu.Unlock()
	if !ok || w.sub == nil {
		return nil, &args.InjectionError{
			WorkerKey: workerKey,
			Reason:    fmt.Sprintf("system key %q does not name a nested automa", d.Key),
		}
	}
	return w.sub, nil
}

// checkRequired verifies that after reconciliation no required parameter is
// left unbound.
func checkRequired(workerKey string, sig *args.Signature, pos []any, kw map[string]any) error {
	posIdx := 0
	for _, p := range sig.Params() {
		switch p.Kind {
		case args.KindPositional, args.KindPositionalOrKeyword:
			bound := posIdx < len(pos)
			posIdx++
			if !bound && p.Kind == args.KindPositionalOrKeyword {
				_, bound = kw[p.Name]
			}
			if !bound && !p.HasDefault {
				return &SignatureError{WorkerKey: workerKey, Param: p.Name}
			}
		case args.KindKeywordOnly:
			if _, ok := kw[p.Name]; !ok && !p.HasDefault {
				return &SignatureError{WorkerKey: workerKey, Param: p.Name}
			}
		}
	}
	return nil
}

// invokeOnce runs callbacks and the worker body for a single invocation.
func (g *GraphAutoma) invokeOnce(ctx context.Context, w *graphWorker, callKey string, local map[string]any, pos []any, kw map[string]any) (any, error) {
	log := ctxlog.FromContext(ctx).With("automa", g.name)

	g.mu.Lock()
	g.indices[callKey] = 0
	g.mu.Unlock()

	call := &Call{automa: g, workerKey: callKey, local: local, Args: pos, Kwargs: kw}
	ev := &CallbackEvent{
		WorkerKey: callKey,
		Automa:    g,
		TopLevel:  g.parent == nil,
		Args:      pos,
		Kwargs:    kw,
	}
	for _, cb := range w.callbacks {
		if err := cb.OnWorkerStart(ctx, ev); err != nil {
			return nil, fmt.Errorf("on-start callback for worker %q: %w", callKey, err)
		}
	}

	log.Info("▶️ Starting worker", "worker", callKey)
	out, err := g.execute(ctx, w, call)
	if err != nil {
		return nil, err
	}

	ev.Result = out
	for _, cb := range w.callbacks {
		if err := cb.OnWorkerEnd(ctx, ev); err != nil {
			return nil, fmt.Errorf("on-end callback for worker %q: %w", callKey, err)
		}
	}
	log.Info("✅ Finished worker", "worker", callKey)
	return out, nil
}

// execute invokes the worker body. Sync workers are offloaded through the
// pool; nested automas recurse. Panics surface as runtime errors so one
// worker cannot take down the whole process.
func (g *GraphAutoma) execute(ctx context.Context, w *graphWorker, call *Call) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &RuntimeError{Reason: fmt.Sprintf("worker %q panicked: %v", call.workerKey, r)}
		}
	}()
	switch {
	case w.sub != nil:
		return w.sub.arun(ctx, call.Args, call.Kwargs)
	case w.async != nil:
		return w.async.Arun(ctx, call)
	default:
		pool := g.effectivePool()
		if pool == nil {
			return nil, &RuntimeError{
				Reason: fmt.Sprintf("sync worker %q requires a pool but none is configured", call.workerKey),
			}
		}
		return pool.Submit(ctx, func() (any, error) {
			return w.syncW.Run(call)
		})
	}
}

// invokeDistributed fans the single dependency's slice output out to one
// clone invocation per element and reassembles the results in order.
func (g *GraphAutoma) invokeDistributed(ctx context.Context, w *graphWorker, k *kickoff) (any, error) {
	g.mu.Lock()
	dep := w.deps[0]
	raw, ok := g.outputs[dep]
	g.mu.Unlock()
	if !ok {
		return nil, &args.MappingError{
			WorkerKey: w.key,
			Reason:    fmt.Sprintf("distribute found no output from dependency %q", dep),
		}
	}
	elems, ok := asSlice(raw)
	if !ok {
		return nil, &args.MappingError{
			WorkerKey: w.key,
			Reason:    fmt.Sprintf("distribute requires dependency %q to output a slice", dep),
		}
	}

	g.mu.Lock()
	g.spawns[w.key] = len(elems)
	g.mu.Unlock()

	results := make([]any, len(elems))
	errs := make([]error, len(elems))
	var wg sync.WaitGroup
	for i := range elems {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			cloneKey := fmt.Sprintf("%s#%d", w.key, i)
			pos, kw, err := g.finishArgs(cloneKey, w.sig, []any{copyValue(elems[i])}, map[string]any{})
			if err != nil {
				errs[i] = err
				return
			}
			results[i], errs[i] = g.invokeOnce(ctx, w, cloneKey, make(map[string]any), pos, kw)
		}(i)
	}
	wg.Wait()

	var interactions []*interaction.Interaction
	var failure error
	for _, err := range errs {
		if err == nil {
			continue
		}
		var sus *suspendSignal
		if errors.As(err, &sus) {
			interactions = append(interactions, sus.interactions...)
			continue
		}
		if failure == nil {
			failure = err
		}
	}
	if failure != nil {
		return nil, failure
	}
	if len(interactions) > 0 {
		return nil, &suspendSignal{interactions: interactions}
	}
	return results, nil
}

// effectivePool finds the nearest configured pool up the parent chain.
func (g *GraphAutoma) effectivePool() *Pool {
	for a := g; a != nil; a = a.parent {
		a.mu.Lock()
		p := a.pool
		a.mu.Unlock()
		if p != nil {
			return p
		}
	}
	return nil
}

// abortRun resets run state after a hard failure so the automa can be run
// again from scratch.
func (g *GraphAutoma) abortRun() {
	g.mu.Lock()
	g.finishRunLocked()
	g.mu.Unlock()
}

// finishRunLocked clears per-run state at a natural end or a failure.
// Suspended runs never reach here; their state lives on for the resume.
// Callers hold g.mu.
func (g *GraphAutoma) finishRunLocked() {
	g.running = false
	g.kickoffs = nil
	g.deferredFerries = nil
	g.deferredTopology = nil
	g.deferredOutput = nil
	g.ongoing = make(map[string][]*ongoingInteraction)
	g.indices = make(map[string]int)
	g.spawns = make(map[string]int)
	for _, w := range g.workers {
		w.resetTriggers()
		if !g.keepLocalSpace {
			w.local = make(map[string]any)
		}
	}
}

// applyFeedbacks matches answers to pending interactions, recursing into
// nested automas.
func (g *GraphAutoma) applyFeedbacks(fbs []*interaction.InteractionFeedback) {
	g.mu.Lock()
	for _, list := range g.ongoing {
		for _, oi := range list {
			for _, fb := range fbs {
				if oi.Interaction != nil && oi.Interaction.ID == fb.InteractionID {
					oi.Feedback = fb.Feedback
				}
			}
		}
	}
	var subs []*GraphAutoma
	for _, w := range g.workers {
		if w.sub != nil {
			subs = append(subs, w.sub)
		}
	}
	g.mu.Unlock()
	for _, sub := range subs {
		sub.applyFeedbacks(fbs)
	}
}

func cloneAnyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
