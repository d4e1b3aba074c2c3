package automa

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/bitsky-tech/bridgic/automa/args"
	"github.com/bitsky-tech/bridgic/automa/interaction"
)

// kickoffByAutoma marks a kickoff injected by the automa itself rather than
// by a finished dependency or a ferry.
const kickoffByAutoma = "__automa__"

// WorkerProvider supplies workers for keys found in a snapshot but absent
// from the restored graph, typically keys that were added dynamically
// before the run suspended.
type WorkerProvider func(key string) (any, error)

// graphWorker is the engine-side record of one registered worker.
type graphWorker struct {
	key     string
	async   AsyncWorker
	syncW   SyncWorker
	sub     *GraphAutoma
	sig      *args.Signature
	deps     []string
	isStart  bool
	isOutput bool
	rule     args.MappingRule

	callbacks []WorkerCallback
	handlers  []errorHandlerEntry

	local map[string]any
	// triggers holds the dependency gates not yet satisfied in the current
	// run. The worker becomes ready when the set drains.
	triggers map[string]struct{}
}

func (w *graphWorker) resetTriggers() {
	w.triggers = make(map[string]struct{}, len(w.deps))
	for _, d := range w.deps {
		w.triggers[d] = struct{}{}
	}
}

// kickoff is one scheduled invocation in the current pass. RunFinished
// kickoffs are skipped on resume.
type kickoff struct {
	WorkerKey   string         `msgpack:"worker_key"`
	LastKickoff string         `msgpack:"last_kickoff"`
	FromFerry   bool           `msgpack:"from_ferry"`
	RunFinished bool           `msgpack:"run_finished"`
	Args        []any          `msgpack:"args"`
	Kwargs      map[string]any `msgpack:"kwargs"`
}

// ferryTask is a control redirection enqueued during a pass and turned into
// a kickoff at the next pass boundary.
type ferryTask struct {
	Origin string         `msgpack:"origin"`
	Target string         `msgpack:"target"`
	Args   []any          `msgpack:"args"`
	Kwargs map[string]any `msgpack:"kwargs"`
}

// ongoingInteraction tracks one question a worker has asked, and the
// feedback that answers it once the run is resumed.
type ongoingInteraction struct {
	Interaction *interaction.Interaction `msgpack:"interaction"`
	Feedback    *interaction.Feedback    `msgpack:"feedback"`
}

type inputBuffer struct {
	Args   []any          `msgpack:"args"`
	Kwargs map[string]any `msgpack:"kwargs"`
}

// GraphAutoma executes a dependency graph of workers. Workers and edges may
// be declared up front or mutated while a run is in flight; in-flight
// mutations take effect at the next pass boundary.
type GraphAutoma struct {
	name   string
	parent *GraphAutoma
	pool   *Pool

	// mu guards every field below. Workers run concurrently and reach back
	// into the automa through Call.
	mu sync.Mutex

	workers   map[string]*graphWorker
	order     []string
	forwards  map[string][]string
	outputKey string

	running  bool
	kickoffs []*kickoff
	input    inputBuffer
	outputs  map[string]any
	ongoing  map[string][]*ongoingInteraction
	indices  map[string]int
	spawns   map[string]int

	deferredTopology []func() error
	deferredFerries  []*ferryTask
	deferredOutput   *string

	eventHandlers  map[string]EventHandler
	defaultHandler EventHandler

	topologyLocked bool
	ferryDisabled  bool
	keepLocalSpace bool
	provider       WorkerProvider

	// runMu serializes top-level runs of this automa.
	runMu sync.Mutex
}

// Option configures a GraphAutoma at construction time.
type Option func(*GraphAutoma)

// WithPool sets the size of the pool that offloads sync workers. Without it
// a top-level automa builds a pool sized to the number of CPUs on first run.
func WithPool(size int) Option {
	return func(g *GraphAutoma) { g.pool = NewPool(size) }
}

// WithWorkerProvider registers a factory consulted during snapshot restore
// for worker keys that the rebuilt graph does not declare.
func WithWorkerProvider(p WorkerProvider) Option {
	return func(g *GraphAutoma) { g.provider = p }
}

// WithKeepLocalSpace preserves worker local spaces across runs instead of
// clearing them when a run finishes naturally.
func WithKeepLocalSpace() Option {
	return func(g *GraphAutoma) { g.keepLocalSpace = true }
}

// NewGraph creates an empty automa.
func NewGraph(name string, opts ...Option) *GraphAutoma {
	g := &GraphAutoma{
		name:          name,
		workers:       make(map[string]*graphWorker),
		forwards:      make(map[string][]string),
		outputs:       make(map[string]any),
		ongoing:       make(map[string][]*ongoingInteraction),
		indices:       make(map[string]int),
		spawns:        make(map[string]int),
		eventHandlers: make(map[string]EventHandler),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// graph lets embedding types (sequential, concurrent) register as nested
// automas.
func (g *GraphAutoma) graph() *GraphAutoma { return g }

type graphHolder interface {
	graph() *GraphAutoma
}

// Name returns the automa's name.
func (g *GraphAutoma) Name() string { return g.name }

// WorkerOption configures a worker registration.
type WorkerOption func(*graphWorker)

// WithDependencies declares the workers whose completion gates this one.
// Order matters: mapping rules consume dependency outputs in this order.
func WithDependencies(keys ...string) WorkerOption {
	return func(w *graphWorker) { w.deps = append(w.deps, keys...) }
}

// AsStart marks the worker as a run entry point. Start workers receive the
// run's positional input and are kicked off first.
func AsStart() WorkerOption {
	return func(w *graphWorker) { w.isStart = true }
}

// AsOutput selects the worker being registered as the run's output worker,
// equivalent to a SetOutputWorker call after registration.
func AsOutput() WorkerOption {
	return func(w *graphWorker) { w.isOutput = true }
}

// WithMappingRule selects how dependency outputs become this worker's
// arguments. The default is args.RuleAsIs.
func WithMappingRule(rule args.MappingRule) WorkerOption {
	return func(w *graphWorker) { w.rule = rule }
}

// WithCallbacks attaches lifecycle callbacks to the worker.
func WithCallbacks(cbs ...WorkerCallback) WorkerOption {
	return func(w *graphWorker) { w.callbacks = append(w.callbacks, cbs...) }
}

// WithErrorHandler attaches an error handler that runs when the worker
// fails with an error accepted by match. Handlers run in registration order
// until one matches.
func WithErrorHandler(match ErrorMatcher, handler ErrorHandler) WorkerOption {
	return func(w *graphWorker) {
		w.handlers = append(w.handlers, errorHandlerEntry{match: match, handler: handler})
	}
}

var validRules = map[args.MappingRule]struct{}{
	args.RuleAsIs:       {},
	args.RuleUnpack:     {},
	args.RuleMerge:      {},
	args.RuleSuppressed: {},
	args.RuleDistribute: {},
}

func reservedKey(key string) bool {
	return strings.HasPrefix(key, "__")
}

// AddWorker registers w under key. During a run the registration is
// deferred to the next pass boundary.
func (g *GraphAutoma) AddWorker(key string, w any, opts ...WorkerOption) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.topologyLocked {
		return &DeclarationError{Reason: fmt.Sprintf("automa %q manages its own topology", g.name)}
	}
	if g.running {
		g.deferredTopology = append(g.deferredTopology, func() error {
			return g.addWorkerNow(key, w, opts, false)
		})
		return nil
	}
	return g.addWorkerNow(key, w, opts, false)
}

// AddFuncWorker registers fn as an async worker under key.
func (g *GraphAutoma) AddFuncWorker(key string, fn AsyncFunc, opts ...WorkerOption) error {
	return g.AddWorker(key, Async(fn), opts...)
}

// addWorkerNow registers a worker immediately. Callers hold g.mu.
func (g *GraphAutoma) addWorkerNow(key string, w any, opts []WorkerOption, internal bool) error {
	if key == "" {
		return &DeclarationError{Reason: "worker key must not be empty"}
	}
	if !internal && reservedKey(key) {
		return &DeclarationError{Reason: fmt.Sprintf("worker key %q uses the reserved %q prefix", key, "__")}
	}
	if _, exists := g.workers[key]; exists {
		return &DeclarationError{Reason: fmt.Sprintf("worker %q is already registered", key)}
	}

	gw := &graphWorker{
		key:   key,
		sig:   workerSignature(w),
		rule:  args.RuleAsIs,
		local: make(map[string]any),
	}
	switch v := w.(type) {
	case graphHolder:
		gw.sub = v.graph()
		gw.sub.parent = g
	case AsyncWorker:
		gw.async = v
	case SyncWorker:
		gw.syncW = v
	default:
		return &DeclarationError{Reason: fmt.Sprintf("worker %q is neither an AsyncWorker, a SyncWorker, nor an automa", key)}
	}
	for _, opt := range opts {
		opt(gw)
	}
	if _, ok := validRules[gw.rule]; !ok {
		return &DeclarationError{Reason: fmt.Sprintf("worker %q declares unknown mapping rule %q", key, gw.rule)}
	}
	gw.deps = dedupe(gw.deps)
	gw.resetTriggers()

	g.workers[key] = gw
	g.order = append(g.order, key)
	for _, dep := range gw.deps {
		g.forwards[dep] = appendUnique(g.forwards[dep], key)
	}
	if gw.isOutput {
		g.outputKey = key
	}
	return nil
}

// RemoveWorker unregisters key and detaches every edge touching it. During
// a run the removal is deferred to the next pass boundary.
func (g *GraphAutoma) RemoveWorker(key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.topologyLocked {
		return &DeclarationError{Reason: fmt.Sprintf("automa %q manages its own topology", g.name)}
	}
	if g.running {
		g.deferredTopology = append(g.deferredTopology, func() error {
			return g.removeWorkerNow(key)
		})
		return nil
	}
	return g.removeWorkerNow(key)
}

// removeWorkerNow detaches key immediately. Callers hold g.mu.
func (g *GraphAutoma) removeWorkerNow(key string) error {
	if _, exists := g.workers[key]; !exists {
		return &RuntimeError{Reason: fmt.Sprintf("cannot remove unknown worker %q", key)}
	}
	delete(g.workers, key)
	g.order = remove(g.order, key)
	delete(g.forwards, key)
	for dep := range g.forwards {
		g.forwards[dep] = remove(g.forwards[dep], key)
	}
	for _, other := range g.workers {
		if contains(other.deps, key) {
			other.deps = remove(other.deps, key)
			delete(other.triggers, key)
		}
	}
	delete(g.ongoing, key)
	delete(g.indices, key)
	delete(g.spawns, key)
	if g.outputKey == key {
		g.outputKey = ""
	}
	return nil
}

// AddDependency gates workerKey on depKey. During a run the new edge is
// deferred to the next pass boundary and applies going forward.
func (g *GraphAutoma) AddDependency(workerKey, depKey string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.topologyLocked {
		return &DeclarationError{Reason: fmt.Sprintf("automa %q manages its own topology", g.name)}
	}
	if g.running {
		g.deferredTopology = append(g.deferredTopology, func() error {
			return g.addDependencyNow(workerKey, depKey)
		})
		return nil
	}
	return g.addDependencyNow(workerKey, depKey)
}

func (g *GraphAutoma) addDependencyNow(workerKey, depKey string) error {
	w, exists := g.workers[workerKey]
	if !exists {
		return &RuntimeError{Reason: fmt.Sprintf("cannot add dependency to unknown worker %q", workerKey)}
	}
	if contains(w.deps, depKey) {
		return nil
	}
	w.deps = append(w.deps, depKey)
	w.triggers[depKey] = struct{}{}
	g.forwards[depKey] = appendUnique(g.forwards[depKey], workerKey)
	return nil
}

// SetOutputWorker selects the worker whose output the run returns. During a
// run the change applies at the next pass boundary.
func (g *GraphAutoma) SetOutputWorker(key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.topologyLocked {
		return &DeclarationError{Reason: fmt.Sprintf("automa %q manages its own topology", g.name)}
	}
	if g.running {
		k := key
		g.deferredOutput = &k
		return nil
	}
	g.outputKey = key
	return nil
}

// OutputWorkerKey returns the key of the current output worker.
func (g *GraphAutoma) OutputWorkerKey() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.outputKey
}

// Workers lists registered worker keys in declaration order.
func (g *GraphAutoma) Workers() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.order...)
}

// HasWorker reports whether key is registered.
func (g *GraphAutoma) HasWorker(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.workers[key]
	return ok
}

// Output returns a copy of the named worker's captured output. The second
// result is false when the worker has not produced an output.
func (g *GraphAutoma) Output(key string) (any, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	v, ok := g.outputs[key]
	if !ok {
		return nil, false
	}
	return copyValue(v), true
}

// enqueueFerry records a control redirection; it is turned into a kickoff
// at the next pass boundary.
func (g *GraphAutoma) enqueueFerry(origin, target string, pos []any, kw map[string]any) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.ferryDisabled {
		return &RuntimeError{Reason: fmt.Sprintf("automa %q does not allow ferrying", g.name)}
	}
	if !g.running {
		return &RuntimeError{Reason: "ferry is only valid while a run is in flight"}
	}
	g.deferredFerries = append(g.deferredFerries, &ferryTask{
		Origin: origin,
		Target: target,
		Args:   pos,
		Kwargs: kw,
	})
	return nil
}

// Compile validates the declared topology immediately instead of waiting
// for the first run.
func (g *GraphAutoma) Compile() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.validateTopology()
}

// compile validates the topology and resets every dependency gate. Callers
// hold g.mu.
func (g *GraphAutoma) compile() error {
	if err := g.validateTopology(); err != nil {
		return err
	}
	for _, w := range g.workers {
		w.resetTriggers()
	}
	return nil
}

// validateTopology checks referential integrity and acyclicity. Callers
// hold g.mu.
func (g *GraphAutoma) validateTopology() error {
	for _, key := range g.order {
		w := g.workers[key]
		for _, dep := range w.deps {
			if _, ok := g.workers[dep]; !ok {
				return &CompilationError{
					Automa: g.name,
					Reason: fmt.Sprintf("worker %q depends on unknown worker %q", key, dep),
				}
			}
		}
		if w.rule == args.RuleDistribute && len(w.deps) != 1 {
			return &CompilationError{
				Automa: g.name,
				Reason: fmt.Sprintf("worker %q uses the distribute rule but has %d dependencies, exactly one is required", key, len(w.deps)),
			}
		}
	}
	if g.outputKey != "" {
		if _, ok := g.workers[g.outputKey]; !ok {
			return &CompilationError{
				Automa: g.name,
				Reason: fmt.Sprintf("output worker %q is not registered", g.outputKey),
			}
		}
	}
	if cycle := findCycle(g.order, g.workers); len(cycle) > 0 {
		return &CompilationError{
			Automa: g.name,
			Reason: "dependency cycle detected",
			Cycle:  cycle,
		}
	}
	if len(g.order) > 0 && !g.hasStartWorker() {
		return &CompilationError{
			Automa: g.name,
			Reason: "no start worker is declared, nothing can be scheduled",
		}
	}
	return nil
}

// hasStartWorker reports whether any registered worker is a run entry point.
// Callers hold g.mu.
func (g *GraphAutoma) hasStartWorker() bool {
	for _, w := range g.workers {
		if w.isStart {
			return true
		}
	}
	return false
}

// findCycle runs Kahn's algorithm and returns the sorted keys left
// unscheduled, which are exactly the workers on or downstream-locked by a
// cycle. An empty result means the graph is acyclic.
func findCycle(order []string, workers map[string]*graphWorker) []string {
	indegree := make(map[string]int, len(workers))
	for _, key := range order {
		indegree[key] = len(workers[key].deps)
	}
	queue := make([]string, 0, len(workers))
	for _, key := range order {
		if indegree[key] == 0 {
			queue = append(queue, key)
		}
	}
	scheduled := 0
	for len(queue) > 0 {
		key := queue[0]
		queue = queue[1:]
		scheduled++
		for _, other := range order {
			if contains(workers[other].deps, key) {
				indegree[other]--
				if indegree[other] == 0 {
					queue = append(queue, other)
				}
			}
		}
	}
	if scheduled == len(workers) {
		return nil
	}
	var cycle []string
	for key, deg := range indegree {
		if deg > 0 {
			cycle = append(cycle, key)
		}
	}
	sort.Strings(cycle)
	return cycle
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func remove(list []string, v string) []string {
	out := list[:0]
	for _, x := range list {
		if x != v {
			out = append(out, x)
		}
	}
	return out
}

func appendUnique(list []string, v string) []string {
	if contains(list, v) {
		return list
	}
	return append(list, v)
}

func dedupe(list []string) []string {
	seen := make(map[string]struct{}, len(list))
	out := list[:0]
	for _, x := range list {
		if _, dup := seen[x]; dup {
			continue
		}
		seen[x] = struct{}{}
		out = append(out, x)
	}
	return out
}
