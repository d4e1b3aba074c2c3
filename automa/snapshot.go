package automa

import (
	"fmt"
	"sort"

	"github.com/bitsky-tech/bridgic/automa/args"
	"github.com/bitsky-tech/bridgic/automa/serialization"
)

// workerState is the serialized slice of one worker: topology and run
// state, never code. Nested automas serialize recursively.
type workerState struct {
	Dependencies []string       `msgpack:"dependencies"`
	IsStart      bool           `msgpack:"is_start"`
	Rule         string         `msgpack:"rule"`
	LocalSpace   map[string]any `msgpack:"local_space"`
	Triggers     []string       `msgpack:"triggers"`
	Sub          *automaState   `msgpack:"sub,omitempty"`
}

// automaState is everything a suspended run needs to continue on a freshly
// reconstructed graph.
type automaState struct {
	Name      string                           `msgpack:"name"`
	Running   bool                             `msgpack:"running"`
	Order     []string                         `msgpack:"order"`
	Workers   map[string]*workerState          `msgpack:"workers"`
	Forwards  map[string][]string              `msgpack:"forwards"`
	OutputKey string                           `msgpack:"output_key"`
	Outputs   map[string]any                   `msgpack:"outputs"`
	Kickoffs  []*kickoff                       `msgpack:"kickoffs"`
	Input     inputBuffer                      `msgpack:"input"`
	Ongoing   map[string][]*ongoingInteraction `msgpack:"ongoing"`
	Spawns    map[string]int                   `msgpack:"spawns"`
	Ferries   []*ferryTask                     `msgpack:"ferries"`
}

// DumpSnapshot captures the automa's full run state. Worker outputs, local
// space values, and buffered inputs must be msgpack-serializable.
func (g *GraphAutoma) DumpSnapshot() (*serialization.Snapshot, error) {
	state := g.captureState()
	snap, err := serialization.Dump(state)
	if err != nil {
		return nil, fmt.Errorf("dumping automa %q: %w", g.name, err)
	}
	return snap, nil
}

func (g *GraphAutoma) captureState() *automaState {
	g.mu.Lock()
	defer g.mu.Unlock()

	state := &automaState{
		Name:      g.name,
		Running:   g.running,
		Order:     append([]string(nil), g.order...),
		Workers:   make(map[string]*workerState, len(g.workers)),
		Forwards:  make(map[string][]string, len(g.forwards)),
		OutputKey: g.outputKey,
		Outputs:   cloneAnyMap(g.outputs),
		Kickoffs:  g.kickoffs,
		Input:     g.input,
		Ongoing:   g.ongoing,
		Spawns:    cloneIntMap(g.spawns),
		Ferries:   g.deferredFerries,
	}
	for dep, succ := range g.forwards {
		state.Forwards[dep] = append([]string(nil), succ...)
	}
	for key, w := range g.workers {
		triggers := make([]string, 0, len(w.triggers))
		for t := range w.triggers {
			triggers = append(triggers, t)
		}
		sort.Strings(triggers)
		ws := &workerState{
			Dependencies: append([]string(nil), w.deps...),
			IsStart:      w.isStart,
			Rule:         string(w.rule),
			LocalSpace:   w.local,
			Triggers:     triggers,
		}
		if w.sub != nil {
			ws.Sub = w.sub.captureState()
		}
		state.Workers[key] = ws
	}
	return state
}

// RestoreSnapshot overlays a snapshot onto this automa. The graph should be
// reconstructed the same way it was originally declared; workers present in
// the snapshot but missing from the graph are requested from the configured
// WorkerProvider, and workers absent from the snapshot are detached.
func (g *GraphAutoma) RestoreSnapshot(snap *serialization.Snapshot) error {
	var state automaState
	if err := serialization.Load(snap, &state); err != nil {
		return fmt.Errorf("restoring automa %q: %w", g.name, err)
	}
	return g.restoreState(&state)
}

func (g *GraphAutoma) restoreState(state *automaState) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	for key := range state.Workers {
		if _, ok := g.workers[key]; ok {
			continue
		}
		if g.provider == nil {
			return &RuntimeError{
				Reason: fmt.Sprintf("snapshot names worker %q which is not declared and no worker provider is configured", key),
			}
		}
		w, err := g.provider(key)
		if err != nil {
			return fmt.Errorf("providing worker %q during restore: %w", key, err)
		}
		if err := g.addWorkerNow(key, w, nil, true); err != nil {
			return err
		}
	}
	for _, key := range append([]string(nil), g.order...) {
		if _, ok := state.Workers[key]; !ok {
			if err := g.removeWorkerNow(key); err != nil {
				return err
			}
		}
	}

	var subErr error
	for key, ws := range state.Workers {
		w := g.workers[key]
		w.deps = append([]string(nil), ws.Dependencies...)
		w.isStart = ws.IsStart
		w.rule = args.MappingRule(ws.Rule)
		if ws.LocalSpace != nil {
			w.local = ws.LocalSpace
		} else {
			w.local = make(map[string]any)
		}
		w.triggers = make(map[string]struct{}, len(ws.Triggers))
		for _, t := range ws.Triggers {
			w.triggers[t] = struct{}{}
		}
		if ws.Sub != nil {
			if w.sub == nil {
				return &RuntimeError{
					Reason: fmt.Sprintf("snapshot expects worker %q to be a nested automa", key),
				}
			}
			if subErr = w.sub.restoreState(ws.Sub); subErr != nil {
				return subErr
			}
		}
	}

	g.order = make([]string, 0, len(state.Order))
	for _, key := range state.Order {
		if _, ok := g.workers[key]; ok {
			g.order = append(g.order, key)
		}
	}
	g.forwards = make(map[string][]string, len(state.Forwards))
	for dep, succ := range state.Forwards {
		g.forwards[dep] = append([]string(nil), succ...)
	}

	g.outputKey = state.OutputKey
	g.outputs = state.Outputs
	if g.outputs == nil {
		g.outputs = make(map[string]any)
	}
	g.kickoffs = state.Kickoffs
	g.input = state.Input
	g.ongoing = state.Ongoing
	if g.ongoing == nil {
		g.ongoing = make(map[string][]*ongoingInteraction)
	}
	g.spawns = state.Spawns
	if g.spawns == nil {
		g.spawns = make(map[string]int)
	}
	g.indices = make(map[string]int)
	g.running = state.Running
	g.deferredFerries = restorableFerries(state.Ferries, state.Kickoffs)
	g.deferredTopology = nil
	g.deferredOutput = nil

	return g.validateTopology()
}

// restorableFerries keeps only ferries whose origin worker finished its
// kickoff before the suspension. An unfinished origin replays from its
// start on resume and re-issues its own ferries.
func restorableFerries(ferries []*ferryTask, kickoffs []*kickoff) []*ferryTask {
	unfinished := make(map[string]struct{})
	for _, k := range kickoffs {
		if !k.RunFinished {
			unfinished[k.WorkerKey] = struct{}{}
		}
	}
	var kept []*ferryTask
	for _, f := range ferries {
		if _, replaying := unfinished[f.Origin]; replaying {
			continue
		}
		kept = append(kept, f)
	}
	return kept
}

func cloneIntMap(m map[string]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
