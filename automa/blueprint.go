package automa

import "fmt"

// blueprintEntry is one deferred worker registration.
type blueprintEntry struct {
	key    string
	worker any
	opts   []WorkerOption
}

// Blueprint declares a graph once and stamps out independent automa
// instances from it. Blueprints compose: Extend layers this blueprint's
// declarations over one or more parents, with child keys overriding
// same-named parent keys.
type Blueprint struct {
	name      string
	entries   []blueprintEntry
	outputKey string
	declErr   error
}

// NewBlueprint creates an empty blueprint.
func NewBlueprint(name string) *Blueprint {
	return &Blueprint{name: name}
}

// Worker declares a worker registration. Declarations are validated when
// the blueprint is built.
func (b *Blueprint) Worker(key string, w any, opts ...WorkerOption) *Blueprint {
	b.entries = append(b.entries, blueprintEntry{key: key, worker: w, opts: opts})
	return b
}

// FuncWorker declares fn as an async worker under key.
func (b *Blueprint) FuncWorker(key string, fn AsyncFunc, opts ...WorkerOption) *Blueprint {
	return b.Worker(key, Async(fn), opts...)
}

// Output selects the worker whose output a built automa returns.
func (b *Blueprint) Output(key string) *Blueprint {
	b.outputKey = key
	return b
}

// Extend returns a blueprint that inherits every declaration from parents,
// in order, with b's own declarations layered on top. A key declared by two
// parents is ambiguous and fails the eventual Build; a key redeclared by b
// overrides its parent's declaration.
func (b *Blueprint) Extend(parents ...*Blueprint) *Blueprint {
	merged := &Blueprint{name: b.name, outputKey: b.outputKey}
	seen := make(map[string]string)
	for _, parent := range parents {
		if parent.declErr != nil && merged.declErr == nil {
			merged.declErr = parent.declErr
		}
		for _, e := range parent.entries {
			if prev, dup := seen[e.key]; dup && merged.declErr == nil {
				merged.declErr = &DeclarationError{
					Reason: fmt.Sprintf("worker %q is declared by both blueprint %q and blueprint %q", e.key, prev, parent.name),
				}
			}
			seen[e.key] = parent.name
			merged.entries = append(merged.entries, e)
		}
		if merged.outputKey == "" {
			merged.outputKey = parent.outputKey
		}
	}
	for _, e := range b.entries {
		merged.entries = overrideEntry(merged.entries, e)
	}
	return merged
}

// overrideEntry replaces an inherited declaration in place or appends.
func overrideEntry(entries []blueprintEntry, e blueprintEntry) []blueprintEntry {
	for i := range entries {
		if entries[i].key == e.key {
			entries[i] = e
			return entries
		}
	}
	return append(entries, e)
}

// Build constructs and validates a fresh automa from the blueprint. Every
// call returns an independent instance.
func (b *Blueprint) Build(opts ...Option) (*GraphAutoma, error) {
	if b.declErr != nil {
		return nil, b.declErr
	}
	g := NewGraph(b.name, opts...)
	for _, e := range b.entries {
		if err := g.AddWorker(e.key, e.worker, e.opts...); err != nil {
			return nil, err
		}
	}
	if b.outputKey != "" {
		if err := g.SetOutputWorker(b.outputKey); err != nil {
			return nil, err
		}
	}
	g.mu.Lock()
	err := g.validateTopology()
	g.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return g, nil
}
