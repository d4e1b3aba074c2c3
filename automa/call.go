package automa

// Call carries one invocation of a worker: the final bound arguments plus
// the handles the worker may use to talk back to its enclosing automa.
type Call struct {
	automa    *GraphAutoma
	workerKey string
	local     map[string]any

	// Args and Kwargs are the invocation arguments after mapping, input
	// propagation, injection, and signature reconciliation.
	Args   []any
	Kwargs map[string]any
}

// WorkerKey returns the key this invocation runs under. Fan-out clones run
// under derived keys of the form "key#index".
func (c *Call) WorkerKey() string {
	return c.workerKey
}

// Automa returns the enclosing automa.
func (c *Call) Automa() *GraphAutoma {
	return c.automa
}

// LocalSpace returns the worker's private scratch map. It survives across
// kickoffs within a run, is captured in snapshots, and is cleared when the
// run finishes naturally unless the automa keeps local spaces.
func (c *Call) LocalSpace() map[string]any {
	return c.local
}

// Arg returns the positional argument at index i, or nil when absent.
func (c *Call) Arg(i int) any {
	if i < 0 || i >= len(c.Args) {
		return nil
	}
	return c.Args[i]
}

// Kwarg returns the named keyword argument.
func (c *Call) Kwarg(name string) (any, bool) {
	v, ok := c.Kwargs[name]
	return v, ok
}

// Ferry redirects control: after the current pass joins, the target worker
// is kicked off with exactly the given positional arguments, bypassing its
// dependency gates and mapping rule.
func (c *Call) Ferry(targetKey string, posArgs ...any) error {
	return c.automa.enqueueFerry(c.workerKey, targetKey, posArgs, nil)
}

// FerryKw is Ferry with explicit positional and keyword arguments.
func (c *Call) FerryKw(targetKey string, posArgs []any, kwargs map[string]any) error {
	return c.automa.enqueueFerry(c.workerKey, targetKey, posArgs, kwargs)
}
