package args

import "strings"

// System key forms accepted by SystemDescriptor.
const (
	// SystemRuntimeContext injects per-run metadata about the current worker.
	SystemRuntimeContext = "runtime_context"
	// SystemAutoma injects the enclosing automa instance.
	SystemAutoma = "automa"
	// systemAutomaPrefix selects a named nested automa, as in "automa:billing".
	systemAutomaPrefix = "automa:"
)

// FromDescriptor declares that a parameter's value is the output of another
// worker, looked up by key at injection time. If the producing worker has
// not run, the descriptor falls back to its default when one was given.
type FromDescriptor struct {
	Key        string
	Default    any
	HasDefault bool
}

// From declares a required injection of the named worker's output.
func From(key string) *FromDescriptor {
	return &FromDescriptor{Key: key}
}

// FromOr declares an injection of the named worker's output, falling back to
// def when that worker has no output yet.
func FromOr(key string, def any) *FromDescriptor {
	return &FromDescriptor{Key: key, Default: def, HasDefault: true}
}

// SystemDescriptor declares that a parameter's value is supplied by the
// engine itself rather than by graph data flow. Valid keys are
// "runtime_context", "automa", and "automa:<worker key>".
type SystemDescriptor struct {
	Key string
}

// System declares an engine-supplied injection for the given key. Key
// validity is checked at injection time.
func System(key string) *SystemDescriptor {
	return &SystemDescriptor{Key: key}
}

// AutomaSubKey returns the worker key named by an "automa:<key>" descriptor,
// or false when the descriptor uses another form.
func (d *SystemDescriptor) AutomaSubKey() (string, bool) {
	if strings.HasPrefix(d.Key, systemAutomaPrefix) {
		return strings.TrimPrefix(d.Key, systemAutomaPrefix), true
	}
	return "", false
}

// valid reports whether the key is one of the recognized system key forms.
func (d *SystemDescriptor) valid() bool {
	if d.Key == SystemRuntimeContext || d.Key == SystemAutoma {
		return true
	}
	sub, ok := d.AutomaSubKey()
	return ok && sub != ""
}

// RuntimeContext is the value injected for System("runtime_context"). It
// identifies the worker being invoked and the arguments it was invoked with.
type RuntimeContext struct {
	WorkerKey string
	Args      []any
	Kwargs    map[string]any
}
