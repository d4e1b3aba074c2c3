package args

import "fmt"

// MappingError reports a failure while shaping a dependency output into call
// arguments, such as unpacking a value that is neither a slice nor a map.
type MappingError struct {
	WorkerKey string
	Reason    string
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("mapping arguments for worker %q: %s", e.WorkerKey, e.Reason)
}

// InjectionError reports a failure while resolving declared From or System
// defaults, including ambiguous positional binding and unknown system keys.
type InjectionError struct {
	WorkerKey string
	Reason    string
}

func (e *InjectionError) Error() string {
	return fmt.Sprintf("injecting arguments for worker %q: %s", e.WorkerKey, e.Reason)
}
