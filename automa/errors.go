package automa

import (
	"fmt"
	"strings"

	"github.com/bitsky-tech/bridgic/automa/interaction"
	"github.com/bitsky-tech/bridgic/automa/serialization"
)

// DeclarationError reports an invalid worker registration or topology
// declaration, such as a duplicate key or a worker of an unsupported type.
type DeclarationError struct {
	Reason string
}

func (e *DeclarationError) Error() string {
	return "automa declaration: " + e.Reason
}

// CompilationError reports a topology that cannot be scheduled. When the
// cause is a dependency cycle, Cycle lists every worker key involved.
type CompilationError struct {
	Automa string
	Reason string
	Cycle  []string
}

func (e *CompilationError) Error() string {
	msg := fmt.Sprintf("compiling automa %q: %s", e.Automa, e.Reason)
	if len(e.Cycle) > 0 {
		msg += " [" + strings.Join(e.Cycle, ", ") + "]"
	}
	return msg
}

// SignatureError reports an invocation whose final argument set leaves a
// required parameter unbound.
type SignatureError struct {
	WorkerKey string
	Param     string
}

func (e *SignatureError) Error() string {
	return fmt.Sprintf("worker %q: required parameter %q is not bound", e.WorkerKey, e.Param)
}

// RuntimeError reports a violation detected while a run is in flight, such
// as a ferry to an unknown worker or a sync worker with no pool available.
type RuntimeError struct {
	Reason string
}

func (e *RuntimeError) Error() string {
	return "automa runtime: " + e.Reason
}

// SuspendedError is returned by a top-level run that paused for human input.
// Interactions lists every question raised during the suspending pass, and
// Snapshot captures the run so it can be resumed later, possibly elsewhere.
type SuspendedError struct {
	Interactions []*interaction.Interaction
	Snapshot     *serialization.Snapshot
}

func (e *SuspendedError) Error() string {
	return fmt.Sprintf("run suspended awaiting %d interaction(s)", len(e.Interactions))
}

// suspendSignal is the internal control error a worker returns from
// InteractWithHuman when no feedback is available yet. It flows up through
// nested automas and is converted to SuspendedError at the top level only.
type suspendSignal struct {
	interactions []*interaction.Interaction
}

func (s *suspendSignal) Error() string {
	return fmt.Sprintf("awaiting %d interaction(s)", len(s.interactions))
}
