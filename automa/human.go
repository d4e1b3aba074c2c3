package automa

import (
	"github.com/bitsky-tech/bridgic/automa/interaction"
)

// InteractWithHuman asks a question that only a human can answer. When no
// feedback is available the invocation aborts with the internal suspend
// signal, the run captures a snapshot, and Arun returns *SuspendedError.
//
// On resume the worker replays from its start. Each InteractWithHuman call
// site is matched to pending interactions by call order within the worker,
// so a replayed call whose interaction was answered returns the feedback
// immediately instead of suspending again. Side effects before a suspension
// replay too; code that must run once should guard with LocalSpace.
func (c *Call) InteractWithHuman(event *interaction.Event) (*interaction.Feedback, error) {
	g := c.automa
	g.mu.Lock()
	defer g.mu.Unlock()

	idx := g.indices[c.workerKey]
	g.indices[c.workerKey] = idx + 1

	list := g.ongoing[c.workerKey]
	if idx < len(list) {
		oi := list[idx]
		if oi.Feedback != nil {
			return oi.Feedback, nil
		}
		return nil, &suspendSignal{interactions: []*interaction.Interaction{oi.Interaction}}
	}

	ia := interaction.NewInteraction(event)
	g.ongoing[c.workerKey] = append(list, &ongoingInteraction{Interaction: ia})
	return nil, &suspendSignal{interactions: []*interaction.Interaction{ia}}
}
