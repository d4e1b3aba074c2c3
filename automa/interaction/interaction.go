// Package interaction defines the value types exchanged between running
// workers and the world outside an automa: events posted to out-of-band
// handlers, feedback returned by those handlers, and the interaction and
// feedback records used by the suspend and resume protocol.
package interaction

import "github.com/google/uuid"

// Event is a typed payload emitted by a worker. The Type field is an
// application-chosen discriminator used to route the event to a matching
// handler; Data carries the payload itself.
type Event struct {
	Type string `msgpack:"type"`
	Data any    `msgpack:"data"`
}

// NewEvent creates an event of the given type carrying data.
func NewEvent(eventType string, data any) *Event {
	return &Event{Type: eventType, Data: data}
}

// Feedback is the answer produced for an event by a handler or, for human
// interactions, by the party resuming a suspended automa.
type Feedback struct {
	Data any `msgpack:"data"`
}

// NewFeedback wraps data in a Feedback.
func NewFeedback(data any) *Feedback {
	return &Feedback{Data: data}
}

// FeedbackSender delivers feedback for a single event. Implementations must
// tolerate Send being called at most once per event; later calls are ignored.
type FeedbackSender interface {
	Send(fb *Feedback)
}

// Interaction is a pending question raised by a worker through
// InteractWithHuman. It travels inside the error that suspends the run, and
// its ID is the correlation handle used when the run is resumed.
type Interaction struct {
	ID    string `msgpack:"id"`
	Event *Event `msgpack:"event"`
}

// NewInteraction builds an interaction for event with a fresh unique ID.
func NewInteraction(event *Event) *Interaction {
	return &Interaction{ID: uuid.NewString(), Event: event}
}

// InteractionFeedback pairs feedback with the ID of the interaction it
// answers. A resumed run consumes these to satisfy pending interactions.
type InteractionFeedback struct {
	InteractionID string    `msgpack:"interaction_id"`
	Feedback      *Feedback `msgpack:"feedback"`
}

// NewInteractionFeedback answers the interaction identified by id with data.
func NewInteractionFeedback(id string, data any) *InteractionFeedback {
	return &InteractionFeedback{InteractionID: id, Feedback: NewFeedback(data)}
}
