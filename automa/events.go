package automa

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bitsky-tech/bridgic/automa/interaction"
)

// EventHandler receives events posted by workers. For RequestFeedback the
// sender delivers the answer; for PostEvent the sender discards anything
// sent to it.
type EventHandler func(ctx context.Context, ev *interaction.Event, sender interaction.FeedbackSender) error

// RegisterEventHandler routes events of the given type to h.
func (g *GraphAutoma) RegisterEventHandler(eventType string, h EventHandler) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.eventHandlers[eventType] = h
}

// RegisterDefaultEventHandler routes events with no type-specific handler
// to h.
func (g *GraphAutoma) RegisterDefaultEventHandler(h EventHandler) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.defaultHandler = h
}

// UnregisterEventHandler removes the handler for the given event type.
func (g *GraphAutoma) UnregisterEventHandler(eventType string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.eventHandlers, eventType)
}

// handlerFor finds a handler for eventType, consulting parent automas when
// this one has none registered.
func (g *GraphAutoma) handlerFor(eventType string) EventHandler {
	for a := g; a != nil; a = a.parent {
		a.mu.Lock()
		h, ok := a.eventHandlers[eventType]
		if !ok && a.defaultHandler != nil {
			h, ok = a.defaultHandler, true
		}
		a.mu.Unlock()
		if ok {
			return h
		}
	}
	return nil
}

// discardSender swallows feedback for fire-and-forget events.
type discardSender struct{}

func (discardSender) Send(*interaction.Feedback) {}

// feedbackSender delivers at most one feedback to a waiting worker.
type feedbackSender struct {
	once sync.Once
	ch   chan *interaction.Feedback
}

func newFeedbackSender() *feedbackSender {
	return &feedbackSender{ch: make(chan *interaction.Feedback, 1)}
}

func (s *feedbackSender) Send(fb *interaction.Feedback) {
	s.once.Do(func() { s.ch <- fb })
}

// PostEvent delivers event to the matching handler without waiting for an
// answer. It fails when no handler is registered for the event's type.
func (c *Call) PostEvent(ctx context.Context, event *interaction.Event) error {
	h := c.automa.handlerFor(event.Type)
	if h == nil {
		return &RuntimeError{Reason: fmt.Sprintf("no handler registered for event type %q", event.Type)}
	}
	return h(ctx, event, discardSender{})
}

// RequestFeedback delivers event to the matching handler and blocks until
// feedback arrives, ctx is cancelled, or timeout elapses. A non-positive
// timeout waits indefinitely.
func (c *Call) RequestFeedback(ctx context.Context, event *interaction.Event, timeout time.Duration) (*interaction.Feedback, error) {
	h := c.automa.handlerFor(event.Type)
	if h == nil {
		return nil, &RuntimeError{Reason: fmt.Sprintf("no handler registered for event type %q", event.Type)}
	}
	sender := newFeedbackSender()
	if err := h(ctx, event, sender); err != nil {
		return nil, fmt.Errorf("handler for event type %q: %w", event.Type, err)
	}

	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}
	select {
	case fb := <-sender.ch:
		return fb, nil
	case <-timeoutCh:
		return nil, &RuntimeError{Reason: fmt.Sprintf("timed out waiting for feedback on event type %q", event.Type)}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
