package automa

import (
	"context"
	"errors"
)

// CallbackEvent describes one worker invocation to callbacks and error
// handlers. Result is set for OnWorkerEnd, Err for error handlers.
type CallbackEvent struct {
	WorkerKey string
	Automa    *GraphAutoma
	TopLevel  bool
	Args      []any
	Kwargs    map[string]any
	Result    any
	Err       error
}

// WorkerCallback observes a worker's lifecycle. OnWorkerStart runs before
// the worker and OnWorkerEnd after a successful return. An error from
// either fails the invocation.
type WorkerCallback interface {
	OnWorkerStart(ctx context.Context, ev *CallbackEvent) error
	OnWorkerEnd(ctx context.Context, ev *CallbackEvent) error
}

// ErrorMatcher decides whether an error handler applies to an error.
type ErrorMatcher func(err error) bool

// MatchError matches errors that unwrap to type T.
func MatchError[T error]() ErrorMatcher {
	return func(err error) bool {
		var target T
		return errors.As(err, &target)
	}
}

// MatchAnyError matches every error.
func MatchAnyError() ErrorMatcher {
	return func(err error) bool {
		return err != nil
	}
}

// ErrorHandler runs when a matched worker error occurs. Returning recovered
// true substitutes result for the worker's output and the run continues as
// if the worker had succeeded. Returning an error replaces the original.
type ErrorHandler func(ctx context.Context, ev *CallbackEvent) (result any, recovered bool, err error)

type errorHandlerEntry struct {
	match   ErrorMatcher
	handler ErrorHandler
}
