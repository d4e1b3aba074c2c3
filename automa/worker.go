package automa

import (
	"context"

	"github.com/bitsky-tech/bridgic/automa/args"
)

// AsyncWorker is a unit of work driven directly by the scheduler. Arun must
// honor ctx cancellation on blocking operations.
type AsyncWorker interface {
	Arun(ctx context.Context, call *Call) (any, error)
}

// SyncWorker is a unit of blocking work. The scheduler never runs it
// inline; every invocation is offloaded to the automa's pool so it cannot
// starve concurrently scheduled workers.
type SyncWorker interface {
	Run(call *Call) (any, error)
}

// Signatured is implemented by workers that declare a parameter signature.
// Workers without one receive the permissive catch-all signature.
type Signatured interface {
	Signature() *args.Signature
}

// AsyncFunc adapts a plain function to a worker.
type AsyncFunc func(ctx context.Context, call *Call) (any, error)

// SyncFunc adapts a plain blocking function to a worker.
type SyncFunc func(call *Call) (any, error)

type asyncFuncWorker struct {
	fn  AsyncFunc
	sig *args.Signature
}

func (w *asyncFuncWorker) Arun(ctx context.Context, call *Call) (any, error) {
	return w.fn(ctx, call)
}

func (w *asyncFuncWorker) Signature() *args.Signature {
	return w.sig
}

type syncFuncWorker struct {
	fn  SyncFunc
	sig *args.Signature
}

func (w *syncFuncWorker) Run(call *Call) (any, error) {
	return w.fn(call)
}

func (w *syncFuncWorker) Signature() *args.Signature {
	return w.sig
}

// Async wraps fn as an AsyncWorker with the permissive signature.
func Async(fn AsyncFunc) AsyncWorker {
	return &asyncFuncWorker{fn: fn, sig: args.Permissive()}
}

// AsyncWithSignature wraps fn as an AsyncWorker declaring sig.
func AsyncWithSignature(sig *args.Signature, fn AsyncFunc) AsyncWorker {
	return &asyncFuncWorker{fn: fn, sig: sig}
}

// Sync wraps fn as a SyncWorker with the permissive signature.
func Sync(fn SyncFunc) SyncWorker {
	return &syncFuncWorker{fn: fn, sig: args.Permissive()}
}

// SyncWithSignature wraps fn as a SyncWorker declaring sig.
func SyncWithSignature(sig *args.Signature, fn SyncFunc) SyncWorker {
	return &syncFuncWorker{fn: fn, sig: sig}
}

// workerSignature returns the declared signature of w, or the permissive one.
func workerSignature(w any) *args.Signature {
	if s, ok := w.(Signatured); ok && s.Signature() != nil {
		return s.Signature()
	}
	return args.Permissive()
}
