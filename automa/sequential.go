package automa

// SequentialAutoma is a linear chain of workers. Each appended worker
// depends on the previous one, the first is the start, and the tail is
// always the output. Free-form topology edits and ferrying are disabled;
// the chain is the contract.
type SequentialAutoma struct {
	*GraphAutoma
	tail string
}

// NewSequential creates an empty chain.
func NewSequential(name string, opts ...Option) *SequentialAutoma {
	g := NewGraph(name, opts...)
	g.topologyLocked = true
	g.ferryDisabled = true
	return &SequentialAutoma{GraphAutoma: g}
}

// Append adds w to the end of the chain and makes it the output worker.
func (s *SequentialAutoma) Append(key string, w any, opts ...WorkerOption) error {
	g := s.GraphAutoma
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.running {
		return &DeclarationError{Reason: "cannot append to a sequential automa while it is running"}
	}
	if s.tail != "" {
		opts = append(opts, WithDependencies(s.tail))
	} else {
		opts = append(opts, AsStart())
	}
	if err := g.addWorkerNow(key, w, opts, false); err != nil {
		return err
	}
	s.tail = key
	g.outputKey = key
	return nil
}

// AppendFunc adds fn as an async worker at the end of the chain.
func (s *SequentialAutoma) AppendFunc(key string, fn AsyncFunc, opts ...WorkerOption) error {
	return s.Append(key, Async(fn), opts...)
}
