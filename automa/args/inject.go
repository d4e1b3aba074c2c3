package args

// OutputLookup resolves a worker key to its current output. The second
// result is false when that worker has not produced an output yet.
type OutputLookup func(key string) (any, bool)

// SystemResolver resolves a system descriptor for the worker being invoked.
// It is provided by the engine, which knows the enclosing automa.
type SystemResolver func(workerKey string, desc *SystemDescriptor) (any, error)

// Inject resolves the From and System defaults declared on sig and layers
// them over the caller-supplied arguments, then reconciles the result onto
// the signature. Precedence, lowest to highest: caller keyword arguments,
// From injections, System injections. Positional arguments are never
// displaced, but a signature whose non-variadic parameters are all consumed
// positionally while injections are declared is ambiguous and rejected.
func Inject(workerKey string, sig *Signature, pos []any, kw map[string]any, outputs OutputLookup, resolve SystemResolver) ([]any, map[string]any, error) {
	fromValues := make(map[string]any)
	systemValues := make(map[string]any)

	for _, p := range sig.Params() {
		if !p.HasDefault {
			continue
		}
		switch d := p.Default.(type) {
		case *FromDescriptor:
			v, ok := outputs(d.Key)
			if !ok {
				if !d.HasDefault {
					return nil, nil, &InjectionError{
						WorkerKey: workerKey,
						Reason:    "no output available from worker " + d.Key + " for parameter " + p.Name,
					}
				}
				v = d.Default
			}
			fromValues[p.Name] = v
		case *SystemDescriptor:
			if !d.valid() {
				return nil, nil, &InjectionError{
					WorkerKey: workerKey,
					Reason:    "unknown system injection key " + d.Key,
				}
			}
			v, err := resolve(workerKey, d)
			if err != nil {
				return nil, nil, err
			}
			systemValues[p.Name] = v
		}
	}

	if len(fromValues)+len(systemValues) > 0 && sig.NonVariadicCount() <= len(pos) {
		return nil, nil, &InjectionError{
			WorkerKey: workerKey,
			Reason:    "positional arguments cover every declared parameter, injected values cannot bind unambiguously",
		}
	}

	merged := make(map[string]any, len(kw)+len(fromValues)+len(systemValues))
	for k, v := range kw {
		merged[k] = v
	}
	for k, v := range fromValues {
		merged[k] = v
	}
	for k, v := range systemValues {
		merged[k] = v
	}

	outPos, outKw := MapArgs(sig, pos, merged)
	return outPos, outKw, nil
}
