package args

// MappingRule selects how a worker's dependency outputs are shaped into the
// arguments of its invocation.
type MappingRule string

const (
	// RuleAsIs passes each dependency output as one positional argument, in
	// dependency declaration order.
	RuleAsIs MappingRule = "as_is"
	// RuleUnpack spreads each dependency output: slices extend the
	// positional arguments and string-keyed maps merge into the keyword
	// arguments. Anything else is a mapping error.
	RuleUnpack MappingRule = "unpack"
	// RuleMerge collects all dependency outputs into a single slice passed
	// as one positional argument.
	RuleMerge MappingRule = "merge"
	// RuleSuppressed ignores dependency outputs entirely.
	RuleSuppressed MappingRule = "suppressed"
	// RuleDistribute fans the single dependency's slice output out to one
	// invocation per element. The scheduler expands it before mapping.
	RuleDistribute MappingRule = "distribute"
)

// MapOutputs shapes the outputs of a worker's dependencies, given in
// dependency declaration order, into positional and keyword arguments
// according to rule. RuleDistribute is expanded by the caller and is not
// accepted here.
func MapOutputs(workerKey string, rule MappingRule, outputs []any) ([]any, map[string]any, error) {
	switch rule {
	case RuleAsIs:
		return append([]any(nil), outputs...), map[string]any{}, nil
	case RuleMerge:
		merged := append([]any(nil), outputs...)
		return []any{merged}, map[string]any{}, nil
	case RuleSuppressed:
		return nil, map[string]any{}, nil
	case RuleUnpack:
		var pos []any
		kw := make(map[string]any)
		for _, out := range outputs {
			switch v := out.(type) {
			case []any:
				pos = append(pos, v...)
			case map[string]any:
				for k, val := range v {
					kw[k] = val
				}
			default:
				return nil, nil, &MappingError{
					WorkerKey: workerKey,
					Reason:    "unpack requires each dependency output to be a slice or a string-keyed map",
				}
			}
		}
		return pos, kw, nil
	default:
		return nil, nil, &MappingError{
			WorkerKey: workerKey,
			Reason:    "unsupported mapping rule " + string(rule),
		}
	}
}

// MapArgs reconciles a loose argument set onto sig, dropping what the
// signature cannot bind. Positional values that bind to named parameters
// mask same-named keyword values, and keyword values with no matching
// parameter are dropped unless the signature has a catch-all keyword
// parameter. The inputs are not modified.
func MapArgs(sig *Signature, pos []any, kw map[string]any) ([]any, map[string]any) {
	positional := sig.positionalNames()

	// A lone nil positional offered to a signature that cannot bind any
	// positional value is treated as absent input rather than an argument.
	if len(pos) == 1 && pos[0] == nil && len(positional) == 0 && !sig.hasVarPositional() {
		pos = nil
	}
	outPos := append([]any(nil), pos...)
	if !sig.hasVarPositional() && len(outPos) > len(positional) {
		outPos = outPos[:len(positional)]
	}

	// Names consumed positionally must not also arrive as keywords.
	masked := make(map[string]struct{})
	for i := 0; i < len(outPos) && i < len(positional); i++ {
		masked[positional[i]] = struct{}{}
	}

	outKw := make(map[string]any)
	accepted := sig.keywordNames()
	for name, v := range kw {
		if _, hidden := masked[name]; hidden {
			continue
		}
		if _, ok := accepted[name]; ok || sig.hasVarKeyword() {
			outKw[name] = v
		}
	}
	return outPos, outKw
}
