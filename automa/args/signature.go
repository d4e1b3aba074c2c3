// Package args implements the declarative argument model for workers:
// parameter signatures, value descriptors for dependency and system
// injection, the mapping rules that shape dependency outputs into call
// arguments, and the reconciliation step that fits a loose argument set
// onto a concrete signature.
package args

// Kind classifies how a declared parameter accepts values.
type Kind uint8

const (
	// KindPositional accepts a value by position only.
	KindPositional Kind = iota
	// KindPositionalOrKeyword accepts a value by position or by name.
	KindPositionalOrKeyword
	// KindVarPositional absorbs any surplus positional values.
	KindVarPositional
	// KindKeywordOnly accepts a value by name only.
	KindKeywordOnly
	// KindVarKeyword absorbs any surplus named values.
	KindVarKeyword
)

// Param is one declared parameter of a worker signature. A default may be a
// plain value, a *FromDescriptor, or a *SystemDescriptor; descriptor defaults
// are resolved by Inject before the worker runs.
type Param struct {
	Name       string
	Kind       Kind
	Default    any
	HasDefault bool
}

// PositionalOnly declares a required parameter bound strictly by position.
// Keyword values under its name are never accepted.
func PositionalOnly(name string) Param {
	return Param{Name: name, Kind: KindPositional}
}

// PositionalOrKeyword declares a required parameter bound by position or by
// name.
func PositionalOrKeyword(name string) Param {
	return Param{Name: name, Kind: KindPositionalOrKeyword}
}

// PositionalOrKeywordDefault declares a positional-or-keyword parameter with
// a default.
func PositionalOrKeywordDefault(name string, def any) Param {
	return Param{Name: name, Kind: KindPositionalOrKeyword, Default: def, HasDefault: true}
}

// Keyword declares a required keyword-only parameter.
func Keyword(name string) Param {
	return Param{Name: name, Kind: KindKeywordOnly}
}

// KeywordDefault declares a keyword-only parameter with a default.
func KeywordDefault(name string, def any) Param {
	return Param{Name: name, Kind: KindKeywordOnly, Default: def, HasDefault: true}
}

// Variadic declares a catch-all positional parameter.
func Variadic(name string) Param {
	return Param{Name: name, Kind: KindVarPositional}
}

// VariadicKeyword declares a catch-all keyword parameter.
func VariadicKeyword(name string) Param {
	return Param{Name: name, Kind: KindVarKeyword}
}

// Signature is the ordered parameter list a worker exposes to the argument
// pipeline. Order matters for positional binding and for the masking rules
// applied during reconciliation.
type Signature struct {
	params []Param
}

// NewSignature builds a signature from params in declaration order.
func NewSignature(params ...Param) *Signature {
	return &Signature{params: params}
}

// Permissive returns a signature that accepts any combination of positional
// and keyword arguments. It is the default for workers that declare nothing.
func Permissive() *Signature {
	return NewSignature(Variadic("args"), VariadicKeyword("kwargs"))
}

// Params returns the declared parameters in order.
func (s *Signature) Params() []Param {
	return s.params
}

// positionalNames lists positional and positional-or-keyword parameter
// names in declaration order.
func (s *Signature) positionalNames() []string {
	var names []string
	for _, p := range s.params {
		if p.Kind == KindPositional || p.Kind == KindPositionalOrKeyword {
			names = append(names, p.Name)
		}
	}
	return names
}

// keywordNames lists every parameter name addressable by keyword.
func (s *Signature) keywordNames() map[string]struct{} {
	names := make(map[string]struct{})
	for _, p := range s.params {
		if p.Kind == KindPositionalOrKeyword || p.Kind == KindKeywordOnly {
			names[p.Name] = struct{}{}
		}
	}
	return names
}

// hasVarPositional reports whether the signature absorbs surplus positional values.
func (s *Signature) hasVarPositional() bool {
	for _, p := range s.params {
		if p.Kind == KindVarPositional {
			return true
		}
	}
	return false
}

// hasVarKeyword reports whether the signature absorbs surplus named values.
func (s *Signature) hasVarKeyword() bool {
	for _, p := range s.params {
		if p.Kind == KindVarKeyword {
			return true
		}
	}
	return false
}

// NonVariadicCount counts the parameters that bind exactly one value.
func (s *Signature) NonVariadicCount() int {
	n := 0
	for _, p := range s.params {
		if p.Kind != KindVarPositional && p.Kind != KindVarKeyword {
			n++
		}
	}
	return n
}
