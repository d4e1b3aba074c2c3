package automa_test

import (
	"context"
	"fmt"

	"github.com/bitsky-tech/bridgic/automa"
)

// asInt normalizes numeric values, including the compact integer types a
// msgpack round trip produces.
func asInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int8:
		return int(n)
	case int16:
		return int(n)
	case int32:
		return int(n)
	case int64:
		return int(n)
	case uint8:
		return int(n)
	case uint16:
		return int(n)
	case uint32:
		return int(n)
	case uint64:
		return int(n)
	case float32:
		return int(n)
	case float64:
		return int(n)
	default:
		panic(fmt.Sprintf("not a number: %#v", v))
	}
}

// addN returns a worker that adds n to its first positional argument.
func addN(n int) automa.AsyncFunc {
	return func(ctx context.Context, call *automa.Call) (any, error) {
		return asInt(call.Arg(0)) + n, nil
	}
}

// constant returns a worker that always outputs v.
func constant(v any) automa.AsyncFunc {
	return func(ctx context.Context, call *automa.Call) (any, error) {
		return v, nil
	}
}
