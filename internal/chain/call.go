package chain

// CallResult is the outcome of one read-only contract call at a fixed block
// height. A reverted call is an expected condition, not an error: callers pick
// a default and continue. This makes the "never fails, always defaults" policy
// an explicit contract instead of scattered flag checks.
type CallResult[T any] struct {
	Value    T
	Reverted bool
}

func Ok[T any](v T) CallResult[T] {
	return CallResult[T]{Value: v}
}

func Reverted[T any]() CallResult[T] {
	return CallResult[T]{Reverted: true}
}

// OrDefault returns the call value, or def when the call reverted.
func (r CallResult[T]) OrDefault(def T) T {
	if r.Reverted {
		return def
	}
	return r.Value
}
