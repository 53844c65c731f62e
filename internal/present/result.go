package present

// Result is either a view, an error, or a stale view together with the
// error that kept it from being refreshed.
type Result[T any] struct {
	View T
	Err  error
	// Stale is set when View comes from an expired record.
	Stale bool
}

// OK wraps a fresh view.
func OK[T any](v T) Result[T] {
	return Result[T]{View: v}
}

// Fail wraps an error with no view to show.
func Fail[T any](err error) Result[T] {
	return Result[T]{Err: err}
}

// Degraded wraps a stale view and the refresh error.
func Degraded[T any](v T, err error) Result[T] {
	return Result[T]{View: v, Err: err, Stale: true}
}

// HasView reports whether View can be rendered.
func (r Result[T]) HasView() bool {
	return r.Err == nil || r.Stale
}
