package host

// memoryExceededError signals the pre-flight budget check failed; callers
// must not retry without unloading first.
type memoryExceededError struct{ msg string }

func (e memoryExceededError) Error() string { return e.msg }

// IsMemoryExceeded reports whether err is a budget ceiling rejection.
func IsMemoryExceeded(err error) bool {
	_, ok := err.(memoryExceededError)
	return ok
}

// modelNotFoundError signals the requested slot has no catalog assignment.
type modelNotFoundError struct{ slot string }

func (e modelNotFoundError) Error() string { return "no model for slot: " + e.slot }

// ErrModelNotFound constructs a modelNotFoundError for a slot.
func ErrModelNotFound(slot string) error { return modelNotFoundError{slot: slot} }

// IsModelNotFound reports whether err indicates a missing slot assignment.
func IsModelNotFound(err error) bool {
	_, ok := err.(modelNotFoundError)
	return ok
}

// notReadyError signals an inference request hit a slot that is not ready.
type notReadyError struct{ slot string }

func (e notReadyError) Error() string { return "slot not ready: " + e.slot }

// IsNotReady reports whether err indicates a slot that needs loading first.
func IsNotReady(err error) bool {
	_, ok := err.(notReadyError)
	return ok
}

// oomError marks an allocation failure inside the runtime. The host
// treats it as fatal for all resident models.
type oomError struct{ cause error }

func (e oomError) Error() string { return "out of memory: " + e.cause.Error() }
func (e oomError) Unwrap() error { return e.cause }

// ErrOOM wraps a runtime allocation failure.
func ErrOOM(cause error) error { return oomError{cause: cause} }

// IsOOM reports whether err is an out-of-memory condition.
func IsOOM(err error) bool {
	_, ok := err.(oomError)
	return ok
}

// runtimeUnavailableError signals a missing model runtime (built without
// the llama tag, or the backend failed to initialize).
type runtimeUnavailableError struct{ msg string }

func (e runtimeUnavailableError) Error() string { return e.msg }

// ErrRuntimeUnavailable constructs a runtimeUnavailableError.
func ErrRuntimeUnavailable(msg string) error { return runtimeUnavailableError{msg: msg} }

// IsRuntimeUnavailable reports whether err indicates a missing runtime.
func IsRuntimeUnavailable(err error) bool {
	_, ok := err.(runtimeUnavailableError)
	return ok
}
