package errors

import "fmt"

// Error is the structured error type used across the retrieval core. It
// carries enough context for the store/conversion/backlog layers to make
// retry and propagation decisions without parsing message strings.
type Error struct {
	Kind    Kind
	Message string

	// Fatal, when true, aborts only the current file/operation (§7); it
	// never aborts an enclosing batch.
	Fatal bool
	// Retryable indicates the operation may be safely retried unchanged.
	Retryable bool

	ConverterID string
	SourcePath  string
	MIME        string
	Ext         string
	Details     map[string]string

	Cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.SourcePath != "" {
		return fmt.Sprintf("[%s] %s (%s)", e.Kind, e.Message, e.SourcePath)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As chains.
func (e *Error) Unwrap() error { return e.Cause }

// Is lets errors.Is match on Kind alone, so callers can write
// errors.Is(err, &errors.Error{Kind: errors.KindNotFound}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// WithDetail attaches a key-value detail and returns the error for chaining.
func (e *Error) WithDetail(key, value string) *Error {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// New creates an Error of the given kind. Retryable/Fatal default from the
// kind's documented behavior (§7) but may be overridden by the caller.
func New(kind Kind, message string, cause error) *Error {
	return &Error{
		Kind:      kind,
		Message:   message,
		Cause:     cause,
		Retryable: isRetryableKind(kind),
		Fatal:     isFatalKind(kind),
	}
}

// Wrap builds an Error from an existing error, keeping its message.
func Wrap(kind Kind, err error) *Error {
	if err == nil {
		return nil
	}
	return New(kind, err.Error(), err)
}

func Validation(message string, cause error) *Error     { return New(KindValidation, message, cause) }
func NotFound(message string, cause error) *Error        { return New(KindNotFound, message, cause) }
func Unsupported(message string, cause error) *Error     { return New(KindUnsupported, message, cause) }
func TooLarge(message string, cause error) *Error        { return New(KindTooLarge, message, cause) }
func Timeout(message string, cause error) *Error         { return New(KindTimeout, message, cause) }
func Corrupt(message string, cause error) *Error         { return New(KindCorrupt, message, cause) }
func Permission(message string, cause error) *Error      { return New(KindPermission, message, cause) }
func IO(message string, cause error) *Error              { return New(KindIO, message, cause) }
func AdapterFailure(message string, cause error) *Error  { return New(KindAdapterFailure, message, cause) }
func QueryFailed(message string, cause error) *Error     { return New(KindQueryFailed, message, cause) }
func VecUnavailable(message string, cause error) *Error  { return New(KindVecUnavailable, message, cause) }
func VecSyncFailed(message string, cause error) *Error   { return New(KindVecSyncFailed, message, cause) }
func NotInitialized(message string, cause error) *Error  { return New(KindNotInitialized, message, cause) }
func Runtime(message string, cause error) *Error         { return New(KindRuntime, message, cause) }
func Internal(message string, cause error) *Error        { return New(KindInternal, message, cause) }

// IsRetryable reports whether err is an *Error with Retryable set.
func IsRetryable(err error) bool {
	if e, ok := err.(*Error); ok {
		return e.Retryable
	}
	return false
}

// IsFatal reports whether err is an *Error with Fatal set.
func IsFatal(err error) bool {
	if e, ok := err.(*Error); ok {
		return e.Fatal
	}
	return false
}

// GetKind extracts the Kind from an error, or "" if err is not an *Error.
func GetKind(err error) Kind {
	if e, ok := err.(*Error); ok {
		return e.Kind
	}
	return ""
}
