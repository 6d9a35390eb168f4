// Package errors provides a structured error type shared by every
// component of the retrieval core.
package errors

// Kind is a stable, component-independent error identifier.
type Kind string

const (
	KindValidation     Kind = "VALIDATION"
	KindNotFound       Kind = "NOT_FOUND"
	KindUnsupported    Kind = "UNSUPPORTED"
	KindTooLarge       Kind = "TOO_LARGE"
	KindTimeout        Kind = "TIMEOUT"
	KindCorrupt        Kind = "CORRUPT"
	KindPermission     Kind = "PERMISSION"
	KindIO             Kind = "IO"
	KindAdapterFailure Kind = "ADAPTER_FAILURE"
	KindQueryFailed    Kind = "QUERY_FAILED"
	KindVecUnavailable Kind = "VEC_UNAVAILABLE"
	KindVecSyncFailed  Kind = "VEC_SYNC_FAILED"
	KindNotInitialized Kind = "NOT_INITIALIZED"
	KindRuntime        Kind = "RUNTIME"
	KindInternal       Kind = "INTERNAL"
)

// retryableKinds mirrors §4.2/§7: these kinds represent conditions a
// caller may reasonably retry.
var retryableKinds = map[Kind]bool{
	KindTimeout:        true,
	KindIO:             true,
	KindAdapterFailure: true,
}

// fatalKinds abort only the current file/operation, per §7's propagation
// policy, never the whole batch they were raised within.
var fatalKinds = map[Kind]bool{
	KindCorrupt: true,
}

func isRetryableKind(k Kind) bool { return retryableKinds[k] }
func isFatalKind(k Kind) bool     { return fatalKinds[k] }
