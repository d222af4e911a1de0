package source

import "errors"

// ErrSourceUnavailable marks transient RPC/network failures. Callers retry
// with backoff; it is never fatal on its own.
var ErrSourceUnavailable = errors.New("event source unavailable")

// ErrInvalidCursor means the requested resume ledger has been pruned by the
// chain client and cannot be served. Not retryable: the operator must resync
// from genesis or a newer checkpoint.
var ErrInvalidCursor = errors.New("resume ledger no longer available from source")

// IsRetryable reports whether err should be retried against the source.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrSourceUnavailable) && !errors.Is(err, ErrInvalidCursor)
}
