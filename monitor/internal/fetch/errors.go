package fetch

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies a fetch failure. The worker uses it to decide between
// retry with backoff, pausing the target for re-authentication, and
// counting toward the not-found deactivation threshold.
type Kind int

const (
	KindUnknown Kind = iota
	KindTimeout
	KindAuthExpired
	KindNotFound
	KindRateLimited
	KindParseFailure
)

func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindAuthExpired:
		return "auth_expired"
	case KindNotFound:
		return "not_found"
	case KindRateLimited:
		return "rate_limited"
	case KindParseFailure:
		return "parse_failure"
	default:
		return "unknown"
	}
}

// Error is a classified fetch failure.
type Error struct {
	Kind Kind
	URL  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
	}
	return fmt.Sprintf("fetch %s: %s", e.URL, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

func errOf(kind Kind, url string, err error) *Error {
	return &Error{Kind: kind, URL: url, Err: err}
}

// KindOf extracts the failure kind from an error chain. A context deadline
// anywhere in the chain counts as a timeout even when the transport wrapped
// it in its own error type.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindUnknown
}
