package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind categorizes adapter failures so the router can branch on
// them without string inspection.
type ErrorKind int

const (
	// KindConfiguration means the provider is missing credentials or
	// other required settings. Not counted as an attempt.
	KindConfiguration ErrorKind = iota + 1

	// KindTransient covers timeouts, rate limits, and 5xx responses.
	KindTransient

	// KindPermanent covers 4xx responses and malformed requests.
	KindPermanent

	// KindUnsupported means the adapter does not implement the
	// requested capability even though the registry lists it.
	KindUnsupported
)

func (k ErrorKind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindTransient:
		return "transient"
	case KindPermanent:
		return "permanent"
	case KindUnsupported:
		return "unsupported"
	default:
		return "unknown"
	}
}

// Error is a categorized provider failure.
type Error struct {
	Provider string
	Kind     ErrorKind
	Message  string
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s error: %s: %v", e.Provider, e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s error: %s", e.Provider, e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a categorized provider error.
func NewError(provider string, kind ErrorKind, message string, cause error) *Error {
	return &Error{Provider: provider, Kind: kind, Message: message, Err: cause}
}

// KindOf extracts the category from an adapter error. Context deadline
// expiry counts as transient; anything uncategorized as permanent.
func KindOf(err error) ErrorKind {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransient
	}
	return KindPermanent
}

// IsConfiguration reports whether the error is a configuration failure.
func IsConfiguration(err error) bool {
	return KindOf(err) == KindConfiguration
}

// IsTransient reports whether the error is worth retrying elsewhere.
func IsTransient(err error) bool {
	return KindOf(err) == KindTransient
}

// kindFromStatus maps an HTTP status to an error category: rate limits
// and server errors are transient, the rest of the 4xx range permanent.
func kindFromStatus(status int) ErrorKind {
	switch {
	case status == http.StatusTooManyRequests:
		return KindTransient
	case status >= 500:
		return KindTransient
	default:
		return KindPermanent
	}
}

// statusError builds a categorized error from a non-2xx HTTP response.
func statusError(provider string, status int, body []byte) *Error {
	msg := fmt.Sprintf("provider returned status %d", status)
	if len(body) > 0 {
		const maxBody = 256
		if len(body) > maxBody {
			body = body[:maxBody]
		}
		msg = fmt.Sprintf("%s: %s", msg, string(body))
	}
	return &Error{Provider: provider, Kind: kindFromStatus(status), Message: msg}
}

// transportError wraps a failed HTTP round trip. Network failures and
// timeouts are transient.
func transportError(provider string, err error) *Error {
	return &Error{Provider: provider, Kind: KindTransient, Message: "request failed", Err: err}
}

// unsupported builds the error for a capability the adapter does not
// implement.
func unsupported(provider string, capability fmt.Stringer) *Error {
	return &Error{
		Provider: provider,
		Kind:     KindUnsupported,
		Message:  fmt.Sprintf("capability %s not implemented", capability),
	}
}
