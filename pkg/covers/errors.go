package covers

import "fmt"

// ErrorKind classifies a failed or partially failed search.
type ErrorKind string

const (
	// ErrorKindNetwork covers transport-level failures: DNS, connection,
	// TLS, timeouts.
	ErrorKindNetwork ErrorKind = "network"
	// ErrorKindAPI covers non-success HTTP statuses, optionally carrying a
	// service-reported message and sub-code.
	ErrorKindAPI ErrorKind = "api"
	// ErrorKindMalformed covers unparseable JSON or a payload whose
	// top-level shape deviates from the documented one.
	ErrorKindMalformed ErrorKind = "malformed"
	// ErrorKindPartialItem covers a single malformed item skipped inside
	// an otherwise valid batch.
	ErrorKindPartialItem ErrorKind = "partial_item"
)

// searchError is the internal error report produced while resolving one
// request. It is surfaced through the provider's log side channel, never
// returned to the caller: the caller-visible contract is always "search
// finished with empty or partial results".
type searchError struct {
	Kind    ErrorKind
	Message string
	// SessionInvalid is set when the service reported that current
	// credentials are no longer usable, which triggers a logout on the
	// session handle.
	SessionInvalid bool
	// Debug optionally carries the offending raw payload fragment.
	Debug string
}

func (e *searchError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func networkError(err error) *searchError {
	return &searchError{Kind: ErrorKindNetwork, Message: err.Error()}
}

func malformedError(message string, debug []byte) *searchError {
	return &searchError{Kind: ErrorKindMalformed, Message: message, Debug: string(debug)}
}
