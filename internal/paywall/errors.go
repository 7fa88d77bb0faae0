package paywall

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNotFound is returned by a Client when the paywall id is unknown.
var ErrNotFound = errors.New("paywall not found")

// LoadErrorKind classifies why a paywall definition could not be resolved.
type LoadErrorKind int

const (
	// LoadNetwork covers transport failures and unexpected server responses.
	LoadNetwork LoadErrorKind = iota + 1
	// LoadNotFound means the paywall id does not exist upstream.
	LoadNotFound
	// LoadDecoding means the response body was not a valid definition.
	LoadDecoding
)

func (k LoadErrorKind) String() string {
	switch k {
	case LoadNetwork:
		return "network"
	case LoadNotFound:
		return "not_found"
	case LoadDecoding:
		return "decoding"
	default:
		return "unknown"
	}
}

// LoadError is the domain error returned by Loader.Resolve.
type LoadError struct {
	Kind      LoadErrorKind
	PaywallID string
	Err       error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("paywall %q: %s: %v", e.PaywallID, e.Kind, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// HTTPStatusError indicates the paywall API responded with an unexpected
// status code.
type HTTPStatusError struct {
	StatusCode int
	URL        string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("paywall api: unexpected status %d from %s", e.StatusCode, e.URL)
}

// DecodeError wraps a failure to decode a paywall definition.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("paywall api: decode: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// classifyFetchError translates a Client error into a LoadError. Anything
// that is neither a not-found nor a decode failure counts as network.
func classifyFetchError(paywallID string, err error) *LoadError {
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		return loadErr
	}
	kind := LoadNetwork
	var statusErr *HTTPStatusError
	var decodeErr *DecodeError
	switch {
	case errors.Is(err, ErrNotFound):
		kind = LoadNotFound
	case errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound:
		kind = LoadNotFound
	case errors.As(err, &decodeErr):
		kind = LoadDecoding
	}
	return &LoadError{Kind: kind, PaywallID: paywallID, Err: err}
}

// IsNotFound reports whether err is a LoadError of kind LoadNotFound.
func IsNotFound(err error) bool {
	var loadErr *LoadError
	return errors.As(err, &loadErr) && loadErr.Kind == LoadNotFound
}
