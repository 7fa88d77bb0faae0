package tracking

import (
	"log/slog"
)

// TrackingParameters are two views of the same sanitized event data.
// EventParams feed internal analytics and carry $-prefixed keys;
// DelegateParams are handed to host delegates without prefixes.
type TrackingParameters struct {
	DelegateParams map[string]any `json:"delegate_params"`
	EventParams    map[string]any `json:"event_params"`
}

// Trackable is an event that can be processed into tracking parameters.
type Trackable interface {
	// Name is the raw event name.
	Name() string
	// SuperwallParameters are internally generated and get the reserved prefix.
	SuperwallParameters() map[string]any
	// CustomParameters are user supplied and may not use the reserved prefix.
	CustomParameters() map[string]any
}

// ProcessParameters builds both parameter views for t. Dropped custom
// parameters are reported at debug level.
func ProcessParameters(t Trackable) TrackingParameters {
	name := t.Name()

	eventParams := map[string]any{
		"$is_standard_event": IsStandardEvent(name),
		"$event_name":        name,
	}
	delegateParams := map[string]any{
		"isSuperwall": true,
	}

	for key, value := range sanitize(t.SuperwallParameters(), true, nil) {
		eventParams[ReservedPrefix+key] = value
		delegateParams[key] = value
	}

	custom := sanitize(t.CustomParameters(), false, func(key string, reason DropReason) {
		slog.Debug("Dropping Key", "scope", "events", "key", key, "name", name, "reason", string(reason))
	})
	for key, value := range custom {
		eventParams[key] = value
		delegateParams[key] = value
	}

	return TrackingParameters{
		DelegateParams: delegateParams,
		EventParams:    eventParams,
	}
}

// MergeStrategy picks the value kept for keys present in both maps.
type MergeStrategy int

const (
	// OverwriteValue keeps the value from the merged-in map.
	OverwriteValue MergeStrategy = iota
	// KeepOriginalValue keeps the value already present.
	KeepOriginalValue
)

// Merge returns a new map holding the keys of base and other. Neither input
// is modified.
func Merge(base, other map[string]any, strategy MergeStrategy) map[string]any {
	out := make(map[string]any, len(base)+len(other))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range other {
		if _, exists := out[k]; exists && strategy == KeepOriginalValue {
			continue
		}
		out[k] = v
	}
	return out
}

// CustomEvent is a host-application event with only user-supplied parameters.
type CustomEvent struct {
	EventName string
	Params    map[string]any
}

func (e CustomEvent) Name() string                        { return e.EventName }
func (e CustomEvent) SuperwallParameters() map[string]any { return nil }
func (e CustomEvent) CustomParameters() map[string]any    { return e.Params }
