// Package tracking turns tracked events into sanitized analytics parameters
// and forwards them, in order, to the configured analytics sinks and the
// session recorder.
package tracking

import (
	"math"
	"net/url"
	"reflect"
	"strings"
	"time"
)

// ReservedPrefix marks keys that belong to the internal analytics namespace.
// User-supplied parameters may never write into it.
const ReservedPrefix = "$"

// isoLayout is ISO-8601 with millisecond precision.
const isoLayout = "2006-01-02T15:04:05.000Z07:00"

// DropReason explains why a parameter was not forwarded.
type DropReason string

const (
	DropReservedKey    DropReason = "$ signs not allowed"
	DropUnserializable DropReason = "failed to serialize value"
)

// DropFunc observes parameters removed during sanitization.
type DropFunc func(key string, reason DropReason)

// Sanitize converts arbitrary parameters into a JSON-safe mapping.
// Scalars pass through unchanged, dates become ISO-8601 strings, URLs become
// their absolute string form, and collections or other composites are dropped.
// With isReservedAllowed false, keys starting with ReservedPrefix are dropped.
func Sanitize(params map[string]any, isReservedAllowed bool) map[string]any {
	return sanitize(params, isReservedAllowed, nil)
}

// SanitizeWithDrops is Sanitize with onDrop called for every removed key.
func SanitizeWithDrops(params map[string]any, isReservedAllowed bool, onDrop DropFunc) map[string]any {
	return sanitize(params, isReservedAllowed, onDrop)
}

func sanitize(params map[string]any, isReservedAllowed bool, onDrop DropFunc) map[string]any {
	out := make(map[string]any, len(params))
	for key, value := range params {
		if !isReservedAllowed && strings.HasPrefix(key, ReservedPrefix) {
			if onDrop != nil {
				onDrop(key, DropReservedKey)
			}
			continue
		}
		cleaned, ok := CleanValue(value)
		if !ok {
			if onDrop != nil {
				onDrop(key, DropUnserializable)
			}
			continue
		}
		out[key] = cleaned
	}
	return out
}

// CleanValue returns the JSON-safe form of v, or false when v cannot be
// forwarded.
func CleanValue(v any) (any, bool) {
	switch x := v.(type) {
	case nil:
		return nil, false
	case string, bool:
		return x, true
	case float64:
		return x, isFinite(x)
	case float32:
		return x, isFinite(float64(x))
	case time.Time:
		return x.UTC().Format(isoLayout), true
	case *time.Time:
		if x == nil {
			return nil, false
		}
		return x.UTC().Format(isoLayout), true
	case url.URL:
		return x.String(), true
	case *url.URL:
		if x == nil {
			return nil, false
		}
		return x.String(), true
	}

	// Named scalar types (type Plan string, type Count int, ...) are encodable as-is.
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String, reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return v, true
	case reflect.Float32, reflect.Float64:
		return v, isFinite(rv.Float())
	default:
		return nil, false
	}
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
