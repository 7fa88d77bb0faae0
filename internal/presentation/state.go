package presentation

import (
	"encoding/json"
	"fmt"

	"github.com/Resinat/Paygate/internal/model"
)

// Kind is the terminal variant of a State.
type Kind int

const (
	KindPresented Kind = iota + 1
	KindDismissed
	KindSkipped
	KindPresentationError
)

func (k Kind) String() string {
	switch k {
	case KindPresented:
		return "presented"
	case KindDismissed:
		return "dismissed"
	case KindSkipped:
		return "skipped"
	case KindPresentationError:
		return "presentation_error"
	default:
		return "unknown"
	}
}

// SkipKind classifies why a paywall was not shown.
type SkipKind int

const (
	SkipHoldout SkipKind = iota + 1
	SkipNoRuleMatch
	SkipEventNotFound
	SkipUserIsSubscribed
	SkipError
)

func (k SkipKind) String() string {
	switch k {
	case SkipHoldout:
		return "holdout"
	case SkipNoRuleMatch:
		return "no_rule_match"
	case SkipEventNotFound:
		return "event_not_found"
	case SkipUserIsSubscribed:
		return "user_is_subscribed"
	case SkipError:
		return "error"
	default:
		return "unknown"
	}
}

// SkipReason is the payload of a skipped state. Experiment is set for
// SkipHoldout, Err for SkipError.
type SkipReason struct {
	Kind       SkipKind
	Experiment *model.Experiment
	Err        error
}

func HoldoutReason(exp model.Experiment) SkipReason {
	return SkipReason{Kind: SkipHoldout, Experiment: &exp}
}

func NoRuleMatchReason() SkipReason      { return SkipReason{Kind: SkipNoRuleMatch} }
func EventNotFoundReason() SkipReason    { return SkipReason{Kind: SkipEventNotFound} }
func UserIsSubscribedReason() SkipReason { return SkipReason{Kind: SkipUserIsSubscribed} }

func ErrorReason(err error) SkipReason {
	return SkipReason{Kind: SkipError, Err: err}
}

// DismissKind is how a shown paywall went away.
type DismissKind string

const (
	DismissPurchased DismissKind = "purchased"
	DismissRestored  DismissKind = "restored"
	DismissDeclined  DismissKind = "declined"
	DismissClosed    DismissKind = "closed"
)

// DismissResult is reported by the renderer when a paywall closes.
type DismissResult struct {
	Kind      DismissKind `json:"kind"`
	ProductID string      `json:"product_id,omitempty"`
}

// State is a terminal presentation outcome. Build it with Presented,
// Dismissed, Skipped or Failed; the zero State is invalid.
type State struct {
	Kind    Kind
	Paywall *model.Paywall
	Dismiss DismissResult
	Skip    SkipReason
	Err     error
}

func Presented(p model.Paywall) State {
	return State{Kind: KindPresented, Paywall: &p}
}

func Dismissed(p model.Paywall, result DismissResult) State {
	return State{Kind: KindDismissed, Paywall: &p, Dismiss: result}
}

func Skipped(reason SkipReason) State {
	return State{Kind: KindSkipped, Skip: reason}
}

// Failed builds a presentationError state.
func Failed(err error) State {
	return State{Kind: KindPresentationError, Err: err}
}

// IsValid reports whether s is one of the four terminal variants.
func (s State) IsValid() bool {
	return s.Kind >= KindPresented && s.Kind <= KindPresentationError
}

// Label is a flat name for the state: the kind, or "skipped:<reason>".
func (s State) Label() string {
	if s.Kind == KindSkipped {
		return "skipped:" + s.Skip.Kind.String()
	}
	return s.Kind.String()
}

func (s State) String() string {
	switch s.Kind {
	case KindSkipped:
		if s.Skip.Kind == SkipError && s.Skip.Err != nil {
			return fmt.Sprintf("skipped(error(%v))", s.Skip.Err)
		}
		return fmt.Sprintf("skipped(%s)", s.Skip.Kind)
	case KindPresentationError:
		return fmt.Sprintf("presentation_error(%v)", s.Err)
	default:
		return s.Kind.String()
	}
}

type stateJSON struct {
	State      string            `json:"state"`
	Reason     string            `json:"reason,omitempty"`
	Experiment *model.Experiment `json:"experiment,omitempty"`
	Error      string            `json:"error,omitempty"`
	Paywall    *model.Paywall    `json:"paywall,omitempty"`
	Dismiss    *DismissResult    `json:"dismiss,omitempty"`
}

// MarshalJSON renders the state as a flat object, e.g.
// {"state":"skipped","reason":"holdout","experiment":{...}}.
func (s State) MarshalJSON() ([]byte, error) {
	out := stateJSON{State: s.Kind.String(), Paywall: s.Paywall}
	switch s.Kind {
	case KindSkipped:
		out.Reason = s.Skip.Kind.String()
		out.Experiment = s.Skip.Experiment
		if s.Skip.Err != nil {
			out.Error = s.Skip.Err.Error()
		}
	case KindPresentationError:
		if s.Err != nil {
			out.Error = s.Err.Error()
		}
	case KindDismissed:
		d := s.Dismiss
		out.Dismiss = &d
	}
	return json.Marshal(out)
}
