// Package presentation turns a triggering event and its trigger result into
// exactly one terminal presentation state.
package presentation

import (
	"maps"

	"github.com/google/uuid"

	"github.com/Resinat/Paygate/internal/model"
)

// RequestType tells where a presentation request originated.
type RequestType string

const (
	// TypeExplicitTrigger is a host calling register/trigger directly.
	TypeExplicitTrigger RequestType = "explicit_trigger"
	// TypeImplicitTrigger is an internally tracked event (app_open, ...).
	TypeImplicitTrigger RequestType = "implicit_trigger"
	// TypeFromIdentifier presents a paywall by id, bypassing rules.
	TypeFromIdentifier RequestType = "from_identifier"
	// TypeDebugger is a request issued by the paywall debugger.
	TypeDebugger RequestType = "debugger"
)

// IsValid reports whether t is a known request type.
func (t RequestType) IsValid() bool {
	switch t {
	case TypeExplicitTrigger, TypeImplicitTrigger, TypeFromIdentifier, TypeDebugger:
		return true
	}
	return false
}

// Injections are runtime facts sampled when the request was created.
type Injections struct {
	IsUserSubscribed   bool `json:"is_user_subscribed"`
	IsDebuggerLaunched bool `json:"is_debugger_launched"`
	IsPaywallPresented bool `json:"is_paywall_presented"`
}

// Window is a host window a presenter could be anchored to.
type Window struct {
	ID        string `json:"id"`
	CanAnchor bool   `json:"can_anchor"`
}

// Surface describes what the host can present on. Presenter is an opaque
// handle to a ready presenter; empty means none.
type Surface struct {
	Presenter string  `json:"presenter,omitempty"`
	Window    *Window `json:"window,omitempty"`
}

// Available reports whether a paywall can be shown: either a presenter
// exists or a fallback window can anchor one.
func (s Surface) Available() bool {
	if s.Presenter != "" {
		return true
	}
	return s.Window != nil && s.Window.CanAnchor
}

// Request is an immutable snapshot of one presentation attempt. The With*
// methods return modified copies and never touch the receiver.
type Request struct {
	id         string
	typ        RequestType
	event      *model.EventData
	paywallID  string
	injections Injections
	surface    Surface
}

// NewRequest creates a request for event with a fresh id.
func NewRequest(typ RequestType, event *model.EventData) Request {
	if typ == "" {
		typ = TypeExplicitTrigger
	}
	return Request{
		id:    uuid.NewString(),
		typ:   typ,
		event: cloneEvent(event),
	}
}

func (r Request) ID() string             { return r.id }
func (r Request) Type() RequestType      { return r.typ }
func (r Request) Injections() Injections { return r.injections }

// PaywallID is an explicit paywall override. Empty means the paywall is
// taken from the trigger's experiment.
func (r Request) PaywallID() string { return r.paywallID }

// Event returns a copy of the triggering event, or nil.
func (r Request) Event() *model.EventData { return cloneEvent(r.event) }

// Surface returns a copy of the presentation surface.
func (r Request) Surface() Surface { return cloneSurface(r.surface) }

// WithInjections returns a copy with injections replaced.
func (r Request) WithInjections(in Injections) Request {
	r.injections = in
	return r
}

// WithUserSubscribed returns a copy with IsUserSubscribed set.
func (r Request) WithUserSubscribed(v bool) Request {
	r.injections.IsUserSubscribed = v
	return r
}

// WithDebuggerLaunched returns a copy with IsDebuggerLaunched set.
func (r Request) WithDebuggerLaunched(v bool) Request {
	r.injections.IsDebuggerLaunched = v
	return r
}

// WithPaywallPresented returns a copy with IsPaywallPresented set.
func (r Request) WithPaywallPresented(v bool) Request {
	r.injections.IsPaywallPresented = v
	return r
}

// WithSurface returns a copy with the presentation surface replaced.
func (r Request) WithSurface(s Surface) Request {
	r.surface = cloneSurface(s)
	return r
}

// WithPresenter returns a copy with the presenter handle set.
func (r Request) WithPresenter(presenter string) Request {
	s := r.surface
	s.Presenter = presenter
	return r.WithSurface(s)
}

// WithWindow returns a copy with the fallback window set. nil clears it.
func (r Request) WithWindow(w *Window) Request {
	s := r.surface
	s.Window = w
	return r.WithSurface(s)
}

// WithPaywallID returns a copy with an explicit paywall id.
func (r Request) WithPaywallID(id string) Request {
	r.paywallID = id
	return r
}

// cloneEvent shallow-copies the event and its parameter maps so later
// changes by the caller cannot leak into the request.
func cloneEvent(e *model.EventData) *model.EventData {
	if e == nil {
		return nil
	}
	c := *e
	c.SuperwallParameters = maps.Clone(e.SuperwallParameters)
	c.CustomParameters = maps.Clone(e.CustomParameters)
	return &c
}

func cloneSurface(s Surface) Surface {
	if s.Window != nil {
		w := *s.Window
		s.Window = &w
	}
	return s
}
