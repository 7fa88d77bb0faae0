package tracking

import "github.com/Resinat/Paygate/internal/model"

// DelegateMethod names an optional host delegate callback.
type DelegateMethod string

const (
	MethodDidTrackEvent      DelegateMethod = "didTrackEvent"
	MethodWillPresentPaywall DelegateMethod = "willPresentPaywall"
	MethodDidPresentPaywall  DelegateMethod = "didPresentPaywall"
	MethodWillDismissPaywall DelegateMethod = "willDismissPaywall"
	MethodDidDismissPaywall  DelegateMethod = "didDismissPaywall"
	MethodHandleLog          DelegateMethod = "handleLog"
)

// EventInfo is what a host delegate receives for every tracked event.
type EventInfo struct {
	Name   string
	Params map[string]any
}

// Delegate is the set of callbacks a host application registered. A nil
// field means the host did not implement that callback.
type Delegate struct {
	DidTrackEvent      func(info EventInfo)
	WillPresentPaywall func(paywall model.Paywall)
	DidPresentPaywall  func(paywall model.Paywall)
	WillDismissPaywall func(paywall model.Paywall)
	DidDismissPaywall  func(paywall model.Paywall)
	HandleLog          func(level, scope, message string, info map[string]any, err error)
}

// Implements reports whether the host registered a handler for m.
func (d Delegate) Implements(m DelegateMethod) bool {
	switch m {
	case MethodDidTrackEvent:
		return d.DidTrackEvent != nil
	case MethodWillPresentPaywall:
		return d.WillPresentPaywall != nil
	case MethodDidPresentPaywall:
		return d.DidPresentPaywall != nil
	case MethodWillDismissPaywall:
		return d.WillDismissPaywall != nil
	case MethodDidDismissPaywall:
		return d.DidDismissPaywall != nil
	case MethodHandleLog:
		return d.HandleLog != nil
	default:
		return false
	}
}

// NotifyWillPresent calls WillPresentPaywall when registered.
func (d Delegate) NotifyWillPresent(p model.Paywall) {
	if d.WillPresentPaywall != nil {
		d.WillPresentPaywall(p)
	}
}

// NotifyDidPresent calls DidPresentPaywall when registered.
func (d Delegate) NotifyDidPresent(p model.Paywall) {
	if d.DidPresentPaywall != nil {
		d.DidPresentPaywall(p)
	}
}

// NotifyWillDismiss calls WillDismissPaywall when registered.
func (d Delegate) NotifyWillDismiss(p model.Paywall) {
	if d.WillDismissPaywall != nil {
		d.WillDismissPaywall(p)
	}
}

// NotifyDidDismiss calls DidDismissPaywall when registered.
func (d Delegate) NotifyDidDismiss(p model.Paywall) {
	if d.DidDismissPaywall != nil {
		d.DidDismissPaywall(p)
	}
}

func (d Delegate) didTrackEvent(info EventInfo) {
	if d.DidTrackEvent != nil {
		d.DidTrackEvent(info)
	}
}

func (d Delegate) handleLog(level, scope, message string, info map[string]any, err error) {
	if d.HandleLog != nil {
		d.HandleLog(level, scope, message, info, err)
	}
}
