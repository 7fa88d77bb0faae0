package model

import "fmt"

// TriggerResultKind enumerates the outcomes of rule evaluation for an event.
type TriggerResultKind int

const (
	TriggerPaywall TriggerResultKind = iota + 1
	TriggerHoldout
	TriggerNoRuleMatch
	TriggerEventNotFound
	TriggerError
)

var triggerResultKindNames = map[TriggerResultKind]string{
	TriggerPaywall:       "paywall",
	TriggerHoldout:       "holdout",
	TriggerNoRuleMatch:   "no_rule_match",
	TriggerEventNotFound: "event_not_found",
	TriggerError:         "error",
}

func (k TriggerResultKind) String() string {
	if name, ok := triggerResultKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("TriggerResultKind(%d)", int(k))
}

// ParseTriggerResultKind maps a wire name back to its kind.
func ParseTriggerResultKind(s string) (TriggerResultKind, bool) {
	for k, name := range triggerResultKindNames {
		if name == s {
			return k, true
		}
	}
	return 0, false
}

// TriggerResult is the externally computed rule evaluation outcome for a
// triggering event. Experiment is set for TriggerPaywall and TriggerHoldout;
// Err is set for TriggerError. Values are immutable once constructed.
type TriggerResult struct {
	Kind       TriggerResultKind
	Experiment Experiment
	Err        error
}

// PaywallResult is a match that assigned the user to a paywall variant.
func PaywallResult(exp Experiment) TriggerResult {
	return TriggerResult{Kind: TriggerPaywall, Experiment: exp}
}

// HoldoutResult is a match that assigned the user to a holdout group.
func HoldoutResult(exp Experiment) TriggerResult {
	return TriggerResult{Kind: TriggerHoldout, Experiment: exp}
}

// NoRuleMatchResult means the event exists but no rule matched.
func NoRuleMatchResult() TriggerResult {
	return TriggerResult{Kind: TriggerNoRuleMatch}
}

// EventNotFoundResult means the event is not part of any campaign.
func EventNotFoundResult() TriggerResult {
	return TriggerResult{Kind: TriggerEventNotFound}
}

// ErrorResult means rule evaluation itself failed.
func ErrorResult(err error) TriggerResult {
	return TriggerResult{Kind: TriggerError, Err: err}
}
