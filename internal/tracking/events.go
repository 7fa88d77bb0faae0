package tracking

import (
	"github.com/Resinat/Paygate/internal/model"
)

// Internal event names. Events tracked under one of these names are
// reported with $is_standard_event = true.
const (
	EventAppOpen                 = "app_open"
	EventAppLaunch               = "app_launch"
	EventAppClose                = "app_close"
	EventSessionStart            = "session_start"
	EventFirstSeen               = "first_seen"
	EventTriggerFire             = "trigger_fire"
	EventPaywallOpen             = "paywall_open"
	EventPaywallClose            = "paywall_close"
	EventPaywallDecline          = "paywall_decline"
	EventTransactionStart        = "transaction_start"
	EventTransactionComplete     = "transaction_complete"
	EventTransactionFail         = "transaction_fail"
	EventTransactionAbandon      = "transaction_abandon"
	EventSubscriptionStart       = "subscription_start"
	EventFreeTrialStart          = "freeTrial_start"
	EventPaywallResponseStart    = "paywallResponseLoad_start"
	EventPaywallResponseNotFound = "paywallResponseLoad_notFound"
	EventPaywallResponseFail     = "paywallResponseLoad_fail"
	EventPaywallResponseComplete = "paywallResponseLoad_complete"
)

var standardEvents = map[string]struct{}{
	EventAppOpen:                 {},
	EventAppLaunch:               {},
	EventAppClose:                {},
	EventSessionStart:            {},
	EventFirstSeen:               {},
	EventTriggerFire:             {},
	EventPaywallOpen:             {},
	EventPaywallClose:            {},
	EventPaywallDecline:          {},
	EventTransactionStart:        {},
	EventTransactionComplete:     {},
	EventTransactionFail:         {},
	EventTransactionAbandon:      {},
	EventSubscriptionStart:       {},
	EventFreeTrialStart:          {},
	EventPaywallResponseStart:    {},
	EventPaywallResponseNotFound: {},
	EventPaywallResponseFail:     {},
	EventPaywallResponseComplete: {},
}

// IsStandardEvent reports whether name is an internally generated event.
func IsStandardEvent(name string) bool {
	_, ok := standardEvents[name]
	return ok
}

// PaywallLoadState is the phase reported by a PaywallLoad event.
type PaywallLoadState int

const (
	PaywallLoadStart PaywallLoadState = iota
	PaywallLoadNotFound
	PaywallLoadFail
	PaywallLoadComplete
)

// PaywallLoad reports progress of a paywall response load. Paywall is only
// set for PaywallLoadComplete; PaywallID is used by the other states.
type PaywallLoad struct {
	State     PaywallLoadState
	PaywallID string
	Paywall   *model.Paywall
	EventData *model.EventData
}

func (e PaywallLoad) Name() string {
	switch e.State {
	case PaywallLoadNotFound:
		return EventPaywallResponseNotFound
	case PaywallLoadFail:
		return EventPaywallResponseFail
	case PaywallLoadComplete:
		return EventPaywallResponseComplete
	default:
		return EventPaywallResponseStart
	}
}

func (e PaywallLoad) SuperwallParameters() map[string]any {
	params := map[string]any{
		"is_triggered_from_event": e.EventData != nil,
	}
	if e.EventData != nil {
		params["trigger_event_name"] = e.EventData.RawName
	}
	if e.Paywall != nil {
		return Merge(params, PaywallInfoParameters(*e.Paywall), OverwriteValue)
	}
	if e.PaywallID != "" {
		params["paywall_id"] = e.PaywallID
	}
	return params
}

func (e PaywallLoad) CustomParameters() map[string]any {
	if e.EventData == nil {
		return nil
	}
	return e.EventData.CustomParameters
}

// PaywallInfoParameters describes a resolved paywall for analytics.
func PaywallInfoParameters(p model.Paywall) map[string]any {
	params := map[string]any{
		"paywall_id":         p.ID,
		"paywall_identifier": p.Identifier,
		"paywall_name":       p.Name,
		"paywall_url":        p.URL,
	}
	if p.Experiment != nil {
		params["experiment_id"] = p.Experiment.ID
		params["variant_id"] = p.Experiment.Variant.ID
	}
	info := p.ResponseLoadingInfo
	if !info.StartAt.IsZero() {
		params["response_load_start_time"] = info.StartAt
	}
	if !info.EndAt.IsZero() {
		params["response_load_complete_time"] = info.EndAt
		params["response_load_duration"] = info.Duration().Seconds()
	}
	return params
}
