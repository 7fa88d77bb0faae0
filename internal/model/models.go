// Package model defines the domain types shared by the paywall loader,
// the tracking layer and the presentation pipeline.
package model

import "time"

// VariantType distinguishes treatment variants from holdout (control) variants.
type VariantType string

const (
	VariantTreatment VariantType = "treatment"
	VariantHoldout   VariantType = "holdout"
)

// IsValid reports whether t is a known variant type.
func (t VariantType) IsValid() bool {
	return t == VariantTreatment || t == VariantHoldout
}

// Variant is the arm of an experiment a user was assigned to.
type Variant struct {
	ID        string      `json:"id" yaml:"id"`
	Type      VariantType `json:"type" yaml:"type"`
	PaywallID string      `json:"paywall_id" yaml:"paywall_id"`
}

// Experiment identifies which paywall variant a user was assigned.
type Experiment struct {
	ID      string  `json:"id" yaml:"id"`
	GroupID string  `json:"group_id" yaml:"group_id"`
	Variant Variant `json:"variant" yaml:"variant"`
}

// EventData is the triggering event. It is created at trigger time and
// treated as read-only afterward.
type EventData struct {
	ID                  string         `json:"id"`
	RawName             string         `json:"name"`
	SuperwallParameters map[string]any `json:"superwall_parameters,omitempty"`
	CustomParameters    map[string]any `json:"custom_parameters,omitempty"`
	CreatedAt           time.Time      `json:"created_at"`
}

// ResponseLoadingInfo brackets the time spent resolving a paywall definition.
type ResponseLoadingInfo struct {
	StartAt time.Time `json:"start_at"`
	EndAt   time.Time `json:"end_at"`
}

// Duration returns EndAt - StartAt, or 0 when either side is unset.
func (i ResponseLoadingInfo) Duration() time.Duration {
	if i.StartAt.IsZero() || i.EndAt.IsZero() {
		return 0
	}
	return i.EndAt.Sub(i.StartAt)
}

// Paywall is a paywall definition as served by the paywall API or the
// static configuration. Experiment and ResponseLoadingInfo are stamped once
// by the loader; everything else is immutable after decoding.
type Paywall struct {
	ID           string   `json:"id" yaml:"id"`
	Identifier   string   `json:"identifier" yaml:"identifier"`
	Name         string   `json:"name" yaml:"name"`
	URL          string   `json:"url" yaml:"url"`
	ProductIDs   []string `json:"product_ids,omitempty" yaml:"product_ids"`
	Presentation string   `json:"presentation_style,omitempty" yaml:"presentation_style"`

	Experiment          *Experiment         `json:"experiment,omitempty" yaml:"-"`
	ResponseLoadingInfo ResponseLoadingInfo `json:"response_loading_info" yaml:"-"`
}

// LoadState is a paywall response load transition recorded by the session recorder.
type LoadState string

const (
	LoadStart LoadState = "start"
	LoadEnd   LoadState = "end"
	LoadFail  LoadState = "fail"
)
