package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Resinat/Paygate/internal/model"
	"github.com/Resinat/Paygate/internal/presentation"
)

// triggerDTO is the wire form of a model.TriggerResult.
type triggerDTO struct {
	Kind       string            `json:"kind"`
	Experiment *model.Experiment `json:"experiment,omitempty"`
	Error      string            `json:"error,omitempty"`
}

type decideRequest struct {
	Type       presentation.RequestType `json:"type"`
	Event      *model.EventData         `json:"event"`
	PaywallID  string                   `json:"paywall_id"`
	Injections presentation.Injections  `json:"injections"`
	Surface    presentation.Surface     `json:"surface"`
	Trigger    triggerDTO               `json:"trigger"`
}

type decideResponse struct {
	RequestID string `json:"request_id"`
	// Outcome is "ready" or the label of the terminal state.
	Outcome    string              `json:"outcome"`
	Paywall    *model.Paywall      `json:"paywall,omitempty"`
	Experiment *model.Experiment   `json:"experiment,omitempty"`
	State      *presentation.State `json:"state,omitempty"`
}

func (t triggerDTO) toResult() (model.TriggerResult, error) {
	kind, ok := model.ParseTriggerResultKind(strings.TrimSpace(t.Kind))
	if !ok {
		return model.TriggerResult{}, fmt.Errorf("trigger.kind: unknown kind %q", t.Kind)
	}
	var exp model.Experiment
	if t.Experiment != nil {
		exp = *t.Experiment
	}
	switch kind {
	case model.TriggerPaywall:
		return model.PaywallResult(exp), nil
	case model.TriggerHoldout:
		if t.Experiment == nil {
			return model.TriggerResult{}, errors.New("trigger.experiment: required for holdout")
		}
		return model.HoldoutResult(exp), nil
	case model.TriggerNoRuleMatch:
		return model.NoRuleMatchResult(), nil
	case model.TriggerEventNotFound:
		return model.EventNotFoundResult(), nil
	default:
		msg := strings.TrimSpace(t.Error)
		if msg == "" {
			msg = "rule evaluation failed"
		}
		return model.ErrorResult(errors.New(msg)), nil
	}
}

func (d decideRequest) toRequest(now time.Time) (presentation.Request, error) {
	if d.Type != "" && !d.Type.IsValid() {
		return presentation.Request{}, fmt.Errorf("type: unknown request type %q", d.Type)
	}
	event := d.Event
	if event != nil {
		if strings.TrimSpace(event.RawName) == "" {
			return presentation.Request{}, errors.New("event.name: is required")
		}
		e := *event
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		if e.CreatedAt.IsZero() {
			e.CreatedAt = now
		}
		event = &e
	}
	req := presentation.NewRequest(d.Type, event).
		WithInjections(d.Injections).
		WithSurface(d.Surface).
		WithPaywallID(strings.TrimSpace(d.PaywallID))
	return req, nil
}

// HandleDecide handles POST /api/v1/presentations/decide. The response is
// 200 for every decision, including skips and presentation errors; only
// malformed input is rejected.
func HandleDecide(decider Decider) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body decideRequest
		if !decodeBodyOrWriteInvalid(w, r, &body) {
			return
		}
		trigger, err := body.Trigger.toResult()
		if err != nil {
			writeInvalidArgument(w, err.Error())
			return
		}
		req, err := body.toRequest(time.Now())
		if err != nil {
			writeInvalidArgument(w, err.Error())
			return
		}

		outcome := decider.Decide(r.Context(), req, trigger)
		resp := decideResponse{RequestID: req.ID()}
		if ready, ok := outcome.Ready(); ok {
			resp.Outcome = presentation.LabelReady
			resp.Paywall = &ready.Paywall
			resp.Experiment = ready.Experiment
		} else {
			state, _ := outcome.Terminal()
			resp.Outcome = state.Label()
			resp.State = &state
		}
		WriteJSON(w, http.StatusOK, resp)
	})
}
