package presentation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Resinat/Paygate/internal/model"
	"github.com/Resinat/Paygate/internal/paywall"
	"github.com/Resinat/Paygate/internal/tracking"
)

const tracerName = "github.com/Resinat/Paygate/internal/presentation"

// ErrNoPaywallID means the trigger matched but names no paywall.
var ErrNoPaywallID = errors.New("trigger result carries no paywall id")

// LabelReady is the observer label of a non-terminal Decide outcome.
const LabelReady = "ready"

// PaywallResolver supplies paywall definitions. *paywall.Loader
// implements it.
type PaywallResolver interface {
	Resolve(ctx context.Context, paywallID string, event *model.EventData, experiment *model.Experiment) (model.Paywall, error)
}

// Renderer shows a ready paywall and reports how it ended. It is the
// external rendering collaborator; an error becomes a presentationError.
type Renderer interface {
	Present(ctx context.Context, ready Ready) (State, error)
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(ctx context.Context, ready Ready) (State, error)

func (f RendererFunc) Present(ctx context.Context, ready Ready) (State, error) { return f(ctx, ready) }

// Observer is notified once per Decide or Resolve call with the outcome
// label (a State label or LabelReady).
type Observer interface {
	ObserveOutcome(label string, elapsed time.Duration)
}

// PipelineConfig configures a Pipeline.
type PipelineConfig struct {
	Resolver PaywallResolver
	// Renderer is only needed by Resolve.
	Renderer Renderer
	Delegate tracking.Delegate
	Observer Observer
	Tracer   trace.Tracer
}

// Pipeline is the presentation context object. It holds every
// collaborator a run needs and is safe for concurrent use.
type Pipeline struct {
	resolver PaywallResolver
	renderer Renderer
	delegate tracking.Delegate
	observer Observer
	tracer   trace.Tracer
}

// NewPipeline creates a Pipeline.
func NewPipeline(cfg PipelineConfig) *Pipeline {
	if cfg.Resolver == nil {
		panic("presentation: NewPipeline requires non-nil Resolver")
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}
	return &Pipeline{
		resolver: cfg.Resolver,
		renderer: cfg.Renderer,
		delegate: cfg.Delegate,
		observer: cfg.Observer,
		tracer:   tracer,
	}
}

// Decide runs every stage up to and including the presentability check.
// The result is Ready or a terminal State; Decide never returns an error.
func (p *Pipeline) Decide(ctx context.Context, req Request, trigger model.TriggerResult) Outcome {
	started := time.Now()
	ctx, span := p.tracer.Start(ctx, "presentation.Decide", trace.WithAttributes(
		attribute.String("request.id", req.ID()),
		attribute.String("request.type", string(req.Type())),
		attribute.String("trigger.kind", trigger.Kind.String()),
	))
	defer span.End()

	out := p.decide(ctx, req, trigger)
	label := outcomeLabel(out)
	span.SetAttributes(attribute.String("presentation.outcome", label))
	p.observe(label, started)
	return out
}

// Resolve runs Decide and, when the paywall is ready, hands it to the
// renderer. Exactly one terminal State is returned.
func (p *Pipeline) Resolve(ctx context.Context, req Request, trigger model.TriggerResult) State {
	started := time.Now()
	ctx, span := p.tracer.Start(ctx, "presentation.Resolve", trace.WithAttributes(
		attribute.String("request.id", req.ID()),
	))
	defer span.End()

	state := p.resolve(ctx, req, trigger)
	span.SetAttributes(attribute.String("presentation.outcome", state.Label()))
	p.observe(state.Label(), started)
	return state
}

func (p *Pipeline) resolve(ctx context.Context, req Request, trigger model.TriggerResult) State {
	out := p.decide(ctx, req, trigger)
	ready, ok := out.Ready()
	if !ok {
		state, _ := out.Terminal()
		return state
	}
	if p.renderer == nil {
		return p.fail(req, ErrNoRenderer)
	}

	p.delegate.NotifyWillPresent(ready.Paywall)
	state, err := p.renderer.Present(ctx, ready)
	if err != nil {
		return p.fail(req, fmt.Errorf("render paywall %q: %w", ready.Paywall.ID, err))
	}
	if !state.IsValid() {
		return p.fail(req, fmt.Errorf("renderer returned invalid state for paywall %q", ready.Paywall.ID))
	}
	switch state.Kind {
	case KindPresented:
		p.delegate.NotifyDidPresent(ready.Paywall)
	case KindDismissed:
		// The renderer reports the final state, so the whole
		// present/dismiss sequence is replayed in order.
		p.delegate.NotifyDidPresent(ready.Paywall)
		p.delegate.NotifyWillDismiss(ready.Paywall)
		p.delegate.NotifyDidDismiss(ready.Paywall)
	}
	return state
}

// decide is the ordered stage list. Each stage either hands a richer value
// to the next or returns a terminal outcome.
func (p *Pipeline) decide(ctx context.Context, req Request, trigger model.TriggerResult) Outcome {
	inj := req.Injections()
	if inj.IsDebuggerLaunched && req.Type() != TypeDebugger {
		return TerminalOutcome(p.fail(req, ErrDebuggerLaunched))
	}
	if inj.IsPaywallPresented {
		return TerminalOutcome(p.fail(req, ErrPaywallAlreadyPresented))
	}

	if state, done := dispatchTrigger(trigger); done {
		slog.Debug("trigger short-circuited presentation",
			"request_id", req.ID(), "trigger", trigger.Kind.String(), "state", state.String())
		if state.Kind == KindPresentationError {
			log.Printf("[presentation] request %s: trigger evaluation failed: %v", req.ID(), state.Err)
		}
		return TerminalOutcome(state)
	}

	exp := trigger.Experiment
	paywallID := req.PaywallID()
	if paywallID == "" {
		paywallID = exp.Variant.PaywallID
	}
	if paywallID == "" {
		return TerminalOutcome(p.fail(req, fmt.Errorf("experiment %q: %w", exp.ID, ErrNoPaywallID)))
	}

	pw, err := p.resolver.Resolve(ctx, paywallID, req.Event(), &exp)
	if err != nil {
		state := loadFailureState(err)
		if state.Kind == KindPresentationError {
			log.Printf("[presentation] request %s: paywall %q failed to load: %v", req.ID(), paywallID, err)
		}
		return TerminalOutcome(state)
	}

	out := Check(trigger, pw, req)
	if state, terminal := out.Terminal(); terminal {
		slog.Debug("paywall not presentable", "request_id", req.ID(), "state", state.String())
	}
	return out
}

// dispatchTrigger maps every trigger result except paywall onto its
// terminal state.
func dispatchTrigger(trigger model.TriggerResult) (State, bool) {
	switch trigger.Kind {
	case model.TriggerPaywall:
		return State{}, false
	case model.TriggerHoldout:
		return Skipped(HoldoutReason(trigger.Experiment)), true
	case model.TriggerNoRuleMatch:
		return Skipped(NoRuleMatchReason()), true
	case model.TriggerEventNotFound:
		return Skipped(EventNotFoundReason()), true
	case model.TriggerError:
		err := trigger.Err
		if err == nil {
			err = errors.New("trigger evaluation failed")
		}
		return Failed(err), true
	default:
		return Failed(fmt.Errorf("unknown trigger result kind %d", int(trigger.Kind))), true
	}
}

// loadFailureState maps a resolver error. Not-found and network failures
// are skips; malformed definitions and abandoned runs are errors.
func loadFailureState(err error) State {
	var loadErr *paywall.LoadError
	if errors.As(err, &loadErr) && loadErr.Kind != paywall.LoadDecoding {
		return Skipped(ErrorReason(err))
	}
	return Failed(err)
}

func (p *Pipeline) fail(req Request, err error) State {
	log.Printf("[presentation] request %s: %v", req.ID(), err)
	return Failed(err)
}

func (p *Pipeline) observe(label string, started time.Time) {
	if p.observer != nil {
		p.observer.ObserveOutcome(label, time.Since(started))
	}
}

func outcomeLabel(o Outcome) string {
	if state, ok := o.Terminal(); ok {
		return state.Label()
	}
	return LabelReady
}
