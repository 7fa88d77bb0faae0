package presentation

import (
	"errors"
	"fmt"

	"github.com/Resinat/Paygate/internal/model"
)

var (
	// ErrNoPresenter means there is neither a presenter nor a window that
	// could anchor one.
	ErrNoPresenter = errors.New("no presenter available")
	// ErrDebuggerLaunched means the paywall debugger owns the screen.
	ErrDebuggerLaunched = errors.New("debugger is launched")
	// ErrPaywallAlreadyPresented means another paywall is showing.
	ErrPaywallAlreadyPresented = errors.New("a paywall is already presented")
	// ErrNoRenderer means Resolve was called on a pipeline without a renderer.
	ErrNoRenderer = errors.New("no renderer configured")
)

// PresentabilityError is a runtime precondition failure found by Check.
type PresentabilityError struct {
	RequestID string
	Err       error
}

func (e *PresentabilityError) Error() string {
	return fmt.Sprintf("request %s not presentable: %v", e.RequestID, e.Err)
}

func (e *PresentabilityError) Unwrap() error {
	return e.Err
}

// Ready is the non-terminal result of a successful check: everything the
// renderer needs to show the paywall.
type Ready struct {
	Request    Request
	Paywall    model.Paywall
	Experiment *model.Experiment
}

// Outcome is either Ready or a terminal State, never both.
type Outcome struct {
	ready *Ready
	state State
}

// ReadyOutcome wraps r.
func ReadyOutcome(r Ready) Outcome {
	return Outcome{ready: &r}
}

// TerminalOutcome wraps s.
func TerminalOutcome(s State) Outcome {
	return Outcome{state: s}
}

// Ready returns the ready value when the outcome is not terminal.
func (o Outcome) Ready() (Ready, bool) {
	if o.ready == nil {
		return Ready{}, false
	}
	return *o.ready, true
}

// Terminal returns the terminal state when there is one.
func (o Outcome) Terminal() (State, bool) {
	if o.ready != nil {
		return State{}, false
	}
	return o.state, true
}

// IsTerminal reports whether the outcome ended the run.
func (o Outcome) IsTerminal() bool {
	return o.ready == nil
}

// Check gates a resolved paywall on runtime preconditions, first match
// wins:
//
//  1. subscribed users are skipped with userIsSubscribed
//  2. without a presenter or anchorable window the result is
//     skipped(error(ErrNoPresenter))
//  3. otherwise the paywall is ready to present
func Check(trigger model.TriggerResult, paywall model.Paywall, req Request) Outcome {
	if req.Injections().IsUserSubscribed {
		return TerminalOutcome(Skipped(UserIsSubscribedReason()))
	}
	if !req.Surface().Available() {
		return TerminalOutcome(Skipped(ErrorReason(&PresentabilityError{
			RequestID: req.ID(),
			Err:       ErrNoPresenter,
		})))
	}
	exp := paywall.Experiment
	if trigger.Kind == model.TriggerPaywall {
		e := trigger.Experiment
		exp = &e
	}
	return ReadyOutcome(Ready{Request: req, Paywall: paywall, Experiment: exp})
}
