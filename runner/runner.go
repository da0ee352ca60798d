package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/statemesh/core"
	"github.com/hupe1980/statemesh/internal/keylock"
	"github.com/hupe1980/statemesh/internal/util"
	"github.com/hupe1980/statemesh/logging"
)

// Phase names a step of the turn state machine.
type Phase string

// Turn phases. PhaseError absorbs failures from any step.
const (
	PhaseStart    Phase = "start"
	PhaseRender   Phase = "render"
	PhaseDispatch Phase = "dispatch"
	PhaseCommit   Phase = "commit"
	PhaseDone     Phase = "done"
	PhaseError    Phase = "error"
)

// TurnError reports the phase in which a turn failed. Nothing of the turn
// was persisted.
type TurnError struct {
	Phase  Phase
	Key    core.SessionKey
	TurnID string
	Err    error
}

func (e *TurnError) Error() string {
	return fmt.Sprintf("turn %s on %s failed in %s: %v", e.TurnID, e.Key, e.Phase, e.Err)
}

func (e *TurnError) Unwrap() error { return e.Err }

// TurnResult describes a processed turn.
type TurnResult struct {
	Key    core.SessionKey
	TurnID string
	// Phase is PhaseDone on success, PhaseError otherwise.
	Phase Phase
	// Events are the events committed for this turn (user message first).
	Events []core.Event
	// Final is the last terminal agent event, nil when NoFinalContent.
	Final *core.Event
	// NoFinalContent is set when the turn completed without a final answer.
	NoFinalContent bool
	// NoResponse is set when the dispatch layer failed.
	NoResponse bool
	// State is the committed state after the turn.
	State  core.State
	Commit core.CommitToken
}

// Text returns the final response text (empty when there is none).
func (r *TurnResult) Text() string {
	if r == nil || r.Final == nil {
		return ""
	}
	return r.Final.Text()
}

// Options holds dependency + configuration overrides passed to New().
type Options struct {
	// AgentName is recorded on dispatched events.
	AgentName string
	// Instruction supplies the instruction template rendered in RENDER.
	Instruction InstructionProvider
	// MaxModelCalls limits the number of model calls per turn (0 = unlimited).
	MaxModelCalls int
	// Metrics receives turn metrics; nil disables them.
	Metrics *Metrics
	// Logger receives runner diagnostics.
	Logger logging.Logger
}

// Runner is the turn executor: START -> RENDER -> DISPATCH -> COMMIT -> DONE.
// Turns on the same session run strictly one after another; turns on
// different sessions run in parallel. Public methods are safe for
// concurrent use.
type Runner struct {
	store      core.SessionStore
	dispatcher core.Dispatcher

	agentName     string
	instruction   InstructionProvider
	maxModelCalls int
	metrics       *Metrics
	logger        logging.Logger

	locks *keylock.Locks
}

// New constructs a Runner committing to store and dispatching to dispatcher.
func New(store core.SessionStore, dispatcher core.Dispatcher, optFns ...func(o *Options)) *Runner {
	opts := Options{
		AgentName:     "assistant",
		Instruction:   StaticInstruction(""),
		MaxModelCalls: 100,
		Logger:        logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Runner{
		store:         store,
		dispatcher:    dispatcher,
		agentName:     opts.AgentName,
		instruction:   opts.Instruction,
		maxModelCalls: opts.MaxModelCalls,
		metrics:       opts.Metrics,
		logger:        opts.Logger,
		locks:         keylock.New(),
	}
}

// Run processes one user message against the session identified by key. On
// failure the returned TurnResult (PhaseError) accompanies a *TurnError and
// the session is left exactly as it was before the turn.
func (r *Runner) Run(ctx context.Context, key core.SessionKey, message string) (*TurnResult, error) {
	turnID := core.NewID()
	res := &TurnResult{Key: key, TurnID: turnID, Phase: PhaseStart}
	start := time.Now()

	r.metrics.turnStarted()
	defer r.metrics.turnFinished()

	if err := key.Validate(); err != nil {
		return r.fail(res, PhaseStart, start, err)
	}

	release, err := r.locks.Acquire(ctx, key.String())
	if err != nil {
		return r.fail(res, PhaseStart, start, err)
	}
	defer release()

	sess, err := r.store.Get(ctx, key)
	if err != nil {
		return r.fail(res, PhaseStart, start, err)
	}

	// RENDER
	res.Phase = PhaseRender
	instruction, err := r.render(ctx, sess)
	if err != nil {
		return r.fail(res, PhaseRender, start, err)
	}

	// DISPATCH
	res.Phase = PhaseDispatch
	userContent := core.Content{Role: "user", Parts: []core.Part{core.TextPart{Text: message}}}
	tc := core.NewTurnContext(ctx, sess, turnID, core.AgentInfo{Name: r.agentName}, userContent, instruction, r.maxModelCalls, r.turnLogger(key, turnID))

	if err := r.dispatch(tc); err != nil {
		tc.Gateway.Discard()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return r.fail(res, PhaseDispatch, start, ctxErr)
		}
		extErr := &core.ExternalLayerError{Layer: "dispatcher", Err: err}
		r.logger.Error("runner.turn.dispatch_failed", "session", key.String(), "turn_id", turnID, "error", err.Error())
		res.NoResponse = true
		return r.fail(res, PhaseDispatch, start, extErr)
	}
	if err := ctx.Err(); err != nil {
		tc.Gateway.Discard()
		return r.fail(res, PhaseDispatch, start, err)
	}

	// COMMIT
	res.Phase = PhaseCommit
	next := sess.Clone()
	next.ApplyStateDelta(tc.Gateway.Delta())

	committed := []core.Event{next.AppendEvent(core.NewUserMessageEvent(turnID, message))}
	for _, ev := range tc.Events() {
		if ev.IsPartial() {
			continue
		}
		committed = append(committed, next.AppendEvent(ev))
	}

	token, err := r.store.Put(ctx, next)
	if err != nil {
		r.metrics.IncCommitFailure(commitFailureReason(err))
		return r.fail(res, PhaseCommit, start, err)
	}
	r.logger.Debug("runner.turn.commit", "session", key.String(), "turn_id", turnID, "version", token.Version, "events", len(committed))

	// DONE
	res.Phase = PhaseDone
	res.Events = committed
	res.Final = finalResponse(committed)
	res.NoFinalContent = res.Final == nil
	res.State = next.StateSnapshot()
	res.Commit = token

	r.logTurn(key, turnID, PhaseDone, len(committed), time.Since(start), nil)
	r.metrics.ObserveTurn(PhaseDone, "ok", time.Since(start))
	return res, nil
}

func (r *Runner) render(ctx context.Context, sess *core.Session) (string, error) {
	tmpl, err := r.instruction.Instruction(ctx, sess)
	if err != nil {
		return "", fmt.Errorf("resolve instruction: %w", err)
	}
	return util.RenderTemplate(tmpl, sess.StateSnapshot())
}

// dispatch runs the dispatcher, converting panics into errors.
func (r *Runner) dispatch(tc *core.TurnContext) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("dispatcher panic: %v", rec)
		}
	}()
	return r.dispatcher.Dispatch(tc)
}

func (r *Runner) fail(res *TurnResult, phase Phase, start time.Time, err error) (*TurnResult, error) {
	res.Phase = PhaseError
	turnErr := &TurnError{Phase: phase, Key: res.Key, TurnID: res.TurnID, Err: err}
	r.logTurn(res.Key, res.TurnID, phase, 0, time.Since(start), err)
	r.metrics.ObserveTurn(phase, "error", time.Since(start))
	return res, turnErr
}

func (r *Runner) turnLogger(key core.SessionKey, turnID string) logging.Logger {
	if ml, ok := r.logger.(*logging.MeshLogger); ok {
		return ml.WithTurn(key.String(), turnID)
	}
	return r.logger
}

func (r *Runner) logTurn(key core.SessionKey, turnID string, phase Phase, events int, dur time.Duration, err error) {
	if ml, ok := r.logger.(*logging.MeshLogger); ok {
		ml.WithTurn(key.String(), turnID).LogTurn(string(phase), events, dur, err)
		return
	}
	if err != nil {
		r.logger.Error("turn.failed", "session", key.String(), "turn_id", turnID, "phase", string(phase), "error", err.Error())
		return
	}
	r.logger.Info("turn.completed", "session", key.String(), "turn_id", turnID, "event_count", events, "duration_ms", dur.Milliseconds())
}

// finalResponse returns the last terminal agent-authored event with text or
// structured content.
// Earlier answers are never substituted for a missing final one.
func finalResponse(events []core.Event) *core.Event {
	for i := len(events) - 1; i >= 0; i-- {
		ev := events[i]
		if ev.Author == core.AuthorUser || ev.Author == core.AuthorSystem {
			continue
		}
		if !ev.IsFinalResponse() {
			return nil
		}
		if !hasContent(ev) {
			return nil
		}
		return &ev
	}
	return nil
}

// hasContent reports whether ev carries text or any structured part.
func hasContent(ev core.Event) bool {
	if ev.Content == nil {
		return false
	}
	for _, p := range ev.Content.Parts {
		if tp, ok := p.(core.TextPart); !ok || tp.Text != "" {
			return true
		}
	}
	return false
}

func commitFailureReason(err error) string {
	switch {
	case errors.Is(err, core.ErrConflict):
		return "conflict"
	case errors.Is(err, core.ErrNotFound):
		return "not_found"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "store_unavailable"
	}
}
