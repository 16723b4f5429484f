// Package orchestrator drives one shopping turn through an explicit state
// machine: load the session, analyze the utterance, route to the mode
// agent, validate the result, persist the turn.
package orchestrator

import (
	"context"
	"time"

	"github.com/shoppick/server/internal/agent/analyzer"
	"github.com/shoppick/server/internal/agent/model"
	"github.com/shoppick/server/internal/agent/modes"
	"github.com/shoppick/server/internal/agent/session"
	"github.com/shoppick/server/internal/core/errx"
	"github.com/shoppick/server/internal/health"
	logx "github.com/shoppick/server/pkg/logger"
)

// Analyzer is the classification capability the machine needs.
type Analyzer interface {
	Analyze(ctx context.Context, rawText string, sess *model.Session) (*model.Requirements, error)
}

// Request is one user turn.
type Request struct {
	SessionID string `json:"session_id,omitempty"`
	Utterance string `json:"utterance"`
}

// Response is the terminal artifact of one turn. Exactly one of Result,
// Clarification, or ErrorKind is meaningful, selected by State.
type Response struct {
	SessionID     string                      `json:"session_id"`
	State         State                       `json:"state"`
	Mode          model.Mode                  `json:"mode,omitempty"`
	Clarification string                      `json:"clarification,omitempty"`
	Result        *model.RecommendationResult `json:"result,omitempty"`
	ErrorKind     errx.Kind                   `json:"error_kind,omitempty"`
	Warnings      []string                    `json:"warnings,omitempty"`
	Trace         []StateChange               `json:"trace"`
	Elapsed       time.Duration               `json:"elapsed"`
}

// Orchestrator owns the turn state machine.
type Orchestrator struct {
	analyzer Analyzer
	agents   map[model.Mode]modes.Agent
	store    session.Store
	cfg      model.OrchestratorConfig
}

func New(a Analyzer, agents map[model.Mode]modes.Agent, store session.Store, cfg model.OrchestratorConfig) *Orchestrator {
	if cfg.TurnTimeout <= 0 {
		cfg.TurnTimeout = 30 * time.Second
	}
	if cfg.MaxClarifications <= 0 {
		cfg.MaxClarifications = 2
	}
	return &Orchestrator{analyzer: a, agents: agents, store: store, cfg: cfg}
}

// turn is the mutable state threaded through one machine run.
type turn struct {
	req   Request
	sess  *model.Session
	reqs  *model.Requirements
	mode  model.Mode
	agent modes.Agent
	res   *model.RecommendationResult

	state State
	trace []StateChange

	errKind       errx.Kind
	err           error
	clarification string
}

func (t *turn) move(to State, note string) {
	if !allowed(t.state, to) && !to.Terminal() {
		// the transition table and the step functions must agree
		logx.Error().Str("from", string(t.state)).Str("to", string(to)).Msg("Transition outside machine topology")
	}
	t.trace = append(t.trace, StateChange{From: t.state, To: to, At: time.Now().UTC(), Note: note})
	t.state = to
}

func (t *turn) fail(kind errx.Kind, err error, note string) {
	t.errKind = kind
	t.err = err
	t.move(StateFailed, note)
}

// ProcessTurn runs one utterance to a terminal state. The returned error is
// the causal failure when State is FAILED and nil otherwise; the Response
// is always populated.
func (o *Orchestrator) ProcessTurn(ctx context.Context, req Request) (*Response, error) {
	started := time.Now()
	ctx, cancel := context.WithTimeout(ctx, o.cfg.TurnTimeout)
	defer cancel()

	t := &turn{req: req, state: StateReceived}

	for !t.state.Terminal() {
		if err := ctx.Err(); err != nil {
			t.fail(errx.KindTimeout, errx.New(errx.KindTimeout, err, "turn deadline exceeded"), "deadline exceeded")
			break
		}

		switch t.state {
		case StateReceived:
			o.stepReceive(ctx, t)
		case StateAnalyzing:
			o.stepAnalyze(ctx, t)
		case StateRouting:
			o.stepRoute(ctx, t)
		case StateAgentExecuting:
			o.stepExecute(ctx, t)
		case StateAggregating:
			o.stepAggregate(ctx, t)
		}
	}

	elapsed := time.Since(started)
	resp := &Response{
		State:         t.state,
		Mode:          t.mode,
		Clarification: t.clarification,
		Result:        t.res,
		ErrorKind:     t.errKind,
		Trace:         t.trace,
		Elapsed:       elapsed,
	}
	if t.sess != nil {
		resp.SessionID = t.sess.ID
	}
	if t.res != nil {
		resp.Warnings = t.res.Warnings
	}

	health.ObserveTurn(string(t.mode), outcome(t.state), elapsed)
	logx.Info().
		Str("session_id", resp.SessionID).
		Str("state", string(t.state)).
		Str("mode", string(t.mode)).
		Dur("elapsed", elapsed).
		Msg("Turn processed")

	return resp, t.err
}

func outcome(s State) string {
	switch s {
	case StateCompleted:
		return health.OutcomeCompleted
	case StateClarificationNeeded:
		return health.OutcomeClarification
	default:
		return health.OutcomeFailed
	}
}

func (o *Orchestrator) stepReceive(ctx context.Context, t *turn) {
	sess, err := o.store.GetOrCreate(ctx, t.req.SessionID)
	if err != nil {
		health.ObserveBackendError("session", string(errx.KindOf(err)))
		t.fail(errx.KindSessionStore, err, "session store error")
		return
	}
	t.sess = sess
	t.move(StateAnalyzing, "session loaded")
}

func (o *Orchestrator) stepAnalyze(ctx context.Context, t *turn) {
	reqs, err := o.analyzeWithRetries(ctx, t)
	if err != nil {
		if ctx.Err() != nil {
			t.fail(errx.KindTimeout, errx.New(errx.KindTimeout, err, "turn deadline exceeded"), "deadline exceeded")
			return
		}
		health.ObserveBackendError("llm", string(errx.KindOf(err)))
		t.fail(errx.KindOf(err), err, "analysis error")
		return
	}
	t.reqs = reqs
	t.move(StateRouting, "requirements extracted")
}

func (o *Orchestrator) analyzeWithRetries(ctx context.Context, t *turn) (*model.Requirements, error) {
	var lastErr error
	for attempt := 0; attempt <= o.cfg.MaxAnalysisRetries; attempt++ {
		reqs, err := o.analyzer.Analyze(ctx, t.req.Utterance, t.sess)
		if err == nil {
			return reqs, nil
		}
		lastErr = err
		if errx.IsPermanent(err) || ctx.Err() != nil {
			break
		}
		logx.Warn().Int("attempt", attempt+1).Err(err).Msg("Retrying analysis")
	}
	return nil, lastErr
}

func (o *Orchestrator) clarify(ctx context.Context, t *turn) {
	slot := ""
	if len(t.reqs.MissingSlots) > 0 {
		slot = t.reqs.MissingSlots[0]
	}
	t.clarification = analyzer.ClarificationQuestion(slot, t.reqs.Mode)

	err := o.store.AppendTurn(ctx, t.sess.ID, model.Turn{
		Utterance:     t.req.Utterance,
		Requirements:  t.reqs,
		Mode:          t.reqs.Mode,
		Clarification: true,
	})
	if err != nil {
		health.ObserveBackendError("session", string(errx.KindOf(err)))
		t.fail(errx.KindSessionStore, err, "session store error")
		return
	}
	t.move(StateClarificationNeeded, "missing slots or unknown mode")
}

func (o *Orchestrator) stepRoute(ctx context.Context, t *turn) {
	if t.reqs.NeedsClarification() {
		if t.sess.ClarifyCount < o.cfg.MaxClarifications {
			o.clarify(ctx, t)
			return
		}
		// the question budget is spent; route with what we have
		if !t.reqs.Mode.Dispatchable() {
			t.reqs.Mode = fallbackMode(t.reqs)
		}
		t.reqs.MissingSlots = nil
	}

	t.mode = chooseMode(t.reqs)
	agent, ok := o.agents[t.mode]
	if !ok {
		t.fail(errx.KindAnalysis, errx.Perm(errx.KindAnalysis, nil, "no agent for mode "+string(t.mode)), "no agent for mode")
		return
	}
	t.agent = agent
	t.reqs.Mode = t.mode
	t.move(StateAgentExecuting, "mode selected")
}

// chooseMode resolves confidence ties by the fixed mode priority order so
// routing is deterministic for identical classifications.
func chooseMode(reqs *model.Requirements) model.Mode {
	const eps = 1e-9

	tied := map[model.Mode]bool{reqs.Mode: true}
	for _, s := range reqs.Secondary {
		if s.Confidence >= reqs.Confidence-eps {
			tied[s.Mode] = true
		}
	}
	if len(tied) > 1 {
		for _, m := range model.Modes {
			if tied[m] {
				return m
			}
		}
	}
	return reqs.Mode
}

// fallbackMode picks where to route once clarifications are exhausted: the
// strongest secondary guess, or the broadest mode when there is none.
func fallbackMode(reqs *model.Requirements) model.Mode {
	best := model.ModeValue
	bestConf := -1.0
	for _, s := range reqs.Secondary {
		if s.Mode.Dispatchable() && s.Confidence > bestConf {
			best = s.Mode
			bestConf = s.Confidence
		}
	}
	return best
}

func (o *Orchestrator) stepExecute(ctx context.Context, t *turn) {
	res, err := t.agent.Execute(ctx, t.reqs)
	if err != nil {
		// a deadline firing mid-call surfaces as the backend's own error
		// kind; the turn still failed on time, so timeout wins
		if ctx.Err() != nil {
			t.fail(errx.KindTimeout, errx.New(errx.KindTimeout, err, "turn deadline exceeded"), "deadline exceeded")
			return
		}
		kind := errx.KindOf(err)
		if kind == "" {
			kind = errx.KindGeneration
		}
		health.ObserveBackendError("agent", string(kind))
		t.fail(kind, err, "agent error")
		return
	}
	t.res = res
	t.move(StateAggregating, "agent result")
}

func (o *Orchestrator) stepAggregate(ctx context.Context, t *turn) {
	if err := validateResult(t.res, t.mode); err != nil {
		t.fail(errx.KindAggregation, err, "invariant violation")
		return
	}

	err := o.store.AppendTurn(ctx, t.sess.ID, model.Turn{
		Utterance:     t.req.Utterance,
		Requirements:  t.reqs,
		Mode:          t.mode,
		ResultSummary: summarize(t.res),
	})
	if err != nil {
		health.ObserveBackendError("session", string(errx.KindOf(err)))
		t.fail(errx.KindSessionStore, err, "session store error")
		return
	}
	t.move(StateCompleted, "result valid")
}

// validateResult enforces the invariants every terminal result must hold:
// the mode matches the route and no item carries a negative price.
func validateResult(res *model.RecommendationResult, mode model.Mode) error {
	if res == nil {
		return errx.Perm(errx.KindAggregation, nil, "agent returned no result")
	}
	if res.Mode != mode {
		return errx.Perm(errx.KindAggregation, nil, "result mode does not match routed mode")
	}
	for _, it := range res.Items {
		if it.Price < 0 {
			return errx.Perm(errx.KindAggregation, nil, "negative price in result item "+it.ID)
		}
	}
	return nil
}

func summarize(res *model.RecommendationResult) string {
	if len(res.Items) > 0 {
		return string(res.Mode) + ": " + res.Items[0].Title
	}
	return string(res.Mode) + ": 추천 결과 없음"
}

// Topology exposes the static machine description.
func (o *Orchestrator) Topology() Topology {
	return Describe()
}
