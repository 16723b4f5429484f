package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shoppick/server/internal/agent/model"
	"github.com/shoppick/server/internal/agent/modes"
	"github.com/shoppick/server/internal/agent/session"
	"github.com/shoppick/server/internal/core/errx"
	"github.com/shoppick/server/internal/testutil"
)

type stubAnalyzer struct {
	reqs *model.Requirements
	err  error
}

func (s *stubAnalyzer) Analyze(_ context.Context, rawText string, _ *model.Session) (*model.Requirements, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := *s.reqs
	out.RawText = rawText
	return &out, nil
}

type stubAgent struct {
	mode  model.Mode
	res   *model.RecommendationResult
	err   error
	calls int
	delay time.Duration
}

func (s *stubAgent) Mode() model.Mode { return s.mode }

func (s *stubAgent) Execute(ctx context.Context, _ *model.Requirements) (*model.RecommendationResult, error) {
	s.calls++
	if s.delay > 0 {
		select {
		case <-ctx.Done():
			// what a real search backend surfaces when the turn deadline
			// interrupts it mid-call
			return nil, errx.New(errx.KindSearchUnavailable, ctx.Err(), "search request canceled")
		case <-time.After(s.delay):
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.res, nil
}

func agentsWith(stubs ...*stubAgent) map[model.Mode]modes.Agent {
	out := make(map[model.Mode]modes.Agent, len(stubs))
	for _, s := range stubs {
		out[s.mode] = s
	}
	return out
}

func okResult(mode model.Mode) *model.RecommendationResult {
	return &model.RecommendationResult{
		Mode:      mode,
		Items:     []model.ProductCandidate{testutil.Product("p1", "상품", 10000, 4.5, 100)},
		Rationale: "추천 이유입니다.",
	}
}

func newOrch(a Analyzer, agents map[model.Mode]modes.Agent, store session.Store) *Orchestrator {
	return New(a, agents, store, model.OrchestratorConfig{
		TurnTimeout:        5 * time.Second,
		MaxAnalysisRetries: 1,
		MaxClarifications:  2,
	})
}

func statePath(trace []StateChange) []State {
	path := []State{StateReceived}
	for _, c := range trace {
		path = append(path, c.To)
	}
	return path
}

func TestProcessTurnHappyPathTrace(t *testing.T) {
	store := session.NewMemory(time.Minute)
	defer store.Close()

	a := &stubAnalyzer{reqs: &model.Requirements{Mode: model.ModeValue, Confidence: 0.9, Items: []string{"키보드"}}}
	agent := &stubAgent{mode: model.ModeValue, res: okResult(model.ModeValue)}

	resp, err := newOrch(a, agentsWith(agent), store).ProcessTurn(context.Background(), Request{Utterance: "가성비 키보드 추천"})
	require.NoError(t, err)

	assert.Equal(t, StateCompleted, resp.State)
	assert.Equal(t, model.ModeValue, resp.Mode)
	require.NotNil(t, resp.Result)
	assert.Equal(t, []State{
		StateReceived, StateAnalyzing, StateRouting,
		StateAgentExecuting, StateAggregating, StateCompleted,
	}, statePath(resp.Trace))
	assert.Greater(t, resp.Elapsed, time.Duration(0))

	// the completed turn is in the session history
	sess, err := store.GetOrCreate(context.Background(), resp.SessionID)
	require.NoError(t, err)
	require.Len(t, sess.Turns, 1)
	assert.Equal(t, model.ModeValue, sess.Turns[0].Mode)
	assert.NotEmpty(t, sess.Turns[0].ResultSummary)
}

func TestProcessTurnClarification(t *testing.T) {
	store := session.NewMemory(time.Minute)
	defer store.Close()

	a := &stubAnalyzer{reqs: &model.Requirements{
		Mode:         model.ModeGift,
		Confidence:   0.85,
		MissingSlots: []string{model.SlotRecipient, model.SlotBudget},
	}}
	agent := &stubAgent{mode: model.ModeGift, res: okResult(model.ModeGift)}
	o := newOrch(a, agentsWith(agent), store)

	resp, err := o.ProcessTurn(context.Background(), Request{Utterance: "선물 추천해줘"})
	require.NoError(t, err)

	assert.Equal(t, StateClarificationNeeded, resp.State)
	assert.Contains(t, resp.Clarification, "누구")
	assert.Nil(t, resp.Result)
	assert.Zero(t, agent.calls)

	// the clarification decision is made while routing, after analysis
	assert.Equal(t, []State{
		StateReceived, StateAnalyzing, StateRouting, StateClarificationNeeded,
	}, statePath(resp.Trace))
	assert.Equal(t, StateRouting, resp.Trace[len(resp.Trace)-1].From)

	sess, err := store.GetOrCreate(context.Background(), resp.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 1, sess.ClarifyCount)
	require.Len(t, sess.Turns, 1)
	assert.True(t, sess.Turns[0].Clarification)
}

func TestProcessTurnClarificationCapForcesRouting(t *testing.T) {
	store := session.NewMemory(time.Minute)
	defer store.Close()

	a := &stubAnalyzer{reqs: &model.Requirements{
		Mode:         model.ModeGift,
		Confidence:   0.85,
		MissingSlots: []string{model.SlotBudget},
	}}
	agent := &stubAgent{mode: model.ModeGift, res: okResult(model.ModeGift)}
	o := newOrch(a, agentsWith(agent), store)

	ctx := context.Background()
	first, err := o.ProcessTurn(ctx, Request{Utterance: "선물 추천"})
	require.NoError(t, err)
	require.Equal(t, StateClarificationNeeded, first.State)

	second, err := o.ProcessTurn(ctx, Request{SessionID: first.SessionID, Utterance: "글쎄"})
	require.NoError(t, err)
	require.Equal(t, StateClarificationNeeded, second.State)

	// two questions asked; the third ambiguous turn must route anyway
	third, err := o.ProcessTurn(ctx, Request{SessionID: first.SessionID, Utterance: "모르겠어"})
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, third.State)
	assert.Equal(t, model.ModeGift, third.Mode)
	assert.Equal(t, 1, agent.calls)
}

func TestProcessTurnUnknownModeFallsBackAfterCap(t *testing.T) {
	store := session.NewMemory(time.Minute)
	defer store.Close()

	a := &stubAnalyzer{reqs: &model.Requirements{
		Mode:       model.ModeUnknown,
		Confidence: 0.3,
		Secondary:  []model.ModeScore{{Mode: model.ModeTrend, Confidence: 0.3}},
	}}
	trend := &stubAgent{mode: model.ModeTrend, res: okResult(model.ModeTrend)}
	value := &stubAgent{mode: model.ModeValue, res: okResult(model.ModeValue)}
	o := newOrch(a, agentsWith(trend, value), store)

	ctx := context.Background()
	first, err := o.ProcessTurn(ctx, Request{Utterance: "음"})
	require.NoError(t, err)
	sessionID := first.SessionID
	_, err = o.ProcessTurn(ctx, Request{SessionID: sessionID, Utterance: "어"})
	require.NoError(t, err)

	third, err := o.ProcessTurn(ctx, Request{SessionID: sessionID, Utterance: "음..."})
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, third.State)
	assert.Equal(t, model.ModeTrend, third.Mode, "strongest secondary wins the fallback")
}

func TestChooseModeTieBreak(t *testing.T) {
	reqs := &model.Requirements{
		Mode:       model.ModeValue,
		Confidence: 0.7,
		Secondary: []model.ModeScore{
			{Mode: model.ModeReview, Confidence: 0.7},
			{Mode: model.ModeTrend, Confidence: 0.7},
		},
	}
	assert.Equal(t, model.ModeReview, chooseMode(reqs), "REVIEW outranks VALUE and TREND on ties")

	noTie := &model.Requirements{
		Mode:       model.ModeValue,
		Confidence: 0.8,
		Secondary:  []model.ModeScore{{Mode: model.ModeReview, Confidence: 0.5}},
	}
	assert.Equal(t, model.ModeValue, chooseMode(noTie))
}

func TestProcessTurnAnalysisFailure(t *testing.T) {
	store := session.NewMemory(time.Minute)
	defer store.Close()

	a := &stubAnalyzer{err: errx.Perm(errx.KindAnalysis, errors.New("bad output"), "analysis model call rejected")}
	o := newOrch(a, agentsWith(), store)

	resp, err := o.ProcessTurn(context.Background(), Request{Utterance: "선물"})
	require.Error(t, err)

	assert.Equal(t, StateFailed, resp.State)
	assert.Equal(t, errx.KindAnalysis, resp.ErrorKind)
	assert.Equal(t, []State{StateReceived, StateAnalyzing, StateFailed}, statePath(resp.Trace))
}

func TestProcessTurnAgentFailureIsStructured(t *testing.T) {
	store := session.NewMemory(time.Minute)
	defer store.Close()

	a := &stubAnalyzer{reqs: &model.Requirements{Mode: model.ModeValue, Confidence: 0.9, Items: []string{"키보드"}}}
	agent := &stubAgent{
		mode: model.ModeValue,
		err:  errx.New(errx.KindSearchUnavailable, errors.New("all backends down"), "search backend exhausted 2 retries"),
	}
	o := newOrch(a, agentsWith(agent), store)

	resp, err := o.ProcessTurn(context.Background(), Request{Utterance: "가성비 키보드"})
	require.Error(t, err)

	assert.Equal(t, StateFailed, resp.State)
	assert.Equal(t, errx.KindSearchUnavailable, resp.ErrorKind)
	assert.NotEmpty(t, resp.SessionID, "failure responses still carry the session")
}

func TestProcessTurnAggregationViolation(t *testing.T) {
	store := session.NewMemory(time.Minute)
	defer store.Close()

	a := &stubAnalyzer{reqs: &model.Requirements{Mode: model.ModeValue, Confidence: 0.9, Items: []string{"키보드"}}}
	bad := okResult(model.ModeValue)
	bad.Items[0].Price = -100
	agent := &stubAgent{mode: model.ModeValue, res: bad}
	o := newOrch(a, agentsWith(agent), store)

	resp, err := o.ProcessTurn(context.Background(), Request{Utterance: "가성비 키보드"})
	require.Error(t, err)

	assert.Equal(t, StateFailed, resp.State)
	assert.Equal(t, errx.KindAggregation, resp.ErrorKind)
}

func TestProcessTurnTimeout(t *testing.T) {
	store := session.NewMemory(time.Minute)
	defer store.Close()

	a := &stubAnalyzer{reqs: &model.Requirements{Mode: model.ModeValue, Confidence: 0.9, Items: []string{"키보드"}}}
	agent := &stubAgent{mode: model.ModeValue, res: okResult(model.ModeValue), delay: 200 * time.Millisecond}
	o := New(a, agentsWith(agent), store, model.OrchestratorConfig{
		TurnTimeout:       20 * time.Millisecond,
		MaxClarifications: 2,
	})

	resp, err := o.ProcessTurn(context.Background(), Request{Utterance: "가성비 키보드"})
	require.Error(t, err)

	assert.Equal(t, StateFailed, resp.State)
	assert.Equal(t, errx.KindTimeout, resp.ErrorKind,
		"the deadline outranks the backend error it interrupted")
}

func TestTopologyIntegrity(t *testing.T) {
	topo := Describe()

	states := make(map[State]bool, len(topo.States))
	for _, s := range topo.States {
		states[s] = true
	}
	require.Len(t, topo.States, 8)

	for _, tr := range topo.Transitions {
		assert.True(t, states[tr.From], "unknown source state %s", tr.From)
		assert.True(t, states[tr.To], "unknown target state %s", tr.To)
		assert.NotEmpty(t, tr.On)
		assert.False(t, tr.From.Terminal(), "terminal state %s must have no outgoing edges", tr.From)
	}

	// every non-terminal state has at least one outgoing edge
	for _, s := range topo.States {
		if s.Terminal() {
			continue
		}
		found := false
		for _, tr := range topo.Transitions {
			if tr.From == s {
				found = true
				break
			}
		}
		assert.True(t, found, "state %s has no outgoing edges", s)
	}
}

func TestTopologyMermaid(t *testing.T) {
	out := Describe().Mermaid()
	assert.Contains(t, out, "flowchart TD")
	assert.Contains(t, out, "RECEIVED -->|session loaded| ANALYZING")
	assert.Contains(t, out, "AGGREGATING -->|result valid| COMPLETED")
}
