package analyzer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shoppick/server/internal/agent/model"
	"github.com/shoppick/server/internal/cache"
	"github.com/shoppick/server/internal/core/errx"
	"github.com/shoppick/server/internal/testutil"
)

func newAnalyzer(fake *testutil.FakeLLM) *Analyzer {
	return New(fake, cache.New(time.Minute, 64), model.AnalyzerModelConfig{
		ConfidenceThreshold: 0.6,
		ContextTurns:        5,
	})
}

func TestAnalyzeGiftRequest(t *testing.T) {
	fake := &testutil.FakeLLM{Outputs: []string{`{
		"mode": "GIFT",
		"confidence": 0.9,
		"budget": {"max_price": 50000},
		"recipient": {"relation": "colleague", "gender": "male", "age_group": "30대", "occasion": "farewell"},
		"search_keywords": ["30대 남성 퇴사 선물"]
	}`}}

	req, err := newAnalyzer(fake).Analyze(context.Background(), "30대 남자 동료 퇴사 선물 5만원", &model.Session{})
	require.NoError(t, err)

	assert.Equal(t, model.ModeGift, req.Mode)
	assert.Empty(t, req.MissingSlots)
	assert.Equal(t, "30대 남자 동료 퇴사 선물 5만원", req.RawText)
	assert.Contains(t, fake.LastUser, "퇴사 선물")
}

func TestAnalyzeBelowThresholdDemotesToUnknown(t *testing.T) {
	fake := &testutil.FakeLLM{Outputs: []string{`{"mode": "TREND", "confidence": 0.4}`}}

	req, err := newAnalyzer(fake).Analyze(context.Background(), "음 뭐 살까", &model.Session{})
	require.NoError(t, err)

	assert.Equal(t, model.ModeUnknown, req.Mode)
	require.NotEmpty(t, req.Secondary)
	assert.Equal(t, model.ModeTrend, req.Secondary[0].Mode)
	assert.True(t, req.NeedsClarification())
}

func TestAnalyzeGiftMissingSlots(t *testing.T) {
	fake := &testutil.FakeLLM{Outputs: []string{`{"mode": "GIFT", "confidence": 0.85}`}}

	req, err := newAnalyzer(fake).Analyze(context.Background(), "선물 추천해줘", &model.Session{})
	require.NoError(t, err)

	assert.Equal(t, model.ModeGift, req.Mode)
	assert.Equal(t, []string{model.SlotRecipient, model.SlotBudget}, req.MissingSlots)
	assert.True(t, req.NeedsClarification())
}

func TestAnalyzeBundleRequiresTwoItemsAndTotalBudget(t *testing.T) {
	fake := &testutil.FakeLLM{Outputs: []string{`{
		"mode": "BUNDLE",
		"confidence": 0.8,
		"items": ["노트북"],
		"budget": {"max_price": 1000000}
	}`}}

	req, err := newAnalyzer(fake).Analyze(context.Background(), "노트북 세트로 맞춰줘", &model.Session{})
	require.NoError(t, err)

	assert.Equal(t, []string{model.SlotItems, model.SlotBudget}, req.MissingSlots)
}

func TestAnalyzeTrendNeedsNoSlots(t *testing.T) {
	fake := &testutil.FakeLLM{Outputs: []string{`{"mode": "TREND", "confidence": 0.82}`}}

	req, err := newAnalyzer(fake).Analyze(context.Background(), "요즘 인기 있는 가전?", &model.Session{})
	require.NoError(t, err)

	assert.Equal(t, model.ModeTrend, req.Mode)
	assert.Empty(t, req.MissingSlots)
	assert.False(t, req.NeedsClarification())
}

func TestAnalyzeUsesSessionContext(t *testing.T) {
	fake := &testutil.FakeLLM{Outputs: []string{`{"mode": "VALUE", "confidence": 0.8, "items": ["키보드"]}`}}
	sess := &model.Session{Turns: []model.Turn{
		{Utterance: "가성비 무선 키보드 추천"},
		{Utterance: "예산은 5만원이야"},
	}}

	_, err := newAnalyzer(fake).Analyze(context.Background(), "적축으로", sess)
	require.NoError(t, err)

	assert.Contains(t, fake.LastUser, "가성비 무선 키보드 추천")
	assert.Contains(t, fake.LastUser, "예산은 5만원이야")
	assert.Contains(t, fake.LastUser, "적축으로")
}

func TestAnalyzeCachesIdenticalContext(t *testing.T) {
	fake := &testutil.FakeLLM{Outputs: []string{`{"mode": "REVIEW", "confidence": 0.9, "items": ["에어프라이어"]}`}}
	a := newAnalyzer(fake)

	for i := 0; i < 3; i++ {
		req, err := a.Analyze(context.Background(), "에어프라이어 사도 돼?", &model.Session{})
		require.NoError(t, err)
		assert.Equal(t, model.ModeReview, req.Mode)
	}
	assert.Equal(t, 1, fake.Calls())
}

func TestAnalyzeRejectsBlankUtterance(t *testing.T) {
	fake := &testutil.FakeLLM{Outputs: []string{`{"mode": "TREND", "confidence": 0.9}`}}

	_, err := newAnalyzer(fake).Analyze(context.Background(), "   \n\t ", &model.Session{})
	require.Error(t, err)
	assert.True(t, errx.IsKind(err, errx.KindAnalysis))
	assert.True(t, errx.IsPermanent(err))
	assert.Zero(t, fake.Calls(), "blank input must not reach the model")
}

func TestAnalyzeModelFailure(t *testing.T) {
	fake := &testutil.FakeLLM{Err: errors.New("backend exploded")}

	_, err := newAnalyzer(fake).Analyze(context.Background(), "선물 추천", &model.Session{})
	require.Error(t, err)
	assert.True(t, errx.IsKind(err, errx.KindAnalysis))
}

func TestClarificationQuestions(t *testing.T) {
	assert.Contains(t, ClarificationQuestion(model.SlotRecipient, model.ModeGift), "누구")
	assert.Contains(t, ClarificationQuestion(model.SlotBudget, model.ModeGift), "예산")
	assert.Contains(t, ClarificationQuestion(model.SlotItems, model.ModeBundle), "함께")
	assert.Contains(t, ClarificationQuestion(model.SlotItems, model.ModeValue), "종류")
	assert.NotEmpty(t, ClarificationQuestion("unknown", model.ModeUnknown))
}
