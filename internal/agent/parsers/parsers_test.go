package parsers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shoppick/server/internal/agent/model"
	"github.com/shoppick/server/internal/core/errx"
)

func TestExtractJSONPlainObject(t *testing.T) {
	got, err := ExtractJSON(`{"mode": "GIFT"}`)
	require.NoError(t, err)
	assert.Equal(t, `{"mode": "GIFT"}`, got)
}

func TestExtractJSONFenced(t *testing.T) {
	raw := "Here you go:\n```json\n{\"mode\": \"VALUE\", \"confidence\": 0.9}\n```\nDone."
	got, err := ExtractJSON(raw)
	require.NoError(t, err)
	assert.JSONEq(t, `{"mode": "VALUE", "confidence": 0.9}`, got)
}

func TestExtractJSONSurroundingProse(t *testing.T) {
	raw := `The classification is {"mode":"TREND","confidence":0.8} as requested.`
	got, err := ExtractJSON(raw)
	require.NoError(t, err)
	assert.JSONEq(t, `{"mode":"TREND","confidence":0.8}`, got)
}

func TestExtractJSONNoObject(t *testing.T) {
	_, err := ExtractJSON("I could not determine the intent.")
	require.Error(t, err)
	assert.True(t, errx.IsKind(err, errx.KindAnalysis))
	assert.True(t, errx.IsPermanent(err))
}

func TestParseAnalysisFull(t *testing.T) {
	raw := `{
		"mode": "gift",
		"confidence": 0.87,
		"secondary": [{"mode": "VALUE", "confidence": 0.35}],
		"budget": {"max_price": 50000, "flexible": false},
		"recipient": {"relation": "부모님", "occasion": "생신"},
		"search_keywords": ["부모님 선물", "건강식품"]
	}`
	req, err := ParseAnalysis(raw)
	require.NoError(t, err)

	assert.Equal(t, model.ModeGift, req.Mode)
	assert.InDelta(t, 0.87, req.Confidence, 1e-9)
	require.Len(t, req.Secondary, 1)
	assert.Equal(t, model.ModeValue, req.Secondary[0].Mode)
	require.NotNil(t, req.Budget)
	assert.Equal(t, int64(50000), req.Budget.MaxPrice)
	require.NotNil(t, req.Recipient)
	assert.Equal(t, "부모님", req.Recipient.Relation)
	assert.Equal(t, []string{"부모님 선물", "건강식품"}, req.SearchKeywords)
}

func TestParseAnalysisHallucinatedMode(t *testing.T) {
	req, err := ParseAnalysis(`{"mode": "DISCOUNT_HUNT", "confidence": 0.95}`)
	require.NoError(t, err)
	assert.Equal(t, model.ModeUnknown, req.Mode)
}

func TestParseAnalysisClampsConfidence(t *testing.T) {
	req, err := ParseAnalysis(`{"mode": "REVIEW", "confidence": 1.7}`)
	require.NoError(t, err)
	assert.Equal(t, 1.0, req.Confidence)

	req, err = ParseAnalysis(`{"mode": "REVIEW", "confidence": -0.3}`)
	require.NoError(t, err)
	assert.Equal(t, 0.0, req.Confidence)
}

func TestParseAnalysisDropsEmptySlots(t *testing.T) {
	req, err := ParseAnalysis(`{
		"mode": "VALUE",
		"confidence": 0.8,
		"budget": {"min_price": 0, "max_price": 0},
		"recipient": {"relation": ""},
		"items": ["", "  ", "노트북", "노트북"]
	}`)
	require.NoError(t, err)
	assert.Nil(t, req.Budget)
	assert.Nil(t, req.Recipient)
	assert.Equal(t, []string{"노트북"}, req.Items)
}

func TestParseAnalysisSwapsInvertedBudget(t *testing.T) {
	req, err := ParseAnalysis(`{
		"mode": "VALUE",
		"confidence": 0.8,
		"budget": {"min_price": 90000, "max_price": 30000}
	}`)
	require.NoError(t, err)
	require.NotNil(t, req.Budget)
	assert.Equal(t, int64(30000), req.Budget.MinPrice)
	assert.Equal(t, int64(90000), req.Budget.MaxPrice)
}

func TestParseAnalysisMalformedJSON(t *testing.T) {
	_, err := ParseAnalysis(`{"mode": "GIFT", "confidence":`)
	require.Error(t, err)
	assert.True(t, errx.IsKind(err, errx.KindAnalysis))
}

func TestParseAnalysisSecondaryDropsPrimaryDuplicate(t *testing.T) {
	req, err := ParseAnalysis(`{
		"mode": "BUNDLE",
		"confidence": 0.7,
		"secondary": [
			{"mode": "BUNDLE", "confidence": 0.7},
			{"mode": "UNKNOWN", "confidence": 0.2},
			{"mode": "VALUE", "confidence": 0.5}
		]
	}`)
	require.NoError(t, err)
	require.Len(t, req.Secondary, 1)
	assert.Equal(t, model.ModeValue, req.Secondary[0].Mode)
}
