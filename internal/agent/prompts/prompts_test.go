package prompts

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/shoppick/server/internal/agent/model"
)

func TestAnalysisSystemListsAllModes(t *testing.T) {
	system := AnalysisSystem()
	for _, mode := range model.Modes {
		assert.Contains(t, system, string(mode))
	}
	assert.Contains(t, system, "JSON")
}

func TestAnalysisUserOrdersHistoryBeforeUtterance(t *testing.T) {
	out := AnalysisUser("적축으로", []string{"가성비 키보드 추천", "5만원 이하로"})
	first := strings.Index(out, "가성비 키보드 추천")
	second := strings.Index(out, "5만원 이하로")
	last := strings.Index(out, "적축으로")
	assert.True(t, first < second && second < last, "history must precede the current utterance")
}

func TestRationaleSystemSpecializesPerMode(t *testing.T) {
	seen := make(map[string]bool)
	for _, mode := range model.Modes {
		out := RationaleSystem(mode)
		assert.NotContains(t, out, "{MODE_TASK}")
		seen[out] = true
	}
	assert.Len(t, seen, len(model.Modes), "each mode gets its own task text")

	// unknown modes still render a usable prompt
	assert.NotContains(t, RationaleSystem(model.ModeUnknown), "{MODE_TASK}")
}

func TestRationaleUserIncludesBudgetAndItems(t *testing.T) {
	req := &model.Requirements{
		RawText: "30대 남자 동료 퇴사 선물 5만원",
		Budget:  &model.BudgetRange{MaxPrice: 50000},
		Recipient: &model.Recipient{
			Relation: "colleague", Gender: "male", AgeGroup: "30대", Occasion: "farewell",
		},
	}
	items := []model.ProductCandidate{
		{ID: "p1", Title: "머그컵", Price: 15000, MallName: "몰A"},
	}

	out := RationaleUser(req, items)
	assert.Contains(t, out, "30대 남자 동료 퇴사 선물 5만원")
	assert.Contains(t, out, "50000")
	assert.Contains(t, out, "머그컵")
	assert.Contains(t, out, "몰A")
}
