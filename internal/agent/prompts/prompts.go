// Package prompts holds the model prompt templates and their renderers.
// Templates are embedded verbatim; dynamic values are spliced with a token
// replacer so JSON braces inside the templates stay untouched.
package prompts

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/shoppick/server/internal/agent/model"
)

//go:embed template/analysis_prompt.txt
var analysisSystemPrompt string

//go:embed template/rationale_prompt.txt
var rationaleSystemPrompt string

// modeTasks states, per mode, what the rationale should argue for.
var modeTasks = map[model.Mode]string{
	model.ModeGift:   "선물 추천 결과입니다. 받는 분과 상황에 왜 어울리는지, 예산과 맞는지를 중심으로 설명하세요.",
	model.ModeValue:  "가성비 비교 결과입니다. 가격 대비 어떤 장점이 있는지, 가격대별 선택지가 어떻게 다른지 설명하세요.",
	model.ModeBundle: "묶음 구매 조합입니다. 각 품목이 조합에서 맡는 역할과 총액이 예산에 어떻게 맞는지 설명하세요.",
	model.ModeReview: "구매 검증 결과입니다. 장점과 주의할 점을 균형 있게 짚고 구매 여부 판단을 도와주세요.",
	model.ModeTrend:  "요즘 인기 상품 추천입니다. 어떤 점에서 주목받는 제품들인지 설명하세요.",
}

// AnalysisSystem returns the classification and slot-extraction system prompt.
func AnalysisSystem() string {
	return analysisSystemPrompt
}

// AnalysisUser renders the user message for one analysis call: the prior
// utterances of the session followed by the current one.
func AnalysisUser(utterance string, history []string) string {
	var b strings.Builder
	b.WriteString("사용자 대화 내용:\n")
	for _, h := range history {
		b.WriteString(h)
		b.WriteByte('\n')
	}
	b.WriteString(utterance)
	return b.String()
}

// RationaleSystem returns the rationale system prompt specialized to mode.
func RationaleSystem(mode model.Mode) string {
	task, ok := modeTasks[mode]
	if !ok {
		task = "추천 결과를 사용자 요청과 연결해 설명하세요."
	}
	return strings.Replace(rationaleSystemPrompt, "{MODE_TASK}", task, 1)
}

// RationaleUser renders the user message for a rationale call: the original
// request plus the ranked candidates the model may talk about.
func RationaleUser(req *model.Requirements, items []model.ProductCandidate) string {
	var b strings.Builder
	b.WriteString("사용자 요청: ")
	b.WriteString(req.RawText)
	b.WriteByte('\n')

	if !req.Budget.Empty() {
		b.WriteString(fmt.Sprintf("예산: 최소 %d원, 최대 %d원, 총액 %d원\n",
			req.Budget.MinPrice, req.Budget.MaxPrice, req.Budget.TotalBudget))
	}
	if !req.Recipient.Empty() {
		b.WriteString(fmt.Sprintf("선물 대상: %s %s %s (%s)\n",
			req.Recipient.AgeGroup, req.Recipient.Gender, req.Recipient.Relation, req.Recipient.Occasion))
	}

	b.WriteString("\n추천 상품 목록:\n")
	for i, item := range items {
		b.WriteString(fmt.Sprintf("%d. %s - %d원", i+1, item.Title, item.Price))
		if item.MallName != "" {
			b.WriteString(" (" + item.MallName + ")")
		}
		b.WriteByte('\n')
	}
	return b.String()
}
