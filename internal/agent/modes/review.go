package modes

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shoppick/server/internal/agent/model"
	"github.com/shoppick/server/internal/agent/parsers"
	"github.com/shoppick/server/internal/search"
	logx "github.com/shoppick/server/pkg/logger"
)

const reviewSystemPrompt = `당신은 제품 리뷰 분석 전문가입니다.
사용자가 어떤 제품군의 구매를 고민하고 있습니다.
이 제품군의 일반적인 장단점과 구매 전 고려사항을 분석하세요.

다음 형식으로만 응답하세요 (JSON만 출력):
{
  "complaints": ["자주 언급되는 불만 1", "불만 2", "불만 3"],
  "avoid_if": ["이런 경우에는 구매 비추천"],
  "tips": ["관리/사용 팁"],
  "sentiment": "positive|mixed|negative",
  "recommendation": "구매 추천 여부와 이유 (2-3문장, 한국어)"
}`

// ReviewAnalysis is the structured verdict for a product category.
type ReviewAnalysis struct {
	Complaints     []string `json:"complaints"`
	AvoidIf        []string `json:"avoid_if"`
	Tips           []string `json:"tips"`
	Sentiment      string   `json:"sentiment"`
	Recommendation string   `json:"recommendation"`
}

// Review answers "should I buy this" questions: it surveys the market for
// the category and has the model weigh common complaints against strengths.
type Review struct {
	deps *Deps
}

func NewReview(deps *Deps) *Review { return &Review{deps: deps} }

func (r *Review) Mode() model.Mode { return model.ModeReview }

func (r *Review) Execute(ctx context.Context, req *model.Requirements) (*model.RecommendationResult, error) {
	category := reviewCategory(req)

	var warnings []string
	items, err := r.deps.cachedSearch(ctx, baseQuery(req, category, r.deps.display(), search.SortRelevance))
	if err != nil {
		items = nil
		warnings = append(warnings, "상품 검색에 실패하여 참고 상품 없이 분석합니다")
	}
	items = dedupe(items)

	analysis, analysisErr := r.analyze(ctx, category, items)
	if analysisErr != nil {
		if err != nil {
			return nil, analysisErr // neither backend produced anything
		}
		logx.Warn().Str("category", category).Err(analysisErr).Msg("Review analysis failed, using fallback")
		warnings = append(warnings, "리뷰 분석 생성에 실패하여 기본 설명으로 대체했습니다")
		analysis = &ReviewAnalysis{
			Sentiment:      "mixed",
			Recommendation: fallbackRationale(model.ModeReview, rank(items, req.Budget)),
		}
	}

	extras := map[string]any{
		"category":  category,
		"sentiment": analysis.Sentiment,
	}
	if len(analysis.Complaints) > 0 {
		extras["complaints"] = analysis.Complaints
	}
	if len(analysis.AvoidIf) > 0 {
		extras["avoid_if"] = analysis.AvoidIf
	}
	if len(analysis.Tips) > 0 {
		extras["tips"] = analysis.Tips
	}

	return r.deps.finish(model.ModeReview, req, items, analysis.Recommendation, req.Confidence, warnings, extras), nil
}

func (r *Review) analyze(ctx context.Context, category string, items []model.ProductCandidate) (*ReviewAnalysis, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "제품 카테고리: %s\n\n검색된 상품 목록 (참고용):\n", category)
	if len(items) == 0 {
		b.WriteString("검색 결과 없음\n")
	}
	for i, it := range items {
		if i >= 15 {
			break
		}
		fmt.Fprintf(&b, "%d. %s - %d원\n", i+1, it.Title, it.Price)
	}

	out, err := r.deps.LLM.Complete(ctx, reviewSystemPrompt, b.String())
	if err != nil {
		return nil, err
	}
	body, err := parsers.ExtractJSON(out)
	if err != nil {
		return nil, err
	}
	var analysis ReviewAnalysis
	if err := json.Unmarshal([]byte(body), &analysis); err != nil {
		return nil, fmt.Errorf("decoding review analysis: %w", err)
	}
	if analysis.Recommendation == "" {
		analysis.Recommendation = "리뷰 분석 결과가 충분하지 않습니다. 구매 전 실제 사용 후기를 확인해 보세요."
	}
	if analysis.Sentiment == "" {
		analysis.Sentiment = "mixed"
	}
	return &analysis, nil
}

// reviewCategory picks the product category under review, cleaning question
// particles out of a raw keyword when no item was extracted.
func reviewCategory(req *model.Requirements) string {
	if len(req.Items) > 0 {
		return req.Items[0]
	}
	if len(req.SearchKeywords) > 0 {
		c := req.SearchKeywords[0]
		for _, junk := range []string{"사도 돼", "괜찮아", "후기", "?"} {
			c = strings.ReplaceAll(c, junk, "")
		}
		return strings.TrimSpace(c)
	}
	return strings.TrimSpace(req.RawText)
}
