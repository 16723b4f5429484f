package modes

import (
	"context"
	"time"

	"github.com/shoppick/server/internal/agent/model"
	"github.com/shoppick/server/internal/search"
)

// seasonalTrends maps a season to the query terms shoppers reach for in it.
var seasonalTrends = map[string][]string{
	"spring": {"미세먼지 마스크", "공기청정기", "봄옷", "러닝화", "골프용품"},
	"summer": {"선풍기", "에어컨", "여행용품", "수영복", "아이스박스"},
	"fall":   {"가을옷", "등산용품", "김장용품", "난방기", "블랭킷"},
	"winter": {"패딩", "난방텐트", "가습기", "전기장판", "크리스마스 선물"},
}

// Trend surfaces what is selling right now, seeded by season and newest-first
// provider listings.
type Trend struct {
	deps *Deps
	now  func() time.Time
}

func NewTrend(deps *Deps) *Trend {
	return &Trend{deps: deps, now: time.Now}
}

func (t *Trend) Mode() model.Mode { return model.ModeTrend }

func (t *Trend) Execute(ctx context.Context, req *model.Requirements) (*model.RecommendationResult, error) {
	season := currentSeason(t.now())
	terms := trendQueryTerms(req, season)
	if n := t.deps.maxQueries(); len(terms) > n {
		terms = terms[:n]
	}

	// newest-first listings approximate what is currently moving
	queries := make([]search.Query, 0, len(terms))
	for _, term := range terms {
		queries = append(queries, baseQuery(req, term, t.deps.display(), search.SortDate))
	}

	var warnings []string
	items, err := t.deps.searchAll(ctx, queries)
	if err != nil {
		items = nil
		warnings = append(warnings, "상품 검색에 실패하여 추천 목록이 비어 있습니다")
	}

	rationale, warn := t.deps.rationale(ctx, model.ModeTrend, req, capFor(items, t.deps.maxResults(), req.Budget))
	if warn != "" {
		warnings = append(warnings, warn)
	}
	if err != nil && warn != "" {
		return nil, err
	}

	extras := map[string]any{
		"season":         season,
		"trend_keywords": terms,
	}
	return t.deps.finish(model.ModeTrend, req, items, rationale, req.Confidence, warnings, extras), nil
}

// trendQueryTerms prefers the user's category, padded with this season's
// staples when the request names nothing specific.
func trendQueryTerms(req *model.Requirements, season string) []string {
	var terms []string
	for _, item := range req.Items {
		terms = append(terms, "인기 "+item, item+" 추천")
	}
	terms = append(terms, seasonalTrends[season]...)
	return uniqueTerms(terms)
}

func currentSeason(now time.Time) string {
	switch now.Month() {
	case time.March, time.April, time.May:
		return "spring"
	case time.June, time.July, time.August:
		return "summer"
	case time.September, time.October, time.November:
		return "fall"
	default:
		return "winter"
	}
}
