package modes

import (
	"context"

	"github.com/shoppick/server/internal/agent/model"
	"github.com/shoppick/server/internal/search"
)

// Korean query fragments keyed by the analyzer's normalized recipient labels.
var (
	genderKR = map[string]string{
		"male":   "남자",
		"female": "여자",
	}
	relationQueryKR = map[string]string{
		"colleague":  "직장동료선물",
		"boss":       "상사선물",
		"friend":     "친구선물",
		"girlfriend": "여자친구선물",
		"boyfriend":  "남자친구선물",
		"parent":     "부모님선물",
		"mother":     "어머니선물",
		"father":     "아버지선물",
		"teacher":    "선생님선물",
	}
	occasionQueryKR = map[string]string{
		"birthday":    "생일선물",
		"farewell":    "퇴사선물",
		"welcome":     "입사선물",
		"promotion":   "승진선물",
		"wedding":     "결혼선물",
		"anniversary": "기념일선물",
		"christmas":   "크리스마스선물",
		"parents_day": "어버이날선물",
	}
)

// Gift recommends presents matched to the recipient and occasion.
type Gift struct {
	deps *Deps
}

func NewGift(deps *Deps) *Gift { return &Gift{deps: deps} }

func (g *Gift) Mode() model.Mode { return model.ModeGift }

func (g *Gift) Execute(ctx context.Context, req *model.Requirements) (*model.RecommendationResult, error) {
	terms := giftQueryTerms(req)
	if n := g.deps.maxQueries(); len(terms) > n {
		terms = terms[:n]
	}

	queries := make([]search.Query, 0, len(terms))
	for _, term := range terms {
		queries = append(queries, baseQuery(req, term, g.deps.display(), search.SortRelevance))
	}

	var warnings []string
	items, err := g.deps.searchAll(ctx, queries)
	if err != nil {
		// keep the turn alive with an empty result; the rationale explains
		items = nil
		warnings = append(warnings, "상품 검색에 실패하여 추천 목록이 비어 있습니다")
	}

	rationale, warn := g.deps.rationale(ctx, model.ModeGift, req, capFor(items, g.deps.maxResults(), req.Budget))
	if warn != "" {
		warnings = append(warnings, warn)
	}
	if err != nil && warn != "" {
		return nil, err // both backends dead, nothing presentable
	}

	return g.deps.finish(model.ModeGift, req, items, rationale, req.Confidence, warnings, nil), nil
}

// giftQueryTerms builds provider search terms from recipient attributes,
// mirroring how a shopper would phrase them. Analyzer keywords lead when
// present; generic gift terms backstop an attribute-free request.
func giftQueryTerms(req *model.Requirements) []string {
	var terms []string
	terms = append(terms, req.SearchKeywords...)

	if r := req.Recipient; r != nil {
		if r.Gender != "" && r.AgeGroup != "" {
			if g, ok := genderKR[r.Gender]; ok {
				terms = append(terms, r.AgeGroup+" "+g+" 선물")
			}
		}
		if kr, ok := occasionQueryKR[r.Occasion]; ok {
			terms = append(terms, kr)
		} else if r.Occasion != "" {
			terms = append(terms, r.Occasion+" 선물")
		}
		if kr, ok := relationQueryKR[r.Relation]; ok {
			terms = append(terms, kr)
		}
	}
	for _, item := range req.Items {
		terms = append(terms, item+" 선물")
	}

	if len(terms) == 0 {
		terms = []string{"인기선물", "베스트선물", "추천선물"}
	}
	return uniqueTerms(terms)
}

func uniqueTerms(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := in[:0:0]
	for _, t := range in {
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// capFor gives the rationale prompt the same ranked view the user will see.
func capFor(items []model.ProductCandidate, n int, budget *model.BudgetRange) []model.ProductCandidate {
	ranked := rank(dedupe(items), budget)
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}
