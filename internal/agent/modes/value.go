package modes

import (
	"context"
	"sort"

	"github.com/shoppick/server/internal/agent/model"
	"github.com/shoppick/server/internal/search"
)

// ValueTier groups candidates into one of three price bands.
type ValueTier struct {
	Name       string   `json:"name"`
	MinPrice   int64    `json:"min_price"`
	MaxPrice   int64    `json:"max_price"`
	ProductIDs []string `json:"product_ids"`
}

// Value compares products on price-for-quality and splits the field into
// budget, standard, and premium price bands.
type Value struct {
	deps *Deps
}

func NewValue(deps *Deps) *Value { return &Value{deps: deps} }

func (v *Value) Mode() model.Mode { return model.ModeValue }

func (v *Value) Execute(ctx context.Context, req *model.Requirements) (*model.RecommendationResult, error) {
	terms := req.SearchKeywords
	if len(terms) == 0 {
		terms = req.Items
	}
	if n := v.deps.maxQueries(); len(terms) > n {
		terms = terms[:n]
	}

	// two passes per term: relevance finds the field, price-ascending pulls
	// in the cheap end the relevance ranking tends to bury
	queries := make([]search.Query, 0, len(terms)*2)
	for _, term := range terms {
		queries = append(queries,
			baseQuery(req, term, v.deps.display(), search.SortRelevance),
			baseQuery(req, term, v.deps.display(), search.SortPriceAsc),
		)
	}

	var warnings []string
	items, err := v.deps.searchAll(ctx, queries)
	if err != nil {
		items = nil
		warnings = append(warnings, "상품 검색에 실패하여 추천 목록이 비어 있습니다")
	}
	items = dedupe(items)

	rationale, warn := v.deps.rationale(ctx, model.ModeValue, req, capFor(items, v.deps.maxResults(), req.Budget))
	if warn != "" {
		warnings = append(warnings, warn)
	}
	if err != nil && warn != "" {
		return nil, err
	}

	var extras map[string]any
	if tiers := priceTiers(items); len(tiers) > 0 {
		extras = map[string]any{"tiers": tiers}
	}

	return v.deps.finish(model.ModeValue, req, items, rationale, req.Confidence, warnings, extras), nil
}

// priceTiers splits candidates into thirds by price: the cheapest third is
// the budget band, the middle third standard, the rest premium. Within each
// band the ids are ordered by the shared ranking score.
func priceTiers(items []model.ProductCandidate) []ValueTier {
	if len(items) < 3 {
		return nil
	}

	byPrice := make([]model.ProductCandidate, len(items))
	copy(byPrice, items)
	sort.SliceStable(byPrice, func(i, j int) bool { return byPrice[i].Price < byPrice[j].Price })

	low := byPrice[len(byPrice)/3].Price
	high := byPrice[2*len(byPrice)/3].Price

	tiers := []ValueTier{
		{Name: "budget", MaxPrice: low},
		{Name: "standard", MinPrice: low, MaxPrice: high},
		{Name: "premium", MinPrice: high},
	}

	ranked := rank(append([]model.ProductCandidate(nil), items...), nil)
	for _, it := range ranked {
		idx := 2
		switch {
		case it.Price < low:
			idx = 0
		case it.Price < high:
			idx = 1
		}
		if len(tiers[idx].ProductIDs) < 3 {
			tiers[idx].ProductIDs = append(tiers[idx].ProductIDs, it.ID)
		}
	}

	out := tiers[:0]
	for _, t := range tiers {
		if len(t.ProductIDs) > 0 {
			out = append(out, t)
		}
	}
	return out
}
