package modes

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/shoppick/server/internal/agent/model"
	"github.com/shoppick/server/internal/search"
	logx "github.com/shoppick/server/pkg/logger"
)

const (
	maxBundleCategories = 5
	// beamWidth bounds the combination search; candidate sets per category
	// are capped to the same width so the search stays small.
	beamWidth = 8
)

// BundleItem is one category slot in an assembled combination.
type BundleItem struct {
	Category  string `json:"category"`
	ProductID string `json:"product_id"`
	Price     int64  `json:"price"`
}

// BundleCombination is the chosen one-product-per-category selection.
type BundleCombination struct {
	Items      []BundleItem `json:"items"`
	TotalPrice int64        `json:"total_price"`
	BudgetFit  bool         `json:"budget_fit"`
}

// Bundle assembles one product per requested category so the combined price
// lands as close to the total budget as possible.
type Bundle struct {
	deps *Deps
}

func NewBundle(deps *Deps) *Bundle { return &Bundle{deps: deps} }

func (b *Bundle) Mode() model.Mode { return model.ModeBundle }

func (b *Bundle) Execute(ctx context.Context, req *model.Requirements) (*model.RecommendationResult, error) {
	categories := req.Items
	if len(categories) > maxBundleCategories {
		categories = categories[:maxBundleCategories]
	}

	budget := req.Budget.Ceiling()

	// categories are independent, search them concurrently; one failed
	// category must not cancel the others, so errors are collected rather
	// than returned to the group
	perCategory := make([][]model.ProductCandidate, len(categories))
	searchErrs := make([]error, len(categories))
	var g errgroup.Group
	for i, category := range categories {
		g.Go(func() error {
			items, err := b.deps.cachedSearch(ctx, baseQuery(req, category, b.deps.display(), search.SortRelevance))
			if err != nil {
				logx.Warn().Str("category", category).Err(err).Msg("Bundle category search failed")
				searchErrs[i] = err
				return nil
			}
			perCategory[i] = dedupe(items)
			return nil
		})
	}
	_ = g.Wait()

	var searchErr error
	for _, err := range searchErrs {
		if err != nil {
			searchErr = err
			break
		}
	}

	var warnings []string
	allEmpty := true
	for i, items := range perCategory {
		if len(items) == 0 {
			warnings = append(warnings, fmt.Sprintf("품목 '%s'의 검색 결과가 없습니다", categories[i]))
			continue
		}
		allEmpty = false
	}

	var (
		combo  *BundleCombination
		chosen []model.ProductCandidate
	)
	if !allEmpty {
		combo, chosen = assembleBundle(categories, perCategory, budget)
		if combo != nil && !combo.BudgetFit {
			warnings = append(warnings, fmt.Sprintf("총액 %d원이 예산 %d원을 초과합니다", combo.TotalPrice, budget))
		}
	} else if searchErr == nil {
		searchErr = fmt.Errorf("no candidates for any bundle category")
	}

	rationale, warn := b.deps.rationale(ctx, model.ModeBundle, req, chosen)
	if warn != "" {
		warnings = append(warnings, warn)
	}
	if allEmpty {
		if warn != "" {
			return nil, searchErr
		}
		warnings = append(warnings, "상품 검색에 실패하여 조합을 만들지 못했습니다")
	}

	var extras map[string]any
	if combo != nil {
		extras = map[string]any{"combination": combo}
	}

	res := &model.RecommendationResult{
		Mode:       model.ModeBundle,
		Items:      chosen,
		Rationale:  rationale,
		Confidence: req.Confidence,
		Warnings:   warnings,
		Extras:     extras,
	}
	return res, nil
}

type beamState struct {
	picks []int // candidate index per filled category
	total int64
}

// assembleBundle picks one candidate per non-empty category, minimizing the
// distance between the combined price and the budget with a bounded beam.
// Candidate lists are pre-sorted so equal inputs yield the same combination.
func assembleBundle(categories []string, perCategory [][]model.ProductCandidate, budget int64) (*BundleCombination, []model.ProductCandidate) {
	type slot struct {
		category string
		items    []model.ProductCandidate
	}

	var slots []slot
	for i, items := range perCategory {
		if len(items) == 0 {
			continue
		}
		sorted := append([]model.ProductCandidate(nil), items...)
		sort.SliceStable(sorted, func(a, b int) bool {
			if sorted[a].Price != sorted[b].Price {
				return sorted[a].Price < sorted[b].Price
			}
			return sorted[a].ID < sorted[b].ID
		})
		if len(sorted) > beamWidth {
			sorted = sorted[:beamWidth]
		}
		slots = append(slots, slot{category: categories[i], items: sorted})
	}
	if len(slots) == 0 {
		return nil, nil
	}

	beam := []beamState{{}}
	for _, s := range slots {
		next := make([]beamState, 0, len(beam)*len(s.items))
		for _, st := range beam {
			for ci, it := range s.items {
				picks := append(append([]int(nil), st.picks...), ci)
				next = append(next, beamState{picks: picks, total: st.total + it.Price})
			}
		}
		sort.SliceStable(next, func(a, b int) bool {
			da, db := budgetDistance(next[a].total, budget), budgetDistance(next[b].total, budget)
			if da != db {
				return da < db
			}
			return next[a].total < next[b].total
		})
		if len(next) > beamWidth {
			next = next[:beamWidth]
		}
		beam = next
	}

	best := beam[0]
	combo := &BundleCombination{TotalPrice: best.total, BudgetFit: budget <= 0 || best.total <= budget}
	chosen := make([]model.ProductCandidate, 0, len(slots))
	for i, s := range slots {
		it := s.items[best.picks[i]]
		combo.Items = append(combo.Items, BundleItem{Category: s.category, ProductID: it.ID, Price: it.Price})
		chosen = append(chosen, it)
	}
	return combo, chosen
}

// budgetDistance scores a combination total against the budget. Without a
// budget, cheaper is better; overshoot is penalized double so a fitting
// combination beats an equally distant overshooting one.
func budgetDistance(total, budget int64) int64 {
	if budget <= 0 {
		return total
	}
	if total <= budget {
		return budget - total
	}
	return 2 * (total - budget)
}
