// Package modes implements the five recommendation agents. Each agent owns
// one strategy end to end: query construction, product search, candidate
// ranking, and the model-written rationale.
package modes

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/shoppick/server/internal/agent/model"
	"github.com/shoppick/server/internal/agent/prompts"
	"github.com/shoppick/server/internal/cache"
	"github.com/shoppick/server/internal/core/errx"
	"github.com/shoppick/server/internal/llm"
	"github.com/shoppick/server/internal/search"
	logx "github.com/shoppick/server/pkg/logger"
)

const searchCacheTTL = time.Hour

// Agent is one recommendation strategy. Execute consumes an analyzed,
// clarification-free Requirements and produces the terminal result for the
// turn. Partial backend failures downgrade into warnings; Execute errors
// only when nothing presentable can be produced.
type Agent interface {
	Mode() model.Mode
	Execute(ctx context.Context, req *model.Requirements) (*model.RecommendationResult, error)
}

// Deps bundles the backends every agent shares.
type Deps struct {
	Search search.Client
	LLM    llm.Client
	Cache  *cache.Cache
	Cfg    model.AgentConfig
}

func (d *Deps) maxResults() int {
	if d.Cfg.MaxResults > 0 {
		return d.Cfg.MaxResults
	}
	return 6
}

func (d *Deps) minCandidates() int {
	if d.Cfg.MinCandidates > 0 {
		return d.Cfg.MinCandidates
	}
	return 3
}

func (d *Deps) display() int {
	if d.Cfg.SearchDisplay > 0 {
		return d.Cfg.SearchDisplay
	}
	return 15
}

func (d *Deps) maxQueries() int {
	if d.Cfg.MaxQueries > 0 {
		return d.Cfg.MaxQueries
	}
	return 3
}

// cachedSearch runs one provider query through the shared cache so repeated
// identical searches within the TTL hit the backend once.
func (d *Deps) cachedSearch(ctx context.Context, q search.Query) ([]model.ProductCandidate, error) {
	fp := cache.Fingerprint("search", map[string]any{
		"term":      q.Term,
		"display":   q.Display,
		"sort":      q.Sort,
		"min_price": q.MinPrice,
		"max_price": q.MaxPrice,
		"no_used":   q.ExcludeUsed,
		"no_rental": q.ExcludeRental,
	})
	v, err := d.Cache.GetOrCompute(ctx, fp, searchCacheTTL, func(ctx context.Context) (any, error) {
		return d.Search.Search(ctx, q)
	})
	if err != nil {
		return nil, err
	}
	items, ok := v.([]model.ProductCandidate)
	if !ok {
		return nil, errx.Perm(errx.KindCache, nil, "unexpected cached search type")
	}
	return items, nil
}

// searchAll issues the queries in order and collects candidates across them.
// Individual query failures are tolerated as long as at least one succeeds;
// the last error is returned when every query fails.
func (d *Deps) searchAll(ctx context.Context, queries []search.Query) ([]model.ProductCandidate, error) {
	var (
		all     []model.ProductCandidate
		lastErr error
		failed  int
	)
	for _, q := range queries {
		items, err := d.cachedSearch(ctx, q)
		if err != nil {
			lastErr = err
			failed++
			logx.Warn().Str("term", q.Term).Err(err).Msg("Product search query failed")
			continue
		}
		all = append(all, items...)
	}
	if failed == len(queries) && lastErr != nil {
		return nil, lastErr
	}
	return all, nil
}

// rationale asks the model to explain the ranked items. A dead rationale
// backend degrades to a templated fallback plus a warning instead of
// failing the turn.
func (d *Deps) rationale(ctx context.Context, mode model.Mode, req *model.Requirements, items []model.ProductCandidate) (text string, warning string) {
	out, err := d.LLM.Complete(ctx, prompts.RationaleSystem(mode), prompts.RationaleUser(req, items))
	if err == nil && out != "" {
		return out, ""
	}
	if err != nil {
		logx.Warn().Str("mode", string(mode)).Err(err).Msg("Rationale generation failed, using fallback")
	}
	return fallbackRationale(mode, items), "추천 설명 생성에 실패하여 기본 설명으로 대체했습니다"
}

func fallbackRationale(mode model.Mode, items []model.ProductCandidate) string {
	if len(items) == 0 {
		return "조건에 맞는 상품을 찾지 못했습니다. 검색어나 예산을 바꿔서 다시 시도해 주세요."
	}
	return fmt.Sprintf("조건에 맞는 상품 %d개를 찾았습니다. 가장 적합한 상품은 %s(%d원)입니다.",
		len(items), items[0].Title, items[0].Price)
}

// dedupe drops candidates whose id was already seen, keeping first
// occurrence order.
func dedupe(items []model.ProductCandidate) []model.ProductCandidate {
	seen := make(map[string]struct{}, len(items))
	out := items[:0:0]
	for _, it := range items {
		if it.ID == "" {
			continue
		}
		if _, dup := seen[it.ID]; dup {
			continue
		}
		seen[it.ID] = struct{}{}
		out = append(out, it)
	}
	return out
}

// score is the shared ranking function: rating dominates, review volume
// counts on a log scale so a thousand reviews does not drown everything,
// and budget fit breaks the rest. Deterministic for equal inputs.
func score(it model.ProductCandidate, budget *model.BudgetRange) float64 {
	s := 0.5 * (it.Rating / 5.0)
	s += 0.3 * math.Min(math.Log1p(float64(it.ReviewCount))/math.Log1p(1000), 1.0)
	s += 0.2 * priceFit(it.Price, budget)
	return s
}

// priceFit is 1 inside the budget window, neutral without a budget, and
// decays with the relative overshoot outside it.
func priceFit(price int64, budget *model.BudgetRange) float64 {
	ceiling := budget.Ceiling()
	if ceiling <= 0 {
		return 0.5
	}
	if price <= ceiling {
		if budget.MinPrice > 0 && price < budget.MinPrice {
			return 0.5
		}
		return 1.0
	}
	over := float64(price-ceiling) / float64(ceiling)
	return math.Max(0, 1.0-over)
}

// rank orders candidates by score descending, breaking ties by price then
// id so equal inputs always produce the same order.
func rank(items []model.ProductCandidate, budget *model.BudgetRange) []model.ProductCandidate {
	sort.SliceStable(items, func(i, j int) bool {
		si, sj := score(items[i], budget), score(items[j], budget)
		if si != sj {
			return si > sj
		}
		if items[i].Price != items[j].Price {
			return items[i].Price < items[j].Price
		}
		return items[i].ID < items[j].ID
	})
	return items
}

// finish assembles the terminal result: dedupe, rank, cap, and flag thin
// result sets.
func (d *Deps) finish(mode model.Mode, req *model.Requirements, items []model.ProductCandidate, rationale string, confidence float64, warnings []string, extras map[string]any) *model.RecommendationResult {
	items = rank(dedupe(items), req.Budget)
	if n := d.maxResults(); len(items) > n {
		items = items[:n]
	}
	if len(items) < d.minCandidates() {
		warnings = append(warnings, fmt.Sprintf("후보 상품이 %d개뿐입니다. 검색 조건을 넓혀 보세요.", len(items)))
	}
	return &model.RecommendationResult{
		Mode:       mode,
		Items:      items,
		Rationale:  rationale,
		Confidence: confidence,
		Warnings:   warnings,
		Extras:     extras,
	}
}

// baseQuery applies the request's budget and the always-on marketplace
// hygiene filters to a search term.
func baseQuery(req *model.Requirements, term string, display int, sortOrder string) search.Query {
	q := search.Query{
		Term:          term,
		Display:       display,
		Sort:          sortOrder,
		ExcludeUsed:   true,
		ExcludeRental: true,
	}
	if req.Budget != nil {
		q.MinPrice = req.Budget.MinPrice
		q.MaxPrice = req.Budget.Ceiling()
	}
	return q
}

// All constructs one agent per dispatchable mode.
func All(deps *Deps) map[model.Mode]Agent {
	return map[model.Mode]Agent{
		model.ModeGift:   NewGift(deps),
		model.ModeValue:  NewValue(deps),
		model.ModeBundle: NewBundle(deps),
		model.ModeReview: NewReview(deps),
		model.ModeTrend:  NewTrend(deps),
	}
}
