// Package parsers decodes model completions into typed structures. Model
// output is treated as untrusted: fenced, truncated, or mislabeled JSON is
// tolerated where possible and rejected with a typed error where not.
package parsers

import (
	"encoding/json"
	"strings"

	"github.com/shoppick/server/internal/agent/model"
	"github.com/shoppick/server/internal/core/errx"
)

// ExtractJSON pulls the first JSON object out of a completion, stripping
// markdown code fences the model may wrap it in.
func ExtractJSON(raw string) (string, error) {
	s := strings.TrimSpace(raw)

	if i := strings.Index(s, "```"); i >= 0 {
		s = s[i+3:]
		// drop a language tag like "json" on the fence line
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			first := strings.TrimSpace(s[:nl])
			if first == "json" || first == "JSON" || first == "" {
				s = s[nl+1:]
			}
		}
		if j := strings.Index(s, "```"); j >= 0 {
			s = s[:j]
		}
	}

	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return "", errx.Perm(errx.KindAnalysis, nil, "completion contains no json object")
	}
	return s[start : end+1], nil
}

type analysisPayload struct {
	Mode       string  `json:"mode"`
	Confidence float64 `json:"confidence"`
	Secondary  []struct {
		Mode       string  `json:"mode"`
		Confidence float64 `json:"confidence"`
	} `json:"secondary"`
	Budget         *model.BudgetRange `json:"budget"`
	Recipient      *model.Recipient   `json:"recipient"`
	Items          []string           `json:"items"`
	Quantity       int                `json:"quantity"`
	SearchKeywords []string           `json:"search_keywords"`
}

// ParseAnalysis decodes one classification completion into Requirements.
// Unrecognized mode labels become UNKNOWN rather than an error so a
// hallucinated label degrades to a clarification instead of a failure.
func ParseAnalysis(raw string) (*model.Requirements, error) {
	body, err := ExtractJSON(raw)
	if err != nil {
		return nil, err
	}

	var p analysisPayload
	if err := json.Unmarshal([]byte(body), &p); err != nil {
		return nil, errx.Perm(errx.KindAnalysis, err, "decoding analysis completion failed")
	}

	req := &model.Requirements{
		Mode:           model.ParseMode(p.Mode),
		Confidence:     clamp01(p.Confidence),
		Items:          cleanList(p.Items),
		Quantity:       max(p.Quantity, 0),
		SearchKeywords: cleanList(p.SearchKeywords),
	}

	for _, s := range p.Secondary {
		m := model.ParseMode(s.Mode)
		if !m.Dispatchable() || m == req.Mode {
			continue
		}
		req.Secondary = append(req.Secondary, model.ModeScore{
			Mode:       m,
			Confidence: clamp01(s.Confidence),
		})
	}

	if !p.Budget.Empty() {
		b := *p.Budget
		if b.MinPrice < 0 {
			b.MinPrice = 0
		}
		if b.MaxPrice < 0 {
			b.MaxPrice = 0
		}
		if b.TotalBudget < 0 {
			b.TotalBudget = 0
		}
		if b.MinPrice > 0 && b.MaxPrice > 0 && b.MinPrice > b.MaxPrice {
			b.MinPrice, b.MaxPrice = b.MaxPrice, b.MinPrice
		}
		req.Budget = &b
	}
	if !p.Recipient.Empty() {
		r := *p.Recipient
		req.Recipient = &r
	}

	return req, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// cleanList trims entries and drops empties and duplicates, keeping order.
func cleanList(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
