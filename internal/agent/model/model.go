package model

import (
	"strings"
	"time"
)

// Mode identifies one of the five recommendation strategies.
type Mode string

const (
	ModeGift    Mode = "GIFT"
	ModeValue   Mode = "VALUE"
	ModeBundle  Mode = "BUNDLE"
	ModeReview  Mode = "REVIEW"
	ModeTrend   Mode = "TREND"
	ModeUnknown Mode = "UNKNOWN"
)

// Modes lists the dispatchable modes in routing-priority order. When two
// classifications tie on confidence the earlier mode wins; REVIEW and GIFT
// come first because their trigger phrases are the narrowest.
var Modes = []Mode{ModeReview, ModeGift, ModeBundle, ModeValue, ModeTrend}

// ParseMode normalises a classifier label. Anything unrecognised maps to
// UNKNOWN so a hallucinated label never routes.
func ParseMode(v string) Mode {
	switch Mode(strings.ToUpper(strings.TrimSpace(v))) {
	case ModeGift:
		return ModeGift
	case ModeValue:
		return ModeValue
	case ModeBundle:
		return ModeBundle
	case ModeReview:
		return ModeReview
	case ModeTrend:
		return ModeTrend
	default:
		return ModeUnknown
	}
}

// Dispatchable reports whether the mode routes to an agent.
func (m Mode) Dispatchable() bool {
	return m != ModeUnknown && m != ""
}

// ModeScore pairs a candidate mode with its classification confidence.
type ModeScore struct {
	Mode       Mode    `json:"mode"`
	Confidence float64 `json:"confidence"`
}

// Slot names used in MissingSlots and clarification prompts.
const (
	SlotRecipient = "recipient"
	SlotBudget    = "budget"
	SlotItems     = "items"
)

// BudgetRange holds extracted budget constraints in won.
type BudgetRange struct {
	MinPrice    int64 `json:"min_price,omitempty"`
	MaxPrice    int64 `json:"max_price,omitempty"`
	TotalBudget int64 `json:"total_budget,omitempty"`
	Flexible    bool  `json:"flexible"`
}

// Empty reports whether no budget information was extracted.
func (b *BudgetRange) Empty() bool {
	return b == nil || (b.MinPrice == 0 && b.MaxPrice == 0 && b.TotalBudget == 0)
}

// Ceiling returns the effective upper bound, preferring an explicit total.
func (b *BudgetRange) Ceiling() int64 {
	if b == nil {
		return 0
	}
	if b.TotalBudget > 0 {
		return b.TotalBudget
	}
	return b.MaxPrice
}

// Recipient describes who a gift is for.
type Recipient struct {
	Relation string `json:"relation,omitempty"`
	Gender   string `json:"gender,omitempty"`
	AgeGroup string `json:"age_group,omitempty"`
	Occasion string `json:"occasion,omitempty"`
}

// Empty reports whether no recipient information was extracted.
func (r *Recipient) Empty() bool {
	return r == nil || (r.Relation == "" && r.Gender == "" && r.AgeGroup == "" && r.Occasion == "")
}

// Requirements is the analyzer's output for one turn: the classified mode
// plus every slot extracted from the conversation. Immutable after creation;
// consumed by exactly one agent.
type Requirements struct {
	RawText        string       `json:"raw_text"`
	Mode           Mode         `json:"mode"`
	Confidence     float64      `json:"confidence"`
	Secondary      []ModeScore  `json:"secondary,omitempty"`
	Budget         *BudgetRange `json:"budget,omitempty"`
	Recipient      *Recipient   `json:"recipient,omitempty"`
	Items          []string     `json:"items,omitempty"`
	Quantity       int          `json:"quantity,omitempty"`
	SearchKeywords []string     `json:"search_keywords,omitempty"`
	MissingSlots   []string     `json:"missing_slots,omitempty"`
}

// NeedsClarification reports whether this turn cannot be routed as-is.
func (r *Requirements) NeedsClarification() bool {
	return r.Mode == ModeUnknown || len(r.MissingSlots) > 0
}

// ProductCandidate is one search hit from the shopping provider.
// Read-only for agents.
type ProductCandidate struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Link        string         `json:"link"`
	Image       string         `json:"image,omitempty"`
	Price       int64          `json:"price"`
	HighPrice   int64          `json:"high_price,omitempty"`
	MallName    string         `json:"mall_name,omitempty"`
	Brand       string         `json:"brand,omitempty"`
	Maker       string         `json:"maker,omitempty"`
	Rating      float64        `json:"rating,omitempty"`
	ReviewCount int            `json:"review_count,omitempty"`
	Categories  []string       `json:"categories,omitempty"`
	Raw         map[string]any `json:"raw,omitempty"`
	FetchedAt   time.Time      `json:"fetched_at"`
}

// RecommendationResult is the terminal artifact of one agent execution.
// Items are ranked relevance-descending. Never mutated after creation.
type RecommendationResult struct {
	Mode       Mode               `json:"mode"`
	Items      []ProductCandidate `json:"items"`
	Rationale  string             `json:"rationale"`
	Confidence float64            `json:"confidence"`
	Warnings   []string           `json:"warnings,omitempty"`
	// Extras carries mode-specific payloads: value tiers, bundle
	// combinations, review analysis.
	Extras map[string]any `json:"extras,omitempty"`
}

// Turn records one request/response cycle within a session. Clarification
// turns carry no result summary and count toward the session's
// clarification cap.
type Turn struct {
	Utterance     string        `json:"utterance"`
	Requirements  *Requirements `json:"requirements,omitempty"`
	Mode          Mode          `json:"mode,omitempty"`
	ResultSummary string        `json:"result_summary,omitempty"`
	Clarification bool          `json:"clarification,omitempty"`
	At            time.Time     `json:"at"`
}

// Session holds the conversational state for one session id.
// Turns are append-only; the id is immutable once created.
type Session struct {
	ID           string    `json:"session_id"`
	Turns        []Turn    `json:"turns"`
	ClarifyCount int       `json:"clarify_count"`
	CreatedAt    time.Time `json:"created_at"`
	LastActiveAt time.Time `json:"last_active_at"`
}

// RecentUtterances returns the last n user utterances in order, for
// conversation-context classification.
func (s *Session) RecentUtterances(n int) []string {
	if s == nil || n <= 0 {
		return nil
	}
	turns := s.Turns
	if len(turns) > n {
		turns = turns[len(turns)-n:]
	}
	out := make([]string, 0, len(turns))
	for _, t := range turns {
		if t.Utterance != "" {
			out = append(out, t.Utterance)
		}
	}
	return out
}
