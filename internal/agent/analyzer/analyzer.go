// Package analyzer classifies a shopping utterance into one of the five
// recommendation modes and extracts the slots the mode needs, in a single
// model call over the session's recent conversation.
package analyzer

import (
	"context"
	"strings"
	"time"

	"github.com/shoppick/server/internal/agent/model"
	"github.com/shoppick/server/internal/agent/parsers"
	"github.com/shoppick/server/internal/agent/prompts"
	"github.com/shoppick/server/internal/cache"
	"github.com/shoppick/server/internal/core/errx"
	"github.com/shoppick/server/internal/llm"
	logx "github.com/shoppick/server/pkg/logger"
)

// analysisCacheTTL is shorter than the search cache TTL: identical context
// windows recur within a session but rarely across them.
const analysisCacheTTL = 10 * time.Minute

// Analyzer runs the classification model behind the request cache.
type Analyzer struct {
	llm   llm.Client
	cache *cache.Cache
	cfg   model.AnalyzerModelConfig
}

func New(client llm.Client, c *cache.Cache, cfg model.AnalyzerModelConfig) *Analyzer {
	if cfg.ConfidenceThreshold <= 0 {
		cfg.ConfidenceThreshold = 0.6
	}
	if cfg.ContextTurns <= 0 {
		cfg.ContextTurns = 5
	}
	return &Analyzer{llm: client, cache: c, cfg: cfg}
}

// Analyze classifies rawText in the context of the session's recent turns.
// Below-threshold classifications come back as UNKNOWN; missing required
// slots for the winning mode are listed in MissingSlots. Both conditions
// surface through Requirements, not as errors. Errors mean the input was
// unusable or the model call or its output decoding failed.
func (a *Analyzer) Analyze(ctx context.Context, rawText string, sess *model.Session) (*model.Requirements, error) {
	rawText = strings.TrimSpace(rawText)
	if rawText == "" {
		return nil, errx.Perm(errx.KindAnalysis, nil, "empty utterance")
	}

	history := sess.RecentUtterances(a.cfg.ContextTurns)

	system := prompts.AnalysisSystem()
	user := prompts.AnalysisUser(rawText, history)

	completion, err := a.complete(ctx, system, user)
	if err != nil {
		return nil, err
	}

	req, err := parsers.ParseAnalysis(completion)
	if err != nil {
		return nil, err
	}
	req.RawText = rawText

	if req.Mode.Dispatchable() && req.Confidence < a.cfg.ConfidenceThreshold {
		logx.Debug().
			Str("mode", string(req.Mode)).
			Float64("confidence", req.Confidence).
			Float64("threshold", a.cfg.ConfidenceThreshold).
			Msg("Classification below threshold, demoting to UNKNOWN")
		req.Secondary = append([]model.ModeScore{{Mode: req.Mode, Confidence: req.Confidence}}, req.Secondary...)
		req.Mode = model.ModeUnknown
	}

	req.MissingSlots = missingSlots(req)

	logx.Info().
		Str("mode", string(req.Mode)).
		Float64("confidence", req.Confidence).
		Strs("missing_slots", req.MissingSlots).
		Msg("Analyzed shopping request")

	return req, nil
}

func (a *Analyzer) complete(ctx context.Context, system, user string) (string, error) {
	fp := cache.Fingerprint("analysis", map[string]any{
		"model": a.llm.Name(),
		"user":  user,
	})

	v, err := a.cache.GetOrCompute(ctx, fp, analysisCacheTTL, func(ctx context.Context) (any, error) {
		return a.llm.Complete(ctx, system, user)
	})
	if err != nil {
		if errx.IsPermanent(err) {
			return "", errx.Perm(errx.KindAnalysis, err, "analysis model call rejected")
		}
		return "", errx.New(errx.KindAnalysis, err, "analysis model call failed")
	}
	completion, ok := v.(string)
	if !ok {
		return "", errx.Perm(errx.KindAnalysis, nil, "unexpected cached analysis type")
	}
	return completion, nil
}

// missingSlots lists the required slots the winning mode still lacks.
// UNKNOWN needs nothing; it already forces a clarification on its own.
func missingSlots(req *model.Requirements) []string {
	var missing []string
	switch req.Mode {
	case model.ModeGift:
		// gift search works without items; who and how much are essential
		if req.Recipient == nil || req.Recipient.Relation == "" {
			missing = append(missing, model.SlotRecipient)
		}
		if req.Budget.Empty() {
			missing = append(missing, model.SlotBudget)
		}
	case model.ModeValue, model.ModeReview:
		if len(req.Items) == 0 {
			missing = append(missing, model.SlotItems)
		}
	case model.ModeBundle:
		if len(req.Items) < 2 {
			missing = append(missing, model.SlotItems)
		}
		if req.Budget == nil || req.Budget.TotalBudget == 0 {
			missing = append(missing, model.SlotBudget)
		}
	}
	return missing
}

// ClarificationQuestion phrases the follow-up question for one missing slot.
func ClarificationQuestion(slot string, mode model.Mode) string {
	switch slot {
	case model.SlotRecipient:
		return "선물 받으실 분이 누구인가요? (예: 친구, 동료, 부모님)"
	case model.SlotBudget:
		return "예산이 어느 정도인가요? (예: 5만원, 10만원)"
	case model.SlotItems:
		if mode == model.ModeBundle {
			return "어떤 품목들을 함께 구매하실 건가요?"
		}
		return "어떤 종류의 제품을 찾으시나요?"
	default:
		return "조금 더 자세히 말씀해 주시겠어요? 어떤 쇼핑을 도와드릴까요?"
	}
}
