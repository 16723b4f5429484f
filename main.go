package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shoppick/server/internal/agent/analyzer"
	"github.com/shoppick/server/internal/agent/model"
	"github.com/shoppick/server/internal/agent/modes"
	"github.com/shoppick/server/internal/agent/orchestrator"
	"github.com/shoppick/server/internal/agent/session"
	"github.com/shoppick/server/internal/cache"
	"github.com/shoppick/server/internal/core"
	"github.com/shoppick/server/internal/health"
	"github.com/shoppick/server/internal/llm"
	"github.com/shoppick/server/internal/search"
	logx "github.com/shoppick/server/pkg/logger"
	pkgredis "github.com/shoppick/server/pkg/redis"
)

// AppConfig defines all configurable parameters for the engine, sourced
// from environment variables (loaded from .env for local runs).
type AppConfig struct {
	Environment string `envconfig:"ENVIRONMENT" default:"development"`

	// Infrastructure
	Redis       pkgredis.Config
	MetricsAddr string `envconfig:"METRICS_ADDR" default:":9090"`

	// LLM provider
	APIKey  string `envconfig:"GEMINI_API_KEY" required:"true"`
	BaseURL string `envconfig:"GEMINI_BASE_URL"`

	// Engine configs
	Analyzer     model.AnalyzerModelConfig
	Rationale    model.RationaleModelConfig
	Session      model.SessionConfig
	Cache        model.CacheConfig
	Search       model.SearchConfig
	Agent        model.AgentConfig
	Orchestrator model.OrchestratorConfig
}

func main() {
	ctx := context.Background()

	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: Could not load .env file: %v", err)
	}

	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("Failed to process environment config: %v", err)
	}

	env := core.ParseEnvironment(cfg.Environment)
	logx.Init(logx.LoggerOpts{Environment: env})

	// session store: redis when configured, in-process otherwise
	var store session.Store
	switch cfg.Session.Backend {
	case "redis":
		rdb := cfg.Redis.MustNew()
		defer rdb.Close()
		store = session.NewRedis(rdb, cfg.Session.TTL)
		logx.Info().Msg("Using Redis session store")
	default:
		mem := session.NewMemory(cfg.Session.TTL)
		mem.StartSweeper(cfg.Session.SweepInterval)
		defer mem.Close()
		store = mem
		logx.Info().Msg("Using in-memory session store")
	}

	sharedCache := cache.New(cfg.Cache.TTL, cfg.Cache.MaxEntries)

	analysisModel, err := llm.NewGemini(ctx, llm.GeminiConfig{
		APIKey:      cfg.APIKey,
		BaseURL:     cfg.BaseURL,
		Model:       cfg.Analyzer.Model,
		Temperature: cfg.Analyzer.Temperature,
		MaxTokens:   cfg.Analyzer.MaxTokens,
	})
	if err != nil {
		log.Fatalf("Failed to initialise analysis model: %v", err)
	}
	rationaleModel, err := llm.NewGemini(ctx, llm.GeminiConfig{
		APIKey:      cfg.APIKey,
		BaseURL:     cfg.BaseURL,
		Model:       cfg.Rationale.Model,
		Temperature: cfg.Rationale.Temperature,
		MaxTokens:   cfg.Rationale.MaxTokens,
	})
	if err != nil {
		log.Fatalf("Failed to initialise rationale model: %v", err)
	}

	naver, err := search.NewNaver(search.NaverConfig{
		ClientID:     cfg.Search.ClientID,
		ClientSecret: cfg.Search.ClientSecret,
		BaseURL:      cfg.Search.BaseURL,
		Timeout:      cfg.Search.Timeout,
		MaxRetries:   cfg.Search.MaxRetries,
	})
	if err != nil {
		log.Fatalf("Failed to initialise search client: %v", err)
	}

	deps := &modes.Deps{
		Search: naver,
		LLM:    llm.WithRetry(rationaleModel, llm.DefaultRetryConfig()),
		Cache:  sharedCache,
		Cfg:    cfg.Agent,
	}

	engine := orchestrator.New(
		analyzer.New(llm.WithRetry(analysisModel, llm.DefaultRetryConfig()), sharedCache, cfg.Analyzer),
		modes.All(deps),
		store,
		cfg.Orchestrator,
	)

	checker := &health.Checker{
		Store:  store,
		LLM:    health.BackendStatus{Provider: analysisModel.Name(), Configured: cfg.APIKey != ""},
		Search: health.BackendStatus{Provider: naver.Name(), Configured: cfg.Search.ClientID != ""},
	}
	go serveMetrics(cfg.MetricsAddr, checker, engine)

	runDemo(ctx, engine, sharedCache)
}

// serveMetrics exposes Prometheus metrics, the readiness probe, and the
// state-machine topology on a side port.
func serveMetrics(addr string, checker *health.Checker, engine *orchestrator.Orchestrator) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		probes, err := checker.Check(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(probes)
	})
	mux.HandleFunc("/topology", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(engine.Topology())
	})
	mux.HandleFunc("/topology/mermaid", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, orchestrator.Describe().Mermaid())
	})

	logx.Info().Str("addr", addr).Msg("Serving metrics and health probes")
	if err := http.ListenAndServe(addr, mux); err != nil {
		logx.Error().Err(err).Msg("Metrics listener stopped")
	}
}

func runDemo(ctx context.Context, engine *orchestrator.Orchestrator, sharedCache *cache.Cache) {
	fmt.Println("Testing shopping recommendation engine...")

	testTurns := []struct {
		description string
		utterance   string
	}{
		{
			description: "Gift request with recipient and budget",
			utterance:   "30대 남자 동료 퇴사 선물 5만원",
		},
		{
			description: "Value comparison for a category",
			utterance:   "가성비 무선 키보드 추천",
		},
		{
			description: "Bundle within a total budget",
			utterance:   "노트북+마우스+키보드 100만원에 맞춰줘",
		},
		{
			description: "Purchase verification",
			utterance:   "에어프라이어 사도 돼?",
		},
		{
			description: "Trend discovery",
			utterance:   "요즘 인기 있는 가전?",
		},
	}

	sessionID := ""
	for i, test := range testTurns {
		fmt.Printf("\nTurn %d: %s\n", i+1, test.description)
		fmt.Printf("Utterance: %q\n", test.utterance)

		resp, err := engine.ProcessTurn(ctx, orchestrator.Request{
			SessionID: sessionID,
			Utterance: test.utterance,
		})
		if err != nil {
			log.Printf("Turn %d failed (%s): %v", i+1, resp.ErrorKind, err)
			continue
		}
		sessionID = resp.SessionID

		switch resp.State {
		case orchestrator.StateClarificationNeeded:
			fmt.Printf("Clarification: %s\n", resp.Clarification)
		case orchestrator.StateCompleted:
			fmt.Printf("Mode: %s (%d items, %.0fms)\n", resp.Mode, len(resp.Result.Items), float64(resp.Elapsed.Milliseconds()))
			fmt.Printf("Rationale: %s\n", resp.Result.Rationale)
			for _, item := range resp.Result.Items {
				fmt.Printf("  - %s (%d원, %s)\n", item.Title, item.Price, item.MallName)
			}
			for _, warn := range resp.Result.Warnings {
				fmt.Printf("  ! %s\n", warn)
			}
		}

		health.SetCacheStats(sharedCache.Stats())
		time.Sleep(500 * time.Millisecond)
	}

	fmt.Println("\nAll turns completed.")
}
