// Package router classifies a query and emits a retrieval plan: which stores
// to consult, with what inputs, at what hop depth.
//
// 엔진은 전략 하나만 활성화한다. 모든 전략은 LLM 응답이 없어도 결정적으로
// 동작해야 한다: 각 전략마다 규칙 기반 폴백이 있고, 폴백 경로는
// RouterOutput.Actual = "fallback" 으로 표시된다. LLM 파싱 실패는 재시도
// 없이 즉시 폴백이다.
package router

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/gamerag/extract"
	"github.com/BaSui01/gamerag/llm"
	"github.com/BaSui01/gamerag/types"
)

// Config 路由配置
type Config struct {
	// 활성 전략
	Strategy types.StrategyName
	// LLM 호출 제한 시간
	LLMTimeout time.Duration
	// 분류 온도 (<= 0.2 유지)
	Temperature float32
	// 프롬프트 토큰 예산
	PromptTokenBudget int
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Strategy:          types.StrategyHop,
		LLMTimeout:        3 * time.Second,
		Temperature:       0,
		PromptTokenBudget: 512,
	}
}

// Router 查询路由器
type Router struct {
	provider  llm.Provider // nil = 纯规则模式
	extractor *extract.Extractor
	strategy  types.StrategyName
	cfg       Config
	budget    *promptBudget
	logger    *zap.Logger
}

// New 创建路由器。provider 可为 nil（THRESHOLD / ENTITY_SENTENCE 等无 LLM 部署）。
func New(provider llm.Provider, extractor *extract.Extractor, cfg Config, logger *zap.Logger) (*Router, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if extractor == nil {
		return nil, types.NewError(types.ErrCodeConfiguration, "router requires an extractor")
	}

	known := false
	for _, s := range types.KnownStrategies() {
		if cfg.Strategy == s {
			known = true
			break
		}
	}
	if !known {
		return nil, types.NewError(types.ErrCodeConfiguration,
			fmt.Sprintf("unknown strategy %q", cfg.Strategy))
	}
	if cfg.LLMTimeout <= 0 {
		cfg.LLMTimeout = 3 * time.Second
	}

	return &Router{
		provider:  provider,
		extractor: extractor,
		strategy:  cfg.Strategy,
		cfg:       cfg,
		budget:    newPromptBudget(cfg.PromptTokenBudget),
		logger:    logger.With(zap.String("component", "router"), zap.String("strategy", string(cfg.Strategy))),
	}, nil
}

// Strategy 返回激活的策略名
func (r *Router) Strategy() types.StrategyName { return r.strategy }

// Route 분석 후 검색 계획을 낸다. 절대 에러를 내지 않는다:
// 실패는 전부 규칙 폴백으로 흡수된다.
func (r *Router) Route(ctx context.Context, query string) *types.RouterOutput {
	switch r.strategy {
	case types.StrategyPlan:
		return r.routePlan(ctx, query)
	case types.StrategyThreshold:
		return r.routeThreshold(ctx, query)
	case types.StrategyIntent:
		return r.routeIntent(ctx, query)
	case types.StrategyParallelExpansion:
		return r.routeParallelExpansion(ctx, query)
	case types.StrategyEntitySentence:
		return r.routeEntitySentence(ctx, query)
	default: // HOP
		return r.routeHop(ctx, query)
	}
}

// complete 호출 공통부: 프롬프트 경계 + 제한 시간.
func (r *Router) complete(ctx context.Context, system, query string) (string, error) {
	if r.provider == nil {
		return "", types.NewError(types.ErrCodeLLMUnavailable, "no llm provider configured")
	}

	llmCtx, cancel := context.WithTimeout(ctx, r.cfg.LLMTimeout)
	defer cancel()

	resp, err := r.provider.Completion(llmCtx, &llm.ChatRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: system},
			{Role: llm.RoleUser, Content: "유저 질문: " + r.budget.Bound(query)},
		},
		Temperature: r.cfg.Temperature,
		MaxTokens:   512,
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// ── HOP ───────────────────────────────────────────────────────────────

func (r *Router) routeHop(ctx context.Context, query string) *types.RouterOutput {
	content, err := r.complete(ctx, hopSystemPrompt, query)
	if err != nil {
		r.logger.Warn("hop llm failed, using rules fallback", zap.Error(err))
		return r.ruleHop(ctx, query)
	}

	payload, err := parseHopResponse(content)
	if err != nil {
		r.logger.Warn("hop response unparseable, using rules fallback", zap.Error(err))
		return r.ruleHop(ctx, query)
	}

	return &types.RouterOutput{
		Strategy: r.strategy,
		Actual:   types.ActualLLM,
		Thought:  payload.Thought,
		Hop: &types.HopPlan{
			Hop:          payload.Hop,
			Entities:     payload.Entities,
			Sentences:    payload.Sentences,
			RelationHint: payload.Relation,
		},
		CategoryHints: categoryHints(query),
	}
}

// ── PLAN ──────────────────────────────────────────────────────────────

func (r *Router) routePlan(ctx context.Context, query string) *types.RouterOutput {
	content, err := r.complete(ctx, planSystemPrompt, query)
	if err != nil {
		r.logger.Warn("plan llm failed, using rules fallback", zap.Error(err))
		return r.rulePlan(ctx, query)
	}

	thought, steps, err := parsePlanResponse(content)
	if err != nil {
		r.logger.Warn("plan response unparseable, using rules fallback", zap.Error(err))
		return r.rulePlan(ctx, query)
	}

	return &types.RouterOutput{
		Strategy:      r.strategy,
		Actual:        types.ActualLLM,
		Thought:       thought,
		Plan:          steps,
		CategoryHints: categoryHints(query),
	}
}

// ── THRESHOLD ─────────────────────────────────────────────────────────
// LLM 없음. 항상 KS+VS, 그래프는 편성기가 결과 수로 사후 결정.

func (r *Router) routeThreshold(ctx context.Context, query string) *types.RouterOutput {
	ext := r.extractor.Extract(ctx, query)
	return &types.RouterOutput{
		Strategy: r.strategy,
		Actual:   types.ActualRules,
		Hop: &types.HopPlan{
			Hop:       1, // 그래프 여부는 사후 추론
			Entities:  ext.Entities,
			Sentences: ext.Sentences,
		},
		CategoryHints: categoryHints(query),
	}
}

// ── INTENT ────────────────────────────────────────────────────────────

// intent → 사용할 저장소 부분집합 (길이 <= 3 의 plan 으로 변환)
var intentStores = map[string][]types.Tool{
	"class_change":     {types.ToolKeyword, types.ToolGraph},
	"npc_location":     {types.ToolKeyword, types.ToolVector, types.ToolGraph},
	"hunting_ground":   {types.ToolVector},
	"map_location":     {types.ToolKeyword, types.ToolGraph},
	"item_purchase":    {types.ToolKeyword, types.ToolGraph},
	"item_drop":        {types.ToolKeyword, types.ToolGraph},
	"monster_location": {types.ToolKeyword, types.ToolGraph},
	"monster_info":     {types.ToolKeyword, types.ToolVector},
	"general":          {types.ToolKeyword, types.ToolVector},
}

func (r *Router) routeIntent(ctx context.Context, query string) *types.RouterOutput {
	content, err := r.complete(ctx, intentSystemPrompt, query)
	if err != nil {
		r.logger.Warn("intent llm failed, using rules fallback", zap.Error(err))
		return r.rulePlan(ctx, query)
	}

	payload, err := parseIntentResponse(content)
	if err != nil {
		r.logger.Warn("intent response unparseable, using rules fallback", zap.Error(err))
		return r.rulePlan(ctx, query)
	}

	tools, ok := intentStores[payload.Intent]
	if !ok {
		tools = intentStores["general"]
	}

	term := query
	if len(payload.Keywords) > 0 {
		term = payload.Keywords[0]
	}

	steps := make([]types.PlanStep, 0, len(tools))
	for i, tool := range tools {
		q := term
		if tool == types.ToolVector {
			q = query // 의미 검색은 질문 전체가 더 낫다
		}
		steps = append(steps, types.PlanStep{
			Step: i + 1, Tool: tool, Query: q,
			Rationale: "intent:" + payload.Intent,
		})
	}

	return &types.RouterOutput{
		Strategy:      r.strategy,
		Actual:        types.ActualLLM,
		Thought:       "intent=" + payload.Intent,
		Plan:          steps,
		CategoryHints: categoryHints(query),
	}
}

// ── PARALLEL_EXPANSION ────────────────────────────────────────────────
// 추출기가 뽑은 entity 를 3개까지 남기고 hop >= 2 를 강제한다. entity → KS,
// sentence → VS, 각 entity 마다 GS 단계가 붙는다. GS 단계는 편성기가 KS/VS
// 배치 뒤의 별도 배치로 실행하므로 세 저장소가 한 배치에서 병렬로 돌지는 않고,
// VS 는 키워드가 아니라 sentence 로만 조회된다.

func (r *Router) routeParallelExpansion(ctx context.Context, query string) *types.RouterOutput {
	ext := r.extractor.Extract(ctx, query)

	entities := ext.Entities
	if len(entities) > 3 {
		entities = entities[:3]
	}

	return &types.RouterOutput{
		Strategy: r.strategy,
		Actual:   types.ActualRules,
		Hop: &types.HopPlan{
			Hop:       2, // 그래프 포함 강제
			Entities:  entities,
			Sentences: ext.Sentences,
		},
		CategoryHints: categoryHints(query),
	}
}

// ── ENTITY_SENTENCE ───────────────────────────────────────────────────
// 라우팅 LLM 없음: entities → KS, sentences → VS. 그래프는 쓰지 않는다.

func (r *Router) routeEntitySentence(ctx context.Context, query string) *types.RouterOutput {
	ext := r.extractor.Extract(ctx, query)

	var steps []types.PlanStep
	for _, e := range ext.Entities {
		steps = append(steps, types.PlanStep{
			Step: len(steps) + 1, Tool: types.ToolKeyword, Query: e,
			Rationale: "entity lookup",
		})
	}
	for _, s := range ext.Sentences {
		steps = append(steps, types.PlanStep{
			Step: len(steps) + 1, Tool: types.ToolVector, Query: s,
			Rationale: "sentence semantic search",
		})
	}
	if len(steps) == 0 {
		steps = append(steps, types.PlanStep{
			Step: 1, Tool: types.ToolVector, Query: query,
			Rationale: "degenerate fallback",
		})
	}

	return &types.RouterOutput{
		Strategy:      r.strategy,
		Actual:        types.ActualRules,
		Plan:          steps,
		CategoryHints: categoryHints(query),
	}
}
