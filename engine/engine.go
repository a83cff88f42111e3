// Package engine executes the Router's plan with the correct concurrency
// shape: parallel across independent stores within a batch, sequential across
// batches with output-to-input dependencies. Store failures fail open; the
// engine's external contract is that Search returns a result object or a
// cancellation, never a store error.
package engine

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/gamerag/fusion"
	"github.com/BaSui01/gamerag/internal/metrics"
	"github.com/BaSui01/gamerag/types"
)

// KeywordSearcher 关键词库读接口
type KeywordSearcher interface {
	Search(ctx context.Context, term string, categories []types.Category, limit int) ([]types.SourceHit, error)
	ResolveCanonical(ctx context.Context, term string) (string, bool, error)
	GetByCanonicalName(ctx context.Context, name string) (*types.EntityRecord, error)
}

// VectorSearcher 向量库读接口
type VectorSearcher interface {
	Search(ctx context.Context, text string, topK int, filter string) ([]types.SourceHit, error)
}

// GraphSearcher 图库读接口
type GraphSearcher interface {
	SearchByRelation(ctx context.Context, predicate, subject string) ([]types.SourceHit, error)
}

// QueryRouter 路由接口
type QueryRouter interface {
	Route(ctx context.Context, query string) *types.RouterOutput
	Strategy() types.StrategyName
}

// ResultCache 查询结果缓存接口（可选）
type ResultCache interface {
	Get(ctx context.Context, key string) ([]types.RetrievalResult, bool)
	Set(ctx context.Context, key string, results []types.RetrievalResult)
}

// CacheKeyFunc 缓存键函数
type CacheKeyFunc func(strategy types.StrategyName, query string, limit int) string

// Timeouts 分存储超时
type Timeouts struct {
	Keyword  time.Duration
	Vector   time.Duration
	Graph    time.Duration
	Reranker time.Duration
}

// DefaultTimeouts 返回默认超时
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Keyword:  500 * time.Millisecond,
		Vector:   time.Second,
		Graph:    time.Second,
		Reranker: 3 * time.Second,
	}
}

// Config 编排器配置
type Config struct {
	// 默认返回条数
	Limit int
	// THRESHOLD 전략: KS+VS 합계가 이 값 미만이면 그래프 추가
	GraphThreshold int
	// KS 단계별 결과 상한
	PerTermLimit int
	// VS 단계별 top-k
	VectorTopK int
	// 실체 类别集合
	Categories []types.Category
	Timeouts   Timeouts
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Limit:          10,
		GraphThreshold: 3,
		PerTermLimit:   5,
		VectorTopK:     5,
		Categories:     types.DefaultCategories(),
		Timeouts:       DefaultTimeouts(),
	}
}

// Deps 构造依赖。Reranker / Cache / Metrics / Sink 均可为 nil。
type Deps struct {
	Router   QueryRouter
	Keyword  KeywordSearcher
	Vector   VectorSearcher
	Graph    GraphSearcher
	Fuser    *fusion.Fuser
	Reranker fusion.Reranker
	Cache    ResultCache
	CacheKey CacheKeyFunc
	Metrics  *metrics.Collector
	Sink     TelemetrySink
	Logger   *zap.Logger
	// Closers 在 Close() 时统一释放（store 客户端、缓存、LLM 连接）
	Closers []io.Closer
}

// Response 查询响应
type Response struct {
	Results   []types.RetrievalResult `json:"results"`
	Telemetry Telemetry               `json:"telemetry"`
}

// Engine 检索编排器。按查询无共享可变状态，可并发调用。
type Engine struct {
	deps   Deps
	cfg    Config
	tracer trace.Tracer
	logger *zap.Logger

	closeOnce sync.Once
	closeErr  error
}

// New 创建编排器
func New(deps Deps, cfg Config) (*Engine, error) {
	if deps.Router == nil || deps.Keyword == nil || deps.Vector == nil || deps.Fuser == nil {
		return nil, types.NewError(types.ErrCodeConfiguration,
			"engine requires router, keyword store, vector store, and fuser")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Sink == nil {
		deps.Sink = NopSink{}
	}
	if cfg.Limit <= 0 {
		cfg.Limit = 10
	}
	if cfg.PerTermLimit <= 0 {
		cfg.PerTermLimit = 5
	}
	if cfg.VectorTopK <= 0 {
		cfg.VectorTopK = 5
	}
	if cfg.GraphThreshold <= 0 {
		cfg.GraphThreshold = 3
	}
	if len(cfg.Categories) == 0 {
		cfg.Categories = types.DefaultCategories()
	}
	zero := Timeouts{}
	if cfg.Timeouts == zero {
		cfg.Timeouts = DefaultTimeouts()
	}

	return &Engine{
		deps:   deps,
		cfg:    cfg,
		tracer: otel.Tracer("gamerag/engine"),
		logger: deps.Logger.With(zap.String("component", "engine")),
	}, nil
}

// queryState 单次查询的全部可变状态（不跨查询共享）。
type queryState struct {
	query  string
	route  *types.RouterOutput
	tele   *Telemetry
	scheme map[types.Source][]types.SourceHit

	mu sync.Mutex
	// transport 오류가 난 소스: 같은 질의 안에서는 다시 부르지 않는다
	failed map[types.Source]bool
	// 앞 배치에서 찾은 최상의 canonical name (그래프 주어 조정용)
	bestCanonical string
	graphRan      bool
}

// Search 执行一次检索。
//
// limit < 0 是配置错误；limit == 0 直接返回空结果（不触发任何存储调用）。
// 除 CONFIGURATION / CANCELLED 外不返回任何错误。
func (e *Engine) Search(ctx context.Context, query string, limit int) (*Response, error) {
	start := time.Now()

	if limit < 0 {
		return nil, types.NewError(types.ErrCodeConfiguration, "limit must be >= 0")
	}
	if err := ctx.Err(); err != nil {
		return nil, types.NewError(types.ErrCodeCancelled, "search cancelled").WithCause(err)
	}

	query = strings.TrimSpace(query)
	strategy := e.deps.Router.Strategy()
	tele := newTelemetry(query, strategy)

	if limit == 0 {
		tele.Duration = time.Since(start)
		e.deps.Sink.Record(*tele)
		return &Response{Results: []types.RetrievalResult{}, Telemetry: *tele}, nil
	}

	ctx, span := e.tracer.Start(ctx, "engine.search",
		trace.WithAttributes(
			attribute.String("strategy", string(strategy)),
			attribute.Int("limit", limit),
		))
	defer span.End()

	// 缓存命中直接返回
	if e.deps.Cache != nil && e.deps.CacheKey != nil {
		key := e.deps.CacheKey(strategy, query, limit)
		if cached, hit := e.deps.Cache.Get(ctx, key); hit {
			tele.CacheHit = true
			tele.FusedCount = len(cached)
			tele.StrategyActual = "cache"
			tele.Duration = time.Since(start)
			if e.deps.Metrics != nil {
				e.deps.Metrics.ObserveCache(true)
			}
			e.deps.Sink.Record(*tele)
			return &Response{Results: cached, Telemetry: *tele}, nil
		}
		if e.deps.Metrics != nil {
			e.deps.Metrics.ObserveCache(false)
		}
	}

	// 路由
	route := e.deps.Router.Route(ctx, query)
	tele.StrategyActual = route.Actual
	if route.Actual == types.ActualFallback && e.deps.Metrics != nil {
		e.deps.Metrics.ObserveRouterFallback(string(strategy))
	}

	// 展开计划并分批
	plan := route.Plan
	if route.Hop != nil {
		plan = planFromHop(route.Hop)
	}
	batches := GroupIntoBatches(plan)
	tele.Batches = len(batches)

	st := &queryState{
		query:  query,
		route:  route,
		tele:   tele,
		scheme: map[types.Source][]types.SourceHit{},
		failed: map[types.Source]bool{},
	}

	// 逐批执行：批内并行，批间顺序
	for i, batch := range batches {
		if err := e.runBatch(ctx, st, batch, i); err != nil {
			return nil, err
		}
	}

	// THRESHOLD 전략: KS+VS 가 부족하면 그래프를 사후 추가
	if strategy == types.StrategyThreshold && !st.graphRan && e.deps.Graph != nil {
		direct := len(st.scheme[types.SourceKeyword]) + len(st.scheme[types.SourceVector])
		if direct < e.cfg.GraphThreshold {
			subject := st.bestCanonical
			if subject == "" && route.Hop != nil && len(route.Hop.Entities) > 0 {
				subject = route.Hop.Entities[0]
			}
			step := types.PlanStep{Tool: types.ToolGraph, Query: subject, Rationale: "threshold backfill"}
			if err := e.runBatch(ctx, st, []types.PlanStep{step}, len(batches)); err != nil {
				return nil, err
			}
			tele.Batches++
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, types.NewError(types.ErrCodeCancelled, "search cancelled").WithCause(err)
	}

	// 融合
	fused := e.deps.Fuser.Fuse(st.scheme, 0)
	tele.FusedCount = len(fused)

	// 重排钩子: 融合结果超过 limit 时才触发，失败保持 RRF 顺序
	if len(fused) > limit && e.deps.Reranker != nil {
		rerankCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeouts.Reranker)
		reranked, applied := fusion.ApplyRerank(rerankCtx, e.deps.Reranker, query, fused, limit, e.logger)
		cancel()
		fused = reranked
		tele.Reranked = applied
		if e.deps.Metrics != nil {
			outcome := "skipped"
			if applied {
				outcome = "applied"
			}
			e.deps.Metrics.ObserveRerank(outcome)
		}
	}

	if len(fused) > limit {
		fused = fused[:limit]
	}
	if fused == nil {
		fused = []types.RetrievalResult{}
	}

	tele.Duration = time.Since(start)
	if e.deps.Metrics != nil {
		e.deps.Metrics.ObserveSearch(string(strategy), "ok", tele.Duration, tele.FusedCount)
	}
	span.SetAttributes(attribute.Int("fused_count", tele.FusedCount))

	if e.deps.Cache != nil && e.deps.CacheKey != nil {
		e.deps.Cache.Set(ctx, e.deps.CacheKey(strategy, query, limit), fused)
	}

	e.deps.Sink.Record(*tele)
	return &Response{Results: fused, Telemetry: *tele}, nil
}

// runBatch 并行执行一个批次的全部步骤。
func (e *Engine) runBatch(ctx context.Context, st *queryState, batch []types.PlanStep, index int) error {
	if len(batch) == 0 {
		return nil
	}

	ctx, span := e.tracer.Start(ctx, "engine.batch",
		trace.WithAttributes(attribute.Int("batch", index), attribute.Int("steps", len(batch))))
	defer span.End()

	results := make([][]types.SourceHit, len(batch))
	sources := make([]types.Source, len(batch))

	g, gctx := errgroup.WithContext(ctx)
	for i, step := range batch {
		g.Go(func() error {
			hits, source := e.runStep(gctx, st, step)
			results[i] = hits
			sources[i] = source
			return nil
		})
	}
	// runStep 把一切失败就地吞掉，这里的 err 恒为 nil
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return types.NewError(types.ErrCodeCancelled, "search cancelled").WithCause(err)
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	for i, hits := range results {
		if sources[i] == "" {
			continue
		}
		st.scheme[sources[i]] = append(st.scheme[sources[i]], hits...)
		st.tele.PerSourceCounts[sources[i]] += len(hits)
	}
	// 그래프 주어 조정용 최상 후보 갱신: KS 우선, 없으면 VS
	if st.bestCanonical == "" {
		for _, src := range []types.Source{types.SourceKeyword, types.SourceVector} {
			if len(st.scheme[src]) > 0 {
				st.bestCanonical = st.scheme[src][0].Entity.CanonicalName
				break
			}
		}
	}
	return nil
}

// runStep 执行单个步骤。所有失败就地转为空结果（fail-open）。
func (e *Engine) runStep(ctx context.Context, st *queryState, step types.PlanStep) ([]types.SourceHit, types.Source) {
	source := sourceForTool(step.Tool)
	if source == "" {
		e.logger.Warn("unknown tool in plan", zap.String("tool", string(step.Tool)))
		return nil, ""
	}

	st.mu.Lock()
	skip := st.failed[source]
	st.mu.Unlock()
	if skip {
		// 같은 질의에서 transport 오류가 난 소스는 재시도하지 않는다
		return nil, source
	}

	start := time.Now()
	var hits []types.SourceHit
	var err error

	switch step.Tool {
	case types.ToolKeyword:
		callCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeouts.Keyword)
		var cats []types.Category
		if step.Category != "" {
			cats = []types.Category{step.Category}
		}
		hits, err = e.deps.Keyword.Search(callCtx, step.Query, cats, e.cfg.PerTermLimit)
		cancel()

	case types.ToolVector:
		callCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeouts.Vector)
		hits, err = e.deps.Vector.Search(callCtx, step.Query, e.cfg.VectorTopK, "")
		cancel()

	case types.ToolGraph:
		hits, err = e.runGraphStep(ctx, st, step)
	}

	latency := time.Since(start)

	st.mu.Lock()
	if latency > st.tele.PerSourceLatency[source] {
		st.tele.PerSourceLatency[source] = latency
	}
	st.mu.Unlock()

	if e.deps.Metrics != nil {
		e.deps.Metrics.ObserveStore(string(source), latency)
	}

	if err != nil {
		code := types.GetErrorCode(err)
		if e.deps.Metrics != nil {
			e.deps.Metrics.ObserveStoreFailure(string(source), string(code))
		}
		if code == types.ErrCodeStoreTransport {
			st.mu.Lock()
			st.failed[source] = true
			st.mu.Unlock()
		}
		e.logger.Warn("store call failed open",
			zap.String("source", string(source)),
			zap.String("query", step.Query),
			zap.Error(err))
		return nil, source
	}
	return hits, source
}

// runGraphStep 图步骤：主语规范化 → 谓词选择 → 遍历 → KS enrichment。
func (e *Engine) runGraphStep(ctx context.Context, st *queryState, step types.PlanStep) ([]types.SourceHit, error) {
	if e.deps.Graph == nil {
		return nil, nil
	}

	st.mu.Lock()
	st.graphRan = true
	best := st.bestCanonical
	st.mu.Unlock()

	callCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeouts.Graph)
	defer cancel()

	// 그래프는 canonical name 만 받는다: synonym/원시 토큰은 여기서 해석
	subject := strings.TrimSpace(step.Query)
	if subject != "" {
		canonical, ok, err := e.deps.Keyword.ResolveCanonical(callCtx, subject)
		if err != nil {
			return nil, err
		}
		if ok {
			subject = canonical
		} else {
			subject = ""
		}
	}
	if subject == "" {
		subject = best
	}
	if subject == "" {
		// canonical 후보가 없으면 원시 키워드를 넘기지 말고 건너뛴다
		e.logger.Warn("skipping graph step: no canonical subject",
			zap.String("step_query", step.Query))
		return nil, nil
	}

	relationHint := ""
	if st.route.Hop != nil {
		relationHint = st.route.Hop.RelationHint
	}
	predicate := pickPredicate(relationHint, st.query)

	hits, err := e.deps.Graph.SearchByRelation(callCtx, predicate, subject)
	if err != nil {
		return nil, err
	}
	return e.enrichGraphHits(callCtx, hits), nil
}

// enrichGraphHits 用关键词库补全图结果的 description / detail / synonyms。
// 图只知道关系；详细信息在关键词库里。关系边保留，id 以关键词库为准。
func (e *Engine) enrichGraphHits(ctx context.Context, hits []types.SourceHit) []types.SourceHit {
	for i := range hits {
		rec, err := e.deps.Keyword.GetByCanonicalName(ctx, hits[i].Entity.CanonicalName)
		if err != nil || rec == nil {
			continue
		}
		relations := hits[i].Entity.Relations
		hits[i].Entity = *rec
		hits[i].Entity.Relations = relations
	}
	return hits
}

// Close 释放引擎持有的全部客户端句柄。幂等。
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		for _, c := range e.deps.Closers {
			if err := c.Close(); err != nil && e.closeErr == nil {
				e.closeErr = err
			}
		}
		e.logger.Info("engine closed")
	})
	return e.closeErr
}

func sourceForTool(tool types.Tool) types.Source {
	switch tool {
	case types.ToolKeyword:
		return types.SourceKeyword
	case types.ToolVector:
		return types.SourceVector
	case types.ToolGraph:
		return types.SourceGraph
	default:
		return ""
	}
}
