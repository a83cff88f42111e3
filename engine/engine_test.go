package engine

import (
	"context"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/gamerag/fusion"
	"github.com/BaSui01/gamerag/types"
)

// ── 테스트 페이크 ──────────────────────────────────────────────────────

type fakeRouter struct {
	strategy types.StrategyName
	out      *types.RouterOutput
}

func (f *fakeRouter) Route(ctx context.Context, query string) *types.RouterOutput { return f.out }
func (f *fakeRouter) Strategy() types.StrategyName                                { return f.strategy }

type fakeKS struct {
	mu      sync.Mutex
	hits    map[string][]types.SourceHit
	canon   map[string]string
	records map[string]types.EntityRecord
	err     error
	calls   int
}

func (f *fakeKS) Search(ctx context.Context, term string, cats []types.Category, limit int) ([]types.SourceHit, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.hits[term], nil
}

func (f *fakeKS) ResolveCanonical(ctx context.Context, term string) (string, bool, error) {
	if c, ok := f.canon[term]; ok {
		return c, true, nil
	}
	return "", false, nil
}

func (f *fakeKS) GetByCanonicalName(ctx context.Context, name string) (*types.EntityRecord, error) {
	if rec, ok := f.records[name]; ok {
		return &rec, nil
	}
	return nil, nil
}

type fakeVS struct {
	mu    sync.Mutex
	hits  map[string][]types.SourceHit
	err   error
	calls int
}

func (f *fakeVS) Search(ctx context.Context, text string, topK int, filter string) ([]types.SourceHit, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.hits[text], nil
}

type fakeGS struct {
	mu         sync.Mutex
	hits       []types.SourceHit
	err        error
	subjects   []string
	predicates []string
}

func (f *fakeGS) SearchByRelation(ctx context.Context, predicate, subject string) ([]types.SourceHit, error) {
	f.mu.Lock()
	f.subjects = append(f.subjects, subject)
	f.predicates = append(f.predicates, predicate)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.hits, nil
}

type captureSink struct {
	mu      sync.Mutex
	records []Telemetry
}

func (s *captureSink) Record(t Telemetry) {
	s.mu.Lock()
	s.records = append(s.records, t)
	s.mu.Unlock()
}

type memCache struct {
	mu   sync.Mutex
	data map[string][]types.RetrievalResult
}

func (c *memCache) Get(ctx context.Context, key string) ([]types.RetrievalResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	return v, ok
}

func (c *memCache) Set(ctx context.Context, key string, results []types.RetrievalResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.data == nil {
		c.data = map[string][]types.RetrievalResult{}
	}
	c.data[key] = results
}

// ── 헬퍼 ──────────────────────────────────────────────────────────────

func ksHit(id, name string, cat types.Category) types.SourceHit {
	return types.SourceHit{
		Entity:    types.EntityRecord{ID: id, CanonicalName: name, Category: cat},
		Score:     100,
		MatchType: types.MatchExactName,
	}
}

func vsHit(id, name string, cat types.Category, sim float64) types.SourceHit {
	return types.SourceHit{
		Entity:    types.EntityRecord{ID: id, CanonicalName: name, Category: cat},
		Score:     sim,
		MatchType: types.MatchVector,
	}
}

func gsHit(id, name string, cat types.Category, predicate, peer string, peerCat types.Category) types.SourceHit {
	return types.SourceHit{
		Entity: types.EntityRecord{
			ID: id, CanonicalName: name, Category: cat,
			Relations: []types.Relation{{Predicate: predicate, PeerName: peer, PeerCategory: peerCat}},
		},
		Score:     1,
		MatchType: types.GraphMatchType(predicate),
	}
}

func newEngine(t *testing.T, deps Deps) *Engine {
	t.Helper()
	if deps.Fuser == nil {
		deps.Fuser = fusion.NewFuser(fusion.DefaultConfig(), nil)
	}
	e, err := New(deps, DefaultConfig())
	require.NoError(t, err)
	return e
}

func hopRouter(strategy types.StrategyName, hop *types.HopPlan, actual string) *fakeRouter {
	return &fakeRouter{
		strategy: strategy,
		out:      &types.RouterOutput{Strategy: strategy, Actual: actual, Hop: hop},
	}
}

// ── 시나리오 테스트 ────────────────────────────────────────────────────

// 시나리오 1: 정확한 NPC 정식명
func TestSearch_ExactCanonicalNPCName(t *testing.T) {
	t.Parallel()

	ks := &fakeKS{hits: map[string][]types.SourceHit{
		"다크로드": {ksHit("npc:darklord", "다크로드", types.CategoryNPC)},
	}}
	router := hopRouter(types.StrategyHop,
		&types.HopPlan{Hop: 1, Entities: []string{"다크로드"}}, types.ActualLLM)

	e := newEngine(t, Deps{Router: router, Keyword: ks, Vector: &fakeVS{}, Graph: &fakeGS{}})

	resp, err := e.Search(context.Background(), "다크로드", 5)
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)

	top := resp.Results[0]
	assert.Equal(t, "다크로드", top.Entity.CanonicalName)
	assert.Equal(t, types.CategoryNPC, top.Entity.Category)
	assert.True(t, top.Sources.Has(types.SourceKeyword))
	assert.LessOrEqual(t, len(resp.Results), 5)
}

// 시나리오 2: 간접 표현 → VS 단독
func TestSearch_IndirectDescriptionVectorOnly(t *testing.T) {
	t.Parallel()

	vs := &fakeVS{hits: map[string][]types.SourceHit{
		"물약 파는 사람": {vsHit("npc:mina", "미나", types.CategoryNPC, 0.92)},
	}}
	router := hopRouter(types.StrategyHop,
		&types.HopPlan{Hop: 1, Sentences: []string{"물약 파는 사람"}}, types.ActualLLM)

	e := newEngine(t, Deps{Router: router, Keyword: &fakeKS{}, Vector: vs, Graph: &fakeGS{}})

	resp, err := e.Search(context.Background(), "물약 파는 사람", 5)
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)

	top := resp.Results[0]
	assert.Equal(t, "미나", top.Entity.CanonicalName)
	assert.Equal(t, []types.Source{types.SourceVector}, top.Sources.Slice())
	assert.Equal(t, types.MatchVector, top.MatchType)
}

// 시나리오 3: 2-hop 아이템 수급
func TestSearch_TwoHopItemSourcing(t *testing.T) {
	t.Parallel()

	ks := &fakeKS{
		hits: map[string][]types.SourceHit{
			"아이스진": {ksHit("item:icejeans", "아이스진", types.CategoryItem)},
		},
		canon: map[string]string{"아이스진": "아이스진"},
		records: map[string]types.EntityRecord{
			"스포아": {ID: "monster:spore", CanonicalName: "스포아", Category: types.CategoryMonster,
				Description: "폐광의 버섯 몬스터"},
		},
	}
	gs := &fakeGS{hits: []types.SourceHit{
		gsHit("monster:spore", "스포아", types.CategoryMonster, "DROPS", "아이스진", types.CategoryItem),
	}}
	router := hopRouter(types.StrategyHop,
		&types.HopPlan{Hop: 2, Entities: []string{"아이스진"}, RelationHint: "ITEM-MONSTER"},
		types.ActualLLM)

	e := newEngine(t, Deps{Router: router, Keyword: ks, Vector: &fakeVS{}, Graph: gs})

	resp, err := e.Search(context.Background(), "아이스진 얻는 법", 10)
	require.NoError(t, err)
	require.Len(t, resp.Results, 2)

	assert.Equal(t, []string{"아이스진"}, gs.subjects)
	assert.Equal(t, []string{"DROPS"}, gs.predicates)

	var sawGraph bool
	for _, r := range resp.Results {
		if r.Sources.Has(types.SourceGraph) {
			sawGraph = true
			// enrichment: KS 의 상세 정보가 붙는다
			assert.Equal(t, "폐광의 버섯 몬스터", r.Entity.Description)
			require.NotEmpty(t, r.Entity.Relations)
			assert.Equal(t, "DROPS", r.Entity.Relations[0].Predicate)
		}
	}
	assert.True(t, sawGraph)
}

// 시나리오 4: 세 소스가 모두 동의 → 정규화 100
func TestSearch_AllSourcesAgree(t *testing.T) {
	t.Parallel()

	entity := types.EntityRecord{ID: "e:1", CanonicalName: "미나", Category: types.CategoryNPC}
	ks := &fakeKS{
		hits:  map[string][]types.SourceHit{"미나": {{Entity: entity, Score: 100, MatchType: types.MatchExactName}}},
		canon: map[string]string{"미나": "미나"},
	}
	vs := &fakeVS{hits: map[string][]types.SourceHit{
		"미나 찾기": {{Entity: entity, Score: 0.99, MatchType: types.MatchVector}},
	}}
	gs := &fakeGS{hits: []types.SourceHit{{Entity: entity, Score: 1, MatchType: types.GraphMatchType("LOCATED_IN")}}}

	router := hopRouter(types.StrategyHop,
		&types.HopPlan{Hop: 2, Entities: []string{"미나"}, Sentences: []string{"미나 찾기"}, RelationHint: "NPC-MAP"},
		types.ActualLLM)

	e := newEngine(t, Deps{Router: router, Keyword: ks, Vector: vs, Graph: gs})

	resp, err := e.Search(context.Background(), "미나 어디 위치", 5)
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)

	top := resp.Results[0]
	assert.Equal(t, float64(100), top.FusedScore)
	assert.Len(t, top.Sources.Slice(), 3)
}

// 시나리오 5: 폴백 경로가 텔레메트리에 드러난다
func TestSearch_FallbackRecordedInTelemetry(t *testing.T) {
	t.Parallel()

	router := hopRouter(types.StrategyHop,
		&types.HopPlan{Hop: 1, Entities: []string{"다크로드"}}, types.ActualFallback)
	sink := &captureSink{}

	e := newEngine(t, Deps{Router: router, Keyword: &fakeKS{}, Vector: &fakeVS{}, Graph: &fakeGS{}, Sink: sink})

	_, err := e.Search(context.Background(), "다크로드", 5)
	require.NoError(t, err)

	require.Len(t, sink.records, 1)
	assert.Equal(t, types.ActualFallback, sink.records[0].StrategyActual)
}

// 시나리오 6: 그래프 transport 오류 → KS+VS 결과만, 예외 없음
func TestSearch_GraphTransportErrorFailsOpen(t *testing.T) {
	t.Parallel()

	ks := &fakeKS{
		hits: map[string][]types.SourceHit{
			"아이스진": {ksHit("item:icejeans", "아이스진", types.CategoryItem)},
		},
		canon: map[string]string{"아이스진": "아이스진"},
	}
	gs := &fakeGS{err: types.NewError(types.ErrCodeStoreTransport, "connection refused").WithSource(types.SourceGraph)}
	router := hopRouter(types.StrategyHop,
		&types.HopPlan{Hop: 2, Entities: []string{"아이스진"}}, types.ActualLLM)
	sink := &captureSink{}

	e := newEngine(t, Deps{Router: router, Keyword: ks, Vector: &fakeVS{}, Graph: gs, Sink: sink})

	resp, err := e.Search(context.Background(), "아이스진 얻는 법", 5)
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)

	// 실패한 소스는 어느 결과의 sources 에도 없다
	for _, r := range resp.Results {
		assert.False(t, r.Sources.Has(types.SourceGraph))
	}
	require.Len(t, sink.records, 1)
	assert.Equal(t, 0, sink.records[0].PerSourceCounts[types.SourceGraph])
}

// ── 경계 동작 ─────────────────────────────────────────────────────────

func TestSearch_ZeroLimitSkipsStores(t *testing.T) {
	t.Parallel()

	ks := &fakeKS{}
	vs := &fakeVS{}
	router := hopRouter(types.StrategyHop,
		&types.HopPlan{Hop: 1, Entities: []string{"x"}}, types.ActualLLM)

	e := newEngine(t, Deps{Router: router, Keyword: ks, Vector: vs, Graph: &fakeGS{}})

	resp, err := e.Search(context.Background(), "아무거나", 0)
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
	assert.Equal(t, 0, ks.calls)
	assert.Equal(t, 0, vs.calls)
}

func TestSearch_NegativeLimitIsConfigurationError(t *testing.T) {
	t.Parallel()

	router := hopRouter(types.StrategyHop, &types.HopPlan{Hop: 1}, types.ActualLLM)
	e := newEngine(t, Deps{Router: router, Keyword: &fakeKS{}, Vector: &fakeVS{}})

	_, err := e.Search(context.Background(), "q", -1)
	require.Error(t, err)
	assert.Equal(t, types.ErrCodeConfiguration, types.GetErrorCode(err))
}

func TestSearch_AllSourcesEmptyIsSuccess(t *testing.T) {
	t.Parallel()

	router := hopRouter(types.StrategyHop,
		&types.HopPlan{Hop: 1, Entities: []string{"없는것"}, Sentences: []string{"없는 문장"}},
		types.ActualLLM)
	sink := &captureSink{}

	e := newEngine(t, Deps{Router: router, Keyword: &fakeKS{}, Vector: &fakeVS{}, Graph: &fakeGS{}, Sink: sink})

	resp, err := e.Search(context.Background(), "없는것", 5)
	require.NoError(t, err)
	assert.NotNil(t, resp.Results)
	assert.Empty(t, resp.Results)
	require.Len(t, sink.records, 1)
	assert.Equal(t, 0, sink.records[0].FusedCount)
}

func TestSearch_CancelledContext(t *testing.T) {
	t.Parallel()

	router := hopRouter(types.StrategyHop, &types.HopPlan{Hop: 1, Entities: []string{"x"}}, types.ActualLLM)
	e := newEngine(t, Deps{Router: router, Keyword: &fakeKS{}, Vector: &fakeVS{}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Search(ctx, "q", 5)
	require.Error(t, err)
	assert.Equal(t, types.ErrCodeCancelled, types.GetErrorCode(err))
}

// ── 전략/캐시 동작 ────────────────────────────────────────────────────

func TestSearch_ThresholdBackfillsGraph(t *testing.T) {
	t.Parallel()

	// KS+VS 합계 1 < threshold 3 → 그래프 사후 호출
	ks := &fakeKS{
		hits: map[string][]types.SourceHit{
			"아이스진": {ksHit("item:icejeans", "아이스진", types.CategoryItem)},
		},
		canon: map[string]string{"아이스진": "아이스진"},
	}
	gs := &fakeGS{hits: []types.SourceHit{
		gsHit("monster:spore", "스포아", types.CategoryMonster, "DROPS", "아이스진", types.CategoryItem),
	}}
	router := hopRouter(types.StrategyThreshold,
		&types.HopPlan{Hop: 1, Entities: []string{"아이스진"}}, types.ActualRules)

	e := newEngine(t, Deps{Router: router, Keyword: ks, Vector: &fakeVS{}, Graph: gs})

	resp, err := e.Search(context.Background(), "아이스진 드랍", 10)
	require.NoError(t, err)
	require.Len(t, gs.subjects, 1)
	assert.Equal(t, "아이스진", gs.subjects[0])
	assert.Len(t, resp.Results, 2)
}

func TestSearch_ThresholdSkipsGraphWhenEnoughResults(t *testing.T) {
	t.Parallel()

	ks := &fakeKS{hits: map[string][]types.SourceHit{
		"물약": {
			ksHit("i:1", "빨간 포션", types.CategoryItem),
			ksHit("i:2", "파란 포션", types.CategoryItem),
			ksHit("i:3", "하얀 포션", types.CategoryItem),
		},
	}}
	gs := &fakeGS{}
	router := hopRouter(types.StrategyThreshold,
		&types.HopPlan{Hop: 1, Entities: []string{"물약"}}, types.ActualRules)

	e := newEngine(t, Deps{Router: router, Keyword: ks, Vector: &fakeVS{}, Graph: gs})

	_, err := e.Search(context.Background(), "물약", 10)
	require.NoError(t, err)
	assert.Empty(t, gs.subjects)
}

// 그래프 주어는 canonical 만: synonym 은 해석되고, 해석 불가면 건너뛴다
func TestSearch_GraphSubjectIsCanonicalized(t *testing.T) {
	t.Parallel()

	ks := &fakeKS{
		hits: map[string][]types.SourceHit{
			"아진": {ksHit("item:icejeans", "아이스진", types.CategoryItem)},
		},
		canon: map[string]string{"아진": "아이스진"},
	}
	gs := &fakeGS{}
	router := hopRouter(types.StrategyHop,
		&types.HopPlan{Hop: 2, Entities: []string{"아진"}}, types.ActualLLM)

	e := newEngine(t, Deps{Router: router, Keyword: ks, Vector: &fakeVS{}, Graph: gs})

	_, err := e.Search(context.Background(), "아진 얻는 법", 5)
	require.NoError(t, err)
	require.Len(t, gs.subjects, 1)
	assert.Equal(t, "아이스진", gs.subjects[0])
}

func TestSearch_GraphStepSkippedWithoutCanonicalSubject(t *testing.T) {
	t.Parallel()

	gs := &fakeGS{}
	router := hopRouter(types.StrategyHop,
		&types.HopPlan{Hop: 2, Entities: []string{"알수없는토큰"}}, types.ActualLLM)

	e := newEngine(t, Deps{Router: router, Keyword: &fakeKS{}, Vector: &fakeVS{}, Graph: gs})

	resp, err := e.Search(context.Background(), "알수없는토큰 얻는 법", 5)
	require.NoError(t, err)
	assert.Empty(t, gs.subjects)
	assert.Empty(t, resp.Results)
}

func TestSearch_CacheRoundTrip(t *testing.T) {
	t.Parallel()

	ks := &fakeKS{hits: map[string][]types.SourceHit{
		"다크로드": {ksHit("npc:darklord", "다크로드", types.CategoryNPC)},
	}}
	router := hopRouter(types.StrategyHop,
		&types.HopPlan{Hop: 1, Entities: []string{"다크로드"}}, types.ActualLLM)
	cache := &memCache{}
	keyFn := func(s types.StrategyName, q string, l int) string {
		return string(s) + "|" + q + "|" + string(rune('0'+l))
	}
	sink := &captureSink{}

	e := newEngine(t, Deps{
		Router: router, Keyword: ks, Vector: &fakeVS{}, Graph: &fakeGS{},
		Cache: cache, CacheKey: keyFn, Sink: sink,
	})

	first, err := e.Search(context.Background(), "다크로드", 5)
	require.NoError(t, err)
	require.Len(t, first.Results, 1)
	assert.False(t, first.Telemetry.CacheHit)

	second, err := e.Search(context.Background(), "다크로드", 5)
	require.NoError(t, err)
	assert.True(t, second.Telemetry.CacheHit)
	assert.Equal(t, first.Results[0].Entity.ID, second.Results[0].Entity.ID)
	// 캐시 경로는 KS 를 다시 부르지 않는다
	assert.Equal(t, 1, ks.calls)
}

// ── 리랭커 ────────────────────────────────────────────────────────────

type indexReranker struct{ order []int }

func (r indexReranker) Rerank(ctx context.Context, query string, candidates []string, topN int) ([]fusion.RerankResult, error) {
	var out []fusion.RerankResult
	for _, idx := range r.order {
		out = append(out, fusion.RerankResult{Index: idx, Score: 1})
	}
	return out, nil
}

func TestSearch_RerankerAppliedWhenOverLimit(t *testing.T) {
	t.Parallel()

	hits := []types.SourceHit{
		ksHit("a", "가", types.CategoryItem),
		ksHit("b", "나", types.CategoryItem),
		ksHit("c", "다", types.CategoryItem),
	}
	ks := &fakeKS{hits: map[string][]types.SourceHit{"물약": hits}}
	router := hopRouter(types.StrategyHop,
		&types.HopPlan{Hop: 1, Entities: []string{"물약"}}, types.ActualLLM)

	e := newEngine(t, Deps{
		Router: router, Keyword: ks, Vector: &fakeVS{}, Graph: &fakeGS{},
		Reranker: indexReranker{order: []int{2, 0}},
	})

	resp, err := e.Search(context.Background(), "물약", 2)
	require.NoError(t, err)
	require.Len(t, resp.Results, 2)
	assert.True(t, resp.Telemetry.Reranked)
	assert.Equal(t, "c", resp.Results[0].Entity.ID)
}

func TestEngine_CloseReleasesClosers(t *testing.T) {
	t.Parallel()

	closed := 0
	c := closerFunc(func() error { closed++; return nil })

	router := hopRouter(types.StrategyHop, &types.HopPlan{Hop: 1}, types.ActualLLM)
	e := newEngine(t, Deps{Router: router, Keyword: &fakeKS{}, Vector: &fakeVS{}, Closers: []io.Closer{c}})

	require.NoError(t, e.Close())
	require.NoError(t, e.Close())
	assert.Equal(t, 1, closed)
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
