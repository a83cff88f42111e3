// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// 📊 检索指标收集器
// =============================================================================

// Collector 指标收集器
type Collector struct {
	// 查询指标
	searchTotal    *prometheus.CounterVec
	searchDuration *prometheus.HistogramVec
	fusedCount     prometheus.Histogram

	// 分存储指标
	storeRequests *prometheus.CounterVec
	storeDuration *prometheus.HistogramVec
	storeFailures *prometheus.CounterVec

	// 路由指标
	routerFallbacks *prometheus.CounterVec

	// 重排指标
	rerankTotal *prometheus.CounterVec

	// 缓存指标
	cacheHits   prometheus.Counter
	cacheMisses prometheus.Counter
}

// NewCollector 创建指标收集器并注册到给定 registerer。
// reg 为 nil 时使用默认 registry。
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Collector{
		searchTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gamerag_search_total",
			Help: "Total search requests by strategy and outcome.",
		}, []string{"strategy", "outcome"}),

		searchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gamerag_search_duration_seconds",
			Help:    "End-to-end search latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"strategy"}),

		fusedCount: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "gamerag_fused_results",
			Help:    "Number of records after fusion, before truncation.",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50, 100},
		}),

		storeRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gamerag_store_requests_total",
			Help: "Store calls by source.",
		}, []string{"source"}),

		storeDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gamerag_store_duration_seconds",
			Help:    "Per-store call latency.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"source"}),

		storeFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gamerag_store_failures_total",
			Help: "Store calls recovered as empty results, by source and kind.",
		}, []string{"source", "kind"}),

		routerFallbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gamerag_router_fallbacks_total",
			Help: "Router decisions taken by the rules fallback instead of the LLM.",
		}, []string{"strategy"}),

		rerankTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gamerag_rerank_total",
			Help: "Reranker invocations by outcome.",
		}, []string{"outcome"}),

		cacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "gamerag_cache_hits_total",
			Help: "Result cache hits.",
		}),

		cacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "gamerag_cache_misses_total",
			Help: "Result cache misses.",
		}),
	}
}

// ObserveSearch 记录一次完整查询
func (c *Collector) ObserveSearch(strategy, outcome string, duration time.Duration, fused int) {
	c.searchTotal.WithLabelValues(strategy, outcome).Inc()
	c.searchDuration.WithLabelValues(strategy).Observe(duration.Seconds())
	c.fusedCount.Observe(float64(fused))
}

// ObserveStore 记录一次存储调用
func (c *Collector) ObserveStore(source string, duration time.Duration) {
	c.storeRequests.WithLabelValues(source).Inc()
	c.storeDuration.WithLabelValues(source).Observe(duration.Seconds())
}

// ObserveStoreFailure 记录一次被吞掉的存储失败
func (c *Collector) ObserveStoreFailure(source, kind string) {
	c.storeFailures.WithLabelValues(source, kind).Inc()
}

// ObserveRouterFallback 记录一次规则降级
func (c *Collector) ObserveRouterFallback(strategy string) {
	c.routerFallbacks.WithLabelValues(strategy).Inc()
}

// ObserveRerank 记录一次重排调用
func (c *Collector) ObserveRerank(outcome string) {
	c.rerankTotal.WithLabelValues(outcome).Inc()
}

// ObserveCache 记录缓存命中情况
func (c *Collector) ObserveCache(hit bool) {
	if hit {
		c.cacheHits.Inc()
	} else {
		c.cacheMisses.Inc()
	}
}
