package engine

import (
	"time"

	"github.com/google/uuid"

	"github.com/BaSui01/gamerag/types"
)

// Telemetry 单次查询的结构化观测记录。
type Telemetry struct {
	QueryID  string             `json:"query_id"`
	Query    string             `json:"query"`
	Strategy types.StrategyName `json:"strategy"`
	// Actual 记录实际路径: llm / rules / fallback；命中结果缓存时为 cache
	StrategyActual string `json:"strategy_actual"`

	PerSourceLatency map[types.Source]time.Duration `json:"per_source_latency"`
	PerSourceCounts  map[types.Source]int           `json:"per_source_counts"`

	FusedCount int  `json:"fused_count"`
	Reranked   bool `json:"reranked"`
	CacheHit   bool `json:"cache_hit"`

	Batches  int           `json:"batches"`
	Duration time.Duration `json:"duration"`
}

// TelemetrySink 接收每次查询的观测记录。实现必须快速返回且不 panic。
type TelemetrySink interface {
	Record(t Telemetry)
}

// NopSink 默认空实现
type NopSink struct{}

// Record 实现 TelemetrySink
func (NopSink) Record(Telemetry) {}

func newTelemetry(query string, strategy types.StrategyName) *Telemetry {
	return &Telemetry{
		QueryID:          uuid.NewString(),
		Query:            query,
		Strategy:         strategy,
		PerSourceLatency: map[types.Source]time.Duration{},
		PerSourceCounts:  map[types.Source]int{},
	}
}
