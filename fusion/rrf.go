// Package fusion merges per-store ranked lists into one ranked list using
// Reciprocal Rank Fusion, with an optional cross-encoder reranker for the
// final cut.
package fusion

import (
	"sort"

	"go.uber.org/zap"

	"github.com/BaSui01/gamerag/types"
)

// DefaultRRFK 是 RRF 常数 k 的文献值。排名融合对 k 不敏感，
// 没有过硬理由不要当调参旋钮用。
const DefaultRRFK = 60

// Config 融合配置
type Config struct {
	// RRF 常数 k
	K int
	// 来源权重。缺省 1.0；带宽校验在配置层完成。
	Weights map[types.Source]float64
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		K: DefaultRRFK,
		Weights: map[types.Source]float64{
			types.SourceKeyword: 1.0,
			types.SourceVector:  1.0,
			types.SourceGraph:   1.0,
		},
	}
}

// Fuser RRF 融合排序器
type Fuser struct {
	cfg    Config
	logger *zap.Logger
}

// NewFuser 创建融合排序器
func NewFuser(cfg Config, logger *zap.Logger) *Fuser {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.K <= 0 {
		cfg.K = DefaultRRFK
	}
	if cfg.Weights == nil {
		cfg.Weights = DefaultConfig().Weights
	}
	return &Fuser{cfg: cfg, logger: logger.With(zap.String("component", "fusion"))}
}

// fusedEntry 融合过程中单实体的累积状态
type fusedEntry struct {
	result types.RetrievalResult
	score  float64
}

// Fuse 把各来源的有序结果融合成单一排名。
//
// 公式: fused(e) = Σ_s w_s · 1/(k + rank_s(e))，rank 0 基。
//
// 同一实体出现在多个来源时贡献相加，sources 取并集。
// 图结果没有内在相关度：同一次图调用的所有记录共享 rank 0
// （来源内最大贡献）。
//
// 并列分数按以下顺序打破（可复现性关键）:
//  1. 关键词库命中优先
//  2. canonical_name 更短者优先
//  3. id 字典序
//
// 融合分最后相对单次查询最大值归一化到 [0,100]，仅用于展示，
// 不参与任何进一步排序决策。
func (f *Fuser) Fuse(resultsBySource map[types.Source][]types.SourceHit, topK int) []types.RetrievalResult {
	entries := make(map[string]*fusedEntry)

	for _, source := range types.AllSources() {
		hits := resultsBySource[source]
		if len(hits) == 0 {
			continue
		}

		weight, ok := f.cfg.Weights[source]
		if !ok {
			weight = 1.0
		}

		for rank, hit := range hits {
			if hit.Entity.ID == "" {
				// 없는 id는 융합에 못 들어간다: 적配器 버그
				f.logger.Warn("dropping hit without entity id",
					zap.String("source", string(source)),
					zap.String("name", hit.Entity.CanonicalName))
				continue
			}

			effectiveRank := rank
			if source == types.SourceGraph {
				effectiveRank = 0
			}

			entry, ok := entries[hit.Entity.ID]
			if !ok {
				entry = &fusedEntry{
					result: types.RetrievalResult{
						Entity:         hit.Entity,
						PerSourceRank:  map[types.Source]int{},
						PerSourceScore: map[types.Source]float64{},
						Sources:        types.NewSourceSet(),
						MatchType:      hit.MatchType,
					},
				}
				entries[hit.Entity.ID] = entry
			}

			// 同一来源内的重复实体只按最优名次计一次贡献
			if _, seen := entry.result.PerSourceRank[source]; !seen {
				entry.score += weight / float64(f.cfg.K+effectiveRank)
				entry.result.PerSourceRank[source] = effectiveRank
				entry.result.PerSourceScore[source] = hit.Score
			}
			entry.result.Sources.Add(source)

			// 图结果补充 relations；KS/VS 先到时保留已有字段，合并关系边
			if source == types.SourceGraph && len(hit.Entity.Relations) > 0 {
				entry.result.Entity.Relations = mergeRelations(entry.result.Entity.Relations, hit.Entity.Relations)
			}
		}
	}

	out := make([]*fusedEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, e)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score > out[j].score
		}
		return lessTieBreak(&out[i].result, &out[j].result)
	})

	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}

	// 归一化到 [0,100]（展示用）
	results := make([]types.RetrievalResult, len(out))
	var maxScore float64
	if len(out) > 0 {
		maxScore = out[0].score
	}
	for i, e := range out {
		r := e.result
		if maxScore > 0 {
			r.FusedScore = e.score / maxScore * 100
		}
		results[i] = r
	}
	return results
}

// lessTieBreak 并列打破规则
func lessTieBreak(a, b *types.RetrievalResult) bool {
	aKS, bKS := a.Sources.Has(types.SourceKeyword), b.Sources.Has(types.SourceKeyword)
	if aKS != bKS {
		return aKS
	}

	aLen, bLen := len([]rune(a.Entity.CanonicalName)), len([]rune(b.Entity.CanonicalName))
	if aLen != bLen {
		return aLen < bLen
	}

	return a.Entity.ID < b.Entity.ID
}

func mergeRelations(existing, incoming []types.Relation) []types.Relation {
	seen := make(map[types.Relation]struct{}, len(existing))
	for _, r := range existing {
		seen[r] = struct{}{}
	}
	for _, r := range incoming {
		if _, ok := seen[r]; !ok {
			existing = append(existing, r)
			seen[r] = struct{}{}
		}
	}
	return existing
}
