package types

// Source 检索来源标识
type Source string

const (
	SourceKeyword Source = "keyword"
	SourceVector  Source = "vector"
	SourceGraph   Source = "graph"
)

// AllSources 返回全部三个来源（固定顺序：keyword, vector, graph）。
func AllSources() []Source {
	return []Source{SourceKeyword, SourceVector, SourceGraph}
}

// SourceSet 来源集合。融合要求每条记录至少带一个来源；
// 适配器漏打来源标记按 bug 处理，不是退化模式。
type SourceSet map[Source]struct{}

// NewSourceSet builds a set from the given sources.
func NewSourceSet(sources ...Source) SourceSet {
	s := make(SourceSet, len(sources))
	for _, src := range sources {
		s[src] = struct{}{}
	}
	return s
}

// Add inserts a source into the set.
func (s SourceSet) Add(src Source) { s[src] = struct{}{} }

// Has reports membership.
func (s SourceSet) Has(src Source) bool {
	_, ok := s[src]
	return ok
}

// Union merges other into a copy of s.
func (s SourceSet) Union(other SourceSet) SourceSet {
	out := make(SourceSet, len(s)+len(other))
	for src := range s {
		out[src] = struct{}{}
	}
	for src := range other {
		out[src] = struct{}{}
	}
	return out
}

// Slice returns the members in the fixed AllSources order.
func (s SourceSet) Slice() []Source {
	var out []Source
	for _, src := range AllSources() {
		if s.Has(src) {
			out = append(out, src)
		}
	}
	return out
}

// MatchType 标记记录是如何被找到的
type MatchType string

const (
	MatchExactName   MatchType = "exact_name"
	MatchPrefix      MatchType = "prefix"
	MatchSubstring   MatchType = "substring"
	MatchSynonym     MatchType = "synonym"
	MatchDescription MatchType = "description_ilike"
	MatchDetailData  MatchType = "detail_data"
	MatchVector      MatchType = "vector_semantic"
)

// GraphMatchType returns the match type for a graph-derived record,
// e.g. graph_relation_SELLS.
func GraphMatchType(predicate string) MatchType {
	return MatchType("graph_relation_" + predicate)
}

// RetrievalResult 单条融合后的检索结果。
type RetrievalResult struct {
	Entity EntityRecord `json:"entity"`

	// PerSourceRank 每个来源内的 0 基排名（0 = 最优）。
	PerSourceRank map[Source]int `json:"per_source_rank,omitempty"`

	// PerSourceScore 来源原始分（序数语义，仅供展示；融合只用排名）。
	PerSourceScore map[Source]float64 `json:"per_source_score,omitempty"`

	// FusedScore RRF 融合分，归一化到 [0,100] 仅用于展示。
	FusedScore float64 `json:"fused_score"`

	Sources   SourceSet `json:"sources"`
	MatchType MatchType `json:"match_type"`
}

// SourceHit 适配器产出的单条带排名结果（进入融合前的形态）。
type SourceHit struct {
	Entity    EntityRecord
	Score     float64
	MatchType MatchType
}
