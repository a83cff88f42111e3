package fusion

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/BaSui01/gamerag/types"
)

// drawHits 生成某来源的一段有序命中列表
func drawHits(rt *rapid.T, label string) []types.SourceHit {
	n := rapid.IntRange(0, 8).Draw(rt, label+"_n")
	hits := make([]types.SourceHit, n)
	for i := range hits {
		id := rapid.IntRange(0, 15).Draw(rt, fmt.Sprintf("%s_id_%d", label, i))
		hits[i] = types.SourceHit{
			Entity: types.EntityRecord{
				ID:            fmt.Sprintf("e:%02d", id),
				CanonicalName: fmt.Sprintf("엔티티%02d", id),
				Category:      types.CategoryItem,
			},
			MatchType: types.MatchVector,
		}
	}
	return hits
}

func drawInput(rt *rapid.T) map[types.Source][]types.SourceHit {
	return map[types.Source][]types.SourceHit{
		types.SourceKeyword: drawHits(rt, "ks"),
		types.SourceVector:  drawHits(rt, "vs"),
		types.SourceGraph:   drawHits(rt, "gs"),
	}
}

// Property: 融合是确定性的 —— 相同输入必须产生逐条相同的输出顺序。
func TestProperty_Fuse_Deterministic(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		input := drawInput(rt)
		f := NewFuser(DefaultConfig(), nil)

		first := f.Fuse(input, 10)
		second := f.Fuse(input, 10)

		require.Len(t, second, len(first))
		for i := range first {
			require.Equal(t, first[i].Entity.ID, second[i].Entity.ID)
			require.Equal(t, first[i].FusedScore, second[i].FusedScore)
		}
	})
}

// Property: 每条结果的 sources 非空且为 {KS, VS, GS} 子集；结果数不超过 topK。
func TestProperty_Fuse_SourcesInvariant(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		input := drawInput(rt)
		topK := rapid.IntRange(1, 12).Draw(rt, "topK")
		f := NewFuser(DefaultConfig(), nil)

		results := f.Fuse(input, topK)
		require.LessOrEqual(t, len(results), topK)

		for _, r := range results {
			members := r.Sources.Slice()
			require.NotEmpty(t, members)
			for _, src := range members {
				require.Contains(t, types.AllSources(), src)
			}
		}
	})
}

// Property: 单调来源贡献 —— 给某一来源追加一条记录，
// 已有记录的融合原始分不会下降（归一化前）。
func TestProperty_Fuse_MonotoneContribution(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		input := drawInput(rt)
		f := NewFuser(DefaultConfig(), nil)

		beforeRaw := rawScores(f, input)

		extraID := rapid.IntRange(16, 20).Draw(rt, "extra")
		augmented := map[types.Source][]types.SourceHit{}
		for src, hits := range input {
			augmented[src] = hits
		}
		augmented[types.SourceVector] = append(
			append([]types.SourceHit{}, input[types.SourceVector]...),
			types.SourceHit{
				Entity: types.EntityRecord{
					ID:            fmt.Sprintf("e:%02d", extraID),
					CanonicalName: "추가",
					Category:      types.CategoryItem,
				},
				MatchType: types.MatchVector,
			})

		afterRaw := rawScores(f, augmented)

		for id, s := range beforeRaw {
			require.GreaterOrEqual(t, afterRaw[id]+1e-12, s,
				"adding a record to one source must not lower another record's fused score")
		}
	})
}

// rawScores 重新计算归一化前的 RRF 原始分（测试辅助）。
func rawScores(f *Fuser, input map[types.Source][]types.SourceHit) map[string]float64 {
	out := map[string]float64{}
	for _, source := range types.AllSources() {
		weight := f.cfg.Weights[source]
		seen := map[string]struct{}{}
		for rank, hit := range input[source] {
			if hit.Entity.ID == "" {
				continue
			}
			if _, dup := seen[hit.Entity.ID]; dup {
				continue
			}
			seen[hit.Entity.ID] = struct{}{}
			r := rank
			if source == types.SourceGraph {
				r = 0
			}
			out[hit.Entity.ID] += weight / float64(f.cfg.K+r)
		}
	}
	return out
}
