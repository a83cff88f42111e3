package engine

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/BaSui01/gamerag/fusion"
	"github.com/BaSui01/gamerag/types"
)

// drawStoreHits 임의의 스토어 결과 생성
func drawStoreHits(rt *rapid.T, label string, mt types.MatchType) []types.SourceHit {
	n := rapid.IntRange(0, 6).Draw(rt, label+"_n")
	hits := make([]types.SourceHit, n)
	for i := range hits {
		id := rapid.IntRange(0, 10).Draw(rt, fmt.Sprintf("%s_%d", label, i))
		hits[i] = types.SourceHit{
			Entity: types.EntityRecord{
				ID:            fmt.Sprintf("e:%02d", id),
				CanonicalName: fmt.Sprintf("이름%02d", id),
				Category:      types.CategoryItem,
			},
			MatchType: mt,
		}
	}
	return hits
}

// Property: 결과 수는 limit 이하, 모든 결과의 sources 는 비어 있지 않은
// {KS, VS, GS} 부분집합, 그리고 같은 입력으로 두 번 부르면 같은 순서.
func TestProperty_Search_LimitAndSourcesAndIdempotence(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		ksHits := drawStoreHits(rt, "ks", types.MatchExactName)
		vsHits := drawStoreHits(rt, "vs", types.MatchVector)
		limit := rapid.IntRange(1, 8).Draw(rt, "limit")
		useGraph := rapid.Bool().Draw(rt, "useGraph")

		ks := &fakeKS{
			hits:  map[string][]types.SourceHit{"용어": ksHits},
			canon: map[string]string{"용어": "용어"},
		}
		vs := &fakeVS{hits: map[string][]types.SourceHit{"문장": vsHits}}

		hop := &types.HopPlan{Hop: 1, Entities: []string{"용어"}, Sentences: []string{"문장"}}
		gs := &fakeGS{}
		if useGraph {
			hop.Hop = 2
			gs.hits = drawStoreHits(rt, "gs", types.GraphMatchType("DROPS"))
		}

		router := hopRouter(types.StrategyHop, hop, types.ActualLLM)
		e, err := New(Deps{
			Router: router, Keyword: ks, Vector: vs, Graph: gs,
			Fuser: fusion.NewFuser(fusion.DefaultConfig(), nil),
		}, DefaultConfig())
		require.NoError(rt, err)

		first, err := e.Search(context.Background(), "용어 문장", limit)
		require.NoError(rt, err)

		require.LessOrEqual(rt, len(first.Results), limit)
		for _, r := range first.Results {
			members := r.Sources.Slice()
			require.NotEmpty(rt, members)
			for _, src := range members {
				require.Contains(rt, types.AllSources(), src)
			}
		}

		// 스토어가 고정돼 있으면 재진입은 같은 id 를 같은 순서로 낸다
		second, err := e.Search(context.Background(), "용어 문장", limit)
		require.NoError(rt, err)
		require.Len(rt, second.Results, len(first.Results))
		for i := range first.Results {
			require.Equal(rt, first.Results[i].Entity.ID, second.Results[i].Entity.ID)
		}
	})
}
