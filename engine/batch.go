package engine

import (
	"strings"

	"github.com/BaSui01/gamerag/types"
)

// GroupIntoBatches 把计划切成可并行的批次。
//
// 规则: 연속된 KS/VS 단계끼리 같은 배치. GRAPH_DB 단계는 앞 단계 결과에
// 의존하므로 새 배치를 연다 (단독 배치). 배치 안은 병렬, 배치 사이는 순차.
func GroupIntoBatches(plan []types.PlanStep) [][]types.PlanStep {
	if len(plan) == 0 {
		return nil
	}

	var batches [][]types.PlanStep
	var current []types.PlanStep

	for _, step := range plan {
		if step.Tool == types.ToolGraph {
			if len(current) > 0 {
				batches = append(batches, current)
				current = nil
			}
			batches = append(batches, []types.PlanStep{step})
			continue
		}
		current = append(current, step)
	}
	if len(current) > 0 {
		batches = append(batches, current)
	}
	return batches
}

// planFromHop 把 hop 形态输出展开成步骤序列。
// entities → KS, sentences → VS；hop >= 2 时每个 entity 追加一个 GS 步骤。
func planFromHop(hop *types.HopPlan) []types.PlanStep {
	var plan []types.PlanStep

	for _, e := range hop.Entities {
		plan = append(plan, types.PlanStep{
			Step: len(plan) + 1, Tool: types.ToolKeyword, Query: e,
			Rationale: "entity lookup",
		})
	}
	for _, s := range hop.Sentences {
		plan = append(plan, types.PlanStep{
			Step: len(plan) + 1, Tool: types.ToolVector, Query: s,
			Rationale: "sentence semantic search",
		})
	}
	if hop.Hop >= 2 {
		subjects := hop.Entities
		if len(subjects) == 0 && len(hop.Sentences) > 0 {
			// 엔티티가 없으면 앞 배치 결과로 조정될 자리만 남긴다
			subjects = []string{""}
		}
		for _, e := range subjects {
			plan = append(plan, types.PlanStep{
				Step: len(plan) + 1, Tool: types.ToolGraph, Query: e,
				Rationale: "relation traversal (" + hop.RelationHint + ")",
			})
		}
	}
	return plan
}

// pickPredicate 根据 relation hint 与原始问题挑选图遍历谓词。
func pickPredicate(relationHint, query string) string {
	hint := strings.ToUpper(relationHint)
	q := strings.ToLower(query)

	contains := func(s string, words ...string) bool {
		for _, w := range words {
			if strings.Contains(s, w) {
				return true
			}
		}
		return false
	}

	switch {
	case contains(hint, "ITEM-MONSTER", "MONSTER-ITEM") || contains(q, "드랍", "떨구", "얻"):
		return "DROPS"
	case contains(hint, "ITEM-NPC", "NPC-ITEM") || contains(q, "파는", "구매", "사는 곳"):
		return "SELLS"
	case contains(hint, "MAP-MAP") || contains(q, "가는", "이동"):
		return "CONNECTS_TO"
	case contains(hint, "MONSTER-MAP", "MONSTER") || contains(q, "몬스터", "몹"):
		return "SPAWNS_IN"
	case contains(hint, "NPC-MAP", "QUEST-NPC", "NPC"):
		return "LOCATED_IN"
	case contains(q, "어디", "위치"):
		return "LOCATED_IN"
	default:
		return "DROPS"
	}
}
