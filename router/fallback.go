package router

import (
	"context"
	"strings"

	"github.com/BaSui01/gamerag/types"
)

// rulePlan LLM 불가 시 규칙 기반 전략. 질문 패턴으로 도구 선택을 결정한다.
// 모든 전략의 결정적 폴백이며 같은 질문에 항상 같은 계획을 낸다.
func (r *Router) rulePlan(ctx context.Context, query string) *types.RouterOutput {
	q := strings.ToLower(query)
	ext := r.extractor.Extract(ctx, query)

	contains := func(words ...string) bool {
		for _, w := range words {
			if strings.Contains(q, w) {
				return true
			}
		}
		return false
	}

	out := &types.RouterOutput{
		Strategy:      r.strategy,
		Actual:        types.ActualFallback,
		CategoryHints: categoryHints(query),
	}

	firstTerm := func() string {
		if len(ext.Entities) > 0 {
			return ext.Entities[0]
		}
		if len(ext.Sentences) > 0 {
			return ext.Sentences[0]
		}
		return query
	}

	switch {
	// 전직: NPC 찾고 위치 추적
	case contains("전직", "직업", "배우"):
		out.Thought = "전직 담당 NPC를 찾고 그 위치를 추적"
		out.Plan = []types.PlanStep{
			{Step: 1, Tool: types.ToolKeyword, Query: firstTerm(), Rationale: "전직 NPC 조회"},
			{Step: 2, Tool: types.ToolGraph, Query: firstTerm(), Rationale: "NPC 위치 추적"},
		}

	// 사냥터 추천: 의미 검색
	case contains("사냥터", "사냥", "레벨업", "추천"):
		out.Thought = "의미 기반으로 적합한 사냥터 추천"
		out.Plan = []types.PlanStep{
			{Step: 1, Tool: types.ToolVector, Query: query, Rationale: "사냥터 의미 검색"},
		}

	// 아이템 획득: 구매/드랍 경로 모두
	case contains("구하", "구매", "파는", "상점", "어디서 사"):
		out.Thought = "구매 경로와 드랍 경로 모두 확인"
		out.Plan = []types.PlanStep{
			{Step: 1, Tool: types.ToolKeyword, Query: firstTerm(), Rationale: "아이템 기본 정보"},
			{Step: 2, Tool: types.ToolGraph, Query: firstTerm(), Rationale: "판매 NPC 확인"},
			{Step: 3, Tool: types.ToolGraph, Query: firstTerm(), Rationale: "드랍 몬스터 확인"},
		}

	// 드랍: 몬스터 찾고 위치 추적
	case contains("드랍", "떨구", "떨어", "나와", "얻"):
		out.Thought = "드랍 몬스터를 찾고 출현 맵 추적"
		out.Plan = []types.PlanStep{
			{Step: 1, Tool: types.ToolKeyword, Query: firstTerm(), Rationale: "아이템 확인"},
			{Step: 2, Tool: types.ToolGraph, Query: firstTerm(), Rationale: "드랍 몬스터 추적"},
		}

	// 몬스터: 정보 + 출현 맵
	case contains("잡", "몬스터", "몹"):
		out.Thought = "몬스터 정보 조회 후 출현 맵 확인"
		out.Plan = []types.PlanStep{
			{Step: 1, Tool: types.ToolKeyword, Query: firstTerm(), Rationale: "몬스터 스펙 조회"},
			{Step: 2, Tool: types.ToolGraph, Query: firstTerm(), Rationale: "출현 맵 추적"},
		}

	// 이동 경로
	case contains("가는", "이동", "가려면"):
		out.Thought = "맵 간 이동 경로 탐색"
		out.Plan = []types.PlanStep{
			{Step: 1, Tool: types.ToolKeyword, Query: firstTerm(), Rationale: "맵 확인"},
			{Step: 2, Tool: types.ToolGraph, Query: firstTerm(), Rationale: "연결 맵 탐색"},
		}

	// 위치 질문: 직접 조회
	case contains("어디", "위치"):
		out.Thought = "엔티티 이름으로 직접 조회"
		out.Plan = []types.PlanStep{
			{Step: 1, Tool: types.ToolKeyword, Query: firstTerm(), Rationale: "직접 조회"},
		}

	// 일반: 의미 검색
	default:
		out.Thought = "의도 불명, 의미 검색"
		out.Plan = []types.PlanStep{
			{Step: 1, Tool: types.ToolVector, Query: query, Rationale: "의미 검색"},
		}
	}

	// Entity/Sentence 추출 결과를 계획에 반영: sentence가 있으면 VECTOR 단계 보강
	if len(ext.Sentences) > 0 && !hasTool(out.Plan, types.ToolVector) {
		out.Plan = append(out.Plan, types.PlanStep{
			Step: len(out.Plan) + 1, Tool: types.ToolVector,
			Query: ext.Sentences[0], Rationale: "동사구 의미 검색",
		})
	}

	return out
}

// ruleHop HOP 폴백: 형태학 추출 + hop=1.
func (r *Router) ruleHop(ctx context.Context, query string) *types.RouterOutput {
	ext := r.extractor.Extract(ctx, query)
	return &types.RouterOutput{
		Strategy: r.strategy,
		Actual:   types.ActualFallback,
		Hop: &types.HopPlan{
			Hop:       1,
			Entities:  ext.Entities,
			Sentences: ext.Sentences,
		},
		CategoryHints: categoryHints(query),
	}
}

func hasTool(plan []types.PlanStep, tool types.Tool) bool {
	for _, s := range plan {
		if s.Tool == tool {
			return true
		}
	}
	return false
}

// categoryHints 원본 질문 기반 카테고리 보정 (LLM이 놓친 경우 대비).
func categoryHints(query string) []types.Category {
	q := strings.ToLower(query)
	var hints []types.Category

	add := func(c types.Category) {
		for _, h := range hints {
			if h == c {
				return
			}
		}
		hints = append(hints, c)
	}

	for _, w := range []string{"아이템", "구하", "구매", "파는", "드랍", "떨구", "나와"} {
		if strings.Contains(q, w) {
			add(types.CategoryItem)
			break
		}
	}
	for _, w := range []string{"몬스터", "몹", "잡"} {
		if strings.Contains(q, w) {
			add(types.CategoryMonster)
			break
		}
	}
	for _, w := range []string{"npc", "상인", "전직"} {
		if strings.Contains(q, w) {
			add(types.CategoryNPC)
			break
		}
	}
	for _, w := range []string{"맵", "사냥터", "지역", "어디"} {
		if strings.Contains(q, w) {
			add(types.CategoryMap)
			break
		}
	}
	return hints
}
