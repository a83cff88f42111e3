package router

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// HOP 전략 분석가 프롬프트: 관계 깊이(hop)와 Entity/Sentence 분리를 판단한다.
const hopSystemPrompt = `너는 게임 지식 검색 시스템의 '전략 분석가'야.
유저 질문을 분석해 관계 깊이(hop)와 검색어 분리를 결정해라.

[저장소]
1. SQL_DB: 고유명사/아이템명/NPC명/맵명 같은 Entity(명사) 정확 조회
2. VECTOR_DB: "물약 파는 사람" 같은 Sentence(동사구) 의미 검색
3. GRAPH_DB: 엔티티 간 관계 추적 (NPC-MAP 위치, MONSTER-MAP 출현,
   NPC-ITEM 판매, MONSTER-ITEM 드랍, MAP-MAP 연결)

[관계 깊이]
- hop=1: 직접 관계. SQL_DB + VECTOR_DB 로 해결 가능
  예: "다크로드 어디?", "물약 파는 사람"
- hop=2: 체인 관계. GRAPH_DB 필요
  예: "아이스진 얻으려면?" (ITEM→MONSTER→MAP), "도적 전직 어디서?" (QUEST→NPC→MAP)

[출력 규격] 반드시 아래 JSON 형식으로만 답해:
{
  "thought": "질문 분석",
  "hop": 1,
  "relation": "NPC-MAP",
  "entities": ["엔티티1"],
  "sentences": ["동사구1"]
}`

// PLAN 전략 프롬프트: 순서 있는 검색 계획을 세운다.
const planSystemPrompt = `너는 게임 지식 검색 시스템의 계획 수립자야.
유저 질문을 해결하기 위한 최대 4단계의 검색 계획을 세워라.

도구: SQL_DB (명사 정확 조회) | VECTOR_DB (의미 검색) | GRAPH_DB (관계 추적)
GRAPH_DB 단계의 query 에는 앞 단계에서 찾을 엔티티의 정식 명칭을 쓴다.

[출력 규격] 반드시 아래 JSON 형식으로만 답해:
{
  "thought": "질문 분석",
  "plan": [
    {"step": 1, "tool": "SQL_DB", "query": "아이스진", "reason": "아이템 기본 정보 조회"},
    {"step": 2, "tool": "GRAPH_DB", "query": "아이스진", "reason": "드랍 몬스터 추적"}
  ]
}`

// INTENT 전략 프롬프트: 닫힌 intent 집합으로 분류만 한다.
const intentSystemPrompt = `너는 게임 지식 검색 시스템의 Router야.
유저 질문의 의도를 아래 목록 중 하나로 분류해라.

- class_change: 전직 (예: "도적 전직 어디서?")
- npc_location: NPC 위치 (예: "다크로드 어디?")
- hunting_ground: 사냥터 추천 (예: "20레벨 사냥터")
- map_location: 맵 위치/이동 (예: "헤네시스 가는 법")
- item_purchase: 아이템 구매 (예: "아이스진 어디서 사?")
- item_drop: 아이템 드랍 (예: "아이스진 떨구는 몹")
- monster_location: 몬스터 위치 (예: "스포아 어디?")
- monster_info: 몬스터 정보 (예: "스포아 레벨")
- general: 그 외 일반 질문

[출력 규격] 반드시 아래 JSON 형식으로만 답해:
{"intent": "npc_location", "keywords": ["다크로드"]}`

// promptBudget bounds the user-supplied part of every router prompt.
// The system prompt is fixed; the query is the only variable part.
type promptBudget struct {
	tokens int

	once sync.Once
	enc  *tiktoken.Tiktoken
}

func newPromptBudget(tokens int) *promptBudget {
	if tokens <= 0 {
		tokens = 512
	}
	return &promptBudget{tokens: tokens}
}

// Bound 把查询截断到 token 预算内。
// BPE 词表加载失败时退化为按 rune 截断（预算×4 近似）。
func (b *promptBudget) Bound(query string) string {
	query = strings.TrimSpace(query)

	// 한 토큰은 최소 한 바이트: 바이트 수가 예산 이하면 셀 필요도 없다
	if len(query) <= b.tokens {
		return query
	}

	b.once.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			b.enc = enc
		}
	})

	if b.enc != nil {
		ids := b.enc.Encode(query, nil, nil)
		if len(ids) <= b.tokens {
			return query
		}
		return b.enc.Decode(ids[:b.tokens])
	}

	runes := []rune(query)
	if len(runes) <= b.tokens*4 {
		return query
	}
	return string(runes[:b.tokens*4])
}
