package extract

import "strings"

// Split 是 Entity/Sentence 切分结果。
// Entity（名词）走关键词库，Sentence（动词句）走向量库。
type Split struct {
	Entities  []string
	Sentences []string
}

// ReconstructNgrams 把抽取出的 token 序列重建为 Entity / Sentence 两组。
//
// 각 위치에서 4→3→2 길이의 연속 윈도우를 시도한다. 윈도우가 동사 접미사를
// 포함하고 원래 질문의 부분 문자열로 존재하면 가장 긴 것을 Sentence 로
// 채택한다. 윈도우를 못 만든 명사 토큰은 Entity, 고립된 동사는 버린다.
//
// 예: 원래 질문 "리스항구에서 물약 파는 사람", ['리스항구', '물약', '파는', '사람'] →
//
//	entities:  ['리스항구']
//	sentences: ['물약 파는 사람']
func ReconstructNgrams(tokens []string, originalQuery string, verbSuffixes []string) Split {
	var split Split

	hasVerb := func(tok string) bool {
		for _, v := range verbSuffixes {
			if strings.Contains(tok, v) {
				return true
			}
		}
		return false
	}

	i := 0
	for i < len(tokens) {
		accepted := false

		maxN := len(tokens) - i
		if maxN > 4 {
			maxN = 4
		}
		for n := maxN; n >= 2; n-- {
			window := tokens[i : i+n]

			windowHasVerb := false
			for _, tok := range window {
				if hasVerb(tok) {
					windowHasVerb = true
					break
				}
			}
			if !windowHasVerb {
				continue
			}

			phrase := strings.Join(window, " ")
			if strings.Contains(originalQuery, phrase) {
				split.Sentences = append(split.Sentences, phrase)
				i += n
				accepted = true
				break
			}
		}

		if !accepted {
			if !hasVerb(tokens[i]) {
				split.Entities = append(split.Entities, tokens[i])
			}
			i++
		}
	}

	split.Entities = dedupeOrdered(split.Entities)
	split.Sentences = dedupeOrdered(split.Sentences)
	return split
}
