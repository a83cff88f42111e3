// Package extract derives search terms from a free-text question and splits
// them into entities (noun-like tokens, routed to the keyword store) and
// sentences (verb-bearing phrases, routed to the vector store).
//
// Two backends run in priority order: a tightly bounded LLM call, then a
// deterministic morphological tokenizer. Both feed the same n-gram
// reconstruction.
package extract

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/gamerag/llm"
)

const extractSystemPrompt = `질문에서 검색 키워드를 추출하라.
규칙:
- 정확히 3개의 키워드를 쉼표로 구분해 첫 줄에 출력 (가능하면 고유명사)
- 둘째 줄에 동사구 포함 여부를 VERB=yes 또는 VERB=no 로 출력
- 다른 설명 없이 두 줄만 출력`

// Extraction 抽取结果
type Extraction struct {
	RawTokens []string `json:"raw_tokens"`
	Entities  []string `json:"entities"`
	Sentences []string `json:"sentences"`
}

// Config 抽取器配置
type Config struct {
	VerbSuffixes         []string
	FallbackToMorphology bool
	LLMTimeout           time.Duration
}

// Extractor 关键词抽取器
type Extractor struct {
	provider llm.Provider // nil = 纯形态学模式
	mapper   *SynonymMapper
	cfg      Config
	logger   *zap.Logger
}

// NewExtractor 创建抽取器。provider 与 mapper 均可为 nil。
func NewExtractor(provider llm.Provider, mapper *SynonymMapper, cfg Config, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.LLMTimeout == 0 {
		cfg.LLMTimeout = 2 * time.Second
	}
	return &Extractor{
		provider: provider,
		mapper:   mapper,
		cfg:      cfg,
		logger:   logger.With(zap.String("component", "keyword_extractor")),
	}
}

// Extract 抽取关键词并做 Entity/Sentence 切分。
// 两个后端都失败时退化为把原始问题当作单个 sentence 返回，从不报错。
func (e *Extractor) Extract(ctx context.Context, query string) Extraction {
	query = strings.TrimSpace(query)
	if query == "" {
		return Extraction{}
	}

	tokens, ok := e.llmTokens(ctx, query)
	if !ok {
		if !e.cfg.FallbackToMorphology && e.provider != nil {
			// 降级被禁用：原始问题整体作为 sentence
			return Extraction{Sentences: []string{query}}
		}
		tokens = MorphTokenize(query)
	}

	if e.mapper != nil {
		tokens = dedupeOrdered(e.mapper.Normalize(tokens))
	}

	split := ReconstructNgrams(tokens, query, e.cfg.VerbSuffixes)

	// 退化兜底：什么都没抽出来时用原始问题
	if len(split.Entities) == 0 && len(split.Sentences) == 0 {
		e.logger.Debug("extraction produced nothing, falling back to raw query",
			zap.String("query", query))
		return Extraction{RawTokens: tokens, Sentences: []string{query}}
	}

	return Extraction{
		RawTokens: tokens,
		Entities:  split.Entities,
		Sentences: split.Sentences,
	}
}

// llmTokens 尝试 LLM 抽取，返回 (tokens, 是否成功)。
func (e *Extractor) llmTokens(ctx context.Context, query string) ([]string, bool) {
	if e.provider == nil {
		return nil, false
	}

	llmCtx, cancel := context.WithTimeout(ctx, e.cfg.LLMTimeout)
	defer cancel()

	resp, err := e.provider.Completion(llmCtx, &llm.ChatRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: extractSystemPrompt},
			{Role: llm.RoleUser, Content: query},
		},
		Temperature: 0,
		MaxTokens:   64,
	})
	if err != nil {
		e.logger.Warn("llm keyword extraction failed, using morphological fallback",
			zap.Error(err))
		return nil, false
	}

	tokens := parseKeywordLine(resp.Content)
	if len(tokens) == 0 {
		e.logger.Warn("llm keyword extraction returned nothing usable",
			zap.String("content", resp.Content))
		return nil, false
	}
	return tokens, true
}

// parseKeywordLine 解析 "kw1, kw2, kw3" 首行，忽略 VERB 标志行。
func parseKeywordLine(content string) []string {
	lines := strings.Split(strings.TrimSpace(content), "\n")
	if len(lines) == 0 {
		return nil
	}

	var tokens []string
	for _, part := range strings.Split(lines[0], ",") {
		tok := strings.TrimSpace(part)
		tok = strings.Trim(tok, `"'`)
		if tok == "" || strings.HasPrefix(strings.ToUpper(tok), "VERB=") {
			continue
		}
		tokens = append(tokens, tok)
	}
	return dedupeOrdered(tokens)
}
