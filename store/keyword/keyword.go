// Package keyword implements exact and fuzzy keyword search over canonical
// names, synonyms, and free-text descriptions, and resolves aliases to
// canonical identifiers.
//
// 검색 우선순위:
//  1. canonical_name 정확 매칭 (가장 높은 점수)
//  2. canonical_name 전방 일치
//  3. synonyms 배열 검색
//  4. canonical_name 부분 일치
//  5. description 포함 검색 → canonical_name 재검색
//  6. detail JSON 포함 검색 (낮은 점수)
package keyword

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/gamerag/types"
)

// 阶段分值：序数语义，融合只用排名，分值仅决定库内先后。
const (
	scoreExact       = 100
	scorePrefix      = 95
	scoreSynonym     = 90
	scoreSubstring   = 80
	scoreDescription = 70
	scoreDetail      = 50
)

// 描述/detail 阶段各自的行数上限，防止模糊匹配淹没直接命中。
const (
	descriptionStageLimit = 5
	detailStageLimit      = 3
)

// Config 关键词库配置
type Config struct {
	// 直接阶段命中数低于该值时启用 description 补充检索
	DescriptionThreshold int
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{DescriptionThreshold: 3}
}

// Store 关键词检索器
type Store struct {
	db     *gorm.DB
	cfg    Config
	logger *zap.Logger
}

// NewStore 创建关键词检索器
func NewStore(db *gorm.DB, cfg Config, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DescriptionThreshold <= 0 {
		cfg.DescriptionThreshold = 3
	}
	return &Store{
		db:     db,
		cfg:    cfg,
		logger: logger.With(zap.String("component", "keyword_store")),
	}
}

// Search 两阶段检索。
// 失败开放：返回空结果 + 结构化 warning，绝不向编排器抛存储错误。
func (s *Store) Search(ctx context.Context, term string, categories []types.Category, limit int) ([]types.SourceHit, error) {
	term = strings.TrimSpace(term)
	if term == "" || limit <= 0 {
		return nil, nil
	}

	seen := make(map[string]struct{})
	var hits []types.SourceHit

	appendEntries := func(entries []DictionaryEntry, score float64, mt types.MatchType) {
		for i := range entries {
			if _, ok := seen[entries[i].ID]; ok {
				continue
			}
			seen[entries[i].ID] = struct{}{}
			hits = append(hits, types.SourceHit{
				Entity:    entries[i].ToRecord(),
				Score:     score,
				MatchType: mt,
			})
		}
	}

	// ── 阶段 1: 直接匹配 ──────────────────────────────────────────────

	exact, err := s.queryExact(ctx, term, categories)
	if err != nil {
		return nil, s.warn("exact stage failed", term, err)
	}
	appendEntries(exact, scoreExact, types.MatchExactName)

	prefix, err := s.queryLike(ctx, "canonical_name", escapeLike(term)+"%", categories, limit)
	if err != nil {
		return nil, s.warn("prefix stage failed", term, err)
	}
	appendEntries(prefix, scorePrefix, types.MatchPrefix)

	syn, err := s.querySynonym(ctx, term, categories)
	if err != nil {
		return nil, s.warn("synonym stage failed", term, err)
	}
	appendEntries(syn, scoreSynonym, types.MatchSynonym)

	sub, err := s.queryLike(ctx, "canonical_name", "%"+escapeLike(term)+"%", categories, limit)
	if err != nil {
		return nil, s.warn("substring stage failed", term, err)
	}
	appendEntries(sub, scoreSubstring, types.MatchSubstring)

	// ── 阶段 2: description 经由 canonical_name 재검색 ────────────────
	// 直接命中不足时才触发；description 命中先取 canonical_name 再走
	// 直接查询，避免描述文本噪声支配排序。

	if len(hits) < s.cfg.DescriptionThreshold {
		desc, err := s.queryLike(ctx, "description", "%"+escapeLike(term)+"%", categories, descriptionStageLimit)
		if err != nil {
			return nil, s.warn("description stage failed", term, err)
		}
		for i := range desc {
			confirmed, err := s.queryExact(ctx, desc[i].CanonicalName, categories)
			if err != nil {
				return nil, s.warn("description re-search failed", desc[i].CanonicalName, err)
			}
			appendEntries(confirmed, scoreDescription, types.MatchDescription)
		}

		detail, err := s.queryLike(ctx, "detail", "%"+escapeLike(term)+"%", categories, detailStageLimit)
		if err != nil {
			return nil, s.warn("detail stage failed", term, err)
		}
		appendEntries(detail, scoreDetail, types.MatchDetailData)
	}

	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// ResolveCanonical 把 surface form 解析为 canonical_name。
// 先精确匹配 canonical_name，其次 synonyms。
func (s *Store) ResolveCanonical(ctx context.Context, term string) (string, bool, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return "", false, nil
	}

	exact, err := s.queryExact(ctx, term, nil)
	if err != nil {
		return "", false, s.warn("canonical resolution failed", term, err)
	}
	if len(exact) > 0 {
		return exact[0].CanonicalName, true, nil
	}

	syn, err := s.querySynonym(ctx, term, nil)
	if err != nil {
		return "", false, s.warn("synonym resolution failed", term, err)
	}
	if len(syn) > 0 {
		return syn[0].CanonicalName, true, nil
	}
	return "", false, nil
}

// GetByCanonicalName 按正式名取完整记录（图结果 enrichment 用）。
func (s *Store) GetByCanonicalName(ctx context.Context, name string) (*types.EntityRecord, error) {
	entries, err := s.queryExact(ctx, name, nil)
	if err != nil {
		return nil, s.warn("get by canonical name failed", name, err)
	}
	if len(entries) == 0 {
		return nil, nil
	}
	rec := entries[0].ToRecord()
	return &rec, nil
}

// GetByIDs 按 id 批量取记录（向量结果投影用）。
func (s *Store) GetByIDs(ctx context.Context, ids []string) (map[string]types.EntityRecord, error) {
	if len(ids) == 0 {
		return map[string]types.EntityRecord{}, nil
	}

	var entries []DictionaryEntry
	err := s.db.WithContext(ctx).
		Where("id IN ?", ids).
		Find(&entries).Error
	if err != nil {
		return nil, s.warn("get by ids failed", "", err)
	}

	out := make(map[string]types.EntityRecord, len(entries))
	for i := range entries {
		out[entries[i].ID] = entries[i].ToRecord()
	}
	return out, nil
}

// SynonymMappings 实现 extract.DictionarySource。
func (s *Store) SynonymMappings(ctx context.Context) (map[string]string, error) {
	var entries []DictionaryEntry
	if err := s.db.WithContext(ctx).Find(&entries).Error; err != nil {
		return nil, s.warn("synonym mapping load failed", "", err)
	}

	mapping := make(map[string]string, len(entries)*2)
	for i := range entries {
		canonical := entries[i].CanonicalName
		mapping[canonical] = canonical
		for _, syn := range entries[i].SynonymList() {
			mapping[syn] = canonical
		}
	}
	return mapping, nil
}

// ── 查询原语 ────────────────────────────────────────────────────────────

func (s *Store) queryExact(ctx context.Context, term string, categories []types.Category) ([]DictionaryEntry, error) {
	var entries []DictionaryEntry
	q := s.db.WithContext(ctx).
		Where("LOWER(canonical_name) = LOWER(?)", term)
	q = filterCategories(q, categories)
	return entries, q.Find(&entries).Error
}

func (s *Store) queryLike(ctx context.Context, column, pattern string, categories []types.Category, limit int) ([]DictionaryEntry, error) {
	var entries []DictionaryEntry
	q := s.db.WithContext(ctx).
		Where("LOWER("+column+") LIKE LOWER(?) ESCAPE '\\'", pattern).
		Order("canonical_name").
		Limit(limit)
	q = filterCategories(q, categories)
	return entries, q.Find(&entries).Error
}

func (s *Store) querySynonym(ctx context.Context, term string, categories []types.Category) ([]DictionaryEntry, error) {
	// synonyms 为 JSON 数组文本：按带引号的成员匹配，避免部分词命中。
	var entries []DictionaryEntry
	q := s.db.WithContext(ctx).
		Where("synonyms LIKE ? ESCAPE '\\'", `%"`+escapeLike(term)+`"%`)
	q = filterCategories(q, categories)
	return entries, q.Find(&entries).Error
}

func filterCategories(q *gorm.DB, categories []types.Category) *gorm.DB {
	if len(categories) == 0 {
		return q
	}
	names := make([]string, len(categories))
	for i, c := range categories {
		names[i] = string(c)
	}
	return q.Where("category IN ?", names)
}

func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	return strings.ReplaceAll(s, "_", `\_`)
}

// warn 把底层错误包成结构化 warning 并记日志。
func (s *Store) warn(msg, term string, err error) error {
	code := types.ErrCodeStoreTransport
	if errors.Is(err, context.DeadlineExceeded) {
		code = types.ErrCodeStoreTimeout
	}
	s.logger.Warn(msg, zap.String("term", term), zap.Error(err))
	return types.NewError(code, msg).WithCause(err).WithSource(types.SourceKeyword)
}
