package extract

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// DictionarySource 提供同义词映射的数据面（由关键词库实现）。
type DictionarySource interface {
	// SynonymMappings 返回 surface form → canonical name 的完整映射。
	// canonical name 自身也应映射到自己。
	SynonymMappings(ctx context.Context) (map[string]string, error)
}

// SynonymMapper 同义词 → 正式名的内存缓存。
//
// 예: ['아진', '사'] → ['아이스진', '사']
type SynonymMapper struct {
	source DictionarySource
	logger *zap.Logger

	mu      sync.RWMutex
	mapping map[string]string
}

// NewSynonymMapper 创建同义词映射器（空缓存，需调用 Load）。
func NewSynonymMapper(source DictionarySource, logger *zap.Logger) *SynonymMapper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SynonymMapper{
		source:  source,
		logger:  logger.With(zap.String("component", "synonym_mapper")),
		mapping: map[string]string{},
	}
}

// Load 从数据面加载映射。失败时保留旧缓存并返回错误。
func (m *SynonymMapper) Load(ctx context.Context) error {
	mapping, err := m.source.SynonymMappings(ctx)
	if err != nil {
		m.logger.Warn("synonym mapping load failed, keeping previous cache", zap.Error(err))
		return err
	}

	m.mu.Lock()
	m.mapping = mapping
	m.mu.Unlock()

	m.logger.Info("synonym mappings loaded", zap.Int("count", len(mapping)))
	return nil
}

// Reload 重新加载（字典更新后调用）。
func (m *SynonymMapper) Reload(ctx context.Context) error { return m.Load(ctx) }

// Normalize 把同义词替换为正式名，未知词原样保留。
func (m *SynonymMapper) Normalize(keywords []string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]string, len(keywords))
	for i, kw := range keywords {
		if canonical, ok := m.mapping[kw]; ok {
			out[i] = canonical
		} else {
			out[i] = kw
		}
	}
	return out
}

// Size returns the number of cached mappings.
func (m *SynonymMapper) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.mapping)
}
