// Package vector implements semantic similarity search over precomputed
// embeddings of descriptive chunks tied to canonical entity ids.
//
// 每条 chunk 携带其实体 id；同一实体的多条 chunk 在单次调用内只保留相似度
// 最高的一条，随后按 id 关联关键词库补全完整实体记录。关键词库确认不了的
// 实体不会出现在返回值里。
package vector

import (
	"context"
	"errors"
	"sort"

	"go.uber.org/zap"

	"github.com/BaSui01/gamerag/types"
)

// EntityResolver 按 id 批量取实体记录（由关键词库实现）。
type EntityResolver interface {
	GetByIDs(ctx context.Context, ids []string) (map[string]types.EntityRecord, error)
}

// Store 向量检索器
type Store struct {
	embedder Embedder
	client   *MilvusClient
	resolver EntityResolver
	topK     int
	logger   *zap.Logger
}

// NewStore 创建向量检索器
func NewStore(embedder Embedder, client *MilvusClient, resolver EntityResolver, topK int, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	if topK <= 0 {
		topK = 5
	}
	return &Store{
		embedder: embedder,
		client:   client,
		resolver: resolver,
		topK:     topK,
		logger:   logger.With(zap.String("component", "vector_store")),
	}
}

// Search 语义检索。
// 失败开放：嵌入失败、检索失败、关联失败都返回空结果 + 结构化 warning。
func (s *Store) Search(ctx context.Context, text string, topK int, filter string) ([]types.SourceHit, error) {
	if topK <= 0 {
		topK = s.topK
	}

	embedding, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, s.warn("query embedding failed", err)
	}

	// 多取一些 chunk，去重后仍能填满 topK
	chunks, err := s.client.Search(ctx, embedding, topK*3, filter)
	if err != nil {
		return nil, s.warn("vector search failed", err)
	}
	if len(chunks) == 0 {
		return nil, nil
	}

	// 同一实体只保留相似度最高的 chunk。没有这步去重，
	// 近重复的描述 chunk 会占满 top-k 把其他实体挤出融合。
	best := make(map[string]ChunkHit, len(chunks))
	for _, ch := range chunks {
		if ch.EntityID == "" {
			continue
		}
		if prev, ok := best[ch.EntityID]; !ok || ch.Similarity > prev.Similarity {
			best[ch.EntityID] = ch
		}
	}

	deduped := make([]ChunkHit, 0, len(best))
	for _, ch := range best {
		deduped = append(deduped, ch)
	}
	sort.Slice(deduped, func(i, j int) bool {
		if deduped[i].Similarity != deduped[j].Similarity {
			return deduped[i].Similarity > deduped[j].Similarity
		}
		return deduped[i].EntityID < deduped[j].EntityID
	})
	if len(deduped) > topK {
		deduped = deduped[:topK]
	}

	// 关键词库投影：确认不了的实体直接丢弃
	ids := make([]string, len(deduped))
	for i, ch := range deduped {
		ids[i] = ch.EntityID
	}
	records, err := s.resolver.GetByIDs(ctx, ids)
	if err != nil {
		return nil, s.warn("entity projection failed", err)
	}

	hits := make([]types.SourceHit, 0, len(deduped))
	for _, ch := range deduped {
		rec, ok := records[ch.EntityID]
		if !ok {
			s.logger.Debug("dropping chunk with unknown entity",
				zap.String("chunk_id", ch.ChunkID),
				zap.String("entity_id", ch.EntityID))
			continue
		}
		hits = append(hits, types.SourceHit{
			Entity:    rec,
			Score:     ch.Similarity,
			MatchType: types.MatchVector,
		})
	}
	return hits, nil
}

func (s *Store) warn(msg string, err error) error {
	code := types.ErrCodeStoreTransport
	if errors.Is(err, context.DeadlineExceeded) {
		code = types.ErrCodeStoreTimeout
	}
	s.logger.Warn(msg, zap.Error(err))
	return types.NewError(code, msg).WithCause(err).WithSource(types.SourceVector)
}
