package fusion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/gamerag/internal/tlsutil"
	"github.com/BaSui01/gamerag/types"
)

// Reranker 外部交叉编码器重排接口。
type Reranker interface {
	// Rerank 返回 (候选下标, 相关度分) 的有序列表。
	Rerank(ctx context.Context, query string, candidates []string, topN int) ([]RerankResult, error)
}

// RerankResult 单条重排结果
type RerankResult struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// HTTPRerankerConfig 重排服务配置
// 契约: POST {endpoint} {"query", "texts", "top_n"} → {"results":[{"index","score"}]}
type HTTPRerankerConfig struct {
	Endpoint string        `json:"endpoint"`
	Timeout  time.Duration `json:"timeout,omitempty"`
}

// HTTPReranker 交叉编码器 HTTP 客户端
type HTTPReranker struct {
	cfg    HTTPRerankerConfig
	client *http.Client
	logger *zap.Logger
}

// NewHTTPReranker 创建重排客户端
func NewHTTPReranker(cfg HTTPRerankerConfig, logger *zap.Logger) *HTTPReranker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 3 * time.Second
	}
	return &HTTPReranker{
		cfg:    cfg,
		client: tlsutil.SecureHTTPClient(cfg.Timeout),
		logger: logger.With(zap.String("component", "reranker")),
	}
}

type rerankRequest struct {
	Query string   `json:"query"`
	Texts []string `json:"texts"`
	TopN  int      `json:"top_n"`
}

type rerankResponse struct {
	Results []RerankResult `json:"results"`
}

// Rerank 实现 Reranker
func (r *HTTPReranker) Rerank(ctx context.Context, query string, candidates []string, topN int) ([]RerankResult, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	if topN > len(candidates) {
		topN = len(candidates)
	}

	body, err := json.Marshal(rerankRequest{Query: query, Texts: candidates, TopN: topN})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read rerank response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rerank status %d", resp.StatusCode)
	}

	var parsed rerankResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("unmarshal rerank response: %w", err)
	}
	return parsed.Results, nil
}

// ApplyRerank 对融合结果应用重排钩子。
//
// 取前 2·topN 条候选（"正式名 - 描述" 文本）交给交叉编码器，
// 按返回顺序重排；超时或失败时原样返回 RRF 顺序（fail-open）。
// 返回值第二项表示重排是否实际生效。
func ApplyRerank(ctx context.Context, reranker Reranker, query string, results []types.RetrievalResult, topN int, logger *zap.Logger) ([]types.RetrievalResult, bool) {
	if reranker == nil || len(results) <= topN {
		return results, false
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	window := results
	if len(window) > 2*topN {
		window = window[:2*topN]
	}

	texts := make([]string, len(window))
	for i, r := range window {
		text := r.Entity.CanonicalName
		if r.Entity.Description != "" {
			text += " - " + r.Entity.Description
		}
		texts[i] = strings.TrimSpace(text)
	}

	ranked, err := reranker.Rerank(ctx, query, texts, topN)
	if err != nil {
		logger.Warn("reranker failed, keeping rrf order", zap.Error(err))
		return results, false
	}
	if len(ranked) == 0 {
		return results, false
	}

	reordered := make([]types.RetrievalResult, 0, topN)
	for _, item := range ranked {
		if item.Index < 0 || item.Index >= len(window) {
			continue
		}
		reordered = append(reordered, window[item.Index])
	}
	if len(reordered) == 0 {
		return results, false
	}
	return reordered, true
}
