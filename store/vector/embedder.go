package vector

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
)

// Embedder 生成查询嵌入。必须与入库使用同族模型（维度与归一化一致）。
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// HTTPEmbedderConfig OpenAI 兼容 /v1/embeddings 端点配置
type HTTPEmbedderConfig struct {
	URL    string        `json:"url"`
	APIKey string        `json:"api_key,omitempty"`
	Model  string        `json:"model"`
	// Dimension 期望维度，响应不一致时报错（与入库侧对齐）。
	Dimension int           `json:"dimension"`
	Timeout   time.Duration `json:"timeout,omitempty"`
}

// HTTPEmbedder OpenAI 兼容嵌入客户端
type HTTPEmbedder struct {
	cfg    HTTPEmbedderConfig
	client *http.Client
	logger *zap.Logger
}

// NewHTTPEmbedder 创建嵌入客户端
func NewHTTPEmbedder(cfg HTTPEmbedderConfig, logger *zap.Logger) *HTTPEmbedder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &HTTPEmbedder{
		cfg:    cfg,
		client: tlsutil.SecureHTTPClient(cfg.Timeout),
		logger: logger.With(zap.String("component", "embedder"), zap.String("model", cfg.Model)),
	}
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Embed 实现 Embedder
func (e *HTTPEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("embedding input is empty")
	}

	body, err := json.Marshal(embeddingRequest{Model: e.cfg.Model, Input: []string{text}})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if e.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.cfg.APIKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("read embedding response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding status %d: %s", resp.StatusCode, string(data[:min(len(data), 200)]))
	}

	var parsed embeddingResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("unmarshal embedding response: %w", err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("embedding error: %s", parsed.Error.Message)
	}
	if len(parsed.Data) == 0 {
		return nil, fmt.Errorf("embedding response has no data")
	}

	vec := parsed.Data[0].Embedding
	if e.cfg.Dimension > 0 && len(vec) != e.cfg.Dimension {
		return nil, fmt.Errorf("embedding dimension mismatch: got %d, want %d (ingestion model must match)",
			len(vec), e.cfg.Dimension)
	}
	return vec, nil
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
