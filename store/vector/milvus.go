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

// MilvusConfig 配置 Milvus REST API (v2) 客户端。
type MilvusConfig struct {
	BaseURL    string `json:"base_url"`
	Token      string `json:"token,omitempty"` // For Zilliz Cloud
	Database   string `json:"database,omitempty"`
	Collection string `json:"collection"`

	// Schema 设置
	VectorField  string `json:"vector_field,omitempty"`  // Default: "embedding"
	ChunkIDField string `json:"chunk_id_field,omitempty"` // Default: "chunk_id"
	EntityField  string `json:"entity_id_field,omitempty"` // Default: "entity_id"

	Timeout time.Duration `json:"timeout,omitempty"`
}

// ChunkHit 单条向量命中：chunk → 所属实体 + 相似度。
type ChunkHit struct {
	ChunkID    string  `json:"chunk_id"`
	EntityID   string  `json:"entity_id"`
	Similarity float64 `json:"similarity"`
}

// MilvusClient 通过 Milvus REST API (v2) 执行最近邻检索。
type MilvusClient struct {
	cfg     MilvusConfig
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

// NewMilvusClient 创建 Milvus 客户端
func NewMilvusClient(cfg MilvusConfig, logger *zap.Logger) *MilvusClient {
	if logger == nil {
		logger = zap.NewNop()
	}

	// 应用默认
	if cfg.Database == "" {
		cfg.Database = "default"
	}
	if cfg.VectorField == "" {
		cfg.VectorField = "embedding"
	}
	if cfg.ChunkIDField == "" {
		cfg.ChunkIDField = "chunk_id"
	}
	if cfg.EntityField == "" {
		cfg.EntityField = "entity_id"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}

	return &MilvusClient{
		cfg:     cfg,
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		client:  tlsutil.SecureHTTPClient(cfg.Timeout),
		logger:  logger.With(zap.String("component", "milvus_client")),
	}
}

// Search 按向量检索 topK 个 chunk。filter 为 Milvus 过滤表达式（可为空）。
func (c *MilvusClient) Search(ctx context.Context, embedding []float32, topK int, filter string) ([]ChunkHit, error) {
	if strings.TrimSpace(c.cfg.Collection) == "" {
		return nil, fmt.Errorf("milvus collection is required")
	}
	if topK <= 0 {
		return []ChunkHit{}, nil
	}
	if len(embedding) == 0 {
		return nil, fmt.Errorf("query embedding is required")
	}

	req := map[string]any{
		"dbName":         c.cfg.Database,
		"collectionName": c.cfg.Collection,
		"data":           [][]float32{embedding},
		"annsField":      c.cfg.VectorField,
		"limit":          topK,
		"outputFields":   []string{c.cfg.ChunkIDField, c.cfg.EntityField},
	}
	if filter != "" {
		req["filter"] = filter
	}

	var resp struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Data    [][]struct {
			ID       string         `json:"id"`
			Distance float64        `json:"distance"`
			Entity   map[string]any `json:"entity"`
		} `json:"data"`
	}

	if err := c.doJSON(ctx, http.MethodPost, "/v2/vectordb/entities/search", req, &resp); err != nil {
		return nil, fmt.Errorf("search entities: %w", err)
	}

	hits := make([]ChunkHit, 0)
	if len(resp.Data) > 0 {
		for _, hit := range resp.Data[0] {
			ch := ChunkHit{ChunkID: hit.ID, Similarity: hit.Distance}
			if hit.Entity != nil {
				if v, ok := hit.Entity[c.cfg.ChunkIDField].(string); ok {
					ch.ChunkID = v
				}
				if v, ok := hit.Entity[c.cfg.EntityField].(string); ok {
					ch.EntityID = v
				}
			}
			hits = append(hits, ch)
		}
	}
	return hits, nil
}

func (c *MilvusClient) doJSON(ctx context.Context, method, path string, in any, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	// Milvus REST API 错误也可能带 200 状态码，需要检查响应体
	var baseResp struct {
		Code    int    `json:"code"`
		Message string `json:"message,omitempty"`
	}
	if err := json.Unmarshal(respBody, &baseResp); err == nil && baseResp.Code != 0 {
		return fmt.Errorf("milvus error: code=%d message=%s", baseResp.Code, baseResp.Message)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("milvus request failed: status=%d body=%s", resp.StatusCode, string(respBody))
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}
