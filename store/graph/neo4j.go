package graph

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

// Neo4jConfig 图库客户端配置（HTTP 事务 API）
type Neo4jConfig struct {
	BaseURL  string        `json:"base_url"`
	Database string        `json:"database,omitempty"` // Default: "neo4j"
	Username string        `json:"username,omitempty"`
	Password string        `json:"password,omitempty"`
	Timeout  time.Duration `json:"timeout,omitempty"`
}

// Neo4jClient 通过 POST /db/{db}/tx/commit 执行参数化 Cypher。
type Neo4jClient struct {
	cfg     Neo4jConfig
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

// NewNeo4jClient 创建图库客户端
func NewNeo4jClient(cfg Neo4jConfig, logger *zap.Logger) *Neo4jClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Database == "" {
		cfg.Database = "neo4j"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Neo4jClient{
		cfg:     cfg,
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		client:  tlsutil.SecureHTTPClient(cfg.Timeout),
		logger:  logger.With(zap.String("component", "neo4j_client")),
	}
}

type txStatement struct {
	Statement  string         `json:"statement"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

type txRequest struct {
	Statements []txStatement `json:"statements"`
}

type txResponse struct {
	Results []struct {
		Columns []string `json:"columns"`
		Data    []struct {
			Row []any `json:"row"`
		} `json:"data"`
	} `json:"results"`
	Errors []struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

// Query 执行单条参数化 Cypher，按列名返回行。
func (c *Neo4jClient) Query(ctx context.Context, cypher string, params map[string]any) ([]map[string]any, error) {
	body, err := json.Marshal(txRequest{
		Statements: []txStatement{{Statement: cypher, Parameters: params}},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal cypher request: %w", err)
	}

	url := fmt.Sprintf("%s/db/%s/tx/commit", c.baseURL, c.cfg.Database)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create cypher request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.cfg.Username != "" {
		req.SetBasicAuth(c.cfg.Username, c.cfg.Password)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do cypher request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read cypher response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("cypher request failed: status=%d body=%s", resp.StatusCode, string(data))
	}

	var parsed txResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("unmarshal cypher response: %w", err)
	}
	if len(parsed.Errors) > 0 {
		return nil, fmt.Errorf("cypher error: %s (%s)", parsed.Errors[0].Message, parsed.Errors[0].Code)
	}
	if len(parsed.Results) == 0 {
		return nil, nil
	}

	result := parsed.Results[0]
	rows := make([]map[string]any, 0, len(result.Data))
	for _, d := range result.Data {
		row := make(map[string]any, len(result.Columns))
		for i, col := range result.Columns {
			if i < len(d.Row) {
				row[col] = d.Row[i]
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}
