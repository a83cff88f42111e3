package llm

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

	"github.com/BaSui01/gamerag/types"
)

// OpenAICompatConfig OpenAI 兼容端点配置（Ollama / Groq / vLLM 等均适用）
type OpenAICompatConfig struct {
	BaseURL string        `json:"base_url"`
	APIKey  string        `json:"api_key,omitempty"`
	Model   string        `json:"model"`
	Timeout time.Duration `json:"timeout,omitempty"`
}

// OpenAICompatProvider 通过 /chat/completions 与 OpenAI 兼容服务通信。
type OpenAICompatProvider struct {
	cfg    OpenAICompatConfig
	client *http.Client
	logger *zap.Logger
}

// NewOpenAICompatProvider 创建 OpenAI 兼容 Provider
func NewOpenAICompatProvider(cfg OpenAICompatConfig, logger *zap.Logger) *OpenAICompatProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &OpenAICompatProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger.With(zap.String("component", "openai_compat"), zap.String("model", cfg.Model)),
	}
}

func (p *OpenAICompatProvider) Name() string { return "openai-compat:" + p.cfg.Model }

type chatCompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float32   `json:"temperature"`
	Stop        []string  `json:"stop,omitempty"`
	Stream      bool      `json:"stream"`
}

type chatCompletionResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Completion 实现 Provider.Completion
func (p *OpenAICompatProvider) Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = p.cfg.Model
	}

	body, err := json.Marshal(chatCompletionRequest{
		Model:       model,
		Messages:    req.Messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Stop:        req.Stop,
	})
	if err != nil {
		return nil, err
	}

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, types.NewError(types.ErrCodeLLMUnavailable, "chat completion request failed").
			WithCause(err).WithRetryable(true)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, types.NewError(types.ErrCodeLLMUnavailable, "reading chat completion response").WithCause(err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, types.NewError(types.ErrCodeLLMUnavailable,
			fmt.Sprintf("chat completion status %d: %s", resp.StatusCode, truncate(string(data), 200))).
			WithRetryable(resp.StatusCode >= 500)
	}

	var parsed chatCompletionResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, types.NewError(types.ErrCodeLLMMalformed, "unparseable chat completion body").WithCause(err)
	}
	if parsed.Error != nil {
		return nil, types.NewError(types.ErrCodeLLMUnavailable, parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return nil, types.NewError(types.ErrCodeLLMMalformed, "chat completion returned no choices")
	}

	return &ChatResponse{
		ID:        parsed.ID,
		Provider:  p.Name(),
		Model:     parsed.Model,
		Content:   parsed.Choices[0].Message.Content,
		CreatedAt: time.Now(),
	}, nil
}

// HealthCheck 用 GET /models 探活
func (p *OpenAICompatProvider) HealthCheck(ctx context.Context) (*HealthStatus, error) {
	start := time.Now()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.BaseURL+"/models", nil)
	if err != nil {
		return nil, err
	}
	if p.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return &HealthStatus{Healthy: false, Latency: time.Since(start), Detail: err.Error()}, nil
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	return &HealthStatus{
		Healthy: resp.StatusCode < 500,
		Latency: time.Since(start),
	}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
