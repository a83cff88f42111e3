// MockProvider 的 LLM 提供商测试模拟实现。
//
// 支持固定响应、按序脚本响应与错误注入场景。
package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/BaSui01/gamerag/llm"
)

// MockProvider 是 llm.Provider 的模拟实现
type MockProvider struct {
	mu sync.Mutex

	// 响应配置
	response  string
	responses []string // 按序脚本响应，用尽后回落到 response
	err       error
	healthy   bool

	// 行为控制
	delay     time.Duration // 模拟延迟
	failAfter int           // 在第 N 次调用后开始失败（0 = 不启用）

	// 调用记录
	calls []llm.ChatRequest
}

// NewMockProvider 创建固定响应的模拟 Provider
func NewMockProvider(response string) *MockProvider {
	return &MockProvider{response: response, healthy: true}
}

// WithScript 设置按序响应脚本
func (m *MockProvider) WithScript(responses ...string) *MockProvider {
	m.responses = responses
	return m
}

// WithError 设置注入错误
func (m *MockProvider) WithError(err error) *MockProvider {
	m.err = err
	return m
}

// WithDelay 设置模拟延迟
func (m *MockProvider) WithDelay(d time.Duration) *MockProvider {
	m.delay = d
	return m
}

// WithFailAfter 在第 n 次调用后开始返回错误
func (m *MockProvider) WithFailAfter(n int, err error) *MockProvider {
	m.failAfter = n
	m.err = err
	return m
}

// WithUnhealthy 让健康检查失败
func (m *MockProvider) WithUnhealthy() *MockProvider {
	m.healthy = false
	return m
}

// Completion 实现 llm.Provider
func (m *MockProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	m.mu.Lock()
	m.calls = append(m.calls, *req)
	n := len(m.calls)
	var content string
	if len(m.responses) > 0 {
		idx := n - 1
		if idx >= len(m.responses) {
			idx = len(m.responses) - 1
		}
		content = m.responses[idx]
	} else {
		content = m.response
	}
	err := m.err
	if m.failAfter > 0 && n <= m.failAfter {
		err = nil
	}
	delay := m.delay
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	if err != nil {
		return nil, err
	}

	return &llm.ChatResponse{
		Provider:  m.Name(),
		Content:   content,
		CreatedAt: time.Now(),
	}, nil
}

// HealthCheck 实现 llm.Provider
func (m *MockProvider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return &llm.HealthStatus{Healthy: m.healthy}, nil
}

// Name 实现 llm.Provider
func (m *MockProvider) Name() string { return "mock" }

// Calls 返回全部调用记录
func (m *MockProvider) Calls() []llm.ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]llm.ChatRequest, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount 返回调用次数
func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}
