package llm

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BaSui01/gamerag/types"
)

// FailoverClient Primary + Backup 双端点客户端。
//
// 初始化时对 primary 探活，不可达则直接选 backup；
// 运行期 primary 出现不可用类错误时一次性切换到 backup（同一进程内不切回）。
// 调用失败时原样返回失败端点的错误（不改写错误码），由上层走规则降级。
type FailoverClient struct {
	primary Provider
	backup  Provider
	limiter *rate.Limiter
	logger  *zap.Logger

	mu       sync.RWMutex
	active   Provider
	switched bool
}

// NewFailoverClient 创建双端点客户端。backup 可以为 nil（单端点部署）。
// rateLimit 为每秒请求上限，0 表示不限流。
func NewFailoverClient(primary, backup Provider, rateLimit float64, logger *zap.Logger) *FailoverClient {
	if logger == nil {
		logger = zap.NewNop()
	}

	var limiter *rate.Limiter
	if rateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(rateLimit), int(rateLimit)+1)
	}

	return &FailoverClient{
		primary: primary,
		backup:  backup,
		active:  primary,
		limiter: limiter,
		logger:  logger.With(zap.String("component", "llm_failover")),
	}
}

// Init 探活 primary，不可达时选择 backup。
func (c *FailoverClient) Init(ctx context.Context) {
	healthCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	status, err := c.primary.HealthCheck(healthCtx)
	if err == nil && status.Healthy {
		c.logger.Info("primary llm healthy",
			zap.String("provider", c.primary.Name()),
			zap.Duration("latency", status.Latency))
		return
	}

	if c.backup != nil {
		c.logger.Warn("primary llm unreachable at init, switching to backup",
			zap.String("primary", c.primary.Name()),
			zap.String("backup", c.backup.Name()))
		c.switchOver()
	} else {
		c.logger.Warn("primary llm unreachable and no backup configured",
			zap.String("primary", c.primary.Name()))
	}
}

// Completion 实现 Provider.Completion，失败时一次性切换。
func (c *FailoverClient) Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, types.NewError(types.ErrCodeCancelled, "rate limiter wait cancelled").WithCause(err)
		}
	}

	c.mu.RLock()
	active := c.active
	switched := c.switched
	c.mu.RUnlock()

	resp, err := active.Completion(ctx, req)
	if err == nil {
		return resp, nil
	}
	if ctx.Err() != nil {
		return nil, types.NewError(types.ErrCodeCancelled, "llm call cancelled").WithCause(ctx.Err())
	}

	// 运行期切换：不可用类错误 + 尚未切换 + 有 backup
	if !switched && c.backup != nil && IsUnavailable(err) {
		c.logger.Warn("primary llm failed mid-query, switching to backup",
			zap.String("primary", active.Name()),
			zap.Error(err))
		c.switchOver()

		return c.backup.Completion(ctx, req)
	}

	return nil, err
}

// HealthCheck 实现 Provider.HealthCheck（针对当前活跃端点）
func (c *FailoverClient) HealthCheck(ctx context.Context) (*HealthStatus, error) {
	c.mu.RLock()
	active := c.active
	c.mu.RUnlock()
	return active.HealthCheck(ctx)
}

// Name 实现 Provider.Name
func (c *FailoverClient) Name() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.active.Name()
}

// Active returns the provider currently selected.
func (c *FailoverClient) Active() Provider {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.active
}

func (c *FailoverClient) switchOver() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.switched || c.backup == nil {
		return
	}
	c.active = c.backup
	c.switched = true
}
