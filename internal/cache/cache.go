// Package cache provides the Redis-backed query result cache.
// This package is internal and should not be imported by external projects.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/gamerag/types"
)

// =============================================================================
// 💾 查询结果缓存
// =============================================================================

// Config 缓存配置
type Config struct {
	// Redis 地址（空 = 禁用）
	Addr string `yaml:"addr" json:"addr"`

	// 密码
	Password string `yaml:"password" json:"password"`

	// 数据库编号
	DB int `yaml:"db" json:"db"`

	// 结果过期时间
	TTL time.Duration `yaml:"ttl" json:"ttl"`

	// 连接池大小
	PoolSize int `yaml:"pool_size" json:"pool_size"`
}

// DefaultConfig 返回默认缓存配置
func DefaultConfig() Config {
	return Config{
		TTL:      5 * time.Minute,
		PoolSize: 10,
	}
}

// ResultCache 融合结果缓存。键 = (strategy, query, limit) 摘要。
type ResultCache struct {
	redis  *redis.Client
	config Config
	logger *zap.Logger
	mu     sync.RWMutex
	closed bool
}

// New 创建结果缓存并探活。
func New(config Config, logger *zap.Logger) (*ResultCache, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.TTL <= 0 {
		config.TTL = 5 * time.Minute
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
		PoolSize: config.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	c := &ResultCache{
		redis:  client,
		config: config,
		logger: logger.With(zap.String("component", "result_cache")),
	}

	c.logger.Info("result cache initialized",
		zap.String("addr", config.Addr),
		zap.Duration("ttl", config.TTL),
	)

	return c, nil
}

// Key 计算缓存键
func Key(strategy types.StrategyName, query string, limit int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%d", strategy, query, limit)))
	return "gamerag:search:" + hex.EncodeToString(sum[:16])
}

// Get 读取缓存结果。miss 或反序列化失败都返回 (nil, false)。
func (c *ResultCache) Get(ctx context.Context, key string) ([]types.RetrievalResult, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return nil, false
	}

	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("cache get failed", zap.Error(err))
		}
		return nil, false
	}

	var results []types.RetrievalResult
	if err := json.Unmarshal(data, &results); err != nil {
		c.logger.Warn("cache entry unmarshal failed, dropping", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return results, true
}

// Set 写入缓存结果（fire-and-forget 语义，失败只记日志）。
func (c *ResultCache) Set(ctx context.Context, key string, results []types.RetrievalResult) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return
	}

	data, err := json.Marshal(results)
	if err != nil {
		c.logger.Warn("cache entry marshal failed", zap.Error(err))
		return
	}

	if err := c.redis.Set(ctx, key, data, c.config.TTL).Err(); err != nil {
		c.logger.Warn("cache set failed", zap.Error(err))
	}
}

// Close 关闭缓存连接
func (c *ResultCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	c.logger.Info("closing result cache")
	return c.redis.Close()
}
