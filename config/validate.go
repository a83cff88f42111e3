package config

import (
	"fmt"

	"github.com/BaSui01/gamerag/types"
)

// 来源权重带宽。超出带宽后排名融合退化为单一来源独赢。
const (
	MinSourceWeight = 0.2
	MaxSourceWeight = 1.5
)

// Validate 在任何 I/O 之前校验配置。
// 所有违规都返回 CONFIGURATION 级错误（致命，不降级）。
func Validate(cfg *Config) error {
	known := false
	for _, s := range types.KnownStrategies() {
		if types.StrategyName(cfg.Engine.Strategy) == s {
			known = true
			break
		}
	}
	if !known {
		return types.NewError(types.ErrCodeConfiguration,
			fmt.Sprintf("unknown strategy %q", cfg.Engine.Strategy))
	}

	if cfg.Engine.Limit < 0 {
		return types.NewError(types.ErrCodeConfiguration,
			fmt.Sprintf("limit must be >= 0, got %d", cfg.Engine.Limit))
	}

	if cfg.Fusion.RRFK <= 0 {
		return types.NewError(types.ErrCodeConfiguration,
			fmt.Sprintf("rrf_k must be positive, got %d", cfg.Fusion.RRFK))
	}

	for src, w := range cfg.Fusion.SourceWeights() {
		if w < MinSourceWeight || w > MaxSourceWeight {
			return types.NewError(types.ErrCodeConfiguration,
				fmt.Sprintf("source weight for %s out of band [%.1f, %.1f]: %.3f",
					src, MinSourceWeight, MaxSourceWeight, w))
		}
	}

	switch cfg.Database.Driver {
	case "postgres", "mysql", "sqlite":
	default:
		return types.NewError(types.ErrCodeConfiguration,
			fmt.Sprintf("unknown database driver %q", cfg.Database.Driver))
	}

	if cfg.Vector.Dimension <= 0 {
		return types.NewError(types.ErrCodeConfiguration,
			fmt.Sprintf("vector dimension must be positive, got %d", cfg.Vector.Dimension))
	}

	if cfg.LLM.Temperature > 0.2 {
		return types.NewError(types.ErrCodeConfiguration,
			fmt.Sprintf("router llm temperature must stay <= 0.2 for stable classification, got %.2f", cfg.LLM.Temperature))
	}

	return nil
}
