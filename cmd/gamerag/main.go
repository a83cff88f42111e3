// =============================================================================
// gamerag 主入口
// =============================================================================
// 游戏知识库混合检索引擎 CLI
//
// 使用方法:
//
//	gamerag search "아이스진 얻는 법"            # 单次检索
//	gamerag search -limit 5 -debug "다크로드"    # 带参数检索
//	gamerag health                               # 依赖探活
//	gamerag version                              # 显示版本信息
//
// 配置: -config config.yaml + GAMERAG_* 环境变量覆盖
// =============================================================================
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/gamerag/config"
	"github.com/BaSui01/gamerag/engine"
	"github.com/BaSui01/gamerag/extract"
	"github.com/BaSui01/gamerag/fusion"
	"github.com/BaSui01/gamerag/internal/cache"
	"github.com/BaSui01/gamerag/internal/database"
	"github.com/BaSui01/gamerag/internal/metrics"
	"github.com/BaSui01/gamerag/internal/telemetry"
	"github.com/BaSui01/gamerag/llm"
	"github.com/BaSui01/gamerag/router"
	"github.com/BaSui01/gamerag/store/graph"
	"github.com/BaSui01/gamerag/store/keyword"
	"github.com/BaSui01/gamerag/store/vector"
	"github.com/BaSui01/gamerag/types"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "search":
		runSearch(os.Args[2:])
	case "health":
		runHealth(os.Args[2:])
	case "version":
		fmt.Printf("gamerag %s\n", version)
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: gamerag <search|health|version> [flags] [query]")
}

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	zcfg := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	return zcfg.Build()
}

// buildEngine 按配置装配全套依赖。
func buildEngine(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*engine.Engine, error) {
	var closers []io.Closer

	// 关键词库
	pool, err := database.Open(database.PoolConfig{
		Driver:          cfg.Database.Driver,
		DSN:             cfg.Database.DSN,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("open keyword database: %w", err)
	}
	closers = append(closers, pool)
	ks := keyword.NewStore(pool.DB(), keyword.DefaultConfig(), logger)

	// LLM: primary + backup, 初始化探活
	var provider llm.Provider
	if cfg.LLM.Primary.BaseURL != "" {
		primary := llm.NewOpenAICompatProvider(llm.OpenAICompatConfig{
			BaseURL: cfg.LLM.Primary.BaseURL,
			APIKey:  cfg.LLM.Primary.APIKey,
			Model:   cfg.LLM.Primary.Model,
		}, logger)

		var backup llm.Provider
		if cfg.LLM.Backup.BaseURL != "" {
			backup = llm.NewOpenAICompatProvider(llm.OpenAICompatConfig{
				BaseURL: cfg.LLM.Backup.BaseURL,
				APIKey:  cfg.LLM.Backup.APIKey,
				Model:   cfg.LLM.Backup.Model,
			}, logger)
		}

		failover := llm.NewFailoverClient(primary, backup, cfg.LLM.RateLimit, logger)
		failover.Init(ctx)
		provider = failover
	}

	// 同义词映射 + 抽取器
	mapper := extract.NewSynonymMapper(ks, logger)
	if err := mapper.Load(ctx); err != nil {
		logger.Warn("synonym mappings unavailable, continuing without", zap.Error(err))
	}
	extractor := extract.NewExtractor(provider, mapper, extract.Config{
		VerbSuffixes:         cfg.Extractor.VerbSuffixes,
		FallbackToMorphology: cfg.Extractor.FallbackToMorphology,
		LLMTimeout:           cfg.Extractor.LLMTimeout,
	}, logger)

	// 向量库
	embedder := vector.NewHTTPEmbedder(vector.HTTPEmbedderConfig{
		URL:       cfg.Vector.EmbeddingURL,
		Model:     cfg.Vector.EmbeddingModel,
		Dimension: cfg.Vector.Dimension,
	}, logger)
	vs := vector.NewStore(embedder, vector.NewMilvusClient(vector.MilvusConfig{
		BaseURL:    cfg.Vector.BaseURL,
		Token:      cfg.Vector.Token,
		Database:   cfg.Vector.Database,
		Collection: cfg.Vector.Collection,
	}, logger), ks, cfg.Vector.TopK, logger)

	// 图库
	gs := graph.NewStore(graph.NewNeo4jClient(graph.Neo4jConfig{
		BaseURL:  cfg.Graph.BaseURL,
		Database: cfg.Graph.Database,
		Username: cfg.Graph.Username,
		Password: cfg.Graph.Password,
	}, logger), graph.Config{
		Limit:        cfg.Graph.Limit,
		MaxPathDepth: cfg.Graph.MaxPathDepth,
	}, logger)

	// 路由
	rt, err := router.New(provider, extractor, router.Config{
		Strategy:          types.StrategyName(cfg.Engine.Strategy),
		LLMTimeout:        cfg.Engine.Timeouts.RouterLLM,
		Temperature:       cfg.LLM.Temperature,
		PromptTokenBudget: cfg.LLM.PromptTokenBudget,
	}, logger)
	if err != nil {
		return nil, err
	}

	// 重排（可选）
	var reranker fusion.Reranker
	if cfg.Reranker.Enabled && cfg.Reranker.Endpoint != "" {
		reranker = fusion.NewHTTPReranker(fusion.HTTPRerankerConfig{
			Endpoint: cfg.Reranker.Endpoint,
			Timeout:  cfg.Engine.Timeouts.Reranker,
		}, logger)
	}

	// 结果缓存（可选）
	deps := engine.Deps{
		Router:  rt,
		Keyword: ks,
		Vector:  vs,
		Graph:   gs,
		Fuser: fusion.NewFuser(fusion.Config{
			K:       cfg.Fusion.RRFK,
			Weights: cfg.Fusion.SourceWeights(),
		}, logger),
		Reranker: reranker,
		Metrics:  metrics.NewCollector(nil),
		Logger:   logger,
	}
	if cfg.Cache.Addr != "" {
		rc, err := cache.New(cache.Config{
			Addr:     cfg.Cache.Addr,
			Password: cfg.Cache.Password,
			DB:       cfg.Cache.DB,
			TTL:      cfg.Cache.TTL,
			PoolSize: cfg.Cache.PoolSize,
		}, logger)
		if err != nil {
			logger.Warn("result cache unavailable, continuing without", zap.Error(err))
		} else {
			deps.Cache = rc
			deps.CacheKey = cache.Key
			closers = append(closers, rc)
		}
	}
	deps.Closers = closers

	return engine.New(deps, engine.Config{
		Limit:          cfg.Engine.Limit,
		GraphThreshold: cfg.Engine.GraphThreshold,
		Categories:     cfg.Engine.CategorySet(),
		Timeouts: engine.Timeouts{
			Keyword:  cfg.Engine.Timeouts.Keyword,
			Vector:   cfg.Engine.Timeouts.Vector,
			Graph:    cfg.Engine.Timeouts.Graph,
			Reranker: cfg.Engine.Timeouts.Reranker,
		},
	})
}

func runSearch(args []string) {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPath := fs.String("config", "", "config file path")
	limit := fs.Int("limit", 0, "max results (0 = config default)")
	debug := fs.Bool("debug", false, "print telemetry")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: gamerag search [flags] <query>")
		os.Exit(2)
	}
	query := fs.Arg(0)

	cfg, err := config.NewLoader().WithConfigPath(*configPath).Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	providers, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("telemetry init failed, continuing without", zap.Error(err))
		providers = nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng, err := buildEngine(ctx, cfg, logger)
	if err != nil {
		logger.Error("engine init failed", zap.Error(err))
		os.Exit(1)
	}
	defer eng.Close()

	if *limit == 0 {
		*limit = cfg.Engine.Limit
	}

	resp, err := eng.Search(ctx, query, *limit)
	if err != nil {
		logger.Error("search failed", zap.Error(err))
		os.Exit(1)
	}

	out := map[string]any{"results": resp.Results}
	if *debug {
		out["telemetry"] = resp.Telemetry
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(out)

	if providers != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		providers.Shutdown(shutdownCtx)
		cancel()
	}
}

func runHealth(args []string) {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	configPath := fs.String("config", "", "config file path")
	fs.Parse(args)

	cfg, err := config.NewLoader().WithConfigPath(*configPath).Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger := zap.NewNop()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	status := map[string]string{}

	pool, err := database.Open(database.PoolConfig{
		Driver: cfg.Database.Driver,
		DSN:    cfg.Database.DSN,
	}, logger)
	if err == nil {
		if err := pool.Ping(ctx); err == nil {
			status["keyword_store"] = "ok"
		} else {
			status["keyword_store"] = err.Error()
		}
		pool.Close()
	} else {
		status["keyword_store"] = err.Error()
	}

	if cfg.LLM.Primary.BaseURL != "" {
		p := llm.NewOpenAICompatProvider(llm.OpenAICompatConfig{
			BaseURL: cfg.LLM.Primary.BaseURL,
			APIKey:  cfg.LLM.Primary.APIKey,
			Model:   cfg.LLM.Primary.Model,
		}, logger)
		if hs, err := p.HealthCheck(ctx); err == nil && hs.Healthy {
			status["llm_primary"] = "ok"
		} else {
			status["llm_primary"] = "unreachable"
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(status)
}
