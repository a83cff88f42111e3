// =============================================================================
// 📦 检索引擎配置
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("GAMERAG").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// =============================================================================
package config

import (
	"time"

	"github.com/BaSui01/gamerag/types"
)

// Config 检索引擎完整配置
type Config struct {
	// Engine 编排器配置
	Engine EngineConfig `yaml:"engine" env:"ENGINE"`

	// Fusion 融合排序配置
	Fusion FusionConfig `yaml:"fusion" env:"FUSION"`

	// Extractor 关键词抽取配置
	Extractor ExtractorConfig `yaml:"extractor" env:"EXTRACTOR"`

	// Database 关键词库（SQL）配置
	Database DatabaseConfig `yaml:"database" env:"DATABASE"`

	// Vector 向量库配置
	Vector VectorConfig `yaml:"vector" env:"VECTOR"`

	// Graph 图库配置
	Graph GraphConfig `yaml:"graph" env:"GRAPH"`

	// LLM 路由模型配置（primary + backup）
	LLM LLMConfig `yaml:"llm" env:"LLM"`

	// Reranker 重排配置
	Reranker RerankerConfig `yaml:"reranker" env:"RERANKER"`

	// Cache 查询结果缓存配置
	Cache CacheConfig `yaml:"cache" env:"CACHE"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// EngineConfig 编排器配置
type EngineConfig struct {
	// 路由策略: PLAN | THRESHOLD | INTENT | PARALLEL_EXPANSION | ENTITY_SENTENCE | HOP
	Strategy string `yaml:"strategy" env:"STRATEGY"`
	// 默认返回条数
	Limit int `yaml:"limit" env:"LIMIT"`
	// THRESHOLD 策略: KS+VS 结果数低于该值时追加图检索
	GraphThreshold int `yaml:"graph_threshold" env:"GRAPH_THRESHOLD"`
	// 实体类别集合（空则使用内置四类）
	Categories []string `yaml:"categories" env:"CATEGORIES"`
	// 各存储调用超时
	Timeouts TimeoutConfig `yaml:"timeouts" env:"TIMEOUTS"`
}

// TimeoutConfig 分存储超时配置
type TimeoutConfig struct {
	Keyword   time.Duration `yaml:"keyword" env:"KEYWORD"`
	Vector    time.Duration `yaml:"vector" env:"VECTOR"`
	Graph     time.Duration `yaml:"graph" env:"GRAPH"`
	RouterLLM time.Duration `yaml:"router_llm" env:"ROUTER_LLM"`
	Reranker  time.Duration `yaml:"reranker" env:"RERANKER"`
}

// FusionConfig 融合排序配置
type FusionConfig struct {
	// RRF 常数 k（文献值 60，不建议调整）
	RRFK int `yaml:"rrf_k" env:"RRF_K"`
	// 来源权重，带宽 [0.2, 1.5]
	KeywordWeight float64 `yaml:"keyword_weight" env:"KEYWORD_WEIGHT"`
	VectorWeight  float64 `yaml:"vector_weight" env:"VECTOR_WEIGHT"`
	GraphWeight   float64 `yaml:"graph_weight" env:"GRAPH_WEIGHT"`
}

// ExtractorConfig 关键词抽取配置
type ExtractorConfig struct {
	// LLM 抽取失败时是否退回形态学分析
	FallbackToMorphology bool `yaml:"fallback_to_morphology" env:"FALLBACK_TO_MORPHOLOGY"`
	// 动词后缀表（韩语: 파는/사는/주는/있는/가는 ...）
	VerbSuffixes []string `yaml:"verb_suffixes" env:"VERB_SUFFIXES"`
	// LLM 抽取调用超时
	LLMTimeout time.Duration `yaml:"llm_timeout" env:"LLM_TIMEOUT"`
}

// DatabaseConfig 关键词库配置
type DatabaseConfig struct {
	// 驱动: postgres | mysql | sqlite
	Driver string `yaml:"driver" env:"DRIVER"`
	// DSN 连接串（sqlite 时为文件路径或 :memory:）
	DSN string `yaml:"dsn" env:"DSN"`
	// 最大空闲连接数
	MaxIdleConns int `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	// 最大打开连接数（经验值: >= 2 × 预期并发查询数）
	MaxOpenConns int `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	// 连接最大生命周期
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
}

// VectorConfig 向量库配置
type VectorConfig struct {
	BaseURL    string `yaml:"base_url" env:"BASE_URL"`
	Token      string `yaml:"token" env:"TOKEN"`
	Database   string `yaml:"database" env:"DATABASE"`
	Collection string `yaml:"collection" env:"COLLECTION"`
	// 嵌入服务（OpenAI 兼容 /v1/embeddings）
	EmbeddingURL   string `yaml:"embedding_url" env:"EMBEDDING_URL"`
	EmbeddingModel string `yaml:"embedding_model" env:"EMBEDDING_MODEL"`
	// 嵌入维度，必须与入库一致
	Dimension int `yaml:"dimension" env:"DIMENSION"`
	TopK      int `yaml:"top_k" env:"TOP_K"`
}

// GraphConfig 图库配置（Neo4j HTTP 事务 API）
type GraphConfig struct {
	BaseURL  string `yaml:"base_url" env:"BASE_URL"`
	Database string `yaml:"database" env:"DATABASE"`
	Username string `yaml:"username" env:"USERNAME"`
	Password string `yaml:"password" env:"PASSWORD"`
	// 单次遍历返回上限
	Limit int `yaml:"limit" env:"LIMIT"`
	// 两点寻路最大深度
	MaxPathDepth int `yaml:"max_path_depth" env:"MAX_PATH_DEPTH"`
}

// LLMEndpoint 单个 LLM 端点
type LLMEndpoint struct {
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	APIKey  string `yaml:"api_key" env:"API_KEY"`
	Model   string `yaml:"model" env:"MODEL"`
}

// LLMConfig 路由模型配置
type LLMConfig struct {
	Primary LLMEndpoint `yaml:"primary" env:"PRIMARY"`
	Backup  LLMEndpoint `yaml:"backup" env:"BACKUP"`
	// 分类温度，保持 <= 0.2
	Temperature float32 `yaml:"temperature" env:"TEMPERATURE"`
	// 提示词 token 上限（超长查询截断）
	PromptTokenBudget int `yaml:"prompt_token_budget" env:"PROMPT_TOKEN_BUDGET"`
	// 每秒请求上限（0 = 不限流）
	RateLimit float64 `yaml:"rate_limit" env:"RATE_LIMIT"`
}

// RerankerConfig 重排配置
type RerankerConfig struct {
	// 端点为空时禁用重排
	Endpoint string `yaml:"endpoint" env:"ENDPOINT"`
	Enabled  bool   `yaml:"enabled" env:"ENABLED"`
}

// CacheConfig 查询结果缓存配置
type CacheConfig struct {
	// Addr 为空时禁用缓存
	Addr     string        `yaml:"addr" env:"ADDR"`
	Password string        `yaml:"password" env:"PASSWORD"`
	DB       int           `yaml:"db" env:"DB"`
	TTL      time.Duration `yaml:"ttl" env:"TTL"`
	PoolSize int           `yaml:"pool_size" env:"POOL_SIZE"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 级别: debug | info | warn | error
	Level string `yaml:"level" env:"LEVEL"`
	// 格式: json | console
	Format string `yaml:"format" env:"FORMAT"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	Enabled      bool   `yaml:"enabled" env:"ENABLED"`
	ServiceName  string `yaml:"service_name" env:"SERVICE_NAME"`
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
}

// CategorySet 返回配置的实体类别（空则内置四类）。
func (c *EngineConfig) CategorySet() []types.Category {
	if len(c.Categories) == 0 {
		return types.DefaultCategories()
	}
	out := make([]types.Category, 0, len(c.Categories))
	for _, s := range c.Categories {
		out = append(out, types.Category(s))
	}
	return out
}

// SourceWeights 返回按来源索引的权重表。
func (c *FusionConfig) SourceWeights() map[types.Source]float64 {
	return map[types.Source]float64{
		types.SourceKeyword: c.KeywordWeight,
		types.SourceVector:  c.VectorWeight,
		types.SourceGraph:   c.GraphWeight,
	}
}
