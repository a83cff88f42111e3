package config

import "time"

// DefaultConfig 返回完整默认配置
func DefaultConfig() *Config {
	return &Config{
		Engine:    DefaultEngineConfig(),
		Fusion:    DefaultFusionConfig(),
		Extractor: DefaultExtractorConfig(),
		Database:  DefaultDatabaseConfig(),
		Vector:    DefaultVectorConfig(),
		Graph:     DefaultGraphConfig(),
		LLM:       DefaultLLMConfig(),
		Reranker:  RerankerConfig{Enabled: true},
		Cache:     DefaultCacheConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultEngineConfig 返回默认编排器配置
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Strategy:       "HOP",
		Limit:          10,
		GraphThreshold: 3,
		Timeouts: TimeoutConfig{
			Keyword:   500 * time.Millisecond,
			Vector:    time.Second,
			Graph:     time.Second,
			RouterLLM: 3 * time.Second,
			Reranker:  3 * time.Second,
		},
	}
}

// DefaultFusionConfig 返回默认融合配置
func DefaultFusionConfig() FusionConfig {
	return FusionConfig{
		RRFK:          60,
		KeywordWeight: 1.0,
		VectorWeight:  1.0,
		GraphWeight:   1.0,
	}
}

// DefaultExtractorConfig 返回默认抽取配置
func DefaultExtractorConfig() ExtractorConfig {
	return ExtractorConfig{
		FallbackToMorphology: true,
		VerbSuffixes: []string{
			"파는", "사는", "주는", "있는", "없는", "가는", "오는",
			"나오는", "하는", "되는", "떨구는", "잡는",
		},
		LLMTimeout: 2 * time.Second,
	}
}

// DefaultDatabaseConfig 返回默认数据库配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "postgres",
		DSN:             "host=localhost port=5432 user=gamerag dbname=gamerag sslmode=disable",
		MaxIdleConns:    10,
		MaxOpenConns:    50,
		ConnMaxLifetime: time.Hour,
	}
}

// DefaultVectorConfig 返回默认向量库配置
func DefaultVectorConfig() VectorConfig {
	return VectorConfig{
		BaseURL:        "http://localhost:19530",
		Database:       "default",
		Collection:     "game_chunks",
		EmbeddingURL:   "http://localhost:11434/v1/embeddings",
		EmbeddingModel: "paraphrase-multilingual",
		Dimension:      384,
		TopK:           5,
	}
}

// DefaultGraphConfig 返回默认图库配置
func DefaultGraphConfig() GraphConfig {
	return GraphConfig{
		BaseURL:      "http://localhost:7474",
		Database:     "neo4j",
		Limit:        10,
		MaxPathDepth: 5,
	}
}

// DefaultLLMConfig 返回默认路由模型配置
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		Primary: LLMEndpoint{
			BaseURL: "http://localhost:11434/v1",
			Model:   "exaone3.5:7.8b",
		},
		Temperature:       0.0,
		PromptTokenBudget: 512,
		RateLimit:         10,
	}
}

// DefaultCacheConfig 返回默认缓存配置（Addr 为空 = 禁用）
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		TTL:      5 * time.Minute,
		PoolSize: 10,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:  "info",
		Format: "json",
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		ServiceName:  "gamerag",
		OTLPEndpoint: "localhost:4317",
	}
}
