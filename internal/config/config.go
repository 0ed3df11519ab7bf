// Package config 负责加载和管理应用程序的配置。
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// 全局配置变量，存储从配置文件加载的所有设置。
var Conf Config

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Log       LogConfig       `mapstructure:"log"`
	Session   SessionConfig   `mapstructure:"session"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Intents   IntentsConfig   `mapstructure:"intents"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Stream    StreamConfig    `mapstructure:"stream"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Facts     FactsConfig     `mapstructure:"facts"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	MinIO     MinIOConfig     `mapstructure:"minio"`
	Admin     AdminConfig     `mapstructure:"admin"`
	CORS      CORSConfig      `mapstructure:"cors"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// DatabaseConfig 存储所有数据库连接的配置。
type DatabaseConfig struct {
	Driver string      `mapstructure:"driver"` // mysql | sqlite
	DSN    string      `mapstructure:"dsn"`
	Redis  RedisConfig `mapstructure:"redis"`
}

// RedisConfig 存储 Redis 的配置。URL 非空时优先于 Addr。
type RedisConfig struct {
	URL      string `mapstructure:"url"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// SessionConfig 会话历史存储配置。
type SessionConfig struct {
	Backend    string        `mapstructure:"backend"` // memory | redis
	MaxHistory int           `mapstructure:"max_history"`
	Retention  time.Duration `mapstructure:"retention"`
	PruneSpec  string        `mapstructure:"prune_schedule"`
}

// RateLimitConfig 滑动窗口限流配置。
type RateLimitConfig struct {
	Limit  int           `mapstructure:"limit"`
	Window time.Duration `mapstructure:"window"`
}

// IntentsConfig 意图表配置。
type IntentsConfig struct {
	File             string  `mapstructure:"file"`
	KeywordThreshold float64 `mapstructure:"keyword_threshold"`
}

// PipelineConfig 固定回复文案。
type PipelineConfig struct {
	NoAnswerText    string `mapstructure:"no_answer_text"`
	FallbackText    string `mapstructure:"fallback_text"`
	UnavailableText string `mapstructure:"unavailable_text"`
	MaxMessageRunes int    `mapstructure:"max_message_runes"`
}

// StreamConfig 流式输出配置。
type StreamConfig struct {
	ChunkSize int `mapstructure:"chunk_size"`
}

// EmbeddingConfig 存储 Embedding 模型相关的配置。
type EmbeddingConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Provider   string        `mapstructure:"provider"` // gemini | openai
	APIKey     string        `mapstructure:"api_key"`
	BaseURL    string        `mapstructure:"base_url"`
	Model      string        `mapstructure:"model"`
	Dimensions int           `mapstructure:"dimensions"`
	Threshold  float64       `mapstructure:"threshold"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// LLMConfig 存储大语言模型相关的配置。
type LLMConfig struct {
	Provider     string              `mapstructure:"provider"` // gemini | openai
	APIKey       string              `mapstructure:"api_key"`
	BaseURL      string              `mapstructure:"base_url"`
	Model        string              `mapstructure:"model"`
	Timeout      time.Duration       `mapstructure:"timeout"`
	HistoryTurns int                 `mapstructure:"history_turns"`
	Generation   LLMGenerationConfig `mapstructure:"generation"`
	Prompt       LLMPromptConfig     `mapstructure:"prompt"`
}

// LLMGenerationConfig 配置生成相关参数（可选）。
type LLMGenerationConfig struct {
	Temperature float64 `mapstructure:"temperature"`
	TopP        float64 `mapstructure:"top_p"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// LLMPromptConfig 配置系统提示与上下文包裹格式（可选）。
type LLMPromptConfig struct {
	Rules        string `mapstructure:"rules"`
	RefStart     string `mapstructure:"ref_start"`
	RefEnd       string `mapstructure:"ref_end"`
	NoResultText string `mapstructure:"no_result_text"`
}

// FactsConfig 外部数据片段的刷新配置。
type FactsConfig struct {
	File           string        `mapstructure:"file"`
	FileTTL        time.Duration `mapstructure:"file_ttl"`
	Schedule       string        `mapstructure:"schedule"`
	RefreshTimeout time.Duration `mapstructure:"refresh_timeout"`
	Weather        WeatherConfig `mapstructure:"weather"`
}

// WeatherConfig OpenWeatherMap 采集器配置。
type WeatherConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	City    string        `mapstructure:"city"`
	BaseURL string        `mapstructure:"base_url"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// KafkaConfig 存储 Kafka 相关的配置。
type KafkaConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
}

// MinIOConfig 存储 MinIO 对象存储的配置。
type MinIOConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
}

// AdminConfig 管理接口凭据。Token 与 TokenHash（bcrypt）二选一。
type AdminConfig struct {
	Token     string `mapstructure:"token"`
	TokenHash string `mapstructure:"token_hash"`
}

// CORSConfig 跨域配置。
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8000")
	v.SetDefault("server.mode", "release")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "data/chatbot.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("session.backend", "memory")
	v.SetDefault("session.max_history", 20)
	v.SetDefault("session.retention", 7*24*time.Hour)
	v.SetDefault("session.prune_schedule", "@every 24h")
	v.SetDefault("rate_limit.limit", 20)
	v.SetDefault("rate_limit.window", time.Minute)
	v.SetDefault("intents.file", "data/intents.yaml")
	v.SetDefault("intents.keyword_threshold", 8.0)
	v.SetDefault("pipeline.no_answer_text", "Bu konuda size yardımcı olamıyorum. Lütfen üniversitenin web sitesini ziyaret edin veya sorunuzu farklı şekilde sorun.")
	v.SetDefault("pipeline.fallback_text", "Üzgünüm, şu anda AI servisine bağlanamıyorum. Lütfen daha sonra tekrar deneyin.")
	v.SetDefault("pipeline.unavailable_text", "Bu bilgi şu anda mevcut değil.")
	v.SetDefault("pipeline.max_message_runes", 1000)
	v.SetDefault("stream.chunk_size", 4)
	v.SetDefault("embedding.enabled", false)
	v.SetDefault("embedding.provider", "gemini")
	v.SetDefault("embedding.model", "gemini-embedding-001")
	v.SetDefault("embedding.threshold", 0.65)
	v.SetDefault("embedding.timeout", 5*time.Second)
	v.SetDefault("llm.provider", "gemini")
	v.SetDefault("llm.model", "gemini-2.0-flash")
	v.SetDefault("llm.timeout", 20*time.Second)
	v.SetDefault("llm.history_turns", 10)
	v.SetDefault("llm.prompt.ref_start", "<<REF>>")
	v.SetDefault("llm.prompt.ref_end", "<<END>>")
	v.SetDefault("facts.file", "data/facts.yaml")
	v.SetDefault("facts.file_ttl", 24*time.Hour)
	v.SetDefault("facts.schedule", "@every 6h")
	v.SetDefault("facts.refresh_timeout", time.Minute)
	v.SetDefault("facts.weather.city", "Artvin,TR")
	v.SetDefault("facts.weather.base_url", "https://api.openweathermap.org/data/2.5/weather")
	v.SetDefault("facts.weather.ttl", 3*time.Hour)
	v.SetDefault("kafka.topic", "acu-fact-refresh")
	v.SetDefault("minio.bucket_name", "acu-facts")
	v.SetDefault("cors.allowed_origins", []string{"http://localhost:3000", "http://localhost:5173"})
}

// 与早期部署保持一致的裸环境变量名。
var legacyEnv = map[string]string{
	"llm.api_key":           "GOOGLE_API_KEY",
	"embedding.enabled":     "USE_EMBEDDINGS",
	"admin.token":           "ADMIN_SECRET_TOKEN",
	"log.level":             "LOG_LEVEL",
	"database.redis.url":    "REDIS_URL",
	"facts.weather.api_key": "OPENWEATHER_API_KEY",
	"cors.allowed_origins":  "ALLOWED_ORIGINS",
}

// Load 读取配置文件与环境变量并返回解析后的配置。configPath 为空或文件不存在时只使用默认值和环境变量。
func Load(configPath string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("ACU")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range legacyEnv {
		if err := v.BindEnv(key, "ACU_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return Config{}, fmt.Errorf("绑定环境变量失败: %w", err)
		}
	}

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			v.SetConfigFile(configPath)
			v.SetConfigType("yaml")
			if err := v.ReadInConfig(); err != nil {
				return Config{}, fmt.Errorf("读取配置文件失败: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("无法将配置解析到结构体中: %w", err)
	}
	cfg.CORS.AllowedOrigins = splitOrigins(cfg.CORS.AllowedOrigins)
	return cfg, nil
}

// Init 初始化配置加载，从指定的路径读取 YAML 文件并解析到 Conf 变量中。
func Init(configPath string) {
	cfg, err := Load(configPath)
	if err != nil {
		panic(err)
	}
	Conf = cfg
}

// ALLOWED_ORIGINS 以逗号分隔传入时 viper 只得到一个元素。
func splitOrigins(in []string) []string {
	var out []string
	for _, item := range in {
		for _, o := range strings.Split(item, ",") {
			if o = strings.TrimSpace(o); o != "" {
				out = append(out, o)
			}
		}
	}
	return out
}
