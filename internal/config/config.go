package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Qdrant    QdrantConfig    `mapstructure:"qdrant"`
	Storage   StorageConfig   `mapstructure:"storage"`
	ASR       ASRConfig       `mapstructure:"asr"`
	Summary   SummaryConfig   `mapstructure:"summary"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Query     QueryConfig     `mapstructure:"query"`
}

type ServerConfig struct {
	Port int        `mapstructure:"port"`
	Mode string     `mapstructure:"mode"`
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
}

type DatabaseConfig struct {
	Driver      string `mapstructure:"driver"` // sqlite or postgres
	Path        string `mapstructure:"path"`   // sqlite file path
	DSN         string `mapstructure:"dsn"`    // postgres DSN
	MaxOpenConn int    `mapstructure:"max_open_conn"`
	MaxIdleConn int    `mapstructure:"max_idle_conn"`
	AutoMigrate bool   `mapstructure:"auto_migrate"`
}

type QdrantConfig struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	Collection string `mapstructure:"collection"`
	APIKey     string `mapstructure:"api_key"`
	UseTLS     bool   `mapstructure:"use_tls"`
}

type StorageConfig struct {
	Endpoint      string        `mapstructure:"endpoint"`
	AccessKey     string        `mapstructure:"access_key"`
	SecretKey     string        `mapstructure:"secret_key"`
	UseSSL        bool          `mapstructure:"use_ssl"`
	Bucket        string        `mapstructure:"bucket"`
	Region        string        `mapstructure:"region"`
	PublicURL     string        `mapstructure:"public_url"`
	PresignExpiry time.Duration `mapstructure:"presign_expiry"`
}

type ASRConfig struct {
	BaseURL string `mapstructure:"base_url"`
	AppKey  string `mapstructure:"app_key"`
	APIKey  string `mapstructure:"api_key"`
}

type SummaryConfig struct {
	Model       string `mapstructure:"model"`
	APIKey      string `mapstructure:"api_key"`
	BaseURL     string `mapstructure:"base_url"`
	DefaultType string `mapstructure:"default_type"`
	RetryCount  int    `mapstructure:"retry_count"`
}

type EmbeddingConfig struct {
	Provider   string `mapstructure:"provider"`
	Model      string `mapstructure:"model"`
	APIKey     string `mapstructure:"api_key"`
	Dimensions int    `mapstructure:"dimensions"`
}

type SchedulerConfig struct {
	MaxActiveJobs int           `mapstructure:"max_active_jobs"`
	PollInitial   time.Duration `mapstructure:"poll_initial"`
	PollMax       time.Duration `mapstructure:"poll_max"`
	PollBudget    time.Duration `mapstructure:"poll_budget"`
}

type QueryConfig struct {
	ScoreThreshold float32 `mapstructure:"score_threshold"`
	TopK           int     `mapstructure:"top_k"`
}

func Load(configPath string) (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	v := viper.New()

	// Set config file path
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// Enable environment variable override
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.cors.allow_all_origins", true)
	v.SetDefault("server.cors.allowed_origins", []string{})
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/voicelog.db")
	v.SetDefault("database.max_open_conn", 10)
	v.SetDefault("database.max_idle_conn", 5)
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("qdrant.host", "localhost")
	v.SetDefault("qdrant.port", 6334)
	v.SetDefault("qdrant.collection", "voice_logs")
	v.SetDefault("qdrant.use_tls", false)
	v.SetDefault("storage.endpoint", "localhost:9000")
	v.SetDefault("storage.use_ssl", false)
	v.SetDefault("storage.bucket", "voice-logs")
	v.SetDefault("storage.presign_expiry", 30*time.Minute)
	v.SetDefault("asr.base_url", "https://tingwu.cn-beijing.aliyuncs.com")
	v.SetDefault("summary.model", "qwen-plus")
	v.SetDefault("summary.base_url", "https://dashscope.aliyuncs.com/compatible-mode/v1")
	v.SetDefault("summary.default_type", "day_report")
	v.SetDefault("summary.retry_count", 3)
	v.SetDefault("embedding.provider", "jina")
	v.SetDefault("embedding.model", "jina-embeddings-v3")
	v.SetDefault("embedding.dimensions", 1024)
	v.SetDefault("scheduler.max_active_jobs", 3)
	v.SetDefault("scheduler.poll_initial", 5*time.Second)
	v.SetDefault("scheduler.poll_max", 30*time.Second)
	v.SetDefault("scheduler.poll_budget", 5*time.Minute)
	v.SetDefault("query.score_threshold", 0.35)
	v.SetDefault("query.top_k", 5)

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Bind environment variables explicitly for sensitive data
	v.BindEnv("database.dsn", "DATABASE_DSN")
	v.BindEnv("qdrant.host", "QDRANT_HOST")
	v.BindEnv("qdrant.port", "QDRANT_PORT")
	v.BindEnv("qdrant.api_key", "QDRANT_API_KEY")
	v.BindEnv("storage.endpoint", "STORAGE_ENDPOINT")
	v.BindEnv("storage.access_key", "STORAGE_ACCESS_KEY")
	v.BindEnv("storage.secret_key", "STORAGE_SECRET_KEY")
	v.BindEnv("storage.use_ssl", "STORAGE_USE_SSL")
	v.BindEnv("asr.app_key", "ASR_APP_KEY")
	v.BindEnv("asr.api_key", "ASR_API_KEY")
	v.BindEnv("summary.api_key", "DASHSCOPE_API_KEY")
	v.BindEnv("summary.model", "SUMMARY_MODEL")
	v.BindEnv("embedding.api_key", "JINA_API_KEY")
	v.BindEnv("query.score_threshold", "QUERY_SCORE_THRESHOLD")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Scheduler.MaxActiveJobs < 1 {
		return fmt.Errorf("scheduler.max_active_jobs must be at least 1, got %d", c.Scheduler.MaxActiveJobs)
	}
	if c.Scheduler.PollInitial <= 0 || c.Scheduler.PollMax < c.Scheduler.PollInitial {
		return fmt.Errorf("invalid scheduler poll intervals: initial=%s max=%s", c.Scheduler.PollInitial, c.Scheduler.PollMax)
	}
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}
	return nil
}
