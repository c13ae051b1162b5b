package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	SQLite    SQLiteConfig
	Blob      BlobConfig
	Redis     RedisConfig
	Neo4j     Neo4jConfig
	LLM       LLMConfig
	Ingestion IngestionConfig
	Search    SearchConfig
	QA        QAConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  int
	WriteTimeout int
	BodyLimit    int
}

type SQLiteConfig struct {
	Path string
}

type BlobConfig struct {
	Path string
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
	TTLSec   int
}

type Neo4jConfig struct {
	Enabled  bool
	URI      string
	Username string
	Password string
	Database string
}

type LLMConfig struct {
	Provider    string
	Model       string
	APIKey      string
	Temperature float32
	MaxTokens   int
	TimeoutSec  int
}

type IngestionConfig struct {
	Workers         int
	QueueSize       int
	MaxFileSize     int
	ChunkSize       int
	PreviewSize     int
	EnrichmentOn    bool
	EnrichmentChars int
}

type SearchConfig struct {
	DefaultLimit  int
	MaxLimit      int
	FallbackLimit int
	PreviewChars  int
}

type QAConfig struct {
	ContextBudget   int
	SearchLimit     int
	MaxFallbackDocs int
	HistoryLimit    int
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/finsight")

	viper.SetEnvPrefix("FINSIGHT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.readTimeout", 30)
	viper.SetDefault("server.writeTimeout", 60)
	viper.SetDefault("server.bodyLimit", 52428800)

	viper.SetDefault("sqlite.path", "./data/finsight.db")

	viper.SetDefault("blob.path", "./data/blobs")

	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.ttlSec", 300)

	viper.SetDefault("neo4j.enabled", false)
	viper.SetDefault("neo4j.uri", "bolt://localhost:7687")
	viper.SetDefault("neo4j.username", "neo4j")
	viper.SetDefault("neo4j.password", "password")
	viper.SetDefault("neo4j.database", "neo4j")

	viper.SetDefault("llm.provider", "openai")
	viper.SetDefault("llm.model", "gpt-4o-mini")
	viper.SetDefault("llm.temperature", 0.2)
	viper.SetDefault("llm.maxTokens", 2048)
	viper.SetDefault("llm.timeoutSec", 60)

	viper.SetDefault("ingestion.workers", 4)
	viper.SetDefault("ingestion.queueSize", 64)
	viper.SetDefault("ingestion.maxFileSize", 52428800)
	viper.SetDefault("ingestion.chunkSize", 2000)
	viper.SetDefault("ingestion.previewSize", 2000)
	viper.SetDefault("ingestion.enrichmentOn", true)
	viper.SetDefault("ingestion.enrichmentChars", 10000)

	viper.SetDefault("search.defaultLimit", 10)
	viper.SetDefault("search.maxLimit", 50)
	viper.SetDefault("search.fallbackLimit", 10)
	viper.SetDefault("search.previewChars", 300)

	viper.SetDefault("qa.contextBudget", 50000)
	viper.SetDefault("qa.searchLimit", 10)
	viper.SetDefault("qa.maxFallbackDocs", 5)
	viper.SetDefault("qa.historyLimit", 20)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.outputPath", "stdout")
}
