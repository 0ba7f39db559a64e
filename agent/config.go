package agent

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultLLMPath       = "models/ggml-model-q8_0.gguf"
	DefaultGPULayers     = -1
	DefaultContextSize   = 10000
	DefaultMaxTokens     = 10000
	DefaultTemperature   = 0.0
	DefaultEmbeddingPath = "models/gte-large-zh"
	DefaultRerankerPath  = "models/bge-reranker-base"
	DefaultDBPath        = "faiss_db/luxun"
	DefaultDocsPath      = "data/luxun"
	DefaultStage1TopK    = 20
	DefaultStage2TopK    = 3
	DefaultDebug         = true
	DefaultConfigDir     = "."

	DefaultBaseURL      = "http://127.0.0.1:8080/v1"
	DefaultWeatherURL   = "https://wttr.in"
	DefaultSMTPPort     = 587
	DefaultChunkSize    = 500
	DefaultChunkOverlap = 50
	DefaultEmbedWorkers = 4
)

// AppConfig is the immutable configuration of one process.
type AppConfig struct {
	LLMPath       string  `mapstructure:"llm_path"`
	GPULayers     int     `mapstructure:"n_gpu_layers"`
	ContextSize   int     `mapstructure:"n_ctx"`
	MaxTokens     int     `mapstructure:"max_tokens"`
	Temperature   float64 `mapstructure:"temperature"`
	EmbeddingPath string  `mapstructure:"embedding_path"`
	RerankerPath  string  `mapstructure:"reranker_path"`
	DBPath        string  `mapstructure:"db_path"`
	DocsPath      string  `mapstructure:"docs_path"`
	Stage1TopK    int     `mapstructure:"stage1_top_k"`
	Stage2TopK    int     `mapstructure:"stage2_top_k"`
	AgentMaxIters int     `mapstructure:"agent_max_iters"`
	Debug         bool    `mapstructure:"debug"`
	ConfigDir     string  `mapstructure:"config_dir"`

	BaseURL          string       `mapstructure:"base_url"`
	APIKey           string       `mapstructure:"api_key"`
	EmbeddingBaseURL string       `mapstructure:"embedding_base_url"`
	RerankerBaseURL  string       `mapstructure:"reranker_base_url"`
	WeatherURL       string       `mapstructure:"weather_url"`
	SystemPrompt     string       `mapstructure:"system_prompt"`
	SMTP             SMTPSettings `mapstructure:"smtp"`
	ChunkSize        int          `mapstructure:"chunk_size"`
	ChunkOverlap     int          `mapstructure:"chunk_overlap"`
	EmbedWorkers     int          `mapstructure:"embed_workers"`
}

type SMTPSettings struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

// EmbeddingEndpoint falls back to the chat runtime when no separate
// embedding server is configured.
func (c AppConfig) EmbeddingEndpoint() string {
	if c.EmbeddingBaseURL != "" {
		return c.EmbeddingBaseURL
	}
	return c.BaseURL
}

func (c AppConfig) RerankerEndpoint() string {
	if c.RerankerBaseURL != "" {
		return c.RerankerBaseURL
	}
	return c.BaseURL
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("llm_path", DefaultLLMPath)
	v.SetDefault("n_gpu_layers", DefaultGPULayers)
	v.SetDefault("n_ctx", DefaultContextSize)
	v.SetDefault("max_tokens", DefaultMaxTokens)
	v.SetDefault("temperature", DefaultTemperature)
	v.SetDefault("embedding_path", DefaultEmbeddingPath)
	v.SetDefault("reranker_path", DefaultRerankerPath)
	v.SetDefault("db_path", DefaultDBPath)
	v.SetDefault("docs_path", DefaultDocsPath)
	v.SetDefault("stage1_top_k", DefaultStage1TopK)
	v.SetDefault("stage2_top_k", DefaultStage2TopK)
	v.SetDefault("agent_max_iters", DefaultMaxIters)
	v.SetDefault("debug", DefaultDebug)
	v.SetDefault("config_dir", DefaultConfigDir)

	v.SetDefault("base_url", DefaultBaseURL)
	v.SetDefault("api_key", "")
	v.SetDefault("embedding_base_url", "")
	v.SetDefault("reranker_base_url", "")
	v.SetDefault("weather_url", DefaultWeatherURL)
	v.SetDefault("system_prompt", DefaultSystemPrompt)
	v.SetDefault("smtp.host", "")
	v.SetDefault("smtp.port", DefaultSMTPPort)
	v.SetDefault("smtp.username", "")
	v.SetDefault("smtp.password", "")
	v.SetDefault("smtp.from", "")
	v.SetDefault("chunk_size", DefaultChunkSize)
	v.SetDefault("chunk_overlap", DefaultChunkOverlap)
	v.SetDefault("embed_workers", DefaultEmbedWorkers)
}

// LoadAppConfig merges, from highest to lowest precedence, the parsed
// command-line flags, AGENT_* environment variables (a .env file in the
// config directory included), agent.yaml in the config directory and the
// built-in defaults. flags may be nil.
func LoadAppConfig(flags *pflag.FlagSet) (*AppConfig, error) {
	v := viper.New()
	setDefaults(v)
	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	v.SetEnvPrefix("AGENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	dir := v.GetString("config_dir")
	if err := godotenv.Load(filepath.Join(dir, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v.AddConfigPath(dir)
	v.SetConfigName("agent")
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read agent.yaml: %w", err)
		}
		log.Debug().Str("dir", dir).Msg("agent.yaml not found, using flags, env and defaults")
	}

	cfg := &AppConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}
