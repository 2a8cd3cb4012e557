package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Auth        AuthConfig
	LLM         LLMConfig
	Speech      SpeechConfig
	TTS         TTSConfig
	Accent      AccentConfig
	Audio       AudioConfig
	Translation TranslationConfig
	Worker      WorkerConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	AllowedOrigins []string
}

// WorkerConfig configures cmd/worker. WORKER_METRICS_ADDR=off leaves
// MetricsAddr empty and disables the metrics listener.
type WorkerConfig struct {
	Concurrency int
	MetricsAddr string
}

type DatabaseConfig struct {
	URL            string
	MaxConns       int
	MinConns       int
	MigrationsPath string // empty uses the embedded migrations
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type AuthConfig struct {
	JWTSecret string // empty disables bearer auth on /api/v1
}

type LLMConfig struct {
	OpenAIKey        string
	OpenAIBaseURL    string // OpenAI-compatible endpoint, e.g. a proxy
	AnthropicKey     string
	OllamaURL        string
	DefaultProvider  string
	DefaultModel     string
	FallbackProvider string
	MaxRetries       int
}

// SpeechConfig selects and configures the recognition backend used by accent
// detection.
type SpeechConfig struct {
	Backend       string // "azure", "openai" or "local"
	AzureKey      string
	AzureRegion   string
	OpenAIKey     string
	OpenAIBaseURL string
	OpenAIModel   string
	LocalBaseURL  string // default: "http://localhost:8178"
}

type TTSConfig struct {
	Backend       string // "azure", "openai" or "local"
	AzureKey      string
	AzureRegion   string
	AzureVoice    string
	OpenAIKey     string
	OpenAIBaseURL string
	OpenAIModel   string
	LocalBinPath  string // default: "piper"
	LocalModel    string // required when backend=local
}

type AccentConfig struct {
	RecognitionTimeout time.Duration
	CandidatesFile     string // optional YAML candidate table
}

type AudioConfig struct {
	FFmpegCommand  string
	MaxUploadBytes int64
}

type TranslationConfig struct {
	Provider string
	Model    string
	CacheTTL time.Duration
}

func Load() (*Config, error) {
	port, err := getEnvInt("SERVER_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_PORT: %w", err)
	}

	maxConns, err := getEnvInt("DB_MAX_CONNS", 10)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MAX_CONNS: %w", err)
	}

	minConns, err := getEnvInt("DB_MIN_CONNS", 2)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MIN_CONNS: %w", err)
	}

	redisDB, err := getEnvInt("REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	maxRetries, err := getEnvInt("LLM_MAX_RETRIES", 2)
	if err != nil {
		return nil, fmt.Errorf("invalid LLM_MAX_RETRIES: %w", err)
	}

	workerConcurrency, err := getEnvInt("WORKER_CONCURRENCY", 10)
	if err != nil {
		return nil, fmt.Errorf("invalid WORKER_CONCURRENCY: %w", err)
	}

	workerMetricsAddr := getEnv("WORKER_METRICS_ADDR", ":9091")
	if workerMetricsAddr == "off" {
		workerMetricsAddr = ""
	}

	recognitionTimeout, err := getEnvDuration("ACCENT_RECOGNITION_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid ACCENT_RECOGNITION_TIMEOUT: %w", err)
	}

	maxUploadMB, err := getEnvInt("AUDIO_MAX_UPLOAD_MB", 10)
	if err != nil {
		return nil, fmt.Errorf("invalid AUDIO_MAX_UPLOAD_MB: %w", err)
	}

	cacheTTL, err := getEnvDuration("TRANSLATION_CACHE_TTL", 24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("invalid TRANSLATION_CACHE_TTL: %w", err)
	}

	azureKey := getEnv("AZURE_SPEECH_KEY", "")
	azureRegion := getEnv("AZURE_SPEECH_REGION", "eastus")

	cfg := &Config{
		Server: ServerConfig{
			Host:           getEnv("SERVER_HOST", "0.0.0.0"),
			Port:           port,
			AllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		},
		Database: DatabaseConfig{
			URL:            getEnv("DATABASE_URL", ""),
			MaxConns:       maxConns,
			MinConns:       minConns,
			MigrationsPath: getEnv("MIGRATIONS_PATH", ""),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
		},
		LLM: LLMConfig{
			OpenAIKey:        getEnv("OPENAI_API_KEY", ""),
			OpenAIBaseURL:    getEnv("OPENAI_BASE_URL", ""),
			AnthropicKey:     getEnv("ANTHROPIC_API_KEY", ""),
			OllamaURL:        getEnv("OLLAMA_URL", ""),
			DefaultProvider:  getEnv("LLM_DEFAULT_PROVIDER", "openai"),
			DefaultModel:     getEnv("LLM_DEFAULT_MODEL", "gpt-4o-mini"),
			FallbackProvider: getEnv("LLM_FALLBACK_PROVIDER", ""),
			MaxRetries:       maxRetries,
		},
		Speech: SpeechConfig{
			Backend:       getEnv("SPEECH_BACKEND", "azure"),
			AzureKey:      azureKey,
			AzureRegion:   azureRegion,
			OpenAIKey:     getEnv("OPENAI_API_KEY", ""),
			OpenAIBaseURL: getEnv("STT_OPENAI_BASE_URL", ""),
			OpenAIModel:   getEnv("STT_OPENAI_MODEL", ""),
			LocalBaseURL:  getEnv("STT_LOCAL_BASE_URL", "http://localhost:8178"),
		},
		TTS: TTSConfig{
			Backend:       getEnv("TTS_BACKEND", "azure"),
			AzureKey:      azureKey,
			AzureRegion:   azureRegion,
			AzureVoice:    getEnv("TTS_AZURE_VOICE", "en-US-JennyNeural"),
			OpenAIKey:     getEnv("OPENAI_API_KEY", ""),
			OpenAIBaseURL: getEnv("TTS_OPENAI_BASE_URL", ""),
			OpenAIModel:   getEnv("TTS_OPENAI_MODEL", ""),
			LocalBinPath:  getEnv("TTS_LOCAL_PIPER_BIN", "piper"),
			LocalModel:    getEnv("TTS_LOCAL_PIPER_MODEL", ""),
		},
		Accent: AccentConfig{
			RecognitionTimeout: recognitionTimeout,
			CandidatesFile:     getEnv("ACCENT_CANDIDATES_FILE", ""),
		},
		Audio: AudioConfig{
			FFmpegCommand:  getEnv("FFMPEG_COMMAND", "ffmpeg"),
			MaxUploadBytes: int64(maxUploadMB) << 20,
		},
		Translation: TranslationConfig{
			Provider: getEnv("TRANSLATION_PROVIDER", ""),
			Model:    getEnv("TRANSLATION_MODEL", ""),
			CacheTTL: cacheTTL,
		},
		Worker: WorkerConfig{
			Concurrency: workerConcurrency,
			MetricsAddr: workerMetricsAddr,
		},
	}

	return cfg, nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Validate reports missing settings that the selected backends need.
func (c *Config) Validate() error {
	var missing []string

	switch c.Speech.Backend {
	case "azure":
		if c.Speech.AzureKey == "" {
			missing = append(missing, "AZURE_SPEECH_KEY")
		}
	case "openai":
		if c.Speech.OpenAIKey == "" && c.Speech.OpenAIBaseURL == "" {
			missing = append(missing, "OPENAI_API_KEY")
		}
	case "local":
	default:
		return fmt.Errorf("unknown SPEECH_BACKEND %q", c.Speech.Backend)
	}

	switch c.TTS.Backend {
	case "azure":
		if c.TTS.AzureKey == "" {
			missing = append(missing, "AZURE_SPEECH_KEY")
		}
	case "openai":
		if c.TTS.OpenAIKey == "" {
			missing = append(missing, "OPENAI_API_KEY")
		}
	case "local":
		if c.TTS.LocalModel == "" {
			missing = append(missing, "TTS_LOCAL_PIPER_MODEL")
		}
	default:
		return fmt.Errorf("unknown TTS_BACKEND %q", c.TTS.Backend)
	}

	if c.Accent.RecognitionTimeout <= 0 {
		return fmt.Errorf("ACCENT_RECOGNITION_TIMEOUT must be positive")
	}
	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("WORKER_CONCURRENCY must be positive")
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required env vars: %s", strings.Join(dedupe(missing), ", "))
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

// getEnvDuration accepts Go duration strings ("5s") or a bare number of seconds.
func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	return time.ParseDuration(v)
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
