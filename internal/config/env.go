package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Role selects which settings Validate insists on.
type Role string

const (
	RoleAPI    Role = "api"
	RoleWorker Role = "worker"
	RoleCLI    Role = "cli"
)

const (
	IngestInProcess = "inprocess"
	IngestRemote    = "remote"
)

type Config struct {
	Env      string
	LogLevel string

	Port       string
	WorkerPort string

	DatabaseURL string
	SslCertPath string
	EmbedDim    int

	AwsAccessKey string
	AwsSecretKey string
	AwsRegion    string
	BucketName   string

	EmbedProvider  string
	OpenAIAPIKey   string
	OpenAIBaseURL  string
	EmbedModel     string
	GeminiAPIKey   string
	LLMProvider    string
	GenModel       string
	GenTemperature float64
	EmbedRPS       float64
	EmbedBurst     int

	JWTSecret   string
	CORSOrigins []string

	IngestMode     string
	IngestWorkers  int
	WorkerURL      string
	WorkerKey      string
	WorkerTimeout  time.Duration
	MaxUploadBytes int64

	Pipeline PipelineConfig

	// Warnings collects values that were ignored while loading, for logging once a logger exists.
	Warnings []string
}

// LoadConfig loads .env, the environment and the optional PIPELINE_CONFIG YAML file.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	env := envReader{warn: func(msg string) { cfg.Warnings = append(cfg.Warnings, msg) }}

	cfg.Env = env.str("APP_ENV", "local")
	cfg.LogLevel = env.str("LOG_LEVEL", "")
	cfg.Port = env.str("PORT", "8080")
	cfg.WorkerPort = env.str("WORKER_PORT", "8081")

	cfg.DatabaseURL = env.str("DATABASE_URL", "")
	cfg.SslCertPath = env.str("SSL_CERT_PATH", "")

	cfg.AwsAccessKey = env.str("AWS_ACCESS_KEY", "")
	cfg.AwsSecretKey = env.str("AWS_SECRET_KEY", "")
	cfg.AwsRegion = env.str("AWS_REGION", "us-east-2")
	cfg.BucketName = env.str("BUCKET_NAME", "bidwinner-docs")

	cfg.EmbedProvider = strings.ToLower(env.str("EMBED_PROVIDER", "openai"))
	cfg.OpenAIAPIKey = env.str("OPENAI_API_KEY", "")
	cfg.OpenAIBaseURL = env.str("OPENAI_BASE_URL", "")
	cfg.EmbedModel = env.str("EMBED_MODEL", defaultEmbedModel(cfg.EmbedProvider))
	cfg.EmbedDim = env.int("EMBED_DIM", defaultEmbedDim(cfg.EmbedModel))
	cfg.GeminiAPIKey = env.str("GEMINI_API_KEY", "")
	cfg.LLMProvider = strings.ToLower(env.str("LLM_PROVIDER", cfg.EmbedProvider))
	cfg.GenModel = env.str("GEN_MODEL", "")
	cfg.GenTemperature = env.float("GEN_TEMPERATURE", 0.3)
	cfg.EmbedRPS = env.float("EMBED_RPS", 0)
	cfg.EmbedBurst = env.int("EMBED_BURST", 1)

	cfg.JWTSecret = env.str("JWT_SECRET", "")
	cfg.CORSOrigins = splitList(env.str("CORS_ORIGINS", "http://localhost:3000"))

	cfg.IngestMode = strings.ToLower(env.str("INGEST_MODE", IngestInProcess))
	cfg.IngestWorkers = env.int("INGEST_WORKERS", 2)
	cfg.WorkerURL = strings.TrimRight(env.str("WORKER_URL", ""), "/")
	cfg.WorkerKey = env.str("WORKER_KEY", "")
	cfg.WorkerTimeout = env.duration("WORKER_TIMEOUT", 5*time.Minute)
	cfg.MaxUploadBytes = int64(env.int("MAX_UPLOAD_BYTES", 10<<20))

	cfg.Pipeline = DefaultPipeline()
	cfg.Pipeline.ParserEngine = strings.ToLower(env.str("PARSER_ENGINE", cfg.Pipeline.ParserEngine))
	cfg.Pipeline.ChunkTokens = env.int("CHUNK_TOKENS", cfg.Pipeline.ChunkTokens)
	cfg.Pipeline.ChunkOverlapTokens = env.int("CHUNK_OVERLAP_TOKENS", cfg.Pipeline.ChunkOverlapTokens)
	cfg.Pipeline.MaxChunks = env.int("MAX_CHUNKS", cfg.Pipeline.MaxChunks)
	cfg.Pipeline.BatchSize = env.int("BATCH_SIZE", cfg.Pipeline.BatchSize)
	cfg.Pipeline.MaxFileBytes = int64(env.int("MAX_FILE_BYTES", int(cfg.Pipeline.MaxFileBytes)))
	cfg.Pipeline.ProcessingTimeout = env.duration("PROCESSING_TIMEOUT", cfg.Pipeline.ProcessingTimeout)
	cfg.Pipeline.ReaperInterval = env.duration("REAPER_INTERVAL", cfg.Pipeline.ReaperInterval)

	if path := env.str("PIPELINE_CONFIG", ""); path != "" {
		if err := loadPipelineFile(path, &cfg.Pipeline); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// Validate checks the settings the given role needs.
func (c *Config) Validate(role Role) error {
	var errs []error

	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL not set"))
	}
	if c.EmbedDim <= 0 {
		errs = append(errs, fmt.Errorf("EMBED_DIM must be positive, got %d", c.EmbedDim))
	}

	switch c.EmbedProvider {
	case "openai":
		if c.OpenAIAPIKey == "" {
			errs = append(errs, errors.New("OPENAI_API_KEY not set"))
		}
	case "gemini":
		if c.GeminiAPIKey == "" {
			errs = append(errs, errors.New("GEMINI_API_KEY not set"))
		}
	default:
		errs = append(errs, fmt.Errorf("EMBED_PROVIDER %q not supported", c.EmbedProvider))
	}
	if c.EmbedDim > 0 {
		if err := c.checkEmbedding(); err != nil {
			errs = append(errs, err)
		}
	}

	switch role {
	case RoleAPI:
		if c.JWTSecret == "" {
			errs = append(errs, errors.New("JWT_SECRET not set"))
		}
		switch c.IngestMode {
		case IngestInProcess:
		case IngestRemote:
			if c.WorkerURL == "" || c.WorkerKey == "" {
				errs = append(errs, errors.New("INGEST_MODE=remote needs WORKER_URL and WORKER_KEY"))
			}
		default:
			errs = append(errs, fmt.Errorf("INGEST_MODE %q not supported", c.IngestMode))
		}
	case RoleWorker:
		if c.WorkerKey == "" {
			errs = append(errs, errors.New("WORKER_KEY not set"))
		}
	}

	if err := c.Pipeline.Validate(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// UsesSQLite reports whether DATABASE_URL points at an embedded SQLite file.
func (c *Config) UsesSQLite() bool {
	return strings.HasPrefix(c.DatabaseURL, "sqlite:")
}

// envReader reads environment variables with a default fallback and reports bad values.
type envReader struct {
	warn func(string)
}

func (e envReader) str(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func (e envReader) int(key string, def int) int {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.warn(fmt.Sprintf("%s=%q not an int, using default %d", key, v, def))
		return def
	}
	return n
}

func (e envReader) float(key string, def float64) float64 {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.warn(fmt.Sprintf("%s=%q not a number, using default %g", key, v, def))
		return def
	}
	return f
}

func (e envReader) duration(key string, def time.Duration) time.Duration {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.warn(fmt.Sprintf("%s=%q not a duration, using default %s", key, v, def))
		return def
	}
	return d
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
