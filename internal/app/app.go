// internal/app/app.go
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/MayukhDg/BidWinnerAI-prod/internal/config"
	"github.com/MayukhDg/BidWinnerAI-prod/internal/core"
	"github.com/MayukhDg/BidWinnerAI-prod/internal/core/chunker"
	db "github.com/MayukhDg/BidWinnerAI-prod/internal/core/database"
	"github.com/MayukhDg/BidWinnerAI-prod/internal/core/embedding"
	"github.com/MayukhDg/BidWinnerAI-prod/internal/core/fetcher"
	ingest "github.com/MayukhDg/BidWinnerAI-prod/internal/core/ingestion_engine"
	"github.com/MayukhDg/BidWinnerAI-prod/internal/core/llm"
	objectclient "github.com/MayukhDg/BidWinnerAI-prod/internal/core/object-client"
	"github.com/MayukhDg/BidWinnerAI-prod/internal/core/parser"
	"github.com/MayukhDg/BidWinnerAI-prod/internal/core/remote"
	"github.com/MayukhDg/BidWinnerAI-prod/internal/core/retrieval"
	"github.com/MayukhDg/BidWinnerAI-prod/internal/metrics"
	"github.com/MayukhDg/BidWinnerAI-prod/internal/services"
)

// App holds the components one process role needs. Fields a role does not use stay nil.
type App struct {
	Cfg    *config.Config
	Role   config.Role
	Logger *zap.Logger

	DBClient     core.DbClient
	ObjectClient *objectclient.S3Client
	Embedder     core.EmbeddingProvider
	Pipeline     *ingest.Pipeline
	Dispatcher   *ingest.Dispatcher
	Reaper       *ingest.Reaper
	Retrieval    *retrieval.Service
	Documents    *services.DocumentService
	Answers      *services.AnswerService

	closers []func() error
}

// NewApp validates cfg for role and builds the component graph.
func NewApp(ctx context.Context, cfg *config.Config, role config.Role, logger *zap.Logger) (*App, error) {
	if err := cfg.Validate(role); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	for _, w := range cfg.Warnings {
		logger.Warn("config value ignored", zap.String("detail", w))
	}
	metrics.Register()

	appCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	a := &App{Cfg: cfg, Role: role, Logger: logger}

	dbClient, err := db.Open(appCtx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	a.DBClient = dbClient
	a.closers = append(a.closers, dbClient.Close)
	logger.Info("database initialized and ready")

	objClient, err := objectclient.NewS3Client(appCtx, cfg, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.ObjectClient = objClient

	emb, err := a.newEmbedder(appCtx)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("couldn't initialize the embedder: %w", err)
	}
	a.Embedder = emb

	// Only the remote-mode API skips the local pipeline.
	if !(role == config.RoleAPI && cfg.IngestMode == config.IngestRemote) {
		a.Pipeline = a.newPipeline(objClient, emb)
		a.Reaper = ingest.NewReaper(dbClient, cfg.Pipeline.ProcessingTimeout, cfg.Pipeline.ReaperInterval,
			logger.Named("reaper"))
	}

	a.Retrieval = retrieval.NewService(emb, dbClient, logger.Named("retrieval"))

	if role == config.RoleAPI {
		var ing ingest.Ingestor = a.Pipeline
		if cfg.IngestMode == config.IngestRemote {
			ing = remote.NewClient(cfg.WorkerURL, cfg.WorkerKey, cfg.WorkerTimeout, logger.Named("remote"))
			logger.Info("ingestion delegated to worker", zap.String("worker_url", cfg.WorkerURL))
		}
		a.Dispatcher = ingest.NewDispatcher(ing, ingest.DispatcherConfig{
			MaxDeliveries: cfg.Pipeline.MaxDeliveries,
			JobTimeout:    cfg.Pipeline.ProcessingTimeout,
		}, logger.Named("dispatcher"))
		a.Documents = services.NewDocumentService(dbClient, objClient, a.Dispatcher, cfg.MaxUploadBytes, logger)

		gen, err := a.newLLM(appCtx)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("couldn't initialize the llm: %w", err)
		}
		a.Answers = services.NewAnswerService(a.Retrieval, gen, logger)
	}

	return a, nil
}

func (a *App) newEmbedder(ctx context.Context) (core.EmbeddingProvider, error) {
	cfg := a.Cfg
	var (
		base core.EmbeddingProvider
		err  error
	)
	switch cfg.EmbedProvider {
	case "gemini":
		var g *llm.GeminiEmbedder
		g, err = llm.NewGeminiEmbedder(ctx, cfg.GeminiAPIKey, cfg.EmbedModel)
		if err == nil {
			a.closers = append(a.closers, g.Close)
			base = g
		}
	default:
		base, err = llm.NewOpenAIEmbedder(&llm.OpenAIConfig{
			APIKey:     cfg.OpenAIAPIKey,
			BaseURL:    cfg.OpenAIBaseURL,
			Model:      cfg.EmbedModel,
			Dimensions: cfg.EmbedDim,
			Logger:     a.Logger.Named("openai"),
		})
	}
	if err != nil {
		return nil, err
	}

	var limiter *rate.Limiter
	if cfg.EmbedRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.EmbedRPS), max(cfg.EmbedBurst, 1))
	}
	return embedding.NewRetrier(base, embedding.RetryConfig{
		MaxAttempts: cfg.Pipeline.RetryAttempts,
		BaseDelay:   cfg.Pipeline.RetryBaseDelay,
		MaxJitter:   cfg.Pipeline.RetryMaxJitter,
		Limiter:     limiter,
		Provider:    cfg.EmbedProvider,
	}, a.Logger.Named("embedding")), nil
}

func (a *App) newLLM(ctx context.Context) (core.LLMProvider, error) {
	cfg := a.Cfg
	switch cfg.LLMProvider {
	case "gemini":
		g, err := llm.NewGeminiLLM(ctx, cfg.GeminiAPIKey, cfg.GenModel, float32(cfg.GenTemperature))
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, g.Close)
		return g, nil
	case "openai":
		return llm.NewOpenAIChat(&llm.OpenAIConfig{
			APIKey:  cfg.OpenAIAPIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Model:   cfg.GenModel,
			Logger:  a.Logger.Named("openai"),
		})
	}
	return nil, fmt.Errorf("LLM_PROVIDER %q not supported", cfg.LLMProvider)
}

func (a *App) newPipeline(objects core.ObjectClient, emb core.EmbeddingProvider) *ingest.Pipeline {
	p := a.Cfg.Pipeline
	opts := parser.Options{
		TargetWords: chunker.WordsForTokens(p.ChunkTokens),
		MaxChunks:   p.MaxParseChunks,
	}
	if p.ChunkOverlapTokens > 0 {
		opts.OverlapWords = chunker.WordsForTokens(p.ChunkOverlapTokens)
	}

	var docParser core.DocumentParser = parser.NewDocxParser(opts)
	if p.ParserEngine == "docconv" {
		useReadability := false
		docParser = parser.NewDocconvParser(opts, useReadability)
	}

	src := fetcher.NewRouter(
		fetcher.NewS3Fetcher(objects, p.MaxFileBytes),
		fetcher.NewHTTPFetcher(nil, p.MaxFileBytes),
	)

	a.Logger.Info("ingestion pipeline ready",
		zap.String("parser", p.ParserEngine),
		zap.Int("chunk_tokens", p.ChunkTokens),
		zap.Int("batch_size", p.BatchSize),
	)
	return ingest.NewPipeline(a.DBClient, a.DBClient, src, docParser, emb, ingest.Config{
		MaxChunks: p.MaxChunks,
		BatchSize: p.BatchSize,
		EmbedDim:  a.Cfg.EmbedDim,
	}, a.Logger.Named("pipeline"))
}

// Close releases clients in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.Logger.Warn("close failed", zap.Error(err))
		}
	}
	a.closers = nil
}
