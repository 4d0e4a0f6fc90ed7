package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"github.com/openai/openai-go/v3"

	"omaope/internal/cache"
	"omaope/internal/config"
	"omaope/internal/events"
	"omaope/internal/llm"
	"omaope/internal/logger"
	"omaope/internal/ocr"
	"omaope/internal/quiz"
	"omaope/internal/session"
)

// Deps bundles common runtime dependencies for services.
type Deps struct {
	Config   config.Config
	Log      *slog.Logger
	LLM      llm.Client
	OCR      ocr.Engine
	OCRCache cache.Cache
	Sessions *session.Manager
	Events   events.Publisher
	Bus      *events.NATS // nil when EVENTS_URL is unset
	Quiz     *quiz.Service
}

// Close releases connections held by deps.
func (d Deps) Close() error {
	var errs []error
	if d.OCRCache != nil {
		errs = append(errs, d.OCRCache.Close())
	}
	if d.Sessions != nil {
		errs = append(errs, d.Sessions.Close())
	}
	if d.Bus != nil {
		errs = append(errs, d.Bus.Close())
	}
	return errors.Join(errs...)
}

// Build loads env, config, and every component the quiz server needs.
func Build(ctx context.Context) (Deps, error) {
	deps, err := BuildBase()
	if err != nil {
		return Deps{}, err
	}
	cfg, log := deps.Config, deps.Log

	llmClient, err := buildLLM(cfg, log)
	if err != nil {
		return Deps{}, fmt.Errorf("failed to initialize LLM: %w", err)
	}
	engine, err := buildOCR(ctx, cfg, log)
	if err != nil {
		return Deps{}, fmt.Errorf("failed to initialize OCR: %w", err)
	}
	ocrCache, err := buildOCRCache(cfg, log)
	if err != nil {
		return Deps{}, fmt.Errorf("failed to initialize OCR cache: %w", err)
	}
	engine = ocr.NewCachedEngine(engine, ocrCache, cfg.OCRCacheTTL, log)
	sessions, err := buildSessions(cfg, log)
	if err != nil {
		return Deps{}, fmt.Errorf("failed to initialize session store: %w", err)
	}

	deps.LLM = llmClient
	deps.OCR = engine
	deps.OCRCache = ocrCache
	deps.Sessions = sessions
	deps.Quiz = quiz.NewService(llmClient, engine, sessions, deps.Events, log, QuizSettings(cfg))
	return deps, nil
}

// BuildBase loads env, config, logging and the event bus. Workers that do
// not talk to OCR or the LLM stop here.
func BuildBase() (Deps, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Deps{}, fmt.Errorf("failed to load environment variables: %w", err)
	}
	cfg := config.Load()
	log := logger.NewWithFile(cfg.LogLevel, cfg.LogFile)

	bus, err := buildEvents(cfg, log)
	if err != nil {
		return Deps{}, fmt.Errorf("failed to initialize event bus: %w", err)
	}
	deps := Deps{Config: cfg, Log: log, Events: events.Noop{}}
	if bus != nil {
		deps.Bus = bus
		deps.Events = bus
	}
	return deps, nil
}

// QuizSettings maps configuration onto the quiz service tunables.
func QuizSettings(cfg config.Config) quiz.Settings {
	return quiz.Settings{
		MaxImages:             cfg.MaxImages,
		Delimiter:             cfg.QuestionDelimiter,
		QuestionMaxTokens:     cfg.QuestionMaxTokens,
		NextQuestionMaxTokens: cfg.NextQuestionMaxTokens,
		ChatMaxTokens:         cfg.ChatMaxTokens,
		GradeMaxTokens:        cfg.GradeMaxTokens,
		OCRLanguages:          cfg.OCRLanguages,
		EventAttempts:         cfg.Attempts(),
		EventBackoff:          cfg.RetryBaseDelay,
	}
}

func buildLLM(cfg config.Config, log *slog.Logger) (llm.Client, error) {
	switch cfg.LLMProvider {
	case "openai":
		if cfg.OpenAIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required when LLM_PROVIDER=openai")
		}
		client, err := llm.NewOpenAIClient(cfg.OpenAIKey, openai.ChatModel(cfg.LLMModel), llm.Options{
			BaseURL:  cfg.OpenAIBaseURL,
			Timeout:  cfg.UpstreamTimeout,
			Attempts: cfg.Attempts(),
			Backoff:  cfg.RetryBaseDelay,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize OpenAI client: %w", err)
		}
		log.Info("using OpenAI LLM client", "model", cfg.LLMModel, "attempts", cfg.Attempts())
		return client, nil
	default:
		return nil, fmt.Errorf("invalid LLM_PROVIDER: %s (valid option: openai)", cfg.LLMProvider)
	}
}

func buildOCR(ctx context.Context, cfg config.Config, log *slog.Logger) (ocr.Engine, error) {
	switch cfg.OCRProvider {
	case "vision":
		engine, err := ocr.NewVisionEngine(ctx, ocr.VisionOptions{
			APIKey:          cfg.VisionAPIKey,
			CredentialsFile: cfg.VisionCredentialsFile,
			Endpoint:        cfg.VisionEndpoint,
			Timeout:         cfg.UpstreamTimeout,
			Attempts:        cfg.Attempts(),
			Backoff:         cfg.RetryBaseDelay,
		})
		if err != nil {
			return nil, err
		}
		log.Info("using Google Cloud Vision OCR", "languages", cfg.OCRLanguages)
		return engine, nil
	case "tesseract":
		engine, err := ocr.NewTesseractEngine()
		if err != nil {
			return nil, err
		}
		log.Info("using Tesseract OCR", "languages", cfg.OCRLanguages)
		return engine, nil
	default:
		return nil, fmt.Errorf("invalid OCR_PROVIDER: %s (valid options: vision, tesseract)", cfg.OCRProvider)
	}
}

func buildOCRCache(cfg config.Config, log *slog.Logger) (cache.Cache, error) {
	switch cfg.OCRCache {
	case "", "none":
		return cache.NewNoOpCache(), nil
	case "redis":
		if cfg.RedisAddr == "" {
			return nil, fmt.Errorf("REDIS_ADDR is required when OCR_CACHE=redis")
		}
		c, err := cache.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			log.Warn("OCR cache unavailable, continuing without it", "err", err)
			return cache.NewNoOpCache(), nil
		}
		log.Info("using Redis OCR cache", "ttl", cfg.OCRCacheTTL)
		return c, nil
	default:
		return nil, fmt.Errorf("invalid OCR_CACHE: %s (valid options: none, redis)", cfg.OCRCache)
	}
}

func buildSessions(cfg config.Config, log *slog.Logger) (*session.Manager, error) {
	switch cfg.SessionStore {
	case "memory":
		log.Info("using in-memory session store", "ttl", cfg.SessionTTL)
		return session.NewManager(session.NewMemoryStore(cfg.SessionTTL)), nil
	case "redis":
		if cfg.RedisAddr == "" {
			return nil, fmt.Errorf("REDIS_ADDR is required when SESSION_STORE=redis")
		}
		st, err := session.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.SessionTTL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		log.Info("using Redis session store", "addr", cfg.RedisAddr, "ttl", cfg.SessionTTL)
		return session.NewManager(st), nil
	default:
		return nil, fmt.Errorf("invalid SESSION_STORE: %s (valid options: memory, redis)", cfg.SessionStore)
	}
}

func buildEvents(cfg config.Config, log *slog.Logger) (*events.NATS, error) {
	if cfg.EventsURL == "" {
		log.Info("event stream disabled")
		return nil, nil
	}
	nc, err := nats.Connect(cfg.EventsURL,
		nats.Name("omaope"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	log.Info("using NATS event stream", "url", cfg.EventsURL)
	return events.NewNATS(log, nc), nil
}
