package config

import (
	"log/slog"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds runtime configuration for the quiz server and its helpers.
type Config struct {
	// Server
	Port         int      `env:"PORT" envDefault:"3000"`
	LogLevel     string   `env:"LOG_LEVEL" envDefault:"info"`
	LogFile      string   `env:"LOG_FILE"`                      // optional rotating file sink in addition to stdout
	CORSOrigins  []string `env:"CORS_ORIGINS" envSeparator:","` // empty: same-origin only; "*" reflects any origin
	CookieSecure bool     `env:"COOKIE_SECURE" envDefault:"false"`

	// Upload limits
	MaxUploadSize int64  `env:"MAX_UPLOAD_SIZE" envDefault:"20971520"` // 20MB for the whole batch
	MaxImages     int    `env:"MAX_IMAGES" envDefault:"10"`
	UploadDir     string `env:"UPLOAD_DIR" envDefault:"uploads"`

	// LLM
	LLMProvider           string `env:"LLM_PROVIDER" envDefault:"openai"` // "openai" (only supported provider)
	OpenAIKey             string `env:"OPENAI_API_KEY"`
	OpenAIBaseURL         string `env:"OPENAI_BASE_URL"`
	LLMModel              string `env:"LLM_MODEL" envDefault:"gpt-4o-mini"`
	QuestionMaxTokens     int    `env:"QUESTION_MAX_TOKENS" envDefault:"50"`
	NextQuestionMaxTokens int    `env:"NEXT_QUESTION_MAX_TOKENS" envDefault:"150"`
	ChatMaxTokens         int    `env:"CHAT_MAX_TOKENS" envDefault:"50"`
	GradeMaxTokens        int    `env:"GRADE_MAX_TOKENS" envDefault:"50"`
	QuestionDelimiter     string `env:"QUESTION_DELIMITER" envDefault:"Vastaus:"`

	// OCR
	OCRProvider           string        `env:"OCR_PROVIDER" envDefault:"vision"` // "vision" (Google Cloud Vision) or "tesseract"
	VisionAPIKey          string        `env:"VISION_API_KEY"`
	VisionCredentialsFile string        `env:"VISION_CREDENTIALS_FILE"` // service account key, e.g. omaope-vision.json
	VisionEndpoint        string        `env:"VISION_ENDPOINT"`
	OCRLanguages          []string      `env:"OCR_LANGUAGES" envSeparator:"," envDefault:"fin,eng"`
	OCRCache              string        `env:"OCR_CACHE" envDefault:"none"` // "none" or "redis"
	OCRCacheTTL           time.Duration `env:"OCR_CACHE_TTL" envDefault:"24h"`

	// Sessions
	SessionStore  string        `env:"SESSION_STORE" envDefault:"memory"` // "memory" or "redis"
	RedisAddr     string        `env:"REDIS_ADDR"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	SessionTTL    time.Duration `env:"SESSION_TTL" envDefault:"2h"`

	// Outbound calls
	UpstreamTimeout time.Duration `env:"UPSTREAM_TIMEOUT" envDefault:"30s"`
	UpstreamRetries int           `env:"UPSTREAM_RETRIES" envDefault:"1"`
	RetryBaseDelay  time.Duration `env:"RETRY_BASE_DELAY" envDefault:"500ms"`

	// Events
	EventsURL    string `env:"EVENTS_URL"` // NATS URL; empty disables the activity stream
	RecorderPort int    `env:"RECORDER_PORT" envDefault:"3001"`
}

// Load reads configuration from environment variables with defaults.
func Load() Config {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		slog.Warn("failed to parse env; using defaults where set", "err", err)
	}
	return cfg
}

// RequestTimeout bounds one API request. An upload runs OCR and then the
// LLM, each with its full retry budget, so the route must outlast both.
func (c Config) RequestTimeout() time.Duration {
	attempts := min(c.Attempts(), 16)
	perCall := time.Duration(attempts)*c.UpstreamTimeout + c.RetryBaseDelay*time.Duration(1<<attempts)
	return 2*perCall + 10*time.Second
}

// Attempts returns how many times an outbound call may be tried in total.
func (c Config) Attempts() int {
	if c.UpstreamRetries < 0 {
		return 1
	}
	return c.UpstreamRetries + 1
}
