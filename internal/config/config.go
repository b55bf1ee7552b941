package config

import (
	"fmt"

	"github.com/caarlos0/env/v10"
)

// Storage backend selectors.
const (
	BackendSQLite = "sqlite"
	BackendMongo  = "mongo"
)

// Config keeps runtime settings for the bot. Everything is read once at
// startup; there is no runtime reconfiguration.
type Config struct {
	BotToken string `env:"BOT_TOKEN,required"`

	LLMAPIKey  string `env:"OPENAI_API_KEY,required"`
	LLMBaseURL string `env:"LLM_BASE_URL" envDefault:"https://api.openai.com/v1"`
	LLMModel   string `env:"LLM_MODEL" envDefault:"gpt-3.5-turbo"`

	StorageBackend string `env:"STORAGE_BACKEND" envDefault:"sqlite"`
	DatabasePath   string `env:"DATABASE_PATH" envDefault:"database/anuj_bot.db"`
	MongoURI       string `env:"MONGODB_URI" envDefault:"mongodb://localhost:27017"`
	MongoDatabase  string `env:"MONGODB_DATABASE" envDefault:"anuj_bot"`

	FilesDir      string `env:"FILES_DIR" envDefault:"files"`
	MaxFileSizeMB int64  `env:"MAX_FILE_SIZE" envDefault:"50"`

	MaxQuizQuestions  int `env:"MAX_QUIZ_QUESTIONS" envDefault:"10"`
	QuizTimeLimitSec  int `env:"QUIZ_TIME_LIMIT" envDefault:"30"`
	QuizJoinWindowSec int `env:"QUIZ_JOIN_WINDOW" envDefault:"30"`

	HistoryWindow int    `env:"CONTEXT_WINDOW_SIZE" envDefault:"10"`
	RetentionDays int    `env:"MESSAGE_RETENTION_DAYS" envDefault:"0"`
	CleanupTime   string `env:"CLEANUP_TIME" envDefault:"03:00"`

	HTTPPort   string `env:"PORT" envDefault:"8080"`
	WebhookURL string `env:"WEBHOOK_URL"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	OCRBinary string `env:"OCR_BINARY" envDefault:"tesseract"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}

	switch cfg.StorageBackend {
	case BackendSQLite, BackendMongo:
	default:
		return nil, fmt.Errorf("unknown STORAGE_BACKEND %q, expected %q or %q", cfg.StorageBackend, BackendSQLite, BackendMongo)
	}

	if cfg.MaxFileSizeMB <= 0 {
		return nil, fmt.Errorf("MAX_FILE_SIZE must be positive, got %d", cfg.MaxFileSizeMB)
	}
	if cfg.MaxQuizQuestions <= 0 {
		cfg.MaxQuizQuestions = 10
	}
	if cfg.QuizTimeLimitSec <= 0 {
		cfg.QuizTimeLimitSec = 30
	}
	if cfg.QuizJoinWindowSec <= 0 {
		cfg.QuizJoinWindowSec = 30
	}
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = 10
	}

	return &cfg, nil
}

// MaxFileSizeBytes converts the configured megabyte ceiling to bytes.
func (c *Config) MaxFileSizeBytes() int64 {
	return c.MaxFileSizeMB * 1024 * 1024
}
