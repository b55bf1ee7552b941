package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("BOT_TOKEN", "123:abc")
	t.Setenv("OPENAI_API_KEY", "sk-test")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, BackendSQLite, cfg.StorageBackend)
	assert.Equal(t, "database/anuj_bot.db", cfg.DatabasePath)
	assert.Equal(t, int64(50), cfg.MaxFileSizeMB)
	assert.Equal(t, int64(50)<<20, cfg.MaxFileSizeBytes())
	assert.Equal(t, 10, cfg.MaxQuizQuestions)
	assert.Equal(t, 30, cfg.QuizTimeLimitSec)
	assert.Equal(t, 30, cfg.QuizJoinWindowSec)
	assert.Equal(t, 10, cfg.HistoryWindow)
	assert.Equal(t, "03:00", cfg.CleanupTime)
	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, "tesseract", cfg.OCRBinary)
}

func TestLoad_MissingToken(t *testing.T) {
	// t.Setenv registers the restore; the variable itself must be unset
	// for the required check to trip.
	t.Setenv("BOT_TOKEN", "x")
	os.Unsetenv("BOT_TOKEN")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_UnknownBackend(t *testing.T) {
	setRequired(t)
	t.Setenv("STORAGE_BACKEND", "cassandra")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_MongoBackend(t *testing.T) {
	setRequired(t)
	t.Setenv("STORAGE_BACKEND", "mongo")
	t.Setenv("MONGODB_URI", "mongodb://db:27017")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, BackendMongo, cfg.StorageBackend)
	assert.Equal(t, "mongodb://db:27017", cfg.MongoURI)
}

func TestLoad_BadNumbersFallBack(t *testing.T) {
	setRequired(t)
	t.Setenv("MAX_QUIZ_QUESTIONS", "-5")
	t.Setenv("QUIZ_TIME_LIMIT", "0")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.MaxQuizQuestions)
	assert.Equal(t, 30, cfg.QuizTimeLimitSec)
}
