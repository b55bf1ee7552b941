package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"

	"anuj-bot/internal/llm"
	"anuj-bot/internal/model"
	"anuj-bot/internal/storage"
)

// Quiz generation failures the bot translates to user-facing replies.
var (
	ErrNotEnoughText = fmt.Errorf("document has too little text for a quiz")
	ErrNoQuestions   = fmt.Errorf("no valid questions could be generated")
)

const (
	// Minimum extracted characters before generation is worth trying.
	minQuizText = 100
	// Chunk size matches what the LLM prompt can comfortably carry.
	quizChunkSize = 3000
	maxQuizChunks = 3
)

const quizSystemPrompt = "You are a quiz generator. You respond only with a JSON array of question objects, no prose, no markdown fences. Each object has keys: question, options (array of exactly 4 strings), answer (one letter A, B, C or D), explanation."

// QuizGenerator turns PDF study material into multiple-choice quizzes.
type QuizGenerator struct {
	llm          llm.Client
	store        storage.Store
	maxQuestions int
	log          *zap.Logger
}

func NewQuizGenerator(client llm.Client, store storage.Store, maxQuestions int, log *zap.Logger) *QuizGenerator {
	if maxQuestions <= 0 {
		maxQuestions = 10
	}
	return &QuizGenerator{llm: client, store: store, maxQuestions: maxQuestions, log: log}
}

// GenerateFromPDF extracts the document text, asks the LLM for
// questions chunk by chunk, validates them and persists the quiz.
func (g *QuizGenerator) GenerateFromPDF(ctx context.Context, userID uint, pdfPath, title string, numQuestions int) (*model.Quiz, error) {
	text, err := ExtractPDFText(pdfPath)
	if err != nil {
		return nil, fmt.Errorf("extract pdf text: %w", err)
	}
	return g.GenerateFromText(ctx, userID, text, title, pdfPath, numQuestions)
}

// GenerateFromText is the extraction-independent half, split out for
// tests.
func (g *QuizGenerator) GenerateFromText(ctx context.Context, userID uint, text, title, sourceFile string, numQuestions int) (*model.Quiz, error) {
	text = strings.TrimSpace(text)
	if len(text) < minQuizText {
		return nil, ErrNotEnoughText
	}
	if numQuestions <= 0 || numQuestions > g.maxQuestions {
		numQuestions = g.maxQuestions
	}

	chunks := chunkText(text, quizChunkSize, maxQuizChunks)
	perChunk := (numQuestions + len(chunks) - 1) / len(chunks)

	var questions []model.Question
	for i, chunk := range chunks {
		if len(questions) >= numQuestions {
			break
		}
		want := perChunk
		if remaining := numQuestions - len(questions); want > remaining {
			want = remaining
		}
		prompt := fmt.Sprintf("Generate %d multiple-choice questions from this study material:\n\n%s", want, chunk)

		raw, err := g.llm.Complete(ctx, quizSystemPrompt, prompt)
		if err != nil {
			g.log.Warn("quiz chunk generation failed", zap.Int("chunk", i), zap.Error(err))
			continue
		}

		parsed, err := ParseQuestions(raw)
		if err != nil {
			g.log.Warn("quiz chunk parse failed", zap.Int("chunk", i), zap.Error(err))
			continue
		}
		questions = append(questions, parsed...)
	}

	if len(questions) == 0 {
		return nil, ErrNoQuestions
	}
	if len(questions) > numQuestions {
		questions = questions[:numQuestions]
	}

	encoded, err := model.EncodeQuestions(questions)
	if err != nil {
		return nil, err
	}
	if title == "" {
		title = fmt.Sprintf("Quiz %s", time.Now().Format("02 Jan 15:04"))
	}
	quiz := &model.Quiz{
		UserID:         userID,
		Title:          title,
		Questions:      encoded,
		TotalQuestions: len(questions),
		SourceFile:     sourceFile,
		Difficulty:     "medium",
	}
	if err := g.store.SaveQuiz(ctx, quiz); err != nil {
		return nil, fmt.Errorf("save quiz: %w", err)
	}

	g.log.Info("quiz generated",
		zap.Uint("user_id", userID),
		zap.Uint("quiz_id", quiz.ID),
		zap.Int("questions", len(questions)))
	return quiz, nil
}

// ExtractPDFText returns the plain text of every page.
func ExtractPDFText(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	reader, err := r.GetPlainText()
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(reader); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// ParseQuestions decodes an LLM reply into validated questions. The
// reply may be wrapped in markdown fences or surrounded by prose; only
// the outermost JSON array is read. Invalid questions are dropped.
func ParseQuestions(raw string) ([]model.Question, error) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")

	start := strings.Index(cleaned, "[")
	end := strings.LastIndex(cleaned, "]")
	if start == -1 || end == -1 || end < start {
		return nil, fmt.Errorf("no JSON array in reply")
	}

	var decoded []model.Question
	if err := json.Unmarshal([]byte(cleaned[start:end+1]), &decoded); err != nil {
		return nil, fmt.Errorf("decode questions: %w", err)
	}

	valid := decoded[:0]
	for _, q := range decoded {
		q.Answer = strings.ToUpper(strings.TrimSpace(q.Answer))
		if err := q.Validate(); err != nil {
			continue
		}
		valid = append(valid, q)
	}
	if len(valid) == 0 {
		return nil, fmt.Errorf("no valid questions in reply")
	}
	return valid, nil
}

func chunkText(text string, size, maxChunks int) []string {
	runes := []rune(text)
	var chunks []string
	for len(runes) > 0 && len(chunks) < maxChunks {
		if len(runes) <= size {
			chunks = append(chunks, string(runes))
			break
		}
		chunks = append(chunks, string(runes[:size]))
		runes = runes[size:]
	}
	return chunks
}
