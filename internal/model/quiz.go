package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Answer letters for multiple-choice questions. The letter form is the
// canonical answer representation everywhere in the codebase; option
// text is never compared against answers.
var AnswerLetters = []string{"A", "B", "C", "D"}

// Question is a single multiple-choice question with exactly four
// options and a correct-answer letter.
type Question struct {
	Prompt      string    `json:"question"`
	Options     [4]string `json:"options"`
	Answer      string    `json:"answer"`
	Explanation string    `json:"explanation,omitempty"`
}

// Validate checks the canonical question shape.
func (q Question) Validate() error {
	if q.Prompt == "" {
		return fmt.Errorf("question prompt is empty")
	}
	for i, opt := range q.Options {
		if opt == "" {
			return fmt.Errorf("option %d is empty", i+1)
		}
	}
	for _, letter := range AnswerLetters {
		if q.Answer == letter {
			return nil
		}
	}
	return fmt.Errorf("answer %q is not one of A-D", q.Answer)
}

// CorrectOption returns the option text the answer letter points at.
func (q Question) CorrectOption() string {
	idx := int(q.Answer[0] - 'A')
	if idx < 0 || idx >= len(q.Options) {
		return ""
	}
	return q.Options[idx]
}

// Quiz is a generated set of questions, stored as JSON in a single
// column the way the original bot kept them.
type Quiz struct {
	ID             uint `gorm:"primaryKey"`
	UserID         uint `gorm:"index"`
	Title          string
	Questions      string // JSON-encoded []Question
	TotalQuestions int
	SourceFile     string
	Difficulty     string `gorm:"default:medium"`
	Subject        string
	CreatedAt      time.Time
}

// DecodeQuestions unmarshals the stored question list.
func (q Quiz) DecodeQuestions() ([]Question, error) {
	var questions []Question
	if err := json.Unmarshal([]byte(q.Questions), &questions); err != nil {
		return nil, fmt.Errorf("decode quiz questions: %w", err)
	}
	return questions, nil
}

// EncodeQuestions marshals questions for storage.
func EncodeQuestions(questions []Question) (string, error) {
	raw, err := json.Marshal(questions)
	if err != nil {
		return "", fmt.Errorf("encode quiz questions: %w", err)
	}
	return string(raw), nil
}

// QuizAttempt records one participant's result for a finished quiz.
type QuizAttempt struct {
	ID             uint  `gorm:"primaryKey"`
	QuizID         uint  `gorm:"index"`
	UserID         uint  `gorm:"index"`
	GroupID        int64 `gorm:"index"`
	Score          int
	TotalQuestions int
	Percentage     float64
	TimeTaken      int // seconds
	CreatedAt      time.Time
}
