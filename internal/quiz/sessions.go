// Package quiz runs group quiz sessions: a join window, timed
// questions with inline answers, scoring and a final ranking.
package quiz

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"anuj-bot/internal/model"
	"anuj-bot/internal/storage"
)

// Session state machine.
type State int

const (
	StateCollecting State = iota // join window open
	StateAsking                  // a question is live
	StateGrading                 // between questions
	StateFinished
)

// Errors surfaced to the bot layer.
var (
	ErrSessionActive   = fmt.Errorf("a quiz is already running in this chat")
	ErrNoSession       = fmt.Errorf("no quiz running in this chat")
	ErrJoinClosed      = fmt.Errorf("join window is closed")
	ErrNotParticipant  = fmt.Errorf("user is not in this quiz")
	ErrAlreadyAnswered = fmt.Errorf("user already answered this question")
	ErrQuestionClosed  = fmt.Errorf("this question is no longer open")
	ErrNoQuestions     = fmt.Errorf("quiz has no questions")
)

// Result is one row of the final ranking.
type Result struct {
	UserID uint
	Name   string
	Score  int
	Total  int
}

// Notifier is how a session talks to the chat. The bot implements it
// over the Telegram API; tests implement it in memory.
type Notifier interface {
	QuizStarting(chatID int64, title string, joinSeconds int)
	JoinClosedNoPlayers(chatID int64)
	AskQuestion(chatID int64, index, total int, q model.Question, seconds int)
	RevealAnswer(chatID int64, index int, q model.Question)
	ShowResults(chatID int64, results []Result)
}

type participant struct {
	userID  uint
	name    string
	score   int
	ordinal int // join order, breaks score ties
	answers map[int]string
}

type session struct {
	chatID    int64
	quiz      *model.Quiz
	questions []model.Question
	state     State
	current   int
	// generation increments on every question transition so a timer
	// that fires late can detect it is stale.
	generation   int64
	participants map[uint]*participant
	startedAt    time.Time
	timer        *time.Timer
}

// Sessions manages at most one live quiz per chat.
type Sessions struct {
	mu       sync.Mutex
	sessions map[int64]*session

	store        storage.Store
	notifier     Notifier
	joinWindow   time.Duration
	questionTime time.Duration
	log          *zap.Logger
}

func NewSessions(store storage.Store, notifier Notifier, joinWindow, questionTime time.Duration, log *zap.Logger) *Sessions {
	if joinWindow <= 0 {
		joinWindow = 30 * time.Second
	}
	if questionTime <= 0 {
		questionTime = 30 * time.Second
	}
	return &Sessions{
		sessions:     make(map[int64]*session),
		store:        store,
		notifier:     notifier,
		joinWindow:   joinWindow,
		questionTime: questionTime,
		log:          log,
	}
}

// Start opens a quiz in the chat and begins the join window. Everyone
// joins through the button, the starter included; a window that closes
// with nobody enrolled tears the session down.
func (m *Sessions) Start(chatID int64, quiz *model.Quiz) error {
	questions, err := quiz.DecodeQuestions()
	if err != nil {
		return err
	}
	if len(questions) == 0 {
		return ErrNoQuestions
	}

	m.mu.Lock()
	if _, exists := m.sessions[chatID]; exists {
		m.mu.Unlock()
		return ErrSessionActive
	}
	s := &session{
		chatID:       chatID,
		quiz:         quiz,
		questions:    questions,
		state:        StateCollecting,
		current:      -1,
		participants: make(map[uint]*participant),
		startedAt:    time.Now(),
	}
	m.sessions[chatID] = s
	gen := s.generation
	s.timer = time.AfterFunc(m.joinWindow, func() { m.closeJoinWindow(chatID, gen) })
	m.mu.Unlock()

	m.notifier.QuizStarting(chatID, quiz.Title, int(m.joinWindow.Seconds()))
	return nil
}

// Join enrolls a user while the join window is open and returns the
// participant count after the join.
func (m *Sessions) Join(chatID int64, userID uint, name string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[chatID]
	if !ok {
		return 0, ErrNoSession
	}
	if s.state != StateCollecting {
		return 0, ErrJoinClosed
	}
	if _, joined := s.participants[userID]; joined {
		return len(s.participants), nil
	}
	s.participants[userID] = &participant{
		userID:  userID,
		name:    name,
		ordinal: len(s.participants),
		answers: make(map[int]string),
	}
	return len(s.participants), nil
}

// Active reports whether the chat has a live session.
func (m *Sessions) Active(chatID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[chatID]
	return ok
}

func (m *Sessions) closeJoinWindow(chatID int64, gen int64) {
	m.mu.Lock()
	s, ok := m.sessions[chatID]
	if !ok || s.generation != gen || s.state != StateCollecting {
		m.mu.Unlock()
		return
	}
	if len(s.participants) == 0 {
		delete(m.sessions, chatID)
		m.mu.Unlock()
		m.notifier.JoinClosedNoPlayers(chatID)
		return
	}
	m.advanceLocked(s)
	m.mu.Unlock()
}

// advanceLocked moves the session to the next question or finishes it.
// Caller holds the mutex; notifications are queued and fired after the
// state change under the same lock hold.
func (m *Sessions) advanceLocked(s *session) {
	if s.timer != nil {
		s.timer.Stop()
	}
	s.generation++
	s.current++

	if s.current >= len(s.questions) {
		m.finishLocked(s)
		return
	}

	s.state = StateAsking
	q := s.questions[s.current]
	index, total := s.current, len(s.questions)
	chatID, gen := s.chatID, s.generation
	s.timer = time.AfterFunc(m.questionTime, func() { m.questionTimeout(chatID, index, gen) })

	go m.notifier.AskQuestion(chatID, index, total, q, int(m.questionTime.Seconds()))
}

// questionTimeout fires when a question's timer expires. Stale fires
// are no-ops: the session must still exist, be on the same question
// and the same generation.
func (m *Sessions) questionTimeout(chatID int64, index int, gen int64) {
	m.mu.Lock()
	s, ok := m.sessions[chatID]
	if !ok || s.generation != gen || s.state != StateAsking || s.current != index {
		m.mu.Unlock()
		return
	}
	q := s.questions[index]
	m.notifier.RevealAnswer(chatID, index, q)
	m.advanceLocked(s)
	m.mu.Unlock()
}

// Answer records a participant's answer letter for the question at
// index. A correct letter scores one point. When every participant
// has answered, the question closes early.
func (m *Sessions) Answer(chatID int64, userID uint, index int, letter string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[chatID]
	if !ok {
		return ErrNoSession
	}
	if s.state != StateAsking || s.current != index {
		return ErrQuestionClosed
	}
	p, ok := s.participants[userID]
	if !ok {
		return ErrNotParticipant
	}
	if _, answered := p.answers[index]; answered {
		return ErrAlreadyAnswered
	}

	p.answers[index] = letter
	q := s.questions[index]
	if letter == q.Answer {
		p.score++
	}

	for _, other := range s.participants {
		if _, answered := other.answers[index]; !answered {
			return nil
		}
	}
	// Everyone answered; close the question early.
	s.state = StateGrading
	m.notifier.RevealAnswer(chatID, index, q)
	m.advanceLocked(s)
	return nil
}

// Stop cancels a running session without results. Used when the bot
// shuts down or an admin aborts the quiz.
func (m *Sessions) Stop(chatID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[chatID]
	if !ok {
		return ErrNoSession
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.generation++
	delete(m.sessions, chatID)
	return nil
}

// finishLocked ranks participants, announces results and persists
// attempts. Caller holds the mutex.
func (m *Sessions) finishLocked(s *session) {
	s.state = StateFinished
	delete(m.sessions, s.chatID)

	ranked := make([]*participant, 0, len(s.participants))
	for _, p := range s.participants {
		ranked = append(ranked, p)
	}
	// Score descending; earlier joiner wins ties.
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].ordinal < ranked[j].ordinal
	})

	total := len(s.questions)
	results := make([]Result, 0, len(ranked))
	attempts := make([]model.QuizAttempt, 0, len(ranked))
	elapsed := int(time.Since(s.startedAt).Seconds())
	for _, p := range ranked {
		results = append(results, Result{UserID: p.userID, Name: p.name, Score: p.score, Total: total})
		attempts = append(attempts, model.QuizAttempt{
			QuizID:         s.quiz.ID,
			UserID:         p.userID,
			GroupID:        s.chatID,
			Score:          p.score,
			TotalQuestions: total,
			Percentage:     float64(p.score) / float64(total) * 100,
			TimeTaken:      elapsed,
		})
	}

	chatID := s.chatID
	go func() {
		m.notifier.ShowResults(chatID, results)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := m.store.SaveAttempts(ctx, attempts); err != nil {
			m.log.Error("persist quiz attempts failed", zap.Int64("chat_id", chatID), zap.Error(err))
		}
	}()
}
