package quiz

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"anuj-bot/internal/model"
	"anuj-bot/internal/storage"
)

type event struct {
	kind    string
	index   int
	results []Result
}

// fakeNotifier records session events on a channel so tests can wait
// for timer-driven transitions.
type fakeNotifier struct {
	events chan event
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{events: make(chan event, 64)}
}

func (n *fakeNotifier) QuizStarting(chatID int64, title string, joinSeconds int) {
	n.events <- event{kind: "starting"}
}

func (n *fakeNotifier) JoinClosedNoPlayers(chatID int64) {
	n.events <- event{kind: "empty"}
}

func (n *fakeNotifier) AskQuestion(chatID int64, index, total int, q model.Question, seconds int) {
	n.events <- event{kind: "ask", index: index}
}

func (n *fakeNotifier) RevealAnswer(chatID int64, index int, q model.Question) {
	n.events <- event{kind: "reveal", index: index}
}

func (n *fakeNotifier) ShowResults(chatID int64, results []Result) {
	n.events <- event{kind: "results", results: results}
}

func (n *fakeNotifier) wait(t *testing.T, kind string) event {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case e := <-n.events:
			if e.kind == kind {
				return e
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q event", kind)
		}
	}
}

func testQuiz(t *testing.T, n int) *model.Quiz {
	t.Helper()
	questions := make([]model.Question, n)
	for i := range questions {
		questions[i] = model.Question{
			Prompt:  "What is 2 + 2?",
			Options: [4]string{"3", "4", "5", "6"},
			Answer:  "B",
		}
	}
	encoded, err := model.EncodeQuestions(questions)
	require.NoError(t, err)
	return &model.Quiz{ID: 1, UserID: 1, Title: "Test Quiz", Questions: encoded, TotalQuestions: n}
}

func newTestSessions(t *testing.T, store storage.Store, join, question time.Duration) (*Sessions, *fakeNotifier) {
	t.Helper()
	notifier := newFakeNotifier()
	return NewSessions(store, notifier, join, question, zap.NewNop()), notifier
}

func TestStart_OnePerChat(t *testing.T) {
	m, _ := newTestSessions(t, storage.NewMemStore(), time.Hour, time.Hour)

	require.NoError(t, m.Start(100, testQuiz(t, 2)))
	assert.ErrorIs(t, m.Start(100, testQuiz(t, 2)), ErrSessionActive)

	// A different chat is unaffected.
	require.NoError(t, m.Start(200, testQuiz(t, 2)))
}

func TestStart_EmptyQuestionsRejected(t *testing.T) {
	m, _ := newTestSessions(t, storage.NewMemStore(), time.Hour, time.Hour)
	quiz := &model.Quiz{ID: 1, Questions: "[]"}
	assert.ErrorIs(t, m.Start(100, quiz), ErrNoQuestions)
}

func TestJoin_WindowCloses(t *testing.T) {
	m, notifier := newTestSessions(t, storage.NewMemStore(), 30*time.Millisecond, time.Hour)

	require.NoError(t, m.Start(100, testQuiz(t, 1)))
	_, err := m.Join(100, 1, "Priya")
	require.NoError(t, err)

	notifier.wait(t, "ask")

	_, err = m.Join(100, 2, "Rahul")
	assert.ErrorIs(t, err, ErrJoinClosed)
}

func TestJoin_NoSession(t *testing.T) {
	m, _ := newTestSessions(t, storage.NewMemStore(), time.Hour, time.Hour)
	_, err := m.Join(100, 1, "Priya")
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestJoin_DuplicateKeepsCount(t *testing.T) {
	m, _ := newTestSessions(t, storage.NewMemStore(), time.Hour, time.Hour)
	require.NoError(t, m.Start(100, testQuiz(t, 1)))

	count, err := m.Join(100, 1, "Priya")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	count, err = m.Join(100, 1, "Priya")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestNoParticipants_TearsDown(t *testing.T) {
	m, notifier := newTestSessions(t, storage.NewMemStore(), 20*time.Millisecond, time.Hour)
	require.NoError(t, m.Start(100, testQuiz(t, 1)))

	notifier.wait(t, "empty")
	assert.False(t, m.Active(100))

	// Chat is free for a new quiz.
	require.NoError(t, m.Start(100, testQuiz(t, 1)))
}

func TestAnswer_ScoringAndEarlyAdvance(t *testing.T) {
	store := storage.NewMemStore()
	m, notifier := newTestSessions(t, store, 20*time.Millisecond, time.Hour)

	require.NoError(t, m.Start(100, testQuiz(t, 1)))
	_, err := m.Join(100, 1, "Priya")
	require.NoError(t, err)
	_, err = m.Join(100, 2, "Rahul")
	require.NoError(t, err)

	notifier.wait(t, "ask")

	require.NoError(t, m.Answer(100, 1, 0, "B")) // correct
	require.NoError(t, m.Answer(100, 2, 0, "A")) // wrong, closes the question

	notifier.wait(t, "reveal")
	e := notifier.wait(t, "results")

	require.Len(t, e.results, 2)
	assert.Equal(t, "Priya", e.results[0].Name)
	assert.Equal(t, 1, e.results[0].Score)
	assert.Equal(t, "Rahul", e.results[1].Name)
	assert.Equal(t, 0, e.results[1].Score)

	// Scores never exceed the question count.
	for _, r := range e.results {
		assert.LessOrEqual(t, r.Score, r.Total)
	}

	require.Eventually(t, func() bool {
		return len(store.Attempts()) == 2
	}, 2*time.Second, 10*time.Millisecond)
	for _, a := range store.Attempts() {
		assert.Equal(t, int64(100), a.GroupID)
		assert.Equal(t, 1, a.TotalQuestions)
	}
}

func TestAnswer_DuplicateRejected(t *testing.T) {
	m, notifier := newTestSessions(t, storage.NewMemStore(), 20*time.Millisecond, time.Hour)

	require.NoError(t, m.Start(100, testQuiz(t, 2)))
	_, err := m.Join(100, 1, "Priya")
	require.NoError(t, err)
	_, err = m.Join(100, 2, "Rahul")
	require.NoError(t, err)

	notifier.wait(t, "ask")

	require.NoError(t, m.Answer(100, 1, 0, "A"))
	assert.ErrorIs(t, m.Answer(100, 1, 0, "B"), ErrAlreadyAnswered)
}

func TestAnswer_NonParticipantRejected(t *testing.T) {
	m, notifier := newTestSessions(t, storage.NewMemStore(), 20*time.Millisecond, time.Hour)

	require.NoError(t, m.Start(100, testQuiz(t, 1)))
	_, err := m.Join(100, 1, "Priya")
	require.NoError(t, err)

	notifier.wait(t, "ask")

	assert.ErrorIs(t, m.Answer(100, 99, 0, "B"), ErrNotParticipant)
}

func TestAnswer_StaleQuestionRejected(t *testing.T) {
	m, notifier := newTestSessions(t, storage.NewMemStore(), 20*time.Millisecond, time.Hour)

	require.NoError(t, m.Start(100, testQuiz(t, 2)))
	_, err := m.Join(100, 1, "Priya")
	require.NoError(t, err)

	notifier.wait(t, "ask")
	require.NoError(t, m.Answer(100, 1, 0, "B"))

	// Question 0 closed when the only participant answered; a late
	// press on its button is rejected.
	notifier.wait(t, "reveal")
	assert.ErrorIs(t, m.Answer(100, 1, 0, "A"), ErrQuestionClosed)
}

func TestTimer_AdvancesUnanswered(t *testing.T) {
	m, notifier := newTestSessions(t, storage.NewMemStore(), 20*time.Millisecond, 30*time.Millisecond)

	require.NoError(t, m.Start(100, testQuiz(t, 2)))
	_, err := m.Join(100, 1, "Priya")
	require.NoError(t, err)

	// Nobody answers; timers walk the quiz to the end.
	notifier.wait(t, "ask")
	notifier.wait(t, "reveal")
	notifier.wait(t, "ask")
	notifier.wait(t, "reveal")
	e := notifier.wait(t, "results")

	require.Len(t, e.results, 1)
	assert.Equal(t, 0, e.results[0].Score)
	assert.False(t, m.Active(100))
}

func TestResults_TieBrokenByJoinOrder(t *testing.T) {
	m, notifier := newTestSessions(t, storage.NewMemStore(), 20*time.Millisecond, time.Hour)

	require.NoError(t, m.Start(100, testQuiz(t, 1)))
	_, err := m.Join(100, 1, "Priya")
	require.NoError(t, err)
	_, err = m.Join(100, 2, "Rahul")
	require.NoError(t, err)

	notifier.wait(t, "ask")

	// Both correct: tie, earlier joiner first.
	require.NoError(t, m.Answer(100, 2, 0, "B"))
	require.NoError(t, m.Answer(100, 1, 0, "B"))

	e := notifier.wait(t, "results")
	require.Len(t, e.results, 2)
	assert.Equal(t, "Priya", e.results[0].Name)
	assert.Equal(t, "Rahul", e.results[1].Name)
}

func TestStop_CancelsSession(t *testing.T) {
	m, _ := newTestSessions(t, storage.NewMemStore(), time.Hour, time.Hour)

	require.NoError(t, m.Start(100, testQuiz(t, 1)))
	require.NoError(t, m.Stop(100))
	assert.False(t, m.Active(100))
	assert.ErrorIs(t, m.Stop(100), ErrNoSession)
}
