package sqlite

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"anuj-bot/internal/model"
	"anuj-bot/internal/storage"
)

var testDBSeq atomic.Int64

func newTestStore(t *testing.T) *Store {
	t.Helper()
	// A named in-memory database per test: the connection pool shares
	// it, other tests do not.
	dsn := fmt.Sprintf("file:test%d?mode=memory&cache=shared", testDBSeq.Add(1))
	s, err := Open(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close(context.Background()) })
	return s
}

func TestUpsertUser_NoDuplicates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.UpsertUser(ctx, storage.UserInfo{TelegramID: 42, FirstName: "Priya"})
	require.NoError(t, err)

	second, err := s.UpsertUser(ctx, storage.UserInfo{TelegramID: 42, FirstName: "Priya S"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	users, err := s.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)

	found, err := s.FindUserByTelegramID(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, "Priya S", found.FirstName)

	_, err = s.FindUserByTelegramID(ctx, 999)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestMessages_HistoryAndCounter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	user, err := s.UpsertUser(ctx, storage.UserInfo{TelegramID: 42, FirstName: "Priya"})
	require.NoError(t, err)

	require.NoError(t, s.AddMessage(ctx, user.ID, "one", model.SenderUser, ""))
	require.NoError(t, s.AddMessage(ctx, user.ID, "two", model.SenderBot, ""))
	require.NoError(t, s.AddMessage(ctx, user.ID, "three", model.SenderUser, ""))

	history, err := s.RecentHistory(ctx, user.ID, 2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	// Oldest of the window first.
	assert.Equal(t, "two", history[0].Text)
	assert.Equal(t, "three", history[1].Text)

	// Only user messages bump the counter.
	found, err := s.FindUserByTelegramID(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(2), found.TotalMessages)
}

func TestDeleteMessagesBefore(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AddMessage(ctx, 1, "old", model.SenderUser, ""))

	removed, err := s.DeleteMessagesBefore(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	history, err := s.RecentHistory(ctx, 1, 10)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestFiles_SoftDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	file, err := s.AddFile(ctx, storage.FileRecord{
		UserID:   7,
		Filename: "notes.pdf",
		Path:     "files/pdf/7_x.pdf",
		Type:     model.FileTypePDF,
		Size:     123,
		Tags:     []string{"physics"},
	})
	require.NoError(t, err)
	assert.Equal(t, `["physics"]`, file.Tags)

	files, err := s.ListFiles(ctx, 7, model.FileTypePDF, 10)
	require.NoError(t, err)
	assert.Len(t, files, 1)

	require.NoError(t, s.SoftDeleteFile(ctx, 7, file.ID))

	files, err = s.ListFiles(ctx, 7, "", 10)
	require.NoError(t, err)
	assert.Empty(t, files)

	assert.ErrorIs(t, s.SoftDeleteFile(ctx, 7, file.ID+100), storage.ErrNotFound)
}

func TestSearchFiles(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.AddFile(ctx, storage.FileRecord{
		UserID: 7, Filename: "Physics_Ch1.pdf", Path: "p1", Type: model.FileTypePDF,
	})
	require.NoError(t, err)
	_, err = s.AddFile(ctx, storage.FileRecord{
		UserID: 7, Filename: "notes.pdf", Path: "p2", Type: model.FileTypePDF,
		Description: "chemistry formulas",
	})
	require.NoError(t, err)

	// Case-insensitive filename match.
	byName, err := s.SearchFiles(ctx, 7, "physics", 10)
	require.NoError(t, err)
	require.Len(t, byName, 1)
	assert.Equal(t, "Physics_Ch1.pdf", byName[0].Filename)

	byDesc, err := s.SearchFiles(ctx, 7, "chemistry", 10)
	require.NoError(t, err)
	require.Len(t, byDesc, 1)
	assert.Equal(t, "notes.pdf", byDesc[0].Filename)

	none, err := s.SearchFiles(ctx, 7, "biology", 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestQuizzes_SaveAndList(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	quiz := &model.Quiz{UserID: 1, Title: "Bio", Questions: "[]", TotalQuestions: 0}
	require.NoError(t, s.SaveQuiz(ctx, quiz))
	require.NotZero(t, quiz.ID)

	got, err := s.GetQuiz(ctx, quiz.ID)
	require.NoError(t, err)
	assert.Equal(t, "Bio", got.Title)

	_, err = s.GetQuiz(ctx, quiz.ID+1)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	list, err := s.ListQuizzes(ctx, 1, 10)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestLeaderboard_RanksByAverage(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	priya, err := s.UpsertUser(ctx, storage.UserInfo{TelegramID: 1, FirstName: "Priya"})
	require.NoError(t, err)
	rahul, err := s.UpsertUser(ctx, storage.UserInfo{TelegramID: 2, FirstName: "Rahul"})
	require.NoError(t, err)

	require.NoError(t, s.SaveAttempts(ctx, []model.QuizAttempt{
		{QuizID: 1, UserID: priya.ID, GroupID: -100, Score: 8, TotalQuestions: 10, Percentage: 80},
		{QuizID: 2, UserID: priya.ID, GroupID: -100, Score: 10, TotalQuestions: 10, Percentage: 100},
		{QuizID: 1, UserID: rahul.ID, GroupID: -100, Score: 5, TotalQuestions: 10, Percentage: 50},
		// Different group, must not leak in.
		{QuizID: 1, UserID: rahul.ID, GroupID: -200, Score: 10, TotalQuestions: 10, Percentage: 100},
	}))

	entries, err := s.Leaderboard(ctx, -100, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "Priya", entries[0].FirstName)
	assert.InDelta(t, 90, entries[0].AvgPercent, 0.01)
	assert.Equal(t, 2, entries[0].QuizCount)
	assert.Equal(t, "Rahul", entries[1].FirstName)
}

func TestGroupMembers_Upsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertGroup(ctx, -100, "Study Group", "supergroup", 1))
	require.NoError(t, s.UpsertGroup(ctx, -100, "Study Group 2.0", "supergroup", 1))

	require.NoError(t, s.UpsertGroupMember(ctx, -100, 1, ""))
	require.NoError(t, s.UpsertGroupMember(ctx, -100, 1, "admin"))
}

func TestUserContext_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.GetUserContext(ctx, 1)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, s.SetUserContext(ctx, &model.UserContext{
		UserID:       1,
		CurrentTopic: "physics",
		ContextData:  "{}",
		LastQuery:    "what is torque",
		QueryCount:   1,
	}))

	uc, err := s.GetUserContext(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "physics", uc.CurrentTopic)
	assert.Equal(t, int64(1), uc.QueryCount)
}
