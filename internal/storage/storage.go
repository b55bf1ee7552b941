// Package storage defines the persistence contract shared by the
// SQLite and MongoDB backends. All access is asynchronous: every call
// takes a context and there is exactly one interface for both backends.
package storage

import (
	"context"
	"errors"
	"time"

	"anuj-bot/internal/model"
)

// ErrNotFound is returned when a looked-up entity does not exist,
// regardless of which backend produced the miss.
var ErrNotFound = errors.New("storage: not found")

// UserInfo carries the Telegram profile fields used on upsert.
type UserInfo struct {
	TelegramID   int64
	FirstName    string
	LastName     string
	Username     string
	LanguageCode string
}

// FileRecord carries the fields needed to register a stored file.
type FileRecord struct {
	UserID      uint
	Filename    string
	Path        string
	Type        string
	Size        int64
	Description string
	Tags        []string
}

// LeaderboardEntry is one row of a group leaderboard: average quiz
// percentage across attempts, best first.
type LeaderboardEntry struct {
	FirstName  string
	AvgPercent float64
	QuizCount  int
}

// Store is the single persistence interface. Implementations must be
// safe for concurrent use from the bot's handler goroutines.
type Store interface {
	// Users. UpsertUser creates the user on first contact and refreshes
	// profile fields plus LastActive afterwards; it never duplicates.
	UpsertUser(ctx context.Context, info UserInfo) (*model.User, error)
	FindUserByTelegramID(ctx context.Context, telegramID int64) (*model.User, error)
	ListUsers(ctx context.Context) ([]model.User, error)

	// Conversation log. AddMessage also bumps the user's message counter
	// when the sender is the user.
	AddMessage(ctx context.Context, userID uint, text, sender, msgType string) error
	// RecentHistory returns at most limit messages, oldest first.
	RecentHistory(ctx context.Context, userID uint, limit int) ([]model.Message, error)
	// DeleteMessagesBefore removes messages older than cutoff and
	// reports how many went away.
	DeleteMessagesBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// Files.
	AddFile(ctx context.Context, rec FileRecord) (*model.File, error)
	ListFiles(ctx context.Context, userID uint, fileType string, limit int) ([]model.File, error)
	// SearchFiles matches query as a substring of filename, description
	// or tags, newest first.
	SearchFiles(ctx context.Context, userID uint, query string, limit int) ([]model.File, error)
	SoftDeleteFile(ctx context.Context, userID, fileID uint) error

	// Quizzes.
	SaveQuiz(ctx context.Context, quiz *model.Quiz) error
	GetQuiz(ctx context.Context, quizID uint) (*model.Quiz, error)
	ListQuizzes(ctx context.Context, userID uint, limit int) ([]model.Quiz, error)
	SaveAttempts(ctx context.Context, attempts []model.QuizAttempt) error
	Leaderboard(ctx context.Context, groupID int64, limit int) ([]LeaderboardEntry, error)

	// Groups.
	UpsertGroup(ctx context.Context, telegramID int64, title, groupType string, adminUserID int64) error
	UpsertGroupMember(ctx context.Context, groupID int64, userID uint, role string) error

	// Rolling conversational context.
	GetUserContext(ctx context.Context, userID uint) (*model.UserContext, error)
	SetUserContext(ctx context.Context, uc *model.UserContext) error

	Close(ctx context.Context) error
}
