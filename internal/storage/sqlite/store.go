// Package sqlite implements storage.Store on a local SQLite database
// through gorm.
package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"anuj-bot/internal/model"
	"anuj-bot/internal/storage"
)

// Store is the gorm-backed implementation of storage.Store.
type Store struct {
	db *gorm.DB
}

var _ storage.Store = (*Store)(nil)

// Open opens the SQLite database at dsn and runs migrations.
func Open(dsn string) (*Store, error) {
	if dsn == "" {
		dsn = "database/anuj_bot.db"
	}

	if err := ensureDirForSQLite(dsn); err != nil {
		return nil, err
	}

	dbLogger := logger.New(
		log.New(os.Stdout, "", log.LstdFlags),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: dbLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if err := db.AutoMigrate(
		&model.User{},
		&model.Message{},
		&model.File{},
		&model.Quiz{},
		&model.QuizAttempt{},
		&model.UserContext{},
		&model.Group{},
		&model.GroupMember{},
	); err != nil {
		return nil, fmt.Errorf("migrate db: %w", err)
	}

	return &Store{db: db}, nil
}

// ensureDirForSQLite creates the parent dir for the SQLite file if needed.
func ensureDirForSQLite(dsn string) error {
	if strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory") {
		return nil
	}
	clean := strings.TrimPrefix(dsn, "file:")
	clean = strings.Split(clean, "?")[0]
	dir := filepath.Dir(clean)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create db dir %q: %w", dir, err)
	}
	return nil
}

func (s *Store) Close(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// UpsertUser finds or creates a user by Telegram ID and refreshes
// profile fields and last-active on every contact.
func (s *Store) UpsertUser(ctx context.Context, info storage.UserInfo) (*model.User, error) {
	var user model.User
	db := s.db.WithContext(ctx)
	err := db.Where("telegram_id = ?", info.TelegramID).First(&user).Error
	switch {
	case err == nil:
		updates := map[string]interface{}{
			"first_name":    info.FirstName,
			"last_name":     info.LastName,
			"username":      info.Username,
			"language_code": info.LanguageCode,
			"last_active":   time.Now(),
		}
		if err := db.Model(&user).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("update user: %w", err)
		}
		return &user, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		user = model.User{
			TelegramID:   info.TelegramID,
			FirstName:    info.FirstName,
			LastName:     info.LastName,
			Username:     info.Username,
			LanguageCode: info.LanguageCode,
			Status:       "active",
			LastActive:   time.Now(),
		}
		if err := db.Create(&user).Error; err != nil {
			return nil, fmt.Errorf("create user: %w", err)
		}
		return &user, nil
	default:
		return nil, fmt.Errorf("find user: %w", err)
	}
}

func (s *Store) FindUserByTelegramID(ctx context.Context, telegramID int64) (*model.User, error) {
	var user model.User
	if err := s.db.WithContext(ctx).Where("telegram_id = ?", telegramID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]model.User, error) {
	var users []model.User
	if err := s.db.WithContext(ctx).Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) AddMessage(ctx context.Context, userID uint, text, sender, msgType string) error {
	if msgType == "" {
		msgType = "text"
	}
	msg := model.Message{UserID: userID, Text: text, Sender: sender, Type: msgType}
	db := s.db.WithContext(ctx)
	if err := db.Create(&msg).Error; err != nil {
		return fmt.Errorf("create message: %w", err)
	}
	if sender == model.SenderUser {
		if err := db.Model(&model.User{}).Where("id = ?", userID).
			UpdateColumn("total_messages", gorm.Expr("total_messages + 1")).Error; err != nil {
			return fmt.Errorf("bump message counter: %w", err)
		}
	}
	return nil
}

// RecentHistory returns the newest limit messages in chronological
// order, oldest of the window first.
func (s *Store) RecentHistory(ctx context.Context, userID uint, limit int) ([]model.Message, error) {
	var msgs []model.Message
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id DESC").
		Limit(limit).
		Find(&msgs).Error; err != nil {
		return nil, err
	}
	// Newest-first from the query; flip to oldest-first.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (s *Store) DeleteMessagesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&model.Message{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete messages: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (s *Store) AddFile(ctx context.Context, rec storage.FileRecord) (*model.File, error) {
	tags, err := json.Marshal(rec.Tags)
	if err != nil {
		return nil, fmt.Errorf("encode tags: %w", err)
	}
	if rec.Tags == nil {
		tags = []byte("[]")
	}
	file := model.File{
		UserID:      rec.UserID,
		Filename:    rec.Filename,
		Path:        rec.Path,
		Type:        rec.Type,
		Size:        rec.Size,
		Description: rec.Description,
		Tags:        string(tags),
		IsActive:    true,
	}
	if err := s.db.WithContext(ctx).Create(&file).Error; err != nil {
		return nil, fmt.Errorf("create file record: %w", err)
	}
	return &file, nil
}

func (s *Store) ListFiles(ctx context.Context, userID uint, fileType string, limit int) ([]model.File, error) {
	q := s.db.WithContext(ctx).Where("user_id = ? AND is_active = ?", userID, true)
	if fileType != "" {
		q = q.Where("type = ?", fileType)
	}
	var files []model.File
	if err := q.Order("created_at DESC").Limit(limit).Find(&files).Error; err != nil {
		return nil, err
	}
	return files, nil
}

func (s *Store) SearchFiles(ctx context.Context, userID uint, query string, limit int) ([]model.File, error) {
	pattern := "%" + strings.ToLower(query) + "%"
	var files []model.File
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND is_active = ?", userID, true).
		Where("LOWER(filename) LIKE ? OR LOWER(description) LIKE ? OR LOWER(tags) LIKE ?",
			pattern, pattern, pattern).
		Order("created_at DESC").
		Limit(limit).
		Find(&files).Error
	if err != nil {
		return nil, err
	}
	return files, nil
}

func (s *Store) SoftDeleteFile(ctx context.Context, userID, fileID uint) error {
	res := s.db.WithContext(ctx).Model(&model.File{}).
		Where("id = ? AND user_id = ?", fileID, userID).
		Update("is_active", false)
	if res.Error != nil {
		return fmt.Errorf("soft delete file: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) SaveQuiz(ctx context.Context, quiz *model.Quiz) error {
	if err := s.db.WithContext(ctx).Create(quiz).Error; err != nil {
		return fmt.Errorf("create quiz: %w", err)
	}
	return nil
}

func (s *Store) GetQuiz(ctx context.Context, quizID uint) (*model.Quiz, error) {
	var quiz model.Quiz
	if err := s.db.WithContext(ctx).First(&quiz, quizID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	return &quiz, nil
}

func (s *Store) ListQuizzes(ctx context.Context, userID uint, limit int) ([]model.Quiz, error) {
	var quizzes []model.Quiz
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&quizzes).Error; err != nil {
		return nil, err
	}
	return quizzes, nil
}

func (s *Store) SaveAttempts(ctx context.Context, attempts []model.QuizAttempt) error {
	if len(attempts) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).Create(&attempts).Error; err != nil {
		return fmt.Errorf("create quiz attempts: %w", err)
	}
	return nil
}

// Leaderboard ranks group members by average quiz percentage, quiz
// count breaking ties.
func (s *Store) Leaderboard(ctx context.Context, groupID int64, limit int) ([]storage.LeaderboardEntry, error) {
	var entries []storage.LeaderboardEntry
	err := s.db.WithContext(ctx).
		Table("quiz_attempts").
		Select("users.first_name AS first_name, AVG(quiz_attempts.percentage) AS avg_percent, COUNT(quiz_attempts.id) AS quiz_count").
		Joins("JOIN users ON users.id = quiz_attempts.user_id").
		Where("quiz_attempts.group_id = ?", groupID).
		Group("quiz_attempts.user_id, users.first_name").
		Order("avg_percent DESC, quiz_count DESC").
		Limit(limit).
		Scan(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("leaderboard query: %w", err)
	}
	return entries, nil
}

func (s *Store) UpsertGroup(ctx context.Context, telegramID int64, title, groupType string, adminUserID int64) error {
	var group model.Group
	db := s.db.WithContext(ctx)
	err := db.Where("telegram_id = ?", telegramID).First(&group).Error
	switch {
	case err == nil:
		return db.Model(&group).Updates(map[string]interface{}{
			"title":     title,
			"type":      groupType,
			"is_active": true,
		}).Error
	case errors.Is(err, gorm.ErrRecordNotFound):
		group = model.Group{
			TelegramID:  telegramID,
			Title:       title,
			Type:        groupType,
			AdminUserID: adminUserID,
			IsActive:    true,
		}
		if err := db.Create(&group).Error; err != nil {
			return fmt.Errorf("create group: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("find group: %w", err)
	}
}

func (s *Store) UpsertGroupMember(ctx context.Context, groupID int64, userID uint, role string) error {
	if role == "" {
		role = "member"
	}
	var member model.GroupMember
	db := s.db.WithContext(ctx)
	err := db.Where("group_id = ? AND user_id = ?", groupID, userID).First(&member).Error
	switch {
	case err == nil:
		return db.Model(&member).Updates(map[string]interface{}{
			"is_active": true,
			"joined_at": time.Now(),
		}).Error
	case errors.Is(err, gorm.ErrRecordNotFound):
		member = model.GroupMember{
			GroupID:  groupID,
			UserID:   userID,
			Role:     role,
			IsActive: true,
			JoinedAt: time.Now(),
		}
		if err := db.Create(&member).Error; err != nil {
			return fmt.Errorf("create group member: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("find group member: %w", err)
	}
}

func (s *Store) GetUserContext(ctx context.Context, userID uint) (*model.UserContext, error) {
	var uc model.UserContext
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&uc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	return &uc, nil
}

func (s *Store) SetUserContext(ctx context.Context, uc *model.UserContext) error {
	if err := s.db.WithContext(ctx).Save(uc).Error; err != nil {
		return fmt.Errorf("save user context: %w", err)
	}
	return nil
}
