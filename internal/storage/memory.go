package storage

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"anuj-bot/internal/model"
)

// MemStore is an in-memory Store used by tests. It keeps the same
// semantics as the real backends: numeric IDs, soft deletes,
// newest-first windows flipped to chronological order.
type MemStore struct {
	mu sync.Mutex

	users    []model.User
	messages []model.Message
	files    []model.File
	quizzes  []model.Quiz
	attempts []model.QuizAttempt
	contexts map[uint]model.UserContext
	groups   map[int64]model.Group
	members  map[int64]map[uint]model.GroupMember

	nextUser    uint
	nextMessage uint
	nextFile    uint
	nextQuiz    uint
}

var _ Store = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{
		contexts: make(map[uint]model.UserContext),
		groups:   make(map[int64]model.Group),
		members:  make(map[int64]map[uint]model.GroupMember),
	}
}

func (s *MemStore) Close(ctx context.Context) error { return nil }

func (s *MemStore) UpsertUser(ctx context.Context, info UserInfo) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.users {
		if s.users[i].TelegramID == info.TelegramID {
			s.users[i].FirstName = info.FirstName
			s.users[i].LastName = info.LastName
			s.users[i].Username = info.Username
			s.users[i].LanguageCode = info.LanguageCode
			s.users[i].LastActive = time.Now()
			u := s.users[i]
			return &u, nil
		}
	}
	s.nextUser++
	user := model.User{
		ID:           s.nextUser,
		TelegramID:   info.TelegramID,
		FirstName:    info.FirstName,
		LastName:     info.LastName,
		Username:     info.Username,
		LanguageCode: info.LanguageCode,
		Status:       "active",
		LastActive:   time.Now(),
		CreatedAt:    time.Now(),
	}
	s.users = append(s.users, user)
	return &user, nil
}

func (s *MemStore) FindUserByTelegramID(ctx context.Context, telegramID int64) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.users {
		if s.users[i].TelegramID == telegramID {
			u := s.users[i]
			return &u, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemStore) ListUsers(ctx context.Context) ([]model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.User, len(s.users))
	copy(out, s.users)
	return out, nil
}

func (s *MemStore) AddMessage(ctx context.Context, userID uint, text, sender, msgType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msgType == "" {
		msgType = "text"
	}
	s.nextMessage++
	s.messages = append(s.messages, model.Message{
		ID:        s.nextMessage,
		UserID:    userID,
		Text:      text,
		Sender:    sender,
		Type:      msgType,
		CreatedAt: time.Now(),
	})
	if sender == model.SenderUser {
		for i := range s.users {
			if s.users[i].ID == userID {
				s.users[i].TotalMessages++
			}
		}
	}
	return nil
}

func (s *MemStore) RecentHistory(ctx context.Context, userID uint, limit int) ([]model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var mine []model.Message
	for _, m := range s.messages {
		if m.UserID == userID {
			mine = append(mine, m)
		}
	}
	if len(mine) > limit {
		mine = mine[len(mine)-limit:]
	}
	out := make([]model.Message, len(mine))
	copy(out, mine)
	return out, nil
}

func (s *MemStore) DeleteMessagesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var kept []model.Message
	var removed int64
	for _, m := range s.messages {
		if m.CreatedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, m)
	}
	s.messages = kept
	return removed, nil
}

func (s *MemStore) AddFile(ctx context.Context, rec FileRecord) (*model.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tags := "[]"
	if len(rec.Tags) > 0 {
		raw, err := json.Marshal(rec.Tags)
		if err == nil {
			tags = string(raw)
		}
	}
	s.nextFile++
	file := model.File{
		ID:          s.nextFile,
		UserID:      rec.UserID,
		Filename:    rec.Filename,
		Path:        rec.Path,
		Type:        rec.Type,
		Size:        rec.Size,
		Description: rec.Description,
		Tags:        tags,
		IsActive:    true,
		CreatedAt:   time.Now(),
	}
	s.files = append(s.files, file)
	return &file, nil
}

func (s *MemStore) ListFiles(ctx context.Context, userID uint, fileType string, limit int) ([]model.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.File
	for i := len(s.files) - 1; i >= 0 && len(out) < limit; i-- {
		f := s.files[i]
		if f.UserID != userID || !f.IsActive {
			continue
		}
		if fileType != "" && !strings.EqualFold(f.Type, fileType) {
			continue
		}
		out = append(out, f)
	}
	return out, nil
}

func (s *MemStore) SearchFiles(ctx context.Context, userID uint, query string, limit int) ([]model.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := strings.ToLower(query)
	var out []model.File
	for i := len(s.files) - 1; i >= 0 && len(out) < limit; i-- {
		f := s.files[i]
		if f.UserID != userID || !f.IsActive {
			continue
		}
		if strings.Contains(strings.ToLower(f.Filename), q) ||
			strings.Contains(strings.ToLower(f.Description), q) ||
			strings.Contains(strings.ToLower(f.Tags), q) {
			out = append(out, f)
		}
	}
	return out, nil
}

func (s *MemStore) SoftDeleteFile(ctx context.Context, userID, fileID uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.files {
		if s.files[i].ID == fileID && s.files[i].UserID == userID {
			s.files[i].IsActive = false
			return nil
		}
	}
	return ErrNotFound
}

func (s *MemStore) SaveQuiz(ctx context.Context, quiz *model.Quiz) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextQuiz++
	quiz.ID = s.nextQuiz
	if quiz.CreatedAt.IsZero() {
		quiz.CreatedAt = time.Now()
	}
	s.quizzes = append(s.quizzes, *quiz)
	return nil
}

func (s *MemStore) GetQuiz(ctx context.Context, quizID uint) (*model.Quiz, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, q := range s.quizzes {
		if q.ID == quizID {
			out := q
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemStore) ListQuizzes(ctx context.Context, userID uint, limit int) ([]model.Quiz, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Quiz
	for i := len(s.quizzes) - 1; i >= 0 && len(out) < limit; i-- {
		if s.quizzes[i].UserID == userID {
			out = append(out, s.quizzes[i])
		}
	}
	return out, nil
}

func (s *MemStore) SaveAttempts(ctx context.Context, attempts []model.QuizAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts = append(s.attempts, attempts...)
	return nil
}

// Attempts returns everything saved so far, for test assertions.
func (s *MemStore) Attempts() []model.QuizAttempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.QuizAttempt, len(s.attempts))
	copy(out, s.attempts)
	return out
}

func (s *MemStore) Leaderboard(ctx context.Context, groupID int64, limit int) ([]LeaderboardEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	type agg struct {
		sum   float64
		count int
	}
	byUser := make(map[uint]*agg)
	for _, a := range s.attempts {
		if a.GroupID != groupID {
			continue
		}
		entry, ok := byUser[a.UserID]
		if !ok {
			entry = &agg{}
			byUser[a.UserID] = entry
		}
		entry.sum += a.Percentage
		entry.count++
	}

	var entries []LeaderboardEntry
	for userID, a := range byUser {
		name := ""
		for _, u := range s.users {
			if u.ID == userID {
				name = u.FirstName
			}
		}
		entries = append(entries, LeaderboardEntry{
			FirstName:  name,
			AvgPercent: a.sum / float64(a.count),
			QuizCount:  a.count,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].AvgPercent != entries[j].AvgPercent {
			return entries[i].AvgPercent > entries[j].AvgPercent
		}
		return entries[i].QuizCount > entries[j].QuizCount
	})
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (s *MemStore) UpsertGroup(ctx context.Context, telegramID int64, title, groupType string, adminUserID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[telegramID]
	if !ok {
		g = model.Group{TelegramID: telegramID, AdminUserID: adminUserID, CreatedAt: time.Now()}
	}
	g.Title = title
	g.Type = groupType
	g.IsActive = true
	s.groups[telegramID] = g
	return nil
}

func (s *MemStore) UpsertGroupMember(ctx context.Context, groupID int64, userID uint, role string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if role == "" {
		role = "member"
	}
	members, ok := s.members[groupID]
	if !ok {
		members = make(map[uint]model.GroupMember)
		s.members[groupID] = members
	}
	m, ok := members[userID]
	if !ok {
		m = model.GroupMember{GroupID: groupID, UserID: userID, Role: role}
	}
	m.IsActive = true
	m.JoinedAt = time.Now()
	members[userID] = m
	return nil
}

func (s *MemStore) GetUserContext(ctx context.Context, userID uint) (*model.UserContext, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	uc, ok := s.contexts[userID]
	if !ok {
		return nil, ErrNotFound
	}
	out := uc
	return &out, nil
}

func (s *MemStore) SetUserContext(ctx context.Context, uc *model.UserContext) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contexts[uc.UserID] = *uc
	return nil
}
