// Package mongo implements storage.Store on MongoDB. Documents keep
// the same numeric IDs as the SQLite backend so the rest of the bot
// does not care which backend is configured; a counters collection
// hands out the sequence values.
package mongo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"anuj-bot/internal/model"
	"anuj-bot/internal/storage"
)

type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

var _ storage.Store = (*Store)(nil)

const (
	colUsers        = "users"
	colMessages     = "messages"
	colFiles        = "files"
	colQuizzes      = "quizzes"
	colAttempts     = "quiz_attempts"
	colContexts     = "user_contexts"
	colGroups       = "groups"
	colGroupMembers = "group_members"
	colCounters     = "counters"
)

// Open connects to MongoDB, verifies the connection and ensures the
// indexes the queries rely on.
func Open(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	s := &Store{client: client, db: client.Database(database)}
	if err := s.ensureIndexes(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	unique := options.Index().SetUnique(true)
	specs := []struct {
		col   string
		model mongo.IndexModel
	}{
		{colUsers, mongo.IndexModel{Keys: bson.D{{Key: "telegram_id", Value: 1}}, Options: unique}},
		{colMessages, mongo.IndexModel{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "id", Value: -1}}}},
		{colFiles, mongo.IndexModel{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "is_active", Value: 1}}}},
		{colAttempts, mongo.IndexModel{Keys: bson.D{{Key: "group_id", Value: 1}}}},
		{colGroups, mongo.IndexModel{Keys: bson.D{{Key: "telegram_id", Value: 1}}, Options: unique}},
		{colGroupMembers, mongo.IndexModel{Keys: bson.D{{Key: "group_id", Value: 1}, {Key: "user_id", Value: 1}}, Options: unique}},
	}
	for _, spec := range specs {
		if _, err := s.db.Collection(spec.col).Indexes().CreateOne(ctx, spec.model); err != nil {
			return fmt.Errorf("create index on %s: %w", spec.col, err)
		}
	}
	return nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// nextID returns the next value of the named sequence. Sequences are
// stored in the counters collection and bumped atomically.
func (s *Store) nextID(ctx context.Context, seq string) (uint, error) {
	var doc struct {
		Value uint `bson:"value"`
	}
	err := s.db.Collection(colCounters).FindOneAndUpdate(ctx,
		bson.M{"_id": seq},
		bson.M{"$inc": bson.M{"value": 1}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		return 0, fmt.Errorf("next id for %s: %w", seq, err)
	}
	return doc.Value, nil
}

type userDoc struct {
	ID            uint      `bson:"id"`
	TelegramID    int64     `bson:"telegram_id"`
	FirstName     string    `bson:"first_name"`
	LastName      string    `bson:"last_name"`
	Username      string    `bson:"username"`
	LanguageCode  string    `bson:"language_code"`
	TotalMessages int64     `bson:"total_messages"`
	Status        string    `bson:"status"`
	LastActive    time.Time `bson:"last_active"`
	CreatedAt     time.Time `bson:"created_at"`
	UpdatedAt     time.Time `bson:"updated_at"`
}

func (d userDoc) toModel() *model.User {
	return &model.User{
		ID:            d.ID,
		TelegramID:    d.TelegramID,
		FirstName:     d.FirstName,
		LastName:      d.LastName,
		Username:      d.Username,
		LanguageCode:  d.LanguageCode,
		TotalMessages: d.TotalMessages,
		Status:        d.Status,
		LastActive:    d.LastActive,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
}

func (s *Store) UpsertUser(ctx context.Context, info storage.UserInfo) (*model.User, error) {
	col := s.db.Collection(colUsers)
	now := time.Now()

	var existing userDoc
	err := col.FindOne(ctx, bson.M{"telegram_id": info.TelegramID}).Decode(&existing)
	switch {
	case err == nil:
		update := bson.M{"$set": bson.M{
			"first_name":    info.FirstName,
			"last_name":     info.LastName,
			"username":      info.Username,
			"language_code": info.LanguageCode,
			"last_active":   now,
			"updated_at":    now,
		}}
		if _, err := col.UpdateOne(ctx, bson.M{"telegram_id": info.TelegramID}, update); err != nil {
			return nil, fmt.Errorf("update user: %w", err)
		}
		if err := col.FindOne(ctx, bson.M{"telegram_id": info.TelegramID}).Decode(&existing); err != nil {
			return nil, fmt.Errorf("reload user: %w", err)
		}
		return existing.toModel(), nil
	case errors.Is(err, mongo.ErrNoDocuments):
		id, err := s.nextID(ctx, colUsers)
		if err != nil {
			return nil, err
		}
		doc := userDoc{
			ID:           id,
			TelegramID:   info.TelegramID,
			FirstName:    info.FirstName,
			LastName:     info.LastName,
			Username:     info.Username,
			LanguageCode: info.LanguageCode,
			Status:       "active",
			LastActive:   now,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if _, err := col.InsertOne(ctx, doc); err != nil {
			return nil, fmt.Errorf("create user: %w", err)
		}
		return doc.toModel(), nil
	default:
		return nil, fmt.Errorf("find user: %w", err)
	}
}

func (s *Store) FindUserByTelegramID(ctx context.Context, telegramID int64) (*model.User, error) {
	var doc userDoc
	err := s.db.Collection(colUsers).FindOne(ctx, bson.M{"telegram_id": telegramID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc.toModel(), nil
}

func (s *Store) ListUsers(ctx context.Context) ([]model.User, error) {
	cur, err := s.db.Collection(colUsers).Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var users []model.User
	for cur.Next(ctx) {
		var doc userDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		users = append(users, *doc.toModel())
	}
	return users, cur.Err()
}

type messageDoc struct {
	ID        uint      `bson:"id"`
	UserID    uint      `bson:"user_id"`
	Text      string    `bson:"text"`
	Sender    string    `bson:"sender"`
	Type      string    `bson:"type"`
	CreatedAt time.Time `bson:"created_at"`
}

func (s *Store) AddMessage(ctx context.Context, userID uint, text, sender, msgType string) error {
	if msgType == "" {
		msgType = "text"
	}
	id, err := s.nextID(ctx, colMessages)
	if err != nil {
		return err
	}
	doc := messageDoc{ID: id, UserID: userID, Text: text, Sender: sender, Type: msgType, CreatedAt: time.Now()}
	if _, err := s.db.Collection(colMessages).InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("create message: %w", err)
	}
	if sender == model.SenderUser {
		_, err := s.db.Collection(colUsers).UpdateOne(ctx,
			bson.M{"id": userID},
			bson.M{"$inc": bson.M{"total_messages": 1}},
		)
		if err != nil {
			return fmt.Errorf("bump message counter: %w", err)
		}
	}
	return nil
}

func (s *Store) RecentHistory(ctx context.Context, userID uint, limit int) ([]model.Message, error) {
	opts := options.Find().SetSort(bson.D{{Key: "id", Value: -1}}).SetLimit(int64(limit))
	cur, err := s.db.Collection(colMessages).Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var msgs []model.Message
	for cur.Next(ctx) {
		var doc messageDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		msgs = append(msgs, model.Message{
			ID:        doc.ID,
			UserID:    doc.UserID,
			Text:      doc.Text,
			Sender:    doc.Sender,
			Type:      doc.Type,
			CreatedAt: doc.CreatedAt,
		})
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (s *Store) DeleteMessagesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.Collection(colMessages).DeleteMany(ctx, bson.M{"created_at": bson.M{"$lt": cutoff}})
	if err != nil {
		return 0, fmt.Errorf("delete messages: %w", err)
	}
	return res.DeletedCount, nil
}

type fileDoc struct {
	ID          uint      `bson:"id"`
	UserID      uint      `bson:"user_id"`
	Filename    string    `bson:"filename"`
	Path        string    `bson:"path"`
	Type        string    `bson:"type"`
	Size        int64     `bson:"size"`
	Description string    `bson:"description"`
	Tags        []string  `bson:"tags"`
	IsActive    bool      `bson:"is_active"`
	CreatedAt   time.Time `bson:"created_at"`
}

func (d fileDoc) toModel() model.File {
	tags := "[]"
	if len(d.Tags) > 0 {
		// Tags round-trip through the model's JSON column format.
		encoded, err := json.Marshal(d.Tags)
		if err == nil {
			tags = string(encoded)
		}
	}
	return model.File{
		ID:          d.ID,
		UserID:      d.UserID,
		Filename:    d.Filename,
		Path:        d.Path,
		Type:        d.Type,
		Size:        d.Size,
		Description: d.Description,
		Tags:        tags,
		IsActive:    d.IsActive,
		CreatedAt:   d.CreatedAt,
	}
}

func (s *Store) AddFile(ctx context.Context, rec storage.FileRecord) (*model.File, error) {
	id, err := s.nextID(ctx, colFiles)
	if err != nil {
		return nil, err
	}
	doc := fileDoc{
		ID:          id,
		UserID:      rec.UserID,
		Filename:    rec.Filename,
		Path:        rec.Path,
		Type:        rec.Type,
		Size:        rec.Size,
		Description: rec.Description,
		Tags:        rec.Tags,
		IsActive:    true,
		CreatedAt:   time.Now(),
	}
	if _, err := s.db.Collection(colFiles).InsertOne(ctx, doc); err != nil {
		return nil, fmt.Errorf("create file record: %w", err)
	}
	file := doc.toModel()
	return &file, nil
}

func (s *Store) ListFiles(ctx context.Context, userID uint, fileType string, limit int) ([]model.File, error) {
	filter := bson.M{"user_id": userID, "is_active": true}
	if fileType != "" {
		filter["type"] = fileType
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}).SetLimit(int64(limit))
	cur, err := s.db.Collection(colFiles).Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var files []model.File
	for cur.Next(ctx) {
		var doc fileDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		files = append(files, doc.toModel())
	}
	return files, cur.Err()
}

func (s *Store) SearchFiles(ctx context.Context, userID uint, query string, limit int) ([]model.File, error) {
	pattern := primitive.Regex{Pattern: regexp.QuoteMeta(query), Options: "i"}
	filter := bson.M{
		"user_id":   userID,
		"is_active": true,
		"$or": bson.A{
			bson.M{"filename": pattern},
			bson.M{"description": pattern},
			bson.M{"tags": pattern},
		},
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}).SetLimit(int64(limit))
	cur, err := s.db.Collection(colFiles).Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var files []model.File
	for cur.Next(ctx) {
		var doc fileDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		files = append(files, doc.toModel())
	}
	return files, cur.Err()
}

func (s *Store) SoftDeleteFile(ctx context.Context, userID, fileID uint) error {
	res, err := s.db.Collection(colFiles).UpdateOne(ctx,
		bson.M{"id": fileID, "user_id": userID},
		bson.M{"$set": bson.M{"is_active": false}},
	)
	if err != nil {
		return fmt.Errorf("soft delete file: %w", err)
	}
	if res.MatchedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}

type quizDoc struct {
	ID             uint      `bson:"id"`
	UserID         uint      `bson:"user_id"`
	Title          string    `bson:"title"`
	Questions      string    `bson:"questions"`
	TotalQuestions int       `bson:"total_questions"`
	SourceFile     string    `bson:"source_file"`
	Difficulty     string    `bson:"difficulty"`
	Subject        string    `bson:"subject"`
	CreatedAt      time.Time `bson:"created_at"`
}

func (d quizDoc) toModel() model.Quiz {
	return model.Quiz{
		ID:             d.ID,
		UserID:         d.UserID,
		Title:          d.Title,
		Questions:      d.Questions,
		TotalQuestions: d.TotalQuestions,
		SourceFile:     d.SourceFile,
		Difficulty:     d.Difficulty,
		Subject:        d.Subject,
		CreatedAt:      d.CreatedAt,
	}
}

func (s *Store) SaveQuiz(ctx context.Context, quiz *model.Quiz) error {
	id, err := s.nextID(ctx, colQuizzes)
	if err != nil {
		return err
	}
	quiz.ID = id
	if quiz.CreatedAt.IsZero() {
		quiz.CreatedAt = time.Now()
	}
	doc := quizDoc{
		ID:             quiz.ID,
		UserID:         quiz.UserID,
		Title:          quiz.Title,
		Questions:      quiz.Questions,
		TotalQuestions: quiz.TotalQuestions,
		SourceFile:     quiz.SourceFile,
		Difficulty:     quiz.Difficulty,
		Subject:        quiz.Subject,
		CreatedAt:      quiz.CreatedAt,
	}
	if _, err := s.db.Collection(colQuizzes).InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("create quiz: %w", err)
	}
	return nil
}

func (s *Store) GetQuiz(ctx context.Context, quizID uint) (*model.Quiz, error) {
	var doc quizDoc
	err := s.db.Collection(colQuizzes).FindOne(ctx, bson.M{"id": quizID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	quiz := doc.toModel()
	return &quiz, nil
}

func (s *Store) ListQuizzes(ctx context.Context, userID uint, limit int) ([]model.Quiz, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}).SetLimit(int64(limit))
	cur, err := s.db.Collection(colQuizzes).Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var quizzes []model.Quiz
	for cur.Next(ctx) {
		var doc quizDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		quizzes = append(quizzes, doc.toModel())
	}
	return quizzes, cur.Err()
}

type attemptDoc struct {
	ID             uint      `bson:"id"`
	QuizID         uint      `bson:"quiz_id"`
	UserID         uint      `bson:"user_id"`
	GroupID        int64     `bson:"group_id"`
	Score          int       `bson:"score"`
	TotalQuestions int       `bson:"total_questions"`
	Percentage     float64   `bson:"percentage"`
	TimeTaken      int       `bson:"time_taken"`
	CreatedAt      time.Time `bson:"created_at"`
}

func (s *Store) SaveAttempts(ctx context.Context, attempts []model.QuizAttempt) error {
	if len(attempts) == 0 {
		return nil
	}
	docs := make([]interface{}, 0, len(attempts))
	for _, a := range attempts {
		id, err := s.nextID(ctx, colAttempts)
		if err != nil {
			return err
		}
		createdAt := a.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now()
		}
		docs = append(docs, attemptDoc{
			ID:             id,
			QuizID:         a.QuizID,
			UserID:         a.UserID,
			GroupID:        a.GroupID,
			Score:          a.Score,
			TotalQuestions: a.TotalQuestions,
			Percentage:     a.Percentage,
			TimeTaken:      a.TimeTaken,
			CreatedAt:      createdAt,
		})
	}
	if _, err := s.db.Collection(colAttempts).InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("create quiz attempts: %w", err)
	}
	return nil
}

func (s *Store) Leaderboard(ctx context.Context, groupID int64, limit int) ([]storage.LeaderboardEntry, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"group_id": groupID}}},
		{{Key: "$group", Value: bson.M{
			"_id":         "$user_id",
			"avg_percent": bson.M{"$avg": "$percentage"},
			"quiz_count":  bson.M{"$sum": 1},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "avg_percent", Value: -1}, {Key: "quiz_count", Value: -1}}}},
		{{Key: "$limit", Value: limit}},
		{{Key: "$lookup", Value: bson.M{
			"from":         colUsers,
			"localField":   "_id",
			"foreignField": "id",
			"as":           "user",
		}}},
		{{Key: "$unwind", Value: "$user"}},
	}
	cur, err := s.db.Collection(colAttempts).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("leaderboard query: %w", err)
	}
	defer cur.Close(ctx)

	var entries []storage.LeaderboardEntry
	for cur.Next(ctx) {
		var row struct {
			AvgPercent float64 `bson:"avg_percent"`
			QuizCount  int     `bson:"quiz_count"`
			User       struct {
				FirstName string `bson:"first_name"`
			} `bson:"user"`
		}
		if err := cur.Decode(&row); err != nil {
			return nil, err
		}
		entries = append(entries, storage.LeaderboardEntry{
			FirstName:  row.User.FirstName,
			AvgPercent: row.AvgPercent,
			QuizCount:  row.QuizCount,
		})
	}
	return entries, cur.Err()
}

func (s *Store) UpsertGroup(ctx context.Context, telegramID int64, title, groupType string, adminUserID int64) error {
	now := time.Now()
	update := bson.M{
		"$set": bson.M{
			"title":     title,
			"type":      groupType,
			"is_active": true,
		},
		"$setOnInsert": bson.M{
			"telegram_id":   telegramID,
			"admin_user_id": adminUserID,
			"created_at":    now,
		},
	}
	_, err := s.db.Collection(colGroups).UpdateOne(ctx,
		bson.M{"telegram_id": telegramID}, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("upsert group: %w", err)
	}
	return nil
}

func (s *Store) UpsertGroupMember(ctx context.Context, groupID int64, userID uint, role string) error {
	if role == "" {
		role = "member"
	}
	update := bson.M{
		"$set": bson.M{
			"is_active": true,
			"joined_at": time.Now(),
		},
		"$setOnInsert": bson.M{
			"group_id": groupID,
			"user_id":  userID,
			"role":     role,
		},
	}
	_, err := s.db.Collection(colGroupMembers).UpdateOne(ctx,
		bson.M{"group_id": groupID, "user_id": userID}, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("upsert group member: %w", err)
	}
	return nil
}

type contextDoc struct {
	UserID       uint      `bson:"user_id"`
	CurrentTopic string    `bson:"current_topic"`
	ContextData  string    `bson:"context_data"`
	LastQuery    string    `bson:"last_query"`
	QueryCount   int64     `bson:"query_count"`
	UpdatedAt    time.Time `bson:"updated_at"`
}

func (s *Store) GetUserContext(ctx context.Context, userID uint) (*model.UserContext, error) {
	var doc contextDoc
	err := s.db.Collection(colContexts).FindOne(ctx, bson.M{"user_id": userID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &model.UserContext{
		UserID:       doc.UserID,
		CurrentTopic: doc.CurrentTopic,
		ContextData:  doc.ContextData,
		LastQuery:    doc.LastQuery,
		QueryCount:   doc.QueryCount,
		UpdatedAt:    doc.UpdatedAt,
	}, nil
}

func (s *Store) SetUserContext(ctx context.Context, uc *model.UserContext) error {
	doc := contextDoc{
		UserID:       uc.UserID,
		CurrentTopic: uc.CurrentTopic,
		ContextData:  uc.ContextData,
		LastQuery:    uc.LastQuery,
		QueryCount:   uc.QueryCount,
		UpdatedAt:    time.Now(),
	}
	_, err := s.db.Collection(colContexts).UpdateOne(ctx,
		bson.M{"user_id": uc.UserID},
		bson.M{"$set": doc},
		options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("save user context: %w", err)
	}
	return nil
}
