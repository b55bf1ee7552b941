// Package bot wires the Telegram transport to the services: commands,
// intent-routed text, file uploads and quiz callbacks.
package bot

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"anuj-bot/internal/config"
	"anuj-bot/internal/llm"
	"anuj-bot/internal/model"
	"anuj-bot/internal/quiz"
	"anuj-bot/internal/service"
	"anuj-bot/internal/storage"
)

// Callback data prefixes used by inline keyboards.
const (
	cbJoinPrefix   = "join_quiz_"
	cbAnswerPrefix = "answer_"
)

const tempDir = "files/temp"

// commandHandler is one entry of the command table.
type commandHandler func(ctx context.Context, msg *tgbotapi.Message) error

// sender is the slice of the Telegram client the reply paths go
// through. Tests substitute a recorder.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Bot aggregates the Telegram API with the services behind it.
type Bot struct {
	api        *tgbotapi.BotAPI
	sender     sender
	store      storage.Store
	contextSvc *service.ContextService
	fileSvc    *service.FileService
	quizGen    *service.QuizGenerator
	solver     *service.DoubtSolver
	sessions   *quiz.Sessions
	llm        llm.Client
	cfg        *config.Config
	log        *zap.Logger

	commands map[string]commandHandler
	intents  []intentRule
}

// New authorizes the bot and builds the command and intent tables.
// Sessions is attached afterwards through AttachSessions because the
// session manager needs the bot as its Notifier.
func New(cfg *config.Config, store storage.Store, contextSvc *service.ContextService,
	fileSvc *service.FileService, quizGen *service.QuizGenerator,
	solver *service.DoubtSolver, client llm.Client, log *zap.Logger) (*Bot, error) {

	api, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	log.Info("bot authorized", zap.String("username", api.Self.UserName))

	b := &Bot{
		api:        api,
		sender:     api,
		store:      store,
		contextSvc: contextSvc,
		fileSvc:    fileSvc,
		quizGen:    quizGen,
		solver:     solver,
		llm:        client,
		cfg:        cfg,
		log:        log,
	}

	b.register()
	return b, nil
}

// register is the single registration point for every command and
// intent the bot answers.
func (b *Bot) register() {
	b.commands = map[string]commandHandler{
		"start":       b.handleStart,
		"help":        b.handleHelp,
		"quiz":        b.handleQuiz,
		"notes":       b.handleNotes,
		"memory":      b.handleMemory,
		"files":       b.handleFiles,
		"delete":      b.handleDeleteFile,
		"groupquiz":   b.handleGroupQuiz,
		"leaderboard": b.handleLeaderboard,
	}
	b.intents = defaultIntentRules(b)
}

// AttachSessions hands the bot the quiz session manager. The manager
// is built after the bot because it notifies through it.
func (b *Bot) AttachSessions(sessions *quiz.Sessions) {
	b.sessions = sessions
}

// API exposes the underlying client for webhook management.
func (b *Bot) API() *tgbotapi.BotAPI {
	return b.api
}

// Start begins polling updates until ctx is cancelled. Not used in
// webhook mode.
func (b *Bot) Start(ctx context.Context) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := b.api.GetUpdatesChan(updateConfig)

	b.log.Info("start polling updates")

	go func() {
		<-ctx.Done()
		b.api.StopReceivingUpdates()
	}()

	for update := range updates {
		b.HandleUpdate(ctx, update)
	}
	return nil
}

const apologyReply = "❌ Kuch gadbad ho gayi. Thodi der baad try karo! 😥"

// HandleUpdate routes one update. The webhook server calls this
// directly; the polling loop feeds it from the updates channel. A
// failing or panicking handler answers with a static apology so the
// chat never goes silent.
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	var chatID int64
	if update.Message != nil && update.Message.Chat != nil {
		chatID = update.Message.Chat.ID
	}
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("handler panicked", zap.Int64("chat_id", chatID), zap.Any("panic", r))
			if chatID != 0 {
				_ = b.sendText(chatID, apologyReply)
			}
		}
	}()

	switch {
	case update.CallbackQuery != nil:
		if err := b.handleCallback(ctx, update.CallbackQuery); err != nil {
			b.log.Error("handle callback failed", zap.Error(err))
		}
	case update.Message != nil:
		if err := b.handleMessage(ctx, update.Message); err != nil {
			b.log.Error("handle message failed", zap.Int64("chat_id", chatID), zap.Error(err))
			_ = b.sendText(chatID, apologyReply)
		}
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	if msg.From == nil || msg.Chat == nil {
		return nil
	}

	if len(msg.NewChatMembers) > 0 {
		return b.handleGroupJoin(ctx, msg)
	}

	if msg.Chat.IsGroup() || msg.Chat.IsSuperGroup() {
		if err := b.recordGroup(ctx, msg); err != nil {
			b.log.Warn("record group failed", zap.Int64("chat_id", msg.Chat.ID), zap.Error(err))
		}
	}

	if msg.IsCommand() {
		b.log.Info("command received",
			zap.Int64("user_id", msg.From.ID),
			zap.String("command", msg.Command()))
		handler, ok := b.commands[msg.Command()]
		if !ok {
			return b.sendText(msg.Chat.ID, "Yeh command nahi samjha. /help dekho! 😊")
		}
		return handler(ctx, msg)
	}

	switch {
	case msg.Document != nil:
		return b.handleDocument(ctx, msg)
	case len(msg.Photo) > 0:
		return b.handlePhoto(ctx, msg)
	case msg.Text != "":
		return b.handleText(ctx, msg)
	}
	return nil
}

// handleText runs the ordered intent rules; the first match wins.
func (b *Bot) handleText(ctx context.Context, msg *tgbotapi.Message) error {
	userID, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	if err := b.contextSvc.Record(ctx, userID, msg.Text, model.SenderUser); err != nil {
		b.log.Warn("record inbound failed", zap.Uint("user_id", userID), zap.Error(err))
	}

	lower := strings.ToLower(msg.Text)
	for _, rule := range b.intents {
		if rule.match(lower) {
			b.log.Info("intent matched",
				zap.String("intent", rule.name),
				zap.Int64("user_id", msg.From.ID))
			return rule.handle(ctx, msg, userID)
		}
	}
	return nil
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) error {
	data := cb.Data
	switch {
	case strings.HasPrefix(data, cbJoinPrefix):
		return b.handleJoinCallback(ctx, cb)
	case strings.HasPrefix(data, cbAnswerPrefix):
		return b.handleAnswerCallback(ctx, cb)
	}
	return b.ackCallback(cb.ID, "")
}

func (b *Bot) ackCallback(id, text string) error {
	callback := tgbotapi.NewCallback(id, text)
	if _, err := b.sender.Request(callback); err != nil {
		return fmt.Errorf("answer callback: %w", err)
	}
	return nil
}

func (b *Bot) alertCallback(id, text string) error {
	callback := tgbotapi.NewCallbackWithAlert(id, text)
	if _, err := b.sender.Request(callback); err != nil {
		return fmt.Errorf("answer callback: %w", err)
	}
	return nil
}

func (b *Bot) ensureUser(ctx context.Context, from *tgbotapi.User) (uint, error) {
	user, err := b.store.UpsertUser(ctx, storage.UserInfo{
		TelegramID:   from.ID,
		FirstName:    from.FirstName,
		LastName:     from.LastName,
		Username:     from.UserName,
		LanguageCode: from.LanguageCode,
	})
	if err != nil {
		return 0, fmt.Errorf("upsert user: %w", err)
	}
	return user.ID, nil
}

// reply sends a message and records it as the bot's side of the
// conversation.
func (b *Bot) reply(ctx context.Context, chatID int64, userID uint, text string) error {
	if err := b.sendText(chatID, text); err != nil {
		return err
	}
	if err := b.contextSvc.Record(ctx, userID, text, model.SenderBot); err != nil {
		b.log.Warn("record outbound failed", zap.Uint("user_id", userID), zap.Error(err))
	}
	return nil
}

func (b *Bot) sendText(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if _, err := b.sender.Send(msg); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// downloadTelegramFile pulls a file from Telegram into the temp dir
// and returns the local path.
func (b *Bot) downloadTelegramFile(ctx context.Context, fileID, name string) (string, int64, error) {
	file, err := b.api.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		return "", 0, fmt.Errorf("get file: %w", err)
	}
	url := file.Link(b.api.Token)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", 0, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", 0, fmt.Errorf("download file: status %d", resp.StatusCode)
	}

	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		return "", 0, err
	}
	path := filepath.Join(tempDir, fmt.Sprintf("%d_%s", time.Now().UnixNano(), name))
	dst, err := os.Create(path)
	if err != nil {
		return "", 0, err
	}
	written, err := io.Copy(dst, resp.Body)
	closeErr := dst.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(path)
		return "", 0, err
	}
	return path, written, nil
}
