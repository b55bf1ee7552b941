package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"os"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"anuj-bot/internal/model"
	"anuj-bot/internal/quiz"
	"anuj-bot/internal/service"
	"anuj-bot/internal/storage"
)

func (b *Bot) handleStart(ctx context.Context, msg *tgbotapi.Message) error {
	if _, err := b.ensureUser(ctx, msg.From); err != nil {
		return err
	}
	text := fmt.Sprintf(
		"🤖 <b>Namaste %s! Main Anuj hun, aapka Personal Assistant!</b>\n\n"+
			"🌟 <b>Main kya kar sakta hun:</b>\n"+
			"• 📚 Notes aur files manage kar sakta hun\n"+
			"• 🧠 Quiz generate kar sakta hun PDF se\n"+
			"• 🖼️ Images me doubts solve kar sakta hun\n"+
			"• 💭 Context samajh kar help kar sakta hun\n"+
			"• 📝 Har user ka individual memory rakhta hun\n\n"+
			"<b>Commands:</b>\n"+
			"/start - Bot start karne ke liye\n"+
			"/help - Help menu\n"+
			"/quiz - Quiz generate karne ke liye\n"+
			"/notes - Notes search karne ke liye\n"+
			"/memory - Apna chat history dekhne ke liye\n\n"+
			"<b>Bas file bhejo ya question pucho, main samajh jaunga! 😊</b>",
		html.EscapeString(msg.From.FirstName),
	)
	return b.sendText(msg.Chat.ID, text)
}

func (b *Bot) handleHelp(ctx context.Context, msg *tgbotapi.Message) error {
	userID, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	text := "🤖 <b>Anuj Bot Help Menu</b>\n\n" +
		"<b>📚 File Management:</b>\n" +
		"• PDF bhejo → Quiz banaunga\n" +
		"• Images bhejo → Doubts solve karunga\n" +
		"• \"send me notes\" bolo → Files forward karunga\n\n" +
		"<b>🧠 Quiz Features:</b>\n" +
		"• PDF upload karo → Auto quiz generate hoga\n" +
		"• Group me add karo → Quiz conduct karunga\n" +
		"• /groupquiz — group me quiz start karne ke liye\n" +
		"• /leaderboard — group ranking dekhne ke liye\n\n" +
		"<b>🖼️ Image Doubt Solving:</b>\n" +
		"• Math problems ki images bhejo\n" +
		"• Solution image pe likh ke dunga\n\n" +
		"<b>Special:</b>\n" +
		"• \"Thanks\" bolo to get a surprise!\n" +
		"• \"Best wishes\" bolo to get motivation!\n\n" +
		"<b>Don't suffer in silence, ask Anuj! 😊</b>"
	if err := b.contextSvc.Record(ctx, userID, "/help", model.SenderUser); err != nil {
		b.log.Warn("record command failed", zap.Uint("user_id", userID), zap.Error(err))
	}
	return b.reply(ctx, msg.Chat.ID, userID, text)
}

// handleQuiz lists the user's recent quizzes or explains how to get
// one generated.
func (b *Bot) handleQuiz(ctx context.Context, msg *tgbotapi.Message) error {
	userID, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	quizzes, err := b.store.ListQuizzes(ctx, userID, 5)
	if err != nil {
		return err
	}
	if len(quizzes) == 0 {
		return b.sendText(msg.Chat.ID,
			"🧠 <b>Quiz chahiye?</b>\n\nKoi PDF bhejo, main usse quiz bana dunga! 📚")
	}
	var sb strings.Builder
	sb.WriteString("🧠 <b>Aapke recent quizzes:</b>\n\n")
	for i, q := range quizzes {
		fmt.Fprintf(&sb, "%d. %s (%d questions)\n", i+1, html.EscapeString(q.Title), q.TotalQuestions)
	}
	sb.WriteString("\nNaya quiz chahiye? PDF bhejo! 📚")
	return b.sendText(msg.Chat.ID, sb.String())
}

func (b *Bot) handleNotes(ctx context.Context, msg *tgbotapi.Message) error {
	userID, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	return b.sendRelevantFiles(ctx, msg.Chat.ID, userID, msg.CommandArguments())
}

func (b *Bot) handleMemory(ctx context.Context, msg *tgbotapi.Message) error {
	userID, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	msgs, err := b.store.RecentHistory(ctx, userID, 10)
	if err != nil {
		return err
	}
	if len(msgs) == 0 {
		return b.sendText(msg.Chat.ID,
			"🧠 <b>Memory khali hai!</b>\n\nAbhi tak koi conversation nahi hui! 😊")
	}
	var sb strings.Builder
	sb.WriteString("🧠 <b>Aapka Chat Memory:</b>\n\n")
	for _, m := range msgs {
		sender := "You"
		if m.Sender == model.SenderBot {
			sender = "🤖 Anuj"
		}
		fmt.Fprintf(&sb, "<b>%s:</b> %s\n", sender, html.EscapeString(truncateRunes(m.Text, 100)))
	}
	return b.sendText(msg.Chat.ID, sb.String())
}

func (b *Bot) handleFiles(ctx context.Context, msg *tgbotapi.Message) error {
	userID, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	files, err := b.fileSvc.List(ctx, userID, strings.TrimSpace(msg.CommandArguments()), 20)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return b.sendText(msg.Chat.ID,
			"📁 <b>Koi files nahi mili!</b>\n\nPehle kuch PDF ya notes upload karo! 😊")
	}
	var sb strings.Builder
	sb.WriteString("📚 <b>Aapki files:</b>\n\n")
	for _, f := range files {
		fmt.Fprintf(&sb, "#%d [%s] %s\n", f.ID, f.Type, html.EscapeString(f.Filename))
	}
	if counts, totalBytes, err := b.fileSvc.Stats(ctx, userID); err == nil {
		total := 0
		for _, n := range counts {
			total += n
		}
		fmt.Fprintf(&sb, "\n📊 Total: %d files, %.1f MB\n", total, float64(totalBytes)/(1<<20))
	}
	sb.WriteString("\nDelete karne ke liye: /delete <i>id</i>")
	return b.sendText(msg.Chat.ID, sb.String())
}

func (b *Bot) handleDeleteFile(ctx context.Context, msg *tgbotapi.Message) error {
	userID, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	arg := strings.TrimSpace(msg.CommandArguments())
	id, err := strconv.ParseUint(arg, 10, 32)
	if err != nil {
		return b.sendText(msg.Chat.ID, "File ID batao, jaise: /delete 3")
	}
	switch err := b.fileSvc.Delete(ctx, userID, uint(id)); {
	case errors.Is(err, storage.ErrNotFound):
		return b.sendText(msg.Chat.ID, "❌ Yeh file nahi mili. /files se list dekho.")
	case err != nil:
		return err
	}
	return b.sendText(msg.Chat.ID, "🗑️ File delete ho gayi!")
}

// handleGroupQuiz starts a group quiz from the starter's most recent
// quiz. In private chats it just explains the feature.
func (b *Bot) handleGroupQuiz(ctx context.Context, msg *tgbotapi.Message) error {
	userID, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	if !msg.Chat.IsGroup() && !msg.Chat.IsSuperGroup() {
		return b.sendText(msg.Chat.ID,
			"🧠 <b>Group Quiz!</b>\n\n"+
				"👥 Mujhe group me add karo aur wahan /groupquiz bolo.\n"+
				"🏆 Leaderboard dekhne ke liye /leaderboard bolo.\n"+
				"<b>Ready to challenge your friends?</b> 😊")
	}

	quizzes, err := b.store.ListQuizzes(ctx, userID, 1)
	if err != nil {
		return err
	}
	if len(quizzes) == 0 {
		return b.sendText(msg.Chat.ID,
			"❌ Pehle private chat me ek PDF bhej ke quiz banao, phir yahan /groupquiz bolo!")
	}

	switch err := b.sessions.Start(msg.Chat.ID, &quizzes[0]); {
	case errors.Is(err, quiz.ErrSessionActive):
		return b.sendText(msg.Chat.ID, "⚠️ Ek quiz already chal raha hai is group me!")
	case errors.Is(err, quiz.ErrNoQuestions):
		return b.sendText(msg.Chat.ID, "❌ Is quiz me questions nahi hain. Naya quiz banao!")
	case err != nil:
		return err
	}
	return nil
}

func (b *Bot) handleLeaderboard(ctx context.Context, msg *tgbotapi.Message) error {
	if !msg.Chat.IsGroup() && !msg.Chat.IsSuperGroup() {
		return b.sendText(msg.Chat.ID, "🏆 Leaderboard group me dekho! Group me /leaderboard bolo.")
	}
	entries, err := b.store.Leaderboard(ctx, msg.Chat.ID, 10)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return b.sendText(msg.Chat.ID,
			"🏆 <b>Leaderboard!</b>\n\nAbhi tak koi scores nahi hain. Group quiz khelo aur top par aao!\n<b>All the best!</b> 😊")
	}
	var sb strings.Builder
	sb.WriteString("🏆 <b>Group Leaderboard:</b>\n\n")
	medals := []string{"🥇", "🥈", "🥉"}
	for i, e := range entries {
		medal := fmt.Sprintf("%d.", i+1)
		if i < len(medals) {
			medal = medals[i]
		}
		fmt.Fprintf(&sb, "%s %s — %.0f%% avg (%d quizzes)\n",
			medal, html.EscapeString(e.FirstName), e.AvgPercent, e.QuizCount)
	}
	return b.sendText(msg.Chat.ID, sb.String())
}

// handleDocument stores the upload; PDFs additionally get a quiz
// generated and previewed.
func (b *Bot) handleDocument(ctx context.Context, msg *tgbotapi.Message) error {
	userID, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	doc := msg.Document

	if int64(doc.FileSize) > b.cfg.MaxFileSizeBytes() {
		return b.sendText(msg.Chat.ID,
			fmt.Sprintf("❌ File bahut badi hai! Max %d MB tak bhejo.", b.cfg.MaxFileSizeMB))
	}

	tempPath, _, err := b.downloadTelegramFile(ctx, doc.FileID, doc.FileName)
	if err != nil {
		b.log.Error("document download failed", zap.Int64("user_id", msg.From.ID), zap.Error(err))
		return b.sendText(msg.Chat.ID, "❌ File process karne me error aayi. Try again!")
	}
	defer os.Remove(tempPath)

	src, err := os.Open(tempPath)
	if err != nil {
		return err
	}
	record, err := b.fileSvc.Save(ctx, userID, doc.FileName, int64(doc.FileSize), src, msg.Caption)
	src.Close()
	switch {
	case errors.Is(err, service.ErrFileTooLarge):
		return b.sendText(msg.Chat.ID,
			fmt.Sprintf("❌ File bahut badi hai! Max %d MB tak bhejo.", b.cfg.MaxFileSizeMB))
	case err != nil:
		return err
	}

	if record.Type != model.FileTypePDF {
		return b.sendText(msg.Chat.ID,
			fmt.Sprintf("📁 <b>File saved!</b> (%s)\n\n\"send me notes\" bolo toh forward kar dunga! 😊", record.Type))
	}

	if err := b.sendText(msg.Chat.ID, "📚 <b>PDF received!</b> Quiz generate kar raha hun... ⏳"); err != nil {
		return err
	}

	generated, err := b.quizGen.GenerateFromPDF(ctx, userID, record.Path, doc.FileName, b.cfg.MaxQuizQuestions)
	switch {
	case errors.Is(err, service.ErrNotEnoughText):
		return b.sendText(msg.Chat.ID, "❌ PDF me readable text nahi mila. Koi aur file try karo!")
	case errors.Is(err, service.ErrNoQuestions):
		return b.sendText(msg.Chat.ID, "❌ PDF se quiz generate nahi kar paya. Koi aur file try karo!")
	case err != nil:
		b.log.Error("quiz generation failed", zap.Uint("user_id", userID), zap.Error(err))
		return b.sendText(msg.Chat.ID, "❌ PDF se quiz generate nahi kar paya. Koi aur file try karo!")
	}
	return b.sendQuizPreview(msg.Chat.ID, generated)
}

// sendQuizPreview prints the first questions with answers, for the
// uploader's own review.
func (b *Bot) sendQuizPreview(chatID int64, generated *model.Quiz) error {
	questions, err := generated.DecodeQuestions()
	if err != nil {
		return err
	}
	var sb strings.Builder
	sb.WriteString("🧠 <b>Quiz Generated!</b>\n\n")
	limit := len(questions)
	if limit > 5 {
		limit = 5
	}
	for i := 0; i < limit; i++ {
		q := questions[i]
		fmt.Fprintf(&sb, "<b>Q%d.</b> %s\n", i+1, html.EscapeString(q.Prompt))
		for j, opt := range q.Options {
			fmt.Fprintf(&sb, "%s. %s\n", model.AnswerLetters[j], html.EscapeString(opt))
		}
		fmt.Fprintf(&sb, "<b>Answer:</b> %s\n\n", q.Answer)
	}
	if len(questions) > limit {
		fmt.Fprintf(&sb, "...aur %d questions!\n", len(questions)-limit)
	}
	sb.WriteString("Group me khelne ke liye /groupquiz bolo! 🏆")
	return b.sendText(chatID, sb.String())
}

// handlePhoto runs the doubt solver on the largest photo size.
func (b *Bot) handlePhoto(ctx context.Context, msg *tgbotapi.Message) error {
	userID, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	photo := msg.Photo[len(msg.Photo)-1]

	tempPath, size, err := b.downloadTelegramFile(ctx, photo.FileID, "doubt.jpg")
	if err != nil {
		b.log.Error("photo download failed", zap.Int64("user_id", msg.From.ID), zap.Error(err))
		return b.sendText(msg.Chat.ID, "❌ Image process karne me error aayi. Try again!")
	}
	defer os.Remove(tempPath)

	src, err := os.Open(tempPath)
	if err != nil {
		return err
	}
	if _, err := b.fileSvc.Save(ctx, userID, "doubt.jpg", size, src, "doubt image"); err != nil {
		b.log.Warn("store doubt image failed", zap.Uint("user_id", userID), zap.Error(err))
	}
	src.Close()

	if err := b.sendText(msg.Chat.ID, "🖼️ <b>Image received!</b> Doubt solve kar raha hun... ✏️"); err != nil {
		return err
	}

	solution, annotated, err := b.solver.Solve(ctx, tempPath)
	switch {
	case errors.Is(err, service.ErrNoTextInImage):
		return b.sendText(msg.Chat.ID, "❌ Image me doubt solve nahi kar paya. Clear image bhejo!")
	case err != nil:
		b.log.Error("doubt solving failed", zap.Uint("user_id", userID), zap.Error(err))
		return b.sendText(msg.Chat.ID, "❌ Image process karne me error aayi. Try again!")
	}

	if annotated != "" {
		defer os.Remove(annotated)
		reply := tgbotapi.NewPhoto(msg.Chat.ID, tgbotapi.FilePath(annotated))
		reply.Caption = "✅ <b>Doubt Solved!</b> 📝\n\nAisa lagta hai jaise copy pe kisi student ne solve kiya ho! 😊\n\n🤔 Aur doubts hai? Bhejo!"
		reply.ParseMode = tgbotapi.ModeHTML
		if _, err := b.sender.Send(reply); err != nil {
			return fmt.Errorf("send solved photo: %w", err)
		}
		return nil
	}
	return b.sendText(msg.Chat.ID, fmt.Sprintf("✅ <b>Doubt Solved!</b>\n\n%s", html.EscapeString(solution)))
}

// sendRelevantFiles answers a notes request: matching files first,
// recent uploads when nothing matches, then the documents themselves.
func (b *Bot) sendRelevantFiles(ctx context.Context, chatID int64, userID uint, query string) error {
	files, err := b.fileSvc.Search(ctx, userID, query, 3)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return b.reply(ctx, chatID, userID,
			"📁 <b>Koi files nahi mili!</b>\n\nPehle kuch PDF ya notes upload karo, phir main forward kar dunga! 😊")
	}

	var sb strings.Builder
	sb.WriteString("📚 <b>Yahan hai aapki files:</b>\n\n")
	for i, f := range files {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, html.EscapeString(f.Filename))
	}
	if err := b.reply(ctx, chatID, userID, sb.String()); err != nil {
		return err
	}

	for _, f := range files {
		if _, err := os.Stat(f.Path); err != nil {
			continue
		}
		doc := tgbotapi.NewDocument(chatID, tgbotapi.FilePath(f.Path))
		if _, err := b.sender.Send(doc); err != nil {
			b.log.Warn("forward file failed", zap.Uint("file_id", f.ID), zap.Error(err))
			if err := b.sendText(chatID, fmt.Sprintf("😥 File %s bhejne mein error aa gayi.", html.EscapeString(f.Filename))); err != nil {
				return err
			}
		}
	}
	return nil
}

// handleGroupJoin records the group and its new members when the bot
// or anyone else is added.
func (b *Bot) handleGroupJoin(ctx context.Context, msg *tgbotapi.Message) error {
	if err := b.store.UpsertGroup(ctx, msg.Chat.ID, msg.Chat.Title, msg.Chat.Type, msg.From.ID); err != nil {
		return err
	}
	for i := range msg.NewChatMembers {
		member := &msg.NewChatMembers[i]
		if member.ID == b.api.Self.ID {
			if err := b.sendText(msg.Chat.ID,
				"🤖 <b>Namaste! Main Anuj hun!</b>\n\n🧠 Quiz khelne ke liye /groupquiz bolo!\n🏆 Leaderboard ke liye /leaderboard bolo!"); err != nil {
				return err
			}
			continue
		}
		userID, err := b.ensureUser(ctx, member)
		if err != nil {
			b.log.Warn("record member failed", zap.Int64("member_id", member.ID), zap.Error(err))
			continue
		}
		if err := b.store.UpsertGroupMember(ctx, msg.Chat.ID, userID, "member"); err != nil {
			b.log.Warn("record membership failed", zap.Uint("user_id", userID), zap.Error(err))
		}
	}
	return nil
}

// recordGroup keeps group and membership rows fresh on every group
// message.
func (b *Bot) recordGroup(ctx context.Context, msg *tgbotapi.Message) error {
	if err := b.store.UpsertGroup(ctx, msg.Chat.ID, msg.Chat.Title, msg.Chat.Type, 0); err != nil {
		return err
	}
	userID, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	return b.store.UpsertGroupMember(ctx, msg.Chat.ID, userID, "member")
}

func (b *Bot) handleJoinCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) error {
	chatID, err := strconv.ParseInt(strings.TrimPrefix(cb.Data, cbJoinPrefix), 10, 64)
	if err != nil {
		return b.ackCallback(cb.ID, "")
	}
	userID, err := b.ensureUser(ctx, cb.From)
	if err != nil {
		return err
	}
	count, err := b.sessions.Join(chatID, userID, cb.From.FirstName)
	switch {
	case errors.Is(err, quiz.ErrNoSession):
		return b.alertCallback(cb.ID, "❌ Koi quiz nahi chal raha hai!")
	case errors.Is(err, quiz.ErrJoinClosed):
		return b.alertCallback(cb.ID, "❌ Join window band ho gaya!")
	case err != nil:
		return err
	}
	if err := b.ackCallback(cb.ID, "✅ Joined!"); err != nil {
		return err
	}
	return b.sendText(chatID, fmt.Sprintf(
		"✅ <b>%s joined the quiz!</b>\n\n👥 <b>Participants:</b> %d",
		html.EscapeString(cb.From.FirstName), count))
}

func (b *Bot) handleAnswerCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) error {
	// answer_<chatID>_<questionIndex>_<letter>
	parts := strings.Split(strings.TrimPrefix(cb.Data, cbAnswerPrefix), "_")
	if len(parts) != 3 {
		return b.ackCallback(cb.ID, "")
	}
	chatID, err1 := strconv.ParseInt(parts[0], 10, 64)
	index, err2 := strconv.Atoi(parts[1])
	letter := parts[2]
	if err1 != nil || err2 != nil {
		return b.ackCallback(cb.ID, "")
	}

	userID, err := b.ensureUser(ctx, cb.From)
	if err != nil {
		return err
	}

	switch err := b.sessions.Answer(chatID, userID, index, letter); {
	case errors.Is(err, quiz.ErrNoSession), errors.Is(err, quiz.ErrQuestionClosed):
		return b.alertCallback(cb.ID, "❌ Yeh question band ho gaya!")
	case errors.Is(err, quiz.ErrNotParticipant):
		return b.alertCallback(cb.ID, "❌ Quiz join nahi kiya hai!")
	case errors.Is(err, quiz.ErrAlreadyAnswered):
		return b.alertCallback(cb.ID, "❌ Aapne already answer de diya!")
	case err != nil:
		return err
	}
	return b.ackCallback(cb.ID, "✅ Answer recorded!")
}

// truncateRunes shortens s to at most n runes so HTML replies never
// carry a rune split mid-sequence.
func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
