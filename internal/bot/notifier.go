package bot

import (
	"fmt"
	"html"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"anuj-bot/internal/model"
	"anuj-bot/internal/quiz"
)

// The bot is the session manager's Notifier: every session event turns
// into a chat message here.
var _ quiz.Notifier = (*Bot)(nil)

func (b *Bot) QuizStarting(chatID int64, title string, joinSeconds int) {
	text := fmt.Sprintf(
		"🧠 <b>Group Quiz Starting!</b>\n\n📖 <b>%s</b>\n\n⏰ Join karne ke liye %d seconds hain!\n👇 Button dabao!",
		html.EscapeString(title), joinSeconds)
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🎯 Join Quiz", fmt.Sprintf("%s%d", cbJoinPrefix, chatID)),
		),
	)
	if _, err := b.sender.Send(msg); err != nil {
		b.log.Error("announce quiz failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (b *Bot) JoinClosedNoPlayers(chatID int64) {
	if err := b.sendText(chatID, "😢 Koi join nahi hua. Quiz cancel! Agli baar try karo!"); err != nil {
		b.log.Error("announce empty quiz failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (b *Bot) AskQuestion(chatID int64, index, total int, q model.Question, seconds int) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "❓ <b>Question %d/%d</b>\n\n%s\n\n", index+1, total, html.EscapeString(q.Prompt))
	for i, opt := range q.Options {
		fmt.Fprintf(&sb, "<b>%s.</b> %s\n", model.AnswerLetters[i], html.EscapeString(opt))
	}
	fmt.Fprintf(&sb, "\n⏰ %d seconds!", seconds)

	answerData := func(letter string) string {
		return fmt.Sprintf("%s%d_%d_%s", cbAnswerPrefix, chatID, index, letter)
	}
	msg := tgbotapi.NewMessage(chatID, sb.String())
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("A", answerData("A")),
			tgbotapi.NewInlineKeyboardButtonData("B", answerData("B")),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("C", answerData("C")),
			tgbotapi.NewInlineKeyboardButtonData("D", answerData("D")),
		),
	)
	if _, err := b.sender.Send(msg); err != nil {
		b.log.Error("send question failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (b *Bot) RevealAnswer(chatID int64, index int, q model.Question) {
	text := fmt.Sprintf("⏰ <b>Time up for Q%d!</b>\n\n✅ Correct answer: <b>%s. %s</b>",
		index+1, q.Answer, html.EscapeString(q.CorrectOption()))
	if q.Explanation != "" {
		text += fmt.Sprintf("\n\n💡 %s", html.EscapeString(q.Explanation))
	}
	if err := b.sendText(chatID, text); err != nil {
		b.log.Error("reveal answer failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (b *Bot) ShowResults(chatID int64, results []quiz.Result) {
	var sb strings.Builder
	sb.WriteString("🏁 <b>Quiz Finished!</b>\n\n🏆 <b>Results:</b>\n\n")
	medals := []string{"🥇", "🥈", "🥉"}
	for i, r := range results {
		medal := fmt.Sprintf("%d.", i+1)
		if i < len(medals) {
			medal = medals[i]
		}
		fmt.Fprintf(&sb, "%s %s — %d/%d\n", medal, html.EscapeString(r.Name), r.Score, r.Total)
	}
	sb.WriteString("\n<b>Well played everyone!</b> 😊\n/leaderboard se overall ranking dekho!")
	if err := b.sendText(chatID, sb.String()); err != nil {
		b.log.Error("show results failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}
