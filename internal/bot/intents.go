package bot

import (
	"context"
	"fmt"
	"html"
	"math/rand"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// intentRule is one ordered routing rule over the lowercased message
// text. Rules are tried top to bottom; the first match wins.
type intentRule struct {
	name   string
	match  func(lower string) bool
	handle func(ctx context.Context, msg *tgbotapi.Message, userID uint) error
}

var surpriseLinks = []string{
	"🎉 https://youtu.be/dQw4w9WgXcQ",
	"🌟 https://youtu.be/ZZ5LpwO-An4",
	"✨ https://youtu.be/L_jWHffIx5E",
	"🎊 https://youtu.be/fJ9rUzIMcZQ",
}

var bestWishesReplies = []string{
	"🌟 Best wishes to you too! Aur koi doubt hai? Puchte raho, main yahan hun!",
	"✨ Thank you! Koi aur question hai? Don't suffer in silence, ask away!",
	"🎉 Best wishes! Aur doubts lao, main solve kar dunga!",
}

const doubtReply = "🤔 <b>Doubt hai? Perfect!</b>\n\n" +
	"📸 Image bhejo agar visual problem hai\n" +
	"📝 Text me likho agar theory doubt hai\n" +
	"📚 PDF bhejo agar quiz chahiye\n\n" +
	"<b>Aur doubts pucho, suffering karte rahne se kya fayda! 😊</b>"

const aiFallbackReply = "🤖 <b>Anuj:</b> Samajh gaya! Koi specific doubt hai toh detail me batao. Main help karunga! 😊"

const anujSystemPrompt = "You are Anuj, a helpful Hindi-English mixed personal assistant. Be friendly, use emojis, and keep responses concise."

// defaultIntentRules builds the routing table. Order matters: the
// gratitude and wishes rules shadow the generic fallback.
func defaultIntentRules(b *Bot) []intentRule {
	return []intentRule{
		{
			name: "thanks",
			match: func(lower string) bool {
				return strings.Contains(lower, "thanks") || strings.Contains(lower, "thank you")
			},
			handle: b.intentThanks,
		},
		{
			name: "best_wishes",
			match: func(lower string) bool {
				return strings.Contains(lower, "best wishes")
			},
			handle: b.intentBestWishes,
		},
		{
			name: "notes",
			match: func(lower string) bool {
				return strings.Contains(lower, "notes")
			},
			handle: b.intentNotes,
		},
		{
			name: "doubt",
			match: func(lower string) bool {
				return strings.Contains(lower, "doubt")
			},
			handle: b.intentDoubt,
		},
		{
			name:   "ai",
			match:  func(string) bool { return true },
			handle: b.intentAI,
		},
	}
}

func (b *Bot) intentThanks(ctx context.Context, msg *tgbotapi.Message, userID uint) error {
	link := surpriseLinks[rand.Intn(len(surpriseLinks))]
	text := fmt.Sprintf("🎉 <b>Welcome %s!</b>\n\nYahan hai aapke liye ek surprise: %s\n\n✨ Aur koi doubt hai? Puchte raho!",
		html.EscapeString(msg.From.FirstName), link)
	return b.reply(ctx, msg.Chat.ID, userID, text)
}

func (b *Bot) intentBestWishes(ctx context.Context, msg *tgbotapi.Message, userID uint) error {
	return b.reply(ctx, msg.Chat.ID, userID, bestWishesReplies[rand.Intn(len(bestWishesReplies))])
}

func (b *Bot) intentNotes(ctx context.Context, msg *tgbotapi.Message, userID uint) error {
	return b.sendRelevantFiles(ctx, msg.Chat.ID, userID, msg.Text)
}

func (b *Bot) intentDoubt(ctx context.Context, msg *tgbotapi.Message, userID uint) error {
	return b.reply(ctx, msg.Chat.ID, userID, doubtReply)
}

// intentAI is the catch-all: the LLM answers with the recent
// conversation as context.
func (b *Bot) intentAI(ctx context.Context, msg *tgbotapi.Message, userID uint) error {
	history, err := b.contextSvc.RecentContext(ctx, userID)
	if err != nil {
		b.log.Warn("load context failed", zap.Uint("user_id", userID), zap.Error(err))
	}

	prompt := msg.Text
	if history != "" {
		prompt = fmt.Sprintf("Conversation so far:\n%s\n\nCurrent query: %s", history, msg.Text)
	}

	answer, err := b.llm.Complete(ctx, anujSystemPrompt, prompt)
	if err != nil {
		b.log.Warn("llm reply failed", zap.Uint("user_id", userID), zap.Error(err))
		return b.reply(ctx, msg.Chat.ID, userID, aiFallbackReply)
	}

	if err := b.contextSvc.TouchTopic(ctx, userID, "", msg.Text); err != nil {
		b.log.Warn("touch topic failed", zap.Uint("user_id", userID), zap.Error(err))
	}
	return b.reply(ctx, msg.Chat.ID, userID, fmt.Sprintf("🤖 <b>Anuj:</b> %s", answer))
}
