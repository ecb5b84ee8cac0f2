package main

import (
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/Asort97/promoBot/clients/campaign"
	"github.com/Asort97/promoBot/clients/config"
)

// botSender is the part of *tgbotapi.BotAPI the handlers use.
type botSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

type promoBot struct {
	api    botSender
	orch   *campaign.Orchestrator
	admins config.AdminIDs
	log    *zap.Logger

	mu sync.Mutex
	// screens holds the message each chat is currently looking at.
	screens map[int64]int
}

func newPromoBot(api botSender, orch *campaign.Orchestrator, admins config.AdminIDs, log *zap.Logger) *promoBot {
	return &promoBot{
		api:     api,
		orch:    orch,
		admins:  admins,
		log:     log.Named("bot"),
		screens: make(map[int64]int),
	}
}

func (b *promoBot) isAdmin(userID int64) bool {
	return b.admins.Contains(userID)
}

func (b *promoBot) screen(chatID int64) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.screens[chatID]
}

func (b *promoBot) setScreen(chatID int64, messageID int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.screens[chatID] = messageID
}

// updateChatText edits the current screen of the chat, or sends a new one when the
// edit is impossible. keyboard may be nil.
func (b *promoBot) updateChatText(chatID int64, text string, keyboard *tgbotapi.InlineKeyboardMarkup) error {
	text = fitMessage(text)
	if messageID := b.screen(chatID); messageID != 0 {
		edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
		edit.ParseMode = tgbotapi.ModeHTML
		edit.DisableWebPagePreview = true
		edit.ReplyMarkup = keyboard
		_, err := b.api.Send(edit)
		if err == nil || strings.Contains(err.Error(), "message is not modified") {
			return nil
		}
		b.log.Debug("edit failed, sending new screen", zap.Int64("chat", chatID), zap.Error(err))
	}
	return b.replaceChatWithText(chatID, text, keyboard)
}

func (b *promoBot) replaceChatWithText(chatID int64, text string, keyboard *tgbotapi.InlineKeyboardMarkup) error {
	if messageID := b.screen(chatID); messageID != 0 {
		_, _ = b.api.Request(tgbotapi.NewDeleteMessage(chatID, messageID))
	}
	msg := tgbotapi.NewMessage(chatID, fitMessage(text))
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if keyboard != nil {
		msg.ReplyMarkup = *keyboard
	}

	sent, err := b.api.Send(msg)
	if err != nil {
		return err
	}
	b.setScreen(chatID, sent.MessageID)
	return nil
}

// showScreen is updateChatText with errors logged instead of returned.
func (b *promoBot) showScreen(chatID int64, text string, keyboard tgbotapi.InlineKeyboardMarkup) {
	if err := b.updateChatText(chatID, text, &keyboard); err != nil {
		b.log.Error("show screen", zap.Int64("chat", chatID), zap.Error(err))
	}
}

func (b *promoBot) sendReport(chatID int64, path, caption string) error {
	doc := tgbotapi.NewDocument(chatID, tgbotapi.FilePath(path))
	doc.Caption = caption
	doc.ParseMode = tgbotapi.ModeHTML
	_, err := b.api.Send(doc)
	return err
}

func (b *promoBot) ackCallback(cq *tgbotapi.CallbackQuery, text string) {
	cfg := tgbotapi.NewCallback(cq.ID, text)
	if _, err := b.api.Request(cfg); err != nil {
		b.log.Debug("callback ack failed", zap.Error(err))
	}
}

// dropMessage removes a message the admin typed, keeping the chat to a single screen.
func (b *promoBot) dropMessage(msg *tgbotapi.Message) {
	_, _ = b.api.Request(tgbotapi.NewDeleteMessage(msg.Chat.ID, msg.MessageID))
}
