package main

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/Asort97/promoBot/clients/campaign"
	"github.com/Asort97/promoBot/clients/metrics"
	promoname "github.com/Asort97/promoBot/clients/promoName"
)

// progressEvery limits progress edits during a batch; Telegram throttles frequent edits.
const progressEvery = 2 * time.Second

// updateSender returns the user and chat an update comes from.
func updateSender(update tgbotapi.Update) (userID, chatID int64, ok bool) {
	switch {
	case update.Message != nil && update.Message.From != nil:
		return update.Message.From.ID, update.Message.Chat.ID, true
	case update.CallbackQuery != nil && update.CallbackQuery.From != nil && update.CallbackQuery.Message != nil:
		return update.CallbackQuery.From.ID, update.CallbackQuery.Message.Chat.ID, true
	}
	return 0, 0, false
}

// denyAccess answers an update from someone who is not an admin.
func (b *promoBot) denyAccess(update tgbotapi.Update) {
	metrics.RecordUpdate("denied")
	if cq := update.CallbackQuery; cq != nil {
		b.ackCallback(cq, accessDeniedText)
		return
	}
	if msg := update.Message; msg != nil {
		b.log.Warn("access denied", zap.Int64("user", msg.From.ID), zap.String("username", msg.From.UserName))
		if _, err := b.api.Send(tgbotapi.NewMessage(msg.Chat.ID, accessDeniedText)); err != nil {
			b.log.Error("send access denied", zap.Error(err))
		}
	}
}

// rejectBusy answers an update that could not be queued.
func (b *promoBot) rejectBusy(update tgbotapi.Update) {
	metrics.RecordUpdate("dropped")
	if cq := update.CallbackQuery; cq != nil {
		b.ackCallback(cq, busyText)
	}
}

// handleUpdate processes one admin update. A panic is logged and reported to the admin.
func (b *promoBot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	_, chatID, _ := updateSender(update)
	defer func() {
		if r := recover(); r != nil {
			metrics.RecordUpdate("panic")
			b.log.Error("update handler panicked",
				zap.Any("panic", r),
				zap.Int("update_id", update.UpdateID),
				zap.ByteString("stack", debug.Stack()),
			)
			if chatID != 0 {
				_ = b.replaceChatWithText(chatID, genericErrorText, ptr(mainMenuInlineKeyboard()))
			}
		}
	}()

	if msg := update.Message; msg != nil {
		b.handleIncomingMessage(ctx, msg)
		return
	}
	if cq := update.CallbackQuery; cq != nil && cq.Message != nil {
		b.handleCallback(ctx, cq)
	}
}

func (b *promoBot) handleIncomingMessage(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	admin := msg.From.ID

	if msg.IsCommand() {
		metrics.RecordUpdate("command")
		switch msg.Command() {
		case "start":
			b.orch.Start(admin)
			if err := b.replaceChatWithText(chatID, composeMenuText(), ptr(mainMenuInlineKeyboard())); err != nil {
				b.log.Error("show main menu", zap.Error(err))
			}
		case "cancel":
			b.orch.Cancel(admin)
			if err := b.replaceChatWithText(chatID, cancelledText, ptr(mainMenuInlineKeyboard())); err != nil {
				b.log.Error("show main menu", zap.Error(err))
			}
		default:
			// ignore other commands
		}
		return
	}

	metrics.RecordUpdate("message")
	switch b.orch.State(admin).State {
	case campaign.StateAwaitingTag:
		b.dropMessage(msg)
		b.handleTagInput(chatID, admin, msg.Text)
	case campaign.StateAwaitingQuantity:
		b.dropMessage(msg)
		b.handleQuantityInput(chatID, admin, msg.Text)
	default:
		if err := b.replaceChatWithText(chatID, composeMenuText(), ptr(mainMenuInlineKeyboard())); err != nil {
			b.log.Error("show main menu", zap.Error(err))
		}
	}
}

func (b *promoBot) handleCallback(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	metrics.RecordUpdate("callback")
	chatID := cq.Message.Chat.ID
	admin := cq.From.ID
	data := cq.Data
	ackText := ""

	// callbacks always act on the message they are attached to
	b.setScreen(chatID, cq.Message.MessageID)

	switch {
	case data == cbMainMenu:
		b.orch.Start(admin)
		b.showScreen(chatID, composeMenuText(), mainMenuInlineKeyboard())
	case data == cbCreatePromo:
		b.handleCreatePromo(chatID, admin)
	case strings.HasPrefix(data, cbTrafficPrefix):
		gb, err := strconv.Atoi(strings.TrimPrefix(data, cbTrafficPrefix))
		if err != nil {
			ackText = "❌ Неизвестный лимит"
			break
		}
		ackText = b.handleTrafficLimit(chatID, admin, gb)
	case data == cbConfirmCreate:
		b.ackCallback(cq, "")
		b.handleConfirmCreate(ctx, chatID, admin)
		return
	case data == cbDeleteUsed:
		b.ackCallback(cq, "")
		b.handleDeleteUsed(ctx, chatID, admin)
		return
	case strings.HasPrefix(data, cbDeleteTag):
		b.ackCallback(cq, "")
		b.handleDeleteTag(ctx, chatID, admin, strings.TrimPrefix(data, cbDeleteTag))
		return
	case data == cbConfirmDelete:
		b.ackCallback(cq, "")
		b.handleConfirmDelete(ctx, chatID, admin)
		return
	case data == cbStats:
		b.ackCallback(cq, "")
		b.handleStats(ctx, chatID, admin)
		return
	default:
		// ignore
	}

	b.ackCallback(cq, ackText)
}

func (b *promoBot) handleCreatePromo(chatID, admin int64) {
	if err := b.orch.BeginCreate(admin); err != nil {
		b.showStepError(chatID, err)
		return
	}
	b.showScreen(chatID, askTagText(), singleBackKeyboard())
}

func (b *promoBot) handleTagInput(chatID, admin int64, text string) {
	s, err := b.orch.SubmitTag(admin, text)
	var tagErr *promoname.TagError
	switch {
	case errors.As(err, &tagErr):
		b.showScreen(chatID, invalidTagText(err), singleBackKeyboard())
	case err != nil:
		b.showStepError(chatID, err)
	default:
		b.showScreen(chatID, askLimitText(s.Tag, promoname.HasSpace(text)), trafficLimitKeyboard())
	}
}

// handleTrafficLimit returns the callback acknowledgement text.
func (b *promoBot) handleTrafficLimit(chatID, admin int64, gb int) string {
	s, err := b.orch.ChooseLimit(admin, gb)
	switch {
	case errors.Is(err, campaign.ErrInvalidLimit):
		return "❌ Неизвестный лимит"
	case err != nil:
		b.showStepError(chatID, err)
		return ""
	}
	b.showScreen(chatID, askQuantityText(s, b.orch.MaxPerRequest()), singleBackKeyboard())
	return ""
}

func (b *promoBot) handleQuantityInput(chatID, admin int64, text string) {
	s, err := b.orch.SubmitQuantity(admin, text)
	var qErr *campaign.QuantityError
	switch {
	case errors.As(err, &qErr):
		b.showScreen(chatID, invalidQuantityText(qErr), singleBackKeyboard())
	case err != nil:
		b.showStepError(chatID, err)
	default:
		b.showScreen(chatID, confirmCreateText(s), confirmCreateKeyboard())
	}
}

func (b *promoBot) handleConfirmCreate(ctx context.Context, chatID, admin int64) {
	s := b.orch.State(admin)
	if s.State == campaign.StateAwaitingConfirmation {
		if err := b.updateChatText(chatID, creatingText(s, 0), nil); err != nil {
			b.log.Warn("show progress", zap.Error(err))
		}
	}

	var lastEdit time.Time
	progress := func(done, total int) {
		if done < total && time.Since(lastEdit) < progressEvery {
			return
		}
		lastEdit = time.Now()
		if err := b.updateChatText(chatID, creatingText(s, done), nil); err != nil {
			b.log.Debug("update progress", zap.Error(err))
		}
	}

	res, err := b.orch.ConfirmCreate(ctx, admin, progress)
	if err != nil {
		b.showStepError(chatID, err)
		return
	}

	b.showScreen(chatID, createResultText(res), singleBackKeyboard())
	if res.ReportPath != "" {
		if err := b.sendReport(chatID, res.ReportPath, reportCaption(res)); err != nil {
			b.log.Error("send report", zap.String("path", res.ReportPath), zap.Error(err))
		}
	}
}

func (b *promoBot) handleDeleteUsed(ctx context.Context, chatID, admin int64) {
	if err := b.updateChatText(chatID, "⏳ Загрузка списка тегов...", nil); err != nil {
		b.log.Warn("show loading", zap.Error(err))
	}

	snapshots, err := b.orch.BeginDelete(ctx, admin)
	switch {
	case err != nil:
		b.showStepError(chatID, err)
	case len(snapshots) == 0:
		b.showScreen(chatID, "❌ Промо-кампании не найдены.", singleBackKeyboard())
	default:
		b.showScreen(chatID, tagListText(), tagListKeyboard(snapshots))
	}
}

func (b *promoBot) handleDeleteTag(ctx context.Context, chatID, admin int64, tag string) {
	if err := b.updateChatText(chatID, fmt.Sprintf("⏳ Загрузка статистики для тега %s...", code(tag)), nil); err != nil {
		b.log.Warn("show loading", zap.Error(err))
	}

	snap, err := b.orch.SelectTag(ctx, admin, tag)
	switch {
	case errors.Is(err, campaign.ErrTagNotFound):
		b.showScreen(chatID, fmt.Sprintf("❌ Подписки с тегом %s не найдены.", code(tag)), singleBackKeyboard())
	case err != nil:
		b.showStepError(chatID, err)
	default:
		b.showScreen(chatID, deletePreviewText(snap), confirmDeleteKeyboard())
	}
}

func (b *promoBot) handleConfirmDelete(ctx context.Context, chatID, admin int64) {
	s := b.orch.State(admin)
	if s.State == campaign.StateAwaitingDeleteConfirmation {
		if err := b.updateChatText(chatID, deletingText(s.SelectedTag), nil); err != nil {
			b.log.Warn("show progress", zap.Error(err))
		}
	}

	res, err := b.orch.ConfirmDelete(ctx, admin)
	if err != nil {
		b.showStepError(chatID, err)
		return
	}
	b.showScreen(chatID, deleteResultText(res), singleBackKeyboard())
}

func (b *promoBot) handleStats(ctx context.Context, chatID, admin int64) {
	if err := b.updateChatText(chatID, "⏳ Загрузка статистики...", nil); err != nil {
		b.log.Warn("show loading", zap.Error(err))
	}

	ov, err := b.orch.Statistics(ctx, admin)
	if err != nil {
		b.showStepError(chatID, err)
		return
	}
	b.showScreen(chatID, statisticsText(ov), singleBackKeyboard())
}

// showStepError renders an orchestrator error. A step that no longer fits the dialogue
// means the admin pressed an outdated button.
func (b *promoBot) showStepError(chatID int64, err error) {
	if errors.Is(err, campaign.ErrUnexpectedStep) {
		b.showScreen(chatID, sessionLostText, mainMenuInlineKeyboard())
		return
	}
	b.log.Error("operation failed", zap.Int64("chat", chatID), zap.Error(err))
	b.showScreen(chatID, upstreamErrorText("Ошибка", err), singleBackKeyboard())
}

func ptr[T any](v T) *T {
	return &v
}
