package main

import (
	"fmt"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Asort97/promoBot/clients/campaign"
	remnawave "github.com/Asort97/promoBot/clients/remnaWave"
)

const (
	cbCreatePromo   = "create_promo"
	cbTrafficPrefix = "traffic_"
	cbConfirmCreate = "confirm_create"
	cbDeleteUsed    = "delete_used"
	cbDeleteTag     = "delete_tag_"
	cbConfirmDelete = "confirm_delete"
	cbStats         = "stats"
	cbMainMenu      = "main_menu"
)

func mainMenuInlineKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🎁 Создать промо-кампанию", cbCreatePromo),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🗑 Удалить использованные подписки", cbDeleteUsed),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📊 Статистика", cbStats),
		),
	)
}

func singleBackKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("⬅️ Назад в главное меню", cbMainMenu),
		),
	)
}

func trafficLimitKeyboard() tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	var currentRow []tgbotapi.InlineKeyboardButton

	for _, gb := range remnawave.TrafficLimitsGB {
		btn := tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("%d GB", gb), cbTrafficPrefix+strconv.Itoa(gb))
		currentRow = append(currentRow, btn)

		// по 2 кнопки в строку
		if len(currentRow) == 2 {
			rows = append(rows, currentRow)
			currentRow = nil
		}
	}
	if len(currentRow) > 0 {
		rows = append(rows, currentRow)
	}

	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("⬅️ Назад в главное меню", cbMainMenu),
	))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func confirmCreateKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Подтвердить создание", cbConfirmCreate),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("❌ Отменить", cbMainMenu),
		),
	)
}

func tagListKeyboard(snapshots []campaign.Snapshot) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(snapshots)+1)
	for _, s := range snapshots {
		label := fmt.Sprintf("%s (%d/%d использовано)", s.Tag, s.Used, s.Total)
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, cbDeleteTag+s.Tag),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("⬅️ Назад в главное меню", cbMainMenu),
	))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func confirmDeleteKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Подтвердить удаление", cbConfirmDelete),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("❌ Отменить", cbDeleteUsed),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("⬅️ Главное меню", cbMainMenu),
		),
	)
}
