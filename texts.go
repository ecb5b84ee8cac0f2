package main

import (
	"errors"
	"fmt"
	"html"
	"path/filepath"
	"strings"

	"github.com/Asort97/promoBot/clients/campaign"
	promoname "github.com/Asort97/promoBot/clients/promoName"
	remnawave "github.com/Asort97/promoBot/clients/remnaWave"
)

const (
	accessDeniedText = "❌ У вас нет прав доступа к этому боту."
	sessionLostText  = "❌ Сессия истекла. Начните заново."
	cancelledText    = "❌ Операция отменена."
	genericErrorText = "❌ Произошла ошибка. Попробуйте еще раз."
	busyText         = "⏳ Дождитесь завершения текущей операции."

	tagRules = "⚠️ <b>Требования к тегу:</b>\n" +
		"• Только латинские буквы\n" +
		"• Цифры, подчеркивания и дефисы разрешены\n" +
		"• Пробелы будут заменены на подчеркивания (_)"

	// previewLinks is the most links shown in full in the batch result.
	previewLinks = 5
	// telegramTextLimit is the Bot API limit for one message.
	telegramTextLimit = 4096
)

func composeMenuText() string {
	return "🤖 <b>Remnawave Promo Bot</b>\n\nВыберите действие:"
}

func askTagText() string {
	return "🏷 <b>Создание промо-кампании</b>\n\nВведите тег кампании:\n\n" + tagRules
}

func invalidTagText(err error) string {
	reason := "неверный формат"
	var tagErr *promoname.TagError
	if errors.As(err, &tagErr) {
		switch tagErr.Rule {
		case promoname.RuleEmpty:
			reason = "тег пустой"
		case promoname.RuleTooLong:
			reason = fmt.Sprintf("тег длиннее %d символов", promoname.MaxTagLength)
		case promoname.RuleForbidden:
			reason = "недопустимые символы: " + code(string(tagErr.Invalid))
		}
	}
	return "❌ <b>Неверный формат тега!</b> (" + reason + ")\n\nВведите тег кампании:\n\n" + tagRules
}

func askLimitText(tag string, spacesReplaced bool) string {
	note := ""
	if spacesReplaced {
		note = "\nℹ️ Пробелы заменены на подчеркивания."
	}
	return fmt.Sprintf("✅ <b>Тег:</b> %s%s\n\n📊 Выберите лимит трафика:", code(tag), note)
}

func askQuantityText(s campaign.Session, max int) string {
	return fmt.Sprintf("✅ <b>Тег:</b> %s\n📊 <b>Лимит трафика:</b> %dGB\n\n🔢 Введите количество подписок (1-%d):",
		code(s.Tag), s.LimitGB, max)
}

func invalidQuantityText(err *campaign.QuantityError) string {
	return fmt.Sprintf("❌ <b>Неверное количество!</b>\n\nВведите число от %d до %d:", err.Min, err.Max)
}

func confirmCreateText(s campaign.Session) string {
	return fmt.Sprintf("📋 <b>Подтверждение создания:</b>\n\n"+
		"🏷 <b>Тег:</b> %s\n"+
		"📊 <b>Лимит трафика:</b> %dGB\n"+
		"🔢 <b>Количество:</b> %d\n\n"+
		"Подтвердить создание %d подписок?",
		code(s.Tag), s.LimitGB, s.Quantity, s.Quantity)
}

func creatingText(s campaign.Session, done int) string {
	return fmt.Sprintf("⏳ <b>Создание подписок...</b>\n\n"+
		"🏷 Тег: %s\n"+
		"📊 Лимит: %dGB\n\n"+
		"%s %d/%d\n\n"+
		"⚠️ Не закрывайте бота, процесс может занять некоторое время.",
		code(s.Tag), s.LimitGB, progressBar(done, s.Quantity), done, s.Quantity)
}

// progressBar renders done/total as a ten cell bar.
func progressBar(done, total int) string {
	const cells = 10
	if total <= 0 {
		return strings.Repeat("░", cells)
	}
	if done > total {
		done = total
	}
	filled := done * cells / total
	return strings.Repeat("▓", filled) + strings.Repeat("░", cells-filled)
}

func createResultText(res campaign.CreateResult) string {
	if res.Created == 0 {
		var b strings.Builder
		b.WriteString("❌ <b>Ошибка создания подписок!</b>\n\n")
		b.WriteString("Не удалось создать ни одной подписки.\n")
		if len(res.Errors) > 0 {
			b.WriteString("\n" + code(res.Errors[0].Error()))
		}
		return b.String()
	}

	var b strings.Builder
	b.WriteString("✅ <b>Промо-кампания создана!</b>\n\n")
	fmt.Fprintf(&b, "🏷 <b>Тег:</b> %s\n", code(res.Tag))
	fmt.Fprintf(&b, "📊 <b>Лимит трафика:</b> %dGB\n", res.LimitGB)
	fmt.Fprintf(&b, "✅ <b>Создано подписок:</b> %d/%d\n", res.Created, res.Requested)
	if res.Failed > 0 {
		fmt.Fprintf(&b, "❌ <b>Не создано:</b> %d\n", res.Failed)
	}
	if res.Unavailable > 0 {
		fmt.Fprintf(&b, "⚠️ <b>Без ссылки:</b> %d\n", res.Unavailable)
	}
	b.WriteString("\n")

	switch {
	case res.ReportPath != "":
		fmt.Fprintf(&b, "📁 <b>Файл с подписками:</b> %s\n\n", code(filepath.Base(res.ReportPath)))
	case res.ReportErr != nil:
		fmt.Fprintf(&b, "⚠️ <b>Файл не сохранён:</b> %s\n\n", code(res.ReportErr.Error()))
	}

	if len(res.Links) > 0 {
		b.WriteString(formatLinks(res.Links))
	}
	return b.String()
}

// formatLinks lists every link when there are few, otherwise the first three and a count.
func formatLinks(links []string) string {
	var b strings.Builder
	if len(links) <= previewLinks {
		b.WriteString("🔗 <b>Ссылки на подписки:</b>\n")
		for _, link := range links {
			b.WriteString(code(link) + "\n")
		}
		return b.String()
	}
	b.WriteString("🔗 <b>Примеры ссылок:</b>\n")
	for _, link := range links[:3] {
		b.WriteString(code(link) + "\n")
	}
	fmt.Fprintf(&b, "... и ещё %d", len(links)-3)
	return b.String()
}

func reportCaption(res campaign.CreateResult) string {
	return fmt.Sprintf("📁 Подписки кампании %s (%d шт.)", code(res.Tag), len(res.Links))
}

func tagListText() string {
	return "🗑 <b>Выберите тег для удаления использованных подписок:</b>"
}

func deletePreviewText(s campaign.Snapshot) string {
	return fmt.Sprintf("📊 <b>Статистика тега:</b> %s\n\n"+
		"📈 <b>Всего подписок:</b> %d\n"+
		"✅ <b>Активных:</b> %d\n"+
		"❌ <b>Использованных:</b> %d\n\n"+
		"⚠️ <b>Будет удалено:</b> %d подписок\n\n"+
		"Подтвердить удаление использованных подписок?",
		code(s.Tag), s.Total, s.Active, s.Used, s.Used)
}

func deletingText(tag string) string {
	return fmt.Sprintf("⏳ <b>Удаление использованных подписок...</b>\n\n🏷 Тег: %s\n\n"+
		"⚠️ Не закрывайте бота, процесс может занять некоторое время.", code(tag))
}

func deleteResultText(res campaign.DeleteResult) string {
	var b strings.Builder
	b.WriteString("✅ <b>Удаление завершено!</b>\n\n")
	fmt.Fprintf(&b, "🏷 <b>Тег:</b> %s\n", code(res.Tag))
	fmt.Fprintf(&b, "🗑 <b>Удалено:</b> %d\n", res.Deleted)
	if res.Failed > 0 {
		fmt.Fprintf(&b, "❌ <b>Не удалось удалить:</b> %d\n", res.Failed)
	}
	fmt.Fprintf(&b, "📊 <b>Всего было:</b> %d\n", res.Total)
	fmt.Fprintf(&b, "✅ <b>Осталось:</b> %d", res.Remaining())
	if len(res.Errors) > 0 {
		b.WriteString("\n\n" + code(res.Errors[0].Error()))
	}
	return b.String()
}

func statisticsText(ov campaign.Overview) string {
	if len(ov.Campaigns) == 0 {
		return "📊 <b>Статистика промо-кампаний</b>\n\n❌ Промо-кампании не найдены."
	}

	var b strings.Builder
	b.WriteString("📊 <b>Статистика промо-кампаний:</b>\n\n")
	for _, s := range ov.Campaigns {
		fmt.Fprintf(&b, "🏷 <b>%s:</b>\n", html.EscapeString(s.Tag))
		fmt.Fprintf(&b, "  📈 Всего: %d\n", s.Total)
		fmt.Fprintf(&b, "  ✅ Активных: %d\n", s.Active)
		fmt.Fprintf(&b, "  ❌ Использованных: %d\n", s.Used)
		fmt.Fprintf(&b, "  📶 Трафик: %s\n\n", remnawave.FormatBytes(s.UsedTrafficBytes))
	}
	b.WriteString("📋 <b>Общая статистика:</b>\n")
	fmt.Fprintf(&b, "📈 Всего подписок: %d\n", ov.Totals.Total)
	fmt.Fprintf(&b, "✅ Активных: %d\n", ov.Totals.Active)
	fmt.Fprintf(&b, "❌ Использованных: %d\n", ov.Totals.Used)
	fmt.Fprintf(&b, "📶 Трафик: %s", remnawave.FormatBytes(ov.Totals.UsedTrafficBytes))
	return b.String()
}

func upstreamErrorText(action string, err error) string {
	return fmt.Sprintf("❌ <b>%s:</b>\n\n%s", action, code(err.Error()))
}

func code(s string) string {
	return "<code>" + html.EscapeString(s) + "</code>"
}

// fitMessage cuts text to the Telegram limit on a line boundary.
func fitMessage(text string) string {
	runes := []rune(text)
	if len(runes) <= telegramTextLimit {
		return text
	}
	cut := string(runes[:telegramTextLimit-2])
	if i := strings.LastIndex(cut, "\n"); i > 0 {
		cut = cut[:i]
	}
	return cut + "\n…"
}
