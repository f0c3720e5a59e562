package bot

import (
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/verdel/torrent-telegram-bot/config"
	"github.com/verdel/torrent-telegram-bot/engine"
	"github.com/verdel/torrent-telegram-bot/policy"
)

const (
	textListDownloading = "⬇️ List Downloading"
	textListAll         = "📄 List All"
	textDelete          = "❌ Delete"
)

func mainKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(textListDownloading)),
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(textListAll)),
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(textDelete)),
	)
	kb.ResizeKeyboard = true
	return kb
}

// categoryKeyboard offers one button per configured client path, filtered
// by the chat's category allow-list. Callback data carries the download
// directory.
func categoryKeyboard(entries []*config.AllowChat, paths []*config.ClientPath, chatID int64) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, p := range paths {
		if !policy.CategoryAllowed(entries, chatID, p.Category) {
			continue
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(p.Category, "download:"+p.Dir),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("Cancel", "download:cancel"),
	))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func deleteKeyboard(torrents []engine.Snapshot) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, t := range torrents {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(t.Name, "delete:"+t.ID),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("Cancel", "delete:cancel"),
	))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func deleteConfirmKeyboard(torrentID string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Confirm", "delete:confirm:"+torrentID),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Cancel", "delete:cancel"),
		),
	)
}

type deleteAction int

const (
	deleteCancel deleteAction = iota
	// deletePrompt asks for confirmation; nothing is mutated yet.
	deletePrompt
	// deletePerform is the confirmed second round-trip.
	deletePerform
)

// parseDeleteCallback decodes delete:<id>, delete:confirm:<id> and
// delete:cancel. The confirmation state lives entirely in the callback
// payload; the bot keeps no server-side session for it.
func parseDeleteCallback(data string) (deleteAction, string) {
	rest := strings.TrimPrefix(data, "delete:")
	switch {
	case rest == "cancel":
		return deleteCancel, ""
	case strings.HasPrefix(rest, "confirm:"):
		return deletePerform, strings.TrimPrefix(rest, "confirm:")
	default:
		return deletePrompt, rest
	}
}

// parseDownloadCallback decodes download:<dir> and download:cancel.
func parseDownloadCallback(data string) (dir string, cancel bool) {
	rest := strings.TrimPrefix(data, "download:")
	if rest == "cancel" {
		return "", true
	}
	return rest, false
}
