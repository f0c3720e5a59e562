// Package bot is the Telegram gateway: it turns messages, uploads and
// callback queries into tracker operations and renders the results back.
package bot

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/anacrolix/torrent/metainfo"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/verdel/torrent-telegram-bot/config"
	"github.com/verdel/torrent-telegram-bot/policy"
	"github.com/verdel/torrent-telegram-bot/tracker"
)

const torrentMimeType = "application/x-bittorrent"

const (
	textNotAllowed   = "Oops! You are not allowed to interact with this bot."
	textWelcome      = "Welcome. Now you can start working with the bot."
	textUnknown      = "Unknown command."
	textWrongDoc     = "I only support working with files with the torrent extension."
	textEmptyList    = "The torrent list is empty"
	textNothingToDel = "At the moment, there are no torrents that you can delete."
	textChooseCat    = "Which category do you want to use for the downloaded torrent?"
	textChooseDel    = "Which torrent do you want to delete?"
	textAddError     = "Error adding torrent file. Try again later."
	textGenericError = "An error happened while I tried to handle your request. Try again later."
)

type Bot struct {
	api     *tgbotapi.BotAPI
	tracker *tracker.Tracker
	entries []*config.AllowChat
	paths   []*config.ClientPath
	client  *http.Client
	log     zerolog.Logger

	// pending holds the last uploaded torrent payload per chat until a
	// category is picked or the upload is cancelled.
	mu      sync.Mutex
	pending map[int64][]byte
}

func New(token string, tr *tracker.Tracker, entries []*config.AllowChat, paths []*config.ClientPath) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("error connecting to telegram: %w", err)
	}

	return &Bot{
		api:     api,
		tracker: tr,
		entries: entries,
		paths:   paths,
		client:  &http.Client{Timeout: 30 * time.Second},
		log:     log.Logger.With().Str("component", "bot").Logger(),
		pending: make(map[int64][]byte),
	}, nil
}

// Run polls for updates until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := b.api.GetUpdatesChan(u)

	b.log.Info().Str("username", b.api.Self.UserName).Msg("bot started")
	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			b.log.Info().Msg("bot stopped")
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.handleUpdate(ctx, update)
		}
	}
}

// Send delivers a Markdown message. Satisfies notify.Sender.
func (b *Bot) Send(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		b.handleMessage(ctx, update.Message)
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID

	// single explicit access gate for everything a chat can say
	if policy.ResolveScope(b.entries, chatID) == policy.ScopeNone {
		b.reply(chatID, textNotAllowed)
		return
	}

	switch {
	case msg.IsCommand():
		b.handleCommand(chatID, msg.Command())
	case msg.Document != nil:
		b.handleDocument(chatID, msg.Document)
	case strings.Contains(msg.Text, "Downloading"):
		b.listTorrents(ctx, chatID, true)
	case strings.Contains(msg.Text, "All"):
		b.listTorrents(ctx, chatID, false)
	case strings.Contains(msg.Text, "Delete"):
		b.deleteMenu(ctx, chatID)
	default:
		b.reply(chatID, textUnknown)
	}
}

func (b *Bot) handleCommand(chatID int64, command string) {
	switch command {
	case "start":
		msg := tgbotapi.NewMessage(chatID, textWelcome)
		msg.ReplyMarkup = mainKeyboard()
		if _, err := b.api.Send(msg); err != nil {
			b.log.Warn().Err(err).Int64("chat_id", chatID).Msg("error sending welcome message")
		}
	case "help":
		b.reply(chatID, helpText())
	default:
		b.reply(chatID, textUnknown)
	}
}

func helpText() string {
	return strings.Join([]string{
		"Send torrent file - Add a torrent to the torrent client download queue",
		textListDownloading + " - List download queue",
		textListAll + " - List all torrents in the torrent client",
		textDelete + " - Completely delete a torrent from the torrent client and filesystem",
	}, "\n")
}

func (b *Bot) handleDocument(chatID int64, doc *tgbotapi.Document) {
	if doc.MimeType != torrentMimeType {
		b.reply(chatID, textWrongDoc)
		return
	}

	data, err := b.downloadFile(doc.FileID)
	if err != nil {
		b.log.Warn().Err(err).Int64("chat_id", chatID).Msg("error downloading torrent file")
		b.reply(chatID, textGenericError)
		return
	}

	// reject garbage before it ever reaches the engine
	if _, err := metainfo.Load(bytes.NewReader(data)); err != nil {
		b.log.Debug().Err(err).Int64("chat_id", chatID).Msg("invalid torrent file uploaded")
		b.reply(chatID, textWrongDoc)
		return
	}

	b.mu.Lock()
	b.pending[chatID] = data
	b.mu.Unlock()

	msg := tgbotapi.NewMessage(chatID, textChooseCat)
	msg.ReplyMarkup = categoryKeyboard(b.entries, b.paths, chatID)
	if _, err := b.api.Send(msg); err != nil {
		b.log.Warn().Err(err).Int64("chat_id", chatID).Msg("error sending category keyboard")
	}
}

func (b *Bot) listTorrents(ctx context.Context, chatID int64, downloadingOnly bool) {
	torrents, err := b.tracker.List(ctx, chatID, downloadingOnly)
	if err != nil {
		b.log.Warn().Err(err).Int64("chat_id", chatID).Msg("error listing torrents")
		b.reply(chatID, textGenericError)
		return
	}
	if len(torrents) == 0 {
		b.reply(chatID, textEmptyList)
		return
	}

	for _, t := range torrents {
		if err := b.Send(chatID, formatSnapshot(t)); err != nil {
			b.log.Warn().Err(err).Int64("chat_id", chatID).Msg("error sending torrent info")
		}
	}
}

func (b *Bot) deleteMenu(ctx context.Context, chatID int64) {
	torrents, err := b.tracker.List(ctx, chatID, false)
	if err != nil {
		b.log.Warn().Err(err).Int64("chat_id", chatID).Msg("error listing torrents for deletion")
		b.reply(chatID, textGenericError)
		return
	}
	if len(torrents) == 0 {
		b.reply(chatID, textNothingToDel)
		return
	}

	msg := tgbotapi.NewMessage(chatID, textChooseDel)
	msg.ReplyMarkup = deleteKeyboard(torrents)
	if _, err := b.api.Send(msg); err != nil {
		b.log.Warn().Err(err).Int64("chat_id", chatID).Msg("error sending delete keyboard")
	}
}

func (b *Bot) handleCallback(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	if _, err := b.api.Request(tgbotapi.NewCallback(cq.ID, "")); err != nil {
		b.log.Debug().Err(err).Msg("error acknowledging callback")
	}

	if cq.Message == nil {
		return
	}
	chatID := cq.Message.Chat.ID
	messageID := cq.Message.MessageID

	if policy.ResolveScope(b.entries, chatID) == policy.ScopeNone {
		b.reply(chatID, textNotAllowed)
		return
	}

	switch {
	case strings.HasPrefix(cq.Data, "download:"):
		b.downloadCallback(ctx, chatID, messageID, cq.Data)
	case strings.HasPrefix(cq.Data, "delete:"):
		b.deleteCallback(ctx, chatID, messageID, cq.Data)
	}
}

func (b *Bot) downloadCallback(ctx context.Context, chatID int64, messageID int, data string) {
	dir, cancel := parseDownloadCallback(data)
	if cancel {
		b.deleteMessage(chatID, messageID)
		b.clearPending(chatID)
		return
	}

	b.mu.Lock()
	payload, ok := b.pending[chatID]
	b.mu.Unlock()
	if !ok {
		b.editText(chatID, messageID, textAddError)
		return
	}

	snap, err := b.tracker.Add(ctx, chatID, payload, dir)
	if err != nil {
		b.log.Warn().Err(err).Int64("chat_id", chatID).Msg("error adding torrent")
		b.editText(chatID, messageID, textAddError)
		return
	}

	b.clearPending(chatID)
	b.editText(chatID, messageID, fmt.Sprintf("Torrent \"*%s*\" added successfully", snap.Name))
}

func (b *Bot) deleteCallback(ctx context.Context, chatID int64, messageID int, data string) {
	action, torrentID := parseDeleteCallback(data)
	switch action {
	case deleteCancel:
		b.deleteMessage(chatID, messageID)

	case deletePrompt:
		// first round-trip: confirmation only, nothing is mutated
		var name string
		if snap, err := b.tracker.Get(ctx, chatID, torrentID); err == nil {
			name = snap.Name
		}
		edit := tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID,
			fmt.Sprintf("Do you really want to delete torrent \"*%s*\"", name),
			deleteConfirmKeyboard(torrentID))
		edit.ParseMode = tgbotapi.ModeMarkdown
		if _, err := b.api.Send(edit); err != nil {
			b.log.Warn().Err(err).Int64("chat_id", chatID).Msg("error sending delete confirmation")
		}

	case deletePerform:
		name, err := b.tracker.Delete(ctx, chatID, torrentID)
		if err != nil {
			b.log.Warn().Err(err).Int64("chat_id", chatID).Str("torrent_id", torrentID).
				Msg("error deleting torrent")
			b.editText(chatID, messageID,
				fmt.Sprintf("An error occurred while deleting the torrent %s. Try again later.", name))
			return
		}
		b.editText(chatID, messageID, fmt.Sprintf("Torrent \"*%s*\" was successfully deleted", name))
	}
}

func (b *Bot) downloadFile(fileID string) ([]byte, error) {
	f, err := b.api.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		return nil, fmt.Errorf("error resolving telegram file: %w", err)
	}

	resp, err := b.client.Get(f.Link(b.api.Token))
	if err != nil {
		return nil, fmt.Errorf("error downloading telegram file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("error downloading telegram file: status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func (b *Bot) reply(chatID int64, text string) {
	if _, err := b.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		b.log.Warn().Err(err).Int64("chat_id", chatID).Msg("error sending message")
	}
}

func (b *Bot) editText(chatID int64, messageID int, text string) {
	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	edit.ParseMode = tgbotapi.ModeMarkdown
	if _, err := b.api.Send(edit); err != nil {
		b.log.Warn().Err(err).Int64("chat_id", chatID).Msg("error editing message")
	}
}

func (b *Bot) deleteMessage(chatID int64, messageID int) {
	if _, err := b.api.Request(tgbotapi.NewDeleteMessage(chatID, messageID)); err != nil {
		b.log.Debug().Err(err).Int64("chat_id", chatID).Msg("error deleting message")
	}
}

func (b *Bot) clearPending(chatID int64) {
	b.mu.Lock()
	delete(b.pending, chatID)
	b.mu.Unlock()
}
