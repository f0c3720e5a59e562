// Package notify fans completion announcements out to the chats that
// subscribed to them.
package notify

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/verdel/torrent-telegram-bot/config"
)

// Sender delivers one outbound message. Implemented by the Telegram bot.
type Sender interface {
	Send(chatID int64, text string) error
}

// Fanout decides who hears about a completed torrent. Two independent
// branches: the owner when its policy entry has notify=personal, and every
// entry with notify=all. A chat matched by both receives the message
// twice; that overlap is accepted, not deduplicated.
type Fanout struct {
	entries []*config.AllowChat
	limiter *rate.Limiter
	log     zerolog.Logger

	mu     sync.Mutex
	sender Sender

	wg sync.WaitGroup
}

func New(entries []*config.AllowChat) *Fanout {
	return &Fanout{
		entries: entries,
		// Telegram caps bots at ~30 messages a second; stay under it.
		limiter: rate.NewLimiter(rate.Limit(25), 5),
		log:     log.Logger.With().Str("component", "notify").Logger(),
	}
}

// SetSender attaches the outbound gateway. The bot needs the tracker and
// the tracker needs the fan-out, so the sender arrives after construction.
func (f *Fanout) SetSender(s Sender) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sender = s
}

// Completed announces a finished torrent owned by the given chat. Each
// send runs as its own task: a failed recipient is logged and never blocks
// the others, and no delivery order is guaranteed.
func (f *Fanout) Completed(owner int64, torrentName string) {
	f.mu.Lock()
	sender := f.sender
	f.mu.Unlock()
	if sender == nil {
		f.log.Warn().Str("torrent", torrentName).Msg("no sender attached, dropping notification")
		return
	}

	text := fmt.Sprintf("Torrent \"*%s*\" was successfully downloaded", torrentName)
	for _, chatID := range Recipients(f.entries, owner) {
		f.wg.Add(1)
		go func(chatID int64) {
			defer f.wg.Done()
			if err := f.limiter.Wait(context.Background()); err != nil {
				return
			}
			if err := sender.Send(chatID, text); err != nil {
				f.log.Warn().Err(err).Int64("chat_id", chatID).
					Msg("error sending completion notification")
			}
		}(chatID)
	}
}

// Recipients lists every chat the completion of an owner's torrent should
// be announced to, duplicates included.
func Recipients(entries []*config.AllowChat, owner int64) []int64 {
	var out []int64

	for _, e := range entries {
		if e.TelegramID == owner {
			if e.Notify == "personal" {
				out = append(out, owner)
			}
			break
		}
	}

	for _, e := range entries {
		if e.Notify == "all" {
			out = append(out, e.TelegramID)
		}
	}

	return out
}

// wait blocks until in-flight sends finish. Test hook.
func (f *Fanout) wait() {
	f.wg.Wait()
}
