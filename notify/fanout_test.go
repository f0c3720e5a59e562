package notify

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verdel/torrent-telegram-bot/config"
)

type fakeSender struct {
	mu      sync.Mutex
	sent    []int64
	failFor int64
}

func (s *fakeSender) Send(chatID int64, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if chatID == s.failFor {
		return errors.New("send failed")
	}
	s.sent = append(s.sent, chatID)
	return nil
}

func (s *fakeSender) recipients() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.sent...)
}

func TestRecipientsPersonalAndAll(t *testing.T) {
	entries := []*config.AllowChat{
		{TelegramID: 1, TorrentPermission: "all", Notify: "all"},
		{TelegramID: 2, TorrentPermission: "personal", Notify: "personal"},
	}

	// torrent owned by chat 2 completes: owner hears via its personal
	// subscription, chat 1 via the all branch
	assert.ElementsMatch(t, []int64{1, 2}, Recipients(entries, 2))
}

func TestRecipientsDuplicateAccepted(t *testing.T) {
	entries := []*config.AllowChat{
		{TelegramID: 1, TorrentPermission: "all", Notify: "all"},
		{TelegramID: 2, TorrentPermission: "personal", Notify: "personal"},
		{TelegramID: 2, TorrentPermission: "personal", Notify: "all"},
	}

	// the overlap case delivers twice and that is accepted behavior
	assert.ElementsMatch(t, []int64{1, 2, 2}, Recipients(entries, 2))
}

func TestRecipientsNoNotify(t *testing.T) {
	entries := []*config.AllowChat{
		{TelegramID: 1, TorrentPermission: "personal"},
	}

	assert.Empty(t, Recipients(entries, 1), "no notify field means no announcement")
}

func TestRecipientsUnknownOwner(t *testing.T) {
	entries := []*config.AllowChat{
		{TelegramID: 1, TorrentPermission: "all", Notify: "all"},
	}

	assert.Equal(t, []int64{1}, Recipients(entries, 99), "all subscribers hear about unowned completions")
}

func TestCompletedSendsToAllRecipients(t *testing.T) {
	entries := []*config.AllowChat{
		{TelegramID: 1, TorrentPermission: "all", Notify: "all"},
		{TelegramID: 2, TorrentPermission: "personal", Notify: "personal"},
	}

	f := New(entries)
	sender := &fakeSender{}
	f.SetSender(sender)

	f.Completed(2, "ubuntu.iso")
	f.wait()

	assert.ElementsMatch(t, []int64{1, 2}, sender.recipients())
}

func TestCompletedFailureDoesNotBlockOthers(t *testing.T) {
	entries := []*config.AllowChat{
		{TelegramID: 1, TorrentPermission: "all", Notify: "all"},
		{TelegramID: 2, TorrentPermission: "all", Notify: "all"},
	}

	f := New(entries)
	sender := &fakeSender{failFor: 1}
	f.SetSender(sender)

	f.Completed(99, "ubuntu.iso")
	f.wait()

	require.Equal(t, []int64{2}, sender.recipients())
}

func TestCompletedWithoutSender(t *testing.T) {
	f := New([]*config.AllowChat{{TelegramID: 1, Notify: "all"}})

	// must not panic
	f.Completed(1, "ubuntu.iso")
	f.wait()
}
