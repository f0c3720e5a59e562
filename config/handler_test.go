package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
telegram:
  token: "123:abc"
  allow_chat:
    - telegram_id: 1
      torrent_permission: personal
      notify: personal
      allow_category: [movies]
    - telegram_id: 2
      torrent_permission: all
client:
  type: transmission
  address: tr.local
  path:
    - category: movies
      dir: /downloads/movies
db:
  path: /var/lib/bot/db
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestHandlerGet(t *testing.T) {
	h := NewHandler(writeConfig(t, sampleConfig))

	conf, err := h.Get()
	require.NoError(t, err)

	assert.Equal(t, "123:abc", conf.Telegram.Token)
	require.Len(t, conf.Telegram.AllowChat, 2)
	assert.Equal(t, int64(1), conf.Telegram.AllowChat[0].TelegramID)
	assert.Equal(t, "personal", conf.Telegram.AllowChat[0].TorrentPermission)
	assert.Equal(t, []string{"movies"}, conf.Telegram.AllowChat[0].AllowCategory)
	assert.Empty(t, conf.Telegram.AllowChat[1].Notify)

	assert.Equal(t, ClientTransmission, conf.Client.Type)
	assert.Equal(t, "tr.local", conf.Client.Address)
	require.Len(t, conf.Client.Paths, 1)
	assert.Equal(t, "/downloads/movies", conf.Client.Paths[0].Dir)
}

func TestHandlerDefaults(t *testing.T) {
	h := NewHandler(writeConfig(t, sampleConfig))

	conf, err := h.Get()
	require.NoError(t, err)

	assert.Equal(t, 9091, conf.Client.Port, "transmission default port")
	assert.Equal(t, 30, conf.Client.Timeout)
	assert.Equal(t, 60, conf.Schedule.CheckPeriod)
	assert.Nil(t, conf.HTTP, "http api stays off unless configured")
	assert.NotNil(t, conf.Log)
}

func TestHandlerMissingToken(t *testing.T) {
	h := NewHandler(writeConfig(t, "client:\n  type: transmission\n"))

	_, err := h.Get()
	assert.Error(t, err)
}

func TestHandlerUnknownClientType(t *testing.T) {
	h := NewHandler(writeConfig(t, "telegram:\n  token: x\nclient:\n  type: rtorrent\n"))

	_, err := h.Get()
	assert.Error(t, err)
}

func TestHandlerMissingFile(t *testing.T) {
	h := NewHandler(filepath.Join(t.TempDir(), "nope.yaml"))

	_, err := h.Get()
	assert.Error(t, err)
}
