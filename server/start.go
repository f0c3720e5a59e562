package server

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/verdel/torrent-telegram-bot/bot"
	"github.com/verdel/torrent-telegram-bot/config"
	"github.com/verdel/torrent-telegram-bot/engine"
	apphttp "github.com/verdel/torrent-telegram-bot/http"
	"github.com/verdel/torrent-telegram-bot/store"
	"github.com/verdel/torrent-telegram-bot/tracker"
)

// Start runs the bot poller, the reconciliation loop and, when configured,
// the HTTP API. Returns once ctx is cancelled and the in-flight
// reconciliation record has finished.
func Start(ctx context.Context, b *bot.Bot, tr *tracker.Tracker, eng engine.Engine, st *store.Store, checkPeriod time.Duration, httpConf *config.HTTPGlobal) {
	log.Info().Msg("starting servers")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		tr.Run(ctx, checkPeriod)
	}()

	if httpConf != nil {
		go func() {
			if err := apphttp.New(eng, st, httpConf); err != nil {
				log.Error().Err(err).Msg("error starting HTTP server")
			}
		}()
	}

	// blocking until shutdown
	b.Run(ctx)
	wg.Wait()
}
