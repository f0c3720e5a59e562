package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/verdel/torrent-telegram-bot/engine"
	"github.com/verdel/torrent-telegram-bot/store"
)

var apiStatusHandler = func(eng engine.Engine, st *store.Store) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		engineUp := true
		downloading := 0

		torrents, err := eng.List(ctx.Request.Context())
		if errors.Is(err, engine.ErrUnavailable) {
			engineUp = false
		} else if err != nil {
			ctx.JSON(http.StatusInternalServerError, Error{Error: err.Error()})
			return
		}
		for _, t := range torrents {
			if t.Downloading() {
				downloading++
			}
		}

		tracked, err := st.Count()
		if err != nil {
			ctx.JSON(http.StatusInternalServerError, Error{Error: err.Error()})
			return
		}
		incomplete, err := st.ListIncomplete()
		if err != nil {
			ctx.JSON(http.StatusInternalServerError, Error{Error: err.Error()})
			return
		}

		ctx.JSON(http.StatusOK, gin.H{
			"engineReachable":   engineUp,
			"engineTorrents":    len(torrents),
			"engineDownloading": downloading,
			"trackedRecords":    tracked,
			"trackedIncomplete": len(incomplete),
		})
	}
}

var apiTorrentsHandler = func(eng engine.Engine) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		torrents, err := eng.List(ctx.Request.Context())
		if err != nil {
			ctx.JSON(http.StatusBadGateway, Error{Error: err.Error()})
			return
		}

		out := make([]TorrentInfo, 0, len(torrents))
		for _, t := range torrents {
			out = append(out, TorrentInfo{
				ID:              t.ID,
				Name:            t.Name,
				Status:          t.Status,
				ProgressPercent: t.ProgressPercent,
				DownloadRate:    t.DownloadRate,
				UploadRate:      t.UploadRate,
				Complete:        t.Complete(),
			})
		}
		ctx.JSON(http.StatusOK, out)
	}
}
