package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/autobrr/go-qbittorrent"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var _ Engine = &QBittorrent{}

// QBittorrent adapts a qBittorrent daemon to the Engine facade over its
// WebAPI. Torrent ids are info hashes.
type QBittorrent struct {
	c       *qbittorrent.Client
	timeout time.Duration
	log     zerolog.Logger
}

func NewQBittorrent(address string, port int, user, password string, timeout time.Duration) (*QBittorrent, error) {
	c := qbittorrent.NewClient(qbittorrent.Config{
		Host:     fmt.Sprintf("http://%s:%d", address, port),
		Username: user,
		Password: password,
	})

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := c.LoginCtx(ctx); err != nil {
		return nil, fmt.Errorf("%w: login: %v", ErrUnavailable, err)
	}

	return &QBittorrent{
		c:       c,
		timeout: timeout,
		log:     log.Logger.With().Str("component", "qbittorrent").Logger(),
	}, nil
}

func (q *QBittorrent) List(ctx context.Context) ([]Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()

	torrents, err := q.c.GetTorrentsCtx(ctx, qbittorrent.TorrentFilterOptions{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	out := make([]Snapshot, 0, len(torrents))
	for _, t := range torrents {
		out = append(out, qbitSnapshot(t))
	}
	return out, nil
}

func (q *QBittorrent) Get(ctx context.Context, id string) (Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()

	torrents, err := q.c.GetTorrentsCtx(ctx, qbittorrent.TorrentFilterOptions{
		Hashes: []string{id},
	})
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(torrents) == 0 {
		return Snapshot{}, ErrNotFound
	}

	return qbitSnapshot(torrents[0]), nil
}

// Add submits the payload under a random temporary category: the WebAPI
// does not return the hash of a new torrent, so the category is the only
// handle to find it again. The category is removed once the torrent shows
// up; callers never see it.
func (q *QBittorrent) Add(ctx context.Context, data []byte, downloadDir string) (Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()

	tempCategory := randomString(6)
	options := map[string]string{"category": tempCategory}
	if downloadDir != "" {
		options["savepath"] = downloadDir
	}

	if err := q.c.AddTorrentFromMemoryCtx(ctx, data, options); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Snapshot{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return Snapshot{}, fmt.Errorf("%w: %v", ErrAddRejected, err)
	}

	snap, err := q.waitForCategory(ctx, tempCategory)

	cleanupCtx, cleanupCancel := context.WithTimeout(context.Background(), q.timeout)
	defer cleanupCancel()
	if rmErr := q.c.RemoveCategoriesCtx(cleanupCtx, []string{tempCategory}); rmErr != nil {
		q.log.Warn().Err(rmErr).Str("category", tempCategory).
			Msg("could not remove temporary category")
	}

	return snap, err
}

func (q *QBittorrent) waitForCategory(ctx context.Context, category string) (Snapshot, error) {
	for {
		torrents, err := q.c.GetTorrentsCtx(ctx, qbittorrent.TorrentFilterOptions{
			Category: category,
		})
		if err != nil {
			return Snapshot{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		if len(torrents) > 0 {
			return qbitSnapshot(torrents[0]), nil
		}

		select {
		case <-ctx.Done():
			return Snapshot{}, fmt.Errorf("%w: added torrent never appeared", ErrUnavailable)
		case <-time.After(time.Second):
		}
	}
}

func (q *QBittorrent) Remove(ctx context.Context, id string, deleteData bool) error {
	ctx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()

	if err := q.c.DeleteTorrentsCtx(ctx, []string{id}, deleteData); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func qbitSnapshot(t qbittorrent.Torrent) Snapshot {
	var done *time.Time
	if t.CompletionOn > 0 {
		d := time.Unix(t.CompletionOn, 0).UTC()
		done = &d
	}

	s := Snapshot{
		ID:              t.Hash,
		Name:            t.Name,
		Status:          string(t.State),
		CompletedAt:     normalizeDoneDate(done),
		ProgressPercent: t.Progress * 100,
		DownloadRate:    t.DlSpeed,
		UploadRate:      t.UpSpeed,
		// qBittorrent does not split peer counts by direction the way the
		// facade reports them; seeds+leechers is shown for both.
		PeersDown: t.NumSeeds + t.NumLeechs,
		PeersUp:   t.NumSeeds + t.NumLeechs,
		Ratio:     t.Ratio,
	}
	if t.ETA > 0 {
		s.ETA = time.Duration(t.ETA) * time.Second
	}
	return s
}
