package engine

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/hekmon/transmissionrpc/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var _ Engine = &Transmission{}

// Transmission adapts a Transmission daemon to the Engine facade over its
// RPC interface. Torrent ids are numeric on the wire and rendered as
// opaque strings here.
type Transmission struct {
	c       *transmissionrpc.Client
	timeout time.Duration
	log     zerolog.Logger
}

func NewTransmission(address string, port int, user, password string, timeout time.Duration) (*Transmission, error) {
	endpoint := &url.URL{
		Scheme: "http",
		Host:   fmt.Sprintf("%s:%d", address, port),
		Path:   "/transmission/rpc",
	}
	if user != "" {
		endpoint.User = url.UserPassword(user, password)
	}

	c, err := transmissionrpc.New(endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating transmission client: %w", err)
	}

	return &Transmission{
		c:       c,
		timeout: timeout,
		log:     log.Logger.With().Str("component", "transmission").Logger(),
	}, nil
}

var transmissionFields = []string{
	"id", "name", "doneDate", "status", "eta", "percentDone",
	"rateDownload", "rateUpload", "peersSendingToUs", "peersGettingFromUs",
	"uploadRatio",
}

func (t *Transmission) List(ctx context.Context) ([]Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	torrents, err := t.c.TorrentGet(ctx, transmissionFields, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	out := make([]Snapshot, 0, len(torrents))
	for _, tr := range torrents {
		out = append(out, transmissionSnapshot(tr))
	}
	return out, nil
}

func (t *Transmission) Get(ctx context.Context, id string) (Snapshot, error) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		// a non-numeric id can never exist on this backend
		return Snapshot{}, ErrNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	torrents, err := t.c.TorrentGet(ctx, transmissionFields, []int64{n})
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(torrents) == 0 {
		return Snapshot{}, ErrNotFound
	}

	return transmissionSnapshot(torrents[0]), nil
}

func (t *Transmission) Add(ctx context.Context, data []byte, downloadDir string) (Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	meta := base64.StdEncoding.EncodeToString(data)
	payload := transmissionrpc.TorrentAddPayload{MetaInfo: &meta}
	if downloadDir != "" {
		payload.DownloadDir = &downloadDir
	}

	added, err := t.c.TorrentAdd(ctx, payload)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Snapshot{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return Snapshot{}, fmt.Errorf("%w: %v", ErrAddRejected, err)
	}
	if added.ID == nil {
		return Snapshot{}, fmt.Errorf("%w: no id in add response", ErrAddRejected)
	}

	// torrent-add only returns id, name and hash; re-fetch for real
	// telemetry. A miss here is a race with an external removal, in which
	// case the minimal snapshot is still usable.
	snap, err := t.Get(ctx, strconv.FormatInt(*added.ID, 10))
	if err != nil {
		t.log.Debug().Err(err).Msg("could not re-fetch freshly added torrent")
		return transmissionSnapshot(added), nil
	}
	return snap, nil
}

func (t *Transmission) Remove(ctx context.Context, id string, deleteData bool) error {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return ErrNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	err = t.c.TorrentRemove(ctx, transmissionrpc.TorrentRemovePayload{
		IDs:             []int64{n},
		DeleteLocalData: deleteData,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func transmissionSnapshot(t transmissionrpc.Torrent) Snapshot {
	s := Snapshot{
		CompletedAt: normalizeDoneDate(t.DoneDate),
	}

	if t.ID != nil {
		s.ID = strconv.FormatInt(*t.ID, 10)
	}
	if t.Name != nil {
		s.Name = *t.Name
	}
	if t.Status != nil {
		s.Status = transmissionStatus(*t.Status)
	}
	if t.PercentDone != nil {
		s.ProgressPercent = *t.PercentDone * 100
	}
	if t.RateDownload != nil {
		s.DownloadRate = *t.RateDownload
	}
	if t.RateUpload != nil {
		s.UploadRate = *t.RateUpload
	}
	if t.PeersSendingToUs != nil {
		s.PeersDown = *t.PeersSendingToUs
	}
	if t.PeersGettingFromUs != nil {
		s.PeersUp = *t.PeersGettingFromUs
	}
	if t.UploadRatio != nil {
		s.Ratio = *t.UploadRatio
	}
	if t.ETA != nil && *t.ETA > 0 {
		s.ETA = time.Duration(*t.ETA) * time.Second
	}

	return s
}

func transmissionStatus(st transmissionrpc.TorrentStatus) string {
	switch st {
	case transmissionrpc.TorrentStatusStopped:
		return "stopped"
	case transmissionrpc.TorrentStatusCheckWait, transmissionrpc.TorrentStatusCheck:
		return "checking"
	case transmissionrpc.TorrentStatusDownloadWait, transmissionrpc.TorrentStatusSeedWait:
		return "queued"
	case transmissionrpc.TorrentStatusDownload:
		return StatusDownloading
	case transmissionrpc.TorrentStatusSeed:
		return "seeding"
	case transmissionrpc.TorrentStatusIsolated:
		return "isolated"
	default:
		return "unknown"
	}
}
