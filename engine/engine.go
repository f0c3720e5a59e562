// Package engine normalizes the two supported torrent daemons behind one
// capability set: list, get, add, remove.
package engine

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
	"time"
)

// Snapshot is a point-in-time read of a torrent's engine-reported state.
// It is never persisted.
type Snapshot struct {
	// ID is the backend identifier: an info hash for qBittorrent, a
	// numeric id rendered as a string for Transmission. Opaque to callers.
	ID     string
	Name   string
	Status string

	// CompletedAt is nil until the engine reports a completion timestamp.
	// Backends that use an epoch-zero sentinel for "never finished" are
	// normalized to nil here.
	CompletedAt *time.Time

	ProgressPercent float64
	DownloadRate    int64
	UploadRate      int64
	PeersDown       int64
	PeersUp         int64
	Ratio           float64
	ETA             time.Duration
}

// Complete reports whether the engine has recorded a completion time.
func (s Snapshot) Complete() bool {
	return s.CompletedAt != nil
}

// Downloading reports whether the torrent is actively downloading.
func (s Snapshot) Downloading() bool {
	return s.Status == StatusDownloading
}

// StatusDownloading is the only status value the core logic branches on.
// Everything else is display-only and passed through as the backend
// reports it.
const StatusDownloading = "downloading"

var (
	// ErrNotFound means the torrent no longer exists on the engine. This
	// is a normal outcome, not a fault: reconciliation uses it to prune
	// stale ownership records.
	ErrNotFound = errors.New("torrent not found on engine")

	// ErrUnavailable is a transport, auth or timeout fault. Never retried
	// automatically.
	ErrUnavailable = errors.New("torrent engine unavailable")

	// ErrAddRejected means the engine refused the submitted payload.
	// Terminal for that attempt.
	ErrAddRejected = errors.New("torrent add rejected by engine")
)

// Engine is the uniform facade over a torrent daemon. Implementations must
// impose their own per-call timeouts and surface expiry as ErrUnavailable.
type Engine interface {
	// List returns every torrent on the engine, or fails whole.
	List(ctx context.Context) ([]Snapshot, error)

	// Get returns the torrent with the given id, or ErrNotFound.
	Get(ctx context.Context, id string) (Snapshot, error)

	// Add submits raw .torrent content. When downloadDir is non-empty the
	// payload is downloaded there, otherwise to the engine default.
	Add(ctx context.Context, data []byte, downloadDir string) (Snapshot, error)

	// Remove deletes the torrent and, when deleteData is set, its
	// downloaded files.
	Remove(ctx context.Context, id string, deleteData bool) error
}

// normalizeDoneDate maps the backends' "never finished" representations
// (nil, zero time, epoch sentinel) to nil.
func normalizeDoneDate(t *time.Time) *time.Time {
	if t == nil || t.IsZero() || t.Unix() <= 0 {
		return nil
	}
	return t
}

const randomChars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func randomString(length int) string {
	b := make([]byte, length)
	for i := range b {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(randomChars))))
		if err != nil {
			// crypto/rand only fails when the platform source is broken;
			// fall back to a fixed char rather than aborting an add.
			b[i] = randomChars[0]
			continue
		}
		b[i] = randomChars[n.Int64()]
	}
	return string(b)
}
