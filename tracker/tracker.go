// Package tracker reconciles the access policy, the ownership store and
// live engine state: it serves scope-gated list/add/delete requests and
// runs the background completion sweep.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/verdel/torrent-telegram-bot/config"
	"github.com/verdel/torrent-telegram-bot/engine"
	"github.com/verdel/torrent-telegram-bot/policy"
	"github.com/verdel/torrent-telegram-bot/store"
)

// ErrDenied means the chat's scope does not cover the requested operation.
var ErrDenied = errors.New("access denied")

// Ownership is the slice of the store the tracker needs.
type Ownership interface {
	Record(owner int64, torrentID string) error
	ListByOwner(owner int64) ([]store.Record, error)
	ListIncomplete() ([]store.Record, error)
	MarkComplete(torrentID string) error
	Remove(torrentID string) error
}

// Notifier receives completion events detected by the sweep.
type Notifier interface {
	Completed(owner int64, torrentName string)
}

type Tracker struct {
	engine   engine.Engine
	store    Ownership
	entries  []*config.AllowChat
	paths    []*config.ClientPath
	notifier Notifier
	log      zerolog.Logger
}

func New(eng engine.Engine, st Ownership, entries []*config.AllowChat, paths []*config.ClientPath, n Notifier) *Tracker {
	return &Tracker{
		engine:   eng,
		store:    st,
		entries:  entries,
		paths:    paths,
		notifier: n,
		log:      log.Logger.With().Str("component", "tracker").Logger(),
	}
}

// List returns the torrents the chat may see. Scope all reads the whole
// engine; scope personal resolves the chat's ownership records against the
// engine, silently skipping records whose torrent vanished.
func (t *Tracker) List(ctx context.Context, chatID int64, downloadingOnly bool) ([]engine.Snapshot, error) {
	var torrents []engine.Snapshot

	switch policy.ResolveScope(t.entries, chatID) {
	case policy.ScopeAll:
		all, err := t.engine.List(ctx)
		if err != nil {
			return nil, err
		}
		torrents = all

	case policy.ScopePersonal:
		records, err := t.store.ListByOwner(chatID)
		if err != nil {
			return nil, err
		}
		for _, r := range records {
			snap, err := t.engine.Get(ctx, r.TorrentID)
			if errors.Is(err, engine.ErrNotFound) {
				continue
			}
			if err != nil {
				return nil, err
			}
			torrents = append(torrents, snap)
		}

	default:
		return nil, ErrDenied
	}

	if !downloadingOnly {
		return torrents, nil
	}

	out := torrents[:0]
	for _, s := range torrents {
		if s.Downloading() {
			out = append(out, s)
		}
	}
	return out, nil
}

// Get returns a single torrent by id, gated on scope. Used for the delete
// confirmation prompt.
func (t *Tracker) Get(ctx context.Context, chatID int64, torrentID string) (engine.Snapshot, error) {
	if policy.ResolveScope(t.entries, chatID) == policy.ScopeNone {
		return engine.Snapshot{}, ErrDenied
	}
	return t.engine.Get(ctx, torrentID)
}

// Add submits torrent content to the engine and records ownership. When
// the chat has a category allow-list, the destination must map to an
// allowed category. An engine add that succeeds but fails to record leaves
// the torrent live yet untracked; that window is logged, not rolled back.
func (t *Tracker) Add(ctx context.Context, chatID int64, data []byte, downloadDir string) (engine.Snapshot, error) {
	if policy.ResolveScope(t.entries, chatID) == policy.ScopeNone {
		return engine.Snapshot{}, ErrDenied
	}
	if !t.dirAllowed(chatID, downloadDir) {
		return engine.Snapshot{}, fmt.Errorf("%w: category not allowed for this chat", ErrDenied)
	}

	snap, err := t.engine.Add(ctx, data, downloadDir)
	if err != nil {
		return engine.Snapshot{}, err
	}

	if err := t.store.Record(chatID, snap.ID); err != nil {
		t.log.Error().Err(err).Int64("chat_id", chatID).Str("torrent_id", snap.ID).
			Msg("torrent added to engine but ownership record failed; torrent is live but untracked")
		return snap, err
	}

	t.log.Info().Int64("chat_id", chatID).Str("torrent_id", snap.ID).
		Str("name", snap.Name).Str("download_dir", downloadDir).
		Msg("torrent added to download queue")
	return snap, nil
}

// Delete removes the torrent and its data from the engine and drops every
// ownership record for it, whether or not the calling chat owns it (an
// all-scope chat may delete anything it can list). Returns the torrent
// name when it could still be fetched, for the confirmation message.
func (t *Tracker) Delete(ctx context.Context, chatID int64, torrentID string) (string, error) {
	if policy.ResolveScope(t.entries, chatID) == policy.ScopeNone {
		return "", ErrDenied
	}

	// best-effort: the name only feeds the confirmation text
	var name string
	if snap, err := t.engine.Get(ctx, torrentID); err == nil {
		name = snap.Name
	}

	if err := t.engine.Remove(ctx, torrentID, true); err != nil {
		return name, err
	}

	if err := t.store.Remove(torrentID); err != nil {
		return name, err
	}

	t.log.Info().Int64("chat_id", chatID).Str("torrent_id", torrentID).
		Str("name", name).Msg("torrent deleted")
	return name, nil
}

// Run executes the reconciliation sweep every interval until ctx is
// cancelled. Sweeps never overlap: the next one starts only after the
// previous returns. Cancellation is honored between records, so an
// in-flight record finishes rather than being aborted mid-row.
func (t *Tracker) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	t.log.Info().Dur("interval", interval).Msg("starting download status check")
	for {
		select {
		case <-ctx.Done():
			t.log.Info().Msg("stopping download status check")
			return
		case <-ticker.C:
			t.Reconcile(ctx)
		}
	}
}

// Reconcile runs one sweep: every incomplete record is checked against the
// engine. A vanished torrent prunes its records without notification; a
// completion timestamp marks them complete and triggers the fan-out.
// Per-record failures are logged and the sweep moves on.
func (t *Tracker) Reconcile(ctx context.Context) {
	records, err := t.store.ListIncomplete()
	if err != nil {
		t.log.Error().Err(err).Msg("error listing incomplete torrents")
		return
	}

	for _, r := range records {
		if ctx.Err() != nil {
			return
		}

		snap, err := t.engine.Get(ctx, r.TorrentID)
		if errors.Is(err, engine.ErrNotFound) {
			// removed behind our back; stop tracking it
			if err := t.store.Remove(r.TorrentID); err != nil {
				t.log.Error().Err(err).Str("torrent_id", r.TorrentID).
					Msg("error pruning vanished torrent")
			}
			continue
		}
		if err != nil {
			t.log.Warn().Err(err).Str("torrent_id", r.TorrentID).
				Msg("error checking torrent status")
			continue
		}

		if !snap.Complete() {
			continue
		}

		if err := t.store.MarkComplete(r.TorrentID); err != nil {
			t.log.Error().Err(err).Str("torrent_id", r.TorrentID).
				Msg("error marking torrent complete")
			continue
		}

		if t.notifier != nil {
			t.notifier.Completed(r.Owner, snap.Name)
		}
	}
}

func (t *Tracker) dirAllowed(chatID int64, dir string) bool {
	allowed := policy.ResolveAllowedCategories(t.entries, chatID)
	if allowed == nil {
		return true
	}
	for _, p := range t.paths {
		if p.Dir == dir && policy.CategoryAllowed(t.entries, chatID, p.Category) {
			return true
		}
	}
	return false
}
