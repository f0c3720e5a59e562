// Package store persists which chat added which torrent. It is the only
// owner of that mapping; the torrent engine knows nothing about ownership.
package store

import (
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/dgraph-io/badger/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	dlog "github.com/verdel/torrent-telegram-bot/log"
)

const torrentRootKey = "/torrent/"

// Record is one ownership row: the chat that added a torrent and whether
// the download has completed. Complete only ever flips false to true.
type Record struct {
	Owner     int64
	TorrentID string
	Complete  bool
}

// Store is a badger-backed ownership table. Every method is a single
// badger transaction, safe to call from the request path and the
// reconciliation sweep concurrently.
type Store struct {
	db  *badger.DB
	log zerolog.Logger
}

func Open(path string) (*Store, error) {
	l := log.Logger.With().Str("component", "ownership-store").Logger()

	opts := badger.DefaultOptions(path).
		WithLogger(&dlog.Badger{L: l}).
		WithValueLogFileSize(1<<26 - 1)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("error opening ownership store: %w", err)
	}

	err = db.RunValueLogGC(0.5)
	if err != nil && err != badger.ErrNoRewrite {
		return nil, fmt.Errorf("error compacting ownership store: %w", err)
	}

	return &Store{
		db:  db,
		log: l,
	}, nil
}

// Record inserts an ownership row with the complete flag unset. Keyed by
// (torrent, owner), so recording the same pair twice is a no-op rather
// than a duplicate row.
func (s *Store) Record(owner int64, torrentID string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key(torrentID, owner)), []byte{0})
	})
	if err != nil {
		return fmt.Errorf("error recording torrent ownership: %w", err)
	}
	return s.db.Sync()
}

// ListByOwner returns every row belonging to the given chat, in no
// particular order.
func (s *Store) ListByOwner(owner int64) ([]Record, error) {
	var out []Record
	err := s.scan(func(r Record) {
		if r.Owner == owner {
			out = append(out, r)
		}
	})
	return out, err
}

// ListIncomplete returns every row whose torrent has not completed yet.
// Used only by the reconciliation sweep.
func (s *Store) ListIncomplete() ([]Record, error) {
	var out []Record
	err := s.scan(func(r Record) {
		if !r.Complete {
			out = append(out, r)
		}
	})
	return out, err
}

// Count returns the total number of ownership rows.
func (s *Store) Count() (int, error) {
	n := 0
	err := s.scan(func(Record) { n++ })
	return n, err
}

// MarkComplete flips the complete flag for every row tracking the torrent.
// Re-marking a complete torrent, or marking one with no rows left, is a
// no-op: reconciliation may race with an explicit delete.
func (s *Store) MarkComplete(torrentID string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(path.Join(torrentRootKey, torrentID) + "/")
		var keys [][]byte
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		for _, k := range keys {
			if err := txn.Set(k, []byte{1}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("error marking torrent complete: %w", err)
	}
	return s.db.Sync()
}

// Remove deletes every row tracking the torrent, then reclaims value log
// space. The reclaim runs after every delete, not batched: the store
// trades delete latency for staying small under churn.
func (s *Store) Remove(torrentID string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{PrefetchValues: false})
		defer it.Close()

		prefix := []byte(path.Join(torrentRootKey, torrentID) + "/")
		var keys [][]byte
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		for _, k := range keys {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("error removing torrent ownership: %w", err)
	}

	if err := s.db.Sync(); err != nil {
		return err
	}

	if err := s.db.RunValueLogGC(0.5); err != nil && err != badger.ErrNoRewrite {
		s.log.Warn().Err(err).Msg("value log GC after removal failed")
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) scan(fn func(Record)) error {
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(torrentRootKey)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			r, ok := parseKey(string(item.Key()))
			if !ok {
				s.log.Warn().Str("key", string(item.Key())).Msg("skipping malformed store key")
				continue
			}
			if err := item.Value(func(v []byte) error {
				r.Complete = len(v) > 0 && v[0] == 1
				return nil
			}); err != nil {
				return err
			}
			fn(r)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("error scanning ownership store: %w", err)
	}
	return nil
}

// key format: /torrent/<torrent_id>/<owner_chat_id>
func key(torrentID string, owner int64) string {
	return path.Join(torrentRootKey, torrentID, strconv.FormatInt(owner, 10))
}

func parseKey(k string) (Record, bool) {
	rest := strings.TrimPrefix(k, torrentRootKey)
	i := strings.LastIndex(rest, "/")
	if i <= 0 {
		return Record{}, false
	}
	owner, err := strconv.ParseInt(rest[i+1:], 10, 64)
	if err != nil {
		return Record{}, false
	}
	return Record{Owner: owner, TorrentID: rest[:i]}, true
}
