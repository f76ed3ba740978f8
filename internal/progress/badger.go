package progress

import (
	"context"
	"encoding/json/v2"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
)

const sessionPrefix = "progress:session:"

// BadgerStore persists sessions in a local Badger database so they survive restarts.
type BadgerStore struct {
	db     *badger.DB
	ttl    time.Duration
	logger *slog.Logger
}

// OpenBadgerStore opens (or creates) the session database at path.
// Entries expire after ttl as a backstop to Sweep; zero disables expiry.
func OpenBadgerStore(path string, ttl time.Duration, logger *slog.Logger) (*BadgerStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	opts.SyncWrites = true
	opts.CompactL0OnClose = true

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}

	logger.Info("badger session store opened", "path", path)
	return &BadgerStore{db: db, ttl: ttl, logger: logger}, nil
}

// Close closes the database.
func (b *BadgerStore) Close() error {
	return b.db.Close()
}

// Save implements SessionStore.
func (b *BadgerStore) Save(_ context.Context, s Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	return b.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(sessionPrefix+s.ID), data)
		if b.ttl > 0 {
			entry = entry.WithTTL(b.ttl)
		}
		return txn.SetEntry(entry)
	})
}

// Load implements SessionStore.
func (b *BadgerStore) Load(_ context.Context, id string) (*Session, error) {
	var s Session
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(sessionPrefix + id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &s)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	return &s, nil
}

// Delete implements SessionStore.
func (b *BadgerStore) Delete(_ context.Context, id string) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(sessionPrefix + id))
	})
}

// List implements SessionStore.
func (b *BadgerStore) List(_ context.Context) ([]Session, error) {
	var out []Session
	prefix := []byte(sessionPrefix)

	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var s Session
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &s)
			})
			if err != nil {
				b.logger.Warn("skipping unreadable session", "key", string(it.Item().Key()), "error", err)
				continue
			}
			out = append(out, s)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	sortSessions(out)
	return out, nil
}
