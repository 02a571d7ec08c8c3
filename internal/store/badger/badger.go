// Package badger stores chat messages in an embedded BadgerDB.
//
// Keys have the form "msg:{id, zero padded to 19 digits}". Ids come from a
// badger sequence, so a prefix scan walks messages in the order they were
// saved regardless of wall-clock jumps.
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/vovakirdan/lobbychat/internal/store"
)

var (
	messagePrefix = []byte("msg:")
	sequenceKey   = []byte("seq:messages")
)

const sequenceBandwidth = 128

// Store implements store.Store on top of BadgerDB.
type Store struct {
	db  *badger.DB
	seq *badger.Sequence
}

type record struct {
	ID        int64     `json:"id"`
	Sender    string    `json:"sender"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// New opens a badger database in dir. An empty dir keeps everything in memory.
func New(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}

	seq, err := db.GetSequence(sequenceKey, sequenceBandwidth)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("get sequence: %w", err)
	}

	return &Store{db: db, seq: seq}, nil
}

// Close releases the id sequence and closes the database.
func (s *Store) Close() error {
	return errors.Join(s.seq.Release(), s.db.Close())
}

func messageKey(id int64) []byte {
	return fmt.Appendf(nil, "%s%019d", messagePrefix, id)
}

// SaveMessage stores a message under a key ordered by its id.
func (s *Store) SaveMessage(ctx context.Context, msg *store.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	next, err := s.seq.Next()
	if err != nil {
		return fmt.Errorf("next id: %w", err)
	}

	rec := record{
		ID:        int64(next) + 1,
		Sender:    msg.Sender,
		Content:   msg.Content,
		CreatedAt: msg.CreatedAt.UTC(),
	}
	value, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	key := messageKey(rec.ID)
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	}); err != nil {
		return fmt.Errorf("put message: %w", err)
	}

	msg.ID = rec.ID
	return nil
}

// ListMessages walks the message prefix newest first and returns the result
// oldest first.
func (s *Store) ListMessages(ctx context.Context, limit int) ([]*store.Message, error) {
	var messages []*store.Message

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = messagePrefix

		it := txn.NewIterator(opts)
		defer it.Close()

		seek := append(slices.Clone(messagePrefix), 0xFF)
		for it.Seek(seek); it.ValidForPrefix(messagePrefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			if limit > 0 && len(messages) >= limit {
				break
			}

			var rec record
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
			}
			messages = append(messages, &store.Message{
				ID:        rec.ID,
				Sender:    rec.Sender,
				Content:   rec.Content,
				CreatedAt: rec.CreatedAt,
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	slices.Reverse(messages)
	return messages, nil
}

// ClearMessages deletes every message key in a single write batch.
func (s *Store) ClearMessages(ctx context.Context) (int64, error) {
	var keys [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = messagePrefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(messagePrefix); it.ValidForPrefix(messagePrefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("collect message keys: %w", err)
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, key := range keys {
		if err := wb.Delete(key); err != nil {
			return 0, fmt.Errorf("delete %s: %w", key, err)
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, fmt.Errorf("flush deletes: %w", err)
	}
	return int64(len(keys)), nil
}

// CountMessages counts message keys without fetching values.
func (s *Store) CountMessages(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = messagePrefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(messagePrefix); it.ValidForPrefix(messagePrefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return n, nil
}
