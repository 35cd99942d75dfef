// Package legacy reads documents left behind by the previous embedded store,
// a Badger database holding one JSON record per "doc:<id>" key.
package legacy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"loandocs/api/internal/document"
)

const keyPrefix = "doc:"

type Store struct {
	db *badger.DB
}

// Item is one legacy entry. Err is set when the value could not be decoded.
type Item struct {
	Key    string
	Record document.Record
	Err    error
}

func Open(path string) (*Store, error) {
	db, err := badger.Open(badger.DefaultOptions(path).WithLoggingLevel(badger.WARNING))
	if err != nil {
		return nil, fmt.Errorf("open legacy store: %w", err)
	}
	return &Store{db: db}, nil
}

func OpenInMemory() (*Store, error) {
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLoggingLevel(badger.WARNING))
	if err != nil {
		return nil, fmt.Errorf("open legacy store: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Put writes a record in the legacy layout.
func (s *Store) Put(rec document.Record) error {
	data, err := json.Marshal(rec.ForRemote())
	if err != nil {
		return fmt.Errorf("marshal legacy document: %w", err)
	}
	return s.PutRaw(rec.ID, data)
}

func (s *Store) PutRaw(id string, value []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keyPrefix+id), value)
	})
}

func (s *Store) Get(id string) (document.Record, error) {
	var rec document.Record
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return document.Record{}, document.ErrNotFound
	}
	if err != nil {
		return document.Record{}, fmt.Errorf("get legacy document %s: %w", id, err)
	}
	return rec, nil
}

// ReadAll returns every legacy document in key order. Entries that fail to
// decode are returned with Err set so the caller can count them.
func (s *Store) ReadAll(ctx context.Context) ([]Item, error) {
	var items []Item
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			key := string(item.KeyCopy(nil))
			out := Item{Key: key}
			err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &out.Record)
			})
			if err != nil {
				out.Err = fmt.Errorf("decode %s: %w", key, err)
			} else if out.Record.ID == "" {
				out.Record.ID = key[len(keyPrefix):]
			}
			items = append(items, out)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read legacy documents: %w", err)
	}
	return items, nil
}
