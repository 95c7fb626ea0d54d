package badger

import (
	"errors"
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/yaoapp/braid/datastore/kv"
	"github.com/yaoapp/braid/graph"
	"github.com/yaoapp/kun/log"
)

// Badger the badger graph datastore
type Badger struct {
	db   *badger.DB
	path string
}

// New open a badger datastore at path, an empty path opens an in-memory database
func New(path string) (*Badger, error) {
	var opts badger.Options
	if path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(path, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %v", path, err)
		}
		opts = badger.DefaultOptions(path)
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %v", err)
	}

	log.Trace("[badger] open %q", path)
	return &Badger{db: db, path: path}, nil
}

// Transaction open a read-write graph transaction
func (b *Badger) Transaction(accountID uuid.UUID) (graph.Transaction, error) {
	return kv.New(&txn{txn: b.db.NewTransaction(true)}, accountID), nil
}

// Close close the badger database
func (b *Badger) Close() error {
	return b.db.Close()
}

type txn struct {
	txn *badger.Txn
}

func (t *txn) Get(key string) ([]byte, error) {
	item, err := t.txn.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, kv.ErrKeyNotFound
	} else if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

func (t *txn) Set(key string, value []byte) error {
	return t.txn.Set([]byte(key), value)
}

func (t *txn) Delete(key string) error {
	return t.txn.Delete([]byte(key))
}

func (t *txn) Iterate(prefix string, seek string, fn func(key string, value []byte) (bool, error)) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(prefix)
	it := t.txn.NewIterator(opts)
	defer it.Close()

	for it.Seek([]byte(seek)); it.ValidForPrefix([]byte(prefix)); it.Next() {
		item := it.Item()
		value, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}

		next, err := fn(string(item.KeyCopy(nil)), value)
		if err != nil {
			return err
		}
		if !next {
			return nil
		}
	}
	return nil
}

func (t *txn) Commit() error {
	if err := t.txn.Commit(); err != nil {
		if errors.Is(err, badger.ErrConflict) {
			log.Warn("[badger] transaction conflict: %s", err.Error())
		}
		return err
	}
	return nil
}

func (t *txn) Discard() {
	t.txn.Discard()
}
