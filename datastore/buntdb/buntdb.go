package buntdb

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/tidwall/buntdb"
	"github.com/yaoapp/braid/datastore/kv"
	"github.com/yaoapp/braid/graph"
	"github.com/yaoapp/kun/log"
)

// BuntDB the buntdb graph datastore, writers are serialized by the database lock
type BuntDB struct {
	db *buntdb.DB
}

// New open a buntdb datastore. The data file is used when its directory exists,
// otherwise (or when datafile is empty) the database lives in memory.
func New(datafile string) (*BuntDB, error) {
	if datafile != "" && datafile != ":memory:" {
		if _, err := os.Stat(filepath.Dir(datafile)); err == nil {
			db, err := buntdb.Open(datafile)
			if err != nil {
				return nil, err
			}
			return &BuntDB{db: db}, nil
		}
		log.Warn("[buntdb] %s directory does not exist, using memory", datafile)
	}

	db, err := buntdb.Open(":memory:")
	if err != nil {
		return nil, err
	}
	return &BuntDB{db: db}, nil
}

// Transaction open a read-write graph transaction
func (bunt *BuntDB) Transaction(accountID uuid.UUID) (graph.Transaction, error) {
	tx, err := bunt.db.Begin(true)
	if err != nil {
		return nil, graph.Unexpected(err)
	}
	return kv.New(&txn{tx: tx}, accountID), nil
}

// Close close the database
func (bunt *BuntDB) Close() error {
	return bunt.db.Close()
}

type txn struct {
	tx     *buntdb.Tx
	closed bool
}

func (t *txn) Get(key string) ([]byte, error) {
	value, err := t.tx.Get(key)
	if errors.Is(err, buntdb.ErrNotFound) {
		return nil, kv.ErrKeyNotFound
	} else if err != nil {
		return nil, err
	}
	return []byte(value), nil
}

func (t *txn) Set(key string, value []byte) error {
	_, _, err := t.tx.Set(key, string(value), nil)
	return err
}

func (t *txn) Delete(key string) error {
	_, err := t.tx.Delete(key)
	if errors.Is(err, buntdb.ErrNotFound) {
		return kv.ErrKeyNotFound
	}
	return err
}

func (t *txn) Iterate(prefix string, seek string, fn func(key string, value []byte) (bool, error)) error {
	var failure error
	err := t.tx.AscendGreaterOrEqual("", seek, func(key, value string) bool {
		if !strings.HasPrefix(key, prefix) {
			return false
		}
		next, err := fn(key, []byte(value))
		if err != nil {
			failure = err
			return false
		}
		return next
	})
	if err != nil {
		return err
	}
	return failure
}

func (t *txn) Commit() error {
	t.closed = true
	return t.tx.Commit()
}

func (t *txn) Discard() {
	if t.closed {
		return
	}
	t.closed = true
	if err := t.tx.Rollback(); err != nil {
		log.Error("[buntdb] rollback: %s", err.Error())
	}
}
