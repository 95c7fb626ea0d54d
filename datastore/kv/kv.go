// Package kv implements graph.Transaction on top of an ordered key-value transaction.
//
// Key layout:
//
//	v/<id>                              vertex
//	e/<outbound>/<type>/<inbound>       edge
//	r/<inbound>/<type>/<outbound>       reversed edge index
//	m/g/<key>                           global metadata
//	m/a/<account>/<key>                 account metadata
//	m/v/<id>/<key>                      vertex metadata
//	m/e/<outbound>/<type>/<inbound>/<key> edge metadata
package kv

import (
	"errors"
)

// ErrKeyNotFound the key does not exist in the store
var ErrKeyNotFound = errors.New("key not found")

// Txn a read-write transaction of an ordered key-value store
type Txn interface {
	// Get returns ErrKeyNotFound when the key does not exist
	Get(key string) ([]byte, error)
	Set(key string, value []byte) error
	Delete(key string) error

	// Iterate walks the keys having the prefix, in ascending order, starting at seek.
	// The callback must not modify the transaction.
	Iterate(prefix string, seek string, fn func(key string, value []byte) (bool, error)) error

	Commit() error
	Discard()
}
