// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

// Package db defines the persistent storage used for swap state. State is
// stored as opaque blobs keyed by send-wallet address.
package db

import (
	"sync"

	"decred.org/multiswap/dex"
)

// ErrNotFound is returned by Get when no value is stored for the key.
const ErrNotFound = dex.ErrorKind("not found")

// KV is a key-value store.
type KV interface {
	// Get retrieves the value stored for the key. ErrNotFound is returned if
	// there is none.
	Get(key string) ([]byte, error)
	// Set stores the value, overwriting any existing value.
	Set(key string, value []byte) error
}

// DB is the application database.
type DB interface {
	dex.Runner
	KV
	// Keys lists the stored keys, most recently updated first.
	Keys() ([]string, error)
	// Delete removes the value for the key. Deleting a missing key is not an
	// error.
	Delete(key string) error
	// Backup makes a copy of the database in the backup directory.
	Backup() error
}

// MemKV is an in-memory KV.
type MemKV struct {
	mtx  sync.RWMutex
	vals map[string][]byte
}

var _ KV = (*MemKV)(nil)

// NewMemKV is a constructor for a *MemKV.
func NewMemKV() *MemKV {
	return &MemKV{vals: make(map[string][]byte)}
}

// Get retrieves a copy of the stored value.
func (kv *MemKV) Get(key string) ([]byte, error) {
	kv.mtx.RLock()
	defer kv.mtx.RUnlock()
	v, found := kv.vals[key]
	if !found {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

// Set stores a copy of the value.
func (kv *MemKV) Set(key string, value []byte) error {
	kv.mtx.Lock()
	kv.vals[key] = append([]byte(nil), value...)
	kv.mtx.Unlock()
	return nil
}
