// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package bolt

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	dexdb "decred.org/multiswap/client/db"
	"decred.org/multiswap/dex"
	"go.etcd.io/bbolt"
)

// Bolt works on []byte keys and values. These are some commonly used key and
// value encodings.
var (
	appBucket     = []byte("appBucket")
	stateBucket   = []byte("swapState")
	versionKey    = []byte("version")
	stateKey      = []byte("state")
	updateTimeKey = []byte("utime")
	backupDir     = "backup"
)

// BoltDB is a bbolt-based database backend for swap state. BoltDB satisfies
// the db.DB interface. Each key gets a nested bucket in the state bucket
// holding the value and its update time.
type BoltDB struct {
	*bbolt.DB
	log dex.Logger
}

// Check that BoltDB satisfies the db.DB interface.
var _ dexdb.DB = (*BoltDB)(nil)

// NewDB is a constructor for a *BoltDB.
func NewDB(dbPath string, logger dex.Logger) (*BoltDB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("error creating database directory: %w", err)
	}
	bdb, err := bbolt.Open(dbPath, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}

	boltDB := &BoltDB{
		DB:  bdb,
		log: logger,
	}
	if err := boltDB.makeTopLevelBuckets([][]byte{appBucket, stateBucket}); err != nil {
		bdb.Close()
		return nil, err
	}
	if err := upgradeDB(bdb, logger); err != nil {
		bdb.Close()
		return nil, err
	}
	return boltDB, nil
}

// Run waits for context cancellation and closes the database.
func (db *BoltDB) Run(ctx context.Context) {
	<-ctx.Done()
	if err := db.Backup(); err != nil {
		db.log.Errorf("Unable to backup database: %v", err)
	}
	if err := db.Close(); err != nil {
		db.log.Errorf("Error closing database: %v", err)
	}
}

// Get retrieves the value stored for the key.
func (db *BoltDB) Get(k string) ([]byte, error) {
	var v []byte
	return v, db.stateView(func(states *bbolt.Bucket) error {
		bkt := states.Bucket([]byte(k))
		if bkt == nil {
			return dex.NewError(dexdb.ErrNotFound, k)
		}
		b := bkt.Get(stateKey)
		if b == nil {
			return dex.NewError(dexdb.ErrNotFound, k)
		}
		v = append([]byte(nil), b...)
		return nil
	})
}

// Set stores the value at the key, along with the current time.
func (db *BoltDB) Set(k string, v []byte) error {
	if len(k) == 0 {
		return fmt.Errorf("cannot store with empty key")
	}
	return db.stateUpdate(func(states *bbolt.Bucket) error {
		bkt, err := states.CreateBucketIfNotExists([]byte(k))
		if err != nil {
			return fmt.Errorf("error creating bucket for %s: %w", k, err)
		}
		return newBucketPutter(bkt).
			put(stateKey, v).
			put(updateTimeKey, uint64Bytes(uint64(time.Now().UnixMilli()))).
			err()
	})
}

// Delete deletes the value at the key.
func (db *BoltDB) Delete(k string) error {
	return db.stateUpdate(func(states *bbolt.Bucket) error {
		if states.Bucket([]byte(k)) == nil {
			return nil
		}
		return states.DeleteBucket([]byte(k))
	})
}

// Keys lists the stored keys, most recently updated first.
func (db *BoltDB) Keys() ([]string, error) {
	type keyTime struct {
		k string
		t uint64
	}
	var pairs []keyTime
	err := db.stateView(func(states *bbolt.Bucket) error {
		return states.ForEach(func(k, _ []byte) error {
			bkt := states.Bucket(k)
			if bkt == nil {
				return fmt.Errorf("state %s value not a nested bucket", string(k))
			}
			var t uint64
			if b := bkt.Get(updateTimeKey); len(b) == 8 {
				t = binary.BigEndian.Uint64(b)
			}
			pairs = append(pairs, keyTime{string(k), t})
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(pairs, func(i, j int) bool {
		return pairs[i].t > pairs[j].t
	})
	keys := make([]string, 0, len(pairs))
	for _, p := range pairs {
		keys = append(keys, p.k)
	}
	return keys, nil
}

// stateView is a convenience function for reading from the state bucket.
func (db *BoltDB) stateView(f bucketFunc) error {
	return db.withBucket(stateBucket, db.View, f)
}

// stateUpdate is a convenience function for updating the state bucket.
func (db *BoltDB) stateUpdate(f bucketFunc) error {
	return db.withBucket(stateBucket, db.Update, f)
}

// makeTopLevelBuckets creates a top-level bucket for each of the provided keys,
// if the bucket doesn't already exist.
func (db *BoltDB) makeTopLevelBuckets(buckets [][]byte) error {
	return db.Update(func(tx *bbolt.Tx) error {
		for _, bucket := range buckets {
			_, err := tx.CreateBucketIfNotExists(bucket)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// withBucket is a creates a view into a (probably nested) bucket. The viewer
// can be read-only (db.View), or read-write (db.Update). The provided
// bucketFunc will be called with the requested bucket as its only argument.
func (db *BoltDB) withBucket(bkt []byte, viewer txFunc, f bucketFunc) error {
	return viewer(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bkt)
		if bucket == nil {
			return fmt.Errorf("failed to open %s bucket", string(bkt))
		}
		return f(bucket)
	})
}

// Backup makes a copy of the database.
func (db *BoltDB) Backup() error {
	dir := filepath.Join(filepath.Dir(db.Path()), backupDir)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("unable to create backup directory: %w", err)
	}
	path := filepath.Join(dir, filepath.Base(db.Path()))
	return db.View(func(tx *bbolt.Tx) error {
		return tx.CopyFile(path, 0600)
	})
}

// bucketPutter enables chained calls to (*bbolt.Bucket).Put with error
// deferment.
type bucketPutter struct {
	bucket *bbolt.Bucket
	putErr error
}

// newBucketPutter is a constructor for a bucketPutter.
func newBucketPutter(bkt *bbolt.Bucket) *bucketPutter {
	return &bucketPutter{bucket: bkt}
}

// put calls Put on the underlying bucket. If an error has been encountered in a
// previous call to put, nothing is done.
func (bp *bucketPutter) put(k, v []byte) *bucketPutter {
	if bp.putErr != nil {
		return bp
	}
	bp.putErr = bp.bucket.Put(k, v)
	return bp
}

// Return any put error encountered.
func (bp *bucketPutter) err() error {
	return bp.putErr
}

func uint32Bytes(i uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, i)
	return b
}

func uint64Bytes(i uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, i)
	return b
}

// A couple of common bbolt functions.
type bucketFunc func(*bbolt.Bucket) error
type txFunc func(func(*bbolt.Tx) error) error
