// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package bolt

import (
	"encoding/binary"
	"fmt"
	"time"

	"decred.org/multiswap/dex"
	"go.etcd.io/bbolt"
)

const (
	initialVersion = 0

	// versionedDBVersion is the second version of the database. It versions
	// the database by persisting the version.
	versionedDBVersion = 1

	// stateTimeVersion stamps every stored state with an update time so that
	// keys can be listed by recency.
	stateTimeVersion = 2

	// DBVersion is the latest version of the database that is understood by the
	// program. Databases with recorded versions higher than this will fail to
	// open (meaning any upgrades prevent reverting to older software).
	DBVersion = stateTimeVersion
)

// upgrades are keyed by the database version they upgrade from.
var upgrades = [...]func(tx *bbolt.Tx) error{
	initialVersion:     versionedDBUpgrade,
	versionedDBVersion: stateTimeUpgrade,
}

func fetchDBVersion(tx *bbolt.Tx) (uint32, error) {
	bucket := tx.Bucket(appBucket)
	if bucket == nil {
		return 0, fmt.Errorf("app bucket not found")
	}
	versionB := bucket.Get(versionKey)
	if versionB == nil {
		return 0, fmt.Errorf("database version not found")
	}
	return binary.BigEndian.Uint32(versionB), nil
}

func setDBVersion(tx *bbolt.Tx, newVersion uint32) error {
	bucket := tx.Bucket(appBucket)
	if bucket == nil {
		return fmt.Errorf("app bucket not found")
	}
	return bucket.Put(versionKey, uint32Bytes(newVersion))
}

// upgradeDB checks whether any upgrades are necessary before the database is
// ready for application usage. If any are, they are performed.
func upgradeDB(db *bbolt.DB, log dex.Logger) error {
	var version uint32
	err := db.View(func(tx *bbolt.Tx) error {
		var err error
		version, err = fetchDBVersion(tx)
		if err != nil {
			// Unversioned.
			version = initialVersion
		}
		return nil
	})
	if err != nil {
		return err
	}

	if version > DBVersion {
		return fmt.Errorf("unknown database version %d, "+
			"client recognizes up to %d", version, DBVersion)
	}

	if version == DBVersion {
		return nil
	}

	log.Infof("Upgrading database from version %d to %d", version, DBVersion)

	return db.Update(func(tx *bbolt.Tx) error {
		// Execute all necessary upgrades in order.
		for _, upgrade := range upgrades[version:] {
			if err := upgrade(tx); err != nil {
				return err
			}
		}
		return nil
	})
}

func versionedDBUpgrade(dbtx *bbolt.Tx) error {
	const oldVersion = 0
	const newVersion = 1

	if _, err := fetchDBVersion(dbtx); err == nil {
		return fmt.Errorf("versionedDBUpgrade inappropriately called for version %d database", oldVersion)
	}
	return setDBVersion(dbtx, newVersion)
}

func stateTimeUpgrade(dbtx *bbolt.Tx) error {
	const oldVersion = 1
	const newVersion = 2

	dbVersion, err := fetchDBVersion(dbtx)
	if err != nil {
		return fmt.Errorf("error fetching database version: %w", err)
	}
	if dbVersion != oldVersion {
		return fmt.Errorf("stateTimeUpgrade inappropriately called")
	}

	states := dbtx.Bucket(stateBucket)
	if states == nil {
		return fmt.Errorf("state bucket not found")
	}
	stamp := uint64Bytes(uint64(time.Now().UnixMilli()))
	err = states.ForEach(func(k, _ []byte) error {
		bkt := states.Bucket(k)
		if bkt == nil || bkt.Get(updateTimeKey) != nil {
			return nil
		}
		return bkt.Put(updateTimeKey, stamp)
	})
	if err != nil {
		return err
	}
	return setDBVersion(dbtx, newVersion)
}
