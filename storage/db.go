package storage

import (
	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"
	"github.com/syndtr/goleveldb/leveldb"
	lerrors "github.com/syndtr/goleveldb/leveldb/errors"
	lstorage "github.com/syndtr/goleveldb/leveldb/storage"
)

// Memory opens a throwaway database when passed to Open
const Memory = ":memory:"

// Open returns a leveldb handle at path, or an in-memory one for Memory
func Open(path string) (*leveldb.DB, error) {
	var (
		db  *leveldb.DB
		err error
	)
	if path == Memory {
		db, err = leveldb.Open(lstorage.NewMemStorage(), nil)
	} else {
		db, err = leveldb.OpenFile(path, nil)
		if lerrors.IsCorrupted(err) {
			logrus.Warnf("recovering corrupted database at %s", path)
			db, err = leveldb.RecoverFile(path, nil)
		}
	}
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	return db, nil
}
