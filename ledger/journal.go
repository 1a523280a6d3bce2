package ledger

import (
	"github.com/OdyseeTeam/lattice-wallet/blockchain"

	"github.com/cockroachdb/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

var blockPrefix = []byte("b")

// Journal persists cached blocks so a restarted wallet does not refetch its recent window
type Journal struct {
	db *leveldb.DB
}

func NewJournal(db *leveldb.DB) *Journal {
	return &Journal{db: db}
}

func blockKey(hash blockchain.Hash) []byte {
	return append(append([]byte{}, blockPrefix...), hash[:]...)
}

// value layout: 32-byte two's complement amount, then the encoded block
func (j *Journal) Put(hash blockchain.Hash, info *BlockInfo) error {
	data, err := blockchain.Encode(info.Block)
	if err != nil {
		return err
	}
	amount := info.Amount.Bytes32()
	value := append(amount[:], data...)
	return errors.WithStack(j.db.Put(blockKey(hash), value, nil))
}

func (j *Journal) Delete(hash blockchain.Hash) error {
	return errors.WithStack(j.db.Delete(blockKey(hash), nil))
}

// Iterate calls fn for every journaled block. Entries that fail to decode are skipped.
func (j *Journal) Iterate(fn func(blockchain.Hash, BlockInfo) error) error {
	iter := j.db.NewIterator(util.BytesPrefix(blockPrefix), nil)
	defer iter.Release()

	for iter.Next() {
		// Key and Value are only valid until the next call to Next
		key := iter.Key()
		value := iter.Value()
		if len(key) != len(blockPrefix)+blockchain.HashSize || len(value) < 32 {
			continue
		}

		var hash blockchain.Hash
		copy(hash[:], key[len(blockPrefix):])

		block, err := blockchain.Decode(value[32:])
		if err != nil || block.Hash() != hash {
			continue
		}

		info := BlockInfo{Block: block}
		info.Amount.SetBytes(value[:32])
		if err := fn(hash, info); err != nil {
			return err
		}
	}
	return errors.WithStack(iter.Error())
}
