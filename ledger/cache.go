package ledger

import (
	"github.com/OdyseeTeam/lattice-wallet/blockchain"

	"github.com/holiman/uint256"
	"github.com/sirupsen/logrus"
)

// BlockInfo is a cached block with the transfer amount it implies and, once known, the hash of
// the block that follows it
type BlockInfo struct {
	Block     *blockchain.Block
	Amount    uint256.Int // signed, negative for outgoing
	Successor blockchain.Hash
}

func (i BlockInfo) HasSuccessor() bool { return !i.Successor.IsZero() }

// Cache is the in-memory view of every block the wallet has observed. It is not safe for
// concurrent use; all access happens on the synchronizer loop.
type Cache struct {
	blocks      map[blockchain.Hash]*BlockInfo
	children    map[blockchain.Hash]blockchain.Hash // previous -> hash
	receivables map[blockchain.Account][]Receivable
	receiving   map[blockchain.Hash]struct{}

	journal *Journal
	onPutFn func(info BlockInfo)
}

func NewCache() *Cache {
	return &Cache{
		blocks:      make(map[blockchain.Hash]*BlockInfo),
		children:    make(map[blockchain.Hash]blockchain.Hash),
		receivables: make(map[blockchain.Account][]Receivable),
		receiving:   make(map[blockchain.Hash]struct{}),
	}
}

// WithJournal makes every put and delete write through to j
func (c *Cache) WithJournal(j *Journal) *Cache {
	c.journal = j
	return c
}

func (c *Cache) OnPut(fn func(BlockInfo)) {
	c.onPutFn = fn
}

// PutBlock stores a block, linking it to its cached predecessor and successor
func (c *Cache) PutBlock(hash blockchain.Hash, block *blockchain.Block, amount uint256.Int, successor blockchain.Hash) {
	if successor.IsZero() {
		if child, ok := c.children[hash]; ok {
			if _, cached := c.blocks[child]; cached {
				successor = child
			}
		}
	}

	info := &BlockInfo{Block: block, Amount: amount, Successor: successor}
	c.blocks[hash] = info

	if block.Height > 0 {
		c.children[block.Previous] = hash
		if prev, ok := c.blocks[block.Previous]; ok {
			prev.Successor = hash
		}
	}

	if c.journal != nil {
		if err := c.journal.Put(hash, info); err != nil {
			logrus.Errorf("journal put %s: %+v", hash, err)
		}
	}
	if c.onPutFn != nil {
		c.onPutFn(*info)
	}
}

func (c *Cache) GetBlock(hash blockchain.Hash) (BlockInfo, bool) {
	info, ok := c.blocks[hash]
	if !ok {
		return BlockInfo{}, false
	}
	return *info, true
}

func (c *Cache) HasBlock(hash blockchain.Hash) bool {
	_, ok := c.blocks[hash]
	return ok
}

// DelBlock removes a block and clears the successor link its predecessor had to it
func (c *Cache) DelBlock(hash blockchain.Hash) {
	info, ok := c.blocks[hash]
	if !ok {
		return
	}
	delete(c.blocks, hash)

	prevHash := info.Block.Previous
	if c.children[prevHash] == hash {
		delete(c.children, prevHash)
	}
	if prev, ok := c.blocks[prevHash]; ok && prev.Successor == hash {
		prev.Successor = blockchain.ZeroHash
	}

	if c.journal != nil {
		if err := c.journal.Delete(hash); err != nil {
			logrus.Errorf("journal delete %s: %+v", hash, err)
		}
	}
}

func (c *Cache) Len() int { return len(c.blocks) }

// Warm loads every journaled block back into memory
func (c *Cache) Warm() (int, error) {
	if c.journal == nil {
		return 0, nil
	}
	journal := c.journal
	c.journal = nil
	defer func() { c.journal = journal }()

	n := 0
	err := journal.Iterate(func(hash blockchain.Hash, info BlockInfo) error {
		c.PutBlock(hash, info.Block, info.Amount, blockchain.ZeroHash)
		n++
		return nil
	})
	return n, err
}

// SetReceiving marks a receivable as claimed by a local, not yet confirmed, receive
func (c *Cache) SetReceiving(link blockchain.Hash) {
	c.receiving[link] = struct{}{}
}

func (c *Cache) IsReceiving(link blockchain.Hash) bool {
	_, ok := c.receiving[link]
	return ok
}

func (c *Cache) ReleaseReceiving(link blockchain.Hash) {
	delete(c.receiving, link)
}
