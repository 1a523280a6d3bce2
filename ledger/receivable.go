package ledger

import (
	"github.com/OdyseeTeam/lattice-wallet/blockchain"

	"github.com/holiman/uint256"
)

// Receivable is an incoming transfer that no receive block has claimed yet
type Receivable struct {
	Source    blockchain.Account
	Amount    uint256.Int
	Hash      blockchain.Hash // the send block
	Timestamp uint64
}

// AddReceivable inserts r keeping the account's list ordered largest amount first.
// Returns false if a receivable with the same source hash is already listed.
func (c *Cache) AddReceivable(account blockchain.Account, r Receivable) bool {
	list := c.receivables[account]
	for _, existing := range list {
		if existing.Hash == r.Hash {
			return false
		}
	}

	i := len(list)
	for n := range list {
		if r.Amount.Gt(&list[n].Amount) {
			i = n
			break
		}
	}

	list = append(list, Receivable{})
	copy(list[i+1:], list[i:])
	list[i] = r
	c.receivables[account] = list
	return true
}

func (c *Cache) DelReceivable(account blockchain.Account, hash blockchain.Hash) bool {
	list := c.receivables[account]
	for n := range list {
		if list[n].Hash == hash {
			c.receivables[account] = append(list[:n], list[n+1:]...)
			if len(c.receivables[account]) == 0 {
				delete(c.receivables, account)
			}
			return true
		}
	}
	return false
}

func (c *Cache) GetReceivable(account blockchain.Account, hash blockchain.Hash) (Receivable, bool) {
	for _, r := range c.receivables[account] {
		if r.Hash == hash {
			return r, true
		}
	}
	return Receivable{}, false
}

// Receivables returns a copy of the account's list, largest first
func (c *Cache) Receivables(account blockchain.Account) []Receivable {
	list := c.receivables[account]
	out := make([]Receivable, len(list))
	copy(out, list)
	return out
}

// ReplaceReceivables swaps the account's list for rs, skipping any hash rejected by keep
func (c *Cache) ReplaceReceivables(account blockchain.Account, rs []Receivable, keep func(Receivable) bool) {
	delete(c.receivables, account)
	for _, r := range rs {
		if keep != nil && !keep(r) {
			continue
		}
		c.AddReceivable(account, r)
	}
}

func (c *Cache) ReceivableTotal(account blockchain.Account) uint256.Int {
	var total uint256.Int
	for n := range c.receivables[account] {
		total.Add(&total, &c.receivables[account][n].Amount)
	}
	return total
}
