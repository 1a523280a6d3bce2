package replica

import (
	"github.com/OdyseeTeam/lattice-wallet/blockchain"
)

// Repository stores the tracked accounts, keyed by address
type Repository interface {
	Get(address blockchain.Account) (*Account, bool)
	Put(a *Account)
	Delete(address blockchain.Account)
	All() []*Account
}

// MemoryRepository keeps accounts in insertion order
type MemoryRepository struct {
	accounts map[blockchain.Account]*Account
	order    []blockchain.Account
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{accounts: make(map[blockchain.Account]*Account)}
}

func (r *MemoryRepository) Get(address blockchain.Account) (*Account, bool) {
	a, ok := r.accounts[address]
	return a, ok
}

func (r *MemoryRepository) Put(a *Account) {
	if _, ok := r.accounts[a.Address]; !ok {
		r.order = append(r.order, a.Address)
	}
	r.accounts[a.Address] = a
}

func (r *MemoryRepository) Delete(address blockchain.Account) {
	if _, ok := r.accounts[address]; !ok {
		return
	}
	delete(r.accounts, address)
	for n, addr := range r.order {
		if addr == address {
			r.order = append(r.order[:n], r.order[n+1:]...)
			break
		}
	}
}

func (r *MemoryRepository) All() []*Account {
	out := make([]*Account, 0, len(r.order))
	for _, addr := range r.order {
		out = append(out, r.accounts[addr])
	}
	return out
}
