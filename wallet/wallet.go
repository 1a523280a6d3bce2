package wallet

import (
	"crypto/ed25519"
	"encoding/binary"
	"sync"

	"github.com/OdyseeTeam/lattice-wallet/blockchain"

	"github.com/cockroachdb/errors"
	"golang.org/x/crypto/blake2b"
)

var ErrLocked = errors.New("wallet is locked")

// Wallet holds the keys of one seed and signs with them while unlocked
type Wallet struct {
	mu     sync.Mutex
	seed   [32]byte
	keys   map[uint32]ed25519.PrivateKey
	locked bool
}

func FromSeed(seed [32]byte) *Wallet {
	return &Wallet{seed: seed, keys: make(map[uint32]ed25519.PrivateKey)}
}

func (w *Wallet) key(index uint32) ed25519.PrivateKey {
	if k, ok := w.keys[index]; ok {
		return k
	}
	var buf [36]byte
	copy(buf[:32], w.seed[:])
	binary.BigEndian.PutUint32(buf[32:], index)
	derived := blake2b.Sum256(buf[:])
	k := ed25519.NewKeyFromSeed(derived[:])
	w.keys[index] = k
	return k
}

// Account returns the public key at index
func (w *Wallet) Account(index uint32) blockchain.Account {
	w.mu.Lock()
	defer w.mu.Unlock()
	var a blockchain.Account
	copy(a[:], w.key(index).Public().(ed25519.PublicKey))
	return a
}

func (w *Wallet) Sign(index uint32, digest blockchain.Hash) (blockchain.Signature, error) {
	var sig blockchain.Signature
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.locked {
		return sig, ErrLocked
	}
	copy(sig[:], ed25519.Sign(w.key(index), digest[:]))
	return sig, nil
}

func (w *Wallet) Lock() {
	w.mu.Lock()
	w.locked = true
	w.mu.Unlock()
}

func (w *Wallet) Unlock() {
	w.mu.Lock()
	w.locked = false
	w.mu.Unlock()
}

func (w *Wallet) Locked() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.locked
}
