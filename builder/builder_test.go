package builder

import (
	"math"
	"testing"

	"github.com/OdyseeTeam/lattice-wallet/blockchain"
	"github.com/OdyseeTeam/lattice-wallet/ledger"
	"github.com/OdyseeTeam/lattice-wallet/wallet"

	"github.com/cockroachdb/errors"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// midday on a day well past the epoch
const now = Epoch + 400*secondsPerDay + 12*3600

func setup(t *testing.T) (*Builder, *wallet.Wallet, State) {
	w := wallet.FromSeed([32]byte{9})
	rep := w.Account(99)
	bl := New(w, []blockchain.Account{rep})

	head := &blockchain.Block{
		Type:           blockchain.TypeTx,
		Opcode:         blockchain.OpReceive,
		Credit:         1,
		Counter:        1,
		Timestamp:      now - 10,
		Height:         0,
		Account:        w.Account(0),
		Representative: rep,
	}
	head.Balance.SetUint64(1_000_000_000)
	require.NoError(t, head.Sign(w, 0))

	s := State{Account: w.Account(0), Index: 0, Type: blockchain.TypeTx, Head: head, Now: now}
	s.Spendable.Set(&head.Balance)
	return bl, w, s
}

func TestQuotaEnforcement(t *testing.T) {
	bl, w, s := setup(t)
	dest := w.Account(5)

	// the head is block 1 of the day, so 19 more fit in a single-credit quota
	for i := 2; i <= TransactionsPerCredit; i++ {
		b, err := bl.Send(s, dest, *uint256.NewInt(1), nil)
		require.NoError(t, err, "block %d", i)
		assert.Equal(t, uint32(i), b.Counter)
		s.Head = b
		s.Spendable.Set(&b.Balance)
	}

	_, err := bl.Send(s, dest, *uint256.NewInt(1), nil)
	assert.True(t, errors.Is(err, ErrCredit), "%v", err)

	// the next UTC day resets the counter
	s.Now = now + secondsPerDay
	b, err := bl.Send(s, dest, *uint256.NewInt(1), nil)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), b.Counter)
}

func TestQuotaScalesWithCredit(t *testing.T) {
	bl, w, s := setup(t)
	b, err := bl.IncreaseCredit(s, 2, nil)
	require.NoError(t, err)
	assert.Equal(t, uint16(3), b.Credit)
	price := CreditPrice(b.Timestamp)
	cost := new(uint256.Int).Mul(&price, uint256.NewInt(2))
	expected := new(uint256.Int).Sub(&s.Head.Balance, cost)
	assert.True(t, expected.Eq(&b.Balance))

	s.Head = b
	s.Spendable.Set(&b.Balance)
	sent := 2
	for ; sent < 3*TransactionsPerCredit; sent++ {
		b, err = bl.Send(s, w.Account(5), *uint256.NewInt(1), nil)
		require.NoError(t, err)
		s.Head = b
		s.Spendable.Set(&b.Balance)
	}
	assert.Equal(t, uint32(60), s.Head.Counter)
	_, err = bl.Send(s, w.Account(5), *uint256.NewInt(1), nil)
	assert.True(t, errors.Is(err, ErrCredit))
}

func TestCreditPriceMonotonic(t *testing.T) {
	early := CreditPrice(Epoch - 1)
	assert.True(t, early.IsZero())

	prev := CreditPrice(Epoch)
	for ts := Epoch; ts < Epoch+(FloorQuarters+3)*QuarterLength; ts += QuarterLength / 3 {
		p := CreditPrice(ts)
		assert.False(t, p.Gt(&prev), "price rose at %d", ts)
		prev = p
	}

	floor := CreditPrice(Epoch + FloorQuarters*QuarterLength)
	assert.True(t, floor.Eq(CreditFloorPrice))
	far := CreditPrice(Epoch + 1000*QuarterLength)
	assert.True(t, far.Eq(CreditFloorPrice))
	last := CreditPrice(Epoch + FloorQuarters*QuarterLength - 1)
	assert.True(t, last.Gt(CreditFloorPrice))
}

func TestOpenBlock(t *testing.T) {
	bl, w, _ := setup(t)
	s := State{Account: w.Account(1), Index: 1, Type: blockchain.TypeTx, Now: now}

	price := CreditPrice(now)
	r := ledger.Receivable{Source: w.Account(0), Timestamp: now - 100}
	r.Hash[0] = 0x42
	r.Amount.Add(&price, uint256.NewInt(5))

	b, err := bl.Receive(s, r, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), b.Height)
	assert.True(t, b.Previous.IsZero())
	assert.Equal(t, uint16(1), b.Credit)
	assert.Equal(t, uint64(5), b.Balance.Uint64())
	assert.Equal(t, w.Account(99), b.Representative)
	assert.Equal(t, r.Hash, b.Link)
	assert.True(t, b.Verify())

	small := r
	small.Amount.Sub(&price, uint256.NewInt(1))
	_, err = bl.Receive(s, small, nil)
	assert.True(t, errors.Is(err, ErrReceivableAmount))

	_, err = bl.Send(s, w.Account(0), *uint256.NewInt(1), nil)
	assert.True(t, errors.Is(err, ErrNotActivated))
}

func TestTimestampRules(t *testing.T) {
	bl, w, s := setup(t)

	r := ledger.Receivable{Source: w.Account(3), Timestamp: now + 30}
	r.Amount.SetUint64(10)
	b, err := bl.Receive(s, r, nil)
	require.NoError(t, err)
	assert.Equal(t, now+30, b.Timestamp)

	r.Timestamp = now + MaxClockSkew + 1
	_, err = bl.Receive(s, r, nil)
	assert.True(t, errors.Is(err, ErrTimestamp))

	// a head from the future drags the next block along with it
	s.Head.Timestamp = now + 5
	require.NoError(t, s.Head.Sign(w, 0))
	b, err = bl.ChangeRepresentative(s, w.Account(7), nil)
	require.NoError(t, err)
	assert.Equal(t, now+5, b.Timestamp)
}

func TestSendChecks(t *testing.T) {
	bl, w, s := setup(t)

	_, err := bl.Send(s, w.Account(2), *uint256.NewInt(0), nil)
	assert.True(t, errors.Is(err, ErrAmount))

	_, err = bl.Send(s, blockchain.ZeroAccount, *uint256.NewInt(1), nil)
	assert.True(t, errors.Is(err, ErrDestination))

	s.Spendable.SetUint64(10)
	_, err = bl.Send(s, w.Account(2), *uint256.NewInt(11), nil)
	assert.True(t, errors.Is(err, ErrBalance))

	b, err := bl.Send(s, w.Account(2), *uint256.NewInt(10), []byte{0, 1, 0, 1, 'x'})
	require.NoError(t, err)
	assert.Equal(t, blockchain.Hash(w.Account(2)), b.Link)
	assert.Equal(t, uint64(1_000_000_000-10), b.Balance.Uint64())

	_, err = bl.Send(s, w.Account(2), *uint256.NewInt(1), []byte{0, 1, 0, 9})
	assert.True(t, errors.Is(err, ErrExtensions))
}

func TestCreditOverflowAndTypes(t *testing.T) {
	bl, w, s := setup(t)

	s.Head.Credit = math.MaxUint16
	require.NoError(t, s.Head.Sign(w, 0))
	_, err := bl.IncreaseCredit(s, 1, nil)
	assert.True(t, errors.Is(err, ErrCreditOverflow))

	s.Type = blockchain.TypeRep
	_, err = bl.ChangeRepresentative(s, w.Account(3), nil)
	assert.True(t, errors.Is(err, ErrAccountType))

	_, err = bl.ChangeExtensions(s, nil)
	assert.True(t, errors.Is(err, ErrExtensions))
}

func TestLockedSigner(t *testing.T) {
	bl, w, s := setup(t)
	w.Lock()
	_, err := bl.ChangeRepresentative(s, w.Account(3), nil)
	assert.True(t, errors.Is(err, ErrLocked))
	assert.True(t, errors.Is(err, wallet.ErrLocked))
}
