package builder

import (
	"github.com/OdyseeTeam/lattice-wallet/blockchain"

	"github.com/holiman/uint256"
)

const (
	// TransactionsPerCredit is the daily block quota bought by one credit unit
	TransactionsPerCredit = 20

	// MaxClockSkew is how far ahead of the server clock a block timestamp may be, in seconds
	MaxClockSkew = 60

	Epoch         uint64 = 1609459200 // 2021-01-01T00:00:00Z
	QuarterLength uint64 = 90 * 24 * 60 * 60
	FloorQuarters        = 48

	secondsPerDay = 24 * 60 * 60
)

// CreditFloorPrice is the raw price of one credit unit once the price table bottoms out
var CreditFloorPrice = uint256.NewInt(10_000_000)

// creditPrices[q] is the unit price during quarter q after Epoch
var creditPrices = func() [FloorQuarters]uint256.Int {
	var table [FloorQuarters]uint256.Int
	for q := 0; q < FloorQuarters; q++ {
		table[q].Mul(CreditFloorPrice, uint256.NewInt(uint64(FloorQuarters-q+1)))
	}
	return table
}()

// CreditPrice is the raw cost of one credit unit bought at timestamp
func CreditPrice(timestamp uint64) uint256.Int {
	var price uint256.Int
	if timestamp < Epoch {
		return price
	}
	q := (timestamp - Epoch) / QuarterLength
	if q >= FloorQuarters {
		price.Set(CreditFloorPrice)
		return price
	}
	price.Set(&creditPrices[q])
	return price
}

func sameDay(a, b uint64) bool {
	return a/secondsPerDay == b/secondsPerDay
}

// NextCounter is the same-UTC-day sequence number of a block following prev at timestamp
func NextCounter(prev *blockchain.Block, timestamp uint64) uint32 {
	if prev == nil || !sameDay(prev.Timestamp, timestamp) {
		return 1
	}
	return prev.Counter + 1
}

// Quota is how many blocks per day credit allows
func Quota(credit uint16) uint64 {
	return uint64(credit) * TransactionsPerCredit
}
