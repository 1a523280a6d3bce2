package main

import (
	"context"
	"encoding/csv"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/OdyseeTeam/lattice-wallet/blockchain"
	"github.com/OdyseeTeam/lattice-wallet/replica"
	"github.com/OdyseeTeam/lattice-wallet/synchronizer"

	"github.com/cockroachdb/errors"
	"github.com/holiman/uint256"
	"github.com/sirupsen/logrus"
)

type balance struct {
	address    string
	confirmed  uint256.Int
	head       uint256.Int
	receivable uint256.Int
	height     uint64
}

func getBalances(accounts []*replica.Account) []balance {
	balances := make([]balance, 0, len(accounts))
	for _, a := range accounts {
		b := balance{
			address:    a.Address.String(),
			confirmed:  a.Balance(),
			head:       a.BalanceHead,
			receivable: a.BalanceReceivable,
			height:     a.ConfirmedHeight,
		}
		balances = append(balances, b)
	}
	sort.Slice(balances, func(i, j int) bool { return balances[i].address < balances[j].address })
	return balances
}

func caughtUp(accounts []*replica.Account) bool {
	for _, a := range accounts {
		if !a.CaughtUp {
			return false
		}
	}
	return true
}

// exportBalances waits for every account to catch up, or for timeout, then writes the CSV
func exportBalances(ctx context.Context, loop *synchronizer.Loop, engine *replica.Engine, filename string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		var (
			balances []balance
			done     bool
		)
		err := loop.Do(ctx, func() error {
			accounts := engine.Accounts()
			done = caughtUp(accounts)
			if done || time.Now().After(deadline) {
				balances = getBalances(accounts)
			}
			return nil
		})
		if err != nil {
			return err
		}
		if balances != nil {
			if !done {
				logrus.Warnf("exporting before every account caught up")
			}
			logrus.Printf("saving %d balances to %s", len(balances), filename)
			return balancesToCSV(balances, filename)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}
}

func balancesToCSV(balances []balance, filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return errors.WithStack(err)
	}
	defer f.Close()

	writer := csv.NewWriter(f)
	err = writer.Write([]string{"address", "confirmed_height", "balance", "head_balance", "receivable"})
	if err != nil {
		return errors.WithStack(err)
	}
	for _, b := range balances {
		height := ""
		if b.height != blockchain.InvalidHeight {
			height = strconv.FormatUint(b.height, 10)
		}
		err = writer.Write([]string{
			b.address,
			height,
			blockchain.FormatAmount(&b.confirmed, blockchain.Decimals),
			blockchain.FormatAmount(&b.head, blockchain.Decimals),
			blockchain.FormatAmount(&b.receivable, blockchain.Decimals),
		})
		if err != nil {
			return errors.WithStack(err)
		}
	}

	writer.Flush()
	return errors.WithStack(writer.Error())
}
