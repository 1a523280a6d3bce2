package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/OdyseeTeam/lattice-wallet/blockchain"
	"github.com/OdyseeTeam/lattice-wallet/replica"

	"github.com/sirupsen/logrus"
)

// AccountStatus is the read-only view of one replica
type AccountStatus struct {
	Address    string `json:"address"`
	Type       string `json:"type"`
	Subscribed bool   `json:"subscribed"`
	Synced     bool   `json:"synced"`
	CaughtUp   bool   `json:"caught_up"`

	Head            string  `json:"head,omitempty"`
	HeadHeight      *uint64 `json:"head_height,omitempty"`
	Confirmed       string  `json:"confirmed,omitempty"`
	ConfirmedHeight *uint64 `json:"confirmed_height,omitempty"`
	TailHeight      *uint64 `json:"tail_height,omitempty"`

	Balance    string `json:"balance"`
	Spendable  string `json:"spendable"`
	Receivable string `json:"receivable"`

	Forks      uint64 `json:"forks"`
	Restricted bool   `json:"restricted"`
}

func height(h uint64) *uint64 {
	if h == blockchain.InvalidHeight {
		return nil
	}
	return &h
}

// Status snapshots a. It must run on the synchronizer loop.
func Status(a *replica.Account) AccountStatus {
	balance, spendable, receivable := a.Balance(), a.Spendable(), a.BalanceReceivable
	s := AccountStatus{
		Address:         a.Address.String(),
		Type:            a.Type.String(),
		Subscribed:      a.Subscribed,
		Synced:          a.Synced,
		CaughtUp:        a.CaughtUp,
		HeadHeight:      height(a.HeadHeight),
		ConfirmedHeight: height(a.ConfirmedHeight),
		TailHeight:      height(a.TailHeight),
		Balance:         blockchain.FormatAmount(&balance, blockchain.Decimals),
		Spendable:       blockchain.FormatAmount(&spendable, blockchain.Decimals),
		Receivable:      blockchain.FormatAmount(&receivable, blockchain.Decimals),
		Forks:           a.Forks,
		Restricted:      a.Restricted,
	}
	if a.Created() {
		s.Head = a.Head.String()
	}
	if a.HasConfirmed() {
		s.Confirmed = a.Confirmed.String()
	}
	return s
}

// Source produces the current statuses
type Source func(ctx context.Context) ([]AccountStatus, error)

func Handler(source Source) http.Handler {
	httpServeMux := http.NewServeMux()
	httpServeMux.Handle("/accounts", accounts(source))
	return httpServeMux
}

// Start serves the status endpoint on addr until ctx is done
func Start(ctx context.Context, addr string, source Source) *http.Server {
	srv := &http.Server{Addr: addr, Handler: Handler(source), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		err := srv.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			logrus.Error(err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdown)
	}()
	return srv
}

func accounts(source Source) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		statuses, err := source(r.Context())
		if err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(err.Error()))
			return
		}

		if filter := r.FormValue("account"); filter != "" {
			matched := statuses[:0]
			for _, s := range statuses {
				if s.Address == filter {
					matched = append(matched, s)
				}
			}
			if len(matched) == 0 {
				w.WriteHeader(http.StatusNotFound)
				w.Write([]byte("account not tracked"))
				return
			}
			statuses = matched
		}

		b, err := json.Marshal(statuses)
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(err.Error()))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write(b)
	})
}
