package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/OdyseeTeam/lattice-wallet/replica"
	"github.com/OdyseeTeam/lattice-wallet/wallet"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccountsEndpoint(t *testing.T) {
	w := wallet.FromSeed([32]byte{4})
	synced := replica.NewAccount(w.Account(0), 0, 8)
	synced.Synced = true
	synced.HeadHeight = 4
	synced.Head[0] = 0xab
	synced.ConfirmedHeight = 2
	synced.BalanceConfirmed.SetUint64(1_500_000_000)
	synced.BalanceHead.SetUint64(2_000_000_000)
	fresh := replica.NewAccount(w.Account(1), 1, 8)

	source := func(context.Context) ([]AccountStatus, error) {
		return []AccountStatus{Status(synced), Status(fresh)}, nil
	}
	srv := httptest.NewServer(Handler(source))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/accounts")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got []map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	require.Len(t, got, 2)
	assert.Equal(t, synced.Address.String(), got[0]["address"])
	assert.Equal(t, "1.5", got[0]["balance"])
	assert.Equal(t, "1.5", got[0]["spendable"])
	assert.Equal(t, float64(4), got[0]["head_height"])
	assert.Equal(t, float64(2), got[0]["confirmed_height"])
	assert.NotContains(t, got[1], "head_height")
	assert.NotContains(t, got[1], "head")

	resp, err = http.Get(srv.URL + "/accounts?account=" + fresh.Address.String())
	require.NoError(t, err)
	got = nil
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	resp.Body.Close()
	require.Len(t, got, 1)
	assert.Equal(t, false, got[0]["synced"])

	resp, err = http.Get(srv.URL + "/accounts?account=lat_unknown")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAccountsUnavailable(t *testing.T) {
	srv := httptest.NewServer(Handler(func(context.Context) ([]AccountStatus, error) {
		return nil, errors.New("stopped")
	}))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/accounts")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
