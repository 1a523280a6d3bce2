package protocol

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/OdyseeTeam/lattice-wallet/blockchain"

	"github.com/cockroachdb/errors"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleBlock(height uint64) *blockchain.Block {
	b := &blockchain.Block{Opcode: blockchain.OpReceive, Height: height, Credit: 1, Counter: 1}
	b.Account[0] = 1
	b.Representative[0] = 2
	b.Balance.SetUint64(500)
	return b
}

func blockJSON(t *testing.T, b *blockchain.Block) string {
	data, err := json.Marshal(b)
	require.NoError(t, err)
	return string(data)
}

func TestDecodeAccountInfo(t *testing.T) {
	head := sampleBlock(3)
	confirmed := sampleBlock(1)
	frame := fmt.Sprintf(`{"ack":"account_info","request_id":"r1","head_height":"3","head":"%s",
		"head_block":%s,"head_block_amount":"-20","confirmed_height":1,"confirmed_block":%s,
		"forks":"2","restricted":true,"type":"tx"}`,
		head.Hash(), blockJSON(t, head), blockJSON(t, confirmed))

	msg, err := Decode([]byte(frame))
	require.NoError(t, err)
	ack, ok := msg.(*AccountInfoAck)
	require.True(t, ok)
	assert.Equal(t, "r1", ack.RequestID())
	assert.True(t, ack.Exists)
	assert.Equal(t, uint64(3), ack.HeadHeight)
	assert.Equal(t, uint64(1), ack.ConfirmedHeight)
	assert.Equal(t, -1, ack.HeadBlockAmount.Sign())
	assert.Equal(t, uint64(2), ack.Forks)
	assert.True(t, ack.Restricted)
}

func TestDecodeAccountMissing(t *testing.T) {
	msg, err := Decode([]byte(`{"ack":"account_info","request_id":"x","error":"The account does not exist"}`))
	require.NoError(t, err)
	ack := msg.(*AccountInfoAck)
	assert.False(t, ack.Exists)
	assert.Equal(t, uint64(blockchain.InvalidHeight), ack.HeadHeight)
}

func TestDecodeRejectsMissingFields(t *testing.T) {
	head := sampleBlock(3)
	cases := []string{
		`not json`,
		`{"request_id":"1"}`,
		`{"ack":"account_info","head_height":"3"}`,
		fmt.Sprintf(`{"ack":"account_info","head_height":"4","head":"%s","head_block":%s,"head_block_amount":"1"}`, head.Hash(), blockJSON(t, head)),
		`{"ack":"block_query","status":"maybe"}`,
		fmt.Sprintf(`{"ack":"block_query","status":"success","block":%s}`, blockJSON(t, head)),
		`{"notify":"block_append"}`,
		`{"notify":"account_unsubscribe","account":"lat_123"}`,
		`{"ack":"receivables","receivables":[{"source":"x","amount":"1","hash":"00","timestamp":"1"}]}`,
	}
	for _, c := range cases {
		_, err := Decode([]byte(c))
		assert.True(t, errors.Is(err, ErrDecode), c)
	}
}

func TestDecodeBlockQueryAndError(t *testing.T) {
	b := sampleBlock(2)
	msg, err := Decode([]byte(fmt.Sprintf(`{"ack":"block_query","request_id":"q","status":"success","block":%s,"amount":"10","confirmed":true}`, blockJSON(t, b))))
	require.NoError(t, err)
	ack := msg.(*BlockQueryAck)
	assert.True(t, ack.Confirmed)
	assert.Equal(t, b.Hash(), ack.Block.Hash())
	assert.Equal(t, uint64(10), ack.Amount.Uint64())

	msg, err = Decode([]byte(`{"ack":"block_query","request_id":"q","status":"success"}`))
	require.NoError(t, err)
	assert.Nil(t, msg.(*BlockQueryAck).Block)

	msg, err = Decode([]byte(`{"ack":"block_query","request_id":"q","error":"timeout"}`))
	require.NoError(t, err)
	assert.Equal(t, "timeout", msg.(*ErrorAck).Error)
}

func TestDecodeNotifications(t *testing.T) {
	var account blockchain.Account
	account[5] = 7
	var hash blockchain.Hash
	hash[1] = 3

	msg, err := Decode([]byte(fmt.Sprintf(`{"notify":"receivable_info","account":"%s","source":"%s","amount":"99","hash":"%s","timestamp":"1700000000"}`,
		account, account, hash)))
	require.NoError(t, err)
	info := msg.(*ReceivableInfo)
	assert.Equal(t, account, info.Account)
	assert.Equal(t, hash, info.Hash)
	assert.Equal(t, uint64(99), info.Amount.Uint64())

	msg, err = Decode([]byte(fmt.Sprintf(`{"notify":"block_confirm","block":%s}`, blockJSON(t, sampleBlock(0)))))
	require.NoError(t, err)
	assert.Equal(t, NotifyBlockConfirm, msg.Kind())
}

func TestRequestEncoding(t *testing.T) {
	var account blockchain.Account
	req := NewReceivablesQuery(account, 10)
	SetRequestID(req, "abc")
	data, err := json.Marshal(req)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"action":"receivables"`)
	assert.Contains(t, string(data), `"request_id":"abc"`)
	assert.Contains(t, string(data), `"type":"confirmed"`)
}

func TestWebsocketChannel(t *testing.T) {
	upgrader := websocket.Upgrader{}
	received := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		received <- string(data)
		conn.WriteMessage(websocket.TextMessage, []byte(`{"notify":"bogus"}`))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"ack":"block_query","request_id":"7","status":"success"}`))
		time.Sleep(100 * time.Millisecond)
	}))
	defer srv.Close()

	ch := NewWebsocketChannel(WebsocketConfig{URL: "ws" + strings.TrimPrefix(srv.URL, "http")})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go ch.Run(ctx)

	select {
	case ev := <-ch.Events():
		require.True(t, ev.Connected)
	case <-ctx.Done():
		t.Fatal("never connected")
	}

	var account blockchain.Account
	require.NoError(t, ch.Send(NewAccountInfo(account)))
	assert.Contains(t, <-received, `"action":"account_info"`)

	select {
	case msg := <-ch.Inbound():
		assert.Equal(t, "7", msg.RequestID())
	case <-ctx.Done():
		t.Fatal("no inbound message")
	}
}
