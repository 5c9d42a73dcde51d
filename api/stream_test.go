package api

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"cdpledger/core/events"
	"cdpledger/core/types"
)

func TestHubDropsForFullSubscriber(t *testing.T) {
	hub := NewHub()
	ch, cancel := hub.Subscribe()
	defer cancel()
	for i := 0; i < subscriberBuffer+3; i++ {
		hub.Emit(events.BlockExecuted{Height: uint64(i)})
	}
	require.Equal(t, uint64(3), hub.Dropped())
	first := <-ch
	require.Equal(t, events.TypeBlockExecuted, first.Type)
	require.Equal(t, "0", first.Attributes["height"])
}

func TestHubCancelClosesChannel(t *testing.T) {
	hub := NewHub()
	ch, cancel := hub.Subscribe()
	require.Equal(t, 1, hub.Subscribers())
	cancel()
	cancel()
	_, ok := <-ch
	require.False(t, ok)
	require.Zero(t, hub.Subscribers())
	hub.Emit(events.BlockExecuted{Height: 1})
}

func TestEventStreamFiltersTypes(t *testing.T) {
	hub := NewHub()
	srv, err := New(Config{Ledger: newFakeLedger(), Stream: hub})
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/events?types=" + events.TypeTransfer
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "done")

	require.Eventually(t, func() bool { return hub.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)
	hub.Emit(events.BlockExecuted{Height: 3})
	hub.Emit(events.Transfer{Symbol: types.SymbolWUSD, Amount: 5, TxID: common.HexToHash("0x01")})

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var ev types.Event
	require.NoError(t, json.Unmarshal(data, &ev))
	require.Equal(t, events.TypeTransfer, ev.Type)
	require.Equal(t, "5", ev.Attributes["amount"])
}
