package feed

import (
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/luxfi/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/dsc/pkg/dsc"
)

func TestStaticFeed(t *testing.T) {
	feed := NewStaticFeed()
	ts := time.Unix(1_700_000_000, 0)

	_, err := feed.LatestQuote("WBTC")
	assert.ErrorIs(t, err, dsc.ErrNoQuote)

	feed.SetQuote("WBTC", big.NewInt(3_000_000_000_000), ts, 7)

	quote, err := feed.LatestQuote("WBTC")
	require.NoError(t, err)
	assert.Equal(t, "WBTC", quote.Symbol)
	assert.Equal(t, 0, quote.Price.Cmp(big.NewInt(3_000_000_000_000)))
	assert.Equal(t, ts, quote.Timestamp)
	assert.Equal(t, uint64(7), quote.RoundID)

	// The returned price is a copy.
	quote.Price.SetInt64(0)
	again, err := feed.LatestQuote("WBTC")
	require.NoError(t, err)
	assert.Equal(t, 0, again.Price.Cmp(big.NewInt(3_000_000_000_000)))
}

func TestQuoteFromMessage(t *testing.T) {
	msg := Message{
		Symbol:    "WBTC",
		Price:     "30000.25",
		Decimals:  8,
		Timestamp: 1_700_000_000,
		Round:     3,
	}

	quote, err := QuoteFromMessage(msg)
	require.NoError(t, err)
	assert.Equal(t, 0, quote.Price.Cmp(big.NewInt(3_000_025_000_000)))
	assert.Equal(t, time.Unix(1_700_000_000, 0), quote.Timestamp)
	assert.Equal(t, uint64(3), quote.RoundID)
}

func TestQuoteFromMessageRejectsBadInput(t *testing.T) {
	_, err := QuoteFromMessage(Message{Symbol: "", Price: "1"})
	assert.Error(t, err)

	_, err = QuoteFromMessage(Message{Symbol: "WBTC", Price: "not a number"})
	assert.Error(t, err)

	_, err = QuoteFromMessage(Message{Symbol: "WBTC", Price: "0"})
	assert.Error(t, err)

	_, err = QuoteFromMessage(Message{Symbol: "WBTC", Price: "-5"})
	assert.Error(t, err)
}

func TestQuoteFromMessageTruncates(t *testing.T) {
	// Digits beyond the stated precision are dropped, not rounded.
	msg := Message{Symbol: "WETH", Price: "1999.999999", Decimals: 2, Timestamp: 1, Round: 1}
	quote, err := QuoteFromMessage(msg)
	require.NoError(t, err)
	assert.Equal(t, 0, quote.Price.Cmp(big.NewInt(199_999)))
}

func TestWSFeedConsumesStream(t *testing.T) {
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		err = conn.WriteMessage(websocket.TextMessage, []byte(
			`{"symbol":"WBTC","price":"30000","decimals":8,"timestamp":1700000000,"round":1}`))
		require.NoError(t, err)

		// Malformed messages are skipped, not fatal.
		err = conn.WriteMessage(websocket.TextMessage, []byte(`{broken`))
		require.NoError(t, err)

		err = conn.WriteMessage(websocket.TextMessage, []byte(
			`{"symbol":"WBTC","price":"31000","decimals":8,"timestamp":1700000100,"round":2}`))
		require.NoError(t, err)

		// Keep the connection open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	level, _ := log.ToLevel("debug")
	logger := log.NewTestLogger(level)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	feed := NewWSFeed(url, logger)
	require.NoError(t, feed.Start())
	defer feed.Close()

	require.Eventually(t, func() bool {
		quote, err := feed.LatestQuote("WBTC")
		return err == nil && quote.RoundID == 2
	}, 2*time.Second, 10*time.Millisecond)

	quote, err := feed.LatestQuote("WBTC")
	require.NoError(t, err)
	assert.Equal(t, 0, quote.Price.Cmp(big.NewInt(3_100_000_000_000)))
	assert.Equal(t, time.Unix(1_700_000_100, 0), quote.Timestamp)

	_, err = feed.LatestQuote("WETH")
	assert.ErrorIs(t, err, dsc.ErrNoQuote)
}
