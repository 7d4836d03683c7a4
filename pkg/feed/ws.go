package feed

import (
	"encoding/json"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/luxfi/log"
	"github.com/shopspring/decimal"

	"github.com/luxfi/dsc/pkg/dsc"
)

// Message is one price tick on the wire. Price is a decimal string
// ("30000.25"); Decimals tells how many fractional digits the raw oracle
// representation carries.
type Message struct {
	Symbol    string `json:"symbol"`
	Price     string `json:"price"`
	Decimals  uint8  `json:"decimals"`
	Timestamp int64  `json:"timestamp"` // unix seconds
	Round     uint64 `json:"round"`
}

// WSFeed subscribes to a websocket price stream and serves the latest
// observed quote per symbol. It never invents freshness: a quote keeps the
// timestamp the source reported, and the oracle adapter decides staleness.
type WSFeed struct {
	url    string
	logger log.Logger

	mu     sync.RWMutex
	quotes map[string]dsc.PriceQuote

	conn *websocket.Conn
	done chan struct{}
	wg   sync.WaitGroup
}

// NewWSFeed creates a feed for the given websocket endpoint.
func NewWSFeed(url string, logger log.Logger) *WSFeed {
	return &WSFeed{
		url:    url,
		logger: logger,
		quotes: make(map[string]dsc.PriceQuote),
		done:   make(chan struct{}),
	}
}

// Start dials the stream and begins consuming ticks.
func (f *WSFeed) Start() error {
	conn, _, err := websocket.DefaultDialer.Dial(f.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", f.url, err)
	}
	f.conn = conn

	f.wg.Add(1)
	go f.readLoop()
	f.logger.Info("price feed connected", "url", f.url)
	return nil
}

func (f *WSFeed) readLoop() {
	defer f.wg.Done()

	for {
		select {
		case <-f.done:
			return
		default:
		}

		_, data, err := f.conn.ReadMessage()
		if err != nil {
			select {
			case <-f.done:
			default:
				f.logger.Warn("feed read failed", "error", err)
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			f.logger.Warn("malformed feed message", "error", err)
			continue
		}
		quote, err := QuoteFromMessage(msg)
		if err != nil {
			f.logger.Warn("unusable feed message", "symbol", msg.Symbol, "error", err)
			continue
		}

		f.mu.Lock()
		f.quotes[msg.Symbol] = quote
		f.mu.Unlock()
	}
}

// QuoteFromMessage converts a wire tick into a raw oracle quote, shifting
// the decimal price into the message's stated precision.
func QuoteFromMessage(msg Message) (dsc.PriceQuote, error) {
	if msg.Symbol == "" {
		return dsc.PriceQuote{}, fmt.Errorf("empty symbol")
	}
	price, err := decimal.NewFromString(msg.Price)
	if err != nil {
		return dsc.PriceQuote{}, fmt.Errorf("parse price %q: %w", msg.Price, err)
	}
	if price.Sign() <= 0 {
		return dsc.PriceQuote{}, fmt.Errorf("non-positive price %q", msg.Price)
	}
	raw := price.Shift(int32(msg.Decimals)).Truncate(0).BigInt()
	return dsc.PriceQuote{
		Symbol:    msg.Symbol,
		Price:     raw,
		Timestamp: time.Unix(msg.Timestamp, 0),
		RoundID:   msg.Round,
	}, nil
}

// LatestQuote implements dsc.PriceFeed.
func (f *WSFeed) LatestQuote(symbol string) (dsc.PriceQuote, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	quote, ok := f.quotes[symbol]
	if !ok {
		return dsc.PriceQuote{}, fmt.Errorf("%w: %s", dsc.ErrNoQuote, symbol)
	}
	quote.Price = new(big.Int).Set(quote.Price)
	return quote, nil
}

// Close stops the reader and closes the connection.
func (f *WSFeed) Close() error {
	close(f.done)
	var err error
	if f.conn != nil {
		err = f.conn.Close()
	}
	f.wg.Wait()
	return err
}
