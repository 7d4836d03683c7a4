package dsc

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"time"

	"golang.org/x/crypto/blake2b"
)

// EventType identifies the engine event kinds.
type EventType string

const (
	EventAssetRegistered EventType = "asset_registered"
	EventDeposit         EventType = "collateral_deposited"
	EventMint            EventType = "dsc_minted"
	EventBurn            EventType = "dsc_burned"
	EventRedeem          EventType = "collateral_redeemed"
	EventLiquidation     EventType = "liquidation"
)

// Event is emitted after every successful mutating operation. Amounts are
// decimal strings to survive JSON without precision loss.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	User      string    `json:"user"`
	Caller    string    `json:"caller,omitempty"`
	Asset     string    `json:"asset,omitempty"`
	Amount    string    `json:"amount,omitempty"`
	DebtDelta string    `json:"debtDelta,omitempty"`
	Seized    string    `json:"seized,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher delivers engine events to the outside. Implementations must not
// block the engine; delivery is best-effort and failures are logged, never
// propagated into the operation result.
type Publisher interface {
	Publish(ev Event) error
}

// eventID derives a stable identifier from the event payload and timestamp.
func eventID(ev *Event) string {
	payload, _ := json.Marshal(ev)
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(ev.Timestamp.UnixNano()))
	sum := blake2b.Sum256(append(payload, ts[:]...))
	return hex.EncodeToString(sum[:16])
}

func (e *Engine) emit(ev Event) {
	if e.publisher == nil {
		return
	}
	ev.Timestamp = e.now()
	ev.ID = eventID(&ev)
	if err := e.publisher.Publish(ev); err != nil {
		e.logger.Warn("event publish failed", "type", ev.Type, "error", err)
	}
}
