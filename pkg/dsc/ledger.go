package dsc

import (
	"fmt"
	"math/big"
	"sync"
)

// CollateralLedger is the per-user, per-asset deposit book. It is mutated
// only by the engine; external actors reach it through engine operations.
// Amounts are non-negative integers in each asset's smallest unit, and a
// zero position is a valid resting state.
type CollateralLedger struct {
	mu        sync.RWMutex
	oracle    *OracleAdapter
	vault     string // account holding deposited collateral on the token ledgers
	positions map[string]map[string]*big.Int
}

// NewCollateralLedger creates an empty ledger whose token-side holdings
// live under the vault account.
func NewCollateralLedger(oracle *OracleAdapter, vault string) *CollateralLedger {
	return &CollateralLedger{
		oracle:    oracle,
		vault:     vault,
		positions: make(map[string]map[string]*big.Int),
	}
}

// Vault returns the account the ledger holds collateral under.
func (l *CollateralLedger) Vault() string { return l.vault }

// Position returns the deposited amount for (user, asset).
func (l *CollateralLedger) Position(user, symbol string) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if byAsset, ok := l.positions[user]; ok {
		if amount, ok := byAsset[symbol]; ok {
			return new(big.Int).Set(amount)
		}
	}
	return big.NewInt(0)
}

// Deposit pulls amount from the user on the asset's token ledger and
// credits the verified balance delta, not the nominal amount. The recorded
// delta is returned so a failed enclosing operation can reverse it exactly.
func (l *CollateralLedger) Deposit(user string, cfg *AssetConfig, amount *big.Int) (*big.Int, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	before := cfg.Token.BalanceOf(l.vault)
	if err := cfg.Token.Transfer(user, l.vault, amount); err != nil {
		return nil, fmt.Errorf("collateral transfer in: %w", err)
	}
	received := new(big.Int).Sub(cfg.Token.BalanceOf(l.vault), before)
	if received.Sign() <= 0 {
		return nil, fmt.Errorf("%w: nothing received", ErrInvalidAmount)
	}

	l.credit(user, cfg.Symbol, received)
	return received, nil
}

// Withdraw debits the position and pays the amount out to the recipient.
// The debit is reversed if the token-side transfer fails.
func (l *CollateralLedger) Withdraw(user string, cfg *AssetConfig, amount *big.Int, to string) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.debit(user, cfg.Symbol, amount); err != nil {
		return err
	}
	if err := cfg.Token.Transfer(l.vault, to, amount); err != nil {
		l.credit(user, cfg.Symbol, amount)
		return fmt.Errorf("collateral transfer out: %w", err)
	}
	return nil
}

// Revert undoes a recorded deposit: debits the position and returns the
// received amount to the user. Used only for rollback of a failed
// enclosing operation.
func (l *CollateralLedger) Revert(user string, cfg *AssetConfig, received *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.debit(user, cfg.Symbol, received); err != nil {
		return
	}
	_ = cfg.Token.Transfer(l.vault, user, received)
}

// Reclaim pulls a previously paid-out amount back from an account and
// re-credits the position. Used only for rollback of a failed enclosing
// operation.
func (l *CollateralLedger) Reclaim(user string, cfg *AssetConfig, amount *big.Int, from string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := cfg.Token.Transfer(from, l.vault, amount); err != nil {
		return
	}
	l.credit(user, cfg.Symbol, amount)
}

// TotalCollateralValueUSD sums the USD value of every position the user
// holds. Each asset contributes at most once because positions are keyed
// by symbol.
func (l *CollateralLedger) TotalCollateralValueUSD(user string) (*big.Int, error) {
	l.mu.RLock()
	byAsset := make(map[string]*big.Int, len(l.positions[user]))
	for symbol, amount := range l.positions[user] {
		if amount.Sign() > 0 {
			byAsset[symbol] = new(big.Int).Set(amount)
		}
	}
	l.mu.RUnlock()

	total := big.NewInt(0)
	for symbol, amount := range byAsset {
		value, err := l.oracle.ValueInUSD(symbol, amount)
		if err != nil {
			return nil, err
		}
		total.Add(total, value)
	}
	return total, nil
}

// Users returns every user with at least one recorded position.
func (l *CollateralLedger) Users() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	users := make([]string, 0, len(l.positions))
	for user := range l.positions {
		users = append(users, user)
	}
	return users
}

// Snapshot returns a deep copy of all positions for persistence.
func (l *CollateralLedger) Snapshot() map[string]map[string]*big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make(map[string]map[string]*big.Int, len(l.positions))
	for user, byAsset := range l.positions {
		inner := make(map[string]*big.Int, len(byAsset))
		for symbol, amount := range byAsset {
			inner[symbol] = new(big.Int).Set(amount)
		}
		out[user] = inner
	}
	return out
}

// Restore replaces the ledger contents, used when loading persisted state.
func (l *CollateralLedger) Restore(positions map[string]map[string]*big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.positions = make(map[string]map[string]*big.Int, len(positions))
	for user, byAsset := range positions {
		inner := make(map[string]*big.Int, len(byAsset))
		for symbol, amount := range byAsset {
			inner[symbol] = new(big.Int).Set(amount)
		}
		l.positions[user] = inner
	}
}

func (l *CollateralLedger) credit(user, symbol string, amount *big.Int) {
	byAsset, ok := l.positions[user]
	if !ok {
		byAsset = make(map[string]*big.Int)
		l.positions[user] = byAsset
	}
	if pos, ok := byAsset[symbol]; ok {
		pos.Add(pos, amount)
		return
	}
	byAsset[symbol] = new(big.Int).Set(amount)
}

func (l *CollateralLedger) debit(user, symbol string, amount *big.Int) error {
	byAsset, ok := l.positions[user]
	if !ok {
		return fmt.Errorf("%w: no %s position for %s", ErrInsufficientCollateral, symbol, user)
	}
	pos, ok := byAsset[symbol]
	if !ok || pos.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s position for %s", ErrInsufficientCollateral, symbol, user)
	}
	pos.Sub(pos, amount)
	return nil
}
