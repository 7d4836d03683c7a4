package dsc

import (
	"fmt"
	"math/big"
	"sync"
)

// FungibleLedger is the engine's view of an external collateral token.
// Standard fungible semantics are assumed; deviations such as
// fee-on-transfer are bounded by the engine recording verified balance
// deltas rather than nominal amounts.
type FungibleLedger interface {
	BalanceOf(account string) *big.Int
	Transfer(from, to string, amount *big.Int) error
}

// StableLedger is the engine's view of the pegged-unit token. Mint and burn
// carry the caller identity and are honored only for the single authorized
// minter fixed at construction.
type StableLedger interface {
	Mint(caller, to string, amount *big.Int) error
	Burn(caller, from string, amount *big.Int) error
	BalanceOf(account string) *big.Int
}

// StableToken is the DSC ledger. It is a plain fungible balance book whose
// issuance is exclusively controlled by one minter identity; everyone else
// gets standard transfer/approve semantics. No transfer fee, no rebasing.
type StableToken struct {
	mu          sync.RWMutex
	name        string
	symbol      string
	minter      string
	totalSupply *big.Int
	balances    map[string]*big.Int
	allowances  map[string]map[string]*big.Int
}

// NewStableToken creates the pegged-unit ledger with its minter capability
// bound to the given identity.
func NewStableToken(name, symbol, minter string) *StableToken {
	return &StableToken{
		name:        name,
		symbol:      symbol,
		minter:      minter,
		totalSupply: big.NewInt(0),
		balances:    make(map[string]*big.Int),
		allowances:  make(map[string]map[string]*big.Int),
	}
}

// Name returns the token name.
func (t *StableToken) Name() string { return t.name }

// Symbol returns the token symbol.
func (t *StableToken) Symbol() string { return t.symbol }

// TotalSupply returns the outstanding supply.
func (t *StableToken) TotalSupply() *big.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return new(big.Int).Set(t.totalSupply)
}

// BalanceOf returns the balance of an account.
func (t *StableToken) BalanceOf(account string) *big.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if bal, ok := t.balances[account]; ok {
		return new(big.Int).Set(bal)
	}
	return big.NewInt(0)
}

// Mint issues amount to an account. Only the authorized minter may call.
func (t *StableToken) Mint(caller, to string, amount *big.Int) error {
	if caller != t.minter {
		return fmt.Errorf("%w: %s is not the minter", ErrUnauthorized, caller)
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.credit(to, amount)
	t.totalSupply.Add(t.totalSupply, amount)
	return nil
}

// Burn destroys amount from an account. Only the authorized minter may call.
func (t *StableToken) Burn(caller, from string, amount *big.Int) error {
	if caller != t.minter {
		return fmt.Errorf("%w: %s is not the minter", ErrUnauthorized, caller)
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.debit(from, amount); err != nil {
		return err
	}
	t.totalSupply.Sub(t.totalSupply, amount)
	return nil
}

// Transfer moves amount between accounts atomically.
func (t *StableToken) Transfer(from, to string, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.debit(from, amount); err != nil {
		return err
	}
	t.credit(to, amount)
	return nil
}

// Approve sets spender's allowance over owner's balance.
func (t *StableToken) Approve(owner, spender string, amount *big.Int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.allowances[owner] == nil {
		t.allowances[owner] = make(map[string]*big.Int)
	}
	t.allowances[owner][spender] = new(big.Int).Set(amount)
}

// Allowance returns spender's remaining allowance over owner's balance.
func (t *StableToken) Allowance(owner, spender string) *big.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if inner, ok := t.allowances[owner]; ok {
		if a, ok := inner[spender]; ok {
			return new(big.Int).Set(a)
		}
	}
	return big.NewInt(0)
}

// TransferFrom moves amount from an owner using spender's allowance.
func (t *StableToken) TransferFrom(spender, from, to string, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	allowance := big.NewInt(0)
	if inner, ok := t.allowances[from]; ok {
		if a, ok := inner[spender]; ok {
			allowance = a
		}
	}
	if allowance.Cmp(amount) < 0 {
		return ErrInsufficientAllowance
	}
	if err := t.debit(from, amount); err != nil {
		return err
	}
	allowance.Sub(allowance, amount)
	t.credit(to, amount)
	return nil
}

func (t *StableToken) credit(account string, amount *big.Int) {
	if bal, ok := t.balances[account]; ok {
		bal.Add(bal, amount)
		return
	}
	t.balances[account] = new(big.Int).Set(amount)
}

func (t *StableToken) debit(account string, amount *big.Int) error {
	bal, ok := t.balances[account]
	if !ok || bal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: account %s", ErrInsufficientBalance, account)
	}
	bal.Sub(bal, amount)
	return nil
}

// SimpleToken is a fungible ledger for collateral assets on standalone
// deployments and tests. FeeBps models a fee-on-transfer token so the
// received-amount accounting can be exercised.
type SimpleToken struct {
	mu       sync.RWMutex
	symbol   string
	balances map[string]*big.Int

	// FeeBps is deducted from every transfer on the receiving side.
	FeeBps uint64
}

// NewSimpleToken creates an empty collateral ledger.
func NewSimpleToken(symbol string) *SimpleToken {
	return &SimpleToken{
		symbol:   symbol,
		balances: make(map[string]*big.Int),
	}
}

// Symbol returns the token symbol.
func (t *SimpleToken) Symbol() string { return t.symbol }

// SetBalance seeds an account balance.
func (t *SimpleToken) SetBalance(account string, amount *big.Int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.balances[account] = new(big.Int).Set(amount)
}

// BalanceOf returns the balance of an account.
func (t *SimpleToken) BalanceOf(account string) *big.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if bal, ok := t.balances[account]; ok {
		return new(big.Int).Set(bal)
	}
	return big.NewInt(0)
}

// Transfer moves amount between accounts, deducting FeeBps in transit.
func (t *SimpleToken) Transfer(from, to string, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	bal, ok := t.balances[from]
	if !ok || bal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: account %s", ErrInsufficientBalance, from)
	}
	bal.Sub(bal, amount)

	received := new(big.Int).Set(amount)
	if t.FeeBps > 0 {
		fee := new(big.Int).Mul(amount, new(big.Int).SetUint64(t.FeeBps))
		fee.Quo(fee, bpsDenominator)
		received.Sub(received, fee)
	}

	if dst, ok := t.balances[to]; ok {
		dst.Add(dst, received)
	} else {
		t.balances[to] = received
	}
	return nil
}
