package dsc

import (
	"fmt"
	"math/big"
)

// LiquidationResult reports what a completed liquidation did.
type LiquidationResult struct {
	User         string
	Caller       string
	Asset        string
	DebtCovered  *big.Int // 1e18 USD
	Seized       *big.Int // asset smallest units, bonus included
	Clamped      bool     // seizure hit the target's available collateral
	StartingHF   *big.Int
	EndingHF     *big.Int
	BonusApplied uint64 // bps
}

// Liquidate lets caller repay debtToCover of user's debt in exchange for a
// bonus-adjusted slice of that user's collateral in the given asset.
// Eligibility and amounts are recomputed from current state on every
// attempt; nothing is trusted from earlier snapshots, so a stale partial
// liquidation can never block a later valid one. The caller's own health
// factor is irrelevant.
func (e *Engine) Liquidate(caller, user, symbol string, debtToCover *big.Int) (*LiquidationResult, error) {
	res, err := e.liquidate(caller, user, symbol, debtToCover)
	e.record("liquidate", err)
	return res, err
}

func (e *Engine) liquidate(caller, user, symbol string, debtToCover *big.Int) (*LiquidationResult, error) {
	if err := e.acquire(); err != nil {
		return nil, err
	}
	defer e.release()

	if debtToCover == nil || debtToCover.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	cfg, err := e.oracle.Asset(symbol)
	if err != nil {
		return nil, err
	}

	debt := e.debtOf(user)
	if debt.Cmp(debtToCover) < 0 {
		return nil, fmt.Errorf("%w: outstanding %s, cover %s", ErrInsufficientDebt, debt, debtToCover)
	}

	startingHF, err := e.HealthFactorOf(user)
	if err != nil {
		return nil, err
	}
	if IsSafe(startingHF, e.cfg.MinHealthFactor) {
		return nil, fmt.Errorf("%w: factor %s", ErrHealthFactorOk, startingHF)
	}

	// Collateral owed for the covered debt at the current price, in the
	// asset's native units, plus the liquidator bonus.
	base, err := e.oracle.TokenAmountFromUSD(symbol, debtToCover)
	if err != nil {
		return nil, err
	}
	bonusBps := e.cfg.LiquidationBonusBps
	if cfg.BonusBps > 0 {
		bonusBps = cfg.BonusBps
	}
	bonus := new(big.Int).Mul(base, new(big.Int).SetUint64(bonusBps))
	bonus.Quo(bonus, bpsDenominator)
	seize := new(big.Int).Add(base, bonus)

	// Clamp to what the target actually holds. An un-clamped bonus would
	// make the 100%-110% collateralization band unliquidatable.
	position := e.ledger.Position(user, symbol)
	if position.Sign() == 0 {
		return nil, fmt.Errorf("%w: no %s collateral to seize", ErrInsufficientCollateral, symbol)
	}
	clamped := false
	if seize.Cmp(position) > 0 {
		seize = position
		clamped = true
	}

	j := &journal{}

	if err := e.ledger.Withdraw(user, cfg, seize, caller); err != nil {
		return nil, err
	}
	j.add(func() { e.ledger.Reclaim(user, cfg, seize, caller) })

	if err := e.burnLocked(user, caller, debtToCover, j); err != nil {
		j.revert()
		return nil, err
	}

	endingHF, err := e.HealthFactorOf(user)
	if err != nil {
		j.revert()
		return nil, err
	}
	if endingHF.Cmp(startingHF) <= 0 {
		j.revert()
		return nil, fmt.Errorf("%w: %s -> %s", ErrHealthFactorNotImproved, startingHF, endingHF)
	}

	e.persist()
	e.emit(Event{
		Type:      EventLiquidation,
		User:      user,
		Caller:    caller,
		Asset:     symbol,
		DebtDelta: debtToCover.String(),
		Seized:    seize.String(),
	})
	e.logger.Info("position liquidated",
		"user", user,
		"caller", caller,
		"asset", symbol,
		"debtCovered", debtToCover,
		"seized", seize,
		"clamped", clamped)

	return &LiquidationResult{
		User:         user,
		Caller:       caller,
		Asset:        symbol,
		DebtCovered:  new(big.Int).Set(debtToCover),
		Seized:       seize,
		Clamped:      clamped,
		StartingHF:   startingHF,
		EndingHF:     endingHF,
		BonusApplied: bonusBps,
	}, nil
}
