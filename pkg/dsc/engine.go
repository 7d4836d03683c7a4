package dsc

import (
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/luxfi/log"
)

// Recorder receives operation outcomes for metrics. Nil-safe via the
// engine's record helper.
type Recorder interface {
	Operation(op string)
	OperationError(op string, err error)
}

// Engine is the mint/burn controller: the single serialized state machine
// that owns the collateral ledger and the debt map, reads the oracle
// adapter, and drives the stable token through its minter capability.
// Every mutating operation is all-or-nothing.
type Engine struct {
	op sync.Mutex // operation guard, TryLock only

	cfg    EngineConfig
	oracle *OracleAdapter
	ledger *CollateralLedger
	stable StableLedger
	id     string // engine identity, the stable token's authorized minter

	mu    sync.RWMutex // protects debts
	debts map[string]*big.Int

	store     *Store
	publisher Publisher
	recorder  Recorder
	logger    log.Logger
	now       func() time.Time
}

// NewEngine wires the controller. id must match the stable token's minter
// identity or every mint/burn will fail with Unauthorized.
func NewEngine(cfg EngineConfig, oracle *OracleAdapter, ledger *CollateralLedger, stable StableLedger, id string, logger log.Logger) *Engine {
	if cfg.MinHealthFactor == nil {
		cfg.MinHealthFactor = new(big.Int).Set(PrecisionUnit)
	}
	return &Engine{
		cfg:    cfg,
		oracle: oracle,
		ledger: ledger,
		stable: stable,
		id:     id,
		debts:  make(map[string]*big.Int),
		logger: logger,
		now:    time.Now,
	}
}

// SetStore attaches snapshot persistence.
func (e *Engine) SetStore(s *Store) { e.store = s }

// SetPublisher attaches an event publisher.
func (e *Engine) SetPublisher(p Publisher) { e.publisher = p }

// SetRecorder attaches a metrics recorder.
func (e *Engine) SetRecorder(r Recorder) { e.recorder = r }

// Oracle exposes the adapter for read-only price queries.
func (e *Engine) Oracle() *OracleAdapter { return e.oracle }

// acquire takes the operation guard. A call arriving while another
// operation is in flight is rejected, never queued: re-entrant calls from a
// token-ledger callback would otherwise observe half-applied Debt/Position
// state.
func (e *Engine) acquire() error {
	if !e.op.TryLock() {
		return ErrReentrant
	}
	return nil
}

func (e *Engine) release() { e.op.Unlock() }

func (e *Engine) record(op string, err error) {
	if e.recorder == nil {
		return
	}
	if err != nil {
		e.recorder.OperationError(op, err)
		return
	}
	e.recorder.Operation(op)
}

// journal collects undo steps for the current operation; revert runs them
// in reverse order when the operation fails after mutating.
type journal struct {
	undo []func()
}

func (j *journal) add(fn func()) { j.undo = append(j.undo, fn) }

func (j *journal) revert() {
	for i := len(j.undo) - 1; i >= 0; i-- {
		j.undo[i]()
	}
}

// RegisterAsset admits a collateral asset. Duplicate symbols fail with
// DuplicateAsset.
func (e *Engine) RegisterAsset(cfg AssetConfig) error {
	err := e.oracle.RegisterAsset(cfg)
	e.record("register_asset", err)
	if err != nil {
		return err
	}
	e.emit(Event{Type: EventAssetRegistered, Asset: cfg.Symbol})
	return nil
}

// DepositCollateral pulls collateral from the user and credits the verified
// received amount. Depositing can only raise the health factor, so no
// post-check is needed beyond the minimum-position policy.
func (e *Engine) DepositCollateral(user, symbol string, amount *big.Int) error {
	err := e.depositCollateral(user, symbol, amount)
	e.record("deposit_collateral", err)
	return err
}

func (e *Engine) depositCollateral(user, symbol string, amount *big.Int) error {
	if err := e.acquire(); err != nil {
		return err
	}
	defer e.release()

	j := &journal{}
	received, err := e.depositLocked(user, symbol, amount, j)
	if err != nil {
		j.revert()
		return err
	}

	e.persist()
	e.emit(Event{Type: EventDeposit, User: user, Asset: symbol, Amount: received.String()})
	return nil
}

// depositLocked performs the deposit under the operation guard and records
// its undo on the journal. Returns the verified received amount.
func (e *Engine) depositLocked(user, symbol string, amount *big.Int, j *journal) (*big.Int, error) {
	cfg, err := e.oracle.Asset(symbol)
	if err != nil {
		return nil, err
	}

	received, err := e.ledger.Deposit(user, cfg, amount)
	if err != nil {
		return nil, err
	}
	j.add(func() { e.ledger.Revert(user, cfg, received) })

	if e.minPositionApplies(MinPositionAtDeposit) {
		value, err := e.oracle.ValueInUSD(symbol, e.ledger.Position(user, symbol))
		if err != nil {
			return nil, err
		}
		if value.Cmp(e.cfg.MinPositionUSD) < 0 {
			return nil, fmt.Errorf("%w: %s position worth less than floor", ErrPositionBelowMinimum, symbol)
		}
	}
	return received, nil
}

// Mint issues DSC against the user's collateral. The health factor is
// validated with the prospective debt before any state changes.
func (e *Engine) Mint(user string, amount *big.Int) error {
	err := e.mint(user, amount)
	e.record("mint", err)
	return err
}

func (e *Engine) mint(user string, amount *big.Int) error {
	if err := e.acquire(); err != nil {
		return err
	}
	defer e.release()

	j := &journal{}
	if err := e.mintLocked(user, amount, j); err != nil {
		j.revert()
		return err
	}

	e.persist()
	e.emit(Event{Type: EventMint, User: user, DebtDelta: amount.String()})
	return nil
}

func (e *Engine) mintLocked(user string, amount *big.Int, j *journal) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}

	collateral, err := e.ledger.TotalCollateralValueUSD(user)
	if err != nil {
		return err
	}

	if e.minPositionApplies(MinPositionAtMint) && collateral.Cmp(e.cfg.MinPositionUSD) < 0 {
		return fmt.Errorf("%w: collateral worth less than floor", ErrPositionBelowMinimum)
	}

	newDebt := new(big.Int).Add(e.debtOf(user), amount)
	hf := HealthFactor(collateral, newDebt, e.cfg.LiquidationThresholdBps)
	if !IsSafe(hf, e.cfg.MinHealthFactor) {
		return fmt.Errorf("%w: factor %s after mint", ErrHealthFactorBroken, hf)
	}

	e.setDebt(user, newDebt)
	j.add(func() { e.setDebt(user, new(big.Int).Sub(newDebt, amount)) })

	if err := e.stable.Mint(e.id, user, amount); err != nil {
		return fmt.Errorf("stable mint: %w", err)
	}
	j.add(func() { _ = e.stable.Burn(e.id, user, amount) })
	return nil
}

// DepositCollateralAndMint deposits and mints in one atomic operation. Any
// failure rolls back both legs; no partial mint with unsafe state is ever
// persisted.
func (e *Engine) DepositCollateralAndMint(user, symbol string, collateralAmount, dscAmount *big.Int) error {
	err := e.depositAndMint(user, symbol, collateralAmount, dscAmount)
	e.record("deposit_and_mint", err)
	return err
}

func (e *Engine) depositAndMint(user, symbol string, collateralAmount, dscAmount *big.Int) error {
	if err := e.acquire(); err != nil {
		return err
	}
	defer e.release()

	j := &journal{}
	received, err := e.depositLocked(user, symbol, collateralAmount, j)
	if err != nil {
		j.revert()
		return err
	}
	if err := e.mintLocked(user, dscAmount, j); err != nil {
		j.revert()
		return err
	}

	e.persist()
	e.emit(Event{Type: EventDeposit, User: user, Asset: symbol, Amount: received.String()})
	e.emit(Event{Type: EventMint, User: user, DebtDelta: dscAmount.String()})
	return nil
}

// Burn retires dscAmount of the user's own debt. Burning can only raise the
// health factor, so there is no post-check.
func (e *Engine) Burn(user string, amount *big.Int) error {
	err := e.burn(user, amount)
	e.record("burn", err)
	return err
}

func (e *Engine) burn(user string, amount *big.Int) error {
	if err := e.acquire(); err != nil {
		return err
	}
	defer e.release()

	j := &journal{}
	if err := e.burnLocked(user, user, amount, j); err != nil {
		j.revert()
		return err
	}

	e.persist()
	e.emit(Event{Type: EventBurn, User: user, DebtDelta: amount.String()})
	return nil
}

// burnLocked retires amount of user's debt, funded from payer's stable
// balance. For liquidations the payer is the liquidator.
func (e *Engine) burnLocked(user, payer string, amount *big.Int, j *journal) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}

	debt := e.debtOf(user)
	if debt.Cmp(amount) < 0 {
		return fmt.Errorf("%w: outstanding %s, burn %s", ErrInsufficientDebt, debt, amount)
	}

	newDebt := new(big.Int).Sub(debt, amount)
	e.setDebt(user, newDebt)
	j.add(func() { e.setDebt(user, debt) })

	if err := e.stable.Burn(e.id, payer, amount); err != nil {
		return fmt.Errorf("stable burn: %w", err)
	}
	j.add(func() { _ = e.stable.Mint(e.id, payer, amount) })
	return nil
}

// RedeemCollateral withdraws collateral if the user stays safe. The health
// factor is validated on the trial balance before the position is touched.
func (e *Engine) RedeemCollateral(user, symbol string, amount *big.Int) error {
	err := e.redeemCollateral(user, symbol, amount)
	e.record("redeem_collateral", err)
	return err
}

func (e *Engine) redeemCollateral(user, symbol string, amount *big.Int) error {
	if err := e.acquire(); err != nil {
		return err
	}
	defer e.release()

	if err := e.redeemLocked(user, symbol, amount); err != nil {
		return err
	}

	e.persist()
	e.emit(Event{Type: EventRedeem, User: user, Asset: symbol, Amount: amount.String()})
	return nil
}

func (e *Engine) redeemLocked(user, symbol string, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	cfg, err := e.oracle.Asset(symbol)
	if err != nil {
		return err
	}

	position := e.ledger.Position(user, symbol)
	if position.Cmp(amount) < 0 {
		return fmt.Errorf("%w: position %s, redeem %s", ErrInsufficientCollateral, position, amount)
	}

	// Trial valuation: total minus the USD value of the withdrawn slice.
	if debt := e.debtOf(user); debt.Sign() > 0 {
		total, err := e.ledger.TotalCollateralValueUSD(user)
		if err != nil {
			return err
		}
		withdrawn, err := e.oracle.ValueInUSD(symbol, amount)
		if err != nil {
			return err
		}
		remaining := new(big.Int).Sub(total, withdrawn)
		hf := HealthFactor(remaining, debt, e.cfg.LiquidationThresholdBps)
		if !IsSafe(hf, e.cfg.MinHealthFactor) {
			return fmt.Errorf("%w: factor %s after redeem", ErrHealthFactorBroken, hf)
		}
	}

	return e.ledger.Withdraw(user, cfg, amount, user)
}

// RedeemCollateralForDSC burns dscAmount and withdraws collateral in one
// atomic operation.
func (e *Engine) RedeemCollateralForDSC(user, symbol string, collateralAmount, dscAmount *big.Int) error {
	err := e.redeemForDSC(user, symbol, collateralAmount, dscAmount)
	e.record("redeem_for_dsc", err)
	return err
}

func (e *Engine) redeemForDSC(user, symbol string, collateralAmount, dscAmount *big.Int) error {
	if err := e.acquire(); err != nil {
		return err
	}
	defer e.release()

	j := &journal{}
	if err := e.burnLocked(user, user, dscAmount, j); err != nil {
		j.revert()
		return err
	}
	if err := e.redeemLocked(user, symbol, collateralAmount); err != nil {
		j.revert()
		return err
	}

	e.persist()
	e.emit(Event{Type: EventBurn, User: user, DebtDelta: dscAmount.String()})
	e.emit(Event{Type: EventRedeem, User: user, Asset: symbol, Amount: collateralAmount.String()})
	return nil
}

// HealthFactorOf recomputes the user's solvency ratio from fresh prices.
func (e *Engine) HealthFactorOf(user string) (*big.Int, error) {
	collateral, err := e.ledger.TotalCollateralValueUSD(user)
	if err != nil {
		return nil, err
	}
	return HealthFactor(collateral, e.debtOf(user), e.cfg.LiquidationThresholdBps), nil
}

// AccountInformation returns the user's debt, collateral value and health
// factor in one consistent read.
func (e *Engine) AccountInformation(user string) (AccountInfo, error) {
	collateral, err := e.ledger.TotalCollateralValueUSD(user)
	if err != nil {
		return AccountInfo{}, err
	}
	debt := e.debtOf(user)
	return AccountInfo{
		User:               user,
		DebtUSD:            debt,
		CollateralValueUSD: collateral,
		HealthFactor:       HealthFactor(collateral, debt, e.cfg.LiquidationThresholdBps),
	}, nil
}

// TotalCollateralValueUSD values all of the user's positions.
func (e *Engine) TotalCollateralValueUSD(user string) (*big.Int, error) {
	return e.ledger.TotalCollateralValueUSD(user)
}

// DebtOf returns the user's outstanding DSC.
func (e *Engine) DebtOf(user string) *big.Int {
	return e.debtOf(user)
}

// WithdrawableAmount computes how much of the asset the user could redeem
// right now without breaching the minimum health factor. Zero if no amount
// keeps the user safe.
func (e *Engine) WithdrawableAmount(user, symbol string) (*big.Int, error) {
	position := e.ledger.Position(user, symbol)
	if position.Sign() == 0 {
		return big.NewInt(0), nil
	}
	debt := e.debtOf(user)
	if debt.Sign() == 0 {
		return position, nil
	}

	total, err := e.ledger.TotalCollateralValueUSD(user)
	if err != nil {
		return nil, err
	}

	// Collateral USD that must stay behind to hold the minimum factor.
	adjusted := ceilDiv(new(big.Int).Mul(debt, e.cfg.MinHealthFactor), PrecisionUnit)
	required := ceilDiv(new(big.Int).Mul(adjusted, bpsDenominator), new(big.Int).SetUint64(e.cfg.LiquidationThresholdBps))
	if total.Cmp(required) <= 0 {
		return big.NewInt(0), nil
	}

	surplus := new(big.Int).Sub(total, required)
	tokens, err := e.oracle.TokenAmountFromUSD(symbol, surplus)
	if err != nil {
		return nil, err
	}
	if tokens.Cmp(position) > 0 {
		return position, nil
	}
	return tokens, nil
}

func (e *Engine) minPositionApplies(point MinPositionMode) bool {
	if e.cfg.MinPositionUSD == nil || e.cfg.MinPositionUSD.Sign() <= 0 {
		return false
	}
	switch e.cfg.MinPositionMode {
	case MinPositionBoth:
		return true
	case point:
		return true
	default:
		return false
	}
}

func (e *Engine) debtOf(user string) *big.Int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if d, ok := e.debts[user]; ok {
		return new(big.Int).Set(d)
	}
	return big.NewInt(0)
}

func (e *Engine) setDebt(user string, amount *big.Int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if amount.Sign() == 0 {
		delete(e.debts, user)
		return
	}
	e.debts[user] = new(big.Int).Set(amount)
}

func (e *Engine) debtSnapshot() map[string]*big.Int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string]*big.Int, len(e.debts))
	for user, d := range e.debts {
		out[user] = new(big.Int).Set(d)
	}
	return out
}

// persist writes a full state snapshot. Persistence failures are logged and
// do not undo the committed in-memory transition.
func (e *Engine) persist() {
	if e.store == nil {
		return
	}
	if err := e.store.SaveSnapshot(e.debtSnapshot(), e.ledger.Snapshot()); err != nil {
		e.logger.Warn("state snapshot failed", "error", err)
	}
}

// LoadState restores debts and positions from the attached store. Called
// once at startup before the engine serves operations.
func (e *Engine) LoadState() error {
	if e.store == nil {
		return nil
	}
	debts, positions, err := e.store.LoadSnapshot()
	if err != nil {
		return err
	}
	if debts == nil {
		return nil
	}

	e.mu.Lock()
	e.debts = debts
	e.mu.Unlock()
	e.ledger.Restore(positions)
	e.logger.Info("state restored", "users", len(debts))
	return nil
}
