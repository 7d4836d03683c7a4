package dsc

import "errors"

// Sentinel errors returned by the engine, the oracle adapter and the token
// ledgers. Every mutating operation either succeeds fully or fails with one
// of these; callers match with errors.Is.
var (
	// ErrInvalidAmount is returned for zero or negative amounts.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrUnknownAsset is returned when an asset was never registered.
	ErrUnknownAsset = errors.New("unknown asset")

	// ErrDuplicateAsset is returned when registering an asset symbol twice.
	ErrDuplicateAsset = errors.New("asset already registered")

	// ErrHealthFactorBroken is returned when an operation would leave the
	// acting user below the minimum health factor.
	ErrHealthFactorBroken = errors.New("health factor broken")

	// ErrHealthFactorOk is returned when liquidation is attempted on a
	// target whose health factor is not below the minimum.
	ErrHealthFactorOk = errors.New("health factor ok")

	// ErrHealthFactorNotImproved is returned when a liquidation would leave
	// the target no better off than before the call.
	ErrHealthFactorNotImproved = errors.New("health factor not improved")

	// ErrStalePrice is returned when a quote is older than the asset's
	// configured freshness window.
	ErrStalePrice = errors.New("stale price")

	// ErrPriceOutOfBounds is returned when a quote is at or beyond the
	// asset's configured min/max price, the signature of a frozen feed.
	ErrPriceOutOfBounds = errors.New("price out of bounds")

	// ErrSequencerUnavailable is returned while the sequencer is down or
	// still inside the post-recovery grace period.
	ErrSequencerUnavailable = errors.New("sequencer unavailable")

	// ErrInsufficientCollateral is returned when a redeem or seizure
	// exceeds the deposited position.
	ErrInsufficientCollateral = errors.New("insufficient collateral")

	// ErrInsufficientDebt is returned when a burn or repayment exceeds the
	// outstanding debt.
	ErrInsufficientDebt = errors.New("insufficient debt")

	// ErrReentrant is returned when an engine operation is entered while
	// another one is still in flight.
	ErrReentrant = errors.New("reentrant call")

	// ErrUnauthorized is returned by the stable token when mint or burn is
	// attempted by anyone but the engine.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInsufficientBalance is returned by token ledgers on overdraft.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrInsufficientAllowance is returned by TransferFrom without approval.
	ErrInsufficientAllowance = errors.New("insufficient allowance")

	// ErrPositionBelowMinimum is returned when the minimum-position policy
	// rejects an operation on a dust-sized position.
	ErrPositionBelowMinimum = errors.New("position below minimum size")

	// ErrNoQuote is returned by feeds that have no observation for a symbol.
	ErrNoQuote = errors.New("no quote available")
)

// ErrorKind maps an engine error to its taxonomy name. Unrecognized errors
// report as Internal.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, ErrInvalidAmount):
		return "InvalidAmount"
	case errors.Is(err, ErrUnknownAsset):
		return "UnknownAsset"
	case errors.Is(err, ErrDuplicateAsset):
		return "DuplicateAsset"
	case errors.Is(err, ErrHealthFactorBroken):
		return "HealthFactorBroken"
	case errors.Is(err, ErrHealthFactorOk):
		return "HealthFactorOk"
	case errors.Is(err, ErrHealthFactorNotImproved):
		return "HealthFactorNotImproved"
	case errors.Is(err, ErrStalePrice):
		return "StalePrice"
	case errors.Is(err, ErrPriceOutOfBounds):
		return "PriceOutOfBounds"
	case errors.Is(err, ErrSequencerUnavailable):
		return "SequencerUnavailable"
	case errors.Is(err, ErrInsufficientCollateral):
		return "InsufficientCollateral"
	case errors.Is(err, ErrInsufficientDebt):
		return "InsufficientDebt"
	case errors.Is(err, ErrReentrant):
		return "Reentrant"
	case errors.Is(err, ErrUnauthorized):
		return "Unauthorized"
	case errors.Is(err, ErrInsufficientBalance):
		return "InsufficientBalance"
	case errors.Is(err, ErrInsufficientAllowance):
		return "InsufficientAllowance"
	case errors.Is(err, ErrPositionBelowMinimum):
		return "PositionBelowMinimum"
	case errors.Is(err, ErrNoQuote):
		return "NoQuote"
	default:
		return "Internal"
	}
}
