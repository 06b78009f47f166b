package portfolio

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// NativeDecimals is the fixed-point scale of the chain's native unit.
const NativeDecimals = 18

// ErrDisconnected marks a read that could not run because no wallet session
// is connected. Callers render it as "absent", not as a failure.
var ErrDisconnected = errors.New("portfolio: wallet disconnected")

// ErrAccountChanged marks a load whose session account no longer matches the
// account it was issued for. Its result belongs to nobody and is dropped.
var ErrAccountChanged = errors.New("portfolio: session account changed")

// Position is the lender/borrower state of the session account in native
// units.
type Position struct {
	Balance        decimal.Decimal `json:"balance"`
	Debt           decimal.Decimal `json:"debt"`
	BorrowCapacity decimal.Decimal `json:"borrowCapacity"`
}

// PositionFromRaw scales raw on-chain base units into a Position.
func PositionFromRaw(balance, debt, capacity *big.Int) Position {
	return Position{
		Balance:        FromBaseUnits(balance),
		Debt:           FromBaseUnits(debt),
		BorrowCapacity: FromBaseUnits(capacity),
	}
}

// AvailableToBorrow is capacity minus debt. It may be transiently negative
// after a price or capacity change.
func (p Position) AvailableToBorrow() decimal.Decimal {
	return p.BorrowCapacity.Sub(p.Debt)
}

// FromBaseUnits converts a uint256 amount to native units. Nil reads as zero.
func FromBaseUnits(raw *big.Int) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(raw, -NativeDecimals)
}

// CollateralAsset is one NFT that is either owned by the account or posted as
// collateral with the lending contract.
type CollateralAsset struct {
	Contract         common.Address `json:"contract"`
	TokenID          *big.Int       `json:"tokenId"`
	Name             string         `json:"name,omitempty"`
	Symbol           string         `json:"symbol,omitempty"`
	Owner            common.Address `json:"owner"`
	HeldAsCollateral bool           `json:"heldAsCollateral"`
}

// AssetKey identifies an asset within one listing.
type AssetKey struct {
	Contract common.Address
	TokenID  string
}

// Key returns the identity of the asset.
func (a CollateralAsset) Key() AssetKey {
	id := ""
	if a.TokenID != nil {
		id = a.TokenID.String()
	}
	return AssetKey{Contract: a.Contract, TokenID: id}
}
