package contracts

import "errors"

var (
	// ErrNoSigner is returned when a gateway is requested without a connected
	// wallet session.
	ErrNoSigner = errors.New("contracts: no signer available")
	// ErrReverted reports a mined transaction whose receipt status is failed.
	ErrReverted = errors.New("contracts: transaction reverted")
	// ErrReadFailure wraps failed view calls.
	ErrReadFailure = errors.New("contracts: read failed")
	// ErrNoMint is returned when a claim receipt carries no mint transfer.
	ErrNoMint = errors.New("contracts: no minted token in receipt")
)
