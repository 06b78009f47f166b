package contracts

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Pending is a submitted, not yet confirmed transaction.
type Pending interface {
	Hash() common.Hash
	Method() string
	// Wait blocks until the transaction is mined. A failed receipt yields
	// ErrReverted alongside the receipt.
	Wait(ctx context.Context) (*types.Receipt, error)
}

type pendingTx struct {
	backend bind.DeployBackend
	tx      *types.Transaction
	method  string
}

func newPending(backend bind.DeployBackend, tx *types.Transaction, method string) *pendingTx {
	return &pendingTx{backend: backend, tx: tx, method: method}
}

func (p *pendingTx) Hash() common.Hash { return p.tx.Hash() }

func (p *pendingTx) Method() string { return p.method }

func (p *pendingTx) Wait(ctx context.Context) (*types.Receipt, error) {
	receipt, err := bind.WaitMined(ctx, p.backend, p.tx)
	if err != nil {
		return nil, fmt.Errorf("wait for %s %s: %w", p.method, p.tx.Hash().Hex(), err)
	}
	if receipt == nil {
		return nil, fmt.Errorf("wait for %s %s: receipt missing", p.method, p.tx.Hash().Hex())
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, fmt.Errorf("%s %s: %w", p.method, p.tx.Hash().Hex(), ErrReverted)
	}
	return receipt, nil
}

// MintedTokenID extracts the token id minted to recipient by contract from a
// confirmed receipt. Mints are ERC-721 Transfer logs from the zero address.
func MintedTokenID(receipt *types.Receipt, contract, recipient common.Address) (*big.Int, error) {
	if receipt == nil {
		return nil, ErrNoMint
	}
	zero := common.Hash{}
	for _, log := range receipt.Logs {
		if log == nil || log.Address != contract {
			continue
		}
		// Transfer(address indexed, address indexed, uint256 indexed)
		if len(log.Topics) != 4 || log.Topics[0] != transferEventSignature {
			continue
		}
		if log.Topics[1] != zero {
			continue
		}
		if common.BytesToAddress(log.Topics[2].Bytes()) != recipient {
			continue
		}
		return new(big.Int).SetBytes(log.Topics[3].Bytes()), nil
	}
	return nil, ErrNoMint
}
