package contracts

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"

	"nftlend/wallet"
)

// NFTGateway is the ERC-721 subset used for collateral and the giveaway.
type NFTGateway interface {
	Address() common.Address
	// Claim mints a free token to the session account. The token id is
	// recovered from the confirmed receipt with MintedTokenID.
	Claim(ctx context.Context) (Pending, error)
	GetApproved(ctx context.Context, tokenID *big.Int) (common.Address, error)
	Approve(ctx context.Context, spender common.Address, tokenID *big.Int) (Pending, error)
}

type nftContract struct {
	address  common.Address
	backend  Backend
	contract *bind.BoundContract
	signer   *wallet.Signer
}

func newNFTContract(address common.Address, backend Backend, signer *wallet.Signer) *nftContract {
	return &nftContract{
		address:  address,
		backend:  backend,
		contract: bind.NewBoundContract(address, nftABI, backend, backend, backend),
		signer:   signer,
	}
}

func (n *nftContract) Address() common.Address { return n.address }

func (n *nftContract) Claim(ctx context.Context) (Pending, error) {
	return submit(ctx, n.contract, n.backend, n.signer, nil, methodClaim)
}

func (n *nftContract) GetApproved(ctx context.Context, tokenID *big.Int) (common.Address, error) {
	if tokenID == nil {
		return common.Address{}, fmt.Errorf("%s: token id required", methodGetApproved)
	}
	out, err := callView(ctx, n.contract, n.signer, methodGetApproved, tokenID)
	if err != nil {
		return common.Address{}, err
	}
	approved, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("%s: %w: unexpected return type %T", methodGetApproved, ErrReadFailure, out[0])
	}
	return approved, nil
}

func (n *nftContract) Approve(ctx context.Context, spender common.Address, tokenID *big.Int) (Pending, error) {
	if tokenID == nil {
		return nil, fmt.Errorf("%s: token id required", methodApprove)
	}
	return submit(ctx, n.contract, n.backend, n.signer, nil, methodApprove, spender, tokenID)
}
