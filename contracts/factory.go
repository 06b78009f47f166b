package contracts

import (
	"context"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"

	"nftlend/wallet"
)

// Backend is the chain access the gateways need: calls, transactions, and
// receipts. *ethclient.Client satisfies it.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
}

// SignerSource yields the signing handle of the current wallet session.
type SignerSource interface {
	Signer(ctx context.Context) (*wallet.Signer, bool)
}

// Factory binds gateways to the current session signer. Gateways are cheap
// and must be requested again after the session changes.
type Factory struct {
	backend Backend
	signers SignerSource
	lending common.Address
}

// NewFactory returns a factory for the lending contract at lending.
func NewFactory(backend Backend, signers SignerSource, lending common.Address) *Factory {
	return &Factory{backend: backend, signers: signers, lending: lending}
}

// LendingAddress is the custodian of posted collateral.
func (f *Factory) LendingAddress() common.Address {
	if f == nil {
		return common.Address{}
	}
	return f.lending
}

// Lending binds the lending contract to the session signer.
func (f *Factory) Lending(ctx context.Context) (LendingGateway, error) {
	signer, err := f.signer(ctx)
	if err != nil {
		return nil, err
	}
	return newLendingContract(f.lending, f.backend, signer), nil
}

// NFT binds the ERC-721 contract at address to the session signer.
func (f *Factory) NFT(ctx context.Context, address common.Address) (NFTGateway, error) {
	signer, err := f.signer(ctx)
	if err != nil {
		return nil, err
	}
	return newNFTContract(address, f.backend, signer), nil
}

func (f *Factory) signer(ctx context.Context) (*wallet.Signer, error) {
	if f == nil || f.backend == nil || f.signers == nil {
		return nil, ErrNoSigner
	}
	signer, ok := f.signers.Signer(ctx)
	if !ok || signer == nil {
		return nil, ErrNoSigner
	}
	return signer, nil
}
