package inventory

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"nftlend/contracts/contractstest"
	"nftlend/indexer"
)

// staleListing reports token #5 of lagging as still owned by holder.
type staleListing struct {
	*contractstest.Ledger
	holder  common.Address
	lagging common.Address
}

func (s *staleListing) WalletNFTs(ctx context.Context, owner common.Address) (*indexer.Page, error) {
	if owner != s.holder {
		return s.Ledger.WalletNFTs(ctx, owner)
	}
	return indexer.NewPage([]indexer.NFT{{
		TokenAddress: s.lagging,
		TokenID:      big.NewInt(5),
		Name:         "Free",
		Owner:        s.holder,
	}}, nil), nil
}
