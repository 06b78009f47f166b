// Package inventory assembles the NFT listing shown to the wallet holder: the
// NFTs it owns plus the NFTs it has posted as collateral.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"nftlend/contracts"
	"nftlend/indexer"
	"nftlend/observability"
	"nftlend/observability/logging"
	"nftlend/observability/metrics"
	"nftlend/observability/otel"
	"nftlend/portfolio"
)

// Gateways yields the lending gateway bound to the current session.
type Gateways interface {
	Lending(ctx context.Context) (contracts.LendingGateway, error)
}

// Aggregator builds the inventory from two indexer listings and the lending
// contract's collateral registry.
type Aggregator struct {
	listings indexer.Lister
	gateways Gateways
	logger   *slog.Logger
}

// NewAggregator wires an aggregator.
func NewAggregator(listings indexer.Lister, gateways Gateways, logger *slog.Logger) *Aggregator {
	return &Aggregator{listings: listings, gateways: gateways, logger: logging.Component(logger, "inventory")}
}

// Load returns every NFT owned by owner (not collateral) followed by every
// NFT the lending contract holds that it confirms as collateral for owner.
// owner must be the session account, since the contract answers
// isCollateralized per caller. Any failure aborts the whole load. Entries sharing a contract and token id collapse
// into one; a confirmed collateral entry replaces an owned one.
func (a *Aggregator) Load(ctx context.Context, owner common.Address) (items []portfolio.CollateralAsset, err error) {
	started := time.Now()
	ctx, span := otel.Tracer().Start(ctx, "inventory.load")
	defer func() {
		otel.EndSpan(span, err)
		observability.Loads().Observe(string(portfolio.ResourceInventory), loadOutcome(err), time.Since(started))
	}()

	lending, err := a.gateways.Lending(ctx)
	if err != nil {
		if errors.Is(err, contracts.ErrNoSigner) {
			return nil, fmt.Errorf("%w: %w", portfolio.ErrDisconnected, err)
		}
		return nil, err
	}
	if bound := lending.Account(); bound != owner {
		return nil, fmt.Errorf("%w: loading %s, session is %s", portfolio.ErrAccountChanged, owner.Hex(), bound.Hex())
	}

	owned, err := collect(ctx, a.listings, owner, "owned")
	if err != nil {
		return nil, fmt.Errorf("list owned nfts: %w", err)
	}
	custodial, err := collect(ctx, a.listings, lending.Address(), "custodial")
	if err != nil {
		return nil, fmt.Errorf("list custodial nfts: %w", err)
	}

	items = make([]portfolio.CollateralAsset, 0, len(owned))
	index := make(map[portfolio.AssetKey]int, len(owned))
	add := func(asset portfolio.CollateralAsset) {
		key := asset.Key()
		if at, ok := index[key]; ok {
			if asset.HeldAsCollateral {
				items[at] = asset
			}
			return
		}
		index[key] = len(items)
		items = append(items, asset)
	}

	for _, nft := range owned {
		add(toAsset(nft, false))
	}
	excluded := 0
	for _, nft := range custodial {
		held, err := lending.IsCollateralized(ctx, nft.TokenAddress, nft.TokenID)
		if err != nil {
			return nil, fmt.Errorf("check collateral %s #%s: %w", nft.TokenAddress.Hex(), nft.TokenID, err)
		}
		if !held {
			excluded++
			continue
		}
		add(toAsset(nft, true))
	}

	a.logger.Debug("inventory loaded",
		"account", owner.Hex(),
		"owned", len(owned),
		"custodial", len(custodial),
		"excluded", excluded,
		"items", len(items),
	)
	return items, nil
}

// collect walks every page of owner's listing sequentially.
func collect(ctx context.Context, listings indexer.Lister, owner common.Address, listing string) ([]indexer.NFT, error) {
	page, err := listings.WalletNFTs(ctx, owner)
	if err != nil {
		return nil, err
	}
	var out []indexer.NFT
	for {
		out = append(out, page.Result...)
		metrics.Indexer().RecordItems(listing, len(page.Result))
		if !page.HasNext() {
			return out, nil
		}
		if page, err = page.Next(ctx); err != nil {
			return nil, err
		}
	}
}

func toAsset(nft indexer.NFT, held bool) portfolio.CollateralAsset {
	return portfolio.CollateralAsset{
		Contract:         nft.TokenAddress,
		TokenID:          nft.TokenID,
		Name:             nft.Name,
		Symbol:           nft.Symbol,
		Owner:            nft.Owner,
		HeldAsCollateral: held,
	}
}

func loadOutcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, portfolio.ErrDisconnected):
		return "disconnected"
	case errors.Is(err, portfolio.ErrAccountChanged):
		return "stale"
	default:
		return "error"
	}
}
