package inventory

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"nftlend/contracts/contractstest"
	"nftlend/portfolio"
)

var (
	lendingAddr = common.HexToAddress("0xbcE690cb71b727ce476c73cAf6B734aff14b665f")
	collection  = common.HexToAddress("0xa22311570fFD31938099174456823a60A42fbd6D")
	other       = common.HexToAddress("0x3333333333333333333333333333333333333333")
	holder      = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	stranger    = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

func keys(items []portfolio.CollateralAsset) map[string]bool {
	out := make(map[string]bool, len(items))
	for _, item := range items {
		out[item.Contract.Hex()+"#"+item.TokenID.String()] = item.HeldAsCollateral
	}
	return out
}

func TestLoadOwnedPlusConfirmedCollateral(t *testing.T) {
	t.Parallel()

	ledger := contractstest.NewLedger(lendingAddr, holder)
	ledger.Mint(collection, 1, "Free", "FREE", holder)
	ledger.Mint(collection, 2, "Free", "FREE", holder)
	ledger.Mint(collection, 3, "Free", "FREE", lendingAddr)
	ledger.SetCollateral(collection, 3, true)

	items, err := NewAggregator(ledger, ledger, nil).Load(context.Background(), holder)
	require.NoError(t, err)
	require.Len(t, items, 3)
	require.Equal(t, map[string]bool{
		collection.Hex() + "#1": false,
		collection.Hex() + "#2": false,
		collection.Hex() + "#3": true,
	}, keys(items))

	// Owned entries come first.
	require.False(t, items[0].HeldAsCollateral)
	require.False(t, items[1].HeldAsCollateral)
	require.True(t, items[2].HeldAsCollateral)
}

func TestLoadExcludesUnconfirmedCustody(t *testing.T) {
	t.Parallel()

	ledger := contractstest.NewLedger(lendingAddr, holder)
	ledger.Mint(collection, 7, "Free", "FREE", lendingAddr)
	ledger.Mint(other, 8, "Other", "OTH", lendingAddr)
	ledger.SetCollateral(other, 8, true)

	items, err := NewAggregator(ledger, ledger, nil).Load(context.Background(), holder)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, other, items[0].Contract)
	require.True(t, items[0].HeldAsCollateral)
	require.Equal(t, 2, ledger.ReadCalls("isCollateralized"))
}

func TestLoadWalksEveryPage(t *testing.T) {
	t.Parallel()

	ledger := contractstest.NewLedger(lendingAddr, holder)
	ledger.SetPageSize(3)
	for id := int64(1); id <= 10; id++ {
		ledger.Mint(collection, id, "Free", "FREE", holder)
	}
	for id := int64(11); id <= 15; id++ {
		ledger.Mint(collection, id, "Free", "FREE", lendingAddr)
		ledger.SetCollateral(collection, id, true)
	}
	ledger.Mint(collection, 99, "Free", "FREE", stranger)

	items, err := NewAggregator(ledger, ledger, nil).Load(context.Background(), holder)
	require.NoError(t, err)
	require.Len(t, items, 15)
	// 10 owned over 4 pages, 5 custodial over 2 pages.
	require.Equal(t, 6, ledger.ListCalls())
	require.NotContains(t, keys(items), collection.Hex()+"#99")
}

func TestLoadAbortsOnAnyFailure(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		setup func(*contractstest.Ledger)
	}{
		{
			name: "second owned page",
			setup: func(l *contractstest.Ledger) {
				l.ListErr = func(owner common.Address, page int) error {
					if owner == holder && page == 1 {
						return errors.New("indexer timeout")
					}
					return nil
				}
			},
		},
		{
			name: "custodial listing",
			setup: func(l *contractstest.Ledger) {
				l.ListErr = func(owner common.Address, _ int) error {
					if owner == lendingAddr {
						return errors.New("indexer 500")
					}
					return nil
				}
			},
		},
		{
			name: "collateral check",
			setup: func(l *contractstest.Ledger) {
				l.ReadErr = func(string) error { return errors.New("rpc down") }
			},
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			ledger := contractstest.NewLedger(lendingAddr, holder)
			ledger.SetPageSize(1)
			ledger.Mint(collection, 1, "Free", "FREE", holder)
			ledger.Mint(collection, 2, "Free", "FREE", holder)
			ledger.Mint(collection, 3, "Free", "FREE", lendingAddr)
			ledger.SetCollateral(collection, 3, true)
			tc.setup(ledger)

			items, err := NewAggregator(ledger, ledger, nil).Load(context.Background(), holder)
			require.Error(t, err)
			require.Nil(t, items)
		})
	}
}

func TestLoadDisconnected(t *testing.T) {
	t.Parallel()

	ledger := contractstest.NewLedger(lendingAddr, holder)
	ledger.SetConnected(false)

	_, err := NewAggregator(ledger, ledger, nil).Load(context.Background(), holder)
	require.ErrorIs(t, err, portfolio.ErrDisconnected)
	require.Zero(t, ledger.ListCalls())
}

func TestLoadCollapsesDuplicateKeys(t *testing.T) {
	t.Parallel()

	// An indexer lagging behind a deposit can report the token under both
	// the holder and the custodian.
	ledger := contractstest.NewLedger(lendingAddr, holder)
	ledger.Mint(collection, 5, "Free", "FREE", lendingAddr)
	ledger.SetCollateral(collection, 5, true)

	stale := &staleListing{Ledger: ledger, holder: holder, lagging: collection}
	items, err := NewAggregator(stale, ledger, nil).Load(context.Background(), holder)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.True(t, items[0].HeldAsCollateral)
}

func TestLoadRefusesOwnerOtherThanSession(t *testing.T) {
	t.Parallel()

	ledger := contractstest.NewLedger(lendingAddr, holder)
	ledger.Mint(collection, 1, "Free", "FREE", lendingAddr)
	ledger.SetCollateral(collection, 1, true)

	other := common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	items, err := NewAggregator(ledger, ledger, nil).Load(context.Background(), other)
	require.ErrorIs(t, err, portfolio.ErrAccountChanged)
	require.Nil(t, items)
	require.Zero(t, ledger.ListCalls())
	require.Zero(t, ledger.ReadCalls("isCollateralized"))
}
