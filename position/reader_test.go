package position

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"nftlend/contracts"
	"nftlend/contracts/contractstest"
	"nftlend/portfolio"
)

var (
	lendingAddr = common.HexToAddress("0xbcE690cb71b727ce476c73cAf6B734aff14b665f")
	holder      = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
)

func wei(value string) *big.Int {
	parsed, _ := new(big.Int).SetString(value, 10)
	return parsed
}

func TestLoadScalesBaseUnits(t *testing.T) {
	t.Parallel()

	ledger := contractstest.NewLedger(lendingAddr, holder)
	ledger.SetPosition(wei("1500000000000000000"), wei("1000000000000000"), wei("20000000000000000"))

	position, err := NewReader(ledger, nil).Load(context.Background(), holder)
	require.NoError(t, err)
	require.True(t, position.Balance.Equal(decimal.RequireFromString("1.5")))
	require.True(t, position.Debt.Equal(decimal.RequireFromString("0.001")))
	require.True(t, position.BorrowCapacity.Equal(decimal.RequireFromString("0.02")))
	require.True(t, position.AvailableToBorrow().Equal(decimal.RequireFromString("0.019")))

	for _, method := range []string{"myBalance", "myDebt", "myBorrowCapacity"} {
		require.Equal(t, 1, ledger.ReadCalls(method), method)
	}
}

func TestLoadNeverPartial(t *testing.T) {
	t.Parallel()

	ledger := contractstest.NewLedger(lendingAddr, holder)
	ledger.SetPosition(big.NewInt(1), big.NewInt(2), big.NewInt(3))
	ledger.ReadErr = func(method string) error {
		if method == "myDebt" {
			return errors.New("header not found")
		}
		return nil
	}

	position, err := NewReader(ledger, nil).Load(context.Background(), holder)
	require.ErrorIs(t, err, contracts.ErrReadFailure)
	require.Equal(t, decimal.Decimal{}, position.Balance)
	require.True(t, position.BorrowCapacity.IsZero())
}

func TestLoadDisconnected(t *testing.T) {
	t.Parallel()

	ledger := contractstest.NewLedger(lendingAddr, holder)
	ledger.SetConnected(false)

	_, err := NewReader(ledger, nil).Load(context.Background(), holder)
	require.ErrorIs(t, err, ErrDisconnected)
	require.ErrorIs(t, err, contracts.ErrNoSigner)

	var nilReader *Reader
	_, err = nilReader.Load(context.Background(), holder)
	require.ErrorIs(t, err, ErrDisconnected)
}

func TestLoadRefusesAnotherAccount(t *testing.T) {
	t.Parallel()

	ledger := contractstest.NewLedger(lendingAddr, holder)
	ledger.SetPosition(big.NewInt(9), big.NewInt(0), big.NewInt(0))

	other := common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	position, err := NewReader(ledger, nil).Load(context.Background(), other)
	require.ErrorIs(t, err, portfolio.ErrAccountChanged)
	require.True(t, position.Balance.IsZero())
	require.Zero(t, ledger.ReadCalls("myBalance"))
}
