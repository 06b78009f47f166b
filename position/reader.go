package position

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"nftlend/contracts"
	"nftlend/observability"
	"nftlend/observability/logging"
	"nftlend/observability/otel"
	"nftlend/portfolio"
)

// ErrDisconnected is returned when no wallet session can be bound.
var ErrDisconnected = portfolio.ErrDisconnected

// Gateways yields the lending gateway bound to the current session.
type Gateways interface {
	Lending(ctx context.Context) (contracts.LendingGateway, error)
}

// Reader loads the session account's lending position.
type Reader struct {
	gateways Gateways
	logger   *slog.Logger
}

// NewReader wires a reader.
func NewReader(gateways Gateways, logger *slog.Logger) *Reader {
	return &Reader{gateways: gateways, logger: logging.Component(logger, "position")}
}

// Load reads balance, debt and borrow capacity of account concurrently. It
// never returns a partial position: any failed read fails the load. When the
// session has moved to another account it fails with ErrAccountChanged.
func (r *Reader) Load(ctx context.Context, account common.Address) (position portfolio.Position, err error) {
	started := time.Now()
	ctx, span := otel.Tracer().Start(ctx, "position.load")
	defer func() {
		otel.EndSpan(span, err)
		outcome := "success"
		switch {
		case errors.Is(err, ErrDisconnected):
			outcome = "disconnected"
		case errors.Is(err, portfolio.ErrAccountChanged):
			outcome = "stale"
		case err != nil:
			outcome = "error"
		}
		observability.Loads().Observe(string(portfolio.ResourcePosition), outcome, time.Since(started))
	}()

	if r == nil || r.gateways == nil {
		return portfolio.Position{}, ErrDisconnected
	}
	lending, err := r.gateways.Lending(ctx)
	if err != nil {
		if errors.Is(err, contracts.ErrNoSigner) {
			return portfolio.Position{}, fmt.Errorf("%w: %w", ErrDisconnected, err)
		}
		return portfolio.Position{}, err
	}
	if bound := lending.Account(); bound != account {
		return portfolio.Position{}, fmt.Errorf("%w: loading %s, session is %s", portfolio.ErrAccountChanged, account.Hex(), bound.Hex())
	}

	var balance, debt, capacity *big.Int
	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() (err error) {
		balance, err = lending.Balance(gctx)
		return err
	})
	group.Go(func() (err error) {
		debt, err = lending.Debt(gctx)
		return err
	})
	group.Go(func() (err error) {
		capacity, err = lending.BorrowCapacity(gctx)
		return err
	})
	if err := group.Wait(); err != nil {
		r.logger.Warn("position load failed", "account", account.Hex(), "error", err)
		return portfolio.Position{}, fmt.Errorf("load position: %w", err)
	}

	position = portfolio.PositionFromRaw(balance, debt, capacity)
	r.logger.Debug("position loaded",
		"account", account.Hex(),
		"balance", position.Balance.String(),
		"debt", position.Debt.String(),
		"borrow_capacity", position.BorrowCapacity.String(),
	)
	return position, nil
}
