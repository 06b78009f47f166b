// Package refresh keeps the local portfolio view in step with the chain. It
// reloads on wallet session changes and after user actions, and applies
// results through the store's sequencing tickets so a slow load can never
// overwrite a newer one.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
	"golang.org/x/sync/errgroup"

	"nftlend/observability"
	"nftlend/observability/logging"
	"nftlend/portfolio"
	"nftlend/wallet"
)

// PositionLoader reads account's position. It fails with
// portfolio.ErrAccountChanged when the session no longer signs for account.
type PositionLoader interface {
	Load(ctx context.Context, account common.Address) (portfolio.Position, error)
}

// InventoryLoader lists owner's NFTs and posted collateral, with the same
// account binding as PositionLoader.
type InventoryLoader interface {
	Load(ctx context.Context, owner common.Address) ([]portfolio.CollateralAsset, error)
}

// Sessions is the wallet side the syncer follows.
type Sessions interface {
	Signer(ctx context.Context) (*wallet.Signer, bool)
	Subscribe(ch chan<- wallet.SessionEvent) event.Subscription
}

// Syncer runs loads and applies them to the store.
type Syncer struct {
	store     *portfolio.Store
	positions PositionLoader
	inventory InventoryLoader
	sessions  Sessions
	logger    *slog.Logger
}

// NewSyncer wires a syncer.
func NewSyncer(store *portfolio.Store, positions PositionLoader, inventory InventoryLoader, sessions Sessions, logger *slog.Logger) *Syncer {
	return &Syncer{
		store:     store,
		positions: positions,
		inventory: inventory,
		sessions:  sessions,
		logger:    logging.Component(logger, "refresh"),
	}
}

// Store exposes the view the syncer maintains.
func (s *Syncer) Store() *portfolio.Store { return s.store }

// RefreshPosition reloads the position. A failed load leaves the store
// untouched. A load that raced an account switch is dropped without error;
// the session event that follows reloads the new account.
func (s *Syncer) RefreshPosition(ctx context.Context) error {
	account, err := s.session(ctx)
	if err != nil {
		return err
	}
	ticket := s.store.IssueFor(account, portfolio.ResourcePosition)
	position, err := s.positions.Load(ctx, ticket.Account)
	switch {
	case errors.Is(err, portfolio.ErrAccountChanged):
		s.discard(ticket, err)
		return nil
	case err != nil:
		s.logger.Warn("position refresh failed", "account", account.Hex(), "seq", ticket.Seq, "error", err)
		return fmt.Errorf("refresh position: %w", err)
	}
	if !s.store.ApplyPosition(ticket, position) {
		s.logger.Debug("discarded stale position", "account", account.Hex(), "seq", ticket.Seq)
	}
	return nil
}

// RefreshInventory reloads the NFT inventory of the session account.
func (s *Syncer) RefreshInventory(ctx context.Context) error {
	account, err := s.session(ctx)
	if err != nil {
		return err
	}
	ticket := s.store.IssueFor(account, portfolio.ResourceInventory)
	items, err := s.inventory.Load(ctx, ticket.Account)
	switch {
	case errors.Is(err, portfolio.ErrAccountChanged):
		s.discard(ticket, err)
		return nil
	case err != nil:
		s.logger.Warn("inventory refresh failed", "account", account.Hex(), "seq", ticket.Seq, "error", err)
		return fmt.Errorf("refresh inventory: %w", err)
	}
	if !s.store.ApplyInventory(ticket, items) {
		s.logger.Debug("discarded stale inventory", "account", account.Hex(), "seq", ticket.Seq)
	}
	return nil
}

func (s *Syncer) discard(ticket portfolio.Ticket, err error) {
	observability.Loads().RecordStale(string(ticket.Resource))
	s.logger.Debug("discarded load for previous account",
		"resource", string(ticket.Resource),
		"account", ticket.Account.Hex(),
		"seq", ticket.Seq,
		"error", err,
	)
}

// RefreshAll reloads position and inventory concurrently.
func (s *Syncer) RefreshAll(ctx context.Context) error {
	var group errgroup.Group
	group.Go(func() error { return s.RefreshPosition(ctx) })
	group.Go(func() error { return s.RefreshInventory(ctx) })
	return group.Wait()
}

// Run follows wallet session events until ctx is done: a new or switched
// account resets the view and reloads it, a disconnect clears it.
func (s *Syncer) Run(ctx context.Context) error {
	events := make(chan wallet.SessionEvent, 16)
	sub := s.sessions.Subscribe(events)
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-sub.Err():
			return err
		case evt := <-events:
			s.handle(ctx, evt)
		}
	}
}

func (s *Syncer) handle(ctx context.Context, evt wallet.SessionEvent) {
	switch evt.Kind {
	case wallet.EventConnected, wallet.EventAccountChanged:
		s.store.Reset(evt.Account)
		if err := s.RefreshAll(ctx); err != nil {
			s.logger.Warn("refresh after session change failed",
				"kind", evt.Kind.String(),
				"account", evt.Account.Hex(),
				"error", err,
			)
		}
	case wallet.EventDisconnected:
		s.store.Reset(common.Address{})
	}
}

// session resolves the session account, connecting on demand. A missing
// session clears the view.
func (s *Syncer) session(ctx context.Context) (common.Address, error) {
	signer, ok := s.sessions.Signer(ctx)
	if !ok {
		if _, connected := s.store.Account(); connected {
			s.store.Reset(common.Address{})
		}
		return common.Address{}, portfolio.ErrDisconnected
	}
	return signer.Account(), nil
}
