package wallet

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"

	"nftlend/observability"
	"nftlend/observability/logging"
)

// Resolver owns the wallet session and hands out signing handles. It connects
// on demand and publishes every session transition to its subscribers.
type Resolver struct {
	connector Connector
	logger    *slog.Logger

	mu     sync.Mutex
	signer *Signer

	feed  event.FeedOf[SessionEvent]
	scope event.SubscriptionScope
}

// NewResolver builds a resolver around connector.
func NewResolver(connector Connector, logger *slog.Logger) *Resolver {
	return &Resolver{
		connector: connector,
		logger:    logging.Component(logger, "wallet"),
	}
}

// Signer returns the signing handle of the current session, connecting first
// when needed. A failed connection is logged and reported as absent (false);
// it never fails the caller outright.
func (r *Resolver) Signer(ctx context.Context) (*Signer, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.Lock()
	if r.signer != nil {
		signer := r.signer
		r.mu.Unlock()
		return signer, true
	}
	signer, evt, err := r.connectLocked(ctx)
	r.mu.Unlock()
	if err != nil {
		r.logger.Warn("wallet connection failed", "error", err)
		return nil, false
	}
	r.publish(evt)
	return signer, true
}

// Account returns the connected account, if any, without connecting.
func (r *Resolver) Account() (common.Address, bool) {
	if r == nil {
		return common.Address{}, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.signer == nil {
		return common.Address{}, false
	}
	return r.signer.Account(), true
}

// Reconnect re-queries the wallet. An account switch replaces the session and
// publishes EventAccountChanged; a wallet that no longer answers ends the
// session with EventDisconnected.
func (r *Resolver) Reconnect(ctx context.Context) error {
	if r == nil {
		return ErrNotConnected
	}
	r.mu.Lock()
	_, evt, err := r.connectLocked(ctx)
	if err != nil {
		evt = r.resetLocked()
	}
	r.mu.Unlock()
	r.publish(evt)
	return err
}

// Disconnect resets the session to empty.
func (r *Resolver) Disconnect() {
	if r == nil {
		return
	}
	r.mu.Lock()
	evt := r.resetLocked()
	r.mu.Unlock()
	r.publish(evt)
}

// Subscribe delivers session events to ch until the subscription is
// cancelled. Subscribers must keep draining ch; delivery blocks the publisher.
func (r *Resolver) Subscribe(ch chan<- SessionEvent) event.Subscription {
	return r.scope.Track(r.feed.Subscribe(ch))
}

// Close ends every outstanding subscription.
func (r *Resolver) Close() {
	if r == nil {
		return
	}
	r.scope.Close()
}

// Watch polls the wallet every interval so account switches made inside the
// wallet are noticed. It returns when ctx is done.
func (r *Resolver) Watch(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Reconnect(ctx); err != nil {
				r.logger.Debug("wallet poll failed", "error", err)
			}
		}
	}
}

// connectLocked dials the connector and installs the resulting session. The
// returned event has Kind 0 when nothing observable changed.
func (r *Resolver) connectLocked(ctx context.Context) (*Signer, SessionEvent, error) {
	if r.connector == nil {
		return nil, SessionEvent{}, ErrNotConnected
	}
	conn, err := r.connector.Connect(ctx)
	if err != nil {
		return nil, SessionEvent{}, err
	}
	if conn.Account == (common.Address{}) {
		return nil, SessionEvent{}, ErrNoAccounts
	}
	var evt SessionEvent
	switch {
	case r.signer == nil:
		evt = SessionEvent{Kind: EventConnected, Account: conn.Account}
	case r.signer.Account() != conn.Account:
		evt = SessionEvent{Kind: EventAccountChanged, Account: conn.Account, Previous: r.signer.Account()}
	}
	r.signer = NewSigner(conn.Account, conn.Transactor)
	return r.signer, evt, nil
}

func (r *Resolver) resetLocked() SessionEvent {
	if r.signer == nil {
		return SessionEvent{}
	}
	evt := SessionEvent{Kind: EventDisconnected, Previous: r.signer.Account()}
	r.signer = nil
	return evt
}

func (r *Resolver) publish(evt SessionEvent) {
	if evt.Kind == 0 {
		return
	}
	observability.Sessions().RecordEvent(evt.Kind.String())
	r.logger.Info("wallet session changed",
		"kind", evt.Kind.String(),
		"account", evt.Account.Hex(),
		"previous", evt.Previous.Hex(),
	)
	r.feed.Send(evt)
}
