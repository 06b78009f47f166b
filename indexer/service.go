package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"nftlend/observability/logging"
	"nftlend/observability/metrics"
)

// ErrNotReady wraps the probe failure of a service that could not start.
var ErrNotReady = errors.New("indexer: service not ready")

// defaultProbeTimeout bounds a start-up probe, which no single caller owns.
const defaultProbeTimeout = 15 * time.Second

// State is the lifecycle of the indexing client.
type State int

const (
	StateUninitialized State = iota
	StateStarting
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Prober checks that the indexing service is reachable.
type Prober interface {
	Version(ctx context.Context) (string, error)
}

// Lister returns the first page of NFTs owned by an address.
type Lister interface {
	WalletNFTs(ctx context.Context, owner common.Address) (*Page, error)
}

// Backend is what the Service wraps; *Client implements it.
type Backend interface {
	Prober
	Lister
}

type startAttempt struct {
	done chan struct{}
	err  error
}

// Service guards the indexing client with an explicit start-up lifecycle.
// Listings are only served once the service is Ready.
type Service struct {
	backend      Backend
	logger       *slog.Logger
	probeTimeout time.Duration

	mu      sync.Mutex
	state   State
	attempt *startAttempt
}

// NewService wraps backend in an uninitialized service.
func NewService(backend Backend, logger *slog.Logger) *Service {
	return &Service{
		backend:      backend,
		logger:       logging.Component(logger, "indexer"),
		probeTimeout: defaultProbeTimeout,
	}
}

// State reports the current lifecycle state.
func (s *Service) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// EnsureReady starts the service when needed. It is idempotent: once Ready it
// returns immediately, callers arriving while Starting wait for the same
// outcome, and a Failed service probes again. The probe outlives the caller
// that started it, so a cancelled caller does not fail the others.
func (s *Service) EnsureReady(ctx context.Context) error {
	if s == nil || s.backend == nil {
		return fmt.Errorf("%w: no backend", ErrNotReady)
	}
	s.mu.Lock()
	switch s.state {
	case StateReady:
		s.mu.Unlock()
		return nil
	case StateStarting:
		attempt := s.attempt
		s.mu.Unlock()
		return attempt.wait(ctx)
	}
	attempt := &startAttempt{done: make(chan struct{})}
	s.attempt = attempt
	s.setStateLocked(StateStarting)
	s.mu.Unlock()

	go s.probe(context.WithoutCancel(ctx), attempt)
	return attempt.wait(ctx)
}

func (s *Service) probe(ctx context.Context, attempt *startAttempt) {
	ctx, cancel := context.WithTimeout(ctx, s.probeTimeout)
	defer cancel()
	version, err := s.backend.Version(ctx)

	s.mu.Lock()
	if err != nil {
		attempt.err = fmt.Errorf("%w: %w", ErrNotReady, err)
		s.setStateLocked(StateFailed)
	} else {
		s.setStateLocked(StateReady)
	}
	close(attempt.done)
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn("indexer start failed", "error", err)
		return
	}
	s.logger.Info("indexer ready", "version", version)
}

func (a *startAttempt) wait(ctx context.Context) error {
	select {
	case <-a.done:
		return a.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WalletNFTs serves the first page of owner's listing once the service is
// ready.
func (s *Service) WalletNFTs(ctx context.Context, owner common.Address) (*Page, error) {
	if err := s.EnsureReady(ctx); err != nil {
		return nil, err
	}
	return s.backend.WalletNFTs(ctx, owner)
}

func (s *Service) setStateLocked(state State) {
	s.state = state
	metrics.Indexer().SetLifecycle(int(state))
}
