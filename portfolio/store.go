package portfolio

import (
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"nftlend/observability"
)

// Resource names a separately loaded part of the local view.
type Resource string

const (
	ResourcePosition  Resource = "position"
	ResourceInventory Resource = "inventory"
)

// Ticket is issued before a load starts. Its result is applied only when no
// newer ticket for the same resource has been applied and the store still
// tracks Account. Loaders must read state for Account and nobody else.
type Ticket struct {
	Resource Resource
	Seq      uint64
	Account  common.Address
	epoch    uint64
}

// Snapshot is a consistent copy of the local view.
type Snapshot struct {
	Account      common.Address    `json:"account"`
	Connected    bool              `json:"connected"`
	Position     *Position         `json:"position,omitempty"`
	Inventory    []CollateralAsset `json:"inventory,omitempty"`
	PositionSeq  uint64            `json:"positionSeq"`
	InventorySeq uint64            `json:"inventorySeq"`
	UpdatedAt    time.Time         `json:"updatedAt"`
}

// Store holds the latest applied Position and inventory for one account.
type Store struct {
	mu        sync.RWMutex
	now       func() time.Time
	account   common.Address
	connected bool
	epoch     uint64
	issued    map[Resource]uint64
	applied   map[Resource]uint64
	position  *Position
	inventory []CollateralAsset
	updatedAt time.Time
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		now:     time.Now,
		issued:  make(map[Resource]uint64),
		applied: make(map[Resource]uint64),
	}
}

// Issue hands out the next ticket for resource, bound to the tracked
// account.
func (s *Store) Issue(resource Resource) Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.issueLocked(resource)
}

// IssueFor switches the store to account unless it already tracks it, then
// hands out a ticket for resource bound to account. Both happen under one
// lock so a concurrent switch can't slip in between.
func (s *Store) IssueFor(account common.Address, resource Resource) Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trackLocked(account)
	return s.issueLocked(resource)
}

func (s *Store) issueLocked(resource Resource) Ticket {
	s.issued[resource]++
	return Ticket{Resource: resource, Seq: s.issued[resource], Account: s.account, epoch: s.epoch}
}

// ApplyPosition stores position if ticket is still current. It reports
// whether the value was applied.
func (s *Store) ApplyPosition(ticket Ticket, position Position) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.acceptLocked(ticket, ResourcePosition) {
		return false
	}
	s.position = &position
	return true
}

// ApplyInventory stores the listing if ticket is still current.
func (s *Store) ApplyInventory(ticket Ticket, items []CollateralAsset) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.acceptLocked(ticket, ResourceInventory) {
		return false
	}
	s.inventory = cloneAssets(items)
	return true
}

// Reset switches the store to account and drops all cached state. Every
// outstanding ticket becomes stale. The zero address records a disconnect.
func (s *Store) Reset(account common.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked(account)
}

func (s *Store) resetLocked(account common.Address) {
	s.epoch++
	s.account = account
	s.connected = account != (common.Address{})
	s.position = nil
	s.inventory = nil
	s.applied = make(map[Resource]uint64)
	s.updatedAt = s.now()
}

func (s *Store) trackLocked(account common.Address) {
	if s.connected && s.account == account {
		return
	}
	s.resetLocked(account)
}

// Account returns the account the store currently tracks.
func (s *Store) Account() (common.Address, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.account, s.connected
}

// Snapshot copies the current view.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		Account:      s.account,
		Connected:    s.connected,
		Inventory:    cloneAssets(s.inventory),
		PositionSeq:  s.applied[ResourcePosition],
		InventorySeq: s.applied[ResourceInventory],
		UpdatedAt:    s.updatedAt,
	}
	if s.position != nil {
		position := *s.position
		snap.Position = &position
	}
	return snap
}

func (s *Store) acceptLocked(ticket Ticket, resource Resource) bool {
	if ticket.Resource != resource || ticket.epoch != s.epoch || ticket.Account != s.account || ticket.Seq <= s.applied[resource] {
		observability.Loads().RecordStale(string(resource))
		return false
	}
	s.applied[resource] = ticket.Seq
	s.updatedAt = s.now()
	return true
}

func cloneAssets(items []CollateralAsset) []CollateralAsset {
	if items == nil {
		return nil
	}
	out := make([]CollateralAsset, len(items))
	for i, item := range items {
		out[i] = item
		if item.TokenID != nil {
			out[i].TokenID = new(big.Int).Set(item.TokenID)
		}
	}
	return out
}
