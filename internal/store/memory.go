package store

import (
	"context"
	"sort"
	"sync"

	"github.com/ovmx/options-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu                sync.RWMutex
	markets           map[string]*model.MarketSnapshot
	boards            map[string]*model.BoardSnapshot
	strikes           map[string]*model.StrikeSnapshot
	positions         map[string]*model.Position
	trades            map[string][]model.TradeEvent           // keyed by position ID
	collateralUpdates map[string][]model.CollateralUpdateEvent // keyed by position ID
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		markets:           make(map[string]*model.MarketSnapshot),
		boards:            make(map[string]*model.BoardSnapshot),
		strikes:           make(map[string]*model.StrikeSnapshot),
		positions:         make(map[string]*model.Position),
		trades:            make(map[string][]model.TradeEvent),
		collateralUpdates: make(map[string][]model.CollateralUpdateEvent),
	}
}

func (s *MemoryStore) UpsertMarketSnapshot(_ context.Context, m *model.MarketSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Store a copy to avoid external mutation.
	copy := *m
	s.markets[m.Name] = &copy
	return nil
}

func (s *MemoryStore) GetMarketSnapshot(_ context.Context, name string) (*model.MarketSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.markets[name]
	if !ok {
		return nil, ErrNotFound
	}
	copy := *m
	return &copy, nil
}

func (s *MemoryStore) ListMarketSnapshots(_ context.Context) ([]model.MarketSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	markets := make([]model.MarketSnapshot, 0, len(s.markets))
	for _, m := range s.markets {
		markets = append(markets, *m)
	}
	sort.Slice(markets, func(i, j int) bool { return markets[i].Name < markets[j].Name })
	return markets, nil
}

func (s *MemoryStore) UpsertBoardSnapshot(_ context.Context, b *model.BoardSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copy := *b
	s.boards[b.ID] = &copy
	return nil
}

func (s *MemoryStore) GetBoardSnapshot(_ context.Context, id string) (*model.BoardSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.boards[id]
	if !ok {
		return nil, ErrNotFound
	}
	copy := *b
	return &copy, nil
}

func (s *MemoryStore) ListBoardSnapshots(_ context.Context, marketName string) ([]model.BoardSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var boards []model.BoardSnapshot
	for _, b := range s.boards {
		if b.MarketName == marketName {
			boards = append(boards, *b)
		}
	}
	sort.Slice(boards, func(i, j int) bool { return boards[i].Expiry.Before(boards[j].Expiry) })
	return boards, nil
}

func (s *MemoryStore) UpsertStrikeSnapshot(_ context.Context, strike *model.StrikeSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copy := *strike
	s.strikes[strike.ID] = &copy
	return nil
}

func (s *MemoryStore) GetStrikeSnapshot(_ context.Context, id string) (*model.StrikeSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	strike, ok := s.strikes[id]
	if !ok {
		return nil, ErrNotFound
	}
	copy := *strike
	return &copy, nil
}

func (s *MemoryStore) ListStrikeSnapshots(_ context.Context, boardID string) ([]model.StrikeSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var strikes []model.StrikeSnapshot
	for _, strike := range s.strikes {
		if strike.BoardID == boardID {
			strikes = append(strikes, *strike)
		}
	}
	sort.Slice(strikes, func(i, j int) bool {
		return strikes[i].StrikePrice.LessThan(strikes[j].StrikePrice)
	})
	return strikes, nil
}

func (s *MemoryStore) UpsertPosition(_ context.Context, p *model.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copy := *p
	copy.Trades = nil
	copy.CollateralUpdates = nil
	s.positions[p.ID] = &copy
	return nil
}

func (s *MemoryStore) GetPosition(_ context.Context, id string) (*model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.positions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s.assemble(p), nil
}

func (s *MemoryStore) ListPositionsByOwner(_ context.Context, owner string) ([]model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var positions []model.Position
	for _, p := range s.positions {
		if p.Owner == owner {
			positions = append(positions, *s.assemble(p))
		}
	}
	sort.Slice(positions, func(i, j int) bool { return positions[i].ID < positions[j].ID })
	return positions, nil
}

func (s *MemoryStore) AppendTradeEvent(_ context.Context, e *model.TradeEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.trades[e.PositionID] = append(s.trades[e.PositionID], *e)
	return nil
}

func (s *MemoryStore) AppendCollateralUpdate(_ context.Context, e *model.CollateralUpdateEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.collateralUpdates[e.PositionID] = append(s.collateralUpdates[e.PositionID], *e)
	return nil
}

// assemble copies a position and attaches its ordered event history.
// Caller must hold at least the read lock.
func (s *MemoryStore) assemble(p *model.Position) *model.Position {
	out := *p

	trades := make([]model.TradeEvent, len(s.trades[p.ID]))
	copy(trades, s.trades[p.ID])
	sort.SliceStable(trades, func(i, j int) bool {
		if trades[i].BlockNumber != trades[j].BlockNumber {
			return trades[i].BlockNumber < trades[j].BlockNumber
		}
		return trades[i].LogIndex < trades[j].LogIndex
	})
	out.Trades = trades

	updates := make([]model.CollateralUpdateEvent, len(s.collateralUpdates[p.ID]))
	copy(updates, s.collateralUpdates[p.ID])
	sort.SliceStable(updates, func(i, j int) bool {
		if updates[i].BlockNumber != updates[j].BlockNumber {
			return updates[i].BlockNumber < updates[j].BlockNumber
		}
		return updates[i].LogIndex < updates[j].LogIndex
	})
	out.CollateralUpdates = updates

	return &out
}
