package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ovmx/options-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis
// read-through cache. Snapshot upserts write through and refresh the
// cache; event appends invalidate the affected position; reads check
// Redis first then fall back to the primary.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through ---

func (s *CachedStore) UpsertMarketSnapshot(ctx context.Context, m *model.MarketSnapshot) error {
	if err := s.primary.UpsertMarketSnapshot(ctx, m); err != nil {
		return err
	}
	s.cache(ctx, marketKey(m.Name), m)
	return nil
}

func (s *CachedStore) UpsertBoardSnapshot(ctx context.Context, b *model.BoardSnapshot) error {
	if err := s.primary.UpsertBoardSnapshot(ctx, b); err != nil {
		return err
	}
	s.cache(ctx, boardKey(b.ID), b)
	return nil
}

func (s *CachedStore) UpsertStrikeSnapshot(ctx context.Context, strike *model.StrikeSnapshot) error {
	if err := s.primary.UpsertStrikeSnapshot(ctx, strike); err != nil {
		return err
	}
	s.cache(ctx, strikeKey(strike.ID), strike)
	return nil
}

func (s *CachedStore) UpsertPosition(ctx context.Context, p *model.Position) error {
	if err := s.primary.UpsertPosition(ctx, p); err != nil {
		return err
	}
	// Invalidate; next read re-assembles with history from primary.
	s.rdb.Del(ctx, positionKey(p.ID))
	return nil
}

func (s *CachedStore) AppendTradeEvent(ctx context.Context, e *model.TradeEvent) error {
	if err := s.primary.AppendTradeEvent(ctx, e); err != nil {
		return err
	}
	s.rdb.Del(ctx, positionKey(e.PositionID))
	return nil
}

func (s *CachedStore) AppendCollateralUpdate(ctx context.Context, e *model.CollateralUpdateEvent) error {
	if err := s.primary.AppendCollateralUpdate(ctx, e); err != nil {
		return err
	}
	s.rdb.Del(ctx, positionKey(e.PositionID))
	return nil
}

// --- Read-through ---

func (s *CachedStore) GetMarketSnapshot(ctx context.Context, name string) (*model.MarketSnapshot, error) {
	var m model.MarketSnapshot
	if s.lookup(ctx, marketKey(name), &m) {
		return &m, nil
	}

	got, err := s.primary.GetMarketSnapshot(ctx, name)
	if err != nil {
		return nil, err
	}
	s.cache(ctx, marketKey(name), got)
	return got, nil
}

func (s *CachedStore) GetBoardSnapshot(ctx context.Context, id string) (*model.BoardSnapshot, error) {
	var b model.BoardSnapshot
	if s.lookup(ctx, boardKey(id), &b) {
		return &b, nil
	}

	got, err := s.primary.GetBoardSnapshot(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache(ctx, boardKey(id), got)
	return got, nil
}

func (s *CachedStore) GetStrikeSnapshot(ctx context.Context, id string) (*model.StrikeSnapshot, error) {
	var strike model.StrikeSnapshot
	if s.lookup(ctx, strikeKey(id), &strike) {
		return &strike, nil
	}

	got, err := s.primary.GetStrikeSnapshot(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache(ctx, strikeKey(id), got)
	return got, nil
}

func (s *CachedStore) GetPosition(ctx context.Context, id string) (*model.Position, error) {
	var p model.Position
	if s.lookup(ctx, positionKey(id), &p) {
		return &p, nil
	}

	got, err := s.primary.GetPosition(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache(ctx, positionKey(id), got)
	return got, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListMarketSnapshots(ctx context.Context) ([]model.MarketSnapshot, error) {
	return s.primary.ListMarketSnapshots(ctx)
}

func (s *CachedStore) ListBoardSnapshots(ctx context.Context, marketName string) ([]model.BoardSnapshot, error) {
	return s.primary.ListBoardSnapshots(ctx, marketName)
}

func (s *CachedStore) ListStrikeSnapshots(ctx context.Context, boardID string) ([]model.StrikeSnapshot, error) {
	return s.primary.ListStrikeSnapshots(ctx, boardID)
}

func (s *CachedStore) ListPositionsByOwner(ctx context.Context, owner string) ([]model.Position, error) {
	return s.primary.ListPositionsByOwner(ctx, owner)
}

// --- Cache helpers ---

func (s *CachedStore) cache(ctx context.Context, key string, v any) {
	if data, err := json.Marshal(v); err == nil {
		s.rdb.Set(ctx, key, data, s.ttl)
	}
}

func (s *CachedStore) lookup(ctx context.Context, key string, v any) bool {
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(data, v) == nil
}

func marketKey(name string) string { return fmt.Sprintf("market:%s", name) }
func boardKey(id string) string    { return fmt.Sprintf("board:%s", id) }
func strikeKey(id string) string   { return fmt.Sprintf("strike:%s", id) }
func positionKey(id string) string { return fmt.Sprintf("position:%s", id) }
