// Package store defines the persistence interface for the options
// engine. Implementations include PostgreSQL (source of truth), Redis
// (read-through cache), and in-memory (for testing).
package store

import (
	"context"
	"errors"

	"github.com/ovmx/options-engine/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("store: not found")

// Store is the persistence interface. Snapshots are upserted whole on
// each on-chain refresh; trade and collateral events are append-only
// and always returned ordered by (blockNumber, logIndex) ascending.
type Store interface {
	// --- Market snapshots ---

	// UpsertMarketSnapshot stores the latest snapshot for a market.
	UpsertMarketSnapshot(ctx context.Context, m *model.MarketSnapshot) error

	// GetMarketSnapshot retrieves the latest snapshot by market name.
	GetMarketSnapshot(ctx context.Context, name string) (*model.MarketSnapshot, error)

	// ListMarketSnapshots returns the latest snapshot of every market.
	ListMarketSnapshots(ctx context.Context) ([]model.MarketSnapshot, error)

	// --- Board and strike snapshots ---

	// UpsertBoardSnapshot stores the latest snapshot for a board.
	UpsertBoardSnapshot(ctx context.Context, b *model.BoardSnapshot) error

	// GetBoardSnapshot retrieves a board snapshot by ID.
	GetBoardSnapshot(ctx context.Context, id string) (*model.BoardSnapshot, error)

	// ListBoardSnapshots returns all boards of a market.
	ListBoardSnapshots(ctx context.Context, marketName string) ([]model.BoardSnapshot, error)

	// UpsertStrikeSnapshot stores the latest snapshot for a strike.
	UpsertStrikeSnapshot(ctx context.Context, s *model.StrikeSnapshot) error

	// GetStrikeSnapshot retrieves a strike snapshot by ID.
	GetStrikeSnapshot(ctx context.Context, id string) (*model.StrikeSnapshot, error)

	// ListStrikeSnapshots returns all strikes of a board.
	ListStrikeSnapshots(ctx context.Context, boardID string) ([]model.StrikeSnapshot, error)

	// --- Positions and event history ---

	// UpsertPosition stores a position's current state. Event history
	// is persisted separately via the append calls.
	UpsertPosition(ctx context.Context, p *model.Position) error

	// GetPosition retrieves a position with its ordered trade and
	// collateral history attached.
	GetPosition(ctx context.Context, id string) (*model.Position, error)

	// ListPositionsByOwner returns all positions of an owner, with
	// ordered history attached.
	ListPositionsByOwner(ctx context.Context, owner string) ([]model.Position, error)

	// AppendTradeEvent appends an immutable trade record.
	AppendTradeEvent(ctx context.Context, e *model.TradeEvent) error

	// AppendCollateralUpdate appends an immutable collateral record.
	AppendCollateralUpdate(ctx context.Context, e *model.CollateralUpdateEvent) error
}
