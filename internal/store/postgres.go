package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/ovmx/options-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of
// truth. Snapshots are stored as JSONB documents keyed by ID: the
// engine treats them as opaque point-in-time values and never queries
// inside the parameter blocks. Positions and their event history use
// relational tables with NUMERIC columns for exact decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) UpsertMarketSnapshot(ctx context.Context, m *model.MarketSnapshot) error {
	doc, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal market snapshot %s: %w", m.Name, err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO market_snapshots (name, doc, fetched_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (name) DO UPDATE SET doc = $2, fetched_at = $3`,
		m.Name, doc, m.FetchedAt,
	)
	return err
}

func (s *PostgresStore) GetMarketSnapshot(ctx context.Context, name string) (*model.MarketSnapshot, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx,
		`SELECT doc FROM market_snapshots WHERE name = $1`, name).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get market snapshot %s: %w", name, err)
	}

	var m model.MarketSnapshot
	if err := json.Unmarshal(doc, &m); err != nil {
		return nil, fmt.Errorf("unmarshal market snapshot %s: %w", name, err)
	}
	return &m, nil
}

func (s *PostgresStore) ListMarketSnapshots(ctx context.Context) ([]model.MarketSnapshot, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT doc FROM market_snapshots ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var markets []model.MarketSnapshot
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var m model.MarketSnapshot
		if err := json.Unmarshal(doc, &m); err != nil {
			return nil, err
		}
		markets = append(markets, m)
	}
	return markets, rows.Err()
}

func (s *PostgresStore) UpsertBoardSnapshot(ctx context.Context, b *model.BoardSnapshot) error {
	doc, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("marshal board snapshot %s: %w", b.ID, err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO board_snapshots (id, market_name, expiry, doc)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE SET doc = $4`,
		b.ID, b.MarketName, b.Expiry, doc,
	)
	return err
}

func (s *PostgresStore) GetBoardSnapshot(ctx context.Context, id string) (*model.BoardSnapshot, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx,
		`SELECT doc FROM board_snapshots WHERE id = $1`, id).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get board snapshot %s: %w", id, err)
	}

	var b model.BoardSnapshot
	if err := json.Unmarshal(doc, &b); err != nil {
		return nil, fmt.Errorf("unmarshal board snapshot %s: %w", id, err)
	}
	return &b, nil
}

func (s *PostgresStore) ListBoardSnapshots(ctx context.Context, marketName string) ([]model.BoardSnapshot, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT doc FROM board_snapshots WHERE market_name = $1 ORDER BY expiry`, marketName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var boards []model.BoardSnapshot
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var b model.BoardSnapshot
		if err := json.Unmarshal(doc, &b); err != nil {
			return nil, err
		}
		boards = append(boards, b)
	}
	return boards, rows.Err()
}

func (s *PostgresStore) UpsertStrikeSnapshot(ctx context.Context, strike *model.StrikeSnapshot) error {
	doc, err := json.Marshal(strike)
	if err != nil {
		return fmt.Errorf("marshal strike snapshot %s: %w", strike.ID, err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO strike_snapshots (id, board_id, strike_price, doc)
		 VALUES ($1, $2, $3::NUMERIC, $4)
		 ON CONFLICT (id) DO UPDATE SET doc = $4`,
		strike.ID, strike.BoardID, strike.StrikePrice.String(), doc,
	)
	return err
}

func (s *PostgresStore) GetStrikeSnapshot(ctx context.Context, id string) (*model.StrikeSnapshot, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx,
		`SELECT doc FROM strike_snapshots WHERE id = $1`, id).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get strike snapshot %s: %w", id, err)
	}

	var strike model.StrikeSnapshot
	if err := json.Unmarshal(doc, &strike); err != nil {
		return nil, fmt.Errorf("unmarshal strike snapshot %s: %w", id, err)
	}
	return &strike, nil
}

func (s *PostgresStore) ListStrikeSnapshots(ctx context.Context, boardID string) ([]model.StrikeSnapshot, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT doc FROM strike_snapshots WHERE board_id = $1 ORDER BY strike_price`, boardID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var strikes []model.StrikeSnapshot
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var strike model.StrikeSnapshot
		if err := json.Unmarshal(doc, &strike); err != nil {
			return nil, err
		}
		strikes = append(strikes, strike)
	}
	return strikes, rows.Err()
}

func (s *PostgresStore) UpsertPosition(ctx context.Context, p *model.Position) error {
	var collateral *string
	if p.Collateral != nil {
		v := p.Collateral.String()
		collateral = &v
	}
	var spotAtExpiry *string
	if p.SpotPriceAtExpiry != nil {
		v := p.SpotPriceAtExpiry.String()
		spotAtExpiry = &v
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO positions (id, owner, market_name, board_id, strike_id,
		                        strike_price, size, is_call, is_long,
		                        collateral, is_base_collateral, state, spot_price_at_expiry)
		 VALUES ($1, $2, $3, $4, $5, $6::NUMERIC, $7::NUMERIC, $8, $9, $10::NUMERIC, $11, $12, $13::NUMERIC)
		 ON CONFLICT (id) DO UPDATE SET
		   size = $7::NUMERIC, collateral = $10::NUMERIC,
		   is_base_collateral = $11, state = $12, spot_price_at_expiry = $13::NUMERIC`,
		p.ID, p.Owner, p.MarketName, p.BoardID, p.StrikeID,
		p.StrikePrice.String(), p.Size.String(), p.IsCall, p.IsLong,
		collateral, p.IsBaseCollateral, string(p.State), spotAtExpiry,
	)
	return err
}

func (s *PostgresStore) GetPosition(ctx context.Context, id string) (*model.Position, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, owner, market_name, board_id, strike_id,
		        strike_price::TEXT, size::TEXT, is_call, is_long,
		        collateral::TEXT, is_base_collateral, state, spot_price_at_expiry::TEXT
		 FROM positions WHERE id = $1`, id)

	p, err := scanPosition(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get position %s: %w", id, err)
	}

	if err := s.attachHistory(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *PostgresStore) ListPositionsByOwner(ctx context.Context, owner string) ([]model.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, owner, market_name, board_id, strike_id,
		        strike_price::TEXT, size::TEXT, is_call, is_long,
		        collateral::TEXT, is_base_collateral, state, spot_price_at_expiry::TEXT
		 FROM positions WHERE owner = $1 ORDER BY id`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []model.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range positions {
		if err := s.attachHistory(ctx, &positions[i]); err != nil {
			return nil, err
		}
	}
	return positions, nil
}

func (s *PostgresStore) AppendTradeEvent(ctx context.Context, e *model.TradeEvent) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO trade_events (position_id, size, is_open, is_buy, is_long,
		                           premium, option_price_fee, spot_price_fee, vega_util_fee, variance_fee,
		                           price_per_option, iv, skew, base_iv,
		                           is_force_close, is_liquidation, block_number, log_index, timestamp)
		 VALUES ($1, $2::NUMERIC, $3, $4, $5,
		         $6::NUMERIC, $7::NUMERIC, $8::NUMERIC, $9::NUMERIC, $10::NUMERIC,
		         $11::NUMERIC, $12::NUMERIC, $13::NUMERIC, $14::NUMERIC,
		         $15, $16, $17, $18, $19)`,
		e.PositionID, e.Size.String(), e.IsOpen, e.IsBuy, e.IsLong,
		e.Premium.String(), e.OptionPriceFee.String(), e.SpotPriceFee.String(),
		e.VegaUtilFee.String(), e.VarianceFee.String(),
		e.PricePerOption.String(), e.IV.String(), e.Skew.String(), e.BaseIV.String(),
		e.IsForceClose, e.IsLiquidation, e.BlockNumber, e.LogIndex, e.Timestamp,
	)
	return err
}

func (s *PostgresStore) AppendCollateralUpdate(ctx context.Context, e *model.CollateralUpdateEvent) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO collateral_updates (position_id, amount, is_base, block_number, log_index, timestamp)
		 VALUES ($1, $2::NUMERIC, $3, $4, $5, $6)`,
		e.PositionID, e.Amount.String(), e.IsBase, e.BlockNumber, e.LogIndex, e.Timestamp,
	)
	return err
}

// attachHistory loads the ordered event history onto a position.
func (s *PostgresStore) attachHistory(ctx context.Context, p *model.Position) error {
	rows, err := s.pool.Query(ctx,
		`SELECT position_id, size::TEXT, is_open, is_buy, is_long,
		        premium::TEXT, option_price_fee::TEXT, spot_price_fee::TEXT,
		        vega_util_fee::TEXT, variance_fee::TEXT,
		        price_per_option::TEXT, iv::TEXT, skew::TEXT, base_iv::TEXT,
		        is_force_close, is_liquidation, block_number, log_index, timestamp
		 FROM trade_events WHERE position_id = $1
		 ORDER BY block_number, log_index`, p.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	p.Trades = nil
	for rows.Next() {
		var e model.TradeEvent
		var size, premium, optFee, spotFee, vegaFee, varFee, ppo, iv, skew, baseIV string
		if err := rows.Scan(&e.PositionID, &size, &e.IsOpen, &e.IsBuy, &e.IsLong,
			&premium, &optFee, &spotFee, &vegaFee, &varFee,
			&ppo, &iv, &skew, &baseIV,
			&e.IsForceClose, &e.IsLiquidation, &e.BlockNumber, &e.LogIndex, &e.Timestamp); err != nil {
			return err
		}
		e.Size = mustDecimal(size)
		e.Premium = mustDecimal(premium)
		e.OptionPriceFee = mustDecimal(optFee)
		e.SpotPriceFee = mustDecimal(spotFee)
		e.VegaUtilFee = mustDecimal(vegaFee)
		e.VarianceFee = mustDecimal(varFee)
		e.PricePerOption = mustDecimal(ppo)
		e.IV = mustDecimal(iv)
		e.Skew = mustDecimal(skew)
		e.BaseIV = mustDecimal(baseIV)
		p.Trades = append(p.Trades, e)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	updates, err := s.pool.Query(ctx,
		`SELECT position_id, amount::TEXT, is_base, block_number, log_index, timestamp
		 FROM collateral_updates WHERE position_id = $1
		 ORDER BY block_number, log_index`, p.ID)
	if err != nil {
		return err
	}
	defer updates.Close()

	p.CollateralUpdates = nil
	for updates.Next() {
		var e model.CollateralUpdateEvent
		var amount string
		if err := updates.Scan(&e.PositionID, &amount, &e.IsBase,
			&e.BlockNumber, &e.LogIndex, &e.Timestamp); err != nil {
			return err
		}
		e.Amount = mustDecimal(amount)
		p.CollateralUpdates = append(p.CollateralUpdates, e)
	}
	return updates.Err()
}

type pgxRow interface {
	Scan(dest ...any) error
}

func scanPosition(row pgxRow) (*model.Position, error) {
	var p model.Position
	var strikePrice, size, state string
	var collateral, spotAtExpiry *string

	if err := row.Scan(&p.ID, &p.Owner, &p.MarketName, &p.BoardID, &p.StrikeID,
		&strikePrice, &size, &p.IsCall, &p.IsLong,
		&collateral, &p.IsBaseCollateral, &state, &spotAtExpiry); err != nil {
		return nil, err
	}

	p.StrikePrice = mustDecimal(strikePrice)
	p.Size = mustDecimal(size)
	p.State = model.PositionState(state)
	if collateral != nil {
		v := mustDecimal(*collateral)
		p.Collateral = &v
	}
	if spotAtExpiry != nil {
		v := mustDecimal(*spotAtExpiry)
		p.SpotPriceAtExpiry = &v
	}
	return &p, nil
}

// mustDecimal parses a NUMERIC::TEXT value. The database only ever
// holds values this code wrote, so a parse failure is a bug.
func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(fmt.Sprintf("store: invalid numeric %q: %v", s, err))
	}
	return d
}
