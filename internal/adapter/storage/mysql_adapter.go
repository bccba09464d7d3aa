package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/quote-cache/internal/core/domain"
)

const holdingsSchema = `
CREATE TABLE IF NOT EXISTS holdings (
	id               VARCHAR(64)    NOT NULL PRIMARY KEY,
	owner_id         VARCHAR(64)    NOT NULL,
	symbol           VARCHAR(32)    NOT NULL,
	quantity         BIGINT         NOT NULL,
	average_cost     DECIMAL(20, 6) NOT NULL,
	last_known_price DECIMAL(20, 6) NOT NULL DEFAULT 0,
	last_price_at    DATETIME(3)    NULL,
	created_at       DATETIME(3)    NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
	INDEX idx_holdings_owner (owner_id),
	INDEX idx_holdings_symbol (symbol)
)`

const watchlistItemsSchema = `
CREATE TABLE IF NOT EXISTS watchlist_items (
	id            VARCHAR(64)    NOT NULL PRIMARY KEY,
	watchlist_id  VARCHAR(64)    NOT NULL,
	symbol        VARCHAR(32)    NOT NULL,
	note          VARCHAR(255)   NOT NULL DEFAULT '',
	current_price DECIMAL(20, 6) NOT NULL DEFAULT 0,
	price_at      DATETIME(3)    NULL,
	created_at    DATETIME(3)    NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
	INDEX idx_watchlist_items_watchlist (watchlist_id),
	INDEX idx_watchlist_items_symbol (symbol)
)`

// MySQLAdapter reads holdings and patches the last known price of holdings
// and watchlist items. Both tables belong to other services; only the price
// columns are written here.
type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

func (m *MySQLAdapter) EnsureSchema(ctx context.Context) error {
	if _, err := m.db.ExecContext(ctx, holdingsSchema); err != nil {
		return fmt.Errorf("create holdings table: %w", err)
	}
	if _, err := m.db.ExecContext(ctx, watchlistItemsSchema); err != nil {
		return fmt.Errorf("create watchlist_items table: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) ListHoldings(ctx context.Context, ownerID string) ([]domain.Holding, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT id, owner_id, symbol, quantity, average_cost, last_known_price, last_price_at
		FROM holdings WHERE owner_id = ? ORDER BY symbol, id`, ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("query holdings: %w", err)
	}
	defer rows.Close()

	var holdings []domain.Holding
	for rows.Next() {
		var (
			h           domain.Holding
			lastPriceAt sql.NullTime
		)
		if err := rows.Scan(&h.ID, &h.OwnerID, &h.Symbol, &h.Quantity, &h.AverageCost, &h.LastKnownPrice, &lastPriceAt); err != nil {
			return nil, fmt.Errorf("scan holding: %w", err)
		}
		if lastPriceAt.Valid {
			t := lastPriceAt.Time
			h.LastPriceAt = &t
		}
		holdings = append(holdings, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate holdings: %w", err)
	}
	return holdings, nil
}

func (m *MySQLAdapter) UpdateLastKnownPrice(ctx context.Context, symbol string, price decimal.Decimal, asOf time.Time) (int64, error) {
	n, err := m.updatePrice(ctx, `
		UPDATE holdings
		SET last_known_price = ?, last_price_at = ?
		WHERE symbol = ?`,
		"last_price_at", symbol, price, asOf,
	)
	if err != nil {
		return 0, fmt.Errorf("update last known price: %w", err)
	}
	return n, nil
}

func (m *MySQLAdapter) UpdateWatchlistPrice(ctx context.Context, symbol string, price decimal.Decimal, asOf time.Time) (int64, error) {
	n, err := m.updatePrice(ctx, `
		UPDATE watchlist_items
		SET current_price = ?, price_at = ?
		WHERE symbol = ?`,
		"price_at", symbol, price, asOf,
	)
	if err != nil {
		return 0, fmt.Errorf("update watchlist price: %w", err)
	}
	return n, nil
}

// updatePrice runs base with the stamp column set in UTC. The stamp is
// never taken from the server clock, which follows the session time zone.
func (m *MySQLAdapter) updatePrice(ctx context.Context, base, stampCol, symbol string, price decimal.Decimal, asOf time.Time) (int64, error) {
	var (
		result sql.Result
		err    error
	)
	if asOf.IsZero() {
		result, err = m.db.ExecContext(ctx, base, price, time.Now().UTC(), symbol)
	} else {
		query := base + " AND (" + stampCol + " IS NULL OR " + stampCol + " <= ?)"
		result, err = m.db.ExecContext(ctx, query, price, asOf.UTC(), symbol, asOf.UTC())
	}
	if err != nil {
		return 0, err
	}

	rows, _ := result.RowsAffected()
	return rows, nil
}

// InsertHolding is used to seed holdings in tests and local setups.
func (m *MySQLAdapter) InsertHolding(ctx context.Context, h domain.Holding) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO holdings (id, owner_id, symbol, quantity, average_cost, last_known_price)
		VALUES (?, ?, ?, ?, ?, ?)`,
		h.ID, h.OwnerID, h.Symbol, h.Quantity, h.AverageCost, h.LastKnownPrice,
	)
	if err != nil {
		return fmt.Errorf("insert holding: %w", err)
	}
	return nil
}

// InsertWatchlistItem is used to seed watchlist items in tests and local setups.
func (m *MySQLAdapter) InsertWatchlistItem(ctx context.Context, item domain.WatchlistItem) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO watchlist_items (id, watchlist_id, symbol, note, current_price)
		VALUES (?, ?, ?, ?, ?)`,
		item.ID, item.WatchlistID, item.Symbol, item.Note, item.CurrentPrice,
	)
	if err != nil {
		return fmt.Errorf("insert watchlist item: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) ListWatchlistItems(ctx context.Context, watchlistID string) ([]domain.WatchlistItem, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT id, watchlist_id, symbol, note, current_price, price_at
		FROM watchlist_items WHERE watchlist_id = ? ORDER BY symbol, id`, watchlistID,
	)
	if err != nil {
		return nil, fmt.Errorf("query watchlist items: %w", err)
	}
	defer rows.Close()

	var items []domain.WatchlistItem
	for rows.Next() {
		var (
			item    domain.WatchlistItem
			priceAt sql.NullTime
		)
		if err := rows.Scan(&item.ID, &item.WatchlistID, &item.Symbol, &item.Note, &item.CurrentPrice, &priceAt); err != nil {
			return nil, fmt.Errorf("scan watchlist item: %w", err)
		}
		if priceAt.Valid {
			t := priceAt.Time
			item.PriceAt = &t
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate watchlist items: %w", err)
	}
	return items, nil
}
