package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"

	"trading-sync/internal/orders"
)

const orderColumns = `order_id, symbol, direction, price, volume, status, create_time,
	       filled_volume, trader_platform, is_active, order_type, is_finished,
	       strategy_name, traded_price, execution_strategy, parent_id`

// Repository provides data access methods for the order ledger
type Repository struct {
	db *DB
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// HealthCheck performs a database health check
func (r *Repository) HealthCheck(ctx context.Context) error {
	return r.db.Pool.Ping(ctx)
}

// SaveOrder inserts or replaces an order by identifier. The price is rounded
// to 3 decimals and update_time is stamped on every write, so calling twice
// with the same order leaves exactly one row.
func (r *Repository) SaveOrder(ctx context.Context, o *orders.Order) error {
	query := `
		INSERT INTO orders (
			order_id, symbol, direction, price, volume, status, create_time,
			filled_volume, trader_platform, is_active, order_type, is_finished,
			strategy_name, traded_price, execution_strategy, parent_id, update_time
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (order_id) DO UPDATE SET
			symbol = EXCLUDED.symbol,
			direction = EXCLUDED.direction,
			price = EXCLUDED.price,
			volume = EXCLUDED.volume,
			status = EXCLUDED.status,
			create_time = EXCLUDED.create_time,
			filled_volume = EXCLUDED.filled_volume,
			trader_platform = EXCLUDED.trader_platform,
			is_active = EXCLUDED.is_active,
			order_type = EXCLUDED.order_type,
			is_finished = EXCLUDED.is_finished,
			strategy_name = EXCLUDED.strategy_name,
			traded_price = EXCLUDED.traded_price,
			execution_strategy = EXCLUDED.execution_strategy,
			parent_id = EXCLUDED.parent_id,
			update_time = EXCLUDED.update_time
	`
	_, err := r.db.Pool.Exec(
		ctx, query,
		o.OrderID, o.Symbol, string(o.Direction), orders.RoundPrice(o.Price), o.Volume,
		string(o.Status), o.CreateTime, o.FilledVolume, o.TraderPlatform,
		boolToInt(o.IsActive), string(o.OrderType), boolToInt(o.IsFinished),
		o.StrategyName, o.TradedPrice, o.ExecutionStrategy, o.ParentID, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("save order %s: %w", o.OrderID, err)
	}
	return nil
}

// GetOrder retrieves an order by identifier. A missing order is (nil, nil),
// not an error.
func (r *Repository) GetOrder(ctx context.Context, orderID string) (*orders.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE order_id = $1`

	o, err := scanOrder(r.db.Pool.QueryRow(ctx, query, orderID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get order %s: %w", orderID, err)
	}
	return o, nil
}

// GetActiveOrders returns today's orders that are still interesting to show:
// active, finished, or cancelled, newest first.
func (r *Repository) GetActiveOrders(ctx context.Context) ([]*orders.Order, error) {
	now := time.Now()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	dayEnd := dayStart.Add(24*time.Hour - time.Nanosecond)

	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE (is_active = 1 OR is_finished = 1 OR status = $1)
		  AND create_time >= $2 AND create_time <= $3
		ORDER BY create_time DESC
	`
	return r.queryOrders(ctx, query, string(orders.StatusCancelled), dayStart, dayEnd)
}

// GetOrderHistory returns orders in a time range, defaulting to the last
// 7 days when the bounds are zero.
func (r *Repository) GetOrderHistory(ctx context.Context, start, end time.Time) ([]*orders.Order, error) {
	if start.IsZero() {
		start = time.Now().AddDate(0, 0, -7)
	}
	if end.IsZero() {
		end = time.Now()
	}

	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE create_time >= $1 AND create_time <= $2
		ORDER BY create_time DESC
	`
	return r.queryOrders(ctx, query, start, end)
}

// PurgeOrders deletes orders created before the cutoff and returns the
// number of rows removed.
func (r *Repository) PurgeOrders(ctx context.Context, days int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -days)

	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM orders WHERE create_time < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge orders: %w", err)
	}
	return tag.RowsAffected(), nil
}

// SaveEvent appends an event to the log. ORDER events carrying a parent
// identifier, and events whose payload is CANCELLED, compact in place: the
// most recent event for that parent chain is updated rather than a new row
// inserted. Everything else is insert-only.
func (r *Repository) SaveEvent(ctx context.Context, event orders.Event) error {
	data, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}

	compact := event.Data != nil &&
		((event.Type == orders.EventOrder && event.Data.ParentID != nil) ||
			event.Data.Status == orders.StatusCancelled)

	if compact && event.Data.ParentID != nil {
		tag, err := r.db.Pool.Exec(ctx, `
			UPDATE events
			SET data = $1, timestamp = $2
			WHERE event_type = 'ORDER'
			  AND data->>'parent_id' = $3
		`, data, event.Timestamp, *event.Data.ParentID)
		if err != nil {
			return fmt.Errorf("update event: %w", err)
		}
		if tag.RowsAffected() > 0 {
			return nil
		}
	}

	_, err = r.db.Pool.Exec(ctx, `
		INSERT INTO events (event_type, data, timestamp) VALUES ($1, $2, $3)
	`, string(event.Type), data, event.Timestamp)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// GetEventHistory returns the most recent events, newest first.
func (r *Repository) GetEventHistory(ctx context.Context, limit int) ([]orders.Event, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.Pool.Query(ctx, `
		SELECT event_type, data, timestamp
		FROM events
		ORDER BY timestamp DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []orders.Event
	for rows.Next() {
		var (
			eventType string
			data      []byte
			timestamp time.Time
		)
		if err := rows.Scan(&eventType, &data, &timestamp); err != nil {
			return nil, err
		}
		event := orders.Event{Type: orders.EventType(eventType), Timestamp: timestamp}
		if len(data) > 0 {
			var o orders.Order
			if err := json.Unmarshal(data, &o); err == nil {
				event.Data = &o
			}
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

func (r *Repository) queryOrders(ctx context.Context, query string, args ...interface{}) ([]*orders.Order, error) {
	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var result []*orders.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, o)
	}
	return result, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(row rowScanner) (*orders.Order, error) {
	var (
		o          orders.Order
		direction  string
		status     string
		orderType  string
		isActive   int
		isFinished int
	)
	err := row.Scan(
		&o.OrderID, &o.Symbol, &direction, &o.Price, &o.Volume, &status,
		&o.CreateTime, &o.FilledVolume, &o.TraderPlatform, &isActive,
		&orderType, &isFinished, &o.StrategyName, &o.TradedPrice,
		&o.ExecutionStrategy, &o.ParentID,
	)
	if err != nil {
		return nil, err
	}
	o.Direction = orders.OrderSide(direction)
	o.Status = orders.OrderStatus(status)
	o.OrderType = orders.ParseOrderType(orderType)
	o.IsActive = isActive != 0
	o.IsFinished = isFinished != 0
	o.SecurityType = orders.GetSecurityType(o.Symbol)
	return &o, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
