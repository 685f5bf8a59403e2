package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DB wraps the PostgreSQL connection pool
type DB struct {
	Pool *pgxpool.Pool
}

// Config holds database configuration
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// NewDB creates a new database connection
func NewDB(cfg Config) (*DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	// Connections are acquired per operation; keep the pool modest.
	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	log.Printf("Successfully connected to PostgreSQL database: %s", cfg.Database)

	return &DB{Pool: pool}, nil
}

// Close closes the database connection
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
		log.Println("Database connection closed")
	}
}

// RunMigrations creates the base tables and applies additive column
// migrations. Opening against a schema missing newer columns is fine: each
// ALTER is IF NOT EXISTS with a default. Only a failure to create the base
// tables aborts startup.
func (db *DB) RunMigrations(ctx context.Context) error {
	log.Println("Running database migrations...")

	base := []string{
		`CREATE TABLE IF NOT EXISTS orders (
			order_id VARCHAR(64) PRIMARY KEY,
			symbol VARCHAR(20) NOT NULL,
			direction VARCHAR(4) NOT NULL,
			price DECIMAL(20, 3),
			volume DECIMAL(20, 8) NOT NULL,
			status VARCHAR(20) NOT NULL,
			create_time TIMESTAMP NOT NULL,
			filled_volume DECIMAL(20, 8) DEFAULT 0,
			update_time TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_create_time ON orders(create_time)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status)`,

		`CREATE TABLE IF NOT EXISTS events (
			id SERIAL PRIMARY KEY,
			event_type VARCHAR(20) NOT NULL,
			data JSONB,
			timestamp TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_type ON events(event_type)`,
		`CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(timestamp)`,
	}

	for _, migration := range base {
		if _, err := db.Pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	// Columns added after the initial schema. Ledgers created by older
	// builds pick these up on the next start.
	additive := []string{
		`ALTER TABLE orders ADD COLUMN IF NOT EXISTS trader_platform VARCHAR(50) DEFAULT ''`,
		`ALTER TABLE orders ADD COLUMN IF NOT EXISTS is_active INTEGER DEFAULT 0`,
		`ALTER TABLE orders ADD COLUMN IF NOT EXISTS order_type VARCHAR(20) DEFAULT 'MARKET'`,
		`ALTER TABLE orders ADD COLUMN IF NOT EXISTS is_finished INTEGER DEFAULT 0`,
		`ALTER TABLE orders ADD COLUMN IF NOT EXISTS strategy_name VARCHAR(100) DEFAULT ''`,
		`ALTER TABLE orders ADD COLUMN IF NOT EXISTS traded_price DECIMAL(20, 3)`,
		`ALTER TABLE orders ADD COLUMN IF NOT EXISTS execution_strategy VARCHAR(100)`,
		`ALTER TABLE orders ADD COLUMN IF NOT EXISTS parent_id VARCHAR(64)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_parent_id ON orders(parent_id)`,
	}

	for _, migration := range additive {
		if _, err := db.Pool.Exec(ctx, migration); err != nil {
			// Additive migrations must not block startup against an
			// otherwise usable ledger.
			log.Printf("Warning: additive migration failed: %v", err)
		}
	}

	log.Println("Database migrations completed")
	return nil
}
