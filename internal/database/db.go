package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/vaidashi/service-desk-api/internal/config"
	"github.com/vaidashi/service-desk-api/pkg/logger"
)

// Database represents a database connection
type Database struct {
	DB     *sqlx.DB
	logger logger.Logger
}

// New creates a new database connection
func New(cfg *config.Config, logger logger.Logger) (*Database, error) {
	db, err := sqlx.Connect("postgres", cfg.GetDBConnString())

	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	logger.Info("Connected to database", "host", cfg.DB.Host, "database", cfg.DB.Name)

	return &Database{
		DB:     db,
		logger: logger,
	}, nil
}

// Wrap adopts an already opened connection
func Wrap(db *sqlx.DB, logger logger.Logger) *Database {
	return &Database{DB: db, logger: logger}
}

// Ping checks the database connection
func (d *Database) Ping(ctx context.Context) error {
	return d.DB.PingContext(ctx)
}

// Close closes the database connection
func (d *Database) Close() error {
	return d.DB.Close()
}

// WithTx runs fn in a READ COMMITTED transaction. Row locks taken with
// SELECT ... FOR UPDATE hold until fn returns; any error rolls back.
func (d *Database) WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := d.DB.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})

	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				d.logger.Error("Failed to rollback transaction", "error", rbErr)
			}
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		d.logger.Error("Failed to commit transaction", "error", err)
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// RunMigrations creates the schema when it does not exist yet
func (d *Database) RunMigrations() error {
	_, err := d.DB.Exec(Schema)

	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	d.logger.Info("Database migrations completed successfully")
	return nil
}

// Schema is the DDL of the service desk
const Schema = `
CREATE TABLE IF NOT EXISTS clients (
	id VARCHAR(50) PRIMARY KEY,
	name TEXT NOT NULL,
	phone TEXT NOT NULL DEFAULT '',
	email TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS technicians (
	id VARCHAR(50) PRIMARY KEY,
	name TEXT NOT NULL,
	email TEXT NOT NULL DEFAULT '',
	role VARCHAR(20) NOT NULL CHECK (role IN ('admin', 'tecnico')),
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS products (
	id VARCHAR(50) PRIMARY KEY,
	reference VARCHAR(100) NOT NULL UNIQUE,
	name TEXT NOT NULL,
	qty INT NOT NULL CHECK (qty >= 0),
	min_qty INT NOT NULL DEFAULT 0,
	cost NUMERIC(12, 2) NOT NULL DEFAULT 0,
	location TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS services (
	id VARCHAR(50) PRIMARY KEY,
	name TEXT NOT NULL,
	price NUMERIC(12, 2) NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS service_orders (
	id VARCHAR(50) PRIMARY KEY,
	order_number VARCHAR(30) NOT NULL UNIQUE,
	client_id VARCHAR(50) NOT NULL REFERENCES clients(id),
	client_name TEXT NOT NULL,
	status VARCHAR(20) NOT NULL,
	entry_date DATE NOT NULL,
	diagnosis_initial TEXT NOT NULL DEFAULT '',
	initial_photos TEXT[] NOT NULL DEFAULT '{}',
	technician_id VARCHAR(50) REFERENCES technicians(id),
	technician_name TEXT,
	warranty_days INT NOT NULL DEFAULT 0 CHECK (warranty_days >= 0),
	delivery_date TIMESTAMPTZ,
	warranty_expires_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	CONSTRAINT service_orders_assignment CHECK ((status = 'Open') = (technician_id IS NULL))
);

CREATE INDEX IF NOT EXISTS idx_service_orders_status ON service_orders(status, entry_date);
CREATE INDEX IF NOT EXISTS idx_service_orders_technician ON service_orders(technician_id);

CREATE TABLE IF NOT EXISTS service_order_products (
	id VARCHAR(50) PRIMARY KEY,
	order_id VARCHAR(50) NOT NULL REFERENCES service_orders(id),
	product_id VARCHAR(50) NOT NULL REFERENCES products(id),
	product_name TEXT NOT NULL,
	product_reference VARCHAR(100) NOT NULL,
	qty INT NOT NULL CHECK (qty > 0),
	unit_cost NUMERIC(12, 2) NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_service_order_products_order ON service_order_products(order_id);

CREATE TABLE IF NOT EXISTS service_order_services (
	id VARCHAR(50) PRIMARY KEY,
	order_id VARCHAR(50) NOT NULL REFERENCES service_orders(id),
	service_id VARCHAR(50) NOT NULL REFERENCES services(id),
	service_name TEXT NOT NULL,
	price NUMERIC(12, 2) NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_service_order_services_order ON service_order_services(order_id);

CREATE TABLE IF NOT EXISTS order_number_counters (
	year INT PRIMARY KEY,
	last_seq BIGINT NOT NULL
);

-- Outbox table for message publishing
CREATE TABLE IF NOT EXISTS outbox_messages (
	id BIGSERIAL PRIMARY KEY,
	aggregate_type VARCHAR(50) NOT NULL,
	aggregate_id VARCHAR(50) NOT NULL,
	event_type VARCHAR(50) NOT NULL,
	payload JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	processed_at TIMESTAMPTZ,
	processing_attempts INT NOT NULL DEFAULT 0,
	last_error TEXT,
	status VARCHAR(20) NOT NULL DEFAULT 'pending'
);

CREATE INDEX IF NOT EXISTS idx_outbox_status ON outbox_messages(status);
CREATE INDEX IF NOT EXISTS idx_outbox_aggregate ON outbox_messages(aggregate_type, aggregate_id);

CREATE TABLE IF NOT EXISTS dead_letter_messages (
	id BIGSERIAL PRIMARY KEY,
	original_message_id BIGINT NOT NULL,
	aggregate_type VARCHAR(50) NOT NULL,
	aggregate_id VARCHAR(50) NOT NULL,
	event_type VARCHAR(50) NOT NULL,
	payload JSONB NOT NULL,
	error_message TEXT NOT NULL,
	failure_reason TEXT NOT NULL,
	retry_count INT NOT NULL DEFAULT 0,
	last_retry_at TIMESTAMPTZ,
	status VARCHAR(20) NOT NULL DEFAULT 'pending',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	resolved_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_dead_letter_status ON dead_letter_messages(status);
`
