package migrations

import (
	"database/sql"
	"fmt"
	"time"
)

const ordersTable = `
	CREATE TABLE IF NOT EXISTS orders (
		id VARCHAR(64) PRIMARY KEY,
		user_id VARCHAR(64) NOT NULL,
		status VARCHAR(20) NOT NULL,
		payment_method VARCHAR(20) NOT NULL,
		payment_status VARCHAR(20) NOT NULL,
		total_amount DECIMAL(15,2) NOT NULL,
		discount_amount DECIMAL(15,2) NOT NULL,
		final_amount DECIMAL(15,2) NOT NULL,
		voucher_code VARCHAR(64) NULL,
		cancellation_requested BOOLEAN NOT NULL DEFAULT FALSE,
		cancellation_reason TEXT NULL,
		version BIGINT NOT NULL,
		created_at DATETIME(6) NOT NULL,
		updated_at DATETIME(6) NOT NULL,
		INDEX idx_orders_user (user_id, created_at)
	);
`

const orderItemsTable = `
	CREATE TABLE IF NOT EXISTS order_items (
		id INT AUTO_INCREMENT PRIMARY KEY,
		order_id VARCHAR(64) NOT NULL,
		position INT NOT NULL,
		product_id VARCHAR(64) NOT NULL,
		quantity INT NOT NULL,
		unit_price DECIMAL(15,2) NOT NULL,
		FOREIGN KEY (order_id) REFERENCES orders(id) ON DELETE CASCADE
	);
`

const appointmentsTable = `
	CREATE TABLE IF NOT EXISTS appointments (
		id VARCHAR(64) PRIMARY KEY,
		user_id VARCHAR(64) NOT NULL,
		service_id VARCHAR(64) NOT NULL,
		status VARCHAR(20) NOT NULL,
		appointment_date DATETIME(6) NOT NULL,
		expected_end_time DATETIME(6) NOT NULL,
		employee_id VARCHAR(64) NULL,
		price_at_booking DECIMAL(15,2) NOT NULL,
		discount_amount DECIMAL(15,2) NOT NULL,
		final_price DECIMAL(15,2) NOT NULL,
		voucher_code VARCHAR(64) NULL,
		payment_status VARCHAR(20) NOT NULL,
		status_before_cancel VARCHAR(20) NULL,
		cancellation_reason TEXT NULL,
		version BIGINT NOT NULL,
		created_at DATETIME(6) NOT NULL,
		updated_at DATETIME(6) NOT NULL,
		INDEX idx_appointments_user (user_id, appointment_date),
		INDEX idx_appointments_employee (employee_id, appointment_date)
	);
`

const vouchersTable = `
	CREATE TABLE IF NOT EXISTS vouchers (
		id VARCHAR(64) PRIMARY KEY,
		code VARCHAR(64) NOT NULL UNIQUE,
		discount_type VARCHAR(20) NOT NULL,
		discount_value DECIMAL(15,2) NOT NULL,
		max_discount_amount DECIMAL(15,2) NULL,
		min_order_value DECIMAL(15,2) NOT NULL,
		start_date DATETIME(6) NOT NULL,
		end_date DATETIME(6) NOT NULL,
		quantity INT NOT NULL,
		is_active BOOLEAN NOT NULL
	);
`

// Execer is satisfied by *sql.DB.
type Execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func migrate(name, query string, retries int, delay time.Duration, dbs ...Execer) error {
	for i, db := range dbs {
		_, err := db.Exec(query)
		// Retry creating the table
		for attempt := 0; err != nil && attempt < retries; attempt++ {
			time.Sleep(delay)
			_, err = db.Exec(query)
		}
		if err != nil {
			return fmt.Errorf("migrate %s on shard %d: %w", name, i, err)
		}
	}
	return nil
}

// AutoMigrate creates every table on every shard, in dependency order.
func AutoMigrate(retries int, dbs ...Execer) error {
	return AutoMigrateWithDelay(retries, time.Second, dbs...)
}

func AutoMigrateWithDelay(retries int, delay time.Duration, dbs ...Execer) error {
	steps := []struct {
		name  string
		query string
	}{
		{"orders", ordersTable},
		{"order_items", orderItemsTable},
		{"appointments", appointmentsTable},
		{"vouchers", vouchersTable},
	}
	for _, step := range steps {
		if err := migrate(step.name, step.query, retries, delay, dbs...); err != nil {
			return err
		}
	}
	return nil
}
