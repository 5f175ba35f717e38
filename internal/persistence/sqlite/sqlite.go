// Package sqlite stores appointments and availability rules in a SQLite
// database through the pure Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"fmt"
)

// Storage bundles the SQLite repositories over one connection pool.
type Storage struct {
	*AppointmentRepository
	*RuleRepository

	pool *ConnectionPool
}

// Open connects to the database named by dsn using DefaultConfig.
func Open(dsn string) (*Storage, error) {
	return OpenWithConfig(DefaultConfig(dsn))
}

// OpenWithConfig connects to a database with explicit connection settings.
func OpenWithConfig(config Config) (*Storage, error) {
	pool, err := NewConnectionPool(config)
	if err != nil {
		return nil, err
	}
	return &Storage{
		AppointmentRepository: NewAppointmentRepository(pool),
		RuleRepository:        NewRuleRepository(pool),
		pool:                  pool,
	}, nil
}

// Migrate applies pending schema migrations and returns the resulting schema version.
func (s *Storage) Migrate(ctx context.Context) (uint, error) {
	if err := s.pool.Ping(ctx); err != nil {
		return 0, fmt.Errorf("database unavailable: %w", err)
	}
	return migrateUp(s.pool)
}

// Ping verifies the database is reachable.
func (s *Storage) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the underlying connection pool.
func (s *Storage) Close() error {
	return s.pool.Close()
}
