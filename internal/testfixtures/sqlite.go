package testfixtures

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/example/appointment-desk/internal/persistence"
	"github.com/example/appointment-desk/internal/persistence/memory"
	"github.com/example/appointment-desk/internal/persistence/sqlite"
)

// StoreHarness exposes the repository contracts of one backing store.
type StoreHarness struct {
	Appointments persistence.AppointmentRepository
	Rules        persistence.AvailabilityRuleRepository

	cleanup func()
}

// Close releases resources associated with the harness.
func (h *StoreHarness) Close() {
	if h != nil && h.cleanup != nil {
		h.cleanup()
		h.cleanup = nil
	}
}

// NewSQLiteHarness constructs a StoreHarness over a migrated temporary SQLite
// file. Callers may invoke Close, but cleanup is also registered with tb.
func NewSQLiteHarness(tb testing.TB) *StoreHarness {
	tb.Helper()

	path := filepath.Join(tb.TempDir(), "appointments.db")
	storage, err := sqlite.OpenWithConfig(sqlite.TestConfig(path))
	if err != nil {
		tb.Fatalf("failed to open storage: %v", err)
	}

	if _, err := storage.Migrate(context.Background()); err != nil {
		_ = storage.Close()
		tb.Fatalf("failed to migrate storage: %v", err)
	}

	harness := &StoreHarness{
		Appointments: storage,
		Rules:        storage,
		cleanup: func() {
			_ = storage.Close()
		},
	}
	tb.Cleanup(harness.Close)
	return harness
}

// NewMemoryHarness constructs a StoreHarness over a fresh in-memory store.
func NewMemoryHarness(tb testing.TB) *StoreHarness {
	tb.Helper()

	storage := memory.New()
	return &StoreHarness{
		Appointments: storage,
		Rules:        storage,
		cleanup: func() {
			_ = storage.Close()
		},
	}
}

// Harnesses returns one harness per store implementation keyed by name.
func Harnesses(tb testing.TB) map[string]*StoreHarness {
	tb.Helper()
	return map[string]*StoreHarness{
		"sqlite": NewSQLiteHarness(tb),
		"memory": NewMemoryHarness(tb),
	}
}
