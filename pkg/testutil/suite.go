package testutil

import (
	"context"
	"fmt"
	"io/fs"
	"strings"
	"sync"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/saludmunicipal/farmacia-backend/pkg/database"
	"github.com/saludmunicipal/farmacia-backend/pkg/logger"
)

var (
	// Global test container (shared across all integration tests)
	globalContainer *PostgresContainer
	globalDB        *sqlx.DB
	containerOnce   sync.Once
	containerErr    error

	globalSuite *IntegrationSuite
	suiteOnce   sync.Once
	suiteErr    error
)

// IntegrationSuite provides a base for integration tests with real PostgreSQL
type IntegrationSuite struct {
	Container *PostgresContainer
	RawDB     *sqlx.DB
	DB        *database.DB
	Fixtures  *FixtureFactory
	Logger    *logger.Logger
}

// NewIntegrationSuite starts (or reuses) the shared container and applies
// the given migrations.
func NewIntegrationSuite(ctx context.Context, migrations fs.FS) (*IntegrationSuite, error) {
	container, db, err := getOrCreateContainer(ctx)
	if err != nil {
		return nil, err
	}

	log := logger.New("test", "test")
	wrappedDB, err := database.NewWithDSN(container.DSN, log)
	if err != nil {
		return nil, err
	}

	if err := wrappedDB.Migrate(ctx, migrations); err != nil {
		return nil, fmt.Errorf("failed to migrate test database: %w", err)
	}

	return &IntegrationSuite{
		Container: container,
		RawDB:     db,
		DB:        wrappedDB,
		Fixtures:  NewFixtureFactory(db),
		Logger:    log,
	}, nil
}

// Integration returns the shared suite, creating it on first use. Tests
// calling it are skipped under -short, so unit tests in the same package
// never need Docker.
//
// Usage:
//
//	func TestLedger(t *testing.T) {
//	    suite := testutil.Integration(t, migrations.FS)
//	    suite.Reset(t)
//	    ...
//	}
func Integration(t *testing.T, migrations fs.FS) *IntegrationSuite {
	t.Helper()
	SkipIfShort(t)

	suiteOnce.Do(func() {
		globalSuite, suiteErr = NewIntegrationSuite(context.Background(), migrations)
	})
	if suiteErr != nil {
		t.Fatalf("failed to start integration suite: %v", suiteErr)
	}
	return globalSuite
}

// getOrCreateContainer returns the shared test container
func getOrCreateContainer(ctx context.Context) (*PostgresContainer, *sqlx.DB, error) {
	containerOnce.Do(func() {
		globalContainer, containerErr = NewPostgresContainer(ctx, DefaultPostgresConfig())
		if containerErr != nil {
			return
		}
		globalDB, containerErr = globalContainer.Connect(ctx)
	})

	return globalContainer, globalDB, containerErr
}

// ledgerTables lists every table of the ledger, children first
var ledgerTables = []string{
	"dispense_allocations",
	"dispense_lines",
	"dispenses",
	"goods_receipt_lines",
	"goods_receipts",
	"lots",
	"medications",
}

// Reset empties the ledger tables so each test starts from a clean state.
// Integration tests sharing the suite must not run in parallel.
func (s *IntegrationSuite) Reset(t *testing.T) {
	t.Helper()
	query := "TRUNCATE " + strings.Join(ledgerTables, ", ") + " RESTART IDENTITY CASCADE"
	if _, err := s.RawDB.ExecContext(context.Background(), query); err != nil {
		t.Fatalf("failed to reset tables: %v", err)
	}
}

// TerminateContainer terminates the shared container.
// Only call this in TestMain after all tests have completed.
func TerminateContainer(ctx context.Context) {
	if globalContainer != nil {
		globalContainer.Terminate(ctx)
	}
}
