package repository

import (
	"context"
	"fmt"
	"time"

	"investment-tracker/observability"
)

const (
	dialectSQLite   = "sqlite"
	dialectPostgres = "postgres"
)

// dialect holds the column types that differ between the two backends.
type dialect struct {
	name      string
	driver    string
	decimal   string
	date      string
	timestamp string
}

var (
	sqliteDialect = dialect{
		name:      dialectSQLite,
		driver:    "sqlite3",
		decimal:   "TEXT", // exact; NUMERIC affinity would coerce to REAL
		date:      "TEXT",
		timestamp: "TIMESTAMP",
	}
	postgresDialect = dialect{
		name:      dialectPostgres,
		driver:    "pgx",
		decimal:   "NUMERIC",
		date:      "DATE",
		timestamp: "TIMESTAMPTZ",
	}
)

type migration struct {
	version     int
	description string
	statements  func(d dialect) []string
}

// migrations are applied in order; a released migration never changes.
var migrations = []migration{
	{
		version:     1,
		description: "create positions",
		statements: func(d dialect) []string {
			return []string{
				`CREATE TABLE IF NOT EXISTS positions (
					id         TEXT PRIMARY KEY,
					code       TEXT NOT NULL,
					name       TEXT NOT NULL,
					buy_price  ` + d.decimal + ` NOT NULL,
					buy_date   ` + d.date + ` NOT NULL,
					quantity   BIGINT NOT NULL,
					status     TEXT NOT NULL DEFAULT 'OPEN',
					portfolio  TEXT NOT NULL DEFAULT 'default',
					created_at ` + d.timestamp + ` NOT NULL,
					updated_at ` + d.timestamp + ` NOT NULL
				)`,
				`CREATE INDEX IF NOT EXISTS idx_positions_code ON positions (code)`,
				`CREATE INDEX IF NOT EXISTS idx_positions_status ON positions (status)`,
				`CREATE INDEX IF NOT EXISTS idx_positions_portfolio ON positions (portfolio)`,
			}
		},
	},
	{
		version:     2,
		description: "add sell columns",
		statements: func(d dialect) []string {
			return []string{
				`ALTER TABLE positions ADD COLUMN sell_price ` + d.decimal,
				`ALTER TABLE positions ADD COLUMN sell_date ` + d.date,
			}
		},
	},
	{
		version:     3,
		description: "add realized columns and parent link",
		statements: func(d dialect) []string {
			return []string{
				`ALTER TABLE positions ADD COLUMN profit_loss ` + d.decimal,
				`ALTER TABLE positions ADD COLUMN profit_loss_rate ` + d.decimal,
				`ALTER TABLE positions ADD COLUMN holding_days BIGINT`,
				`ALTER TABLE positions ADD COLUMN parent_id TEXT`,
				`CREATE INDEX IF NOT EXISTS idx_positions_parent ON positions (parent_id)`,
				// legacy status values
				`UPDATE positions SET status = 'OPEN' WHERE status = 'POSITION'`,
				`UPDATE positions SET status = 'CLOSED' WHERE status = 'CLOSE'`,
			}
		},
	},
	{
		version:     4,
		description: "create quote cache",
		statements: func(d dialect) []string {
			return []string{
				`CREATE TABLE IF NOT EXISTS quote_cache (
					code       TEXT PRIMARY KEY,
					name       TEXT NOT NULL DEFAULT '',
					price      ` + d.decimal + ` NOT NULL,
					source     TEXT NOT NULL DEFAULT '',
					quoted_at  BIGINT NOT NULL,
					expires_at BIGINT NOT NULL
				)`,
				`CREATE INDEX IF NOT EXISTS idx_quote_cache_expires ON quote_cache (expires_at)`,
			}
		},
	},
}

// migrate brings the schema up to the latest version.
func (r *Repository) migrate(ctx context.Context) error {
	_, err := r.pool.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version     INTEGER PRIMARY KEY,
		description TEXT NOT NULL,
		applied_at  `+r.dialect.timestamp+` NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	current, err := r.SchemaVersion(ctx)
	if err != nil {
		return err
	}
	if latest := LatestSchemaVersion(); current > latest {
		return fmt.Errorf("database schema version %d is newer than supported version %d", current, latest)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		err := r.inTx(ctx, func(tx *Repository) error {
			for _, stmt := range m.statements(r.dialect) {
				if _, err := tx.db.ExecContext(ctx, stmt); err != nil {
					return fmt.Errorf("migration %d (%s): %w", m.version, m.description, err)
				}
			}
			_, err := tx.db.ExecContext(ctx,
				tx.db.Rebind(`INSERT INTO schema_migrations (version, description, applied_at) VALUES (?, ?, ?)`),
				m.version, m.description, time.Now().UTC())
			if err != nil {
				return fmt.Errorf("failed to record migration %d: %w", m.version, err)
			}
			return nil
		})
		if err != nil {
			return err
		}
		observability.Info("applied migration", "version", m.version, "description", m.description)
	}
	return nil
}

// SchemaVersion returns the highest applied migration, 0 for an empty database.
func (r *Repository) SchemaVersion(ctx context.Context) (int, error) {
	var version int
	err := r.pool.GetContext(ctx, &version, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`)
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return version, nil
}

// LatestSchemaVersion is the version NewRepository migrates to.
func LatestSchemaVersion() int {
	return migrations[len(migrations)-1].version
}
