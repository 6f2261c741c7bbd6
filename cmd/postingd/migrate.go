package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	Long: `migrate applies migrations/*.up.sql in version order. Each file runs in
its own transaction together with its schema_migrations row, which uses the
golang-migrate layout (version bigint, dirty boolean).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		pool, err := pgxpool.New(ctx, viper.GetString("database.url"))
		if err != nil {
			return fmt.Errorf("connect: %w", err)
		}
		defer pool.Close()
		if err := pool.Ping(ctx); err != nil {
			return fmt.Errorf("ping database: %w", err)
		}

		m := &migrator{pool: pool, dir: viper.GetString("migrations.dir"), out: cmd.OutOrStdout()}
		return m.run(ctx)
	},
}

func init() {
	migrateCmd.Flags().String("dir", "", "migrations directory (default migrations)")
	_ = viper.BindPFlag("migrations.dir", migrateCmd.Flags().Lookup("dir"))
}

// migration is one *.up.sql file.
type migration struct {
	version int64
	file    string
}

type migrator struct {
	pool *pgxpool.Pool
	dir  string
	out  io.Writer
}

func (m *migrator) run(ctx context.Context) error {
	if _, err := m.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version bigint  NOT NULL PRIMARY KEY,
			dirty   boolean NOT NULL
		)`); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}

	pending, err := loadMigrations(m.dir)
	if err != nil {
		return err
	}
	done, err := m.appliedVersions(ctx)
	if err != nil {
		return err
	}

	n := 0
	for _, mig := range pending {
		if dirty, seen := done[mig.version]; seen {
			if dirty {
				return fmt.Errorf("version %d is marked dirty, fix the schema by hand and clear the flag", mig.version)
			}
			continue
		}
		if err := m.apply(ctx, mig); err != nil {
			return err
		}
		fmt.Fprintf(m.out, "applied %s\n", mig.file)
		n++
	}
	fmt.Fprintf(m.out, "%d migration(s) applied, schema at version %d\n", n, latest(pending))
	return nil
}

func (m *migrator) appliedVersions(ctx context.Context) (map[int64]bool, error) {
	rows, err := m.pool.Query(ctx, `SELECT version, dirty FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("read schema_migrations: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]bool)
	for rows.Next() {
		var v int64
		var dirty bool
		if err := rows.Scan(&v, &dirty); err != nil {
			return nil, err
		}
		out[v] = dirty
	}
	return out, rows.Err()
}

// apply runs one migration and records it in the same transaction, so a
// failed file leaves no trace.
func (m *migrator) apply(ctx context.Context, mig migration) error {
	body, err := os.ReadFile(filepath.Join(m.dir, mig.file))
	if err != nil {
		return fmt.Errorf("read %s: %w", mig.file, err)
	}
	return pgx.BeginFunc(ctx, m.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, string(body)); err != nil {
			return fmt.Errorf("%s: %w", mig.file, err)
		}
		_, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version, dirty) VALUES ($1, false)`, mig.version)
		return err
	})
}

// loadMigrations lists the *.up.sql files in dir ordered by version.
func loadMigrations(dir string) ([]migration, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}
	var out []migration
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".up.sql") {
			continue
		}
		v, err := versionFromFile(e.Name())
		if err != nil {
			return nil, fmt.Errorf("%s: %w", e.Name(), err)
		}
		out = append(out, migration{version: v, file: e.Name()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].version < out[j].version })
	return out, nil
}

func latest(ms []migration) int64 {
	if len(ms) == 0 {
		return 0
	}
	return ms[len(ms)-1].version
}

// versionFromFile parses the numeric prefix of "001_transfer_requests.up.sql".
func versionFromFile(name string) (int64, error) {
	prefix, _, ok := strings.Cut(name, "_")
	if !ok {
		return 0, fmt.Errorf("migration file name must start with <version>_")
	}
	return strconv.ParseInt(prefix, 10, 64)
}
