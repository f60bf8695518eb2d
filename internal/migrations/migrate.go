package migrations

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	pg "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
)

const metaTable = "schema_migrations_migrate"

// RunMigrations applies the SQL migrations in dir against the postgres
// at databaseURL. A database that predates migrate (players table exists,
// metadata table does not) is baselined to the latest on-disk version
// first so Up does not replay the whole schema onto it.
func RunMigrations(databaseURL, dir string) error {
	if databaseURL == "" {
		return errors.New("database URL is empty")
	}
	if dir == "" {
		dir = "migrations"
	}

	sqlDB, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return fmt.Errorf("open db for migrations: %w", err)
	}
	defer sqlDB.Close()

	driver, err := pg.WithInstance(sqlDB, &pg.Config{MigrationsTable: metaTable})
	if err != nil {
		return fmt.Errorf("init postgres migrate driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+dir, "postgres", driver)
	if err != nil {
		return fmt.Errorf("init migrate instance: %w", err)
	}

	baselineIfNeeded(sqlDB, m, dir)

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up: %w", err)
	}

	log.Printf("[MIGRATE] Schema is up to date")
	return nil
}

// baselineIfNeeded stamps an already-provisioned database at the newest
// migration version. Best effort: a failed probe just means Up runs cold.
func baselineIfNeeded(sqlDB *sql.DB, m *migrate.Migrate, dir string) {
	if !tableExists(sqlDB, "players") || tableExists(sqlDB, metaTable) {
		return
	}
	latest := latestVersion(dir)
	if latest <= 0 {
		return
	}
	log.Printf("[MIGRATE] Baseline existing schema at version %d", latest)
	if err := m.Force(latest); err != nil {
		log.Printf("[MIGRATE] Baseline to version %d failed: %v", latest, err)
	}
}

func tableExists(db *sql.DB, name string) bool {
	var exists bool
	row := db.QueryRow("SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name=$1)", name)
	if err := row.Scan(&exists); err != nil {
		return false
	}
	return exists
}

// latestVersion returns the highest numeric prefix among migration files
// in dir, parsing names like 000003_create_match_shots.up.sql.
func latestVersion(dir string) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}

	var max int
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		prefix, _, found := strings.Cut(e.Name(), "_")
		if !found {
			continue
		}
		v, err := strconv.Atoi(prefix)
		if err != nil {
			continue
		}
		if v > max {
			max = v
		}
	}
	return max
}
