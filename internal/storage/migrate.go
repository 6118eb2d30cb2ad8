package storage

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrDirtySchema is returned by Up when a previous migration failed halfway.
// The schema has to be repaired and marked with Force first.
var ErrDirtySchema = errors.New("telemetry schema is dirty")

// SchemaVersion describes the telemetry schema of one database file.
type SchemaVersion struct {
	Version uint
	Dirty   bool
	Latest  uint // highest embedded migration
}

// Pending reports how many embedded migrations have not been applied.
func (v SchemaVersion) Pending() int {
	if v.Version >= v.Latest {
		return 0
	}
	return int(v.Latest - v.Version)
}

func (v SchemaVersion) String() string {
	s := fmt.Sprintf("schema version %d", v.Version)
	if v.Dirty {
		s += " (dirty)"
	}
	if n := v.Pending(); n > 0 {
		s += fmt.Sprintf(", %d pending", n)
	}
	return s
}

// MigrationManager applies the embedded telemetry migrations to a SQLite file.
type MigrationManager struct {
	migrate *migrate.Migrate
	path    string
}

// NewMigrationManager opens the database at dbPath for migration.
func NewMigrationManager(dbPath string) (*MigrationManager, error) {
	migrationsDir, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("embedded migrations: %w", err)
	}
	source, err := iofs.New(migrationsDir, ".")
	if err != nil {
		return nil, fmt.Errorf("embedded migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, sqliteURL(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open %s for migration: %w", dbPath, err)
	}
	return &MigrationManager{migrate: m, path: dbPath}, nil
}

// sqliteURL builds a sqlite:// URL; Windows paths need forward slashes and
// a leading slash.
func sqliteURL(dbPath string) string {
	p := filepath.ToSlash(dbPath)
	if filepath.IsAbs(dbPath) && !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return "sqlite://" + p
}

// Up applies every pending migration. It refuses to run on a dirty schema.
func (mm *MigrationManager) Up() error {
	v, err := mm.Version()
	if err != nil {
		return err
	}
	if v.Dirty {
		return fmt.Errorf("%w: %s at version %d, run migrate force", ErrDirtySchema, mm.path, v.Version)
	}
	if err := mm.migrate.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate %s up: %w", mm.path, err)
	}
	return nil
}

// Down rolls back every migration, dropping the attempt and session tables.
func (mm *MigrationManager) Down() error {
	if err := mm.migrate.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate %s down: %w", mm.path, err)
	}
	return nil
}

// Version reads the applied version. A fresh database reports version 0.
func (mm *MigrationManager) Version() (SchemaVersion, error) {
	latest, err := latestMigration()
	if err != nil {
		return SchemaVersion{}, err
	}
	version, dirty, err := mm.migrate.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return SchemaVersion{}, fmt.Errorf("read schema version of %s: %w", mm.path, err)
	}
	return SchemaVersion{Version: version, Dirty: dirty, Latest: latest}, nil
}

// Force records version as applied and clears the dirty flag without
// running any migration.
func (mm *MigrationManager) Force(version int) error {
	if version < -1 {
		return fmt.Errorf("invalid schema version %d", version)
	}
	if err := mm.migrate.Force(version); err != nil {
		return fmt.Errorf("force %s to version %d: %w", mm.path, version, err)
	}
	return nil
}

// Close releases the source and database handles.
func (mm *MigrationManager) Close() error {
	srcErr, dbErr := mm.migrate.Close()
	return errors.Join(srcErr, dbErr)
}

// upMigrations lists the embedded up scripts in version order.
func upMigrations() ([]string, error) {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return nil, fmt.Errorf("embedded migrations: %w", err)
	}
	var names []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".up.sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func latestMigration() (uint, error) {
	names, err := upMigrations()
	if err != nil || len(names) == 0 {
		return 0, err
	}
	last := names[len(names)-1]
	prefix, _, _ := strings.Cut(last, "_")
	v, err := strconv.ParseUint(prefix, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("migration %s: bad version prefix: %w", last, err)
	}
	return uint(v), nil
}
