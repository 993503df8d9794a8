// Package migrations holds the schema and data migrations for both supported
// databases and runs them with golang-migrate.
package migrations

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/pkg/errors"

	"task-manager/driver"
	"task-manager/logging"
)

//go:embed sqlite/*.sql mysql/*.sql
var files embed.FS

// Migration is one versioned step as found in the embedded files.
type Migration struct {
	Version uint
	Name    string
	Applied bool
}

// Runner applies migrations over its own connection; golang-migrate closes the
// database when the runner is closed.
type Runner struct {
	m       *migrate.Migrate
	dialect string
}

func dialectDir(driverName string) (string, error) {
	switch driverName {
	case "sqlite3":
		return "sqlite", nil
	case "mysql":
		return "mysql", nil
	}
	return "", fmt.Errorf("no migrations for driver %q", driverName)
}

func New(driverName, dsn string) (*Runner, error) {
	dir, err := dialectDir(driverName)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driverName, driver.DSN(driverName, dsn))
	if err != nil {
		return nil, errors.Wrap(err, "open migration connection")
	}

	var dbDriver database.Driver
	switch driverName {
	case "sqlite3":
		dbDriver, err = migratesqlite.WithInstance(db, &migratesqlite.Config{})
	case "mysql":
		dbDriver, err = migratemysql.WithInstance(db, &migratemysql.Config{})
	}
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "init migration database driver")
	}

	src, err := iofs.New(files, dir)
	if err != nil {
		dbDriver.Close()
		return nil, errors.Wrap(err, "open embedded migrations")
	}
	m, err := migrate.NewWithInstance("iofs", src, driverName, dbDriver)
	if err != nil {
		dbDriver.Close()
		return nil, errors.Wrap(err, "init migrate")
	}
	m.Log = migrateLogger{}
	return &Runner{m: m, dialect: dir}, nil
}

// Up applies every pending migration. It returns true when something ran.
func (r *Runner) Up() (bool, error) {
	err := r.m.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "apply migrations")
	}
	return true, nil
}

// Down rolls back the given number of applied migrations.
func (r *Runner) Down(steps int) error {
	if steps <= 0 {
		return fmt.Errorf("steps must be positive, got %d", steps)
	}
	if err := r.m.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return errors.Wrap(err, "roll back migrations")
	}
	return nil
}

// Version returns the current schema version; 0 means nothing is applied.
func (r *Runner) Version() (uint, bool, error) {
	v, dirty, err := r.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, errors.Wrap(err, "read schema version")
	}
	return v, dirty, nil
}

// List reports every known migration and whether it has been applied.
func (r *Runner) List() ([]Migration, error) {
	current, dirty, err := r.Version()
	if err != nil {
		return nil, err
	}
	list, err := Available(r.dialect)
	if err != nil {
		return nil, err
	}
	for i := range list {
		list[i].Applied = list[i].Version < current || (list[i].Version == current && !dirty)
	}
	return list, nil
}

func (r *Runner) Close() error {
	srcErr, dbErr := r.m.Close()
	if srcErr != nil {
		return srcErr
	}
	return dbErr
}

// Available lists the up migrations of a dialect directory in version order.
func Available(dialect string) ([]Migration, error) {
	entries, err := fs.ReadDir(files, dialect)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s migrations", dialect)
	}
	var list []Migration
	for _, e := range entries {
		name := e.Name()
		if !strings.HasSuffix(name, ".up.sql") {
			continue
		}
		base := strings.TrimSuffix(path.Base(name), ".up.sql")
		num, label, ok := strings.Cut(base, "_")
		if !ok {
			continue
		}
		v, err := strconv.ParseUint(num, 10, 64)
		if err != nil {
			continue
		}
		list = append(list, Migration{Version: uint(v), Name: label})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Version < list[j].Version })
	return list, nil
}

type migrateLogger struct{}

func (migrateLogger) Printf(format string, v ...interface{}) {
	logging.Logger.Infof("Event ID: MIGRATE, Description: "+strings.TrimSuffix(format, "\n"), v...)
}

func (migrateLogger) Verbose() bool { return false }
