package driver

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"

	"task-manager/logging"
)

// DSN adds the connection options the application relies on: foreign keys and
// a busy timeout for SQLite; parsed UTC times, multi-statement scripts and
// matched-row counts for MySQL.
func DSN(driverName, dsn string) string {
	switch driverName {
	case "sqlite3":
		if strings.HasPrefix(dsn, "file:") || strings.Contains(dsn, "?") {
			if !strings.Contains(dsn, "_foreign_keys") {
				dsn += sep(dsn) + "_foreign_keys=on"
			}
			if !strings.Contains(dsn, "_busy_timeout") {
				dsn += sep(dsn) + "_busy_timeout=5000"
			}
			return dsn
		}
		return dsn + "?_foreign_keys=on&_busy_timeout=5000"
	case "mysql":
		for _, opt := range []string{"parseTime=true", "multiStatements=true", "loc=UTC", "clientFoundRows=true"} {
			key := opt[:strings.Index(opt, "=")]
			if !strings.Contains(dsn, key+"=") {
				dsn += sep(dsn) + opt
			}
		}
		return dsn
	}
	return dsn
}

func sep(dsn string) string {
	if strings.Contains(dsn, "?") {
		return "&"
	}
	return "?"
}

// ConnectDB opens the database and checks it answers.
func ConnectDB(driverName, dsn string) (*sql.DB, error) {
	db, err := sql.Open(driverName, DSN(driverName, dsn))
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", driverName, err)
	}
	if driverName == "sqlite3" {
		// a single writer avoids "database is locked" under concurrent requests
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s database: %w", driverName, err)
	}
	logging.Logger.Debugf("Event ID: DB_CONNECTED, Description: connected to %s database", driverName)
	return db, nil
}
