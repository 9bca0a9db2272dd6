package store

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
)

// Supported values for Options.Driver.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

// sqlDriverName maps a store driver to the database/sql driver it registers.
func sqlDriverName(driver string) (string, error) {
	switch driver {
	case DriverSQLite, "":
		return "sqlite", nil
	case DriverPostgres:
		return "pgx", nil
	case DriverMySQL:
		return "mysql", nil
	default:
		return "", fmt.Errorf("unsupported driver: %s (available: %s, %s, %s)",
			driver, DriverSQLite, DriverPostgres, DriverMySQL)
	}
}

// normalizeMySQLDSN forces the options the store depends on: DATETIME columns
// scanned into time.Time in UTC, and RowsAffected counting matched rows so an
// idempotent UPDATE is not mistaken for a missing record.
func normalizeMySQLDSN(dsn string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("parse mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	cfg.ClientFoundRows = true
	return cfg.FormatDSN(), nil
}

// isUniqueViolation reports whether err came from a unique or primary key
// constraint on any of the supported databases.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062
	}

	// modernc.org/sqlite reports constraint failures only through the message.
	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, "unique constraint") ||
		strings.Contains(lower, "constraint failed: primary key")
}
