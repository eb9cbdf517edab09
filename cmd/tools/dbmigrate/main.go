// cmd/tools/dbmigrate/main.go
package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite3"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/codr1/Pitchside/internal/config"
	"github.com/codr1/Pitchside/internal/db"
)

func main() {
	var (
		driver         = flag.String("driver", config.DriverSQLite, "Database driver (sqlite, postgres)")
		dbPath         = flag.String("db", "", "Path to SQLite database")
		migrationsPath = flag.String("migrations", "", "Migrations directory; the embedded migrations are used when empty")
		command        = flag.String("command", "", "Command to run (up, down, version)")
	)
	flag.Parse()

	if *command == "" {
		log.Println("-command is required:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	dsn, err := dataSource(*driver, *dbPath)
	if err != nil {
		log.Fatalf("Invalid database settings: %v", err)
	}

	m, closeDB, err := newMigrate(*driver, dsn, *migrationsPath)
	if err != nil {
		log.Fatalf("Failed to create migrate instance: %v", err)
	}
	defer closeDB()

	switch *command {
	case "up":
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			log.Fatalf("Failed to run migrations: %v", err)
		}
		log.Println("Successfully ran migrations up")

	case "down":
		if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			log.Fatalf("Failed to rollback migrations: %v", err)
		}
		log.Println("Successfully ran migrations down")

	case "version":
		version, dirty, err := m.Version()
		if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
			log.Fatalf("Failed to get version: %v", err)
		}
		log.Printf("Current version: %d, Dirty: %v\n", version, dirty)

	default:
		log.Fatalf("Unknown command: %s", *command)
	}
}

// dataSource resolves the connection string. Postgres reads DATABASE_DSN.
func dataSource(driver, dbPath string) (string, error) {
	switch driver {
	case config.DriverSQLite:
		if dbPath == "" {
			return "", fmt.Errorf("-db is required for sqlite")
		}
		absDB, err := filepath.Abs(dbPath)
		if err != nil {
			return "", err
		}
		if err := os.MkdirAll(filepath.Dir(absDB), 0755); err != nil {
			return "", fmt.Errorf("create database directory: %w", err)
		}
		return absDB, nil
	case config.DriverPostgres:
		dsn := os.Getenv("DATABASE_DSN")
		if dsn == "" {
			return "", fmt.Errorf("DATABASE_DSN is required for postgres")
		}
		return dsn, nil
	default:
		return "", fmt.Errorf("unsupported database driver: %s", driver)
	}
}

func newMigrate(driver, dsn, migrationsPath string) (*migrate.Migrate, func(), error) {
	if migrationsPath != "" {
		absMigrations, err := filepath.Abs(migrationsPath)
		if err != nil {
			return nil, nil, err
		}
		if _, err := os.Stat(absMigrations); os.IsNotExist(err) {
			return nil, nil, fmt.Errorf("migrations directory does not exist: %s", absMigrations)
		}
		m, err := migrate.New("file://"+absMigrations, databaseURL(driver, dsn))
		if err != nil {
			return nil, nil, err
		}
		return m, func() { m.Close() }, nil
	}

	sqlDriver := "sqlite3"
	if driver == config.DriverPostgres {
		sqlDriver = "postgres"
	}
	conn, err := sql.Open(sqlDriver, dsn)
	if err != nil {
		return nil, nil, err
	}
	m, err := db.NewMigrate(conn, driver)
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	return m, func() {
		m.Close()
		conn.Close()
	}, nil
}

func databaseURL(driver, dsn string) string {
	if driver == config.DriverPostgres {
		if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
			return dsn
		}
		return "postgres://" + dsn
	}
	return "sqlite3://" + dsn
}
