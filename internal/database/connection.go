package database

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/parkpass/ticketing-backend/internal/config"
	"github.com/sirupsen/logrus"
)

// DB is the subset of the connection used outside repositories
type DB interface {
	PingContext(ctx context.Context) error
	Close() error
}

// PostgresDB wraps the sqlx connection pool
type PostgresDB struct {
	*sqlx.DB
}

// maskPassword masks the password in a database URL for safe logging
func maskPassword(url string) string {
	re := regexp.MustCompile(`(postgres(?:ql)?://[^:]+:)([^@]+)(@.+)`)
	return re.ReplaceAllString(url, "${1}****${3}")
}

// NewConnection creates a new database connection.
// cfg.Driver selects pgx (default) or lib/pq ("postgres").
func NewConnection(cfg config.DatabaseConfig, logger *logrus.Logger) (*PostgresDB, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	connectionURL := cfg.URL
	usingPooler := strings.Contains(connectionURL, ":6543")

	logger.WithFields(logrus.Fields{
		"driver": cfg.Driver,
		"url":    maskPassword(connectionURL),
		"pooler": usingPooler,
	}).Info("Connecting to database")

	var (
		db  *sqlx.DB
		err error
	)
	switch cfg.Driver {
	case "postgres":
		// lib/pq needs simple protocol behind transaction poolers
		if usingPooler && !strings.Contains(connectionURL, "prefer_simple_protocol") {
			separator := "?"
			if strings.Contains(connectionURL, "?") {
				separator = "&"
			}
			connectionURL = connectionURL + separator + "prefer_simple_protocol=true"
		}
		db, err = sqlx.Connect("postgres", connectionURL)
	default:
		pgxConfig, perr := pgx.ParseConfig(connectionURL)
		if perr != nil {
			return nil, fmt.Errorf("failed to parse database URL: %w", perr)
		}
		// Transaction-mode poolers reject named prepared statements
		if usingPooler {
			pgxConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol
		}
		db, err = sqlx.Connect("pgx", stdlib.RegisterConnConfig(pgxConfig))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxIdleConnections)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxLifetime / 2)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresDB{DB: db}, nil
}
