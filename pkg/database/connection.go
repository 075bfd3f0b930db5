package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/medrex/hms-access/pkg/config"
	"github.com/medrex/hms-access/pkg/logger"
	"github.com/sirupsen/logrus"
)

const (
	connectAttempts = 5
	connectBackoff  = 500 * time.Millisecond
	pingTimeout     = 5 * time.Second
)

// DB is the PostgreSQL pool backing profiles and the emergency audit log
type DB struct {
	*sql.DB
	logger *logger.Logger
}

// NewConnection opens a pool and waits until the server answers a ping.
// The database often starts alongside the service, so the first pings are retried.
func NewConnection(ctx context.Context, cfg *config.DatabaseConfig, log *logger.Logger) (*DB, error) {
	sqlDB, err := sql.Open("postgres", buildConnectionString(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Second)

	if err := pingWithRetry(ctx, sqlDB, connectAttempts, connectBackoff, log); err != nil {
		sqlDB.Close()
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"host":           cfg.Host,
		"database":       cfg.Name,
		"max_open_conns": cfg.MaxOpenConns,
	}).Info("Database connection established")

	return Wrap(sqlDB, log), nil
}

// Wrap adopts an already open handle, e.g. a sqlmock connection in tests
func Wrap(sqlDB *sql.DB, log *logger.Logger) *DB {
	return &DB{DB: sqlDB, logger: log}
}

type pinger interface {
	PingContext(ctx context.Context) error
}

// pingWithRetry doubles the backoff after every failed attempt
func pingWithRetry(ctx context.Context, db pinger, attempts int, backoff time.Duration, log *logger.Logger) error {
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		err = db.PingContext(pingCtx)
		cancel()
		if err == nil {
			return nil
		}
		if attempt == attempts {
			break
		}

		log.WithError(err).WithFields(logrus.Fields{
			"attempt": attempt,
			"retry":   backoff.String(),
		}).Warn("Database not reachable yet")

		select {
		case <-ctx.Done():
			return fmt.Errorf("failed to ping database: %w", ctx.Err())
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return fmt.Errorf("failed to ping database after %d attempts: %w", attempts, err)
}

func buildConnectionString(cfg *config.DatabaseConfig) string {
	params := []struct{ key, value string }{
		{"host", cfg.Host},
		{"port", fmt.Sprint(cfg.Port)},
		{"user", cfg.User},
		{"password", cfg.Password},
		{"dbname", cfg.Name},
		{"sslmode", cfg.SSLMode},
	}

	parts := make([]string, 0, len(params))
	for _, p := range params {
		if p.value == "" {
			continue
		}
		parts = append(parts, p.key+"="+quoteValue(p.value))
	}
	return strings.Join(parts, " ")
}

// quoteValue applies libpq keyword/value quoting
func quoteValue(v string) string {
	if !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

// Close closes the database connection
func (db *DB) Close() error {
	if db.DB != nil {
		return db.DB.Close()
	}
	return nil
}
