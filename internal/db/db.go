// internal/db/db.go
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

var ErrFailedToConnect = errors.New("failed to connect to database")

type Options struct {
	DSN           string
	MaxOpenConns  int
	RetryAttempts int
	RetryInterval time.Duration
}

// Open connects to Postgres, retrying the initial ping with a linearly growing pause.
func Open(ctx context.Context, opts Options, log *zap.Logger) (*sql.DB, error) {
	if opts.DSN == "" {
		return nil, fmt.Errorf("%w: empty DSN", ErrFailedToConnect)
	}
	attempts := opts.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}

	db, err := sql.Open("postgres", opts.DSN)
	if err != nil {
		return nil, errors.Join(ErrFailedToConnect, err)
	}
	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
		db.SetMaxIdleConns(opts.MaxOpenConns / 2)
	}
	db.SetConnMaxLifetime(30 * time.Minute)

	var pingErr error
	for i := 0; i < attempts; i++ {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		pingErr = db.PingContext(pingCtx)
		cancel()
		if pingErr == nil {
			log.Info("connected to database")
			return db, nil
		}
		log.Warn("database ping failed", zap.Int("attempt", i+1), zap.Error(pingErr))
		select {
		case <-ctx.Done():
			_ = db.Close()
			return nil, ctx.Err()
		case <-time.After(time.Duration(i+1) * opts.RetryInterval):
		}
	}

	_ = db.Close()
	return nil, errors.Join(ErrFailedToConnect, pingErr)
}
