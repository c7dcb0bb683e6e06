package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// New sets up a new pgx connection pool and verifies it with a ping.
func New(addr string, maxConns int, maxIdleTime string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(addr)
	if err != nil {
		return nil, fmt.Errorf("parse db config: %w", err)
	}

	if maxConns > 0 {
		config.MaxConns = int32(maxConns)
	}

	if maxIdleTime != "" {
		duration, err := time.ParseDuration(maxIdleTime)
		if err != nil {
			return nil, fmt.Errorf("parse max idle time: %w", err)
		}
		config.MaxConnIdleTime = duration
	}

	// Bounds pool start-up including the first connections and the ping.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	dbpool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, err
	}

	if err := dbpool.Ping(ctx); err != nil {
		dbpool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	return dbpool, nil
}
