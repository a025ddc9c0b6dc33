package database

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

func NewPool(dsn string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, err
	}

	log.Println("Database connected successfully")

	return pool, nil
}

// ShardDSN resolves the connection string for a shard from the
// environment. The shard id "shard-eu" maps to SHARD_EU_DATABASE_URL.
func ShardDSN(shardID string) (string, error) {
	key := "SHARD_" + strings.ToUpper(strings.ReplaceAll(strings.TrimPrefix(shardID, "shard-"), "-", "_")) + "_DATABASE_URL"
	dsn := os.Getenv(key)
	if dsn == "" {
		return "", fmt.Errorf("no connection string configured for shard %s (%s)", shardID, key)
	}
	return dsn, nil
}
