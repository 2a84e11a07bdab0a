// Package database stores proxy check results in Postgres.
package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/spf13/viper"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"thordata-sdk/pkg/models"
)

type DB struct {
	*bun.DB
}

// NewDB connects using the database.* viper keys.
func NewDB() (*DB, error) {
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		viper.GetString("database.user"),
		viper.GetString("database.password"),
		viper.GetString("database.host"),
		viper.GetInt("database.port"),
		viper.GetString("database.dbname"),
		viper.GetString("database.sslmode"),
	)

	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))

	db := bun.NewDB(sqldb, pgdialect.New())

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %v", err)
	}

	return &DB{db}, nil
}

// InitSchema creates the proxy_checks table if it doesn't exist.
func (db *DB) InitSchema(ctx context.Context) error {
	_, err := db.NewCreateTable().
		Model((*models.ProxyCheck)(nil)).
		IfNotExists().
		Exec(ctx)

	if err != nil {
		return fmt.Errorf("failed to create table: %v", err)
	}

	return nil
}

// SaveChecks inserts one batch of probe results.
func (db *DB) SaveChecks(ctx context.Context, checks []models.ProxyCheck) error {
	if len(checks) == 0 {
		return nil
	}
	_, err := db.NewInsert().
		Model(&checks).
		Exec(ctx)

	if err != nil {
		return fmt.Errorf("error saving checks: %v", err)
	}

	return nil
}

// RecentChecks returns the latest probe results, newest first.
func (db *DB) RecentChecks(ctx context.Context, limit int) ([]models.ProxyCheck, error) {
	var checks []models.ProxyCheck
	err := db.NewSelect().
		Model(&checks).
		Order("created_at DESC").
		Limit(limit).
		Scan(ctx)

	if err != nil {
		return nil, fmt.Errorf("error getting checks: %v", err)
	}

	return checks, nil
}
