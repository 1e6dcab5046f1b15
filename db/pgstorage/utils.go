package pgstorage

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/gobuffalo/packr/v2"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/stdlib"
	"github.com/omnibridge/omnibridge-service/log"
	migrate "github.com/rubenv/sql-migrate"
)

// RunMigrations will execute pending migrations if needed to keep
// the database updated with the latest changes
func RunMigrations(cfg Config) error {
	c, err := pgx.ParseConfig(cfg.url())
	if err != nil {
		return err
	}
	db := stdlib.OpenDB(*c)
	defer db.Close()

	migrations := &migrate.PackrMigrationSource{Box: packr.New("omnibridge-db-migrations", "./migrations")}
	n, err := migrate.Exec(db, "postgres", migrations, migrate.Up)
	if err != nil {
		return err
	}
	log.Infof("successfully ran %d migrations Up", n)
	return nil
}

// InitOrReset drops every known table and reruns the migrations
func InitOrReset(cfg Config) error {
	pg, err := NewPostgresStorage(cfg)
	if err != nil {
		return err
	}
	defer pg.Close()

	ctx := context.Background()
	for _, stmt := range []string{
		"DROP TABLE IF EXISTS gorp_migrations CASCADE;",
		"DROP SCHEMA IF EXISTS bridge CASCADE;",
	} {
		if _, err := pg.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return RunMigrations(cfg)
}

// NewConfigFromEnv creates config from standard postgres environment variables,
func NewConfigFromEnv() Config {
	maxConns, _ := strconv.Atoi(getEnv("OMNIBRIDGE_DATABASE_MAXCONNS", "20"))
	return Config{
		User:     getEnv("OMNIBRIDGE_DATABASE_USER", "test_user"),
		Password: getEnv("OMNIBRIDGE_DATABASE_PASSWORD", "test_password"),
		Name:     getEnv("OMNIBRIDGE_DATABASE_NAME", "test_db"),
		Host:     getEnv("OMNIBRIDGE_DATABASE_HOST", "localhost"),
		Port:     getEnv("OMNIBRIDGE_DATABASE_PORT", "5432"),
		MaxConns: maxConns,
	}
}

func (c Config) url() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s", c.User, c.Password, c.Host, c.Port, c.Name)
}

func getEnv(key string, defaultValue string) string {
	value, exists := os.LookupEnv(key)
	if exists {
		return value
	}
	return defaultValue
}
