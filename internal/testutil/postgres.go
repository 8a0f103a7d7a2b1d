package testutil

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"net"
	"net/url"
	"sync"
	"time"

	// Registers the "pgx" database/sql driver.
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/ourresearch/openalex-formatter/internal/migrate"
)

// PostgresConfig locates the integration database.
type PostgresConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

// PostgresFromEnv reads TEST_DB_* variables. The default port 55432 matches
// the docker-compose test profile.
func PostgresFromEnv() PostgresConfig {
	return PostgresConfig{
		Host:     envOr("TEST_DB_HOST", "localhost"),
		Port:     envOr("TEST_DB_PORT", "55432"),
		User:     envOr("TEST_DB_USER", "formatter"),
		Password: envOr("TEST_DB_PASSWORD", "formatter"),
		Name:     envOr("TEST_DB_NAME", "formatter"),
		SSLMode:  envOr("TEST_DB_SSL_MODE", "disable"),
	}
}

// DSN renders the config as a postgres URL, merging extra query params.
func (c PostgresConfig) DSN(extra url.Values) string {
	q := url.Values{"sslmode": []string{c.SSLMode}}
	for k, v := range extra {
		q[k] = v
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Host, c.Port),
		Path:     "/" + c.Name,
		RawQuery: q.Encode(),
	}
	return u.String()
}

var (
	postgresOnce sync.Once
	postgresCfg  PostgresConfig
	postgresErr  error
)

// resolvePostgres settles the target once per binary: start a container if
// asked to, then ping.
func resolvePostgres() (PostgresConfig, error) {
	postgresOnce.Do(func() {
		cfg := PostgresFromEnv()
		if useContainers() {
			addr, err := postgresContainer.start(postgresSpec(cfg))
			if err != nil {
				postgresErr = err
				return
			}
			cfg.Host, cfg.Port, _ = net.SplitHostPort(addr)
		}

		db, err := sql.Open("pgx", cfg.DSN(nil))
		if err != nil {
			postgresErr = err
			return
		}
		defer db.Close() //nolint:errcheck // probe connection

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		postgresErr = db.PingContext(ctx)
		postgresCfg = cfg
	})
	return postgresCfg, postgresErr
}

// SkipIfNoTestDB skips (or fails, under TEST_REQUIRE_DB) when Postgres is unreachable.
func SkipIfNoTestDB(t TestingTB) {
	t.Helper()
	if _, err := resolvePostgres(); err != nil {
		unavailable(t, envBool("TEST_REQUIRE_DB"), "test database", err)
	}
}

// WithAutoDB runs fn against a migrated database isolated in a fresh schema.
// The schema is dropped when the test finishes.
func WithAutoDB(t TestingTB, fn func(*sql.DB)) {
	t.Helper()
	fn(OpenSchemaDB(t))
}

// OpenSchemaDB creates a throwaway schema, points search_path at it and
// applies migrations there.
func OpenSchemaDB(t TestingTB) *sql.DB {
	t.Helper()
	SkipIfNoTestDB(t)
	cfg, _ := resolvePostgres()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	admin, err := sql.Open("pgx", cfg.DSN(nil))
	if err != nil {
		t.Fatal("open admin db:", err)
	}
	schema := schemaName()
	if _, err := admin.ExecContext(ctx, "CREATE SCHEMA "+schema); err != nil {
		_ = admin.Close()
		t.Fatalf("create schema %s: %v", schema, err)
	}

	db, err := sql.Open("pgx", cfg.DSN(url.Values{"search_path": []string{schema}}))
	if err != nil {
		_ = admin.Close()
		t.Fatal("open schema db:", err)
	}
	db.SetMaxOpenConns(20)

	t.Cleanup(func() {
		cctx, ccancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer ccancel()
		if err := db.Close(); err != nil {
			t.Logf("close schema db: %v", err)
		}
		if _, err := admin.ExecContext(cctx, "DROP SCHEMA IF EXISTS "+schema+" CASCADE"); err != nil {
			t.Logf("drop schema %s: %v", schema, err)
		}
		if err := admin.Close(); err != nil {
			t.Logf("close admin db: %v", err)
		}
	})

	if err := migrate.Run(ctx, db); err != nil {
		t.Fatal("migrate schema:", err)
	}
	return db
}

func schemaName() string {
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		return "t_" + time.Now().Format("150405000000")
	}
	return "t_" + hex.EncodeToString(b)
}
