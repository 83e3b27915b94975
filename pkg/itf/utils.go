// Package itf holds helpers for tests that run against a real Postgres.
package itf

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"fmt"
	"log"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"

	"github.com/iota-uz/iota-electoral/pkg/configuration"
)

const (
	maxDBNameLength  = 63
	hashSuffixLength = 9
)

// CanDialPostgres reports whether DB_HOST:DB_PORT accepts TCP connections.
func CanDialPostgres(tb testing.TB) bool {
	tb.Helper()

	host := strings.TrimSpace(os.Getenv("DB_HOST"))
	if host == "" {
		host = "localhost"
	}
	port := strings.TrimSpace(os.Getenv("DB_PORT"))
	if port == "" {
		port = "5432"
	}
	dialer := &net.Dialer{Timeout: 250 * time.Millisecond}
	ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
	defer cancel()

	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, port))
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// RequirePostgres skips the test when Postgres is unreachable, except on CI
// where it fails.
func RequirePostgres(tb testing.TB) {
	tb.Helper()
	if CanDialPostgres(tb) {
		return
	}
	isCI := strings.TrimSpace(os.Getenv("CI")) != "" || strings.EqualFold(strings.TrimSpace(os.Getenv("GITHUB_ACTIONS")), "true")
	if isCI {
		tb.Fatalf("postgres is not reachable (DB_HOST/DB_PORT)")
	}
	tb.Skip("postgres is not reachable; skipping integration test")
}

// SanitizeDBName lowercases name, replaces punctuation with underscores and
// keeps it within Postgres' identifier limit.
func SanitizeDBName(name string) string {
	sanitized := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		default:
			return '_'
		}
	}, name)
	for strings.Contains(sanitized, "__") {
		sanitized = strings.ReplaceAll(sanitized, "__", "_")
	}
	sanitized = strings.Trim(sanitized, "_")
	if sanitized == "" {
		sanitized = "test_db"
	}
	if len(sanitized) <= maxDBNameLength {
		return sanitized
	}
	sum := sha256.Sum256([]byte(name))
	return fmt.Sprintf("%s_%x", sanitized[:maxDBNameLength-hashSuffixLength], sum[:4])
}

func adminDSN() string {
	c := configuration.Use()
	return fmt.Sprintf(
		"host=%s port=%s user=%s dbname=postgres password=%s sslmode=disable",
		c.Database.Host, c.Database.Port, c.Database.User, c.Database.Password,
	)
}

// CreateDB drops and recreates a database named after name.
func CreateDB(name string) {
	db, err := sql.Open("postgres", adminDSN())
	if err != nil {
		panic(err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Printf("[WARNING] Error closing CreateDB connection: %v", err)
		}
	}()
	sanitized := SanitizeDBName(name)
	if _, err := db.ExecContext(context.Background(), "DROP DATABASE IF EXISTS "+sanitized); err != nil {
		panic(err)
	}
	if _, err := db.ExecContext(context.Background(), "CREATE DATABASE "+sanitized); err != nil {
		panic(err)
	}
}

func DbOpts(name string) string {
	c := configuration.Use()
	return fmt.Sprintf(
		"host=%s port=%s user=%s dbname=%s password=%s sslmode=disable",
		c.Database.Host, c.Database.Port, c.Database.User, SanitizeDBName(name), c.Database.Password,
	)
}

// NewPool creates a fresh database named after tb and returns a pool on it.
func NewPool(tb testing.TB) *pgxpool.Pool {
	tb.Helper()
	CreateDB(tb.Name())
	pool, err := pgxpool.New(context.Background(), DbOpts(tb.Name()))
	if err != nil {
		tb.Fatalf("pgxpool: %v", err)
	}
	tb.Cleanup(pool.Close)
	return pool
}

// Migrate applies every goose migration in dir to the named test database.
func Migrate(tb testing.TB, name, dir string) {
	tb.Helper()
	db, err := sql.Open("postgres", DbOpts(name))
	if err != nil {
		tb.Fatalf("open %s: %v", name, err)
	}
	defer db.Close()
	if err := goose.SetDialect("postgres"); err != nil {
		tb.Fatalf("goose dialect: %v", err)
	}
	goose.SetLogger(goose.NopLogger())
	if err := goose.Up(db, dir); err != nil {
		tb.Fatalf("goose up: %v", err)
	}
}
