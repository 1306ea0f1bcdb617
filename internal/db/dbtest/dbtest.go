// Package dbtest starts a throwaway PostgreSQL for integration tests.
package dbtest

import (
	"context"
	"fmt"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"meetup-chat/internal/db"
)

// Postgres is a migrated database running in a container.
type Postgres struct {
	DB        *sqlx.DB
	container *postgres.PostgresContainer
}

// Start runs postgres:16-alpine and applies the schema. Callers that cannot
// reach a container runtime get the error and should skip.
func Start(ctx context.Context) (pg *Postgres, err error) {
	defer func() {
		if r := recover(); r != nil {
			pg, err = nil, fmt.Errorf("container runtime: %v", r)
		}
	}()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("meetup_chat"),
		postgres.WithUsername("chat_user"),
		postgres.WithPassword("password"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		return nil, fmt.Errorf("start postgres container: %w", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable", "application_name=test")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("connection string: %w", err)
	}
	conn, err := sqlx.Connect("postgres", connStr)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := db.Migrate(conn); err != nil {
		conn.Close()
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Postgres{DB: conn, container: container}, nil
}

// Stop closes the connection and removes the container.
func (p *Postgres) Stop(ctx context.Context) {
	if p == nil {
		return
	}
	p.DB.Close()
	_ = p.container.Terminate(ctx)
}

// Reset empties every table and restarts the id sequences.
func (p *Postgres) Reset(t *testing.T) {
	t.Helper()
	_, err := p.DB.Exec(`TRUNCATE users, rooms, room_members, gifts, messages, invoices,
        transfer_applications, favorites, orders, joins RESTART IDENTITY CASCADE`)
	if err != nil {
		t.Fatalf("reset database: %v", err)
	}
}

// Require skips t when no database could be started.
func Require(t *testing.T, p *Postgres) *sqlx.DB {
	t.Helper()
	if p == nil {
		t.Skip("postgres container unavailable")
	}
	p.Reset(t)
	return p.DB
}

// SeedUser inserts an account and returns its id.
func SeedUser(t *testing.T, conn *sqlx.DB, nickname, role string, point int64) int {
	t.Helper()
	var id int
	err := conn.Get(&id, `INSERT INTO users (username, nickname, role, point) VALUES ($1, $2, $3, $4) RETURNING id`,
		nickname, nickname, role, point)
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return id
}
