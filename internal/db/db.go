package db

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// Connect opens the database connection and runs migrations.
func Connect(dsn string, log *zap.Logger) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}

	if err := Migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	log.Info("database migrations applied")

	return db, nil
}

// Migrate creates the schema if it does not exist yet.
func Migrate(db *sqlx.DB) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS users (
            id SERIAL PRIMARY KEY,
            username TEXT NOT NULL DEFAULT '',
            nickname TEXT NOT NULL DEFAULT '',
            role TEXT NOT NULL DEFAULT 'guest' CHECK (role IN ('cast', 'guest', 'admin', 'applier')),
            point BIGINT NOT NULL DEFAULT 0 CHECK (point >= 0),
            point_used BIGINT NOT NULL DEFAULT 0 CHECK (point_used >= 0),
            is_active BOOLEAN NOT NULL DEFAULT TRUE,
            is_verified BOOLEAN NOT NULL DEFAULT FALSE,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
		`CREATE TABLE IF NOT EXISTS rooms (
            id SERIAL PRIMARY KEY,
            room_type TEXT NOT NULL CHECK (room_type IN ('private', 'group', 'system', 'admin')),
            title TEXT NOT NULL DEFAULT '',
            is_group BOOLEAN NOT NULL DEFAULT FALSE,
            pair_low INT,
            pair_high INT,
            last_message TEXT NOT NULL DEFAULT '',
            last_sender_id INT,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
		`CREATE UNIQUE INDEX IF NOT EXISTS rooms_pair_uniq ON rooms (room_type, pair_low, pair_high) WHERE pair_low IS NOT NULL;`,
		`CREATE TABLE IF NOT EXISTS room_members (
            room_id INT NOT NULL REFERENCES rooms(id) ON DELETE CASCADE,
            user_id INT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
            joined_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            PRIMARY KEY(room_id, user_id)
        );`,
		`CREATE INDEX IF NOT EXISTS room_members_user_idx ON room_members (user_id);`,
		`CREATE TABLE IF NOT EXISTS gifts (
            id SERIAL PRIMARY KEY,
            name TEXT NOT NULL,
            point BIGINT NOT NULL CHECK (point >= 0),
            back BIGINT NOT NULL DEFAULT 0 CHECK (back >= 0)
        );`,
		`CREATE TABLE IF NOT EXISTS messages (
            id SERIAL PRIMARY KEY,
            room_id INT NOT NULL REFERENCES rooms(id) ON DELETE CASCADE,
            sender_id INT NOT NULL,
            receiver_id INT NOT NULL,
            content TEXT NOT NULL DEFAULT '',
            media_ids BIGINT[] NOT NULL DEFAULT '{}',
            gift_id INT REFERENCES gifts(id),
            is_like BOOLEAN NOT NULL DEFAULT FALSE,
            is_read BOOLEAN NOT NULL DEFAULT FALSE,
            follower_id INT REFERENCES messages(id) ON DELETE SET NULL,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
		`CREATE INDEX IF NOT EXISTS messages_receiver_unread_idx ON messages (receiver_id, room_id) WHERE is_read = FALSE;`,
		`CREATE TABLE IF NOT EXISTS invoices (
            id SERIAL PRIMARY KEY,
            invoice_type TEXT NOT NULL CHECK (invoice_type IN ('GIFT', 'BUY', 'TRANSFER', 'ADJUST')),
            giver_id INT REFERENCES users(id),
            taker_id INT REFERENCES users(id),
            give_amount BIGINT NOT NULL DEFAULT 0 CHECK (give_amount >= 0),
            take_amount BIGINT NOT NULL DEFAULT 0 CHECK (take_amount >= 0),
            gift_id INT REFERENCES gifts(id),
            room_id INT REFERENCES rooms(id) ON DELETE SET NULL,
            order_id INT,
            reason TEXT NOT NULL DEFAULT '',
            external_ref TEXT UNIQUE,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
		`CREATE TABLE IF NOT EXISTS transfer_applications (
            id SERIAL PRIMARY KEY,
            user_id INT NOT NULL REFERENCES users(id),
            point BIGINT NOT NULL CHECK (point >= 0),
            fee BIGINT NOT NULL CHECK (fee >= 0),
            amount BIGINT NOT NULL CHECK (amount >= 0),
            status SMALLINT NOT NULL DEFAULT 0 CHECK (status IN (0, 1)),
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            processed_at TIMESTAMPTZ
        );`,
		`CREATE TABLE IF NOT EXISTS favorites (
            follower_id INT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
            favorite_id INT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            PRIMARY KEY(follower_id, favorite_id)
        );`,
		`CREATE TABLE IF NOT EXISTS orders (
            id SERIAL PRIMARY KEY,
            room_id INT REFERENCES rooms(id) ON DELETE SET NULL,
            status SMALLINT NOT NULL DEFAULT 0,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
		`CREATE TABLE IF NOT EXISTS joins (
            id SERIAL PRIMARY KEY,
            order_id INT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
            user_id INT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
            is_ended BOOLEAN NOT NULL DEFAULT FALSE,
            ended_at TIMESTAMPTZ
        );`,
	}

	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return err
		}
	}
	return nil
}
