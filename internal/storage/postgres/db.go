package postgres

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver

	"github.com/avstrong/staybook/internal/logger"
)

type Config struct {
	L        *logger.Logger
	Host     string
	Port     int
	UserName string
	Password string
	DBName   string
	SSLMode  string
	// NumberPrefix is prepended to every booking number.
	NumberPrefix string
}

func (c Config) dsn() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s/%s?sslmode=%s",
		c.UserName,
		c.Password,
		net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		c.DBName,
		c.SSLMode,
	)
}

type DB struct {
	db     *sqlx.DB
	l      *logger.Logger
	prefix string
}

// Open connects and pings the database.
func Open(ctx context.Context, conf Config) (*DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", conf.dsn())
	if err != nil {
		return nil, fmt.Errorf("connect to postgres %v:%v: %w", conf.Host, conf.Port, err)
	}

	return New(db, conf), nil
}

// New wraps an existing connection. The driver name of db must use $n bind vars.
func New(db *sqlx.DB, conf Config) *DB {
	l := conf.L
	if l == nil {
		l = logger.Nop()
	}

	prefix := conf.NumberPrefix
	if prefix == "" {
		prefix = "BK"
	}

	return &DB{
		db:     db,
		l:      l,
		prefix: prefix,
	}
}

func (d *DB) Close() error {
	return d.db.Close()
}

const schema = `
CREATE EXTENSION IF NOT EXISTS btree_gist;

CREATE TABLE IF NOT EXISTS rooms (
	id             TEXT PRIMARY KEY,
	name           TEXT NOT NULL,
	rate_per_night NUMERIC(12, 2) NOT NULL CHECK (rate_per_night >= 0),
	max_capacity   INT NOT NULL CHECK (max_capacity > 0)
);

CREATE SEQUENCE IF NOT EXISTS booking_number_seq;

CREATE TABLE IF NOT EXISTS bookings (
	number            TEXT PRIMARY KEY,
	idempotency_key   TEXT NOT NULL UNIQUE,
	room_id           TEXT NOT NULL REFERENCES rooms (id),
	guest_id          TEXT NOT NULL,
	check_in          DATE NOT NULL,
	check_out         DATE NOT NULL,
	stay              JSONB NOT NULL,
	cost              JSONB NOT NULL,
	payment_method    TEXT NOT NULL,
	status            TEXT NOT NULL,
	hold_until        TIMESTAMPTZ,
	payment_reference TEXT NOT NULL DEFAULT '',
	created_at        TIMESTAMPTZ NOT NULL,
	updated_at        TIMESTAMPTZ NOT NULL,
	CONSTRAINT bookings_room_stay_excl EXCLUDE USING gist (
		room_id WITH =,
		daterange(check_in, check_out) WITH &&
	) WHERE (status NOT IN ('Rejected', 'Cancelled', 'Completed'))
);

CREATE INDEX IF NOT EXISTS bookings_room_dates_idx ON bookings (room_id, check_in, check_out);
CREATE INDEX IF NOT EXISTS bookings_status_idx ON bookings (status);

CREATE TABLE IF NOT EXISTS booking_events (
	id             BIGSERIAL PRIMARY KEY,
	booking_number TEXT NOT NULL REFERENCES bookings (number),
	from_status    TEXT NOT NULL,
	to_status      TEXT NOT NULL,
	event          TEXT NOT NULL,
	actor          TEXT NOT NULL,
	note           TEXT NOT NULL DEFAULT '',
	trace_id       TEXT NOT NULL DEFAULT '',
	created_at     TIMESTAMPTZ NOT NULL
);
`

// Migrate creates the tables when they do not exist yet.
func (d *DB) Migrate(ctx context.Context) error {
	if _, err := d.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	d.l.LogInfo("Postgres schema is up to date")

	return nil
}

// rollback is deferred by every write; it is a no-op after a successful commit.
func (d *DB) rollback(tx *sqlx.Tx, err *error) {
	if *err == nil {
		return
	}

	if rbErr := tx.Rollback(); rbErr != nil {
		d.l.LogErrorf("Rollback failed: %v, original error: %v", rbErr.Error(), (*err).Error())
	}
}
