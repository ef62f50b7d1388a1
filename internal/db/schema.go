package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// The partial unique index on (date, slot_time) is the backstop for the
// double-booking invariant: even if two writers slip past the Redis slot
// lock, at most one active appointment per slot can ever be committed.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            UUID PRIMARY KEY,
		username      TEXT NOT NULL UNIQUE,
		email         TEXT NOT NULL,
		password_hash TEXT NOT NULL,
		role          TEXT NOT NULL DEFAULT 'patient',
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS appointments (
		id           UUID PRIMARY KEY,
		owner_id     UUID NOT NULL REFERENCES users(id),
		patient_name TEXT NOT NULL,
		patient_age  INT NOT NULL CHECK (patient_age BETWEEN 1 AND 120),
		date         DATE NOT NULL,
		slot_time    TEXT NOT NULL,
		purpose      TEXT NOT NULL,
		status       TEXT NOT NULL DEFAULT 'active',
		created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS appointments_active_slot_idx
		ON appointments (date, slot_time)
		WHERE status = 'active'`,
	`CREATE INDEX IF NOT EXISTS appointments_owner_idx
		ON appointments (owner_id)`,
	`CREATE TABLE IF NOT EXISTS booking_events (
		id             BIGSERIAL PRIMARY KEY,
		event_type     TEXT NOT NULL,
		appointment_id UUID,
		payload        JSONB,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

// Migrate applies the schema idempotently on startup.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
