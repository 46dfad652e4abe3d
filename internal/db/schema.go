package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS pets (
		id BIGSERIAL PRIMARY KEY,
		name VARCHAR(100) NOT NULL,
		species VARCHAR(16) NOT NULL CHECK (species IN ('Dog', 'Cat', 'Bird', 'Other')),
		breed VARCHAR(100),
		age INTEGER NOT NULL,
		age_months INTEGER NOT NULL DEFAULT 0,
		weight NUMERIC(5, 2) NOT NULL,
		photo_url TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS pet_photos (
		id BIGSERIAL PRIMARY KEY,
		pet_id BIGINT NOT NULL REFERENCES pets(id) ON DELETE CASCADE,
		url TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS pet_logs (
		id BIGSERIAL PRIMARY KEY,
		pet_id BIGINT NOT NULL REFERENCES pets(id) ON DELETE CASCADE,
		type VARCHAR(32) NOT NULL CHECK (type IN ('Feeding', 'Drinking', 'Activity', 'Sleep', 'Bathroom', 'Medical', 'Note')),
		value VARCHAR(255),
		notes TEXT,
		occurred_on TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS pet_expenses (
		id BIGSERIAL PRIMARY KEY,
		pet_id BIGINT NOT NULL REFERENCES pets(id) ON DELETE CASCADE,
		category VARCHAR(100) NOT NULL,
		amount NUMERIC(10, 2) NOT NULL,
		notes TEXT,
		spent_on TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS pet_memos (
		id BIGSERIAL PRIMARY KEY,
		pet_id BIGINT NOT NULL REFERENCES pets(id) ON DELETE CASCADE,
		title VARCHAR(255) NOT NULL,
		notes TEXT,
		due_on TIMESTAMPTZ,
		is_done BOOLEAN NOT NULL DEFAULT FALSE,
		source VARCHAR(24) NOT NULL DEFAULT 'manual' CHECK (source IN ('manual', 'ai')),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		id BIGSERIAL PRIMARY KEY,
		email VARCHAR(255) NOT NULL UNIQUE,
		hashed_password TEXT NOT NULL,
		nickname VARCHAR(100) NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS verification_codes (
		id BIGSERIAL PRIMARY KEY,
		email VARCHAR(255) NOT NULL,
		code VARCHAR(6) NOT NULL,
		expires_at TIMESTAMPTZ NOT NULL,
		is_used BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE INDEX IF NOT EXISTS idx_pet_logs_pet_occurred ON pet_logs (pet_id, occurred_on DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_pet_expenses_pet_spent ON pet_expenses (pet_id, spent_on DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_pet_memos_pet ON pet_memos (pet_id)`,
	`CREATE INDEX IF NOT EXISTS idx_verification_codes_email_code ON verification_codes (email, code)`,
}

// EnsureSchema creates any missing tables and indexes. Every statement is
// idempotent, so running it on an already-initialized database is safe.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
