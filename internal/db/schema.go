package db

import (
	"context"
	"fmt"
)

// Migrate creates all tables and indexes. Safe to call multiple times.
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id             UUID PRIMARY KEY,
	fid            BIGINT,
	auth_id        TEXT,
	wallet_address TEXT,
	username       TEXT NOT NULL DEFAULT '',
	pfp_url        TEXT,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	CONSTRAINT users_fid_key UNIQUE (fid),
	CONSTRAINT users_auth_id_key UNIQUE (auth_id),
	CHECK (fid IS NOT NULL OR auth_id IS NOT NULL)
);

CREATE INDEX IF NOT EXISTS idx_users_wallet ON users(wallet_address) WHERE wallet_address IS NOT NULL;

CREATE TABLE IF NOT EXISTS cycles (
	id             UUID PRIMARY KEY,
	week_number    INTEGER NOT NULL,
	year           INTEGER NOT NULL,
	phase          TEXT NOT NULL DEFAULT 'voting' CHECK (phase IN ('voting', 'listening')),
	start_date     TIMESTAMPTZ NOT NULL,
	end_date       TIMESTAMPTZ NOT NULL,
	voting_ends_at TIMESTAMPTZ NOT NULL,
	winner_id      UUID,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	CONSTRAINT cycles_year_week_key UNIQUE (year, week_number),
	CHECK (voting_ends_at < end_date)
);

CREATE TABLE IF NOT EXISTS albums (
	id                     UUID PRIMARY KEY,
	external_id            TEXT NOT NULL,
	cycle_id               UUID NOT NULL REFERENCES cycles(id),
	title                  TEXT NOT NULL,
	artist                 TEXT NOT NULL,
	cover_url              TEXT,
	album_url              TEXT,
	release_date           TEXT,
	submitted_by_fid       BIGINT,
	submitted_by_user_id   UUID,
	submitter_username     TEXT NOT NULL DEFAULT '',
	status                 TEXT NOT NULL DEFAULT 'voting' CHECK (status IN ('voting', 'selected', 'lost')),
	avg_rating             DOUBLE PRECISION,
	total_reviews          INTEGER NOT NULL DEFAULT 0,
	most_loved_track       TEXT,
	most_loved_track_votes INTEGER NOT NULL DEFAULT 0,
	created_at             TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	CONSTRAINT albums_cycle_external_key UNIQUE (cycle_id, external_id),
	CHECK ((submitted_by_fid IS NULL) <> (submitted_by_user_id IS NULL))
);

CREATE UNIQUE INDEX IF NOT EXISTS albums_one_selected_per_cycle ON albums(cycle_id) WHERE status = 'selected';
CREATE INDEX IF NOT EXISTS idx_albums_external_status ON albums(external_id, status);

CREATE TABLE IF NOT EXISTS votes (
	id            UUID PRIMARY KEY,
	album_id      UUID NOT NULL REFERENCES albums(id),
	voter_fid     BIGINT,
	voter_user_id UUID,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	CHECK ((voter_fid IS NULL) <> (voter_user_id IS NULL))
);

CREATE UNIQUE INDEX IF NOT EXISTS votes_album_fid_key ON votes(album_id, voter_fid) WHERE voter_fid IS NOT NULL;
CREATE UNIQUE INDEX IF NOT EXISTS votes_album_user_key ON votes(album_id, voter_user_id) WHERE voter_user_id IS NOT NULL;

CREATE TABLE IF NOT EXISTS reviews (
	id                UUID PRIMARY KEY,
	album_id          UUID NOT NULL REFERENCES albums(id),
	reviewer_fid      BIGINT,
	reviewer_user_id  UUID,
	reviewer_username TEXT NOT NULL DEFAULT '',
	reviewer_pfp      TEXT,
	rating            INTEGER NOT NULL CHECK (rating BETWEEN 1 AND 5),
	review_text       TEXT NOT NULL,
	favorite_track    TEXT,
	has_listened      BOOLEAN NOT NULL DEFAULT FALSE,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	CHECK ((reviewer_fid IS NULL) <> (reviewer_user_id IS NULL))
);

CREATE UNIQUE INDEX IF NOT EXISTS reviews_album_fid_key ON reviews(album_id, reviewer_fid) WHERE reviewer_fid IS NOT NULL;
CREATE UNIQUE INDEX IF NOT EXISTS reviews_album_user_key ON reviews(album_id, reviewer_user_id) WHERE reviewer_user_id IS NOT NULL;
`
