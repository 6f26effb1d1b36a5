package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"taostats/internal/model"
)

// Schema creates the tables the store writes.
const Schema = `
CREATE TABLE IF NOT EXISTS tx_outcomes (
	id                 BIGSERIAL PRIMARY KEY,
	operation          TEXT NOT NULL,
	success            BOOLEAN NOT NULL,
	tx_hash            TEXT,
	block_hash         TEXT,
	block_number       BIGINT,
	error              TEXT,
	from_address       TEXT,
	to_address         TEXT,
	hotkey             TEXT,
	destination_hotkey TEXT,
	netuid             INTEGER,
	origin_netuid      INTEGER,
	destination_netuid INTEGER,
	amount             NUMERIC NOT NULL,
	fee                NUMERIC,
	received           NUMERIC,
	slippage_percent   NUMERIC,
	recorded_at        TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS pool_snapshots (
	netuid         INTEGER NOT NULL,
	captured_at    TIMESTAMPTZ NOT NULL,
	tao_reserve    NUMERIC NOT NULL,
	alpha_reserve  NUMERIC NOT NULL,
	tao_emission   NUMERIC NOT NULL,
	alpha_emission NUMERIC NOT NULL,
	price          NUMERIC NOT NULL,
	PRIMARY KEY (netuid, captured_at)
);
`

// Store provides Postgres persistence for outcomes and pool snapshots.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Migrate applies Schema.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, Schema)
	return err
}

// Record inserts one outcome.
func (s *Store) Record(ctx context.Context, rec model.OutcomeRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO tx_outcomes (
			operation, success, tx_hash, block_hash, block_number, error,
			from_address, to_address, hotkey, destination_hotkey,
			netuid, origin_netuid, destination_netuid,
			amount, fee, received, slippage_percent, recorded_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
	`, outcomeArgs(rec)...)
	return err
}

// PutPoolSnapshots inserts or updates pool readings.
func (s *Store) PutPoolSnapshots(ctx context.Context, snaps []model.PoolSnapshotRecord) error {
	if len(snaps) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, snap := range snaps {
		batch.Queue(`
			INSERT INTO pool_snapshots (
				netuid, captured_at, tao_reserve, alpha_reserve, tao_emission, alpha_emission, price
			) VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (netuid, captured_at)
			DO UPDATE SET
				tao_reserve = EXCLUDED.tao_reserve,
				alpha_reserve = EXCLUDED.alpha_reserve,
				tao_emission = EXCLUDED.tao_emission,
				alpha_emission = EXCLUDED.alpha_emission,
				price = EXCLUDED.price
		`,
			int32(snap.Netuid),
			snap.CapturedAt,
			snap.TaoReserve,
			snap.AlphaReserve,
			snap.TaoEmission,
			snap.AlphaEmission,
			snap.Price,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range snaps {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

func outcomeArgs(rec model.OutcomeRecord) []any {
	return []any{
		rec.Operation,
		rec.Success,
		nullString(rec.TxHash),
		nullString(rec.BlockHash),
		nullBlock(rec.BlockNumber),
		nullString(rec.Error),
		nullString(rec.From),
		nullString(rec.To),
		nullString(rec.Hotkey),
		nullString(rec.DestinationHotkey),
		nullNetuid(rec.Netuid),
		nullNetuid(rec.OriginNetuid),
		nullNetuid(rec.DestinationNetuid),
		rec.Amount,
		nullString(rec.Fee),
		nullString(rec.Received),
		nullString(rec.SlippagePercent),
		rec.RecordedAt,
	}
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullBlock(n uint64) *int64 {
	if n == 0 {
		return nil
	}
	v := int64(n)
	return &v
}

func nullNetuid(n *uint16) *int32 {
	if n == nil {
		return nil
	}
	v := int32(*n)
	return &v
}
