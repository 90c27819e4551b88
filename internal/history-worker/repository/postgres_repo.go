package repository

import (
	"context"
	"database/sql"

	"github.com/radieske/card-round-platform-poc/pkg/contracts/events"
)

// PostgresRepo mantém o read model de histórico de rodadas:
// agregados por outcome e a lista de resultados declarados.
type PostgresRepo struct {
	DB *sql.DB
}

// NewPostgresRepo retorna uma instância de repositório Postgres
func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{DB: db}
}

// ApplyBid acumula uma aposta aceita nos agregados da rodada.
// Utiliza ON CONFLICT para ser idempotente por (round_id, outcome_id) e
// tolerar reprocessamento do consumer group.
func (r *PostgresRepo) ApplyBid(ctx context.Context, e events.BidAccepted) error {
	const q = `
		INSERT INTO round_outcome_stats
		  (round_id, outcome_id, bid_count, staked_cents)
		VALUES
		  ($1,$2,1,$3)
		ON CONFLICT (round_id, outcome_id) DO UPDATE SET
		  bid_count    = round_outcome_stats.bid_count + 1,
		  staked_cents = round_outcome_stats.staked_cents + EXCLUDED.staked_cents
	`
	_, err := r.DB.ExecContext(ctx, q, e.RoundID, e.OutcomeID, e.TotalCents)
	return err
}

// InsertResult insere o resultado declarado no histórico de rodadas.
// ON CONFLICT DO NOTHING: round_settled pode chegar mais de uma vez.
func (r *PostgresRepo) InsertResult(ctx context.Context, e events.RoundSettled) error {
	const q = `
		INSERT INTO round_results
		  (round_id, winning_outcome, outcome_label, result_source, multiplier, total_winners, total_payout_cents, settled_at)
		VALUES
		  ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (round_id) DO NOTHING
	`
	_, err := r.DB.ExecContext(ctx, q,
		e.RoundID, e.WinningOutcome, e.OutcomeLabel, e.ResultSource,
		e.Multiplier, e.TotalWinners, e.TotalPayoutCents, e.SettledAt,
	)
	return err
}
