package repo

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/radieske/card-round-platform-poc/internal/round-service/wallet"
)

// Postgres implementa a persistência de rodadas, apostas e liquidações.
// As garantias de atomicidade do placement e do settlement vivem aqui:
// cada operação é uma única transação com locks de linha.
type Postgres struct{ db *sql.DB }

func NewPostgres(db *sql.DB) *Postgres { return &Postgres{db: db} }

// CreateRound insere uma nova rodada em estado OPEN.
func (p *Postgres) CreateRound(ctx context.Context, r *Round) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO rounds (id, state, bidding_close_at, settle_at, created_at)
		VALUES ($1,$2,$3,$4,$5)`,
		r.ID, r.State, r.BiddingCloseAt, r.SettleAt, r.CreatedAt,
	)
	return err
}

// CurrentRound retorna a rodada não liquidada mais recente.
// ErrNotFound quando não há rodada em andamento (startup ou pós-SETTLED).
func (p *Postgres) CurrentRound(ctx context.Context) (*Round, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, state, bidding_close_at, settle_at,
		       COALESCE(winning_outcome,''), COALESCE(result_source,''), created_at, settled_at
		FROM rounds
		WHERE state <> 'SETTLED'
		ORDER BY created_at DESC
		LIMIT 1`)
	return scanRound(row)
}

// RoundByID busca uma rodada pelo id.
func (p *Postgres) RoundByID(ctx context.Context, id string) (*Round, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, state, bidding_close_at, settle_at,
		       COALESCE(winning_outcome,''), COALESCE(result_source,''), created_at, settled_at
		FROM rounds WHERE id=$1`, id)
	return scanRound(row)
}

func scanRound(row *sql.Row) (*Round, error) {
	var r Round
	var settledAt sql.NullTime
	err := row.Scan(&r.ID, &r.State, &r.BiddingCloseAt, &r.SettleAt,
		&r.WinningOutcome, &r.ResultSource, &r.CreatedAt, &settledAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, err
	}
	if settledAt.Valid {
		t := settledAt.Time
		r.SettledAt = &t
	}
	return &r, nil
}

// AdvanceState executa uma transição guardada de estado (write-then-transition:
// o scheduler só flipa o estado em memória depois desse UPDATE durável).
// ErrStaleState quando a rodada não está mais no estado de origem.
func (p *Postgres) AdvanceState(ctx context.Context, roundID, from, to string) error {
	res, err := p.db.ExecContext(ctx,
		`UPDATE rounds SET state=$1 WHERE id=$2 AND state=$3`, to, roundID, from)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrStaleState
	}
	return nil
}

// OutcomeStakes retorna os acumulados apostados por outcome de uma rodada.
// Usado na recuperação pós-restart para repor os contadores do engine.
func (p *Postgres) OutcomeStakes(ctx context.Context, roundID string) (map[string]int64, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT outcome_id, staked_cents FROM round_outcomes WHERE round_id=$1`, roundID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var id string
		var staked int64
		if err := rows.Scan(&id, &staked); err != nil {
			return nil, err
		}
		out[id] = staked
	}
	return out, rows.Err()
}

// PlaceBids aplica um placement como unidade atômica: debita a carteira pelo
// total combinado, insere um registro de aposta por par e atualiza os
// contadores persistidos da rodada — tudo ou nada, numa única transação.
func (p *Postgres) PlaceBids(ctx context.Context, userID string, round *Round, items []BidItem) (bidIDs []string, totalCents int64, err error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, 0, err
	}
	defer tx.Rollback()

	// Lock na linha da rodada: serializa contra o settlement e revalida
	// o estado com o lock tomado.
	var state string
	err = tx.QueryRowContext(ctx,
		`SELECT state FROM rounds WHERE id=$1 FOR UPDATE`, round.ID).Scan(&state)
	if err == sql.ErrNoRows {
		return nil, 0, ErrNotFound
	} else if err != nil {
		return nil, 0, err
	}
	if state != StateOpen {
		return nil, 0, ErrStaleState
	}

	for _, it := range items {
		totalCents += it.UnitPriceCents * it.Quantity
	}

	if err = wallet.DebitTx(ctx, tx, userID, totalCents, "bids:"+round.ID); err != nil {
		if err == wallet.ErrNotFound {
			return nil, 0, wallet.ErrInsufficientFunds
		}
		return nil, 0, err
	}

	now := time.Now().UTC()
	for _, it := range items {
		id := uuid.NewString()
		total := it.UnitPriceCents * it.Quantity
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO bids (id, round_id, user_id, outcome_id, quantity, unit_price_cents, total_cents, payout_cents, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,0,$8)`,
			id, round.ID, userID, it.OutcomeID, it.Quantity, it.UnitPriceCents, total, now,
		); err != nil {
			return nil, 0, err
		}

		if _, err = tx.ExecContext(ctx, `
			INSERT INTO round_outcomes (round_id, outcome_id, staked_cents, price_cents)
			VALUES ($1,$2,$3,$4)
			ON CONFLICT (round_id, outcome_id) DO UPDATE SET
			  staked_cents = round_outcomes.staked_cents + EXCLUDED.staked_cents,
			  price_cents  = GREATEST(round_outcomes.price_cents, EXCLUDED.price_cents)`,
			round.ID, it.OutcomeID, total, it.UnitPriceCents,
		); err != nil {
			return nil, 0, err
		}

		bidIDs = append(bidIDs, id)
	}

	if err = tx.Commit(); err != nil {
		return nil, 0, err
	}
	return bidIDs, totalCents, nil
}

// Settle liquida uma rodada exatamente uma vez, numa única transação durável:
// crédito dos vencedores, marcação de payout por aposta, SettlementRecord e
// estado SETTLED. Se já existir registro, devolve-o sem recomputar nem
// repagar (created=false). Falha no meio faz rollback completo — o próximo
// tick tenta de novo do zero, sem créditos parciais.
func (p *Postgres) Settle(ctx context.Context, roundID, outcomeID, source string, multiplier int64, now time.Time) (rec *SettlementRecord, created bool, err error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback()

	var state string
	err = tx.QueryRowContext(ctx,
		`SELECT state FROM rounds WHERE id=$1 FOR UPDATE`, roundID).Scan(&state)
	if err == sql.ErrNoRows {
		return nil, false, ErrNotFound
	} else if err != nil {
		return nil, false, err
	}

	// Guarda de idempotência: no máximo um SettlementRecord por rodada.
	existing, err := settlementTx(ctx, tx, roundID)
	if err == nil {
		_ = tx.Commit()
		return existing, false, nil
	} else if err != ErrNotFound {
		return nil, false, err
	}

	if state == StateOpen {
		return nil, false, ErrBiddingOpen
	}

	// Seleciona as apostas vencedoras antes de creditar (uma statement por vez)
	rows, err := tx.QueryContext(ctx,
		`SELECT id, user_id, total_cents FROM bids WHERE round_id=$1 AND outcome_id=$2`,
		roundID, outcomeID)
	if err != nil {
		return nil, false, err
	}
	type winner struct {
		bidID  string
		userID string
		total  int64
	}
	var winners []winner
	for rows.Next() {
		var w winner
		if err := rows.Scan(&w.bidID, &w.userID, &w.total); err != nil {
			rows.Close()
			return nil, false, err
		}
		winners = append(winners, w)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, false, err
	}
	rows.Close()

	var totalPayout int64
	for _, w := range winners {
		payout := w.total * multiplier
		if err = wallet.CreditTx(ctx, tx, w.userID, payout, true, "payout:"+w.bidID); err != nil {
			return nil, false, err
		}
		if _, err = tx.ExecContext(ctx,
			`UPDATE bids SET payout_cents=$1 WHERE id=$2`, payout, w.bidID); err != nil {
			return nil, false, err
		}
		totalPayout += payout
	}

	rec = &SettlementRecord{
		RoundID:          roundID,
		WinningOutcome:   outcomeID,
		ResultSource:     source,
		Multiplier:       multiplier,
		TotalWinners:     len(winners),
		TotalPayoutCents: totalPayout,
		SettledAt:        now,
	}
	if _, err = tx.ExecContext(ctx, `
		INSERT INTO settlement_records (round_id, winning_outcome, result_source, multiplier, total_winners, total_payout_cents, settled_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		rec.RoundID, rec.WinningOutcome, rec.ResultSource, rec.Multiplier, rec.TotalWinners, rec.TotalPayoutCents, rec.SettledAt,
	); err != nil {
		return nil, false, err
	}

	if _, err = tx.ExecContext(ctx, `
		UPDATE rounds SET state=$1, winning_outcome=$2, result_source=$3, settled_at=$4 WHERE id=$5`,
		StateSettled, outcomeID, source, now, roundID,
	); err != nil {
		return nil, false, err
	}

	if err = tx.Commit(); err != nil {
		return nil, false, err
	}
	return rec, true, nil
}

// Settlement retorna o registro de liquidação de uma rodada, se existir.
func (p *Postgres) Settlement(ctx context.Context, roundID string) (*SettlementRecord, error) {
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	rec, err := settlementTx(ctx, tx, roundID)
	if err != nil {
		return nil, err
	}
	return rec, tx.Commit()
}

func settlementTx(ctx context.Context, tx *sql.Tx, roundID string) (*SettlementRecord, error) {
	var rec SettlementRecord
	err := tx.QueryRowContext(ctx, `
		SELECT round_id, winning_outcome, result_source, multiplier, total_winners, total_payout_cents, settled_at
		FROM settlement_records WHERE round_id=$1`, roundID).
		Scan(&rec.RoundID, &rec.WinningOutcome, &rec.ResultSource, &rec.Multiplier,
			&rec.TotalWinners, &rec.TotalPayoutCents, &rec.SettledAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, err
	}
	return &rec, nil
}
