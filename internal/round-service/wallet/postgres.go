package wallet

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
)

// Postgres implementa as operações de carteira em banco.
// Saldos nunca são atribuídos diretamente: toda mutação passa por
// DebitTx/CreditTx com lock pessimista na linha da carteira.
type Postgres struct{ db *sql.DB }

func NewPostgres(db *sql.DB) *Postgres { return &Postgres{db: db} }

// GetOrCreate retorna a carteira do usuário, criando-a zerada se não existir.
func (p *Postgres) GetOrCreate(ctx context.Context, userID string) (Balance, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return Balance{}, err
	}
	defer tx.Rollback()

	b, err := getOrCreateTx(ctx, tx, userID)
	if err != nil {
		return Balance{}, err
	}

	if err = tx.Commit(); err != nil {
		return Balance{}, err
	}
	return b, nil
}

// Deposit credita o saldo principal e registra a operação no ledger.
func (p *Postgres) Deposit(ctx context.Context, userID string, amountCents int64, externalRef string) (Balance, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return Balance{}, err
	}
	defer tx.Rollback()

	if _, err = getOrCreateTx(ctx, tx, userID); err != nil {
		return Balance{}, err
	}
	if err = CreditTx(ctx, tx, userID, amountCents, true, "deposit:"+externalRef); err != nil {
		return Balance{}, err
	}

	b, err := readTx(ctx, tx, userID)
	if err != nil {
		return Balance{}, err
	}
	if err = tx.Commit(); err != nil {
		return Balance{}, err
	}
	return b, nil
}

// DebitIfSufficient debita amount da carteira (bônus primeiro, depois main)
// em uma transação própria. Retorna ErrInsufficientFunds sem mutação quando
// o saldo combinado não cobre o valor.
func (p *Postgres) DebitIfSufficient(ctx context.Context, userID string, amountCents int64, ref string) (Balance, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return Balance{}, err
	}
	defer tx.Rollback()

	if err = DebitTx(ctx, tx, userID, amountCents, ref); err != nil {
		return Balance{}, err
	}

	b, err := readTx(ctx, tx, userID)
	if err != nil {
		return Balance{}, err
	}
	if err = tx.Commit(); err != nil {
		return Balance{}, err
	}
	return b, nil
}

// Credit credita amount em transação própria (toMain escolhe o sub-saldo).
func (p *Postgres) Credit(ctx context.Context, userID string, amountCents int64, toMain bool, ref string) (Balance, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return Balance{}, err
	}
	defer tx.Rollback()

	if err = CreditTx(ctx, tx, userID, amountCents, toMain, ref); err != nil {
		return Balance{}, err
	}

	b, err := readTx(ctx, tx, userID)
	if err != nil {
		return Balance{}, err
	}
	if err = tx.Commit(); err != nil {
		return Balance{}, err
	}
	return b, nil
}

// DebitTx debita dentro de uma transação já aberta pelo chamador.
// Usado pelo placement para manter débito + bids + contadores atômicos.
// Lock pessimista na linha; a checagem de saldo acontece com o lock tomado.
func DebitTx(ctx context.Context, tx *sql.Tx, userID string, amountCents int64, ref string) error {
	var walletID string
	var mainC, bonusC int64
	err := tx.QueryRowContext(ctx,
		`SELECT id, main_cents, bonus_cents FROM wallets WHERE user_id=$1 FOR UPDATE`,
		userID).Scan(&walletID, &mainC, &bonusC)
	if err == sql.ErrNoRows {
		return ErrNotFound
	} else if err != nil {
		return err
	}

	fromBonus, fromMain, ok := splitDebit(mainC, bonusC, amountCents)
	if !ok {
		return ErrInsufficientFunds
	}

	if _, err = tx.ExecContext(ctx,
		`UPDATE wallets SET main_cents = main_cents - $1, bonus_cents = bonus_cents - $2, version = version + 1 WHERE id=$3`,
		fromMain, fromBonus, walletID); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO wallet_ledger(wallet_id, operation_type, amount_cents, description) VALUES($1,'DEBIT',$2,$3)`,
		walletID, amountCents, ref)
	return err
}

// CreditTx credita dentro de uma transação já aberta pelo chamador.
// Usado pelo settlement para creditar vencedores na mesma transação
// que grava o SettlementRecord.
func CreditTx(ctx context.Context, tx *sql.Tx, userID string, amountCents int64, toMain bool, ref string) error {
	var walletID string
	err := tx.QueryRowContext(ctx,
		`SELECT id FROM wallets WHERE user_id=$1 FOR UPDATE`, userID).Scan(&walletID)
	if err == sql.ErrNoRows {
		return ErrNotFound
	} else if err != nil {
		return err
	}

	column := "bonus_cents"
	if toMain {
		column = "main_cents"
	}
	if _, err = tx.ExecContext(ctx,
		`UPDATE wallets SET `+column+` = `+column+` + $1, version = version + 1 WHERE id=$2`,
		amountCents, walletID); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO wallet_ledger(wallet_id, operation_type, amount_cents, description) VALUES($1,'CREDIT',$2,$3)`,
		walletID, amountCents, ref)
	return err
}

func getOrCreateTx(ctx context.Context, tx *sql.Tx, userID string) (Balance, error) {
	var b Balance
	b.UserID = userID
	err := tx.QueryRowContext(ctx,
		`SELECT id, main_cents, bonus_cents FROM wallets WHERE user_id=$1`,
		userID).Scan(&b.WalletID, &b.MainCents, &b.BonusCents)
	if err == sql.ErrNoRows {
		b.WalletID = uuid.New().String()
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO wallets(id, user_id, main_cents, bonus_cents, version) VALUES($1,$2,0,0,1)`,
			b.WalletID, userID); err != nil {
			return Balance{}, err
		}
		return b, nil
	} else if err != nil {
		return Balance{}, err
	}
	return b, nil
}

func readTx(ctx context.Context, tx *sql.Tx, userID string) (Balance, error) {
	var b Balance
	b.UserID = userID
	err := tx.QueryRowContext(ctx,
		`SELECT id, main_cents, bonus_cents FROM wallets WHERE user_id=$1`,
		userID).Scan(&b.WalletID, &b.MainCents, &b.BonusCents)
	if err == sql.ErrNoRows {
		return Balance{}, ErrNotFound
	} else if err != nil {
		return Balance{}, err
	}
	return b, nil
}
