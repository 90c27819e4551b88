package wallet

import "errors"

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrNotFound          = errors.New("wallet not found")
)

// Balance é a leitura dos dois sub-saldos de um usuário, em centavos.
type Balance struct {
	UserID     string
	WalletID   string
	MainCents  int64
	BonusCents int64
}

// splitDebit aplica a política de débito: consome bônus primeiro e o
// restante do saldo principal. Retorna os débitos de cada sub-saldo.
// ok=false quando main+bonus < amount (nenhum saldo pode ficar negativo).
func splitDebit(mainCents, bonusCents, amount int64) (fromBonus, fromMain int64, ok bool) {
	if amount <= 0 || mainCents+bonusCents < amount {
		return 0, 0, false
	}
	fromBonus = amount
	if fromBonus > bonusCents {
		fromBonus = bonusCents
	}
	fromMain = amount - fromBonus
	return fromBonus, fromMain, true
}
