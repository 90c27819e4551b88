package broadcast

import "github.com/radieske/card-round-platform-poc/internal/round-service/pricing"

// Tipos de evento emitidos na ordem em que o estado realmente mudou:
// round_created -> state_changed -> result_declared, com timer_tick contínuo.
const (
	TypeTimerTick      = "timer_tick"
	TypeRoundCreated   = "round_created"
	TypeStateChanged   = "state_changed"
	TypeResultDeclared = "result_declared"
)

// Event é o envelope enviado aos assinantes e publicado no Redis Pub/Sub.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// TimerTick é a mensagem de relógio emitida a cada tick do scheduler.
type TimerTick struct {
	SecondsRemaining int    `json:"secondsRemaining"`
	IsBreak          bool   `json:"isBreak"`
	RoundState       string `json:"roundState"`
	ActiveRoundID    string `json:"activeRoundId"`
	NextResultTime   string `json:"nextResultTime"`
}

// RoundCreated anuncia a abertura de uma nova rodada.
type RoundCreated struct {
	RoundID        string `json:"roundId"`
	BiddingCloseAt string `json:"biddingCloseAt"`
	SettleAt       string `json:"settleAt"`
}

// StateChanged anuncia uma transição de estado da rodada corrente.
type StateChanged struct {
	RoundID string `json:"roundId"`
	From    string `json:"from"`
	To      string `json:"to"`
}

// ResultDeclared anuncia o resultado vencedor de uma rodada liquidada.
// Result usa o label curto do outcome (ex: "10♦").
type ResultDeclared struct {
	Time   string `json:"time"`
	Result string `json:"result"`
}

// Snapshot é o estado completo puxado por assinantes que (re)conectam:
// eventos perdidos se curam por resync, não por replay.
type Snapshot struct {
	RoundID          string                 `json:"roundId"`
	RoundState       string                 `json:"roundState"`
	SecondsRemaining int                    `json:"secondsRemaining"`
	IsBreak          bool                   `json:"isBreak"`
	NextResultTime   string                 `json:"nextResultTime"`
	Outcomes         []pricing.OutcomeState `json:"outcomes"`
	LastResult       *ResultDeclared        `json:"lastResult,omitempty"`
}
