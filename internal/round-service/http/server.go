package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/radieske/card-round-platform-poc/internal/round-service/auth"
	"github.com/radieske/card-round-platform-poc/internal/round-service/broadcast"
	"github.com/radieske/card-round-platform-poc/internal/round-service/dto"
	"github.com/radieske/card-round-platform-poc/internal/round-service/engine"
	"github.com/radieske/card-round-platform-poc/internal/round-service/repo"
	"github.com/radieske/card-round-platform-poc/internal/round-service/wallet"
)

// Ledger define as operações de placement usadas pelo handler HTTP.
type Ledger interface {
	Place(ctx context.Context, userID, roundID string, pairs []engine.PlacePair) (*engine.PlacementResult, error)
}

// Settler define as operações de liquidação usadas pelo handler HTTP.
type Settler interface {
	Settle(ctx context.Context, roundID, outcomeID, source string) (*repo.SettlementRecord, bool, error)
	Record(ctx context.Context, roundID string) (*repo.SettlementRecord, error)
}

// WalletRepo define as operações de carteira usadas pelo handler HTTP.
type WalletRepo interface {
	GetOrCreate(ctx context.Context, userID string) (wallet.Balance, error)
	Deposit(ctx context.Context, userID string, amountCents int64, externalRef string) (wallet.Balance, error)
}

// Server expõe a API REST do round-service.
type Server struct {
	log       *zap.Logger
	ledger    Ledger
	settler   Settler
	wallets   WalletRepo
	snapshot  func() broadcast.Snapshot
	validator auth.Validator
	wsHandler http.HandlerFunc
}

// NewServer instancia o servidor HTTP do round-service.
func NewServer(log *zap.Logger, ledger Ledger, settler Settler, wallets WalletRepo, snapshot func() broadcast.Snapshot, validator auth.Validator, wsHandler http.HandlerFunc) *Server {
	return &Server{
		log:       log,
		ledger:    ledger,
		settler:   settler,
		wallets:   wallets,
		snapshot:  snapshot,
		validator: validator,
		wsHandler: wsHandler,
	}
}

// Router retorna o roteador HTTP com as rotas da API.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/v1/rounds/current", s.currentRound)      // snapshot p/ late-joiners
	r.Get("/v1/rounds/{id}/result", s.roundResult)   // resultado liquidado
	r.Post("/v1/admin/rounds/{id}/settle", s.settle) // resultado do operador
	if s.wsHandler != nil {
		r.Get("/ws", s.wsHandler)
	}

	// Rotas que exigem identidade validada
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(s.validator))
		r.Post("/v1/bids", s.placeBids)
		r.Get("/v1/wallet", s.getWallet)
		r.Post("/v1/wallet/deposit", s.deposit)
	})

	return r
}

// currentRound devolve o snapshot completo do estado corrente.
func (s *Server) currentRound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.snapshot())
}

// placeBids aceita um placement multi-outcome tudo-ou-nada.
func (s *Server) placeBids(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFrom(r.Context())
	if !ok {
		http.Error(w, "missing identity", http.StatusUnauthorized)
		return
	}

	var req dto.PlaceBidsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, engine.KindValidation, "bad json")
		return
	}

	pairs := make([]engine.PlacePair, 0, len(req.Bids))
	for _, b := range req.Bids {
		pairs = append(pairs, engine.PlacePair{OutcomeID: b.OutcomeID, Quantity: b.Quantity})
	}

	res, err := s.ledger.Place(r.Context(), userID, req.RoundID, pairs)
	if err != nil {
		kind := engine.Kind(err)
		if kind == engine.KindInternal {
			s.log.Error("place bids failed", zap.String("userId", userID), zap.Error(err))
		}
		writeError(w, kind, publicMessage(kind, err))
		return
	}

	writeJSON(w, http.StatusOK, dto.PlaceBidsResponse{
		OK:         true,
		BidIDs:     res.BidIDs,
		TotalCents: res.TotalCents,
	})
}

// getWallet devolve (criando se preciso) os saldos do usuário.
func (s *Server) getWallet(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFrom(r.Context())
	if !ok {
		http.Error(w, "missing identity", http.StatusUnauthorized)
		return
	}
	b, err := s.wallets.GetOrCreate(r.Context(), userID)
	if err != nil {
		writeError(w, engine.KindInternal, "wallet unavailable")
		return
	}
	writeJSON(w, http.StatusOK, dto.WalletResponse{Main: b.MainCents, Bonus: b.BonusCents})
}

// deposit credita o saldo principal do usuário.
func (s *Server) deposit(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFrom(r.Context())
	if !ok {
		http.Error(w, "missing identity", http.StatusUnauthorized)
		return
	}
	var req dto.DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AmountCents <= 0 {
		writeError(w, engine.KindValidation, "invalid payload")
		return
	}
	b, err := s.wallets.Deposit(r.Context(), userID, req.AmountCents, req.ExternalRef)
	if err != nil {
		writeError(w, engine.KindInternal, "deposit failed")
		return
	}
	writeJSON(w, http.StatusOK, dto.DepositResponse{UserID: userID, Main: b.MainCents, Bonus: b.BonusCents})
}

// settle aplica o resultado informado pelo operador.
// Idempotente: repetir a chamada ecoa o registro existente.
func (s *Server) settle(w http.ResponseWriter, r *http.Request) {
	roundID := chi.URLParam(r, "id")
	var req dto.SettleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.WinningOutcomeID == "" {
		writeError(w, engine.KindValidation, "winningOutcomeId required")
		return
	}

	rec, _, err := s.settler.Settle(r.Context(), roundID, req.WinningOutcomeID, repo.SourceOperator)
	if err != nil {
		kind := engine.Kind(err)
		if kind == engine.KindInternal {
			s.log.Error("operator settle failed", zap.String("roundId", roundID), zap.Error(err))
		}
		writeError(w, kind, publicMessage(kind, err))
		return
	}
	writeJSON(w, http.StatusOK, settlementResponse(rec))
}

// roundResult devolve o registro de liquidação de uma rodada.
func (s *Server) roundResult(w http.ResponseWriter, r *http.Request) {
	roundID := chi.URLParam(r, "id")
	rec, err := s.settler.Record(r.Context(), roundID)
	if err != nil {
		if err == repo.ErrNotFound {
			writeError(w, engine.KindNotFound, "round not settled")
			return
		}
		writeError(w, engine.KindInternal, "lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, settlementResponse(rec))
}

func settlementResponse(rec *repo.SettlementRecord) dto.SettlementResponse {
	return dto.SettlementResponse{
		RoundID:          rec.RoundID,
		WinningOutcome:   rec.WinningOutcome,
		ResultSource:     rec.ResultSource,
		Multiplier:       rec.Multiplier,
		TotalWinners:     rec.TotalWinners,
		TotalPayoutCents: rec.TotalPayoutCents,
		SettledAt:        rec.SettledAt.Format(time.RFC3339),
	}
}

// publicMessage decide o que vaza pro caller: erros terminais têm razão
// específica, INTERNAL fica opaco.
func publicMessage(kind string, err error) string {
	if kind == engine.KindInternal {
		return "internal error"
	}
	if kind == engine.KindBusy {
		return "try again shortly"
	}
	return err.Error()
}

// statusFor mapeia o kind pro status HTTP.
func statusFor(kind string) int {
	switch kind {
	case engine.KindValidation:
		return http.StatusBadRequest
	case engine.KindNotFound:
		return http.StatusNotFound
	case engine.KindRoundNotOpen, engine.KindInsufficientFunds:
		return http.StatusConflict
	case engine.KindBusy:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeJSON serializa e envia resposta JSON
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, kind, message string) {
	writeJSON(w, statusFor(kind), dto.ErrorResponse{OK: false, ErrorKind: kind, Message: message})
}
