package api

import (
	"net/http"
	"strconv"
	"time"

	"betengine/models"
	"betengine/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100

	// UserNameHeader optionally names a caller seen for the first time
	UserNameHeader = "X-User-Name"
)

// HandlerProvider serves the HTTP endpoints on top of the service layer
type HandlerProvider struct {
	svc Services
	now func() time.Time
}

// NewHandler creates a handler provider
func NewHandler(svc Services) *HandlerProvider {
	return &HandlerProvider{svc: svc, now: time.Now}
}

func listLimit(r *http.Request) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		return defaultListLimit
	}
	return min(limit, maxListLimit)
}

func variantParam(w http.ResponseWriter, r *http.Request) (models.Variant, bool) {
	variant, err := models.ParseVariant(chi.URLParam(r, "variant"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return "", false
	}
	return variant, true
}

func uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

func int64Param(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return id, true
}

// SettleRound runs one settlement pass for the variant in the path
func (h *HandlerProvider) SettleRound(w http.ResponseWriter, r *http.Request) {
	variant, ok := variantParam(w, r)
	if !ok {
		return
	}

	result, err := h.svc.Settlement.Settle(r.Context(), variant, h.now())
	if err != nil {
		log.WithError(err).WithField("variant", variant).Error("Settlement pass failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: result.Message()})
}

func (h *HandlerProvider) ExpireDuelMoves(w http.ResponseWriter, r *http.Request) {
	count, err := h.svc.Duels.ExpireTimedOutMoves(r.Context(), h.now())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"expired": count})
}

func (h *HandlerProvider) ExpirePayments(w http.ResponseWriter, r *http.Request) {
	count, err := h.svc.Payments.ExpireStale(r.Context(), h.now())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"expired": count})
}

func (h *HandlerProvider) ApprovePayment(w http.ResponseWriter, r *http.Request) {
	id, ok := int64Param(w, r, "id")
	if !ok {
		return
	}

	request, err := h.svc.Payments.Approve(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, request)
}

func (h *HandlerProvider) DeclinePayment(w http.ResponseWriter, r *http.Request) {
	id, ok := int64Param(w, r, "id")
	if !ok {
		return
	}

	request, err := h.svc.Payments.Decline(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, request)
}

func (h *HandlerProvider) SetPaymentsEnabled(w http.ResponseWriter, r *http.Request) {
	var req paymentsSwitchRequest
	if err := decodeRequest(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	settings, err := h.svc.Payments.SetPaymentsEnabled(r.Context(), *req.Enabled)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// GetMe returns the caller's wallet, opening one on first contact
func (h *HandlerProvider) GetMe(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r.Context())
	username := r.Header.Get(UserNameHeader)
	if username == "" {
		username = "player-" + strconv.FormatInt(userID, 10)
	}

	user, err := h.svc.Users.GetOrCreateUser(r.Context(), userID, username)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *HandlerProvider) GetBalanceHistory(w http.ResponseWriter, r *http.Request) {
	history, err := h.svc.Users.GetBalanceHistory(r.Context(), userIDFrom(r.Context()), listLimit(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if history == nil {
		history = []*models.BalanceHistory{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": history})
}

func (h *HandlerProvider) GetMyBets(w http.ResponseWriter, r *http.Request) {
	bets, err := h.svc.Bets.GetBetsByUser(r.Context(), userIDFrom(r.Context()), listLimit(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if bets == nil {
		bets = []*models.Bet{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"bets": bets})
}

func (h *HandlerProvider) GetMyPayments(w http.ResponseWriter, r *http.Request) {
	requests, err := h.svc.Payments.GetRequestsByUser(r.Context(), userIDFrom(r.Context()), listLimit(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if requests == nil {
		requests = []*models.PaymentRequest{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"requests": requests})
}

// GetCurrentRound returns the open round with its targets withheld
func (h *HandlerProvider) GetCurrentRound(w http.ResponseWriter, r *http.Request) {
	variant, ok := variantParam(w, r)
	if !ok {
		return
	}

	round, err := h.svc.Bets.GetCurrentRound(r.Context(), variant)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if round == nil {
		writeError(w, http.StatusNotFound, "no open round for "+string(variant))
		return
	}
	writeJSON(w, http.StatusOK, models.NewBroadcastState(round))
}

func (h *HandlerProvider) GetRecentRounds(w http.ResponseWriter, r *http.Request) {
	variant, ok := variantParam(w, r)
	if !ok {
		return
	}

	rounds, err := h.svc.Bets.GetRecentRounds(r.Context(), variant, listLimit(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	resp := roundsResponse{Rounds: make([]models.BroadcastState, 0, len(rounds))}
	for _, round := range rounds {
		resp.Rounds = append(resp.Rounds, models.NewBroadcastState(round))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *HandlerProvider) PlaceBet(w http.ResponseWriter, r *http.Request) {
	roundID, ok := uuidParam(w, r, "roundId")
	if !ok {
		return
	}

	var req placeBetRequest
	if err := decodeRequest(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	bet, err := h.svc.Bets.PlaceBet(r.Context(), service.PlaceBetRequest{
		UserID:     userIDFrom(r.Context()),
		RoundID:    roundID,
		Picks:      req.Picks,
		ParityPick: models.ParityLabel(req.ParityPick),
		Stake:      req.Stake,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, bet)
}

// hidePick withholds the hidden number from everyone but its picker
func hidePick(match *models.DuelMatch, userID int64) *models.DuelMatch {
	if match != nil && (match.PickerID == nil || *match.PickerID != userID) {
		match.HiddenPick = nil
	}
	return match
}

func (h *HandlerProvider) Challenge(w http.ResponseWriter, r *http.Request) {
	var req challengeRequest
	if err := decodeRequest(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	match, err := h.svc.Duels.Challenge(r.Context(), userIDFrom(r.Context()), req.OpponentID, req.StakePerRound, req.Escrow)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, match)
}

func (h *HandlerProvider) GetDuel(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	match, err := h.svc.Duels.GetMatch(r.Context(), id, userIDFrom(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, match)
}

func (h *HandlerProvider) AcceptDuel(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	userID := userIDFrom(r.Context())
	match, err := h.svc.Duels.Accept(r.Context(), id, userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, hidePick(match, userID))
}

func (h *HandlerProvider) DeclineDuel(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	if err := h.svc.Duels.Decline(r.Context(), id, userIDFrom(r.Context())); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HandlerProvider) Pick(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	var req numberRequest
	if err := decodeRequest(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	match, err := h.svc.Duels.Pick(r.Context(), id, userIDFrom(r.Context()), req.Number)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, match)
}

func (h *HandlerProvider) Guess(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	var req numberRequest
	if err := decodeRequest(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	userID := userIDFrom(r.Context())
	result, err := h.svc.Duels.Guess(r.Context(), id, userID, req.Number)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"match":       hidePick(result.Match, userID),
		"correct":     result.Correct,
		"transferred": result.Transferred,
		"finished":    result.Finished,
	})
}

func (h *HandlerProvider) AcknowledgeDuel(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	userID := userIDFrom(r.Context())
	match, err := h.svc.Duels.Acknowledge(r.Context(), id, userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, hidePick(match, userID))
}

func (h *HandlerProvider) RequestDeposit(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if err := decodeRequest(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	request, err := h.svc.Payments.RequestDeposit(r.Context(), userIDFrom(r.Context()), req.Amount)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, request)
}

func (h *HandlerProvider) RequestWithdrawal(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if err := decodeRequest(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	request, err := h.svc.Payments.RequestWithdrawal(r.Context(), userIDFrom(r.Context()), req.Amount)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, request)
}
