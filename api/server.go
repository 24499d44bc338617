package api

import (
	"fmt"
	"net/http"
	"time"

	"betengine/broadcast"
	"betengine/config"
	"betengine/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Services groups the service layer the HTTP handlers call into
type Services struct {
	Users      service.UserService
	Bets       service.BetService
	Settlement service.SettlementService
	Duels      service.DuelService
	Payments   service.PaymentService
}

// NewRouter registers every endpoint. relay may be nil when NATS is disabled.
func NewRouter(cfg *config.Config, svc Services, relay *broadcast.WSRelay) http.Handler {
	h := NewHandler(svc)
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Scheduler-triggered and operator endpoints
	r.Group(func(r chi.Router) {
		r.Use(requireCronSecret(cfg.CronSecret))

		r.Get("/cron/{variant}/settle", h.SettleRound)
		r.Get("/cron/duels/timeouts", h.ExpireDuelMoves)
		r.Get("/cron/payments/expire", h.ExpirePayments)

		r.Post("/payments/{id}/approve", h.ApprovePayment)
		r.Post("/payments/{id}/decline", h.DeclinePayment)
		r.Put("/admin/settings/payments", h.SetPaymentsEnabled)
	})

	// Player endpoints
	r.Group(func(r chi.Router) {
		r.Use(requireUser)

		r.Get("/me", h.GetMe)
		r.Get("/me/history", h.GetBalanceHistory)
		r.Get("/me/bets", h.GetMyBets)
		r.Get("/me/payments", h.GetMyPayments)

		r.Get("/rounds/{variant}/current", h.GetCurrentRound)
		r.Get("/rounds/{variant}/recent", h.GetRecentRounds)
		r.Post("/rounds/{roundId}/bets", h.PlaceBet)

		r.Post("/duels", h.Challenge)
		r.Get("/duels/{id}", h.GetDuel)
		r.Post("/duels/{id}/accept", h.AcceptDuel)
		r.Post("/duels/{id}/decline", h.DeclineDuel)
		r.Post("/duels/{id}/pick", h.Pick)
		r.Post("/duels/{id}/guess", h.Guess)
		r.Post("/duels/{id}/ack", h.AcknowledgeDuel)

		r.Post("/payments/deposits", h.RequestDeposit)
		r.Post("/payments/withdrawals", h.RequestWithdrawal)
	})

	if relay != nil {
		r.Get("/ws/rounds/{variant}", relay.HandleRound)
	}

	return r
}

// NewServer creates the HTTP server for the API
func NewServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
