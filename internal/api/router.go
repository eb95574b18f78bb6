package api

import (
	"net/http"

	"github.com/go-chi/cors"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/punchamoorthee/custodia/internal/domain"
	"go.uber.org/zap"
)

// NewRouter wires the public, user and admin routes. Admin routes require a
// token accepted by admin.
func NewRouter(h *Handler, admin AdminVerifier, allowedOrigins []string, logger *zap.Logger) http.Handler {
	r := mux.NewRouter()
	r.Use(recoverPanics(logger), instrument(logger))

	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)

	r.HandleFunc("/signup", h.Signup).Methods(http.MethodPost)
	r.HandleFunc("/login", h.Login).Methods(http.MethodPost)
	r.HandleFunc("/deposit", h.Deposit).Methods(http.MethodPost)
	r.HandleFunc("/request-withdrawal", h.RequestWithdrawal).Methods(http.MethodPost)
	r.HandleFunc("/balance/{username}", h.Balance).Methods(http.MethodGet)
	r.HandleFunc("/history/{username}", h.History).Methods(http.MethodGet)
	r.HandleFunc("/pending-withdrawals/{username}", h.UserRequests(domain.KindWithdrawal)).Methods(http.MethodGet)
	r.HandleFunc("/pending-deposits/{username}", h.UserRequests(domain.KindDeposit)).Methods(http.MethodGet)

	adminRouter := r.PathPrefix("/admin").Subrouter()
	adminRouter.Use(requireAdmin(admin, logger))
	adminRouter.HandleFunc("/pending-withdrawals", h.AdminPending(domain.KindWithdrawal)).Methods(http.MethodGet)
	adminRouter.HandleFunc("/pending-deposits", h.AdminPending(domain.KindDeposit)).Methods(http.MethodGet)
	adminRouter.HandleFunc("/withdrawal-action/{request_id}", h.AdminAction(domain.KindWithdrawal)).Methods(http.MethodPost)
	adminRouter.HandleFunc("/deposit-action/{request_id}", h.AdminAction(domain.KindDeposit)).Methods(http.MethodPost)

	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	corsHandler := cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization", requestIDHeader},
		ExposedHeaders: []string{requestIDHeader},
		MaxAge:         300,
	})

	return withRequestID(corsHandler(r))
}
