package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/punchamoorthee/custodia/internal/auth"
	"github.com/punchamoorthee/custodia/internal/domain"
	"github.com/punchamoorthee/custodia/internal/service"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	accounts  *service.AccountService
	intake    *service.IntakeService
	approvals *service.ApprovalService
	queries   *service.QueryService
	pinger    Pinger
	logger    *zap.Logger
}

func NewHandler(
	accounts *service.AccountService,
	intake *service.IntakeService,
	approvals *service.ApprovalService,
	queries *service.QueryService,
	pinger Pinger,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		accounts:  accounts,
		intake:    intake,
		approvals: approvals,
		queries:   queries,
		pinger:    pinger,
		logger:    logger,
	}
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type depositRequest struct {
	Username    string          `json:"username"`
	Amount      decimal.Decimal `json:"amount"`
	ReferenceID string          `json:"reference_id"`
}

type withdrawalRequest struct {
	Username string          `json:"username"`
	Amount   decimal.Decimal `json:"amount"`
}

type actionRequest struct {
	Action     string `json:"action"`
	AdminNotes string `json:"admin_notes"`
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.pinger.Ping(ctx); err != nil {
		h.logger.Error("health probe failed", zap.Error(err))
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.accounts.Signup(r.Context(), req.Username, req.Password); err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Signup successful"})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !h.decode(w, r, &req) {
		return
	}

	balance, err := h.accounts.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		// Unknown users are a 400 on login, not a 404.
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusBadRequest, domain.Kind(err), "User not found")
			return
		}
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"message": "Login successful",
		"balance": balance,
	})
}

func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if !h.decode(w, r, &req) {
		return
	}

	created, balance, err := h.intake.SubmitDeposit(r.Context(), req.Username, req.Amount, req.ReferenceID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"message":         "Deposit request submitted. Pending verification.",
		"request_id":      created.ID,
		"current_balance": balance,
	})
}

func (h *Handler) RequestWithdrawal(w http.ResponseWriter, r *http.Request) {
	var req withdrawalRequest
	if !h.decode(w, r, &req) {
		return
	}

	created, err := h.intake.SubmitWithdrawal(r.Context(), req.Username, req.Amount)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"message":    "Withdrawal request submitted successfully",
		"request_id": created.ID,
	})
}

func (h *Handler) Balance(w http.ResponseWriter, r *http.Request) {
	username := mux.Vars(r)["username"]

	balance, err := h.queries.GetBalance(r.Context(), username)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"username": username, "balance": balance})
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	username := mux.Vars(r)["username"]

	var limit int
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_error", "limit must be an integer")
			return
		}
		limit = n
	}

	records, err := h.queries.GetHistory(r.Context(), username, limit)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"transactions": records})
}

// UserRequests lists one user's requests of kind. Only pending requests are
// returned unless ?status= names another status or "all".
func (h *Handler) UserRequests(kind domain.RequestKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		username := mux.Vars(r)["username"]

		status := domain.StatusPending
		switch v := r.URL.Query().Get("status"); v {
		case "":
		case "all":
			status = ""
		case string(domain.StatusPending), string(domain.StatusApproved), string(domain.StatusRejected):
			status = domain.RequestStatus(v)
		default:
			writeError(w, http.StatusBadRequest, "validation_error", fmt.Sprintf("unknown status %q", v))
			return
		}

		requests, err := h.queries.GetUserRequests(r.Context(), username, kind, status)
		if err != nil {
			h.respondError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{"requests": requests})
	}
}

func (h *Handler) AdminPending(kind domain.RequestKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requests, err := h.queries.GetAllPending(r.Context(), kind)
		if err != nil {
			h.respondError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{"requests": requests})
	}
}

func (h *Handler) AdminAction(kind domain.RequestKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(mux.Vars(r)["request_id"], 10, 64)
		if err != nil || id <= 0 {
			writeError(w, http.StatusBadRequest, "validation_error", "request id must be a positive integer")
			return
		}

		var req actionRequest
		if !h.decode(w, r, &req) {
			return
		}
		action, err := domain.ParseAction(req.Action)
		if err != nil {
			writeError(w, http.StatusBadRequest, domain.Kind(err), "Invalid action")
			return
		}

		out, err := h.approvals.ApplyAction(r.Context(), kind, id, action, req.AdminNotes, adminSubject(r.Context()))
		if err != nil {
			h.respondError(w, r, err)
			return
		}

		resp := map[string]any{
			"message": fmt.Sprintf("%s request %sd successfully", label(kind), action),
			"request": out.Request,
		}
		if out.Transaction != nil {
			resp["balance"] = out.Balance
		}
		respondJSON(w, http.StatusOK, resp)
	}
}

func label(kind domain.RequestKind) string {
	if kind == domain.KindWithdrawal {
		return "Withdrawal"
	}
	return "Deposit"
}

// decode reads a JSON body into dst, answering 400 itself on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "Malformed JSON body")
		return false
	}
	return true
}

// respondError maps a service error to its status code. Unexpected failures
// are logged and answered without internal detail.
func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", requestID(r.Context())),
			zap.Error(err))
		writeError(w, status, domain.Kind(err), "Something went wrong, please try again")
		return
	}
	writeError(w, status, domain.Kind(err), err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInsufficientFunds),
		errors.Is(err, domain.ErrAlreadyProcessed),
		errors.Is(err, domain.ErrConflict):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrAuth):
		return http.StatusUnauthorized
	case errors.Is(err, auth.ErrForbidden):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, code int, kind, msg string) {
	respondJSON(w, code, map[string]string{"error": kind, "message": msg})
}

func respondJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}
