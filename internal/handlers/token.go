package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/avillegas/payticket/internal/apperrors"
	"github.com/avillegas/payticket/internal/handlers/render"
	"github.com/avillegas/payticket/internal/logger"
	"github.com/avillegas/payticket/internal/models"
)

type issuerService interface {
	// Return the active token for the payment or mint a new one.
	// Has to return apperrors.ErrPaymentNotFound / ErrPaymentVoided
	IssueOrReuse(ctx context.Context, paymentID int64, ttl time.Duration) (models.IssuedTicket, error)

	// Full token history for the payment, newest first
	History(ctx context.Context, paymentID int64) ([]models.VerificationToken, error)
}

type verifierService interface {
	// Classify a presented token string. Invalid outcomes are verdicts,
	// error is reserved for store failures.
	Validate(ctx context.Context, value string) (models.Verification, error)
}

type TokenHandler struct {
	issuer   issuerService
	verifier verifierService
	logger   logger.Logger
}

func NewToken(issuer issuerService, verifier verifierService, logger logger.Logger) *TokenHandler {
	return &TokenHandler{
		issuer:   issuer,
		verifier: verifier,
		logger:   logger,
	}
}

func (h *TokenHandler) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /tokens", h.issue)
	mux.HandleFunc("POST /tokens/validate", h.validate)
	mux.HandleFunc("GET /payments/{id}/tokens", h.history)

	return mux
}

type IssueResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	PaymentID int64     `json:"payment_id"`
	BriefInfo string    `json:"brief_info"`
}

func (h *TokenHandler) issue(w http.ResponseWriter, r *http.Request) {
	type IssueRequest struct {
		PaymentID int64 `json:"payment_id" validate:"required"`

		// Capped at 100 years, larger values overflow time.Duration
		ExpirationMinutes int `json:"expiration_minutes" validate:"min=0,max=52560000"`
	}

	data, err := render.BindAndValidate[IssueRequest](w, r)
	if err != nil {
		return
	}

	ticket, err := h.issuer.IssueOrReuse(r.Context(), data.PaymentID, time.Duration(data.ExpirationMinutes)*time.Minute)
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrPaymentNotFound):
			render.ServiceError(w, "Payment not found", http.StatusNotFound)
		case errors.Is(err, apperrors.ErrPaymentVoided):
			render.ServiceError(w, "Payment is voided, no token can vouch for it", http.StatusConflict)
		default:
			h.logger.Error("token issue failed", "payment_id", data.PaymentID, "error", err.Error())
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	render.JSONWithStatus(w, IssueResponse{
		Token:     ticket.Token.Value,
		ExpiresAt: ticket.Token.ExpiresAt,
		PaymentID: ticket.Token.PaymentID,
		BriefInfo: ticket.BriefInfo,
	}, http.StatusCreated)
}

type ValidateResponse struct {
	IsValid bool   `json:"is_valid"`
	Message string `json:"message"`

	// Redacted payment summary, set only when the token is valid
	PaymentID      *int64           `json:"payment_id,omitempty"`
	PayerName      *string          `json:"payer_name,omitempty"`
	FeeDescription *string          `json:"fee_description,omitempty"`
	Amount         *decimal.Decimal `json:"amount,omitempty"`
	PaymentDate    *string          `json:"payment_date,omitempty"`
}

func (h *TokenHandler) validate(w http.ResponseWriter, r *http.Request) {
	type ValidateRequest struct {
		Token string `json:"token"`
	}

	data, err := render.BindAndValidate[ValidateRequest](w, r)
	if err != nil {
		return
	}

	verification, err := h.verifier.Validate(r.Context(), data.Token)
	if err != nil {
		h.logger.Error("token validation failed", "error", err.Error())
		render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	res := ValidateResponse{
		IsValid: verification.Valid(),
		Message: verification.Verdict.Message(),
	}
	if s := verification.Snapshot; s != nil {
		date := s.PaymentDate.Format("2006-01-02")
		res.PaymentID = &s.PaymentID
		res.PayerName = &s.PayerName
		res.FeeDescription = &s.FeeDescription
		res.Amount = &s.Amount
		res.PaymentDate = &date
	}

	// Invalid is an expected outcome for the caller, not a protocol error
	render.JSON(w, res)
}

type HistoryTokenResponse struct {
	Token     string    `json:"token"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Used      bool      `json:"used"`
}

func (h *TokenHandler) history(w http.ResponseWriter, r *http.Request) {
	paymentID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		render.ServiceError(w, "Payment id must be an integer", http.StatusBadRequest)
		return
	}

	tokens, err := h.issuer.History(r.Context(), paymentID)
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrPaymentNotFound):
			render.ServiceError(w, "Payment not found", http.StatusNotFound)
		default:
			h.logger.Error("token history failed", "payment_id", paymentID, "error", err.Error())
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	res := make([]HistoryTokenResponse, 0, len(tokens))
	for _, token := range tokens {
		res = append(res, HistoryTokenResponse{
			Token:     token.Value,
			CreatedAt: token.CreatedAt,
			ExpiresAt: token.ExpiresAt,
			Used:      token.UsedAt != nil,
		})
	}

	render.JSON(w, res)
}
