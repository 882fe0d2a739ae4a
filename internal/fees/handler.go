package fees

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/campusledger/campusledger/internal/auth"
	"github.com/campusledger/campusledger/internal/platform/httpx"
	"github.com/campusledger/campusledger/internal/rbac"
	"github.com/campusledger/campusledger/internal/shared"
)

// Handler exposes the student fee endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	rbac     rbac.Middleware
	validate *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac, validate: validator.New()}
}

// MountRoutes registers fee routes under /studentFees.
func (h *Handler) MountRoutes(r chi.Router) {
	read := h.rbac.RequireRole(auth.RoleAdmin, auth.RoleTeacher)
	collect := h.rbac.RequireRole(auth.RoleAdmin)

	r.With(read).Get("/{studentId}/fees-by-month/{month}", h.feesByMonth)
	r.With(read).Get("/{studentId}/fees-by-session/{sessionId}", h.feesBySession)
	r.With(read).Get("/preview-next-id", h.previewNextID)
	r.With(collect).Post("/collect", h.collect)
	r.With(collect).Put("/edit-payment", h.editPayment)
}

// paymentPayload is the wire shape of one payment, shared by collect and edit.
type paymentPayload struct {
	ModeOfPayment   string  `json:"modeOfPayment" validate:"required"`
	CollectionDate  string  `json:"collectionDate" validate:"required"`
	AmountPaid      float64 `json:"amountPaid" validate:"required"`
	TransactionNo   string  `json:"transactionNo"`
	TransactionDate string  `json:"transactionDate"`
	ChequeNo        string  `json:"chequeNo"`
	ChequeDate      string  `json:"chequeDate"`
	BankName        string  `json:"bankName"`
	Remarks         string  `json:"remarks"`
	InternalNotes   string  `json:"internalNotes"`
}

type collectPayload struct {
	StudentID    int64    `json:"studentId" validate:"required"`
	SessionID    int64    `json:"sessionId"`
	Month        string   `json:"month" validate:"required"`
	ExcessAmount *float64 `json:"excessAmount"`
	Discount     *float64 `json:"discount"`
	paymentPayload
}

type editPayload struct {
	StudentID int64  `json:"studentId" validate:"required"`
	SessionID int64  `json:"sessionId"`
	Month     string `json:"month" validate:"required"`
	PaymentID int64  `json:"paymentDetailId" validate:"required"`
	paymentPayload
}

// toInput converts the wire payload to a PaymentInput. Date parsing errors
// surface as validation problems; conditional mode rules live in the service.
func (p paymentPayload) toInput() (PaymentInput, error) {
	collection, err := parseDate(p.CollectionDate)
	if err != nil {
		return PaymentInput{}, shared.ValidationError("collectionDate must be YYYY-MM-DD")
	}
	in := PaymentInput{
		Mode:           PaymentMode(p.ModeOfPayment),
		CollectionDate: collection,
		AmountPaid:     p.AmountPaid,
		TransactionNo:  p.TransactionNo,
		ChequeNo:       p.ChequeNo,
		BankName:       p.BankName,
		Remarks:        p.Remarks,
		InternalNotes:  p.InternalNotes,
	}
	if p.TransactionDate != "" {
		d, err := parseDate(p.TransactionDate)
		if err != nil {
			return PaymentInput{}, shared.ValidationError("transactionDate must be YYYY-MM-DD")
		}
		in.TransactionDate = &d
	}
	if p.ChequeDate != "" {
		d, err := parseDate(p.ChequeDate)
		if err != nil {
			return PaymentInput{}, shared.ValidationError("chequeDate must be YYYY-MM-DD")
		}
		in.ChequeDate = &d
	}
	return in, nil
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

func (h *Handler) feesByMonth(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	studentID, err := strconv.ParseInt(chi.URLParam(r, "studentId"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid student id")
		return
	}
	sessionID, _ := strconv.ParseInt(r.URL.Query().Get("sessionId"), 10, 64)
	month := chi.URLParam(r, "month")

	entry, err := h.service.FeesByMonth(r.Context(), sess.BranchID, studentID, sessionID, month)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"success": true, "fees": []*FeeLedgerEntry{entry}})
}

func (h *Handler) feesBySession(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	studentID, err := strconv.ParseInt(chi.URLParam(r, "studentId"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid student id")
		return
	}
	sessionID, err := strconv.ParseInt(chi.URLParam(r, "sessionId"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid session id")
		return
	}

	months, err := h.service.FeesBySession(r.Context(), sess.BranchID, studentID, sessionID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"success": true, "months": months})
}

func (h *Handler) previewNextID(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	receipt, err := h.service.PreviewNextReceiptNumber(r.Context(), sess.BranchID)
	if err != nil {
		h.logger.Error("preview receipt", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"success": true, "paymentId": receipt})
}

func (h *Handler) collect(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	var req collectPayload
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ProblemFields(w, http.StatusBadRequest, "Validation Failed", fieldErrors(err))
		return
	}
	payment, err := req.toInput()
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	entry, detail, err := h.service.Collect(r.Context(), sess.BranchID, sess.UserID, CollectRequest{
		StudentID:        req.StudentID,
		SessionID:        req.SessionID,
		Month:            req.Month,
		Payment:          payment,
		ExcessAmount:     req.ExcessAmount,
		DiscountOverride: req.Discount,
		IdempotencyKey:   r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"message":      "payment collected",
		"fees":         []*FeeLedgerEntry{entry},
		"excessAmount": entry.ExcessAmount,
		"paymentId":    detail.ReceiptNo,
	})
}

func (h *Handler) editPayment(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	var req editPayload
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ProblemFields(w, http.StatusBadRequest, "Validation Failed", fieldErrors(err))
		return
	}
	payment, err := req.toInput()
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	entry, err := h.service.EditPayment(r.Context(), sess.BranchID, sess.UserID, EditRequest{
		StudentID: req.StudentID,
		SessionID: req.SessionID,
		Month:     req.Month,
		PaymentID: req.PaymentID,
		Payment:   payment,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "payment updated",
		"fees":    []*FeeLedgerEntry{entry},
	})
}

func fieldErrors(err error) map[string]string {
	fields := map[string]string{}
	if verrs, ok := err.(validator.ValidationErrors); ok {
		for _, fe := range verrs {
			fields[fe.Field()] = fe.Tag()
		}
	}
	return fields
}
