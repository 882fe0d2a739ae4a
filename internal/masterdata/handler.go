package masterdata

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/campusledger/campusledger/internal/auth"
	"github.com/campusledger/campusledger/internal/platform/httpx"
	"github.com/campusledger/campusledger/internal/rbac"
	"github.com/campusledger/campusledger/internal/shared"
)

// Handler manages reference-data endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers masterdata routes.
func (h *Handler) MountRoutes(r chi.Router) {
	read := h.rbac.RequireRole(auth.RoleAdmin, auth.RoleTeacher)
	write := h.rbac.RequireRole(auth.RoleAdmin)

	r.Route("/sessions", func(r chi.Router) {
		r.With(read).Get("/", h.listSessions)
		r.With(read).Get("/{id}", h.getSession)
		r.With(write).Post("/", h.createSession)
	})
	r.Route("/classes", func(r chi.Router) {
		r.With(read).Get("/", h.listClasses)
		r.With(read).Get("/{id}", h.getClass)
		r.With(write).Post("/", h.createClass)
	})
	r.Route("/students", func(r chi.Router) {
		r.With(read).Get("/", h.listStudents)
		r.With(read).Get("/{id}", h.getStudent)
		r.With(write).Post("/", h.createStudent)
	})
	r.Route("/feeGroups", func(r chi.Router) {
		r.With(read).Get("/", h.listFeeGroups)
		r.With(read).Get("/{id}", h.getFeeGroup)
		r.With(write).Post("/", h.createFeeGroup)
	})
	r.Route("/concessions", func(r chi.Router) {
		r.With(read).Get("/", h.listConcessions)
		r.With(read).Get("/{id}", h.getConcession)
		r.With(write).Post("/", h.createConcession)
	})
}

type sessionRequest struct {
	Name      string `json:"name"`
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
	IsActive  bool   `json:"isActive"`
}

func (h *Handler) createSession(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	var req sessionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	start, err := time.Parse("2006-01-02", req.StartDate)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "startDate must be YYYY-MM-DD")
		return
	}
	end, err := time.Parse("2006-01-02", req.EndDate)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "endDate must be YYYY-MM-DD")
		return
	}

	created, err := h.service.CreateSession(r.Context(), AcademicSession{
		BranchID:  sess.BranchID,
		Name:      req.Name,
		StartDate: start,
		EndDate:   end,
		IsActive:  req.IsActive,
	})
	if err != nil {
		h.logger.Error("create session", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) listSessions(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	sessions, err := h.service.ListSessions(r.Context(), sess.BranchID)
	if err != nil {
		h.logger.Error("list sessions", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sessions)
}

func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid session id")
		return
	}
	found, err := h.service.GetSession(r.Context(), sess.BranchID, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, found)
}

type classRequest struct {
	SessionID int64  `json:"sessionId"`
	Name      string `json:"name"`
	Section   string `json:"section"`
}

func (h *Handler) createClass(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	var req classRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	created, err := h.service.CreateClass(r.Context(), Class{
		BranchID:  sess.BranchID,
		SessionID: req.SessionID,
		Name:      req.Name,
		Section:   req.Section,
	})
	if err != nil {
		h.logger.Error("create class", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) listClasses(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	sessionID, _ := strconv.ParseInt(r.URL.Query().Get("sessionId"), 10, 64)
	classes, err := h.service.ListClasses(r.Context(), sess.BranchID, sessionID)
	if err != nil {
		h.logger.Error("list classes", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, classes)
}

func (h *Handler) getClass(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid class id")
		return
	}
	class, err := h.service.GetClass(r.Context(), sess.BranchID, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, class)
}

type studentRequest struct {
	ClassID       int64  `json:"classId"`
	AdmissionNo   string `json:"admissionNo"`
	Name          string `json:"name"`
	GuardianName  string `json:"guardianName"`
	GuardianPhone string `json:"guardianPhone"`
	ConcessionID  int64  `json:"concessionId"`
}

func (h *Handler) createStudent(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	var req studentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	created, err := h.service.CreateStudent(r.Context(), Student{
		BranchID:      sess.BranchID,
		ClassID:       req.ClassID,
		AdmissionNo:   req.AdmissionNo,
		Name:          req.Name,
		GuardianName:  req.GuardianName,
		GuardianPhone: req.GuardianPhone,
		ConcessionID:  req.ConcessionID,
		IsActive:      true,
	})
	if err != nil {
		h.logger.Error("create student", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) listStudents(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	classID, _ := strconv.ParseInt(r.URL.Query().Get("classId"), 10, 64)
	students, err := h.service.ListStudents(r.Context(), sess.BranchID, classID)
	if err != nil {
		h.logger.Error("list students", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("perPage"))
	meta := shared.NewPagination(page, perPage, len(students))
	start := (meta.Page - 1) * meta.PerPage
	if start > len(students) {
		start = len(students)
	}
	end := start + meta.PerPage
	if end > len(students) {
		end = len(students)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"students":   students[start:end],
		"pagination": meta,
	})
}

func (h *Handler) getStudent(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid student id")
		return
	}
	student, err := h.service.GetStudent(r.Context(), sess.BranchID, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, student)
}

type feeGroupRequest struct {
	Name        string  `json:"name"`
	Periodicity string  `json:"periodicity"`
	Amount      float64 `json:"amount"`
	ClassIDs    []int64 `json:"classIds"`
}

func (h *Handler) createFeeGroup(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	var req feeGroupRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	created, err := h.service.CreateFeeGroup(r.Context(), FeeGroup{
		BranchID:    sess.BranchID,
		Name:        req.Name,
		Periodicity: req.Periodicity,
		Amount:      req.Amount,
		ClassIDs:    req.ClassIDs,
	})
	if err != nil {
		h.logger.Error("create fee group", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) listFeeGroups(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	groups, err := h.service.ListFeeGroups(r.Context(), sess.BranchID)
	if err != nil {
		h.logger.Error("list fee groups", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, groups)
}

func (h *Handler) getFeeGroup(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid fee group id")
		return
	}
	group, err := h.service.GetFeeGroup(r.Context(), sess.BranchID, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, group)
}

type concessionRequest struct {
	Name  string           `json:"name"`
	Rules []ConcessionRule `json:"rules"`
}

func (h *Handler) createConcession(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	var req concessionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	created, err := h.service.CreateConcession(r.Context(), ConcessionCategory{
		BranchID: sess.BranchID,
		Name:     req.Name,
		Rules:    req.Rules,
	})
	if err != nil {
		h.logger.Error("create concession", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) listConcessions(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	categories, err := h.service.ListConcessions(r.Context(), sess.BranchID)
	if err != nil {
		h.logger.Error("list concessions", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, categories)
}

func (h *Handler) getConcession(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid concession id")
		return
	}
	category, err := h.service.GetConcession(r.Context(), sess.BranchID, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, category)
}
