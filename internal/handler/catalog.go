package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/capitalize-ai/essay-pipeline/internal/middleware"
	"github.com/capitalize-ai/essay-pipeline/internal/model"
	"github.com/capitalize-ai/essay-pipeline/internal/service"
	"github.com/capitalize-ai/essay-pipeline/pkg/logger"
)

// CatalogHandler handles subject and question endpoints.
type CatalogHandler struct {
	service *service.CatalogService
	logger  *logger.Logger
}

// NewCatalogHandler creates a new catalog handler.
func NewCatalogHandler(svc *service.CatalogService, log *logger.Logger) *CatalogHandler {
	return &CatalogHandler{
		service: svc,
		logger:  log,
	}
}

// ListSubjects handles GET /api/v1/subjects
func (h *CatalogHandler) ListSubjects(w http.ResponseWriter, r *http.Request) {
	resp, err := h.service.Subjects(r.Context())
	if err != nil {
		h.fail(w, err, "list subjects")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetSubject handles GET /api/v1/subjects/{id}
func (h *CatalogHandler) GetSubject(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	subject, err := h.service.Subject(r.Context(), id)
	if err != nil {
		h.fail(w, err, "get subject")
		return
	}
	writeJSON(w, http.StatusOK, subject)
}

// CreateSubject handles POST /api/v1/subjects
func (h *CatalogHandler) CreateSubject(w http.ResponseWriter, r *http.Request) {
	var req model.SubjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateSubjectName(req.Name); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	subject, err := h.service.CreateSubject(r.Context(), &req)
	if err != nil {
		h.fail(w, err, "create subject")
		return
	}
	writeJSON(w, http.StatusCreated, subject)
}

// UpdateSubject handles PUT /api/v1/subjects/{id}
func (h *CatalogHandler) UpdateSubject(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req model.SubjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name != "" {
		if err := middleware.ValidateSubjectName(req.Name); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	subject, err := h.service.UpdateSubject(r.Context(), id, &req)
	if err != nil {
		h.fail(w, err, "update subject")
		return
	}
	writeJSON(w, http.StatusOK, subject)
}

// DeleteSubject handles DELETE /api/v1/subjects/{id}
func (h *CatalogHandler) DeleteSubject(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteSubject(r.Context(), id); err != nil {
		h.fail(w, err, "delete subject")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListQuestions handles GET /api/v1/questions?subject_id=
func (h *CatalogHandler) ListQuestions(w http.ResponseWriter, r *http.Request) {
	var subjectID *int64
	if raw := r.URL.Query().Get("subject_id"); raw != "" {
		id, err := middleware.ParseID(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid subject_id")
			return
		}
		subjectID = &id
	}

	resp, err := h.service.Questions(r.Context(), subjectID)
	if err != nil {
		h.fail(w, err, "list questions")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetQuestion handles GET /api/v1/questions/{id}
func (h *CatalogHandler) GetQuestion(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	question, err := h.service.Question(r.Context(), id)
	if err != nil {
		h.fail(w, err, "get question")
		return
	}
	writeJSON(w, http.StatusOK, question)
}

// CreateQuestion handles POST /api/v1/questions
func (h *CatalogHandler) CreateQuestion(w http.ResponseWriter, r *http.Request) {
	var req model.QuestionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateQuestion(req.Title, req.Question, false); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	question, err := h.service.CreateQuestion(r.Context(), &req)
	if err != nil {
		h.failReference(w, err, "create question")
		return
	}
	writeJSON(w, http.StatusCreated, question)
}

// UpdateQuestion handles PUT /api/v1/questions/{id}
func (h *CatalogHandler) UpdateQuestion(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req model.QuestionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateQuestion(req.Title, req.Question, true); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	question, err := h.service.UpdateQuestion(r.Context(), id, &req)
	if err != nil {
		h.failReference(w, err, "update question")
		return
	}
	writeJSON(w, http.StatusOK, question)
}

// DeleteQuestion handles DELETE /api/v1/questions/{id}
func (h *CatalogHandler) DeleteQuestion(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteQuestion(r.Context(), id); err != nil {
		h.fail(w, err, "delete question")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := middleware.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return 0, false
	}
	return id, true
}

// failReference reports a missing referenced subject as a bad request.
func (h *CatalogHandler) failReference(w http.ResponseWriter, err error, action string) {
	if errors.Is(err, service.ErrSubjectNotFound) {
		writeError(w, http.StatusBadRequest, "referenced subject not found")
		return
	}
	h.fail(w, err, action)
}

func (h *CatalogHandler) fail(w http.ResponseWriter, err error, action string) {
	switch {
	case errors.Is(err, service.ErrSubjectInUse):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		h.logger.Error("catalog request failed", zap.String("action", action), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to "+action)
	}
}
