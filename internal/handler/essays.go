// Package handler provides HTTP handlers for the API.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/capitalize-ai/essay-pipeline/internal/middleware"
	"github.com/capitalize-ai/essay-pipeline/internal/model"
	"github.com/capitalize-ai/essay-pipeline/internal/pipeline"
	"github.com/capitalize-ai/essay-pipeline/internal/service"
	"github.com/capitalize-ai/essay-pipeline/internal/stream"
	"github.com/capitalize-ai/essay-pipeline/pkg/logger"
	"github.com/capitalize-ai/essay-pipeline/pkg/metrics"
)

// EssayHandler handles essay and pipeline endpoints.
type EssayHandler struct {
	service *service.EssayService
	catalog *service.CatalogService
	logger  *logger.Logger
}

// NewEssayHandler creates a new essay handler. catalog resolves question ids
// in write requests.
func NewEssayHandler(svc *service.EssayService, catalog *service.CatalogService, log *logger.Logger) *EssayHandler {
	return &EssayHandler{
		service: svc,
		catalog: catalog,
		logger:  log,
	}
}

// List handles GET /api/v1/pipelines
func (h *EssayHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.Pipelines())
}

// Write handles POST /api/v1/write/{language}
func (h *EssayHandler) Write(w http.ResponseWriter, r *http.Request) {
	lang, err := service.ParseLanguage(chi.URLParam(r, "language"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	var req model.WriteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.QuestionID != nil {
		if h.catalog == nil {
			writeError(w, http.StatusBadRequest, "question catalog is not available")
			return
		}
		if err := h.catalog.ResolveTopic(r.Context(), &req); err != nil {
			if errors.Is(err, service.ErrNotFound) {
				writeError(w, http.StatusBadRequest, "referenced question not found")
				return
			}
			h.logger.Error("failed to resolve question", zap.Int64("question_id", *req.QuestionID), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to resolve question")
			return
		}
	}
	if err := middleware.ValidateTopic(req.Topic); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	name, message, err := h.service.WriteMessage(lang, &req)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	h.relay(w, r, name, message)
}

// Revise handles POST /api/v1/revise/{language}
func (h *EssayHandler) Revise(w http.ResponseWriter, r *http.Request) {
	lang, err := service.ParseLanguage(chi.URLParam(r, "language"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	var req model.RevisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateEssayContent(req.EssayContent); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	name, message, err := h.service.RevisionMessage(lang, &req)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	h.relay(w, r, name, message)
}

// Run handles POST /api/v1/pipelines/{name}/run
func (h *EssayHandler) Run(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := middleware.ValidatePipelineName(name); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req model.RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateMessageContent(req.Message); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.relay(w, r, name, req.Message)
}

// relay starts the pipeline and relays its events as SSE until the run
// ends or the client goes away. Between events the connection is checked
// with heartbeat comments; a failed write cancels the run.
func (h *EssayHandler) relay(w http.ResponseWriter, r *http.Request, name, message string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	alive := func() bool {
		return writeHeartbeat(w, flusher) == nil
	}
	run, err := h.service.Start(r.Context(), name, message, stream.WithLiveness(alive))
	if err != nil {
		if errors.Is(err, pipeline.ErrUnknownPipeline) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		h.logger.Error("failed to start pipeline", zap.String("pipeline", name), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to start pipeline")
		return
	}

	setSSEHeaders(w)
	w.Header().Set("X-Run-ID", run.ID)
	w.WriteHeader(http.StatusOK)

	metrics.IncrementSSEConnections()
	defer metrics.DecrementSSEConnections()

	summary := run.Delivery.Forward(r.Context(), func(ev model.Event) error {
		return writeSSE(w, flusher, ev)
	})

	fields := []zap.Field{
		zap.String("run_id", run.ID),
		zap.String("pipeline", name),
		zap.String("correlation_id", middleware.GetCorrelationID(r.Context())),
		zap.Int("events_delivered", summary.Delivered),
		zap.Bool("ended", summary.Ended),
		zap.Bool("disconnected", summary.Disconnected),
		zap.Bool("run_finished", summary.Finished),
	}
	if out := run.Outcome(); out != nil {
		fields = append(fields,
			zap.String("state", string(out.State)),
			zap.Int("rounds", out.Rounds),
			zap.Bool("cancelled", pipeline.IsCancelled(out.Err)),
		)
	}
	h.logger.Info("stream closed", fields...)
}
