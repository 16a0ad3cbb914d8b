package handler

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"riskaccept/internal/acceptance/export"
	"riskaccept/internal/acceptance/models"
	"riskaccept/internal/acceptance/service"
	id "riskaccept/pkg/domain"
	dErrors "riskaccept/pkg/domain-errors"
	"riskaccept/pkg/platform/httputil"
	"riskaccept/pkg/requestcontext"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Service defines the lifecycle operations exposed over HTTP.
type Service interface {
	Propose(ctx context.Context, draft models.Draft) (*service.Result, error)
	Transition(ctx context.Context, cmd service.TransitionCommand) (*service.Result, error)
	Get(ctx context.Context, acceptanceID id.AcceptanceID) (*models.View, error)
	List(ctx context.Context, filter models.Filter) ([]*models.Acceptance, error)
	ListViews(ctx context.Context, filter models.Filter) ([]*models.View, error)
	History(ctx context.Context, acceptanceID id.AcceptanceID) ([]*models.HistoryEntry, error)
	AddComment(ctx context.Context, acceptanceID id.AcceptanceID, authorID id.UserID, content string) (*models.Comment, error)
	ListComments(ctx context.Context, acceptanceID id.AcceptanceID) ([]*models.Comment, error)
}

// Handler serves the /acceptances routes.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(svc Service, logger *slog.Logger) *Handler {
	return &Handler{service: svc, logger: logger}
}

// Register mounts the acceptance routes on r. Authentication is applied by the caller.
func (h *Handler) Register(r chi.Router) {
	r.Route("/acceptances", func(r chi.Router) {
		r.Post("/", h.handlePropose)
		r.Get("/", h.handleList)
		r.Get("/export.csv", h.handleExportCSV)
		r.Get("/export.xlsx", h.handleExportXLSX)
		r.Get("/{id}", h.handleGet)
		r.Post("/{id}/transitions", h.handleTransition)
		r.Post("/{id}/comments", h.handleAddComment)
		r.Get("/{id}/comments", h.handleListComments)
		r.Get("/{id}/history", h.handleHistory)
	})
}

func (h *Handler) handlePropose(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	actorID, ok := h.requireActor(ctx, w)
	if !ok {
		return
	}

	req, ok := httputil.DecodeAndPrepare[ProposeRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	result, err := h.service.Propose(ctx, req.Draft(actorID))
	if err != nil {
		h.writeServiceError(ctx, w, err, "failed to propose acceptance")
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, result)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	filter, err := parseFilter(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	acceptances, err := h.service.List(ctx, filter)
	if err != nil {
		h.writeServiceError(ctx, w, err, "failed to list acceptances")
		return
	}
	if acceptances == nil {
		acceptances = []*models.Acceptance{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"acceptances": acceptances})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	acceptanceID, ok := h.pathID(w, r)
	if !ok {
		return
	}
	view, err := h.service.Get(ctx, acceptanceID)
	if err != nil {
		h.writeServiceError(ctx, w, err, "failed to get acceptance")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, view)
}

func (h *Handler) handleTransition(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	actorID, ok := h.requireActor(ctx, w)
	if !ok {
		return
	}
	acceptanceID, ok := h.pathID(w, r)
	if !ok {
		return
	}

	req, ok := httputil.DecodeAndPrepare[TransitionRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	result, err := h.service.Transition(ctx, service.TransitionCommand{
		AcceptanceID: acceptanceID,
		ActorID:      actorID,
		Input:        req.Input(),
	})
	if err != nil {
		h.writeServiceError(ctx, w, err, "failed to apply transition")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) handleAddComment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	actorID, ok := h.requireActor(ctx, w)
	if !ok {
		return
	}
	acceptanceID, ok := h.pathID(w, r)
	if !ok {
		return
	}

	req, ok := httputil.DecodeAndPrepare[CommentRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	comment, err := h.service.AddComment(ctx, acceptanceID, actorID, req.Content)
	if err != nil {
		h.writeServiceError(ctx, w, err, "failed to add comment")
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, comment)
}

func (h *Handler) handleListComments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	acceptanceID, ok := h.pathID(w, r)
	if !ok {
		return
	}
	comments, err := h.service.ListComments(ctx, acceptanceID)
	if err != nil {
		h.writeServiceError(ctx, w, err, "failed to list comments")
		return
	}
	if comments == nil {
		comments = []*models.Comment{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"comments": comments})
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	acceptanceID, ok := h.pathID(w, r)
	if !ok {
		return
	}
	entries, err := h.service.History(ctx, acceptanceID)
	if err != nil {
		h.writeServiceError(ctx, w, err, "failed to load history")
		return
	}
	if entries == nil {
		entries = []*models.HistoryEntry{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (h *Handler) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	h.export(w, r, "text/csv; charset=utf-8", "risk-acceptances.csv", export.WriteCSV)
}

func (h *Handler) handleExportXLSX(w http.ResponseWriter, r *http.Request) {
	h.export(w, r, xlsxContentType, "risk-acceptances.xlsx", export.WriteXLSX)
}

// export renders into a buffer first so a failed render still gets an error status.
func (h *Handler) export(w http.ResponseWriter, r *http.Request, contentType, filename string,
	render func(w io.Writer, views []*models.View) error) {
	ctx := r.Context()
	filter, err := parseFilter(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	views, err := h.service.ListViews(ctx, filter)
	if err != nil {
		h.writeServiceError(ctx, w, err, "failed to load acceptances for export")
		return
	}

	var buf bytes.Buffer
	if err := render(&buf, views); err != nil {
		h.writeServiceError(ctx, w, err, "failed to render export")
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(buf.Bytes()); err != nil {
		h.logger.WarnContext(ctx, "failed to write export",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
}

func (h *Handler) requireActor(ctx context.Context, w http.ResponseWriter) (id.UserID, bool) {
	actorID := requestcontext.UserID(ctx)
	if actorID.IsNil() {
		// RequireActor middleware should make this unreachable.
		h.logger.ErrorContext(ctx, "actor missing from context despite auth middleware",
			"request_id", requestcontext.RequestID(ctx),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return id.UserID{}, false
	}
	return actorID, true
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (id.AcceptanceID, bool) {
	acceptanceID, err := id.ParseAcceptanceID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, fieldErr("id", err))
		return id.AcceptanceID{}, false
	}
	return acceptanceID, true
}

// writeServiceError logs at Warn for caller mistakes and Error otherwise.
func (h *Handler) writeServiceError(ctx context.Context, w http.ResponseWriter, err error, msg string) {
	requestID := requestcontext.RequestID(ctx)
	if httputil.StatusFor(dErrors.CodeOf(err)) >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, msg,
			"error", err,
			"request_id", requestID,
		)
	} else {
		h.logger.WarnContext(ctx, msg,
			"error", err,
			"request_id", requestID,
		)
	}
	httputil.WriteError(w, err)
}
