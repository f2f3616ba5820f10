package notifications

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/sundayezeilo/shortly/internal/errx"
	"github.com/sundayezeilo/shortly/internal/httpx"
)

// UnreadResponse is the body of GET /api/notifications/unread.
type UnreadResponse struct {
	HasUnread bool `json:"hasUnread"`
}

// MarkReadRequest is the body of POST /api/notifications/read.
type MarkReadRequest struct {
	UserID string `json:"userId"`
}

// MarkReadResponse reports how many notifications were marked read.
type MarkReadResponse struct {
	Updated int64 `json:"updated"`
}

// Handler serves a user's notifications.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// NewHandler creates a new Handler instance.
func NewHandler(service Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: service, logger: logger}
}

func (h *Handler) requestLogger(r *http.Request) *slog.Logger {
	return h.logger.With(
		"request_id", httpx.GetRequestID(r.Context()),
		"method", r.Method,
		"path", r.URL.Path,
	)
}

// List handles GET /api/notifications?userId=.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.requestLogger(r)

	inbox, err := h.service.Recent(ctx, r.URL.Query().Get("userId"))
	if err != nil {
		h.handleError(ctx, logger, w, err, "Unable to load notifications at this time")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, inbox)
}

// Unread handles GET /api/notifications/unread?userId=.
func (h *Handler) Unread(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.requestLogger(r)

	unread, err := h.service.HasUnread(ctx, r.URL.Query().Get("userId"))
	if err != nil {
		h.handleError(ctx, logger, w, err, "Unable to check notifications at this time")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, UnreadResponse{HasUnread: unread})
}

// MarkRead handles POST /api/notifications/read.
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.requestLogger(r)

	req, err := httpx.DecodeJSON[MarkReadRequest](r)
	if err != nil {
		logger.WarnContext(ctx, "failed to decode request", "error", err.Error())
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", err.Error(), nil)
		return
	}

	n, err := h.service.MarkAllRead(ctx, req.UserID)
	if err != nil {
		h.handleError(ctx, logger, w, err, "Unable to update notifications at this time")
		return
	}

	logger.InfoContext(ctx, "notifications marked read", "user_id", req.UserID, "updated", n)
	httpx.WriteJSON(w, http.StatusOK, MarkReadResponse{Updated: n})
}

func (h *Handler) handleError(ctx context.Context, logger *slog.Logger, w http.ResponseWriter, err error, fallback string) {
	kind := errx.KindOf(err)
	if httpx.IsClientError(kind) {
		logger.WarnContext(ctx, "notification request rejected", "error", err.Error())
	} else {
		logger.ErrorContext(ctx, "notification request failed",
			"error", err.Error(),
			"error_kind", kind,
			"operation", errx.OpOf(err),
		)
	}
	httpx.WriteKindError(w, err, fallback)
}
