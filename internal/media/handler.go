package media

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/sundayezeilo/shortly/internal/errx"
	"github.com/sundayezeilo/shortly/internal/httpx"
)

// Service is the part of Uploader the handler uses.
type Service interface {
	PresignUpload(ctx context.Context, contentType string) (Upload, error)
	Delete(ctx context.Context, key string) error
}

// UploadURLRequest is the body of POST /api/media/upload-url.
type UploadURLRequest struct {
	ContentType string `json:"contentType"`
}

// DeleteRequest is the body of DELETE /api/media.
type DeleteRequest struct {
	Key string `json:"key"`
}

// Handler serves media endpoints.
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

// UploadURL handles POST /api/media/upload-url.
func (h *Handler) UploadURL(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.requestLogger(r)

	req, err := httpx.DecodeJSON[UploadURLRequest](r)
	if err != nil {
		logger.WarnContext(ctx, "failed to decode request", "error", err.Error())
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", err.Error(), nil)
		return
	}

	upload, err := h.service.PresignUpload(ctx, req.ContentType)
	if err != nil {
		h.handleError(ctx, logger, w, err, "Unable to prepare the upload at this time")
		return
	}

	logger.InfoContext(ctx, "upload url issued", "key", upload.Key)
	httpx.WriteJSON(w, http.StatusOK, upload)
}

// Delete handles DELETE /api/media.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.requestLogger(r)

	req, err := httpx.DecodeJSON[DeleteRequest](r)
	if err != nil {
		logger.WarnContext(ctx, "failed to decode request", "error", err.Error())
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", err.Error(), nil)
		return
	}

	if err := h.service.Delete(ctx, req.Key); err != nil {
		h.handleError(ctx, logger.With("key", req.Key), w, err, "Unable to delete the image at this time")
		return
	}

	logger.InfoContext(ctx, "image deleted", "key", req.Key)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleError(ctx context.Context, logger *slog.Logger, w http.ResponseWriter, err error, fallback string) {
	kind := errx.KindOf(err)
	if httpx.IsClientError(kind) {
		logger.WarnContext(ctx, "media request rejected", "error", err.Error())
	} else {
		logger.ErrorContext(ctx, "media request failed",
			"error", err.Error(),
			"error_kind", kind,
			"operation", errx.OpOf(err),
		)
	}
	httpx.WriteKindError(w, err, fallback)
}
