package achievements

import (
	"log/slog"
	"net/http"

	"github.com/sundayezeilo/shortly/internal/errx"
	"github.com/sundayezeilo/shortly/internal/httpx"
)

// ListResponse is the body of GET /api/users/{id}/achievements.
type ListResponse struct {
	UserID       string            `json:"userId"`
	Achievements []UserAchievement `json:"achievements"`
}

// Handler serves achievement reads.
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

// ListForUser handles GET /api/users/{id}/achievements.
func (h *Handler) ListForUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := r.PathValue("id")
	logger := h.logger.With(
		"request_id", httpx.GetRequestID(ctx),
		"method", r.Method,
		"path", r.URL.Path,
		"user_id", userID,
	)

	list, err := h.service.ListForUser(ctx, userID)
	if err != nil {
		kind := errx.KindOf(err)
		if httpx.IsClientError(kind) {
			logger.WarnContext(ctx, "achievement list rejected", "error", err.Error())
		} else {
			logger.ErrorContext(ctx, "failed to list achievements",
				"error", err.Error(),
				"error_kind", kind,
				"operation", errx.OpOf(err),
			)
		}
		httpx.WriteKindError(w, err, "Unable to load achievements at this time")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, ListResponse{UserID: userID, Achievements: list})
}
