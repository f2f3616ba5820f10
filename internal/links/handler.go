package links

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sundayezeilo/shortly/internal/errx"
	"github.com/sundayezeilo/shortly/internal/httpx"
)

// HTTPCreateLinkRequest represents the JSON request body for creating a link.
type HTTPCreateLinkRequest struct {
	URL                 string `json:"url"`
	CustomCode          string `json:"customCode,omitempty"`
	OwnerID             string `json:"ownerId,omitempty"`
	Name                string `json:"name,omitempty"`
	Description         string `json:"description,omitempty"`
	IsPrivate           bool   `json:"isPrivate,omitempty"`
	IsPasswordProtected bool   `json:"isPasswordProtected,omitempty"`
	Password            string `json:"password,omitempty"`
}

// CreateLinkResponse represents the JSON response for a created link.
type CreateLinkResponse struct {
	Code      string `json:"code"`
	ShortURL  string `json:"shortUrl"`
	URL       string `json:"url"`
	CreatedAt string `json:"createdAt"`
}

// LinkDetailsResponse describes a link. The destination is withheld for
// protected links.
type LinkDetailsResponse struct {
	Code                string `json:"code"`
	ShortURL            string `json:"shortUrl"`
	URL                 string `json:"url,omitempty"`
	Name                string `json:"name,omitempty"`
	Description         string `json:"description,omitempty"`
	OwnerID             string `json:"ownerId,omitempty"`
	IsPrivate           bool   `json:"isPrivate"`
	IsPasswordProtected bool   `json:"isPasswordProtected"`
	IsActive            bool   `json:"isActive"`
	TotalClicks         int64  `json:"totalClicks"`
	CreatedAt           string `json:"createdAt"`
}

// VerifyPasswordRequest is the body of POST /api/links/verify-password.
type VerifyPasswordRequest struct {
	LinkID   string `json:"linkId"`
	Password string `json:"password"`
}

// VerifyPasswordResponse reports whether access was granted.
type VerifyPasswordResponse struct {
	AccessGranted bool   `json:"accessGranted"`
	URL           string `json:"originalUrl,omitempty"`
	Message       string `json:"message,omitempty"`
}

// PasswordRequest is the body of the password endpoints. CurrentPassword is
// only read when changing an existing password.
type PasswordRequest struct {
	UserID          string `json:"userId"`
	CurrentPassword string `json:"currentPassword,omitempty"`
	NewPassword     string `json:"newPassword"`
}

// LinkListResponse is the body of the link listing endpoints.
type LinkListResponse struct {
	Links []LinkDetailsResponse `json:"links"`
}

// Handler provides HTTP handlers for link management.
type Handler struct {
	service Service
	logger  *slog.Logger
	baseURL string
}

// HandlerConfig holds configuration for the handler.
type HandlerConfig struct {
	Service Service
	Logger  *slog.Logger
	BaseURL string // used to build short URLs, e.g. "https://short.ly"
}

// NewHandler creates a new Handler instance.
func NewHandler(cfg HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Handler{
		service: cfg.Service,
		logger:  logger,
		baseURL: cfg.BaseURL,
	}
}

func (h *Handler) requestLogger(r *http.Request) *slog.Logger {
	return h.logger.With(
		"request_id", httpx.GetRequestID(r.Context()),
		"method", r.Method,
		"path", r.URL.Path,
	)
}

func (h *Handler) shortURL(code string) string {
	return fmt.Sprintf("%s/r/%s", h.baseURL, code)
}

// CreateLink handles POST /api/links.
func (h *Handler) CreateLink(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.requestLogger(r)

	req, err := httpx.DecodeJSON[HTTPCreateLinkRequest](r)
	if err != nil {
		logger.WarnContext(ctx, "failed to decode request", "error", err.Error())
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", err.Error(), nil)
		return
	}
	if req.URL == "" {
		logger.WarnContext(ctx, "request validation failed", "error", "url is required")
		httpx.WriteError(w, http.StatusBadRequest, "validation_failed", "url is required", nil)
		return
	}

	link, err := h.service.Create(ctx, CreateLinkRequest{
		DestinationURL:      req.URL,
		CustomCode:          req.CustomCode,
		OwnerID:             req.OwnerID,
		Name:                req.Name,
		Description:         req.Description,
		IsPrivate:           req.IsPrivate,
		IsPasswordProtected: req.IsPasswordProtected,
		Password:            req.Password,
	})
	if err != nil {
		if errx.KindOf(err) == errx.Conflict {
			logger.WarnContext(ctx, "code conflict", "error", err.Error(), "custom_code", req.CustomCode)
			httpx.WriteError(w, http.StatusConflict, "conflict",
				"This code is already taken",
				map[string]string{
					"hint": "Try a different custom code or let us generate one for you",
				})
			return
		}
		h.handleError(ctx, logger, w, err, "Unable to create short link at this time. Please try again.")
		return
	}

	logger.InfoContext(ctx, "link created",
		"code", link.Code,
		"custom_code", req.CustomCode != "",
		"owner_id", link.OwnerID,
		"password_protected", link.IsPasswordProtected,
	)

	httpx.WriteJSON(w, http.StatusCreated, CreateLinkResponse{
		Code:      link.Code,
		ShortURL:  h.shortURL(link.Code),
		URL:       link.DestinationURL,
		CreatedAt: link.CreatedAt.UTC().Format(time.RFC3339),
	})
}

// GetLink handles GET /api/links/{code}.
func (h *Handler) GetLink(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.requestLogger(r)

	code := r.PathValue("code")
	if !ValidCodeFormat(code) {
		logger.WarnContext(ctx, "invalid code in path", "code", code)
		httpx.WriteError(w, http.StatusBadRequest, "invalid_code", "invalid link code", nil)
		return
	}

	link, err := h.service.Get(ctx, code)
	if err != nil {
		h.handleError(ctx, logger.With("code", code), w, err, "Unable to load this link at this time")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, h.details(link))
}

// details describes link. The destination is withheld for protected links.
func (h *Handler) details(link Link) LinkDetailsResponse {
	resp := LinkDetailsResponse{
		Code:                link.Code,
		ShortURL:            h.shortURL(link.Code),
		Name:                link.Name,
		Description:         link.Description,
		OwnerID:             link.OwnerID,
		IsPrivate:           link.IsPrivate,
		IsPasswordProtected: link.IsPasswordProtected,
		IsActive:            link.IsActive,
		TotalClicks:         link.Clicks,
		CreatedAt:           link.CreatedAt.UTC().Format(time.RFC3339),
	}
	if !link.IsPasswordProtected {
		resp.URL = link.DestinationURL
	}
	return resp
}

func (h *Handler) list(list []Link) LinkListResponse {
	resp := LinkListResponse{Links: make([]LinkDetailsResponse, 0, len(list))}
	for _, l := range list {
		resp.Links = append(resp.Links, h.details(l))
	}
	return resp
}

// VerifyPassword handles POST /api/links/verify-password.
func (h *Handler) VerifyPassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.requestLogger(r)

	req, err := httpx.DecodeJSON[VerifyPasswordRequest](r)
	if err != nil {
		logger.WarnContext(ctx, "failed to decode request", "error", err.Error())
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", err.Error(), nil)
		return
	}
	if req.LinkID == "" || req.Password == "" {
		httpx.WriteError(w, http.StatusBadRequest, "validation_failed", "linkId and password are required", nil)
		return
	}

	access, err := h.service.VerifyPassword(ctx, req.LinkID, req.Password)
	if err != nil {
		h.handleError(ctx, logger.With("code", req.LinkID), w, err, "Unable to verify the password at this time")
		return
	}

	if !access.Granted {
		logger.InfoContext(ctx, "password rejected", "code", req.LinkID)
		httpx.WriteJSON(w, http.StatusUnauthorized, VerifyPasswordResponse{
			AccessGranted: false,
			Message:       "Incorrect password",
		})
		return
	}

	httpx.WriteJSON(w, http.StatusOK, VerifyPasswordResponse{
		AccessGranted: true,
		URL:           access.DestinationURL,
	})
}

// Deactivate handles POST /api/links/{code}/deactivate.
func (h *Handler) Deactivate(w http.ResponseWriter, r *http.Request) {
	h.update(w, r, "link deactivated", func(ctx context.Context, code string) (Link, error) {
		return h.service.Deactivate(ctx, code)
	})
}

// Restore handles POST /api/links/{code}/restore.
func (h *Handler) Restore(w http.ResponseWriter, r *http.Request) {
	h.update(w, r, "link restored", func(ctx context.Context, code string) (Link, error) {
		return h.service.Restore(ctx, code)
	})
}

// TogglePrivacy handles PATCH /api/links/{code}/privacy.
func (h *Handler) TogglePrivacy(w http.ResponseWriter, r *http.Request) {
	h.update(w, r, "link privacy toggled", func(ctx context.Context, code string) (Link, error) {
		return h.service.TogglePrivacy(ctx, code)
	})
}

// SetPassword handles POST /api/links/{code}/password.
func (h *Handler) SetPassword(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodePassword(w, r)
	if !ok {
		return
	}
	h.update(w, r, "link password set", func(ctx context.Context, code string) (Link, error) {
		return h.service.SetPassword(ctx, code, req.UserID, req.NewPassword)
	})
}

// ChangePassword handles PUT /api/links/{code}/password.
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodePassword(w, r)
	if !ok {
		return
	}
	h.update(w, r, "link password changed", func(ctx context.Context, code string) (Link, error) {
		return h.service.ChangePassword(ctx, code, req.UserID, req.CurrentPassword, req.NewPassword)
	})
}

// RemovePassword handles DELETE /api/links/{code}/password?userId=.
func (h *Handler) RemovePassword(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	h.update(w, r, "link password removed", func(ctx context.Context, code string) (Link, error) {
		return h.service.RemovePassword(ctx, code, userID)
	})
}

// ListByOwner handles GET /api/users/{id}/links.
func (h *Handler) ListByOwner(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := r.PathValue("id")
	logger := h.requestLogger(r).With("user_id", userID)

	list, err := h.service.ListByOwner(ctx, userID)
	if err != nil {
		h.handleError(ctx, logger, w, err, "Unable to load links at this time")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, h.list(list))
}

// ListPublic handles GET /api/links.
func (h *Handler) ListPublic(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	list, err := h.service.ListPublic(ctx)
	if err != nil {
		h.handleError(ctx, h.requestLogger(r), w, err, "Unable to load links at this time")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, h.list(list))
}

func (h *Handler) decodePassword(w http.ResponseWriter, r *http.Request) (PasswordRequest, bool) {
	req, err := httpx.DecodeJSON[PasswordRequest](r)
	if err != nil {
		h.requestLogger(r).WarnContext(r.Context(), "failed to decode request", "error", err.Error())
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", err.Error(), nil)
		return PasswordRequest{}, false
	}
	return req, true
}

// update runs a state change on the link named in the path and replies with
// the updated link.
func (h *Handler) update(w http.ResponseWriter, r *http.Request, event string, apply func(context.Context, string) (Link, error)) {
	ctx := r.Context()
	code := r.PathValue("code")
	logger := h.requestLogger(r).With("code", code)

	if !ValidCodeFormat(code) {
		logger.WarnContext(ctx, "invalid code in path")
		httpx.WriteError(w, http.StatusBadRequest, "invalid_code", "invalid link code", nil)
		return
	}

	link, err := apply(ctx, code)
	if err != nil {
		h.handleError(ctx, logger, w, err, "Unable to update this link at this time")
		return
	}

	logger.InfoContext(ctx, event,
		"active", link.IsActive,
		"private", link.IsPrivate,
		"password_protected", link.IsPasswordProtected,
	)
	httpx.WriteJSON(w, http.StatusOK, h.details(link))
}

func (h *Handler) handleError(ctx context.Context, logger *slog.Logger, w http.ResponseWriter, err error, fallback string) {
	kind := errx.KindOf(err)
	attrs := []any{
		"error", err.Error(),
		"error_kind", kind,
		"operation", errx.OpOf(err),
	}

	if httpx.IsClientError(kind) {
		logger.WarnContext(ctx, "link request rejected", attrs...)
	} else {
		logger.ErrorContext(ctx, "link request failed", attrs...)
	}

	if kind == errx.NotFound {
		httpx.WriteKindError(w, errx.E("", errx.NotFound, errors.New("short link doesn't exist")), fallback)
		return
	}
	httpx.WriteKindError(w, err, fallback)
}
