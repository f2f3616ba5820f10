package clicks

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/sundayezeilo/shortly/internal/errx"
	"github.com/sundayezeilo/shortly/internal/httpx"
	"github.com/sundayezeilo/shortly/internal/links"
)

// Clicker handles a single click.
type Clicker interface {
	HandleClick(ctx context.Context, code, clickerID string) (Outcome, error)
}

// ClickResponse is the JSON body for protected links and for clients that
// ask for JSON instead of a redirect.
type ClickResponse struct {
	Code             string `json:"code"`
	URL              string `json:"url,omitempty"`
	PasswordRequired bool   `json:"passwordRequired"`
}

// Handler exposes the tracker over HTTP and API Gateway.
type Handler struct {
	clicker Clicker
	logger  *slog.Logger
}

// NewHandler creates a new Handler instance.
func NewHandler(clicker Clicker, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{clicker: clicker, logger: logger}
}

// reply is a transport-neutral response.
type reply struct {
	status   int
	location string
	body     any
}

func (h *Handler) click(ctx context.Context, logger *slog.Logger, code, clickerID string, wantsJSON bool) reply {
	if !links.ValidCodeFormat(code) {
		logger.WarnContext(ctx, "invalid code in path", "code", code)
		return reply{
			status: http.StatusBadRequest,
			body:   httpx.ErrorResponse{Error: "invalid_code", Message: "invalid link code"},
		}
	}

	outcome, err := h.clicker.HandleClick(ctx, code, clickerID)
	if err != nil {
		return h.errorReply(ctx, logger.With("code", code), err)
	}

	logger.InfoContext(ctx, "click handled",
		"code", code,
		"counted", outcome.Counted,
		"clicks", outcome.Clicks,
		"unlocked", outcome.Unlocked,
		"password_required", outcome.PasswordRequired,
	)

	switch {
	case outcome.PasswordRequired:
		return reply{status: http.StatusOK, body: ClickResponse{Code: outcome.Code, PasswordRequired: true}}
	case wantsJSON:
		return reply{status: http.StatusOK, body: ClickResponse{Code: outcome.Code, URL: outcome.DestinationURL}}
	default:
		return reply{status: http.StatusFound, location: outcome.DestinationURL}
	}
}

func (h *Handler) errorReply(ctx context.Context, logger *slog.Logger, err error) reply {
	kind := errx.KindOf(err)
	attrs := []any{
		"error", err.Error(),
		"error_kind", kind,
		"operation", errx.OpOf(err),
	}

	message := "Unable to follow this link at this time"
	switch {
	case kind == errx.NotFound:
		logger.WarnContext(ctx, "link not found", attrs...)
		message = "short link doesn't exist"
	case httpx.IsClientError(kind):
		logger.WarnContext(ctx, "click rejected", attrs...)
		message = httpx.RootMessage(err)
	default:
		logger.ErrorContext(ctx, "click failed", attrs...)
	}

	return reply{
		status: httpx.ErrorKindToStatus(kind),
		body: httpx.ErrorResponse{
			Error:   httpx.ErrorKindToCode(kind),
			Message: message,
		},
	}
}

// Redirect handles GET /r/{code}?userID=.
func (h *Handler) Redirect(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With(
		"request_id", httpx.GetRequestID(ctx),
		"method", r.Method,
		"path", r.URL.Path,
	)

	rep := h.click(ctx, logger, r.PathValue("code"), r.URL.Query().Get("userID"), httpx.WantsJSON(r))
	if rep.location != "" {
		http.Redirect(w, r, rep.location, rep.status)
		return
	}
	httpx.WriteJSON(w, rep.status, rep.body)
}
