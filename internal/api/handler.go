package api

import (
	"io"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"github.com/yakoovad/pr-daemon/internal/auth"
	"github.com/yakoovad/pr-daemon/internal/model"
	"github.com/yakoovad/pr-daemon/internal/service"
	"github.com/yakoovad/pr-daemon/internal/webhook"
	"github.com/yakoovad/pr-daemon/pkg/logger"
	"go.uber.org/zap"
)

const (
	headerGithubEvent     = "X-GitHub-Event"
	headerGithubDelivery  = "X-GitHub-Delivery"
	headerGithubSignature = "X-Hub-Signature-256"
)

type Handler struct {
	team       *service.TeamService
	lifecycle  *service.LifecycleService
	normalizer *webhook.Normalizer

	signer        *auth.Signer
	webhookSecret string

	healthChecker HealthChecker

	logger *zap.Logger
}

func NewHandler(logger *zap.Logger) *Handler {
	return &Handler{
		logger: logger,
	}
}

func (h *Handler) WithHealthChecker(c HealthChecker) *Handler {
	h.healthChecker = c
	return h
}

func (h *Handler) WithTeamService(team *service.TeamService) *Handler {
	h.team = team
	return h
}

func (h *Handler) WithLifecycleService(lifecycle *service.LifecycleService) *Handler {
	h.lifecycle = lifecycle
	return h
}

func (h *Handler) WithNormalizer(n *webhook.Normalizer) *Handler {
	h.normalizer = n
	return h
}

func (h *Handler) WithSigner(s *auth.Signer) *Handler {
	h.signer = s
	return h
}

// WithWebhookSecret enables signature verification of provider deliveries.
func (h *Handler) WithWebhookSecret(secret string) *Handler {
	h.webhookSecret = secret
	return h
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.Validator = NewValidator()
	e.Use(middleware.RequestID())
	e.Use(ZapLoggerMiddleware(h.logger))
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("5M"))

	if h.healthChecker != nil {
		e.GET("/health", h.healthChecker.HealthCheck())
	}

	e.POST("/webhooks/github", h.GithubWebhook)

	e.GET("/teams/me", h.GetOwnTeam, AuthMiddleware(h.signer, auth.TokenTypeTeam))

	teamSecurity := e.Group("/teams/:id", AuthMiddleware(h.signer, auth.TokenTypeTeam, auth.TokenTypeAdmin))

	teamSecurity.GET("", h.GetTeam)
	teamSecurity.PATCH("", h.RenameTeam)
	teamSecurity.PATCH("/slack", h.UpdateSlackWebhook)
	teamSecurity.GET("/pull-requests", h.ListPullRequests)

	adminSecurity := e.Group("", AuthMiddleware(h.signer, auth.TokenTypeAdmin))

	adminSecurity.POST("/teams", h.AddTeam)
}

var webhookAck = map[string]bool{"received": true}

// GithubWebhook acknowledges every well-signed delivery. State changes are attempted before
// the answer; malformed or inconsistent events are logged and dropped.
func (h *Handler) GithubWebhook(e echo.Context) error {
	ctx := e.Request().Context()

	delivery := e.Request().Header.Get(headerGithubDelivery)
	if delivery == "" {
		delivery = uuid.NewString()
	}
	eventType := e.Request().Header.Get(headerGithubEvent)

	l := logger.FromContext(ctx).With(
		zap.String("github_event", eventType),
		zap.String("delivery_id", delivery),
	)
	ctx = logger.WithLogger(ctx, l)

	body, err := io.ReadAll(e.Request().Body)
	if err != nil {
		l.Warn("dropping unreadable webhook body", zap.Error(err))
		return e.JSON(http.StatusOK, webhookAck)
	}

	if h.webhookSecret != "" {
		if err = webhook.VerifySignature(h.webhookSecret, body, e.Request().Header.Get(headerGithubSignature)); err != nil {
			l.Warn("rejected webhook delivery", zap.Error(err))
			return e.JSON(http.StatusUnauthorized, errorResponse{
				Error: service.NewError(service.ErrorCodeForbidden, "invalid signature"),
			})
		}
	}

	ev, err := h.normalizer.Normalize(eventType, body)
	switch {
	case errors.Is(err, webhook.ErrUnsupportedEvent):
		l.Debug("ignoring webhook event")
	case err != nil:
		l.Warn("dropping malformed payload",
			zap.String("code", string(service.ErrorCodeMalformedPayload)),
			zap.Error(err))
	default:
		ev.DeliveryID = delivery
		if serr := h.lifecycle.Apply(ctx, ev); serr != nil {
			l.Info("webhook event not applied", zap.String("code", string(serr.Code)))
		}
	}

	return e.JSON(http.StatusOK, webhookAck)
}

func (h *Handler) AddTeam(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	req := model.TeamCreate{}

	if err := decodeRequest(e, &req); err != nil {
		l.Error("invalid request", zap.Any("error", err))
		return h.transportError(e, err)
	}

	l.Info("adding team", zap.String("team_name", req.Name))

	team, err := h.team.AddTeam(e.Request().Context(), &req)
	if err != nil {
		l.Error("failed to add team", zap.String("team_name", req.Name), zap.Any("error", err))
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusCreated, team)
}

func (h *Handler) GetTeam(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	teamID, serr := h.teamID(e)
	if serr != nil {
		return h.transportError(e, serr)
	}

	l.Info("getting team", zap.Int64("team_id", teamID))

	team, err := h.team.GetTeam(e.Request().Context(), teamID)
	if err != nil {
		l.Error("failed to get team", zap.Int64("team_id", teamID), zap.Any("error", err))
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, team)
}

// GetOwnTeam resolves a team token to its team.
func (h *Handler) GetOwnTeam(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	teamID := claimsFromContext(e).TeamID
	if teamID <= 0 {
		return h.transportError(e, service.NewError(service.ErrorCodeForbidden, "token is not bound to a team"))
	}

	team, err := h.team.GetTeam(e.Request().Context(), teamID)
	if err != nil {
		l.Error("failed to get own team", zap.Int64("team_id", teamID), zap.Any("error", err))
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, team)
}

func (h *Handler) RenameTeam(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	teamID, serr := h.teamID(e)
	if serr != nil {
		return h.transportError(e, serr)
	}

	var req struct {
		Name string `json:"name" validate:"required,max=255"`
	}

	if err := decodeRequest(e, &req); err != nil {
		l.Error("invalid request", zap.Any("error", err))
		return h.transportError(e, err)
	}

	l.Info("renaming team", zap.Int64("team_id", teamID), zap.String("team_name", req.Name))

	team, err := h.team.RenameTeam(e.Request().Context(), teamID, req.Name)
	if err != nil {
		l.Error("failed to rename team", zap.Int64("team_id", teamID), zap.Any("error", err))
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, team)
}

func (h *Handler) UpdateSlackWebhook(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	teamID, serr := h.teamID(e)
	if serr != nil {
		return h.transportError(e, serr)
	}

	var req struct {
		SlackWebhookURL string `json:"slack_webhook_url" validate:"required,slackwebhook"`
	}

	if err := decodeRequest(e, &req); err != nil {
		l.Error("invalid request", zap.Any("error", err))
		return h.transportError(e, err)
	}

	l.Info("updating slack webhook", zap.Int64("team_id", teamID))

	team, err := h.team.UpdateSlackWebhook(e.Request().Context(), teamID, req.SlackWebhookURL)
	if err != nil {
		l.Error("failed to update slack webhook", zap.Int64("team_id", teamID), zap.Any("error", err))
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, team)
}

func (h *Handler) ListPullRequests(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	teamID, serr := h.teamID(e)
	if serr != nil {
		return h.transportError(e, serr)
	}

	status := model.PRStatus(e.QueryParam("status"))
	if status != "" && status != model.PRStatusOpen && status != model.PRStatusClosed {
		return h.transportError(e, service.NewError(service.ErrorCodeInvalidBody, "status must be OPEN or CLOSED"))
	}

	l.Info("listing pull requests", zap.Int64("team_id", teamID), zap.String("status", string(status)))

	prs, err := h.team.ListPullRequests(e.Request().Context(), teamID, status)
	if err != nil {
		l.Error("failed to list pull requests", zap.Int64("team_id", teamID), zap.Any("error", err))
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"team_id":       teamID,
		"pull_requests": prs,
	})
}

// teamID parses the path id and checks the caller may access that team.
func (h *Handler) teamID(e echo.Context) (int64, *service.Error) {
	id, err := strconv.ParseInt(e.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, service.NewError(service.ErrorCodeInvalidBody, "invalid team id")
	}
	if !claimsFromContext(e).CanAccessTeam(id) {
		return 0, service.NewError(service.ErrorCodeForbidden, "token does not grant access to this team")
	}
	return id, nil
}

type errorResponse struct {
	Error *service.Error `json:"error"`
}

func (h *Handler) transportError(e echo.Context, err *service.Error) error {
	response := errorResponse{Error: err}

	switch err.Code {
	case service.ErrorCodeNotFound:
		return e.JSON(http.StatusNotFound, response)
	case service.ErrorCodeTeamExists:
		return e.JSON(http.StatusConflict, response)
	case service.ErrorCodeInvalidBody, service.ErrorCodeMalformedPayload:
		return e.JSON(http.StatusBadRequest, response)
	case service.ErrorCodeForbidden:
		return e.JSON(http.StatusForbidden, response)
	case service.ErrorCodeStoreUnavailable:
		return e.JSON(http.StatusServiceUnavailable, response)
	default:
		return e.JSON(http.StatusInternalServerError, response)
	}
}
