package api

import (
	"context"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	apiContext "hivehook/internal/api/context"
	"hivehook/internal/api/handlers"
	"hivehook/internal/api/middleware"
	"hivehook/internal/platform/auth"
)

type Dependencies struct {
	AdminHandler   *handlers.AdminHandler
	WebhookHandler *handlers.WebhookHandler
	HealthHandler  *handlers.HealthHandler
	AuthMiddleware *middleware.AuthMiddleware
	RateLimiter    *middleware.RateLimiter
	Logger         zerolog.Logger
}

func NewRouter(deps *Dependencies) http.Handler {
	router := httprouter.New()

	router.GET("/health", wrap(deps.HealthHandler.Check))

	// Public GitHub delivery endpoint; authenticated by signature.
	router.POST("/api/v1/webhooks/github",
		chain(deps.WebhookHandler.Receive, deps.RateLimiter.Handle))

	authMid := deps.AuthMiddleware
	admin := middleware.RequireRole(auth.RoleAdmin, auth.RoleOwner)

	router.POST("/api/v1/workspaces",
		chain(deps.AdminHandler.CreateWorkspace, authMid.Handle, admin))
	router.DELETE("/api/v1/workspaces/:workspace_id",
		chain(deps.AdminHandler.DeleteWorkspace, authMid.Handle, admin))
	router.POST("/api/v1/workspaces/:workspace_id/repositories",
		chain(deps.AdminHandler.CreateRepository, authMid.Handle, admin))
	router.PUT("/api/v1/workspaces/:workspace_id/workflow",
		chain(deps.AdminHandler.PutWorkflowConfig, authMid.Handle, admin))
	router.POST("/api/v1/repositories/:repository_id/webhook-secret/rotate",
		chain(deps.AdminHandler.RotateWebhookSecret, authMid.Handle, admin))
	router.PUT("/api/v1/users/:user_id/source-control-token",
		chain(deps.AdminHandler.PutSourceControlToken, authMid.Handle, admin))

	return withRequestLogging(deps.Logger, router)
}

func withRequestLogging(l zerolog.Logger, next http.Handler) http.Handler {
	h := hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("request")
	})(next)
	h = hlog.RequestIDHandler("req_id", "X-Request-Id")(h)
	h = hlog.RemoteAddrHandler("remote_addr")(h)
	return hlog.NewHandler(l)(h)
}

// Helper function to chain middlewares
func chain(handler http.HandlerFunc, middlewares ...func(http.HandlerFunc) http.HandlerFunc) httprouter.Handle {
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i](handler)
	}
	return wrap(handler)
}

// Convert http.HandlerFunc to httprouter.Handle
func wrap(handler http.HandlerFunc) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		ctx := context.WithValue(r.Context(), apiContext.Params, ps)
		handler(w, r.WithContext(ctx))
	}
}
