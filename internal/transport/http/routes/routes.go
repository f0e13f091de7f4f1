package routes

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/213020aumc/matcha/internal/core/domain"
	"github.com/213020aumc/matcha/internal/infra/config"
	"github.com/213020aumc/matcha/internal/transport/http/handlers"
	"github.com/213020aumc/matcha/internal/transport/http/middleware"
)

// ServiceSet groups the services the HTTP layer depends on.
type ServiceSet struct {
	Auth     handlers.AuthUsecase
	Sessions middleware.SessionResolver
	Profiles handlers.ProfileUsecase
	Review   handlers.ReviewUsecase
	RBAC     handlers.RBACUsecase
	Settings handlers.SettingsUsecase
}

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config        *config.AppConfig
	Logger        *zap.Logger
	RateLimiter   *middleware.RateLimiter
	GlobalLimiter *middleware.IPLimiter
	Metrics       *middleware.HTTPMetrics
	Services      ServiceSet
	Database      DatabaseChecker
	Cache         CacheChecker
	// UploadDir is served under the public upload prefix when files are kept on local disk.
	UploadDir string
}

// DatabaseChecker exposes readiness behaviour for database connections.
type DatabaseChecker interface {
	Ping(ctx context.Context) error
}

// CacheChecker exposes readiness behaviour for cache backends.
type CacheChecker interface {
	HealthCheck(ctx context.Context) error
}

// Register configures the Gin engine with routes and middleware.
func Register(deps Dependencies) *gin.Engine {
	if deps.Config.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	handlers.UseJSONFieldNames()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.EnrichContext())
	r.Use(middleware.Tracing())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(deps.Logger))
	r.Use(deps.Metrics.Handler())
	r.Use(middleware.CORS(deps.Config.CORS.AllowedOrigins))

	healthOptions := make([]handlers.HealthOption, 0, 2)
	if deps.Database != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("database", deps.Database.Ping))
	}
	if deps.Cache != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("redis", deps.Cache.HealthCheck))
	}
	healthHandler := handlers.NewHealthHandler(healthOptions...)

	r.GET("/healthz", healthHandler.Status)
	r.GET("/readyz", healthHandler.Readiness)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	requireAuth := middleware.RequireAuth(deps.Services.Sessions, deps.Config.Session.CookieName)

	if deps.UploadDir != "" {
		uploads := r.Group(uploadPrefix(deps.Config))
		uploads.Use(requireAuth)
		uploads.Static("/", deps.UploadDir)
	}

	api := r.Group("/api/v1")
	api.Use(deps.GlobalLimiter.Handler())
	{
		authHandler := handlers.NewAuthHandler(deps.Services.Auth, handlers.CookieSettings{
			Name:   deps.Config.Session.CookieName,
			Secure: deps.Config.Session.CookieSecure || !deps.Config.App.IsDevelopment(),
		})
		authHandler.RegisterRoutes(api.Group("/auth"), requireAuth, buildAuthMiddlewares(deps)...)

		profileGroup := api.Group("/profile")
		profileGroup.Use(requireAuth)
		handlers.NewProfileHandler(deps.Services.Profiles, deps.Config.Storage.MaxUploadBytes).RegisterRoutes(profileGroup)

		admin := api.Group("/admin")
		admin.Use(requireAuth)

		handlers.NewAdminHandler(deps.Services.Review).RegisterRoutes(
			admin.Group("/profile"),
			middleware.RequirePermission(domain.PermProfilesViewPending),
			middleware.RequirePermission(domain.PermProfilesApprove),
		)

		rbacGroup := admin.Group("/rbac")
		rbacGroup.Use(middleware.RequirePermission(domain.PermUsersManage))
		handlers.NewRoleHandler(deps.Services.RBAC).RegisterRoutes(rbacGroup)

		// Reading and changing settings need different slugs; the service enforces each.
		handlers.NewSettingsHandler(deps.Services.Settings).RegisterRoutes(admin.Group("/settings"))
	}

	return r
}

func buildAuthMiddlewares(deps Dependencies) []gin.HandlerFunc {
	if deps.RateLimiter == nil {
		return nil
	}

	rule := middleware.RateLimitRule{
		Name:       "auth_ip",
		Limit:      deps.Config.RateLimit.AuthMaxAttempts,
		Window:     deps.Config.RateLimit.AuthWindow,
		Identifier: middleware.ClientIPIdentifier(),
	}

	return []gin.HandlerFunc{deps.RateLimiter.RateLimit(rule)}
}

func uploadPrefix(cfg *config.AppConfig) string {
	if prefix := cfg.Storage.PublicBaseURL; len(prefix) > 0 && prefix[0] == '/' {
		return prefix
	}
	return "/uploads"
}
