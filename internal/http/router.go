package http

import (
	"context"
	"log/slog"
	"time"

	"github.com/geocoder89/userdir/internal/config"
	"github.com/geocoder89/userdir/internal/http/handlers"
	"github.com/geocoder89/userdir/internal/http/middlewares"
	"github.com/geocoder89/userdir/internal/observability"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

const defaultMaxUploadBytes = 1 << 20

// Store is what the router needs from a storage backend.
type Store interface {
	handlers.UserStore
	Ping(ctx context.Context) error
}

type Deps struct {
	Users  Store
	Hasher handlers.PasswordHasher
	// Prom and Gatherer are optional; without them /metrics is not mounted.
	Prom     *observability.Prom
	Gatherer prometheus.Gatherer
	// Now overrides the wall clock, for tests.
	Now func() time.Time
	// Draining reports whether the process is shutting down.
	Draining func() bool
}

// NewRouter wires every route. No route authenticates or authorizes its
// caller.
func NewRouter(log *slog.Logger, deps Deps, cfg config.Config) *gin.Engine {
	if cfg.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	// middleware

	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(cfg.OTelServiceName))
	r.Use(middlewares.RequestID())
	r.Use(middlewares.RequestLogger(log))
	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.CORSMiddleware(cfg.CORSAllowedOrigins))

	if deps.Prom != nil {
		r.Use(deps.Prom.GinHandleMiddleware())
	}

	// health
	h := handlers.NewHealthHandler(deps.Users.Ping).WithDraining(deps.Draining)
	r.GET("/healthz", h.Healthz)
	r.GET("/readyz", h.Readyz)

	if deps.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	// Wire up handlers
	usersHandler := handlers.NewUsersHandler(deps.Users, deps.Hasher, cfg.UserTTL).
		WithClock(deps.Now).
		WithLogger(log)
	importHandler := handlers.NewImportHandler(deps.Users, deps.Hasher, cfg.ImportMaxRecords, cfg.UserTTL, deps.Prom).
		WithClock(deps.Now).
		WithLogger(log)

	r.GET("/user", usersHandler.ListUsers)
	r.GET("/user/:public_id", usersHandler.GetUser)
	r.POST("/user", usersHandler.CreateUser)
	r.PUT("/update_user/:public_id", usersHandler.UpdateUser)
	r.PUT("/update_password/:public_id", usersHandler.UpdatePassword)
	r.PUT("/set_admin/:public_id", usersHandler.SetAdmin)
	r.DELETE("/user/:public_id", usersHandler.DeleteUser)

	// bulk import
	r.GET("/file_import", handlers.ImportForm)
	maxUpload := cfg.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = defaultMaxUploadBytes
	}
	r.POST("/file_import", middlewares.MaxBodyBytes(maxUpload), importHandler.Upload)

	return r
}
