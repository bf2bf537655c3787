package ginserver

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	gin "github.com/gin-gonic/gin"

	"github.com/DanielNoblero/consultorios-app/internal/infra/config"
	"github.com/DanielNoblero/consultorios-app/internal/infra/obs"
)

type Handlers struct {
	Reservations   ReservationHTTP
	Pricing        PricingHTTP
	Roles          RoleHTTP
	Me             MeHTTP
	Reports        *ReportHandler
	AuthMiddleware gin.HandlerFunc
	// Metrics is optional; nil skips request metrics and /metrics.
	Metrics *obs.Metrics
}

func NewServer(cfg config.Config, obsMW obs.Middleware, health obs.HealthHandlers, h Handlers) *http.Server {
	mode := configureGinMode(cfg.Env)
	if obsMW.Logger != nil {
		obsMW.Logger.Info("gin initialized", "mode", mode)
	}
	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           NewRouter(obsMW, health, h),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func NewRouter(obsMW obs.Middleware, health obs.HealthHandlers, h Handlers) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(obsMW.RequestID())
	router.Use(obsMW.LoggerMiddleware())
	if h.Metrics != nil {
		router.Use(h.Metrics.HTTP())
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", "Idempotency-Key"},
		ExposeHeaders: []string{"Content-Length", "Content-Type", "Content-Disposition", "X-Request-ID"},
		MaxAge:        12 * time.Hour,
	}))
	if h.AuthMiddleware != nil {
		router.Use(h.AuthMiddleware)
	}

	router.GET("/livez", health.Livez)
	router.GET("/readyz", health.Readyz)
	if h.Metrics != nil {
		router.GET("/metrics", gin.WrapH(h.Metrics.Handler()))
	}

	api := router.Group("/api/v1")
	if h.Reservations != nil {
		api.POST("/reservations", h.Reservations.Create)
		api.DELETE("/reservations/:id", h.Reservations.Cancel)

		admin := api.Group("/admin")
		admin.DELETE("/reservations/:id", h.Reservations.AdminDelete)
		admin.PATCH("/reservations/:id/paid", h.Reservations.SetPaid)
		admin.POST("/owners/:id/months/:period/:state", h.Reservations.MarkMonth)
		admin.GET("/backups", h.Reservations.ListBackups)
		admin.POST("/backups/:id/restore", h.Reservations.Restore)
	}
	if h.Pricing != nil {
		api.GET("/pricing", h.Pricing.Get)
		api.GET("/pricing/notice", h.Pricing.Notice)
		api.POST("/pricing/notice/ack", h.Pricing.Acknowledge)
		api.PUT("/admin/pricing", h.Pricing.Update)
	}
	if h.Roles != nil {
		api.POST("/admin/roles", h.Roles.Assign)
	}
	if h.Me != nil {
		api.GET("/agenda", h.Me.Agenda)
		api.GET("/me/reservations", h.Me.ListReservations)
		api.GET("/me/debt", h.Me.Debt)
	}
	if h.Reports != nil {
		api.GET("/reports/monthly", h.Reports.Monthly)
		api.OPTIONS("/reports/monthly", h.Reports.Preflight)
	}
	return router
}

func configureGinMode(env string) string {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "debug":
		gin.SetMode(gin.DebugMode)
		return gin.DebugMode
	case "test", "testing":
		gin.SetMode(gin.TestMode)
		return gin.TestMode
	default:
		gin.SetMode(gin.ReleaseMode)
		return gin.ReleaseMode
	}
}
