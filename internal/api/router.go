package api

import (
	"embed"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"co2-bank-monitor/config"
	"co2-bank-monitor/internal/mw"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.New("").ParseFS(templateFS, "templates/*.html"))

// NewRouter creates and configures a new Gin router.
func NewRouter(h *Handler, cfg config.ServerConfig, logger *slog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), mw.Logger(logger))
	r.SetHTMLTemplate(templates)

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst)
	cacheStore := cache.New(cfg.CacheTTL, 2*cfg.CacheTTL)
	caching := mw.Cache(cacheStore, cfg.CacheTTL, h.dataVersion)

	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	pages := r.Group("/")
	pages.Use(rateLimiter)
	{
		pages.GET("/", h.GetDashboard)
		pages.GET("/status", h.GetStatus)
		pages.GET("/plot", caching, h.GetPlot)
	}

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		api.GET("/vapid_public_key", h.GetVAPIDPublicKey)
		if h.db != nil {
			api.GET("/subscriptions", h.GetSubscription)
			api.PUT("/subscriptions", h.PutSubscription)
			api.DELETE("/subscriptions", h.DeleteSubscription)
		}
	}

	return r
}
