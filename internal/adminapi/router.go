package adminapi

import (
	"embed"
	"log/slog"

	"github.com/gin-contrib/static"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/jroosing/dnsfwd/internal/adminapi/docs" // registers the swagger spec
)

//go:embed static/*.html
var staticFS embed.FS

// NewEngine builds the gin.Engine serving the admin API: a bundled status
// page, generated Swagger docs, and the /api/v1 surface in Handler,
// optionally protected by a static API key. Grounded on the teacher's
// internal/api.New/RegisterRoutes split, collapsed into one constructor
// since this resolver's admin surface is small enough not to need a
// separate routes file.
func NewEngine(h *Handler, apiKey string, log *slog.Logger) *gin.Engine {
	if log == nil {
		log = slog.Default()
	}
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestID())
	r.Use(slogRequestLogger(log))

	distFS, err := static.EmbedFolder(staticFS, "static")
	if err != nil {
		log.Warn("adminapi: failed to mount embedded status page", slog.Any("error", err))
	} else {
		r.Use(static.Serve("/", distFS))
	}
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	api := r.Group("/api/v1")
	api.GET("/health", h.Health) // unauthenticated: used for liveness checks

	api.Use(requireAPIKey(apiKey))
	api.GET("/stats", h.Stats)

	api.GET("/zone", h.ListZone)
	api.POST("/zone", h.AddZoneRecord)
	api.DELETE("/zone/:id", h.DeleteZoneRecord)
	api.POST("/zone/reload", h.ReloadZone)

	api.GET("/upstreams", h.ListUpstreams)
	api.PUT("/upstreams", h.ReplaceUpstreams)

	return r
}
