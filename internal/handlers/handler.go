package handlers

import (
	"github.com/gin-gonic/gin"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/Sese-Schneider/ha-cover-time-based-sub000/internal/logger"
	"github.com/Sese-Schneider/ha-cover-time-based-sub000/internal/service"
)

// Handler wires HTTP layer to services and logging.
type Handler struct {
	services *service.Service
	log      *logger.Logger
}

// NewHandler constructs a new HTTP handler with dependencies.
func NewHandler(services *service.Service, log *logger.Logger) *Handler {
	return &Handler{services: services, log: log}
}

// InitRoutes builds and returns the Gin router with all routes registered.
func (h *Handler) InitRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Health endpoint
	router.GET("/health", h.health)

	// Auth endpoints
	h.registerAuthRoutes(router)

	// Versioned API endpoints (protected)
	h.registerAPIRoutes(router)

	// State stream over WebSocket, same port
	router.GET("/ws", h.wsConnect)

	return router
}

func (h *Handler) registerAuthRoutes(r *gin.Engine) {
	auth := r.Group("/auth")
	{
		auth.POST("/sign-up", h.signUp)
		auth.POST("/sign-in", h.signIn)
	}
}

func (h *Handler) registerAPIRoutes(r *gin.Engine) {
	api := r.Group("/api/v1", h.userIdMiddleware)
	{
		h.registerCoverRoutes(api)
		h.registerCalibrationRoutes(api)
		h.registerLogRoutes(api)
	}
}

func (h *Handler) registerCoverRoutes(api *gin.RouterGroup) {
	cover := api.Group("/cover")
	{
		cover.POST("/open", h.openCover)
		cover.POST("/close", h.closeCover)
		cover.POST("/stop", h.stopCover)
		// Body example: {"position":60}
		cover.POST("/position", h.setPosition)
		// Body example: {"tilt":25}
		cover.POST("/tilt", h.setTilt)
		// Body example: {"position":100,"tilt":0}
		cover.POST("/known-position", h.setKnownPosition)
		cover.GET("/state", h.getState)
	}
}

func (h *Handler) registerCalibrationRoutes(api *gin.RouterGroup) {
	calib := api.Group("/calibration")
	{
		// Body example: {"attribute":"travel_open","timeout_s":300}
		calib.POST("/start", h.startCalibration)
		calib.POST("/stop", h.stopCalibration)
	}
}

func (h *Handler) registerLogRoutes(api *gin.RouterGroup) {
	logs := api.Group("/logs")
	{
		logs.GET("/", h.getLogs)
	}
}
