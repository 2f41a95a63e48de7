package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Sese-Schneider/ha-cover-time-based-sub000/internal/cover"
	"github.com/Sese-Schneider/ha-cover-time-based-sub000/internal/service"
)

// Common response/status constants to avoid magic strings and typos.
const (
	statusOK       = "ok"
	statusAccepted = "accepted"
	statusStopped  = "stopped"
	statusPinned   = "pinned"

	errGetState        = "failed to load state"
	errInvalidBodyPref = "invalid body: "
)

// coverStatusCode maps domain errors onto HTTP codes. Rejected inputs are
// 400, a cover that refuses to act in its current state is 409, and
// configuration gaps the caller can fix are 422.
func coverStatusCode(err error) int {
	switch {
	case errors.Is(err, cover.ErrTargetOutOfRange),
		errors.Is(err, cover.ErrUnsupportedAttribute):
		return http.StatusBadRequest
	case errors.Is(err, cover.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, cover.ErrPositionUnknown),
		errors.Is(err, cover.ErrMissingDuration),
		errors.Is(err, cover.ErrNoCalibration),
		errors.Is(err, cover.ErrUnknownTiltMode):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// coverError logs and writes the mapped JSON error response.
func (h *Handler) coverError(c *gin.Context, logKey string, err error, kv ...interface{}) {
	code := coverStatusCode(err)
	if h.log != nil {
		fields := append([]interface{}{"err", err}, kv...)
		if code == http.StatusInternalServerError {
			h.log.Errorw(logKey, fields...)
		} else {
			h.log.Infow(logKey, fields...)
		}
	}
	msg := err.Error()
	if code == http.StatusInternalServerError {
		msg = "internal error"
	}
	c.JSON(code, gin.H{"error": msg})
}

// Respond with a status and include current state (best-effort).
func (h *Handler) respondWithStatusAndState(c *gin.Context, status string, extra gin.H) {
	ctx := c.Request.Context()
	resp := gin.H{"status": status}
	for k, v := range extra {
		resp[k] = v
	}
	st, err := h.services.Monitoring.GetState(ctx)
	if err == nil {
		resp["state"] = st
	}
	c.JSON(http.StatusOK, resp)
}

// Request DTO for moving to a position.
type positionRequest struct {
	Position *int `json:"position" binding:"required"`
}

// Request DTO for tilting.
type tiltRequest struct {
	Tilt *int `json:"tilt" binding:"required"`
}

// Request DTO for pinning known positions without motion.
type knownPositionRequest struct {
	Position *int `json:"position,omitempty"`
	Tilt     *int `json:"tilt,omitempty"`
}

// SetPositionRequest is an exported model for Swagger docs of the position payload.
type SetPositionRequest struct {
	// Target position, 0 fully closed .. 100 fully open
	Position int `json:"position" example:"60"`
}

// SetTiltRequest is an exported model for Swagger docs of the tilt payload.
type SetTiltRequest struct {
	// Target tilt, 0 .. 100
	Tilt int `json:"tilt" example:"25"`
}

// SetKnownPositionRequest is an exported model for Swagger docs of the pin payload.
type SetKnownPositionRequest struct {
	// Known position to pin; omit to leave unchanged
	Position *int `json:"position,omitempty" example:"100"`
	// Known tilt to pin; omit to leave unchanged
	Tilt *int `json:"tilt,omitempty" example:"0"`
}

// @Summary      Health check
// @Tags         system
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /health [get]
func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": statusOK,
	})
}

// @Summary      Open cover fully
// @Tags         cover
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "status, state"
// @Failure      401  {object}  map[string]string
// @Failure      409  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/cover/open [post]
// @Security     BearerAuth
func (h *Handler) openCover(c *gin.Context) {
	ctx := c.Request.Context()
	if err := h.services.Cover.Open(ctx); err != nil {
		h.coverError(c, "cover_open_failed", err)
		return
	}
	h.respondWithStatusAndState(c, statusAccepted, gin.H{})
}

// @Summary      Close cover fully
// @Tags         cover
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      401  {object}  map[string]string
// @Failure      409  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/cover/close [post]
// @Security     BearerAuth
func (h *Handler) closeCover(c *gin.Context) {
	ctx := c.Request.Context()
	if err := h.services.Cover.Close(ctx); err != nil {
		h.coverError(c, "cover_close_failed", err)
		return
	}
	h.respondWithStatusAndState(c, statusAccepted, gin.H{})
}

// @Summary      Stop any movement
// @Tags         cover
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      401  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/cover/stop [post]
// @Security     BearerAuth
func (h *Handler) stopCover(c *gin.Context) {
	ctx := c.Request.Context()
	if err := h.services.Cover.Stop(ctx); err != nil {
		h.coverError(c, "cover_stop_failed", err)
		return
	}
	h.respondWithStatusAndState(c, statusStopped, gin.H{})
}

// @Summary      Move to position
// @Description  0 is fully closed, 100 is fully open. Movements shorter than the minimum movement time are ignored unless they target an endpoint.
// @Tags         cover
// @Accept       json
// @Produce      json
// @Param        body  body   SetPositionRequest  true  "Target position"
// @Success      200   {object}  map[string]interface{}
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      409   {object}  map[string]string
// @Failure      422   {object}  map[string]string
// @Failure      500   {object}  map[string]string
// @Router       /api/v1/cover/position [post]
// @Security     BearerAuth
func (h *Handler) setPosition(c *gin.Context) {
	var req positionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
		return
	}
	ctx := c.Request.Context()
	if err := h.services.Cover.SetPosition(ctx, *req.Position); err != nil {
		h.coverError(c, "cover_set_position_failed", err, "target", *req.Position)
		return
	}
	h.respondWithStatusAndState(c, statusAccepted, gin.H{"target": *req.Position})
}

// @Summary      Move tilt
// @Tags         cover
// @Accept       json
// @Produce      json
// @Param        body  body   SetTiltRequest  true  "Target tilt"
// @Success      200   {object}  map[string]interface{}
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      409   {object}  map[string]string
// @Failure      422   {object}  map[string]string
// @Failure      500   {object}  map[string]string
// @Router       /api/v1/cover/tilt [post]
// @Security     BearerAuth
func (h *Handler) setTilt(c *gin.Context) {
	var req tiltRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
		return
	}
	ctx := c.Request.Context()
	if err := h.services.Cover.SetTilt(ctx, *req.Tilt); err != nil {
		h.coverError(c, "cover_set_tilt_failed", err, "target", *req.Tilt)
		return
	}
	h.respondWithStatusAndState(c, statusAccepted, gin.H{"target": *req.Tilt})
}

// @Summary      Pin known position
// @Description  Overrides the stored estimate without moving the cover. Useful after manual adjustment.
// @Tags         cover
// @Accept       json
// @Produce      json
// @Param        body  body   SetKnownPositionRequest  true  "Known values"
// @Success      200   {object}  map[string]interface{}
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      409   {object}  map[string]string
// @Failure      500   {object}  map[string]string
// @Router       /api/v1/cover/known-position [post]
// @Security     BearerAuth
func (h *Handler) setKnownPosition(c *gin.Context) {
	var req knownPositionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
		return
	}
	if req.Position == nil && req.Tilt == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "position or tilt required"})
		return
	}
	ctx := c.Request.Context()
	params := service.KnownPositionParams{Position: req.Position, Tilt: req.Tilt}
	if err := h.services.Cover.SetKnownPosition(ctx, params); err != nil {
		h.coverError(c, "cover_set_known_position_failed", err)
		return
	}
	h.respondWithStatusAndState(c, statusPinned, gin.H{})
}

// @Summary      Get cover state
// @Tags         cover
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      401  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/cover/state [get]
// @Security     BearerAuth
func (h *Handler) getState(c *gin.Context) {
	ctx := c.Request.Context()
	st, err := h.services.Monitoring.GetState(ctx)
	if err != nil {
		h.coverError(c, "cover_get_state_failed", err)
		return
	}
	c.JSON(http.StatusOK, st)
}
