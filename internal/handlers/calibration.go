package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Sese-Schneider/ha-cover-time-based-sub000/internal/service"
)

const (
	statusCalibrating = "calibrating"
	statusFinished    = "finished"
	statusCancelled   = "cancelled"
)

// Request DTO for starting a calibration run.
type calibrationStartRequest struct {
	Attribute string `json:"attribute" binding:"required"`
	TimeoutS  int    `json:"timeout_s,omitempty"`
	Opening   bool   `json:"opening,omitempty"`
}

// Request DTO for ending a calibration run.
type calibrationStopRequest struct {
	Cancel bool `json:"cancel,omitempty"`
}

// StartCalibrationRequest is an exported model for Swagger docs of the start payload.
type StartCalibrationRequest struct {
	// Attribute to measure. Allowed: travel_open, travel_close, tilt_open,
	// tilt_close, travel_overhead, tilt_overhead, min_movement
	Attribute string `json:"attribute" example:"travel_open"`
	// Timeout in seconds; 0 uses the default of 300
	TimeoutS int `json:"timeout_s,omitempty" example:"300"`
	// Direction for overhead and min_movement runs
	Opening bool `json:"opening,omitempty" example:"true"`
}

// @Summary      Start calibration
// @Description  Measures a timing attribute by driving the physical cover. Simple runs (travel_open etc.) end on the stop call; stepped and pulse runs end on the stop call or the timeout.
// @Tags         calibration
// @Accept       json
// @Produce      json
// @Param        body  body   StartCalibrationRequest  true  "Attribute to measure"
// @Success      200   {object}  map[string]interface{}
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      409   {object}  map[string]string
// @Failure      422   {object}  map[string]string
// @Failure      500   {object}  map[string]string
// @Router       /api/v1/calibration/start [post]
// @Security     BearerAuth
func (h *Handler) startCalibration(c *gin.Context) {
	var req calibrationStartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
		return
	}
	ctx := c.Request.Context()
	params := service.CalibrationParams{
		Attribute: req.Attribute,
		Timeout:   time.Duration(req.TimeoutS) * time.Second,
		Opening:   req.Opening,
	}
	if err := h.services.Calibration.StartCalibration(ctx, params); err != nil {
		h.coverError(c, "calibration_start_failed", err, "attribute", req.Attribute)
		return
	}
	h.respondWithStatusAndState(c, statusCalibrating, gin.H{"attribute": req.Attribute})
}

// @Summary      Stop calibration
// @Description  Ends the active run. With cancel=false the measured value is applied; with cancel=true it is discarded.
// @Tags         calibration
// @Accept       json
// @Produce      json
// @Param        body  body   calibrationStopRequest  false  "Stop options"
// @Success      200   {object}  map[string]interface{}
// @Failure      401   {object}  map[string]string
// @Failure      422   {object}  map[string]string
// @Failure      500   {object}  map[string]string
// @Router       /api/v1/calibration/stop [post]
// @Security     BearerAuth
func (h *Handler) stopCalibration(c *gin.Context) {
	var req calibrationStopRequest
	if c.Request.Body != nil && c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
			return
		}
	}
	ctx := c.Request.Context()
	if err := h.services.Calibration.StopCalibration(ctx, req.Cancel); err != nil {
		h.coverError(c, "calibration_stop_failed", err)
		return
	}
	status := statusFinished
	if req.Cancel {
		status = statusCancelled
	}
	h.respondWithStatusAndState(c, status, gin.H{})
}
