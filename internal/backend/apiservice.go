package backend

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jo-hoe/gorotate/internal/core"
	"github.com/jo-hoe/gorotate/internal/rotation"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// base64 inflates payloads by a third; the rest covers the data URL header and JSON
const bodyOverheadBytes = 64 << 10

type APIService struct {
	config      *core.ServiceConfig
	coreService *core.CoreService
}

// RotateRequest carries an image as a data URL. Angle defaults to 90.
type RotateRequest struct {
	Image string `json:"image" validate:"required"`
	Angle *int   `json:"angle" validate:"omitempty,oneof=0 90 180 270"`
}

type RotateResponse struct {
	Image     string `json:"image"`
	MediaType string `json:"mediaType"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}

func NewAPIService(config *core.ServiceConfig, coreService *core.CoreService) *APIService {
	return &APIService{
		config:      config,
		coreService: coreService,
	}
}

func (s *APIService) SetRoutes(e *echo.Echo) {
	e.GET("/probe", s.probeHandler)
	e.GET("/metrics", echo.WrapHandler(s.coreService.MetricsHandler()))

	limit := s.config.Rotation.MaxUploadBytes/3*4 + bodyOverheadBytes
	api := e.Group("/api/v1", middleware.BodyLimit(fmt.Sprintf("%dK", limit/1024+1)))
	api.POST("/rotate", s.rotateHandler)
}

func (s *APIService) probeHandler(ctx echo.Context) error {
	if !s.coreService.DatabaseReady(ctx.Request().Context()) {
		slog.Warn("probeHandler: database not reachable", "status", http.StatusServiceUnavailable)
		return ctx.String(http.StatusServiceUnavailable, "database not reachable")
	}
	return ctx.String(http.StatusOK, "API Service is running")
}

func (s *APIService) rotateHandler(ctx echo.Context) error {
	var request RotateRequest
	if err := ctx.Bind(&request); err != nil {
		slog.Warn("rotateHandler: failed to bind request", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "request body must be JSON")
	}
	if err := ctx.Validate(&request); err != nil {
		slog.Warn("rotateHandler: invalid request", "error", err)
		return err
	}

	degrees := int(rotation.Angle90)
	if request.Angle != nil {
		degrees = *request.Angle
	}
	angle, err := rotation.ParseAngle(degrees)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	input, err := rotation.DecodeDataURL(request.Image)
	if err != nil {
		slog.Warn("rotateHandler: invalid data URL", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, core.UserMessage(err))
	}

	result, dims, err := s.coreService.RotateBuffer(ctx.Request().Context(), input, angle)
	if err != nil {
		status := apiStatusForError(err)
		slog.Warn("rotateHandler: rotation failed", "status", status, "error", err, "media_type", input.MediaType)
		return echo.NewHTTPError(status, core.UserMessage(err))
	}

	return ctx.JSON(http.StatusOK, RotateResponse{
		Image:     rotation.EncodeDataURL(result),
		MediaType: result.MediaType,
		Width:     dims.Width,
		Height:    dims.Height,
	})
}

func apiStatusForError(err error) int {
	switch {
	case errors.Is(err, rotation.ErrEncodeFailure):
		return http.StatusUnprocessableEntity
	case errors.Is(err, rotation.ErrReadFailure),
		errors.Is(err, rotation.ErrDecodeFailure),
		errors.Is(err, rotation.ErrUnsupportedAngle):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
