package frontend

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/jo-hoe/gorotate/internal/backend/database"
	"github.com/jo-hoe/gorotate/internal/core"
	"github.com/jo-hoe/gorotate/internal/rotation"
	"github.com/labstack/echo/v4"
)

const (
	MainPageName      = "index.html"
	imagePanelName    = "image-panel"
	sessionKey        = "sessionID"
	sessionCookiePath = "/"
)

type FrontendService struct {
	coreService *core.CoreService
	config      *core.ServiceConfig
}

// imagePanel is the view model of the current-image area of the page
type imagePanel struct {
	HasImage     bool
	Filename     string
	MediaType    string
	Width        int
	Height       int
	Rotation     int
	Version      int64
	DownloadName string
	Error        string
}

func NewFrontendService(config *core.ServiceConfig, coreService *core.CoreService) *FrontendService {
	return &FrontendService{
		coreService: coreService,
		config:      config,
	}
}

// rootRedirectHandler redirects root path to index.html
func (service *FrontendService) rootRedirectHandler(ctx echo.Context) error {
	return ctx.Redirect(http.StatusMovedPermanently, "/"+MainPageName)
}

func (service *FrontendService) SetRoutes(e *echo.Echo) {
	e.Renderer = newTemplate()

	e.GET("/", service.rootRedirectHandler)
	e.GET("/icon.svg", service.iconHandler)

	pages := e.Group("", service.sessionMiddleware)
	pages.GET("/"+MainPageName, service.indexHandler)
	pages.POST("/htmx/uploadImage", service.htmxUploadImageHandler)
	pages.POST("/htmx/rotate", service.htmxRotateHandler)
	pages.GET("/htmx/image", service.htmxImageHandler)
	pages.DELETE("/htmx/image", service.htmxDeleteImageHandler)
	pages.GET("/image/preview", service.previewHandler)
	pages.GET("/image/download", service.downloadHandler)
}

// sessionMiddleware assigns every browser its own image slot via a cookie
func (service *FrontendService) sessionMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		cookieName := service.config.Session.CookieName
		id := database.NewSessionID()
		if cookie, err := ctx.Cookie(cookieName); err == nil && database.IsValidSessionID(cookie.Value) {
			id = cookie.Value
		}

		// refreshed on every request so that active sessions do not expire
		ctx.SetCookie(&http.Cookie{
			Name:     cookieName,
			Value:    id,
			Path:     sessionCookiePath,
			MaxAge:   int(service.config.Session.TTL.Seconds()),
			HttpOnly: true,
			SameSite: http.SameSiteStrictMode,
		})
		ctx.Set(sessionKey, id)
		return next(ctx)
	}
}

func sessionID(ctx echo.Context) string {
	id, _ := ctx.Get(sessionKey).(string)
	return id
}

func (service *FrontendService) indexHandler(ctx echo.Context) error {
	panel, err := service.currentPanel(ctx)
	if err != nil {
		slog.Error("indexHandler: failed to load current image", "status", http.StatusInternalServerError, "error", err)
		return ctx.String(http.StatusInternalServerError, "Failed to load current image")
	}
	service.setNoCache(ctx)
	return ctx.Render(http.StatusOK, MainPageName, panel)
}

func (service *FrontendService) htmxUploadImageHandler(ctx echo.Context) error {
	file, err := ctx.FormFile("image")
	if err != nil {
		slog.Warn("htmxUploadImageHandler: failed to get uploaded file",
			"status", http.StatusBadRequest, "error", err)
		return service.renderPanelError(ctx, http.StatusBadRequest, "Select an image file to upload.")
	}

	src, err := file.Open()
	if err != nil {
		slog.Error("htmxUploadImageHandler: failed to open uploaded file",
			"status", http.StatusInternalServerError, "error", err, "filename", file.Filename)
		return service.renderPanelError(ctx, http.StatusInternalServerError, "Failed to open uploaded file.")
	}
	defer func() {
		if cerr := src.Close(); cerr != nil {
			slog.Error("htmxUploadImageHandler: failed to close uploaded file reader", "error", cerr, "filename", file.Filename)
		}
	}()

	image, err := service.coreService.AddImage(ctx.Request().Context(), sessionID(ctx), file.Filename, src, file.Header.Get(echo.HeaderContentType))
	if err != nil {
		status := statusForError(err)
		slog.Warn("htmxUploadImageHandler: failed to add uploaded image",
			"status", status, "error", err, "filename", file.Filename)
		return service.renderPanelError(ctx, status, core.UserMessage(err))
	}

	service.setNoCache(ctx)
	return ctx.Render(http.StatusOK, imagePanelName, panelFor(image))
}

func (service *FrontendService) htmxRotateHandler(ctx echo.Context) error {
	angle, err := parseAngle(ctx.FormValue("angle"))
	if err != nil {
		slog.Warn("htmxRotateHandler: invalid angle", "status", http.StatusBadRequest, "error", err)
		return service.renderPanelError(ctx, http.StatusBadRequest, core.UserMessage(err))
	}

	image, err := service.coreService.Rotate(ctx.Request().Context(), sessionID(ctx), angle)
	switch {
	case errors.Is(err, core.ErrSuperseded):
		// the newer request renders the result
		return ctx.NoContent(http.StatusNoContent)
	case err != nil:
		status := statusForError(err)
		slog.Warn("htmxRotateHandler: rotation failed", "status", status, "error", err)
		return service.renderPanelError(ctx, status, core.UserMessage(err))
	}

	service.setNoCache(ctx)
	return ctx.Render(http.StatusOK, imagePanelName, panelFor(image))
}

func (service *FrontendService) htmxImageHandler(ctx echo.Context) error {
	panel, err := service.currentPanel(ctx)
	if err != nil {
		slog.Error("htmxImageHandler: failed to load current image", "status", http.StatusInternalServerError, "error", err)
		return service.renderPanelError(ctx, http.StatusInternalServerError, core.UserMessage(err))
	}
	service.setNoCache(ctx)
	return ctx.Render(http.StatusOK, imagePanelName, panel)
}

func (service *FrontendService) htmxDeleteImageHandler(ctx echo.Context) error {
	if err := service.coreService.DeleteImage(ctx.Request().Context(), sessionID(ctx)); err != nil {
		slog.Error("htmxDeleteImageHandler: failed to delete image",
			"status", http.StatusInternalServerError, "error", err)
		return service.renderPanelError(ctx, http.StatusInternalServerError, "Failed to clear the image.")
	}
	service.setNoCache(ctx)
	return ctx.Render(http.StatusOK, imagePanelName, imagePanel{})
}

func (service *FrontendService) previewHandler(ctx echo.Context) error {
	preview, err := service.coreService.Preview(ctx.Request().Context(), sessionID(ctx))
	if err != nil {
		status := statusForError(err)
		slog.Warn("previewHandler: preview not available", "status", status, "error", err)
		return ctx.String(status, core.UserMessage(err))
	}
	service.setNoCache(ctx)
	return ctx.Blob(http.StatusOK, preview.MediaType, preview.Data)
}

func (service *FrontendService) downloadHandler(ctx echo.Context) error {
	image, err := service.coreService.GetImage(ctx.Request().Context(), sessionID(ctx))
	if err != nil {
		status := statusForError(err)
		slog.Warn("downloadHandler: image not available", "status", status, "error", err)
		return ctx.String(status, core.UserMessage(err))
	}

	service.setNoCache(ctx)
	ctx.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", core.DownloadFilename(image)))
	return ctx.Blob(http.StatusOK, image.MediaType, image.Data)
}

func (service *FrontendService) iconHandler(ctx echo.Context) error {
	data, err := assetsFS.ReadFile("views/icon.svg")
	if err != nil {
		slog.Error("iconHandler: failed to read icon.svg", "status", http.StatusInternalServerError, "error", err)
		return ctx.String(http.StatusInternalServerError, "Failed to load icon")
	}
	// Cache for 7 days
	ctx.Response().Header().Set("Cache-Control", "public, max-age=604800, immutable")
	return ctx.Blob(http.StatusOK, rotation.MediaTypeSVG, data)
}

// currentPanel loads the session's slot; an empty slot is not an error
func (service *FrontendService) currentPanel(ctx echo.Context) (imagePanel, error) {
	image, err := service.coreService.GetImage(ctx.Request().Context(), sessionID(ctx))
	if errors.Is(err, core.ErrNoImage) {
		return imagePanel{}, nil
	}
	if err != nil {
		return imagePanel{}, err
	}
	return panelFor(image), nil
}

// renderPanelError shows message above whatever the slot currently holds
func (service *FrontendService) renderPanelError(ctx echo.Context, status int, message string) error {
	panel, err := service.currentPanel(ctx)
	if err != nil {
		slog.Error("renderPanelError: failed to load current image", "error", err)
		panel = imagePanel{}
	}
	panel.Error = message
	service.setNoCache(ctx)
	return ctx.Render(status, imagePanelName, panel)
}

func panelFor(image *database.Image) imagePanel {
	return imagePanel{
		HasImage:     true,
		Filename:     image.Filename,
		MediaType:    image.MediaType,
		Width:        image.Width,
		Height:       image.Height,
		Rotation:     image.Rotation,
		Version:      image.Version,
		DownloadName: core.DownloadFilename(image),
		Error:        image.LastError,
	}
}

func parseAngle(value string) (rotation.Angle, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return rotation.Angle90, nil
	}
	degrees, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", rotation.ErrUnsupportedAngle, value)
	}
	return rotation.ParseAngle(degrees)
}

// statusForError maps service errors onto HTTP status codes
func statusForError(err error) int {
	switch {
	case errors.Is(err, core.ErrNoImage):
		return http.StatusNotFound
	case errors.Is(err, rotation.ErrUnsupportedAngle),
		errors.Is(err, rotation.ErrReadFailure),
		errors.Is(err, rotation.ErrDecodeFailure):
		return http.StatusBadRequest
	case errors.Is(err, rotation.ErrEncodeFailure):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func (service *FrontendService) setNoCache(ctx echo.Context) {
	ctx.Response().Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
	ctx.Response().Header().Set("Pragma", "no-cache")
	ctx.Response().Header().Set("Expires", "0")
}
