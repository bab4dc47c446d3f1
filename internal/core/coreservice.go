package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/jo-hoe/gorotate/internal/backend/commands"
	"github.com/jo-hoe/gorotate/internal/backend/commandstructure"
	"github.com/jo-hoe/gorotate/internal/backend/database"
	"github.com/jo-hoe/gorotate/internal/rotation"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/jo-hoe/gorotate/internal/core"

var (
	// ErrNoImage is returned when the session has nothing uploaded
	ErrNoImage = errors.New("no image uploaded")
	// ErrSuperseded is returned to a rotation that was replaced by a newer
	// request or a new upload before its result could be stored
	ErrSuperseded = errors.New("rotation superseded by a newer request")
)

// rotationJob tracks the single in-flight rotation of one slot.
// angle and carry are written by the owning goroutine before done is closed
// and may only be read by others after receiving from done.
type rotationJob struct {
	cancel    context.CancelFunc
	done      chan struct{}
	discarded bool // set under CoreService.mu when the slot was replaced
	angle     rotation.Angle
	carry     rotation.Angle
}

type CoreService struct {
	config          *ServiceConfig
	databaseService database.DatabaseService
	transform       *rotation.Transform
	uploadPipeline  *commandstructure.CommandInvoker
	previewPipeline *commandstructure.CommandInvoker
	metrics         *metrics
	tracer          trace.Tracer

	mu       sync.Mutex
	inflight map[string]*rotationJob
	janitor  sync.WaitGroup
}

// NewCoreService opens the configured database and builds the command pipelines
func NewCoreService(ctx context.Context, config *ServiceConfig) (*CoreService, error) {
	databaseService, err := database.NewDatabase(ctx, config.Database.Type, config.Database.ConnectionString, config.Session.TTL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	slog.Info("database initialized successfully", "type", config.Database.Type)

	service, err := NewCoreServiceWithDatabase(config, databaseService)
	if err != nil {
		_ = databaseService.Close()
		return nil, err
	}
	return service, nil
}

// NewCoreServiceWithDatabase builds a service around an already prepared database
func NewCoreServiceWithDatabase(config *ServiceConfig, databaseService database.DatabaseService) (*CoreService, error) {
	uploadPipeline, err := commandstructure.BuildInvoker(commandstructure.DefaultRegistry, toCommandConfigs(config.UploadCommands))
	if err != nil {
		return nil, fmt.Errorf("failed to build upload pipeline: %w", err)
	}
	previewPipeline, err := commandstructure.BuildInvoker(commandstructure.DefaultRegistry, toCommandConfigs(config.PreviewCommands))
	if err != nil {
		return nil, fmt.Errorf("failed to build preview pipeline: %w", err)
	}

	transform := rotation.NewTransform(
		rotation.WithJPEGQuality(config.Rotation.JPEGQuality),
		rotation.WithSVGFallbackSize(config.Rotation.SVGFallbackWidth, config.Rotation.SVGFallbackHeight),
		rotation.WithMaxPixels(config.Rotation.MaxPixels),
	)
	// thumbnails must decode SVGs and oversized images the same way rotation does
	uploadPipeline.UseCodec(transform.Codec())
	previewPipeline.UseCodec(transform.Codec())

	tracer := otel.Tracer(tracerName)
	return &CoreService{
		config:          config,
		databaseService: databaseService,
		transform:       transform,
		uploadPipeline:  uploadPipeline,
		previewPipeline: previewPipeline,
		metrics:         newMetrics(),
		tracer:          tracer,
		inflight:        make(map[string]*rotationJob),
	}, nil
}

// AddImage reads, validates and stores a new image, replacing whatever the
// session held before. Invalid uploads leave the existing slot untouched.
func (service *CoreService) AddImage(ctx context.Context, sessionID, filename string, data io.Reader, declaredType string) (*database.Image, error) {
	buf, err := rotation.ReadImage(ctx, data, declaredType, service.config.Rotation.MaxUploadBytes)
	if err != nil {
		service.metrics.uploadsTotal.WithLabelValues(mediaTypeLabel(declaredType), outcomeFailure).Inc()
		return nil, err
	}
	// browsers derive the declared type from the file extension, the content is authoritative
	if detected := rotation.DetectMediaType(buf.Data); rotation.IsSupported(detected) {
		buf.MediaType = detected
	}

	if _, err := service.transform.Inspect(ctx, buf); err != nil {
		service.metrics.uploadsTotal.WithLabelValues(mediaTypeLabel(buf.MediaType), outcomeFailure).Inc()
		return nil, err
	}

	processed, err := service.uploadPipeline.Execute(ctx, buf)
	if err != nil {
		service.metrics.uploadsTotal.WithLabelValues(mediaTypeLabel(buf.MediaType), outcomeFailure).Inc()
		return nil, fmt.Errorf("upload pipeline failed: %w", err)
	}
	buf = processed
	dims, err := service.transform.Inspect(ctx, buf)
	if err != nil {
		service.metrics.uploadsTotal.WithLabelValues(mediaTypeLabel(buf.MediaType), outcomeFailure).Inc()
		return nil, err
	}

	// a rotation of the previous image must not land on the new one
	service.discardInflight(sessionID)

	image := &database.Image{
		SessionID: sessionID,
		Data:      buf.Data,
		MediaType: buf.MediaType,
		Filename:  filepath.Base(filename),
		Width:     dims.Width,
		Height:    dims.Height,
	}
	version, err := service.databaseService.SaveImage(ctx, image)
	if err != nil {
		service.metrics.uploadsTotal.WithLabelValues(mediaTypeLabel(buf.MediaType), outcomeFailure).Inc()
		return nil, fmt.Errorf("failed to store image: %w", err)
	}
	image.Version = version

	service.metrics.uploadsTotal.WithLabelValues(mediaTypeLabel(buf.MediaType), outcomeSuccess).Inc()
	slog.Info("CoreService: image uploaded",
		"media_type", image.MediaType,
		"width", image.Width,
		"height", image.Height,
		"size_bytes", len(image.Data))
	return image, nil
}

// Rotate turns the session's image clockwise by angle. A newer call for the
// same session cancels this one; its angle is then folded into the newer call
// so that no requested turn is lost. Failures are recorded on the slot and
// leave the stored image unchanged.
func (service *CoreService) Rotate(ctx context.Context, sessionID string, angle rotation.Angle) (*database.Image, error) {
	ctx, span := service.tracer.Start(ctx, "core.Rotate", trace.WithAttributes(
		attribute.Int("rotation.requested_angle", int(angle)),
	))
	defer span.End()

	if !angle.Valid() {
		err := fmt.Errorf("%w: %d", rotation.ErrUnsupportedAngle, int(angle))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	jobCtx, job, prev := service.beginRotation(ctx, sessionID, angle)
	defer service.endRotation(sessionID, job)

	if prev != nil {
		service.metrics.supersededTotal.Inc()
		<-prev.done
		job.angle = job.angle.Add(prev.carry)
	}
	span.SetAttributes(attribute.Int("rotation.effective_angle", int(job.angle)))

	service.metrics.activeRotations.Inc()
	defer service.metrics.activeRotations.Dec()

	start := time.Now()
	image, mediaType, err := service.rotate(jobCtx, ctx, sessionID, job)
	elapsed := time.Since(start).Seconds()

	switch {
	case err == nil:
		service.metrics.observeRotation(int(job.angle), mediaType, outcomeSuccess, elapsed)
	case errors.Is(err, ErrSuperseded):
		service.metrics.observeRotation(int(job.angle), mediaType, outcomeSuperseded, elapsed)
		span.SetAttributes(attribute.Bool("rotation.superseded", true))
	default:
		service.metrics.observeRotation(int(job.angle), mediaType, outcomeFailure, elapsed)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return image, err
}

func (service *CoreService) beginRotation(ctx context.Context, sessionID string, angle rotation.Angle) (context.Context, *rotationJob, *rotationJob) {
	jobCtx, cancel := context.WithCancel(ctx)
	job := &rotationJob{cancel: cancel, done: make(chan struct{}), angle: angle}

	service.mu.Lock()
	defer service.mu.Unlock()
	prev := service.inflight[sessionID]
	if prev != nil {
		prev.cancel()
	}
	service.inflight[sessionID] = job
	return jobCtx, job, prev
}

func (service *CoreService) endRotation(sessionID string, job *rotationJob) {
	service.mu.Lock()
	if service.inflight[sessionID] == job {
		delete(service.inflight, sessionID)
	}
	if job.discarded {
		job.carry = 0
	}
	service.mu.Unlock()

	job.cancel()
	close(job.done)
}

// discardInflight cancels the slot's rotation without letting its angle carry over
func (service *CoreService) discardInflight(sessionID string) {
	service.mu.Lock()
	defer service.mu.Unlock()
	if job := service.inflight[sessionID]; job != nil {
		job.discarded = true
		job.cancel()
		delete(service.inflight, sessionID)
	}
}

// rotate does the work of one rotation. jobCtx is cancelled on supersede,
// ctx only when the caller goes away.
// The returned media type is the one of the stored image, for metrics.
func (service *CoreService) rotate(jobCtx, ctx context.Context, sessionID string, job *rotationJob) (*database.Image, string, error) {
	mediaType := ""
	superseded := func() (*database.Image, string, error) {
		job.carry = job.angle
		slog.Debug("CoreService: rotation superseded", "angle", int(job.angle))
		return nil, mediaType, ErrSuperseded
	}

	current, err := service.databaseService.GetImage(jobCtx, sessionID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, mediaType, ErrNoImage
	}
	if err != nil {
		if jobCtx.Err() != nil && ctx.Err() == nil {
			return superseded()
		}
		return nil, mediaType, fmt.Errorf("failed to load image: %w", err)
	}
	mediaType = current.MediaType

	result, err := service.transform.Rotate(jobCtx,
		rotation.ImageBuffer{Data: current.Data, MediaType: current.MediaType}, job.angle)
	if err != nil {
		if jobCtx.Err() != nil && ctx.Err() == nil {
			return superseded()
		}
		service.recordFailure(ctx, sessionID, err)
		return nil, mediaType, err
	}

	if jobCtx.Err() != nil {
		if ctx.Err() == nil {
			return superseded()
		}
		return nil, mediaType, ctx.Err()
	}

	dims := rotation.Dimensions{Width: current.Width, Height: current.Height}.Rotated(job.angle)
	next := *current
	next.Data = result.Data
	next.MediaType = result.MediaType
	next.Width, next.Height = dims.Width, dims.Height
	next.Rotation = int(rotation.Angle(current.Rotation).Add(job.angle))
	next.LastError = ""

	// past this point the write completes even if a newer request arrives
	version, err := service.databaseService.SaveImageIfVersion(context.WithoutCancel(jobCtx), &next, current.Version)
	if errors.Is(err, database.ErrVersionConflict) || errors.Is(err, database.ErrNotFound) {
		slog.Debug("CoreService: slot changed during rotation, result dropped", "angle", int(job.angle))
		return nil, mediaType, ErrSuperseded
	}
	if err != nil {
		service.recordFailure(ctx, sessionID, err)
		return nil, mediaType, fmt.Errorf("failed to store rotated image: %w", err)
	}
	next.Version = version
	next.UpdatedAt = time.Now().UTC()

	slog.Info("CoreService: image rotated",
		"angle", int(job.angle),
		"media_type", next.MediaType,
		"width", next.Width,
		"height", next.Height)
	return &next, mediaType, nil
}

func (service *CoreService) recordFailure(ctx context.Context, sessionID string, cause error) {
	slog.Error("CoreService: rotation failed", "error", cause)
	if err := service.databaseService.SetLastError(context.WithoutCancel(ctx), sessionID, UserMessage(cause)); err != nil && !errors.Is(err, database.ErrNotFound) {
		slog.Error("CoreService: failed to record rotation error", "error", err)
	}
}

// RotateBuffer rotates an image that is not stored in any slot
func (service *CoreService) RotateBuffer(ctx context.Context, buf rotation.ImageBuffer, angle rotation.Angle) (rotation.ImageBuffer, rotation.Dimensions, error) {
	start := time.Now()
	result, err := service.transform.Rotate(ctx, buf, angle)
	if err != nil {
		service.metrics.observeRotation(int(angle), buf.MediaType, outcomeFailure, time.Since(start).Seconds())
		return rotation.ImageBuffer{}, rotation.Dimensions{}, err
	}
	service.metrics.observeRotation(int(angle), result.MediaType, outcomeSuccess, time.Since(start).Seconds())

	dims, err := service.transform.Inspect(ctx, result)
	if err != nil {
		return rotation.ImageBuffer{}, rotation.Dimensions{}, err
	}
	return result, dims, nil
}

// GetImage returns the session's current image
func (service *CoreService) GetImage(ctx context.Context, sessionID string) (*database.Image, error) {
	image, err := service.databaseService.GetImage(ctx, sessionID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrNoImage
	}
	return image, err
}

// Preview runs the preview pipeline over the session's current image
func (service *CoreService) Preview(ctx context.Context, sessionID string) (rotation.ImageBuffer, error) {
	image, err := service.GetImage(ctx, sessionID)
	if err != nil {
		return rotation.ImageBuffer{}, err
	}
	return service.previewPipeline.Execute(ctx, rotation.ImageBuffer{Data: image.Data, MediaType: image.MediaType})
}

// DeleteImage clears the session's slot
func (service *CoreService) DeleteImage(ctx context.Context, sessionID string) error {
	service.discardInflight(sessionID)
	return service.databaseService.DeleteImage(ctx, sessionID)
}

// CleanupExpired removes slots that were not written within the session TTL
func (service *CoreService) CleanupExpired(ctx context.Context) (int64, error) {
	deleted, err := service.databaseService.DeleteExpired(ctx, time.Now().Add(-service.config.Session.TTL))
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		service.metrics.expiredSlotsTotal.Add(float64(deleted))
		slog.Info("CoreService: expired image slots removed", "count", deleted)
	}
	return deleted, nil
}

// StartJanitor runs CleanupExpired every cleanup interval until ctx is done
func (service *CoreService) StartJanitor(ctx context.Context) {
	interval := service.config.Session.CleanupInterval
	service.janitor.Add(1)
	go func() {
		defer service.janitor.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := service.CleanupExpired(ctx); err != nil && ctx.Err() == nil {
					slog.Error("CoreService: failed to remove expired slots", "error", err)
				}
			}
		}
	}()
}

// DatabaseReady reports whether the backing store is reachable
func (service *CoreService) DatabaseReady(ctx context.Context) bool {
	return service.databaseService.DoesDatabaseExist(ctx)
}

// MetricsHandler exposes the service metrics in the Prometheus text format
func (service *CoreService) MetricsHandler() http.Handler {
	return service.metrics.handler()
}

// Close cancels in-flight rotations, waits for the janitor and closes the database.
// The janitor context must be cancelled before calling Close.
func (service *CoreService) Close() error {
	service.mu.Lock()
	for sessionID, job := range service.inflight {
		job.discarded = true
		job.cancel()
		delete(service.inflight, sessionID)
	}
	service.mu.Unlock()

	service.janitor.Wait()
	return service.databaseService.Close()
}

// DownloadFilename derives the name offered for download from the uploaded
// file name and the actual media type of the stored bytes.
func DownloadFilename(image *database.Image) string {
	base := strings.TrimSuffix(filepath.Base(image.Filename), filepath.Ext(image.Filename))
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		case r == ' ' || r == '.':
			return '_'
		}
		return -1
	}, base)
	if base == "" || base == "_" {
		base = "image"
	}
	return base + rotation.Extension(image.MediaType)
}

// UserMessage turns an error into a short message that is safe to show in the UI
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNoImage):
		return "Upload an image first."
	case errors.Is(err, rotation.ErrReadFailure):
		return "The file could not be read."
	case errors.Is(err, rotation.ErrUnsupportedMediaType) && errors.Is(err, rotation.ErrEncodeFailure):
		return "Images of this type can be viewed but not rotated."
	case errors.Is(err, rotation.ErrUnsupportedMediaType):
		return "This file type is not supported."
	case errors.Is(err, rotation.ErrImageTooLarge):
		return "The image has too many pixels."
	case errors.Is(err, rotation.ErrDecodeFailure):
		return "The image could not be decoded."
	case errors.Is(err, rotation.ErrEncodeFailure):
		return "The rotated image could not be encoded."
	case errors.Is(err, rotation.ErrUnsupportedAngle):
		return "Only quarter turns are supported."
	}
	return "Something went wrong."
}
