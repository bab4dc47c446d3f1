package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jo-hoe/gorotate/internal/backend/commandstructure"
	"github.com/jo-hoe/gorotate/internal/rotation"
)

// RotateParams represents typed parameters for the rotate command
type RotateParams struct {
	Angle       rotation.Angle
	JPEGQuality int
}

// NewRotateParamsFromMap creates RotateParams from a generic map
func NewRotateParamsFromMap(params map[string]any) (*RotateParams, error) {
	if err := commandstructure.RejectUnknownParams(params, "angle", "jpegQuality"); err != nil {
		return nil, err
	}

	degrees, err := commandstructure.IntParam(params, "angle", int(rotation.Angle90))
	if err != nil {
		return nil, err
	}
	angle, err := rotation.ParseAngle(degrees)
	if err != nil {
		return nil, err
	}

	quality, err := commandstructure.IntParamInRange(params, "jpegQuality", rotation.DefaultJPEGQuality, 1, 100)
	if err != nil {
		return nil, err
	}

	return &RotateParams{
		Angle:       angle,
		JPEGQuality: quality,
	}, nil
}

// RotateCommand turns the image clockwise by a quarter-turn multiple,
// keeping its original encoding.
type RotateCommand struct {
	name      string
	params    *RotateParams
	transform *rotation.Transform
}

// NewRotateCommand creates a new rotate command from configuration parameters
func NewRotateCommand(params map[string]any) (commandstructure.Command, error) {
	typedParams, err := NewRotateParamsFromMap(params)
	if err != nil {
		return nil, err
	}

	return &RotateCommand{
		name:      "RotateCommand",
		params:    typedParams,
		transform: rotation.NewTransform(rotation.WithJPEGQuality(typedParams.JPEGQuality)),
	}, nil
}

// Name returns the command name
func (c *RotateCommand) Name() string {
	return c.name
}

// Execute rotates the buffer by the configured angle
func (c *RotateCommand) Execute(ctx context.Context, buf rotation.ImageBuffer) (rotation.ImageBuffer, error) {
	slog.Debug("RotateCommand: rotating image",
		"angle", int(c.params.Angle),
		"media_type", buf.MediaType,
		"input_size_bytes", buf.Len())

	result, err := c.transform.Rotate(ctx, buf, c.params.Angle)
	if err != nil {
		return rotation.ImageBuffer{}, fmt.Errorf("failed to rotate image: %w", err)
	}
	return result, nil
}

// GetParams returns the typed parameters
func (c *RotateCommand) GetParams() *RotateParams {
	return c.params
}

func init() {
	commandstructure.DefaultRegistry.MustRegister("RotateCommand", NewRotateCommand)
}
