package commandstructure

import (
	"context"

	"github.com/jo-hoe/gorotate/internal/rotation"
)

// Command is a single step of an image pipeline.
// Implementations must not modify the input buffer.
type Command interface {
	Name() string
	Execute(ctx context.Context, buf rotation.ImageBuffer) (rotation.ImageBuffer, error)
}

// CommandFactory is a function type that creates a command from configuration parameters
type CommandFactory func(params map[string]any) (Command, error)

// CommandConfig represents a command configuration with name and parameters
type CommandConfig struct {
	Name   string
	Params map[string]any
}
