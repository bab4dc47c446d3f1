package commandstructure

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jo-hoe/gorotate/internal/rotation"
)

// CommandInvoker runs a fixed list of commands in order
type CommandInvoker struct {
	commands []Command
}

// NewCommandInvoker creates an invoker for the given commands
func NewCommandInvoker(commands []Command) *CommandInvoker {
	return &CommandInvoker{commands: commands}
}

// BuildInvoker resolves every config against the registry up front so that
// misconfigured pipelines fail at startup rather than on the first upload.
func BuildInvoker(registry *CommandRegistry, configs []CommandConfig) (*CommandInvoker, error) {
	commands := make([]Command, 0, len(configs))
	for i, config := range configs {
		command, err := registry.Create(config.Name, config.Params)
		if err != nil {
			return nil, fmt.Errorf("failed to create command at index %d (%s): %w", i, config.Name, err)
		}
		commands = append(commands, command)
	}
	return NewCommandInvoker(commands), nil
}

// CodecUser is implemented by commands that decode images themselves and
// should share the service's codec settings
type CodecUser interface {
	UseCodec(codec *rotation.Codec)
}

// UseCodec hands codec to every command that decodes on its own
func (ci *CommandInvoker) UseCodec(codec *rotation.Codec) {
	if codec == nil {
		return
	}
	for _, command := range ci.commands {
		if user, ok := command.(CodecUser); ok {
			user.UseCodec(codec)
		}
	}
}

// Len returns the number of commands in the pipeline
func (ci *CommandInvoker) Len() int {
	return len(ci.commands)
}

// Execute feeds the buffer through every command. The first failure aborts the
// pipeline; the caller's buffer is never modified.
func (ci *CommandInvoker) Execute(ctx context.Context, buf rotation.ImageBuffer) (rotation.ImageBuffer, error) {
	if len(ci.commands) == 0 {
		return buf, nil
	}

	start := time.Now()
	current := buf
	for i, command := range ci.commands {
		if err := ctx.Err(); err != nil {
			return rotation.ImageBuffer{}, err
		}

		commandStart := time.Now()
		slog.Debug("CommandInvoker: applying command",
			"index", i,
			"command_name", command.Name(),
			"input_size_bytes", current.Len(),
			"media_type", current.MediaType)

		next, err := command.Execute(ctx, current)
		if err != nil {
			slog.Error("CommandInvoker: command failed",
				"index", i,
				"command_name", command.Name(),
				"error", err)
			return rotation.ImageBuffer{}, fmt.Errorf("command %s (index %d) failed: %w", command.Name(), i, err)
		}

		slog.Debug("CommandInvoker: command completed",
			"index", i,
			"command_name", command.Name(),
			"duration_ms", time.Since(commandStart).Milliseconds(),
			"output_size_bytes", next.Len())
		current = next
	}

	slog.Debug("CommandInvoker: pipeline completed",
		"command_count", len(ci.commands),
		"total_duration_ms", time.Since(start).Milliseconds(),
		"final_size_bytes", current.Len())
	return current, nil
}

// ExecuteCommands builds the configured commands from DefaultRegistry and runs them
func ExecuteCommands(ctx context.Context, buf rotation.ImageBuffer, configs []CommandConfig) (rotation.ImageBuffer, error) {
	invoker, err := BuildInvoker(DefaultRegistry, configs)
	if err != nil {
		return rotation.ImageBuffer{}, err
	}
	return invoker.Execute(ctx, buf)
}
