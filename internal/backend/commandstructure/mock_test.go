package commandstructure

import (
	"context"

	"github.com/jo-hoe/gorotate/internal/rotation"
)

// mockCommand is a configurable Command used by the tests in this package
type mockCommand struct {
	name        string
	executeFunc func(rotation.ImageBuffer) (rotation.ImageBuffer, error)
}

func (m *mockCommand) Name() string {
	return m.name
}

func (m *mockCommand) Execute(_ context.Context, buf rotation.ImageBuffer) (rotation.ImageBuffer, error) {
	if m.executeFunc != nil {
		return m.executeFunc(buf)
	}
	return buf, nil
}

func newMockCommand(name string) *mockCommand {
	return &mockCommand{name: name}
}

func newMockCommandWithError(name string, err error) *mockCommand {
	return &mockCommand{
		name: name,
		executeFunc: func(rotation.ImageBuffer) (rotation.ImageBuffer, error) {
			return rotation.ImageBuffer{}, err
		},
	}
}

// appendingCommand returns a command that appends suffix to the payload
func appendingCommand(name, suffix string) *mockCommand {
	return &mockCommand{
		name: name,
		executeFunc: func(buf rotation.ImageBuffer) (rotation.ImageBuffer, error) {
			data := make([]byte, 0, len(buf.Data)+len(suffix))
			data = append(data, buf.Data...)
			data = append(data, suffix...)
			return rotation.ImageBuffer{Data: data, MediaType: buf.MediaType}, nil
		},
	}
}
