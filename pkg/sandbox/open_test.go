package sandbox

import (
	"errors"
	"testing"
)

func TestOpenUnknownRuntime(t *testing.T) {
	_, err := Open(Config{Runtime: "firecracker"})
	if !errors.Is(err, ErrUnknownRuntime) {
		t.Errorf("expected ErrUnknownRuntime, got %v", err)
	}
}

func TestOpenLocalMissingInterpreter(t *testing.T) {
	_, err := Open(Config{Runtime: "local", Local: LocalConfig{Python: "definitely-not-a-python-binary"}})
	if !errors.Is(err, ErrNoInterpreter) {
		t.Errorf("expected ErrNoInterpreter, got %v", err)
	}
}

func TestOpenDockerRequiresImage(t *testing.T) {
	if _, err := Open(Config{Runtime: "docker"}); err == nil {
		t.Error("expected error without image")
	}
}
