package sandbox

import (
	"errors"
	"fmt"
)

// ErrUnknownRuntime is returned by Open for a runtime name it does not know.
var ErrUnknownRuntime = errors.New("unknown runtime")

// Config selects and configures a Runner.
type Config struct {
	// Runtime is "local" or "docker".
	Runtime string
	Local   LocalConfig
	Docker  DockerConfig
}

// Open creates the Runner named by cfg.Runtime.
func Open(cfg Config) (Runner, error) {
	switch cfg.Runtime {
	case "", "local":
		r, err := NewLocalRunner(cfg.Local)
		if err != nil {
			return nil, err
		}
		return r, nil
	case "docker":
		r, err := NewDockerRunner(cfg.Docker)
		if err != nil {
			return nil, err
		}
		return r, nil
	default:
		return nil, fmt.Errorf("%w: %s (supported: local, docker)", ErrUnknownRuntime, cfg.Runtime)
	}
}
