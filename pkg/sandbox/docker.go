package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const containerWorkdir = "/workspace"

// DockerConfig configures a DockerRunner.
type DockerConfig struct {
	Host          string
	Image         string
	MemoryLimitMB int64
	CPUShares     int64
	Logger        zerolog.Logger
}

// DockerRunner runs each candidate in a new, network-less container with
// the scratch directory bind-mounted at /workspace.
type DockerRunner struct {
	client *client.Client
	cfg    DockerConfig
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewDockerRunner constructs a Docker backed runner.
func NewDockerRunner(cfg DockerConfig) (*DockerRunner, error) {
	if cfg.Image == "" {
		return nil, errors.New("docker image is required")
	}

	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if cfg.Host != "" {
		opts = append(opts, client.WithHost(cfg.Host))
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}

	logger := cfg.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.Nop()
	}

	return &DockerRunner{
		client: cli,
		cfg:    cfg,
		tracer: otel.Tracer("github.com/soypete/promptbench/pkg/sandbox"),
		logger: logger,
	}, nil
}

func (r *DockerRunner) Name() string {
	return "docker"
}

// Ping checks that the daemon is reachable.
func (r *DockerRunner) Ping(ctx context.Context) error {
	if _, err := r.client.Ping(ctx); err != nil {
		return fmt.Errorf("ping docker daemon: %w", err)
	}
	return nil
}

// Run executes driver.py inside a fresh container.
func (r *DockerRunner) Run(parent context.Context, req Request) (Outcome, error) {
	ctx, span := r.tracer.Start(parent, "sandbox.docker.run", trace.WithAttributes(
		attribute.String("docker.image", r.cfg.Image),
	))
	defer span.End()

	ws, err := newWorkspace(req)
	if err != nil {
		return Outcome{}, err
	}
	defer ws.remove()

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	config := &container.Config{
		Image: r.cfg.Image,
		Cmd: []string{"python", "-I",
			containerWorkdir + "/" + driverFile,
			containerWorkdir + "/" + candidateFile,
			containerWorkdir + "/" + requestFile,
			containerWorkdir + "/" + resultFile,
		},
		WorkingDir:      containerWorkdir,
		AttachStdout:    true,
		AttachStderr:    true,
		NetworkDisabled: true,
	}

	hostCfg := &container.HostConfig{
		NetworkMode: "none",
		Resources: container.Resources{
			Memory:    r.cfg.MemoryLimitMB * 1024 * 1024,
			CPUShares: r.cfg.CPUShares,
		},
		Mounts: []mount.Mount{{
			Type:   mount.TypeBind,
			Source: ws.dir,
			Target: containerWorkdir,
		}},
	}

	start := time.Now()

	resp, err := r.client.ContainerCreate(ctx, config, hostCfg, &network.NetworkingConfig{}, nil, "")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Outcome{}, fmt.Errorf("container create: %w", err)
	}

	containerID := resp.ID
	defer func() {
		removeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.client.ContainerRemove(removeCtx, containerID, container.RemoveOptions{Force: true}); err != nil {
			r.logger.Error().Err(err).Str("container_id", containerID).Msg("failed to remove container")
		}
	}()

	if err := r.client.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Outcome{}, fmt.Errorf("container start: %w", err)
	}

	statusCh, errCh := r.client.ContainerWait(ctx, containerID, container.WaitConditionNextExit)

	exitCode := 0
	var waitErr error
	select {
	case err := <-errCh:
		waitErr = err
	case status := <-statusCh:
		exitCode = int(status.StatusCode)
	case <-ctx.Done():
		waitErr = ctx.Err()
	}
	duration := time.Since(start)

	if waitErr != nil {
		if req.Timeout > 0 && errors.Is(ctx.Err(), context.DeadlineExceeded) && parent.Err() == nil {
			killCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := r.client.ContainerKill(killCtx, containerID, "KILL"); err != nil {
				r.logger.Error().Err(err).Str("container_id", containerID).Msg("failed to kill timed out container")
			}
			span.SetStatus(codes.Error, "execution timed out")
			out := timedOut(req.Timeout)
			out.Duration = duration
			return out, nil
		}
		span.RecordError(waitErr)
		span.SetStatus(codes.Error, waitErr.Error())
		return Outcome{}, fmt.Errorf("container wait: %w", waitErr)
	}

	var stdout, stderr string
	logReader, err := r.client.ContainerLogs(parent, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err == nil {
		defer logReader.Close()
		stdout, stderr, err = splitDockerLogs(logReader)
		if err != nil {
			r.logger.Error().Err(err).Str("container_id", containerID).Msg("failed to read container logs")
		}
	} else {
		r.logger.Error().Err(err).Str("container_id", containerID).Msg("failed to fetch container logs")
	}

	out := ws.outcome(exitCode, stdout, stderr)
	out.Duration = duration
	span.SetAttributes(attribute.String("sandbox.status", string(out.Status)))
	return out, nil
}

func splitDockerLogs(reader io.Reader) (string, string, error) {
	var stdoutBuf, stderrBuf bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdoutBuf, &stderrBuf, reader); err != nil {
		return "", "", err
	}
	return stdoutBuf.String(), stderrBuf.String(), nil
}

// Close shuts down the runner's underlying client.
func (r *DockerRunner) Close() error {
	if r.client == nil {
		return nil
	}
	return r.client.Close()
}
