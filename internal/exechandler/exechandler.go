// Package exechandler adapts a discovered manifest definition into a
// capability handler that runs as a subprocess per request: the dispatch
// request is written to stdin as JSON and the outcome is read from stdout.
package exechandler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/mattjoyce/switchboard/internal/handler"
	"github.com/mattjoyce/switchboard/internal/log"
	"github.com/mattjoyce/switchboard/internal/manifest"
	"github.com/mattjoyce/switchboard/internal/protocol"
)

const (
	// maxStderrBytes caps the amount of stderr captured from handler execution.
	maxStderrBytes = 64 * 1024

	// terminationGracePeriod is the time we wait after SIGTERM before sending SIGKILL.
	terminationGracePeriod = 5 * time.Second

	// defaultTimeout applies when the manifest declares none.
	defaultTimeout = 60 * time.Second
)

// Handler is an exec-backed handler.Handler.
type Handler struct {
	def    *manifest.Definition
	logger *slog.Logger
}

// New wraps a manifest definition as a Handler.
func New(def *manifest.Definition) *Handler {
	return &Handler{
		def:    def,
		logger: log.WithComponent("exechandler").With("handler", def.Name),
	}
}

// FromDefinitions wraps discovered definitions as catalog-ready handlers.
func FromDefinitions(defs []*manifest.Definition) []handler.Handler {
	out := make([]handler.Handler, 0, len(defs))
	for _, def := range defs {
		out = append(out, New(def))
	}
	return out
}

func (h *Handler) Metadata() handler.Metadata {
	return handler.Metadata{
		Name:       h.def.Name,
		Version:    h.def.Version,
		Capability: h.def.Capability,
		Priority:   h.def.Priority,
		Deprecated: h.def.Deprecated,
	}
}

// CanHandle evaluates the manifest's match predicates against the request
// parameters. Every match key must be present and equal (string compare).
// A manifest without match predicates accepts every request.
func (h *Handler) CanHandle(req *handler.Request) bool {
	for key, want := range h.def.Match {
		got, ok := req.Params[key]
		if !ok {
			return false
		}
		if fmt.Sprintf("%v", got) != want {
			return false
		}
	}
	return true
}

// Execute spawns the entrypoint and maps its protocol response to the
// handler outcome contract: status=ok handles, status=declined falls
// through silently, anything else is a fault.
func (h *Handler) Execute(req *handler.Request) (bool, error) {
	timeout := h.def.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	wireReq := &protocol.Request{
		Protocol:   protocol.Version,
		RequestID:  uuid.NewString(),
		Capability: req.Capability(),
		Params:     req.Params,
		DeadlineAt: time.Now().Add(timeout),
	}

	resp, stderr, err := h.spawn(req.Context(), wireReq, timeout)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return false, fmt.Errorf("handler %q timed out after %v", h.def.Name, timeout)
		}
		if stderr != "" {
			return false, fmt.Errorf("handler %q: %w (stderr: %s)", h.def.Name, err, stderr)
		}
		return false, fmt.Errorf("handler %q: %w", h.def.Name, err)
	}

	for _, entry := range resp.Logs {
		h.logger.Info("handler log", "level", entry.Level, "message", entry.Message)
	}

	switch resp.Status {
	case protocol.StatusOK:
		return true, nil
	case protocol.StatusDeclined:
		return false, nil
	default:
		return false, fmt.Errorf("handler %q: %s", h.def.Name, resp.Error)
	}
}

// spawn runs the entrypoint, writes the request to stdin, and reads the
// response from stdout. Returns the response, stderr output, and any error.
func (h *Handler) spawn(ctx context.Context, req *protocol.Request, timeout time.Duration) (*protocol.Response, string, error) {
	// Create timer for timeout enforcement
	timeoutTimer := time.NewTimer(timeout)
	defer timeoutTimer.Stop()

	// Prepare command (don't use CommandContext - we manage termination ourselves)
	cmd := exec.Command(h.def.Entrypoint)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, "", fmt.Errorf("create stdin pipe: %w", err)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	h.logger.Debug("spawning handler", "entrypoint", h.def.Entrypoint, "timeout", timeout)

	if err := cmd.Start(); err != nil {
		return nil, "", fmt.Errorf("start process: %w", err)
	}

	// Write request to stdin in a goroutine
	writeErr := make(chan error, 1)
	go func() {
		defer stdin.Close()
		if err := protocol.EncodeRequest(stdin, req); err != nil {
			writeErr <- fmt.Errorf("encode request: %w", err)
			return
		}
		writeErr <- nil
	}()

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
	}()

	// Wait for completion, cancellation, or timeout
	select {
	case <-ctx.Done():
		h.logger.Warn("request cancelled, terminating handler")
		h.terminate(cmd, waitErr)
		return nil, truncateStderr(stderr.String()), ctx.Err()

	case <-timeoutTimer.C:
		h.logger.Warn("handler execution timed out, sending SIGTERM")
		h.terminate(cmd, waitErr)
		return nil, truncateStderr(stderr.String()), context.DeadlineExceeded

	case err := <-waitErr:
		if werr := <-writeErr; werr != nil {
			return nil, truncateStderr(stderr.String()), werr
		}

		stderrStr := truncateStderr(stderr.String())

		if err != nil {
			if exitErr, ok := err.(*exec.ExitError); ok {
				h.logger.Warn("handler exited with non-zero status", "exit_code", exitErr.ExitCode())
			} else {
				return nil, stderrStr, fmt.Errorf("wait for process: %w", err)
			}
		}

		resp, rawBytes, err := protocol.DecodeResponseLenient(bytes.NewReader(stdout.Bytes()))
		if err != nil {
			h.logger.Error("failed to decode handler response", "error", err, "stdout", string(rawBytes))
			return nil, stderrStr, fmt.Errorf("decode response: %w", err)
		}

		return resp, stderrStr, nil
	}
}

// terminate sends SIGTERM, waits out the grace period, then SIGKILLs.
func (h *Handler) terminate(cmd *exec.Cmd, waitErr <-chan error) {
	if cmd.Process != nil {
		if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
			h.logger.Error("failed to send SIGTERM", "error", err)
		}
	}

	grace := time.NewTimer(terminationGracePeriod)
	defer grace.Stop()

	select {
	case <-waitErr:
		h.logger.Info("handler exited after SIGTERM")
	case <-grace.C:
		h.logger.Warn("handler did not exit after SIGTERM, sending SIGKILL")
		if cmd.Process != nil {
			if err := cmd.Process.Kill(); err != nil {
				h.logger.Error("failed to send SIGKILL", "error", err)
			}
		}
		<-waitErr // Wait for process to die
	}
}

// truncateStderr truncates stderr to maxStderrBytes.
func truncateStderr(s string) string {
	if len(s) > maxStderrBytes {
		return s[:maxStderrBytes]
	}
	return s
}
