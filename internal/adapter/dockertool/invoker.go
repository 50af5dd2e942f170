package dockertool

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"
)

// Artifact is one file the tool left in its output mount point.
type Artifact struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Size int64  `json:"size"`
}

// InvocationResult reports everything the tool did. Tool-side failures
// (non-zero exit, timeout, missing input) surface here with OK=false; they
// are never returned as errors. Invoke only errors on infrastructure
// problems, like the docker binary being unavailable.
type InvocationResult struct {
	OK        bool
	TimedOut  bool
	Message   string
	ExitCode  int
	Artifacts []Artifact
	Stdout    string
	Stderr    string
}

type Invoker struct {
	binary      string
	softTimeout time.Duration
	hardTimeout time.Duration
	logger      *slog.Logger
}

func NewInvoker(binary string, softTimeout, hardTimeout time.Duration, logger *slog.Logger) *Invoker {
	return &Invoker{binary: binary, softTimeout: softTimeout, hardTimeout: hardTimeout, logger: logger}
}

// Invoke runs tool against inputPath, collecting produced files from
// outputDir. The soft timeout sends SIGTERM so the container can clean up;
// the remaining hard-timeout window forces a kill. The container itself is
// ephemeral (docker run --rm), so teardown holds on every path.
func (inv *Invoker) Invoke(ctx context.Context, tool Tool, inputPath, outputDir string, opts Options) (*InvocationResult, error) {
	if err := tool.validate(opts); err != nil {
		return nil, err
	}

	res := &InvocationResult{}

	// docker -v rejects relative host paths, treating them as volume names.
	absInput, err := filepath.Abs(inputPath)
	if err != nil {
		return nil, fmt.Errorf("resolve input path: %w", err)
	}
	absOutput, err := filepath.Abs(outputDir)
	if err != nil {
		return nil, fmt.Errorf("resolve output dir: %w", err)
	}
	inputPath, outputDir = absInput, absOutput

	if _, err := os.Stat(inputPath); err != nil {
		res.Message = fmt.Sprintf("input file not found: %s", inputPath)
		return res, nil
	}
	if err := os.MkdirAll(outputDir, 0o750); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	args := append([]string{"run", "--rm"}, tool.args(tool, inputPath, outputDir, opts)...)

	runCtx, cancel := context.WithTimeout(ctx, inv.softTimeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, inv.binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = inv.hardTimeout - inv.softTimeout

	inv.logger.InfoContext(ctx, "invoking tool",
		"tool", tool.Name, "image", tool.Image, "input", inputPath, "output_dir", outputDir)

	err = cmd.Run()
	res.Stdout = stdout.String()
	res.Stderr = stderr.String()

	if stderr.Len() > 0 {
		inv.logger.WarnContext(ctx, "tool stderr", "tool", tool.Name, "stderr", res.Stderr)
	}

	switch {
	case err == nil:
		res.ExitCode = 0
	case runCtx.Err() != nil:
		res.TimedOut = true
		res.Message = fmt.Sprintf("%s timed out after %s", tool.Name, inv.softTimeout)
		return res, nil
	default:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			res.Message = fmt.Sprintf("%s exited with code %d", tool.Name, res.ExitCode)
			return res, nil
		}
		// Launch failure: docker missing, permissions. Escalate.
		return nil, fmt.Errorf("start %s: %w", tool.Name, err)
	}

	artifacts, err := enumerateArtifacts(outputDir)
	if err != nil {
		return nil, fmt.Errorf("enumerate artifacts: %w", err)
	}
	res.Artifacts = artifacts
	res.OK = true
	res.Message = fmt.Sprintf("%s produced %d artifact(s)", tool.Name, len(artifacts))

	inv.logger.InfoContext(ctx, "tool finished",
		"tool", tool.Name, "exit_code", res.ExitCode, "artifacts", len(artifacts))
	return res, nil
}

func enumerateArtifacts(dir string) ([]Artifact, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var artifacts []Artifact
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		artifacts = append(artifacts, Artifact{
			Name: e.Name(),
			Path: filepath.Join(dir, e.Name()),
			Size: info.Size(),
		})
	}
	return artifacts, nil
}
