// Package cloudcli runs cloud provider command-line tools (az, aws) and
// decodes their JSON output.
package cloudcli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// Runner executes one command and returns its stdout.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands as subprocesses.
type ExecRunner struct {
	Dir    string
	Logger *slog.Logger
}

// Run executes name with args. A non-zero exit returns an error carrying the
// command's stderr.
func (r ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	if r.Logger != nil {
		r.Logger.Debug("executing", "cmd", name, "args", args, "dir", r.Dir)
	}

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = r.Dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return stdout.Bytes(), fmt.Errorf("%s %s failed: %w\nOutput: %s",
			name, firstArg(args), err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

// RunJSON runs a command and decodes its stdout into out.
func RunJSON(ctx context.Context, r Runner, out any, name string, args ...string) error {
	raw, err := r.Run(ctx, name, args...)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s %s output: %w", name, firstArg(args), err)
	}
	return nil
}

// RunText runs a command and returns its trimmed stdout.
func RunText(ctx context.Context, r Runner, name string, args ...string) (string, error) {
	raw, err := r.Run(ctx, name, args...)
	return strings.TrimSpace(string(raw)), err
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
