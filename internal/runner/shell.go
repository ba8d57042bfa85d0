package runner

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
)

// ShellResult holds the output of a shell command.
type ShellResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner executes shell commands.
type Runner interface {
	Run(ctx context.Context, command string) *ShellResult
}

// Shell runs commands via sh -c in Dir.
type Shell struct {
	Dir string
}

// Run implements Runner.
func (s Shell) Run(ctx context.Context, command string) *ShellResult {
	return Run(ctx, command, s.Dir)
}

// Run executes a command via sh -c and captures output. A command that
// cannot be started, or is killed by ctx, reports exit code -1 with the
// error text on stderr.
func Run(ctx context.Context, command, workDir string) *ShellResult {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	if workDir != "" {
		cmd.Dir = workDir
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() >= 0 {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
			if stderr.Len() > 0 {
				stderr.WriteString("\n")
			}
			stderr.WriteString(err.Error())
		}
	}

	return &ShellResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: exitCode,
	}
}
