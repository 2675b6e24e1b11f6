package core

import (
	"context"
	"os"
	"os/exec"
)

// Runner runs external commands.
// Toolchain steps go through it so tests never spawn real compilers.
type Runner interface {
	CombinedOutput(cmd *exec.Cmd) ([]byte, error)
}

// RealRunner implements Runner using real os/exec.
type RealRunner struct{}

func (r *RealRunner) CombinedOutput(cmd *exec.Cmd) ([]byte, error) {
	return cmd.CombinedOutput()
}

// CommandRunner is the global runner instance.
// Tests can replace this with a mock.
var CommandRunner Runner = &RealRunner{}

// Command describes one external invocation.
type Command struct {
	Name string
	Args []string
	Dir  string
	// Env is appended to the current process environment.
	Env []string
}

// RunCommand runs c through CommandRunner and returns its combined output.
func RunCommand(ctx context.Context, c Command) (string, error) {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	out, err := CommandRunner.CombinedOutput(cmd)
	return string(out), err
}

// IsCommandAvailable reports whether name resolves on PATH.
var IsCommandAvailable = func(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}
