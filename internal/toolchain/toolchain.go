// Package toolchain runs the external compiler and coverage tools. Command
// lines come from the project file and are rendered as templates over the
// configured paths.
package toolchain

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/melih-ucgun/forgeguard/internal/config"
	"github.com/melih-ucgun/forgeguard/internal/core"
)

// Environment variables handed to every toolchain command.
const (
	EnvSources   = "FORGEGUARD_SOURCES"
	EnvArtifacts = "FORGEGUARD_ARTIFACTS"
	EnvCache     = "FORGEGUARD_CACHE"

	// EnvReportGas is set to "true" only when gas reporting is on.
	EnvReportGas = "FORGEGUARD_REPORT_GAS"
)

// Step is one external build action.
type Step interface {
	Name() string
	Run(ctx context.Context) (core.Result, error)
}

// CommandStep renders Template with Paths and runs the resulting command in
// Paths.Root.
type CommandStep struct {
	StepName string
	Template string
	Paths    config.Paths
	Log      core.Logger

	// ReportGas asks the tool for a gas report through EnvReportGas.
	ReportGas bool
}

func NewCommandStep(name, tmpl string, paths config.Paths, log core.Logger) *CommandStep {
	if log == nil {
		log = core.NopLogger{}
	}
	return &CommandStep{StepName: name, Template: tmpl, Paths: paths, Log: log}
}

// Compile builds the compile step for cfg.
func Compile(cfg *config.Config, log core.Logger) *CommandStep {
	s := NewCommandStep("compile", cfg.Project.Toolchain.Compile, cfg.Project.Paths, log)
	s.ReportGas = cfg.ReportGas
	return s
}

// Coverage builds the coverage step for cfg.
func Coverage(cfg *config.Config, log core.Logger) *CommandStep {
	s := NewCommandStep("coverage", cfg.Project.Toolchain.Coverage, cfg.Project.Paths, log)
	s.ReportGas = cfg.ReportGas
	return s
}

func (s *CommandStep) Name() string { return s.StepName }

// Command renders the template into an invocation without running it.
func (s *CommandStep) Command() (core.Command, error) {
	line, err := core.ExecuteTemplate(s.StepName, s.Template, s.Paths)
	if err != nil {
		return core.Command{}, fmt.Errorf("%s: rendering command: %w", s.StepName, err)
	}

	fields := strings.Fields(line)
	if len(fields) == 0 {
		return core.Command{}, fmt.Errorf("%s: command is empty", s.StepName)
	}

	env := []string{
		EnvSources + "=" + s.Paths.Sources,
		EnvArtifacts + "=" + s.Paths.Artifacts,
		EnvCache + "=" + s.Paths.Cache,
	}
	if s.ReportGas {
		env = append(env, EnvReportGas+"=true")
	}

	return core.Command{
		Name: fields[0],
		Args: fields[1:],
		Dir:  s.Paths.Root,
		Env:  env,
	}, nil
}

// Run executes the command. A non-zero exit comes back as an error carrying
// the tool's combined output.
func (s *CommandStep) Run(ctx context.Context) (core.Result, error) {
	cmd, err := s.Command()
	if err != nil {
		return core.Failure(err, "invalid toolchain command"), err
	}
	if !core.IsCommandAvailable(cmd.Name) {
		err := fmt.Errorf("%s: %s not found in PATH", s.StepName, cmd.Name)
		return core.Failure(err, "toolchain not installed"), err
	}

	s.Log.Info(fmt.Sprintf("Running %s", s.StepName), "command", cmd.Name+" "+strings.Join(cmd.Args, " "))
	s.Log.Debug("Toolchain environment", "sources", s.Paths.Sources, "artifacts", s.Paths.Artifacts, "report_gas", s.ReportGas)

	out, err := core.RunCommand(ctx, cmd)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			err = fmt.Errorf("%w: %w", ctxErr, err)
		}
		err = fmt.Errorf("%s failed: %w\n%s", s.StepName, err, strings.TrimSpace(out))
		res := core.Failure(err, fmt.Sprintf("%s failed", s.StepName))
		res.Output = out
		return res, err
	}

	res := core.SuccessChange(fmt.Sprintf("%s finished", s.StepName))
	res.Output = out
	return res, nil
}
