package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"personaforge/internal/build"
	"personaforge/internal/config"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	buildAgents         []string
	buildShowValidation bool
	buildParallel       int
	buildWatch          bool

	validateAgents []string

	installTarget string
)

// buildCmd runs the full pipeline and writes rendered outputs.
var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build rendered personas",
	Long: `Resolves, merges, validates, renders, and writes one output file per
persona. Exit status is non-zero if any persona fails. With --watch,
stays running and rebuilds on source changes.`,
	RunE: runBuild,
}

// validateCmd checks personas without rendering or writing outputs.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate personas without building",
	RunE:  runValidate,
}

// listAgentsCmd lists every persona in the workspace.
var listAgentsCmd = &cobra.Command{
	Use:   "list-agents",
	Short: "List available personas",
	RunE:  runListAgents,
}

// installCmd builds and copies outputs to a target directory.
var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Build and install rendered personas to a target directory",
	RunE:  runInstall,
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(workspace)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

func runBuild(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	opts := build.Options{Personas: buildAgents, Parallel: buildParallel}

	runOnce := func() error {
		orch, err := build.NewOrchestrator(cfg)
		if err != nil {
			return err
		}
		defer orch.Close()

		report, err := orch.BuildAll(cmd.Context(), opts)
		if err != nil {
			return err
		}
		printReport(cmd.OutOrStdout(), report, buildShowValidation)
		if !report.OK() {
			return fmt.Errorf("%d of %d personas failed", report.Failed(), len(report.Results))
		}
		return nil
	}

	if !buildWatch {
		return runOnce()
	}

	// Watch mode: rebuild from scratch each cycle so trait and
	// template edits are picked up, since the registry is immutable
	// within a run.
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := runOnce(); err != nil {
		logger.Warn("Initial build failed", zap.Error(err))
	}

	roots := []string{
		cfg.Sources.PersonaDir,
		cfg.Sources.TraitDir,
		cfg.Sources.TemplatePath,
	}
	logger.Info("Watching for changes", zap.Strings("roots", roots))

	err = build.Watch(ctx, roots, 0, func() error {
		if err := runOnce(); err != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), err)
		}
		return nil
	})
	if ctx.Err() != nil {
		return nil // clean shutdown on signal
	}
	return err
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	orch, err := build.NewOrchestrator(cfg)
	if err != nil {
		return err
	}
	defer orch.Close()

	report, err := orch.BuildAll(cmd.Context(), build.Options{
		Personas:     validateAgents,
		ValidateOnly: true,
	})
	if err != nil {
		return err
	}

	printReport(cmd.OutOrStdout(), report, true)
	if report.HasValidationErrors() {
		return fmt.Errorf("validation failed")
	}
	return nil
}

func runListAgents(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	return printAgentList(cmd.OutOrStdout(), cfg)
}

func runInstall(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	orch, err := build.NewOrchestrator(cfg)
	if err != nil {
		return err
	}
	defer orch.Close()

	report, err := orch.BuildAll(cmd.Context(), build.Options{})
	if err != nil {
		return err
	}
	printReport(cmd.OutOrStdout(), report, false)
	if !report.OK() {
		return fmt.Errorf("%d of %d personas failed; nothing installed", report.Failed(), len(report.Results))
	}

	target := installTarget
	if target == "" {
		target = filepath.Join(workspace, ".forge", "agents")
	}

	if err := os.MkdirAll(target, 0o755); err != nil {
		return fmt.Errorf("failed to create target directory: %w", err)
	}

	installed := 0
	for _, res := range report.Results {
		if res.OutputPath == "" {
			continue
		}
		dest := filepath.Join(target, filepath.Base(res.OutputPath))
		if err := copyFile(res.OutputPath, dest); err != nil {
			return fmt.Errorf("failed to install %s: %w", res.Persona, err)
		}
		installed++
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Installed %d personas to %s\n", installed, target)
	return nil
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
