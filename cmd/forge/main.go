// Command forge composes layered persona documents into rendered agent
// definitions: it resolves trait imports, deep-merges the layers,
// validates the result, and renders through the configured template,
// reusing cached renders whenever inputs are unchanged.
package main

import (
	"fmt"
	"os"

	"personaforge/internal/logging"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Global flags
	workspace string
	verbose   bool

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "forge",
	Short: "forge - persona build engine",
	Long: `forge builds rendered agent personas from layered YAML sources.

A persona document imports reusable trait fragments, which may depend on
or conflict with each other. forge resolves the trait graph, merges base
fields, traits, and overrides into one canonical document, validates it
against the persona schema, and renders it through the output template.

Renders are cached by a content-addressed key over every transitive
input, so unchanged personas never re-render.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		if err := logging.Initialize(workspace); err != nil {
			logger.Warn("Debug logging unavailable", zap.Error(err))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAll()
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", ".", "workspace directory containing forge.yaml")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")

	buildCmd.Flags().StringArrayVar(&buildAgents, "agent", nil, "build only the named persona (repeatable)")
	buildCmd.Flags().BoolVar(&buildShowValidation, "validate", false, "print full validation findings, not just errors")
	buildCmd.Flags().IntVar(&buildParallel, "parallel", 0, "worker pool size (0 = configured default)")
	buildCmd.Flags().BoolVar(&buildWatch, "watch", false, "rebuild whenever a source file changes")

	validateCmd.Flags().StringArrayVar(&validateAgents, "agent", nil, "validate only the named persona (repeatable)")

	installCmd.Flags().StringVar(&installTarget, "target", "", "installation directory (default <workspace>/.forge/agents)")

	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(listAgentsCmd)
	rootCmd.AddCommand(installCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
