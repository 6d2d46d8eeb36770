package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/Imetomi/bugninja-cli/internal/agent"
	"github.com/Imetomi/bugninja-cli/internal/browser"
	"github.com/Imetomi/bugninja-cli/internal/config"
	"github.com/Imetomi/bugninja-cli/internal/executor"
	"github.com/Imetomi/bugninja-cli/internal/observability"
	"github.com/Imetomi/bugninja-cli/internal/oracle"
	"github.com/Imetomi/bugninja-cli/internal/perception"
)

// newRunCmd creates and configures the `run` command.
func newRunCmd() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Runs the agent against a URL until the goal is reached or steps run out",
		// PreRunE finalizes configuration before RunE executes.
		PreRunE: func(cmd *cobra.Command, args []string) error {
			// Bind flags to their corresponding Viper keys so command-line
			// flags override values from the config file and environment.
			if err := viper.BindPFlag("agent.max_steps", cmd.Flags().Lookup("max-steps")); err != nil {
				return err
			}
			if err := viper.BindPFlag("agent.goal_confidence", cmd.Flags().Lookup("goal-confidence")); err != nil {
				return err
			}
			if err := viper.BindPFlag("browser.headless", cmd.Flags().Lookup("headless")); err != nil {
				return err
			}
			if err := viper.BindPFlag("browser.video_quality", cmd.Flags().Lookup("video-quality")); err != nil {
				return err
			}
			return viper.BindPFlags(cmd.Flags())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			// Use the context passed from main (signal-aware).
			ctx := cmd.Context()
			logger := observability.GetLogger()

			var cfg config.Config
			// Re-unmarshal the config. Flags are bound in PreRunE, so Viper
			// applies the overrides with the right precedence.
			if err := viper.Unmarshal(&cfg); err != nil {
				return fmt.Errorf("failed to re-unmarshal config with flag overrides: %w", err)
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			rawURL := viper.GetString("url")
			goal := viper.GetString("goal")
			if rawURL == "" || goal == "" {
				return fmt.Errorf("both --url and --goal are required")
			}
			if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
				rawURL = "https://" + rawURL
			}

			outputDir, err := homedir.Expand(viper.GetString("output-dir"))
			if err != nil {
				return fmt.Errorf("resolving output directory: %w", err)
			}
			if err := os.MkdirAll(outputDir, 0o755); err != nil {
				return fmt.Errorf("creating output directory %q: %w", outputDir, err)
			}

			cfg.Run = config.RunConfig{
				URL:       rawURL,
				Goal:      goal,
				OutputDir: outputDir,
			}

			if cfg.Oracle.APIKey == "" {
				cfg.Oracle.APIKey = firstNonEmptyEnv("GEMINI_API_KEY", "GOOGLE_API_KEY")
			}
			if cfg.Oracle.APIKey == "" {
				return fmt.Errorf("no oracle API key configured (set GEMINI_API_KEY or BUGNINJA_ORACLE_API_KEY)")
			}

			secrets := config.HarvestSecrets()

			logger.Info("Starting run",
				zap.String("url", cfg.Run.URL),
				zap.String("goal", cfg.Run.Goal),
				zap.Int("max_steps", cfg.Agent.MaxSteps),
				zap.String("output_dir", outputDir),
				zap.Int("secrets_available", len(secrets)),
			)

			// Component wiring.
			manager, err := browser.NewManager(ctx, &cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to launch browser: %w", err)
			}
			defer manager.Close()

			session, err := manager.NewSession(outputDir)
			if err != nil {
				return fmt.Errorf("failed to open browser session: %w", err)
			}
			defer session.Close()

			oracleClient, err := oracle.NewGeminiOracle(ctx, cfg.Oracle, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize oracle: %w", err)
			}
			defer func() {
				if err := oracleClient.Close(); err != nil {
					logger.Warn("Error closing oracle client", zap.Error(err))
				}
			}()

			perceiver := perception.New(session, cfg.Agent.MaxElements, logger)
			exec := executor.New(session, cfg.Motion, secrets, logger)

			controller := agent.NewController(&cfg, perceiver, oracleClient, exec, session, secrets, logger)
			report, runErr := controller.Run(ctx)
			if runErr != nil {
				return runErr
			}

			exitCode = report.Status.ExitCode()

			fmt.Printf("\nRun %s finished: %s (%d/%d steps)\n",
				report.RunID, report.Status, report.StepsTaken, report.MaxSteps)
			fmt.Printf("Report written to %s\n", filepath.Join(outputDir, "report.json"))
			return nil
		},
	}

	runCmd.Flags().StringP("url", "u", "", "Target URL to open (required)")
	runCmd.Flags().StringP("goal", "g", "", "Natural-language goal for the agent (required)")
	runCmd.Flags().StringP("output-dir", "o", "./output", "Directory for the report, screenshots and recordings")

	// Configuration override flags.
	runCmd.Flags().Int("max-steps", 10, "Maximum number of decision steps. (Overrides config/env)")
	runCmd.Flags().Float64("goal-confidence", 0.8, "Confidence required to commit a goal claim. (Overrides config/env)")
	runCmd.Flags().Bool("headless", true, "Run the browser without a visible window. (Overrides config/env)")
	runCmd.Flags().String("video-quality", "medium", "Screencast quality: low, medium or high. (Overrides config/env)")

	return runCmd
}

func firstNonEmptyEnv(names ...string) string {
	for _, name := range names {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}
