package cli

import (
	"context"
	"os"

	"github.com/picklr-io/sitestack/internal/config"
	"github.com/picklr-io/sitestack/internal/logging"
	"github.com/spf13/cobra"
)

var (
	configFile string
	logLevel   string
	noColor    bool
)

var rootCmd = &cobra.Command{
	Use:   "sitestack",
	Short: "Deploy a static site and its serverless API to AWS",
	Long: `Sitestack publishes a folder to an S3 website bucket, fronts it with
CloudFront and binds Lambda functions to an API Gateway API.

Everything is described by a single project file (sitestack.yaml or a Pkl
module) and reconciled against recorded state:
  • plan shows what will change
  • apply makes it so
  • sync re-uploads the site folder only`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if os.Getenv("NO_COLOR") != "" {
			noColor = true
		}
		logging.Init(logLevel)
	},
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// ExecuteContext runs the root command with ctx available to every command.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", config.DefaultFile, "Project file (YAML or .pkl)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn or error")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(destroyCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(outputCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(stateCmd)
	rootCmd.AddCommand(graphCmd)
	rootCmd.AddCommand(invokeCmd)
	rootCmd.AddCommand(versionCmd)
}

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBold   = "\033[1m"
)

// colorize returns code unless colored output is disabled.
func colorize(code string) string {
	if noColor {
		return ""
	}
	return code
}
