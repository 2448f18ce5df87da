// Package commands wires the clara-cli subcommands.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/XiaoConstantine/clara-go/pkg/config"
	"github.com/XiaoConstantine/clara-go/pkg/logging"
)

// NewRootCommand builds the clara-cli command tree.
func NewRootCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "clara-cli",
		Short: "Loan application assessment pipeline",
		Long: `clara-cli runs loan applications through the staged assessment
pipeline: behavioral profiling, interest and risk estimation, the loan
decision, validation scoring and the evaluator review loop.`,
		Version:       "0.1.0",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")

	cmd.AddCommand(
		newRunCommand(&configPath),
		newHistoryCommand(&configPath),
		newCorpusCommand(&configPath),
	)
	return cmd
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	setupLogging(cfg)
	return cfg, nil
}

func setupLogging(cfg *config.Config) {
	severity := logging.ParseSeverity(cfg.Logging.Level)
	outputs := []logging.Output{logging.NewConsoleOutput(true, logging.WithColor(true))}
	if cfg.Logging.FilePath != "" {
		if fileOut, err := logging.NewFileOutput(cfg.Logging.FilePath); err == nil {
			outputs = append(outputs, fileOut)
		}
	}
	logging.SetLogger(logging.NewLogger(logging.Config{
		Severity: severity,
		Outputs:  outputs,
	}))
}
