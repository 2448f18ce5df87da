package commands

import (
	"context"
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/XiaoConstantine/clara-go/pkg/core"
	"github.com/XiaoConstantine/clara-go/pkg/errors"
	"github.com/XiaoConstantine/clara-go/pkg/pipeline"
)

func newRunCommand(configPath *string) *cobra.Command {
	var (
		applicantPath string
		bankPath      string
		cardPath      string
		directives    string
		id            string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Assess one loan application and print the decision",
		Example: `  clara-cli run --applicant form.json --bank bank.csv --card card.csv
  clara-cli run --applicant form.json --bank bank.csv --directives "prefer shorter terms"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			inputs, err := loadInputs(applicantPath, bankPath, cardPath, directives)
			if err != nil {
				return err
			}

			store, err := buildStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx := context.Background()
			svc, err := buildService(ctx, cfg, store)
			if err != nil {
				return err
			}

			appID, err := svc.Submit(ctx, inputs, pipeline.SubmitOptions{ID: id})
			if err != nil {
				return err
			}
			svc.Wait()

			app, err := svc.Get(ctx, appID)
			if err != nil {
				return err
			}
			return printOutcome(cmd, ctx, svc, app)
		},
	}

	cmd.Flags().StringVar(&applicantPath, "applicant", "", "path to the applicant form JSON")
	cmd.Flags().StringVar(&bankPath, "bank", "", "path to the bank statement CSV")
	cmd.Flags().StringVar(&cardPath, "card", "", "path to the card statement CSV")
	cmd.Flags().StringVar(&directives, "directives", "", "free-text reviewer guidance")
	cmd.Flags().StringVar(&id, "id", "", "pin the application id")
	_ = cmd.MarkFlagRequired("applicant")
	_ = cmd.MarkFlagRequired("bank")
	return cmd
}

func loadInputs(applicantPath, bankPath, cardPath, directives string) (core.RawInputs, error) {
	var inputs core.RawInputs
	data, err := os.ReadFile(applicantPath)
	if err != nil {
		return inputs, errors.WithFields(
			errors.Wrap(err, errors.ResourceNotFound, "failed to read applicant form"),
			errors.Fields{"path": applicantPath},
		)
	}
	if err := json.Unmarshal(data, &inputs.Applicant); err != nil {
		return inputs, errors.WithFields(
			errors.Wrap(err, errors.InvalidInput, "failed to parse applicant form"),
			errors.Fields{"path": applicantPath},
		)
	}

	if inputs.Bank, err = loadBankCSV(bankPath); err != nil {
		return inputs, err
	}
	if cardPath != "" {
		if inputs.Card, err = loadCardCSV(cardPath); err != nil {
			return inputs, err
		}
	}
	inputs.Directives = directives
	return inputs, nil
}
