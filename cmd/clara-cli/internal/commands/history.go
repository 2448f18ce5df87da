package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/XiaoConstantine/clara-go/pkg/core"
	"github.com/XiaoConstantine/clara-go/pkg/pipeline"
)

func newHistoryCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "history <application-id>",
		Short: "Print the audit trail of an application",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			store, err := buildStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx := context.Background()
			app, err := store.GetApplication(ctx, args[0])
			if err != nil {
				return err
			}
			history, err := store.History(ctx, args[0])
			if err != nil {
				return err
			}

			cmd.Printf("application %s  status=%s", app.ID, app.Status)
			if app.Reason != "" {
				cmd.Printf("  reason=%q", app.Reason)
			}
			if app.Unresolved {
				cmd.Print("  unresolved")
			}
			cmd.Println()
			for _, rec := range history {
				line := fmt.Sprintf("  %-28s %-10s rev=%d  status=%s",
					rec.CreatedAt.Format("2006-01-02 15:04:05.000"), rec.Stage, rec.Revision, rec.Status)
				if rec.Err != "" {
					line += fmt.Sprintf("  error=%q", rec.Err)
				}
				cmd.Println(line)
			}
			return nil
		},
	}
}

func printOutcome(cmd *cobra.Command, ctx context.Context, svc *pipeline.Service, app core.Application) error {
	cmd.Printf("application %s: %s\n", app.ID, app.Status)
	if app.Reason != "" {
		cmd.Printf("reason: %s\n", app.Reason)
	}

	history, err := svc.History(ctx, app.ID)
	if err != nil {
		return err
	}
	for i := len(history) - 1; i >= 0; i-- {
		rec := history[i]
		if rec.Stage != core.StageDecision || rec.Status != core.StageOK {
			continue
		}
		var decision core.Decision
		if err := rec.DecodePayload(&decision); err != nil {
			return err
		}
		cmd.Printf("decision (rev %d): %s at %.2f%% over %d months\n",
			rec.Revision, decision.Outcome, decision.InterestRate, decision.TermMonths)
		if decision.Outcome == core.OutcomeApproved {
			cmd.Printf("monthly installment: %.2f\n", decision.MonthlyInstallment)
		}
		cmd.Printf("justification: %s\n", decision.Justification)
		break
	}
	return nil
}
