package commands

import (
	"context"
	"sort"

	"github.com/spf13/cobra"
)

func newCorpusCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "corpus",
		Short: "Inspect the configured reference corpora",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			registry, err := buildCorpora(context.Background(), cfg)
			if err != nil {
				return err
			}

			names := registry.Names()
			sort.Strings(names)
			if len(names) == 0 {
				cmd.Println("no corpora configured")
				return nil
			}
			for _, name := range names {
				corpus, err := registry.Get(name)
				if err != nil {
					return err
				}
				cmd.Printf("%-24s %6d cases  dim=%d\n", name, corpus.Size(), corpus.Dimension())
			}
			return nil
		},
	}
}
