package main

import (
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	var (
		limit  int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List recent batches from the state database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if cfg.StateDB == "" {
				return fmt.Errorf("no state_db configured; batch history is only kept in memory")
			}
			_, list, closeStore, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			jobs, err := list.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, jobs)
			}
			if len(jobs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No batches recorded.")
				return nil
			}

			rows := make([][]string, 0, len(jobs))
			for _, j := range jobs {
				done, failed, total := j.Progress()
				rows = append(rows, []string{
					j.ID,
					string(j.Status),
					j.Preset,
					fmt.Sprintf("%d/%d", done, total),
					strconv.Itoa(failed),
					humanize.Time(j.CreatedAt),
					j.SourcePath,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Batch", "Status", "Preset", "Done", "Failed", "Started", "Source"}, rows, 3, 4))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of batches to list")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}
