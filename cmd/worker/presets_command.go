package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"uniquify-worker/internal/params"
)

func newPresetsCommand() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "presets",
		Short: "Show the modification ranges of every preset",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tables := make(map[string]params.Table, len(params.Presets))
			for _, p := range params.Presets {
				t, err := params.TableFor(p)
				if err != nil {
					return err
				}
				tables[p.String()] = t
			}
			if asJSON {
				return writeJSON(cmd, tables)
			}

			headers := []string{"Dimension"}
			for _, p := range params.Presets {
				headers = append(headers, p.String())
			}
			rows := make([][]string, 0, len(params.Dimensions))
			for _, d := range params.Dimensions {
				row := []string{string(d)}
				for _, p := range params.Presets {
					row = append(row, formatRange(tables[p.String()], d))
				}
				rows = append(rows, row)
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(headers, rows, 1, 2, 3))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

func formatRange(t params.Table, d params.Dimension) string {
	r, ok := t.Range(d)
	if !ok {
		return "-"
	}
	if r.Min == r.Max {
		return strconv.FormatFloat(r.Min, 'g', 4, 64)
	}
	return fmt.Sprintf("%s … %s", strconv.FormatFloat(r.Min, 'g', 4, 64), strconv.FormatFloat(r.Max, 'g', 4, 64))
}
