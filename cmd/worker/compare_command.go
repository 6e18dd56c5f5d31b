package main

import (
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"uniquify-worker/internal/verify"
)

func newCompareCommand() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "compare <a> <b>",
		Short: "Compare two files by SHA-256 and size",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := verify.New().Compare(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, c)
			}
			rows := [][]string{
				{c.A.Path, shortHash(c.A.Hash), humanize.IBytes(uint64(c.A.Bytes))},
				{c.B.Path, shortHash(c.B.Hash), humanize.IBytes(uint64(c.B.Bytes))},
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable([]string{"File", "SHA-256", "Size"}, rows, 2))
			if c.Identical {
				fmt.Fprintln(out, "Files are byte-identical.")
			} else {
				fmt.Fprintf(out, "Files differ. Size ratio %s.\n", strconv.FormatFloat(c.SizeRatio, 'f', 3, 64))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

func newVerifyCommand() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "verify <source> <output>...",
		Short: "Hash outputs and check that each differs from the source",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			checks, err := verify.New().Verify(cmd.Context(), args[0], args[1:])
			if err != nil {
				return err
			}
			hashes := make([]string, len(checks))
			for i, c := range checks {
				hashes[i] = c.Hash
			}
			dups := verify.Duplicates(hashes)
			if asJSON {
				return writeJSON(cmd, map[string]any{"checks": checks, "duplicates": dups, "limitation": verify.Limitation})
			}

			rows := make([][]string, 0, len(checks))
			for _, c := range checks {
				status := "distinct"
				if !c.DistinctFromSource {
					status = "SAME AS SOURCE"
				}
				rows = append(rows, []string{c.Path, shortHash(c.Hash), humanize.IBytes(uint64(c.Bytes)), status})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable([]string{"Output", "SHA-256", "Size", "Status"}, rows, 2))
			for _, g := range dups {
				names := make([]string, len(g))
				for i, idx := range g {
					names[i] = checks[idx].Path
				}
				fmt.Fprintf(out, "Duplicate outputs: %v\n", names)
			}
			fmt.Fprintln(out, verify.Limitation)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}
