package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/gatecheck/internal/scenario"
)

func newScenariosCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "scenarios",
		Short: "Lists the configured login scenarios",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			scs, err := scenario.FromConfig(opts.cfg.Scenarios())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tIDENTITY\tEXPECT\tERROR PATTERN")
			for _, s := range scs {
				identity := s.Identity
				if identity == "" {
					identity = "(empty)"
				}
				pattern := "-"
				if s.ErrorPattern != nil {
					pattern = s.ErrorPattern.String()
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.Name, identity, s.Expect, pattern)
			}
			return tw.Flush()
		},
	}
}
