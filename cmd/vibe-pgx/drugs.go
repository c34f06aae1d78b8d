package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/inodb/vibe-pgx/internal/analysis"
)

func (a *app) newDrugsCmd() *cobra.Command {
	var languages bool

	cmd := &cobra.Command{
		Use:   "drugs",
		Short: "List supported drugs and their genes",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if languages {
				for _, l := range analysis.SupportedLanguages {
					fmt.Fprintf(out, "%s\t%s\n", l.Code, l.Label)
				}
				return nil
			}

			table, err := a.loadRules()
			if err != nil {
				return err
			}
			fmt.Fprintln(out, "#Drug\tGene\tCPIC_Level\tMarkers\tStar_Alleles")
			for _, drug := range table.Drugs() {
				r, _ := table.Lookup(drug)
				alleles := make([]string, len(r.StarAlleles))
				for i, sa := range r.StarAlleles {
					alleles[i] = sa.Name
				}
				fmt.Fprintf(out, "%s\t%s\t%s\t%s\t%s\n",
					r.Drug, r.Gene, r.CPICLevel, strings.Join(r.RsIDs, ","), strings.Join(alleles, ","))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&languages, "languages", false, "List supported output languages instead")
	return cmd
}
