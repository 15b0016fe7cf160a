package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/WessleyAI/heredity/engine/domain"
	"github.com/WessleyAI/heredity/engine/punnett"
)

func newCrossCmd(g *globals) *cobra.Command {
	var locusName string
	cmd := &cobra.Command{
		Use:   "cross A B",
		Short: "Cross two genotypes, e.g. heredity cross --locus Agouti A/a(t) a/a",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := g.context(cmd)
			defer cancel()

			p, store, err := g.load(ctx)
			if err != nil {
				return err
			}
			locus, err := p.Locus(locusName)
			if err != nil {
				return err
			}
			a, err := domain.ParseGenotype(locus, args[0])
			if err != nil {
				return err
			}
			b, err := domain.ParseGenotype(locus, args[1])
			if err != nil {
				return err
			}

			square, err := punnett.New(store, g.logger(cmd))
			if err != nil {
				return err
			}
			counts, err := square.Cross(ctx, a, b)
			if err != nil {
				return err
			}
			return printCross(cmd, g, a, b, counts)
		},
	}
	cmd.Flags().StringVarP(&locusName, "locus", "l", "", "Locus name")
	_ = cmd.MarkFlagRequired("locus")
	return cmd
}

type crossClass struct {
	Genotype string  `json:"genotype"`
	Count    int     `json:"count"`
	Ratio    float64 `json:"ratio"`
}

func printCross(cmd *cobra.Command, g *globals, a, b domain.Genotype, counts []domain.GenotypeCount) error {
	ratios := domain.Ratios(counts)
	classes := make([]crossClass, len(counts))
	for i, c := range counts {
		classes[i] = crossClass{Genotype: c.Genotype.String(), Count: c.Count, Ratio: ratios[i].Ratio}
	}
	if g.json {
		return writeJSON(cmd.OutOrStdout(), classes)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s x %s\n", a, b)
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "GENOTYPE\tCOUNT\tRATIO")
	for _, c := range classes {
		fmt.Fprintf(tw, "%s\t%d\t%.4f\n", c.Genotype, c.Count, c.Ratio)
	}
	return tw.Flush()
}
