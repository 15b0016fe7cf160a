package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/WessleyAI/heredity/engine/calculator"
	"github.com/WessleyAI/heredity/engine/domain"
)

func newInferCmd(g *globals) *cobra.Command {
	var (
		locusName string
		workers   int
	)
	cmd := &cobra.Command{
		Use:   "infer INDIVIDUAL",
		Short: "List the genotypes an individual can have given the pedigree",
		Args:  cobra.ExactArgs(1),
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
			id, err := p.IndividualID(args[0])
			if err != nil {
				return err
			}

			opts := calculator.DefaultOptions()
			opts.Workers = workers
			calc, err := calculator.New(store, store, store, opts, g.logger(cmd))
			if err != nil {
				return err
			}
			gs, err := calc.Infer(ctx, id, locus.ID)
			if err != nil {
				return err
			}
			return printCandidates(cmd, g, args[0], locus, gs)
		},
	}
	cmd.Flags().StringVarP(&locusName, "locus", "l", "", "Locus name")
	cmd.Flags().IntVar(&workers, "workers", calculator.DefaultOptions().Workers, "Concurrent crosses during refinement")
	_ = cmd.MarkFlagRequired("locus")
	return cmd
}

type candidate struct {
	Genotype string `json:"genotype"`
	Alleles  string `json:"alleles"`
}

func alleleName(a *domain.Allele) string {
	if a == nil {
		return "?"
	}
	return a.Name
}

func printCandidates(cmd *cobra.Command, g *globals, who string, locus *domain.Locus, gs []domain.Genotype) error {
	out := make([]candidate, len(gs))
	for i, gt := range gs {
		out[i] = candidate{Genotype: gt.String(), Alleles: alleleName(gt.Dominant) + "/" + alleleName(gt.Other)}
	}
	if g.json {
		return writeJSON(cmd.OutOrStdout(), out)
	}
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "%s at %s: %d candidate(s)\n", who, locus.Name, len(out))
	for _, c := range out {
		fmt.Fprintf(w, "  %-12s %s\n", c.Genotype, c.Alleles)
	}
	return nil
}
