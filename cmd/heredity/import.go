package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/WessleyAI/heredity/engine/pedigree"
	"github.com/WessleyAI/heredity/internal/config"
)

func newImportCmd(g *globals) *cobra.Command {
	var url, user, pass, database string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Write the pedigree file into Neo4j",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("neo4j-url") {
				cfg.Neo4jURL = url
			}
			if flags.Changed("neo4j-user") {
				cfg.Neo4jUser = user
			}
			if flags.Changed("neo4j-pass") {
				cfg.Neo4jPass = pass
			}
			if flags.Changed("database") {
				cfg.Neo4jDatabase = database
			}

			ctx, cancel := g.context(cmd)
			defer cancel()

			p, err := pedigree.LoadFile(g.file)
			if err != nil {
				return err
			}
			logger := g.logger(cmd)
			opts := pedigree.DefaultGraphOptions()
			opts.Database = cfg.Neo4jDatabase
			store, err := pedigree.Connect(ctx, cfg.Neo4jURL, cfg.Neo4jUser, cfg.Neo4jPass, opts, logger)
			if err != nil {
				return err
			}
			defer store.Close(ctx)

			if err := p.Apply(ctx, store); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d loci, %d individuals, %d genotypes\n",
				len(p.Loci), len(p.Individuals), len(p.Observations))
			return nil
		},
	}
	cmd.Flags().StringVar(&url, "neo4j-url", "", "Neo4j URL (default $HEREDITY_NEO4J_URL)")
	cmd.Flags().StringVar(&user, "neo4j-user", "", "Neo4j user (default $HEREDITY_NEO4J_USER)")
	cmd.Flags().StringVar(&pass, "neo4j-pass", "", "Neo4j password (default $HEREDITY_NEO4J_PASS)")
	cmd.Flags().StringVar(&database, "database", "", "Neo4j database (default $HEREDITY_NEO4J_DATABASE)")
	return cmd
}
