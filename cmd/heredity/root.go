package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/WessleyAI/heredity/engine/pedigree"
)

// globals are the flags shared by every subcommand.
type globals struct {
	file    string
	timeout time.Duration
	json    bool
	verbose bool
}

func newRootCmd() *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:           "heredity",
		Short:         "heredity - Mendelian crosses and pedigree genotype inference",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&g.file, "file", "f", "pedigree.yaml", "Pedigree YAML file")
	root.PersistentFlags().DurationVar(&g.timeout, "timeout", 30*time.Second, "Overall command timeout")
	root.PersistentFlags().BoolVar(&g.json, "json", false, "Print results as JSON")
	root.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "Log inference steps to stderr")

	root.AddCommand(newCrossCmd(g))
	root.AddCommand(newInferCmd(g))
	root.AddCommand(newImportCmd(g))
	return root
}

func (g *globals) logger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelWarn
	if g.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}

func (g *globals) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if g.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, g.timeout)
}

// load parses the pedigree file and loads it into memory.
func (g *globals) load(ctx context.Context) (*pedigree.Pedigree, *pedigree.MemoryStore, error) {
	p, err := pedigree.LoadFile(g.file)
	if err != nil {
		return nil, nil, err
	}
	store, err := p.Memory(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("load %s: %w", g.file, err)
	}
	return p, store, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
