// Command heredity crosses genotypes and infers genotypes from pedigree
// files, and imports pedigrees into Neo4j.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
