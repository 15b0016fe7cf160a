// Package genetest provides allele catalogs and pedigree builders shared by
// the engine tests.
package genetest

import (
	"github.com/google/uuid"

	"github.com/WessleyAI/heredity/engine/domain"
)

// ID derives a stable identifier from a name.
func ID(name string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("heredity.test/"+name))
}

// AgoutiLocus is the rabbit A locus: Agouti > Tan > Self.
func AgoutiLocus() domain.Locus {
	return domain.Locus{
		ID:     ID("locus/agouti"),
		Name:   "Agouti",
		Symbol: "A",
		Alleles: []domain.Allele{
			{ID: ID("allele/agouti"), Ordinal: 0, Name: "Agouti", Symbol: "A", Dominance: domain.Dominant, WildType: true},
			{ID: ID("allele/tan"), Ordinal: 1, Name: "Tan", Symbol: "a", GenotypeSymbol: "t", Dominance: domain.Dominant},
			{ID: ID("allele/self"), Ordinal: 2, Name: "Self", Symbol: "a", Dominance: domain.Recessive},
		},
	}
}

// ExtensionLocus is the rabbit E locus: Steel > Normal > Harlequin > NonExtension.
func ExtensionLocus() domain.Locus {
	return domain.Locus{
		ID:     ID("locus/extension"),
		Name:   "Extension",
		Symbol: "E",
		Alleles: []domain.Allele{
			{ID: ID("allele/steel"), Ordinal: 0, Name: "Steel", Symbol: "E", GenotypeSymbol: "s", Dominance: domain.Dominant},
			{ID: ID("allele/normal"), Ordinal: 1, Name: "Normal", Symbol: "E", Dominance: domain.Dominant, WildType: true},
			{ID: ID("allele/harlequin"), Ordinal: 2, Name: "Harlequin", Symbol: "e", GenotypeSymbol: "j", Dominance: domain.Incomplete},
			{ID: ID("allele/nonextension"), Ordinal: 3, Name: "NonExtension", Symbol: "e", Dominance: domain.Recessive},
		},
	}
}

// Pair builds a genotype from allele names; "" leaves a slot unknown.
func Pair(l *domain.Locus, first, second string) domain.Genotype {
	return domain.NewGenotype(l.ID, find(l, first), find(l, second))
}

// Observe builds a genotype the way an observation is recorded: a lone
// recessive allele implies homozygosity.
func Observe(l *domain.Locus, name string) domain.Genotype {
	return domain.BuildGenotype(l.ID, find(l, name), nil)
}

func find(l *domain.Locus, name string) *domain.Allele {
	if name == "" {
		return nil
	}
	a, ok := l.Lookup(name)
	if !ok {
		panic("genetest: unknown allele " + name)
	}
	return a
}

// Strings renders genotypes for comparison in assertions.
func Strings(gs []domain.Genotype) []string {
	out := make([]string, len(gs))
	for i, g := range gs {
		out[i] = g.String()
	}
	return out
}
