package domain_test

import (
	"errors"
	"math"
	"testing"

	"github.com/WessleyAI/heredity/engine/domain"
	"github.com/WessleyAI/heredity/internal/genetest"
)

func TestNewGenotype_Canonicalizes(t *testing.T) {
	l := genetest.AgoutiLocus()
	agouti, self := &l.Alleles[0], &l.Alleles[2]

	g := domain.NewGenotype(l.ID, self, agouti)
	if g.Dominant != agouti || g.Other != self {
		t.Fatalf("expected A/a, got %s", g)
	}
	g = domain.NewGenotype(l.ID, agouti, self)
	if g.Dominant != agouti || g.Other != self {
		t.Fatalf("expected A/a, got %s", g)
	}
}

func TestNewGenotype_LoneAlleleIsDominant(t *testing.T) {
	l := genetest.AgoutiLocus()
	g := domain.NewGenotype(l.ID, nil, &l.Alleles[1])
	if g.Dominant == nil || g.Dominant.Name != "Tan" || g.Other != nil {
		t.Fatalf("expected a(t)/_, got %s", g)
	}
}

func TestIsHomozygous(t *testing.T) {
	l := genetest.AgoutiLocus()
	cases := []struct {
		g             domain.Genotype
		homo, defined bool
	}{
		{genetest.Pair(&l, "Agouti", "Agouti"), true, true},
		{genetest.Pair(&l, "Agouti", "Self"), false, true},
		{genetest.Pair(&l, "Agouti", ""), false, false},
		{domain.Wildcard(l.ID), false, false},
	}
	for _, tc := range cases {
		homo, defined := tc.g.IsHomozygous()
		if homo != tc.homo || defined != tc.defined {
			t.Errorf("%s: expected (%v,%v), got (%v,%v)", tc.g, tc.homo, tc.defined, homo, defined)
		}
	}
}

func TestIsHomozygous_CoDominantOrdinals(t *testing.T) {
	l := domain.Locus{ID: genetest.ID("codom"), Name: "Codom", Alleles: []domain.Allele{
		{ID: genetest.ID("x"), Ordinal: 1, Name: "X", Symbol: "X"},
		{ID: genetest.ID("y"), Ordinal: 1, Name: "Y", Symbol: "Y"},
	}}
	g := domain.NewGenotype(l.ID, &l.Alleles[0], &l.Alleles[1])
	if homo, _ := g.IsHomozygous(); !homo {
		t.Fatalf("expected equal ordinals to count as homozygous")
	}
}

func TestGenotypeString(t *testing.T) {
	ext := genetest.ExtensionLocus()
	cases := map[string]domain.Genotype{
		"e(j)/e": genetest.Pair(&ext, "NonExtension", "Harlequin"),
		"E(s)/E": genetest.Pair(&ext, "Steel", "Normal"),
		"E/_":    genetest.Pair(&ext, "Normal", ""),
		"_/_":    domain.Wildcard(ext.ID),
	}
	for want, g := range cases {
		if g.String() != want {
			t.Errorf("expected %s, got %s", want, g.String())
		}
	}
}

func TestBuildGenotype_RecessiveImpliesHomozygous(t *testing.T) {
	ext := genetest.ExtensionLocus()
	g := genetest.Observe(&ext, "NonExtension")
	if g.String() != "e/e" {
		t.Fatalf("expected e/e, got %s", g)
	}
	g = genetest.Observe(&ext, "Harlequin")
	if g.String() != "e(j)/_" {
		t.Fatalf("expected e(j)/_, got %s", g)
	}
	g = domain.BuildGenotype(ext.ID, &ext.Alleles[3], &ext.Alleles[1])
	if g.String() != "E/e" {
		t.Fatalf("expected E/e, got %s", g)
	}
}

func codominantLocus() domain.Locus {
	return domain.Locus{ID: genetest.ID("codom"), Name: "Codom", Alleles: []domain.Allele{
		{ID: genetest.ID("x"), Ordinal: 0, Name: "X", Symbol: "X"},
		{ID: genetest.ID("y"), Ordinal: 0, Name: "Y", Symbol: "Y"},
	}}
}

func TestNewGenotype_SharedOrdinalIsOrderIndependent(t *testing.T) {
	l := codominantLocus()
	x, y := &l.Alleles[0], &l.Alleles[1]
	xy, yx := domain.NewGenotype(l.ID, x, y), domain.NewGenotype(l.ID, y, x)
	if xy.String() != "X/Y" || yx.String() != "X/Y" {
		t.Fatalf("expected X/Y both ways, got %s and %s", xy, yx)
	}
	if xy.Key() != yx.Key() {
		t.Fatalf("expected one key, got %s and %s", xy.Key(), yx.Key())
	}

	twin := domain.Allele{ID: genetest.ID("x2"), Ordinal: 0, Name: "X2", Symbol: "X"}
	a, b := domain.NewGenotype(l.ID, x, &twin), domain.NewGenotype(l.ID, &twin, x)
	if a.Dominant != b.Dominant {
		t.Fatalf("expected id to break symbol ties, got %s and %s", a.Dominant.Name, b.Dominant.Name)
	}
}

func TestPotentialGenotypes_SharedOrdinal(t *testing.T) {
	l := codominantLocus()
	got := genetest.Strings(domain.PotentialGenotypes(domain.Wildcard(l.ID), l.Alleles))
	want := []string{"X/X", "X/Y", "Y/Y"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestPotentialGenotypes(t *testing.T) {
	l := genetest.AgoutiLocus()
	cases := []struct {
		name string
		g    domain.Genotype
		want []string
	}{
		{"known", genetest.Pair(&l, "Agouti", "Tan"), []string{"A/a(t)"}},
		{"dominant known", genetest.Pair(&l, "Tan", ""), []string{"a(t)/a(t)", "a(t)/a"}},
		{"wildcard", domain.Wildcard(l.ID), []string{"A/A", "A/a(t)", "A/a", "a(t)/a(t)", "a(t)/a", "a/a"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := genetest.Strings(domain.PotentialGenotypes(tc.g, l.Alleles))
			if len(got) != len(tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Fatalf("expected %v, got %v", tc.want, got)
				}
			}
		})
	}
}

func TestPotentialGenotypes_EmptyCatalog(t *testing.T) {
	if got := domain.PotentialGenotypes(domain.Wildcard(genetest.ID("empty")), nil); len(got) != 0 {
		t.Fatalf("expected no genotypes, got %v", got)
	}
}

func TestExplains(t *testing.T) {
	ext := genetest.ExtensionLocus()
	offspring := genetest.Pair(&ext, "Harlequin", "NonExtension")
	if !offspring.Explains(genetest.Pair(&ext, "Harlequin", "")) {
		t.Fatal("expected e(j)/e to explain e(j)/_")
	}
	if !offspring.Explains(genetest.Pair(&ext, "Harlequin", "NonExtension")) {
		t.Fatal("expected e(j)/e to explain itself")
	}
	if offspring.Explains(genetest.Pair(&ext, "Harlequin", "Harlequin")) {
		t.Fatal("expected e(j)/e not to explain e(j)/e(j)")
	}
	if offspring.Explains(genetest.Pair(&ext, "Normal", "")) {
		t.Fatal("expected e(j)/e not to explain E/_")
	}
}

func TestSortGenotypes(t *testing.T) {
	l := genetest.AgoutiLocus()
	gs := []domain.Genotype{
		genetest.Pair(&l, "Self", "Self"),
		genetest.Pair(&l, "Agouti", "Self"),
		genetest.Pair(&l, "Tan", "Tan"),
		genetest.Pair(&l, "Agouti", "Agouti"),
	}
	domain.SortGenotypes(gs)
	want := []string{"A/A", "A/a", "a(t)/a(t)", "a/a"}
	for i, g := range gs {
		if g.String() != want[i] {
			t.Fatalf("expected %v, got %v", want, genetest.Strings(gs))
		}
	}
}

func TestKey_DistinguishesSharedSymbols(t *testing.T) {
	l := genetest.AgoutiLocus()
	a := genetest.Pair(&l, "Tan", "Self")
	b := genetest.Pair(&l, "Self", "Tan")
	if a.Key() != b.Key() {
		t.Fatalf("expected same key, got %s and %s", a.Key(), b.Key())
	}
	if a.Key() == genetest.Pair(&l, "Tan", "Tan").Key() {
		t.Fatal("expected different keys")
	}
}

func TestParseGenotype(t *testing.T) {
	ext := genetest.ExtensionLocus()
	cases := map[string]string{
		"Harlequin/NonExtension": "e(j)/e",
		"e/e(j)":                 "e(j)/e",
		"Normal/?":               "E/_",
		"E(s)/_":                 "E(s)/_",
		"_/_":                    "_/_",
		"NonExtension":           "e/e",
		"steel":                  "E(s)/_",
	}
	for in, want := range cases {
		g, err := domain.ParseGenotype(&ext, in)
		if err != nil {
			t.Fatalf("%q: unexpected error %v", in, err)
		}
		if g.String() != want {
			t.Errorf("%q: expected %s, got %s", in, want, g)
		}
		if g.LocusID != ext.ID {
			t.Errorf("%q: expected locus id to be set", in)
		}
	}
}

func TestParseGenotype_Errors(t *testing.T) {
	ext := genetest.ExtensionLocus()
	if _, err := domain.ParseGenotype(&ext, "Black/E"); !errors.Is(err, domain.ErrUnknownAllele) {
		t.Fatalf("expected ErrUnknownAllele, got %v", err)
	}
	if _, err := domain.ParseGenotype(&ext, "E/E/E"); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestRatios(t *testing.T) {
	l := genetest.AgoutiLocus()
	counts := []domain.GenotypeCount{
		{Genotype: genetest.Pair(&l, "Agouti", "Agouti"), Count: 3},
		{Genotype: genetest.Pair(&l, "Agouti", "Self"), Count: 1},
	}
	ratios := domain.Ratios(counts)
	if math.Abs(ratios[0].Ratio-0.75) > 1e-9 || math.Abs(ratios[1].Ratio-0.25) > 1e-9 {
		t.Fatalf("expected 0.75/0.25, got %v/%v", ratios[0].Ratio, ratios[1].Ratio)
	}
	if got := domain.Ratios(nil); len(got) != 0 {
		t.Fatalf("expected empty, got %v", got)
	}
}
