// Package punnett crosses two possibly-uncertain parental genotypes at one
// locus and reports the offspring genotype classes with their multiplicities.
package punnett

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"

	"github.com/WessleyAI/heredity/engine/domain"
)

// gameteGroup holds one dominant allele of a parent's potential genotypes and
// every "other" allele that can occur alongside it.
type gameteGroup struct {
	dominant *domain.Allele
	others   []*domain.Allele
}

// gameteTable expands g against the catalog and groups the result by dominant
// ordinal. The first allele seen for an ordinal represents the group.
func gameteTable(g domain.Genotype, catalog []domain.Allele) []gameteGroup {
	var table []gameteGroup
	index := make(map[int]int)
	for _, p := range domain.PotentialGenotypes(g, catalog) {
		i, ok := index[p.Dominant.Ordinal]
		if !ok {
			i = len(table)
			index[p.Dominant.Ordinal] = i
			table = append(table, gameteGroup{dominant: p.Dominant})
		}
		table[i].others = append(table[i].others, p.Other)
	}
	return table
}

// Cross combines a and b over the catalog. Each pairing of a dominant group
// and other-allele candidate from both parents yields four offspring, which
// are collapsed by canonical identity and ordered by dominant then other
// ordinal. Fully known parents need no catalog.
func Cross(catalog []domain.Allele, a, b domain.Genotype) []domain.GenotypeCount {
	locusID := a.LocusID
	if locusID == uuid.Nil {
		locusID = b.LocusID
	}

	ta, tb := gameteTable(a, catalog), gameteTable(b, catalog)

	var order []string
	counts := make(map[string]*domain.GenotypeCount)
	add := func(x, y *domain.Allele) {
		g := domain.NewGenotype(locusID, x, y)
		k := g.Key()
		if c, ok := counts[k]; ok {
			c.Count++
			return
		}
		counts[k] = &domain.GenotypeCount{Genotype: g, Count: 1}
		order = append(order, k)
	}

	for _, ga := range ta {
		for _, aOther := range ga.others {
			for _, gb := range tb {
				for _, bOther := range gb.others {
					add(ga.dominant, gb.dominant)
					add(aOther, gb.dominant)
					add(bOther, ga.dominant)
					add(bOther, aOther)
				}
			}
		}
	}

	out := make([]domain.GenotypeCount, 0, len(order))
	for _, k := range order {
		out = append(out, *counts[k])
	}
	sortCounts(out)
	return out
}

func sortCounts(cs []domain.GenotypeCount) {
	sort.SliceStable(cs, func(i, j int) bool { return domain.Less(cs[i].Genotype, cs[j].Genotype) })
}

// Offspring returns just the genotype classes of a × b.
func Offspring(catalog []domain.Allele, a, b domain.Genotype) []domain.Genotype {
	counts := Cross(catalog, a, b)
	out := make([]domain.Genotype, len(counts))
	for i, c := range counts {
		out[i] = c.Genotype
	}
	return out
}

// AlleleRepository supplies the ordered allele catalog of a locus.
type AlleleRepository interface {
	GetAllelesForLocus(ctx context.Context, locusID uuid.UUID) ([]domain.Allele, error)
}

// Square crosses genotypes whose catalog is resolved through a repository.
type Square struct {
	alleles AlleleRepository
	logger  *slog.Logger
}

// New creates a Square. The repository is required.
func New(alleles AlleleRepository, logger *slog.Logger) (*Square, error) {
	if alleles == nil {
		return nil, fmt.Errorf("punnett: new: allele repository: %w", domain.ErrInvalidArgument)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Square{alleles: alleles, logger: logger}, nil
}

// Cross returns the offspring classes of a × b with raw counts.
func (s *Square) Cross(ctx context.Context, a, b domain.Genotype) ([]domain.GenotypeCount, error) {
	if a.LocusID != uuid.Nil && b.LocusID != uuid.Nil && a.LocusID != b.LocusID {
		return nil, fmt.Errorf("punnett: cross: %s vs %s: %w", a.LocusID, b.LocusID, domain.ErrLocusMismatch)
	}
	locusID := a.LocusID
	if locusID == uuid.Nil {
		locusID = b.LocusID
	}
	if locusID == uuid.Nil {
		return nil, fmt.Errorf("punnett: cross: locus id: %w", domain.ErrInvalidArgument)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("punnett: cross: %w", err)
	}

	catalog, err := s.alleles.GetAllelesForLocus(ctx, locusID)
	if err != nil {
		return nil, fmt.Errorf("punnett: cross: alleles for %s: %w", locusID, err)
	}
	if a.LocusID == uuid.Nil {
		a.LocusID = locusID
	}
	if b.LocusID == uuid.Nil {
		b.LocusID = locusID
	}

	counts := Cross(catalog, a, b)
	s.logger.Debug("cross computed",
		"locus", locusID,
		"a", a.String(),
		"b", b.String(),
		"classes", len(counts),
	)
	return counts, nil
}

// Ratios is Cross with weights normalized to sum to 1.
func (s *Square) Ratios(ctx context.Context, a, b domain.Genotype) ([]domain.GenotypeRatio, error) {
	counts, err := s.Cross(ctx, a, b)
	if err != nil {
		return nil, err
	}
	return domain.Ratios(counts), nil
}
