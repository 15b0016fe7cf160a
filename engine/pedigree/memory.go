// Package pedigree stores loci, individuals and their recorded genotypes and
// serves them to the inference engine. MemoryStore keeps everything in
// process; GraphStore keeps the pedigree in Neo4j.
package pedigree

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/WessleyAI/heredity/engine/domain"
)

type genotypeKey struct {
	individual uuid.UUID
	locus      uuid.UUID
}

// MemoryStore is a thread-safe in-memory pedigree. Offspring are returned in
// the order they were first saved.
type MemoryStore struct {
	mu          sync.RWMutex
	loci        map[uuid.UUID]*domain.Locus
	individuals map[uuid.UUID]domain.Individual
	order       []uuid.UUID
	genotypes   map[genotypeKey]domain.Genotype
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		loci:        make(map[uuid.UUID]*domain.Locus),
		individuals: make(map[uuid.UUID]domain.Individual),
		genotypes:   make(map[genotypeKey]domain.Genotype),
	}
}

// SaveLocus validates and stores a locus catalog, sorted by ordinal.
func (s *MemoryStore) SaveLocus(_ context.Context, l domain.Locus) error {
	if err := domain.ValidateLocus(l); err != nil {
		return fmt.Errorf("pedigree: save locus: %w", err)
	}
	cp := l
	cp.Alleles = append([]domain.Allele(nil), l.Alleles...)
	cp.SortAlleles()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loci[cp.ID] = &cp
	return nil
}

// SaveIndividual stores or replaces an individual.
func (s *MemoryStore) SaveIndividual(_ context.Context, ind domain.Individual) error {
	if ind.ID == uuid.Nil {
		return fmt.Errorf("pedigree: save individual: %w", domain.NewValidationError("individual.id", "", domain.ErrInvalidArgument))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.individuals[ind.ID]; !ok {
		s.order = append(s.order, ind.ID)
	}
	s.individuals[ind.ID] = ind
	return nil
}

// SaveGenotype records g for an existing individual. Allele references are
// rebound to the stored catalog.
func (s *MemoryStore) SaveGenotype(_ context.Context, individualID uuid.UUID, g domain.Genotype) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.individuals[individualID]; !ok {
		return fmt.Errorf("pedigree: save genotype: %w", domain.NotFound("individual", individualID))
	}
	l, ok := s.loci[g.LocusID]
	if !ok {
		return fmt.Errorf("pedigree: save genotype: %w", domain.NotFound("locus", g.LocusID))
	}
	if err := domain.ValidateGenotype(*l, g); err != nil {
		return fmt.Errorf("pedigree: save genotype: %w", err)
	}
	s.genotypes[genotypeKey{individualID, g.LocusID}] = domain.NewGenotype(g.LocusID, rebind(l, g.Dominant), rebind(l, g.Other))
	return nil
}

func rebind(l *domain.Locus, a *domain.Allele) *domain.Allele {
	if a == nil {
		return nil
	}
	stored, _ := l.Allele(a.ID)
	return stored
}

// GetLocus returns a copy of the stored locus.
func (s *MemoryStore) GetLocus(_ context.Context, id uuid.UUID) (domain.Locus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.loci[id]
	if !ok {
		return domain.Locus{}, domain.NotFound("locus", id)
	}
	cp := *l
	cp.Alleles = append([]domain.Allele(nil), l.Alleles...)
	return cp, nil
}

// GetAllelesForLocus returns the catalog ordered by ordinal.
func (s *MemoryStore) GetAllelesForLocus(ctx context.Context, id uuid.UUID) ([]domain.Allele, error) {
	l, err := s.GetLocus(ctx, id)
	if err != nil {
		return nil, err
	}
	return l.Alleles, nil
}

// GetIndividual returns the individual or domain.ErrNotFound.
func (s *MemoryStore) GetIndividual(_ context.Context, id uuid.UUID) (domain.Individual, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ind, ok := s.individuals[id]
	if !ok {
		return domain.Individual{}, domain.NotFound("individual", id)
	}
	return ind, nil
}

// GetOffspring returns the individuals with id as either parent.
func (s *MemoryStore) GetOffspring(_ context.Context, id uuid.UUID) ([]domain.Individual, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Individual
	for _, oid := range s.order {
		if o := s.individuals[oid]; o.HasParent(id) {
			out = append(out, o)
		}
	}
	return out, nil
}

// GetGenotype returns the recorded genotype, or a wildcard when the
// individual exists without one.
func (s *MemoryStore) GetGenotype(_ context.Context, individualID, locusID uuid.UUID) (domain.Genotype, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.genotypeLocked(individualID, locusID)
}

func (s *MemoryStore) genotypeLocked(individualID, locusID uuid.UUID) (domain.Genotype, error) {
	if _, ok := s.individuals[individualID]; !ok {
		return domain.Genotype{}, domain.NotFound("individual", individualID)
	}
	if g, ok := s.genotypes[genotypeKey{individualID, locusID}]; ok {
		return g, nil
	}
	return domain.Wildcard(locusID), nil
}

// GetOffspringGenotypes returns the genotypes of every offspring of exactly
// this parent pair. uuid.Nil matches an unrecorded parent.
func (s *MemoryStore) GetOffspringGenotypes(_ context.Context, paternalID, maternalID, locusID uuid.UUID) ([]domain.Genotype, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Genotype
	for _, oid := range s.order {
		o := s.individuals[oid]
		if o.PaternalID != paternalID || o.MaternalID != maternalID {
			continue
		}
		g, err := s.genotypeLocked(oid, locusID)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, nil
}
