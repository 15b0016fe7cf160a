// Package calculator infers the genotype of an individual at one locus from
// pedigree evidence. Parents narrow the candidates through a cross; each
// group of offspring shared with one co-parent then removes candidates that
// could not have produced the offspring genotypes actually observed.
package calculator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/WessleyAI/heredity/engine/domain"
	"github.com/WessleyAI/heredity/engine/punnett"
	"github.com/WessleyAI/heredity/pkg/fn"
	"github.com/WessleyAI/heredity/pkg/metrics"
)

// IndividualRepository resolves pedigree nodes.
type IndividualRepository interface {
	// GetIndividual fails with domain.ErrNotFound when id is unknown.
	GetIndividual(ctx context.Context, id uuid.UUID) (domain.Individual, error)
	// GetOffspring returns every individual with id as either parent.
	GetOffspring(ctx context.Context, id uuid.UUID) ([]domain.Individual, error)
}

// GenotypeRepository resolves recorded genotypes. An individual without a
// recorded genotype yields a wildcard, not an error.
type GenotypeRepository interface {
	GetGenotype(ctx context.Context, individualID, locusID uuid.UUID) (domain.Genotype, error)
	GetOffspringGenotypes(ctx context.Context, paternalID, maternalID, locusID uuid.UUID) ([]domain.Genotype, error)
}

// Options configures the calculator.
type Options struct {
	// Workers bounds concurrent crosses during refinement. Zero means unbounded.
	Workers int
	// Metrics receives call counts and latencies when set.
	Metrics *metrics.Registry
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{Workers: 8}
}

// Calculator is the inference engine. It holds no per-call state and is safe
// for concurrent use.
type Calculator struct {
	individuals IndividualRepository
	genotypes   GenotypeRepository
	alleles     punnett.AlleleRepository
	opts        Options
	logger      *slog.Logger
}

// New creates a Calculator. All repositories are required.
func New(individuals IndividualRepository, genotypes GenotypeRepository, alleles punnett.AlleleRepository, opts Options, logger *slog.Logger) (*Calculator, error) {
	switch {
	case individuals == nil:
		return nil, fmt.Errorf("calculator: new: individual repository: %w", domain.ErrInvalidArgument)
	case genotypes == nil:
		return nil, fmt.Errorf("calculator: new: genotype repository: %w", domain.ErrInvalidArgument)
	case alleles == nil:
		return nil, fmt.Errorf("calculator: new: allele repository: %w", domain.ErrInvalidArgument)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Calculator{
		individuals: individuals,
		genotypes:   genotypes,
		alleles:     alleles,
		opts:        opts,
		logger:      logger,
	}, nil
}

// Infer returns every genotype of individualID at locusID consistent with
// the recorded pedigree, ordered by dominant then other ordinal.
func (c *Calculator) Infer(ctx context.Context, individualID, locusID uuid.UUID) ([]domain.Genotype, error) {
	ctx, span := otel.Tracer("engine/calculator").Start(ctx, "calculator.infer")
	defer span.End()
	span.SetAttributes(
		attribute.String("individual.id", individualID.String()),
		attribute.String("locus.id", locusID.String()),
	)

	start := time.Now()
	result, err := c.infer(ctx, individualID, locusID)
	c.observe(start, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("candidates", len(result)))
	c.logger.Info("genotype inferred",
		"individual", individualID,
		"locus", locusID,
		"candidates", len(result),
		"duration", time.Since(start),
	)
	return result, nil
}

func (c *Calculator) observe(start time.Time, err error) {
	if c.opts.Metrics == nil {
		return
	}
	outcome := "ok"
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		outcome = "cancelled"
	case errors.Is(err, domain.ErrNotFound):
		outcome = "not_found"
	case err != nil:
		outcome = "error"
	}
	c.opts.Metrics.Counter(metrics.WithLabels("heredity_infer_total", "outcome", outcome), "Genotype inference calls").Inc()
	c.opts.Metrics.Histogram("heredity_infer_duration_seconds", "Genotype inference latency", nil).Since(start)
}

func (c *Calculator) infer(ctx context.Context, individualID, locusID uuid.UUID) ([]domain.Genotype, error) {
	ind, err := c.individuals.GetIndividual(ctx, individualID)
	if err != nil {
		return nil, fmt.Errorf("calculator: individual %s: %w", individualID, err)
	}
	own, err := c.genotypes.GetGenotype(ctx, individualID, locusID)
	if err != nil {
		return nil, fmt.Errorf("calculator: genotype of %s: %w", individualID, err)
	}
	if own.Known() {
		return []domain.Genotype{own}, nil
	}

	catalog, err := c.alleles.GetAllelesForLocus(ctx, locusID)
	if err != nil {
		return nil, fmt.Errorf("calculator: alleles for %s: %w", locusID, err)
	}
	run := &inference{Calculator: c, locusID: locusID, catalog: catalog}

	candidates, err := run.fromParents(ctx, ind, own)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("parent evidence applied", "individual", individualID, "candidates", len(candidates))
	if len(candidates) <= 1 {
		return candidates, nil
	}
	return run.fromOffspring(ctx, ind, candidates)
}

// inference carries the locus catalog through one Infer call.
type inference struct {
	*Calculator
	locusID uuid.UUID
	catalog []domain.Allele
}

// genotypeOf returns the recorded genotype of id, or a wildcard when id is
// unset. An id naming no individual fails with domain.ErrNotFound.
func (r *inference) genotypeOf(ctx context.Context, id uuid.UUID) (domain.Genotype, error) {
	if id == uuid.Nil {
		return domain.Wildcard(r.locusID), nil
	}
	g, err := r.genotypes.GetGenotype(ctx, id, r.locusID)
	if err != nil {
		return domain.Genotype{}, fmt.Errorf("calculator: genotype of %s: %w", id, err)
	}
	return g, nil
}

// fromParents crosses the parents and keeps the offspring classes that agree
// with whatever is already known about the individual.
func (r *inference) fromParents(ctx context.Context, ind domain.Individual, own domain.Genotype) ([]domain.Genotype, error) {
	parents, err := fn.FanOut(ctx,
		func(ctx context.Context) (domain.Genotype, error) { return r.genotypeOf(ctx, ind.PaternalID) },
		func(ctx context.Context) (domain.Genotype, error) { return r.genotypeOf(ctx, ind.MaternalID) },
	)
	if err != nil {
		return nil, err
	}
	candidates := punnett.Offspring(r.catalog, parents[0], parents[1])
	if own.Dominant != nil {
		candidates = fn.Filter(candidates, func(g domain.Genotype) bool {
			return g.Dominant.Ordinal == own.Dominant.Ordinal
		})
	}
	return candidates, nil
}

type parentPair struct {
	paternal, maternal uuid.UUID
}

// fromOffspring folds the sibling groups over the candidate set in the order
// the groups first appear among the offspring.
func (r *inference) fromOffspring(ctx context.Context, ind domain.Individual, candidates []domain.Genotype) ([]domain.Genotype, error) {
	offspring, err := r.individuals.GetOffspring(ctx, ind.ID)
	if err != nil {
		return nil, fmt.Errorf("calculator: offspring of %s: %w", ind.ID, err)
	}
	groups := fn.GroupBy(offspring, func(o domain.Individual) parentPair {
		return parentPair{paternal: o.PaternalID, maternal: o.MaternalID}
	})

	for _, group := range groups {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("calculator: infer: %w", err)
		}
		candidates, err = r.applySiblings(ctx, ind, group, candidates)
		if err != nil {
			return nil, err
		}
		r.logger.Debug("sibling group applied",
			"individual", ind.ID,
			"co_parent", group.Items[0].CoParent(ind.ID),
			"siblings", len(group.Items),
			"candidates", len(candidates),
		)
	}
	return candidates, nil
}

func (r *inference) applySiblings(ctx context.Context, ind domain.Individual, group fn.Group[parentPair, domain.Individual], candidates []domain.Genotype) ([]domain.Genotype, error) {
	siblings, err := r.genotypes.GetOffspringGenotypes(ctx, group.Key.paternal, group.Key.maternal, r.locusID)
	if err != nil {
		return nil, fmt.Errorf("calculator: offspring genotypes of %s x %s: %w", group.Key.paternal, group.Key.maternal, err)
	}
	expressed := expressedGenotypes(siblings)

	coParent, err := r.genotypeOf(ctx, group.Items[0].CoParent(ind.ID))
	if err != nil {
		return nil, err
	}
	partners := domain.PotentialGenotypes(coParent, r.catalog)
	if len(partners) > 1 {
		partners, err = r.refine(ctx, expressed, partners, candidates)
		if err != nil {
			return nil, err
		}
	}
	return r.refine(ctx, expressed, candidates, partners)
}

// expressedGenotypes keeps the sibling genotypes with a known dominant
// allele, one per canonical identity, ordered by dominant ordinal.
func expressedGenotypes(siblings []domain.Genotype) []domain.Genotype {
	out := fn.UniqueBy(
		fn.Filter(siblings, func(g domain.Genotype) bool { return g.Dominant != nil }),
		domain.Genotype.Key,
	)
	domain.SortGenotypes(out)
	return out
}

// refine keeps each subject genotype that, crossed with some partner, can
// account for every expressed genotype.
func (r *inference) refine(ctx context.Context, expressed, subjects, partners []domain.Genotype) ([]domain.Genotype, error) {
	kept, err := fn.ParFilter(ctx, subjects, r.opts.Workers, func(ctx context.Context, subject domain.Genotype) (bool, error) {
		offspring := fn.FlatMap(partners, func(p domain.Genotype) []domain.Genotype {
			return punnett.Offspring(r.catalog, subject, p)
		})
		return fn.All(expressed, func(e domain.Genotype) bool {
			return fn.Any(offspring, func(o domain.Genotype) bool { return o.Explains(e) })
		}), nil
	})
	if err != nil {
		return nil, fmt.Errorf("calculator: refine: %w", err)
	}
	return kept, nil
}
