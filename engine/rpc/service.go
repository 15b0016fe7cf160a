// Package rpc exposes the cross and inference engines to remote callers.
// Service holds the transport-neutral request handling; the gRPC server in
// this package, the NATS worker and the HTTP API all delegate to it.
package rpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/WessleyAI/heredity/engine/domain"
	"github.com/WessleyAI/heredity/engine/punnett"
	"github.com/WessleyAI/heredity/pkg/resilience"
)

// CrossRequest crosses two genotypes written in notation such as "A/a(t)"
// or "Harlequin/?".
type CrossRequest struct {
	LocusID string `json:"locus_id"`
	A       string `json:"a"`
	B       string `json:"b"`
}

// GenotypeClass is one offspring class of a cross.
type GenotypeClass struct {
	Genotype string  `json:"genotype"`
	Count    int     `json:"count"`
	Ratio    float64 `json:"ratio"`
}

// CrossResponse lists offspring classes by dominant then other ordinal.
type CrossResponse struct {
	LocusID string          `json:"locus_id"`
	A       string          `json:"a"`
	B       string          `json:"b"`
	Total   int             `json:"total"`
	Classes []GenotypeClass `json:"classes"`
}

// InferRequest asks for the candidate genotypes of one individual.
type InferRequest struct {
	IndividualID string `json:"individual_id"`
	LocusID      string `json:"locus_id"`
}

// Candidate is a genotype consistent with the pedigree.
type Candidate struct {
	Genotype string `json:"genotype"`
	Dominant string `json:"dominant,omitempty"`
	Other    string `json:"other,omitempty"`
}

// InferResponse lists candidates by dominant then other ordinal.
type InferResponse struct {
	IndividualID string      `json:"individual_id"`
	LocusID      string      `json:"locus_id"`
	Genotypes    []Candidate `json:"genotypes"`
}

// Store resolves locus catalogs.
type Store interface {
	GetLocus(ctx context.Context, id uuid.UUID) (domain.Locus, error)
	punnett.AlleleRepository
}

// Inferrer is the inference engine.
type Inferrer interface {
	Infer(ctx context.Context, individualID, locusID uuid.UUID) ([]domain.Genotype, error)
}

// Service answers cross and inference requests.
type Service struct {
	store  Store
	square *punnett.Square
	infer  Inferrer
	logger *slog.Logger
}

// NewService creates a Service. Both collaborators are required.
func NewService(store Store, infer Inferrer, logger *slog.Logger) (*Service, error) {
	if store == nil || infer == nil {
		return nil, fmt.Errorf("rpc: new service: %w", domain.ErrInvalidArgument)
	}
	if logger == nil {
		logger = slog.Default()
	}
	square, err := punnett.New(store, logger)
	if err != nil {
		return nil, fmt.Errorf("rpc: new service: %w", err)
	}
	return &Service{store: store, square: square, infer: infer, logger: logger}, nil
}

func parseID(field, raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, domain.NewValidationError(field, raw, domain.ErrInvalidArgument)
	}
	return id, nil
}

// Cross parses both genotypes against the locus catalog and crosses them.
func (s *Service) Cross(ctx context.Context, req CrossRequest) (CrossResponse, error) {
	locusID, err := parseID("locus_id", req.LocusID)
	if err != nil {
		return CrossResponse{}, fmt.Errorf("rpc: cross: %w", err)
	}
	locus, err := s.store.GetLocus(ctx, locusID)
	if err != nil {
		return CrossResponse{}, fmt.Errorf("rpc: cross: %w", err)
	}
	a, err := domain.ParseGenotype(&locus, req.A)
	if err != nil {
		return CrossResponse{}, fmt.Errorf("rpc: cross: a: %w", err)
	}
	b, err := domain.ParseGenotype(&locus, req.B)
	if err != nil {
		return CrossResponse{}, fmt.Errorf("rpc: cross: b: %w", err)
	}

	counts, err := s.square.Cross(ctx, a, b)
	if err != nil {
		return CrossResponse{}, fmt.Errorf("rpc: cross: %w", err)
	}
	resp := CrossResponse{LocusID: locusID.String(), A: a.String(), B: b.String(), Classes: []GenotypeClass{}}
	for i, r := range domain.Ratios(counts) {
		resp.Total += counts[i].Count
		resp.Classes = append(resp.Classes, GenotypeClass{Genotype: r.Genotype.String(), Count: counts[i].Count, Ratio: r.Ratio})
	}
	return resp, nil
}

// Infer returns the candidate genotypes of an individual.
func (s *Service) Infer(ctx context.Context, req InferRequest) (InferResponse, error) {
	individualID, err := parseID("individual_id", req.IndividualID)
	if err != nil {
		return InferResponse{}, fmt.Errorf("rpc: infer: %w", err)
	}
	locusID, err := parseID("locus_id", req.LocusID)
	if err != nil {
		return InferResponse{}, fmt.Errorf("rpc: infer: %w", err)
	}
	gs, err := s.infer.Infer(ctx, individualID, locusID)
	if err != nil {
		return InferResponse{}, fmt.Errorf("rpc: infer: %w", err)
	}
	resp := InferResponse{IndividualID: individualID.String(), LocusID: locusID.String(), Genotypes: make([]Candidate, 0, len(gs))}
	for _, g := range gs {
		c := Candidate{Genotype: g.String()}
		if g.Dominant != nil {
			c.Dominant = g.Dominant.Name
		}
		if g.Other != nil {
			c.Other = g.Other.Name
		}
		resp.Genotypes = append(resp.Genotypes, c)
	}
	return resp, nil
}

// Error codes shared by the transports.
const (
	CodeInvalidArgument = "invalid_argument"
	CodeNotFound        = "not_found"
	CodeCancelled       = "cancelled"
	CodeDeadline        = "deadline_exceeded"
	CodeUnavailable     = "unavailable"
	CodeInternal        = "internal"
)

// Code classifies err for transport responses.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, domain.ErrInvalidArgument),
		errors.Is(err, domain.ErrUnknownAllele),
		errors.Is(err, domain.ErrLocusMismatch):
		return CodeInvalidArgument
	case errors.Is(err, domain.ErrNotFound):
		return CodeNotFound
	case errors.Is(err, context.Canceled):
		return CodeCancelled
	case errors.Is(err, context.DeadlineExceeded):
		return CodeDeadline
	case errors.Is(err, domain.ErrDataUnavailable), errors.Is(err, resilience.ErrCircuitOpen):
		return CodeUnavailable
	default:
		return CodeInternal
	}
}
