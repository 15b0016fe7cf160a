package domain

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// ValidateLocus checks a catalog before it is stored or crossed.
func ValidateLocus(l Locus) error {
	if l.ID == uuid.Nil {
		return NewValidationError("locus.id", "", ErrInvalidArgument)
	}
	if strings.TrimSpace(l.Name) == "" {
		return NewValidationError("locus.name", l.Name, ErrInvalidArgument)
	}
	seen := make(map[uuid.UUID]bool, len(l.Alleles))
	for _, a := range l.Alleles {
		if a.ID == uuid.Nil {
			return NewValidationError("allele.id", a.Name, ErrInvalidArgument)
		}
		if seen[a.ID] {
			return NewValidationError("allele.id", a.ID.String(), ErrInvalidArgument)
		}
		seen[a.ID] = true
		if a.Ordinal < 0 {
			return NewValidationError("allele.ordinal", strconv.Itoa(a.Ordinal), ErrInvalidArgument)
		}
		if a.Symbol == "" {
			return NewValidationError("allele.symbol", a.Name, ErrInvalidArgument)
		}
	}
	return nil
}

// ValidateGenotype checks that g belongs to l and is canonical.
func ValidateGenotype(l Locus, g Genotype) error {
	if g.LocusID != l.ID {
		return NewValidationError("genotype.locus_id", g.LocusID.String(), ErrLocusMismatch)
	}
	for _, a := range []*Allele{g.Dominant, g.Other} {
		if a == nil {
			continue
		}
		if _, ok := l.Allele(a.ID); !ok {
			return NewValidationError("genotype.allele", a.String(), ErrUnknownAllele)
		}
	}
	if g.Dominant == nil && g.Other != nil {
		return NewValidationError("genotype", g.String(), ErrInvalidArgument)
	}
	if g.Known() && g.Dominant.Ordinal > g.Other.Ordinal {
		return NewValidationError("genotype", g.String(), ErrInvalidArgument)
	}
	return nil
}
