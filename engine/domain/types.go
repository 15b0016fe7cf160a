// Package domain defines the genetics model shared by the cross and inference
// engines: alleles, loci, genotypes, individuals and the weighted results of a
// cross. Values here are plain records; the catalog and pedigree are supplied
// by the caller.
package domain

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// Dominance classifies how an allele expresses against the others at its locus.
type Dominance int

const (
	Dominant Dominance = iota
	Recessive
	Incomplete
)

func (d Dominance) String() string {
	switch d {
	case Dominant:
		return "dominant"
	case Recessive:
		return "recessive"
	case Incomplete:
		return "incomplete"
	default:
		return "unknown"
	}
}

// ParseDominance maps a dominance name to its value. The empty string is Dominant.
func ParseDominance(s string) (Dominance, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "dominant":
		return Dominant, nil
	case "recessive":
		return Recessive, nil
	case "incomplete":
		return Incomplete, nil
	}
	return Dominant, NewValidationError("dominance", s, ErrInvalidArgument)
}

// MarshalText lets Dominance travel as its name in JSON and YAML.
func (d Dominance) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

// UnmarshalText parses a dominance name.
func (d *Dominance) UnmarshalText(b []byte) error {
	v, err := ParseDominance(string(b))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// Allele is one variant at a locus. A lower Ordinal is more dominant; equal
// ordinals are co-dominant.
type Allele struct {
	ID              uuid.UUID `json:"id"`
	Ordinal         int       `json:"ordinal"`
	Name            string    `json:"name"`
	Symbol          string    `json:"symbol"`
	GenotypeSymbol  string    `json:"genotype_symbol,omitempty"`
	PhenotypeSymbol string    `json:"phenotype_symbol,omitempty"`
	Description     string    `json:"description,omitempty"`
	Dominance       Dominance `json:"dominance"`
	WildType        bool      `json:"wild_type,omitempty"`
}

// String renders the display symbol, e.g. "e(j)" for Harlequin.
func (a Allele) String() string {
	if a.GenotypeSymbol == "" {
		return a.Symbol
	}
	return fmt.Sprintf("%s(%s)", a.Symbol, a.GenotypeSymbol)
}

// Locus is a gene location and its allele catalog.
type Locus struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Symbol      string    `json:"symbol,omitempty"`
	Description string    `json:"description,omitempty"`
	Alleles     []Allele  `json:"alleles"`
}

// Allele returns the catalog entry with the given id.
func (l *Locus) Allele(id uuid.UUID) (*Allele, bool) {
	for i := range l.Alleles {
		if l.Alleles[i].ID == id {
			return &l.Alleles[i], true
		}
	}
	return nil, false
}

// Lookup resolves an allele by name or display symbol, case-insensitively on
// the name and exactly on the symbol.
func (l *Locus) Lookup(token string) (*Allele, bool) {
	token = strings.TrimSpace(token)
	for i := range l.Alleles {
		a := &l.Alleles[i]
		if a.String() == token || strings.EqualFold(a.Name, token) {
			return a, true
		}
	}
	return nil, false
}

// SortAlleles orders the catalog by ordinal, keeping declaration order for ties.
func (l *Locus) SortAlleles() {
	sort.SliceStable(l.Alleles, func(i, j int) bool {
		return l.Alleles[i].Ordinal < l.Alleles[j].Ordinal
	})
}

// Individual is a node of the pedigree. uuid.Nil marks an unrecorded parent.
type Individual struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name,omitempty"`
	PaternalID uuid.UUID `json:"paternal_id"`
	MaternalID uuid.UUID `json:"maternal_id"`
}

// NewOffspring returns an individual descended from the given parents.
func NewOffspring(id, paternalID, maternalID uuid.UUID) Individual {
	return Individual{ID: id, PaternalID: paternalID, MaternalID: maternalID}
}

// HasParent reports whether id is recorded as either parent.
func (i Individual) HasParent(id uuid.UUID) bool {
	return id != uuid.Nil && (i.PaternalID == id || i.MaternalID == id)
}

// CoParent returns the other parent of i relative to parentID.
func (i Individual) CoParent(parentID uuid.UUID) uuid.UUID {
	if i.PaternalID == parentID {
		return i.MaternalID
	}
	return i.PaternalID
}

// GenotypeCount is a cross result class with its raw multiplicity.
type GenotypeCount struct {
	Genotype Genotype `json:"genotype"`
	Count    int      `json:"count"`
}

// GenotypeRatio is a cross result class with its share of the total.
type GenotypeRatio struct {
	Genotype Genotype `json:"genotype"`
	Ratio    float64  `json:"ratio"`
}

// Ratios normalizes counts so the weights of one cross sum to 1.
func Ratios(counts []GenotypeCount) []GenotypeRatio {
	total := 0
	for _, c := range counts {
		total += c.Count
	}
	out := make([]GenotypeRatio, 0, len(counts))
	if total == 0 {
		return out
	}
	for _, c := range counts {
		out = append(out, GenotypeRatio{Genotype: c.Genotype, Ratio: float64(c.Count) / float64(total)})
	}
	return out
}
