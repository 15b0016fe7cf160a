package domain

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// Genotype is an unordered pair of alleles at one locus, stored canonically:
// when both slots are known Dominant.Ordinal <= Other.Ordinal. A nil slot is
// unknown; a genotype with both slots nil is a full wildcard.
type Genotype struct {
	LocusID  uuid.UUID `json:"locus_id"`
	Dominant *Allele   `json:"dominant,omitempty"`
	Other    *Allele   `json:"other,omitempty"`
}

// NewGenotype canonicalizes a pair of alleles. A lone known allele always
// lands in the Dominant slot. Alleles sharing an ordinal are ordered by
// display symbol, then id, so {X, Y} has a single form.
func NewGenotype(locusID uuid.UUID, a, b *Allele) Genotype {
	switch {
	case a == nil:
		return Genotype{LocusID: locusID, Dominant: b}
	case b == nil || precedes(a, b):
		return Genotype{LocusID: locusID, Dominant: a, Other: b}
	default:
		return Genotype{LocusID: locusID, Dominant: b, Other: a}
	}
}

// precedes reports whether a belongs in the dominant slot ahead of b.
func precedes(a, b *Allele) bool {
	if a.Ordinal != b.Ordinal {
		return a.Ordinal < b.Ordinal
	}
	if as, bs := a.String(), b.String(); as != bs {
		return as < bs
	}
	return a.ID.String() <= b.ID.String()
}

// Wildcard is the genotype with both slots unknown.
func Wildcard(locusID uuid.UUID) Genotype {
	return Genotype{LocusID: locusID}
}

// BuildGenotype records an observation of allele, optionally paired with
// other. A lone recessive allele can only be expressed by a homozygote, so it
// fills both slots.
func BuildGenotype(locusID uuid.UUID, allele, other *Allele) Genotype {
	if allele != nil && other == nil && allele.Dominance == Recessive {
		return NewGenotype(locusID, allele, allele)
	}
	return NewGenotype(locusID, allele, other)
}

// Known reports whether both slots are filled.
func (g Genotype) Known() bool { return g.Dominant != nil && g.Other != nil }

// IsWildcard reports whether both slots are unknown.
func (g Genotype) IsWildcard() bool { return g.Dominant == nil && g.Other == nil }

// IsHomozygous reports whether both alleles share an ordinal. The second
// result is false when either slot is unknown and the answer is undefined.
func (g Genotype) IsHomozygous() (homozygous, defined bool) {
	if !g.Known() {
		return false, false
	}
	return g.Dominant.Ordinal == g.Other.Ordinal, true
}

// String renders "dominant/other" with "_" for unknown slots, e.g. "e(j)/e".
func (g Genotype) String() string {
	return slotString(g.Dominant) + "/" + slotString(g.Other)
}

func slotString(a *Allele) string {
	if a == nil {
		return "_"
	}
	return a.String()
}

func slotOrdinal(a *Allele) int {
	if a == nil {
		return -1
	}
	return a.Ordinal
}

// Key is the deduplication identity: ordinal pair plus display form.
func (g Genotype) Key() string {
	return fmt.Sprintf("%d/%d|%s", slotOrdinal(g.Dominant), slotOrdinal(g.Other), g.String())
}

// Explains reports whether g, as a concrete offspring genotype, accounts for
// the observed genotype: the dominant ordinals agree and, when the observed
// other slot is known, the other ordinals agree too.
func (g Genotype) Explains(observed Genotype) bool {
	if g.Dominant == nil || observed.Dominant == nil {
		return false
	}
	if g.Dominant.Ordinal != observed.Dominant.Ordinal {
		return false
	}
	if observed.Other == nil {
		return true
	}
	return g.Other != nil && g.Other.Ordinal == observed.Other.Ordinal
}

// PotentialGenotypes expands g into every concrete genotype it could be
// given the locus catalog. Known genotypes expand to themselves.
func PotentialGenotypes(g Genotype, catalog []Allele) []Genotype {
	if g.Known() {
		return []Genotype{g}
	}
	var out []Genotype
	seen := make(map[string]bool)
	add := func(x, y *Allele) {
		p := NewGenotype(g.LocusID, x, y)
		if k := p.Key(); !seen[k] {
			seen[k] = true
			out = append(out, p)
		}
	}
	if g.Dominant == nil {
		for i := range catalog {
			for j := range catalog {
				if catalog[j].Ordinal >= catalog[i].Ordinal {
					add(&catalog[i], &catalog[j])
				}
			}
		}
		return out
	}
	for j := range catalog {
		if catalog[j].Ordinal >= g.Dominant.Ordinal {
			add(g.Dominant, &catalog[j])
		}
	}
	return out
}

// Less orders genotypes by dominant ordinal, then other ordinal, then display
// form. Unknown slots sort first.
func Less(a, b Genotype) bool {
	da, db := slotOrdinal(a.Dominant), slotOrdinal(b.Dominant)
	if da != db {
		return da < db
	}
	if oa, ob := slotOrdinal(a.Other), slotOrdinal(b.Other); oa != ob {
		return oa < ob
	}
	return a.String() < b.String()
}

// SortGenotypes sorts gs in place using Less.
func SortGenotypes(gs []Genotype) {
	sort.SliceStable(gs, func(i, j int) bool { return Less(gs[i], gs[j]) })
}

// ParseGenotype reads notation like "Harlequin/NonExtension", "E/_", "A/?" or
// a single allele against the locus catalog. Tokens match allele names or
// display symbols; "_", "?" and "" are unknown. A single token goes through
// BuildGenotype.
func ParseGenotype(locus *Locus, notation string) (Genotype, error) {
	parts := strings.Split(strings.TrimSpace(notation), "/")
	if len(parts) > 2 {
		return Genotype{}, NewValidationError("genotype", notation, ErrInvalidArgument)
	}
	slots := make([]*Allele, 2)
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" || p == "_" || p == "?" {
			continue
		}
		a, ok := locus.Lookup(p)
		if !ok {
			return Genotype{}, NewValidationError("allele", p, ErrUnknownAllele)
		}
		slots[i] = a
	}
	if len(parts) == 1 {
		return BuildGenotype(locus.ID, slots[0], nil), nil
	}
	return NewGenotype(locus.ID, slots[0], slots[1]), nil
}
