package pedigree

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v2"

	"github.com/WessleyAI/heredity/engine/domain"
)

// namespace seeds identifiers derived from names in pedigree files.
var namespace = uuid.MustParse("6f0c9c3e-4a52-5d8e-9a0e-2b1f3c7d8e41")

// NameID derives the stable identifier used for a named record of kind.
func NameID(kind, name string) uuid.UUID {
	return uuid.NewSHA1(namespace, []byte(kind+"/"+strings.ToLower(strings.TrimSpace(name))))
}

type alleleDoc struct {
	ID              string `yaml:"id"`
	Name            string `yaml:"name"`
	Symbol          string `yaml:"symbol"`
	GenotypeSymbol  string `yaml:"genotype_symbol"`
	PhenotypeSymbol string `yaml:"phenotype_symbol"`
	Description     string `yaml:"description"`
	Ordinal         int    `yaml:"ordinal"`
	Dominance       string `yaml:"dominance"`
	WildType        bool   `yaml:"wild_type"`
}

type locusDoc struct {
	ID          string      `yaml:"id"`
	Name        string      `yaml:"name"`
	Symbol      string      `yaml:"symbol"`
	Description string      `yaml:"description"`
	Alleles     []alleleDoc `yaml:"alleles"`
}

type individualDoc struct {
	ID        string            `yaml:"id"`
	Name      string            `yaml:"name"`
	Sire      string            `yaml:"sire"`
	Dam       string            `yaml:"dam"`
	Genotypes map[string]string `yaml:"genotypes"`
}

type document struct {
	Loci        []locusDoc      `yaml:"loci"`
	Individuals []individualDoc `yaml:"individuals"`
}

// Observation is a recorded genotype of one individual.
type Observation struct {
	IndividualID uuid.UUID
	Genotype     domain.Genotype
}

// Pedigree is a parsed pedigree file.
type Pedigree struct {
	Loci         []domain.Locus
	Individuals  []domain.Individual
	Observations []Observation

	lociByName        map[string]int
	individualsByName map[string]uuid.UUID
}

// Writer accepts pedigree records. MemoryStore and GraphStore implement it.
type Writer interface {
	SaveLocus(ctx context.Context, l domain.Locus) error
	SaveIndividual(ctx context.Context, ind domain.Individual) error
	SaveGenotype(ctx context.Context, individualID uuid.UUID, g domain.Genotype) error
}

// LoadFile parses the pedigree file at path.
func LoadFile(path string) (*Pedigree, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("pedigree: load: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load parses a YAML pedigree. Parents are referenced by name or id and
// genotypes use the notation accepted by domain.ParseGenotype, keyed by locus
// name.
func Load(r io.Reader) (*Pedigree, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("pedigree: load: %w", err)
	}
	var doc document
	if err := yaml.UnmarshalStrict(raw, &doc); err != nil {
		return nil, fmt.Errorf("pedigree: load: %w", err)
	}

	p := &Pedigree{
		lociByName:        make(map[string]int),
		individualsByName: make(map[string]uuid.UUID),
	}
	for _, ld := range doc.Loci {
		l, err := ld.locus()
		if err != nil {
			return nil, fmt.Errorf("pedigree: load: locus %q: %w", ld.Name, err)
		}
		p.lociByName[strings.ToLower(l.Name)] = len(p.Loci)
		p.Loci = append(p.Loci, l)
	}

	for _, d := range doc.Individuals {
		id, err := parseID(d.ID, "individual", d.Name)
		if err != nil {
			return nil, fmt.Errorf("pedigree: load: individual %q: %w", d.Name, err)
		}
		if d.Name != "" {
			p.individualsByName[strings.ToLower(d.Name)] = id
		}
	}
	for _, d := range doc.Individuals {
		if err := p.addIndividual(d); err != nil {
			return nil, fmt.Errorf("pedigree: load: individual %q: %w", d.Name, err)
		}
	}
	return p, nil
}

func (d locusDoc) locus() (domain.Locus, error) {
	id, err := parseID(d.ID, "locus", d.Name)
	if err != nil {
		return domain.Locus{}, err
	}
	l := domain.Locus{ID: id, Name: d.Name, Symbol: d.Symbol, Description: d.Description}
	for _, ad := range d.Alleles {
		aid, err := parseID(ad.ID, "allele", d.Name+"/"+ad.Name)
		if err != nil {
			return domain.Locus{}, err
		}
		dom, err := domain.ParseDominance(ad.Dominance)
		if err != nil {
			return domain.Locus{}, err
		}
		l.Alleles = append(l.Alleles, domain.Allele{
			ID:              aid,
			Ordinal:         ad.Ordinal,
			Name:            ad.Name,
			Symbol:          ad.Symbol,
			GenotypeSymbol:  ad.GenotypeSymbol,
			PhenotypeSymbol: ad.PhenotypeSymbol,
			Description:     ad.Description,
			Dominance:       dom,
			WildType:        ad.WildType,
		})
	}
	l.SortAlleles()
	if err := domain.ValidateLocus(l); err != nil {
		return domain.Locus{}, err
	}
	return l, nil
}

func (p *Pedigree) addIndividual(d individualDoc) error {
	id, err := parseID(d.ID, "individual", d.Name)
	if err != nil {
		return err
	}
	sire, err := p.ref(d.Sire)
	if err != nil {
		return err
	}
	dam, err := p.ref(d.Dam)
	if err != nil {
		return err
	}
	p.Individuals = append(p.Individuals, domain.Individual{ID: id, Name: d.Name, PaternalID: sire, MaternalID: dam})

	// stable order for reproducible imports
	names := make([]string, 0, len(d.Genotypes))
	for name := range d.Genotypes {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, locusName := range names {
		l, err := p.Locus(locusName)
		if err != nil {
			return err
		}
		g, err := domain.ParseGenotype(l, d.Genotypes[locusName])
		if err != nil {
			return err
		}
		p.Observations = append(p.Observations, Observation{IndividualID: id, Genotype: g})
	}
	return nil
}

// ref resolves a parent reference given as a name or an id.
func (p *Pedigree) ref(s string) (uuid.UUID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return uuid.Nil, nil
	}
	if id, ok := p.individualsByName[strings.ToLower(s)]; ok {
		return id, nil
	}
	if id, err := uuid.Parse(s); err == nil {
		return id, nil
	}
	return uuid.Nil, domain.NewValidationError("parent", s, domain.ErrNotFound)
}

func parseID(raw, kind, name string) (uuid.UUID, error) {
	if raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return uuid.Nil, domain.NewValidationError(kind+".id", raw, domain.ErrInvalidArgument)
		}
		return id, nil
	}
	if strings.TrimSpace(name) == "" {
		return uuid.Nil, domain.NewValidationError(kind+".name", name, domain.ErrInvalidArgument)
	}
	return NameID(kind, name), nil
}

// Locus returns the parsed locus with the given name.
func (p *Pedigree) Locus(name string) (*domain.Locus, error) {
	i, ok := p.lociByName[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, domain.NewValidationError("locus", name, domain.ErrNotFound)
	}
	return &p.Loci[i], nil
}

// IndividualID resolves an individual by name or id.
func (p *Pedigree) IndividualID(ref string) (uuid.UUID, error) {
	id, err := p.ref(ref)
	if err != nil {
		return uuid.Nil, err
	}
	if id == uuid.Nil {
		return uuid.Nil, domain.NewValidationError("individual", ref, domain.ErrInvalidArgument)
	}
	return id, nil
}

// Apply writes loci, then individuals, then observations to w.
func (p *Pedigree) Apply(ctx context.Context, w Writer) error {
	for _, l := range p.Loci {
		if err := w.SaveLocus(ctx, l); err != nil {
			return err
		}
	}
	for _, ind := range p.Individuals {
		if err := w.SaveIndividual(ctx, ind); err != nil {
			return err
		}
	}
	for _, o := range p.Observations {
		if err := w.SaveGenotype(ctx, o.IndividualID, o.Genotype); err != nil {
			return err
		}
	}
	return nil
}

// Memory loads p into a fresh MemoryStore.
func (p *Pedigree) Memory(ctx context.Context) (*MemoryStore, error) {
	s := NewMemoryStore()
	if err := p.Apply(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}
