package pedigree

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cenkalti/backoff"
	"github.com/google/uuid"
	"github.com/mitchellh/mapstructure"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/WessleyAI/heredity/engine/domain"
	"github.com/WessleyAI/heredity/pkg/resilience"
)

// Graph model:
//
//	(:Locus)-[:HAS_ALLELE]->(:Allele)
//	(:Individual)-[:CHILD_OF {role}]->(:Individual)
//	(:Individual)-[:CARRIES {locus_id, slot}]->(:Allele)
//
// Parent ids are also kept as properties so that a parent without a record
// can still be matched. Absent parents are stored as "".
const (
	cypherSaveLocus = `MERGE (l:Locus {id: $id})
SET l.name = $name, l.symbol = $symbol, l.description = $description
WITH l
UNWIND $alleles AS allele
MERGE (a:Allele {id: allele.id})
SET a += allele
MERGE (l)-[:HAS_ALLELE]->(a)`

	cypherGetLocus = `MATCH (l:Locus {id: $id})
OPTIONAL MATCH (l)-[:HAS_ALLELE]->(a:Allele)
RETURN l, collect(a) AS alleles`

	// The counter write locks the Sequence node, so concurrent saves
	// serialize on it and never share a seq.
	cypherSaveIndividual = `MERGE (s:Sequence {name: 'individual'})
ON CREATE SET s.next = 0
SET s.next = s.next + 1
WITH s.next AS next
MERGE (i:Individual {id: $id})
ON CREATE SET i.seq = next
SET i.name = $name, i.paternal_id = $paternal_id, i.maternal_id = $maternal_id`

	cypherLinkParents = `MATCH (c:Individual {id: $id})
OPTIONAL MATCH (c)-[old:CHILD_OF]->()
DELETE old
WITH DISTINCT c
MATCH (p:Individual) WHERE p.id IN [c.paternal_id, c.maternal_id]
MERGE (c)-[:CHILD_OF {role: CASE p.id WHEN c.paternal_id THEN 'sire' ELSE 'dam' END}]->(p)`

	cypherLinkChildren = `MATCH (p:Individual {id: $id})
MATCH (c:Individual) WHERE p.id IN [c.paternal_id, c.maternal_id]
MERGE (c)-[:CHILD_OF {role: CASE p.id WHEN c.paternal_id THEN 'sire' ELSE 'dam' END}]->(p)`

	cypherGetIndividual = `MATCH (i:Individual {id: $id}) RETURN i`

	cypherGetOffspring = `MATCH (c:Individual)
WHERE $id IN [c.paternal_id, c.maternal_id]
RETURN c AS i ORDER BY c.seq, c.id`

	cypherSaveGenotype = `MATCH (i:Individual {id: $individual_id})
OPTIONAL MATCH (i)-[old:CARRIES {locus_id: $locus_id}]->()
DELETE old
WITH DISTINCT i
UNWIND $slots AS slot
MATCH (a:Allele {id: slot.allele_id})
CREATE (i)-[:CARRIES {locus_id: $locus_id, slot: slot.slot}]->(a)`

	cypherGetGenotype = `MATCH (i:Individual {id: $individual_id})
OPTIONAL MATCH (i)-[:CARRIES {locus_id: $locus_id}]->(a:Allele)
RETURN i.id AS id, collect(a) AS alleles`

	cypherGetOffspringGenotypes = `MATCH (c:Individual {paternal_id: $paternal_id, maternal_id: $maternal_id})
OPTIONAL MATCH (c)-[:CARRIES {locus_id: $locus_id}]->(a:Allele)
WITH c, collect(a) AS alleles
RETURN c.id AS id, alleles ORDER BY c.seq, c.id`
)

// result is the minimal interface needed from a neo4j result.
type result interface {
	Next(ctx context.Context) bool
	Record() *neo4j.Record
	Err() error
}

// runner is the minimal interface needed from a neo4j session.
type runner interface {
	Run(ctx context.Context, cypher string, params map[string]any) (result, error)
	Close(ctx context.Context) error
}

// neo4jSessionAdapter adapts neo4j.SessionWithContext to the runner interface.
type neo4jSessionAdapter struct {
	sess neo4j.SessionWithContext
}

func (a *neo4jSessionAdapter) Run(ctx context.Context, cypher string, params map[string]any) (result, error) {
	return a.sess.Run(ctx, cypher, params)
}

func (a *neo4jSessionAdapter) Close(ctx context.Context) error {
	return a.sess.Close(ctx)
}

// GraphOptions configures a GraphStore.
type GraphOptions struct {
	// Database selects the Neo4j database. Empty uses the server default.
	Database string
	Breaker  resilience.BreakerOpts
	// ConnectRetries bounds connectivity checks in Connect.
	ConnectRetries uint64
}

// DefaultGraphOptions returns sensible defaults.
func DefaultGraphOptions() GraphOptions {
	return GraphOptions{Breaker: resilience.DefaultBreakerOpts, ConnectRetries: 5}
}

// GraphStore keeps the pedigree in Neo4j. Reads go through a circuit breaker
// that ignores missing records.
type GraphStore struct {
	driver     neo4j.DriverWithContext
	opts       GraphOptions
	breaker    *resilience.Breaker
	logger     *slog.Logger
	newSession func(ctx context.Context) runner // for testing
}

// NewGraphStore wraps an existing driver.
func NewGraphStore(driver neo4j.DriverWithContext, opts GraphOptions, logger *slog.Logger) *GraphStore {
	if logger == nil {
		logger = slog.Default()
	}
	bo := opts.Breaker
	bo.IsFailure = func(err error) bool {
		return !errors.Is(err, domain.ErrNotFound) && !errors.Is(err, context.Canceled)
	}
	return &GraphStore{
		driver:  driver,
		opts:    opts,
		breaker: resilience.NewBreaker(bo),
		logger:  logger,
	}
}

// Connect opens a driver and waits, with exponential backoff, until the
// server answers.
func Connect(ctx context.Context, uri, user, password string, opts GraphOptions, logger *slog.Logger) (*GraphStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("pedigree: connect: %w", err)
	}

	attempt := 0
	verify := func() error {
		attempt++
		err := driver.VerifyConnectivity(ctx)
		if err != nil {
			logger.Warn("neo4j not reachable", "uri", uri, "attempt", attempt, "err", err)
		}
		return err
	}
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), opts.ConnectRetries), ctx)
	if err := backoff.Retry(verify, b); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("pedigree: connect: %w", err)
	}
	logger.Info("neo4j connected", "uri", uri, "database", opts.Database)
	return NewGraphStore(driver, opts, logger), nil
}

// Close releases the driver.
func (s *GraphStore) Close(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}
	return s.driver.Close(ctx)
}

// Breaker exposes the read breaker state for health reporting.
func (s *GraphStore) Breaker() resilience.State { return s.breaker.State() }

func (s *GraphStore) session(ctx context.Context, mode neo4j.AccessMode) runner {
	if s.newSession != nil {
		return s.newSession(ctx)
	}
	return &neo4jSessionAdapter{sess: s.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: s.opts.Database,
		AccessMode:   mode,
	})}
}

// query runs a read statement and hands every record to each.
func (s *GraphStore) query(ctx context.Context, cypher string, params map[string]any, each func(*neo4j.Record) error) error {
	return s.breaker.Call(ctx, func(ctx context.Context) error {
		sess := s.session(ctx, neo4j.AccessModeRead)
		defer sess.Close(ctx)

		res, err := sess.Run(ctx, cypher, params)
		if err != nil {
			return err
		}
		for res.Next(ctx) {
			if err := each(res.Record()); err != nil {
				return err
			}
		}
		return res.Err()
	})
}

// exec runs write statements in one session, in order.
func (s *GraphStore) exec(ctx context.Context, params map[string]any, cyphers ...string) error {
	sess := s.session(ctx, neo4j.AccessModeWrite)
	defer sess.Close(ctx)
	for _, cypher := range cyphers {
		res, err := sess.Run(ctx, cypher, params)
		if err != nil {
			return err
		}
		for res.Next(ctx) {
		}
		if err := res.Err(); err != nil {
			return err
		}
	}
	return nil
}

// --- node mapping ---

type locusNode struct {
	ID          string `mapstructure:"id"`
	Name        string `mapstructure:"name"`
	Symbol      string `mapstructure:"symbol"`
	Description string `mapstructure:"description"`
}

type alleleNode struct {
	ID              string `mapstructure:"id"`
	Ordinal         int    `mapstructure:"ordinal"`
	Name            string `mapstructure:"name"`
	Symbol          string `mapstructure:"symbol"`
	GenotypeSymbol  string `mapstructure:"genotype_symbol"`
	PhenotypeSymbol string `mapstructure:"phenotype_symbol"`
	Description     string `mapstructure:"description"`
	Dominance       string `mapstructure:"dominance"`
	WildType        bool   `mapstructure:"wild_type"`
}

type individualNode struct {
	ID         string `mapstructure:"id"`
	Name       string `mapstructure:"name"`
	PaternalID string `mapstructure:"paternal_id"`
	MaternalID string `mapstructure:"maternal_id"`
}

// props extracts node properties from a record value.
func props(v any) (map[string]any, error) {
	switch n := v.(type) {
	case neo4j.Node:
		return n.Props, nil
	case *neo4j.Node:
		return n.Props, nil
	case map[string]any:
		return n, nil
	default:
		return nil, fmt.Errorf("pedigree: unexpected node value %T", v)
	}
}

func decodeNode(v any, out any) error {
	m, err := props(v)
	if err != nil {
		return err
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	return dec.Decode(m)
}

func field(rec *neo4j.Record, key string) (any, error) {
	v, ok := rec.Get(key)
	if !ok {
		return nil, fmt.Errorf("pedigree: record has no %q", key)
	}
	return v, nil
}

func parseOptionalID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, nil
	}
	return uuid.Parse(s)
}

func idParam(id uuid.UUID) string {
	if id == uuid.Nil {
		return ""
	}
	return id.String()
}

func (n alleleNode) allele() (domain.Allele, error) {
	id, err := uuid.Parse(n.ID)
	if err != nil {
		return domain.Allele{}, fmt.Errorf("pedigree: allele id %q: %w", n.ID, err)
	}
	dom, err := domain.ParseDominance(n.Dominance)
	if err != nil {
		return domain.Allele{}, err
	}
	return domain.Allele{
		ID:              id,
		Ordinal:         n.Ordinal,
		Name:            n.Name,
		Symbol:          n.Symbol,
		GenotypeSymbol:  n.GenotypeSymbol,
		PhenotypeSymbol: n.PhenotypeSymbol,
		Description:     n.Description,
		Dominance:       dom,
		WildType:        n.WildType,
	}, nil
}

func alleleProps(a domain.Allele) (map[string]any, error) {
	n := alleleNode{
		ID:              a.ID.String(),
		Ordinal:         a.Ordinal,
		Name:            a.Name,
		Symbol:          a.Symbol,
		GenotypeSymbol:  a.GenotypeSymbol,
		PhenotypeSymbol: a.PhenotypeSymbol,
		Description:     a.Description,
		Dominance:       a.Dominance.String(),
		WildType:        a.WildType,
	}
	var m map[string]any
	if err := mapstructure.Decode(n, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// decodeAlleles reads a collected list of allele nodes.
func decodeAlleles(v any) ([]domain.Allele, error) {
	list, ok := v.([]any)
	if !ok && v != nil {
		return nil, fmt.Errorf("pedigree: unexpected allele list %T", v)
	}
	out := make([]domain.Allele, 0, len(list))
	for _, item := range list {
		var n alleleNode
		if err := decodeNode(item, &n); err != nil {
			return nil, err
		}
		a, err := n.allele()
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func decodeIndividual(rec *neo4j.Record) (domain.Individual, error) {
	v, err := field(rec, "i")
	if err != nil {
		return domain.Individual{}, err
	}
	var n individualNode
	if err := decodeNode(v, &n); err != nil {
		return domain.Individual{}, err
	}
	id, err := uuid.Parse(n.ID)
	if err != nil {
		return domain.Individual{}, fmt.Errorf("pedigree: individual id %q: %w", n.ID, err)
	}
	sire, err := parseOptionalID(n.PaternalID)
	if err != nil {
		return domain.Individual{}, fmt.Errorf("pedigree: paternal id %q: %w", n.PaternalID, err)
	}
	dam, err := parseOptionalID(n.MaternalID)
	if err != nil {
		return domain.Individual{}, fmt.Errorf("pedigree: maternal id %q: %w", n.MaternalID, err)
	}
	return domain.Individual{ID: id, Name: n.Name, PaternalID: sire, MaternalID: dam}, nil
}

// decodeGenotype builds a genotype from the alleles an individual carries.
func decodeGenotype(rec *neo4j.Record, locusID uuid.UUID) (domain.Genotype, error) {
	v, err := field(rec, "alleles")
	if err != nil {
		return domain.Genotype{}, err
	}
	alleles, err := decodeAlleles(v)
	if err != nil {
		return domain.Genotype{}, err
	}
	slots := make([]*domain.Allele, 2)
	for i := range alleles {
		if i == len(slots) {
			return domain.Genotype{}, fmt.Errorf("pedigree: %d alleles recorded at one locus: %w", len(alleles), domain.ErrInvalidArgument)
		}
		slots[i] = &alleles[i]
	}
	return domain.NewGenotype(locusID, slots[0], slots[1]), nil
}

// --- writes ---

// SaveLocus upserts a locus and its alleles.
func (s *GraphStore) SaveLocus(ctx context.Context, l domain.Locus) error {
	if err := domain.ValidateLocus(l); err != nil {
		return fmt.Errorf("pedigree: save locus: %w", err)
	}
	alleles := make([]map[string]any, 0, len(l.Alleles))
	for _, a := range l.Alleles {
		m, err := alleleProps(a)
		if err != nil {
			return fmt.Errorf("pedigree: save locus: %w", err)
		}
		alleles = append(alleles, m)
	}
	params := map[string]any{
		"id":          l.ID.String(),
		"name":        l.Name,
		"symbol":      l.Symbol,
		"description": l.Description,
		"alleles":     alleles,
	}
	if err := s.exec(ctx, params, cypherSaveLocus); err != nil {
		return fmt.Errorf("pedigree: save locus %s: %w", l.Name, err)
	}
	return nil
}

// SaveIndividual upserts an individual and links it to recorded parents and
// children.
func (s *GraphStore) SaveIndividual(ctx context.Context, ind domain.Individual) error {
	if ind.ID == uuid.Nil {
		return fmt.Errorf("pedigree: save individual: %w", domain.NewValidationError("individual.id", "", domain.ErrInvalidArgument))
	}
	params := map[string]any{
		"id":          ind.ID.String(),
		"name":        ind.Name,
		"paternal_id": idParam(ind.PaternalID),
		"maternal_id": idParam(ind.MaternalID),
	}
	if err := s.exec(ctx, params, cypherSaveIndividual, cypherLinkParents, cypherLinkChildren); err != nil {
		return fmt.Errorf("pedigree: save individual %s: %w", ind.ID, err)
	}
	return nil
}

// SaveGenotype replaces the alleles an existing individual carries at g's
// locus.
func (s *GraphStore) SaveGenotype(ctx context.Context, individualID uuid.UUID, g domain.Genotype) error {
	if _, err := s.GetIndividual(ctx, individualID); err != nil {
		return fmt.Errorf("pedigree: save genotype: %w", err)
	}
	l, err := s.GetLocus(ctx, g.LocusID)
	if err != nil {
		return fmt.Errorf("pedigree: save genotype: %w", err)
	}
	if err := domain.ValidateGenotype(l, g); err != nil {
		return fmt.Errorf("pedigree: save genotype: %w", err)
	}

	var slots []map[string]any
	for i, a := range []*domain.Allele{g.Dominant, g.Other} {
		if a != nil {
			slots = append(slots, map[string]any{"slot": i, "allele_id": a.ID.String()})
		}
	}
	params := map[string]any{
		"individual_id": individualID.String(),
		"locus_id":      g.LocusID.String(),
		"slots":         slots,
	}
	if err := s.exec(ctx, params, cypherSaveGenotype); err != nil {
		return fmt.Errorf("pedigree: save genotype of %s: %w", individualID, err)
	}
	return nil
}

// --- reads ---

// GetLocus returns a locus with its alleles ordered by ordinal.
func (s *GraphStore) GetLocus(ctx context.Context, id uuid.UUID) (domain.Locus, error) {
	var (
		l     domain.Locus
		found bool
	)
	err := s.query(ctx, cypherGetLocus, map[string]any{"id": id.String()}, func(rec *neo4j.Record) error {
		v, err := field(rec, "l")
		if err != nil {
			return err
		}
		var n locusNode
		if err := decodeNode(v, &n); err != nil {
			return err
		}
		av, err := field(rec, "alleles")
		if err != nil {
			return err
		}
		alleles, err := decodeAlleles(av)
		if err != nil {
			return err
		}
		l = domain.Locus{ID: id, Name: n.Name, Symbol: n.Symbol, Description: n.Description, Alleles: alleles}
		l.SortAlleles()
		found = true
		return nil
	})
	if err != nil {
		return domain.Locus{}, fmt.Errorf("pedigree: get locus %s: %w", id, err)
	}
	if !found {
		return domain.Locus{}, domain.NotFound("locus", id)
	}
	return l, nil
}

// GetAllelesForLocus returns the catalog ordered by ordinal.
func (s *GraphStore) GetAllelesForLocus(ctx context.Context, id uuid.UUID) ([]domain.Allele, error) {
	l, err := s.GetLocus(ctx, id)
	if err != nil {
		return nil, err
	}
	return l.Alleles, nil
}

// GetIndividual returns the individual or domain.ErrNotFound.
func (s *GraphStore) GetIndividual(ctx context.Context, id uuid.UUID) (domain.Individual, error) {
	var (
		ind   domain.Individual
		found bool
	)
	err := s.query(ctx, cypherGetIndividual, map[string]any{"id": id.String()}, func(rec *neo4j.Record) error {
		var err error
		ind, err = decodeIndividual(rec)
		found = err == nil
		return err
	})
	if err != nil {
		return domain.Individual{}, fmt.Errorf("pedigree: get individual %s: %w", id, err)
	}
	if !found {
		return domain.Individual{}, domain.NotFound("individual", id)
	}
	return ind, nil
}

// GetOffspring returns the individuals with id as either parent, in the
// order they were first saved.
func (s *GraphStore) GetOffspring(ctx context.Context, id uuid.UUID) ([]domain.Individual, error) {
	var out []domain.Individual
	err := s.query(ctx, cypherGetOffspring, map[string]any{"id": id.String()}, func(rec *neo4j.Record) error {
		ind, err := decodeIndividual(rec)
		if err != nil {
			return err
		}
		out = append(out, ind)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("pedigree: get offspring of %s: %w", id, err)
	}
	return out, nil
}

// GetGenotype returns the recorded genotype, or a wildcard when the
// individual exists without one.
func (s *GraphStore) GetGenotype(ctx context.Context, individualID, locusID uuid.UUID) (domain.Genotype, error) {
	var (
		g     domain.Genotype
		found bool
	)
	params := map[string]any{"individual_id": individualID.String(), "locus_id": locusID.String()}
	err := s.query(ctx, cypherGetGenotype, params, func(rec *neo4j.Record) error {
		var err error
		g, err = decodeGenotype(rec, locusID)
		found = err == nil
		return err
	})
	if err != nil {
		return domain.Genotype{}, fmt.Errorf("pedigree: get genotype of %s: %w", individualID, err)
	}
	if !found {
		return domain.Genotype{}, domain.NotFound("individual", individualID)
	}
	return g, nil
}

// GetOffspringGenotypes returns the genotypes of every offspring of exactly
// this parent pair. uuid.Nil matches an unrecorded parent.
func (s *GraphStore) GetOffspringGenotypes(ctx context.Context, paternalID, maternalID, locusID uuid.UUID) ([]domain.Genotype, error) {
	params := map[string]any{
		"paternal_id": idParam(paternalID),
		"maternal_id": idParam(maternalID),
		"locus_id":    locusID.String(),
	}
	var out []domain.Genotype
	err := s.query(ctx, cypherGetOffspringGenotypes, params, func(rec *neo4j.Record) error {
		g, err := decodeGenotype(rec, locusID)
		if err != nil {
			return err
		}
		out = append(out, g)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("pedigree: get offspring genotypes of %s x %s: %w", paternalID, maternalID, err)
	}
	return out, nil
}
