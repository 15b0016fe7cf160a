package calculator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/WessleyAI/heredity/engine/domain"
	"github.com/WessleyAI/heredity/internal/genetest"
	"github.com/WessleyAI/heredity/pkg/metrics"
)

// --- Mock infrastructure ---

type fakePedigree struct {
	mu          sync.Mutex
	locus       domain.Locus
	individuals map[uuid.UUID]domain.Individual
	order       []uuid.UUID
	genotypes   map[uuid.UUID]domain.Genotype
	calls       map[string]int

	offspringErr       error
	onSiblingGenotypes func()
}

func newFakePedigree(l domain.Locus) *fakePedigree {
	return &fakePedigree{
		locus:       l,
		individuals: make(map[uuid.UUID]domain.Individual),
		genotypes:   make(map[uuid.UUID]domain.Genotype),
		calls:       make(map[string]int),
	}
}

// add records an individual; a zero genotype leaves it unrecorded.
func (f *fakePedigree) add(name string, father, mother uuid.UUID, g domain.Genotype) uuid.UUID {
	id := genetest.ID("individual/" + name)
	f.individuals[id] = domain.Individual{ID: id, Name: name, PaternalID: father, MaternalID: mother}
	f.order = append(f.order, id)
	if g.LocusID != uuid.Nil {
		f.genotypes[id] = g
	}
	return id
}

func (f *fakePedigree) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakePedigree) track(op string) {
	f.mu.Lock()
	f.calls[op]++
	f.mu.Unlock()
}

func (f *fakePedigree) GetIndividual(_ context.Context, id uuid.UUID) (domain.Individual, error) {
	f.track("GetIndividual")
	ind, ok := f.individuals[id]
	if !ok {
		return domain.Individual{}, domain.NotFound("individual", id)
	}
	return ind, nil
}

func (f *fakePedigree) GetOffspring(_ context.Context, id uuid.UUID) ([]domain.Individual, error) {
	f.track("GetOffspring")
	if f.offspringErr != nil {
		return nil, f.offspringErr
	}
	var out []domain.Individual
	for _, oid := range f.order {
		if o := f.individuals[oid]; o.HasParent(id) {
			out = append(out, o)
		}
	}
	return out, nil
}

func (f *fakePedigree) GetGenotype(_ context.Context, id, locusID uuid.UUID) (domain.Genotype, error) {
	f.track("GetGenotype")
	if _, ok := f.individuals[id]; !ok {
		return domain.Genotype{}, domain.NotFound("individual", id)
	}
	if g, ok := f.genotypes[id]; ok {
		return g, nil
	}
	return domain.Wildcard(locusID), nil
}

func (f *fakePedigree) GetOffspringGenotypes(ctx context.Context, paternalID, maternalID, locusID uuid.UUID) ([]domain.Genotype, error) {
	f.track("GetOffspringGenotypes")
	if f.onSiblingGenotypes != nil {
		f.onSiblingGenotypes()
	}
	var out []domain.Genotype
	for _, oid := range f.order {
		o := f.individuals[oid]
		if o.PaternalID != paternalID || o.MaternalID != maternalID {
			continue
		}
		g, err := f.GetGenotype(ctx, oid, locusID)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, nil
}

func (f *fakePedigree) GetAllelesForLocus(_ context.Context, id uuid.UUID) ([]domain.Allele, error) {
	f.track("GetAllelesForLocus")
	if id != f.locus.ID {
		return nil, domain.NotFound("locus", id)
	}
	return f.locus.Alleles, nil
}

func newCalculator(t *testing.T, f *fakePedigree, opts Options) *Calculator {
	t.Helper()
	c, err := New(f, f, f, opts, nil)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func assertGenotypes(t *testing.T, got []domain.Genotype, want ...string) {
	t.Helper()
	names := genetest.Strings(got)
	if strings.Join(names, " ") != strings.Join(want, " ") {
		t.Fatalf("expected %v, got %v", want, names)
	}
}

// harlequinSire builds a sire mated to three dams whose litters are
// {Harlequin}, {Normal, Harlequin, NonExtension} and {Normal, Harlequin}.
func harlequinSire(sire domain.Genotype) (*fakePedigree, uuid.UUID) {
	ext := genetest.ExtensionLocus()
	f := newFakePedigree(ext)
	if sire.LocusID == uuid.Nil {
		sire = domain.Wildcard(ext.ID)
	}
	father := f.add("father", uuid.Nil, uuid.Nil, sire)
	dam1 := f.add("dam1", uuid.Nil, uuid.Nil, genetest.Observe(&ext, "Normal"))
	dam2 := f.add("dam2", uuid.Nil, uuid.Nil, genetest.Observe(&ext, "Harlequin"))
	dam3 := f.add("dam3", uuid.Nil, uuid.Nil, genetest.Observe(&ext, "Normal"))

	f.add("kit1", father, dam2, genetest.Observe(&ext, "Harlequin"))
	f.add("kit2", father, dam1, genetest.Observe(&ext, "Normal"))
	f.add("kit3", father, dam1, genetest.Observe(&ext, "Harlequin"))
	f.add("kit4", father, dam1, genetest.Observe(&ext, "NonExtension"))
	f.add("kit5", father, dam3, genetest.Observe(&ext, "Normal"))
	f.add("kit6", father, dam3, genetest.Observe(&ext, "Harlequin"))
	return f, father
}

// --- Tests ---

func TestNew_RequiresCollaborators(t *testing.T) {
	f := newFakePedigree(genetest.AgoutiLocus())
	cases := map[string]func() (*Calculator, error){
		"individuals": func() (*Calculator, error) { return New(nil, f, f, DefaultOptions(), nil) },
		"genotypes":   func() (*Calculator, error) { return New(f, nil, f, DefaultOptions(), nil) },
		"alleles":     func() (*Calculator, error) { return New(f, f, nil, DefaultOptions(), nil) },
	}
	for name, build := range cases {
		if _, err := build(); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("%s: expected ErrInvalidArgument, got %v", name, err)
		}
	}
}

func TestInfer_HarlequinSire(t *testing.T) {
	for name, sire := range map[string]string{"unknown": "", "harlequin observed": "Harlequin"} {
		t.Run(name, func(t *testing.T) {
			ext := genetest.ExtensionLocus()
			var g domain.Genotype
			if sire != "" {
				g = genetest.Observe(&ext, sire)
			}
			f, father := harlequinSire(g)
			got, err := newCalculator(t, f, DefaultOptions()).Infer(context.Background(), father, f.locus.ID)
			if err != nil {
				t.Fatal(err)
			}
			assertGenotypes(t, got, "e(j)/e")
			if got[0].Dominant.Name != "Harlequin" || got[0].Other.Name != "NonExtension" {
				t.Fatalf("expected Harlequin/NonExtension, got %s/%s", got[0].Dominant.Name, got[0].Other.Name)
			}
		})
	}
}

func TestInfer_TanCarrier(t *testing.T) {
	l := genetest.AgoutiLocus()
	f := newFakePedigree(l)
	buck := f.add("buck", uuid.Nil, uuid.Nil, domain.Genotype{})
	doe := f.add("doe", uuid.Nil, uuid.Nil, genetest.Pair(&l, "Agouti", ""))
	f.add("kit1", buck, doe, genetest.Observe(&l, "Agouti"))
	f.add("kit2", buck, doe, genetest.Observe(&l, "Tan"))
	f.add("kit3", buck, doe, genetest.Observe(&l, "Self"))

	got, err := newCalculator(t, f, DefaultOptions()).Infer(context.Background(), buck, l.ID)
	if err != nil {
		t.Fatal(err)
	}
	assertGenotypes(t, got, "a(t)/a")
}

func TestInfer_KnownGenotypeShortCircuits(t *testing.T) {
	l := genetest.AgoutiLocus()
	f := newFakePedigree(l)
	id := f.add("known", uuid.Nil, uuid.Nil, genetest.Pair(&l, "Tan", "Self"))

	got, err := newCalculator(t, f, DefaultOptions()).Infer(context.Background(), id, l.ID)
	if err != nil {
		t.Fatal(err)
	}
	assertGenotypes(t, got, "a(t)/a")
	if f.count("GetGenotype") != 1 || f.count("GetOffspring") != 0 || f.count("GetAllelesForLocus") != 0 {
		t.Fatalf("expected only the own genotype lookup, got %v", f.calls)
	}
}

func TestInfer_NoOffspringFallsBackToParentEvidence(t *testing.T) {
	l := genetest.AgoutiLocus()
	f := newFakePedigree(l)
	loner := f.add("loner", uuid.Nil, uuid.Nil, domain.Genotype{})
	got, err := newCalculator(t, f, DefaultOptions()).Infer(context.Background(), loner, l.ID)
	if err != nil {
		t.Fatal(err)
	}
	assertGenotypes(t, got, "A/A", "A/a(t)", "A/a", "a(t)/a(t)", "a(t)/a", "a/a")
}

func TestInfer_OwnDominantFiltersParentCross(t *testing.T) {
	l := genetest.AgoutiLocus()
	f := newFakePedigree(l)
	tan := f.add("tan", uuid.Nil, uuid.Nil, genetest.Observe(&l, "Tan"))
	got, err := newCalculator(t, f, DefaultOptions()).Infer(context.Background(), tan, l.ID)
	if err != nil {
		t.Fatal(err)
	}
	assertGenotypes(t, got, "a(t)/a(t)", "a(t)/a")
}

func TestInfer_KnownParents(t *testing.T) {
	l := genetest.AgoutiLocus()
	f := newFakePedigree(l)
	sire := f.add("sire", uuid.Nil, uuid.Nil, genetest.Pair(&l, "Agouti", "Self"))
	dam := f.add("dam", uuid.Nil, uuid.Nil, genetest.Pair(&l, "Self", "Self"))
	kit := f.add("kit", sire, dam, domain.Genotype{})

	got, err := newCalculator(t, f, DefaultOptions()).Infer(context.Background(), kit, l.ID)
	if err != nil {
		t.Fatal(err)
	}
	assertGenotypes(t, got, "A/a", "a/a")
}

func TestInfer_SingleParentCandidateSkipsOffspring(t *testing.T) {
	l := genetest.AgoutiLocus()
	f := newFakePedigree(l)
	sire := f.add("sire", uuid.Nil, uuid.Nil, genetest.Observe(&l, "Self"))
	dam := f.add("dam", uuid.Nil, uuid.Nil, genetest.Observe(&l, "Self"))
	kit := f.add("kit", sire, dam, domain.Genotype{})
	f.add("grandkit", kit, uuid.Nil, genetest.Observe(&l, "Agouti"))

	got, err := newCalculator(t, f, DefaultOptions()).Infer(context.Background(), kit, l.ID)
	if err != nil {
		t.Fatal(err)
	}
	assertGenotypes(t, got, "a/a")
	if f.count("GetOffspring") != 0 {
		t.Fatal("expected offspring evidence to be skipped")
	}
}

func TestInfer_UnrecordedParentIsWildcard(t *testing.T) {
	l := genetest.AgoutiLocus()
	f := newFakePedigree(l)
	sire := f.add("sire", uuid.Nil, uuid.Nil, domain.Genotype{})
	kit := f.add("kit", sire, uuid.Nil, domain.Genotype{})

	got, err := newCalculator(t, f, DefaultOptions()).Infer(context.Background(), kit, l.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 6 {
		t.Fatalf("expected full wildcard expansion, got %v", genetest.Strings(got))
	}
}

func TestInfer_DanglingParentIsNotFound(t *testing.T) {
	l := genetest.AgoutiLocus()
	f := newFakePedigree(l)
	ghost := genetest.ID("individual/ghost")
	kit := f.add("kit", ghost, uuid.Nil, domain.Genotype{})

	got, err := newCalculator(t, f, DefaultOptions()).Infer(context.Background(), kit, l.ID)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v (candidates %v)", err, genetest.Strings(got))
	}
	if !strings.Contains(err.Error(), ghost.String()) {
		t.Fatalf("expected error to name %s, got %v", ghost, err)
	}
}

func TestInfer_DanglingCoParentIsNotFound(t *testing.T) {
	l := genetest.AgoutiLocus()
	f := newFakePedigree(l)
	ghost := genetest.ID("individual/ghost")
	sire := f.add("sire", uuid.Nil, uuid.Nil, domain.Genotype{})
	f.add("kit", sire, ghost, genetest.Observe(&l, "Tan"))

	got, err := newCalculator(t, f, DefaultOptions()).Infer(context.Background(), sire, l.ID)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v (candidates %v)", err, genetest.Strings(got))
	}
}

func TestInfer_IndividualNotFound(t *testing.T) {
	f := newFakePedigree(genetest.AgoutiLocus())
	_, err := newCalculator(t, f, DefaultOptions()).Infer(context.Background(), genetest.ID("nobody"), f.locus.ID)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestInfer_CollaboratorErrorPropagates(t *testing.T) {
	f, father := harlequinSire(domain.Genotype{})
	f.offspringErr = domain.ErrDataUnavailable
	_, err := newCalculator(t, f, DefaultOptions()).Infer(context.Background(), father, f.locus.ID)
	if !errors.Is(err, domain.ErrDataUnavailable) {
		t.Fatalf("expected ErrDataUnavailable, got %v", err)
	}
}

func TestInfer_CancelledBetweenSiblingGroups(t *testing.T) {
	f, father := harlequinSire(domain.Genotype{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.onSiblingGenotypes = cancel

	_, err := newCalculator(t, f, DefaultOptions()).Infer(ctx, father, f.locus.ID)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if n := f.count("GetOffspringGenotypes"); n != 1 {
		t.Fatalf("expected processing to stop after the first group, got %d groups", n)
	}
}

func TestInfer_Idempotent(t *testing.T) {
	f, father := harlequinSire(domain.Genotype{})
	c := newCalculator(t, f, Options{Workers: 1})
	first, err := c.Infer(context.Background(), father, f.locus.ID)
	if err != nil {
		t.Fatal(err)
	}
	second, err := c.Infer(context.Background(), father, f.locus.ID)
	if err != nil {
		t.Fatal(err)
	}
	assertGenotypes(t, second, genetest.Strings(first)...)
}

func TestInfer_Concurrent(t *testing.T) {
	f, father := harlequinSire(domain.Genotype{})
	c := newCalculator(t, f, DefaultOptions())

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := c.Infer(context.Background(), father, f.locus.ID)
			if err != nil {
				errs <- err
				return
			}
			if len(got) != 1 || got[0].String() != "e(j)/e" {
				errs <- errors.New("unexpected result " + strings.Join(genetest.Strings(got), ","))
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}
}

func TestInfer_RecordsMetrics(t *testing.T) {
	reg := metrics.New()
	f, father := harlequinSire(domain.Genotype{})
	c := newCalculator(t, f, Options{Metrics: reg})

	if _, err := c.Infer(context.Background(), father, f.locus.ID); err != nil {
		t.Fatal(err)
	}
	_, _ = c.Infer(context.Background(), genetest.ID("nobody"), f.locus.ID)

	out := reg.Render()
	for _, want := range []string{
		`heredity_infer_total{outcome="ok"} 1`,
		`heredity_infer_total{outcome="not_found"} 1`,
		"heredity_infer_duration_seconds_count 2",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
}

func TestExpressedGenotypes(t *testing.T) {
	ext := genetest.ExtensionLocus()
	siblings := []domain.Genotype{
		genetest.Observe(&ext, "Harlequin"),
		domain.Wildcard(ext.ID),
		genetest.Observe(&ext, "Normal"),
		genetest.Observe(&ext, "Harlequin"),
		genetest.Observe(&ext, "NonExtension"),
	}
	assertGenotypes(t, expressedGenotypes(siblings), "E/_", "e(j)/_", "e/e")
}
