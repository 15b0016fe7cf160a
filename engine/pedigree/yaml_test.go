package pedigree

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WessleyAI/heredity/engine/calculator"
	"github.com/WessleyAI/heredity/engine/domain"
	"github.com/WessleyAI/heredity/internal/genetest"
)

func loadFixture(t *testing.T) *Pedigree {
	t.Helper()
	p, err := LoadFile("testdata/rabbitry.yaml")
	require.NoError(t, err)
	return p
}

func TestLoad_Fixture(t *testing.T) {
	p := loadFixture(t)
	require.Len(t, p.Loci, 2)
	require.Len(t, p.Individuals, 10)

	ext, err := p.Locus("extension")
	require.NoError(t, err)
	assert.Equal(t, NameID("locus", "Extension"), ext.ID)
	require.Len(t, ext.Alleles, 4)
	assert.Equal(t, domain.Incomplete, ext.Alleles[2].Dominance)
	assert.Equal(t, "e(j)", ext.Alleles[2].String())

	kit5, err := p.IndividualID("Kit5")
	require.NoError(t, err)
	buck, err := p.IndividualID("buck")
	require.NoError(t, err)
	for _, ind := range p.Individuals {
		if ind.ID == kit5 {
			assert.Equal(t, buck, ind.PaternalID)
			assert.Equal(t, NameID("individual", "Doe3"), ind.MaternalID)
		}
	}

	var kit5Obs []string
	for _, o := range p.Observations {
		if o.IndividualID == kit5 {
			kit5Obs = append(kit5Obs, o.Genotype.String())
		}
	}
	assert.Equal(t, []string{"A/a", "E/_"}, kit5Obs)
}

func TestLoad_Errors(t *testing.T) {
	cases := map[string]struct {
		doc  string
		want error
	}{
		"unknown parent": {
			doc:  "individuals:\n  - {name: Kit, sire: Nobody}\n",
			want: domain.ErrNotFound,
		},
		"unknown locus": {
			doc:  "individuals:\n  - {name: Kit, genotypes: {Agouti: A}}\n",
			want: domain.ErrNotFound,
		},
		"unknown allele": {
			doc:  "loci:\n  - {name: L, symbol: L, alleles: [{name: One, symbol: L}]}\nindividuals:\n  - {name: Kit, genotypes: {L: Two}}\n",
			want: domain.ErrUnknownAllele,
		},
		"bad dominance": {
			doc:  "loci:\n  - {name: L, symbol: L, alleles: [{name: One, symbol: L, dominance: sometimes}]}\n",
			want: domain.ErrInvalidArgument,
		},
		"bad id": {
			doc:  "individuals:\n  - {name: Kit, id: not-a-uuid}\n",
			want: domain.ErrInvalidArgument,
		},
		"anonymous": {
			doc:  "individuals:\n  - {sire: Buck}\n",
			want: domain.ErrInvalidArgument,
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(strings.NewReader(tc.doc))
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestLoad_RejectsUnknownFields(t *testing.T) {
	_, err := Load(strings.NewReader("individuals:\n  - {name: Kit, colour: blue}\n"))
	assert.Error(t, err)
}

func TestLoad_ExplicitIDs(t *testing.T) {
	id := uuid.New()
	doc := "individuals:\n  - {name: Buck, id: " + id.String() + "}\n  - {name: Kit, sire: " + id.String() + "}\n"
	p, err := Load(strings.NewReader(doc))
	require.NoError(t, err)
	assert.Equal(t, id, p.Individuals[0].ID)
	assert.Equal(t, id, p.Individuals[1].PaternalID)
}

func TestPedigree_ApplyOrder(t *testing.T) {
	p := loadFixture(t)
	w := &recordingWriter{}
	require.NoError(t, p.Apply(context.Background(), w))
	require.NotEmpty(t, w.calls)
	assert.Equal(t, "locus", w.calls[0])
	assert.Equal(t, "genotype", w.calls[len(w.calls)-1])
	assert.Len(t, w.calls, len(p.Loci)+len(p.Individuals)+len(p.Observations))
}

type recordingWriter struct{ calls []string }

func (w *recordingWriter) SaveLocus(context.Context, domain.Locus) error {
	w.calls = append(w.calls, "locus")
	return nil
}

func (w *recordingWriter) SaveIndividual(context.Context, domain.Individual) error {
	w.calls = append(w.calls, "individual")
	return nil
}

func (w *recordingWriter) SaveGenotype(context.Context, uuid.UUID, domain.Genotype) error {
	w.calls = append(w.calls, "genotype")
	return nil
}

func TestPedigree_InferFromFile(t *testing.T) {
	ctx := context.Background()
	p := loadFixture(t)
	store, err := p.Memory(ctx)
	require.NoError(t, err)

	calc, err := calculator.New(store, store, store, calculator.DefaultOptions(), nil)
	require.NoError(t, err)

	ext, err := p.Locus("Extension")
	require.NoError(t, err)
	buck, err := p.IndividualID("Buck")
	require.NoError(t, err)

	got, err := calc.Infer(ctx, buck, ext.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"e(j)/e"}, genetest.Strings(got))
}
