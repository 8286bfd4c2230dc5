package store

import (
	"context"
	"mpgrupo/internal/models"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndListOperators(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	saved, err := s.SaveOperator(ctx, models.OperatorTariff{
		Name:         "  Iberdrola ",
		Active:       true,
		Simple:       &models.SimpleRates{Energy: 0.1472},
		TriHourly:    &models.TriHourlyRates{OffPeak: 0.09, Mid: 0.16, Peak: 0.22},
		PowerCharges: map[string]float64{"6.9": 0.3583},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, saved.ID)
	assert.Equal(t, "Iberdrola", saved.Name)

	_, err = s.SaveOperator(ctx, models.OperatorTariff{ID: "old", Name: "Antiga", Active: false})
	require.NoError(t, err)

	all, err := s.ListOperators(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Antiga", all[0].Name)

	active, err := s.ListActiveOperators(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	got := active[0]
	assert.Equal(t, saved.ID, got.ID)
	assert.Nil(t, got.BiHourly)
	require.NotNil(t, got.TriHourly)
	assert.Equal(t, 0.16, got.TriHourly.Mid)
	assert.Equal(t, 0.3583, got.PowerCharges["6.9"])
	assert.True(t, got.UpdatedAt.Equal(saved.UpdatedAt))

	old, err := s.GetOperator(ctx, "old")
	require.NoError(t, err)
	assert.NotNil(t, old.PowerCharges)
}

func TestSaveOperatorUpdatesInPlace(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	op, err := s.SaveOperator(ctx, models.OperatorTariff{ID: "galp", Name: "Galp", Active: true, Simple: &models.SimpleRates{Energy: 0.15}})
	require.NoError(t, err)
	_, err = s.SaveDiscount(ctx, models.DiscountConfig{OperatorID: "galp", DDEnergy: 3})
	require.NoError(t, err)

	op.Simple.Energy = 0.14
	_, err = s.SaveOperator(ctx, op)
	require.NoError(t, err)

	got, err := s.GetOperator(ctx, "galp")
	require.NoError(t, err)
	assert.Equal(t, 0.14, got.Simple.Energy)

	discounts, err := s.ListDiscounts(ctx)
	require.NoError(t, err)
	assert.Contains(t, discounts, "galp", "updating an operator keeps its discounts")
}

func TestSaveOperatorRequiresName(t *testing.T) {
	s := openTestStore(t)
	_, err := s.SaveOperator(context.Background(), models.OperatorTariff{Name: "   "})
	assert.Error(t, err)
}

func TestDeleteOperatorCascadesDiscount(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.SaveOperator(ctx, models.OperatorTariff{ID: "endesa", Name: "Endesa", Active: true})
	require.NoError(t, err)
	_, err = s.SaveDiscount(ctx, models.DiscountConfig{OperatorID: "endesa", BasePower: 5})
	require.NoError(t, err)

	require.NoError(t, s.DeleteOperator(ctx, "endesa"))

	_, err = s.GetOperator(ctx, "endesa")
	assert.ErrorIs(t, err, ErrNotFound)
	discounts, err := s.ListDiscounts(ctx)
	require.NoError(t, err)
	assert.Empty(t, discounts)

	assert.ErrorIs(t, s.DeleteOperator(ctx, "endesa"), ErrNotFound)
}

func TestSaveDiscountUpsertsByOperator(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.SaveOperator(ctx, models.OperatorTariff{ID: "edp", Name: "EDP Comercial", Active: true})
	require.NoError(t, err)

	_, err = s.SaveDiscount(ctx, models.DiscountConfig{OperatorID: "edp", DDFEEnergy: 5})
	require.NoError(t, err)
	_, err = s.SaveDiscount(ctx, models.DiscountConfig{
		OperatorID:        "edp",
		DDFEEnergy:        7,
		MonthlyRebate:     10,
		RebateMonths:      3,
		RebateDescription: "Oferta de boas-vindas",
		RebateRequiresFE:  true,
	})
	require.NoError(t, err)

	discounts, err := s.ListDiscounts(ctx)
	require.NoError(t, err)
	require.Len(t, discounts, 1)
	d := discounts["edp"]
	assert.Equal(t, 7.0, d.DDFEEnergy)
	assert.Equal(t, 3, d.RebateMonths)
	assert.True(t, d.RebateRequiresFE)
	assert.False(t, d.RebateRequiresDD)
	assert.True(t, d.HasTemporaryRebate())
}

func TestSaveDiscountUnknownOperator(t *testing.T) {
	s := openTestStore(t)
	_, err := s.SaveDiscount(context.Background(), models.DiscountConfig{OperatorID: "nope"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLeadsLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	oldID, err := s.InsertLead(ctx, models.Lead{
		Name: "Ana Silva", Email: "ana@example.pt", Phone: "912345678",
		Subject: models.SubjectPartnership, CreatedAt: now.AddDate(-2, 0, 0),
	})
	require.NoError(t, err)

	newID, err := s.InsertLead(ctx, models.Lead{
		Name: "Rui Costa", Email: "rui@example.pt", Phone: "+351 936 000 000",
		Subject: models.SubjectInvoice,
		Message: "Segue a fatura",
		Simulation: &models.LeadSimulation{
			CurrentOperator:    "EDP Comercial",
			OperatorOfInterest: "Galp",
			ContractedPower:    6.9,
			EstimatedSavings:   4.6,
		},
		Attachment: &models.Attachment{Filename: "fatura.pdf", ContentType: "application/pdf", Size: 4, Data: []byte("%PDF")},
	})
	require.NoError(t, err)
	assert.Greater(t, newID, oldID)

	leads, err := s.ListLeads(ctx, 0)
	require.NoError(t, err)
	require.Len(t, leads, 2)
	assert.Equal(t, newID, leads[0].ID)
	require.NotNil(t, leads[0].Simulation)
	assert.Equal(t, "Galp", leads[0].Simulation.OperatorOfInterest)
	require.NotNil(t, leads[0].Attachment)
	assert.Equal(t, "fatura.pdf", leads[0].Attachment.Filename)
	assert.Nil(t, leads[0].Attachment.Data, "listing never loads file contents")
	assert.Nil(t, leads[1].Attachment)

	limited, err := s.ListLeads(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	att, err := s.LeadAttachment(ctx, newID)
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF"), att.Data)

	_, err = s.LeadAttachment(ctx, oldID)
	assert.ErrorIs(t, err, ErrNotFound)

	n, err := s.PurgeLeadsBefore(ctx, now.AddDate(-1, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	leads, err = s.ListLeads(ctx, 0)
	require.NoError(t, err)
	require.Len(t, leads, 1)
	assert.Equal(t, newID, leads[0].ID)
}

const seedYAML = `
operadoras:
  - id: galp
    nome: Galp
    ativa: true
    simples:
      energia: 0.15
    valor_diario_potencias:
      "6.9": 0.35
    descontos:
      dd_fe_energia: 3
      desconto_mensal_temporario: 10
      duracao_meses_desconto: 3
      requer_dd: true
  - id: endesa
    nome: Endesa
    ativa: true
    bi_horario:
      vazio: 0.1
      fora_vazio: 0.19
    valor_diario_potencias:
      "10.35": 0.5
`

func TestParseSeed(t *testing.T) {
	seed, err := ParseSeed([]byte(seedYAML))
	require.NoError(t, err)
	require.Len(t, seed.Operators, 2)

	galp := seed.Operators[0]
	assert.Equal(t, "Galp", galp.Name)
	assert.True(t, galp.Active)
	require.NotNil(t, galp.Simple)
	assert.Equal(t, 0.35, galp.PowerCharges["6.9"])
	require.NotNil(t, galp.Discount)
	assert.Equal(t, 3.0, galp.Discount.DDFEEnergy)
	assert.True(t, galp.Discount.RebateRequiresDD)

	assert.Nil(t, seed.Operators[1].Discount)
	assert.Equal(t, 0.5, seed.Operators[1].PowerCharges["10.35"])
}

func TestParseSeedRejectsInvalid(t *testing.T) {
	_, err := ParseSeed([]byte("operadoras:\n  - nome: Sem id\n"))
	assert.Error(t, err)

	_, err = ParseSeed([]byte("operadoras:\n  - {id: a, nome: A}\n  - {id: a, nome: B}\n"))
	assert.Error(t, err)

	_, err = ParseSeed([]byte("operadoras: [\n"))
	assert.Error(t, err)
}

func TestApplySeedOnlyOnEmptyDatabase(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	seed, err := ParseSeed([]byte(seedYAML))
	require.NoError(t, err)

	n, err := s.ApplySeed(ctx, seed)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	discounts, err := s.ListDiscounts(ctx)
	require.NoError(t, err)
	assert.Len(t, discounts, 1)
	assert.Equal(t, "galp", discounts["galp"].OperatorID)

	n, err = s.ApplySeed(ctx, seed)
	require.NoError(t, err)
	assert.Zero(t, n)

	count, err := s.CountOperators(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestLoadSeedShippedCatalogue(t *testing.T) {
	path := filepath.Join("..", "..", "data", "operadoras.yaml")
	if _, err := os.Stat(path); err != nil {
		t.Skip("seed file not present")
	}
	seed, err := LoadSeed(path)
	require.NoError(t, err)
	assert.NotEmpty(t, seed.Operators)
	for _, op := range seed.Operators {
		assert.NotEmpty(t, op.AvailableCycles(), op.ID)
		for key := range op.PowerCharges {
			found := false
			for _, p := range models.ContractedPowers {
				if models.PowerKey(p) == key {
					found = true
				}
			}
			assert.True(t, found, "%s publishes unknown power tier %s", op.ID, key)
		}
	}
}
