package models

import (
	"strconv"
	"time"
)

// BillingCycle is the time-of-use shape of an electricity contract.
type BillingCycle string

const (
	CycleSimple    BillingCycle = "simples"
	CycleBiHourly  BillingCycle = "bi-horario"
	CycleTriHourly BillingCycle = "tri-horario"
)

// Valid reports whether c is one of the three known cycles.
func (c BillingCycle) Valid() bool {
	switch c {
	case CycleSimple, CycleBiHourly, CycleTriHourly:
		return true
	}
	return false
}

// Label is the human-readable name used in reports and messages.
func (c BillingCycle) Label() string {
	switch c {
	case CycleSimple:
		return "Simples"
	case CycleBiHourly:
		return "Bi-Horário"
	case CycleTriHourly:
		return "Tri-Horário"
	}
	return string(c)
}

// BandKey names a time-of-use band.
type BandKey string

const (
	BandSimple     BandKey = "simples"
	BandOffPeak    BandKey = "vazio"
	BandNonOffPeak BandKey = "fora_vazio"
	BandMid        BandKey = "cheias"
	BandPeak       BandKey = "ponta"
)

// Label is the human-readable band name.
func (b BandKey) Label() string {
	switch b {
	case BandSimple:
		return "Simples"
	case BandOffPeak:
		return "Vazio"
	case BandNonOffPeak:
		return "Fora de Vazio"
	case BandMid:
		return "Cheias"
	case BandPeak:
		return "Ponta"
	}
	return string(b)
}

// ContractedPowers lists the legal contracted power values in kVA.
var ContractedPowers = []float64{
	1.15, 2.3, 3.45, 4.6, 5.75, 6.9, 10.35, 13.8, 17.25, 20.7, 27.6, 34.5, 41.4,
}

// IsValidContractedPower reports whether kva is one of ContractedPowers.
func IsValidContractedPower(kva float64) bool {
	for _, p := range ContractedPowers {
		if p == kva {
			return true
		}
	}
	return false
}

// PowerKey is the canonical map key for a contracted power value ("6.9", "10.35").
func PowerKey(kva float64) string {
	return strconv.FormatFloat(kva, 'f', -1, 64)
}

// DiscountConfig holds an operator's conditional discount tiers and its
// optional temporary monthly rebate. Percentages are in [0,100].
type DiscountConfig struct {
	ID         string `json:"id,omitempty" yaml:"-"`
	OperatorID string `json:"operadora_id" yaml:"-"`

	BasePower  float64 `json:"desconto_base_potencia" yaml:"base_potencia"`
	BaseEnergy float64 `json:"desconto_base_energia" yaml:"base_energia"`
	DDPower    float64 `json:"desconto_dd_potencia" yaml:"dd_potencia"`
	DDEnergy   float64 `json:"desconto_dd_energia" yaml:"dd_energia"`
	FEPower    float64 `json:"desconto_fe_potencia" yaml:"fe_potencia"`
	FEEnergy   float64 `json:"desconto_fe_energia" yaml:"fe_energia"`
	DDFEPower  float64 `json:"desconto_dd_fe_potencia" yaml:"dd_fe_potencia"`
	DDFEEnergy float64 `json:"desconto_dd_fe_energia" yaml:"dd_fe_energia"`

	MonthlyRebate     float64 `json:"desconto_mensal_temporario" yaml:"desconto_mensal_temporario"`
	RebateMonths      int     `json:"duracao_meses_desconto" yaml:"duracao_meses_desconto"`
	RebateDescription string  `json:"descricao_desconto_temporario,omitempty" yaml:"descricao_desconto_temporario"`
	RebateRequiresDD  bool    `json:"desconto_temporario_requer_dd" yaml:"requer_dd"`
	RebateRequiresFE  bool    `json:"desconto_temporario_requer_fe" yaml:"requer_fe"`

	UpdatedAt time.Time `json:"updated_at,omitempty" yaml:"-"`
}

// HasTemporaryRebate reports whether the rebate is configured with a positive
// amount and duration.
func (d DiscountConfig) HasTemporaryRebate() bool {
	return d.MonthlyRebate > 0 && d.RebateMonths > 0
}

// DiscountPercents is the effective power/energy discount for one customer.
type DiscountPercents struct {
	Power  float64 `json:"potencia"`
	Energy float64 `json:"energia"`
}

// TemporaryPromotion is a time-bounded monthly rebate evaluated for one
// customer and one operator.
type TemporaryPromotion struct {
	MonthlyRebate         float64 `json:"valor_mensal"`
	DurationMonths        int     `json:"duracao_meses"`
	Description           string  `json:"descricao,omitempty"`
	TotalSavings          float64 `json:"poupanca_total_periodo"`
	MonthlyCostBase       float64 `json:"custo_mensal_apos_promocao"`
	MonthlyCostWithRebate float64 `json:"custo_mensal_durante_promocao"`
	RequiresDD            bool    `json:"requer_dd"`
	RequiresFE            bool    `json:"requer_fe"`
	Available             bool    `json:"disponivel"`
}

// ComparisonResult is the cost of one candidate operator for a customer.
type ComparisonResult struct {
	Operator         OperatorTariff      `json:"operadora"`
	DailyPowerCharge float64             `json:"valor_potencia_diaria"`
	PowerRateMissing bool                `json:"potencia_sem_tarifa,omitempty"`
	PowerCost        float64             `json:"custo_total_potencia"`
	EnergyCosts      map[BandKey]float64 `json:"custos_energia"`
	EnergyCost       float64             `json:"custo_total_energia"`
	Discount         DiscountPercents    `json:"desconto_aplicado"`
	Subtotal         float64             `json:"subtotal"`
	Savings          float64             `json:"poupanca"`

	PotentialSavingsWithDDFE *float64            `json:"poupanca_potencial_dd_fe,omitempty"`
	TemporaryPromotion       *TemporaryPromotion `json:"desconto_temporario,omitempty"`
}

// Comparison is the full output of one simulation.
type Comparison struct {
	CurrentCost float64            `json:"custo_atual"`
	Results     []ComparisonResult `json:"resultados"`
}

// Best returns the top-ranked result, or nil when there are no candidates.
func (c Comparison) Best() *ComparisonResult {
	if len(c.Results) == 0 {
		return nil
	}
	best := c.Results[0]
	return &best
}
