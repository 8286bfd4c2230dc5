package models

import (
	"encoding/json"
	"strings"
)

// BandUsage is the customer's consumption and current unit price in one band.
type BandUsage struct {
	Band  BandKey `json:"banda"`
	KWh   float64 `json:"kwh"`
	Price float64 `json:"preco"`
}

// Consumption is the cycle-shaped usage reported by the customer. Exactly one
// implementation exists per BillingCycle, so a simple-cycle input cannot carry
// peak/off-peak fields.
type Consumption interface {
	Cycle() BillingCycle
	Bands() []BandUsage
}

// SimpleConsumption is a single-rate contract.
type SimpleConsumption struct {
	KWh   float64
	Price float64
}

func (SimpleConsumption) Cycle() BillingCycle { return CycleSimple }

func (s SimpleConsumption) Bands() []BandUsage {
	return []BandUsage{{Band: BandSimple, KWh: s.KWh, Price: s.Price}}
}

// BiHourlyConsumption splits usage into off-peak (vazio) and the rest.
type BiHourlyConsumption struct {
	OffPeakKWh   float64
	OffPeakPrice float64
	PeakKWh      float64
	PeakPrice    float64
}

func (BiHourlyConsumption) Cycle() BillingCycle { return CycleBiHourly }

func (b BiHourlyConsumption) Bands() []BandUsage {
	return []BandUsage{
		{Band: BandOffPeak, KWh: b.OffPeakKWh, Price: b.OffPeakPrice},
		{Band: BandNonOffPeak, KWh: b.PeakKWh, Price: b.PeakPrice},
	}
}

// TriHourlyConsumption splits usage into off-peak, mid (cheias) and peak (ponta).
type TriHourlyConsumption struct {
	OffPeakKWh   float64
	OffPeakPrice float64
	MidKWh       float64
	MidPrice     float64
	PeakKWh      float64
	PeakPrice    float64
}

func (TriHourlyConsumption) Cycle() BillingCycle { return CycleTriHourly }

func (t TriHourlyConsumption) Bands() []BandUsage {
	return []BandUsage{
		{Band: BandOffPeak, KWh: t.OffPeakKWh, Price: t.OffPeakPrice},
		{Band: BandMid, KWh: t.MidKWh, Price: t.MidPrice},
		{Band: BandPeak, KWh: t.PeakKWh, Price: t.PeakPrice},
	}
}

// CustomerInput describes one simulation request.
type CustomerInput struct {
	CurrentOperator         string
	ContractedPower         float64
	CurrentDailyPowerCharge float64
	BillingDays             int
	Consumption             Consumption
	HasDirectDebit          bool
	HasElectronicInvoice    bool

	// cycle keeps the requested cycle even when it is unknown and
	// Consumption is nil.
	cycle BillingCycle
}

// Cycle returns the billing cycle of the input.
func (in CustomerInput) Cycle() BillingCycle {
	if in.Consumption != nil {
		return in.Consumption.Cycle()
	}
	return in.cycle
}

// Bands returns the populated bands, or nil for an unknown cycle.
func (in CustomerInput) Bands() []BandUsage {
	if in.Consumption == nil {
		return nil
	}
	return in.Consumption.Bands()
}

// NormalizedOperator is the current operator name used for self-exclusion.
func (in CustomerInput) NormalizedOperator() string {
	return NormalizeOperatorName(in.CurrentOperator)
}

// NormalizeOperatorName trims and lower-cases an operator name.
func NormalizeOperatorName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// simulationPayload is the flat wire shape posted by the site's simulator form.
type simulationPayload struct {
	CurrentOperator         string       `json:"operadora_atual"`
	ContractedPower         float64      `json:"potencia"`
	CurrentDailyPowerCharge float64      `json:"valor_potencia_diaria_atual"`
	BillingDays             int          `json:"dias_fatura"`
	Cycle                   BillingCycle `json:"ciclo_horario"`

	KWhSimple     *float64 `json:"kwh_simples,omitempty"`
	PriceSimple   *float64 `json:"preco_simples,omitempty"`
	KWhOffPeak    *float64 `json:"kwh_vazio,omitempty"`
	PriceOffPeak  *float64 `json:"preco_vazio,omitempty"`
	KWhNonOffPeak *float64 `json:"kwh_fora_vazio,omitempty"`
	PriceNonOff   *float64 `json:"preco_fora_vazio,omitempty"`
	KWhPeak       *float64 `json:"kwh_ponta,omitempty"`
	PricePeak     *float64 `json:"preco_ponta,omitempty"`
	KWhMid        *float64 `json:"kwh_cheias,omitempty"`
	PriceMid      *float64 `json:"preco_cheias,omitempty"`

	DirectDebit       bool `json:"debito_direto"`
	ElectronicInvoice bool `json:"fatura_eletronica"`
}

func val(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}

func ptr(v float64) *float64 { return &v }

// UnmarshalJSON builds the consumption variant for the posted cycle. Fields of
// other cycles are ignored; absent fields of the chosen cycle count as zero.
func (in *CustomerInput) UnmarshalJSON(data []byte) error {
	var p simulationPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}

	*in = CustomerInput{
		CurrentOperator:         p.CurrentOperator,
		ContractedPower:         p.ContractedPower,
		CurrentDailyPowerCharge: p.CurrentDailyPowerCharge,
		BillingDays:             p.BillingDays,
		HasDirectDebit:          p.DirectDebit,
		HasElectronicInvoice:    p.ElectronicInvoice,
		cycle:                   p.Cycle,
	}

	switch p.Cycle {
	case CycleSimple:
		in.Consumption = SimpleConsumption{KWh: val(p.KWhSimple), Price: val(p.PriceSimple)}
	case CycleBiHourly:
		in.Consumption = BiHourlyConsumption{
			OffPeakKWh: val(p.KWhOffPeak), OffPeakPrice: val(p.PriceOffPeak),
			PeakKWh: val(p.KWhNonOffPeak), PeakPrice: val(p.PriceNonOff),
		}
	case CycleTriHourly:
		in.Consumption = TriHourlyConsumption{
			OffPeakKWh: val(p.KWhOffPeak), OffPeakPrice: val(p.PriceOffPeak),
			MidKWh: val(p.KWhMid), MidPrice: val(p.PriceMid),
			PeakKWh: val(p.KWhPeak), PeakPrice: val(p.PricePeak),
		}
	}
	return nil
}

// MarshalJSON writes the flat wire shape, emitting only the active cycle's fields.
func (in CustomerInput) MarshalJSON() ([]byte, error) {
	p := simulationPayload{
		CurrentOperator:         in.CurrentOperator,
		ContractedPower:         in.ContractedPower,
		CurrentDailyPowerCharge: in.CurrentDailyPowerCharge,
		BillingDays:             in.BillingDays,
		Cycle:                   in.Cycle(),
		DirectDebit:             in.HasDirectDebit,
		ElectronicInvoice:       in.HasElectronicInvoice,
	}
	switch c := in.Consumption.(type) {
	case SimpleConsumption:
		p.KWhSimple, p.PriceSimple = ptr(c.KWh), ptr(c.Price)
	case BiHourlyConsumption:
		p.KWhOffPeak, p.PriceOffPeak = ptr(c.OffPeakKWh), ptr(c.OffPeakPrice)
		p.KWhNonOffPeak, p.PriceNonOff = ptr(c.PeakKWh), ptr(c.PeakPrice)
	case TriHourlyConsumption:
		p.KWhOffPeak, p.PriceOffPeak = ptr(c.OffPeakKWh), ptr(c.OffPeakPrice)
		p.KWhMid, p.PriceMid = ptr(c.MidKWh), ptr(c.MidPrice)
		p.KWhPeak, p.PricePeak = ptr(c.PeakKWh), ptr(c.PeakPrice)
	}
	return json.Marshal(p)
}
