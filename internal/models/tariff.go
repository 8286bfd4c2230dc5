package models

import "time"

// SimpleRates is an operator's single-rate energy price (€/kWh).
type SimpleRates struct {
	Energy float64 `json:"energia" yaml:"energia"`
}

// BiHourlyRates are an operator's two-band energy prices (€/kWh).
type BiHourlyRates struct {
	OffPeak    float64 `json:"vazio" yaml:"vazio"`
	NonOffPeak float64 `json:"fora_vazio" yaml:"fora_vazio"`
}

// TriHourlyRates are an operator's three-band energy prices (€/kWh).
type TriHourlyRates struct {
	OffPeak float64 `json:"vazio" yaml:"vazio"`
	Mid     float64 `json:"cheias" yaml:"cheias"`
	Peak    float64 `json:"ponta" yaml:"ponta"`
}

// OperatorTariff is one operator's published rates. A cycle is published iff
// its rate block is non-nil.
type OperatorTariff struct {
	ID      string `json:"id" yaml:"id"`
	Name    string `json:"nome" yaml:"nome"`
	LogoURL string `json:"logotipo_url,omitempty" yaml:"logotipo_url"`
	Active  bool   `json:"ativa" yaml:"ativa"`

	Simple    *SimpleRates    `json:"simples,omitempty" yaml:"simples"`
	BiHourly  *BiHourlyRates  `json:"bi_horario,omitempty" yaml:"bi_horario"`
	TriHourly *TriHourlyRates `json:"tri_horario,omitempty" yaml:"tri_horario"`

	// PowerCharges maps PowerKey(kVA) to the daily power charge in €/day.
	PowerCharges map[string]float64 `json:"valor_diario_potencias" yaml:"valor_diario_potencias"`

	UpdatedAt time.Time `json:"updated_at,omitempty" yaml:"-"`
}

// AvailableCycles lists the cycles this operator publishes rates for.
func (t OperatorTariff) AvailableCycles() []BillingCycle {
	var out []BillingCycle
	if t.Simple != nil {
		out = append(out, CycleSimple)
	}
	if t.BiHourly != nil {
		out = append(out, CycleBiHourly)
	}
	if t.TriHourly != nil {
		out = append(out, CycleTriHourly)
	}
	return out
}

// EnergyPrices returns the per-band prices for cycle, and false when the
// operator does not publish that cycle.
func (t OperatorTariff) EnergyPrices(cycle BillingCycle) (map[BandKey]float64, bool) {
	switch cycle {
	case CycleSimple:
		if t.Simple == nil {
			return nil, false
		}
		return map[BandKey]float64{BandSimple: t.Simple.Energy}, true
	case CycleBiHourly:
		if t.BiHourly == nil {
			return nil, false
		}
		return map[BandKey]float64{
			BandOffPeak:    t.BiHourly.OffPeak,
			BandNonOffPeak: t.BiHourly.NonOffPeak,
		}, true
	case CycleTriHourly:
		if t.TriHourly == nil {
			return nil, false
		}
		return map[BandKey]float64{
			BandOffPeak: t.TriHourly.OffPeak,
			BandMid:     t.TriHourly.Mid,
			BandPeak:    t.TriHourly.Peak,
		}, true
	}
	return nil, false
}

// PowerCharge looks up the daily charge for a contracted power.
func (t OperatorTariff) PowerCharge(kva float64) (float64, bool) {
	v, ok := t.PowerCharges[PowerKey(kva)]
	return v, ok
}

// Lead is a contact request captured by the site's forms.
type Lead struct {
	ID         int64           `json:"id"`
	Name       string          `json:"nome"`
	Email      string          `json:"email"`
	Phone      string          `json:"telefone"`
	Subject    string          `json:"assunto"`
	Message    string          `json:"mensagem,omitempty"`
	Simulation *LeadSimulation `json:"simulacao,omitempty"`
	Attachment *Attachment     `json:"anexo,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// LeadSimulation is the simulator summary attached to a lead.
type LeadSimulation struct {
	CurrentOperator    string  `json:"operadora_atual"`
	OperatorOfInterest string  `json:"operadora_interesse,omitempty"`
	ContractedPower    float64 `json:"potencia"`
	EstimatedSavings   float64 `json:"poupanca_estimada,omitempty"`
}

// Attachment is a file uploaded with a lead (typically an invoice).
type Attachment struct {
	Filename    string `json:"nome_ficheiro"`
	ContentType string `json:"tipo"`
	Size        int64  `json:"tamanho"`
	Data        []byte `json:"-"`
}

// Lead subjects accepted by the contact form.
const (
	SubjectPartnership = "Parceria"
	SubjectApplication = "Candidatura Espontânea"
	SubjectInvoice     = "Análise da minha fatura"
)

// ValidSubjects is the whitelist for Lead.Subject.
var ValidSubjects = map[string]bool{
	SubjectPartnership: true,
	SubjectApplication: true,
	SubjectInvoice:     true,
}
