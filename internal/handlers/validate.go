package handlers

import (
	"fmt"
	"mpgrupo/internal/models"
	"net/mail"
	"strings"
	"unicode/utf8"
)

const maxBillingDays = 365

// validateSimulation rejects input the engine would price without complaint
// but that cannot describe a real invoice.
func validateSimulation(in models.CustomerInput) (string, bool) {
	op := strings.TrimSpace(in.CurrentOperator)
	if op == "" {
		return "Indique a operadora atual", false
	}
	if utf8.RuneCountInString(op) > 100 {
		return "Nome da operadora demasiado longo", false
	}
	if !models.IsValidContractedPower(in.ContractedPower) {
		return "Potência contratada inválida", false
	}
	if in.BillingDays < 1 || in.BillingDays > maxBillingDays {
		return fmt.Sprintf("Dias de fatura devem estar entre 1 e %d", maxBillingDays), false
	}
	if in.CurrentDailyPowerCharge < 0 {
		return "Valor da potência diária não pode ser negativo", false
	}
	if !in.Cycle().Valid() {
		return "Ciclo horário inválido", false
	}
	for _, b := range in.Bands() {
		if b.KWh < 0 || b.Price < 0 {
			return fmt.Sprintf("Consumo e preço (%s) não podem ser negativos", b.Band.Label()), false
		}
	}
	return "", true
}

// validateDiscount checks an admin-submitted discount configuration.
func validateDiscount(d models.DiscountConfig) (string, bool) {
	pcts := []struct {
		name string
		v    float64
	}{
		{"base_potencia", d.BasePower}, {"base_energia", d.BaseEnergy},
		{"dd_potencia", d.DDPower}, {"dd_energia", d.DDEnergy},
		{"fe_potencia", d.FEPower}, {"fe_energia", d.FEEnergy},
		{"dd_fe_potencia", d.DDFEPower}, {"dd_fe_energia", d.DDFEEnergy},
	}
	for _, p := range pcts {
		if p.v < 0 || p.v > 100 {
			return fmt.Sprintf("Desconto %s deve estar entre 0 e 100", p.name), false
		}
	}
	if d.BasePower+d.DDFEPower > 100 || d.BaseEnergy+d.DDFEEnergy > 100 ||
		d.BasePower+d.DDPower+d.FEPower > 100 || d.BaseEnergy+d.DDEnergy+d.FEEnergy > 100 {
		return "A soma dos descontos não pode exceder 100%", false
	}
	if d.MonthlyRebate < 0 {
		return "Desconto mensal temporário não pode ser negativo", false
	}
	if d.RebateMonths < 0 {
		return "Duração do desconto não pode ser negativa", false
	}
	return "", true
}

// validateOperator checks an admin-submitted operator.
func validateOperator(op models.OperatorTariff) (string, bool) {
	if strings.TrimSpace(op.Name) == "" {
		return "Nome da operadora é obrigatório", false
	}
	if len(op.AvailableCycles()) == 0 {
		return "Indique as tarifas de pelo menos um ciclo horário", false
	}
	prices := []float64{}
	if op.Simple != nil {
		prices = append(prices, op.Simple.Energy)
	}
	if op.BiHourly != nil {
		prices = append(prices, op.BiHourly.OffPeak, op.BiHourly.NonOffPeak)
	}
	if op.TriHourly != nil {
		prices = append(prices, op.TriHourly.OffPeak, op.TriHourly.Mid, op.TriHourly.Peak)
	}
	for _, p := range prices {
		if p < 0 {
			return "Preços de energia não podem ser negativos", false
		}
	}
	for key, v := range op.PowerCharges {
		if v < 0 {
			return "Valores de potência não podem ser negativos", false
		}
		if !isPowerKey(key) {
			return fmt.Sprintf("Potência %s kVA não é um escalão válido", key), false
		}
	}
	return "", true
}

func isPowerKey(key string) bool {
	for _, p := range models.ContractedPowers {
		if models.PowerKey(p) == key {
			return true
		}
	}
	return false
}

// validateLead applies the contact form rules.
func validateLead(l models.Lead) (string, bool) {
	n := utf8.RuneCountInString(l.Name)
	if n < 2 || n > 100 {
		return "Nome deve ter entre 2 e 100 caracteres", false
	}
	if len(l.Email) > 255 || !validEmail(l.Email) {
		return "Email inválido", false
	}
	p := utf8.RuneCountInString(l.Phone)
	if p < 9 || p > 20 {
		return "Telefone deve ter entre 9 e 20 caracteres", false
	}
	if !models.ValidSubjects[l.Subject] {
		return "Assunto inválido", false
	}
	if utf8.RuneCountInString(l.Message) > 1000 {
		return "Mensagem demasiado longa (máx. 1000 caracteres)", false
	}
	return "", true
}

func validEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s {
		return false
	}
	at := strings.LastIndex(s, "@")
	return at > 0 && strings.Contains(s[at+1:], ".")
}
