package handlers

import (
	"errors"
	"fmt"
	"mpgrupo/internal/config"
	"mpgrupo/internal/logger"
	"mpgrupo/internal/models"
	sentryutil "mpgrupo/internal/sentry"
	"mpgrupo/internal/simulator"
	"net/http"
	"net/url"
	"strings"
	"sync"
)

type simulateResponse struct {
	models.Comparison
	Best          *models.ComparisonResult `json:"melhor,omitempty"`
	AnnualSavings *float64                 `json:"poupanca_anual,omitempty"`
}

// readSimulation decodes and validates a simulation request, writing the
// error response itself when it returns false.
func readSimulation(w http.ResponseWriter, r *http.Request) (models.CustomerInput, bool) {
	in, err := decodeSimulation(w, r)
	if err != nil {
		msg := "Dados da simulação inválidos"
		if errors.Is(err, errMissingData) {
			msg = "Campo data em falta"
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
		return in, false
	}
	if msg, ok := validateSimulation(in); !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
		return in, false
	}
	return in, true
}

// compareOrFail runs the comparison and reports storage errors to the client.
func compareOrFail(w http.ResponseWriter, r *http.Request, in models.CustomerInput, handler string) (models.Comparison, bool) {
	cmp, err := runComparison(r.Context(), in)
	if err != nil {
		sentryutil.CaptureError(err, map[string]string{"handler": handler, "phase": "compare"})
		logger.Error("comparison failed", map[string]interface{}{"handler": handler, "error": err.Error()})
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Não foi possível calcular a simulação"})
		return cmp, false
	}
	for _, res := range cmp.Results {
		if res.PowerRateMissing {
			reportMissingRate(res.Operator.ID, models.PowerKey(in.ContractedPower))
		}
	}
	return cmp, true
}

// reportedRates holds "operator|tier" keys already sent to Sentry.
var reportedRates sync.Map

// reportMissingRate logs a catalogue gap on every request and sends it to
// Sentry once per operator and tier. It reports whether Sentry was notified.
func reportMissingRate(operatorID, tier string) bool {
	logger.Warn("operator has no rate for contracted power", map[string]interface{}{
		"operadora": operatorID,
		"potencia":  tier,
	})
	if _, seen := reportedRates.LoadOrStore(operatorID+"|"+tier, struct{}{}); seen {
		return false
	}
	sentryutil.CaptureMessage(
		"operator has no rate for contracted power",
		sentryutil.LevelWarning(),
		map[string]string{"operadora": operatorID, "potencia": tier},
	)
	return true
}

// SimulateHandler serves POST /api/simulate.
func SimulateHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	noStore(w)

	in, ok := readSimulation(w, r)
	if !ok {
		return
	}
	cmp, ok := compareOrFail(w, r, in, "simulate")
	if !ok {
		return
	}

	resp := simulateResponse{Comparison: cmp}
	if cmp.Results == nil {
		resp.Results = []models.ComparisonResult{}
	}
	if best := cmp.Best(); best != nil {
		resp.Best = best
		annual := simulator.AnnualProjection(best.Savings, in.BillingDays)
		resp.AnnualSavings = &annual
	}

	logger.Info("simulation", map[string]interface{}{
		"ciclo":      string(in.Cycle()),
		"potencia":   in.ContractedPower,
		"resultados": len(cmp.Results),
		"total":      IncrementCounter(),
	})
	writeJSON(w, http.StatusOK, resp)
}

// WhatsAppHandler serves POST /api/whatsapp: it builds the pre-filled message
// a customer sends to the sales line after a simulation.
func WhatsAppHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	noStore(w)

	in, ok := readSimulation(w, r)
	if !ok {
		return
	}
	cmp, ok := compareOrFail(w, r, in, "whatsapp")
	if !ok {
		return
	}

	msg := whatsAppMessage(in, cmp)
	writeJSON(w, http.StatusOK, map[string]string{
		"url":     whatsAppURL(config.Cfg.WhatsAppNumber, msg),
		"message": msg,
	})
}

func whatsAppURL(number, msg string) string {
	var digits strings.Builder
	for _, c := range number {
		if c >= '0' && c <= '9' {
			digits.WriteRune(c)
		}
	}
	return "https://wa.me/" + digits.String() + "?text=" + url.QueryEscape(msg)
}

func whatsAppMessage(in models.CustomerInput, cmp models.Comparison) string {
	var b strings.Builder
	b.WriteString("Olá! Gostaria de saber mais sobre poupança energética.\n\n")
	b.WriteString("📊 *Dados da Simulação:*\n")
	fmt.Fprintf(&b, "• Operadora atual: %s\n", strings.TrimSpace(in.CurrentOperator))
	fmt.Fprintf(&b, "• Potência: %s kVA\n", models.PowerKey(in.ContractedPower))
	fmt.Fprintf(&b, "• Ciclo: %s\n", in.Cycle().Label())
	fmt.Fprintf(&b, "• Período: %d dias\n", in.BillingDays)
	fmt.Fprintf(&b, "• Custo atual: %s€\n", money(cmp.CurrentCost))

	if best := cmp.Best(); best != nil && best.Savings > 0 {
		b.WriteString("\n💰 *Melhor Opção:*\n")
		fmt.Fprintf(&b, "• Operadora: %s\n", best.Operator.Name)
		fmt.Fprintf(&b, "• Novo custo: %s€\n", money(best.Subtotal))
		fmt.Fprintf(&b, "• Poupança: %s€\n", money(best.Savings))
		fmt.Fprintf(&b, "• Poupança anual estimada: %s€\n", money(simulator.AnnualProjection(best.Savings, in.BillingDays)))
	}

	b.WriteString("\nGostaria de receber mais informações sobre como mudar de operadora.")
	return b.String()
}

// money formats an amount with two decimals and a comma separator.
func money(v float64) string {
	return strings.Replace(fmt.Sprintf("%.2f", v), ".", ",", 1)
}
