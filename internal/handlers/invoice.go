package handlers

import (
	"bytes"
	"io"
	"mpgrupo/internal/models"
	sentryutil "mpgrupo/internal/sentry"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"
)

// invoiceFields are the simulator inputs recognised in an invoice. Zero
// values were not found.
type invoiceFields struct {
	Found            bool                `json:"found"`
	Cycle            models.BillingCycle `json:"ciclo_horario,omitempty"`
	ContractedPower  float64             `json:"potencia,omitempty"`
	BillingDays      int                 `json:"dias_fatura,omitempty"`
	DailyPowerCharge float64             `json:"valor_potencia_diaria_atual,omitempty"`
	KWh              float64             `json:"kwh_simples,omitempty"`
	Price            float64             `json:"preco_simples,omitempty"`
}

var (
	invoicePowerRe = regexp.MustCompile(`(?i)(\d{1,2}[.,]\d{1,2})\s*kVA`)
	invoiceDaysRe  = regexp.MustCompile(`(?i)(\d{1,3})\s*dias`)
	invoiceDailyRe = regexp.MustCompile(`(?i)(\d+[.,]\d{3,6})\s*(?:€|eur)?\s*/\s*dia`)
	invoiceKWhRe   = regexp.MustCompile(`(?i)(\d{1,3}(?:\.\d{3})*(?:,\d+)?|\d+(?:[.,]\d+)?)\s*kWh\b`)
	invoicePriceRe = regexp.MustCompile(`(?i)(\d+[.,]\d{4,6})\s*(?:€|eur)?\s*/\s*kWh`)
	thousandsRe    = regexp.MustCompile(`^\d{1,3}(?:\.\d{3})+$`)
)

// ParseInvoiceHandler serves POST /api/parse-invoice. It extracts the
// simulator fields from an uploaded electricity invoice PDF.
func ParseInvoiceHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxAttachmentSize)
	if err := r.ParseMultipartForm(maxAttachmentSize); err != nil {
		http.Error(w, "Ficheiro demasiado grande (máx. 5MB)", http.StatusBadRequest)
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "Ficheiro não encontrado", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		sentryutil.CaptureError(err, map[string]string{"handler": "parse-invoice", "phase": "read"})
		http.Error(w, "Erro ao ler o ficheiro", http.StatusInternalServerError)
		return
	}

	if mime := http.DetectContentType(data); mime != "application/pdf" {
		http.Error(w, "Formato inválido: apenas PDF", http.StatusBadRequest)
		return
	}

	noStore(w)
	pdfReader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		sentryutil.CaptureError(err, map[string]string{"handler": "parse-invoice", "phase": "pdf-parse"})
		writeJSON(w, http.StatusOK, invoiceFields{})
		return
	}

	var text strings.Builder
	for i := 1; i <= pdfReader.NumPage(); i++ {
		p := pdfReader.Page(i)
		if p.V.IsNull() {
			continue
		}
		t, err := p.GetPlainText(nil)
		if err != nil {
			continue
		}
		text.WriteString(t)
		text.WriteString(" ")
	}

	writeJSON(w, http.StatusOK, extractInvoiceFields(text.String()))
}

func extractInvoiceFields(text string) invoiceFields {
	var f invoiceFields

	for _, m := range invoicePowerRe.FindAllStringSubmatch(text, -1) {
		if v, ok := parsePTNumber(m[1]); ok && models.IsValidContractedPower(v) {
			f.ContractedPower = v
			break
		}
	}
	for _, m := range invoiceDaysRe.FindAllStringSubmatch(text, -1) {
		if n, err := strconv.Atoi(m[1]); err == nil && n >= 1 && n <= maxBillingDays {
			f.BillingDays = n
			break
		}
	}
	if m := invoiceDailyRe.FindStringSubmatch(text); m != nil {
		f.DailyPowerCharge, _ = parsePTNumber(m[1])
	}

	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "tri-horári") || strings.Contains(lower, "tri-horari") || strings.Contains(lower, "cheias"):
		f.Cycle = models.CycleTriHourly
	case strings.Contains(lower, "bi-horári") || strings.Contains(lower, "bi-horari") || strings.Contains(lower, "fora de vazio"):
		f.Cycle = models.CycleBiHourly
	default:
		f.Cycle = models.CycleSimple
		if m := invoicePriceRe.FindStringSubmatch(text); m != nil {
			f.Price, _ = parsePTNumber(m[1])
		}
		for _, m := range invoiceKWhRe.FindAllStringSubmatch(text, -1) {
			if v, ok := parseKWh(m[1]); ok && v > 0 {
				f.KWh = v
				break
			}
		}
	}

	f.Found = f.ContractedPower > 0 || f.BillingDays > 0 || f.DailyPowerCharge > 0 || f.KWh > 0
	if !f.Found {
		f.Cycle = ""
	}
	return f
}

// parsePTNumber reads "1.234,56" as well as "6.9". A comma marks the decimal
// separator and dots before it group thousands.
func parsePTNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if strings.Contains(s, ",") {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// parseKWh is parsePTNumber except that "1.234" groups thousands.
func parseKWh(s string) (float64, bool) {
	if thousandsRe.MatchString(s) {
		s = strings.ReplaceAll(s, ".", "")
	}
	return parsePTNumber(s)
}
