package handlers

import (
	"bytes"
	"fmt"
	"math"
	"mpgrupo/internal/models"
	sentryutil "mpgrupo/internal/sentry"
	"mpgrupo/internal/simulator"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// maxReportResults caps the operator comparison table in the report.
const maxReportResults = 5

// Report palette
var (
	cBrown   = [3]int{44, 24, 16}
	cBrownLt = [3]int{139, 115, 85}
	cGold    = [3]int{212, 175, 55}
	cGreen   = [3]int{42, 107, 69}
	cGreenBg = [3]int{233, 245, 237}
	cAmber   = [3]int{154, 123, 46}
	cAmberBg = [3]int{250, 244, 230}
	cCream   = [3]int{250, 248, 243}
	cInk90   = [3]int{38, 38, 38}
	cInk50   = [3]int{107, 107, 107}
	cInk30   = [3]int{160, 160, 160}
	cInk15   = [3]int{217, 217, 217}
	cRed     = [3]int{200, 50, 50}
	cWhite   = [3]int{255, 255, 255}
)

const (
	pageW    = 210.0
	pageH    = 297.0
	marginL  = 20.0
	marginR  = 20.0
	marginT  = 20.0
	contentW = pageW - marginL - marginR
	footerH  = 25.0
)

func setFill(pdf *gofpdf.Fpdf, c [3]int) { pdf.SetFillColor(c[0], c[1], c[2]) }
func setText(pdf *gofpdf.Fpdf, c [3]int) { pdf.SetTextColor(c[0], c[1], c[2]) }
func setDraw(pdf *gofpdf.Fpdf, c [3]int) { pdf.SetDrawColor(c[0], c[1], c[2]) }

// fmtEuro formats an amount the Portuguese way: "1.234,56".
func fmtEuro(amount float64) string {
	neg := amount < 0
	if neg {
		amount = -amount
	}
	cents := int64(math.Round(amount * 100))
	s := fmt.Sprintf("%s,%02d", addDotSep(fmt.Sprintf("%d", cents/100)), cents%100)
	if neg && cents > 0 {
		return "-" + s
	}
	return s
}

func addDotSep(s string) string {
	n := len(s)
	if n <= 3 {
		return s
	}
	return addDotSep(s[:n-3]) + "." + s[n-3:]
}

// ensureSpace adds a page when fewer than needed mm remain above the footer.
func ensureSpace(pdf *gofpdf.Fpdf, needed float64) float64 {
	y := pdf.GetY()
	if y+needed > pageH-footerH-5 {
		pdf.AddPage()
		return pdf.GetY()
	}
	return y
}

// drawPill draws a rounded label and returns its width.
func drawPill(pdf *gofpdf.Fpdf, tr func(string) string, x, y float64, text string, bg, fg [3]int) float64 {
	pdf.SetFont("Helvetica", "B", 7.5)
	w := pdf.GetStringWidth(tr(text)) + 8
	setFill(pdf, bg)
	pdf.RoundedRect(x, y, w, 5.5, 2.5, "1234", "F")
	setText(pdf, fg)
	pdf.SetXY(x, y+0.5)
	pdf.CellFormat(w, 5, tr(text), "", 0, "C", false, 0, "")
	return w
}

// drawSection draws a cream title band and leaves the cursor below it.
func drawSection(pdf *gofpdf.Fpdf, tr func(string) string, title string) {
	y := ensureSpace(pdf, 30)
	setFill(pdf, cCream)
	pdf.Rect(marginL, y, contentW, 9, "F")
	setFill(pdf, cGold)
	pdf.Rect(marginL, y, 1.5, 9, "F")
	pdf.SetXY(marginL+4, y+1.5)
	pdf.SetFont("Helvetica", "B", 11)
	setText(pdf, cBrown)
	pdf.CellFormat(contentW-4, 6, tr(title), "", 1, "L", false, 0, "")
	pdf.SetY(y + 13)
}

func infoLine(pdf *gofpdf.Fpdf, tr func(string) string, label, value string) {
	pdf.SetX(marginL + 5)
	pdf.SetFont("Helvetica", "B", 9.5)
	setText(pdf, cInk90)
	pdf.CellFormat(55, 6, tr(label+":"), "", 0, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 9.5)
	pdf.CellFormat(contentW-60, 6, tr(value), "", 1, "L", false, 0, "")
}

var unsafeFilenameRe = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// reportFilename is MPGrupo_Simulacao_<operator>_<date>.pdf with the
// operator name reduced to filename-safe characters.
func reportFilename(operator string, now time.Time) string {
	op := strings.Join(strings.Fields(operator), "_")
	op = unsafeFilenameRe.ReplaceAllString(op, "")
	if op == "" {
		op = "operadora"
	}
	return fmt.Sprintf("MPGrupo_Simulacao_%s_%s.pdf", op, now.Format("2006-01-02"))
}

// ReportHandler serves POST /api/report: the simulation rendered as a PDF.
func ReportHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	noStore(w)

	in, ok := readSimulation(w, r)
	if !ok {
		return
	}
	cmp, ok := compareOrFail(w, r, in, "report")
	if !ok {
		return
	}

	now := time.Now()
	var buf bytes.Buffer
	if err := renderReport(&buf, in, cmp, now); err != nil {
		sentryutil.CaptureError(err, map[string]string{"handler": "report", "phase": "pdf-output"})
		http.Error(w, "Erro ao gerar PDF", http.StatusInternalServerError)
		return
	}

	disposition := "attachment"
	if r.URL.Query().Get("mode") == "inline" {
		disposition = "inline"
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`%s; filename="%s"`, disposition, reportFilename(in.CurrentOperator, now)))
	w.Write(buf.Bytes())
}

func renderReport(out *bytes.Buffer, in models.CustomerInput, cmp models.Comparison, now time.Time) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(marginL, marginT, marginR)
	pdf.SetAutoPageBreak(false, footerH)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFooterFunc(func() {
		setFill(pdf, cBrown)
		pdf.Rect(0, pageH-footerH, pageW, footerH, "F")
		setText(pdf, cWhite)
		pdf.SetFont("Helvetica", "", 9)
		pdf.SetXY(marginL, pageH-18)
		pdf.CellFormat(contentW, 5, tr("MPGrupo - Soluções Energéticas"), "", 1, "L", false, 0, "")
		pdf.SetX(marginL)
		pdf.CellFormat(contentW/2+20, 5, "+351 928 203 793 | info@mpgrupo.pt | www.mpgrupo.pt", "", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 8)
		pdf.CellFormat(contentW/2-20, 5, fmt.Sprintf("Gerado em %s", now.Format("02/01/2006 15:04")), "", 0, "R", false, 0, "")
	})

	pdf.AddPage()

	// Header band
	setFill(pdf, cBrown)
	pdf.Rect(0, 0, pageW, 45, "F")
	setFill(pdf, cGold)
	pdf.Rect(0, 42, pageW, 3, "F")
	pdf.SetXY(marginL, 14)
	pdf.SetFont("Helvetica", "B", 24)
	setText(pdf, cGold)
	pdf.CellFormat(contentW, 10, "MPGrupo", "", 1, "L", false, 0, "")
	pdf.SetX(marginL)
	pdf.SetFont("Helvetica", "", 12)
	setText(pdf, cWhite)
	pdf.CellFormat(contentW, 8, tr("Relatório de Simulação Energética"), "", 1, "L", false, 0, "")
	pdf.SetY(55)

	// Simulation data
	drawSection(pdf, tr, "Dados da Simulação")
	infoLine(pdf, tr, "Data do Relatório", now.Format("02/01/2006"))
	infoLine(pdf, tr, "Operadora Atual", strings.TrimSpace(in.CurrentOperator))
	infoLine(pdf, tr, "Potência Contratada", models.PowerKey(in.ContractedPower)+" kVA")
	infoLine(pdf, tr, "Valor Potência Diária", fmt.Sprintf("€%.4f", in.CurrentDailyPowerCharge))
	infoLine(pdf, tr, "Dias de Fatura", fmt.Sprintf("%d dias", in.BillingDays))
	infoLine(pdf, tr, "Ciclo Horário", in.Cycle().Label())
	for _, b := range in.Bands() {
		if b.KWh == 0 {
			continue
		}
		label := "Consumo " + b.Band.Label()
		if b.Band == models.BandSimple {
			label = "Consumo"
		}
		infoLine(pdf, tr, label, fmt.Sprintf("%.2f kWh", b.KWh))
		if b.Band == models.BandSimple {
			infoLine(pdf, tr, "Preço kWh", fmt.Sprintf("€%.6f", b.Price))
		}
	}
	infoLine(pdf, tr, "Débito Direto", yesNo(in.HasDirectDebit))
	infoLine(pdf, tr, "Fatura Eletrónica", yesNo(in.HasElectronicInvoice))
	pdf.Ln(5)

	// Current cost
	drawSection(pdf, tr, "Custo Atual")
	y := pdf.GetY()
	setFill(pdf, cCream)
	pdf.RoundedRect(marginL, y, contentW, 16, 3, "1234", "F")
	pdf.SetXY(marginL+5, y+2)
	pdf.SetFont("Helvetica", "", 9.5)
	setText(pdf, cInk50)
	pdf.CellFormat(contentW-10, 5, "Custo Atual (Fatura):", "", 1, "L", false, 0, "")
	pdf.SetX(marginL + 5)
	pdf.SetFont("Helvetica", "B", 14)
	setText(pdf, cBrown)
	pdf.CellFormat(contentW-10, 7, tr("€"+fmtEuro(cmp.CurrentCost)), "", 1, "L", false, 0, "")
	pdf.SetY(y + 22)

	// Comparison
	drawSection(pdf, tr, "Comparação de Operadoras")
	results := cmp.Results
	if len(results) > maxReportResults {
		results = results[:maxReportResults]
	}
	if len(results) == 0 {
		pdf.SetX(marginL + 5)
		pdf.SetFont("Helvetica", "I", 9.5)
		setText(pdf, cInk50)
		pdf.CellFormat(contentW-5, 6, tr("Nenhuma operadora disponível para este ciclo horário."), "", 1, "L", false, 0, "")
		pdf.Ln(4)
	}
	for i, res := range results {
		drawResult(pdf, tr, i+1, res)
	}

	// Annual projection
	if best := cmp.Best(); best != nil && best.Savings > 0 {
		drawSection(pdf, tr, "Projeção Anual")
		pdf.SetX(marginL + 5)
		pdf.SetFont("Helvetica", "", 10)
		setText(pdf, cInk90)
		pdf.CellFormat(contentW-5, 6, tr(fmt.Sprintf("Mudando para %s, pode poupar aproximadamente:", best.Operator.Name)), "", 1, "L", false, 0, "")
		y := pdf.GetY() + 3
		setFill(pdf, cGreenBg)
		pdf.Rect(marginL, y, contentW, 18, "F")
		pdf.SetXY(marginL, y+4)
		pdf.SetFont("Helvetica", "B", 16)
		setText(pdf, cGold)
		annual := simulator.AnnualProjection(best.Savings, in.BillingDays)
		pdf.CellFormat(contentW, 10, tr("€"+fmtEuro(annual)+" / ano"), "", 1, "C", false, 0, "")
		pdf.SetY(y + 24)
	}

	// DD+FE upsell
	var ddfe []models.ComparisonResult
	for _, res := range cmp.Results {
		if ddfeTotal(cmp.CurrentCost, res) > 0 {
			ddfe = append(ddfe, res)
		}
	}
	if len(ddfe) > 0 {
		drawSection(pdf, tr, "Poupança Adicional com Débito Direto e Fatura Eletrónica")
		for _, res := range ddfe {
			total := ddfeTotal(cmp.CurrentCost, res)
			paragraph(pdf, tr, res.Operator.Name+":",
				fmt.Sprintf("Caso aderisse com Débito Direto e Fatura Eletrónica, a poupança total em relação à fatura atual seria de €%s.", fmtEuro(total)),
				fmt.Sprintf("Projeção anual: €%s", fmtEuro(simulator.AnnualProjection(total, in.BillingDays))))
		}
	}

	// Promotions the customer does not yet qualify for
	var promos []models.ComparisonResult
	for _, res := range cmp.Results {
		if p := res.TemporaryPromotion; p != nil && !p.Available {
			promos = append(promos, res)
		}
	}
	if len(promos) > 0 {
		drawSection(pdf, tr, "Descontos Promocionais Disponíveis")
		for _, res := range promos {
			p := res.TemporaryPromotion
			months := "meses"
			if p.DurationMonths == 1 {
				months = "mês"
			}
			lines := []string{
				fmt.Sprintf("Caso aderisse com %s, a poupança total em relação à fatura atual seria de €%s durante os primeiros %d %s.",
					strings.Join(missingRequirements(in, *p), " e "), fmtEuro(p.TotalSavings), p.DurationMonths, months),
				fmt.Sprintf("Custo mensal durante a promoção: €%s (depois: €%s)", fmtEuro(p.MonthlyCostWithRebate), fmtEuro(p.MonthlyCostBase)),
			}
			if p.Description != "" {
				lines = append(lines, "("+p.Description+")")
			}
			paragraph(pdf, tr, res.Operator.Name+":", lines...)
		}
	}

	// Disclaimer
	ensureSpace(pdf, 15)
	pdf.Ln(3)
	pdf.SetX(marginL)
	pdf.SetFont("Helvetica", "I", 7.5)
	setText(pdf, cInk50)
	pdf.MultiCell(contentW, 3.8, tr("Valores estimados com base nos dados introduzidos e nas tarifas em vigor. "+
		"A projeção anual assume um consumo constante ao longo do ano."), "", "C", false)

	return pdf.Output(out)
}

func drawResult(pdf *gofpdf.Fpdf, tr func(string) string, rank int, res models.ComparisonResult) {
	y := ensureSpace(pdf, 30)
	boxH := 24.0
	setDraw(pdf, cInk15)
	pdf.SetLineWidth(0.3)
	pdf.RoundedRect(marginL, y, contentW, boxH, 2, "1234", "D")
	setFill(pdf, cBrownLt)
	pdf.Rect(marginL, y, 1.5, boxH, "F")

	pdf.SetXY(marginL+4, y+2)
	pdf.SetFont("Helvetica", "B", 11)
	setText(pdf, cBrown)
	name := fmt.Sprintf("%d. %s", rank, res.Operator.Name)
	pdf.CellFormat(pdf.GetStringWidth(tr(name))+3, 6, tr(name), "", 0, "L", false, 0, "")

	pillX := pdf.GetX() + 2
	if res.Discount.Power > 0 || res.Discount.Energy > 0 {
		pillX += drawPill(pdf, tr, pillX, y+2.5, fmt.Sprintf("Desconto %.0f%% / %.0f%%", res.Discount.Power, res.Discount.Energy), cAmberBg, cAmber) + 2
	}
	if res.PowerRateMissing {
		drawPill(pdf, tr, pillX, y+2.5, "Potência sem tarifa", cInk15, cInk50)
	}

	col1X := marginL + 6
	col2X := marginL + contentW/2
	pdf.SetFont("Helvetica", "", 9.5)
	setText(pdf, cInk90)
	pdf.SetXY(col1X, y+10)
	pdf.CellFormat(contentW/2-6, 5, tr("Potência: €"+fmtEuro(res.PowerCost)), "", 0, "L", false, 0, "")
	pdf.SetXY(col1X, y+16)
	pdf.CellFormat(contentW/2-6, 5, tr("Energia: €"+fmtEuro(res.EnergyCost)), "", 0, "L", false, 0, "")

	pdf.SetXY(col2X, y+10)
	pdf.SetFont("Helvetica", "B", 9.5)
	pdf.CellFormat(contentW/2, 5, tr("Total: €"+fmtEuro(res.Subtotal)), "", 0, "L", false, 0, "")
	pdf.SetXY(col2X, y+16)
	switch {
	case res.Savings > 0:
		setText(pdf, cGreen)
		pdf.CellFormat(contentW/2, 5, tr("Poupança: €"+fmtEuro(res.Savings)), "", 0, "L", false, 0, "")
	case res.Savings < 0:
		setText(pdf, cRed)
		pdf.CellFormat(contentW/2, 5, tr("Custo adicional: €"+fmtEuro(-res.Savings)), "", 0, "L", false, 0, "")
	default:
		setText(pdf, cInk50)
		pdf.CellFormat(contentW/2, 5, "Igual ao atual", "", 0, "L", false, 0, "")
	}
	pdf.SetY(y + boxH + 4)
}

func paragraph(pdf *gofpdf.Fpdf, tr func(string) string, title string, lines ...string) {
	ensureSpace(pdf, 8+float64(len(lines))*10)
	pdf.SetX(marginL + 5)
	pdf.SetFont("Helvetica", "B", 9.5)
	setText(pdf, cBrown)
	pdf.CellFormat(contentW-5, 5, tr(title), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 9)
	setText(pdf, cInk90)
	for _, l := range lines {
		pdf.SetX(marginL + 5)
		pdf.MultiCell(contentW-5, 4.5, tr(l), "", "L", false)
	}
	pdf.Ln(3)
}

// ddfeTotal is the saving against the current invoice if the customer took
// both direct debit and electronic invoice with this operator; 0 when there
// is no such hint.
func ddfeTotal(current float64, res models.ComparisonResult) float64 {
	p := res.PotentialSavingsWithDDFE
	if p == nil || *p <= 0 {
		return 0
	}
	if total := current - (res.Subtotal - *p); total > 0 {
		return total
	}
	return 0
}

func missingRequirements(in models.CustomerInput, p models.TemporaryPromotion) []string {
	var req []string
	if p.RequiresDD && !in.HasDirectDebit {
		req = append(req, "Débito Direto")
	}
	if p.RequiresFE && !in.HasElectronicInvoice {
		req = append(req, "Fatura Eletrónica")
	}
	return req
}

func yesNo(b bool) string {
	if b {
		return "Sim"
	}
	return "Não"
}
