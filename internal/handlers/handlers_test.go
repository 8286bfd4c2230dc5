package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"mime/multipart"
	"mpgrupo/internal/chatbot"
	"mpgrupo/internal/config"
	"mpgrupo/internal/models"
	"mpgrupo/internal/store"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func init() {
	if err := chatbot.LoadDefault(); err != nil {
		panic(err)
	}
}

// setupStore wires a fresh database holding three operators:
//
//	EDP     simple, the customer's current operator
//	Galp    simple, 5% base discount, 10€/month promo that needs direct debit
//	Endesa  bi-hourly only
func setupStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "handlers.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	ctx := context.Background()
	ops := []models.OperatorTariff{
		{ID: "edp", Name: "EDP", Active: true, Simple: &models.SimpleRates{Energy: 0.15},
			PowerCharges: map[string]float64{"6.9": 0.30}},
		{ID: "galp", Name: "Galp", Active: true, Simple: &models.SimpleRates{Energy: 0.12},
			PowerCharges: map[string]float64{"6.9": 0.25}},
		{ID: "endesa", Name: "Endesa", Active: true, BiHourly: &models.BiHourlyRates{OffPeak: 0.09, NonOffPeak: 0.18},
			PowerCharges: map[string]float64{"6.9": 0.28}},
	}
	for _, op := range ops {
		if _, err := s.SaveOperator(ctx, op); err != nil {
			t.Fatalf("save operator %s: %v", op.ID, err)
		}
	}
	_, err = s.SaveDiscount(ctx, models.DiscountConfig{
		OperatorID:        "galp",
		BasePower:         5,
		BaseEnergy:        5,
		DDFEEnergy:        3,
		MonthlyRebate:     10,
		RebateMonths:      3,
		RebateDescription: "10€ por mês",
		RebateRequiresDD:  true,
	})
	if err != nil {
		t.Fatalf("save discount: %v", err)
	}

	SetStore(s)
	t.Cleanup(func() {
		SetStore(nil)
		s.Close()
	})
	return s
}

// customerJSON is an EDP customer: 0.35*30 + 200*0.16 = 42.50 for 30 days.
const customerJSON = `{"operadora_atual":" edp ","potencia":6.9,"valor_potencia_diaria_atual":0.35,"dias_fatura":30,"ciclo_horario":"simples","kwh_simples":200,"preco_simples":0.16,"debito_direto":false,"fatura_eletronica":false}`

func postJSON(h http.HandlerFunc, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("Invalid JSON: %v (%s)", err, w.Body.String())
	}
	return out
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-6 }

func TestSimulateHandler_Valid(t *testing.T) {
	setupStore(t)

	w := postJSON(SimulateHandler, "/api/simulate", customerJSON)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if cc := w.Header().Get("Cache-Control"); !strings.Contains(cc, "no-store") {
		t.Errorf("Expected no-store, got %q", cc)
	}

	result := decode(t, w)
	if got := result["custo_atual"].(float64); !near(got, 42.5) {
		t.Errorf("custo_atual = %v, want 42.5", got)
	}

	// EDP is the customer's own operator, Endesa has no simple-cycle rates.
	results := result["resultados"].([]interface{})
	if len(results) != 1 {
		t.Fatalf("Expected 1 result, got %d", len(results))
	}
	galp := results[0].(map[string]interface{})
	if name := galp["operadora"].(map[string]interface{})["nome"]; name != "Galp" {
		t.Errorf("Expected Galp, got %v", name)
	}
	// (0.25*30 + 200*0.12) * 0.95
	if got := galp["subtotal"].(float64); !near(got, 29.925) {
		t.Errorf("subtotal = %v, want 29.925", got)
	}
	promo := galp["desconto_temporario"].(map[string]interface{})
	if promo["disponivel"].(bool) {
		t.Error("Promotion requires direct debit and must not be available")
	}

	if _, ok := result["melhor"]; !ok {
		t.Error("melhor should be present")
	}
	if got := result["poupanca_anual"].(float64); !near(got, 12.575/30*365) {
		t.Errorf("poupanca_anual = %v", got)
	}
}

func TestSimulateHandler_FormData(t *testing.T) {
	setupStore(t)

	form := url.Values{"data": {customerJSON}}
	req := httptest.NewRequest(http.MethodPost, "/api/simulate", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()

	SimulateHandler(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestSimulateHandler_MultipartData(t *testing.T) {
	setupStore(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("data", customerJSON)
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/simulate", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()

	SimulateHandler(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if got := decode(t, w)["custo_atual"].(float64); !near(got, 42.5) {
		t.Errorf("custo_atual = %v, want 42.5", got)
	}
}

func TestSimulateHandler_MultipartWithoutData(t *testing.T) {
	setupStore(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("other", "x")
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/simulate", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()

	SimulateHandler(w, req)

	if w.Code != http.StatusBadRequest || decode(t, w)["error"] != "Campo data em falta" {
		t.Fatalf("Expected 400 missing data, got %d: %s", w.Code, w.Body.String())
	}
}

func TestSimulateHandler_BodyTooLarge(t *testing.T) {
	setupStore(t)

	// Valid JSON padded past the body limit with whitespace.
	body := customerJSON[:len(customerJSON)-1] + strings.Repeat(" ", maxSimulationBody) + "}"
	w := postJSON(SimulateHandler, "/api/simulate", body)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400 for an oversized body, got %d", w.Code)
	}
}

func TestReportMissingRate_OncePerOperatorAndTier(t *testing.T) {
	if !reportMissingRate("gap-op", "6.9") {
		t.Fatal("first gap should be sent to Sentry")
	}
	if reportMissingRate("gap-op", "6.9") {
		t.Error("repeated gap should only be logged")
	}
	if !reportMissingRate("gap-op", "10.35") {
		t.Error("another tier is a separate gap")
	}
	if !reportMissingRate("gap-op-2", "6.9") {
		t.Error("another operator is a separate gap")
	}
}

func TestSimulateHandler_NoCandidates(t *testing.T) {
	setupStore(t)

	body := strings.Replace(customerJSON, `"simples"`, `"tri-horario"`, 1)
	w := postJSON(SimulateHandler, "/api/simulate", body)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	result := decode(t, w)
	if n := len(result["resultados"].([]interface{})); n != 0 {
		t.Errorf("Expected no results, got %d", n)
	}
	if _, ok := result["melhor"]; ok {
		t.Error("melhor must be omitted without results")
	}
}

func TestSimulateHandler_Invalid(t *testing.T) {
	setupStore(t)

	tests := []struct {
		name string
		body string
	}{
		{"bad json", `{"potencia":`},
		{"empty operator", strings.Replace(customerJSON, `" edp "`, `"  "`, 1)},
		{"illegal power", strings.Replace(customerJSON, `"potencia":6.9`, `"potencia":7`, 1)},
		{"zero days", strings.Replace(customerJSON, `"dias_fatura":30`, `"dias_fatura":0`, 1)},
		{"too many days", strings.Replace(customerJSON, `"dias_fatura":30`, `"dias_fatura":400`, 1)},
		{"negative kwh", strings.Replace(customerJSON, `"kwh_simples":200`, `"kwh_simples":-1`, 1)},
		{"negative daily charge", strings.Replace(customerJSON, `0.35`, `-0.35`, 1)},
		{"unknown cycle", strings.Replace(customerJSON, `"simples"`, `"quad-horario"`, 1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postJSON(SimulateHandler, "/api/simulate", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("Expected 400, got %d: %s", w.Code, w.Body.String())
			}
			if decode(t, w)["error"] == "" {
				t.Error("Expected an error message")
			}
		})
	}
}

func TestSimulateHandler_MethodAndStore(t *testing.T) {
	w := httptest.NewRecorder()
	SimulateHandler(w, httptest.NewRequest(http.MethodGet, "/api/simulate", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("Expected 405, got %d", w.Code)
	}

	SetStore(nil)
	w = postJSON(SimulateHandler, "/api/simulate", customerJSON)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("Expected 500 without a store, got %d", w.Code)
	}
}

func TestWhatsAppHandler(t *testing.T) {
	setupStore(t)
	prev := config.Cfg.WhatsAppNumber
	config.Cfg.WhatsAppNumber = "+351 928 203 793"
	t.Cleanup(func() { config.Cfg.WhatsAppNumber = prev })

	w := postJSON(WhatsAppHandler, "/api/whatsapp", customerJSON)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	result := decode(t, w)

	link := result["url"].(string)
	if !strings.HasPrefix(link, "https://wa.me/351928203793?text=") {
		t.Fatalf("unexpected url %q", link)
	}
	u, err := url.Parse(link)
	if err != nil {
		t.Fatalf("url parse: %v", err)
	}
	msg := result["message"].(string)
	if u.Query().Get("text") != msg {
		t.Error("text parameter should carry the message")
	}

	for _, want := range []string{
		"Olá! Gostaria de saber mais sobre poupança energética.",
		"*Dados da Simulação:*",
		"Operadora atual: edp",
		"Potência: 6.9 kVA",
		"Custo atual: 42,50€",
		"*Melhor Opção:*",
		"Operadora: Galp",
		"Poupança anual estimada: 153,00€",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q:\n%s", want, msg)
		}
	}
}

func TestWhatsAppHandler_NoSavingsOmitsBestOption(t *testing.T) {
	setupStore(t)

	// A cheap current contract: nobody beats 0.01€/day and 0.01€/kWh.
	body := strings.NewReplacer("0.35", "0.01", `"preco_simples":0.16`, `"preco_simples":0.01`).Replace(customerJSON)
	w := postJSON(WhatsAppHandler, "/api/whatsapp", body)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if msg := decode(t, w)["message"].(string); strings.Contains(msg, "Melhor Opção") {
		t.Errorf("Best option must be omitted without savings:\n%s", msg)
	}
}

func TestReportHandler(t *testing.T) {
	setupStore(t)

	w := postJSON(ReportHandler, "/api/report", customerJSON)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("Content-Type = %q", ct)
	}
	cd := w.Header().Get("Content-Disposition")
	if !strings.HasPrefix(cd, `attachment; filename="MPGrupo_Simulacao_edp_`) {
		t.Errorf("Content-Disposition = %q", cd)
	}
	if !bytes.HasPrefix(w.Body.Bytes(), []byte("%PDF")) {
		t.Error("Body is not a PDF")
	}
}

func TestReportHandler_InlineWithoutResults(t *testing.T) {
	setupStore(t)

	body := strings.Replace(customerJSON, `"simples"`, `"tri-horario"`, 1)
	req := httptest.NewRequest(http.MethodPost, "/api/report?mode=inline", strings.NewReader(body))
	w := httptest.NewRecorder()
	ReportHandler(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.HasPrefix(cd, "inline;") {
		t.Errorf("Content-Disposition = %q", cd)
	}
	if !bytes.HasPrefix(w.Body.Bytes(), []byte("%PDF")) {
		t.Error("Body is not a PDF")
	}
}

func TestReportHelpers(t *testing.T) {
	cases := map[float64]string{
		0:        "0,00",
		5:        "5,00",
		1234.5:   "1.234,50",
		-12.5:    "-12,50",
		1000000:  "1.000.000,00",
		-0.001:   "0,00",
		152.9958: "153,00",
	}
	for in, want := range cases {
		if got := fmtEuro(in); got != want {
			t.Errorf("fmtEuro(%v) = %q, want %q", in, got, want)
		}
	}

	day := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	if got := reportFilename("EDP Comercial", day); got != "MPGrupo_Simulacao_EDP_Comercial_2026-03-14.pdf" {
		t.Errorf("reportFilename = %q", got)
	}
	if got := reportFilename(`"../x"`, day); got != "MPGrupo_Simulacao_x_2026-03-14.pdf" {
		t.Errorf("reportFilename should drop unsafe characters, got %q", got)
	}
}

type fakeNotifier struct {
	sent chan string
}

func (f *fakeNotifier) SendWithRetry(ctx context.Context, text string, maxRetries int) error {
	f.sent <- text
	return nil
}

func withNotifier(t *testing.T) *fakeNotifier {
	t.Helper()
	n := &fakeNotifier{sent: make(chan string, 4)}
	SetNotifier(n)
	t.Cleanup(func() { SetNotifier(nil) })
	return n
}

const leadJSON = `{"nome":"<b>Ana</b> Silva","email":"ana@example.pt","telefone":"912 345 678","assunto":"Análise da minha fatura","mensagem":"Olá <script>alert(1)</script>quero <i>poupar</i>","simulacao":{"operadora_atual":"EDP","potencia":6.9,"poupanca_estimada":150}}`

func TestContactHandler_StoresAndNotifies(t *testing.T) {
	s := setupStore(t)
	n := withNotifier(t)

	w := postJSON(ContactHandler, "/api/contact", leadJSON)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	result := decode(t, w)
	if result["ok"] != true || result["id"].(float64) < 1 {
		t.Fatalf("unexpected response %v", result)
	}

	leads, err := s.ListLeads(context.Background(), 0)
	if err != nil || len(leads) != 1 {
		t.Fatalf("Expected 1 stored lead, got %d (%v)", len(leads), err)
	}
	lead := leads[0]
	if lead.Name != "Ana Silva" {
		t.Errorf("Name = %q, HTML should be stripped", lead.Name)
	}
	if lead.Message != "Olá quero poupar" {
		t.Errorf("Message = %q", lead.Message)
	}
	if lead.Simulation == nil || lead.Simulation.CurrentOperator != "EDP" {
		t.Errorf("Simulation = %+v", lead.Simulation)
	}

	select {
	case text := <-n.sent:
		if !strings.Contains(text, "Ana Silva") || !strings.Contains(text, "Análise da minha fatura") {
			t.Errorf("unexpected alert: %s", text)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("notifier was not called")
	}
}

func TestContactHandler_Validation(t *testing.T) {
	setupStore(t)

	tests := []struct {
		name string
		from string
		to   string
	}{
		{"short name", `"<b>Ana</b> Silva"`, `"A"`},
		{"bad email", `"ana@example.pt"`, `"ana@"`},
		{"short phone", `"912 345 678"`, `"912"`},
		{"unknown subject", `"Análise da minha fatura"`, `"Outro"`},
		{"long message", `"Olá <script>alert(1)</script>quero <i>poupar</i>"`, `"` + strings.Repeat("a", 1001) + `"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postJSON(ContactHandler, "/api/contact", strings.Replace(leadJSON, tt.from, tt.to, 1))
			if w.Code != http.StatusBadRequest {
				t.Fatalf("Expected 400, got %d: %s", w.Code, w.Body.String())
			}
			if decode(t, w)["ok"] != false {
				t.Error("ok should be false")
			}
		})
	}
}

func multipartLead(t *testing.T, filename string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fields := map[string]string{
		"nome":     "Rui Costa",
		"email":    "rui@example.pt",
		"telefone": "+351 961 000 000",
		"assunto":  models.SubjectInvoice,
		"mensagem": "Segue a fatura.",
	}
	for k, v := range fields {
		mw.WriteField(k, v)
	}
	if filename != "" {
		fw, err := mw.CreateFormFile("anexo", filename)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		fw.Write(content)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/contact", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestContactHandler_Attachment(t *testing.T) {
	setupStore(t)
	pdf := []byte("%PDF-1.4\n%fatura de teste\n")

	w := httptest.NewRecorder()
	ContactHandler(w, multipartLead(t, "fatura.pdf", pdf))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	id := int64(decode(t, w)["id"].(float64))

	// The admin download returns the same bytes.
	req := httptest.NewRequest(http.MethodGet, "/api/admin/leads/"+jsonNumber(id)+"/anexo", nil)
	dl := httptest.NewRecorder()
	AdminLeadsHandler(dl, req)
	if dl.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", dl.Code, dl.Body.String())
	}
	if dl.Header().Get("Content-Type") != "application/pdf" {
		t.Errorf("Content-Type = %q", dl.Header().Get("Content-Type"))
	}
	if !bytes.Equal(dl.Body.Bytes(), pdf) {
		t.Error("downloaded attachment differs")
	}
}

func TestContactHandler_RejectsBadAttachment(t *testing.T) {
	setupStore(t)

	tests := []struct {
		name     string
		filename string
		content  []byte
	}{
		{"wrong extension", "fatura.docx", []byte("%PDF-1.4\n")},
		{"content mismatch", "fatura.pdf", []byte("just some text")},
		{"too large", "fatura.png", append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, maxAttachmentSize)...)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			ContactHandler(w, multipartLead(t, tt.filename, tt.content))
			if w.Code != http.StatusBadRequest {
				t.Fatalf("Expected 400, got %d: %s", w.Code, w.Body.String())
			}
		})
	}
}

func TestContactHandler_Turnstile(t *testing.T) {
	setupStore(t)

	verify := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		json.NewEncoder(w).Encode(map[string]bool{"success": r.PostForm.Get("response") == "good-token"})
	}))
	defer verify.Close()

	prevURL, prevSecret := turnstileVerifyURL, config.Cfg.TurnstileSecretKey
	turnstileVerifyURL, config.Cfg.TurnstileSecretKey = verify.URL, "secret"
	t.Cleanup(func() { turnstileVerifyURL, config.Cfg.TurnstileSecretKey = prevURL, prevSecret })

	for token, want := range map[string]int{"": http.StatusForbidden, "bad": http.StatusForbidden, "good-token": http.StatusOK} {
		req := httptest.NewRequest(http.MethodPost, "/api/contact", strings.NewReader(leadJSON))
		req.Header.Set("Content-Type", "application/json")
		if token != "" {
			req.Header.Set("X-Turnstile-Token", token)
		}
		w := httptest.NewRecorder()
		ContactHandler(w, req)
		if w.Code != want {
			t.Errorf("token %q: expected %d, got %d", token, want, w.Code)
		}
	}
}

func TestStripHTML(t *testing.T) {
	cases := map[string]string{
		"plain":                          "plain",
		"<p>Olá <b>mundo</b></p>":        "Olá mundo",
		"a<style>p{}</style>b":           "ab",
		"x &amp; y":                      "x & y",
		"  <script>bad()</script>  ok  ": "ok",
	}
	for in, want := range cases {
		if got := stripHTML(in); got != want {
			t.Errorf("stripHTML(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestChatHandler(t *testing.T) {
	w := postJSON(ChatHandler, "/api/chat", `{"mensagem":"Como vos posso contactar?"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	result := decode(t, w)
	if result["tipo"] != chatbot.KindFAQ || result["categoria"] != "Contacto" {
		t.Errorf("unexpected reply %v", result)
	}
	if !strings.Contains(result["resposta_html"].(string), "<") {
		t.Error("resposta_html should be rendered HTML")
	}

	for _, body := range []string{`{"mensagem":"   "}`, `{"mensagem":"` + strings.Repeat("a", 501) + `"}`, `nope`} {
		if w := postJSON(ChatHandler, "/api/chat", body); w.Code != http.StatusBadRequest {
			t.Errorf("body %.20q: expected 400, got %d", body, w.Code)
		}
	}
}

func TestChatFAQsHandler(t *testing.T) {
	w := httptest.NewRecorder()
	ChatFAQsHandler(w, httptest.NewRequest(http.MethodGet, "/api/chat/faqs", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	result := decode(t, w)
	if len(result["topicos"].([]interface{})) == 0 {
		t.Error("topicos should not be empty")
	}
	if len(result["respostas_rapidas"].([]interface{})) != 4 {
		t.Error("Expected 4 quick replies")
	}
}

func withAdminKey(t *testing.T, key string) {
	t.Helper()
	prev := config.Cfg.AdminAPIKey
	config.Cfg.AdminAPIKey = key
	t.Cleanup(func() { config.Cfg.AdminAPIKey = prev })
}

func adminRequest(h http.HandlerFunc, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	req.Header.Set("X-Admin-Key", "segredo")
	w := httptest.NewRecorder()
	h(w, req)
	return w
}

func TestAdmin_RequiresKey(t *testing.T) {
	setupStore(t)
	withAdminKey(t, "segredo")

	for _, h := range []http.HandlerFunc{AdminOperatorsHandler, AdminDiscountsHandler, AdminLeadsHandler} {
		w := httptest.NewRecorder()
		h(w, httptest.NewRequest(http.MethodGet, "/api/admin/operators", nil))
		if w.Code != http.StatusUnauthorized {
			t.Errorf("Expected 401 without key, got %d", w.Code)
		}
	}

	w := httptest.NewRecorder()
	AdminOperatorsHandler(w, httptest.NewRequest(http.MethodGet, "/api/admin/operators?key=segredo", nil))
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200 with ?key=, got %d", w.Code)
	}
}

func TestAdminOperators_CRUD(t *testing.T) {
	setupStore(t)
	withAdminKey(t, "segredo")

	w := adminRequest(AdminOperatorsHandler, http.MethodGet, "/api/admin/operators", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if total := decode(t, w)["total"].(float64); total != 3 {
		t.Errorf("Expected 3 operators, got %v", total)
	}

	w = adminRequest(AdminOperatorsHandler, http.MethodPost, "/api/admin/operators",
		`{"nome":"Goldenergy","ativa":true,"simples":{"energia":0.14},"valor_diario_potencias":{"6.9":0.31}}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	id := decode(t, w)["id"].(string)
	if id == "" {
		t.Fatal("Expected a generated id")
	}

	w = adminRequest(AdminOperatorsHandler, http.MethodGet, "/api/admin/operators/"+id, "")
	if w.Code != http.StatusOK || decode(t, w)["nome"] != "Goldenergy" {
		t.Fatalf("Expected Goldenergy, got %d: %s", w.Code, w.Body.String())
	}

	w = adminRequest(AdminOperatorsHandler, http.MethodDelete, "/api/admin/operators/"+id, "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	w = adminRequest(AdminOperatorsHandler, http.MethodDelete, "/api/admin/operators/"+id, "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("Expected 404 on second delete, got %d", w.Code)
	}
}

func TestAdminOperators_Invalid(t *testing.T) {
	setupStore(t)
	withAdminKey(t, "segredo")

	bodies := map[string]string{
		"no name":       `{"simples":{"energia":0.14}}`,
		"no cycle":      `{"nome":"X","valor_diario_potencias":{"6.9":0.31}}`,
		"bad tier":      `{"nome":"X","simples":{"energia":0.14},"valor_diario_potencias":{"7":0.31}}`,
		"negative rate": `{"nome":"X","bi_horario":{"vazio":-0.1,"fora_vazio":0.2}}`,
	}
	for name, body := range bodies {
		w := adminRequest(AdminOperatorsHandler, http.MethodPost, "/api/admin/operators", body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d: %s", name, w.Code, w.Body.String())
		}
	}
	if w := adminRequest(AdminOperatorsHandler, http.MethodDelete, "/api/admin/operators", ""); w.Code != http.StatusBadRequest {
		t.Errorf("DELETE without id: expected 400, got %d", w.Code)
	}
}

func TestAdminDiscounts(t *testing.T) {
	setupStore(t)
	withAdminKey(t, "segredo")

	w := adminRequest(AdminDiscountsHandler, http.MethodPost, "/api/admin/discounts",
		`{"operadora_id":"endesa","desconto_dd_energia":2,"desconto_fe_energia":1}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = adminRequest(AdminDiscountsHandler, http.MethodGet, "/api/admin/discounts", "")
	if total := decode(t, w)["total"].(float64); total != 2 {
		t.Errorf("Expected 2 discount configs, got %v", total)
	}

	invalid := map[string]string{
		"percent over 100": `{"operadora_id":"galp","desconto_base_energia":120}`,
		"negative rebate":  `{"operadora_id":"galp","desconto_mensal_temporario":-5}`,
		"missing operator": `{"desconto_base_energia":5}`,
	}
	for name, body := range invalid {
		if w := adminRequest(AdminDiscountsHandler, http.MethodPost, "/api/admin/discounts", body); w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", name, w.Code)
		}
	}

	w = adminRequest(AdminDiscountsHandler, http.MethodPost, "/api/admin/discounts", `{"operadora_id":"nope","desconto_base_energia":5}`)
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown operator: expected 404, got %d", w.Code)
	}
}

func TestAdminLeads(t *testing.T) {
	setupStore(t)
	withAdminKey(t, "segredo")

	for i := 0; i < 3; i++ {
		if w := postJSON(ContactHandler, "/api/contact", leadJSON); w.Code != http.StatusOK {
			t.Fatalf("contact: %d %s", w.Code, w.Body.String())
		}
	}

	w := adminRequest(AdminLeadsHandler, http.MethodGet, "/api/admin/leads?limit=2", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if total := decode(t, w)["total"].(float64); total != 2 {
		t.Errorf("Expected 2 leads, got %v", total)
	}

	if w := adminRequest(AdminLeadsHandler, http.MethodGet, "/api/admin/leads?limit=x", ""); w.Code != http.StatusBadRequest {
		t.Errorf("bad limit: expected 400, got %d", w.Code)
	}
	if w := adminRequest(AdminLeadsHandler, http.MethodGet, "/api/admin/leads/1/anexo", ""); w.Code != http.StatusNotFound {
		t.Errorf("lead without attachment: expected 404, got %d", w.Code)
	}
	if w := adminRequest(AdminLeadsHandler, http.MethodGet, "/api/admin/leads/abc", ""); w.Code != http.StatusNotFound {
		t.Errorf("bad path: expected 404, got %d", w.Code)
	}
}

func TestParseInvoiceHandler_RejectsNonPDF(t *testing.T) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, _ := mw.CreateFormFile("file", "fatura.pdf")
	fw.Write([]byte("not a pdf at all"))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/parse-invoice", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	ParseInvoiceHandler(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", w.Code)
	}
}

func TestExtractInvoiceFields(t *testing.T) {
	text := `Fatura n.º 123 Período de faturação: 30 dias Potência contratada 6,9 kVA
	Termo de potência 0,3702 €/dia Energia simples 1.234 kWh x 0,1649 €/kWh`
	f := extractInvoiceFields(text)

	if !f.Found {
		t.Fatal("Expected fields to be found")
	}
	if f.ContractedPower != 6.9 || f.BillingDays != 30 {
		t.Errorf("power/days = %v/%v", f.ContractedPower, f.BillingDays)
	}
	if !near(f.DailyPowerCharge, 0.3702) || !near(f.Price, 0.1649) || !near(f.KWh, 1234) {
		t.Errorf("daily/price/kwh = %v/%v/%v", f.DailyPowerCharge, f.Price, f.KWh)
	}
	if f.Cycle != models.CycleSimple {
		t.Errorf("cycle = %q", f.Cycle)
	}

	bi := extractInvoiceFields("Tarifa bi-horária 3,45 kVA 31 dias Vazio 120 kWh")
	if bi.Cycle != models.CycleBiHourly || bi.KWh != 0 || bi.ContractedPower != 3.45 {
		t.Errorf("bi-hourly invoice: %+v", bi)
	}

	if none := extractInvoiceFields("Documento sem dados"); none.Found || none.Cycle != "" {
		t.Errorf("Expected nothing, got %+v", none)
	}
}

func TestParsePTNumber(t *testing.T) {
	cases := map[string]float64{"1.234,56": 1234.56, "6,9": 6.9, "6.9": 6.9, "0,1649": 0.1649}
	for in, want := range cases {
		if got, ok := parsePTNumber(in); !ok || !near(got, want) {
			t.Errorf("parsePTNumber(%q) = %v, %v", in, got, ok)
		}
	}
	if _, ok := parsePTNumber("abc"); ok {
		t.Error("abc should not parse")
	}
}

func TestHealthHandler(t *testing.T) {
	setupStore(t)

	w := httptest.NewRecorder()
	HealthHandler(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	result := decode(t, w)
	if result["status"] != "ok" {
		t.Errorf("status = %v", result["status"])
	}
	if result["operadoras"].(float64) != 3 {
		t.Errorf("operadoras = %v", result["operadoras"])
	}

	SetStore(nil)
	w = httptest.NewRecorder()
	HealthHandler(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if decode(t, w)["status"] != "degraded" {
		t.Error("Expected degraded without a store")
	}
}

func TestNotFoundHandler(t *testing.T) {
	w := httptest.NewRecorder()
	NotFoundHandler(w, httptest.NewRequest(http.MethodGet, "/api/nope", nil))
	if w.Code != http.StatusNotFound || !strings.Contains(w.Header().Get("Content-Type"), "application/json") {
		t.Errorf("API 404: %d %s", w.Code, w.Header().Get("Content-Type"))
	}

	w = httptest.NewRecorder()
	NotFoundHandler(w, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if w.Code != http.StatusNotFound || !strings.Contains(w.Body.String(), "Página não encontrada") {
		t.Errorf("HTML 404: %d", w.Code)
	}
}

func TestInternalErrorHandler(t *testing.T) {
	w := httptest.NewRecorder()
	InternalErrorHandler(w, httptest.NewRequest(http.MethodPost, "/api/simulate", nil))
	if w.Code != http.StatusInternalServerError || decode(t, w)["error"] == nil {
		t.Errorf("API 500: %d %s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	InternalErrorHandler(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if !strings.Contains(w.Body.String(), "Erro do servidor") {
		t.Error("HTML 500 page expected")
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(1, 2, time.Second)
	defer rl.Stop()
	clock := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return clock }

	h := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	hit := func(ip string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
		req.RemoteAddr = ip + ":1234"
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w.Code
	}

	if hit("10.0.0.1") != http.StatusOK || hit("10.0.0.1") != http.StatusOK {
		t.Fatal("burst of 2 should pass")
	}
	if code := hit("10.0.0.1"); code != http.StatusTooManyRequests {
		t.Fatalf("Expected 429, got %d", code)
	}
	if hit("10.0.0.2") != http.StatusOK {
		t.Error("other clients have their own bucket")
	}

	// Partial intervals do not refill; a full second adds one token.
	clock = clock.Add(900 * time.Millisecond)
	if hit("10.0.0.1") != http.StatusTooManyRequests {
		t.Error("no refill before a full interval")
	}
	clock = clock.Add(100 * time.Millisecond)
	if hit("10.0.0.1") != http.StatusOK {
		t.Error("one token after a full interval")
	}

	clock = clock.Add(time.Hour)
	rl.cleanup()
	rl.mu.Lock()
	n := len(rl.clients)
	rl.mu.Unlock()
	if n != 0 {
		t.Errorf("stale clients should be removed, %d left", n)
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:5555"
	if got := clientIP(req); got != "192.0.2.1" {
		t.Errorf("clientIP = %q", got)
	}
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	if got := clientIP(req); got != "203.0.113.9" {
		t.Errorf("clientIP behind proxy = %q", got)
	}
}

func jsonNumber(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func TestCounter_PersistsAndReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "counter.json")
	t.Cleanup(func() { InitCounter("") })
	InitCounter(path)
	for i := 0; i < flushEveryN; i++ {
		IncrementCounter()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("counter not flushed after %d increments: %v", flushEveryN, err)
	}
	if !strings.Contains(string(data), `"simulacoes":10`) {
		t.Errorf("unexpected counter file %s", data)
	}

	IncrementCounter()
	StopCounter()

	InitCounter(path)
	defer StopCounter()
	if got := GetCounter(); got != 11 {
		t.Errorf("reloaded count = %d, want 11", got)
	}
}

func TestCounter_ConcurrentFlushesKeepLatest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "counter.json")
	t.Cleanup(func() { InitCounter("") })
	InitCounter(path)
	defer StopCounter()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				IncrementCounter()
				flushCounter()
			}
		}()
	}
	wg.Wait()
	IncrementCounter()
	flushCounter()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read counter: %v", err)
	}
	if !strings.Contains(string(data), `"simulacoes":401`) {
		t.Errorf("counter file %s, want 401", data)
	}
}
