package handlers

import (
	"context"
	"encoding/json"
	"io"
	"mpgrupo/internal/config"
	"mpgrupo/internal/logger"
	"mpgrupo/internal/models"
	"mpgrupo/internal/notify"
	sentryutil "mpgrupo/internal/sentry"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/net/html"
)

const maxAttachmentSize = 5 << 20

var allowedAttachments = map[string]string{
	".pdf":  "application/pdf",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
}

type contactRequest struct {
	Nome      string                 `json:"nome"`
	Email     string                 `json:"email"`
	Telefone  string                 `json:"telefone"`
	Assunto   string                 `json:"assunto"`
	Mensagem  string                 `json:"mensagem"`
	Simulacao *models.LeadSimulation `json:"simulacao,omitempty"`
}

func contactError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{"ok": false, "error": msg})
}

// ContactHandler handles POST /api/contact. It accepts JSON or, when an
// invoice is attached, multipart/form-data with the file in "anexo".
func ContactHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	noStore(w)

	r.Body = http.MaxBytesReader(w, r.Body, maxAttachmentSize+1<<20)
	if isMultipart(r) {
		if err := r.ParseMultipartForm(maxAttachmentSize); err != nil {
			contactError(w, http.StatusBadRequest, "Ficheiro demasiado grande (máx. 5MB)")
			return
		}
	}

	if !verifyTurnstile(getTurnstileToken(r)) {
		contactError(w, http.StatusForbidden, "Verificação de segurança falhou")
		return
	}

	lead, status, msg := readLead(r)
	if status != 0 {
		contactError(w, status, msg)
		return
	}

	if msg, ok := validateLead(lead); !ok {
		contactError(w, http.StatusBadRequest, msg)
		return
	}

	s := getStore()
	if s == nil {
		contactError(w, http.StatusServiceUnavailable, "Serviço temporariamente indisponível")
		return
	}
	lead.CreatedAt = time.Now()
	id, err := s.InsertLead(r.Context(), lead)
	if err != nil {
		sentryutil.CaptureError(err, map[string]string{"handler": "contact", "phase": "insert"})
		logger.Error("lead insert failed", map[string]interface{}{"error": err.Error()})
		contactError(w, http.StatusInternalServerError, "Não foi possível enviar o pedido. Tente novamente.")
		return
	}

	lead.ID = id
	logger.Info("lead received", map[string]interface{}{
		"id":      id,
		"assunto": lead.Subject,
		"anexo":   lead.Attachment != nil,
	})

	if n := getNotifier(); n != nil {
		go notifyLead(n, lead)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "id": id})
}

func notifyLead(n LeadNotifier, lead models.Lead) {
	timeout := config.Cfg.NotifyTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := n.SendWithRetry(ctx, notify.FormatLead(lead), 3); err != nil {
		sentryutil.CaptureError(err, map[string]string{"handler": "contact", "phase": "notify"})
		logger.Warn("lead notification failed", map[string]interface{}{"id": lead.ID, "error": err.Error()})
	}
}

func isMultipart(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Content-Type"), "multipart/form-data")
}

// readLead decodes the request into a sanitised lead. Multipart forms must
// already be parsed. A non-zero status means the request was rejected with msg.
func readLead(r *http.Request) (models.Lead, int, string) {
	var req contactRequest
	var att *models.Attachment

	if r.MultipartForm != nil {
		req.Nome = r.FormValue("nome")
		req.Email = r.FormValue("email")
		req.Telefone = r.FormValue("telefone")
		req.Assunto = r.FormValue("assunto")
		req.Mensagem = r.FormValue("mensagem")
		if sim := r.FormValue("simulacao"); sim != "" {
			var ls models.LeadSimulation
			if err := json.Unmarshal([]byte(sim), &ls); err != nil {
				return models.Lead{}, http.StatusBadRequest, "Dados da simulação inválidos"
			}
			req.Simulacao = &ls
		}

		var status int
		var msg string
		if att, status, msg = readAttachment(r); status != 0 {
			return models.Lead{}, status, msg
		}
	} else {
		defer r.Body.Close()
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return models.Lead{}, http.StatusBadRequest, "Dados inválidos"
		}
	}

	lead := models.Lead{
		Name:       stripHTML(req.Nome),
		Email:      strings.TrimSpace(req.Email),
		Phone:      stripHTML(req.Telefone),
		Subject:    strings.TrimSpace(req.Assunto),
		Message:    stripHTML(req.Mensagem),
		Simulation: req.Simulacao,
		Attachment: att,
	}
	if sim := lead.Simulation; sim != nil {
		sim.CurrentOperator = stripHTML(sim.CurrentOperator)
		sim.OperatorOfInterest = stripHTML(sim.OperatorOfInterest)
	}
	return lead, 0, ""
}

func readAttachment(r *http.Request) (*models.Attachment, int, string) {
	file, hdr, err := r.FormFile("anexo")
	if err == http.ErrMissingFile {
		return nil, 0, ""
	}
	if err != nil {
		return nil, http.StatusBadRequest, "Anexo inválido"
	}
	defer file.Close()

	if hdr.Size > maxAttachmentSize {
		return nil, http.StatusBadRequest, "Ficheiro demasiado grande (máx. 5MB)"
	}
	ext := strings.ToLower(filepath.Ext(hdr.Filename))
	want, ok := allowedAttachments[ext]
	if !ok {
		return nil, http.StatusBadRequest, "Formato não suportado: apenas PDF, JPG ou PNG"
	}

	data, err := io.ReadAll(io.LimitReader(file, maxAttachmentSize+1))
	if err != nil {
		sentryutil.CaptureError(err, map[string]string{"handler": "contact", "phase": "read-attachment"})
		return nil, http.StatusInternalServerError, "Erro ao ler o anexo"
	}
	if len(data) > maxAttachmentSize {
		return nil, http.StatusBadRequest, "Ficheiro demasiado grande (máx. 5MB)"
	}
	if mime := http.DetectContentType(data); mime != want {
		return nil, http.StatusBadRequest, "O conteúdo do ficheiro não corresponde à extensão"
	}

	return &models.Attachment{
		Filename:    filepath.Base(hdr.Filename),
		ContentType: want,
		Size:        int64(len(data)),
		Data:        data,
	}, 0, ""
}

// stripHTML keeps only the text content of s, dropping tags and the bodies
// of script and style elements.
func stripHTML(s string) string {
	z := html.NewTokenizer(strings.NewReader(s))
	var b strings.Builder
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.TrimSpace(b.String())
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}
		case html.StartTagToken:
			if name, _ := z.TagName(); isRawTag(name) {
				skip++
			}
		case html.EndTagToken:
			if name, _ := z.TagName(); isRawTag(name) && skip > 0 {
				skip--
			}
		}
	}
}

func isRawTag(name []byte) bool {
	n := string(name)
	return n == "script" || n == "style"
}
