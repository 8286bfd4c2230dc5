package notify

import (
	"fmt"
	"html"
	"mpgrupo/internal/models"
	"strings"
)

// FormatLead renders a new-lead alert in Telegram HTML.
func FormatLead(l models.Lead) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("📩 <b>Novo pedido de contacto</b> #%d\n", l.ID))
	b.WriteString(fmt.Sprintf("<b>%s</b>\n\n", html.EscapeString(l.Subject)))

	b.WriteString(fmt.Sprintf("Nome: %s\n", html.EscapeString(l.Name)))
	b.WriteString(fmt.Sprintf("Email: %s\n", html.EscapeString(l.Email)))
	b.WriteString(fmt.Sprintf("Telefone: %s\n", html.EscapeString(l.Phone)))

	if s := l.Simulation; s != nil {
		b.WriteString("\n📊 <b>Simulação</b>\n")
		b.WriteString(fmt.Sprintf("Operadora atual: %s\n", html.EscapeString(s.CurrentOperator)))
		if s.OperatorOfInterest != "" {
			b.WriteString(fmt.Sprintf("Operadora de interesse: %s\n", html.EscapeString(s.OperatorOfInterest)))
		}
		b.WriteString(fmt.Sprintf("Potência: %s kVA\n", models.PowerKey(s.ContractedPower)))
		if s.EstimatedSavings > 0 {
			b.WriteString(fmt.Sprintf("Poupança estimada: %.2f€/ano\n", s.EstimatedSavings))
		}
	}

	if l.Message != "" {
		b.WriteString("\n💬 ")
		b.WriteString(html.EscapeString(l.Message))
		b.WriteString("\n")
	}

	if a := l.Attachment; a != nil {
		b.WriteString(fmt.Sprintf("\n📎 %s (%d KB)\n", html.EscapeString(a.Filename), (a.Size+1023)/1024))
	}

	return b.String()
}
