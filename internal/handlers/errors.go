package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

var (
	errMissingData = errors.New("missing data field")
	errNoStore     = errors.New("database not configured")
)

// NotFoundHandler serves a styled 404 page or JSON error for API routes.
func NotFoundHandler(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "endpoint not found"})
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	w.Write([]byte(errorPageHTML("404", "Página não encontrada", "A página que procura não existe ou foi movida.")))
}

// InternalErrorHandler serves a styled 500 page or JSON error for API routes.
func InternalErrorHandler(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": "internal server error"})
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusInternalServerError)
	w.Write([]byte(errorPageHTML("500", "Erro do servidor", "Ocorreu um erro. Tente novamente dentro de instantes.")))
}

func errorPageHTML(code, title, message string) string {
	return `<!DOCTYPE html>
<html lang="pt-PT">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>` + title + ` | MPGrupo</title>
<meta name="robots" content="noindex">
<meta name="theme-color" content="#2C1810">
<style>
:root{--ink:#333;--ink-75:#555;--ink-50:#777;--ink-15:#ddd;--cream:#FAF8F3;--brown:#2C1810;--brown-mid:#8B7355;--gold:#D4AF37;--radius:6px}
*{margin:0;padding:0;box-sizing:border-box}
body{font-family:-apple-system,'Segoe UI',Roboto,sans-serif;background:var(--cream);color:var(--ink);min-height:100vh;display:flex;flex-direction:column;font-size:15px;line-height:1.65}
a{color:var(--brown-mid);text-decoration:none}a:hover{text-decoration:underline}
.header{background:var(--brown);height:56px;display:flex;align-items:center;justify-content:center}
.logo{color:var(--gold);font-weight:700;font-size:1.1rem;letter-spacing:.04em;text-decoration:none}
.error-wrap{flex:1;display:flex;align-items:center;justify-content:center;text-align:center;padding:40px 24px}
.error-code{font-size:clamp(5rem,15vw,8rem);color:var(--gold);line-height:1;margin-bottom:8px;font-weight:700}
.error-wrap h1{font-size:clamp(1.3rem,3vw,1.8rem);margin-bottom:12px;color:var(--brown)}
.error-wrap p{color:var(--ink-75);max-width:480px;margin:0 auto 24px;font-size:1rem}
.btn-home{display:inline-block;padding:12px 28px;background:var(--brown);color:var(--gold);border-radius:var(--radius);font-weight:600;font-size:.95rem;text-decoration:none}
.btn-home:hover{background:var(--brown-mid);color:#fff;text-decoration:none}
footer{border-top:1px solid var(--ink-15);padding:24px 0;text-align:center;color:var(--ink-50);font-size:.82rem}
footer a{margin:0 8px}
</style>
</head>
<body>
<header class="header"><a href="/" class="logo">MPGrupo</a></header>
<main class="error-wrap">
<div>
<div class="error-code">` + code + `</div>
<h1>` + title + `</h1>
<p>` + message + `</p>
<a href="/" class="btn-home">Voltar ao início</a>
</div>
</main>
<footer><a href="/">Início</a><a href="/#simulador">Simulador</a><a href="/#contactos">Contactos</a></footer>
</body>
</html>`
}
