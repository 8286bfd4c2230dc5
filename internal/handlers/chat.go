package handlers

import (
	"encoding/json"
	"mpgrupo/internal/chatbot"
	"net/http"
	"strings"
	"unicode/utf8"
)

const maxChatMessage = 500

// ChatHandler serves POST /api/chat with {"mensagem": "..."}.
func ChatHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Message string `json:"mensagem"`
	}
	r.Body = http.MaxBytesReader(w, r.Body, 8<<10)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Pedido inválido"})
		return
	}
	defer r.Body.Close()

	msg := strings.TrimSpace(req.Message)
	if msg == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Escreva uma pergunta"})
		return
	}
	if utf8.RuneCountInString(msg) > maxChatMessage {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Mensagem demasiado longa"})
		return
	}

	writeJSON(w, http.StatusOK, chatbot.Answer(msg))
}

// ChatFAQsHandler serves GET /api/chat/faqs: the greeting, suggested
// questions and every topic the bot knows about.
func ChatFAQsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Cache-Control", "public, max-age=3600")
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"saudacao":          chatbot.Greeting(),
		"respostas_rapidas": chatbot.QuickReplies(),
		"topicos":           chatbot.Topics(),
	})
}
