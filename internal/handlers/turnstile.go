package handlers

import (
	"encoding/json"
	"mpgrupo/internal/config"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var turnstileVerifyURL = "https://challenges.cloudflare.com/turnstile/v0/siteverify"

type turnstileResponse struct {
	Success bool `json:"success"`
}

// verifyTurnstile validates a Cloudflare Turnstile token.
// Returns true if verification passes or if no secret key is configured (dev mode).
func verifyTurnstile(token string) bool {
	secret := config.Cfg.TurnstileSecretKey
	if secret == "" {
		return true
	}
	if token == "" {
		return false
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.PostForm(turnstileVerifyURL,
		url.Values{
			"secret":   {secret},
			"response": {token},
		})
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	var result turnstileResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return false
	}
	return result.Success
}

// getTurnstileToken reads the token from the X-Turnstile-Token header, or
// from the cf-turnstile-response field of an already parsed multipart form.
func getTurnstileToken(r *http.Request) string {
	if t := strings.TrimSpace(r.Header.Get("X-Turnstile-Token")); t != "" {
		return t
	}
	if r.MultipartForm != nil {
		if v := r.MultipartForm.Value["cf-turnstile-response"]; len(v) > 0 {
			return strings.TrimSpace(v[0])
		}
	}
	return ""
}
