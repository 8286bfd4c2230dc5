package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"mpgrupo/internal/config"
	"mpgrupo/internal/logger"
	"mpgrupo/internal/models"
	sentryutil "mpgrupo/internal/sentry"
	"mpgrupo/internal/store"
	"net/http"
	"strconv"
	"strings"
)

// checkAdminKey accepts the key from the X-Admin-Key header or ?key=.
func checkAdminKey(r *http.Request) bool {
	key := config.Cfg.AdminAPIKey
	if key == "" {
		return true // no key configured = open access (dev mode)
	}
	if r.URL.Query().Get("key") == key {
		return true
	}
	if r.Header.Get("X-Admin-Key") == key {
		return true
	}
	return false
}

// adminGuard rejects unauthorised requests and requests made before a store
// is wired. It returns the store when the request may proceed.
func adminGuard(w http.ResponseWriter, r *http.Request) (*store.Store, bool) {
	noStore(w)
	if !checkAdminKey(r) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return nil, false
	}
	s := getStore()
	if s == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": errNoStore.Error()})
		return nil, false
	}
	return s, true
}

func adminFail(w http.ResponseWriter, err error, handler, phase string) {
	if errors.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}
	sentryutil.CaptureError(err, map[string]string{"handler": handler, "phase": phase})
	logger.Error("admin request failed", map[string]interface{}{"handler": handler, "phase": phase, "error": err.Error()})
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
}

// AdminOperatorsHandler serves /api/admin/operators and
// /api/admin/operators/{id}.
//
//	GET    /api/admin/operators       every operator, active or not
//	GET    /api/admin/operators/{id}  one operator
//	POST   /api/admin/operators       create or update (id optional)
//	DELETE /api/admin/operators/{id}  remove with its discount config
func AdminOperatorsHandler(w http.ResponseWriter, r *http.Request) {
	s, ok := adminGuard(w, r)
	if !ok {
		return
	}
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/admin/operators"), "/")

	switch r.Method {
	case http.MethodGet:
		if id != "" {
			op, err := s.GetOperator(r.Context(), id)
			if err != nil {
				adminFail(w, err, "admin-operators", "get")
				return
			}
			writeJSON(w, http.StatusOK, op)
			return
		}
		ops, err := s.ListOperators(r.Context())
		if err != nil {
			adminFail(w, err, "admin-operators", "list")
			return
		}
		if ops == nil {
			ops = []models.OperatorTariff{}
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"operadoras": ops, "total": len(ops)})

	case http.MethodPost:
		var op models.OperatorTariff
		if err := json.NewDecoder(r.Body).Decode(&op); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Dados inválidos"})
			return
		}
		defer r.Body.Close()
		if id != "" {
			op.ID = id
		}
		if msg, ok := validateOperator(op); !ok {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
			return
		}
		saved, err := s.SaveOperator(r.Context(), op)
		if err != nil {
			adminFail(w, err, "admin-operators", "save")
			return
		}
		logger.Info("operator saved", map[string]interface{}{"id": saved.ID, "nome": saved.Name, "ativa": saved.Active})
		writeJSON(w, http.StatusOK, saved)

	case http.MethodDelete:
		if id == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing operator id"})
			return
		}
		if err := s.DeleteOperator(r.Context(), id); err != nil {
			adminFail(w, err, "admin-operators", "delete")
			return
		}
		logger.Info("operator deleted", map[string]interface{}{"id": id})
		writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true})

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// AdminDiscountsHandler serves GET/POST /api/admin/discounts.
func AdminDiscountsHandler(w http.ResponseWriter, r *http.Request) {
	s, ok := adminGuard(w, r)
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodGet:
		discounts, err := s.ListDiscounts(r.Context())
		if err != nil {
			adminFail(w, err, "admin-discounts", "list")
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"descontos": discounts, "total": len(discounts)})

	case http.MethodPost:
		var d models.DiscountConfig
		if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Dados inválidos"})
			return
		}
		defer r.Body.Close()
		if strings.TrimSpace(d.OperatorID) == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "operadora_id é obrigatório"})
			return
		}
		if msg, ok := validateDiscount(d); !ok {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
			return
		}
		saved, err := s.SaveDiscount(r.Context(), d)
		if err != nil {
			adminFail(w, err, "admin-discounts", "save")
			return
		}
		logger.Info("discount saved", map[string]interface{}{"operadora_id": saved.OperatorID})
		writeJSON(w, http.StatusOK, saved)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// AdminLeadsHandler serves GET /api/admin/leads?limit=N and
// GET /api/admin/leads/{id}/anexo for the uploaded file.
func AdminLeadsHandler(w http.ResponseWriter, r *http.Request) {
	s, ok := adminGuard(w, r)
	if !ok {
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/admin/leads"), "/")
	if rest != "" {
		idStr, ok := strings.CutSuffix(rest, "/anexo")
		id, err := strconv.ParseInt(idStr, 10, 64)
		if !ok || err != nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
			return
		}
		att, err := s.LeadAttachment(r.Context(), id)
		if err != nil {
			adminFail(w, err, "admin-leads", "attachment")
			return
		}
		w.Header().Set("Content-Type", att.ContentType)
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", att.Filename))
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Write(att.Data)
		return
	}

	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
			return
		}
		limit = n
	}
	leads, err := s.ListLeads(r.Context(), limit)
	if err != nil {
		adminFail(w, err, "admin-leads", "list")
		return
	}
	if leads == nil {
		leads = []models.Lead{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"pedidos": leads, "total": len(leads)})
}
