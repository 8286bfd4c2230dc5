package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"mpgrupo/internal/models"
	"mpgrupo/internal/simulator"
	"mpgrupo/internal/store"
	"net/http"
	"strings"
	"sync"
	"time"
)

// LeadNotifier delivers new-lead alerts.
type LeadNotifier interface {
	SendWithRetry(ctx context.Context, text string, maxRetries int) error
}

var (
	depsMu    sync.RWMutex
	db        *store.Store
	notifier  LeadNotifier
	simOpts   simulator.Options
	startTime = time.Now()
)

// SetStore wires the database used by every data-backed handler.
func SetStore(s *store.Store) {
	depsMu.Lock()
	db = s
	depsMu.Unlock()
}

// SetNotifier wires the lead alert channel. nil disables alerts.
func SetNotifier(n LeadNotifier) {
	depsMu.Lock()
	notifier = n
	depsMu.Unlock()
}

// SetSimulatorOptions sets the engine options used by simulation endpoints.
func SetSimulatorOptions(o simulator.Options) {
	depsMu.Lock()
	simOpts = o
	depsMu.Unlock()
}

func getStore() *store.Store {
	depsMu.RLock()
	defer depsMu.RUnlock()
	return db
}

func getNotifier() LeadNotifier {
	depsMu.RLock()
	defer depsMu.RUnlock()
	return notifier
}

func getSimulatorOptions() simulator.Options {
	depsMu.RLock()
	defer depsMu.RUnlock()
	return simOpts
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func noStore(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
}

const maxSimulationBody = 64 << 10

// decodeSimulation reads a simulation either as a JSON body or, for HTML
// form posts (urlencoded or multipart), as JSON in the "data" field.
func decodeSimulation(w http.ResponseWriter, r *http.Request) (models.CustomerInput, error) {
	var in models.CustomerInput
	r.Body = http.MaxBytesReader(w, r.Body, maxSimulationBody)
	defer r.Body.Close()

	ct := r.Header.Get("Content-Type")
	if strings.Contains(ct, "application/x-www-form-urlencoded") || strings.Contains(ct, "multipart/form-data") {
		var err error
		if strings.Contains(ct, "multipart/form-data") {
			err = r.ParseMultipartForm(maxSimulationBody)
		} else {
			err = r.ParseForm()
		}
		if err != nil {
			return in, err
		}
		data := r.FormValue("data")
		if data == "" {
			return in, errMissingData
		}
		err = json.Unmarshal([]byte(data), &in)
		return in, err
	}
	err := json.NewDecoder(r.Body).Decode(&in)
	return in, err
}

// runComparison loads the active catalogue and prices the customer against it.
func runComparison(ctx context.Context, in models.CustomerInput) (models.Comparison, error) {
	s := getStore()
	if s == nil {
		return models.Comparison{}, errNoStore
	}
	tariffs, err := s.ListActiveOperators(ctx)
	if err != nil {
		return models.Comparison{}, err
	}
	discounts, err := s.ListDiscounts(ctx)
	if err != nil {
		return models.Comparison{}, err
	}
	return simulator.Compare(in, tariffs, discounts, getSimulatorOptions()), nil
}

// HealthHandler serves GET /api/health.
func HealthHandler(w http.ResponseWriter, r *http.Request) {
	uptime := time.Since(startTime)
	resp := map[string]interface{}{
		"status":         "ok",
		"uptime_seconds": int(uptime.Seconds()),
		"uptime_human":   formatDuration(uptime),
		"simulacoes":     GetCounter(),
	}

	if s := getStore(); s != nil {
		if n, err := s.CountOperators(r.Context()); err == nil {
			resp["operadoras"] = n
		} else {
			resp["status"] = "degraded"
			resp["database"] = "unavailable"
		}
	} else {
		resp["status"] = "degraded"
		resp["database"] = "not configured"
	}

	writeJSON(w, http.StatusOK, resp)
}

func formatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm %ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
