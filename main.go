package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"mpgrupo/internal/chatbot"
	"mpgrupo/internal/config"
	"mpgrupo/internal/handlers"
	"mpgrupo/internal/logger"
	"mpgrupo/internal/middleware"
	"mpgrupo/internal/notify"
	"mpgrupo/internal/retention"
	sentryutil "mpgrupo/internal/sentry"
	"mpgrupo/internal/simulator"
	"mpgrupo/internal/store"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("mpgrupo: %v", err)
	}
}

// run wires and serves the site until SIGINT/SIGTERM. Every deferred
// shutdown step runs on both the error and the signal path.
func run() error {
	// Load configuration from .env and environment variables
	config.Load()

	// Initialize Sentry (non-blocking if SENTRY_DSN is empty)
	sentryutil.Init()
	defer sentryutil.Flush()

	// Database
	db, err := store.Open(config.Cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	defer db.Close()
	if err := seedCatalogue(db); err != nil {
		return err
	}
	handlers.SetStore(db)

	// Chatbot FAQ set (embedded default unless a file is configured)
	if path := config.Cfg.ChatbotFAQPath; path != "" {
		if err := chatbot.LoadFile(path); err != nil {
			log.Printf("[chatbot] %s: %v, using built-in FAQs", path, err)
			if err := chatbot.LoadDefault(); err != nil {
				return fmt.Errorf("chatbot: %w", err)
			}
		}
	} else if err := chatbot.LoadDefault(); err != nil {
		return fmt.Errorf("chatbot: %w", err)
	}

	// Simulation counter
	handlers.InitCounter(config.Cfg.CounterPath)
	defer handlers.StopCounter()

	// Simulator options
	policy, err := simulator.ParsePowerRatePolicy(config.Cfg.MissingPowerRatePolicy)
	if err != nil {
		log.Printf("[simulator] %v, falling back to %q", err, simulator.PowerRateZero)
		policy = simulator.PowerRateZero
	}
	handlers.SetSimulatorOptions(simulator.Options{MissingPowerRate: policy})

	// Lead alerts
	tg := notify.NewTelegram(config.Cfg.TelegramBotToken, config.Cfg.TelegramChatID, config.Cfg.NotifyTimeout)
	if tg.Enabled() {
		handlers.SetNotifier(tg)
	}

	// Lead retention: purge once at boot, then on schedule
	purge := retention.NewJob(db, config.Cfg.LeadRetentionDays)
	if err := purge.Register(config.Cfg.LeadRetentionCron); err != nil {
		return fmt.Errorf("retention: %w", err)
	}
	purge.Start()
	defer purge.Stop()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := purge.RunNow(ctx); err != nil {
			logger.Error("boot lead purge failed", map[string]interface{}{"error": err.Error()})
		}
	}()

	// Rate limiter from config
	limiter := handlers.NewRateLimiter(
		config.Cfg.RateLimitRPS,
		config.Cfg.RateLimitBurst,
		time.Second,
	)
	defer limiter.Stop()

	// Create mux
	mux := http.NewServeMux()

	// API routes
	mux.HandleFunc("/api/health", handlers.HealthHandler)
	mux.HandleFunc("/api/simulate", handlers.SimulateHandler)
	mux.HandleFunc("/api/report", handlers.ReportHandler)
	mux.HandleFunc("/api/whatsapp", handlers.WhatsAppHandler)
	mux.HandleFunc("/api/contact", handlers.ContactHandler)
	mux.HandleFunc("/api/parse-invoice", handlers.ParseInvoiceHandler)
	mux.HandleFunc("/api/chat", handlers.ChatHandler)
	mux.HandleFunc("/api/chat/faqs", handlers.ChatFAQsHandler)

	// Admin routes (protected by ADMIN_API_KEY)
	mux.HandleFunc("/api/admin/operators", handlers.AdminOperatorsHandler)
	mux.HandleFunc("/api/admin/operators/", handlers.AdminOperatorsHandler)
	mux.HandleFunc("/api/admin/discounts", handlers.AdminDiscountsHandler)
	mux.HandleFunc("/api/admin/leads", handlers.AdminLeadsHandler)
	mux.HandleFunc("/api/admin/leads/", handlers.AdminLeadsHandler)

	// Static site build, 404 for anything else
	fs := http.FileServer(http.Dir("static"))
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		// Block dotfile paths (.env, .git, etc.)
		if strings.Contains(r.URL.Path, "/.") || strings.HasPrefix(r.URL.Path, "/api/") {
			handlers.NotFoundHandler(w, r)
			return
		}
		if r.URL.Path != "/" {
			if _, err := os.Stat("static" + r.URL.Path); err != nil {
				handlers.NotFoundHandler(w, r)
				return
			}
		}
		fs.ServeHTTP(w, r)
	})

	// Wrap with middleware: Recovery → SecurityHeaders → Gzip (if enabled) → Rate Limiter
	var handler http.Handler = limiter.Middleware(mux)
	if config.Cfg.GzipEnabled {
		handler = middleware.Gzip(handler)
	}
	handler = middleware.SecurityHeaders(handler)
	handler = middleware.Recovery(handler, handlers.InternalErrorHandler)

	srv := &http.Server{
		Addr:              ":" + config.Cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", map[string]interface{}{"port": config.Cfg.Port})
		fmt.Printf("MPGrupo running on http://localhost:%s\n", config.Cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
	case <-ctx.Done():
	}
	logger.Info("server shutting down", nil)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", map[string]interface{}{"error": err.Error()})
	}
	return nil
}

// seedCatalogue loads the operator catalogue into an empty database.
func seedCatalogue(db *store.Store) error {
	path := config.Cfg.SeedPath
	if path == "" {
		return nil
	}
	seed, err := store.LoadSeed(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Printf("[store] No seed file at %s", path)
			return nil
		}
		return fmt.Errorf("store: seed: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	n, err := db.ApplySeed(ctx, seed)
	if err != nil {
		return fmt.Errorf("store: apply seed: %w", err)
	}
	if n > 0 {
		log.Printf("[store] Seeded %d operators from %s", n, path)
	}
	return nil
}
