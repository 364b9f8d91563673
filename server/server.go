package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"youbble/cache"
	"youbble/config"
	"youbble/core/intake"
	"youbble/core/payment"
	"youbble/db"
	"youbble/logger"
	"youbble/repository"
	"youbble/storage"

	"github.com/gorilla/mux"
)

// Routes holds everything the router serves.
type Routes struct {
	Competition *CompetitionHandler
	Site        *SiteHandler
	Uploads     http.Handler
	WebAppDir   string
}

// NewRouter builds the HTTP routes. Competition routes are served both under
// /api/competition and /competition. CORS wraps the router itself so that
// preflight requests never reach route matching.
func NewRouter(rt Routes) http.Handler {
	router := mux.NewRouter()

	rt.Competition.Register(router.PathPrefix("/api/competition").Subrouter())
	rt.Competition.Register(router.PathPrefix("/competition").Subrouter())
	rt.Site.Register(router.PathPrefix("/api").Subrouter())

	if rt.Uploads != nil {
		router.PathPrefix("/uploads/").Handler(rt.Uploads)
	}
	if rt.WebAppDir != "" {
		router.PathPrefix("/").Handler(http.FileServer(http.Dir(rt.WebAppDir)))
	}
	return corsMiddleware(router)
}

// corsMiddleware 添加 CORS 头并直接应答预检请求
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400") // 24 hours

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// newGate 创建支付网关：配置了 Stripe 密钥时使用 Stripe，否则进入降级模式
func newGate(ctx context.Context, cfg *config.Config) (*payment.Gate, func()) {
	opts := payment.Options{
		AllowPlaceholder: cfg.PaymentAllowPlaceholder,
		DefaultCurrency:  cfg.PaymentCurrency,
	}
	if cfg.StripeSecretKey != "" {
		opts.Processor = payment.NewStripeProcessor(cfg.StripeSecretKey)
	} else {
		logger.Warn("STRIPE_SECRET_KEY is not set, payments run in degraded mode",
			logger.Bool("placeholderAllowed", cfg.PaymentAllowPlaceholder))
	}

	closeFn := func() {}
	if cfg.RedisEnabled {
		client, err := db.ConnectRedis(ctx, cfg)
		if err != nil {
			logger.Warn("Redis unavailable, issued payment intents will not be recorded", logger.ErrorField(err))
		} else {
			opts.Recorder = cache.NewIntentLog(client, cfg.IntentTTL)
			closeFn = func() { client.Close() }
			logger.Info("Successfully connected to Redis")
		}
	}
	return payment.NewGate(opts), closeFn
}

// Start initializes and starts the HTTP server, blocking until SIGINT or SIGTERM.
func Start(cfg *config.Config) error {
	ctx := context.Background()

	for _, dir := range []string{cfg.DataDir, cfg.UploadDir} {
		if err := ensureDirExists(dir); err != nil {
			return err
		}
	}

	ledger, err := OpenLedger(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open entry ledger: %w", err)
	}
	defer ledger.Close()

	uploads, err := OpenUploads(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open upload store: %w", err)
	}

	inbox, closeInbox, err := OpenInbox(cfg)
	if err != nil {
		return fmt.Errorf("failed to open inbox: %w", err)
	}
	defer closeInbox()

	catalog, err := repository.LoadCatalog(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("failed to load catalog: %w", err)
	}

	gate, closeGate := newGate(ctx, cfg)
	defer closeGate()

	pipeline := intake.NewPipeline(cfg.Policy(), uploads, ledger)
	router := NewRouter(Routes{
		Competition: NewCompetitionHandler(pipeline, ledger, gate, cfg.CategoryFees),
		Site:        NewSiteHandler(catalog, inbox),
		Uploads:     NewStaticHandler(uploads, "/uploads/", storage.CategoryAudio),
		WebAppDir:   cfg.WebAppDir,
	})

	// 上传较大，写超时放宽
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       5 * time.Minute,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       120 * time.Second,
	}

	// 创建一个通道来接收操作系统信号
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	serveErr := make(chan error, 1)

	go func() {
		logger.Info("Server starting",
			logger.String("addr", cfg.HTTPAddr),
			logger.String("ledger", cfg.LedgerBackend),
			logger.String("uploads", cfg.UploadBackend),
			logger.Bool("paymentsConfigured", gate.Configured()),
			logger.Time("deadline", cfg.SubmissionDeadline))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("failed to start server: %w", err)
	case <-stop:
	}
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("Server stopped")
	return nil
}

func ensureDirExists(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		logger.Info("Creating directory", logger.String("path", path))
		if err := os.MkdirAll(path, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", path, err)
		}
	} else if err != nil {
		return fmt.Errorf("failed to check directory %s: %w", path, err)
	}
	return nil
}
