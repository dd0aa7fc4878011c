package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/kart-checkout/internal/domain/order"
	"github.com/xenking/kart-checkout/internal/handler"
	"github.com/xenking/kart-checkout/internal/paylink"
	"github.com/xenking/kart-checkout/pkg/health"
	"github.com/xenking/kart-checkout/pkg/httpmiddleware"
)

// NewProcessor builds the checkout pipeline on top of b. Payment links
// are handed to opener.
func NewProcessor(b *Backend, m *app.Telemetry, cfg *Config, opener paylink.Opener) (*order.Processor, error) {
	opts := order.ProcessorOptions{Selector: cfg.Payment.Selector()}
	if m != nil {
		opts.TracerProvider = m.TracerProvider()
		opts.MeterProvider = m.MeterProvider()
	}
	p, err := order.NewProcessor(b.Coupons, b.Orders, paylink.NewRedirector(cfg.PaymentURL, opener), opts)
	if err != nil {
		return nil, errors.Wrap(err, "create processor")
	}
	return p, nil
}

// NewRouter returns the API and health routes.
func NewRouter(h *handler.Handler, healthSvc *health.Health) http.Handler {
	r := chi.NewRouter()
	r.Use(
		httpmiddleware.Labeler(httpmiddleware.ChiRoute),
		httpmiddleware.LogRequests(httpmiddleware.ChiRoute),
	)
	r.Get("/livez", healthSvc.LiveEndpoint)
	r.Get("/readyz", healthSvc.ReadyEndpoint)
	r.Route("/api", h.Mount)
	return r
}

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the API server.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("backend", cfg.Backend),
	)

	backend, err := OpenBackend(ctx, lg, m, cfg)
	if err != nil {
		return errors.Wrap(err, "open backend")
	}
	defer backend.Close()

	healthSvc := health.New()
	backend.RegisterChecks(healthSvc)
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.AddLivenessCheck("gc", time.Second, health.GCMaxPauseCheck(time.Second))
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	processor, err := NewProcessor(backend, m, cfg, paylink.CaptureOpener{})
	if err != nil {
		return err
	}
	h := handler.NewHandler(handler.HandlerConfig{
		PaymentURL: cfg.PaymentURL,
		Selector:   cfg.Payment.Selector(),
	}, processor)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(NewRouter(h, healthSvc),
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", httpmiddleware.RequestIDHeader},
				ExposeHeaders:    []string{"Location", httpmiddleware.RequestIDHeader},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Instrument("kart-checkout", m),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}
