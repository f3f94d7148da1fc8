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

	"github.com/nicolascaliari/barfer-api-desarrollo/internal/domain/coupon"
	"github.com/nicolascaliari/barfer-api-desarrollo/internal/domain/discount"
	"github.com/nicolascaliari/barfer-api-desarrollo/internal/domain/order"
	"github.com/nicolascaliari/barfer-api-desarrollo/internal/domain/payment"
	"github.com/nicolascaliari/barfer-api-desarrollo/internal/domain/pricing"
	"github.com/nicolascaliari/barfer-api-desarrollo/internal/gateway/mercadopago"
	"github.com/nicolascaliari/barfer-api-desarrollo/internal/handler"
	"github.com/nicolascaliari/barfer-api-desarrollo/pkg/health"
	"github.com/nicolascaliari/barfer-api-desarrollo/pkg/httpmiddleware"
)

const serviceName = "barfer-api"

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr), zap.String("storage", cfg.Storage))

	var cl closers
	defer func() {
		if err := cl.Close(); err != nil {
			lg.Error("Close resources", zap.Error(err))
		}
	}()

	healthSvc := health.New()
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))

	st, err := openStores(ctx, lg, cfg, healthSvc, &cl)
	if err != nil {
		return err
	}
	sk, err := openSinks(ctx, lg, cfg, healthSvc, &cl)
	if err != nil {
		return err
	}

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Domain services.
	events := order.NewDispatcher(sk.mailer, sk.ledger, sk.analytics)
	calculator := pricing.NewCalculator(st.catalog, st.discounts, coupon.NewRepoValidator(st.coupons))
	orderService, err := order.NewService(order.Deps{
		Customers: st.customers,
		Catalog:   st.catalog,
		Coupons:   st.coupons,
		Pricer:    calculator,
		Orders:    st.orders,
		Payments: mercadopago.New(mercadopago.Config{
			AccessToken:      cfg.MercadoPago.AccessToken,
			Timeout:          cfg.MercadoPago.Timeout,
			FailureThreshold: cfg.MercadoPago.FailureThreshold,
			OpenTimeout:      cfg.MercadoPago.OpenTimeout,
		}, nil),
		Events:  events,
		Cache:   sk.cache,
		Deduper: sk.deduper,
		Callbacks: payment.CallbackURLs{
			Success:      cfg.MercadoPago.SuccessURL,
			Pending:      cfg.MercadoPago.PendingURL,
			Failure:      cfg.MercadoPago.FailureURL,
			Notification: cfg.MercadoPago.NotificationURL,
		},
		Meter:  m.MeterProvider().Meter(serviceName),
		Tracer: m.TracerProvider().Tracer(serviceName),
	})
	if err != nil {
		return errors.Wrap(err, "create order service")
	}

	h := handler.New(
		orderService,
		coupon.NewService(st.coupons, st.catalog),
		discount.NewService(st.discounts, st.catalog),
		handler.NewSecurity(st.apikeys, []byte(cfg.APIKeyPepper)),
	)

	// Router: health endpoints + API routes on one server. Route-aware
	// middleware runs inside the router so chi has resolved the pattern.
	router := chi.NewRouter()
	router.Use(
		httpmiddleware.Instrument(serviceName, m.TracerProvider(), m.MeterProvider()),
		httpmiddleware.LogRequests(),
	)
	router.Get("/livez", healthSvc.LiveEndpoint)
	router.Get("/readyz", healthSvc.ReadyEndpoint)
	h.Routes(router)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(router,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", handler.HeaderAPIKey, httpmiddleware.HeaderRequestID},
				ExposeHeaders:    []string{httpmiddleware.HeaderRequestID},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimit(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
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
		lg.Info("Waiting for order events")
		events.Wait()
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
