package app

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/kart-checkout/internal/domain/coupon"
	"github.com/xenking/kart-checkout/internal/domain/order"
	"github.com/xenking/kart-checkout/internal/remote"
	"github.com/xenking/kart-checkout/internal/storage/postgres"
	"github.com/xenking/kart-checkout/internal/storage/redis"
	"github.com/xenking/kart-checkout/pkg/health"
)

// Backend is the configured set of checkout collaborators.
type Backend struct {
	Coupons coupon.Resolver
	Orders  order.Store

	checks  []readinessCheck
	closers []func()
}

type readinessCheck struct {
	name    string
	timeout time.Duration
	check   health.CheckFunc
}

// Close releases every connection opened by OpenBackend.
func (b *Backend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

// RegisterChecks adds the readiness probes of the backend to h.
func (b *Backend) RegisterChecks(h *health.Health) {
	for _, c := range b.checks {
		h.AddReadinessCheck(c.name, c.timeout, c.check)
	}
}

// watch runs fn in the background until Close.
func (b *Backend) watch(ctx context.Context, lg *zap.Logger, fn func(ctx context.Context)) {
	ctx, cancel := context.WithCancel(zctx.Base(context.WithoutCancel(ctx), lg))
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn(ctx)
	}()
	b.closers = append(b.closers, func() {
		cancel()
		<-done
	})
}

// OpenBackend connects to the coupon and order stores selected by cfg and
// layers the coupon guards on top.
func OpenBackend(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) (_ *Backend, rerr error) {
	b := &Backend{}
	defer func() {
		if rerr != nil {
			b.Close()
		}
	}()

	switch cfg.Backend {
	case BackendPostgres:
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, errors.Wrap(err, "create db pool")
		}
		b.closers = append(b.closers, pool.Close)
		if err := postgres.RunMigrations(ctx, pool); err != nil {
			return nil, errors.Wrap(err, "run migrations")
		}
		b.checks = append(b.checks, readinessCheck{"postgres", 5 * time.Second, pool.Ping})

		couponRepo := postgres.NewCouponRepository(pool)
		b.Orders = postgres.NewOrderRepository(pool)
		b.Coupons = couponRepo

		if cfg.Coupons.Bloom {
			guard := coupon.NewBloomGuard(couponRepo, nil)
			n, err := guard.Refresh(ctx, couponRepo)
			if err != nil {
				return nil, errors.Wrap(err, "load coupon codes")
			}
			b.Coupons = guard
			if cfg.Coupons.BloomRefresh > 0 {
				b.watch(ctx, lg, func(ctx context.Context) {
					guard.Watch(ctx, couponRepo, cfg.Coupons.BloomRefresh)
				})
			}
			lg.Info("Coupon bloom guard enabled",
				zap.Int("codes", n),
				zap.Duration("refresh", cfg.Coupons.BloomRefresh),
			)
		}
	case BackendRemote:
		opts := remote.Options{}
		if m != nil {
			opts.TracerProvider = m.TracerProvider()
			opts.MeterProvider = m.MeterProvider()
		}
		client, err := remote.New(cfg.RemoteURL, opts)
		if err != nil {
			return nil, errors.Wrap(err, "create remote client")
		}
		b.Orders = client
		b.Coupons = client
		lg.Info("Using remote backend", zap.String("url", cfg.RemoteURL))
	default:
		return nil, errors.Errorf("unknown backend %q", cfg.Backend)
	}

	if cfg.Redis.Addr != "" {
		rc, err := redis.Dial(ctx, cfg.Redis.Addr)
		if err != nil {
			return nil, errors.Wrap(err, "connect redis")
		}
		b.closers = append(b.closers, func() { _ = rc.Close() })
		b.checks = append(b.checks, readinessCheck{"redis", 2 * time.Second, rc.Ping})
		b.Coupons = redis.NewCouponCache(b.Coupons, rc, cfg.Redis.TTL)
		lg.Info("Coupon cache enabled", zap.String("addr", cfg.Redis.Addr), zap.Duration("ttl", cfg.Redis.TTL))
	}

	return b, nil
}
