// Command checkout places one order from a cart file and prints its
// payment link.
//
//	checkout -cart cart.json
//	echo '{"items":[{"productId":"1","price":100,"quantity":2}]}' | checkout
//
// The backend is configured like the API server (KART_BACKEND, ...).
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	appkg "github.com/xenking/kart-checkout/internal/app"
	"github.com/xenking/kart-checkout/internal/paylink"
	"github.com/xenking/kart-checkout/internal/wire"
)

func main() {
	var (
		cartPath string
		verbose  bool
	)
	flag.StringVar(&cartPath, "cart", "-", "cart JSON file, - for stdin")
	flag.BoolVar(&verbose, "v", false, "debug logging")
	flag.Parse()

	lg, err := newLogger(verbose)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(2)
	}
	defer func() { _ = lg.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(zctx.Base(ctx, lg), lg, cartPath, os.Stdin, os.Stdout); err != nil {
		lg.Error("Checkout failed", zap.Error(err))
		cancel()
		os.Exit(1)
	}
}

func newLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	if !verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return cfg.Build()
}

func run(ctx context.Context, lg *zap.Logger, cartPath string, stdin io.Reader, out io.Writer) error {
	cfg, err := appkg.LoadConfig()
	if err != nil {
		return errors.Wrap(err, "config")
	}

	data, err := readCart(cartPath, stdin)
	if err != nil {
		return err
	}
	cart, err := wire.DecodeCart(jx.DecodeBytes(data))
	if err != nil {
		return errors.Wrap(err, "decode cart")
	}

	backend, err := appkg.OpenBackend(ctx, lg, nil, cfg)
	if err != nil {
		return errors.Wrap(err, "open backend")
	}
	defer backend.Close()

	p, err := appkg.NewProcessor(backend, nil, cfg, paylink.WriterOpener{W: out})
	if err != nil {
		return err
	}
	stored, err := p.Process(ctx, cart)
	if err != nil {
		return err
	}

	lg.Info("Order placed",
		zap.String("order_id", stored.ID),
		zap.Stringer("total", stored.TotalPrice),
		zap.Stringer("payment_method", stored.PaymentMethod),
	)
	return nil
}

func readCart(path string, stdin io.Reader) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, errors.Wrap(err, "read stdin")
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	return data, nil
}
