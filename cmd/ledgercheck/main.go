// cmd/ledgercheck/main.go
//
// ledgercheck compares the stock record with the sum of book quantities
// and exits with status 1 when they disagree.
package main

import (
	"context"
	"flag"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"bookledger/internal/app"
	"bookledger/internal/config"
	"bookledger/internal/ledger"
	"bookledger/internal/logging"
)

func main() {
	timeout := flag.Duration("timeout", 30*time.Second, "audit timeout")
	asJSON := flag.Bool("json", false, "print the report as JSON")
	flag.Parse()

	code, err := run(*timeout, *asJSON, os.Stdout)
	if err != nil {
		log.Error().Err(err).Msg("ledger check failed")
	}
	os.Exit(code)
}

func run(timeout time.Duration, asJSON bool, out io.Writer) (int, error) {
	cfg, err := config.Load()
	if err != nil {
		return 2, err
	}
	if err := logging.Setup(os.Stderr, cfg.LogLevel, cfg.LogFormat, "ledgercheck"); err != nil {
		return 2, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s, err := app.OpenStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return 2, err
	}
	defer s.Close()

	report, err := ledger.Audit(ctx, s)
	if err != nil {
		return 2, err
	}
	if err := printReport(out, report, asJSON); err != nil {
		return 2, err
	}
	if !report.Consistent() {
		return 1, nil
	}
	return 0, nil
}
