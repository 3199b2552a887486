// internal/app/app.go
package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	"bookledger/internal/catalog"
	"bookledger/internal/circulation"
	"bookledger/internal/config"
	"bookledger/internal/httpx"
	"bookledger/internal/membership"
	"bookledger/internal/notify"
	"bookledger/internal/store"
	"bookledger/internal/store/faultstore"
	"bookledger/internal/store/memstore"
	"bookledger/internal/store/pgstore"
)

// App holds the wired services and their shared resources.
type App struct {
	Store       store.Store
	Catalog     catalog.Service
	Circulation circulation.Service
	Membership  membership.Service

	closers []func() error
}

// OpenStore opens Postgres when dsn is set and an in-memory store otherwise.
func OpenStore(ctx context.Context, dsn string) (store.Store, error) {
	if dsn == "" {
		log.Warn().Msg("DATABASE_URL not set, using the in-memory store")
		return memstore.New()
	}
	return pgstore.Open(ctx, dsn)
}

// New opens the configured store and builds every service on top of it.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	s, err := OpenStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	if cfg.FaultBlastRadius > 0 {
		fs := faultstore.New(s, cfg.FaultSeed)
		fs.Inject(faultstore.Fault{BlastRadius: cfg.FaultBlastRadius})
		log.Warn().Float64("blast_radius", cfg.FaultBlastRadius).Uint64("seed", cfg.FaultSeed).
			Msg("fault injection enabled, store writes will fail on purpose")
		s = fs
	}
	a := &App{Store: s, closers: []func() error{s.Close}}

	if a.Catalog, err = catalog.NewService(s); err != nil {
		a.Close()
		return nil, err
	}

	opts := []circulation.Option{
		circulation.WithBlockedPersons(cfg.BlockedPersonIDs...),
		circulation.WithLoanPeriod(cfg.LoanPeriodMonths),
	}
	if cfg.RabbitURL != "" {
		rabbit, err := notify.NewRabbit(cfg.RabbitURL, cfg.RabbitExchange)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, rabbit.Close)
		opts = append(opts, circulation.WithNotifier(rabbit, cfg.NotifyTimeout))
		log.Info().Str("exchange", cfg.RabbitExchange).Msg("loan notifications enabled")
	}
	if a.Circulation, err = circulation.NewService(s, opts...); err != nil {
		a.Close()
		return nil, err
	}

	a.Membership, err = membership.NewService(s, cfg.NationalIDPepper,
		membership.WithRegistrationRate(cfg.RegistrationRatePerMinute, cfg.RegistrationBurst))
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// Router returns the HTTP API.
func (a *App) Router(allowedOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(httpx.RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowedHeaders: []string{"Content-Type", "X-Request-Id"},
	}).Handler)

	r.Get("/ping", func(w http.ResponseWriter, _ *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	catalog.NewHandler(a.Catalog).Mount(r)
	circulation.NewHandler(a.Circulation).Mount(r)
	membership.NewHandler(a.Membership).Mount(r)
	return r
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}
